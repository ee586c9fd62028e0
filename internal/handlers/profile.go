package handlers

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/example/shramik/internal/middleware"
	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/services"
	"github.com/example/shramik/internal/utils"
)

const maxKycDocumentBytes = 10 << 20

var kycContentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

// DocumentUploader stores KYC documents.
type DocumentUploader interface {
	PutKycDocument(ctx context.Context, profileID uuid.UUID, filename, contentType string, data []byte) (string, error)
}

// KycNotifier is told when a profile submits a document.
type KycNotifier interface {
	NotifyKycSubmitted(ctx context.Context, k services.KycNotification) error
}

// ProfileHandler manages profile and KYC endpoints.
type ProfileHandler struct {
	db       *gorm.DB
	docs     DocumentUploader
	notifier KycNotifier
	ratings  *services.RatingService
}

// NewProfileHandler constructs ProfileHandler. A nil uploader disables KYC
// submission.
func NewProfileHandler(db *gorm.DB, docs DocumentUploader, notifier KycNotifier, ratings *services.RatingService) *ProfileHandler {
	return &ProfileHandler{db: db, docs: docs, notifier: notifier, ratings: ratings}
}

// GetProfile returns the caller's profile.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var profile models.Profile
	if err := h.db.First(&profile, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "profile not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": profile})
}

type updateProfileRequest struct {
	FullName  *string   `json:"full_name" validate:"omitempty,max=120"`
	Language  *string   `json:"language" validate:"omitempty,max=8"`
	City      *string   `json:"city" validate:"omitempty,max=80"`
	Bio       *string   `json:"bio" validate:"omitempty,max=1000"`
	Skills    *[]string `json:"skills" validate:"omitempty,max=20,dive,min=1,max=40"`
	DailyWage *float64  `json:"daily_wage" validate:"omitempty,gte=0"`
	Latitude  *float64  `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64  `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

// UpdateProfile patches the caller's profile.
func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	updates := map[string]interface{}{}
	if req.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*req.FullName)
	}
	if req.Language != nil {
		updates["language"] = *req.Language
	}
	if req.City != nil {
		updates["city"] = strings.TrimSpace(*req.City)
	}
	if req.Bio != nil {
		updates["bio"] = *req.Bio
	}
	if req.Skills != nil {
		updates["skills"] = pq.StringArray(normalizeSkills(*req.Skills))
	}
	if req.DailyWage != nil {
		updates["daily_wage"] = *req.DailyWage
	}
	if req.Latitude != nil {
		updates["latitude"] = *req.Latitude
	}
	if req.Longitude != nil {
		updates["longitude"] = *req.Longitude
	}
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}
	updates["updated_at"] = time.Now()

	if err := h.db.Model(&models.Profile{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return err
	}

	return h.GetProfile(c)
}

// SubmitKyc uploads an identity document and marks the profile for review.
func (h *ProfileHandler) SubmitKyc(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	if h.docs == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "document storage is not configured")
	}

	docType := strings.TrimSpace(c.FormValue("document_type"))
	if docType == "" {
		return fiber.NewError(fiber.StatusBadRequest, "document_type is required")
	}

	fh, err := c.FormFile("document")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "document file is required")
	}
	if fh.Size > maxKycDocumentBytes {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "document must be at most 10MB")
	}
	contentType := fh.Header.Get("Content-Type")
	if !kycContentTypes[contentType] {
		return fiber.NewError(fiber.StatusBadRequest, "document must be a JPEG, PNG or PDF")
	}

	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxKycDocumentBytes+1))
	if err != nil {
		return err
	}

	key, err := h.docs.PutKycDocument(c.UserContext(), userID, fh.Filename, contentType, data)
	if err != nil {
		utils.Logger.WithError(err).WithField("profile_id", userID).Error("kyc upload failed")
		return fiber.NewError(fiber.StatusBadGateway, "failed to store document")
	}

	now := time.Now()
	var profile models.Profile
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Profile{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"kyc_status":       models.KycStatusSubmitted,
			"kyc_doc_type":     docType,
			"kyc_document_key": key,
			"kyc_submitted_at": now,
		}).Error; err != nil {
			return err
		}
		return tx.First(&profile, "id = ?", userID).Error
	})
	if err != nil {
		return err
	}

	if h.notifier != nil {
		if err := h.notifier.NotifyKycSubmitted(c.UserContext(), services.KycNotification{
			ProfileID:    profile.ID.String(),
			FullName:     profile.FullName,
			Phone:        profile.Phone,
			DocumentType: docType,
		}); err != nil {
			utils.Logger.WithError(err).Warn("kyc notification failed")
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":    true,
		"kyc_status": profile.KycStatus,
	})
}

// RatingSummary returns the average score and latest reviews of a profile.
func (h *ProfileHandler) RatingSummary(c *fiber.Ctx) error {
	profileID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid profile id")
	}

	summary, err := h.ratings.Summary(c.UserContext(), profileID, 10)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": summary})
}

func normalizeSkills(skills []string) []string {
	return lo.Uniq(lo.FilterMap(skills, func(s string, _ int) (string, bool) {
		s = strings.ToLower(strings.TrimSpace(s))
		return s, s != ""
	}))
}
