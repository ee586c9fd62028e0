package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/shramik/internal/config"
	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/utils"
)

const (
	loginCodeTTL         = 10 * time.Minute
	maxLoginCodeAttempts = 5
)

// LoginCodeSender delivers login codes to a phone.
type LoginCodeSender interface {
	SendLoginCode(phone, code string) error
}

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	db     *gorm.DB
	cfg    *config.Config
	sender LoginCodeSender
}

// NewAuthHandler constructs an AuthHandler. With a nil sender the code is
// returned in the response, which is only meant for development.
func NewAuthHandler(db *gorm.DB, cfg *config.Config, sender LoginCodeSender) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg, sender: sender}
}

type requestCodeRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
}

// RequestCode issues a fresh login code for a phone number.
func (h *AuthHandler) RequestCode(c *fiber.Ctx) error {
	var req requestCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	req.Phone = strings.TrimSpace(req.Phone)
	if err := utils.ValidateStruct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	code, err := utils.GenerateNumericCode()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate code")
	}
	hash, err := utils.HashCode(code)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash code")
	}

	now := time.Now()
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.LoginCode{}).
			Where("phone = ? AND used_at IS NULL AND expires_at > ?", req.Phone, now).
			Update("expires_at", now).Error; err != nil {
			return err
		}
		return tx.Create(&models.LoginCode{
			Phone:     req.Phone,
			CodeHash:  hash,
			ExpiresAt: now.Add(loginCodeTTL),
		}).Error
	})
	if err != nil {
		return err
	}

	resp := fiber.Map{
		"success":    true,
		"expires_in": int(loginCodeTTL.Seconds()),
	}
	if h.sender == nil {
		resp["code"] = code
	} else if err := h.sender.SendLoginCode(req.Phone, code); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "failed to deliver code")
	}

	return c.JSON(resp)
}

type verifyCodeRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
	Role  string `json:"role" validate:"omitempty,oneof=worker contractor"`
}

// Verify checks a login code, creating the profile on first login, and
// returns a JWT.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	var req verifyCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	req.Phone = strings.TrimSpace(req.Phone)
	if err := utils.ValidateStruct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	now := time.Now()
	var login models.LoginCode
	err := h.db.Where("phone = ? AND used_at IS NULL AND expires_at > ?", req.Phone, now).
		Order("created_at desc").
		First(&login).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusBadRequest, "code expired or not requested")
		}
		return err
	}

	if login.Attempts >= maxLoginCodeAttempts {
		return fiber.NewError(fiber.StatusTooManyRequests, "too many attempts, request a new code")
	}

	if !utils.CheckCode(login.CodeHash, req.Code) {
		if err := h.db.Model(&login).Update("attempts", gorm.Expr("attempts + 1")).Error; err != nil {
			return err
		}
		return fiber.NewError(fiber.StatusBadRequest, "invalid code")
	}

	var profile models.Profile
	created := false
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&login).Update("used_at", now).Error; err != nil {
			return err
		}

		err := tx.Where("phone = ?", req.Phone).First(&profile).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		role := req.Role
		if role == "" {
			role = models.RoleWorker
		}
		profile = models.Profile{
			Phone:     req.Phone,
			Role:      role,
			KycStatus: models.KycStatusNone,
		}
		created = true
		return tx.Create(&profile).Error
	})
	if err != nil {
		return err
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, profile.ID, profile.Role, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	if created {
		utils.Logger.WithField("profile_id", profile.ID).WithField("role", profile.Role).Info("profile created")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"token":   token,
		"profile": profile,
		"created": created,
	})
}
