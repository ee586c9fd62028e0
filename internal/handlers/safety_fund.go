package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/shramik/internal/middleware"
	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/utils"
)

// SafetyFundHandler manages voluntary safety fund contributions.
type SafetyFundHandler struct {
	db *gorm.DB
}

func NewSafetyFundHandler(db *gorm.DB) *SafetyFundHandler {
	return &SafetyFundHandler{db: db}
}

type contributeRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0,lte=10000000"`
	Note   string  `json:"note" validate:"max=280"`
}

// Contribute records a contribution from the caller.
func (h *SafetyFundHandler) Contribute(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req contributeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	contribution := models.SafetyFundContribution{
		ProfileID: userID,
		Amount:    req.Amount,
		Note:      strings.TrimSpace(req.Note),
	}
	if err := h.db.Create(&contribution).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": contribution})
}

// Summary returns the fund total, contributor count and the caller's own
// contributions.
func (h *SafetyFundHandler) Summary(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var totals struct {
		Total        float64
		Contributors int64
	}
	if err := h.db.Model(&models.SafetyFundContribution{}).
		Select("COALESCE(SUM(amount), 0) AS total, COUNT(DISTINCT profile_id) AS contributors").
		Scan(&totals).Error; err != nil {
		return err
	}

	var mine []models.SafetyFundContribution
	if err := h.db.Where("profile_id = ?", userID).Order("created_at desc").Limit(50).Find(&mine).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"total":        totals.Total,
			"contributors": totals.Contributors,
			"mine":         mine,
		},
	})
}
