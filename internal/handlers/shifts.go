package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/example/shramik/internal/middleware"
	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/services"
	"github.com/example/shramik/internal/utils"
)

// ShiftHandler exposes the OTP-verified shift workflow and ratings.
type ShiftHandler struct {
	otps    *services.OtpService
	shifts  *services.ShiftService
	ratings *services.RatingService
}

// NewShiftHandler constructs ShiftHandler.
func NewShiftHandler(otps *services.OtpService, shifts *services.ShiftService, ratings *services.RatingService) *ShiftHandler {
	return &ShiftHandler{otps: otps, shifts: shifts, ratings: ratings}
}

type requestOtpRequest struct {
	Type string `json:"type" validate:"required,oneof=start end"`
}

// issuedOtp is what the worker sees. The code itself only appears on the
// contractor's pending list.
type issuedOtp struct {
	ID            uuid.UUID `json:"id"`
	ApplicationID uuid.UUID `json:"application_id"`
	Type          string    `json:"type"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// RequestOtp issues a start or end code for the caller's application.
func (h *ShiftHandler) RequestOtp(c *fiber.Ctx) error {
	userID, appID, err := callerAndApplication(c)
	if err != nil {
		return err
	}

	var req requestOtpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	otp, err := h.otps.RequestForApplication(c.UserContext(), appID, userID, req.Type)
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": issuedOtp{
			ID:            otp.ID,
			ApplicationID: otp.ApplicationID,
			Type:          otp.Type,
			ExpiresAt:     otp.ExpiresAt,
		},
		"message": "ask the contractor for the code shown on their dashboard",
	})
}

type codeRequest struct {
	Type string `json:"type" validate:"omitempty,oneof=start end"`
	Code string `json:"code" validate:"required"`
}

// CheckOtp validates a code without consuming it.
func (h *ShiftHandler) CheckOtp(c *fiber.Ctx) error {
	userID, appID, err := callerAndApplication(c)
	if err != nil {
		return err
	}

	var req codeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Type == "" {
		return fiber.NewError(fiber.StatusBadRequest, "type is required")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	v, err := h.otps.ValidateForWorker(c.UserContext(), appID, userID, req.Code, req.Type)
	if err != nil {
		return writeServiceError(c, err)
	}

	resp := fiber.Map{"success": true, "valid": v.Valid}
	if !v.Valid {
		resp["reason"] = v.Reason.Error()
	}
	if v.Record != nil {
		resp["expires_at"] = v.Record.ExpiresAt
	}
	return c.JSON(resp)
}

// ListPendingOtps is the contractor dashboard of codes waiting to be relayed.
func (h *ShiftHandler) ListPendingOtps(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	otps, err := h.otps.ListPendingForContractor(c.UserContext(), userID)
	if err != nil {
		return writeServiceError(c, err)
	}
	if otps == nil {
		otps = []models.ShiftOtp{}
	}
	return c.JSON(fiber.Map{"success": true, "data": otps})
}

// StartShift opens a shift with the relayed start code.
func (h *ShiftHandler) StartShift(c *fiber.Ctx) error {
	return h.transition(c, h.shifts.StartShift, fiber.StatusCreated)
}

// EndShift completes the ongoing shift with the relayed end code.
func (h *ShiftHandler) EndShift(c *fiber.Ctx) error {
	return h.transition(c, h.shifts.EndShift, fiber.StatusOK)
}

type shiftTransition func(ctx context.Context, applicationID, workerID uuid.UUID, code string) (*models.ShiftLog, error)

func (h *ShiftHandler) transition(c *fiber.Ctx, fn shiftTransition, status int) error {
	userID, appID, err := callerAndApplication(c)
	if err != nil {
		return err
	}

	var req codeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	shift, err := fn(c.UserContext(), appID, userID, req.Code)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.Status(status).JSON(fiber.Map{"success": true, "data": shiftView(*shift)})
}

// ListShifts returns the application's shift history.
func (h *ShiftHandler) ListShifts(c *fiber.Ctx) error {
	userID, appID, err := callerAndApplication(c)
	if err != nil {
		return err
	}

	logs, err := h.shifts.ListShifts(c.UserContext(), appID, userID)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    lo.Map(logs, func(l models.ShiftLog, _ int) fiber.Map { return shiftView(l) }),
	})
}

type submitRatingRequest struct {
	JobID   string `json:"job_id" validate:"required,uuid"`
	RatedID string `json:"rated_id" validate:"required,uuid"`
	Score   int    `json:"score" validate:"required,min=1,max=5"`
	Review  string `json:"review" validate:"max=1000"`
}

// SubmitRating stores a rating from the caller.
func (h *ShiftHandler) SubmitRating(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req submitRatingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	res, err := h.ratings.Submit(c.UserContext(), services.RatingInput{
		JobID:   uuid.MustParse(req.JobID),
		RaterID: userID,
		RatedID: uuid.MustParse(req.RatedID),
		Score:   req.Score,
		Review:  req.Review,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": res})
}

func shiftView(l models.ShiftLog) fiber.Map {
	return fiber.Map{
		"id":               l.ID,
		"application_id":   l.ApplicationID,
		"job_id":           l.JobID,
		"status":           l.Status,
		"start_time":       l.StartTime,
		"end_time":         l.EndTime,
		"duration_minutes": int(l.Duration().Minutes()),
	}
}

func callerAndApplication(c *fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return uuid.Nil, uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	appID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid application id")
	}
	return userID, appID, nil
}
