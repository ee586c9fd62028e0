package handlers

import (
	"encoding/json"
	"errors"
	"math"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/shramik/internal/middleware"
	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/services"
	"github.com/example/shramik/internal/utils"
)

// PaymeHandler manages escrow checkout and the Payme merchant endpoint.
type PaymeHandler struct {
	db          *gorm.DB
	payme       *services.PaymeService
	merchantID  string
	checkoutURL string
}

func NewPaymeHandler(db *gorm.DB, payme *services.PaymeService, merchantID, checkoutURL string) *PaymeHandler {
	return &PaymeHandler{
		db:          db,
		payme:       payme,
		merchantID:  merchantID,
		checkoutURL: checkoutURL,
	}
}

type paymeRPCRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     any             `json:"id"`
}

// Pay handles Payme JSON-RPC calls.
func (h *PaymeHandler) Pay(c *fiber.Ctx) error {
	var req paymeRPCRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	utils.Logger.WithField("method", req.Method).Debug("payme rpc")
	ctx := c.UserContext()

	switch req.Method {
	case "CheckPerformTransaction":
		var params services.CheckPerformParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid params")
		}
		if err := h.payme.CheckPerformTransaction(ctx, params, req.ID); err != nil {
			return writePaymeError(c, err)
		}
		return c.JSON(fiber.Map{"result": fiber.Map{"allow": true}, "id": req.ID})
	case "CheckTransaction":
		var params services.CheckTransactionParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid params")
		}
		result, err := h.payme.CheckTransaction(ctx, params, req.ID)
		if err != nil {
			return writePaymeError(c, err)
		}
		return c.JSON(fiber.Map{"result": result, "id": req.ID})
	case "CreateTransaction":
		var params services.CreateTransactionParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid params")
		}
		result, err := h.payme.CreateTransaction(ctx, params, req.ID)
		if err != nil {
			return writePaymeError(c, err)
		}
		return c.JSON(fiber.Map{"result": result, "id": req.ID})
	case "PerformTransaction":
		var params services.PerformTransactionParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid params")
		}
		result, err := h.payme.PerformTransaction(ctx, params, req.ID)
		if err != nil {
			return writePaymeError(c, err)
		}
		return c.JSON(fiber.Map{"result": result, "id": req.ID})
	case "CancelTransaction":
		var params services.CancelTransactionParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid params")
		}
		result, err := h.payme.CancelTransaction(ctx, params, req.ID)
		if err != nil {
			return writePaymeError(c, err)
		}
		return c.JSON(fiber.Map{"result": result, "id": req.ID})
	case "GetStatement":
		var params services.StatementParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid params")
		}
		result, err := h.payme.GetStatement(ctx, params)
		if err != nil {
			return writePaymeError(c, err)
		}
		return c.JSON(fiber.Map{"result": fiber.Map{"transactions": result}, "id": req.ID})
	default:
		return c.JSON(fiber.Map{
			"error": fiber.Map{"code": -32601, "message": "method not found"},
			"id":    req.ID,
		})
	}
}

type checkoutRequest struct {
	ApplicationID string `json:"application_id" validate:"required,uuid"`
	ReturnURL     string `json:"return_url" validate:"omitempty,url"`
}

// Checkout creates a pending escrow payment for an application and returns
// the Payme checkout link.
func (h *PaymeHandler) Checkout(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var app models.Application
	if err := h.db.First(&app, "id = ?", uuid.MustParse(req.ApplicationID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "application not found")
		}
		return err
	}
	if app.ContractorID != userID {
		return fiber.NewError(fiber.StatusForbidden, "only the job owner can pay")
	}
	if app.Status == models.ApplicationStatusRejected {
		return fiber.NewError(fiber.StatusConflict, "application was rejected")
	}

	var job models.Job
	if err := h.db.First(&job, "id = ?", app.JobID).Error; err != nil {
		return err
	}
	wage := job.Wage
	if app.OfferedWage != nil {
		wage = *app.OfferedWage
	}

	var paid int64
	if err := h.db.Model(&models.Payment{}).
		Where("application_id = ? AND status = ?", app.ID, services.TransactionStatePaid).
		Count(&paid).Error; err != nil {
		return err
	}
	if paid > 0 {
		return fiber.NewError(fiber.StatusConflict, "application is already paid")
	}

	payment := models.Payment{
		ApplicationID: app.ID,
		ContractorID:  app.ContractorID,
		WorkerID:      app.WorkerID,
		Provider:      "payme",
		Amount:        int64(math.Round(wage * 100)),
	}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		// Abandoned checkouts for the same application are replaced.
		if err := tx.Where("application_id = ? AND status = 0 AND transaction_id = ''", app.ID).
			Delete(&models.Payment{}).Error; err != nil {
			return err
		}
		return tx.Create(&payment).Error
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":    true,
		"url":        services.CheckoutURL(h.checkoutURL, h.merchantID, &payment, req.ReturnURL),
		"payment_id": payment.ID,
		"amount":     payment.Amount,
	})
}

// ListPayments returns payments where the caller is payer or payee.
func (h *PaymeHandler) ListPayments(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	pg := utils.ParsePagination(c)

	query := h.db.Model(&models.Payment{}).Where("contractor_id = ? OR worker_id = ?", userID, userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var payments []models.Payment
	if err := query.
		Order("created_at desc").
		Limit(pg.Limit).
		Offset(pg.Offset).
		Find(&payments).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       payments,
		"pagination": pg.Meta(total),
	})
}

func writePaymeError(c *fiber.Ctx, err error) error {
	var txErr *services.TransactionError
	if errors.As(err, &txErr) {
		info := txErr.Info
		return c.JSON(fiber.Map{
			"error": fiber.Map{
				"code":    info.Code,
				"message": info.Message,
				"data":    txErr.Data,
			},
			"id": txErr.ID,
		})
	}
	utils.Logger.WithError(err).Error("payme rpc failed")
	return c.JSON(fiber.Map{
		"error": fiber.Map{"code": -32400, "message": "internal error"},
	})
}
