package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/shramik/internal/config"
	"github.com/example/shramik/internal/handlers"
	"github.com/example/shramik/internal/middleware"
	"github.com/example/shramik/internal/models"
)

// Handlers groups every HTTP handler the API serves.
type Handlers struct {
	Auth       *handlers.AuthHandler
	Profile    *handlers.ProfileHandler
	Jobs       *handlers.JobHandler
	Shifts     *handlers.ShiftHandler
	Payme      *handlers.PaymeHandler
	SafetyFund *handlers.SafetyFundHandler
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, h Handlers, cfg *config.Config) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": config.AppName})
	})

	api := app.Group("/api")

	// Payme calls this with its own Basic auth, not a JWT.
	api.Post("/payme/pay", middleware.PaymeAuthMiddleware(cfg.PaymeMerchantKey), h.Payme.Pay)

	auth := api.Group("/auth")
	auth.Post("/request-code", h.Auth.RequestCode)
	auth.Post("/verify", h.Auth.Verify)

	api.Get("/jobs", h.Jobs.ListJobs)

	protected := api.Group("", middleware.AuthMiddleware(cfg.JWTSecret))

	protected.Get("/profile", h.Profile.GetProfile)
	protected.Put("/profile", h.Profile.UpdateProfile)
	protected.Post("/profile/kyc", h.Profile.SubmitKyc)
	protected.Get("/profiles/:id/ratings", h.Profile.RatingSummary)

	contractor := middleware.RequireRole(models.RoleContractor)
	worker := middleware.RequireRole(models.RoleWorker)

	protected.Post("/jobs", contractor, h.Jobs.CreateJob)
	protected.Get("/jobs/:id", h.Jobs.GetJob)
	protected.Patch("/jobs/:id/close", contractor, h.Jobs.CloseJob)
	protected.Post("/jobs/:id/apply", worker, h.Jobs.Apply)
	protected.Get("/jobs/:id/applications", contractor, h.Jobs.ListJobApplications)

	protected.Get("/applications", h.Jobs.ListMyApplications)
	protected.Patch("/applications/:id", contractor, h.Jobs.DecideApplication)

	RegisterShifts(protected, h.Shifts)

	protected.Post("/payments/checkout", contractor, h.Payme.Checkout)
	protected.Get("/payments", h.Payme.ListPayments)

	protected.Post("/safety-fund/contributions", h.SafetyFund.Contribute)
	protected.Get("/safety-fund", h.SafetyFund.Summary)
}

// RegisterShifts mounts the shift workflow on an authenticated router.
func RegisterShifts(r fiber.Router, h *handlers.ShiftHandler) {
	contractor := middleware.RequireRole(models.RoleContractor)
	worker := middleware.RequireRole(models.RoleWorker)

	r.Post("/applications/:id/shift-otps", worker, h.RequestOtp)
	r.Post("/applications/:id/shift-otps/check", worker, h.CheckOtp)
	r.Get("/shift-otps/pending", contractor, h.ListPendingOtps)
	r.Post("/applications/:id/shifts/start", worker, h.StartShift)
	r.Post("/applications/:id/shifts/end", worker, h.EndShift)
	r.Get("/applications/:id/shifts", h.ListShifts)
	r.Post("/ratings", h.SubmitRating)
}
