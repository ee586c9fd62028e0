package handlers

import (
	"errors"
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

// JobHandler manages job postings and applications.
type JobHandler struct {
	db         *gorm.DB
	completion *services.CompletionService
}

// NewJobHandler constructs JobHandler.
func NewJobHandler(db *gorm.DB, completion *services.CompletionService) *JobHandler {
	return &JobHandler{db: db, completion: completion}
}

type createJobRequest struct {
	Title         string     `json:"title" validate:"required,max=120"`
	Description   string     `json:"description" validate:"max=4000"`
	Skills        []string   `json:"skills" validate:"max=20,dive,min=1,max=40"`
	City          string     `json:"city" validate:"required,max=80"`
	Address       string     `json:"address" validate:"max=200"`
	Latitude      float64    `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude     float64    `json:"longitude" validate:"gte=-180,lte=180"`
	Wage          float64    `json:"wage" validate:"required,gt=0"`
	Currency      string     `json:"currency" validate:"omitempty,len=3"`
	WorkersNeeded int        `json:"workers_needed" validate:"omitempty,min=1,max=500"`
	StartDate     *time.Time `json:"start_date"`
}

// CreateJob posts a new job for the calling contractor.
func (h *JobHandler) CreateJob(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createJobRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	job := models.Job{
		ContractorID:  userID,
		Title:         strings.TrimSpace(req.Title),
		Description:   req.Description,
		Skills:        pq.StringArray(normalizeSkills(req.Skills)),
		City:          strings.TrimSpace(req.City),
		Address:       req.Address,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Wage:          req.Wage,
		Currency:      lo.Ternary(req.Currency == "", "UZS", strings.ToUpper(req.Currency)),
		WorkersNeeded: lo.Ternary(req.WorkersNeeded == 0, 1, req.WorkersNeeded),
		StartDate:     req.StartDate,
		Status:        models.JobStatusOpen,
	}
	if err := h.db.Create(&job).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": job})
}

// ListJobs returns open jobs, newest first.
func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Job{}).Where("status = ?", models.JobStatusOpen)

	if city := strings.TrimSpace(c.Query("city")); city != "" {
		query = query.Where("city ILIKE ?", city)
	}
	if skill := strings.ToLower(strings.TrimSpace(c.Query("skill"))); skill != "" {
		query = query.Where("? = ANY(skills)", skill)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		q := "%" + search + "%"
		query = query.Where("title ILIKE ? OR description ILIKE ?", q, q)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var jobs []models.Job
	if err := query.
		Limit(pg.Limit).Offset(pg.Offset).
		Order("created_at desc").
		Find(&jobs).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       jobs,
		"pagination": pg.Meta(total),
	})
}

// GetJob loads one job with its applicant count.
func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	job, err := h.loadJob(c)
	if err != nil {
		return err
	}

	var count int64
	if err := h.db.Model(&models.Application{}).Where("job_id = ?", job.ID).Count(&count).Error; err != nil {
		return err
	}
	job.ApplicantCount = int(count)

	return c.JSON(fiber.Map{"success": true, "data": job})
}

// CloseJob stops a job from taking new applications.
func (h *JobHandler) CloseJob(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	job, err := h.loadJob(c)
	if err != nil {
		return err
	}
	if job.ContractorID != userID {
		return fiber.NewError(fiber.StatusForbidden, "only the job owner can close it")
	}

	if err := h.db.Model(job).Update("status", models.JobStatusClosed).Error; err != nil {
		return err
	}
	job.Status = models.JobStatusClosed
	return c.JSON(fiber.Map{"success": true, "data": job})
}

type applyRequest struct {
	OfferedWage *float64 `json:"offered_wage" validate:"omitempty,gt=0"`
	Message     string   `json:"message" validate:"max=1000"`
}

// Apply records the calling worker's interest in a job.
func (h *JobHandler) Apply(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	job, err := h.loadJob(c)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusOpen {
		return fiber.NewError(fiber.StatusConflict, "job is closed")
	}
	if job.ContractorID == userID {
		return fiber.NewError(fiber.StatusBadRequest, "you cannot apply to your own job")
	}

	var req applyRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	if err := utils.ValidateStruct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	app := models.Application{
		JobID:        job.ID,
		WorkerID:     userID,
		ContractorID: job.ContractorID,
		Status:       models.ApplicationStatusPending,
		OfferedWage:  req.OfferedWage,
		Message:      req.Message,
	}
	if err := h.db.Create(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fiber.NewError(fiber.StatusConflict, "you have already applied to this job")
		}
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": app})
}

// ListJobApplications returns every application for a job the caller owns.
func (h *JobHandler) ListJobApplications(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	job, err := h.loadJob(c)
	if err != nil {
		return err
	}
	if job.ContractorID != userID {
		return fiber.NewError(fiber.StatusForbidden, "only the job owner can see applications")
	}

	var apps []models.Application
	if err := h.db.Where("job_id = ?", job.ID).Order("created_at asc").Find(&apps).Error; err != nil {
		return err
	}
	return h.respondApplications(c, apps, nil)
}

// ListMyApplications returns the caller's applications as worker or
// contractor, each with its derived completion flag.
func (h *JobHandler) ListMyApplications(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	pg := utils.ParsePagination(c)

	query := h.db.Model(&models.Application{}).
		Where("worker_id = ? OR contractor_id = ?", userID, userID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var apps []models.Application
	if err := query.Order("created_at desc").Limit(pg.Limit).Offset(pg.Offset).Find(&apps).Error; err != nil {
		return err
	}

	meta := pg.Meta(total)
	return h.respondApplications(c, apps, meta)
}

type decideRequest struct {
	Status string `json:"status" validate:"required,oneof=accepted rejected"`
}

// DecideApplication lets the job owner accept or reject a pending application.
func (h *JobHandler) DecideApplication(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	appID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid application id")
	}

	var req decideRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var app models.Application
	if err := h.db.First(&app, "id = ?", appID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "application not found")
		}
		return err
	}
	if app.ContractorID != userID {
		return fiber.NewError(fiber.StatusForbidden, "only the job owner can decide")
	}

	res := h.db.Model(&models.Application{}).
		Where("id = ? AND status = ?", app.ID, models.ApplicationStatusPending).
		Update("status", req.Status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusConflict, "application has already been decided")
	}
	app.Status = req.Status

	return c.JSON(fiber.Map{"success": true, "data": app})
}

type applicationView struct {
	models.Application
	Completed bool `json:"completed"`
}

func (h *JobHandler) respondApplications(c *fiber.Ctx, apps []models.Application, pagination fiber.Map) error {
	flags, err := h.completion.CompletionFlags(c.UserContext(), apps)
	if err != nil {
		return writeServiceError(c, err)
	}

	data := lo.Map(apps, func(a models.Application, _ int) applicationView {
		return applicationView{Application: a, Completed: flags[a.ID]}
	})

	resp := fiber.Map{"success": true, "data": data}
	if pagination != nil {
		resp["pagination"] = pagination
	}
	return c.JSON(resp)
}

func (h *JobHandler) loadJob(c *fiber.Ctx) (*models.Job, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid job id")
	}

	var job models.Job
	if err := h.db.First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "job not found")
		}
		return nil, err
	}
	return &job, nil
}
