// Package repositories holds the gorm implementations of the service
// persistence interfaces.
package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/services"
)

// ShiftRepository implements services.ShiftStore on PostgreSQL.
type ShiftRepository struct {
	db *gorm.DB
}

// NewShiftRepository constructs a ShiftRepository.
func NewShiftRepository(db *gorm.DB) *ShiftRepository {
	return &ShiftRepository{db: db}
}

var _ services.ShiftStore = (*ShiftRepository)(nil)

// WithinTx runs fn in a database transaction. Nested calls reuse the
// outer transaction through a savepoint.
func (r *ShiftRepository) WithinTx(ctx context.Context, fn func(tx services.ShiftStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ShiftRepository{db: tx})
	})
}

func (r *ShiftRepository) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// first maps gorm.ErrRecordNotFound to a nil result.
func first[T any](q *gorm.DB) (*T, error) {
	var out T
	if err := q.First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *ShiftRepository) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	return first[models.Application](r.conn(ctx).Where("id = ?", id))
}

func (r *ShiftRepository) LockApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	return first[models.Application](r.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *ShiftRepository) ListApplicationsByJobWorker(ctx context.Context, jobID, workerID uuid.UUID) ([]models.Application, error) {
	var apps []models.Application
	err := r.conn(ctx).
		Where("job_id = ? AND worker_id = ?", jobID, workerID).
		Order("created_at ASC").
		Find(&apps).Error
	return apps, err
}

func (r *ShiftRepository) JobExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.conn(ctx).Model(&models.Job{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *ShiftRepository) CreateShiftOtp(ctx context.Context, otp *models.ShiftOtp) error {
	return r.conn(ctx).Create(otp).Error
}

func (r *ShiftRepository) SupersedeShiftOtps(ctx context.Context, applicationID uuid.UUID, otpType string, now time.Time) (int64, error) {
	res := r.conn(ctx).Model(&models.ShiftOtp{}).
		Where("application_id = ? AND type = ? AND used = ? AND expires_at >= ?", applicationID, otpType, false, now).
		Update("used", true)
	return res.RowsAffected, res.Error
}

func (r *ShiftRepository) FindUnusedShiftOtp(ctx context.Context, applicationID uuid.UUID, code, otpType string) (*models.ShiftOtp, error) {
	return first[models.ShiftOtp](r.conn(ctx).
		Where("application_id = ? AND code = ? AND type = ? AND used = ?", applicationID, code, otpType, false).
		Order("issued_at DESC").
		Order("created_at DESC"))
}

func (r *ShiftRepository) GetShiftOtp(ctx context.Context, id uuid.UUID) (*models.ShiftOtp, error) {
	return first[models.ShiftOtp](r.conn(ctx).Where("id = ?", id))
}

func (r *ShiftRepository) MarkShiftOtpUsed(ctx context.Context, id uuid.UUID) error {
	return r.conn(ctx).Model(&models.ShiftOtp{}).
		Where("id = ?", id).
		Update("used", true).Error
}

func (r *ShiftRepository) ListPendingShiftOtps(ctx context.Context, contractorID uuid.UUID, now time.Time) ([]models.ShiftOtp, error) {
	var otps []models.ShiftOtp
	err := r.conn(ctx).
		Where("contractor_id = ? AND used = ? AND expires_at >= ?", contractorID, false, now).
		Order("issued_at DESC").
		Find(&otps).Error
	return otps, err
}

func (r *ShiftRepository) CreateShiftLog(ctx context.Context, log *models.ShiftLog) error {
	err := r.conn(ctx).Create(log).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &services.ShiftError{
			Kind:    services.ErrShiftAlreadyOngoing,
			Message: "a shift is already in progress for this job",
			Err:     err,
		}
	}
	return err
}

func (r *ShiftRepository) triple(ctx context.Context, jobID, contractorID, workerID uuid.UUID) *gorm.DB {
	return r.conn(ctx).
		Where("job_id = ? AND contractor_id = ? AND worker_id = ?", jobID, contractorID, workerID).
		Order("start_time DESC").
		Order("created_at DESC")
}

func (r *ShiftRepository) FindOngoingShift(ctx context.Context, jobID, contractorID, workerID uuid.UUID) (*models.ShiftLog, error) {
	return first[models.ShiftLog](r.triple(ctx, jobID, contractorID, workerID).
		Where("status = ?", models.ShiftStatusOngoing))
}

func (r *ShiftRepository) LatestShift(ctx context.Context, jobID, contractorID, workerID uuid.UUID) (*models.ShiftLog, error) {
	return first[models.ShiftLog](r.triple(ctx, jobID, contractorID, workerID))
}

func (r *ShiftRepository) CompleteShiftLog(ctx context.Context, id uuid.UUID, endTime time.Time, endOtpID uuid.UUID) (bool, error) {
	res := r.conn(ctx).Model(&models.ShiftLog{}).
		Where("id = ? AND status = ?", id, models.ShiftStatusOngoing).
		Updates(map[string]interface{}{
			"end_time":   endTime,
			"end_otp_id": endOtpID,
			"status":     models.ShiftStatusCompleted,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *ShiftRepository) ListShiftLogs(ctx context.Context, jobID, contractorID, workerID uuid.UUID) ([]models.ShiftLog, error) {
	var logs []models.ShiftLog
	err := r.triple(ctx, jobID, contractorID, workerID).Find(&logs).Error
	return logs, err
}

func (r *ShiftRepository) CreateRating(ctx context.Context, rating *models.Rating) error {
	return r.conn(ctx).Create(rating).Error
}

func (r *ShiftRepository) RatingExists(ctx context.Context, jobID, raterID uuid.UUID) (bool, error) {
	var count int64
	err := r.conn(ctx).Model(&models.Rating{}).
		Where("job_id = ? AND rater_id = ?", jobID, raterID).
		Count(&count).Error
	return count > 0, err
}

func (r *ShiftRepository) ListRatingsFor(ctx context.Context, ratedID uuid.UUID, limit int) ([]models.Rating, error) {
	var ratings []models.Rating
	q := r.conn(ctx).Where("rated_id = ?", ratedID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&ratings).Error
	return ratings, err
}

func (r *ShiftRepository) RatingStats(ctx context.Context, ratedID uuid.UUID) (float64, int64, error) {
	var row struct {
		Avg   float64
		Count int64
	}
	err := r.conn(ctx).Model(&models.Rating{}).
		Select("COALESCE(AVG(score), 0) AS avg, COUNT(*) AS count").
		Where("rated_id = ?", ratedID).
		Scan(&row).Error
	return row.Avg, row.Count, err
}
