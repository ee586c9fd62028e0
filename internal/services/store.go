package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/shramik/internal/models"
)

// ShiftStore is the persistence boundary for the shift workflow. Lookups
// return (nil, nil) when nothing matches.
type ShiftStore interface {
	// WithinTx runs fn atomically. If fn returns an error nothing it wrote
	// is kept.
	WithinTx(ctx context.Context, fn func(tx ShiftStore) error) error

	GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error)
	// LockApplication loads the application and holds a row lock on it
	// until the surrounding transaction ends.
	LockApplication(ctx context.Context, id uuid.UUID) (*models.Application, error)
	ListApplicationsByJobWorker(ctx context.Context, jobID, workerID uuid.UUID) ([]models.Application, error)
	JobExists(ctx context.Context, id uuid.UUID) (bool, error)

	CreateShiftOtp(ctx context.Context, otp *models.ShiftOtp) error
	// SupersedeShiftOtps marks every unused, unexpired code of the given
	// (application, type) as used and returns how many were affected.
	SupersedeShiftOtps(ctx context.Context, applicationID uuid.UUID, otpType string, now time.Time) (int64, error)
	// FindUnusedShiftOtp returns the most recently issued unused code
	// matching (application, code, type).
	FindUnusedShiftOtp(ctx context.Context, applicationID uuid.UUID, code, otpType string) (*models.ShiftOtp, error)
	GetShiftOtp(ctx context.Context, id uuid.UUID) (*models.ShiftOtp, error)
	MarkShiftOtpUsed(ctx context.Context, id uuid.UUID) error
	ListPendingShiftOtps(ctx context.Context, contractorID uuid.UUID, now time.Time) ([]models.ShiftOtp, error)

	CreateShiftLog(ctx context.Context, log *models.ShiftLog) error
	// FindOngoingShift returns the ongoing log with the latest start time.
	FindOngoingShift(ctx context.Context, jobID, contractorID, workerID uuid.UUID) (*models.ShiftLog, error)
	LatestShift(ctx context.Context, jobID, contractorID, workerID uuid.UUID) (*models.ShiftLog, error)
	// CompleteShiftLog closes the log only if it is still ongoing and
	// reports whether a row changed.
	CompleteShiftLog(ctx context.Context, id uuid.UUID, endTime time.Time, endOtpID uuid.UUID) (bool, error)
	ListShiftLogs(ctx context.Context, jobID, contractorID, workerID uuid.UUID) ([]models.ShiftLog, error)

	CreateRating(ctx context.Context, rating *models.Rating) error
	RatingExists(ctx context.Context, jobID, raterID uuid.UUID) (bool, error)
	ListRatingsFor(ctx context.Context, ratedID uuid.UUID, limit int) ([]models.Rating, error)
	RatingStats(ctx context.Context, ratedID uuid.UUID) (avg float64, count int64, err error)
}

// AuditSink receives workflow events after they commit.
type AuditSink interface {
	Record(ctx context.Context, event *models.ShiftEvent) error
}

// Clock returns the current time.
type Clock func() time.Time

// CodeGenerator produces a fresh 6-digit code.
type CodeGenerator func() (string, error)
