package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/utils"
)

// ShiftService drives a shift from NONE through ONGOING to COMPLETED.
// Every transition validates and consumes its OTP and writes the log in a
// single store transaction.
type ShiftService struct {
	store ShiftStore
	audit AuditSink
	now   Clock
}

// NewShiftService constructs a ShiftService. A nil clock means time.Now.
func NewShiftService(store ShiftStore, audit AuditSink, clock Clock) *ShiftService {
	if clock == nil {
		clock = time.Now
	}
	return &ShiftService{store: store, audit: audit, now: clock}
}

// StartShift opens a new ongoing shift for the application.
func (s *ShiftService) StartShift(ctx context.Context, applicationID, workerID uuid.UUID, code string) (*models.ShiftLog, error) {
	var shift *models.ShiftLog

	err := s.store.WithinTx(ctx, func(tx ShiftStore) error {
		app, err := tx.LockApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		if err := checkWorkerApplication(app, workerID); err != nil {
			return err
		}

		now := s.now()
		v, err := validateWith(ctx, tx, now, app.ID, code, models.OtpTypeStart)
		if err != nil {
			return err
		}
		if !v.Valid {
			return rejectionError(v)
		}

		ongoing, err := tx.FindOngoingShift(ctx, app.JobID, app.ContractorID, app.WorkerID)
		if err != nil {
			return err
		}
		if ongoing != nil {
			return newError(ErrShiftAlreadyOngoing, "a shift is already in progress for this job")
		}

		if err := consumeWith(ctx, tx, v.Record.ID); err != nil {
			return err
		}

		shift = &models.ShiftLog{
			ApplicationID: app.ID,
			WorkerID:      app.WorkerID,
			ContractorID:  app.ContractorID,
			JobID:         app.JobID,
			StartOtpID:    v.Record.ID,
			StartTime:     now,
			Status:        models.ShiftStatusOngoing,
		}
		return tx.CreateShiftLog(ctx, shift)
	})
	if err != nil {
		return nil, s.fail("start", applicationID, err)
	}

	recordEvent(ctx, s.audit, EventShiftStarted, applicationID, workerID, map[string]any{
		"shift_id":   shift.ID,
		"job_id":     shift.JobID,
		"start_time": shift.StartTime,
	})
	return shift, nil
}

// EndShift completes the application's ongoing shift.
func (s *ShiftService) EndShift(ctx context.Context, applicationID, workerID uuid.UUID, code string) (*models.ShiftLog, error) {
	var shift *models.ShiftLog

	err := s.store.WithinTx(ctx, func(tx ShiftStore) error {
		app, err := tx.LockApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		if err := checkWorkerApplication(app, workerID); err != nil {
			return err
		}

		ongoing, err := tx.FindOngoingShift(ctx, app.JobID, app.ContractorID, app.WorkerID)
		if err != nil {
			return err
		}
		if ongoing == nil {
			return newError(ErrNoActiveShift, "there is no shift in progress to end")
		}

		now := s.now()
		v, err := validateWith(ctx, tx, now, app.ID, code, models.OtpTypeEnd)
		if err != nil {
			return err
		}
		if !v.Valid {
			return rejectionError(v)
		}

		if err := consumeWith(ctx, tx, v.Record.ID); err != nil {
			return err
		}

		end := now
		if end.Before(ongoing.StartTime) {
			end = ongoing.StartTime
		}
		changed, err := tx.CompleteShiftLog(ctx, ongoing.ID, end, v.Record.ID)
		if err != nil {
			return err
		}
		if !changed {
			return newError(ErrNoActiveShift, "the shift was already ended")
		}

		ongoing.EndTime = &end
		ongoing.EndOtpID = &v.Record.ID
		ongoing.Status = models.ShiftStatusCompleted
		shift = ongoing
		return nil
	})
	if err != nil {
		return nil, s.fail("end", applicationID, err)
	}

	recordEvent(ctx, s.audit, EventShiftCompleted, applicationID, workerID, map[string]any{
		"shift_id":         shift.ID,
		"job_id":           shift.JobID,
		"start_time":       shift.StartTime,
		"end_time":         shift.EndTime,
		"duration_minutes": int(shift.Duration().Minutes()),
	})
	return shift, nil
}

// ListShifts returns the application's shift history, newest first. Either
// party of the application may read it.
func (s *ShiftService) ListShifts(ctx context.Context, applicationID, actorID uuid.UUID) ([]models.ShiftLog, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, persistenceError("load application", err)
	}
	if app == nil {
		return nil, notFound("application")
	}
	if app.WorkerID != actorID && app.ContractorID != actorID {
		return nil, newError(ErrForbidden, "not a party to this application")
	}

	logs, err := s.store.ListShiftLogs(ctx, app.JobID, app.ContractorID, app.WorkerID)
	if err != nil {
		return nil, persistenceError("list shifts", err)
	}
	return logs, nil
}

func (s *ShiftService) fail(action string, applicationID uuid.UUID, err error) error {
	err = persistenceError(action+" shift", err)
	if errors.Is(err, ErrPersistence) {
		utils.Logger.WithError(err).
			WithField("application_id", applicationID).
			Errorf("shift %s failed", action)
	}
	return err
}
