package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/utils"
)

// ShiftOtpTTL is how long an issued shift code stays valid.
const ShiftOtpTTL = 5 * time.Minute

// IssueParams scopes a new shift code.
type IssueParams struct {
	ApplicationID uuid.UUID
	ContractorID  uuid.UUID
	WorkerID      uuid.UUID
	JobID         uuid.UUID
	Type          string
}

// Validation is the outcome of checking a submitted code. Reason is
// ErrOtpInvalid or ErrOtpExpired when Valid is false. An expired match
// still carries its Record.
type Validation struct {
	Valid  bool
	Record *models.ShiftOtp
	Reason error
}

// OtpService issues, validates and consumes shift codes.
type OtpService struct {
	store   ShiftStore
	audit   AuditSink
	now     Clock
	newCode CodeGenerator
}

// OtpOption customises an OtpService.
type OtpOption func(*OtpService)

// WithOtpClock overrides the time source.
func WithOtpClock(c Clock) OtpOption {
	return func(s *OtpService) { s.now = c }
}

// WithCodeGenerator overrides code generation.
func WithCodeGenerator(g CodeGenerator) OtpOption {
	return func(s *OtpService) { s.newCode = g }
}

// NewOtpService constructs an OtpService.
func NewOtpService(store ShiftStore, audit AuditSink, opts ...OtpOption) *OtpService {
	s := &OtpService{
		store:   store,
		audit:   audit,
		now:     time.Now,
		newCode: utils.GenerateNumericCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates a new code for the scope after superseding any still-valid
// code of the same (application, type). The application row stays locked
// between the two writes.
func (s *OtpService) Issue(ctx context.Context, p IssueParams) (*models.ShiftOtp, error) {
	if err := checkIssueParams(p); err != nil {
		return nil, err
	}

	code, err := s.newCode()
	if err != nil {
		return nil, persistenceError("generate code", err)
	}
	if !utils.IsNumericCode(code) {
		return nil, newError(ErrPersistence, "generated code is malformed")
	}

	now := s.now()
	otp := &models.ShiftOtp{
		ApplicationID: p.ApplicationID,
		ContractorID:  p.ContractorID,
		WorkerID:      p.WorkerID,
		JobID:         p.JobID,
		Code:          code,
		Type:          p.Type,
		IssuedAt:      now,
		ExpiresAt:     now.Add(ShiftOtpTTL),
	}

	err = s.store.WithinTx(ctx, func(tx ShiftStore) error {
		// The row lock serialises concurrent issues for one application.
		app, err := tx.LockApplication(ctx, p.ApplicationID)
		if err != nil {
			return err
		}
		if app == nil {
			return notFound("application")
		}

		superseded, err := tx.SupersedeShiftOtps(ctx, p.ApplicationID, p.Type, now)
		if err != nil {
			return err
		}
		if superseded > 0 {
			utils.Logger.WithField("application_id", p.ApplicationID).
				Debugf("superseded %d %s code(s)", superseded, p.Type)
		}
		return tx.CreateShiftOtp(ctx, otp)
	})
	if err != nil {
		return nil, persistenceError("issue shift code", err)
	}

	recordEvent(ctx, s.audit, EventOtpIssued, p.ApplicationID, p.WorkerID, map[string]any{
		"otp_id":     otp.ID,
		"type":       otp.Type,
		"expires_at": otp.ExpiresAt,
	})
	return otp, nil
}

// RequestForApplication issues a code on behalf of the application's worker.
func (s *OtpService) RequestForApplication(ctx context.Context, applicationID, workerID uuid.UUID, otpType string) (*models.ShiftOtp, error) {
	if err := checkOtpType(otpType); err != nil {
		return nil, err
	}

	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, persistenceError("load application", err)
	}
	if err := checkWorkerApplication(app, workerID); err != nil {
		return nil, err
	}

	return s.Issue(ctx, IssueParams{
		ApplicationID: app.ID,
		ContractorID:  app.ContractorID,
		WorkerID:      app.WorkerID,
		JobID:         app.JobID,
		Type:          otpType,
	})
}

// Validate checks a submitted code without consuming it.
func (s *OtpService) Validate(ctx context.Context, applicationID uuid.UUID, code, otpType string) (Validation, error) {
	return validateWith(ctx, s.store, s.now(), applicationID, code, otpType)
}

// ValidateForWorker is Validate scoped to the application's worker.
func (s *OtpService) ValidateForWorker(ctx context.Context, applicationID, workerID uuid.UUID, code, otpType string) (Validation, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return Validation{}, persistenceError("load application", err)
	}
	if err := checkWorkerApplication(app, workerID); err != nil {
		return Validation{}, err
	}
	return s.Validate(ctx, applicationID, code, otpType)
}

// Consume marks a code used. Consuming an already-used code is a no-op.
func (s *OtpService) Consume(ctx context.Context, otpID uuid.UUID) error {
	return consumeWith(ctx, s.store, otpID)
}

// ListPendingForContractor is the contractor's dashboard read path: every
// unused, unexpired code addressed to them, newest first.
func (s *OtpService) ListPendingForContractor(ctx context.Context, contractorID uuid.UUID) ([]models.ShiftOtp, error) {
	otps, err := s.store.ListPendingShiftOtps(ctx, contractorID, s.now())
	if err != nil {
		return nil, persistenceError("list pending codes", err)
	}
	return otps, nil
}

func validateWith(ctx context.Context, store ShiftStore, now time.Time, applicationID uuid.UUID, code, otpType string) (Validation, error) {
	if err := checkOtpType(otpType); err != nil {
		return Validation{}, err
	}
	if !utils.IsNumericCode(code) {
		return Validation{Valid: false, Reason: ErrOtpInvalid}, nil
	}

	otp, err := store.FindUnusedShiftOtp(ctx, applicationID, code, otpType)
	if err != nil {
		return Validation{}, persistenceError("look up shift code", err)
	}
	if otp == nil {
		return Validation{Valid: false, Reason: ErrOtpInvalid}, nil
	}
	if otp.Expired(now) {
		return Validation{Valid: false, Record: otp, Reason: ErrOtpExpired}, nil
	}
	return Validation{Valid: true, Record: otp}, nil
}

func consumeWith(ctx context.Context, store ShiftStore, otpID uuid.UUID) error {
	otp, err := store.GetShiftOtp(ctx, otpID)
	if err != nil {
		return persistenceError("load shift code", err)
	}
	if otp == nil {
		return notFound("shift code")
	}
	if otp.Used {
		return nil
	}
	if err := store.MarkShiftOtpUsed(ctx, otpID); err != nil {
		return persistenceError("consume shift code", err)
	}
	return nil
}

// rejectionError turns a failed Validation into the matching user error.
func rejectionError(v Validation) error {
	if v.Reason == ErrOtpExpired {
		return newError(ErrOtpExpired, "code has expired, ask for a new one")
	}
	return newError(ErrOtpInvalid, "code is incorrect or already used")
}

func checkIssueParams(p IssueParams) error {
	if err := checkOtpType(p.Type); err != nil {
		return err
	}
	if p.ApplicationID == uuid.Nil {
		return validationError("application_id is required")
	}
	if p.ContractorID == uuid.Nil {
		return validationError("contractor_id is required")
	}
	if p.WorkerID == uuid.Nil {
		return validationError("worker_id is required")
	}
	if p.JobID == uuid.Nil {
		return validationError("job_id is required")
	}
	return nil
}

func checkOtpType(t string) error {
	if t != models.OtpTypeStart && t != models.OtpTypeEnd {
		return validationError("type must be %q or %q", models.OtpTypeStart, models.OtpTypeEnd)
	}
	return nil
}

func checkWorkerApplication(app *models.Application, workerID uuid.UUID) error {
	if app == nil {
		return notFound("application")
	}
	if app.WorkerID != workerID {
		return newError(ErrForbidden, "application belongs to another worker")
	}
	if app.Status != models.ApplicationStatusAccepted {
		return newError(ErrApplicationNotAccepted, "application has not been accepted")
	}
	return nil
}
