package services_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/services"
	"github.com/example/shramik/internal/testutil/memstore"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// codes hands out the given codes in order, then repeats the last one.
func codes(list ...string) services.CodeGenerator {
	i := 0
	return func() (string, error) {
		c := list[i]
		if i < len(list)-1 {
			i++
		}
		return c, nil
	}
}

type fixture struct {
	store      *memstore.Store
	audit      *memstore.AuditLog
	clock      *fakeClock
	otps       *services.OtpService
	shifts     *services.ShiftService
	ratings    *services.RatingService
	completion *services.CompletionService

	job          models.Job
	app          models.Application
	contractorID uuid.UUID
	workerID     uuid.UUID
}

func newFixture(t *testing.T, gen services.CodeGenerator) *fixture {
	t.Helper()

	f := &fixture{
		store:        memstore.New(),
		audit:        &memstore.AuditLog{},
		clock:        &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
		contractorID: uuid.New(),
		workerID:     uuid.New(),
	}
	if gen == nil {
		gen = codes("482913")
	}

	f.otps = services.NewOtpService(f.store, f.audit,
		services.WithOtpClock(f.clock.Now),
		services.WithCodeGenerator(gen),
	)
	f.shifts = services.NewShiftService(f.store, f.audit, f.clock.Now)
	f.ratings = services.NewRatingService(f.store, f.audit, false)
	f.completion = services.NewCompletionService(f.store)

	f.job = f.store.AddJob(models.Job{
		ContractorID: f.contractorID,
		Title:        "Brick laying",
		Status:       models.JobStatusOpen,
	})
	f.app = f.store.AddApplication(models.Application{
		JobID:        f.job.ID,
		WorkerID:     f.workerID,
		ContractorID: f.contractorID,
		Status:       models.ApplicationStatusAccepted,
	})
	return f
}

func (f *fixture) issue(t *testing.T, otpType string) *models.ShiftOtp {
	t.Helper()
	otp, err := f.otps.RequestForApplication(testContext(t), f.app.ID, f.workerID, otpType)
	if err != nil {
		t.Fatalf("issue %s code: %v", otpType, err)
	}
	return otp
}
