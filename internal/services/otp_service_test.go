package services_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/services"
	"github.com/example/shramik/internal/utils"
)

func TestIssueCodeShapeAndExpiry(t *testing.T) {
	f := newFixture(t, utils.GenerateNumericCode)

	for i := 0; i < 20; i++ {
		otp := f.issue(t, models.OtpTypeStart)
		assert.Regexp(t, `^[0-9]{6}$`, otp.Code)
		assert.Equal(t, f.clock.Now(), otp.IssuedAt)
		assert.Equal(t, f.clock.Now().Add(300*time.Second), otp.ExpiresAt)
		assert.False(t, otp.Used)
		f.clock.Advance(time.Second)
	}
}

func TestIssueRejectsBadParams(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.otps.Issue(testContext(t), services.IssueParams{
		ApplicationID: f.app.ID,
		ContractorID:  f.contractorID,
		WorkerID:      f.workerID,
		JobID:         f.job.ID,
		Type:          "pause",
	})
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = f.otps.Issue(testContext(t), services.IssueParams{
		ContractorID: f.contractorID,
		WorkerID:     f.workerID,
		JobID:        f.job.ID,
		Type:         models.OtpTypeStart,
	})
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.Empty(t, f.store.ShiftOtps())
}

func TestIssueMalformedGeneratorOutput(t *testing.T) {
	f := newFixture(t, codes("12ab56"))

	_, err := f.otps.RequestForApplication(testContext(t), f.app.ID, f.workerID, models.OtpTypeStart)
	assert.ErrorIs(t, err, services.ErrPersistence)
	assert.Empty(t, f.store.ShiftOtps())
}

func TestRequestForApplicationChecksOwnership(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.otps.RequestForApplication(testContext(t), uuid.New(), f.workerID, models.OtpTypeStart)
	assert.ErrorIs(t, err, services.ErrNotFound)

	_, err = f.otps.RequestForApplication(testContext(t), f.app.ID, uuid.New(), models.OtpTypeStart)
	assert.ErrorIs(t, err, services.ErrForbidden)

	pending := f.store.AddApplication(models.Application{
		JobID:        f.job.ID,
		WorkerID:     uuid.New(),
		ContractorID: f.contractorID,
		Status:       models.ApplicationStatusPending,
	})
	_, err = f.otps.RequestForApplication(testContext(t), pending.ID, pending.WorkerID, models.OtpTypeStart)
	assert.ErrorIs(t, err, services.ErrApplicationNotAccepted)
}

func TestValidateBeforeAndAfterExpiry(t *testing.T) {
	f := newFixture(t, nil)
	otp := f.issue(t, models.OtpTypeEnd)

	f.clock.Advance(299 * time.Second)
	v, err := f.otps.Validate(testContext(t), f.app.ID, "482913", models.OtpTypeEnd)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, otp.ID, v.Record.ID)

	f.clock.Advance(2 * time.Second)
	v, err = f.otps.Validate(testContext(t), f.app.ID, "482913", models.OtpTypeEnd)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.ErrorIs(t, v.Reason, services.ErrOtpExpired)
	require.NotNil(t, v.Record)
	assert.Equal(t, otp.ID, v.Record.ID)
}

func TestValidateMismatches(t *testing.T) {
	f := newFixture(t, nil)
	f.issue(t, models.OtpTypeStart)

	cases := []struct {
		name  string
		appID uuid.UUID
		code  string
		typ   string
	}{
		{"wrong code", f.app.ID, "111111", models.OtpTypeStart},
		{"wrong type", f.app.ID, "482913", models.OtpTypeEnd},
		{"wrong application", uuid.New(), "482913", models.OtpTypeStart},
		{"not numeric", f.app.ID, "48291x", models.OtpTypeStart},
		{"too short", f.app.ID, "48291", models.OtpTypeStart},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := f.otps.Validate(testContext(t), tc.appID, tc.code, tc.typ)
			require.NoError(t, err)
			assert.False(t, v.Valid)
			assert.ErrorIs(t, v.Reason, services.ErrOtpInvalid)
			assert.Nil(t, v.Record)
		})
	}
}

func TestValidateUsedCodeIsInvalid(t *testing.T) {
	f := newFixture(t, nil)
	otp := f.issue(t, models.OtpTypeStart)
	require.NoError(t, f.otps.Consume(testContext(t), otp.ID))

	v, err := f.otps.Validate(testContext(t), f.app.ID, "482913", models.OtpTypeStart)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.ErrorIs(t, v.Reason, services.ErrOtpInvalid)

	f.clock.Advance(10 * time.Minute)
	v, err = f.otps.Validate(testContext(t), f.app.ID, "482913", models.OtpTypeStart)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.ErrorIs(t, v.Reason, services.ErrOtpInvalid)
}

func TestConsumeTwice(t *testing.T) {
	f := newFixture(t, nil)
	otp := f.issue(t, models.OtpTypeStart)

	require.NoError(t, f.otps.Consume(testContext(t), otp.ID))
	require.NoError(t, f.otps.Consume(testContext(t), otp.ID))

	stored := f.store.ShiftOtps()
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Used)

	assert.ErrorIs(t, f.otps.Consume(testContext(t), uuid.New()), services.ErrNotFound)
}

func TestReissueSupersedesPriorCode(t *testing.T) {
	f := newFixture(t, codes("111111", "222222"))

	first := f.issue(t, models.OtpTypeStart)
	f.clock.Advance(time.Minute)
	second := f.issue(t, models.OtpTypeStart)

	v, err := f.otps.Validate(testContext(t), f.app.ID, first.Code, models.OtpTypeStart)
	require.NoError(t, err)
	assert.False(t, v.Valid)

	v, err = f.otps.Validate(testContext(t), f.app.ID, second.Code, models.OtpTypeStart)
	require.NoError(t, err)
	assert.True(t, v.Valid)

	pending, err := f.otps.ListPendingForContractor(testContext(t), f.contractorID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}

func TestReissueKeepsOtherType(t *testing.T) {
	f := newFixture(t, codes("111111", "222222"))

	start := f.issue(t, models.OtpTypeStart)
	f.issue(t, models.OtpTypeEnd)

	v, err := f.otps.Validate(testContext(t), f.app.ID, start.Code, models.OtpTypeStart)
	require.NoError(t, err)
	assert.True(t, v.Valid)
}

func TestListPendingSkipsExpired(t *testing.T) {
	f := newFixture(t, nil)
	f.issue(t, models.OtpTypeStart)

	pending, err := f.otps.ListPendingForContractor(testContext(t), f.contractorID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	f.clock.Advance(6 * time.Minute)
	pending, err = f.otps.ListPendingForContractor(testContext(t), f.contractorID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	other, err := f.otps.ListPendingForContractor(testContext(t), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestIssueRecordsAuditEvent(t *testing.T) {
	f := newFixture(t, nil)
	f.issue(t, models.OtpTypeStart)

	assert.Equal(t, []string{services.EventOtpIssued}, f.audit.Types())
}

func TestIssueSurvivesAuditFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.audit.Err = assert.AnError

	otp, err := f.otps.RequestForApplication(testContext(t), f.app.ID, f.workerID, models.OtpTypeStart)
	require.NoError(t, err)
	assert.Equal(t, "482913", otp.Code)
}

func TestIssueStoreFailureKeepsPriorCode(t *testing.T) {
	f := newFixture(t, codes("111111", "222222"))
	first := f.issue(t, models.OtpTypeStart)

	f.store.FailOn("CreateShiftOtp", assert.AnError)
	_, err := f.otps.RequestForApplication(testContext(t), f.app.ID, f.workerID, models.OtpTypeStart)
	assert.ErrorIs(t, err, services.ErrPersistence)
	assert.ErrorIs(t, err, assert.AnError)

	v, err := f.otps.Validate(testContext(t), f.app.ID, first.Code, models.OtpTypeStart)
	require.NoError(t, err)
	assert.True(t, v.Valid)
}

func TestIssueLocksApplication(t *testing.T) {
	f := newFixture(t, codes("111111", "222222"))
	first := f.issue(t, models.OtpTypeStart)

	f.store.FailOn("LockApplication", assert.AnError)
	_, err := f.otps.RequestForApplication(testContext(t), f.app.ID, f.workerID, models.OtpTypeStart)
	assert.ErrorIs(t, err, services.ErrPersistence)
	require.Len(t, f.store.ShiftOtps(), 1)

	f.store.FailOn("LockApplication", nil)
	v, err := f.otps.Validate(testContext(t), f.app.ID, first.Code, models.OtpTypeStart)
	require.NoError(t, err)
	assert.True(t, v.Valid, "prior code must survive a failed reissue")
}

func TestIssueUnknownApplication(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.otps.Issue(testContext(t), services.IssueParams{
		ApplicationID: uuid.New(),
		ContractorID:  f.contractorID,
		WorkerID:      f.workerID,
		JobID:         f.job.ID,
		Type:          models.OtpTypeStart,
	})
	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.Empty(t, f.store.ShiftOtps())
}
