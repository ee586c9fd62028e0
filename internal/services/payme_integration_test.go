//go:build integration

package services

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/shramik/internal/database"
	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/utils"
)

const checkoutAmount = 1500000

type paymeFixture struct {
	db      *gorm.DB
	svc     *PaymeService
	clock   time.Time
	app     models.Application
	payment models.Payment
}

func newPaymeFixture(t *testing.T) *paymeFixture {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := database.Connect(dsn, database.Options{Migrate: true, LogLevel: "silent"})
	require.NoError(t, err)

	contractor := models.Profile{Phone: "+99890" + uuid.NewString()[:7], Role: models.RoleContractor}
	worker := models.Profile{Phone: "+99891" + uuid.NewString()[:7], Role: models.RoleWorker}
	require.NoError(t, db.Create(&contractor).Error)
	require.NoError(t, db.Create(&worker).Error)

	job := models.Job{ContractorID: contractor.ID, Title: "Roof repair", Status: models.JobStatusOpen, Wage: 15000}
	require.NoError(t, db.Create(&job).Error)

	f := &paymeFixture{
		db:    db,
		svc:   NewPaymeService(db, nil),
		clock: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	f.svc.now = func() time.Time { return f.clock }

	f.app = models.Application{
		JobID:        job.ID,
		WorkerID:     worker.ID,
		ContractorID: contractor.ID,
		Status:       models.ApplicationStatusPending,
	}
	require.NoError(t, db.Create(&f.app).Error)

	f.payment = models.Payment{
		ApplicationID: f.app.ID,
		ContractorID:  contractor.ID,
		WorkerID:      worker.ID,
		Provider:      "payme",
		Amount:        checkoutAmount,
	}
	require.NoError(t, db.Create(&f.payment).Error)
	return f
}

func (f *paymeFixture) create(t *testing.T) string {
	t.Helper()
	txID := "payme-" + uuid.NewString()
	res, err := f.svc.CreateTransaction(testContext(t), CreateTransactionParams{
		Account: PaymeAccount{PaymentID: f.payment.ID.String()},
		Time:    f.clock.UnixMilli(),
		Amount:  checkoutAmount,
		ID:      txID,
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, TransactionStatePending, res.State)
	return txID
}

func (f *paymeFixture) reload(t *testing.T) (models.Payment, models.Application) {
	t.Helper()
	var p models.Payment
	require.NoError(t, f.db.First(&p, "id = ?", f.payment.ID).Error)
	var a models.Application
	require.NoError(t, f.db.First(&a, "id = ?", f.app.ID).Error)
	return p, a
}

func assertPaymeError(t *testing.T, err error, want PaymeErrorInfo) {
	t.Helper()
	var te *TransactionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, want.Name, te.Info.Name)
}

func TestPerformAcceptsApplication(t *testing.T) {
	f := newPaymeFixture(t)

	err := f.svc.CheckPerformTransaction(testContext(t), CheckPerformParams{
		Amount:  checkoutAmount + 100,
		Account: PaymeAccount{PaymentID: f.payment.ID.String()},
	}, 1)
	assertPaymeError(t, err, PaymeErrorInvalidAmount)

	txID := f.create(t)

	again, err := f.svc.CreateTransaction(testContext(t), CreateTransactionParams{
		Account: PaymeAccount{PaymentID: f.payment.ID.String()},
		Time:    f.clock.UnixMilli(),
		Amount:  checkoutAmount,
		ID:      txID,
	}, 2)
	require.NoError(t, err)
	assert.Equal(t, f.payment.ID.String(), again.Transaction)

	f.clock = f.clock.Add(time.Minute)
	res, err := f.svc.PerformTransaction(testContext(t), PerformTransactionParams{ID: txID}, 3)
	require.NoError(t, err)
	assert.Equal(t, TransactionStatePaid, res.State)
	assert.Equal(t, f.clock.UnixMilli(), res.PerformTime)

	payment, app := f.reload(t)
	assert.Equal(t, TransactionStatePaid, payment.Status)
	assert.Equal(t, models.ApplicationStatusAccepted, app.Status)

	repeat, err := f.svc.PerformTransaction(testContext(t), PerformTransactionParams{ID: txID}, 4)
	require.NoError(t, err)
	assert.Equal(t, res.PerformTime, repeat.PerformTime)

	err = f.svc.CheckPerformTransaction(testContext(t), CheckPerformParams{
		Amount:  checkoutAmount,
		Account: PaymeAccount{PaymentID: f.payment.ID.String()},
	}, 5)
	assertPaymeError(t, err, PaymeErrorAlreadyDone)
}

func TestPerformAfterTimeoutCancels(t *testing.T) {
	f := newPaymeFixture(t)
	txID := f.create(t)

	f.clock = f.clock.Add(PendingTimeout + time.Second)
	_, err := f.svc.PerformTransaction(testContext(t), PerformTransactionParams{ID: txID}, 1)
	assertPaymeError(t, err, PaymeErrorCantDoOperation)

	payment, app := f.reload(t)
	assert.Equal(t, TransactionStatePendingCanceled, payment.Status)
	require.NotNil(t, payment.Reason)
	assert.Equal(t, reasonTimeout, *payment.Reason)
	assert.Equal(t, models.ApplicationStatusPending, app.Status)
}

func TestCancelPaidPayment(t *testing.T) {
	f := newPaymeFixture(t)
	txID := f.create(t)

	_, err := f.svc.PerformTransaction(testContext(t), PerformTransactionParams{ID: txID}, 1)
	require.NoError(t, err)

	f.clock = f.clock.Add(time.Hour)
	res, err := f.svc.CancelTransaction(testContext(t), CancelTransactionParams{ID: txID, Reason: 5}, 2)
	require.NoError(t, err)
	assert.Equal(t, TransactionStatePaidCanceled, res.State)
	assert.Equal(t, f.clock.UnixMilli(), res.CancelTime)

	payment, _ := f.reload(t)
	assert.Equal(t, TransactionStatePaidCanceled, payment.Status)

	_, err = f.svc.PerformTransaction(testContext(t), PerformTransactionParams{ID: txID}, 3)
	assertPaymeError(t, err, PaymeErrorCantDoOperation)
}

func TestPerformWarnsWhenApplicationRejected(t *testing.T) {
	f := newPaymeFixture(t)
	hook := logrustest.NewLocal(utils.Logger)
	t.Cleanup(func() { utils.Logger.ReplaceHooks(make(logrus.LevelHooks)) })

	txID := f.create(t)
	require.NoError(t, f.db.Model(&models.Application{}).
		Where("id = ?", f.app.ID).
		Update("status", models.ApplicationStatusRejected).Error)

	res, err := f.svc.PerformTransaction(testContext(t), PerformTransactionParams{ID: txID}, 1)
	require.NoError(t, err)
	assert.Equal(t, TransactionStatePaid, res.State)

	_, app := f.reload(t)
	assert.Equal(t, models.ApplicationStatusRejected, app.Status)

	var warned *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["application_id"] == f.app.ID {
			warned = e
		}
	}
	require.NotNil(t, warned)
	assert.Equal(t, models.ApplicationStatusRejected, warned.Data["application_status"])
}
