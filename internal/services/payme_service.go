package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/utils"
)

// Payme transaction states.
const (
	TransactionStatePaid            = 2
	TransactionStatePending         = 1
	TransactionStatePendingCanceled = -1
	TransactionStatePaidCanceled    = -2
)

// PendingTimeout is how long Payme may keep a transaction pending.
const PendingTimeout = 12 * time.Minute

// reasonTimeout is Payme's cancel reason for an expired transaction.
const reasonTimeout = 4

// PaymeErrorInfo describes a Payme-compatible error.
type PaymeErrorInfo struct {
	Name    string
	Code    int
	Message map[string]string
}

var (
	PaymeErrorInvalidAmount = PaymeErrorInfo{
		Name: "InvalidAmount",
		Code: -31001,
		Message: map[string]string{
			"uz": "Noto'g'ri summa",
			"ru": "Недопустимая сумма",
			"en": "Invalid amount",
		},
	}
	PaymeErrorCantDoOperation = PaymeErrorInfo{
		Name: "CantDoOperation",
		Code: -31008,
		Message: map[string]string{
			"uz": "Biz operatsiyani bajara olmaymiz",
			"ru": "Мы не можем сделать операцию",
			"en": "We can't do operation",
		},
	}
	PaymeErrorTransactionNotFound = PaymeErrorInfo{
		Name: "TransactionNotFound",
		Code: -31003,
		Message: map[string]string{
			"uz": "Tranzaktsiya topilmadi",
			"ru": "Транзакция не найдена",
			"en": "Transaction not found",
		},
	}
	PaymeErrorPaymentNotFound = PaymeErrorInfo{
		Name: "PaymentNotFound",
		Code: -31050,
		Message: map[string]string{
			"uz": "To'lov topilmadi",
			"ru": "Платёж не найден",
			"en": "Payment not found",
		},
	}
	PaymeErrorAlreadyDone = PaymeErrorInfo{
		Name: "AlreadyDone",
		Code: -31060,
		Message: map[string]string{
			"uz": "Ish uchun to'lov qilingan",
			"ru": "Работа уже оплачена",
			"en": "The job is already paid for",
		},
	}
	PaymeErrorPending = PaymeErrorInfo{
		Name: "Pending",
		Code: -31050,
		Message: map[string]string{
			"uz": "To'lov kutilayapti",
			"ru": "Ожидается оплата",
			"en": "Payment is pending",
		},
	}
	PaymeErrorInvalidAuthorization = PaymeErrorInfo{
		Name: "InvalidAuthorization",
		Code: -32504,
		Message: map[string]string{
			"uz": "Avtorizatsiya yaroqsiz",
			"ru": "Авторизация недействительна",
			"en": "Authorization invalid",
		},
	}
)

// TransactionError is a structured Payme transaction error.
type TransactionError struct {
	Info PaymeErrorInfo
	ID   any
	Data any
}

func (e *TransactionError) Error() string {
	return e.Info.Name
}

// PaymentNotifier is told about captured payments.
type PaymentNotifier interface {
	NotifyPaymentSuccess(ctx context.Context, n PaymentSuccessNotification) error
}

// PaymeService implements the Payme merchant API over the payments table.
// A payment is the contractor's escrowed wage for one application.
type PaymeService struct {
	db       *gorm.DB
	notifier PaymentNotifier
	now      func() time.Time
}

func NewPaymeService(db *gorm.DB, notifier PaymentNotifier) *PaymeService {
	return &PaymeService{db: db, notifier: notifier, now: time.Now}
}

type PaymeAccount struct {
	PaymentID string `json:"payment_id"`
}

type CheckPerformParams struct {
	Amount  int64        `json:"amount"`
	Account PaymeAccount `json:"account"`
}

type CheckTransactionParams struct {
	ID any `json:"id"`
}

type CreateTransactionParams struct {
	Account PaymeAccount `json:"account"`
	Time    int64        `json:"time"`
	Amount  int64        `json:"amount"`
	ID      string       `json:"id"`
}

type PerformTransactionParams struct {
	ID string `json:"id"`
}

type CancelTransactionParams struct {
	ID     string `json:"id"`
	Reason int    `json:"reason"`
}

type StatementParams struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type CheckTransactionResult struct {
	CreateTime  int64  `json:"create_time"`
	PerformTime int64  `json:"perform_time"`
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
	Reason      *int   `json:"reason"`
}

type PerformTransactionResult struct {
	PerformTime int64  `json:"perform_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type CancelTransactionResult struct {
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type StatementTransaction struct {
	ID          string       `json:"id"`
	Time        int64        `json:"time"`
	Amount      int64        `json:"amount"`
	Account     PaymeAccount `json:"account"`
	CreateTime  int64        `json:"create_time"`
	PerformTime int64        `json:"perform_time"`
	CancelTime  int64        `json:"cancel_time"`
	Transaction string       `json:"transaction"`
	State       int          `json:"state"`
	Reason      *int         `json:"reason"`
}

// CheckPerformTransaction checks the payment exists, is still payable and
// the amount (tiyin) matches.
func (s *PaymeService) CheckPerformTransaction(ctx context.Context, params CheckPerformParams, id any) error {
	payment, err := s.findPayment(ctx, params.Account.PaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &TransactionError{Info: PaymeErrorPaymentNotFound, ID: id, Data: "payment_id"}
		}
		return err
	}
	if payment.Amount != params.Amount {
		return &TransactionError{Info: PaymeErrorInvalidAmount, ID: id}
	}
	if payment.Status == TransactionStatePaid {
		return &TransactionError{Info: PaymeErrorAlreadyDone, ID: id}
	}
	if payment.Status < 0 {
		return &TransactionError{Info: PaymeErrorCantDoOperation, ID: id}
	}
	return nil
}

// CheckTransaction returns the state of a Payme transaction.
func (s *PaymeService) CheckTransaction(ctx context.Context, params CheckTransactionParams, id any) (*CheckTransactionResult, error) {
	var lookupID string
	switch v := params.ID.(type) {
	case string:
		lookupID = v
	case float64:
		lookupID = strconv.FormatInt(int64(v), 10)
	default:
		return nil, &TransactionError{Info: PaymeErrorTransactionNotFound, ID: id}
	}

	payment, err := s.findByTransaction(ctx, lookupID, id)
	if err != nil {
		return nil, err
	}

	var reason *int
	if payment.Reason != nil && *payment.Reason != 0 {
		reason = payment.Reason
	}

	return &CheckTransactionResult{
		CreateTime:  payment.CreateTime,
		PerformTime: payment.PerformTime,
		CancelTime:  payment.CancelTime,
		Transaction: payment.ID.String(),
		State:       payment.Status,
		Reason:      reason,
	}, nil
}

// CreateTransaction binds a Payme transaction to the payment, or returns the
// existing binding when Payme retries.
func (s *PaymeService) CreateTransaction(ctx context.Context, params CreateTransactionParams, id any) (*CheckTransactionResult, error) {
	if err := s.CheckPerformTransaction(ctx, CheckPerformParams{
		Amount:  params.Amount,
		Account: params.Account,
	}, id); err != nil {
		return nil, err
	}

	nowMs := s.now().UnixMilli()

	var existing models.Payment
	err := s.db.WithContext(ctx).Where("transaction_id = ?", params.ID).First(&existing).Error
	if err == nil {
		if existing.Status != TransactionStatePending {
			return nil, &TransactionError{Info: PaymeErrorCantDoOperation, ID: id}
		}
		if s.timedOut(existing.CreateTime, nowMs) {
			if err := s.cancelForTimeout(ctx, existing.ID, nowMs); err != nil {
				return nil, err
			}
			return nil, &TransactionError{Info: PaymeErrorCantDoOperation, ID: id}
		}
		return &CheckTransactionResult{
			CreateTime:  existing.CreateTime,
			Transaction: existing.ID.String(),
			State:       TransactionStatePending,
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	payment, err := s.findPayment(ctx, params.Account.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == TransactionStatePending && payment.TransactionID != "" {
		return nil, &TransactionError{Info: PaymeErrorPending, ID: id}
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", payment.ID).
		Updates(map[string]any{
			"transaction_id": params.ID,
			"status":         TransactionStatePending,
			"create_time":    params.Time,
		}).Error; err != nil {
		return nil, err
	}

	return &CheckTransactionResult{
		Transaction: payment.ID.String(),
		State:       TransactionStatePending,
		CreateTime:  params.Time,
	}, nil
}

// PerformTransaction captures the payment. The payment becomes paid and its
// application accepted in the same database transaction.
func (s *PaymeService) PerformTransaction(ctx context.Context, params PerformTransactionParams, id any) (*PerformTransactionResult, error) {
	nowMs := s.now().UnixMilli()

	payment, err := s.findByTransaction(ctx, params.ID, id)
	if err != nil {
		return nil, err
	}

	if payment.Status != TransactionStatePending {
		if payment.Status != TransactionStatePaid {
			return nil, &TransactionError{Info: PaymeErrorCantDoOperation, ID: id}
		}
		return &PerformTransactionResult{
			PerformTime: payment.PerformTime,
			Transaction: payment.ID.String(),
			State:       TransactionStatePaid,
		}, nil
	}

	if s.timedOut(payment.CreateTime, nowMs) {
		if err := s.cancelForTimeout(ctx, payment.ID, nowMs); err != nil {
			return nil, err
		}
		return nil, &TransactionError{Info: PaymeErrorCantDoOperation, ID: id}
	}

	// unaccepted holds the application's status when capture could not
	// accept it.
	var unaccepted string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.Payment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", payment.ID).
			First(&locked).Error; err != nil {
			return err
		}
		if locked.Status != TransactionStatePending {
			return &TransactionError{Info: PaymeErrorCantDoOperation, ID: id}
		}

		if err := tx.Model(&models.Payment{}).
			Where("id = ?", payment.ID).
			Updates(map[string]any{
				"status":       TransactionStatePaid,
				"perform_time": nowMs,
			}).Error; err != nil {
			return err
		}

		res := tx.Model(&models.Application{}).
			Where("id = ? AND status = ?", payment.ApplicationID, models.ApplicationStatusPending).
			Update("status", models.ApplicationStatusAccepted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		var app models.Application
		err := tx.Select("id", "status").Where("id = ?", payment.ApplicationID).First(&app).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			unaccepted = "missing"
		case err != nil:
			return err
		case app.Status != models.ApplicationStatusAccepted:
			unaccepted = app.Status
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if unaccepted != "" {
		utils.Logger.WithFields(map[string]any{
			"payment_id":         payment.ID,
			"application_id":     payment.ApplicationID,
			"application_status": unaccepted,
		}).Warn("payme payment captured but application was not accepted")
	}

	utils.Logger.WithFields(map[string]any{
		"payment_id":     payment.ID,
		"application_id": payment.ApplicationID,
	}).Info("payme payment captured")
	s.notifyPaid(payment)

	return &PerformTransactionResult{
		PerformTime: nowMs,
		Transaction: payment.ID.String(),
		State:       TransactionStatePaid,
	}, nil
}

// CancelTransaction cancels a pending or paid transaction.
func (s *PaymeService) CancelTransaction(ctx context.Context, params CancelTransactionParams, id any) (*CancelTransactionResult, error) {
	payment, err := s.findByTransaction(ctx, params.ID, id)
	if err != nil {
		return nil, err
	}

	nowMs := s.now().UnixMilli()

	if payment.Status > 0 {
		newState := -1 * intAbs(payment.Status)
		if err := s.db.WithContext(ctx).
			Model(&models.Payment{}).
			Where("id = ?", payment.ID).
			Updates(map[string]any{
				"status":      newState,
				"reason":      params.Reason,
				"cancel_time": nowMs,
			}).Error; err != nil {
			return nil, err
		}
		payment.Status = newState
		payment.CancelTime = nowMs
	}

	cancelTime := payment.CancelTime
	if cancelTime == 0 {
		cancelTime = nowMs
	}

	return &CancelTransactionResult{
		CancelTime:  cancelTime,
		Transaction: payment.ID.String(),
		State:       -1 * intAbs(payment.Status),
	}, nil
}

// GetStatement returns Payme transactions created in [from, to].
func (s *PaymeService) GetStatement(ctx context.Context, params StatementParams) ([]StatementTransaction, error) {
	var payments []models.Payment
	if err := s.db.WithContext(ctx).
		Where("create_time >= ? AND create_time <= ? AND provider = ? AND transaction_id <> ''", params.From, params.To, "payme").
		Order("create_time ASC").
		Find(&payments).Error; err != nil {
		return nil, err
	}

	result := make([]StatementTransaction, 0, len(payments))
	for _, p := range payments {
		result = append(result, StatementTransaction{
			ID:          p.TransactionID,
			Time:        p.CreateTime,
			Amount:      p.Amount,
			Account:     PaymeAccount{PaymentID: p.ID.String()},
			CreateTime:  p.CreateTime,
			PerformTime: p.PerformTime,
			CancelTime:  p.CancelTime,
			Transaction: p.ID.String(),
			State:       p.Status,
			Reason:      p.Reason,
		})
	}
	return result, nil
}

// CheckoutURL builds the Payme hosted checkout link for a payment.
func CheckoutURL(base, merchantID string, payment *models.Payment, returnURL string) string {
	params := fmt.Sprintf("m=%s;ac.payment_id=%s;a=%d", merchantID, payment.ID, payment.Amount)
	if returnURL != "" {
		params += ";c=" + returnURL
	}
	return base + base64.StdEncoding.EncodeToString([]byte(params))
}

func (s *PaymeService) timedOut(createTime, nowMs int64) bool {
	return nowMs-createTime >= PendingTimeout.Milliseconds()
}

func (s *PaymeService) cancelForTimeout(ctx context.Context, paymentID uuid.UUID, nowMs int64) error {
	return s.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Updates(map[string]any{
			"status":      TransactionStatePendingCanceled,
			"reason":      reasonTimeout,
			"cancel_time": nowMs,
		}).Error
}

func (s *PaymeService) findPayment(ctx context.Context, ref string) (*models.Payment, error) {
	paymentID, err := uuid.Parse(ref)
	if err != nil {
		return nil, gorm.ErrRecordNotFound
	}
	var payment models.Payment
	if err := s.db.WithContext(ctx).
		Where("id = ? AND provider = ?", paymentID, "payme").
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *PaymeService) findByTransaction(ctx context.Context, transactionID string, id any) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &TransactionError{Info: PaymeErrorTransactionNotFound, ID: id}
		}
		return nil, err
	}
	return &payment, nil
}

func (s *PaymeService) notifyPaid(payment *models.Payment) {
	if s.notifier == nil {
		return
	}
	n := PaymentSuccessNotification{
		PaymentID:     payment.ID.String(),
		ApplicationID: payment.ApplicationID.String(),
		Amount:        float64(payment.Amount) / 100,
		Currency:      "UZS",
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.NotifyPaymentSuccess(ctx, n); err != nil {
			utils.Logger.WithError(err).Warn("payment success notification failed")
		}
	}()
}

func intAbs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
