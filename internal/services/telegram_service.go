package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/shramik/internal/utils"
)

// TelegramService sends admin notifications through the Telegram Bot API.
type TelegramService struct {
	botToken    string
	adminChatID string
	baseURL     string
	client      *http.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		baseURL:     "https://api.telegram.org",
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends an HTML message to chatID.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		utils.Logger.Debug("telegram bot token not configured, skipping message")
		return nil
	}

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// FormatPrice formats an amount with thousand separators.
func FormatPrice(amount float64, currency string) string {
	if currency == "" {
		currency = "UZS"
	}
	str := fmt.Sprintf("%d", int64(amount))

	var result strings.Builder
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}
	return result.String() + " " + currency
}

// PaymentSuccessNotification describes a captured escrow payment.
type PaymentSuccessNotification struct {
	PaymentID     string
	ApplicationID string
	Amount        float64
	Currency      string
}

// NotifyPaymentSuccess tells the admin chat a payment was captured.
func (s *TelegramService) NotifyPaymentSuccess(ctx context.Context, p PaymentSuccessNotification) error {
	message := fmt.Sprintf(`<b>✅ PAYMENT CAPTURED</b>
<b>Payment:</b> %s
<b>Application:</b> %s
<b>Amount:</b> %s
<b>Method:</b> Payme`,
		p.PaymentID,
		p.ApplicationID,
		FormatPrice(p.Amount, p.Currency),
	)
	return s.SendToAdmin(ctx, message)
}

// KycNotification describes a submitted identity document.
type KycNotification struct {
	ProfileID    string
	FullName     string
	Phone        string
	DocumentType string
}

// NotifyKycSubmitted asks the admins to review a KYC document.
func (s *TelegramService) NotifyKycSubmitted(ctx context.Context, k KycNotification) error {
	message := fmt.Sprintf(`<b>🪪 KYC SUBMITTED</b>
<b>Profile:</b> %s
<b>Name:</b> %s
<b>Phone:</b> %s
<b>Document:</b> %s`,
		k.ProfileID,
		k.FullName,
		k.Phone,
		k.DocumentType,
	)
	return s.SendToAdmin(ctx, message)
}
