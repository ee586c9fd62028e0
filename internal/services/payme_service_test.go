package services

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shramik/internal/models"
)

func TestCheckoutURL(t *testing.T) {
	payment := &models.Payment{Amount: 15000000}
	payment.ID = uuid.MustParse("6f1c2a8e-3b4d-4c5e-9f60-718293a4b5c6")

	url := CheckoutURL("https://checkout.payme.uz/", "merchant-1", payment, "https://shramik.uz/done")
	require.True(t, strings.HasPrefix(url, "https://checkout.payme.uz/"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "https://checkout.payme.uz/"))
	require.NoError(t, err)
	assert.Equal(t,
		"m=merchant-1;ac.payment_id=6f1c2a8e-3b4d-4c5e-9f60-718293a4b5c6;a=15000000;c=https://shramik.uz/done",
		string(raw))

	url = CheckoutURL("https://checkout.payme.uz/", "merchant-1", payment, "")
	raw, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "https://checkout.payme.uz/"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), ";c=")
}

func TestPendingTimeout(t *testing.T) {
	s := &PaymeService{}
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC).UnixMilli()

	assert.False(t, s.timedOut(created, created+PendingTimeout.Milliseconds()-1))
	assert.True(t, s.timedOut(created, created+PendingTimeout.Milliseconds()))
}

func TestIntAbs(t *testing.T) {
	assert.Equal(t, 5, intAbs(-5))
	assert.Equal(t, 5, intAbs(5))
	assert.Equal(t, 0, intAbs(0))
}
