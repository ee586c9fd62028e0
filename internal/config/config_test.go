package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenExpires)
	assert.False(t, cfg.RatingRejectDuplicates)
	assert.False(t, cfg.EventsEnabled())
	assert.Equal(t, "shift-events", cfg.KafkaTopic)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("JWT_TTL_HOURS", "2")
	t.Setenv("RATING_REJECT_DUPLICATES", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_FROM_PHONE", "+15550000000")

	cfg := Load()

	assert.Equal(t, "9000", cfg.AppPort)
	assert.Equal(t, 2*time.Hour, cfg.TokenExpires)
	assert.True(t, cfg.RatingRejectDuplicates)
	require.Len(t, cfg.KafkaBrokers, 2)
	assert.Equal(t, "kafka-2:9092", cfg.KafkaBrokers[1])
	assert.True(t, cfg.EventsEnabled())
	assert.True(t, cfg.SMSEnabled())
}

func TestGetEnvBoolIgnoresGarbage(t *testing.T) {
	t.Setenv("SOME_FLAG", "maybe")
	assert.True(t, getEnvBool("SOME_FLAG", true))
	assert.False(t, getEnvBool("MISSING_FLAG_FOR_TEST", false))
}
