package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "DATABASE_URL", "KAFKA_BROKERS", "PURCHASE_CANCEL_TTL_MAX", "LOG_FORMAT", "PAYMENT_SESSION_TTL"} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, defaultPort, cfg.HTTP.Port)
	assert.Equal(t, defaultCancelTTLMax, cfg.Purchase.CancelTTLMax)
	assert.Equal(t, defaultKafkaTopic, cfg.Kafka.Topic)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Equal(t, defaultSessionTTL, cfg.Payment.SessionTTL)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PURCHASE_CANCEL_TTL_MAX", "2h")
	t.Setenv("ISSUANCE_NON_CANCELLABLE_SETS", "season-pass")
	t.Setenv("LOG_INCLUDE_CALLER", "true")
	t.Setenv("PAYMENT_SANDBOX_WEBVIEW_URL", "https://pay.example/checkout/")
	t.Setenv("PAYMENT_SESSION_TTL", "5m")
	t.Setenv("WALLETS_FILE", " wallets.json ")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Hour, cfg.Purchase.CancelTTLMax)
	assert.Equal(t, []string{"season-pass"}, cfg.Issuance.NonCancellableSets)
	assert.True(t, cfg.Logging.IncludeCaller)
	assert.Equal(t, "https://pay.example/checkout", cfg.Payment.SandboxWebviewURL)
	assert.Equal(t, 5*time.Minute, cfg.Payment.SessionTTL)
	assert.Equal(t, "wallets.json", cfg.Wallets.File)
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Setenv("SERVER_PORT", "70000")
	_, err := FromEnv()
	assert.Error(t, err)

	t.Setenv("SERVER_PORT", "")
	t.Setenv("PURSE_RESERVATION_TTL", "soon")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "PURSE_RESERVATION_TTL")
}
