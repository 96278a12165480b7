package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WALLET_ID", "W1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, []string{".tip", ".ban", "/tip"}, cfg.TipTriggers)
	assert.True(t, cfg.MinTipAmount.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, int32(29), cfg.LedgerDecimals)
	assert.Equal(t, 15*time.Second, cfg.LedgerTimeout)
	assert.False(t, cfg.TelegramEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WALLET_ID", "W1")
	t.Setenv("DATABASE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/tipbot")
	t.Setenv("MIN_TIP_AMOUNT", "0.5")
	t.Setenv("TIP_TRIGGERS", ".TIP, !tip")
	t.Setenv("LEDGER_TIMEOUT", "3s")
	t.Setenv("REDIS_TLS", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.DatabaseDriver)
	assert.Equal(t, "0.5", cfg.MinTipAmount.String())
	assert.Equal(t, []string{".tip", "!tip"}, cfg.TipTriggers)
	assert.Equal(t, 3*time.Second, cfg.LedgerTimeout)
	assert.True(t, cfg.RedisTLS)
}

func TestLoadCollectsErrors(t *testing.T) {
	t.Setenv("WALLET_ID", "")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MIN_TIP_AMOUNT", "abc")
	t.Setenv("LEDGER_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "WALLET_ID is required")
	assert.Contains(t, msg, "DATABASE_URL is required")
	assert.Contains(t, msg, "MIN_TIP_AMOUNT")
	assert.Contains(t, msg, "LEDGER_TIMEOUT")
}

func TestTelegramRequiresWebhookSecret(t *testing.T) {
	t.Setenv("WALLET_ID", "W1")
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_WEBHOOK_SECRET", "")

	_, err := Load()
	require.ErrorContains(t, err, "TELEGRAM_WEBHOOK_SECRET")
}
