package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestMergeEnv(t *testing.T) {
	cfg := Default()
	err := cfg.mergeEnv(envOf(map[string]string{
		"PORT":                  "8080",
		"STORE_DRIVER":          "memory",
		"PAYMENT_POLL_ATTEMPTS": "4",
		"PAYMENT_POLL_INTERVAL": "250ms",
		"PENDING_ORDER_TTL":     "72h",
		"SNOWFLAKE_NODE":        "7",
	}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, 4, cfg.Payment.PollAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Payment.PollInterval)
	assert.Equal(t, 72*time.Hour, cfg.Payment.PendingTTL)
	assert.Equal(t, int64(7), cfg.SnowflakeNode)
	assert.Equal(t, 5, cfg.TxMaxAttempts)
	assert.NoError(t, cfg.validate())
}

func TestMergeEnv_BadNumber(t *testing.T) {
	cfg := Default()
	err := cfg.mergeEnv(envOf(map[string]string{"TX_MAX_ATTEMPTS": "lots"}))
	assert.Error(t, err)
}

func TestMergeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
store_driver: memory
payment:
  poll_attempts: 2
  poll_interval: 1s
mpesa:
  base_url: https://pay.example.test
`), 0o600))

	cfg := Default()
	require.NoError(t, cfg.mergeFile(path))

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 2, cfg.Payment.PollAttempts)
	assert.Equal(t, time.Second, cfg.Payment.PollInterval)
	assert.Equal(t, "https://pay.example.test", cfg.Mpesa.BaseURL)
	// untouched keys keep their defaults
	assert.Equal(t, 48*time.Hour, cfg.Payment.PendingTTL)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.StoreDriver = "mongo"
	assert.Error(t, cfg.validate())

	cfg = Default()
	cfg.TxMaxAttempts = 0
	assert.Error(t, cfg.validate())

	cfg = Default()
	cfg.Payment.SettlementMode = "webhook"
	assert.Error(t, cfg.validate())
}

func TestSettlementMode(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "poll", cfg.Payment.SettlementMode)
	assert.Equal(t, 30*time.Second, cfg.Payment.AwaitWindow())

	require.NoError(t, cfg.mergeEnv(envOf(map[string]string{"PAYMENT_SETTLEMENT_MODE": "callback"})))
	assert.Equal(t, "callback", cfg.Payment.SettlementMode)
	assert.NoError(t, cfg.validate())
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", Name: "shop", TimeZone: "UTC"}
	assert.Equal(t, "host=db user=u password=p dbname=shop port=5432 sslmode=disable TimeZone=UTC", d.DSN())

	d.URL = "postgres://x"
	assert.Equal(t, "postgres://x", d.DSN())
}
