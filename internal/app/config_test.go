package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://localhost/ledger")
	t.Setenv("COMPANY_NAME", "Odyssey Sp. z o.o.")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 5*time.Second, cfg.PGLockTimeout)
	require.False(t, cfg.AutoMigrate)
	require.Equal(t, 24*time.Hour, cfg.DocumentCacheTTL)
	require.Equal(t, 2*time.Minute, cfg.ReportCacheTTL)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
	require.False(t, cfg.StockAllowNegative)
	require.False(t, cfg.WarehouseCancelRestoresStock)
	require.Equal(t, "PLN", cfg.PayU().Currency)
	require.False(t, cfg.PayU().Enabled())
	require.Equal(t, "Odyssey Sp. z o.o.", cfg.Seller().Name)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecondKeyWithPayU(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://localhost/ledger")
	t.Setenv("PAYU_POS_ID", "300746")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "second key")

	t.Setenv("PAYU_SECOND_KEY", "b6ca15b0d1020e8094d9b5f8d163db54")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.PayU().Enabled())
}

func TestLoadConfigPolicies(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://localhost/ledger")
	t.Setenv("STOCK_ALLOW_NEGATIVE", "true")
	t.Setenv("WAREHOUSE_CANCEL_RESTORES_STOCK", "1")
	t.Setenv("AUTO_MIGRATE", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.AutoMigrate)
	require.True(t, cfg.StockAllowNegative)
	require.True(t, cfg.WarehouseCancelRestoresStock)

	t.Setenv("RATE_LIMIT_PER_MINUTE", "0")
	_, err = LoadConfig()
	require.Error(t, err)
}
