package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "America/New_York", cfg.Market.Timezone)
	assert.Equal(t, "04:00", cfg.Market.PreMarketStart)
	assert.Equal(t, "09:30", cfg.Market.MarketOpen)
	assert.Equal(t, "16:00", cfg.Market.MarketClose)
	assert.Equal(t, "20:00", cfg.Market.PostMarketEnd)
	assert.Equal(t, 5, cfg.Market.SlotMinutes)

	assert.Equal(t, 2*time.Second, cfg.Scanner.ScanInterval)
	assert.Equal(t, 500, cfg.Scanner.MaxRows)
	assert.Equal(t, 20, cfg.Scanner.CategoryLimit)
	assert.Equal(t, 14, cfg.Scanner.ATRPeriod)
	assert.Equal(t, 3.0, cfg.Scanner.AnomalyZThreshold)
	assert.Equal(t, 1000, cfg.Scanner.SubscriptionCap)

	assert.Equal(t, 17, cfg.Maintain.Hour)
	assert.Equal(t, 0, cfg.Maintain.Minute)
	assert.Equal(t, 7, cfg.Maintain.RecoveryLookback)

	assert.Equal(t, 30*time.Second, cfg.Vendor.RequestTimeout)
	assert.Equal(t, ":8090", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
vendor:
  api_key: test-key
  rate_per_second: 50
bus:
  url: redis://localhost:6379/0
scanner:
  scan_interval: 5s
  category_limit: 100
maintenance:
  hour: 18
  minute: 30
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.Vendor.APIKey)
	assert.Equal(t, 50.0, cfg.Vendor.RatePerSecond)
	assert.Equal(t, 5*time.Second, cfg.Scanner.ScanInterval)
	assert.Equal(t, 100, cfg.Scanner.CategoryLimit)
	assert.Equal(t, 18, cfg.Maintain.Hour)
	assert.Equal(t, 30, cfg.Maintain.Minute)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Untouched fields still default.
	assert.Equal(t, 500, cfg.Scanner.MaxRows)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EQUITYRUN_VENDOR_API_KEY", "env-key")
	t.Setenv("EQUITYRUN_SCAN_INTERVAL", "250ms")
	t.Setenv("EQUITYRUN_HOLIDAY_MODE", "true")
	t.Setenv("EQUITYRUN_ANOMALY_Z_THRESHOLD", "2.5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Vendor.APIKey)
	assert.Equal(t, 250*time.Millisecond, cfg.Scanner.ScanInterval)
	assert.True(t, cfg.Maintain.HolidayMode)
	assert.Equal(t, 2.5, cfg.Scanner.AnomalyZThreshold)
}

func TestCategoryLimitClamped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scanner:\n  category_limit: 5000\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Scanner.CategoryLimit)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidateCore(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Error(t, cfg.ValidateCore())

	cfg.Vendor.APIKey = "k"
	assert.Error(t, cfg.ValidateCore())

	cfg.Bus.URL = "redis://localhost:6379"
	assert.NoError(t, cfg.ValidateCore())

	assert.Error(t, cfg.ValidateWarehouse())
	cfg.Warehouse.URL = "postgres://localhost/equityrun"
	assert.NoError(t, cfg.ValidateWarehouse())
}
