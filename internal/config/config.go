package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. Values come from a YAML
// file with EQUITYRUN_* environment overrides applied on top.
type Config struct {
	Vendor    VendorConfig    `yaml:"vendor"`
	Bus       BusConfig       `yaml:"bus"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Market    MarketConfig    `yaml:"market"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Maintain  MaintainConfig  `yaml:"maintenance"`
	HTTP      HTTPConfig      `yaml:"http"`
	LogLevel  string          `yaml:"log_level"`
}

// VendorConfig covers the market-data vendor HTTP and WebSocket APIs.
type VendorConfig struct {
	BaseURL        string        `yaml:"base_url"`
	WebSocketURL   string        `yaml:"websocket_url"`
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
	Burst          int           `yaml:"burst"`
}

// BusConfig is the Redis connection used for keys, streams and pub/sub.
type BusConfig struct {
	URL string `yaml:"url"`
	DB  int    `yaml:"db"`
}

// WarehouseConfig is the Postgres/Timescale connection.
type WarehouseConfig struct {
	URL          string        `yaml:"url"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// MarketConfig describes the exchange calendar and slotting.
type MarketConfig struct {
	Timezone       string `yaml:"timezone"`
	PreMarketStart string `yaml:"pre_market_start"`
	MarketOpen     string `yaml:"market_open"`
	MarketClose    string `yaml:"market_close"`
	PostMarketEnd  string `yaml:"post_market_end"`
	SlotMinutes    int    `yaml:"slot_minutes"`
}

// ScannerConfig tunes the hot path.
type ScannerConfig struct {
	ScanInterval      time.Duration `yaml:"scan_interval"`
	FilterReload      time.Duration `yaml:"filter_reload"`
	MaxRows           int           `yaml:"max_rows"`
	CategoryLimit     int           `yaml:"category_limit"`
	RVOLLookbackDays  int           `yaml:"rvol_lookback_days"`
	ATRPeriod         int           `yaml:"atr_period"`
	AnomalyZThreshold float64       `yaml:"anomaly_z_threshold"`
	MetadataCacheSize int           `yaml:"metadata_cache_size"`
	MetadataCacheTTL  time.Duration `yaml:"metadata_cache_ttl"`
	SubscriptionCap   int           `yaml:"subscription_cap"`
}

// MaintainConfig tunes the nightly orchestrator.
type MaintainConfig struct {
	Hour             int    `yaml:"hour"`
	Minute           int    `yaml:"minute"`
	HolidayMode      bool   `yaml:"holiday_mode"`
	MinSlotRows      int    `yaml:"min_slot_rows"`
	RecoveryLookback int    `yaml:"recovery_lookback_days"`
	ParquetDir       string `yaml:"parquet_dir"`
	ExportDir        string `yaml:"export_dir"`
}

// HTTPConfig is the health/metrics listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads the YAML file at path (optional), applies environment
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setStr(&c.Vendor.BaseURL, "EQUITYRUN_VENDOR_BASE_URL")
	setStr(&c.Vendor.WebSocketURL, "EQUITYRUN_VENDOR_WS_URL")
	setStr(&c.Vendor.APIKey, "EQUITYRUN_VENDOR_API_KEY")
	setStr(&c.Bus.URL, "EQUITYRUN_BUS_URL")
	setStr(&c.Warehouse.URL, "EQUITYRUN_WAREHOUSE_URL")
	setStr(&c.Market.Timezone, "EQUITYRUN_TIMEZONE")
	setStr(&c.LogLevel, "EQUITYRUN_LOG_LEVEL")
	setInt(&c.Market.SlotMinutes, "EQUITYRUN_SLOT_MINUTES")
	setInt(&c.Scanner.RVOLLookbackDays, "EQUITYRUN_RVOL_LOOKBACK_DAYS")
	setInt(&c.Scanner.ATRPeriod, "EQUITYRUN_ATR_PERIOD")
	setInt(&c.Maintain.Hour, "EQUITYRUN_MAINTENANCE_HOUR")
	setInt(&c.Maintain.Minute, "EQUITYRUN_MAINTENANCE_MINUTE")
	setBool(&c.Maintain.HolidayMode, "EQUITYRUN_HOLIDAY_MODE")
	setDur(&c.Scanner.ScanInterval, "EQUITYRUN_SCAN_INTERVAL")
	setFloat(&c.Scanner.AnomalyZThreshold, "EQUITYRUN_ANOMALY_Z_THRESHOLD")
}

func (c *Config) applyDefaults() {
	if c.Vendor.RequestTimeout == 0 {
		c.Vendor.RequestTimeout = 30 * time.Second
	}
	if c.Vendor.RatePerSecond == 0 {
		c.Vendor.RatePerSecond = 20
	}
	if c.Vendor.Burst == 0 {
		c.Vendor.Burst = 10
	}
	if c.Warehouse.QueryTimeout == 0 {
		c.Warehouse.QueryTimeout = 30 * time.Second
	}
	if c.Market.Timezone == "" {
		c.Market.Timezone = "America/New_York"
	}
	if c.Market.PreMarketStart == "" {
		c.Market.PreMarketStart = "04:00"
	}
	if c.Market.MarketOpen == "" {
		c.Market.MarketOpen = "09:30"
	}
	if c.Market.MarketClose == "" {
		c.Market.MarketClose = "16:00"
	}
	if c.Market.PostMarketEnd == "" {
		c.Market.PostMarketEnd = "20:00"
	}
	if c.Market.SlotMinutes == 0 {
		c.Market.SlotMinutes = 5
	}
	if c.Scanner.ScanInterval == 0 {
		c.Scanner.ScanInterval = 2 * time.Second
	}
	if c.Scanner.FilterReload == 0 {
		c.Scanner.FilterReload = time.Minute
	}
	if c.Scanner.MaxRows == 0 {
		c.Scanner.MaxRows = 500
	}
	if c.Scanner.CategoryLimit == 0 {
		c.Scanner.CategoryLimit = 20
	}
	if c.Scanner.CategoryLimit > 1000 {
		c.Scanner.CategoryLimit = 1000
	}
	if c.Scanner.RVOLLookbackDays == 0 {
		c.Scanner.RVOLLookbackDays = 5
	}
	if c.Scanner.ATRPeriod == 0 {
		c.Scanner.ATRPeriod = 14
	}
	if c.Scanner.AnomalyZThreshold == 0 {
		c.Scanner.AnomalyZThreshold = 3.0
	}
	if c.Scanner.MetadataCacheSize == 0 {
		c.Scanner.MetadataCacheSize = 200_000
	}
	if c.Scanner.MetadataCacheTTL == 0 {
		c.Scanner.MetadataCacheTTL = 30 * time.Minute
	}
	if c.Scanner.SubscriptionCap == 0 {
		c.Scanner.SubscriptionCap = 1000
	}
	if c.Maintain.Hour == 0 && c.Maintain.Minute == 0 {
		c.Maintain.Hour = 17
	}
	if c.Maintain.MinSlotRows == 0 {
		c.Maintain.MinSlotRows = 400_000
	}
	if c.Maintain.RecoveryLookback == 0 {
		c.Maintain.RecoveryLookback = 7
	}
	if c.Maintain.ParquetDir == "" {
		c.Maintain.ParquetDir = "/data/polygon/day_aggs"
	}
	if c.Maintain.ExportDir == "" {
		c.Maintain.ExportDir = "/data/screener"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8090"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// ValidateCore checks the settings every long-running command needs.
func (c *Config) ValidateCore() error {
	if c.Vendor.APIKey == "" {
		return fmt.Errorf("vendor API key is required")
	}
	if c.Bus.URL == "" {
		return fmt.Errorf("bus URL is required")
	}
	return nil
}

// ValidateWarehouse checks settings for commands that touch Postgres.
func (c *Config) ValidateWarehouse() error {
	if c.Warehouse.URL == "" {
		return fmt.Errorf("warehouse URL is required")
	}
	return nil
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDur(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
