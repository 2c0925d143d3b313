package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// VenueConfig identifies one monitored venue and its instrument.
type VenueConfig struct {
	Market  string `yaml:"market"`
	Symbol  string `yaml:"symbol"`
	BaseURL string `yaml:"base_url"`
}

// Thresholds holds the rule multipliers and the insufficient-liquidity
// gap percentage. The gap percentage has no default: it must be present
// in the config file.
type Thresholds struct {
	DepthDropMult        float64  `yaml:"depth_drop_mult"`
	SpreadMult           float64  `yaml:"spread_mult"`
	SlipMult             float64  `yaml:"slip_mult"`
	VolumeSpikeMult      float64  `yaml:"volume_spike_mult"`
	InsufficientLiqGapPct *float64 `yaml:"insufficient_liq_gap_pct"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"` // optional counter/dedupe backend
}

// ServerConfig configures the read-only dashboard API.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Config is the full monitor configuration, resolved once per process
// (single-shot) or once per cycle is not required: the core treats it as
// read-only input.
type Config struct {
	TokenSymbol          string                 `yaml:"token_symbol"`
	Timezone             string                 `yaml:"timezone"`
	ScheduleSeconds      int                    `yaml:"schedule_seconds"`
	BaselineDays         int                    `yaml:"baseline_days"`
	VolumeWindowDays     int                    `yaml:"volume_window_days"`
	OrderBookLevels      int                    `yaml:"orderbook_levels"`
	Notional1            float64                `yaml:"notional_1"`
	Notional2            float64                `yaml:"notional_2"`
	KlineCount           int                    `yaml:"kline_count"`
	Venues               map[string]VenueConfig `yaml:"venues"`
	Thresholds           Thresholds             `yaml:"thresholds"`
	DedupeWindowSeconds  int                    `yaml:"dedupe_window_seconds"`
	ConsecutiveThreshold int                    `yaml:"consecutive_threshold"`
	MinBaselineSamples   int                    `yaml:"min_baseline_samples"`
	VenueTimeoutSeconds  int                    `yaml:"venue_timeout_seconds"`
	CollectWorkers       int                    `yaml:"collect_workers"`
	OutputDir            string                 `yaml:"output_dir"`
	Storage              StorageConfig          `yaml:"storage"`
	Server               ServerConfig           `yaml:"server"`
}

var defaultBaseURLs = map[string]string{
	"binance": "https://fapi.binance.com",
	"okx":     "https://www.okx.com",
	"bybit":   "https://api.bytick.com",
}

var validMarkets = map[string]bool{
	"usdm_perp": true,
	"swap":      true,
	"linear":    true,
}

// Load reads and validates a YAML config file, applying defaults for
// optional fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{
		TokenSymbol:          "MON",
		Timezone:             "UTC",
		ScheduleSeconds:      300,
		BaselineDays:         14,
		VolumeWindowDays:     7,
		OrderBookLevels:      100,
		Notional1:            10000,
		Notional2:            100000,
		KlineCount:           200,
		DedupeWindowSeconds:  3600,
		ConsecutiveThreshold: 3,
		MinBaselineSamples:   20,
		VenueTimeoutSeconds:  60,
		CollectWorkers:       4,
		OutputDir:            "data/output",
		Thresholds: Thresholds{
			DepthDropMult:   0.7,
			SpreadMult:      2.0,
			SlipMult:        2.0,
			VolumeSpikeMult: 2.0,
		},
		Server: ServerConfig{Host: "127.0.0.1", Port: 8080},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	for name, vc := range cfg.Venues {
		if vc.BaseURL == "" {
			vc.BaseURL = defaultBaseURLs[name]
			cfg.Venues[name] = vc
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.Venues) == 0 {
		return fmt.Errorf("config: at least one venue is required")
	}
	for name, vc := range c.Venues {
		if !validMarkets[vc.Market] {
			return fmt.Errorf("config: venue %q has invalid market %q", name, vc.Market)
		}
		if vc.Symbol == "" {
			return fmt.Errorf("config: venue %q has empty symbol", name)
		}
	}
	if c.ScheduleSeconds < 10 {
		return fmt.Errorf("config: schedule_seconds must be at least 10")
	}
	if c.BaselineDays < 1 {
		return fmt.Errorf("config: baseline_days must be at least 1")
	}
	if c.OrderBookLevels < 1 {
		return fmt.Errorf("config: orderbook_levels must be at least 1")
	}
	if c.Notional1 <= 0 || c.Notional2 <= 0 {
		return fmt.Errorf("config: notional sizes must be positive")
	}
	if c.ConsecutiveThreshold < 1 {
		return fmt.Errorf("config: consecutive_threshold must be at least 1")
	}
	if c.Thresholds.InsufficientLiqGapPct == nil {
		return fmt.Errorf("config: thresholds.insufficient_liq_gap_pct is required")
	}
	if *c.Thresholds.InsufficientLiqGapPct < 0 || *c.Thresholds.InsufficientLiqGapPct > 100 {
		return fmt.Errorf("config: thresholds.insufficient_liq_gap_pct must be within [0,100]")
	}
	return nil
}

// VenueTimeout returns the per-venue collection deadline.
func (c *Config) VenueTimeout() time.Duration {
	return time.Duration(c.VenueTimeoutSeconds) * time.Second
}

// CycleInterval returns the pause between daemon cycles.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.ScheduleSeconds) * time.Second
}

// DedupeWindow returns the alert suppression window.
func (c *Config) DedupeWindow() time.Duration {
	return time.Duration(c.DedupeWindowSeconds) * time.Second
}
