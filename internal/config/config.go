// Package config provides layered configuration for the trading pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all process-wide configuration, read once at startup.
type Config struct {
	Feed     FeedConfig     `mapstructure:"feed"`
	Candle   CandleConfig   `mapstructure:"candle"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SubscriptionEntry is one instrument in the initial subscription set.
type SubscriptionEntry struct {
	Segment    string `mapstructure:"segment"`
	SecurityID string `mapstructure:"securityId"`
}

// ReconnectConfig tunes the feed client's backoff policy.
type ReconnectConfig struct {
	InitialDelayMs int `mapstructure:"initialDelayMs"`
	MaxAttempts    int `mapstructure:"maxAttempts"`
}

// FeedConfig configures the vendor market-feed client (C1).
type FeedConfig struct {
	Endpoint             string              `mapstructure:"endpoint"`
	Token                string              `mapstructure:"token"`
	ClientID             string              `mapstructure:"clientId"`
	SubscriptionSet      []SubscriptionEntry `mapstructure:"subscriptionSet"`
	Reconnect            ReconnectConfig     `mapstructure:"reconnect"`
	KeepaliveIntervalSec int                 `mapstructure:"keepaliveIntervalSec"`
}

// CandleConfig configures the candle aggregator (C3).
type CandleConfig struct {
	Intervals []string `mapstructure:"intervals"`
}

// RiskConfig configures portfolio seeding and per-trade sizing (C6/C7).
type RiskConfig struct {
	TotalCapital    float64 `mapstructure:"totalCapital"`
	MaxDailyLossPct float64 `mapstructure:"maxDailyLossPct"`
	RiskPct         float64 `mapstructure:"riskPct"`
	StopLossPct     float64 `mapstructure:"stopLossPct"`
	TargetPct       float64 `mapstructure:"targetPct"`
	LotSize         int     `mapstructure:"lotSize"`
}

// ScheduleConfig configures the exchange-local session clock.
type ScheduleConfig struct {
	MarketOpen   string `mapstructure:"marketOpen"`
	MarketClose  string `mapstructure:"marketClose"`
	EODSquareOff string `mapstructure:"eodSquareOff"`
	DailyResetAt string `mapstructure:"dailyResetAt"`
	Timezone     string `mapstructure:"timezone"`
}

// HTTPConfig configures the /ws and /healthz surface (C8).
type HTTPConfig struct {
	ListenAddr string `mapstructure:"listenAddr"`
}

// StoreConfig configures the SQLite persistence adapter (C9).
type StoreConfig struct {
	DBPath string `mapstructure:"dbPath"`
}

// LoggingConfig configures the zerolog/lumberjack sink.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/indexfeed-trader"
	}
	return filepath.Join(home, ".config", "indexfeed-trader")
}

// Default returns the configuration defaults named in the external-interfaces
// table: these are the values viper falls back to before config.toml or env
// overrides are applied.
func Default() *Config {
	return &Config{
		Feed: FeedConfig{
			SubscriptionSet: []SubscriptionEntry{{Segment: "IDX_I", SecurityID: "13"}},
			Reconnect:       ReconnectConfig{InitialDelayMs: 5000, MaxAttempts: 5},
			KeepaliveIntervalSec: 30,
		},
		Candle: CandleConfig{Intervals: []string{"1m", "5m"}},
		Risk: RiskConfig{
			TotalCapital:    20000,
			MaxDailyLossPct: 0.03,
			RiskPct:         0.01,
			StopLossPct:     0.01,
			TargetPct:       0.03,
			LotSize:         75,
		},
		Schedule: ScheduleConfig{
			MarketOpen:   "09:15",
			MarketClose:  "15:30",
			EODSquareOff: "15:20",
			DailyResetAt: "09:00",
			Timezone:     "+05:30",
		},
		HTTP:    HTTPConfig{ListenAddr: ":8765"},
		Store:   StoreConfig{DBPath: filepath.Join(DefaultConfigDir(), "trader.db")},
		Logging: LoggingConfig{Level: "info", File: filepath.Join(DefaultConfigDir(), "logs", "trader.log")},
	}
}

// Load loads configuration from configDir/config.toml, applies INDEXFEED_*
// environment overrides, and validates the result. If configDir is empty the
// default config directory is used; if no config.toml exists there, a
// template is written and an error returned so the operator can fill it in.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("INDEXFEED")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if tErr := createTemplateConfig(configDir); tErr != nil {
				return nil, fmt.Errorf("creating config template: %w", tErr)
			}
			return nil, fmt.Errorf("config file not found, created template at %s/config.toml", configDir)
		}
		return nil, fmt.Errorf("reading config.toml: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INDEXFEED_FEED_TOKEN"); v != "" {
		cfg.Feed.Token = v
	}
	if v := os.Getenv("INDEXFEED_FEED_CLIENTID"); v != "" {
		cfg.Feed.ClientID = v
	}
	if v := os.Getenv("INDEXFEED_HTTP_LISTENADDR"); v != "" {
		cfg.HTTP.ListenAddr = v
	}
	if v := os.Getenv("INDEXFEED_STORE_DBPATH"); v != "" {
		cfg.Store.DBPath = v
	}
	if v := os.Getenv("INDEXFEED_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Feed.Endpoint == "" {
		return fmt.Errorf("feed.endpoint must be set")
	}
	if c.Risk.MaxDailyLossPct < 0 || c.Risk.MaxDailyLossPct > 1 {
		return fmt.Errorf("risk.maxDailyLossPct must be between 0 and 1")
	}
	if c.Risk.RiskPct <= 0 || c.Risk.RiskPct > 1 {
		return fmt.Errorf("risk.riskPct must be between 0 and 1")
	}
	if c.Risk.LotSize <= 0 {
		return fmt.Errorf("risk.lotSize must be positive")
	}
	if c.Feed.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("feed.reconnect.maxAttempts must be non-negative")
	}
	if len(c.Candle.Intervals) == 0 {
		return fmt.Errorf("candle.intervals must not be empty")
	}
	return nil
}
