// Package config defines the top-level configuration for the arbitrage bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYARB_* environment variables.
type Config struct {
	Polymarket   PolymarketConfig   `toml:"polymarket"`
	Scanner      ScannerConfig      `toml:"scanner"`
	Detector     DetectorConfig     `toml:"detector"`
	Trader       TraderConfig       `toml:"trader"`
	Subscription SubscriptionConfig `toml:"subscription"`
	Store        StoreConfig        `toml:"store"`
	Mode         string             `toml:"mode"`
	LogLevel     string             `toml:"log_level"`
}

// PolymarketConfig holds Polymarket API endpoints.
type PolymarketConfig struct {
	ClobHost  string `toml:"clob_host"`
	GammaHost string `toml:"gamma_host"`
	WsHost    string `toml:"ws_host"`
}

// ScannerConfig holds market-scanning parameters.
type ScannerConfig struct {
	Interval            duration `toml:"interval"`
	MarketLimit         int      `toml:"market_limit"`
	PriceTTL            duration `toml:"price_ttl"`
	MarketTTLMultiplier int      `toml:"market_ttl_multiplier"`
	MaxInFlight         int      `toml:"max_in_flight"`
	Keywords            []string `toml:"keywords"`
}

// DetectorConfig holds arbitrage detection thresholds.
type DetectorConfig struct {
	MinProfitMargin     float64 `toml:"min_profit_margin"`
	MinVolume           float64 `toml:"min_volume"`
	MinLiquidity        float64 `toml:"min_liquidity"`
	MaxDaysToResolution float64 `toml:"max_days_to_resolution"`
}

// TraderConfig holds paper-trading parameters.
type TraderConfig struct {
	AutoExecute    bool    `toml:"auto_execute"`
	InitialBalance float64 `toml:"initial_balance"`
	TradeSize      float64 `toml:"trade_size"`
	TradesPath     string  `toml:"trades_path"`
	PositionsPath  string  `toml:"positions_path"`
}

// SubscriptionConfig holds WebSocket subscription parameters.
type SubscriptionConfig struct {
	BufferSize     int      `toml:"buffer_size"`
	BackoffFloor   duration `toml:"backoff_floor"`
	BackoffCeiling duration `toml:"backoff_ceiling"`
}

// StoreConfig holds the opportunity log database location.
type StoreConfig struct {
	Path string `toml:"path"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:  "https://clob.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com/ws/market",
		},
		Scanner: ScannerConfig{
			Interval:            duration{30 * time.Second},
			MarketLimit:         100,
			PriceTTL:            duration{10 * time.Second},
			MarketTTLMultiplier: 5,
			MaxInFlight:         64,
			Keywords:            []string{},
		},
		Detector: DetectorConfig{
			MinProfitMargin:     0.01,
			MinVolume:           10000,
			MinLiquidity:        1000,
			MaxDaysToResolution: 0,
		},
		Trader: TraderConfig{
			AutoExecute:    true,
			InitialBalance: 1000,
			TradeSize:      100,
			TradesPath:     "data/trades.json",
			PositionsPath:  "data/positions.json",
		},
		Subscription: SubscriptionConfig{
			BufferSize:     256,
			BackoffFloor:   duration{time.Second},
			BackoffCeiling: duration{60 * time.Second},
		},
		Store: StoreConfig{
			Path: "data/opportunities.db",
		},
		Mode:     "hybrid",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"poll":   true,
	"hybrid": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: poll, hybrid)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket endpoints
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if strings.ToLower(c.Mode) == "hybrid" && c.Polymarket.WsHost == "" {
		errs = append(errs, "polymarket: ws_host must not be empty in hybrid mode")
	}

	// Scanner
	if c.Scanner.Interval.Duration <= 0 {
		errs = append(errs, "scanner: interval must be > 0")
	}
	if c.Scanner.MarketLimit < 1 {
		errs = append(errs, "scanner: market_limit must be >= 1")
	}
	if c.Scanner.PriceTTL.Duration <= 0 {
		errs = append(errs, "scanner: price_ttl must be > 0")
	}
	if c.Scanner.MarketTTLMultiplier < 1 {
		errs = append(errs, "scanner: market_ttl_multiplier must be >= 1")
	}
	if c.Scanner.MaxInFlight < 1 {
		errs = append(errs, "scanner: max_in_flight must be >= 1")
	}

	// Detector
	if c.Detector.MinProfitMargin <= 0 || c.Detector.MinProfitMargin >= 1 {
		errs = append(errs, fmt.Sprintf("detector: min_profit_margin must be in (0, 1), got %v", c.Detector.MinProfitMargin))
	}
	if c.Detector.MinVolume < 0 {
		errs = append(errs, "detector: min_volume must be >= 0")
	}
	if c.Detector.MinLiquidity < 0 {
		errs = append(errs, "detector: min_liquidity must be >= 0")
	}
	if c.Detector.MaxDaysToResolution < 0 {
		errs = append(errs, "detector: max_days_to_resolution must be >= 0 (0 disables the filter)")
	}

	// Trader
	if c.Trader.InitialBalance <= 0 {
		errs = append(errs, "trader: initial_balance must be > 0")
	}
	if c.Trader.TradeSize <= 0 {
		errs = append(errs, "trader: trade_size must be > 0")
	}
	if c.Trader.TradeSize > c.Trader.InitialBalance {
		errs = append(errs, "trader: trade_size must not exceed initial_balance")
	}

	// Subscription
	if c.Subscription.BufferSize < 1 {
		errs = append(errs, "subscription: buffer_size must be >= 1")
	}
	if c.Subscription.BackoffFloor.Duration <= 0 {
		errs = append(errs, "subscription: backoff_floor must be > 0")
	}
	if c.Subscription.BackoffCeiling.Duration < c.Subscription.BackoffFloor.Duration {
		errs = append(errs, "subscription: backoff_ceiling must be >= backoff_floor")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
