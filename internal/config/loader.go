package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load. An empty path skips the
// file and uses defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators tune parameters at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYARB_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYARB_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "POLYARB_POLYMARKET_WS_HOST")

	// ── Scanner ──
	setDuration(&cfg.Scanner.Interval, "POLYARB_SCANNER_INTERVAL")
	setInt(&cfg.Scanner.MarketLimit, "POLYARB_SCANNER_MARKET_LIMIT")
	setDuration(&cfg.Scanner.PriceTTL, "POLYARB_SCANNER_PRICE_TTL")
	setInt(&cfg.Scanner.MarketTTLMultiplier, "POLYARB_SCANNER_MARKET_TTL_MULTIPLIER")
	setInt(&cfg.Scanner.MaxInFlight, "POLYARB_SCANNER_MAX_IN_FLIGHT")
	setStringSlice(&cfg.Scanner.Keywords, "POLYARB_SCANNER_KEYWORDS")

	// ── Detector ──
	setFloat64(&cfg.Detector.MinProfitMargin, "POLYARB_DETECTOR_MIN_PROFIT_MARGIN")
	setFloat64(&cfg.Detector.MinVolume, "POLYARB_DETECTOR_MIN_VOLUME")
	setFloat64(&cfg.Detector.MinLiquidity, "POLYARB_DETECTOR_MIN_LIQUIDITY")
	setFloat64(&cfg.Detector.MaxDaysToResolution, "POLYARB_DETECTOR_MAX_DAYS_TO_RESOLUTION")

	// ── Trader ──
	setBool(&cfg.Trader.AutoExecute, "POLYARB_TRADER_AUTO_EXECUTE")
	setFloat64(&cfg.Trader.InitialBalance, "POLYARB_TRADER_INITIAL_BALANCE")
	setFloat64(&cfg.Trader.TradeSize, "POLYARB_TRADER_TRADE_SIZE")
	setStr(&cfg.Trader.TradesPath, "POLYARB_TRADER_TRADES_PATH")
	setStr(&cfg.Trader.PositionsPath, "POLYARB_TRADER_POSITIONS_PATH")

	// ── Subscription ──
	setInt(&cfg.Subscription.BufferSize, "POLYARB_SUBSCRIPTION_BUFFER_SIZE")
	setDuration(&cfg.Subscription.BackoffFloor, "POLYARB_SUBSCRIPTION_BACKOFF_FLOOR")
	setDuration(&cfg.Subscription.BackoffCeiling, "POLYARB_SUBSCRIPTION_BACKOFF_CEILING")

	// ── Store ──
	setStr(&cfg.Store.Path, "POLYARB_STORE_PATH")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYARB_MODE")
	setStr(&cfg.LogLevel, "POLYARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setFloat64(dst *float64, key string) {
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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
