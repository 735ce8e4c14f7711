// Package config loads and validates the one Config value read once
// at startup, per the Design Notes guidance against lazy re-reads.
// Backed by github.com/spf13/viper reading environment variables and
// an optional key-value file, generalized from command-line flags to the full
// option table this engine recognizes.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// ProfileConfig is one ControlLoop's tunable parameters — a "MICRO"
// crypto scalping profile and a "STANDARD" equity swing profile are
// both ProfileConfig values in practice.
type ProfileConfig struct {
	Name                string
	Venue               string // "equity" or "crypto"
	Enabled             bool
	Symbols             []string
	CycleInterval       time.Duration
	TakeProfitPercent   decimal.Decimal
	StopLossPercent     decimal.Decimal
	TrailingStopPercent decimal.Decimal
	CapitalFraction     decimal.Decimal
}

// Config is the single validated configuration value threaded
// explicitly to every component constructor; there is no package-level
// mutable state and no lazy re-read after startup.
type Config struct {
	AlpacaAPIKey    string
	AlpacaAPISecret string
	KrakenAPIKey    string
	KrakenAPISecret string

	AutonomousTrading   bool
	InitialCapital      decimal.Decimal
	MultiProfileEnabled bool

	VIXThreshold   decimal.Decimal
	VIXHysteresis  decimal.Decimal
	RSILower       decimal.Decimal
	RSIUpper       decimal.Decimal
	MACDThreshold  decimal.Decimal

	PortfolioStopLossPercent decimal.Decimal
	MaxDrawdownPercent       decimal.Decimal

	KrakenStopLossPercent   decimal.Decimal
	KrakenTakeProfitPercent decimal.Decimal
	KrakenCycleInterval     time.Duration

	GridOrderSize           decimal.Decimal
	GridVolatilityThreshold decimal.Decimal

	PDTProtectionEnabled bool
	MarketHoursBypass    bool

	TestModeEnabled   bool
	TestModeFrequency time.Duration

	JournalPath     string
	HeartbeatURL    string
	LogLevel        string

	Profiles []ProfileConfig
}

// Load reads environment variables and an optional key-value file at
// configPath (may be empty) into a validated Config.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", configPath, err)
		}
	}

	cfg := Config{
		AlpacaAPIKey:    v.GetString("ALPACA_API_KEY"),
		AlpacaAPISecret: v.GetString("ALPACA_API_SECRET"),
		KrakenAPIKey:    v.GetString("KRAKEN_API_KEY"),
		KrakenAPISecret: v.GetString("KRAKEN_API_SECRET"),

		AutonomousTrading:   v.GetBool("AUTONOMOUS_TRADING"),
		InitialCapital:      decimalOrZero(v.GetString("INITIAL_CAPITAL")),
		MultiProfileEnabled: v.GetBool("MULTI_PROFILE_ENABLED"),

		VIXThreshold:  decimalOrZero(v.GetString("VIX_THRESHOLD")),
		VIXHysteresis: decimalOrZero(v.GetString("VIX_HYSTERESIS")),
		RSILower:      decimalOrZero(v.GetString("RSI_LOWER")),
		RSIUpper:      decimalOrZero(v.GetString("RSI_UPPER")),
		MACDThreshold: decimalOrZero(v.GetString("MACD_THRESHOLD")),

		PortfolioStopLossPercent: decimalOrZero(v.GetString("PORTFOLIO_STOP_LOSS_PERCENT")),
		MaxDrawdownPercent:       decimalOrZero(v.GetString("MAX_DRAWDOWN_PERCENT")),

		KrakenStopLossPercent:   decimalOrZero(v.GetString("KRAKEN_STOP_LOSS_PERCENT")),
		KrakenTakeProfitPercent: decimalOrZero(v.GetString("KRAKEN_TAKE_PROFIT_PERCENT")),
		KrakenCycleInterval:     v.GetDuration("KRAKEN_CYCLE_INTERVAL_MS") * time.Millisecond,

		GridOrderSize:           decimalOrZero(v.GetString("GRID_ORDER_SIZE")),
		GridVolatilityThreshold: decimalOrZero(v.GetString("GRID_VOLATILITY_THRESHOLD")),

		PDTProtectionEnabled: v.GetBool("PDT_PROTECTION_ENABLED"),
		MarketHoursBypass:    v.GetBool("MARKET_HOURS_BYPASS"),

		TestModeEnabled:   v.GetBool("TEST_MODE_ENABLED"),
		TestModeFrequency: v.GetDuration("TEST_MODE_FREQUENCY"),

		JournalPath:  v.GetString("JOURNAL_PATH"),
		HeartbeatURL: v.GetString("HEARTBEAT_URL"),
		LogLevel:     v.GetString("LOG_LEVEL"),
	}

	cfg.Profiles = buildProfiles(v, cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JOURNAL_PATH", "./data/journal.db")
	v.SetDefault("PDT_PROTECTION_ENABLED", true)
	v.SetDefault("KRAKEN_CYCLE_INTERVAL_MS", 15000)
	v.SetDefault("VIX_THRESHOLD", "25")
	v.SetDefault("VIX_HYSTERESIS", "3")
	v.SetDefault("RSI_LOWER", "30")
	v.SetDefault("RSI_UPPER", "70")
	v.SetDefault("MACD_THRESHOLD", "0.05")
	v.SetDefault("MAX_DRAWDOWN_PERCENT", "20")
	v.SetDefault("TEST_MODE_FREQUENCY", "30s")
}

func buildProfiles(v *viper.Viper, cfg Config) []ProfileConfig {
	equity := ProfileConfig{
		Name:                "equity-standard",
		Venue:               "equity",
		Enabled:             true,
		CycleInterval:       30 * time.Second,
		TakeProfitPercent:   decimalOrDefault(v.GetString("EQUITY_TAKE_PROFIT_PERCENT"), "5"),
		StopLossPercent:     decimalOrDefault(v.GetString("EQUITY_STOP_LOSS_PERCENT"), "2"),
		TrailingStopPercent: decimalOrDefault(v.GetString("EQUITY_TRAILING_STOP_PERCENT"), "1.5"),
		CapitalFraction:     decimal.NewFromFloat(1.0),
	}
	if !cfg.MultiProfileEnabled {
		return []ProfileConfig{equity}
	}

	crypto := ProfileConfig{
		Name:                "crypto-micro",
		Venue:               "crypto",
		Enabled:             true,
		CycleInterval:       cfg.KrakenCycleInterval,
		TakeProfitPercent:   cfg.KrakenTakeProfitPercent,
		StopLossPercent:     cfg.KrakenStopLossPercent,
		TrailingStopPercent: decimalOrDefault(v.GetString("KRAKEN_TRAILING_STOP_PERCENT"), "1"),
		CapitalFraction:     decimal.NewFromFloat(0.5),
	}
	return []ProfileConfig{equity, crypto}
}

func decimalOrZero(s string) decimal.Decimal {
	return decimalOrDefault(s, "0")
}

func decimalOrDefault(s, def string) decimal.Decimal {
	if s == "" {
		s = def
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Validate checks credentials are present for any enabled profile's
// venue and that numeric guards are sane. A missing-credentials
// failure here is the "configuration failure" exit path (spec exit
// codes).
func (c Config) Validate() error {
	if c.AutonomousTrading {
		for _, p := range c.Profiles {
			if !p.Enabled {
				continue
			}
			switch p.Venue {
			case "equity":
				if c.AlpacaAPIKey == "" || c.AlpacaAPISecret == "" {
					return fmt.Errorf("profile %q requires ALPACA_API_KEY/ALPACA_API_SECRET", p.Name)
				}
			case "crypto":
				if c.KrakenAPIKey == "" || c.KrakenAPISecret == "" {
					return fmt.Errorf("profile %q requires KRAKEN_API_KEY/KRAKEN_API_SECRET", p.Name)
				}
			}
		}
	}
	if c.MaxDrawdownPercent.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("MAX_DRAWDOWN_PERCENT must be positive")
	}
	return nil
}
