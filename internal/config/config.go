// Package config provides configuration management for the spread engine.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultTickInterval is the scheduler wake-up cadence when unset.
	defaultTickInterval = 30 * time.Second
	// defaultManageInterval is how often open positions are re-evaluated when unset.
	defaultManageInterval = 5 * time.Minute
	// defaultAttemptPause separates consecutive entry order attempts when unset.
	defaultAttemptPause = 1 * time.Second
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Exit        ExitConfig        `yaml:"exit"`
	Risk        RiskConfig        `yaml:"risk"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Storage     StorageConfig     `yaml:"storage"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode          string `yaml:"mode"`      // paper | live
	LogLevel      string `yaml:"log_level"` // debug | info | warn | error
	LogDir        string `yaml:"log_dir"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
}

// BrokerConfig defines broker API settings.
type BrokerConfig struct {
	Provider  string `yaml:"provider"` // tradier | mock
	APIKey    string `yaml:"api_key"`
	AccountID string `yaml:"account_id"`
	Sandbox   bool   `yaml:"sandbox"`
}

// ScheduleConfig defines the session schedule and market timezone.
type ScheduleConfig struct {
	Timezone         string `yaml:"timezone"`           // e.g., "America/New_York"
	EntryWindowStart string `yaml:"entry_window_start"` // "HH:MM"
	EntryWindowEnd   string `yaml:"entry_window_end"`   // "HH:MM"
	TickInterval     string `yaml:"tick_interval"`
	ManageInterval   string `yaml:"manage_interval"`
	SessionDuration  string `yaml:"session_duration"`
}

// StrategyConfig defines the spread selection parameters.
type StrategyConfig struct {
	Underlyings   []string `yaml:"underlyings"`
	DTEMin        int      `yaml:"dte_min"`
	DTEMax        int      `yaml:"dte_max"`
	DeltaMin      float64  `yaml:"delta_min"`
	DeltaMax      float64  `yaml:"delta_max"`
	SpreadWidth   float64  `yaml:"spread_width"`
	LegMaxBidAsk  float64  `yaml:"leg_max_bidask"`
	RequireGreeks bool     `yaml:"require_greeks"`
	OTMTargetPct  float64  `yaml:"otm_target_pct"`
}

// ExitConfig defines exit criteria for closing positions.
type ExitConfig struct {
	TPCapturePct float64 `yaml:"tp_capture_pct"`
	SLMultiple   float64 `yaml:"sl_multiple"`
	TimeExitDTE  int     `yaml:"time_exit_dte"`
}

// RiskConfig defines risk management parameters.
type RiskConfig struct {
	AccountSize     float64 `yaml:"account_size"`
	RiskPerTradePct float64 `yaml:"risk_per_trade_pct"`
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct"`
	MaxTradesPerDay int     `yaml:"max_trades_per_day"`
	TradingDisabled bool    `yaml:"trading_disabled"`
}

// ExecutionConfig defines order placement parameters.
type ExecutionConfig struct {
	EntryMaxSlippage float64 `yaml:"entry_max_slippage"`
	AttemptPause     string  `yaml:"attempt_pause"`
}

// StorageConfig defines storage settings for trade data.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	// Environment validation
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	// Broker validation
	switch c.Broker.Provider {
	case "tradier":
		if c.Broker.APIKey == "" {
			return fmt.Errorf("broker.api_key is required for provider 'tradier'")
		}
		if c.Broker.AccountID == "" {
			return fmt.Errorf("broker.account_id is required for provider 'tradier'")
		}
	case "mock":
		// No credentials required
	default:
		return fmt.Errorf("broker.provider must be 'tradier' or 'mock'")
	}

	// Strategy validation
	if len(c.Strategy.Underlyings) == 0 {
		return fmt.Errorf("strategy.underlyings must list at least one symbol")
	}
	for _, sym := range c.Strategy.Underlyings {
		if strings.TrimSpace(sym) == "" {
			return fmt.Errorf("strategy.underlyings must not contain empty symbols")
		}
	}
	if c.Strategy.DTEMin < 0 || c.Strategy.DTEMax <= 0 || c.Strategy.DTEMin > c.Strategy.DTEMax {
		return fmt.Errorf("strategy dte range must satisfy 0 <= dte_min <= dte_max with dte_max > 0")
	}
	if c.Strategy.DeltaMin < 0 || c.Strategy.DeltaMax <= 0 || c.Strategy.DeltaMin > c.Strategy.DeltaMax || c.Strategy.DeltaMax > 1 {
		return fmt.Errorf("strategy delta range must satisfy 0 <= delta_min <= delta_max <= 1")
	}
	if c.Strategy.SpreadWidth <= 0 {
		return fmt.Errorf("strategy.spread_width must be > 0")
	}
	if c.Strategy.LegMaxBidAsk <= 0 {
		return fmt.Errorf("strategy.leg_max_bidask must be > 0")
	}
	if !c.Strategy.RequireGreeks && c.Strategy.OTMTargetPct <= 0 {
		return fmt.Errorf("strategy.otm_target_pct must be > 0 when require_greeks is false")
	}

	// Exit validation
	if c.Exit.TPCapturePct <= 0 || c.Exit.TPCapturePct >= 1 {
		return fmt.Errorf("exit.tp_capture_pct must be in (0,1)")
	}
	if c.Exit.SLMultiple <= 1 {
		return fmt.Errorf("exit.sl_multiple must be > 1")
	}
	if c.Exit.TimeExitDTE < 0 {
		return fmt.Errorf("exit.time_exit_dte must be >= 0")
	}

	// Risk validation
	if c.Risk.AccountSize <= 0 {
		return fmt.Errorf("risk.account_size must be > 0")
	}
	if c.Risk.RiskPerTradePct <= 0 || c.Risk.RiskPerTradePct > 1 {
		return fmt.Errorf("risk.risk_per_trade_pct must be in (0,1]")
	}
	if c.Risk.MaxDailyLossPct <= 0 || c.Risk.MaxDailyLossPct > 1 {
		return fmt.Errorf("risk.max_daily_loss_pct must be in (0,1]")
	}
	if c.Risk.MaxTradesPerDay <= 0 {
		return fmt.Errorf("risk.max_trades_per_day must be > 0")
	}

	// Execution validation
	if c.Execution.EntryMaxSlippage < 0 {
		return fmt.Errorf("execution.entry_max_slippage must be >= 0")
	}
	if c.Execution.AttemptPause != "" {
		if _, err := time.ParseDuration(c.Execution.AttemptPause); err != nil {
			return fmt.Errorf("execution.attempt_pause invalid: %w", err)
		}
	}

	// Schedule validation
	for _, d := range []struct{ name, val string }{
		{"schedule.tick_interval", c.Schedule.TickInterval},
		{"schedule.manage_interval", c.Schedule.ManageInterval},
		{"schedule.session_duration", c.Schedule.SessionDuration},
	} {
		if d.val == "" {
			continue
		}
		if _, err := time.ParseDuration(d.val); err != nil {
			return fmt.Errorf("%s invalid: %w", d.name, err)
		}
	}
	loc := c.Location()
	s, err1 := time.ParseInLocation("15:04", c.Schedule.EntryWindowStart, loc)
	e, err2 := time.ParseInLocation("15:04", c.Schedule.EntryWindowEnd, loc)
	if err1 != nil || err2 != nil || (s.Hour() > e.Hour() || (s.Hour() == e.Hour() && s.Minute() > e.Minute())) {
		return fmt.Errorf("schedule entry window invalid (start/end parse/order)")
	}

	return nil
}

// IsPaperTrading returns true if the engine is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// Location resolves the configured market timezone.
func (c *Config) Location() *time.Location {
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// Fallback for minimal containers
		loc = time.FixedZone("ET", -5*60*60)
	}
	return loc
}

// IsInEntryWindow checks if the given time falls within the entry window.
// Both bounds are inclusive: an entry at exactly the end minute is allowed.
func (c *Config) IsInEntryWindow(now time.Time) bool {
	loc := c.Location()
	today := now.In(loc)

	startClock, err1 := time.ParseInLocation("15:04", c.Schedule.EntryWindowStart, loc)
	endClock, err2 := time.ParseInLocation("15:04", c.Schedule.EntryWindowEnd, loc)
	if err1 != nil || err2 != nil {
		return false
	}
	start := time.Date(today.Year(), today.Month(), today.Day(),
		startClock.Hour(), startClock.Minute(), 0, 0, loc)
	end := time.Date(today.Year(), today.Month(), today.Day(),
		endClock.Hour(), endClock.Minute(), 59, 999999999, loc)

	return !today.Before(start) && !today.After(end)
}

// TickInterval returns the scheduler tick cadence.
func (c *Config) TickInterval() time.Duration {
	return parseDurationOr(c.Schedule.TickInterval, defaultTickInterval)
}

// ManageInterval returns the position management cadence.
func (c *Config) ManageInterval() time.Duration {
	return parseDurationOr(c.Schedule.ManageInterval, defaultManageInterval)
}

// SessionDuration returns the configured run length, 0 meaning unbounded.
func (c *Config) SessionDuration() time.Duration {
	return parseDurationOr(c.Schedule.SessionDuration, 0)
}

// AttemptPause returns the pause between consecutive entry order attempts.
func (c *Config) AttemptPause() time.Duration {
	return parseDurationOr(c.Execution.AttemptPause, defaultAttemptPause)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
