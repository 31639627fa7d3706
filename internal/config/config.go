// Package config defines the top-level configuration for the market data
// synchronization engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SYNCD_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	Sync       SyncConfig       `toml:"sync"`
	Schedule   ScheduleConfig   `toml:"schedule"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds upstream API endpoints and fetch parameters.
type PolymarketConfig struct {
	GammaHost string `toml:"gamma_host"`
	ClobHost  string `toml:"clob_host"`
	// FidelityMinutes is the sampling granularity requested from the
	// prices-history endpoint.
	FidelityMinutes int `toml:"fidelity_minutes"`
	// CallSpacing is the minimum delay between sequential upstream calls.
	CallSpacing duration `toml:"call_spacing"`
	// MaxRangeDays is the upstream cap on the historical fetch window.
	MaxRangeDays int      `toml:"max_range_days"`
	Timeout      duration `toml:"timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the report log.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// SyncConfig holds update-cycle parameters.
type SyncConfig struct {
	// Fanout bounds the number of concurrent market fetches in the
	// current-price cycle.
	Fanout int `toml:"fanout"`
	// HistoryDays is the routine backfill window; DeepBackfillDays the
	// explicit deep-backfill window.
	HistoryDays      int `toml:"history_days"`
	DeepBackfillDays int `toml:"deep_backfill_days"`
}

// ScheduleConfig holds the two cadences driven by the scheduler.
type ScheduleConfig struct {
	PriceInterval duration `toml:"price_interval"`
	// HistoryWeekday/HistoryAt place the weekly backfill, e.g. "sunday" at
	// "03:00".
	HistoryWeekday string `toml:"history_weekday"`
	HistoryAt      string `toml:"history_at"`
	// Driver selects the scheduling mode: "cron" (fixed timers) or "self"
	// (each completed cycle arranges its own next run).
	Driver string `toml:"driver"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "300ms").
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
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost:       "https://gamma-api.polymarket.com",
			ClobHost:        "https://clob.polymarket.com",
			FidelityMinutes: 30,
			CallSpacing:     duration{300 * time.Millisecond},
			MaxRangeDays:    7,
			Timeout:         duration{30 * time.Second},
		},
		Database: DatabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Sync: SyncConfig{
			Fanout:           8,
			HistoryDays:      7,
			DeepBackfillDays: 30,
		},
		Schedule: ScheduleConfig{
			PriceInterval:  duration{5 * time.Minute},
			HistoryWeekday: "sunday",
			HistoryAt:      "03:00",
			Driver:         "cron",
		},
		Notify: NotifyConfig{
			Events: []string{"sync_failed", "sync_critical"},
		},
		Mode:     "daemon",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"daemon":       true,
	"sync-prices":  true,
	"sync-history": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validWeekdays maps schedule weekday names to time.Weekday.
var validWeekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// HistoryWeekdayValue resolves the configured weekday name. Call Validate
// first; unknown names fall back to Sunday.
func (s ScheduleConfig) HistoryWeekdayValue() time.Weekday {
	if wd, ok := validWeekdays[strings.ToLower(s.HistoryWeekday)]; ok {
		return wd
	}
	return time.Sunday
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: daemon, sync-prices, sync-history)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.FidelityMinutes <= 0 {
		errs = append(errs, "polymarket: fidelity_minutes must be positive")
	}
	if c.Polymarket.CallSpacing.Duration < 300*time.Millisecond {
		errs = append(errs, "polymarket: call_spacing must be at least 300ms")
	}
	if c.Polymarket.MaxRangeDays < 1 {
		errs = append(errs, "polymarket: max_range_days must be >= 1")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Sync
	if c.Sync.Fanout < 1 {
		errs = append(errs, "sync: fanout must be >= 1")
	}
	if c.Sync.HistoryDays < 1 {
		errs = append(errs, "sync: history_days must be >= 1")
	}
	if c.Sync.DeepBackfillDays < c.Sync.HistoryDays {
		errs = append(errs, "sync: deep_backfill_days must be >= history_days")
	}

	// Schedule
	if c.Schedule.PriceInterval.Duration < time.Minute {
		errs = append(errs, "schedule: price_interval must be at least 1m")
	}
	if _, ok := validWeekdays[strings.ToLower(c.Schedule.HistoryWeekday)]; !ok {
		errs = append(errs, fmt.Sprintf("schedule: unknown history_weekday %q", c.Schedule.HistoryWeekday))
	}
	if _, err := time.Parse("15:04", c.Schedule.HistoryAt); err != nil {
		errs = append(errs, fmt.Sprintf("schedule: history_at must be HH:MM, got %q", c.Schedule.HistoryAt))
	}
	if c.Schedule.Driver != "cron" && c.Schedule.Driver != "self" {
		errs = append(errs, fmt.Sprintf("schedule: unknown driver %q (valid: cron, self)", c.Schedule.Driver))
	}

	// Notify — token and chat id must be set together.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
