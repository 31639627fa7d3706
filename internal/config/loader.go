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
// built-in defaults, applies SYNCD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
//
// A missing file is not an error: defaults plus environment overrides are
// enough to run against local services.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SYNCD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "SYNCD_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "SYNCD_POLYMARKET_CLOB_HOST")
	setInt(&cfg.Polymarket.FidelityMinutes, "SYNCD_POLYMARKET_FIDELITY_MINUTES")
	setDuration(&cfg.Polymarket.CallSpacing, "SYNCD_POLYMARKET_CALL_SPACING")
	setInt(&cfg.Polymarket.MaxRangeDays, "SYNCD_POLYMARKET_MAX_RANGE_DAYS")
	setDuration(&cfg.Polymarket.Timeout, "SYNCD_POLYMARKET_TIMEOUT")

	// ── Database ──
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.DSN, "SYNCD_DATABASE_DSN")
	setStr(&cfg.Database.Host, "SYNCD_DATABASE_HOST")
	setInt(&cfg.Database.Port, "SYNCD_DATABASE_PORT")
	setStr(&cfg.Database.Database, "SYNCD_DATABASE_NAME")
	setStr(&cfg.Database.User, "SYNCD_DATABASE_USER")
	setStr(&cfg.Database.Password, "SYNCD_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "SYNCD_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "SYNCD_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "SYNCD_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "SYNCD_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SYNCD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SYNCD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SYNCD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SYNCD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SYNCD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SYNCD_REDIS_TLS_ENABLED")

	// ── Sync ──
	setInt(&cfg.Sync.Fanout, "SYNCD_SYNC_FANOUT")
	setInt(&cfg.Sync.HistoryDays, "SYNCD_SYNC_HISTORY_DAYS")
	setInt(&cfg.Sync.DeepBackfillDays, "SYNCD_SYNC_DEEP_BACKFILL_DAYS")

	// ── Schedule ──
	setDuration(&cfg.Schedule.PriceInterval, "SYNCD_SCHEDULE_PRICE_INTERVAL")
	setStr(&cfg.Schedule.HistoryWeekday, "SYNCD_SCHEDULE_HISTORY_WEEKDAY")
	setStr(&cfg.Schedule.HistoryAt, "SYNCD_SCHEDULE_HISTORY_AT")
	setStr(&cfg.Schedule.Driver, "SYNCD_SCHEDULE_DRIVER")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SYNCD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SYNCD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SYNCD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SYNCD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SYNCD_MODE")
	setStr(&cfg.LogLevel, "SYNCD_LOG_LEVEL")
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
