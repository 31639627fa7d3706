package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Polymarket.GammaHost = ""
	cfg.Polymarket.CallSpacing = duration{100 * time.Millisecond}
	cfg.Schedule.HistoryWeekday = "someday"
	cfg.Schedule.HistoryAt = "25:99"
	cfg.Notify.TelegramToken = "token-without-chat-id"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	for _, want := range []string{
		"unknown mode",
		"gamma_host",
		"call_spacing",
		"history_weekday",
		"history_at",
		"telegram_token",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateModes(t *testing.T) {
	for _, mode := range []string{"daemon", "sync-prices", "sync-history"} {
		cfg := Defaults()
		cfg.Mode = mode
		if err := cfg.Validate(); err != nil {
			t.Errorf("mode %q rejected: %v", mode, err)
		}
	}
}

func TestHistoryWeekdayValue(t *testing.T) {
	tests := []struct {
		in   string
		want time.Weekday
	}{
		{"sunday", time.Sunday},
		{"Wednesday", time.Wednesday},
		{"SATURDAY", time.Saturday},
		{"unknown", time.Sunday},
	}

	for _, tt := range tests {
		s := ScheduleConfig{HistoryWeekday: tt.in}
		if got := s.HistoryWeekdayValue(); got != tt.want {
			t.Errorf("HistoryWeekdayValue(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Polymarket.GammaHost != "https://gamma-api.polymarket.com" {
		t.Errorf("gamma host = %q, want default", cfg.Polymarket.GammaHost)
	}
	if cfg.Schedule.PriceInterval.Duration != 5*time.Minute {
		t.Errorf("price interval = %v, want 5m", cfg.Schedule.PriceInterval.Duration)
	}
}

func TestLoadTOMLFile(t *testing.T) {
	content := `
mode = "sync-prices"
log_level = "debug"

[polymarket]
fidelity_minutes = 60
call_spacing = "500ms"

[sync]
fanout = 4
history_days = 14
deep_backfill_days = 60

[schedule]
price_interval = "10m"
history_weekday = "monday"
history_at = "04:30"
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Mode != "sync-prices" {
		t.Errorf("mode = %q, want sync-prices", cfg.Mode)
	}
	if cfg.Polymarket.FidelityMinutes != 60 {
		t.Errorf("fidelity = %d, want 60", cfg.Polymarket.FidelityMinutes)
	}
	if cfg.Polymarket.CallSpacing.Duration != 500*time.Millisecond {
		t.Errorf("call spacing = %v, want 500ms", cfg.Polymarket.CallSpacing.Duration)
	}
	if cfg.Sync.HistoryDays != 14 {
		t.Errorf("history days = %d, want 14", cfg.Sync.HistoryDays)
	}
	if cfg.Schedule.PriceInterval.Duration != 10*time.Minute {
		t.Errorf("price interval = %v, want 10m", cfg.Schedule.PriceInterval.Duration)
	}
	// Untouched sections keep their defaults.
	if cfg.Polymarket.GammaHost != "https://gamma-api.polymarket.com" {
		t.Errorf("gamma host = %q, want default", cfg.Polymarket.GammaHost)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SYNCD_MODE", "sync-history")
	t.Setenv("SYNCD_DATABASE_DSN", "postgres://u:p@db:5432/syncd")
	t.Setenv("SYNCD_SYNC_FANOUT", "16")
	t.Setenv("SYNCD_SCHEDULE_PRICE_INTERVAL", "2m")
	t.Setenv("SYNCD_NOTIFY_EVENTS", "sync_critical, sync_failed")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Mode != "sync-history" {
		t.Errorf("mode = %q, want sync-history", cfg.Mode)
	}
	if cfg.Database.DSN != "postgres://u:p@db:5432/syncd" {
		t.Errorf("dsn = %q, want env value", cfg.Database.DSN)
	}
	if cfg.Sync.Fanout != 16 {
		t.Errorf("fanout = %d, want 16", cfg.Sync.Fanout)
	}
	if cfg.Schedule.PriceInterval.Duration != 2*time.Minute {
		t.Errorf("price interval = %v, want 2m", cfg.Schedule.PriceInterval.Duration)
	}
	if len(cfg.Notify.Events) != 2 || cfg.Notify.Events[0] != "sync_critical" {
		t.Errorf("events = %v, want [sync_critical sync_failed]", cfg.Notify.Events)
	}
}

func TestDSNEnvPrecedence(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://generic")
	t.Setenv("SYNCD_DATABASE_DSN", "postgres://specific")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.DSN != "postgres://specific" {
		t.Errorf("dsn = %q, want the SYNCD_ variable to win", cfg.Database.DSN)
	}
}
