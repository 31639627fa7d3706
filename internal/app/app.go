// Package app provides the top-level application lifecycle for the sync
// engine. It wires together all dependencies (stores, the report log, the
// upstream client, the orchestrator, and notifications) and runs the
// configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()

	// HistoryDays overrides the configured backfill window for the
	// sync-history mode when positive.
	HistoryDays int
	// DeepBackfill selects the configured deep backfill window for the
	// sync-history mode when no explicit override is given.
	DeepBackfill bool
	// Incremental makes the sync-history mode append missing points instead
	// of replacing stored history.
	Incremental bool
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, and blocks until the mode returns or the context is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting sync engine",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "daemon":
		return a.DaemonMode(ctx, deps)
	case "sync-prices":
		return a.SyncPricesMode(ctx, deps)
	case "sync-history":
		return a.SyncHistoryMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down sync engine")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
