// Command syncd is the market data synchronization daemon. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and runs the selected mode: the scheduling daemon or a one-shot sync cycle.
//
// Usage:
//
//	syncd [flags] [daemon|sync-prices|sync-history]
//
// With no command the mode comes from configuration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/app"
	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	days := flag.Int("days", 0, "day range override for sync-history")
	deep := flag.Bool("deep", false, "use the configured deep backfill window for sync-history")
	incremental := flag.Bool("incremental", false, "append missing history points instead of replacing")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// A positional command overrides the configured mode.
	if cmd := flag.Arg(0); cmd != "" {
		cfg.Mode = cmd
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("syncd starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	// Create the application.
	application := app.New(cfg, logger)
	application.HistoryDays = *days
	application.DeepBackfill = *deep
	application.Incremental = *incremental
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("syncd shut down gracefully")
		} else {
			logger.Error("syncd exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("syncd stopped")
}
