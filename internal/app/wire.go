package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/cache/redis"
	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/config"
	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/domain"
	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/notify"
	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/platform/polymarket"
	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/store/postgres"
	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/sync"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore       domain.MarketStore
	HistoryStore      domain.HistoryStore
	SourceHealthStore domain.SourceHealthStore
	UpdateLogStore    domain.UpdateLogStore

	// Report sink
	Reports domain.ReportLog

	// Engine
	Orchestrator *sync.Orchestrator

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.HistoryStore = postgres.NewHistoryStore(pool)
	deps.SourceHealthStore = postgres.NewSourceHealthStore(pool)
	deps.UpdateLogStore = postgres.NewUpdateLogStore(pool)

	// --- Redis report log ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Reports = redis.NewReportLog(redisClient)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Upstream clients ---
	pmClient := polymarket.NewClient(polymarket.ClientConfig{
		GammaHost:       cfg.Polymarket.GammaHost,
		ClobHost:        cfg.Polymarket.ClobHost,
		FidelityMinutes: cfg.Polymarket.FidelityMinutes,
		CallSpacing:     cfg.Polymarket.CallSpacing.Duration,
		MaxRangeDays:    cfg.Polymarket.MaxRangeDays,
		Timeout:         cfg.Polymarket.Timeout.Duration,
	})
	clients := map[domain.Source]sync.MarketClient{
		pmClient.Source(): pmClient,
	}

	// --- Orchestrator ---
	deps.Orchestrator = sync.NewOrchestrator(sync.OrchestratorConfig{
		Markets:   deps.MarketStore,
		UpdateLog: deps.UpdateLogStore,
		Merger:    sync.NewMerger(deps.HistoryStore),
		Health:    sync.NewHealthTracker(deps.SourceHealthStore),
		Reports:   deps.Reports,
		Notifier:  deps.Notifier,
		Clients:   clients,
		Fanout:    cfg.Sync.Fanout,
		Logger:    logger,
	})

	return deps, cleanup, nil
}
