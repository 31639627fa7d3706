package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/config"
	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/domain"
	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/sync"
)

// DaemonMode runs the scheduler until the context is cancelled. The driving
// mode comes from configuration: "cron" uses fixed timers, "self" uses the
// self-rescheduling loop where each completed cycle arranges its own next
// run.
func (a *App) DaemonMode(ctx context.Context, deps *Dependencies) error {
	sched := sync.NewScheduler(deps.Orchestrator, sync.SchedulerConfig{
		Source:         domain.SourcePolymarket,
		PriceInterval:  a.cfg.Schedule.PriceInterval.Duration,
		HistoryWeekday: a.cfg.Schedule.HistoryWeekdayValue(),
		HistoryAt:      a.cfg.Schedule.HistoryAt,
		HistoryDays:    a.cfg.Sync.HistoryDays,
		Logger:         a.logger,
	})

	if a.cfg.Schedule.Driver == "self" {
		err := sched.RunSelfRescheduling(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	sched.Stop()
	return nil
}

// SyncPricesMode runs one current-price cycle and exits.
func (a *App) SyncPricesMode(ctx context.Context, deps *Dependencies) error {
	report, err := deps.Orchestrator.SyncPrices(ctx, domain.SourcePolymarket)
	if err != nil {
		return err
	}
	a.logReport(ctx, report)
	return nil
}

// SyncHistoryMode runs one history cycle and exits. The day range comes from
// the -days flag when given, the deep backfill window under -deep, otherwise
// the routine window from configuration. -incremental appends missing points
// instead of replacing stored history.
func (a *App) SyncHistoryMode(ctx context.Context, deps *Dependencies) error {
	days := backfillDays(a.HistoryDays, a.DeepBackfill, a.cfg.Sync)

	var (
		report *domain.UpdateReport
		err    error
	)
	if a.Incremental {
		report, err = deps.Orchestrator.SyncHistoryIncremental(ctx, domain.SourcePolymarket, days)
	} else {
		report, err = deps.Orchestrator.SyncHistory(ctx, domain.SourcePolymarket, days)
	}
	if err != nil {
		return err
	}
	a.logReport(ctx, report)
	return nil
}

// backfillDays picks the history window: an explicit override wins, then the
// deep backfill window when requested, then the routine window.
func backfillDays(override int, deep bool, cfg config.SyncConfig) int {
	switch {
	case override > 0:
		return override
	case deep:
		return cfg.DeepBackfillDays
	default:
		return cfg.HistoryDays
	}
}

func (a *App) logReport(ctx context.Context, r *domain.UpdateReport) {
	attrs := []any{
		slog.String("cycle", string(r.Cycle)),
		slog.Bool("success", r.Success),
		slog.Int("updated", r.Updated),
		slog.Int("failed", r.Failed),
		slog.Duration("duration", r.Duration),
	}
	if r.Critical {
		a.logger.ErrorContext(ctx, "cycle left partial history", attrs...)
		return
	}
	if !r.Success {
		a.logger.WarnContext(ctx, "cycle finished with failures", attrs...)
		return
	}
	a.logger.InfoContext(ctx, "cycle finished", attrs...)
}
