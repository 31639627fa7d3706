package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/domain"
)

// SchedulerConfig holds the two cadences and the driving mode.
type SchedulerConfig struct {
	// Source scopes the driven cycles; empty means all sources.
	Source domain.Source
	// PriceInterval is the current-price cadence.
	PriceInterval time.Duration
	// HistoryWeekday and HistoryAt ("HH:MM") place the weekly backfill.
	HistoryWeekday time.Weekday
	HistoryAt      string
	// HistoryDays is the backfill window passed to SyncHistory.
	HistoryDays int
	Logger      *slog.Logger
}

// Scheduler drives the orchestrator on two cadences: the price cycle on a
// fixed interval and the history cycle at a weekly instant. Two driving modes
// share the abstraction of "run now, then arrange the next run": Start uses
// gocron timers, RunSelfRescheduling owns re-invocation itself, computing
// each next run from the previous completion so forward progress is
// guaranteed even when a cycle overruns or fails.
type Scheduler struct {
	orch *Orchestrator
	cfg  SchedulerConfig
	cron *gocron.Scheduler
	log  *slog.Logger
}

// NewScheduler creates a Scheduler over the given orchestrator.
func NewScheduler(orch *Orchestrator, cfg SchedulerConfig) *Scheduler {
	if cfg.PriceInterval <= 0 {
		cfg.PriceInterval = 5 * time.Minute
	}
	if cfg.HistoryAt == "" {
		cfg.HistoryAt = "03:00"
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 7
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		orch: orch,
		cfg:  cfg,
		cron: gocron.NewScheduler(time.UTC),
		log:  logger.With(slog.String("component", "scheduler")),
	}
}

// Start registers the fixed timers and launches them asynchronously. Jobs
// run in singleton mode; an overrunning cycle skips the tick instead of
// stacking.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.Every(s.cfg.PriceInterval).SingletonMode().Do(func() {
		s.runPrices(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduler: register price job: %w", err)
	}

	_, err = s.cron.Every(1).Week().Weekday(s.cfg.HistoryWeekday).At(s.cfg.HistoryAt).SingletonMode().Do(func() {
		s.runHistory(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduler: register history job: %w", err)
	}

	s.cron.StartAsync()
	s.log.InfoContext(ctx, "scheduler started",
		slog.Duration("price_interval", s.cfg.PriceInterval),
		slog.String("history_weekday", s.cfg.HistoryWeekday.String()),
		slog.String("history_at", s.cfg.HistoryAt),
	)
	return nil
}

// Stop halts the fixed timers. Running jobs finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info("scheduler stopped")
}

// RunSelfRescheduling blocks, driving both cadences from a single loop. The
// next price run is computed from the previous run's completion time, the
// next history run from the weekly instant, so a slow or failed cycle delays
// its successor rather than stacking invocations. Returns when ctx is done.
func (s *Scheduler) RunSelfRescheduling(ctx context.Context) error {
	now := time.Now().UTC()
	nextPrices := now
	nextHistory := nextWeekly(now, s.cfg.HistoryWeekday, s.cfg.HistoryAt)

	s.log.InfoContext(ctx, "self-rescheduling loop started",
		slog.Time("next_prices", nextPrices),
		slog.Time("next_history", nextHistory),
	)

	for {
		next := nextPrices
		if nextHistory.Before(next) {
			next = nextHistory
		}

		if wait := time.Until(next); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if !nextHistory.After(time.Now().UTC()) {
			s.runHistory(ctx)
			nextHistory = nextWeekly(time.Now().UTC(), s.cfg.HistoryWeekday, s.cfg.HistoryAt)
			continue
		}

		s.runPrices(ctx)
		nextPrices = time.Now().UTC().Add(s.cfg.PriceInterval)
	}
}

func (s *Scheduler) runPrices(ctx context.Context) {
	if _, err := s.orch.SyncPrices(ctx, s.cfg.Source); err != nil {
		s.log.ErrorContext(ctx, "price cycle failed",
			slog.String("error", err.Error()),
		)
	}
}

func (s *Scheduler) runHistory(ctx context.Context) {
	if _, err := s.orch.SyncHistory(ctx, s.cfg.Source, s.cfg.HistoryDays); err != nil {
		s.log.ErrorContext(ctx, "history cycle failed",
			slog.String("error", err.Error()),
		)
	}
}

// nextWeekly returns the first instant strictly after from that falls on the
// given weekday at "HH:MM" UTC.
func nextWeekly(from time.Time, wd time.Weekday, at string) time.Time {
	t, err := time.Parse("15:04", at)
	if err != nil {
		t = time.Date(0, 1, 1, 3, 0, 0, 0, time.UTC)
	}

	next := time.Date(from.Year(), from.Month(), from.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	for next.Weekday() != wd || !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
