package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/domain"
	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/notify"
)

// MarketClient is the upstream interface the orchestrator fetches through.
type MarketClient interface {
	// CurrentPrice resolves an external reference to the market's current
	// probability fraction and canonical upstream id.
	CurrentPrice(ctx context.Context, ref string) (domain.Quote, error)
	// History fetches the market's raw probability series for the last days
	// days, in upstream units.
	History(ctx context.Context, ref string, days int) ([]domain.RawPoint, error)
	// Source returns the source this client serves.
	Source() domain.Source
}

// Notifier is the alert surface the orchestrator emits to.
type Notifier interface {
	Notify(ctx context.Context, event notify.Event, title, message string) error
}

// Orchestrator runs the two update cycles: the concurrent current-price
// refresh and the sequential historical backfill. Per-market failures are
// collected into the cycle report and never abort the remaining markets.
type Orchestrator struct {
	markets   domain.MarketStore
	updateLog domain.UpdateLogStore
	merger    *Merger
	health    *HealthTracker
	reports   domain.ReportLog
	notifier  Notifier
	clients   map[domain.Source]MarketClient
	fanout    int
	logger    *slog.Logger
}

// OrchestratorConfig wires an Orchestrator.
type OrchestratorConfig struct {
	Markets   domain.MarketStore
	UpdateLog domain.UpdateLogStore
	Merger    *Merger
	Health    *HealthTracker
	Reports   domain.ReportLog
	Notifier  Notifier
	Clients   map[domain.Source]MarketClient
	// Fanout bounds concurrent market fetches in the price cycle.
	Fanout int
	Logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	fanout := cfg.Fanout
	if fanout < 1 {
		fanout = 8
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		markets:   cfg.Markets,
		updateLog: cfg.UpdateLog,
		merger:    cfg.Merger,
		health:    cfg.Health,
		reports:   cfg.Reports,
		notifier:  cfg.Notifier,
		clients:   cfg.Clients,
		fanout:    fanout,
		logger:    logger.With(slog.String("component", "orchestrator")),
	}
}

// SyncPrices runs one current-price cycle for the given source (empty source
// means all sources). Markets are fetched concurrently up to the configured
// fanout; a market whose rounded probability moved at least one percentage
// point gets its current value, daily history point, and update-log entry
// persisted. The finished report lands in the rolling report log.
func (o *Orchestrator) SyncPrices(ctx context.Context, source domain.Source) (*domain.UpdateReport, error) {
	start := time.Now()

	markets, err := o.markets.ListActive(ctx, source)
	if err != nil {
		err = fmt.Errorf("list active markets: %w", err)
		report := o.finishReport(ctx, domain.CyclePrices, start, 0, 0, []string{err.Error()}, false)
		return report, err
	}

	var (
		mu      sync.Mutex
		updated int
		failed  int
		errs    []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.fanout)
	for _, m := range markets {
		m := m
		g.Go(func() error {
			if err := o.updateMarketPrice(gctx, m); err != nil {
				mu.Lock()
				failed++
				errs = append(errs, fmt.Sprintf("market %d (%s): %v", m.ID, m.ExternalRef, err))
				mu.Unlock()
				o.logger.WarnContext(gctx, "price update failed",
					slog.Int64("market_id", m.ID),
					slog.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			updated++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report := o.finishReport(ctx, domain.CyclePrices, start, updated, failed, errs, false)
	return report, nil
}

// updateMarketPrice fetches and, when the change is significant, persists one
// market's current probability.
func (o *Orchestrator) updateMarketPrice(ctx context.Context, m domain.Market) error {
	client, ok := o.clients[m.Source]
	if !ok {
		return fmt.Errorf("no client for source %s", m.Source)
	}

	fetchStart := time.Now()
	quote, err := client.CurrentPrice(ctx, m.ExternalRef)
	o.recordHealth(ctx, m.Source, err == nil, time.Since(fetchStart), err)
	if err != nil {
		return err
	}

	if m.ExternalID == "" && quote.ExternalID != "" {
		if err := o.markets.SetExternalID(ctx, m.ID, quote.ExternalID); err != nil {
			o.logger.WarnContext(ctx, "set external id failed",
				slog.Int64("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	newProb := RoundProbability(quote.Probability)
	if !SignificantChange(m.Probability, newProb) {
		return nil
	}

	if err := o.markets.UpdateProbability(ctx, m.ID, newProb, m.Probability, quote.FetchedAt); err != nil {
		return fmt.Errorf("persist probability: %w", err)
	}
	if err := o.merger.DailyUpsert(ctx, m.ID, quote.FetchedAt.UnixMilli(), newProb, m.Source); err != nil {
		return fmt.Errorf("persist history point: %w", err)
	}
	if err := o.updateLog.Insert(ctx, domain.UpdateLogEntry{
		MarketID:       m.ID,
		OldProbability: m.Probability,
		NewProbability: newProb,
		Source:         m.Source,
	}); err != nil {
		o.logger.WarnContext(ctx, "update log insert failed",
			slog.Int64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}

	o.logger.InfoContext(ctx, "probability updated",
		slog.Int64("market_id", m.ID),
		slog.Int("old", m.Probability),
		slog.Int("new", newProb),
	)
	return nil
}

// SyncHistory runs one historical backfill cycle for the given source,
// replacing each active market's stored history with the last days days
// fetched upstream.
func (o *Orchestrator) SyncHistory(ctx context.Context, source domain.Source, days int) (*domain.UpdateReport, error) {
	return o.syncHistory(ctx, source, days, false)
}

// SyncHistoryIncremental runs a history cycle that appends only the fetched
// samples not already stored, deduplicating overlapping fetch windows by
// exact timestamp. Existing history is never deleted, so a failure mid-cycle
// cannot leave a market with partial history.
func (o *Orchestrator) SyncHistoryIncremental(ctx context.Context, source domain.Source, days int) (*domain.UpdateReport, error) {
	return o.syncHistory(ctx, source, days, true)
}

// syncHistory is the shared history cycle. The health gate is consulted
// first; markets are processed sequentially so the client's call spacing
// holds across the whole cycle.
func (o *Orchestrator) syncHistory(ctx context.Context, source domain.Source, days int, incremental bool) (*domain.UpdateReport, error) {
	start := time.Now()

	if source != "" {
		ok, err := o.health.ShouldAttempt(ctx, source)
		if err != nil {
			o.logger.WarnContext(ctx, "health gate check failed",
				slog.String("source", string(source)),
				slog.String("error", err.Error()),
			)
		} else if !ok {
			o.logger.InfoContext(ctx, "history sync suppressed by backoff",
				slog.String("source", string(source)),
			)
			note := fmt.Sprintf("%s: %v", source, domain.ErrBackoff)
			report := o.finishReport(ctx, domain.CycleHistory, start, 0, 0, []string{note}, false)
			return report, nil
		}
	}

	markets, err := o.markets.ListActive(ctx, source)
	if err != nil {
		err = fmt.Errorf("list active markets: %w", err)
		report := o.finishReport(ctx, domain.CycleHistory, start, 0, 0, []string{err.Error()}, false)
		return report, err
	}

	var (
		updated  int
		failed   int
		critical bool
		errs     []string
	)

	for _, m := range markets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Sprintf("cycle interrupted: %v", err))
			break
		}

		client, ok := o.clients[m.Source]
		if !ok {
			failed++
			errs = append(errs, fmt.Sprintf("market %d: no client for source %s", m.ID, m.Source))
			continue
		}

		fetchStart := time.Now()
		raw, err := client.History(ctx, m.ExternalRef, days)
		o.recordHealth(ctx, m.Source, err == nil, time.Since(fetchStart), err)
		if err != nil {
			failed++
			errs = append(errs, fmt.Sprintf("market %d (%s): %v", m.ID, m.ExternalRef, err))
			continue
		}

		var count int
		if incremental {
			count, err = o.merger.AppendMissing(ctx, m.ID, raw, m.Source)
		} else {
			count, err = o.merger.ReplaceHistory(ctx, m.ID, raw, m.Source)
		}
		if err != nil {
			failed++
			errs = append(errs, fmt.Sprintf("market %d: %v", m.ID, err))
			if errors.Is(err, domain.ErrPartialHistory) {
				critical = true
			}
			continue
		}

		updated++
		o.logger.InfoContext(ctx, "history synced",
			slog.Int64("market_id", m.ID),
			slog.Int("points", count),
			slog.Int("days", days),
			slog.Bool("incremental", incremental),
		)
	}

	report := o.finishReport(ctx, domain.CycleHistory, start, updated, failed, errs, critical)
	return report, nil
}

// recordHealth logs health-tracker write failures instead of surfacing them:
// a broken health row must not fail an otherwise healthy market update.
func (o *Orchestrator) recordHealth(ctx context.Context, source domain.Source, success bool, d time.Duration, fetchErr error) {
	errText := ""
	if fetchErr != nil {
		errText = fetchErr.Error()
	}
	if err := o.health.Record(ctx, source, success, d, errText); err != nil {
		o.logger.WarnContext(ctx, "health record failed",
			slog.String("source", string(source)),
			slog.String("error", err.Error()),
		)
	}
}

// finishReport assembles the cycle report, appends it to the rolling log, and
// emits notifications for failed or critical outcomes.
func (o *Orchestrator) finishReport(ctx context.Context, cycle domain.Cycle, start time.Time, updated, failed int, errs []string, critical bool) *domain.UpdateReport {
	report := &domain.UpdateReport{
		ID:        uuid.NewString(),
		Cycle:     cycle,
		Success:   failed == 0 && !critical,
		Critical:  critical,
		Updated:   updated,
		Failed:    failed,
		Errors:    errs,
		Duration:  time.Since(start),
		Timestamp: time.Now().UTC(),
	}

	if err := o.reports.Append(ctx, *report); err != nil {
		o.logger.ErrorContext(ctx, "report append failed",
			slog.String("cycle", string(cycle)),
			slog.String("error", err.Error()),
		)
	}

	o.logger.InfoContext(ctx, "cycle finished",
		slog.String("cycle", string(cycle)),
		slog.Bool("success", report.Success),
		slog.Int("updated", updated),
		slog.Int("failed", failed),
		slog.Duration("duration", report.Duration),
	)

	if o.notifier == nil {
		return report
	}
	if critical {
		msg := fmt.Sprintf("cycle %s left partial history: updated=%d failed=%d\n%s",
			cycle, updated, failed, joinErrors(errs))
		if err := o.notifier.Notify(ctx, notify.EventSyncCritical, "Sync critical", msg); err != nil {
			o.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	} else if failed > 0 {
		msg := fmt.Sprintf("cycle %s: updated=%d failed=%d\n%s",
			cycle, updated, failed, joinErrors(errs))
		if err := o.notifier.Notify(ctx, notify.EventSyncFailed, "Sync failures", msg); err != nil {
			o.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
	return report
}

// joinErrors renders at most five error lines for notification bodies.
func joinErrors(errs []string) string {
	const max = 5
	if len(errs) > max {
		return strings.Join(errs[:max], "\n") +
			fmt.Sprintf("\n... and %d more", len(errs)-max)
	}
	return strings.Join(errs, "\n")
}
