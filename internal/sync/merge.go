// Package sync implements the market data update engine: the time-series
// merge policies, the per-source health tracker, the cycle orchestrator, and
// the scheduler that drives it.
package sync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/domain"
)

// significantChangePoints is the minimum probability movement, in percentage
// points, required before a current-price update is persisted. Sub-threshold
// fluctuations are noise and are discarded.
const significantChangePoints = 1

// Merger is the single home for history dedup policy. Everything above the
// HistoryStore primitives that decides insert/update/skip lives here.
type Merger struct {
	history domain.HistoryStore
}

// NewMerger creates a Merger over the given history store.
func NewMerger(history domain.HistoryStore) *Merger {
	return &Merger{history: history}
}

// RoundProbability converts an upstream probability fraction in [0,1] to an
// integer percentage, rounding half up and clamping to [0,100].
func RoundProbability(frac float64) int {
	p := int(math.Floor(frac*100 + 0.5))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// SignificantChange reports whether the movement from old to new crosses the
// persistence threshold.
func SignificantChange(old, new int) bool {
	d := old - new
	if d < 0 {
		d = -d
	}
	return d >= significantChangePoints
}

// dayBounds returns the inclusive [startMs, endMs] of the calendar day
// containing tsMs, local to the timestamp.
func dayBounds(tsMs int64) (int64, int64) {
	t := time.UnixMilli(tsMs).Local()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start.UnixMilli(), end.UnixMilli()
}

// DailyUpsert records a current-price observation, keeping at most one
// history point per market per calendar day: if a point already exists within
// the day of tsMs its probability and timestamp are overwritten in place,
// otherwise a new point is inserted.
//
// The read-then-write pair is not guarded at the day level: two concurrent
// upserts for the same market and day can both miss and both insert. The
// scheduler is the single writer and never runs two cycles for one market at
// once; the unique index on (market_id, timestamp_ms) only covers exact
// timestamps.
func (m *Merger) DailyUpsert(ctx context.Context, marketID, tsMs int64, probability int, source domain.Source) error {
	fromMs, toMs := dayBounds(tsMs)

	existing, err := m.history.FirstInRange(ctx, marketID, fromMs, toMs)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return m.history.Insert(ctx, domain.HistoryPoint{
				MarketID:    marketID,
				TimestampMs: tsMs,
				Probability: probability,
				Source:      source,
			})
		}
		return fmt.Errorf("daily upsert for market %d: %w", marketID, err)
	}

	return m.history.UpdatePoint(ctx, existing.ID, probability, tsMs)
}

// convertPoints maps upstream samples (epoch seconds, probability fractions)
// to storable history points (epoch milliseconds, integer percentages).
func convertPoints(marketID int64, raw []domain.RawPoint, source domain.Source) []domain.HistoryPoint {
	points := make([]domain.HistoryPoint, 0, len(raw))
	for _, rp := range raw {
		points = append(points, domain.HistoryPoint{
			MarketID:    marketID,
			TimestampMs: rp.T * 1000,
			Probability: RoundProbability(rp.P),
			Source:      source,
		})
	}
	return points
}

// ReplaceHistory discards the market's entire stored history and loads the
// fetched range as authoritative. Delete and insert are separate statements:
// an insert failure after deletion leaves the market with partial history and
// is surfaced to the caller, which flags the cycle report as critical.
func (m *Merger) ReplaceHistory(ctx context.Context, marketID int64, raw []domain.RawPoint, source domain.Source) (int, error) {
	if err := m.history.DeleteByMarket(ctx, marketID); err != nil {
		return 0, fmt.Errorf("replace history for market %d: %w", marketID, err)
	}

	points := convertPoints(marketID, raw, source)
	if err := m.history.InsertBatch(ctx, points); err != nil {
		return 0, fmt.Errorf("%w: market %d: %v", domain.ErrPartialHistory, marketID, err)
	}
	return len(points), nil
}

// AppendMissing inserts only the fetched points whose exact millisecond
// timestamp is not already stored for the market, returning the number
// inserted. Re-submitting an overlapping fetch window is a no-op for the
// overlap, making the operation idempotent.
func (m *Merger) AppendMissing(ctx context.Context, marketID int64, raw []domain.RawPoint, source domain.Source) (int, error) {
	points := convertPoints(marketID, raw, source)
	inserted, err := m.history.InsertMissing(ctx, points)
	if err != nil {
		return inserted, fmt.Errorf("append history for market %d: %w", marketID, err)
	}
	return inserted, nil
}
