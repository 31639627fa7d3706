package domain

import (
	"context"
	"time"
)

// MarketStore persists market records.
type MarketStore interface {
	Upsert(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id int64) (Market, error)
	// ListActive returns active markets; an empty source means all sources.
	ListActive(ctx context.Context, source Source) ([]Market, error)
	// UpdateProbability persists a new current probability, recording the
	// prior value as PreviousProbability and bumping LastUpdated.
	UpdateProbability(ctx context.Context, id int64, probability, previous int, at time.Time) error
	// SetExternalID stores the canonical upstream identifier once resolved.
	SetExternalID(ctx context.Context, id int64, externalID string) error
	Count(ctx context.Context) (int64, error)
}

// HistoryStore persists the per-market probability time series. Merge policy
// lives in the sync package; these are the storage primitives it composes.
type HistoryStore interface {
	Insert(ctx context.Context, p HistoryPoint) error
	// FirstInRange returns the earliest point for the market with
	// fromMs <= timestamp_ms <= toMs, or ErrNotFound.
	FirstInRange(ctx context.Context, marketID, fromMs, toMs int64) (HistoryPoint, error)
	UpdatePoint(ctx context.Context, id int64, probability int, timestampMs int64) error
	// InsertMissing inserts points whose exact millisecond timestamp is not
	// already stored for their market, returning the number inserted.
	InsertMissing(ctx context.Context, points []HistoryPoint) (int, error)
	DeleteByMarket(ctx context.Context, marketID int64) error
	InsertBatch(ctx context.Context, points []HistoryPoint) error
	ListByMarket(ctx context.Context, marketID int64) ([]HistoryPoint, error)
	CountByMarket(ctx context.Context, marketID int64) (int64, error)
}

// SourceHealthStore persists per-source fetch health.
type SourceHealthStore interface {
	// Get returns the health record for a source, or ErrNotFound before the
	// first attempt.
	Get(ctx context.Context, source Source) (SourceHealth, error)
	Upsert(ctx context.Context, h SourceHealth) error
}

// UpdateLogStore persists the append-only significant-change log.
type UpdateLogStore interface {
	Insert(ctx context.Context, e UpdateLogEntry) error
	ListRecent(ctx context.Context, limit int) ([]UpdateLogEntry, error)
}

// ReportLog is the time-bounded report sink. Entries older than the
// retention window (24h) are evicted on append.
type ReportLog interface {
	Append(ctx context.Context, r UpdateReport) error
	// Last returns the most recent report for a cycle, or ErrNotFound.
	Last(ctx context.Context, cycle Cycle) (UpdateReport, error)
	// Window returns reports from the last d, oldest first.
	Window(ctx context.Context, d time.Duration) ([]UpdateReport, error)
}
