package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/domain"
)

// HistoryStore implements domain.HistoryStore using PostgreSQL. The unique
// index on (market_id, timestamp_ms) is what makes InsertMissing idempotent;
// all merge policy above these primitives lives in the sync package.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore creates a new HistoryStore backed by the given connection pool.
func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

const historyCols = `id, market_id, timestamp_ms, probability, source`

// Insert stores a single history point.
func (s *HistoryStore) Insert(ctx context.Context, p domain.HistoryPoint) error {
	const query = `
		INSERT INTO history_points (market_id, timestamp_ms, probability, source)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, query, p.MarketID, p.TimestampMs, p.Probability, string(p.Source))
	if err != nil {
		return fmt.Errorf("postgres: insert history point for market %d: %w", p.MarketID, err)
	}
	return nil
}

// FirstInRange returns the earliest point for the market whose timestamp
// falls inside [fromMs, toMs], or domain.ErrNotFound.
func (s *HistoryStore) FirstInRange(ctx context.Context, marketID, fromMs, toMs int64) (domain.HistoryPoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+historyCols+` FROM history_points
		WHERE market_id = $1 AND timestamp_ms BETWEEN $2 AND $3
		ORDER BY timestamp_ms
		LIMIT 1`,
		marketID, fromMs, toMs,
	)

	var p domain.HistoryPoint
	var source string
	err := row.Scan(&p.ID, &p.MarketID, &p.TimestampMs, &p.Probability, &source)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.HistoryPoint{}, domain.ErrNotFound
		}
		return domain.HistoryPoint{}, fmt.Errorf("postgres: first history point in range for market %d: %w", marketID, err)
	}
	p.Source = domain.Source(source)
	return p, nil
}

// UpdatePoint overwrites an existing point's probability and timestamp.
func (s *HistoryStore) UpdatePoint(ctx context.Context, id int64, probability int, timestampMs int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE history_points SET probability = $2, timestamp_ms = $3 WHERE id = $1`,
		id, probability, timestampMs,
	)
	if err != nil {
		return fmt.Errorf("postgres: update history point %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// InsertMissing inserts points whose exact millisecond timestamp is not
// already stored for their market. Duplicates are skipped via ON CONFLICT DO
// NOTHING; the return value counts rows actually inserted.
func (s *HistoryStore) InsertMissing(ctx context.Context, points []domain.HistoryPoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO history_points (market_id, timestamp_ms, probability, source)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (market_id, timestamp_ms) DO NOTHING`

	for _, p := range points {
		batch.Queue(query, p.MarketID, p.TimestampMs, p.Probability, string(p.Source))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for i := range points {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert missing history point %d: %w", i, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// DeleteByMarket removes every history point for a market.
func (s *HistoryStore) DeleteByMarket(ctx context.Context, marketID int64) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM history_points WHERE market_id = $1`, marketID)
	if err != nil {
		return fmt.Errorf("postgres: delete history for market %d: %w", marketID, err)
	}
	return nil
}

// InsertBatch inserts multiple history points using a pgx batch.
func (s *HistoryStore) InsertBatch(ctx context.Context, points []domain.HistoryPoint) error {
	if len(points) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO history_points (market_id, timestamp_ms, probability, source)
		VALUES ($1, $2, $3, $4)`

	for _, p := range points {
		batch.Queue(query, p.MarketID, p.TimestampMs, p.Probability, string(p.Source))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range points {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert history batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByMarket returns all history points for a market, oldest first.
func (s *HistoryStore) ListByMarket(ctx context.Context, marketID int64) ([]domain.HistoryPoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+historyCols+` FROM history_points
		WHERE market_id = $1
		ORDER BY timestamp_ms`,
		marketID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list history for market %d: %w", marketID, err)
	}
	defer rows.Close()

	var points []domain.HistoryPoint
	for rows.Next() {
		var p domain.HistoryPoint
		var source string
		if err := rows.Scan(&p.ID, &p.MarketID, &p.TimestampMs, &p.Probability, &source); err != nil {
			return nil, fmt.Errorf("postgres: scan history point: %w", err)
		}
		p.Source = domain.Source(source)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list history rows: %w", err)
	}
	return points, nil
}

// CountByMarket returns the number of stored points for a market.
func (s *HistoryStore) CountByMarket(ctx context.Context, marketID int64) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM history_points WHERE market_id = $1`, marketID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count history for market %d: %w", marketID, err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.HistoryStore = (*HistoryStore)(nil)
