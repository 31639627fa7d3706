package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/domain"
)

// UpdateLogStore implements domain.UpdateLogStore using PostgreSQL. One row
// is written per persisted significant probability change.
type UpdateLogStore struct {
	pool *pgxpool.Pool
}

// NewUpdateLogStore creates a new UpdateLogStore backed by the given pool.
func NewUpdateLogStore(pool *pgxpool.Pool) *UpdateLogStore {
	return &UpdateLogStore{pool: pool}
}

// Insert appends one significant-change entry.
func (s *UpdateLogStore) Insert(ctx context.Context, e domain.UpdateLogEntry) error {
	const query = `
		INSERT INTO update_log (market_id, old_probability, new_probability, source)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, query,
		e.MarketID, e.OldProbability, e.NewProbability, string(e.Source))
	if err != nil {
		return fmt.Errorf("postgres: insert update log for market %d: %w", e.MarketID, err)
	}
	return nil
}

// ListRecent returns the most recent entries, newest first.
func (s *UpdateLogStore) ListRecent(ctx context.Context, limit int) ([]domain.UpdateLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, market_id, old_probability, new_probability, source, created_at
		FROM update_log
		ORDER BY created_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list update log: %w", err)
	}
	defer rows.Close()

	var entries []domain.UpdateLogEntry
	for rows.Next() {
		var e domain.UpdateLogEntry
		var source string
		if err := rows.Scan(&e.ID, &e.MarketID, &e.OldProbability, &e.NewProbability, &source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan update log entry: %w", err)
		}
		e.Source = domain.Source(source)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list update log rows: %w", err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.UpdateLogStore = (*UpdateLogStore)(nil)
