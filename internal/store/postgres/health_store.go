package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/domain"
)

// SourceHealthStore implements domain.SourceHealthStore using PostgreSQL.
type SourceHealthStore struct {
	pool *pgxpool.Pool
}

// NewSourceHealthStore creates a new SourceHealthStore backed by the given pool.
func NewSourceHealthStore(pool *pgxpool.Pool) *SourceHealthStore {
	return &SourceHealthStore{pool: pool}
}

// Get returns the health record for a source, or domain.ErrNotFound before
// the first recorded attempt.
func (s *SourceHealthStore) Get(ctx context.Context, source domain.Source) (domain.SourceHealth, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT source, last_attempt, last_success, last_error, success_rate,
		       total_attempts, success_count, avg_response_ms, status
		FROM source_health WHERE source = $1`,
		string(source),
	)

	var h domain.SourceHealth
	var src, status string
	err := row.Scan(
		&src, &h.LastAttempt, &h.LastSuccess, &h.LastError, &h.SuccessRate,
		&h.TotalAttempts, &h.SuccessCount, &h.AvgResponseMs, &status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SourceHealth{}, domain.ErrNotFound
		}
		return domain.SourceHealth{}, fmt.Errorf("postgres: get source health %s: %w", source, err)
	}
	h.Source = domain.Source(src)
	h.Status = domain.HealthStatus(status)
	return h, nil
}

// Upsert writes the full health record for a source.
func (s *SourceHealthStore) Upsert(ctx context.Context, h domain.SourceHealth) error {
	const query = `
		INSERT INTO source_health (
			source, last_attempt, last_success, last_error, success_rate,
			total_attempts, success_count, avg_response_ms, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (source) DO UPDATE SET
			last_attempt    = EXCLUDED.last_attempt,
			last_success    = EXCLUDED.last_success,
			last_error      = EXCLUDED.last_error,
			success_rate    = EXCLUDED.success_rate,
			total_attempts  = EXCLUDED.total_attempts,
			success_count   = EXCLUDED.success_count,
			avg_response_ms = EXCLUDED.avg_response_ms,
			status          = EXCLUDED.status`

	_, err := s.pool.Exec(ctx, query,
		string(h.Source), h.LastAttempt, h.LastSuccess, h.LastError, h.SuccessRate,
		h.TotalAttempts, h.SuccessCount, h.AvgResponseMs, string(h.Status),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert source health %s: %w", h.Source, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SourceHealthStore = (*SourceHealthStore)(nil)
