package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, question, source, external_ref, external_id,
	probability, previous_probability, last_updated, active, created_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var source string
	err := row.Scan(
		&m.ID, &m.Question, &source, &m.ExternalRef, &m.ExternalID,
		&m.Probability, &m.PreviousProbability, &m.LastUpdated,
		&m.Active, &m.CreatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Source = domain.Source(source)
	return m, nil
}

// Upsert inserts or updates a market, keyed by (source, external_ref).
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			question, source, external_ref, external_id,
			probability, previous_probability, last_updated, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source, external_ref) DO UPDATE SET
			question    = EXCLUDED.question,
			external_id = EXCLUDED.external_id,
			active      = EXCLUDED.active`

	lastUpdated := m.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, query,
		m.Question, string(m.Source), m.ExternalRef, m.ExternalID,
		m.Probability, m.PreviousProbability, lastUpdated, m.Active,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s/%s: %w", m.Source, m.ExternalRef, err)
	}
	return nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id int64) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// ListActive returns active markets, optionally filtered by source.
func (s *MarketStore) ListActive(ctx context.Context, source domain.Source) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE active`
	args := []any{}
	if source != "" {
		query += ` AND source = $1`
		args = append(args, string(source))
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan active market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active markets rows: %w", err)
	}
	return markets, nil
}

// UpdateProbability persists a new current probability together with the
// prior value.
func (s *MarketStore) UpdateProbability(ctx context.Context, id int64, probability, previous int, at time.Time) error {
	const query = `
		UPDATE markets
		SET probability = $2, previous_probability = $3, last_updated = $4
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, probability, previous, at)
	if err != nil {
		return fmt.Errorf("postgres: update probability for market %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetExternalID stores the canonical upstream identifier once resolved.
func (s *MarketStore) SetExternalID(ctx context.Context, id int64, externalID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET external_id = $2 WHERE id = $1`, id, externalID)
	if err != nil {
		return fmt.Errorf("postgres: set external id for market %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
