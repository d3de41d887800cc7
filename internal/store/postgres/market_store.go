package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polymind/polymind/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `condition_id, slug, question, token_id_1, token_id_2,
	outcome_1, outcome_2, status, winning_outcome,
	created_block, resolved_block, volume, created_at, updated_at`

// Upsert inserts or updates a single market keyed by condition id. A
// re-applied registration never downgrades a resolved market back to open.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	if len(m.TokenIDs) != 2 || len(m.Outcomes) != 2 {
		return fmt.Errorf("postgres: market %s is not binary", m.ConditionID)
	}

	const query = `
		INSERT INTO markets (
			condition_id, slug, question, token_id_1, token_id_2,
			outcome_1, outcome_2, status, winning_outcome,
			created_block, volume, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, NOW()
		)
		ON CONFLICT (condition_id) DO UPDATE SET
			slug       = COALESCE(NULLIF(EXCLUDED.slug, ''), markets.slug),
			question   = COALESCE(NULLIF(EXCLUDED.question, ''), markets.question),
			token_id_1 = EXCLUDED.token_id_1,
			token_id_2 = EXCLUDED.token_id_2,
			outcome_1  = EXCLUDED.outcome_1,
			outcome_2  = EXCLUDED.outcome_2,
			volume     = GREATEST(markets.volume, EXCLUDED.volume),
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		m.ConditionID, m.Slug, m.Question,
		m.TokenIDs[0], m.TokenIDs[1],
		m.Outcomes[0], m.Outcomes[1],
		string(m.Status), m.WinningOutcome,
		m.CreatedBlock, m.Volume, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ConditionID, err)
	}
	return nil
}

// MarkResolved settles a market. Already-resolved markets are left
// untouched so replays stay idempotent.
func (s *MarketStore) MarkResolved(ctx context.Context, conditionID string, winningOutcome int, block uint64) error {
	const query = `
		UPDATE markets SET
			status          = $2,
			winning_outcome = $3,
			resolved_block  = $4,
			updated_at      = NOW()
		WHERE condition_id = $1 AND status != $2`

	tag, err := s.pool.Exec(ctx, query,
		conditionID, string(domain.MarketStatusResolved), winningOutcome, block)
	if err != nil {
		return fmt.Errorf("postgres: resolve market %s: %w", conditionID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM markets WHERE condition_id = $1)",
			conditionID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check market %s: %w", conditionID, err)
		}
		if !exists {
			return fmt.Errorf("postgres: resolve market %s: %w", conditionID, domain.ErrNotFound)
		}
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	m.TokenIDs = make([]string, 2)
	m.Outcomes = make([]string, 2)
	err := row.Scan(
		&m.ConditionID, &m.Slug, &m.Question,
		&m.TokenIDs[0], &m.TokenIDs[1],
		&m.Outcomes[0], &m.Outcomes[1],
		&status, &m.WinningOutcome,
		&m.CreatedBlock, &m.ResolvedBlock, &m.Volume,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

// GetByConditionID retrieves a market by its condition id.
func (s *MarketStore) GetByConditionID(ctx context.Context, conditionID string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE condition_id = $1`, conditionID)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", conditionID, err)
	}
	return m, nil
}

// GetByTokenID retrieves the market owning either outcome token.
func (s *MarketStore) GetByTokenID(ctx context.Context, tokenID string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE token_id_1 = $1 OR token_id_2 = $1`, tokenID)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by token %s: %w", tokenID, err)
	}
	return m, nil
}

// List returns markets ordered by creation block ascending, so a startup
// replay registers them in chain order.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets`
	args := []any{}
	argIdx := 1
	conj := " WHERE"

	if opts.Since != nil {
		query += fmt.Sprintf("%s created_at >= $%d", conj, argIdx)
		args = append(args, *opts.Since)
		argIdx++
		conj = " AND"
	}
	if opts.Until != nil {
		query += fmt.Sprintf("%s created_at <= $%d", conj, argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_block ASC, condition_id ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

var _ domain.MarketStore = (*MarketStore)(nil)
