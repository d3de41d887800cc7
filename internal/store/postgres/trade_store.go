package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polymind/polymind/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeCols = `tx_hash, log_index, block, order_hash, maker, taker,
	token_id, condition_id, outcome, side, price_ticks, size_units,
	fee_units, timestamp`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side string
		if err := rows.Scan(
			&t.TxHash, &t.LogIndex, &t.Block, &t.OrderHash,
			&t.Maker, &t.Taker, &t.TokenID, &t.ConditionID,
			&t.Outcome, &side, &t.PriceTicks, &t.SizeUnits,
			&t.FeeUnits, &t.Timestamp,
		); err != nil {
			return nil, err
		}
		t.Side = domain.TradeSide(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertBatch inserts multiple trades in one round trip. Duplicates by
// (tx_hash, log_index) are silently skipped, so re-applied batches after a
// cursor save failure do not double-write.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO trades (
			tx_hash, log_index, block, order_hash, maker, taker,
			token_id, condition_id, outcome, side,
			price_ticks, size_units, fee_units, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14
		) ON CONFLICT (tx_hash, log_index) DO NOTHING`

	for _, t := range trades {
		batch.Queue(query,
			t.TxHash, t.LogIndex, t.Block, t.OrderHash,
			t.Maker, t.Taker, t.TokenID, t.ConditionID,
			t.Outcome, string(t.Side),
			t.PriceTicks, t.SizeUnits, t.FeeUnits, t.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByMarket returns a market's trades, most recent first.
func (s *TradeStore) ListByMarket(ctx context.Context, conditionID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeCols + ` FROM trades WHERE condition_id = $1`
	args := []any{conditionID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY block DESC, log_index DESC"

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
		return nil, fmt.Errorf("postgres: list trades for market %s: %w", conditionID, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades for market %s: %w", conditionID, err)
	}
	return trades, nil
}

// ListByWallet returns trades where the address was maker or taker, most
// recent first. The address must already be lowercased.
func (s *TradeStore) ListByWallet(ctx context.Context, address string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeCols + ` FROM trades WHERE (maker = $1 OR taker = $1)`
	args := []any{address}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY block DESC, log_index DESC"

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
		return nil, fmt.Errorf("postgres: list trades for wallet %s: %w", address, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades for wallet %s: %w", address, err)
	}
	return trades, nil
}

// ListAscending returns trades strictly after the cursor in chain order.
// The startup replay pages through the full history with it.
func (s *TradeStore) ListAscending(ctx context.Context, after domain.IndexCursor, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 1000
	}

	const query = `
		SELECT ` + tradeCols + ` FROM trades
		WHERE block > $1 OR (block = $1 AND log_index > $2)
		ORDER BY block ASC, log_index ASC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, after.Block, after.LogIndex, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades after %d/%d: %w", after.Block, after.LogIndex, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan ascending trades: %w", err)
	}
	return trades, nil
}

// ListBefore returns trades older than the given time and strictly after
// the cursor, in chain order. The archiver pages cold trades out to blob
// storage with it; the cursor keeps paging exact when one block timestamp
// spans a page boundary.
func (s *TradeStore) ListBefore(ctx context.Context, cutoff time.Time, after domain.IndexCursor, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 1000
	}

	const query = `
		SELECT ` + tradeCols + ` FROM trades
		WHERE timestamp < $1
		  AND (block > $2 OR (block = $2 AND log_index > $3))
		ORDER BY block ASC, log_index ASC
		LIMIT $4`

	rows, err := s.pool.Query(ctx, query, cutoff, after.Block, after.LogIndex, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", cutoff, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades before %s: %w", cutoff, err)
	}
	return trades, nil
}

// DeleteBefore removes trades older than the given time at or below the
// cursor and reports how many rows went away.
func (s *TradeStore) DeleteBefore(ctx context.Context, cutoff time.Time, upTo domain.IndexCursor) (int64, error) {
	const query = `
		DELETE FROM trades
		WHERE timestamp < $1
		  AND (block < $2 OR (block = $2 AND log_index <= $3))`

	tag, err := s.pool.Exec(ctx, query, cutoff, upTo.Block, upTo.LogIndex)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of stored trades.
func (s *TradeStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM trades").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count trades: %w", err)
	}
	return count, nil
}

var _ domain.TradeStore = (*TradeStore)(nil)
