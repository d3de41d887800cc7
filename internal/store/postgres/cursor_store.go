package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polymind/polymind/internal/domain"
)

// CursorStore persists the single ingestion cursor row.
type CursorStore struct {
	pool *pgxpool.Pool
}

// NewCursorStore creates a CursorStore backed by the given connection pool.
func NewCursorStore(pool *pgxpool.Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Load returns the persisted cursor. The second return is false when no
// cursor has ever been saved.
func (s *CursorStore) Load(ctx context.Context) (domain.IndexCursor, bool, error) {
	var cursor domain.IndexCursor
	err := s.pool.QueryRow(ctx,
		"SELECT block, log_index FROM indexer_state WHERE id = 1",
	).Scan(&cursor.Block, &cursor.LogIndex)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.IndexCursor{}, false, nil
		}
		return domain.IndexCursor{}, false, fmt.Errorf("postgres: load cursor: %w", err)
	}
	return cursor, true, nil
}

// Save durably records the cursor. The caller only calls this after the
// batch it covers has been fully applied.
func (s *CursorStore) Save(ctx context.Context, cursor domain.IndexCursor) error {
	const query = `
		INSERT INTO indexer_state (id, block, log_index, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			block      = EXCLUDED.block,
			log_index  = EXCLUDED.log_index,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, cursor.Block, cursor.LogIndex); err != nil {
		return fmt.Errorf("postgres: save cursor %d/%d: %w", cursor.Block, cursor.LogIndex, err)
	}
	return nil
}

var _ domain.CursorStore = (*CursorStore)(nil)
