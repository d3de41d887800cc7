package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market metadata. Upserts are idempotent by
// condition id, so batch re-application after a crash is safe.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	MarkResolved(ctx context.Context, conditionID string, winningOutcome int, block uint64) error
	GetByConditionID(ctx context.Context, conditionID string) (Market, error)
	GetByTokenID(ctx context.Context, tokenID string) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// TradeStore persists decoded trade fills. InsertBatch must silently absorb
// duplicates on (tx_hash, log_index).
type TradeStore interface {
	InsertBatch(ctx context.Context, trades []Trade) error
	ListByMarket(ctx context.Context, conditionID string, opts ListOpts) ([]Trade, error)
	ListByWallet(ctx context.Context, wallet string, opts ListOpts) ([]Trade, error)
	// ListAscending returns trades in (block, log_index) order starting
	// strictly after the given cursor. Used to replay analytics state at
	// startup.
	ListAscending(ctx context.Context, after IndexCursor, limit int) ([]Trade, error)
	// ListBefore returns trades older than the cutoff and strictly after
	// the cursor, in (block, log_index) order. All fills in a block share
	// the block timestamp, so paging must key on the cursor, not time.
	ListBefore(ctx context.Context, before time.Time, after IndexCursor, limit int) ([]Trade, error)
	// DeleteBefore removes trades older than the cutoff at or below the
	// cursor position.
	DeleteBefore(ctx context.Context, before time.Time, upTo IndexCursor) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// CursorStore persists the indexer's resume point. Save failure is fatal to
// the batch's commit: the in-memory cursor must not advance past it.
type CursorStore interface {
	Load(ctx context.Context) (IndexCursor, bool, error)
	Save(ctx context.Context, cursor IndexCursor) error
}
