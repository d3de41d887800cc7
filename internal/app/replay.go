package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/polymind/polymind/internal/analytics"
	"github.com/polymind/polymind/internal/domain"
	"github.com/polymind/polymind/internal/registry"
)

const replayPageSize = 5000

// replay rebuilds the token registry and the analytics engine from the
// database. Markets load first so every replayed trade resolves, then
// trades stream back in chain order, then resolutions settle the markets
// that already closed. The end state matches what live ingestion of the
// same history would have produced.
func (a *App) replay(ctx context.Context, deps *Dependencies, reg *registry.Registry, engine *analytics.Engine) error {
	start := time.Now()

	var resolved []domain.Market
	var marketCount int
	for offset := 0; ; offset += replayPageSize {
		markets, err := deps.MarketStore.List(ctx, domain.ListOpts{Limit: replayPageSize, Offset: offset})
		if err != nil {
			return fmt.Errorf("load markets: %w", err)
		}
		for _, m := range markets {
			reg.Register(m)
			// Register open so replayed trades accumulate, settle below.
			open := m
			open.Status = domain.MarketStatusOpen
			open.WinningOutcome = -1
			engine.RegisterMarket(open)
			if m.Resolved() {
				resolved = append(resolved, m)
			}
		}
		marketCount += len(markets)
		if len(markets) < replayPageSize {
			break
		}
	}

	var tradeCount int64
	cursor := domain.IndexCursor{}
	for {
		trades, err := deps.TradeStore.ListAscending(ctx, cursor, replayPageSize)
		if err != nil {
			return fmt.Errorf("load trades after %d/%d: %w", cursor.Block, cursor.LogIndex, err)
		}
		if len(trades) == 0 {
			break
		}
		for _, t := range trades {
			if _, err := engine.ApplyTrade(t); err != nil {
				a.logger.Warn("replayed trade not applied",
					slog.String("trade", t.Key()),
					slog.String("error", err.Error()),
				)
			}
		}
		tradeCount += int64(len(trades))
		last := trades[len(trades)-1]
		cursor = domain.IndexCursor{Block: last.Block, LogIndex: last.LogIndex}
	}

	for _, m := range resolved {
		res := domain.MarketResolution{
			ConditionID:    m.ConditionID,
			WinningOutcome: m.WinningOutcome,
			Block:          m.ResolvedBlock,
		}
		if err := engine.ApplyMarketResolved(res); err != nil {
			a.logger.Warn("replayed resolution not applied",
				slog.String("condition_id", m.ConditionID),
				slog.String("error", err.Error()),
			)
		}
	}

	a.logger.Info("state replayed",
		slog.Int("markets", marketCount),
		slog.Int("resolved", len(resolved)),
		slog.Int64("trades", tradeCount),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}
