// Package indexer drives the ChainLogSource over successive block ranges,
// decodes the returned logs and applies them to the analytics engine in
// block order, advancing a durable cursor only after each batch has been
// fully applied.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/polymind/polymind/internal/analytics"
	"github.com/polymind/polymind/internal/decoder"
	"github.com/polymind/polymind/internal/domain"
	"github.com/polymind/polymind/internal/registry"
)

// State is the indexer's driver-loop state, exported for the status
// endpoint.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateApplying
	StateBackoff
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateApplying:
		return "applying"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// LogSource supplies raw logs for block ranges. Fetches fail with the
// domain fetch taxonomy: Timeout, RateLimited and Upstream are transient,
// InvalidRange is fatal to the cycle.
type LogSource interface {
	FetchLogs(ctx context.Context, fromBlock, toBlock uint64) ([]domain.RawLog, error)
	HeadBlock(ctx context.Context) (uint64, error)
}

// MarketEnricher adds off-chain metadata (slug, question) to a freshly
// created market. Enrichment is best-effort and never blocks apply.
type MarketEnricher interface {
	Enrich(ctx context.Context, market domain.Market) (domain.Market, error)
}

// Alerter receives detected arbitrage opportunities for operator
// notification.
type Alerter interface {
	ArbitrageAlert(ctx context.Context, opp domain.ArbOpportunity)
}

// Config holds the indexer loop parameters.
type Config struct {
	BatchSize       uint64        // blocks per fetch
	PollInterval    time.Duration // base delay once caught up to the head
	MaxPollInterval time.Duration // poll widens up to this while idle
	BackoffBase     time.Duration // first retry delay on a transient failure
	BackoffMax      time.Duration // retry delay cap
	StartBlock      uint64        // first block when no cursor is persisted
}

// DefaultConfig returns production loop parameters.
func DefaultConfig() Config {
	return Config{
		BatchSize:       1000,
		PollInterval:    3 * time.Second,
		MaxPollInterval: 60 * time.Second,
		BackoffBase:     time.Second,
		BackoffMax:      2 * time.Minute,
	}
}

// Indexer is the single sequential pipeline driver: fetch, decode, apply,
// advance cursor. Nothing else mutates the cursor, the registry or the
// engine.
type Indexer struct {
	source   LogSource
	decoder  *decoder.Decoder
	registry *registry.Registry
	engine   *analytics.Engine
	markets  domain.MarketStore
	trades   domain.TradeStore
	cursors  domain.CursorStore
	prices   domain.PriceCache // optional
	bus      domain.SignalBus  // optional
	enricher MarketEnricher    // optional
	alerter  Alerter           // optional

	cfg    Config
	logger *slog.Logger

	state       atomic.Int32
	cursorBlock atomic.Uint64
	headBlock   atomic.Uint64
	skippedLogs atomic.Int64
	appliedLogs atomic.Int64
	cursor      domain.IndexCursor
}

// Deps bundles the indexer's collaborators.
type Deps struct {
	Source   LogSource
	Decoder  *decoder.Decoder
	Registry *registry.Registry
	Engine   *analytics.Engine
	Markets  domain.MarketStore
	Trades   domain.TradeStore
	Cursors  domain.CursorStore
	Prices   domain.PriceCache
	Bus      domain.SignalBus
	Enricher MarketEnricher
	Alerter  Alerter
}

// New creates an Indexer.
func New(deps Deps, cfg Config, logger *slog.Logger) *Indexer {
	def := DefaultConfig()
	if cfg.BatchSize == 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxPollInterval < cfg.PollInterval {
		cfg.MaxPollInterval = def.MaxPollInterval
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = def.BackoffMax
	}

	return &Indexer{
		source:   deps.Source,
		decoder:  deps.Decoder,
		registry: deps.Registry,
		engine:   deps.Engine,
		markets:  deps.Markets,
		trades:   deps.Trades,
		cursors:  deps.Cursors,
		prices:   deps.Prices,
		bus:      deps.Bus,
		enricher: deps.Enricher,
		alerter:  deps.Alerter,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "indexer")),
	}
}

// Status is a point-in-time view of ingestion progress.
type Status struct {
	State       string `json:"state"`
	CursorBlock uint64 `json:"cursor_block"`
	HeadBlock   uint64 `json:"head_block"`
	Lag         uint64 `json:"lag"`
	Applied     int64  `json:"applied_logs"`
	Skipped     int64  `json:"skipped_logs"`
}

// Status returns current progress counters. Safe from any goroutine.
func (ix *Indexer) Status() Status {
	cursor := ix.cursorBlock.Load()
	head := ix.headBlock.Load()
	var lag uint64
	if head > cursor {
		lag = head - cursor
	}
	return Status{
		State:       State(ix.state.Load()).String(),
		CursorBlock: cursor,
		HeadBlock:   head,
		Lag:         lag,
		Applied:     ix.appliedLogs.Load(),
		Skipped:     ix.skippedLogs.Load(),
	}
}

func (ix *Indexer) setState(s State) {
	ix.state.Store(int32(s))
}

// Run executes the driver loop until ctx is cancelled. It returns a non-nil
// error only on a non-retryable failure; transient fetch errors back off
// and retry indefinitely.
func (ix *Indexer) Run(ctx context.Context) error {
	cursor, found, err := ix.cursors.Load(ctx)
	if err != nil {
		return fmt.Errorf("indexer: load cursor: %w", err)
	}
	if !found {
		cursor = domain.IndexCursor{Block: ix.cfg.StartBlock}
		ix.logger.Info("no persisted cursor, starting fresh", slog.Uint64("start_block", cursor.Block))
	} else {
		ix.logger.Info("resuming from cursor",
			slog.Uint64("block", cursor.Block),
			slog.Uint64("log_index", uint64(cursor.LogIndex)),
		)
	}
	ix.cursor = cursor
	ix.cursorBlock.Store(cursor.Block)

	poll := ix.cfg.PollInterval
	backoff := ix.cfg.BackoffBase

	for {
		if ctx.Err() != nil {
			ix.setState(StateStopped)
			ix.logger.Info("indexer stopped", slog.Uint64("cursor_block", ix.cursor.Block))
			return ctx.Err()
		}

		ix.setState(StateFetching)
		head, err := ix.source.HeadBlock(ctx)
		if err != nil {
			if !domain.RetryableFetch(err) {
				ix.setState(StateStopped)
				return fmt.Errorf("indexer: head block: %w", err)
			}
			backoff = ix.sleepBackoff(ctx, backoff, err)
			continue
		}
		ix.headBlock.Store(head)

		if head <= ix.cursor.Block {
			// Caught up. Widen the poll interval until new blocks appear.
			ix.setState(StateIdle)
			if !sleepCtx(ctx, poll) {
				continue
			}
			poll = minDuration(poll*2, ix.cfg.MaxPollInterval)
			continue
		}
		poll = ix.cfg.PollInterval

		fromBlock := ix.cursor.Block + 1
		toBlock := fromBlock + ix.cfg.BatchSize - 1
		if toBlock > head {
			toBlock = head
		}

		logs, err := ix.source.FetchLogs(ctx, fromBlock, toBlock)
		if err != nil {
			if !domain.RetryableFetch(err) {
				ix.setState(StateStopped)
				return fmt.Errorf("indexer: fetch [%d,%d]: %w", fromBlock, toBlock, err)
			}
			backoff = ix.sleepBackoff(ctx, backoff, err)
			continue
		}
		backoff = ix.cfg.BackoffBase

		ix.setState(StateApplying)
		lastBlock, lastIdx, err := ix.applyBatch(ctx, logs)
		if err != nil {
			// Persistence failure: the cursor must not advance. The same
			// range is re-fetched on the next tick; dedup absorbs replays.
			ix.logger.Error("batch apply failed, will retry range",
				slog.Uint64("from", fromBlock),
				slog.Uint64("to", toBlock),
				slog.String("error", err.Error()),
			)
			backoff = ix.sleepBackoff(ctx, backoff, err)
			continue
		}

		// The cursor covers all of [fromBlock, toBlock]. The log index is
		// only meaningful when the batch's last log sits in toBlock itself;
		// an earlier block's index would pair wrongly with toBlock.
		next := domain.IndexCursor{Block: toBlock}
		if lastBlock == toBlock {
			next.LogIndex = lastIdx
		}
		if err := ix.cursors.Save(ctx, next); err != nil {
			ix.logger.Error("cursor save failed, batch will be re-applied",
				slog.Uint64("block", next.Block),
				slog.String("error", err.Error()),
			)
			backoff = ix.sleepBackoff(ctx, backoff, err)
			continue
		}
		ix.cursor = next
		ix.cursorBlock.Store(next.Block)

		if len(logs) > 0 {
			ix.logger.Info("batch applied",
				slog.Uint64("from", fromBlock),
				slog.Uint64("to", toBlock),
				slog.Int("logs", len(logs)),
			)
		}
	}
}

// applyBatch decodes and applies one fetched batch. Within the batch,
// market events apply before trades so fills on a market created in the
// same batch resolve. It returns the position of the last log for the
// cursor.
func (ix *Indexer) applyBatch(ctx context.Context, logs []domain.RawLog) (lastBlock uint64, lastIdx uint, err error) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].Block != logs[j].Block {
			return logs[i].Block < logs[j].Block
		}
		return logs[i].LogIndex < logs[j].LogIndex
	})

	if n := len(logs); n > 0 {
		lastBlock = logs[n-1].Block
		lastIdx = logs[n-1].LogIndex
	}

	// Pass 1: market creation and resolution, in log order.
	for _, lg := range logs {
		switch ix.decoder.Kind(lg) {
		case domain.EventMarketCreated:
			if err := ix.applyMarketCreated(ctx, lg); err != nil {
				return 0, 0, err
			}
		case domain.EventMarketResolved:
			if err := ix.applyMarketResolved(ctx, lg); err != nil {
				return 0, 0, err
			}
		}
	}

	// Pass 2: trades.
	batch := make([]domain.Trade, 0, len(logs))
	for _, lg := range logs {
		if ix.decoder.Kind(lg) != domain.EventTradeFilled {
			continue
		}
		ev, err := ix.decoder.Decode(lg)
		if err != nil {
			if domain.DecodeSkippable(err) {
				ix.skippedLogs.Add(1)
				ix.logger.Warn("skipping undecodable trade log",
					slog.Uint64("block", lg.Block),
					slog.Uint64("log_index", uint64(lg.LogIndex)),
					slog.String("error", err.Error()),
				)
				continue
			}
			return 0, 0, fmt.Errorf("indexer: decode trade at %d/%d: %w", lg.Block, lg.LogIndex, err)
		}

		trade := *ev.Trade
		opp, err := ix.engine.ApplyTrade(trade)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownMarket) {
				// Should have been filtered by token resolution upstream;
				// report and keep the pipeline alive.
				ix.skippedLogs.Add(1)
				ix.logger.Error("trade for unknown market skipped",
					slog.String("trade", trade.Key()),
					slog.String("condition_id", trade.ConditionID),
				)
				continue
			}
			return 0, 0, fmt.Errorf("indexer: apply trade %s: %w", trade.Key(), err)
		}
		batch = append(batch, trade)
		ix.appliedLogs.Add(1)

		ix.publishTrade(ctx, trade)
		if opp != nil {
			ix.publishArbitrage(ctx, *opp)
		}
	}

	if len(batch) > 0 {
		if err := ix.trades.InsertBatch(ctx, batch); err != nil {
			return 0, 0, fmt.Errorf("indexer: persist %d trades: %w", len(batch), err)
		}
	}
	return lastBlock, lastIdx, nil
}

func (ix *Indexer) applyMarketCreated(ctx context.Context, lg domain.RawLog) error {
	ev, err := ix.decoder.Decode(lg)
	if err != nil {
		ix.skippedLogs.Add(1)
		ix.logger.Warn("skipping malformed market registration",
			slog.Uint64("block", lg.Block),
			slog.String("error", err.Error()),
		)
		return nil
	}

	market := *ev.Market
	if ix.enricher != nil {
		if enriched, err := ix.enricher.Enrich(ctx, market); err == nil {
			market = enriched
		} else {
			ix.logger.Debug("market enrichment failed",
				slog.String("condition_id", market.ConditionID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := ix.markets.Upsert(ctx, market); err != nil {
		return fmt.Errorf("indexer: persist market %s: %w", market.ConditionID, err)
	}
	ix.registry.Register(market)
	if !registry.VerifyBinaryTokenIDs(market.ConditionID, market.TokenIDs) {
		// Expected for neg-risk markets and non-USDC collateral.
		ix.logger.Debug("token ids do not match the usdc ctf derivation",
			slog.String("condition_id", market.ConditionID),
		)
	}
	ix.engine.RegisterMarket(market)
	ix.appliedLogs.Add(1)
	return nil
}

func (ix *Indexer) applyMarketResolved(ctx context.Context, lg domain.RawLog) error {
	ev, err := ix.decoder.Decode(lg)
	if err != nil {
		ix.skippedLogs.Add(1)
		ix.logger.Warn("skipping malformed resolution",
			slog.Uint64("block", lg.Block),
			slog.String("error", err.Error()),
		)
		return nil
	}

	res := *ev.Resolution
	if err := ix.markets.MarkResolved(ctx, res.ConditionID, res.WinningOutcome, res.Block); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Resolution for a condition we never saw created; nothing to
			// settle.
			ix.skippedLogs.Add(1)
			ix.logger.Warn("resolution for unknown market", slog.String("condition_id", res.ConditionID))
			return nil
		}
		return fmt.Errorf("indexer: persist resolution %s: %w", res.ConditionID, err)
	}
	if err := ix.engine.ApplyMarketResolved(res); err != nil {
		ix.logger.Warn("resolution not applied to engine",
			slog.String("condition_id", res.ConditionID),
			slog.String("error", err.Error()),
		)
	}
	ix.appliedLogs.Add(1)
	return nil
}

// publishTrade pushes the latest price into the cache and broadcasts the
// fill. Both are best-effort: read-side staleness is acceptable, ingestion
// ordering is not.
func (ix *Indexer) publishTrade(ctx context.Context, trade domain.Trade) {
	if ix.prices != nil {
		if err := ix.prices.SetPrice(ctx, trade.TokenID, trade.Price(), trade.Timestamp); err != nil {
			ix.logger.Warn("price cache update failed",
				slog.String("token_id", trade.TokenID),
				slog.String("error", err.Error()),
			)
		}
	}
	if ix.bus != nil {
		payload, err := json.Marshal(map[string]any{
			"event":        "trade",
			"tx_hash":      trade.TxHash,
			"log_index":    trade.LogIndex,
			"condition_id": trade.ConditionID,
			"outcome":      trade.Outcome,
			"side":         trade.Side,
			"price":        trade.Price(),
			"size":         trade.Size(),
			"timestamp":    trade.Timestamp.UTC().Format(time.RFC3339),
		})
		if err == nil {
			if err := ix.bus.Publish(ctx, "trades", payload); err != nil {
				ix.logger.Warn("trade broadcast failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (ix *Indexer) publishArbitrage(ctx context.Context, opp domain.ArbOpportunity) {
	ix.logger.Info("arbitrage detected",
		slog.String("condition_id", opp.ConditionID),
		slog.Float64("sum", opp.Sum),
		slog.Float64("magnitude", opp.Magnitude),
		slog.String("direction", string(opp.Direction)),
	)
	if ix.bus != nil {
		if payload, err := json.Marshal(opp); err == nil {
			if err := ix.bus.Publish(ctx, "arbitrage", payload); err != nil {
				ix.logger.Warn("arbitrage broadcast failed", slog.String("error", err.Error()))
			}
		}
	}
	if ix.alerter != nil {
		ix.alerter.ArbitrageAlert(ctx, opp)
	}
}

// sleepBackoff waits the current backoff delay and returns the next one,
// doubling up to the cap.
func (ix *Indexer) sleepBackoff(ctx context.Context, backoff time.Duration, cause error) time.Duration {
	ix.setState(StateBackoff)
	ix.logger.Warn("transient failure, backing off",
		slog.Duration("delay", backoff),
		slog.String("error", cause.Error()),
	)
	sleepCtx(ctx, backoff)
	return minDuration(backoff*2, ix.cfg.BackoffMax)
}

// sleepCtx waits d or until ctx is cancelled; it reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
