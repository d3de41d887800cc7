// Package analytics maintains the derived state of the ingestion pipeline:
// trader profiles, per-market price vectors, arbitrage detection and
// smart-money scoring. All state is a materialized view over the trade
// stream and can be rebuilt by replay.
package analytics

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polymind/polymind/internal/domain"
)

// Config holds the analytics policy parameters.
type Config struct {
	// ArbThreshold is the minimum |1 - sum(outcome prices)| that counts as
	// an arbitrage opportunity.
	ArbThreshold float64
	// SmartMoneyWindow is the trailing window for smart-money candidacy.
	SmartMoneyWindow time.Duration
	// SmartMoneyMinTrades filters out addresses with too little history.
	SmartMoneyMinTrades int
}

// DefaultConfig returns the default analytics policy.
func DefaultConfig() Config {
	return Config{
		ArbThreshold:        0.02,
		SmartMoneyWindow:    30 * 24 * time.Hour,
		SmartMoneyMinTrades: 5,
	}
}

// marketState tracks the latest observed prices and traded volume of one
// market.
type marketState struct {
	market  domain.Market
	prices  map[int]int64 // outcome index -> latest price ticks
	priceAt map[int]time.Time
	volume  float64
	trades  int
}

// openTrade is a position-side record retained until its market resolves,
// at which point it is attributed as won or lost exactly once.
type openTrade struct {
	address    string
	outcome    int
	buy        bool
	priceTicks int64
	ts         time.Time
}

// profileState is the mutable aggregate behind a TraderProfile.
type profileState struct {
	tradeCount int
	buyCount   int
	sellCount  int
	buyVolume  float64
	sellVolume float64
	priceSum   float64
	markets    map[string]struct{}
	wins       int
	losses     int
	first      time.Time
	last       time.Time
}

// Engine is the single-writer analytics aggregate. The indexer apply loop is
// the only mutator; read queries take the read lock and copy out snapshots,
// so they never block the apply loop for longer than one aggregate read.
type Engine struct {
	mu     sync.RWMutex
	cfg    Config
	logger *slog.Logger

	markets  map[string]*marketState
	profiles map[string]*profileState
	open     map[string][]openTrade // condition id -> unattributed trades
	applied  map[string]struct{}    // trade keys, absorbs re-fetched duplicates

	tradesApplied  int64
	tradesDeduped  int64
	unknownMarkets int64
}

// NewEngine creates an empty engine with the given policy.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if cfg.ArbThreshold <= 0 {
		cfg.ArbThreshold = DefaultConfig().ArbThreshold
	}
	if cfg.SmartMoneyWindow <= 0 {
		cfg.SmartMoneyWindow = DefaultConfig().SmartMoneyWindow
	}
	if cfg.SmartMoneyMinTrades <= 0 {
		cfg.SmartMoneyMinTrades = DefaultConfig().SmartMoneyMinTrades
	}
	return &Engine{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "analytics")),
		markets:  make(map[string]*marketState),
		profiles: make(map[string]*profileState),
		open:     make(map[string][]openTrade),
		applied:  make(map[string]struct{}),
	}
}

// RegisterMarket records a market. Registration is idempotent by condition
// id and never downgrades a resolved market back to open, so replay after a
// crash is safe.
func (e *Engine) RegisterMarket(market domain.Market) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.markets[market.ConditionID]; ok {
		if market.Slug != "" {
			existing.market.Slug = market.Slug
		}
		if market.Question != "" {
			existing.market.Question = market.Question
		}
		return
	}

	e.markets[market.ConditionID] = &marketState{
		market:  market,
		prices:  make(map[int]int64),
		priceAt: make(map[int]time.Time),
	}
}

// ApplyTrade folds one decoded trade into the aggregates. Re-applying a
// trade with a seen (tx hash, log index) key is a no-op. A trade against an
// unregistered market is a contract violation by the caller: it is reported
// via ErrUnknownMarket and skipped without corrupting state.
//
// When the trade moves a market's price vector into arbitrage territory the
// detected opportunity is returned so the caller can publish an alert.
func (e *Engine) ApplyTrade(t domain.Trade) (*domain.ArbOpportunity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, dup := e.applied[t.Key()]; dup {
		e.tradesDeduped++
		return nil, nil
	}

	ms, ok := e.markets[t.ConditionID]
	if !ok {
		e.unknownMarkets++
		return nil, fmt.Errorf("analytics: trade %s market %s: %w", t.Key(), t.ConditionID, domain.ErrUnknownMarket)
	}

	e.applied[t.Key()] = struct{}{}
	e.tradesApplied++

	ms.prices[t.Outcome] = t.PriceTicks
	ms.priceAt[t.Outcome] = t.Timestamp
	ms.volume += t.Notional()
	ms.trades++

	// The maker trades in the fill's direction, the taker opposite.
	e.applyLeg(ms, t, t.Maker, t.Side == domain.SideBuy)
	e.applyLeg(ms, t, t.Taker, t.Side != domain.SideBuy)

	if opp, ok := e.computeArbitrage(ms, t.Timestamp); ok {
		return &opp, nil
	}
	return nil, nil
}

// applyLeg updates one party's profile and win-attribution state.
func (e *Engine) applyLeg(ms *marketState, t domain.Trade, address string, buy bool) {
	p, ok := e.profiles[address]
	if !ok {
		p = &profileState{markets: make(map[string]struct{})}
		e.profiles[address] = p
	}

	p.tradeCount++
	if buy {
		p.buyCount++
		p.buyVolume += t.Notional()
	} else {
		p.sellCount++
		p.sellVolume += t.Notional()
	}
	p.priceSum += t.Price()
	p.markets[t.ConditionID] = struct{}{}
	if p.first.IsZero() || t.Timestamp.Before(p.first) {
		p.first = t.Timestamp
	}
	if t.Timestamp.After(p.last) {
		p.last = t.Timestamp
	}

	if ms.market.Resolved() {
		// Late fill on a settled market: attribute immediately.
		e.attribute(p, buy, t.Outcome == ms.market.WinningOutcome)
		return
	}

	e.open[t.ConditionID] = append(e.open[t.ConditionID], openTrade{
		address:    address,
		outcome:    t.Outcome,
		buy:        buy,
		priceTicks: t.PriceTicks,
		ts:         t.Timestamp,
	})
}

func (e *Engine) attribute(p *profileState, buy, outcomeWon bool) {
	// Buying the winner or selling a loser is a win.
	if buy == outcomeWon {
		p.wins++
	} else {
		p.losses++
	}
}

// ApplyMarketResolved settles a market: every retained trade of that market
// is attributed as won or lost exactly once and the market becomes
// immutable.
func (e *Engine) ApplyMarketResolved(res domain.MarketResolution) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ms, ok := e.markets[res.ConditionID]
	if !ok {
		e.unknownMarkets++
		return fmt.Errorf("analytics: resolution for market %s: %w", res.ConditionID, domain.ErrUnknownMarket)
	}
	if ms.market.Resolved() {
		return nil
	}

	ms.market.Status = domain.MarketStatusResolved
	ms.market.WinningOutcome = res.WinningOutcome
	ms.market.ResolvedBlock = res.Block

	for _, ot := range e.open[res.ConditionID] {
		if p, ok := e.profiles[ot.address]; ok {
			e.attribute(p, ot.buy, ot.outcome == res.WinningOutcome)
		}
	}
	delete(e.open, res.ConditionID)

	return nil
}

// Profile returns a consistent snapshot of one trader's aggregate, with the
// win rate blended from resolved attribution and the mark-to-last-price
// estimate for still-open trades.
func (e *Engine) Profile(address string) (domain.TraderProfile, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.profiles[address]
	if !ok {
		return domain.TraderProfile{}, false
	}

	estWins, estTotal := e.estimateOpen(address)
	return e.snapshot(address, p, estWins, estTotal), true
}

// snapshot builds a TraderProfile from locked state. Caller holds the lock.
func (e *Engine) snapshot(address string, p *profileState, estWins, estTotal int) domain.TraderProfile {
	prof := domain.TraderProfile{
		Address:        address,
		TradeCount:     p.tradeCount,
		BuyCount:       p.buyCount,
		SellCount:      p.sellCount,
		BuyVolume:      p.buyVolume,
		SellVolume:     p.sellVolume,
		MarketCount:    len(p.markets),
		ResolvedWins:   p.wins,
		ResolvedLosses: p.losses,
		FirstTrade:     p.first,
		LastTrade:      p.last,
	}
	if p.tradeCount > 0 {
		prof.AvgPrice = p.priceSum / float64(p.tradeCount)
	}
	if denom := p.wins + p.losses + estTotal; denom > 0 {
		prof.WinRate = float64(p.wins+estWins) / float64(denom)
	}
	return prof
}

// estimateOpen marks an address's unresolved trades to the latest price:
// a buy below the current price, or a sell above it, counts as a
// provisional win. Caller holds the lock.
func (e *Engine) estimateOpen(address string) (wins, total int) {
	for conditionID, trades := range e.open {
		ms := e.markets[conditionID]
		for _, ot := range trades {
			if ot.address != address {
				continue
			}
			current, priced := ms.prices[ot.outcome]
			if !priced {
				continue
			}
			total++
			if (ot.buy && ot.priceTicks < current) || (!ot.buy && ot.priceTicks > current) {
				wins++
			}
		}
	}
	return wins, total
}

// Market returns a snapshot of one market with its latest price vector.
func (e *Engine) Market(conditionID string) (domain.Market, []float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ms, ok := e.markets[conditionID]
	if !ok {
		return domain.Market{}, nil, false
	}
	m := ms.market
	m.Volume = ms.volume
	return m, ms.priceVector(), true
}

// priceVector returns the latest price per outcome, NaN-free: outcomes with
// no observed trade report 0.
func (ms *marketState) priceVector() []float64 {
	out := make([]float64, len(ms.market.TokenIDs))
	for i := range out {
		if ticks, ok := ms.prices[i]; ok {
			out[i] = float64(ticks) / domain.PriceScale
		}
	}
	return out
}

// HotMarkets returns up to limit markets ordered by traded volume. Ties
// break by condition id for a deterministic listing.
func (e *Engine) HotMarkets(limit int) []domain.Market {
	e.mu.RLock()
	out := make([]domain.Market, 0, len(e.markets))
	for _, ms := range e.markets {
		m := ms.market
		m.Volume = ms.volume
		out = append(out, m)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Volume != out[j].Volume {
			return out[i].Volume > out[j].Volume
		}
		return out[i].ConditionID < out[j].ConditionID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats reports operational counters for the status endpoint.
type Stats struct {
	Markets        int
	Traders        int
	TradesApplied  int64
	TradesDeduped  int64
	UnknownMarkets int64
}

// Stats returns current engine counters.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Stats{
		Markets:        len(e.markets),
		Traders:        len(e.profiles),
		TradesApplied:  e.tradesApplied,
		TradesDeduped:  e.tradesDeduped,
		UnknownMarkets: e.unknownMarkets,
	}
}

// computeArbitrage checks one market's price vector against the threshold.
// Caller holds the lock.
func (e *Engine) computeArbitrage(ms *marketState, at time.Time) (domain.ArbOpportunity, bool) {
	if ms.market.Resolved() {
		return domain.ArbOpportunity{}, false
	}
	if len(ms.prices) < len(ms.market.TokenIDs) {
		// Not every outcome has traded yet; a partial vector says nothing.
		return domain.ArbOpportunity{}, false
	}

	var sum float64
	prices := make([]float64, len(ms.market.TokenIDs))
	for i := range prices {
		prices[i] = float64(ms.prices[i]) / domain.PriceScale
		sum += prices[i]
	}

	magnitude := 1 - sum
	direction := domain.ArbBuyAll
	if magnitude < 0 {
		magnitude = -magnitude
		direction = domain.ArbSellAll
	}
	if magnitude <= e.cfg.ArbThreshold {
		return domain.ArbOpportunity{}, false
	}

	return domain.ArbOpportunity{
		ID:          uuid.NewString(),
		ConditionID: ms.market.ConditionID,
		Slug:        ms.market.Slug,
		Prices:      prices,
		Sum:         sum,
		Magnitude:   magnitude,
		Direction:   direction,
		DetectedAt:  at,
	}, true
}

// FindArbitrage recomputes the arbitrage state of one market against the
// latest applied prices.
func (e *Engine) FindArbitrage(conditionID string) (domain.ArbOpportunity, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ms, ok := e.markets[conditionID]
	if !ok {
		return domain.ArbOpportunity{}, false
	}
	return e.computeArbitrage(ms, time.Now().UTC())
}

// ListArbitrage scans every open market and returns current opportunities
// ordered by magnitude descending, condition id ascending on ties.
func (e *Engine) ListArbitrage(limit int) []domain.ArbOpportunity {
	e.mu.RLock()
	now := time.Now().UTC()
	var out []domain.ArbOpportunity
	for _, ms := range e.markets {
		if opp, ok := e.computeArbitrage(ms, now); ok {
			out = append(out, opp)
		}
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Magnitude != out[j].Magnitude {
			return out[i].Magnitude > out[j].Magnitude
		}
		return out[i].ConditionID < out[j].ConditionID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
