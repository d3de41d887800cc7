package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/polymind/polymind/internal/domain"
)

// MarketAnalytics is the slice of the analytics engine the market handler
// reads: live price vectors and the volume ranking.
type MarketAnalytics interface {
	Market(conditionID string) (domain.Market, []float64, bool)
	HotMarkets(limit int) []domain.Market
}

// TokenResolver supplies the ordered outcome token ids of a market, used to
// assemble cached price vectors for markets outside the live engine window.
type TokenResolver interface {
	TokensOf(conditionID string) ([]string, bool)
}

// MarketHandler serves the market read endpoints.
type MarketHandler struct {
	markets   domain.MarketStore
	trades    domain.TradeStore
	analytics MarketAnalytics
	prices    domain.PriceCache // optional
	tokens    TokenResolver     // optional
	logger    *slog.Logger
}

// NewMarketHandler creates a MarketHandler. prices and tokens may be nil;
// without them store-only markets are served without price vectors.
func NewMarketHandler(markets domain.MarketStore, trades domain.TradeStore, analytics MarketAnalytics, prices domain.PriceCache, tokens TokenResolver, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets:   markets,
		trades:    trades,
		analytics: analytics,
		prices:    prices,
		tokens:    tokens,
		logger:    logger,
	}
}

type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns indexed markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	total, err := h.markets.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count markets")
		return
	}

	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

type marketDetailResponse struct {
	domain.Market
	Prices []float64 `json:"prices,omitempty"`
}

// GetMarket returns one market with its live price vector.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	// Prefer the live engine view; fall back to the store for markets that
	// predate the in-memory replay window.
	if market, prices, ok := h.analytics.Market(id); ok {
		writeJSON(w, http.StatusOK, marketDetailResponse{Market: market, Prices: prices})
		return
	}

	market, err := h.markets.GetByConditionID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}
	writeJSON(w, http.StatusOK, marketDetailResponse{
		Market: market,
		Prices: h.cachedPrices(r, market),
	})
}

// cachedPrices assembles a price vector from the last fills recorded in the
// price cache, for markets that predate the live engine window. Tokens that
// never traded stay zero; a fully unknown market yields no vector.
func (h *MarketHandler) cachedPrices(r *http.Request, m domain.Market) []float64 {
	if h.prices == nil {
		return nil
	}
	ids := m.TokenIDs
	if h.tokens != nil {
		if live, ok := h.tokens.TokensOf(m.ConditionID); ok {
			ids = live
		}
	}
	if len(ids) == 0 {
		return nil
	}

	known, err := h.prices.GetPrices(r.Context(), ids)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: price cache read failed",
			slog.String("market_id", m.ConditionID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if len(known) == 0 {
		return nil
	}

	prices := make([]float64, len(ids))
	for i, id := range ids {
		prices[i] = known[id]
	}
	return prices
}

type tokenPriceResponse struct {
	TokenID     string    `json:"token_id"`
	Price       float64   `json:"price"`
	UpdatedAt   time.Time `json:"updated_at"`
	ConditionID string    `json:"condition_id,omitempty"`
	Question    string    `json:"question,omitempty"`
	Slug        string    `json:"slug,omitempty"`
}

// GetTokenPrice returns the last traded price of one outcome token with its
// owning market, when known.
// GET /api/tokens/{id}
func (h *MarketHandler) GetTokenPrice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing token id")
		return
	}
	if h.prices == nil {
		writeError(w, http.StatusNotFound, "price cache disabled")
		return
	}

	price, ts, err := h.prices.GetPrice(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "token has no recorded price")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get token price failed",
			slog.String("token_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get price")
		return
	}

	resp := tokenPriceResponse{TokenID: id, Price: price, UpdatedAt: ts}
	if market, err := h.markets.GetByTokenID(r.Context(), id); err == nil {
		resp.ConditionID = market.ConditionID
		resp.Question = market.Question
		resp.Slug = market.Slug
	}
	writeJSON(w, http.StatusOK, resp)
}

// HotMarkets returns the top markets by traded volume.
// GET /api/markets/hot?limit=10
func (h *MarketHandler) HotMarkets(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	markets := h.analytics.HotMarkets(limit)
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets})
}

// ListMarketTrades returns a market's trade history, most recent first.
// GET /api/markets/{id}/trades?limit=50&offset=0
func (h *MarketHandler) ListMarketTrades(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}
	opts := parseListOpts(r)

	trades, err := h.trades.ListByMarket(r.Context(), id, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list market trades failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trades": trades,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}
