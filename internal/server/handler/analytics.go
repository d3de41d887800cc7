package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/polymind/polymind/internal/domain"
)

// RankingAnalytics is the ranking view the analytics handler reads.
type RankingAnalytics interface {
	SmartMoney(window time.Duration, limit int) []domain.SmartMoneyEntry
	ListArbitrage(limit int) []domain.ArbOpportunity
}

// AnalyticsHandler serves the smart money and arbitrage endpoints.
type AnalyticsHandler struct {
	analytics RankingAnalytics
	logger    *slog.Logger
}

// NewAnalyticsHandler creates an AnalyticsHandler.
func NewAnalyticsHandler(a RankingAnalytics, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analytics: a,
		logger:    logger,
	}
}

// SmartMoney returns the current smart money ranking.
// GET /api/smart-money?limit=20&window_days=30
func (h *AnalyticsHandler) SmartMoney(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 20
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	var window time.Duration
	if v := q.Get("window_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 365 {
			writeError(w, http.StatusBadRequest, "window_days must be in [1,365]")
			return
		}
		window = time.Duration(n) * 24 * time.Hour
	}

	entries := h.analytics.SmartMoney(window, limit)
	if entries == nil {
		entries = []domain.SmartMoneyEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"traders": entries})
}

// ListArbitrage returns the currently open arbitrage opportunities, widest
// mispricing first.
// GET /api/arbitrage?limit=50
func (h *AnalyticsHandler) ListArbitrage(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	opps := h.analytics.ListArbitrage(limit)
	if opps == nil {
		opps = []domain.ArbOpportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps})
}
