package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/polymind/polymind/internal/analytics"
	"github.com/polymind/polymind/internal/domain"
)

// TraderAnalytics is the profile view the trader handler reads.
type TraderAnalytics interface {
	Profile(address string) (domain.TraderProfile, bool)
}

// TraderHandler serves per-address profile endpoints.
type TraderHandler struct {
	analytics TraderAnalytics
	trades    domain.TradeStore
	policy    analytics.LabelPolicy
	logger    *slog.Logger
}

// NewTraderHandler creates a TraderHandler.
func NewTraderHandler(a TraderAnalytics, trades domain.TradeStore, policy analytics.LabelPolicy, logger *slog.Logger) *TraderHandler {
	return &TraderHandler{
		analytics: a,
		trades:    trades,
		policy:    policy,
		logger:    logger,
	}
}

type traderResponse struct {
	Profile domain.TraderProfile `json:"profile"`
	Labels  []string             `json:"labels"`
	Recent  []domain.Trade       `json:"recent_trades"`
}

// GetTrader returns an address's profile, heuristic labels and recent
// trades. Addresses are case-insensitive.
// GET /api/traders/{address}?limit=20
func (h *TraderHandler) GetTrader(w http.ResponseWriter, r *http.Request) {
	address := strings.ToLower(r.PathValue("address"))
	if !validAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	profile, ok := h.analytics.Profile(address)
	if !ok {
		writeError(w, http.StatusNotFound, "trader not found")
		return
	}

	labels := analytics.Labels(profile, h.policy)
	if labels == nil {
		labels = []string{}
	}

	opts := parseListOpts(r)
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	recent, err := h.trades.ListByWallet(r.Context(), address, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list wallet trades failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if recent == nil {
		recent = []domain.Trade{}
	}

	writeJSON(w, http.StatusOK, traderResponse{
		Profile: profile,
		Labels:  labels,
		Recent:  recent,
	})
}

// validAddress checks the 0x-prefixed 20-byte hex shape.
func validAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
