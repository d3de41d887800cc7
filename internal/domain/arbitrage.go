package domain

import "time"

// ArbDirection says which way to trade every outcome of a mispriced market.
type ArbDirection string

const (
	// ArbSellAll: outcome prices sum above 1, sell the full outcome set.
	ArbSellAll ArbDirection = "sell_all"
	// ArbBuyAll: outcome prices sum below 1, buy the full outcome set.
	ArbBuyAll ArbDirection = "buy_all"
)

// ArbOpportunity is a detected mispricing where the latest outcome prices of
// a market do not sum to 1. It has no lifecycle beyond the recomputation
// that produced it.
type ArbOpportunity struct {
	ID          string
	ConditionID string
	Slug        string
	Prices      []float64 // latest observed price per outcome, index-aligned
	Sum         float64
	Magnitude   float64 // |1 - Sum|
	Direction   ArbDirection
	DetectedAt  time.Time
}
