package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusResolved MarketStatus = "resolved"
)

// Market is a prediction market backed by a CTF condition. It is created by
// a TokenRegistered event and mutated only by a ConditionResolution event;
// once resolved it is immutable.
type Market struct {
	ConditionID    string
	Slug           string
	Question       string
	TokenIDs       []string // ordered outcome token ids (decimal uint256 strings), len >= 2
	Outcomes       []string // display names per outcome, e.g. ["Yes","No"]
	Status         MarketStatus
	WinningOutcome int // outcome index; -1 while open
	CreatedBlock   uint64
	ResolvedBlock  uint64
	Volume         float64 // cumulative traded USDC
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Resolved reports whether the market has settled.
func (m Market) Resolved() bool {
	return m.Status == MarketStatusResolved
}

// Token is one outcome token of a market. Tokens are created alongside their
// market and are read-only afterward.
type Token struct {
	ID          string
	ConditionID string
	Outcome     int
}
