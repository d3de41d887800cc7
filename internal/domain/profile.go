package domain

import "time"

// TraderProfile is a materialized aggregate over an address's trade history.
// It is rebuildable from the trades table and never a source of truth.
type TraderProfile struct {
	Address        string
	TradeCount     int
	BuyCount       int
	SellCount      int
	BuyVolume      float64 // USDC notional bought
	SellVolume     float64 // USDC notional sold
	MarketCount    int     // distinct markets traded
	AvgPrice       float64
	WinRate        float64 // 0..1; resolved attribution blended with the unresolved estimate
	ResolvedWins   int
	ResolvedLosses int
	FirstTrade     time.Time
	LastTrade      time.Time
}

// Volume returns total USDC notional traded.
func (p TraderProfile) Volume() float64 {
	return p.BuyVolume + p.SellVolume
}

// SmartMoneyEntry is one row of the smart-money ranking.
type SmartMoneyEntry struct {
	Address    string
	Score      float64
	WinRate    float64
	Volume     float64
	TradeCount int
	LastTrade  time.Time
}
