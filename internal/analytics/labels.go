package analytics

import "github.com/polymind/polymind/internal/domain"

// LabelPolicy holds the thresholds behind heuristic trader labels. Labeling
// is a pure function of a profile snapshot, so it stays deterministic and
// testable in isolation.
type LabelPolicy struct {
	WhaleVolume         float64 // total notional above which an address is a whale
	ActiveTrades        int     // trade count above which an address is active
	SniperEdge          float64 // avg price within this distance of 0 or 1
	DiversifiedMarkets  int     // distinct markets above which an address is diversified
	HighFrequencyPerDay float64 // trades per active day above which the label applies
	LeaningRatio        int     // buy/sell dominance multiple
	NewcomerTrades      int     // trade count below which an address is a newcomer
	HighWinRate         float64 // win rate above which the label applies
	MinTradesForRate    int     // win-rate label needs this much history
}

// DefaultLabelPolicy mirrors the production thresholds.
func DefaultLabelPolicy() LabelPolicy {
	return LabelPolicy{
		WhaleVolume:         10_000,
		ActiveTrades:        50,
		SniperEdge:          0.15,
		DiversifiedMarkets:  5,
		HighFrequencyPerDay: 10,
		LeaningRatio:        2,
		NewcomerTrades:      5,
		HighWinRate:         0.6,
		MinTradesForRate:    10,
	}
}

// Labels derives heuristic tags from a profile. The output order is fixed.
func Labels(p domain.TraderProfile, policy LabelPolicy) []string {
	var labels []string

	if p.Volume() >= policy.WhaleVolume {
		labels = append(labels, "whale")
	}
	if p.TradeCount >= policy.ActiveTrades {
		labels = append(labels, "active")
	}
	if p.TradeCount > 0 && (p.AvgPrice <= policy.SniperEdge || p.AvgPrice >= 1-policy.SniperEdge) {
		labels = append(labels, "sniper")
	}
	if p.MarketCount >= policy.DiversifiedMarkets {
		labels = append(labels, "diversified")
	}
	if p.TradeCount > 0 && !p.LastTrade.IsZero() {
		// Active span in days, floored at one so a single-day burst still
		// counts against a full day.
		days := p.LastTrade.Sub(p.FirstTrade).Hours() / 24
		if days < 1 {
			days = 1
		}
		if float64(p.TradeCount)/days >= policy.HighFrequencyPerDay {
			labels = append(labels, "high_frequency")
		}
	}
	if p.BuyCount > p.SellCount*policy.LeaningRatio {
		labels = append(labels, "buy_leaning")
	} else if p.SellCount > p.BuyCount*policy.LeaningRatio {
		labels = append(labels, "sell_leaning")
	}
	if p.TradeCount > 0 && p.TradeCount < policy.NewcomerTrades {
		labels = append(labels, "newcomer")
	}
	if p.TradeCount >= policy.MinTradesForRate && p.WinRate >= policy.HighWinRate {
		labels = append(labels, "high_win_rate")
	}

	return labels
}
