package analytics

import (
	"sort"
	"time"

	"github.com/polymind/polymind/internal/domain"
)

// Composite score weights. Win rate dominates, volume rewards conviction,
// recency keeps stale performers out of the top ranks.
const (
	weightWinRate = 0.5
	weightVolume  = 0.3
	weightRecency = 0.2
)

// SmartMoney ranks addresses active within the trailing window by a
// composite of win rate, volume and recency. The ranking is deterministic:
// identical trade history yields an identical ordering, with ties broken by
// higher volume and then lexical address order.
func (e *Engine) SmartMoney(window time.Duration, limit int) []domain.SmartMoneyEntry {
	if window <= 0 {
		window = e.cfg.SmartMoneyWindow
	}

	e.mu.RLock()
	now := time.Now().UTC()
	cutoff := now.Add(-window)

	// One pass over the open set amortizes the mark-to-last-price win
	// estimate across every candidate.
	type openStat struct{ wins, total int }
	openByAddr := make(map[string]openStat)
	for conditionID, trades := range e.open {
		ms := e.markets[conditionID]
		for _, ot := range trades {
			current, priced := ms.prices[ot.outcome]
			if !priced {
				continue
			}
			st := openByAddr[ot.address]
			st.total++
			if (ot.buy && ot.priceTicks < current) || (!ot.buy && ot.priceTicks > current) {
				st.wins++
			}
			openByAddr[ot.address] = st
		}
	}

	var entries []domain.SmartMoneyEntry
	var maxVolume float64
	for address, p := range e.profiles {
		if p.tradeCount < e.cfg.SmartMoneyMinTrades || p.last.Before(cutoff) {
			continue
		}
		st := openByAddr[address]
		prof := e.snapshot(address, p, st.wins, st.total)
		entries = append(entries, domain.SmartMoneyEntry{
			Address:    address,
			WinRate:    prof.WinRate,
			Volume:     prof.Volume(),
			TradeCount: prof.TradeCount,
			LastTrade:  prof.LastTrade,
		})
		if prof.Volume() > maxVolume {
			maxVolume = prof.Volume()
		}
	}
	e.mu.RUnlock()

	for i := range entries {
		volumeNorm := 0.0
		if maxVolume > 0 {
			volumeNorm = entries[i].Volume / maxVolume
		}
		recency := 1 - now.Sub(entries[i].LastTrade).Seconds()/window.Seconds()
		if recency < 0 {
			recency = 0
		}
		entries[i].Score = weightWinRate*entries[i].WinRate +
			weightVolume*volumeNorm +
			weightRecency*recency
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].Volume != entries[j].Volume {
			return entries[i].Volume > entries[j].Volume
		}
		return entries[i].Address < entries[j].Address
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
