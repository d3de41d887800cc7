package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PriceScale is the fixed-point scale for prices and token sizes. Both USDC
// and Polymarket outcome tokens carry 6 decimals on chain.
const PriceScale = 1_000_000

// TradeSide is the taker-visible direction of a fill relative to the outcome
// token: Buy means the maker paid USDC for tokens.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Trade is an immutable decoded OrderFilled event. It is uniquely keyed by
// (TxHash, LogIndex); re-fetched duplicates are ignored by that key.
type Trade struct {
	TxHash      string
	LogIndex    uint
	Block       uint64
	OrderHash   string
	Maker       string
	Taker       string
	TokenID     string
	ConditionID string
	Outcome     int
	Side        TradeSide
	PriceTicks  int64 // fixed-point price in 1e6 ticks, 0 < ticks < 1e6 for a valid fill
	SizeUnits   int64 // fixed-point token amount, 1e6 units
	FeeUnits    int64
	Timestamp   time.Time
}

// Key returns the dedup key for the trade.
func (t Trade) Key() string {
	return fmt.Sprintf("%s:%d", t.TxHash, t.LogIndex)
}

// Price returns the display price from fixed-point ticks.
func (t Trade) Price() float64 {
	return float64(t.PriceTicks) / PriceScale
}

// Size returns the display token amount from fixed-point units.
func (t Trade) Size() float64 {
	return float64(t.SizeUnits) / PriceScale
}

// Notional returns the USDC value of the fill.
func (t Trade) Notional() float64 {
	return t.Price() * t.Size()
}

// RawLog is an undecoded on-chain log as delivered by a ChainLogSource,
// already annotated with its block timestamp.
type RawLog struct {
	Address   common.Address
	Topics    []common.Hash
	Data      []byte
	Block     uint64
	LogIndex  uint
	TxHash    common.Hash
	Timestamp time.Time
}

// IndexCursor is the durable bookmark of ingestion progress: the last block
// whose events have all been applied, and the last log index within it.
// It is monotonically non-decreasing.
type IndexCursor struct {
	Block    uint64
	LogIndex uint
}

// Before reports whether c precedes other in block order.
func (c IndexCursor) Before(other IndexCursor) bool {
	if c.Block != other.Block {
		return c.Block < other.Block
	}
	return c.LogIndex < other.LogIndex
}
