// Package decoder turns raw CTF Exchange logs into typed domain events. It
// is a pure function layer: no I/O, no mutation beyond a read-only token
// registry lookup.
package decoder

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/polymind/polymind/internal/domain"
	"github.com/polymind/polymind/internal/registry"
)

// Event signatures of the CTF Exchange and Conditional Tokens contracts.
// Topic hashes are derived from the canonical signature strings rather than
// hardcoded, so a typo fails loudly in tests instead of silently matching
// nothing.
var (
	topicOrderFilled = crypto.Keccak256Hash([]byte(
		"OrderFilled(bytes32,address,address,uint256,uint256,uint256,uint256,uint256)"))
	topicTokenRegistered = crypto.Keccak256Hash([]byte(
		"TokenRegistered(uint256,uint256,bytes32)"))
	topicConditionResolution = crypto.Keccak256Hash([]byte(
		"ConditionResolution(bytes32,address,bytes32,uint256,uint256[])"))
)

const wordSize = 32

// Decoder decodes raw logs using a token registry to resolve trade
// semantics. The registry is only ever read.
type Decoder struct {
	registry *registry.Registry
}

// New creates a Decoder backed by the given registry.
func New(reg *registry.Registry) *Decoder {
	return &Decoder{registry: reg}
}

// Topics returns the topic0 hashes of every recognized event, for use as a
// log filter.
func Topics() []common.Hash {
	return []common.Hash{topicOrderFilled, topicTokenRegistered, topicConditionResolution}
}

// Kind classifies a raw log by signature without decoding its payload. The
// indexer uses it to order market events ahead of trades within a batch.
func (d *Decoder) Kind(lg domain.RawLog) domain.EventKind {
	if len(lg.Topics) == 0 {
		return domain.EventUnrecognized
	}
	switch lg.Topics[0] {
	case topicOrderFilled:
		return domain.EventTradeFilled
	case topicTokenRegistered:
		return domain.EventMarketCreated
	case topicConditionResolution:
		return domain.EventMarketResolved
	default:
		return domain.EventUnrecognized
	}
}

// Decode dispatches on the log's event signature. Logs with an unknown
// signature yield an Unrecognized event, not an error; malformed payloads of
// a known signature yield ErrMalformedLog.
func (d *Decoder) Decode(lg domain.RawLog) (domain.Event, error) {
	if len(lg.Topics) == 0 {
		return unrecognized(lg), nil
	}

	switch lg.Topics[0] {
	case topicOrderFilled:
		return d.decodeOrderFilled(lg)
	case topicTokenRegistered:
		return d.decodeTokenRegistered(lg)
	case topicConditionResolution:
		return d.decodeConditionResolution(lg)
	default:
		return unrecognized(lg), nil
	}
}

func unrecognized(lg domain.RawLog) domain.Event {
	return domain.Event{
		Kind:     domain.EventUnrecognized,
		Block:    lg.Block,
		LogIndex: lg.LogIndex,
	}
}

// decodeOrderFilled parses an OrderFilled fill.
//
// topics: [sig, orderHash, maker, taker]
// data:   makerAssetId, takerAssetId, makerAmountFilled, takerAmountFilled, fee
//
// Asset id zero is the USDC collateral side; the other side is the outcome
// token. The maker paying USDC means the maker bought tokens.
func (d *Decoder) decodeOrderFilled(lg domain.RawLog) (domain.Event, error) {
	if len(lg.Topics) < 4 {
		return domain.Event{}, fmt.Errorf("decoder: order filled topics %d: %w", len(lg.Topics), domain.ErrMalformedLog)
	}
	if len(lg.Data) < 5*wordSize {
		return domain.Event{}, fmt.Errorf("decoder: order filled data %d bytes: %w", len(lg.Data), domain.ErrMalformedLog)
	}

	makerAsset := word(lg.Data, 0)
	takerAsset := word(lg.Data, 1)
	makerAmount := word(lg.Data, 2)
	takerAmount := word(lg.Data, 3)
	fee := word(lg.Data, 4)

	makerPaysUSDC := makerAsset.Sign() == 0
	takerPaysUSDC := takerAsset.Sign() == 0

	var (
		side     domain.TradeSide
		tokenID  *big.Int
		usdcRaw  *big.Int
		tokenRaw *big.Int
	)
	switch {
	case makerPaysUSDC && !takerPaysUSDC:
		side, tokenID, usdcRaw, tokenRaw = domain.SideBuy, takerAsset, makerAmount, takerAmount
	case takerPaysUSDC && !makerPaysUSDC:
		side, tokenID, usdcRaw, tokenRaw = domain.SideSell, makerAsset, takerAmount, makerAmount
	default:
		// Token-for-token or zero-for-zero fills are not collateral trades.
		return domain.Event{}, fmt.Errorf("decoder: fill without a collateral side: %w", domain.ErrMalformedLog)
	}

	ticks, err := priceTicks(usdcRaw, tokenRaw)
	if err != nil {
		return domain.Event{}, err
	}

	id := tokenID.String()
	tok, ok := d.registry.Resolve(id)
	if !ok {
		return domain.Event{}, fmt.Errorf("decoder: token %s: %w", id, domain.ErrUnknownToken)
	}

	trade := &domain.Trade{
		TxHash:      lg.TxHash.Hex(),
		LogIndex:    lg.LogIndex,
		Block:       lg.Block,
		OrderHash:   lg.Topics[1].Hex(),
		Maker:       topicAddress(lg.Topics[2]),
		Taker:       topicAddress(lg.Topics[3]),
		TokenID:     id,
		ConditionID: tok.ConditionID,
		Outcome:     tok.Outcome,
		Side:        side,
		PriceTicks:  ticks,
		SizeUnits:   clampInt64(tokenRaw),
		FeeUnits:    clampInt64(fee),
		Timestamp:   lg.Timestamp,
	}

	return domain.Event{
		Kind:     domain.EventTradeFilled,
		Block:    lg.Block,
		LogIndex: lg.LogIndex,
		Trade:    trade,
	}, nil
}

// decodeTokenRegistered parses a market registration.
//
// topics: [sig, token0, token1, conditionId]
func (d *Decoder) decodeTokenRegistered(lg domain.RawLog) (domain.Event, error) {
	if len(lg.Topics) < 4 {
		return domain.Event{}, fmt.Errorf("decoder: token registered topics %d: %w", len(lg.Topics), domain.ErrMalformedLog)
	}

	token0 := new(big.Int).SetBytes(lg.Topics[1][:]).String()
	token1 := new(big.Int).SetBytes(lg.Topics[2][:]).String()

	market := &domain.Market{
		ConditionID:    lg.Topics[3].Hex(),
		TokenIDs:       []string{token0, token1},
		Outcomes:       []string{"Yes", "No"},
		Status:         domain.MarketStatusOpen,
		WinningOutcome: -1,
		CreatedBlock:   lg.Block,
		CreatedAt:      lg.Timestamp,
		UpdatedAt:      lg.Timestamp,
	}

	return domain.Event{
		Kind:     domain.EventMarketCreated,
		Block:    lg.Block,
		LogIndex: lg.LogIndex,
		Market:   market,
	}, nil
}

// decodeConditionResolution parses a market settlement.
//
// topics: [sig, conditionId, oracle, questionId]
// data:   outcomeSlotCount, payoutNumerators offset, length, numerators...
//
// The winning outcome is the index holding the largest payout numerator;
// ties resolve to the lowest index.
func (d *Decoder) decodeConditionResolution(lg domain.RawLog) (domain.Event, error) {
	if len(lg.Topics) < 4 {
		return domain.Event{}, fmt.Errorf("decoder: condition resolution topics %d: %w", len(lg.Topics), domain.ErrMalformedLog)
	}
	if len(lg.Data) < 3*wordSize {
		return domain.Event{}, fmt.Errorf("decoder: condition resolution data %d bytes: %w", len(lg.Data), domain.ErrMalformedLog)
	}

	count := word(lg.Data, 2)
	if !count.IsInt64() || count.Int64() < 2 {
		return domain.Event{}, fmt.Errorf("decoder: %d payout slots: %w", count.Int64(), domain.ErrMalformedLog)
	}
	n := int(count.Int64())
	if len(lg.Data) < (3+n)*wordSize {
		return domain.Event{}, fmt.Errorf("decoder: truncated payout vector: %w", domain.ErrMalformedLog)
	}

	winning := -1
	var best *big.Int
	for i := 0; i < n; i++ {
		numerator := word(lg.Data, 3+i)
		if numerator.Sign() > 0 && (best == nil || numerator.Cmp(best) > 0) {
			winning = i
			best = numerator
		}
	}
	if winning < 0 {
		return domain.Event{}, fmt.Errorf("decoder: all-zero payout vector: %w", domain.ErrMalformedLog)
	}

	res := &domain.MarketResolution{
		ConditionID:    lg.Topics[1].Hex(),
		Oracle:         topicAddress(lg.Topics[2]),
		QuestionID:     lg.Topics[3].Hex(),
		WinningOutcome: winning,
		Block:          lg.Block,
		LogIndex:       lg.LogIndex,
	}

	return domain.Event{
		Kind:       domain.EventMarketResolved,
		Block:      lg.Block,
		LogIndex:   lg.LogIndex,
		Resolution: res,
	}, nil
}

// priceTicks converts a raw USDC/token amount pair into a fixed-point price.
// Both sides carry 6 decimals, so price = usdcRaw * 1e6 / tokenRaw ticks.
// A valid fill prices strictly inside (0,1).
func priceTicks(usdcRaw, tokenRaw *big.Int) (int64, error) {
	if tokenRaw.Sign() == 0 {
		return 0, fmt.Errorf("decoder: zero token amount: %w", domain.ErrMalformedLog)
	}

	ticks := new(big.Int).Mul(usdcRaw, big.NewInt(domain.PriceScale))
	ticks.Quo(ticks, tokenRaw)

	if !ticks.IsInt64() || ticks.Int64() <= 0 || ticks.Int64() >= domain.PriceScale {
		return 0, fmt.Errorf("decoder: price %s ticks: %w", ticks.String(), domain.ErrInvalidPrice)
	}
	return ticks.Int64(), nil
}

func word(data []byte, i int) *big.Int {
	return new(big.Int).SetBytes(data[i*wordSize : (i+1)*wordSize])
}

func topicAddress(h common.Hash) string {
	return strings.ToLower(common.BytesToAddress(h[12:]).Hex())
}

func clampInt64(v *big.Int) int64 {
	if !v.IsInt64() {
		return 0
	}
	return v.Int64()
}
