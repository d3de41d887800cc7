package decoder

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/polymind/polymind/internal/domain"
	"github.com/polymind/polymind/internal/registry"
)

var (
	testConditionID = common.HexToHash("0x1234000000000000000000000000000000000000000000000000000000000001")
	testMaker       = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testTaker       = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

	yesToken = big.NewInt(111_222_333)
	noToken  = big.NewInt(444_555_666)
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	reg.Register(domain.Market{
		ConditionID: testConditionID.Hex(),
		TokenIDs:    []string{yesToken.String(), noToken.String()},
		Outcomes:    []string{"Yes", "No"},
		Status:      domain.MarketStatusOpen,
	})
	return reg
}

func addrTopic(addr string) common.Hash {
	return common.BytesToHash(common.HexToAddress(addr).Bytes())
}

func bigTopic(v *big.Int) common.Hash {
	var h common.Hash
	v.FillBytes(h[:])
	return h
}

func words(vals ...int64) []byte {
	out := make([]byte, 0, len(vals)*wordSize)
	for _, v := range vals {
		var w [wordSize]byte
		big.NewInt(v).FillBytes(w[:])
		out = append(out, w[:]...)
	}
	return out
}

// orderFilledLog builds a fill where the asset ids and amounts follow the
// on-chain ABI layout: makerAssetId, takerAssetId, makerAmountFilled,
// takerAmountFilled, fee.
func orderFilledLog(makerAsset, takerAsset *big.Int, makerAmount, takerAmount, fee int64) domain.RawLog {
	data := make([]byte, 0, 5*wordSize)
	for _, v := range []*big.Int{makerAsset, takerAsset, big.NewInt(makerAmount), big.NewInt(takerAmount), big.NewInt(fee)} {
		var w [wordSize]byte
		v.FillBytes(w[:])
		data = append(data, w[:]...)
	}
	return domain.RawLog{
		Topics: []common.Hash{
			topicOrderFilled,
			common.HexToHash("0xfeed000000000000000000000000000000000000000000000000000000000001"),
			addrTopic(testMaker),
			addrTopic(testTaker),
		},
		Data:      data,
		Block:     4100,
		LogIndex:  7,
		TxHash:    common.HexToHash("0xabc1"),
		Timestamp: time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestDecodeOrderFilledBuy(t *testing.T) {
	d := New(testRegistry(t))

	// Maker pays 0.6 USDC for 1 outcome token.
	ev, err := d.Decode(orderFilledLog(big.NewInt(0), yesToken, 600_000, 1_000_000, 100))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Kind != domain.EventTradeFilled {
		t.Fatalf("kind = %v, want trade_filled", ev.Kind)
	}

	tr := ev.Trade
	if tr.Side != domain.SideBuy {
		t.Errorf("side = %q, want buy", tr.Side)
	}
	if tr.PriceTicks != 600_000 {
		t.Errorf("price = %d ticks, want 600000", tr.PriceTicks)
	}
	if tr.SizeUnits != 1_000_000 {
		t.Errorf("size = %d units, want 1000000", tr.SizeUnits)
	}
	if tr.TokenID != yesToken.String() {
		t.Errorf("token = %s, want %s", tr.TokenID, yesToken)
	}
	if tr.ConditionID != testConditionID.Hex() {
		t.Errorf("condition = %s, want %s", tr.ConditionID, testConditionID.Hex())
	}
	if tr.Outcome != 0 {
		t.Errorf("outcome = %d, want 0", tr.Outcome)
	}
	if tr.Maker != testMaker || tr.Taker != testTaker {
		t.Errorf("parties = %s/%s, want %s/%s", tr.Maker, tr.Taker, testMaker, testTaker)
	}
	if tr.FeeUnits != 100 {
		t.Errorf("fee = %d, want 100", tr.FeeUnits)
	}
}

func TestDecodeOrderFilledSell(t *testing.T) {
	d := New(testRegistry(t))

	// Maker sells 2 No tokens for 0.7 USDC: price 0.35.
	ev, err := d.Decode(orderFilledLog(noToken, big.NewInt(0), 2_000_000, 700_000, 0))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	tr := ev.Trade
	if tr.Side != domain.SideSell {
		t.Errorf("side = %q, want sell", tr.Side)
	}
	if tr.PriceTicks != 350_000 {
		t.Errorf("price = %d ticks, want 350000", tr.PriceTicks)
	}
	if tr.Outcome != 1 {
		t.Errorf("outcome = %d, want 1", tr.Outcome)
	}
	if tr.SizeUnits != 2_000_000 {
		t.Errorf("size = %d units, want 2000000", tr.SizeUnits)
	}
}

func TestDecodeOrderFilledErrors(t *testing.T) {
	d := New(testRegistry(t))

	tests := []struct {
		name string
		lg   domain.RawLog
		want error
	}{
		{
			name: "unknown token",
			lg:   orderFilledLog(big.NewInt(0), big.NewInt(999), 500_000, 1_000_000, 0),
			want: domain.ErrUnknownToken,
		},
		{
			name: "token for token fill",
			lg:   orderFilledLog(yesToken, noToken, 1_000_000, 1_000_000, 0),
			want: domain.ErrMalformedLog,
		},
		{
			name: "zero for zero fill",
			lg:   orderFilledLog(big.NewInt(0), big.NewInt(0), 1_000_000, 1_000_000, 0),
			want: domain.ErrMalformedLog,
		},
		{
			name: "zero token amount",
			lg:   orderFilledLog(big.NewInt(0), yesToken, 500_000, 0, 0),
			want: domain.ErrMalformedLog,
		},
		{
			name: "price at one",
			lg:   orderFilledLog(big.NewInt(0), yesToken, 1_000_000, 1_000_000, 0),
			want: domain.ErrInvalidPrice,
		},
		{
			name: "price above one",
			lg:   orderFilledLog(big.NewInt(0), yesToken, 2_000_000, 1_000_000, 0),
			want: domain.ErrInvalidPrice,
		},
		{
			name: "price at zero",
			lg:   orderFilledLog(big.NewInt(0), yesToken, 0, 1_000_000, 0),
			want: domain.ErrInvalidPrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.Decode(tt.lg); !errors.Is(err, tt.want) {
				t.Errorf("Decode = %v, want %v", err, tt.want)
			}
			if !domain.DecodeSkippable(tt.want) {
				t.Errorf("%v should be skippable", tt.want)
			}
		})
	}
}

func TestDecodeOrderFilledTruncated(t *testing.T) {
	d := New(testRegistry(t))

	lg := orderFilledLog(big.NewInt(0), yesToken, 600_000, 1_000_000, 0)
	lg.Data = lg.Data[:4*wordSize]
	if _, err := d.Decode(lg); !errors.Is(err, domain.ErrMalformedLog) {
		t.Errorf("truncated data = %v, want ErrMalformedLog", err)
	}

	lg = orderFilledLog(big.NewInt(0), yesToken, 600_000, 1_000_000, 0)
	lg.Topics = lg.Topics[:2]
	if _, err := d.Decode(lg); !errors.Is(err, domain.ErrMalformedLog) {
		t.Errorf("missing topics = %v, want ErrMalformedLog", err)
	}
}

func TestDecodeTokenRegistered(t *testing.T) {
	d := New(registry.New())

	lg := domain.RawLog{
		Topics: []common.Hash{
			topicTokenRegistered,
			bigTopic(yesToken),
			bigTopic(noToken),
			testConditionID,
		},
		Block:     4000,
		LogIndex:  2,
		Timestamp: time.Unix(1_700_000_000, 0).UTC(),
	}

	ev, err := d.Decode(lg)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Kind != domain.EventMarketCreated {
		t.Fatalf("kind = %v, want market_created", ev.Kind)
	}

	m := ev.Market
	if m.ConditionID != testConditionID.Hex() {
		t.Errorf("condition = %s, want %s", m.ConditionID, testConditionID.Hex())
	}
	if len(m.TokenIDs) != 2 || m.TokenIDs[0] != yesToken.String() || m.TokenIDs[1] != noToken.String() {
		t.Errorf("tokens = %v, want [%s %s]", m.TokenIDs, yesToken, noToken)
	}
	if m.Status != domain.MarketStatusOpen {
		t.Errorf("status = %q, want open", m.Status)
	}
	if m.WinningOutcome != -1 {
		t.Errorf("winning outcome = %d, want -1", m.WinningOutcome)
	}
	if m.CreatedBlock != 4000 {
		t.Errorf("created block = %d, want 4000", m.CreatedBlock)
	}
}

func resolutionLog(numerators ...int64) domain.RawLog {
	data := words(int64(len(numerators)), 0x40, int64(len(numerators)))
	data = append(data, words(numerators...)...)
	return domain.RawLog{
		Topics: []common.Hash{
			topicConditionResolution,
			testConditionID,
			addrTopic("0xcccccccccccccccccccccccccccccccccccccccc"),
			common.HexToHash("0xbeef000000000000000000000000000000000000000000000000000000000001"),
		},
		Data:     data,
		Block:    4200,
		LogIndex: 3,
	}
}

func TestDecodeConditionResolution(t *testing.T) {
	d := New(registry.New())

	tests := []struct {
		name       string
		numerators []int64
		want       int
	}{
		{"no wins", []int64{0, 1}, 1},
		{"yes wins", []int64{1, 0}, 0},
		{"largest numerator wins", []int64{3, 7, 2}, 1},
		{"ties resolve to lowest index", []int64{5, 5}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := d.Decode(resolutionLog(tt.numerators...))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if ev.Kind != domain.EventMarketResolved {
				t.Fatalf("kind = %v, want market_resolved", ev.Kind)
			}
			if got := ev.Resolution.WinningOutcome; got != tt.want {
				t.Errorf("winning outcome = %d, want %d", got, tt.want)
			}
			if ev.Resolution.ConditionID != testConditionID.Hex() {
				t.Errorf("condition = %s, want %s", ev.Resolution.ConditionID, testConditionID.Hex())
			}
		})
	}
}

func TestDecodeConditionResolutionErrors(t *testing.T) {
	d := New(registry.New())

	t.Run("all zero payout", func(t *testing.T) {
		if _, err := d.Decode(resolutionLog(0, 0)); !errors.Is(err, domain.ErrMalformedLog) {
			t.Errorf("Decode = %v, want ErrMalformedLog", err)
		}
	})

	t.Run("single slot", func(t *testing.T) {
		if _, err := d.Decode(resolutionLog(1)); !errors.Is(err, domain.ErrMalformedLog) {
			t.Errorf("Decode = %v, want ErrMalformedLog", err)
		}
	})

	t.Run("truncated payout vector", func(t *testing.T) {
		lg := resolutionLog(1, 0)
		lg.Data = lg.Data[:4*wordSize]
		if _, err := d.Decode(lg); !errors.Is(err, domain.ErrMalformedLog) {
			t.Errorf("Decode = %v, want ErrMalformedLog", err)
		}
	})
}

func TestKind(t *testing.T) {
	d := New(registry.New())

	tests := []struct {
		name string
		lg   domain.RawLog
		want domain.EventKind
	}{
		{"order filled", orderFilledLog(big.NewInt(0), yesToken, 1, 2, 0), domain.EventTradeFilled},
		{"token registered", domain.RawLog{Topics: []common.Hash{topicTokenRegistered}}, domain.EventMarketCreated},
		{"condition resolution", resolutionLog(1, 0), domain.EventMarketResolved},
		{"foreign event", domain.RawLog{Topics: []common.Hash{common.HexToHash("0xdead")}}, domain.EventUnrecognized},
		{"no topics", domain.RawLog{}, domain.EventUnrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Kind(tt.lg); got != tt.want {
				t.Errorf("Kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeUnrecognized(t *testing.T) {
	d := New(registry.New())

	ev, err := d.Decode(domain.RawLog{
		Topics:   []common.Hash{common.HexToHash("0xdead")},
		Block:    42,
		LogIndex: 9,
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Kind != domain.EventUnrecognized {
		t.Errorf("kind = %v, want unrecognized", ev.Kind)
	}
	if ev.Block != 42 || ev.LogIndex != 9 {
		t.Errorf("position = %d/%d, want 42/9", ev.Block, ev.LogIndex)
	}
}

func TestTopics(t *testing.T) {
	topics := Topics()
	if len(topics) != 3 {
		t.Fatalf("len(Topics) = %d, want 3", len(topics))
	}
	seen := make(map[common.Hash]bool)
	for _, h := range topics {
		if seen[h] {
			t.Errorf("duplicate topic %s", h)
		}
		seen[h] = true
	}
}
