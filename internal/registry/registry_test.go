package registry

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/polymind/polymind/internal/domain"
)

func binaryMarket(conditionID string, tokens ...string) domain.Market {
	return domain.Market{
		ConditionID: conditionID,
		TokenIDs:    tokens,
		Outcomes:    []string{"Yes", "No"},
		Status:      domain.MarketStatusOpen,
	}
}

func TestRegisterAndResolve(t *testing.T) {
	reg := New()
	reg.Register(binaryMarket("0xc1", "101", "102"))

	tests := []struct {
		tokenID string
		outcome int
	}{
		{"101", 0},
		{"102", 1},
	}
	for _, tt := range tests {
		tok, ok := reg.Resolve(tt.tokenID)
		if !ok {
			t.Fatalf("Resolve(%s) not found", tt.tokenID)
		}
		if tok.ConditionID != "0xc1" {
			t.Errorf("Resolve(%s).ConditionID = %s, want 0xc1", tt.tokenID, tok.ConditionID)
		}
		if tok.Outcome != tt.outcome {
			t.Errorf("Resolve(%s).Outcome = %d, want %d", tt.tokenID, tok.Outcome, tt.outcome)
		}
	}

	if _, ok := reg.Resolve("999"); ok {
		t.Error("Resolve(999) found, want miss")
	}
}

func TestRegisterIdempotent(t *testing.T) {
	reg := New()
	m := binaryMarket("0xc1", "101", "102")

	reg.Register(m)
	reg.Register(m)
	reg.Register(m)

	if got := reg.Len(); got != 2 {
		t.Errorf("Len = %d, want 2", got)
	}
	ids, ok := reg.TokensOf("0xc1")
	if !ok || len(ids) != 2 || ids[0] != "101" || ids[1] != "102" {
		t.Errorf("TokensOf = %v/%v, want [101 102]", ids, ok)
	}
}

func TestTokensOfUnknown(t *testing.T) {
	reg := New()
	if _, ok := reg.TokensOf("0xmissing"); ok {
		t.Error("TokensOf on empty registry found a market")
	}
}

func TestMultipleMarkets(t *testing.T) {
	reg := New()
	reg.Register(binaryMarket("0xc1", "101", "102"))
	reg.Register(binaryMarket("0xc2", "201", "202"))

	if got := reg.Len(); got != 4 {
		t.Errorf("Len = %d, want 4", got)
	}
	tok, ok := reg.Resolve("201")
	if !ok || tok.ConditionID != "0xc2" || tok.Outcome != 0 {
		t.Errorf("Resolve(201) = %+v/%v, want market 0xc2 outcome 0", tok, ok)
	}
}

func TestVerifyBinaryTokenIDs(t *testing.T) {
	cond := common.HexToHash("0x1111000000000000000000000000000000000000000000000000000000000001")
	yes, no := DeriveBinaryTokenIDs(USDCAddress, cond)

	tests := []struct {
		name        string
		conditionID string
		tokenIDs    []string
		want        bool
	}{
		{"derived pair", cond.Hex(), []string{yes, no}, true},
		{"swapped outcomes", cond.Hex(), []string{no, yes}, false},
		{"foreign token ids", cond.Hex(), []string{"101", "102"}, false},
		{"wrong arity", cond.Hex(), []string{yes}, false},
		{"malformed condition id", "0xc1", []string{yes, no}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyBinaryTokenIDs(tt.conditionID, tt.tokenIDs); got != tt.want {
				t.Errorf("VerifyBinaryTokenIDs = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeriveBinaryTokenIDs(t *testing.T) {
	cond1 := common.HexToHash("0x1111000000000000000000000000000000000000000000000000000000000001")
	cond2 := common.HexToHash("0x2222000000000000000000000000000000000000000000000000000000000002")

	yes1, no1 := DeriveBinaryTokenIDs(USDCAddress, cond1)
	if yes1 == no1 {
		t.Fatal("yes and no token ids collide")
	}

	// Position ids are deterministic.
	yesAgain, noAgain := DeriveBinaryTokenIDs(USDCAddress, cond1)
	if yes1 != yesAgain || no1 != noAgain {
		t.Error("derivation is not deterministic")
	}

	// Different conditions yield different positions.
	yes2, no2 := DeriveBinaryTokenIDs(USDCAddress, cond2)
	if yes1 == yes2 || no1 == no2 {
		t.Error("token ids collide across conditions")
	}

	// Ids are decimal uint256 strings, matching the OrderFilled asset id
	// encoding.
	for _, id := range []string{yes1, no1, yes2, no2} {
		v, ok := new(big.Int).SetString(id, 10)
		if !ok {
			t.Fatalf("token id %q is not decimal", id)
		}
		if v.Sign() <= 0 || v.BitLen() > 256 {
			t.Errorf("token id %q out of uint256 range", id)
		}
	}
}
