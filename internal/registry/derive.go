package registry

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// USDCAddress is the collateral token (USDC.e) on Polygon.
var USDCAddress = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")

// Index sets of the two outcomes of a binary condition.
const (
	indexSetYes = 1
	indexSetNo  = 2
)

// DeriveBinaryTokenIDs computes the ERC-1155 position ids of a binary
// market's Yes and No outcome tokens from its condition id, following the
// Conditional Token Framework derivation:
//
//	collectionId = keccak256(parentCollectionId ++ conditionId ++ indexSet)
//	positionId   = keccak256(collateral ++ collectionId)
//
// Token ids are returned as decimal uint256 strings, matching the asset id
// encoding of OrderFilled events.
func DeriveBinaryTokenIDs(collateral common.Address, conditionID common.Hash) (yes, no string) {
	yes = derivePositionID(collateral, deriveCollectionID(conditionID, indexSetYes))
	no = derivePositionID(collateral, deriveCollectionID(conditionID, indexSetNo))
	return yes, no
}

// VerifyBinaryTokenIDs reports whether a binary market's ordered token ids
// match the CTF derivation over USDC collateral. Markets registered through
// the neg-risk adapter or on another collateral legitimately fail the
// check, so a mismatch is a signal, not an error.
func VerifyBinaryTokenIDs(conditionID string, tokenIDs []string) bool {
	if len(tokenIDs) != 2 || len(conditionID) != 66 || !strings.HasPrefix(conditionID, "0x") {
		return false
	}
	yes, no := DeriveBinaryTokenIDs(USDCAddress, common.HexToHash(conditionID))
	return tokenIDs[0] == yes && tokenIDs[1] == no
}

func deriveCollectionID(conditionID common.Hash, indexSet uint64) common.Hash {
	var parent common.Hash // root collection is the zero hash
	var index common.Hash
	new(big.Int).SetUint64(indexSet).FillBytes(index[:])

	return crypto.Keccak256Hash(parent[:], conditionID[:], index[:])
}

func derivePositionID(collateral common.Address, collectionID common.Hash) string {
	h := crypto.Keccak256Hash(collateral[:], collectionID[:])
	return new(big.Int).SetBytes(h[:]).String()
}
