// Package registry maps outcome-token identifiers to their owning market and
// outcome index. The mapping is in-memory and rebuilt at startup by replaying
// persisted markets.
package registry

import (
	"sync"

	"github.com/polymind/polymind/internal/domain"
)

// Registry is the token id -> (market, outcome) lookup used by the decoder.
// The indexer loop is the only writer; reads may come from any goroutine.
type Registry struct {
	mu      sync.RWMutex
	tokens  map[string]domain.Token
	markets map[string][]string // condition id -> ordered token ids
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		tokens:  make(map[string]domain.Token),
		markets: make(map[string][]string),
	}
}

// Register records every outcome token of the market. Re-registering the
// same market is a no-op, which makes batch replay after a crash safe.
func (r *Registry) Register(market domain.Market) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, id := range market.TokenIDs {
		r.tokens[id] = domain.Token{
			ID:          id,
			ConditionID: market.ConditionID,
			Outcome:     i,
		}
	}
	r.markets[market.ConditionID] = market.TokenIDs
}

// Resolve returns the token for the given id, if known.
func (r *Registry) Resolve(tokenID string) (domain.Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tok, ok := r.tokens[tokenID]
	return tok, ok
}

// TokensOf returns the ordered outcome token ids of a market.
func (r *Registry) TokensOf(conditionID string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.markets[conditionID]
	return ids, ok
}

// Len returns the number of registered tokens.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tokens)
}
