package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrContextDone   = errors.New("context cancelled")

	// Decode errors. Recovered locally: the offending log is skipped and
	// counted, never propagated past the indexer's apply loop.
	ErrUnknownToken  = errors.New("unknown outcome token")
	ErrInvalidPrice  = errors.New("price outside (0,1)")
	ErrMalformedLog  = errors.New("malformed log payload")
	ErrUnknownMarket = errors.New("unknown market")

	// Fetch errors. Timeout, RateLimited and Upstream are transient and
	// retried with backoff; InvalidRange is fatal to the current cycle.
	ErrFetchTimeout = errors.New("log fetch timed out")
	ErrRateLimited  = errors.New("rate limited")
	ErrUpstream     = errors.New("upstream rpc failure")
	ErrInvalidRange = errors.New("invalid block range")
)

// RetryableFetch reports whether a ChainLogSource failure is transient and
// should be retried with backoff rather than halting the indexer.
func RetryableFetch(err error) bool {
	return errors.Is(err, ErrFetchTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUpstream)
}

// DecodeSkippable reports whether a decode failure should be counted and
// skipped without stopping batch application.
func DecodeSkippable(err error) bool {
	return errors.Is(err, ErrUnknownToken) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrMalformedLog)
}
