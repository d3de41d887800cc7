package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/polymind/polymind/internal/domain"
)

func TestClassifyFetchErr(t *testing.T) {
	tests := []struct {
		name      string
		cause     error
		want      error
		retryable bool
	}{
		{"deadline", context.DeadlineExceeded, domain.ErrFetchTimeout, true},
		{"wrapped deadline", fmt.Errorf("rpc call: %w", context.DeadlineExceeded), domain.ErrFetchTimeout, true},
		{"http 429", errors.New("HTTP 429 Too Many Requests"), domain.ErrRateLimited, true},
		{"rate limit text", errors.New("rate limit exceeded"), domain.ErrRateLimited, true},
		{"range too wide", errors.New("block range is too wide"), domain.ErrInvalidRange, false},
		{"result cap", errors.New("query returned more than 10000 results"), domain.ErrInvalidRange, false},
		{"connection reset", errors.New("read tcp: connection reset by peer"), domain.ErrUpstream, true},
		{"dns failure", errors.New("no such host"), domain.ErrUpstream, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyFetchErr(fmt.Errorf("chain: test: %v", tt.cause), tt.cause)
			if !errors.Is(got, tt.want) {
				t.Errorf("classifyFetchErr(%v) = %v, want %v", tt.cause, got, tt.want)
			}
			if domain.RetryableFetch(got) != tt.retryable {
				t.Errorf("RetryableFetch(%v) = %v, want %v", got, !tt.retryable, tt.retryable)
			}
		})
	}
}
