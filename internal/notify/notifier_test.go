package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/polymind/polymind/internal/domain"
)

type recordingSender struct {
	mu       sync.Mutex
	name     string
	messages []string
	err      error
}

func (s *recordingSender) Send(ctx context.Context, title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, message)
	return nil
}

func (s *recordingSender) Name() string { return s.name }

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func testOpp(conditionID string) domain.ArbOpportunity {
	return domain.ArbOpportunity{
		ID:          "op-1",
		ConditionID: conditionID,
		Slug:        "will-it-rain",
		Prices:      []float64{0.62, 0.45},
		Sum:         1.07,
		Magnitude:   0.07,
		Direction:   domain.ArbSellAll,
		DetectedAt:  time.Now(),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArbitrageAlertFansOut(t *testing.T) {
	a := &recordingSender{name: "telegram"}
	b := &recordingSender{name: "discord"}
	n := NewNotifier([]Sender{a, b}, time.Minute, testLogger())

	n.ArbitrageAlert(context.Background(), testOpp("0xc1"))

	if a.count() != 1 || b.count() != 1 {
		t.Fatalf("deliveries = %d/%d, want 1/1", a.count(), b.count())
	}
	msg := a.messages[0]
	for _, want := range []string{"will-it-rain", "sell_all", "1.0700", "7.00%"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestArbitrageAlertCooldown(t *testing.T) {
	s := &recordingSender{name: "telegram"}
	n := NewNotifier([]Sender{s}, time.Hour, testLogger())

	n.ArbitrageAlert(context.Background(), testOpp("0xc1"))
	n.ArbitrageAlert(context.Background(), testOpp("0xc1"))

	if s.count() != 1 {
		t.Errorf("deliveries = %d, want 1 inside the cooldown", s.count())
	}

	// A different market is not throttled.
	n.ArbitrageAlert(context.Background(), testOpp("0xc2"))
	if s.count() != 2 {
		t.Errorf("deliveries = %d, want 2 across markets", s.count())
	}
}

func TestArbitrageAlertOneSenderFailing(t *testing.T) {
	broken := &recordingSender{name: "telegram", err: errors.New("bad token")}
	healthy := &recordingSender{name: "discord"}
	n := NewNotifier([]Sender{broken, healthy}, time.Minute, testLogger())

	n.ArbitrageAlert(context.Background(), testOpp("0xc1"))

	if healthy.count() != 1 {
		t.Errorf("healthy sender deliveries = %d, want 1", healthy.count())
	}
}

func TestArbitrageAlertNoSenders(t *testing.T) {
	n := NewNotifier(nil, time.Minute, testLogger())
	// Must not panic or track state without anywhere to send.
	n.ArbitrageAlert(context.Background(), testOpp("0xc1"))
}

func TestArbitrageAlertFallsBackToConditionID(t *testing.T) {
	s := &recordingSender{name: "discord"}
	n := NewNotifier([]Sender{s}, time.Minute, testLogger())

	opp := testOpp("0xc1")
	opp.Slug = ""
	n.ArbitrageAlert(context.Background(), opp)

	if s.count() != 1 || !strings.Contains(s.messages[0], "0xc1") {
		t.Errorf("message = %v, want condition id fallback", s.messages)
	}
}
