// Package notify delivers operator alerts over one or more channels
// (Telegram, Discord). The indexer hands it detected arbitrage
// opportunities; a per-market cooldown keeps a volatile market from
// flooding the channels.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/polymind/polymind/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// defaultCooldown is the minimum interval between alerts for the same
// market.
const defaultCooldown = 5 * time.Minute

// Notifier fans alerts out to every registered sender.
type Notifier struct {
	senders  []Sender
	cooldown time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewNotifier creates a Notifier. cooldown <= 0 uses the default.
func NewNotifier(senders []Sender, cooldown time.Duration, logger *slog.Logger) *Notifier {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Notifier{
		senders:  senders,
		cooldown: cooldown,
		logger:   logger.With(slog.String("component", "notify")),
		lastSent: make(map[string]time.Time),
	}
}

// ArbitrageAlert formats and dispatches an arbitrage opportunity. Repeat
// alerts for the same market inside the cooldown window are dropped.
func (n *Notifier) ArbitrageAlert(ctx context.Context, opp domain.ArbOpportunity) {
	if len(n.senders) == 0 {
		return
	}

	n.mu.Lock()
	last, seen := n.lastSent[opp.ConditionID]
	now := time.Now()
	if seen && now.Sub(last) < n.cooldown {
		n.mu.Unlock()
		return
	}
	n.lastSent[opp.ConditionID] = now
	n.mu.Unlock()

	name := opp.Slug
	if name == "" {
		name = opp.ConditionID
	}

	title := "Arbitrage opportunity"
	message := fmt.Sprintf(
		"Market: %s\nDirection: %s\nOutcome price sum: %.4f\nEdge: %.2f%%",
		name, opp.Direction, opp.Sum, opp.Magnitude*100,
	)

	if err := n.dispatch(ctx, title, message); err != nil {
		n.logger.WarnContext(ctx, "arbitrage alert delivery incomplete",
			slog.String("condition_id", opp.ConditionID),
			slog.String("error", err.Error()),
		)
	}
}

// dispatch delivers to every sender; one failing sender does not block the
// rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
