package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest observed price per outcome
// token, keyed by token id.
type PriceCache interface {
	SetPrice(ctx context.Context, tokenID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, tokenID string) (float64, time.Time, error)
	GetPrices(ctx context.Context, tokenIDs []string) (map[string]float64, error)
}

// SignalBus publishes ingestion events (applied trades, arbitrage alerts)
// for the WebSocket hub and any external consumer.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (<-chan BusMessage, error)
}

// BusMessage is one message delivered by a SignalBus subscription.
type BusMessage struct {
	Channel string
	Payload []byte
}
