package domain

import (
	"context"
	"time"
)

// QuoteCache mirrors the latest quote per (venue, outcome) key to a shared
// cache so external consumers see the same view the engine scans.
type QuoteCache interface {
	SetQuote(ctx context.Context, q OutcomeQuote) error
	GetQuote(ctx context.Context, venue, outcomeID string) (OutcomeQuote, error)
	GetQuotes(ctx context.Context, venue string, outcomeIDs []string) (map[string]OutcomeQuote, error)
}

// LockManager provides the outcome-level submission lock: no two orders for
// the same outcome and direction may be concurrently in flight.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is a single entry read back from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for events leaving the
// process (dashboard, audit).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
