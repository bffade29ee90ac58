// Package bus is the in-process publication point for engine events:
// opportunities, order transitions, and position deltas.
package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/solvys/predictipulse/internal/domain"
)

const defaultSubscriberBuffer = 256

// Bus fans every published event out to zero or more subscribers. Delivery is
// best-effort and never blocks the publisher: a subscriber whose buffer is
// full loses the event rather than delaying scanning or order submission.
// Emission order is preserved per producer.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan domain.Event
	nextID int
	closed bool

	dropped atomic.Uint64
	logger  *slog.Logger
}

// New creates an event bus. A bus with no subscribers is valid; Publish is
// then a no-op.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[int]chan domain.Event),
		logger: logger.With(slog.String("component", "event_bus")),
	}
}

// Subscribe registers a new subscriber and returns its event channel together
// with a cancel function. The channel is closed on cancel or bus Close.
func (b *Bus) Subscribe() (<-chan domain.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan domain.Event)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	ch := make(chan domain.Event, defaultSubscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking. Events
// dropped on a full subscriber buffer are counted and logged at debug level.
func (b *Bus) Publish(ev domain.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
			b.logger.Debug("subscriber buffer full, event dropped",
				slog.String("type", string(ev.Type)),
				slog.String("producer", ev.Producer),
			)
		}
	}
}

// Dropped returns the count of events lost to full subscriber buffers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close shuts the bus down and closes all subscriber channels. Publish after
// Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
