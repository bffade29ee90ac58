package bus

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvys/predictipulse/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.Default()
}

func TestPublishNoSubscribersIsNoOp(t *testing.T) {
	b := New(testLogger())
	defer b.Close()

	// Must not panic or block.
	b.Publish(domain.Event{Type: domain.EventOpportunity, Producer: "scanner"})
}

func TestFanOutPreservesProducerOrder(t *testing.T) {
	b := New(testLogger())
	defer b.Close()

	ch1, cancel1 := b.Subscribe()
	defer cancel1()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()

	for i := 0; i < 10; i++ {
		b.Publish(domain.Event{
			Type:     domain.EventOrderUpdate,
			Producer: "lifecycle",
			Order:    &domain.Order{ID: string(rune('a' + i))},
		})
	}

	for _, ch := range []<-chan domain.Event{ch1, ch2} {
		for i := 0; i < 10; i++ {
			select {
			case ev := <-ch:
				assert.Equal(t, string(rune('a'+i)), ev.Order.ID)
			case <-time.After(time.Second):
				t.Fatal("timed out waiting for event")
			}
		}
	}
}

func TestSlowSubscriberNeverBlocksPublisher(t *testing.T) {
	b := New(testLogger())
	defer b.Close()

	_, cancel := b.Subscribe() // never read from
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < defaultSubscriberBuffer*2; i++ {
			b.Publish(domain.Event{Type: domain.EventPositionDelta, Producer: "ledger"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}
	assert.Greater(t, b.Dropped(), uint64(0))
}

func TestCancelClosesChannel(t *testing.T) {
	b := New(testLogger())
	defer b.Close()

	ch, cancel := b.Subscribe()
	cancel()
	cancel() // idempotent

	_, open := <-ch
	require.False(t, open)
}

func TestCloseIsTerminal(t *testing.T) {
	b := New(testLogger())
	ch, _ := b.Subscribe()
	b.Close()

	_, open := <-ch
	require.False(t, open)

	// Publish after close is a silent no-op.
	b.Publish(domain.Event{Type: domain.EventOpportunity})
}

func TestPublishStampsTime(t *testing.T) {
	b := New(testLogger())
	defer b.Close()

	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(domain.Event{Type: domain.EventConsensus, Producer: "consensus"})
	ev := <-ch
	assert.False(t, ev.At.IsZero())
}
