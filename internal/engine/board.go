package engine

import (
	"sync"

	"github.com/solvys/predictipulse/internal/domain"
)

// FeedKind distinguishes sharp-book feeds (consensus inputs) from
// prediction-market venue feeds (tradable quotes).
type FeedKind int

const (
	FeedSharp FeedKind = iota
	FeedMarket
)

// Board is the synchronized latest-quote store shared between the feed
// ingestion tasks and the scan cycle. Each (venue, outcome) slot holds only
// the most recent quote; updates are applied in arrival order per outcome and
// reads take a consistent copy so a cycle never observes a torn update.
type Board struct {
	mu     sync.RWMutex
	sharp  map[string]map[string]domain.OutcomeQuote // outcome -> venue -> quote
	market map[string]map[string]domain.OutcomeQuote
}

// NewBoard creates an empty quote board.
func NewBoard() *Board {
	return &Board{
		sharp:  make(map[string]map[string]domain.OutcomeQuote),
		market: make(map[string]map[string]domain.OutcomeQuote),
	}
}

// Apply stores q as the latest quote for its (venue, outcome) slot,
// superseding any previous quote.
func (b *Board) Apply(kind FeedKind, q domain.OutcomeQuote) {
	if q.OutcomeID == "" || q.Venue == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	slots := b.sharp
	if kind == FeedMarket {
		slots = b.market
	}
	byVenue, ok := slots[q.OutcomeID]
	if !ok {
		byVenue = make(map[string]domain.OutcomeQuote, 4)
		slots[q.OutcomeID] = byVenue
	}
	byVenue[q.Venue] = q
}

// SharpSnapshot returns a copy of all sharp quotes grouped by outcome.
func (b *Board) SharpSnapshot() map[string][]domain.OutcomeQuote {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copySlots(b.sharp)
}

// MarketSnapshot returns a copy of all market-venue quotes grouped by outcome.
func (b *Board) MarketSnapshot() map[string][]domain.OutcomeQuote {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copySlots(b.market)
}

// LatestMarket returns the most recent market quote for one outcome across
// venues, used by the ledger to mark positions.
func (b *Board) LatestMarket(outcomeID string) (domain.OutcomeQuote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var latest domain.OutcomeQuote
	found := false
	for _, q := range b.market[outcomeID] {
		if !found || q.Timestamp.After(latest.Timestamp) {
			latest = q
			found = true
		}
	}
	return latest, found
}

func copySlots(slots map[string]map[string]domain.OutcomeQuote) map[string][]domain.OutcomeQuote {
	out := make(map[string][]domain.OutcomeQuote, len(slots))
	for outcome, byVenue := range slots {
		quotes := make([]domain.OutcomeQuote, 0, len(byVenue))
		for _, q := range byVenue {
			quotes = append(quotes, q)
		}
		out[outcome] = quotes
	}
	return out
}
