package domain

import "time"

// OutcomeQuote is the normalized, probability-scaled view of one venue's
// current pricing for one event outcome. Quotes are immutable; a newer quote
// for the same (venue, outcome) key supersedes the older one, it never
// mutates it.
type OutcomeQuote struct {
	Venue     string
	OutcomeID string
	Bid       float64 // best bid in (0,1); 0 when the venue reports none
	Ask       float64 // best ask in (0,1); 0 when the venue reports none
	Last      float64 // last trade, or the devigged probability for sharp feeds
	SizeHint  float64 // reported liquidity/size; 0 means unknown
	Seq       int64   // venue-assigned sequence, 0 when the venue provides none
	Timestamp time.Time
}

// Key returns the supersession key for the latest-quote store.
func (q OutcomeQuote) Key() string {
	return q.Venue + "|" + q.OutcomeID
}

// Mid returns the midpoint when both sides are quoted, otherwise the best
// available single price.
func (q OutcomeQuote) Mid() float64 {
	switch {
	case q.Bid > 0 && q.Ask > 0:
		return (q.Bid + q.Ask) / 2
	case q.Last > 0:
		return q.Last
	case q.Ask > 0:
		return q.Ask
	default:
		return q.Bid
	}
}

// BuyPrice is the price a taker pays to buy the outcome.
func (q OutcomeQuote) BuyPrice() float64 {
	if q.Ask > 0 {
		return q.Ask
	}
	return q.Mid()
}

// SellPrice is the price a taker receives selling the outcome.
func (q OutcomeQuote) SellPrice() float64 {
	if q.Bid > 0 {
		return q.Bid
	}
	return q.Mid()
}

// StaleAt reports whether the quote is older than maxAge at the given instant.
func (q OutcomeQuote) StaleAt(now time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && now.Sub(q.Timestamp) > maxAge
}

// ConsensusEstimate is the blended "true probability" for one outcome derived
// from one or more sharp sources. Prob is strictly inside (0,1); certain
// outcomes are never tradable.
type ConsensusEstimate struct {
	OutcomeID  string
	Prob       float64
	ComputedAt time.Time
	Sources    []OutcomeQuote // contributing quotes after the recency gate
}
