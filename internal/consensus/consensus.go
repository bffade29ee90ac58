// Package consensus blends normalized sharp-book probabilities into a single
// true-probability estimate per outcome.
package consensus

import (
	"time"

	"github.com/solvys/predictipulse/internal/domain"
)

// probEpsilon keeps blended estimates strictly inside (0,1); a certain
// outcome is never tradable.
const probEpsilon = 1e-6

// Model computes liquidity-weighted consensus estimates. Quotes older than
// MaxQuoteAge are dropped before blending; when nothing fresh remains the
// estimate is withdrawn rather than computed from stale inputs.
type Model struct {
	MaxQuoteAge time.Duration
}

// Blend combines the given normalized quotes for one outcome into a
// ConsensusEstimate. Weight is each source's size hint; quotes without a
// hint weigh the same as the smallest hinted quote, or equally when no quote
// carries a hint. A weight tie is broken toward the most recent quote by
// giving it a marginally larger share.
//
// It returns domain.ErrConsensusWithdrawn when every input is older than
// MaxQuoteAge.
func (m Model) Blend(outcomeID string, quotes []domain.OutcomeQuote, now time.Time) (domain.ConsensusEstimate, error) {
	fresh := make([]domain.OutcomeQuote, 0, len(quotes))
	for _, q := range quotes {
		if q.StaleAt(now, m.MaxQuoteAge) {
			continue
		}
		p := q.Mid()
		if p <= 0 || p >= 1 {
			continue
		}
		fresh = append(fresh, q)
	}
	if len(fresh) == 0 {
		return domain.ConsensusEstimate{}, domain.ErrConsensusWithdrawn
	}

	var newest time.Time
	minHint := 0.0
	for _, q := range fresh {
		if q.Timestamp.After(newest) {
			newest = q.Timestamp
		}
		if q.SizeHint > 0 && (minHint == 0 || q.SizeHint < minHint) {
			minHint = q.SizeHint
		}
	}
	if minHint == 0 {
		minHint = 1 // no source reported size: equal weights
	}

	var weighted, total float64
	for _, q := range fresh {
		w := q.SizeHint
		if w <= 0 {
			w = minHint
		}
		// Recency tie-break: the newest quote gets a sliver more weight so
		// equal-size sources resolve deterministically toward fresh data.
		if q.Timestamp.Equal(newest) {
			w *= 1 + probEpsilon
		}
		weighted += w * q.Mid()
		total += w
	}

	prob := weighted / total
	if prob <= 0 {
		prob = probEpsilon
	}
	if prob >= 1 {
		prob = 1 - probEpsilon
	}

	return domain.ConsensusEstimate{
		OutcomeID:  outcomeID,
		Prob:       prob,
		ComputedAt: now,
		Sources:    fresh,
	}, nil
}
