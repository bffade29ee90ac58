// Package sizing converts a qualifying edge into a bounded stake using a
// capped fractional-Kelly rule.
package sizing

import "math"

// Sizer holds the Kelly parameters. Multiplier in (0,1] scales the full
// Kelly fraction; MaxPctBankroll (a fraction, e.g. 0.10) and MaxDollar cap
// the result; stakes below MinOrderSize are dropped rather than rounded up
// so low-EV edges never produce oversized bets.
type Sizer struct {
	Multiplier     float64
	MaxPctBankroll float64
	MaxDollar      float64
	MinOrderSize   float64
}

// Stake is a sizing decision. OK false means "no trade", not an error.
type Stake struct {
	Dollars      float64
	KellyFull    float64 // full Kelly fraction before scaling and caps
	KellyApplied float64 // fraction of bankroll actually staked
	OK           bool
}

// Size computes the stake for an opportunity with the given expected value
// and market price against the current bankroll.
//
// The full Kelly fraction is f* = EV / oddsAgainst where the market price is
// the payout ratio: a buy at price p wins (1-p)/p per unit, a sell at price p
// wins p/(1-p) per unit.
func (s Sizer) Size(ev, marketPrice, bankroll float64, sell bool) Stake {
	if ev <= 0 || bankroll <= 0 || marketPrice <= 0 || marketPrice >= 1 {
		return Stake{}
	}

	oddsAgainst := (1 - marketPrice) / marketPrice
	if sell {
		oddsAgainst = marketPrice / (1 - marketPrice)
	}
	if oddsAgainst <= 0 {
		return Stake{}
	}

	full := ev / oddsAgainst
	fraction := full * s.Multiplier

	if s.MaxPctBankroll > 0 {
		fraction = math.Min(fraction, s.MaxPctBankroll)
	}

	dollars := bankroll * fraction
	if s.MaxDollar > 0 {
		dollars = math.Min(dollars, s.MaxDollar)
	}

	if dollars <= 0 || dollars < s.MinOrderSize {
		return Stake{KellyFull: full}
	}

	return Stake{
		Dollars:      dollars,
		KellyFull:    full,
		KellyApplied: dollars / bankroll,
		OK:           true,
	}
}
