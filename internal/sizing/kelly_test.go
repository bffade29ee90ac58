package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeHalfKellyCappedAtBankrollPct(t *testing.T) {
	s := Sizer{
		Multiplier:     0.5,
		MaxPctBankroll: 0.10,
		MaxDollar:      500,
		MinOrderSize:   1,
	}

	// EV 0.20 at price 0.50 gives payout ratio 1.0, so full Kelly is 0.20.
	// Half Kelly is 0.10, exactly the bankroll cap: $100 on $1000.
	st := s.Size(0.20, 0.50, 1000, false)
	assert.True(t, st.OK)
	assert.InDelta(t, 100, st.Dollars, 1e-9)
	assert.InDelta(t, 0.20, st.KellyFull, 1e-9)
	assert.InDelta(t, 0.10, st.KellyApplied, 1e-9)
}

func TestSizeDollarCapBinds(t *testing.T) {
	s := Sizer{Multiplier: 0.5, MaxPctBankroll: 0.10, MaxDollar: 50, MinOrderSize: 1}

	st := s.Size(0.20, 0.50, 1000, false)
	assert.True(t, st.OK)
	assert.InDelta(t, 50, st.Dollars, 1e-9)
}

func TestSizeBelowMinimumIsNoTrade(t *testing.T) {
	s := Sizer{Multiplier: 0.5, MaxPctBankroll: 0.10, MaxDollar: 50, MinOrderSize: 5}

	// Tiny bankroll: capped stake lands under the venue minimum, so no trade
	// rather than rounding up.
	st := s.Size(0.05, 0.50, 20, false)
	assert.False(t, st.OK)
	assert.Zero(t, st.Dollars)
}

func TestSizeNonPositiveInputs(t *testing.T) {
	s := Sizer{Multiplier: 0.5, MaxPctBankroll: 0.10, MaxDollar: 50, MinOrderSize: 1}

	assert.False(t, s.Size(-0.10, 0.50, 1000, false).OK)
	assert.False(t, s.Size(0.20, 0.50, 0, false).OK)
	assert.False(t, s.Size(0.20, 0, 1000, false).OK)
	assert.False(t, s.Size(0.20, 1, 1000, false).OK)
}

func TestSizeSellUsesInvertedPayout(t *testing.T) {
	s := Sizer{Multiplier: 1, MaxPctBankroll: 1, MaxDollar: 0, MinOrderSize: 0}

	// Selling at 0.80: odds against = 0.8/0.2 = 4, so f* = EV/4.
	st := s.Size(0.20, 0.80, 1000, true)
	assert.True(t, st.OK)
	assert.InDelta(t, 0.05, st.KellyFull, 1e-9)
	assert.InDelta(t, 50, st.Dollars, 1e-9)
}
