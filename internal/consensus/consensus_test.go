package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvys/predictipulse/internal/domain"
)

func quote(venue string, prob, size float64, age time.Duration, now time.Time) domain.OutcomeQuote {
	return domain.OutcomeQuote{
		Venue:     venue,
		OutcomeID: "NBA-LAL-BOS-LAL",
		Last:      prob,
		SizeHint:  size,
		Timestamp: now.Add(-age),
	}
}

func TestBlendLiquidityWeighted(t *testing.T) {
	now := time.Now()
	m := Model{MaxQuoteAge: time.Minute}

	est, err := m.Blend("NBA-LAL-BOS-LAL", []domain.OutcomeQuote{
		quote("pinnacle", 0.60, 3000, time.Second, now),
		quote("circa", 0.50, 1000, 2*time.Second, now),
	}, now)
	require.NoError(t, err)

	// 0.60*3000 + 0.50*1000 over 4000 = 0.575, give or take the recency
	// tie-break sliver.
	assert.InDelta(t, 0.575, est.Prob, 1e-4)
	assert.Len(t, est.Sources, 2)
}

func TestBlendEqualWeightWithoutSizeHints(t *testing.T) {
	now := time.Now()
	m := Model{MaxQuoteAge: time.Minute}

	est, err := m.Blend("NBA-LAL-BOS-LAL", []domain.OutcomeQuote{
		quote("pinnacle", 0.60, 0, time.Second, now),
		quote("circa", 0.40, 0, 2*time.Second, now),
	}, now)
	require.NoError(t, err)
	assert.InDelta(t, 0.50, est.Prob, 1e-4)
}

func TestBlendDropsStaleQuotes(t *testing.T) {
	now := time.Now()
	m := Model{MaxQuoteAge: 30 * time.Second}

	est, err := m.Blend("NBA-LAL-BOS-LAL", []domain.OutcomeQuote{
		quote("pinnacle", 0.60, 1000, time.Second, now),
		quote("circa", 0.10, 1000, time.Hour, now), // expired, must not drag the blend
	}, now)
	require.NoError(t, err)
	assert.InDelta(t, 0.60, est.Prob, 1e-4)
	assert.Len(t, est.Sources, 1)
}

func TestBlendWithdrawnWhenAllStale(t *testing.T) {
	now := time.Now()
	m := Model{MaxQuoteAge: 30 * time.Second}

	_, err := m.Blend("NBA-LAL-BOS-LAL", []domain.OutcomeQuote{
		quote("pinnacle", 0.60, 1000, time.Hour, now),
		quote("circa", 0.55, 500, 2*time.Hour, now),
	}, now)
	require.ErrorIs(t, err, domain.ErrConsensusWithdrawn)
}

func TestBlendNoQuotes(t *testing.T) {
	m := Model{MaxQuoteAge: time.Minute}
	_, err := m.Blend("NBA-LAL-BOS-LAL", nil, time.Now())
	require.ErrorIs(t, err, domain.ErrConsensusWithdrawn)
}

func TestBlendStrictlyInsideUnitInterval(t *testing.T) {
	now := time.Now()
	m := Model{MaxQuoteAge: time.Minute}

	est, err := m.Blend("NBA-LAL-BOS-LAL", []domain.OutcomeQuote{
		quote("pinnacle", 0.999999999, 100, time.Second, now),
	}, now)
	require.NoError(t, err)
	assert.Greater(t, est.Prob, 0.0)
	assert.Less(t, est.Prob, 1.0)
}
