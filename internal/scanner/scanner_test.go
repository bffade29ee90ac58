package scanner

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvys/predictipulse/internal/consensus"
	"github.com/solvys/predictipulse/internal/domain"
)

var testThresholds = Thresholds{
	TargetBuyEV:  0.05,
	TargetSellEV: 0.05,
	MinTrueProb:  0.15,
	MaxTrueProb:  0.85,
}

func newScanner() *Scanner {
	return New(consensus.Model{MaxQuoteAge: time.Minute}, slog.Default())
}

func sharpQuote(prob float64, now time.Time) domain.OutcomeQuote {
	return domain.OutcomeQuote{
		Venue:     "pinnacle",
		OutcomeID: "NBA-LAL-BOS-LAL",
		Last:      prob,
		SizeHint:  1000,
		Timestamp: now,
	}
}

func marketQuote(bid, ask float64, now time.Time) domain.OutcomeQuote {
	return domain.OutcomeQuote{
		Venue:     "kalshi",
		OutcomeID: "NBA-LAL-BOS-LAL",
		Bid:       bid,
		Ask:       ask,
		Timestamp: now,
	}
}

func TestScanEmitsBuyOpportunity(t *testing.T) {
	now := time.Now()
	s := newScanner()

	res := s.Scan(now, testThresholds,
		map[string][]domain.OutcomeQuote{"NBA-LAL-BOS-LAL": {sharpQuote(0.60, now)}},
		map[string][]domain.OutcomeQuote{"NBA-LAL-BOS-LAL": {marketQuote(0.48, 0.50, now)}},
	)

	require.Len(t, res.Opportunities, 1)
	opp := res.Opportunities[0]
	assert.Equal(t, domain.OrderSideBuy, opp.Side)
	// 0.60/0.50 - 1 = 0.20
	assert.InDelta(t, 0.20, opp.EV, 1e-9)
	assert.InDelta(t, 0.50, opp.MarketPrice, 1e-9)
	assert.Equal(t, "kalshi", opp.Venue)
	assert.NotEmpty(t, opp.ID)
}

func TestScanEmitsSellOpportunity(t *testing.T) {
	now := time.Now()
	s := newScanner()

	// Consensus 0.40, market bid 0.50: sell EV = 0.60/0.50 - 1 = 0.20.
	res := s.Scan(now, testThresholds,
		map[string][]domain.OutcomeQuote{"NBA-LAL-BOS-LAL": {sharpQuote(0.40, now)}},
		map[string][]domain.OutcomeQuote{"NBA-LAL-BOS-LAL": {marketQuote(0.50, 0.52, now)}},
	)

	require.Len(t, res.Opportunities, 1)
	assert.Equal(t, domain.OrderSideSell, res.Opportunities[0].Side)
	assert.InDelta(t, 0.20, res.Opportunities[0].EV, 1e-9)
}

func TestScanBothDirectionsCanCoexist(t *testing.T) {
	now := time.Now()
	s := newScanner()

	// A wide market can put EV on both sides of the same outcome.
	res := s.Scan(now, testThresholds,
		map[string][]domain.OutcomeQuote{"NBA-LAL-BOS-LAL": {sharpQuote(0.50, now)}},
		map[string][]domain.OutcomeQuote{"NBA-LAL-BOS-LAL": {marketQuote(0.60, 0.40, now)}},
	)

	require.Len(t, res.Opportunities, 2)
	sides := map[domain.OrderSide]bool{}
	for _, opp := range res.Opportunities {
		sides[opp.Side] = true
	}
	assert.True(t, sides[domain.OrderSideBuy])
	assert.True(t, sides[domain.OrderSideSell])
}

func TestScanFiltersBelowThreshold(t *testing.T) {
	now := time.Now()
	s := newScanner()

	// Buy EV = 0.52/0.50 - 1 = 0.04, under the 5% target.
	res := s.Scan(now, testThresholds,
		map[string][]domain.OutcomeQuote{"NBA-LAL-BOS-LAL": {sharpQuote(0.52, now)}},
		map[string][]domain.OutcomeQuote{"NBA-LAL-BOS-LAL": {marketQuote(0.50, 0.50, now)}},
	)
	assert.Empty(t, res.Opportunities)
}

func TestScanFiltersProbabilityBand(t *testing.T) {
	now := time.Now()
	s := newScanner()

	// Large EV, but 0.95 exceeds max_true_prob: modeling error dominates.
	res := s.Scan(now, testThresholds,
		map[string][]domain.OutcomeQuote{"NBA-LAL-BOS-LAL": {sharpQuote(0.95, now)}},
		map[string][]domain.OutcomeQuote{"NBA-LAL-BOS-LAL": {marketQuote(0.70, 0.70, now)}},
	)
	assert.Empty(t, res.Opportunities)
	assert.Len(t, res.Estimates, 1)
}

func TestScanWithdrawsStaleOutcomes(t *testing.T) {
	now := time.Now()
	s := newScanner()

	stale := sharpQuote(0.60, now.Add(-time.Hour))
	res := s.Scan(now, testThresholds,
		map[string][]domain.OutcomeQuote{"NBA-LAL-BOS-LAL": {stale}},
		map[string][]domain.OutcomeQuote{"NBA-LAL-BOS-LAL": {marketQuote(0.48, 0.50, now)}},
	)
	assert.Empty(t, res.Opportunities)
	assert.Empty(t, res.Estimates)
	assert.Equal(t, []string{"NBA-LAL-BOS-LAL"}, res.Withdrawn)
}

func TestScanIgnoresStaleMarketQuotes(t *testing.T) {
	now := time.Now()
	s := newScanner()

	res := s.Scan(now, testThresholds,
		map[string][]domain.OutcomeQuote{"NBA-LAL-BOS-LAL": {sharpQuote(0.60, now)}},
		map[string][]domain.OutcomeQuote{"NBA-LAL-BOS-LAL": {marketQuote(0.48, 0.50, now.Add(-time.Hour))}},
	)
	assert.Empty(t, res.Opportunities)
}

func TestScanEmptyCycleIsSilent(t *testing.T) {
	s := newScanner()
	res := s.Scan(time.Now(), testThresholds, nil, nil)
	assert.Empty(t, res.Opportunities)
	assert.Empty(t, res.Estimates)
	assert.Empty(t, res.Withdrawn)
}

func TestScanOrdersByDescendingEV(t *testing.T) {
	now := time.Now()
	s := newScanner()

	sharp := map[string][]domain.OutcomeQuote{}
	market := map[string][]domain.OutcomeQuote{}
	for id, pair := range map[string][2]float64{
		"OUT-A": {0.60, 0.50}, // EV 0.20
		"OUT-B": {0.55, 0.50}, // EV 0.10
		"OUT-C": {0.66, 0.50}, // EV 0.32
	} {
		sq := sharpQuote(pair[0], now)
		sq.OutcomeID = id
		mq := marketQuote(pair[1], pair[1], now)
		mq.OutcomeID = id
		sharp[id] = []domain.OutcomeQuote{sq}
		market[id] = []domain.OutcomeQuote{mq}
	}

	res := s.Scan(now, testThresholds, sharp, market)
	require.Len(t, res.Opportunities, 3)
	assert.Equal(t, "OUT-C", res.Opportunities[0].OutcomeID)
	assert.Equal(t, "OUT-A", res.Opportunities[1].OutcomeID)
	assert.Equal(t, "OUT-B", res.Opportunities[2].OutcomeID)
}
