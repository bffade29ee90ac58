// Package scanner joins consensus probabilities against prediction-market
// quotes and emits EV-qualified opportunities.
package scanner

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/solvys/predictipulse/internal/consensus"
	"github.com/solvys/predictipulse/internal/domain"
)

// Thresholds are the EV and probability filters applied to each candidate
// direction. The probability band filters out near-certain outcomes where
// modeling error dominates the apparent EV. Callers pass Thresholds per
// cycle, so reconfiguration takes effect on the next cycle and never
// mid-cycle.
type Thresholds struct {
	TargetBuyEV  float64
	TargetSellEV float64
	MinTrueProb  float64
	MaxTrueProb  float64
}

// Scanner computes per-cycle opportunities. It holds no mutable state; one
// Scan call is one cycle over a consistent snapshot.
type Scanner struct {
	model  consensus.Model
	logger *slog.Logger
}

// New creates a Scanner that blends sharp quotes through the given consensus
// model.
func New(model consensus.Model, logger *slog.Logger) *Scanner {
	return &Scanner{
		model:  model,
		logger: logger.With(slog.String("component", "scanner")),
	}
}

// BuyEV is the expected return per unit staked buying at price given true
// probability p.
func BuyEV(p, price float64) float64 {
	return p/price - 1
}

// SellEV is the expected return per unit staked selling at price given true
// probability p.
func SellEV(p, price float64) float64 {
	return (1-p)/(1-price) - 1
}

// Result is the outcome of one scan cycle.
type Result struct {
	Opportunities []domain.Opportunity       // qualifying, highest EV first
	Estimates     []domain.ConsensusEstimate // fresh consensus per outcome
	Withdrawn     []string                   // outcomes whose every input expired
}

// Scan runs one cycle: blend a consensus estimate per outcome from the sharp
// snapshot, join it against the market snapshot, and emit zero or one
// opportunity per direction per outcome and venue. Buy and sell may both
// qualify for the same outcome in one cycle. An empty cycle is a normal,
// silent outcome, and a withdrawn or malformed outcome never disturbs
// unrelated ones.
//
// Opportunities are returned in descending EV order so callers short on
// bankroll take the best edges first.
func (s *Scanner) Scan(now time.Time, th Thresholds, sharp, market map[string][]domain.OutcomeQuote) Result {
	var res Result

	for outcomeID, quotes := range sharp {
		est, err := s.model.Blend(outcomeID, quotes, now)
		if err != nil {
			// Withdrawn consensus is a valid terminal state for the outcome.
			res.Withdrawn = append(res.Withdrawn, outcomeID)
			continue
		}
		res.Estimates = append(res.Estimates, est)

		if est.Prob < th.MinTrueProb || est.Prob > th.MaxTrueProb {
			continue
		}

		for _, mq := range market[outcomeID] {
			if mq.StaleAt(now, s.model.MaxQuoteAge) {
				continue
			}
			res.Opportunities = append(res.Opportunities, s.evaluate(est, mq, th, now)...)
		}
	}

	sort.Slice(res.Opportunities, func(i, j int) bool {
		return res.Opportunities[i].EV > res.Opportunities[j].EV
	})
	sort.Strings(res.Withdrawn)
	return res
}

// evaluate checks both directions of one consensus/quote join against the EV
// thresholds.
func (s *Scanner) evaluate(est domain.ConsensusEstimate, mq domain.OutcomeQuote, th Thresholds, now time.Time) []domain.Opportunity {
	var opps []domain.Opportunity

	if buyPrice := mq.BuyPrice(); buyPrice > 0 && buyPrice < 1 {
		if ev := BuyEV(est.Prob, buyPrice); ev >= th.TargetBuyEV {
			opps = append(opps, domain.Opportunity{
				ID:          uuid.New().String(),
				OutcomeID:   est.OutcomeID,
				Side:        domain.OrderSideBuy,
				Consensus:   est.Prob,
				MarketPrice: buyPrice,
				EV:          ev,
				Venue:       mq.Venue,
				CreatedAt:   now,
			})
		}
	}

	if sellPrice := mq.SellPrice(); sellPrice > 0 && sellPrice < 1 {
		if ev := SellEV(est.Prob, sellPrice); ev >= th.TargetSellEV {
			opps = append(opps, domain.Opportunity{
				ID:          uuid.New().String(),
				OutcomeID:   est.OutcomeID,
				Side:        domain.OrderSideSell,
				Consensus:   est.Prob,
				MarketPrice: sellPrice,
				EV:          ev,
				Venue:       mq.Venue,
				CreatedAt:   now,
			})
		}
	}

	if len(opps) > 0 {
		s.logger.Debug("edges found",
			slog.String("outcome", est.OutcomeID),
			slog.Int("count", len(opps)),
		)
	}
	return opps
}
