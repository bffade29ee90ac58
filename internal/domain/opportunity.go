package domain

import "time"

// OrderSide indicates whether an opportunity or order buys or sells the
// outcome contract.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opportunity is a detected, EV-positive divergence between the sharp
// consensus probability and a prediction-market price for one outcome and
// direction. Opportunities are transient: a scan cycle creates them and the
// next cycle recomputes from scratch.
type Opportunity struct {
	ID          string
	OutcomeID   string
	Side        OrderSide
	Consensus   float64 // blended true probability
	MarketPrice float64 // venue price the EV was computed against
	EV          float64 // expected return per unit staked
	Stake       float64 // Kelly-derived target stake in dollars
	Venue       string
	CreatedAt   time.Time
}
