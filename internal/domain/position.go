package domain

import "time"

// PositionStatus tracks whether a position is open or closed. Closed
// positions are retained as history markers and stay queryable.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Position is the per-outcome net holding maintained by the ledger. It is
// mutated only by the ledger in response to fill and settlement events, one
// size change per fill.
type Position struct {
	OutcomeID     string
	NetSize       float64 // positive long, negative short
	AvgEntryPrice float64 // weighted-average entry accounting
	RealizedPnL   float64
	UnrealizedPnL float64 // marked against the latest available quote
	MarkPrice     float64 // quote the unrealized figure was marked at
	Status        PositionStatus
	OpenedAt      time.Time
	UpdatedAt     time.Time
}

// AccountSummary is the engine's pull snapshot of bankroll and realized
// performance.
type AccountSummary struct {
	Bankroll        float64
	InitialBankroll float64
	TotalPnL        float64
	RealizedPnL     float64
	UnrealizedPnL   float64
	Trades          int
	Wins            int
	Losses          int
	WinRate         float64 // percent
	AvgRiskReward   float64 // average win over average loss
	UpdatedAt       time.Time
}
