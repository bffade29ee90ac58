package domain

import "time"

// EventType discriminates engine bus events.
type EventType string

const (
	EventOpportunity   EventType = "opportunity"
	EventOrderUpdate   EventType = "order_update"
	EventPositionDelta EventType = "position_delta"
	EventConsensus     EventType = "consensus"
)

// Event is one state transition published on the engine event bus: an
// Opportunity, an Order transition, or a Position delta. Exactly one of the
// payload pointers is set, per Type.
type Event struct {
	Type        EventType
	At          time.Time
	Producer    string
	Opportunity *Opportunity
	Order       *Order
	Position    *Position
	Consensus   *ConsensusEstimate
}
