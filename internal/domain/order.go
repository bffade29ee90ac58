package domain

import "time"

// OrderState tracks the order lifecycle. Filled, Cancelled, Rejected and
// Failed are terminal. Unknown is the explicit "reconcile on restart" state
// reached when shutdown interrupts an in-flight transition.
type OrderState string

const (
	OrderStateCreated         OrderState = "created"
	OrderStateSubmitted       OrderState = "submitted"
	OrderStateAcknowledged    OrderState = "acknowledged"
	OrderStatePartiallyFilled OrderState = "partially_filled"
	OrderStateFilled          OrderState = "filled"
	OrderStateCancelled       OrderState = "cancelled"
	OrderStateRejected        OrderState = "rejected"
	OrderStateFailed          OrderState = "failed"
	OrderStateUnknown         OrderState = "unknown"
)

// Terminal reports whether the state admits no further transitions.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCancelled, OrderStateRejected, OrderStateFailed:
		return true
	}
	return false
}

// orderTransitions enumerates the legal lifecycle edges. Failed is reachable
// from any non-terminal state on an unrecoverable venue error, so it is
// handled separately in CanTransition.
var orderTransitions = map[OrderState][]OrderState{
	OrderStateCreated:         {OrderStateSubmitted},
	OrderStateSubmitted:       {OrderStateAcknowledged, OrderStateRejected},
	OrderStateAcknowledged:    {OrderStatePartiallyFilled, OrderStateFilled, OrderStateCancelled},
	OrderStatePartiallyFilled: {OrderStatePartiallyFilled, OrderStateFilled, OrderStateCancelled},
	OrderStateUnknown:         {OrderStateAcknowledged, OrderStateFilled, OrderStateCancelled, OrderStateRejected},
}

// CanTransition reports whether moving from one lifecycle state to another is
// legal under the state machine.
func CanTransition(from, to OrderState) bool {
	if from.Terminal() {
		return false
	}
	if to == OrderStateFailed || to == OrderStateUnknown {
		return true
	}
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Order is a single submission decision driven to completion by the lifecycle
// manager, which owns it exclusively from creation to a terminal state. The
// stake captured from the originating Opportunity is never recomputed after
// submission.
type Order struct {
	ID             string
	IdempotencyKey string // attached at dispatch; a retried submission can never double-execute
	VenueOrderID   string // assigned by the venue on acknowledgement
	OutcomeID      string
	Side           OrderSide
	Price          float64 // requested limit price, probability-scaled
	Size           float64 // requested stake in dollars
	FilledSize     float64
	State          OrderState
	Reason         string // venue-supplied rejection/failure reason
	RetryCount     int
	OpportunityID  string
	CreatedAt      time.Time
	SubmittedAt    *time.Time
	AckedAt        *time.Time
	ClosedAt       *time.Time // set on entering a terminal state
}

// Fill is one venue-reported execution against an order. ID is the venue fill
// id and doubles as the idempotency key: the ledger applies each fill exactly
// once.
type Fill struct {
	ID        string
	OrderID   string
	OutcomeID string
	Side      OrderSide
	Price     float64
	Size      float64
	Seq       int64 // venue-assigned sequence; 0 when the venue provides none
	Timestamp time.Time
}

// Settlement reports the terminal resolution of an outcome: Result is 1 when
// the outcome occurred, 0 when it did not.
type Settlement struct {
	OutcomeID string
	Result    float64
	Timestamp time.Time
}
