package domain

import "context"

// QuoteFeed is the narrow contract every feed collaborator (sharp book or
// prediction-market venue) satisfies: a pull snapshot plus a push stream of
// normalized quotes. Feeds may gap or reconnect; the engine treats a gap as
// staleness, never as an error.
type QuoteFeed interface {
	Name() string
	CurrentQuotes(ctx context.Context) ([]OutcomeQuote, error)
	// Subscribe returns an unbounded sequence of new quotes. The channel is
	// closed when the context is cancelled.
	Subscribe(ctx context.Context) (<-chan OutcomeQuote, error)
}

// OrderAck is the venue's response to a submission.
type OrderAck struct {
	VenueOrderID string
	Accepted     bool
	Reason       string
}

// VenuePosition is a venue-reported holding used for restart reconciliation.
type VenuePosition struct {
	OutcomeID string
	NetSize   float64
	AvgPrice  float64
}

// VenueOrderStatus is the venue's current view of one order, used to
// reconcile non-terminal local orders on startup.
type VenueOrderStatus struct {
	VenueOrderID string
	State        OrderState
	FilledSize   float64
}

// ExecutionVenue is the trade-execution collaborator contract. All calls may
// fail with a *VenueError whose Transient flag drives the lifecycle manager's
// retry policy.
type ExecutionVenue interface {
	Name() string
	Submit(ctx context.Context, order Order) (OrderAck, error)
	PollFills(ctx context.Context, venueOrderID string) ([]Fill, error)
	Cancel(ctx context.Context, venueOrderID string) error
	GetOrder(ctx context.Context, venueOrderID string) (VenueOrderStatus, error)
	GetPositions(ctx context.Context) ([]VenuePosition, error)
	GetBalance(ctx context.Context) (float64, error)
	MinOrderSize() float64
}
