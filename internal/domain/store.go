package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
}

// OrderStore persists orders. Non-terminal orders must survive a restart so
// the lifecycle manager can reconcile them against venue state before
// resuming submissions.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	Update(ctx context.Context, order Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListNonTerminal(ctx context.Context) ([]Order, error)
	ListByOutcome(ctx context.Context, outcomeID string, opts ListOpts) ([]Order, error)
}

// PositionStore persists the position ledger, keyed by outcome id.
type PositionStore interface {
	Upsert(ctx context.Context, pos Position) error
	Get(ctx context.Context, outcomeID string) (Position, error)
	List(ctx context.Context) ([]Position, error)
	ListOpen(ctx context.Context) ([]Position, error)
}

// FillStore persists applied fills. Insert returns ErrAlreadyExists for a
// duplicate fill id, which is how fill application stays idempotent across
// restarts.
type FillStore interface {
	Insert(ctx context.Context, fill Fill) error
	ListByOrder(ctx context.Context, orderID string) ([]Fill, error)
	ListRecent(ctx context.Context, limit int) ([]Fill, error)
}
