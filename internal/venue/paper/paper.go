// Package paper implements an in-process execution venue that fills orders
// immediately at the requested price. It backs paper-trading mode so the
// whole pipeline runs with no live venue behind it.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solvys/predictipulse/internal/domain"
)

// Venue simulates an execution venue with a cash balance. Every submission is
// acknowledged and filled in full at the requested price on the next poll.
type Venue struct {
	mu       sync.Mutex
	balance  float64
	minOrder float64
	orders   map[string]*paperOrder // by venue order id
	logger   *slog.Logger
}

type paperOrder struct {
	order  domain.Order
	fill   domain.Fill
	status domain.OrderState
}

var _ domain.ExecutionVenue = (*Venue)(nil)

// New creates a paper venue with the given starting balance.
func New(startingBalance, minOrder float64, logger *slog.Logger) *Venue {
	if minOrder <= 0 {
		minOrder = 1
	}
	return &Venue{
		balance:  startingBalance,
		minOrder: minOrder,
		orders:   make(map[string]*paperOrder),
		logger:   logger.With(slog.String("component", "paper_venue")),
	}
}

// Name identifies the venue.
func (v *Venue) Name() string { return "paper" }

// MinOrderSize is the smallest accepted stake in dollars.
func (v *Venue) MinOrderSize() float64 { return v.minOrder }

// Submit acknowledges the order and schedules an immediate full fill. A stake
// exceeding the remaining balance is rejected the way a live venue would.
func (v *Venue) Submit(_ context.Context, order domain.Order) (domain.OrderAck, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if order.Size > v.balance {
		return domain.OrderAck{Accepted: false, Reason: "insufficient balance"}, nil
	}
	v.balance -= order.Size

	venueID := uuid.New().String()
	v.orders[venueID] = &paperOrder{
		order:  order,
		status: domain.OrderStateFilled,
		fill: domain.Fill{
			ID:        uuid.New().String(),
			OutcomeID: order.OutcomeID,
			Side:      order.Side,
			Price:     order.Price,
			Size:      order.Size,
			Seq:       1,
			Timestamp: time.Now().UTC(),
		},
	}
	v.logger.Info("paper fill",
		slog.String("outcome", order.OutcomeID),
		slog.String("side", string(order.Side)),
		slog.Float64("price", order.Price),
		slog.Float64("size", order.Size),
	)
	return domain.OrderAck{VenueOrderID: venueID, Accepted: true}, nil
}

// PollFills returns the single simulated fill for the order.
func (v *Venue) PollFills(_ context.Context, venueOrderID string) ([]domain.Fill, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	po, ok := v.orders[venueOrderID]
	if !ok {
		return nil, &domain.VenueError{
			Venue: v.Name(), Op: "poll_fills", Msg: fmt.Sprintf("unknown order %s", venueOrderID),
		}
	}
	return []domain.Fill{po.fill}, nil
}

// Cancel is a no-op for already-filled paper orders.
func (v *Venue) Cancel(_ context.Context, venueOrderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.orders[venueOrderID]; !ok {
		return domain.ErrNotFound
	}
	return nil
}

// GetOrder reports the simulated order state.
func (v *Venue) GetOrder(_ context.Context, venueOrderID string) (domain.VenueOrderStatus, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	po, ok := v.orders[venueOrderID]
	if !ok {
		return domain.VenueOrderStatus{}, &domain.VenueError{
			Venue: v.Name(), Op: "get_order", Msg: fmt.Sprintf("unknown order %s", venueOrderID),
		}
	}
	return domain.VenueOrderStatus{
		VenueOrderID: venueOrderID,
		State:        po.status,
		FilledSize:   po.fill.Size,
	}, nil
}

// GetPositions aggregates simulated fills per outcome.
func (v *Venue) GetPositions(_ context.Context) ([]domain.VenuePosition, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	byOutcome := make(map[string]*domain.VenuePosition)
	for _, po := range v.orders {
		p, ok := byOutcome[po.fill.OutcomeID]
		if !ok {
			p = &domain.VenuePosition{OutcomeID: po.fill.OutcomeID}
			byOutcome[po.fill.OutcomeID] = p
		}
		delta := po.fill.Size
		if po.fill.Side == domain.OrderSideSell {
			delta = -delta
		}
		p.NetSize += delta
		p.AvgPrice = po.fill.Price
	}

	out := make([]domain.VenuePosition, 0, len(byOutcome))
	for _, p := range byOutcome {
		out = append(out, *p)
	}
	return out, nil
}

// GetBalance returns the remaining simulated cash.
func (v *Venue) GetBalance(_ context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance, nil
}

// Credit returns realized proceeds to the simulated balance, used when a
// position closes or settles.
func (v *Venue) Credit(amount float64) {
	v.mu.Lock()
	v.balance += amount
	v.mu.Unlock()
}
