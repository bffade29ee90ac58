// Package memory provides in-process store implementations for paper trading
// and tests. The Postgres stores are the durable production counterparts.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/solvys/predictipulse/internal/domain"
)

// OrderStore keeps orders in a map guarded by a mutex.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

var _ domain.OrderStore = (*OrderStore)(nil)

func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]domain.Order)}
}

func (s *OrderStore) Create(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.orders[o.ID] = o
	return nil
}

func (s *OrderStore) Update(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return domain.ErrNotFound
	}
	s.orders[o.ID] = o
	return nil
}

func (s *OrderStore) GetByID(_ context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *OrderStore) ListNonTerminal(_ context.Context) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for _, o := range s.orders {
		if !o.State.Terminal() {
			out = append(out, o)
		}
	}
	sortOrders(out)
	return out, nil
}

func (s *OrderStore) ListByOutcome(_ context.Context, outcomeID string, opts domain.ListOpts) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.OutcomeID != outcomeID {
			continue
		}
		if opts.Since != nil && o.CreatedAt.Before(*opts.Since) {
			continue
		}
		out = append(out, o)
	}
	sortOrders(out)
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func sortOrders(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}

// PositionStore keeps the latest position per outcome.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[string]domain.Position
}

var _ domain.PositionStore = (*PositionStore)(nil)

func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[string]domain.Position)}
}

func (s *PositionStore) Upsert(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.OutcomeID] = p
	return nil
}

func (s *PositionStore) Get(_ context.Context, outcomeID string) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[outcomeID]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *PositionStore) List(_ context.Context) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sortPositions(out)
	return out, nil
}

func (s *PositionStore) ListOpen(_ context.Context) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.Status == domain.PositionStatusOpen {
			out = append(out, p)
		}
	}
	sortPositions(out)
	return out, nil
}

func sortPositions(positions []domain.Position) {
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].OutcomeID < positions[j].OutcomeID
	})
}

// FillStore records fills keyed by venue fill id.
type FillStore struct {
	mu    sync.RWMutex
	fills map[string]domain.Fill
	order []string // insertion order for ListRecent
}

var _ domain.FillStore = (*FillStore)(nil)

func NewFillStore() *FillStore {
	return &FillStore{fills: make(map[string]domain.Fill)}
}

func (s *FillStore) Insert(_ context.Context, f domain.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fills[f.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.fills[f.ID] = f
	s.order = append(s.order, f.ID)
	return nil
}

func (s *FillStore) ListByOrder(_ context.Context, orderID string) ([]domain.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Fill
	for _, id := range s.order {
		if f := s.fills[id]; f.OrderID == orderID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *FillStore) ListRecent(_ context.Context, limit int) ([]domain.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && len(s.order) > limit {
		start = len(s.order) - limit
	}
	out := make([]domain.Fill, 0, len(s.order)-start)
	for _, id := range s.order[start:] {
		out = append(out, s.fills[id])
	}
	return out, nil
}
