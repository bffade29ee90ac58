package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvys/predictipulse/internal/domain"
)

func order(id, outcomeID string, createdAt time.Time) domain.Order {
	return domain.Order{
		ID:        id,
		OutcomeID: outcomeID,
		Side:      domain.OrderSideBuy,
		Price:     0.50,
		Size:      10,
		State:     domain.OrderStateCreated,
		CreatedAt: createdAt,
	}
}

func TestOrderStoreCreateRejectsDuplicate(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, order("o1", "OUT-A", time.Now())))
	err := s.Create(ctx, order("o1", "OUT-A", time.Now()))
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestOrderStoreUpdateUnknown(t *testing.T) {
	s := NewOrderStore()
	err := s.Update(context.Background(), order("missing", "OUT-A", time.Now()))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListByOutcomeFiltersAndOrders(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Create(ctx, order("o2", "OUT-A", base.Add(2*time.Minute))))
	require.NoError(t, s.Create(ctx, order("o1", "OUT-A", base)))
	require.NoError(t, s.Create(ctx, order("o3", "OUT-B", base.Add(time.Minute))))

	got, err := s.ListByOutcome(ctx, "OUT-A", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "o1", got[0].ID) // oldest first
	assert.Equal(t, "o2", got[1].ID)
}

func TestListByOutcomeHonorsListOpts(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"o1", "o2", "o3", "o4"} {
		require.NoError(t, s.Create(ctx, order(id, "OUT-A", base.Add(time.Duration(i)*time.Minute))))
	}

	limited, err := s.ListByOutcome(ctx, "OUT-A", domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "o1", limited[0].ID)

	offset, err := s.ListByOutcome(ctx, "OUT-A", domain.ListOpts{Offset: 3})
	require.NoError(t, err)
	require.Len(t, offset, 1)
	assert.Equal(t, "o4", offset[0].ID)

	since := base.Add(2 * time.Minute)
	recent, err := s.ListByOutcome(ctx, "OUT-A", domain.ListOpts{Since: &since})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "o3", recent[0].ID)

	past, err := s.ListByOutcome(ctx, "OUT-A", domain.ListOpts{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestListNonTerminalSkipsTerminalStates(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()

	open := order("o1", "OUT-A", time.Now())
	done := order("o2", "OUT-A", time.Now())
	done.State = domain.OrderStateFilled
	require.NoError(t, s.Create(ctx, open))
	require.NoError(t, s.Create(ctx, done))

	got, err := s.ListNonTerminal(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "o1", got[0].ID)
}

func TestFillStoreInsertIdempotencyKey(t *testing.T) {
	s := NewFillStore()
	ctx := context.Background()

	f := domain.Fill{ID: "f1", OrderID: "o1", OutcomeID: "OUT-A", Price: 0.5, Size: 10}
	require.NoError(t, s.Insert(ctx, f))
	require.ErrorIs(t, s.Insert(ctx, f), domain.ErrAlreadyExists)
}

func TestFillStoreListRecentKeepsTail(t *testing.T) {
	s := NewFillStore()
	ctx := context.Background()

	for _, id := range []string{"f1", "f2", "f3"} {
		require.NoError(t, s.Insert(ctx, domain.Fill{ID: id, OrderID: "o1", Price: 0.5, Size: 1}))
	}

	got, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "f2", got[0].ID)
	assert.Equal(t, "f3", got[1].ID)
}
