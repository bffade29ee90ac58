package ledger

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvys/predictipulse/internal/domain"
)

func newTestLedger() *Ledger {
	return New(nil, nil, nil, slog.Default())
}

func fill(id string, side domain.OrderSide, price, size float64) domain.Fill {
	return domain.Fill{
		ID:        id,
		OrderID:   "ord-1",
		OutcomeID: "NBA-LAL-BOS-LAL",
		Side:      side,
		Price:     price,
		Size:      size,
		Timestamp: time.Now(),
	}
}

func TestApplyFillOpensPosition(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	pos, err := l.ApplyFill(ctx, fill("f1", domain.OrderSideBuy, 0.50, 100))
	require.NoError(t, err)
	assert.InDelta(t, 100, pos.NetSize, 1e-9)
	assert.InDelta(t, 0.50, pos.AvgEntryPrice, 1e-9)
	assert.Equal(t, domain.PositionStatusOpen, pos.Status)
}

func TestApplyFillIdempotentOnFillID(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	first, err := l.ApplyFill(ctx, fill("f1", domain.OrderSideBuy, 0.50, 100))
	require.NoError(t, err)

	// Same venue fill id replayed: position unchanged.
	second, err := l.ApplyFill(ctx, fill("f1", domain.OrderSideBuy, 0.50, 100))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.InDelta(t, 100, second.NetSize, 1e-9)
}

func TestWeightedAverageEntry(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.ApplyFill(ctx, fill("f1", domain.OrderSideBuy, 0.40, 100))
	require.NoError(t, err)
	pos, err := l.ApplyFill(ctx, fill("f2", domain.OrderSideBuy, 0.60, 100))
	require.NoError(t, err)

	assert.InDelta(t, 200, pos.NetSize, 1e-9)
	assert.InDelta(t, 0.50, pos.AvgEntryPrice, 1e-9)
}

func TestReducingFillRealizesPnL(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.ApplyFill(ctx, fill("f1", domain.OrderSideBuy, 0.50, 100))
	require.NoError(t, err)
	pos, err := l.ApplyFill(ctx, fill("f2", domain.OrderSideSell, 0.60, 40))
	require.NoError(t, err)

	// $40 of the stake closed: 80 contracts at entry 0.50, +0.10 each.
	assert.InDelta(t, 60, pos.NetSize, 1e-9)
	assert.InDelta(t, 40/0.50*(0.60-0.50), pos.RealizedPnL, 1e-9)
	assert.InDelta(t, 0.50, pos.AvgEntryPrice, 1e-9) // average entry untouched by reduction
}

func TestCloseRetainsPositionAsHistory(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.ApplyFill(ctx, fill("f1", domain.OrderSideBuy, 0.50, 100))
	require.NoError(t, err)
	pos, err := l.ApplyFill(ctx, fill("f2", domain.OrderSideSell, 0.45, 100))
	require.NoError(t, err)

	// 200 contracts at entry 0.50, closed at 0.45: -0.05 each.
	assert.Zero(t, pos.NetSize)
	assert.Equal(t, domain.PositionStatusClosed, pos.Status)
	assert.InDelta(t, -10.0, pos.RealizedPnL, 1e-9)

	// Still queryable after close.
	got, ok := l.Get("NBA-LAL-BOS-LAL")
	require.True(t, ok)
	assert.Equal(t, pos, got)
}

func TestShortPositionAccounting(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.ApplyFill(ctx, fill("f1", domain.OrderSideSell, 0.70, 50))
	require.NoError(t, err)
	pos, err := l.ApplyFill(ctx, fill("f2", domain.OrderSideBuy, 0.60, 50))
	require.NoError(t, err)

	// $50 short at 0.70 is 50/0.70 contracts, covered 0.10 cheaper each.
	assert.Zero(t, pos.NetSize)
	assert.InDelta(t, 50/0.70*(0.70-0.60), pos.RealizedPnL, 1e-9)
}

func TestCrossingThroughZeroReopensAtFillPrice(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.ApplyFill(ctx, fill("f1", domain.OrderSideBuy, 0.50, 100))
	require.NoError(t, err)
	pos, err := l.ApplyFill(ctx, fill("f2", domain.OrderSideSell, 0.55, 150))
	require.NoError(t, err)

	assert.InDelta(t, -50, pos.NetSize, 1e-9)
	assert.InDelta(t, 0.55, pos.AvgEntryPrice, 1e-9)
	assert.InDelta(t, 100/0.50*(0.55-0.50), pos.RealizedPnL, 1e-9)
}

func TestMarkComputesUnrealized(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.ApplyFill(ctx, fill("f1", domain.OrderSideBuy, 0.50, 100))
	require.NoError(t, err)

	l.Mark("NBA-LAL-BOS-LAL", 0.58, time.Now())
	pos, ok := l.Get("NBA-LAL-BOS-LAL")
	require.True(t, ok)
	assert.InDelta(t, 100/0.50*(0.58-0.50), pos.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 0.58, pos.MarkPrice, 1e-9)
}

func TestSettlementClosesAtResult(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.ApplyFill(ctx, fill("f1", domain.OrderSideBuy, 0.40, 100))
	require.NoError(t, err)

	pos, err := l.ApplySettlement(ctx, domain.Settlement{
		OutcomeID: "NBA-LAL-BOS-LAL",
		Result:    1.0,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.Zero(t, pos.NetSize)
	assert.Equal(t, domain.PositionStatusClosed, pos.Status)
	assert.InDelta(t, 100/0.40*(1.0-0.40), pos.RealizedPnL, 1e-9)
}

func TestSettlementPaysFullContractValue(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	// A $100 stake at 0.50 is 200 contracts. Settling at 1 pays the
	// contracts out at a dollar each: +$100, not +$50.
	_, err := l.ApplyFill(ctx, fill("f1", domain.OrderSideBuy, 0.50, 100))
	require.NoError(t, err)

	pos, err := l.ApplySettlement(ctx, domain.Settlement{
		OutcomeID: "NBA-LAL-BOS-LAL",
		Result:    1.0,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.InDelta(t, 100.0, pos.RealizedPnL, 1e-9)
}

func TestSettlementAtZeroLosesWholeStake(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.ApplyFill(ctx, fill("f1", domain.OrderSideBuy, 0.50, 100))
	require.NoError(t, err)

	pos, err := l.ApplySettlement(ctx, domain.Settlement{
		OutcomeID: "NBA-LAL-BOS-LAL",
		Result:    0,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.InDelta(t, -100.0, pos.RealizedPnL, 1e-9)
}

func TestSettlementUnknownOutcome(t *testing.T) {
	l := newTestLedger()
	_, err := l.ApplySettlement(context.Background(), domain.Settlement{OutcomeID: "nope", Result: 1})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSummaryStats(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	// Win +20 on one outcome, loss -10 on another.
	_, err := l.ApplyFill(ctx, fill("f1", domain.OrderSideBuy, 0.50, 100))
	require.NoError(t, err)
	_, err = l.ApplyFill(ctx, fill("f2", domain.OrderSideSell, 0.60, 100))
	require.NoError(t, err)

	other := fill("f3", domain.OrderSideBuy, 0.50, 100)
	other.OutcomeID = "OUT-B"
	_, err = l.ApplyFill(ctx, other)
	require.NoError(t, err)
	closeOther := fill("f4", domain.OrderSideSell, 0.45, 100)
	closeOther.OutcomeID = "OUT-B"
	_, err = l.ApplyFill(ctx, closeOther)
	require.NoError(t, err)

	sum := l.Summary(1010, 1000, time.Now())
	assert.Equal(t, 2, sum.Trades)
	assert.Equal(t, 1, sum.Wins)
	assert.Equal(t, 1, sum.Losses)
	assert.InDelta(t, 50.0, sum.WinRate, 1e-9)
	assert.InDelta(t, 10.0, sum.RealizedPnL, 1e-9)
	assert.InDelta(t, 2.0, sum.AvgRiskReward, 1e-9) // avg win 20 over avg loss 10
}
