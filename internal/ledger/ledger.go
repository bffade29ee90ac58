// Package ledger maintains per-outcome positions and realized/unrealized
// profit and loss from venue fill and settlement events.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/solvys/predictipulse/internal/domain"
)

// Publisher receives position deltas for observability. The engine event bus
// satisfies it.
type Publisher interface {
	Publish(ev domain.Event)
}

// Ledger applies fills in venue order, keeps weighted-average entry prices,
// and marks open positions against the latest market quote. All methods are
// safe for concurrent use and snapshots never block the scan cycle.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]domain.Position
	applied   map[string]struct{} // venue fill ids already applied

	wins         int
	losses       int
	realizedWon  float64
	realizedLost float64

	store  domain.PositionStore
	fills  domain.FillStore
	pub    Publisher
	logger *slog.Logger
}

// New creates a Ledger persisting through the given stores. Either store may
// be nil for ephemeral (paper) operation.
func New(store domain.PositionStore, fills domain.FillStore, pub Publisher, logger *slog.Logger) *Ledger {
	return &Ledger{
		positions: make(map[string]domain.Position),
		applied:   make(map[string]struct{}),
		store:     store,
		fills:     fills,
		pub:       pub,
		logger:    logger.With(slog.String("component", "ledger")),
	}
}

// Restore loads persisted positions and recently applied fill ids so fill
// idempotency survives a restart.
func (l *Ledger) Restore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	positions, err := l.store.List(ctx)
	if err != nil {
		return fmt.Errorf("ledger: restore positions: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range positions {
		l.positions[p.OutcomeID] = p
	}

	if l.fills != nil {
		recent, err := l.fills.ListRecent(ctx, 10_000)
		if err != nil {
			return fmt.Errorf("ledger: restore fills: %w", err)
		}
		for _, f := range recent {
			l.applied[f.ID] = struct{}{}
		}
	}

	l.logger.Info("ledger restored",
		slog.Int("positions", len(l.positions)),
		slog.Int("known_fills", len(l.applied)),
	)
	return nil
}

// ApplyFill applies one venue fill to the outcome's position. Application is
// idempotent on the venue fill id: replaying a fill leaves the position
// unchanged and returns the current state.
func (l *Ledger) ApplyFill(ctx context.Context, f domain.Fill) (domain.Position, error) {
	if f.ID == "" || f.Size <= 0 {
		return domain.Position{}, fmt.Errorf("ledger: fill %q: invalid id or size", f.ID)
	}

	l.mu.Lock()
	if _, dup := l.applied[f.ID]; dup {
		pos := l.positions[f.OutcomeID]
		l.mu.Unlock()
		return pos, nil
	}

	pos := l.position(f.OutcomeID)
	delta := f.Size
	if f.Side == domain.OrderSideSell {
		delta = -f.Size
	}
	pos = apply(pos, delta, f.Price, f.Timestamp, l)
	l.positions[f.OutcomeID] = pos
	l.applied[f.ID] = struct{}{}
	l.mu.Unlock()

	if l.fills != nil {
		if err := l.fills.Insert(ctx, f); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			return pos, fmt.Errorf("ledger: persist fill %s: %w", f.ID, err)
		}
	}
	if err := l.persist(ctx, pos); err != nil {
		return pos, err
	}
	l.publishDelta(pos)
	return pos, nil
}

// ApplySettlement closes the outcome's position at the settlement result,
// realizing the remaining P&L.
func (l *Ledger) ApplySettlement(ctx context.Context, s domain.Settlement) (domain.Position, error) {
	l.mu.Lock()
	pos, ok := l.positions[s.OutcomeID]
	if !ok || pos.NetSize == 0 {
		l.mu.Unlock()
		if !ok {
			return domain.Position{}, domain.ErrNotFound
		}
		return pos, nil
	}
	pos = apply(pos, -pos.NetSize, s.Result, s.Timestamp, l)
	l.positions[s.OutcomeID] = pos
	l.mu.Unlock()

	if err := l.persist(ctx, pos); err != nil {
		return pos, err
	}
	l.publishDelta(pos)
	return pos, nil
}

// Mark recomputes an open position's unrealized P&L against the latest
// available quote.
func (l *Ledger) Mark(outcomeID string, markPrice float64, now time.Time) {
	if markPrice <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[outcomeID]
	if !ok || pos.NetSize == 0 {
		return
	}
	pos.MarkPrice = markPrice
	pos.UnrealizedPnL = valueMove(pos.NetSize, pos.AvgEntryPrice, markPrice)
	pos.UpdatedAt = now
	l.positions[outcomeID] = pos
}

// Get returns the position for one outcome.
func (l *Ledger) Get(outcomeID string) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[outcomeID]
	return pos, ok
}

// Snapshot returns a point-in-time copy of every position, closed history
// included.
func (l *Ledger) Snapshot() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	return out
}

// Summary aggregates realized performance across all positions the way the
// account status endpoint reports it.
func (l *Ledger) Summary(bankroll, initialBankroll float64, now time.Time) domain.AccountSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var realized, unrealized float64
	for _, p := range l.positions {
		realized += p.RealizedPnL
		unrealized += p.UnrealizedPnL
	}

	trades := l.wins + l.losses
	summary := domain.AccountSummary{
		Bankroll:        bankroll,
		InitialBankroll: initialBankroll,
		TotalPnL:        realized + unrealized,
		RealizedPnL:     realized,
		UnrealizedPnL:   unrealized,
		Trades:          trades,
		Wins:            l.wins,
		Losses:          l.losses,
		UpdatedAt:       now,
	}
	if trades > 0 {
		summary.WinRate = float64(l.wins) / float64(trades) * 100
	}
	if l.wins > 0 && l.losses > 0 {
		avgWin := l.realizedWon / float64(l.wins)
		avgLoss := l.realizedLost / float64(l.losses)
		if avgLoss > 0 {
			summary.AvgRiskReward = avgWin / avgLoss
		}
	}
	return summary
}

// position returns the current position or a fresh open one.
func (l *Ledger) position(outcomeID string) domain.Position {
	if pos, ok := l.positions[outcomeID]; ok {
		return pos
	}
	return domain.Position{OutcomeID: outcomeID, Status: domain.PositionStatusOpen}
}

// apply mutates pos by a signed size delta at the given price using
// weighted-average entry accounting. Reducing fills realize P&L against the
// average entry; a fill crossing through zero opens the residual at the fill
// price.
func apply(pos domain.Position, delta, price float64, ts time.Time, l *Ledger) domain.Position {
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = ts
	}

	same := pos.NetSize == 0 || (pos.NetSize > 0) == (delta > 0)
	switch {
	case same:
		total := pos.NetSize + delta
		if total != 0 {
			pos.AvgEntryPrice = (math.Abs(pos.NetSize)*pos.AvgEntryPrice + math.Abs(delta)*price) / math.Abs(total)
		}
		pos.NetSize = total
	case math.Abs(delta) <= math.Abs(pos.NetSize):
		// Reducing fill: realize against average entry.
		closed := math.Abs(delta)
		pnl := valueMove(closed, pos.AvgEntryPrice, price)
		if pos.NetSize < 0 {
			pnl = -pnl
		}
		l.recordRealized(pnl)
		pos.RealizedPnL += pnl
		pos.NetSize += delta
		if pos.NetSize == 0 {
			pos.AvgEntryPrice = 0
			pos.UnrealizedPnL = 0
			pos.Status = domain.PositionStatusClosed
		}
	default:
		// Crossing through zero: close the whole position, open the residual.
		closed := math.Abs(pos.NetSize)
		pnl := valueMove(closed, pos.AvgEntryPrice, price)
		if pos.NetSize < 0 {
			pnl = -pnl
		}
		l.recordRealized(pnl)
		pos.RealizedPnL += pnl
		pos.NetSize += delta
		pos.AvgEntryPrice = price
	}

	if pos.NetSize != 0 {
		pos.Status = domain.PositionStatusOpen
	}
	pos.UpdatedAt = ts
	return pos
}

// valueMove converts a dollar stake entered at avgEntry into contract
// exposure and values the move to price. A $100 stake at 0.50 controls 200
// contracts, so settling at 1 yields +$100 and settling at 0 loses the full
// stake.
func valueMove(stake, avgEntry, price float64) float64 {
	if avgEntry <= 0 {
		return 0
	}
	return stake / avgEntry * (price - avgEntry)
}

func (l *Ledger) recordRealized(pnl float64) {
	switch {
	case pnl > 0:
		l.wins++
		l.realizedWon += pnl
	case pnl < 0:
		l.losses++
		l.realizedLost += -pnl
	}
}

func (l *Ledger) persist(ctx context.Context, pos domain.Position) error {
	if l.store == nil {
		return nil
	}
	if err := l.store.Upsert(ctx, pos); err != nil {
		return fmt.Errorf("ledger: persist position %s: %w", pos.OutcomeID, err)
	}
	return nil
}

func (l *Ledger) publishDelta(pos domain.Position) {
	if l.pub == nil {
		return
	}
	p := pos
	l.pub.Publish(domain.Event{
		Type:     domain.EventPositionDelta,
		Producer: "ledger",
		Position: &p,
	})
}
