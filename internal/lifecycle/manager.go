// Package lifecycle drives orders from creation to a terminal state. The
// manager is the only component that mutates venue-side state; every other
// component sees orders read-only through the event bus and the order store.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solvys/predictipulse/internal/domain"
)

// Publisher receives order transition events. The engine event bus satisfies
// it.
type Publisher interface {
	Publish(ev domain.Event)
}

// FillSink consumes venue fills exactly once per fill id. The position ledger
// satisfies it.
type FillSink interface {
	ApplyFill(ctx context.Context, f domain.Fill) (domain.Position, error)
}

// Config holds the retry and polling parameters.
type Config struct {
	MaxAttempts   int           // submission attempts before Failed
	BaseBackoff   time.Duration // first retry delay, doubled per attempt
	MaxBackoff    time.Duration // backoff ceiling
	SubmitTimeout time.Duration // per-attempt venue call timeout
	PollInterval  time.Duration // fill polling cadence
	LockTTL       time.Duration // outcome submission lock TTL
}

// Defaults returns the production retry policy.
func Defaults() Config {
	return Config{
		MaxAttempts:   4,
		BaseBackoff:   500 * time.Millisecond,
		MaxBackoff:    15 * time.Second,
		SubmitTimeout: 10 * time.Second,
		PollInterval:  2 * time.Second,
		LockTTL:       30 * time.Second,
	}
}

// Manager owns every Order from creation to terminal state. Submission holds
// an outcome-level lock for the submission window so overlapping scan cycles
// can never put two live orders on the same outcome and direction; fill
// tracking runs on one goroutine per outstanding order.
type Manager struct {
	venue  domain.ExecutionVenue
	orders domain.OrderStore
	locks  domain.LockManager
	fills  FillSink
	pub    Publisher
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	runCtx   context.Context
	inflight map[string]domain.Order // non-terminal orders by id, for drain
	wg       sync.WaitGroup
}

// NewManager creates a Manager. Start must be called before Execute.
func NewManager(
	venue domain.ExecutionVenue,
	orders domain.OrderStore,
	locks domain.LockManager,
	fills FillSink,
	pub Publisher,
	cfg Config,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		venue:    venue,
		orders:   orders,
		locks:    locks,
		fills:    fills,
		pub:      pub,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "lifecycle")),
		inflight: make(map[string]domain.Order),
	}
}

// Start binds the manager to its run context. Fill pollers live on this
// context, not on the scan cycle that triggered the order.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.runCtx = ctx
	m.mu.Unlock()
}

// Drain waits for in-flight order goroutines to finish after the run context
// is cancelled. Orders still non-terminal afterwards are marked Unknown so a
// restart reconciles them rather than silently discarding them.
func (m *Manager) Drain() {
	m.wg.Wait()

	m.mu.Lock()
	stranded := make([]domain.Order, 0, len(m.inflight))
	for _, o := range m.inflight {
		stranded = append(stranded, o)
	}
	m.mu.Unlock()

	for _, o := range stranded {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		m.transition(ctx, &o, domain.OrderStateUnknown, "shutdown before terminal state")
		cancel()
		m.logger.Warn("order left unknown at shutdown, will reconcile on restart",
			slog.String("order_id", o.ID),
			slog.String("outcome", o.OutcomeID),
		)
	}
}

// Execute turns a sized opportunity into an order and drives it to
// acknowledgement, then hands fill tracking to a background poller. The
// outcome-level submission lock is held for the submission window only.
//
// It returns domain.ErrLockHeld when another order for the same outcome and
// direction is already in its submission window.
func (m *Manager) Execute(ctx context.Context, opp domain.Opportunity) (domain.Order, error) {
	unlock, err := m.locks.Acquire(ctx, submissionKey(opp.OutcomeID, opp.Side), m.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			m.logger.Debug("submission lock held, skipping opportunity",
				slog.String("outcome", opp.OutcomeID),
				slog.String("side", string(opp.Side)),
			)
		}
		return domain.Order{}, err
	}
	defer unlock()

	order := domain.Order{
		ID:             uuid.New().String(),
		IdempotencyKey: uuid.New().String(),
		OutcomeID:      opp.OutcomeID,
		Side:           opp.Side,
		Price:          opp.MarketPrice,
		Size:           opp.Stake,
		State:          domain.OrderStateCreated,
		OpportunityID:  opp.ID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := m.orders.Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("lifecycle: create order: %w", err)
	}
	m.track(order)
	m.publish(order)

	order, err = m.submit(ctx, order)
	if err != nil || order.State.Terminal() {
		m.untrack(order)
		return order, err
	}

	// Acknowledged: fill tracking continues on the manager's run context so
	// it outlives the scan cycle that produced the opportunity.
	m.spawnPoller(order)
	return order, nil
}

// submit dispatches the order, retrying transient venue failures with
// exponential backoff up to the attempt ceiling.
func (m *Manager) submit(ctx context.Context, order domain.Order) (domain.Order, error) {
	now := time.Now().UTC()
	order.SubmittedAt = &now
	m.transition(ctx, &order, domain.OrderStateSubmitted, "")

	backoff := m.cfg.BaseBackoff
	for attempt := 1; ; attempt++ {
		ack, err := m.trySubmit(ctx, order)
		switch {
		case err == nil && ack.Accepted:
			acked := time.Now().UTC()
			order.VenueOrderID = ack.VenueOrderID
			order.AckedAt = &acked
			m.transition(ctx, &order, domain.OrderStateAcknowledged, "")
			return order, nil

		case err == nil:
			// Explicit venue rejection is terminal and reported, not retried.
			m.transition(ctx, &order, domain.OrderStateRejected, ack.Reason)
			return order, nil

		case domain.IsTransientVenue(err) && attempt < m.cfg.MaxAttempts:
			order.RetryCount = attempt
			if uerr := m.orders.Update(ctx, order); uerr != nil {
				m.logger.Warn("persist retry count failed", slog.String("error", uerr.Error()))
			}
			m.logger.Warn("transient venue error, backing off",
				slog.String("order_id", order.ID),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				m.transition(ctx, &order, domain.OrderStateUnknown, "cancelled during retry")
				return order, ctx.Err()
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > m.cfg.MaxBackoff {
				backoff = m.cfg.MaxBackoff
			}

		case domain.IsTransientVenue(err):
			// Retry ceiling exhausted.
			m.transition(ctx, &order, domain.OrderStateFailed, fmt.Sprintf("retries exhausted: %v", err))
			return order, nil

		default:
			// Permanent venue error: surface immediately, no retry.
			m.transition(ctx, &order, domain.OrderStateFailed, err.Error())
			return order, nil
		}
	}
}

// trySubmit makes one submission attempt under the per-attempt timeout. The
// idempotency key travels with the order, so a timed-out attempt replayed at
// the venue can never double-execute.
func (m *Manager) trySubmit(ctx context.Context, order domain.Order) (domain.OrderAck, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.SubmitTimeout)
	defer cancel()
	return m.venue.Submit(attemptCtx, order)
}

// spawnPoller starts the per-order fill tracking goroutine.
func (m *Manager) spawnPoller(order domain.Order) {
	m.mu.Lock()
	ctx := m.runCtx
	m.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.pollFills(ctx, order)
	}()
}

// pollFills consumes venue fill notifications for one acknowledged order
// until the order reaches a terminal state or the run context ends. Fills
// are applied to the ledger in venue sequence order, deduplicated by fill id.
func (m *Manager) pollFills(ctx context.Context, order domain.Order) {
	seen := make(map[string]struct{})
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Drain marks the order Unknown; nothing more to do here.
			return
		case <-ticker.C:
		}

		fills, err := m.venue.PollFills(ctx, order.VenueOrderID)
		if err != nil {
			if domain.IsTransientVenue(err) {
				continue
			}
			m.transition(ctx, &order, domain.OrderStateFailed, err.Error())
			m.untrack(order)
			return
		}

		for _, f := range fills {
			if _, dup := seen[f.ID]; dup {
				continue
			}
			f.OrderID = order.ID
			f.OutcomeID = order.OutcomeID
			f.Side = order.Side

			// Marked seen only once the ledger has it, so a failed
			// application is retried on the next poll. The ledger's
			// fill-id idempotency makes the retry safe.
			if _, err := m.fills.ApplyFill(ctx, f); err != nil {
				m.logger.Error("apply fill failed",
					slog.String("order_id", order.ID),
					slog.String("fill_id", f.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			seen[f.ID] = struct{}{}
			order.FilledSize += f.Size

			if order.FilledSize >= order.Size {
				m.transition(ctx, &order, domain.OrderStateFilled, "")
				m.untrack(order)
				return
			}
			m.transition(ctx, &order, domain.OrderStatePartiallyFilled, "")
		}

		status, err := m.venue.GetOrder(ctx, order.VenueOrderID)
		if err != nil {
			continue
		}
		if status.State == domain.OrderStateCancelled {
			m.transition(ctx, &order, domain.OrderStateCancelled, "cancelled at venue")
			m.untrack(order)
			return
		}
	}
}

// Reconcile restores non-terminal persisted orders after a restart. Orders
// the venue never acknowledged are failed; acknowledged orders have their
// venue state re-read, missed fills applied, and fill polling resumed. The
// engine must not submit new orders until Reconcile returns.
func (m *Manager) Reconcile(ctx context.Context) error {
	open, err := m.orders.ListNonTerminal(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle: list non-terminal orders: %w", err)
	}

	for _, order := range open {
		if order.VenueOrderID == "" {
			// Never acknowledged: the idempotency key guarantees the venue
			// holds no live order for this decision.
			m.transition(ctx, &order, domain.OrderStateFailed, "unacknowledged at restart")
			continue
		}

		status, err := m.venue.GetOrder(ctx, order.VenueOrderID)
		if err != nil {
			m.logger.Warn("reconcile: venue lookup failed, leaving order unknown",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
			m.transition(ctx, &order, domain.OrderStateUnknown, "venue lookup failed at restart")
			continue
		}

		// Apply any fills missed while down before resuming state.
		fills, err := m.venue.PollFills(ctx, order.VenueOrderID)
		if err == nil {
			for _, f := range fills {
				f.OrderID = order.ID
				f.OutcomeID = order.OutcomeID
				f.Side = order.Side
				if _, aerr := m.fills.ApplyFill(ctx, f); aerr == nil {
					// Ledger dedup makes replays harmless; FilledSize tracks
					// the venue's report.
				}
			}
		}
		order.FilledSize = status.FilledSize

		switch {
		case status.State.Terminal():
			m.transition(ctx, &order, status.State, "reconciled from venue")
		default:
			m.transition(ctx, &order, domain.OrderStateAcknowledged, "reconciled from venue")
			m.track(order)
			m.spawnPoller(order)
		}
	}

	m.logger.Info("order reconciliation complete", slog.Int("orders", len(open)))
	return nil
}

// transition validates the lifecycle edge, persists the order, and publishes
// the update. Illegal transitions are logged and dropped rather than applied.
func (m *Manager) transition(ctx context.Context, order *domain.Order, to domain.OrderState, reason string) {
	if order.State == to {
		if err := m.orders.Update(ctx, *order); err != nil {
			m.logger.Warn("persist order failed", slog.String("order_id", order.ID), slog.String("error", err.Error()))
		}
		m.publish(*order)
		return
	}
	if !domain.CanTransition(order.State, to) {
		m.logger.Error("illegal order transition dropped",
			slog.String("order_id", order.ID),
			slog.String("from", string(order.State)),
			slog.String("to", string(to)),
		)
		return
	}

	order.State = to
	if reason != "" {
		order.Reason = reason
	}
	if to.Terminal() {
		now := time.Now().UTC()
		order.ClosedAt = &now
	}
	if err := m.orders.Update(ctx, *order); err != nil {
		m.logger.Warn("persist order failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
	m.refresh(*order)
	m.publish(*order)
}

// refresh keeps the in-flight snapshot current so Drain persists the latest
// state for stranded orders.
func (m *Manager) refresh(order domain.Order) {
	m.mu.Lock()
	if _, ok := m.inflight[order.ID]; ok {
		m.inflight[order.ID] = order
	}
	m.mu.Unlock()
}

func (m *Manager) publish(order domain.Order) {
	if m.pub == nil {
		return
	}
	o := order
	m.pub.Publish(domain.Event{
		Type:     domain.EventOrderUpdate,
		Producer: "lifecycle",
		Order:    &o,
	})
}

func (m *Manager) track(order domain.Order) {
	m.mu.Lock()
	m.inflight[order.ID] = order
	m.mu.Unlock()
}

func (m *Manager) untrack(order domain.Order) {
	m.mu.Lock()
	delete(m.inflight, order.ID)
	m.mu.Unlock()
}

func submissionKey(outcomeID string, side domain.OrderSide) string {
	return "submit:" + outcomeID + ":" + string(side)
}
