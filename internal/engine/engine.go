// Package engine runs the detection loop: feeds write latest quotes onto the
// board, a fixed-cadence cycle scans the board for mispricings, sizes the
// qualifying ones, and hands them to execution.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solvys/predictipulse/internal/domain"
	"github.com/solvys/predictipulse/internal/ledger"
	"github.com/solvys/predictipulse/internal/scanner"
	"github.com/solvys/predictipulse/internal/sizing"
)

// Executor places sized opportunities. The lifecycle manager satisfies it.
type Executor interface {
	Execute(ctx context.Context, opp domain.Opportunity) (domain.Order, error)
	Reconcile(ctx context.Context) error
}

// Publisher receives engine events. The event bus satisfies it.
type Publisher interface {
	Publish(ev domain.Event)
}

// BalanceSource reports the tradable bankroll. The execution venue satisfies
// it.
type BalanceSource interface {
	GetBalance(ctx context.Context) (float64, error)
}

// SettlementCreditor receives settlement proceeds back into the bankroll.
// The paper venue satisfies it; a live venue credits the account on its own
// side and never implements this.
type SettlementCreditor interface {
	Credit(amount float64)
}

// Settings is the per-cycle configuration snapshot. Configure swaps the whole
// value atomically; a running cycle finishes on the snapshot it started with.
type Settings struct {
	Thresholds   scanner.Thresholds
	Sizer        sizing.Sizer
	ScanInterval time.Duration // read once at startup
	CycleTimeout time.Duration
	DryRun       bool // detect and publish but never execute
}

// FeedBinding attaches a quote feed to the board as sharp or market input.
type FeedBinding struct {
	Feed domain.QuoteFeed
	Kind FeedKind
}

// Engine coordinates feeds, scanning, sizing, execution, and position
// marking. Cycles never overlap: the next scan starts only after the current
// one returns or its timeout fires.
type Engine struct {
	board  *Board
	scan   *scanner.Scanner
	exec   Executor
	book   *ledger.Ledger
	bank   BalanceSource
	pub    Publisher
	cache  domain.QuoteCache // optional quote mirror
	feeds  []FeedBinding
	logger *slog.Logger

	mu              sync.RWMutex
	settings        Settings
	bankroll        float64
	initialBankroll float64
	lastCycle       time.Time
	lastOpps        []domain.Opportunity
	feedSeen        map[string]time.Time
}

// New assembles an Engine. Settings may be reconfigured at any time via
// Configure.
func New(
	scan *scanner.Scanner,
	exec Executor,
	book *ledger.Ledger,
	bank BalanceSource,
	pub Publisher,
	cache domain.QuoteCache,
	feeds []FeedBinding,
	settings Settings,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		board:    NewBoard(),
		scan:     scan,
		exec:     exec,
		book:     book,
		bank:     bank,
		pub:      pub,
		cache:    cache,
		feeds:    feeds,
		settings: settings,
		feedSeen: make(map[string]time.Time),
		logger:   logger.With(slog.String("component", "engine")),
	}
}

// Configure replaces the settings snapshot. The change takes effect on the
// next cycle, never mid-cycle.
func (e *Engine) Configure(s Settings) {
	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()
	e.logger.Info("settings updated",
		slog.Float64("target_buy_ev", s.Thresholds.TargetBuyEV),
		slog.Float64("target_sell_ev", s.Thresholds.TargetSellEV),
		slog.Float64("kelly_multiplier", s.Sizer.Multiplier),
		slog.Bool("dry_run", s.DryRun),
	)
}

// CurrentSettings returns the settings snapshot the next cycle will run on.
func (e *Engine) CurrentSettings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// Run reconciles persisted orders, syncs the opening bankroll, then drives
// the feed consumers and the scan loop until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.exec.Reconcile(ctx); err != nil {
		return fmt.Errorf("engine: reconcile: %w", err)
	}
	if err := e.syncBankroll(ctx); err != nil {
		return fmt.Errorf("engine: opening balance: %w", err)
	}
	e.mu.Lock()
	e.initialBankroll = e.bankroll
	e.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, fb := range e.feeds {
		fb := fb
		g.Go(func() error { return e.consumeFeed(gctx, fb) })
	}
	g.Go(func() error { return e.loop(gctx) })
	return g.Wait()
}

// consumeFeed streams one feed onto the board. A closed stream ends the run;
// feeds reconnect internally, so a close here means the feed gave up.
func (e *Engine) consumeFeed(ctx context.Context, fb FeedBinding) error {
	quotes, err := fb.Feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("engine: subscribe %s: %w", fb.Feed.Name(), err)
	}
	e.logger.Info("feed attached", slog.String("feed", fb.Feed.Name()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q, ok := <-quotes:
			if !ok {
				return fmt.Errorf("engine: feed %s closed", fb.Feed.Name())
			}
			e.board.Apply(fb.Kind, q)
			e.mu.Lock()
			e.feedSeen[fb.Feed.Name()] = q.Timestamp
			e.mu.Unlock()
			if e.cache != nil {
				if err := e.cache.SetQuote(ctx, q); err != nil {
					e.logger.Debug("quote mirror failed", slog.String("error", err.Error()))
				}
			}
		}
	}
}

func (e *Engine) loop(ctx context.Context) error {
	e.mu.RLock()
	interval := e.settings.ScanInterval
	e.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.cycle(ctx)
		}
	}
}

// cycle runs one scan under the per-cycle timeout. A cycle that times out is
// abandoned cleanly; the next tick starts fresh.
func (e *Engine) cycle(ctx context.Context) {
	e.mu.RLock()
	settings := e.settings
	e.mu.RUnlock()

	cctx := ctx
	if settings.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, settings.CycleTimeout)
		defer cancel()
	}

	now := time.Now().UTC()
	if err := e.syncBankroll(cctx); err != nil {
		e.logger.Warn("balance sync failed, using last known bankroll",
			slog.String("error", err.Error()))
	}

	res := e.scan.Scan(now, settings.Thresholds, e.board.SharpSnapshot(), e.board.MarketSnapshot())
	e.markPositions(now)
	e.publishConsensus(res.Estimates)

	sized := e.executeAll(cctx, res.Opportunities, settings)

	e.mu.Lock()
	e.lastCycle = now
	e.lastOpps = sized
	e.mu.Unlock()

	if len(sized) > 0 || len(res.Withdrawn) > 0 {
		e.logger.Info("cycle complete",
			slog.Int("opportunities", len(sized)),
			slog.Int("withdrawn", len(res.Withdrawn)),
		)
	}
}

// executeAll sizes qualifying opportunities and submits them in descending
// EV order, reserving bankroll locally so one cycle cannot overspend before
// the venue balance catches up.
func (e *Engine) executeAll(ctx context.Context, opps []domain.Opportunity, settings Settings) []domain.Opportunity {
	e.mu.RLock()
	available := e.bankroll
	e.mu.RUnlock()

	sized := make([]domain.Opportunity, 0, len(opps))
	for _, opp := range opps {
		stake := settings.Sizer.Size(opp.EV, opp.MarketPrice, available, opp.Side == domain.OrderSideSell)
		if !stake.OK {
			continue
		}
		opp.Stake = stake.Dollars
		sized = append(sized, opp)
		e.publishOpportunity(opp)

		if settings.DryRun {
			continue
		}
		order, err := e.exec.Execute(ctx, opp)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			continue
		case err != nil:
			e.logger.Error("execution failed",
				slog.String("opportunity_id", opp.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !order.State.Terminal() {
			available -= stake.Dollars
		}
	}
	return sized
}

// markPositions re-marks every open position at the freshest market quote.
func (e *Engine) markPositions(now time.Time) {
	for _, pos := range e.book.Snapshot() {
		if pos.Status != domain.PositionStatusOpen {
			continue
		}
		if q, ok := e.board.LatestMarket(pos.OutcomeID); ok {
			e.book.Mark(pos.OutcomeID, q.Mid(), now)
		}
	}
}

func (e *Engine) syncBankroll(ctx context.Context) error {
	bal, err := e.bank.GetBalance(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.bankroll = bal
	e.mu.Unlock()
	return nil
}

func (e *Engine) publishOpportunity(opp domain.Opportunity) {
	if e.pub == nil {
		return
	}
	o := opp
	e.pub.Publish(domain.Event{
		Type:        domain.EventOpportunity,
		Producer:    "engine",
		Opportunity: &o,
	})
}

func (e *Engine) publishConsensus(estimates []domain.ConsensusEstimate) {
	if e.pub == nil {
		return
	}
	for _, est := range estimates {
		c := est
		e.pub.Publish(domain.Event{
			Type:      domain.EventConsensus,
			Producer:  "engine",
			Consensus: &c,
		})
	}
}

// CurrentOpportunities returns the sized opportunities from the most recent
// cycle.
func (e *Engine) CurrentOpportunities() []domain.Opportunity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Opportunity, len(e.lastOpps))
	copy(out, e.lastOpps)
	return out
}

// CurrentPositions returns the ledger snapshot, open and closed.
func (e *Engine) CurrentPositions() []domain.Position {
	return e.book.Snapshot()
}

// AccountSummary reports bankroll and performance statistics.
func (e *Engine) AccountSummary() domain.AccountSummary {
	e.mu.RLock()
	bankroll, initial := e.bankroll, e.initialBankroll
	e.mu.RUnlock()
	return e.book.Summary(bankroll, initial, time.Now().UTC())
}

// FeedStatus reports the last quote timestamp per feed so operators can
// check uplink health.
func (e *Engine) FeedStatus() map[string]time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]time.Time, len(e.feedSeen))
	for name, ts := range e.feedSeen {
		out[name] = ts
	}
	return out
}

// LastCycle returns when the most recent scan cycle completed.
func (e *Engine) LastCycle() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastCycle
}

// Settle closes a position at the settlement result and returns the final
// position. When the venue tracks its balance in-process the contract payout,
// stake plus realized delta, is credited back to it.
func (e *Engine) Settle(ctx context.Context, s domain.Settlement) (domain.Position, error) {
	before, _ := e.book.Get(s.OutcomeID)
	pos, err := e.book.ApplySettlement(ctx, s)
	if err != nil {
		return pos, err
	}

	if venue, ok := e.bank.(SettlementCreditor); ok {
		payout := math.Abs(before.NetSize) + (pos.RealizedPnL - before.RealizedPnL)
		if payout > 0 {
			venue.Credit(payout)
		}
		if err := e.syncBankroll(ctx); err != nil {
			e.logger.Warn("balance sync after settlement failed",
				slog.String("error", err.Error()))
		}
	}
	return pos, nil
}
