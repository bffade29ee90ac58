// Package notify turns engine bus events into operator alerts. Alerts are
// fanned out to every registered sender (Telegram, Discord) and filtered by
// event type so operators receive only the transitions they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/solvys/predictipulse/internal/domain"
)

// Sender is the contract each delivery channel implements.
type Sender interface {
	// Send delivers an alert with the given title and body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel, e.g. "telegram".
	Name() string
}

// Notifier dispatches alerts to one or more senders. It keeps a set of
// allowed event types; Notify forwards an event only when its type is in the
// set. An empty set allows everything.
type Notifier struct {
	senders []Sender
	allowed map[domain.EventType]bool
	logger  *slog.Logger
}

// NewNotifier wires the given senders behind an event-type filter. If events
// is empty, all event types pass.
func NewNotifier(senders []Sender, events []domain.EventType, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		allowed[domain.EventType(strings.TrimSpace(string(e)))] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify formats the event and delivers it to all senders, subject to the
// event-type filter.
func (n *Notifier) Notify(ctx context.Context, ev domain.Event) error {
	if len(n.allowed) > 0 && !n.allowed[ev.Type] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("type", string(ev.Type)),
		)
		return nil
	}

	title, message := Format(ev)
	if title == "" {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll delivers a raw alert to all senders regardless of the filter.
// Used for lifecycle messages such as startup and shutdown.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// Run consumes events from the channel until it closes or the context is
// cancelled. Delivery failures are logged, never fatal: a flaky webhook must
// not take the trading loop down with it.
func (n *Notifier) Run(ctx context.Context, events <-chan domain.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := n.Notify(ctx, ev); err != nil {
				n.logger.WarnContext(ctx, "alert delivery failed",
					slog.String("type", string(ev.Type)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// dispatch sends to every sender, collecting failures so one dead channel
// does not block the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// Format renders a bus event as an alert title and body. Events with no
// operator-facing rendering return an empty title.
func Format(ev domain.Event) (title, message string) {
	switch ev.Type {
	case domain.EventOpportunity:
		if ev.Opportunity == nil {
			return "", ""
		}
		o := ev.Opportunity
		return "Opportunity detected",
			fmt.Sprintf("%s %s @ %.3f\nconsensus %.3f, EV %+.2f%%, stake $%.2f (%s)",
				strings.ToUpper(string(o.Side)), o.OutcomeID, o.MarketPrice,
				o.Consensus, o.EV*100, o.Stake, o.Venue)

	case domain.EventOrderUpdate:
		if ev.Order == nil {
			return "", ""
		}
		o := ev.Order
		return fmt.Sprintf("Order %s", o.State),
			fmt.Sprintf("%s %s $%.2f @ %.3f\nfilled $%.2f of $%.2f",
				strings.ToUpper(string(o.Side)), o.OutcomeID, o.Size, o.Price,
				o.FilledSize, o.Size)

	case domain.EventPositionDelta:
		if ev.Position == nil {
			return "", ""
		}
		p := ev.Position
		return "Position updated",
			fmt.Sprintf("%s net %+.2f @ avg %.3f\nrealized $%.2f, unrealized $%.2f",
				p.OutcomeID, p.NetSize, p.AvgEntryPrice, p.RealizedPnL, p.UnrealizedPnL)

	case domain.EventConsensus:
		// Consensus refreshes are too chatty for push channels.
		return "", ""
	}
	return "", ""
}
