package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/solvys/predictipulse/internal/domain"
	"github.com/solvys/predictipulse/internal/engine"
)

// Engine is the control surface the handlers need from the trading engine.
type Engine interface {
	CurrentOpportunities() []domain.Opportunity
	CurrentPositions() []domain.Position
	AccountSummary() domain.AccountSummary
	FeedStatus() map[string]time.Time
	LastCycle() time.Time
	CurrentSettings() engine.Settings
	Configure(engine.Settings)
	Settle(ctx context.Context, s domain.Settlement) (domain.Position, error)
}

// DropCounter reports events lost to full subscriber buffers. The event bus
// satisfies it.
type DropCounter interface {
	Dropped() uint64
}

// StatusHandler reports runtime health of the scan loop and its feeds.
type StatusHandler struct {
	eng    Engine
	drops  DropCounter
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(eng Engine, drops DropCounter, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{eng: eng, drops: drops, logger: logger}
}

type feedStatus struct {
	LastQuote time.Time `json:"last_quote"`
	AgeMS     int64     `json:"age_ms"`
	Stale     bool      `json:"stale"`
}

// staleAfter is the quote age beyond which a feed is flagged in the status
// payload. Informational only; the consensus recency gate is what actually
// excludes old quotes.
const staleAfter = 30 * time.Second

// GetStatus reports the last cycle time, per-feed quote freshness, and the
// event bus drop counter.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()

	feeds := make(map[string]feedStatus)
	for name, seen := range h.eng.FeedStatus() {
		age := now.Sub(seen)
		feeds[name] = feedStatus{
			LastQuote: seen,
			AgeMS:     age.Milliseconds(),
			Stale:     age > staleAfter,
		}
	}

	summary := h.eng.AccountSummary()

	writeJSON(w, http.StatusOK, map[string]any{
		"last_cycle":     h.eng.LastCycle(),
		"feeds":          feeds,
		"events_dropped": h.drops.Dropped(),
		"bankroll":       summary.Bankroll,
		"bankroll_as_of": summary.UpdatedAt,
		"timestamp":      now.Format(time.RFC3339),
	})
}
