package handler

import (
	"log/slog"
	"net/http"

	"github.com/solvys/predictipulse/internal/domain"
)

// TradingHandler serves the engine's pull snapshots: opportunities from the
// last completed cycle, open positions, and the account summary.
type TradingHandler struct {
	eng    Engine
	logger *slog.Logger
}

// NewTradingHandler creates a TradingHandler.
func NewTradingHandler(eng Engine, logger *slog.Logger) *TradingHandler {
	return &TradingHandler{eng: eng, logger: logger}
}

// ListOpportunities returns the opportunities detected in the last completed
// cycle. An empty cycle returns an empty list, not null.
// GET /api/opportunities
func (h *TradingHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	opps := h.eng.CurrentOpportunities()
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": opps,
		"count":         len(opps),
	})
}

// ListPositions returns all open positions.
// GET /api/positions
func (h *TradingHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.eng.CurrentPositions()
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"positions": positions,
		"count":     len(positions),
	})
}

// GetAccount returns bankroll and PnL totals.
// GET /api/account
func (h *TradingHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.AccountSummary())
}
