package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/solvys/predictipulse/internal/domain"
)

// ControlHandler exposes runtime configuration and manual settlement.
type ControlHandler struct {
	eng    Engine
	logger *slog.Logger
}

// NewControlHandler creates a ControlHandler.
func NewControlHandler(eng Engine, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{eng: eng, logger: logger}
}

// settingsView is the wire shape of the engine settings. Pointer fields in
// the update request distinguish "leave unchanged" from an explicit zero.
type settingsView struct {
	TargetBuyEV     float64 `json:"target_buy_ev"`
	TargetSellEV    float64 `json:"target_sell_ev"`
	MinTrueProb     float64 `json:"min_true_prob"`
	MaxTrueProb     float64 `json:"max_true_prob"`
	KellyMultiplier float64 `json:"kelly_multiplier"`
	MaxPctBankroll  float64 `json:"max_pct_bankroll"`
	MaxDollarBet    float64 `json:"max_dollar_bet"`
	MinOrderSize    float64 `json:"min_order_size"`
	DryRun          bool    `json:"dry_run"`
}

type settingsUpdate struct {
	TargetBuyEV     *float64 `json:"target_buy_ev"`
	TargetSellEV    *float64 `json:"target_sell_ev"`
	MinTrueProb     *float64 `json:"min_true_prob"`
	MaxTrueProb     *float64 `json:"max_true_prob"`
	KellyMultiplier *float64 `json:"kelly_multiplier"`
	MaxPctBankroll  *float64 `json:"max_pct_bankroll"`
	MaxDollarBet    *float64 `json:"max_dollar_bet"`
	MinOrderSize    *float64 `json:"min_order_size"`
	DryRun          *bool    `json:"dry_run"`
}

// GetSettings returns the settings the next cycle will run on.
// GET /api/settings
func (h *ControlHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s := h.eng.CurrentSettings()
	writeJSON(w, http.StatusOK, settingsView{
		TargetBuyEV:     s.Thresholds.TargetBuyEV,
		TargetSellEV:    s.Thresholds.TargetSellEV,
		MinTrueProb:     s.Thresholds.MinTrueProb,
		MaxTrueProb:     s.Thresholds.MaxTrueProb,
		KellyMultiplier: s.Sizer.Multiplier,
		MaxPctBankroll:  s.Sizer.MaxPctBankroll,
		MaxDollarBet:    s.Sizer.MaxDollar,
		MinOrderSize:    s.Sizer.MinOrderSize,
		DryRun:          s.DryRun,
	})
}

// UpdateSettings applies a partial settings update. Omitted fields keep their
// current values; the change takes effect on the next cycle.
// PUT /api/settings
func (h *ControlHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var upd settingsUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	s := h.eng.CurrentSettings()
	if upd.TargetBuyEV != nil {
		s.Thresholds.TargetBuyEV = *upd.TargetBuyEV
	}
	if upd.TargetSellEV != nil {
		s.Thresholds.TargetSellEV = *upd.TargetSellEV
	}
	if upd.MinTrueProb != nil {
		s.Thresholds.MinTrueProb = *upd.MinTrueProb
	}
	if upd.MaxTrueProb != nil {
		s.Thresholds.MaxTrueProb = *upd.MaxTrueProb
	}
	if upd.KellyMultiplier != nil {
		s.Sizer.Multiplier = *upd.KellyMultiplier
	}
	if upd.MaxPctBankroll != nil {
		s.Sizer.MaxPctBankroll = *upd.MaxPctBankroll
	}
	if upd.MaxDollarBet != nil {
		s.Sizer.MaxDollar = *upd.MaxDollarBet
	}
	if upd.MinOrderSize != nil {
		s.Sizer.MinOrderSize = *upd.MinOrderSize
	}
	if upd.DryRun != nil {
		s.DryRun = *upd.DryRun
	}

	if err := validateSettings(s.Thresholds.MinTrueProb, s.Thresholds.MaxTrueProb, s.Sizer.Multiplier, s.Sizer.MaxPctBankroll); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.eng.Configure(s)
	h.logger.InfoContext(r.Context(), "handler: settings updated")
	h.GetSettings(w, r)
}

func validateSettings(minProb, maxProb, multiplier, maxPct float64) error {
	switch {
	case minProb < 0 || minProb > 1 || maxProb < 0 || maxProb > 1:
		return errors.New("probability bounds must be within [0, 1]")
	case minProb >= maxProb:
		return errors.New("min_true_prob must be below max_true_prob")
	case multiplier < 0 || multiplier > 1:
		return errors.New("kelly_multiplier must be within [0, 1]")
	case maxPct < 0 || maxPct > 1:
		return errors.New("max_pct_bankroll must be within [0, 1]")
	}
	return nil
}

type settleRequest struct {
	OutcomeID string   `json:"outcome_id"`
	Result    *float64 `json:"result"`
}

// Settle marks an outcome as resolved and realizes the position against the
// settlement price.
// POST /api/settlements
func (h *ControlHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.OutcomeID == "" {
		writeError(w, http.StatusBadRequest, "outcome_id is required")
		return
	}
	if req.Result == nil || (*req.Result != 0 && *req.Result != 1) {
		writeError(w, http.StatusBadRequest, "result must be 0 or 1")
		return
	}

	pos, err := h.eng.Settle(r.Context(), domain.Settlement{
		OutcomeID: req.OutcomeID,
		Result:    *req.Result,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no position for outcome")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: settle failed",
			slog.String("outcome_id", req.OutcomeID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to settle outcome")
		return
	}

	writeJSON(w, http.StatusOK, pos)
}
