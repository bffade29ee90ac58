package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvys/predictipulse/internal/domain"
	"github.com/solvys/predictipulse/internal/engine"
	"github.com/solvys/predictipulse/internal/scanner"
	"github.com/solvys/predictipulse/internal/sizing"
)

type fakeEngine struct {
	opps      []domain.Opportunity
	positions []domain.Position
	summary   domain.AccountSummary
	feeds     map[string]time.Time
	lastCycle time.Time
	settings  engine.Settings
	settled   []domain.Settlement
	settleErr error
	settlePos domain.Position
}

func (f *fakeEngine) CurrentOpportunities() []domain.Opportunity { return f.opps }

func (f *fakeEngine) CurrentPositions() []domain.Position { return f.positions }

func (f *fakeEngine) AccountSummary() domain.AccountSummary { return f.summary }

func (f *fakeEngine) FeedStatus() map[string]time.Time { return f.feeds }

func (f *fakeEngine) LastCycle() time.Time { return f.lastCycle }

func (f *fakeEngine) CurrentSettings() engine.Settings { return f.settings }

func (f *fakeEngine) Configure(s engine.Settings) { f.settings = s }

func (f *fakeEngine) Settle(_ context.Context, s domain.Settlement) (domain.Position, error) {
	if f.settleErr != nil {
		return domain.Position{}, f.settleErr
	}
	f.settled = append(f.settled, s)
	return f.settlePos, nil
}

type fakeDrops uint64

func (f fakeDrops) Dropped() uint64 { return uint64(f) }

func defaultSettings() engine.Settings {
	return engine.Settings{
		Thresholds: scanner.Thresholds{
			TargetBuyEV:  0.05,
			TargetSellEV: 0.05,
			MinTrueProb:  0.15,
			MaxTrueProb:  0.85,
		},
		Sizer: sizing.Sizer{
			Multiplier:     0.5,
			MaxPctBankroll: 0.10,
			MaxDollar:      50,
			MinOrderSize:   1,
		},
	}
}

func TestStatusFlagsStaleFeeds(t *testing.T) {
	now := time.Now().UTC()
	eng := &fakeEngine{
		feeds: map[string]time.Time{
			"boltodds": now.Add(-2 * time.Second),
			"kalshi":   now.Add(-5 * time.Minute),
		},
		lastCycle: now.Add(-time.Second),
	}
	h := NewStatusHandler(eng, fakeDrops(7), slog.Default())

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Feeds map[string]struct {
			Stale bool `json:"stale"`
		} `json:"feeds"`
		EventsDropped uint64 `json:"events_dropped"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Feeds["boltodds"].Stale)
	assert.True(t, body.Feeds["kalshi"].Stale)
	assert.Equal(t, uint64(7), body.EventsDropped)
}

func TestListOpportunitiesEmptyIsNotNull(t *testing.T) {
	h := NewTradingHandler(&fakeEngine{}, slog.Default())

	rec := httptest.NewRecorder()
	h.ListOpportunities(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"opportunities":[]`)
	assert.Contains(t, rec.Body.String(), `"count":0`)
}

func TestUpdateSettingsPartial(t *testing.T) {
	eng := &fakeEngine{settings: defaultSettings()}
	h := NewControlHandler(eng, slog.Default())

	req := httptest.NewRequest(http.MethodPut, "/api/settings",
		strings.NewReader(`{"kelly_multiplier": 0.25, "dry_run": true}`))
	rec := httptest.NewRecorder()
	h.UpdateSettings(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.25, eng.settings.Sizer.Multiplier)
	assert.True(t, eng.settings.DryRun)
	// Untouched fields keep their values.
	assert.Equal(t, 0.05, eng.settings.Thresholds.TargetBuyEV)
	assert.Equal(t, 50.0, eng.settings.Sizer.MaxDollar)
}

func TestUpdateSettingsRejectsInvertedBand(t *testing.T) {
	eng := &fakeEngine{settings: defaultSettings()}
	h := NewControlHandler(eng, slog.Default())

	req := httptest.NewRequest(http.MethodPut, "/api/settings",
		strings.NewReader(`{"min_true_prob": 0.9}`))
	rec := httptest.NewRecorder()
	h.UpdateSettings(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	// Settings unchanged on rejection.
	assert.Equal(t, 0.15, eng.settings.Thresholds.MinTrueProb)
}

func TestUpdateSettingsRejectsUnknownField(t *testing.T) {
	eng := &fakeEngine{settings: defaultSettings()}
	h := NewControlHandler(eng, slog.Default())

	req := httptest.NewRequest(http.MethodPut, "/api/settings",
		strings.NewReader(`{"kelly_multiplyer": 0.25}`))
	rec := httptest.NewRecorder()
	h.UpdateSettings(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettleValidatesResult(t *testing.T) {
	eng := &fakeEngine{}
	h := NewControlHandler(eng, slog.Default())

	req := httptest.NewRequest(http.MethodPost, "/api/settlements",
		strings.NewReader(`{"outcome_id": "OUT-1", "result": 0.5}`))
	rec := httptest.NewRecorder()
	h.Settle(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, eng.settled)
}

func TestSettleClosesPosition(t *testing.T) {
	eng := &fakeEngine{
		settlePos: domain.Position{OutcomeID: "OUT-1", RealizedPnL: 12.5, Status: domain.PositionStatusClosed},
	}
	h := NewControlHandler(eng, slog.Default())

	req := httptest.NewRequest(http.MethodPost, "/api/settlements",
		strings.NewReader(`{"outcome_id": "OUT-1", "result": 1}`))
	rec := httptest.NewRecorder()
	h.Settle(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, eng.settled, 1)
	assert.Equal(t, "OUT-1", eng.settled[0].OutcomeID)
	assert.Equal(t, 1.0, eng.settled[0].Result)
}

func TestSettleUnknownOutcomeIs404(t *testing.T) {
	eng := &fakeEngine{settleErr: domain.ErrNotFound}
	h := NewControlHandler(eng, slog.Default())

	req := httptest.NewRequest(http.MethodPost, "/api/settlements",
		strings.NewReader(`{"outcome_id": "OUT-404", "result": 0}`))
	rec := httptest.NewRecorder()
	h.Settle(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
