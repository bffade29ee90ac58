package kalshi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvys/predictipulse/internal/crypto"
	"github.com/solvys/predictipulse/internal/domain"
)

func testVenue(t *testing.T, handler http.HandlerFunc) *Venue {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Config{
		BaseURL: srv.URL,
		Auth: crypto.HMACAuth{
			Key:    "key",
			Secret: base64.StdEncoding.EncodeToString([]byte("secret")),
		},
		RequestLimit: 1000,
		Burst:        100,
	}, slog.Default())
}

func TestSubmitConvertsStakeToContracts(t *testing.T) {
	var got orderRequest
	v := testVenue(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/portfolio/orders", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("VENUE-ACCESS-SIGNATURE"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(map[string]any{
			"order": map[string]any{"order_id": "v-1", "status": "resting"},
		})
	})

	ack, err := v.Submit(context.Background(), domain.Order{
		ID:             "o-1",
		IdempotencyKey: "idem-1",
		OutcomeID:      "ELECTION-YES",
		Side:           domain.OrderSideBuy,
		Price:          0.50,
		Size:           100,
	})
	require.NoError(t, err)
	assert.True(t, ack.Accepted)
	assert.Equal(t, "v-1", ack.VenueOrderID)

	// $100 at 50 cents is 200 contracts.
	assert.Equal(t, int64(200), got.Count)
	assert.Equal(t, int64(50), got.YesPriceCents)
	assert.Equal(t, "idem-1", got.ClientOrderID)
	assert.Equal(t, "buy", got.Action)
}

func TestSubmitRejectsSubContractStake(t *testing.T) {
	v := testVenue(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	ack, err := v.Submit(context.Background(), domain.Order{Price: 0.80, Size: 0.50})
	require.NoError(t, err)
	assert.False(t, ack.Accepted)
}

func TestDoMapsTransientStatus(t *testing.T) {
	v := testVenue(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(errorResponse{Code: "unavailable", Message: "try later"})
	})

	_, err := v.GetBalance(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsTransientVenue(err))
}

func TestDoWrapsRateLimit(t *testing.T) {
	v := testVenue(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(errorResponse{Code: "rate_limited", Message: "slow down"})
	})

	_, err := v.GetBalance(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsTransientVenue(err))
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestDoMapsPermanentStatus(t *testing.T) {
	v := testVenue(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errorResponse{Code: "bad_request", Message: "bad ticker"})
	})

	_, err := v.Submit(context.Background(), domain.Order{Price: 0.50, Size: 100})
	require.Error(t, err)
	assert.False(t, domain.IsTransientVenue(err))

	var verr *domain.VenueError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, http.StatusBadRequest, verr.Code)
	assert.Equal(t, "bad ticker", verr.Msg)
}

func TestPollFillsRescalesToDollars(t *testing.T) {
	v := testVenue(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/portfolio/fills", r.URL.Path)
		require.Equal(t, "v-1", r.URL.Query().Get("order_id"))
		json.NewEncoder(w).Encode(map[string]any{
			"fills": []map[string]any{
				{"trade_id": "t-1", "order_id": "v-1", "yes_price": 50, "count": 120,
					"created_time": "2026-08-26T12:00:00Z"},
			},
		})
	})

	fills, err := v.PollFills(context.Background(), "v-1")
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, "t-1", fills[0].ID)
	assert.InDelta(t, 0.50, fills[0].Price, 1e-9)
	assert.InDelta(t, 60, fills[0].Size, 1e-9) // 120 contracts at 50c
}

func TestGetOrderMapsStatus(t *testing.T) {
	cases := []struct {
		status    string
		fillCount int64
		want      domain.OrderState
	}{
		{"resting", 0, domain.OrderStateAcknowledged},
		{"resting", 10, domain.OrderStatePartiallyFilled},
		{"executed", 200, domain.OrderStateFilled},
		{"canceled", 0, domain.OrderStateCancelled},
		{"rejected", 0, domain.OrderStateRejected},
		{"weird", 0, domain.OrderStateUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, mapOrderStatus(tc.status, tc.fillCount), tc.status)
	}
}

func TestGetBalanceRescalesCents(t *testing.T) {
	v := testVenue(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(balanceResponse{BalanceCents: 123456})
	})

	bal, err := v.GetBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1234.56, bal, 1e-9)
}
