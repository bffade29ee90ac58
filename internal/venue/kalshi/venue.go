// Package kalshi implements domain.ExecutionVenue against the Kalshi trade
// API. Prices cross the wire in cents and stakes in contracts; everything is
// converted back to probabilities and dollars at this boundary.
package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/solvys/predictipulse/internal/crypto"
	"github.com/solvys/predictipulse/internal/domain"
)

// Config holds the venue client parameters.
type Config struct {
	BaseURL      string // API root, e.g. "https://api.elections.kalshi.com/trade-api/v2"
	Auth         crypto.HMACAuth
	MinOrderUSD  float64
	RequestLimit float64 // requests per second across all calls
	Burst        int
	Timeout      time.Duration
}

// Venue is the REST execution client.
type Venue struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ domain.ExecutionVenue = (*Venue)(nil)

// New creates the venue client.
func New(cfg Config, logger *slog.Logger) *Venue {
	if cfg.RequestLimit <= 0 {
		cfg.RequestLimit = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MinOrderUSD <= 0 {
		cfg.MinOrderUSD = 1
	}
	return &Venue{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestLimit), cfg.Burst),
		logger:  logger.With(slog.String("component", "kalshi_venue")),
	}
}

// Name identifies the venue.
func (v *Venue) Name() string { return "kalshi" }

// MinOrderSize is the smallest stake in dollars the venue accepts.
func (v *Venue) MinOrderSize() float64 { return v.cfg.MinOrderUSD }

// orderRequest is the wire shape of a submission. ClientOrderID carries the
// idempotency key, so a replayed request can never double-execute.
type orderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Side          string `json:"side"`
	Action        string `json:"action"`
	Type          string `json:"type"`
	Count         int64  `json:"count"`
	YesPriceCents int64  `json:"yes_price"`
}

type orderResponse struct {
	Order struct {
		OrderID       string `json:"order_id"`
		ClientOrderID string `json:"client_order_id"`
		Status        string `json:"status"`
		Ticker        string `json:"ticker"`
		YesPriceCents int64  `json:"yes_price"`
		Count         int64  `json:"count"`
		FillCount     int64  `json:"fill_count"`
	} `json:"order"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Submit places a limit order. Stakes are converted to contract counts at the
// requested price; a stake too small for one contract is rejected locally.
func (v *Venue) Submit(ctx context.Context, order domain.Order) (domain.OrderAck, error) {
	count := contractCount(order.Size, order.Price)
	if count < 1 {
		return domain.OrderAck{Accepted: false, Reason: "stake below one contract"}, nil
	}

	action := "buy"
	if order.Side == domain.OrderSideSell {
		action = "sell"
	}
	req := orderRequest{
		Ticker:        order.OutcomeID,
		ClientOrderID: order.IdempotencyKey,
		Side:          "yes",
		Action:        action,
		Type:          "limit",
		Count:         count,
		YesPriceCents: int64(math.Round(order.Price * 100)),
	}

	body, err := v.do(ctx, http.MethodPost, "/portfolio/orders", req)
	if err != nil {
		return domain.OrderAck{}, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderAck{}, &domain.VenueError{
			Venue: v.Name(), Op: "submit", Msg: "decode order response", Err: err,
		}
	}
	if resp.Order.Status == "canceled" || resp.Order.Status == "rejected" {
		return domain.OrderAck{Accepted: false, Reason: "order " + resp.Order.Status + " at venue"}, nil
	}
	return domain.OrderAck{VenueOrderID: resp.Order.OrderID, Accepted: true}, nil
}

type fillsResponse struct {
	Fills []struct {
		TradeID       string `json:"trade_id"`
		OrderID       string `json:"order_id"`
		Ticker        string `json:"ticker"`
		YesPriceCents int64  `json:"yes_price"`
		Count         int64  `json:"count"`
		CreatedTime   string `json:"created_time"`
	} `json:"fills"`
}

// PollFills returns the fills recorded so far for one venue order. Fill sizes
// come back in dollars at the executed price.
func (v *Venue) PollFills(ctx context.Context, venueOrderID string) ([]domain.Fill, error) {
	path := "/portfolio/fills?order_id=" + url.QueryEscape(venueOrderID)
	body, err := v.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp fillsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &domain.VenueError{
			Venue: v.Name(), Op: "poll_fills", Msg: "decode fills response", Err: err,
		}
	}

	fills := make([]domain.Fill, 0, len(resp.Fills))
	for i, f := range resp.Fills {
		price := float64(f.YesPriceCents) / 100
		ts, err := time.Parse(time.RFC3339, f.CreatedTime)
		if err != nil {
			ts = time.Now()
		}
		fills = append(fills, domain.Fill{
			ID:        f.TradeID,
			Price:     price,
			Size:      float64(f.Count) * price,
			Seq:       int64(i + 1),
			Timestamp: ts,
		})
	}
	return fills, nil
}

// Cancel withdraws a resting order.
func (v *Venue) Cancel(ctx context.Context, venueOrderID string) error {
	_, err := v.do(ctx, http.MethodDelete, "/portfolio/orders/"+url.PathEscape(venueOrderID), nil)
	return err
}

// GetOrder returns the venue's current view of one order.
func (v *Venue) GetOrder(ctx context.Context, venueOrderID string) (domain.VenueOrderStatus, error) {
	body, err := v.do(ctx, http.MethodGet, "/portfolio/orders/"+url.PathEscape(venueOrderID), nil)
	if err != nil {
		return domain.VenueOrderStatus{}, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.VenueOrderStatus{}, &domain.VenueError{
			Venue: v.Name(), Op: "get_order", Msg: "decode order response", Err: err,
		}
	}

	price := float64(resp.Order.YesPriceCents) / 100
	return domain.VenueOrderStatus{
		VenueOrderID: resp.Order.OrderID,
		State:        mapOrderStatus(resp.Order.Status, resp.Order.FillCount),
		FilledSize:   float64(resp.Order.FillCount) * price,
	}, nil
}

type positionsResponse struct {
	Positions []struct {
		Ticker         string `json:"ticker"`
		Position       int64  `json:"position"` // signed contract count
		AvgPriceCents  int64  `json:"market_exposure_cents"`
		TotalTradedCnt int64  `json:"total_traded"`
	} `json:"market_positions"`
}

// GetPositions returns the venue-reported holdings for reconciliation.
func (v *Venue) GetPositions(ctx context.Context) ([]domain.VenuePosition, error) {
	body, err := v.do(ctx, http.MethodGet, "/portfolio/positions", nil)
	if err != nil {
		return nil, err
	}

	var resp positionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &domain.VenueError{
			Venue: v.Name(), Op: "get_positions", Msg: "decode positions response", Err: err,
		}
	}

	out := make([]domain.VenuePosition, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		out = append(out, domain.VenuePosition{
			OutcomeID: p.Ticker,
			NetSize:   float64(p.Position),
			AvgPrice:  float64(p.AvgPriceCents) / 100,
		})
	}
	return out, nil
}

type balanceResponse struct {
	BalanceCents int64 `json:"balance"`
}

// GetBalance returns the tradable balance in dollars.
func (v *Venue) GetBalance(ctx context.Context) (float64, error) {
	body, err := v.do(ctx, http.MethodGet, "/portfolio/balance", nil)
	if err != nil {
		return 0, err
	}

	var resp balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, &domain.VenueError{
			Venue: v.Name(), Op: "get_balance", Msg: "decode balance response", Err: err,
		}
	}
	return float64(resp.BalanceCents) / 100, nil
}

// do signs and sends one request under the shared rate limit, mapping
// failures to *domain.VenueError with the Transient flag set for retryable
// conditions.
func (v *Venue) do(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return nil, &domain.VenueError{Venue: v.Name(), Op: method + " " + path, Msg: "rate wait", Err: err}
	}

	var bodyReader io.Reader
	var bodyStr string
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, &domain.VenueError{Venue: v.Name(), Op: method + " " + path, Msg: "marshal request", Err: err}
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, v.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, &domain.VenueError{Venue: v.Name(), Op: method + " " + path, Msg: "build request", Err: err}
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	// Sign path only, query excluded, per the venue's auth scheme.
	signPath := path
	if i := strings.IndexByte(signPath, '?'); i >= 0 {
		signPath = signPath[:i]
	}
	for k, val := range v.cfg.Auth.Headers(method, signPath, bodyStr) {
		req.Header.Set(k, val)
	}

	resp, err := v.http.Do(req)
	if err != nil {
		// Network-level failures are retryable.
		return nil, &domain.VenueError{
			Venue: v.Name(), Op: method + " " + path, Msg: "http request", Transient: true, Err: err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.VenueError{
			Venue: v.Name(), Op: method + " " + path, Msg: "read response", Transient: true, Err: err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		_ = json.Unmarshal(respBody, &apiErr)
		ve := &domain.VenueError{
			Venue:     v.Name(),
			Op:        method + " " + path,
			Code:      resp.StatusCode,
			Msg:       apiErr.Message,
			Transient: transientStatus(resp.StatusCode),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			ve.Err = domain.ErrRateLimited
		}
		return nil, ve
	}
	return respBody, nil
}

// transientStatus reports whether an HTTP status is worth retrying.
func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// mapOrderStatus translates the venue's status strings onto the lifecycle
// states.
func mapOrderStatus(status string, fillCount int64) domain.OrderState {
	switch status {
	case "resting", "pending":
		if fillCount > 0 {
			return domain.OrderStatePartiallyFilled
		}
		return domain.OrderStateAcknowledged
	case "executed":
		return domain.OrderStateFilled
	case "canceled":
		return domain.OrderStateCancelled
	case "rejected":
		return domain.OrderStateRejected
	default:
		return domain.OrderStateUnknown
	}
}

// contractCount converts a dollar stake at a probability price into whole
// contracts, rounding down so the stake cap is never exceeded.
func contractCount(stakeUSD, price float64) int64 {
	if price <= 0 || price >= 1 {
		return 0
	}
	return int64(math.Floor(stakeUSD / price))
}
