package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solvys/predictipulse/internal/domain"
)

// KalshiFeedConfig configures the venue market-data feed.
type KalshiFeedConfig struct {
	WSURL   string
	Tickers []string // market tickers to stream; outcome ids downstream
}

// kalshiWSCmd is the subscription command envelope.
type kalshiWSCmd struct {
	ID     int64          `json:"id"`
	Cmd    string         `json:"cmd"`
	Params kalshiWSParams `json:"params"`
}

type kalshiWSParams struct {
	Channels []string `json:"channels"`
	Tickers  []string `json:"market_tickers"`
}

// kalshiWSMessage is the common envelope for inbound messages.
type kalshiWSMessage struct {
	Type string          `json:"type"`
	Seq  int64           `json:"seq"`
	Msg  json.RawMessage `json:"msg"`
}

// kalshiTicker carries the venue's best bid/ask in cents.
type kalshiTicker struct {
	Ticker    string  `json:"market_ticker"`
	YesBid    int     `json:"yes_bid"`
	YesAsk    int     `json:"yes_ask"`
	LastPrice int     `json:"price"`
	Volume    float64 `json:"volume_delta"`
	TsSeconds int64   `json:"ts"`
}

// KalshiFeed streams venue quotes for the configured tickers. Cent prices are
// rescaled into (0,1) probabilities at the wire boundary.
type KalshiFeed struct {
	cfg    KalshiFeedConfig
	logger *slog.Logger

	mu     sync.RWMutex
	latest map[string]domain.OutcomeQuote
	cmdID  int64
}

var _ domain.QuoteFeed = (*KalshiFeed)(nil)

// NewKalshiFeed creates the venue market-data feed.
func NewKalshiFeed(cfg KalshiFeedConfig, logger *slog.Logger) *KalshiFeed {
	return &KalshiFeed{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "kalshi_feed")),
		latest: make(map[string]domain.OutcomeQuote),
	}
}

// Name identifies the feed in logs and uplink status.
func (f *KalshiFeed) Name() string { return "kalshi" }

// CurrentQuotes returns the latest quote per ticker seen so far.
func (f *KalshiFeed) CurrentQuotes(_ context.Context) ([]domain.OutcomeQuote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.OutcomeQuote, 0, len(f.latest))
	for _, q := range f.latest {
		out = append(out, q)
	}
	return out, nil
}

// Subscribe starts the connection loop and returns the quote stream. The
// channel closes when ctx is cancelled.
func (f *KalshiFeed) Subscribe(ctx context.Context) (<-chan domain.OutcomeQuote, error) {
	if f.cfg.WSURL == "" {
		return nil, errors.New("feed: kalshi ws url not configured")
	}
	if len(f.cfg.Tickers) == 0 {
		return nil, errors.New("feed: kalshi no tickers configured")
	}

	out := make(chan domain.OutcomeQuote, 256)
	go func() {
		defer close(out)
		f.run(ctx, out)
	}()
	return out, nil
}

func (f *KalshiFeed) run(ctx context.Context, out chan<- domain.OutcomeQuote) {
	delay := reconnectDelay
	for {
		err := f.runConnection(ctx, out)
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *KalshiFeed) runConnection(ctx context.Context, out chan<- domain.OutcomeQuote) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("feed: kalshi dial: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	f.cmdID++
	cmd := kalshiWSCmd{
		ID:  f.cmdID,
		Cmd: "subscribe",
		Params: kalshiWSParams{
			Channels: []string{"ticker"},
			Tickers:  f.cfg.Tickers,
		},
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("feed: kalshi subscribe: %w", err)
	}
	f.logger.Info("subscribed", slog.Int("tickers", len(f.cfg.Tickers)))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-stop:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: kalshi read: %w", err)
		}
		q, ok := f.parse(raw)
		if !ok {
			continue
		}

		f.mu.Lock()
		f.latest[q.Key()] = q
		f.mu.Unlock()

		select {
		case out <- q:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parse converts one ticker message into a normalized quote. Prices arrive in
// cents; the engine works in probabilities.
func (f *KalshiFeed) parse(raw []byte) (domain.OutcomeQuote, bool) {
	var envelope kalshiWSMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		f.logger.Debug("unparseable message dropped", slog.String("error", err.Error()))
		return domain.OutcomeQuote{}, false
	}
	if envelope.Type != "ticker" {
		return domain.OutcomeQuote{}, false
	}

	var tick kalshiTicker
	if err := json.Unmarshal(envelope.Msg, &tick); err != nil || tick.Ticker == "" {
		return domain.OutcomeQuote{}, false
	}

	ts := time.Unix(tick.TsSeconds, 0)
	if tick.TsSeconds == 0 {
		ts = time.Now()
	}
	return domain.OutcomeQuote{
		Venue:     f.Name(),
		OutcomeID: tick.Ticker,
		Bid:       float64(tick.YesBid) / 100,
		Ask:       float64(tick.YesAsk) / 100,
		Last:      float64(tick.LastPrice) / 100,
		SizeHint:  tick.Volume,
		Seq:       envelope.Seq,
		Timestamp: ts,
	}, true
}
