// Package feed implements the quote feed collaborators: sharp sportsbook
// odds over WebSocket, prediction-market venue quotes, and a simulated feed
// for paper trading. Every feed normalizes its wire format into
// domain.OutcomeQuote before anything downstream sees it.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solvys/predictipulse/internal/domain"
	"github.com/solvys/predictipulse/internal/odds"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 30 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	handshakeTimeout  = 15 * time.Second
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// BoltOddsConfig configures the sharp odds feed.
type BoltOddsConfig struct {
	WSURL       string
	APIKey      string
	Sports      []string // subscription filter, empty means all
	Sportsbooks []string // sharp books to accept quotes from
}

// boltOddsMsg is one odds update on the BoltOdds stream. Prices are american
// odds for the outcome and its complement; the pair is devigged into a single
// probability before publication.
type boltOddsMsg struct {
	Type       string  `json:"type"`
	OutcomeID  string  `json:"outcome_id"`
	Sportsbook string  `json:"sportsbook"`
	Price      string  `json:"price"`
	OppPrice   string  `json:"opposite_price"`
	Liquidity  float64 `json:"liquidity"`
	Seq        int64   `json:"seq"`
	TsMillis   int64   `json:"ts"`
}

// boltSubscribeCmd is the subscription request sent after connecting.
type boltSubscribeCmd struct {
	Action      string   `json:"action"`
	Sports      []string `json:"sports,omitempty"`
	Sportsbooks []string `json:"sportsbooks,omitempty"`
}

// BoltOddsFeed streams devigged sharp-book probabilities. It reconnects with
// exponential backoff and keeps a snapshot of the latest quote per
// (sportsbook, outcome) slot.
type BoltOddsFeed struct {
	cfg    BoltOddsConfig
	norm   odds.Normalizer
	logger *slog.Logger

	mu     sync.RWMutex
	latest map[string]domain.OutcomeQuote // keyed by quote.Key()
	books  map[string]struct{}
}

var _ domain.QuoteFeed = (*BoltOddsFeed)(nil)

// NewBoltOddsFeed creates the sharp odds feed.
func NewBoltOddsFeed(cfg BoltOddsConfig, norm odds.Normalizer, logger *slog.Logger) *BoltOddsFeed {
	books := make(map[string]struct{}, len(cfg.Sportsbooks))
	for _, b := range cfg.Sportsbooks {
		books[b] = struct{}{}
	}
	return &BoltOddsFeed{
		cfg:    cfg,
		norm:   norm,
		logger: logger.With(slog.String("component", "boltodds_feed")),
		latest: make(map[string]domain.OutcomeQuote),
		books:  books,
	}
}

// Name identifies the feed in logs and uplink status.
func (f *BoltOddsFeed) Name() string { return "boltodds" }

// CurrentQuotes returns the latest quote per slot seen so far.
func (f *BoltOddsFeed) CurrentQuotes(_ context.Context) ([]domain.OutcomeQuote, error) {
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
func (f *BoltOddsFeed) Subscribe(ctx context.Context) (<-chan domain.OutcomeQuote, error) {
	if f.cfg.WSURL == "" {
		return nil, errors.New("feed: boltodds ws url not configured")
	}

	out := make(chan domain.OutcomeQuote, 256)
	go func() {
		defer close(out)
		f.run(ctx, out)
	}()
	return out, nil
}

// run reconnects forever with exponential backoff until ctx ends.
func (f *BoltOddsFeed) run(ctx context.Context, out chan<- domain.OutcomeQuote) {
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

// runConnection dials, subscribes, and pumps messages until the connection
// drops or ctx ends.
func (f *BoltOddsFeed) runConnection(ctx context.Context, out chan<- domain.OutcomeQuote) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := http.Header{}
	if f.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+f.cfg.APIKey)
	}

	conn, _, err := dialer.DialContext(ctx, f.cfg.WSURL, header)
	if err != nil {
		return fmt.Errorf("feed: boltodds dial: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	sub := boltSubscribeCmd{
		Action:      "subscribe",
		Sports:      f.cfg.Sports,
		Sportsbooks: f.cfg.Sportsbooks,
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("feed: boltodds subscribe: %w", err)
	}
	f.logger.Info("subscribed",
		slog.Int("sports", len(f.cfg.Sports)),
		slog.Int("sportsbooks", len(f.cfg.Sportsbooks)),
	)

	// Close the connection when ctx ends so ReadMessage unblocks.
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
			return fmt.Errorf("feed: boltodds read: %w", err)
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

// parse converts one wire message into a normalized quote. A malformed
// message is logged and dropped; it never disturbs the stream.
func (f *BoltOddsFeed) parse(raw []byte) (domain.OutcomeQuote, bool) {
	var msg boltOddsMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		f.logger.Debug("unparseable message dropped", slog.String("error", err.Error()))
		return domain.OutcomeQuote{}, false
	}
	if msg.Type != "odds" || msg.OutcomeID == "" {
		return domain.OutcomeQuote{}, false
	}
	if len(f.books) > 0 {
		if _, ok := f.books[msg.Sportsbook]; !ok {
			return domain.OutcomeQuote{}, false
		}
	}

	var prob float64
	var err error
	if msg.OppPrice != "" {
		prob, _, err = f.norm.NormalizePair(odds.FormatAmerican, msg.Price, msg.OppPrice)
	} else {
		prob, err = f.norm.NormalizeSingle(odds.FormatAmerican, msg.Price)
	}
	if err != nil {
		f.logger.Warn("malformed odds dropped",
			slog.String("outcome", msg.OutcomeID),
			slog.String("sportsbook", msg.Sportsbook),
			slog.String("error", err.Error()),
		)
		return domain.OutcomeQuote{}, false
	}

	ts := time.UnixMilli(msg.TsMillis)
	if msg.TsMillis == 0 {
		ts = time.Now()
	}
	return domain.OutcomeQuote{
		Venue:     msg.Sportsbook,
		OutcomeID: msg.OutcomeID,
		Last:      prob,
		SizeHint:  msg.Liquidity,
		Seq:       msg.Seq,
		Timestamp: ts,
	}, true
}
