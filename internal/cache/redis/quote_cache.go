package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/solvys/predictipulse/internal/domain"
)

// quoteTTL bounds how long a mirrored quote survives without refresh. Stale
// entries expire on their own so external readers never act on a dead feed.
const quoteTTL = 5 * time.Minute

// QuoteCache implements domain.QuoteCache using Redis hashes. Each quote is
// stored at "quote:{venue}:{outcome}" with one field per price component and
// a Unix-nanosecond timestamp.
type QuoteCache struct {
	rdb *redis.Client
}

var _ domain.QuoteCache = (*QuoteCache)(nil)

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(venue, outcomeID string) string {
	return "quote:" + venue + ":" + outcomeID
}

// SetQuote mirrors the latest quote for its (venue, outcome) slot.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.OutcomeQuote) error {
	key := quoteKey(q.Venue, q.OutcomeID)
	fields := map[string]interface{}{
		"bid":       strconv.FormatFloat(q.Bid, 'f', -1, 64),
		"ask":       strconv.FormatFloat(q.Ask, 'f', -1, 64),
		"last":      strconv.FormatFloat(q.Last, 'f', -1, 64),
		"size_hint": strconv.FormatFloat(q.SizeHint, 'f', -1, 64),
		"seq":       strconv.FormatInt(q.Seq, 10),
		"ts":        strconv.FormatInt(q.Timestamp.UnixNano(), 10),
	}

	pipe := qc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", key, err)
	}
	return nil
}

// GetQuote retrieves the mirrored quote for one (venue, outcome) slot. It
// returns domain.ErrNotFound when the slot is empty or expired.
func (qc *QuoteCache) GetQuote(ctx context.Context, venue, outcomeID string) (domain.OutcomeQuote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(venue, outcomeID)).Result()
	if err != nil {
		return domain.OutcomeQuote{}, fmt.Errorf("redis: get quote %s/%s: %w", venue, outcomeID, err)
	}
	if len(vals) == 0 {
		return domain.OutcomeQuote{}, domain.ErrNotFound
	}
	return parseQuote(venue, outcomeID, vals)
}

// GetQuotes retrieves mirrored quotes for several outcomes on one venue using
// a pipeline. Missing slots are omitted from the result.
func (qc *QuoteCache) GetQuotes(ctx context.Context, venue string, outcomeIDs []string) (map[string]domain.OutcomeQuote, error) {
	if len(outcomeIDs) == 0 {
		return map[string]domain.OutcomeQuote{}, nil
	}

	pipe := qc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(outcomeIDs))
	for _, id := range outcomeIDs {
		cmds[id] = pipe.HGetAll(ctx, quoteKey(venue, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	result := make(map[string]domain.OutcomeQuote, len(outcomeIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		q, err := parseQuote(venue, id, vals)
		if err != nil {
			continue
		}
		result[id] = q
	}
	return result, nil
}

func parseQuote(venue, outcomeID string, vals map[string]string) (domain.OutcomeQuote, error) {
	q := domain.OutcomeQuote{Venue: venue, OutcomeID: outcomeID}

	var err error
	if q.Bid, err = strconv.ParseFloat(vals["bid"], 64); err != nil {
		return domain.OutcomeQuote{}, fmt.Errorf("redis: parse quote bid: %w", err)
	}
	if q.Ask, err = strconv.ParseFloat(vals["ask"], 64); err != nil {
		return domain.OutcomeQuote{}, fmt.Errorf("redis: parse quote ask: %w", err)
	}
	if v, ok := vals["last"]; ok {
		q.Last, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := vals["size_hint"]; ok {
		q.SizeHint, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := vals["seq"]; ok {
		q.Seq, _ = strconv.ParseInt(v, 10, 64)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.OutcomeQuote{}, fmt.Errorf("redis: parse quote ts: %w", err)
	}
	q.Timestamp = time.Unix(0, tsNano)
	return q, nil
}
