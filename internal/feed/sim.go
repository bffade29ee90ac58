package feed

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/solvys/predictipulse/internal/domain"
)

// SimFeedConfig configures a simulated feed for paper trading and demos.
type SimFeedConfig struct {
	Name     string
	Outcomes []string
	Interval time.Duration
	Spread   float64 // half-spread around the walked midpoint
	Bias     float64 // constant offset; a negative bias makes the venue cheap
	Drift    float64 // per-tick random walk scale
	Seed     int64
}

// SimFeed emits random-walk quotes for a fixed outcome set. Pairing a sharp
// sim with a negatively biased market sim produces steady paper-mode edges.
type SimFeed struct {
	cfg    SimFeedConfig
	logger *slog.Logger

	mu     sync.RWMutex
	probs  map[string]float64
	latest map[string]domain.OutcomeQuote
	seq    int64
	rng    *rand.Rand
}

var _ domain.QuoteFeed = (*SimFeed)(nil)

// NewSimFeed creates a simulated feed with per-outcome walks seeded from cfg.
func NewSimFeed(cfg SimFeedConfig, logger *slog.Logger) *SimFeed {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Drift == 0 {
		cfg.Drift = 0.01
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	probs := make(map[string]float64, len(cfg.Outcomes))
	for _, id := range cfg.Outcomes {
		probs[id] = 0.25 + rng.Float64()*0.5 // start inside the tradable band
	}
	return &SimFeed{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "sim_feed"), slog.String("feed", cfg.Name)),
		probs:  probs,
		latest: make(map[string]domain.OutcomeQuote),
		rng:    rng,
	}
}

// Name identifies the feed in logs and uplink status.
func (f *SimFeed) Name() string { return f.cfg.Name }

// CurrentQuotes returns the latest simulated quote per outcome.
func (f *SimFeed) CurrentQuotes(_ context.Context) ([]domain.OutcomeQuote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.OutcomeQuote, 0, len(f.latest))
	for _, q := range f.latest {
		out = append(out, q)
	}
	return out, nil
}

// Subscribe starts the tick loop and returns the quote stream. The channel
// closes when ctx is cancelled.
func (f *SimFeed) Subscribe(ctx context.Context) (<-chan domain.OutcomeQuote, error) {
	out := make(chan domain.OutcomeQuote, 256)
	go func() {
		defer close(out)
		ticker := time.NewTicker(f.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, q := range f.tick() {
					select {
					case out <- q:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

// tick advances every outcome's walk one step and returns the fresh quotes.
func (f *SimFeed) tick() []domain.OutcomeQuote {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	out := make([]domain.OutcomeQuote, 0, len(f.probs))
	for _, id := range f.cfg.Outcomes {
		p := f.probs[id] + (f.rng.Float64()-0.5)*2*f.cfg.Drift
		p = clamp(p, 0.02, 0.98)
		f.probs[id] = p

		mid := clamp(p+f.cfg.Bias, 0.01, 0.99)
		f.seq++
		q := domain.OutcomeQuote{
			Venue:     f.cfg.Name,
			OutcomeID: id,
			Last:      mid,
			SizeHint:  100 + f.rng.Float64()*900,
			Seq:       f.seq,
			Timestamp: now,
		}
		if f.cfg.Spread > 0 {
			q.Bid = clamp(mid-f.cfg.Spread, 0.01, 0.99)
			q.Ask = clamp(mid+f.cfg.Spread, 0.01, 0.99)
		}
		f.latest[q.Key()] = q
		out = append(out, q)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
