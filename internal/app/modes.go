package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solvys/predictipulse/internal/consensus"
	"github.com/solvys/predictipulse/internal/crypto"
	"github.com/solvys/predictipulse/internal/domain"
	"github.com/solvys/predictipulse/internal/engine"
	"github.com/solvys/predictipulse/internal/feed"
	"github.com/solvys/predictipulse/internal/ledger"
	"github.com/solvys/predictipulse/internal/lifecycle"
	"github.com/solvys/predictipulse/internal/odds"
	"github.com/solvys/predictipulse/internal/scanner"
	"github.com/solvys/predictipulse/internal/server"
	"github.com/solvys/predictipulse/internal/server/handler"
	"github.com/solvys/predictipulse/internal/sizing"
	kalshivenue "github.com/solvys/predictipulse/internal/venue/kalshi"
	"github.com/solvys/predictipulse/internal/venue/paper"
)

// TradeMode routes orders to the real venue and persists through Postgres.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	venue := kalshivenue.New(kalshivenue.Config{
		BaseURL: a.cfg.Kalshi.BaseURL,
		Auth: crypto.HMACAuth{
			Key:    a.cfg.Kalshi.APIKey,
			Secret: a.cfg.Kalshi.APISecret,
		},
		MinOrderUSD:  a.cfg.Kalshi.MinOrderUSD,
		RequestLimit: a.cfg.Kalshi.RequestLimit,
		Burst:        a.cfg.Kalshi.Burst,
		Timeout:      a.cfg.Kalshi.Timeout.Duration,
	}, a.logger)

	return a.runEngine(ctx, deps, venue, a.cfg.Strategy.DryRun)
}

// PaperMode fills orders instantly against a simulated balance. State lives
// in memory and is gone after the run.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode")

	venue := paper.New(a.cfg.Paper.StartingBalance, a.cfg.Paper.MinOrderUSD, a.logger)
	return a.runEngine(ctx, deps, venue, a.cfg.Strategy.DryRun)
}

// MonitorMode detects and publishes opportunities but never executes.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	// The paper venue only serves as the bankroll source here; dry run
	// means no order ever reaches it.
	venue := paper.New(a.cfg.Paper.StartingBalance, a.cfg.Paper.MinOrderUSD, a.logger)
	return a.runEngine(ctx, deps, venue, true)
}

// runEngine assembles the feed stack, ledger, order lifecycle manager, and
// scan engine, then runs them with the HTTP control server, the notifier,
// and the archive loop until the context is cancelled.
func (a *App) runEngine(ctx context.Context, deps *Dependencies, venue domain.ExecutionVenue, dryRun bool) error {
	book := ledger.New(deps.Positions, deps.Fills, deps.Bus, a.logger)
	if err := book.Restore(ctx); err != nil {
		return err
	}

	manager := lifecycle.NewManager(
		venue, deps.Orders, deps.Locks, book, deps.Bus,
		lifecycle.Defaults(), a.logger,
	)

	scan := scanner.New(consensus.Model{
		MaxQuoteAge: a.cfg.Strategy.MaxQuoteAge.Duration,
	}, a.logger)

	settings := engine.Settings{
		Thresholds: scanner.Thresholds{
			TargetBuyEV:  a.cfg.Strategy.TargetBuyEV,
			TargetSellEV: a.cfg.Strategy.TargetSellEV,
			MinTrueProb:  a.cfg.Strategy.MinTrueProb,
			MaxTrueProb:  a.cfg.Strategy.MaxTrueProb,
		},
		Sizer: sizing.Sizer{
			Multiplier:     a.cfg.Strategy.KellyMultiplier,
			MaxPctBankroll: a.cfg.Strategy.MaxPctBankroll,
			MaxDollar:      a.cfg.Strategy.MaxDollarBet,
			MinOrderSize:   a.cfg.Strategy.MinOrderSize,
		},
		ScanInterval: a.cfg.Strategy.ScanInterval.Duration,
		CycleTimeout: a.cfg.Strategy.CycleTimeout.Duration,
		DryRun:       dryRun,
	}

	eng := engine.New(
		scan, manager, book, venue, deps.Bus, deps.QuoteCache,
		a.buildFeeds(), settings, a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)
	manager.Start(ctx)

	g.Go(func() error {
		return eng.Run(ctx)
	})

	// Notifier consumes its own bus subscription.
	notifyCh, cancelNotify := deps.Bus.Subscribe()
	g.Go(func() error {
		defer cancelNotify()
		return deps.Notifier.Run(ctx, notifyCh)
	})

	// Mirror events onto the Redis stream for external consumers.
	if deps.SignalBus != nil {
		mirrorCh, cancelMirror := deps.Bus.Subscribe()
		g.Go(func() error {
			defer cancelMirror()
			return a.mirrorEvents(ctx, deps, mirrorCh)
		})
	}

	if a.cfg.Server.Enabled {
		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		}, server.Handlers{
			Health:  handler.NewHealthHandler(a.logger),
			Status:  handler.NewStatusHandler(eng, deps.Bus, a.logger),
			Trading: handler.NewTradingHandler(eng, a.logger),
			Control: handler.NewControlHandler(eng, a.logger),
		}, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps)
		})
	}

	err := g.Wait()
	manager.Drain()
	return err
}

// buildFeeds constructs the enabled quote feeds. BoltOdds is a sharp-book
// input; the Kalshi stream carries tradable venue prices. The sim stack
// substitutes for both in offline paper runs.
func (a *App) buildFeeds() []engine.FeedBinding {
	var feeds []engine.FeedBinding

	if a.cfg.Feeds.BoltOdds.Enabled {
		f := feed.NewBoltOddsFeed(feed.BoltOddsConfig{
			WSURL:       a.cfg.Feeds.BoltOdds.WSURL,
			APIKey:      a.cfg.Feeds.BoltOdds.APIKey,
			Sports:      a.cfg.Feeds.BoltOdds.Sports,
			Sportsbooks: a.cfg.Feeds.BoltOdds.Sportsbooks,
		}, odds.Normalizer{FlatVigFactor: a.cfg.Feeds.BoltOdds.FlatVigFactor}, a.logger)
		feeds = append(feeds, engine.FeedBinding{Feed: f, Kind: engine.FeedSharp})
	}

	if a.cfg.Feeds.Kalshi.Enabled {
		f := feed.NewKalshiFeed(feed.KalshiFeedConfig{
			WSURL:   a.cfg.Feeds.Kalshi.WSURL,
			Tickers: a.cfg.Feeds.Kalshi.Tickers,
		}, a.logger)
		feeds = append(feeds, engine.FeedBinding{Feed: f, Kind: engine.FeedMarket})
	}

	if a.cfg.Feeds.Sim.Enabled {
		sim := a.cfg.Feeds.Sim
		sharp := feed.NewSimFeed(feed.SimFeedConfig{
			Name:     "sim-sharp",
			Outcomes: sim.Outcomes,
			Interval: sim.Interval.Duration,
			Spread:   sim.Spread,
			Drift:    sim.Drift,
			Seed:     sim.Seed,
		}, a.logger)
		market := feed.NewSimFeed(feed.SimFeedConfig{
			Name:     "sim-market",
			Outcomes: sim.Outcomes,
			Interval: sim.Interval.Duration,
			Spread:   sim.Spread,
			Bias:     sim.Bias,
			Drift:    sim.Drift,
			Seed:     sim.Seed + 1,
		}, a.logger)
		feeds = append(feeds,
			engine.FeedBinding{Feed: sharp, Kind: engine.FeedSharp},
			engine.FeedBinding{Feed: market, Kind: engine.FeedMarket},
		)
	}

	return feeds
}

// mirrorEvents republishes bus events onto the Redis stream so dashboards
// and other processes can follow along. Mirror failures are logged and
// skipped; the stream is a convenience, not a source of truth.
func (a *App) mirrorEvents(ctx context.Context, deps *Dependencies, events <-chan domain.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := deps.SignalBus.StreamAppend(ctx, "events", payload); err != nil {
				a.logger.WarnContext(ctx, "event mirror failed",
					slog.String("type", string(ev.Type)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// archiveLoop periodically uploads closed orders and old fills to S3. The
// retention window trails now by the configured number of days.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Archive.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)

			if _, err := deps.Archiver.ArchiveOrders(ctx, cutoff); err != nil {
				a.logger.WarnContext(ctx, "order archive failed",
					slog.String("error", err.Error()),
				)
			}
			if _, err := deps.Archiver.ArchiveFills(ctx, cutoff); err != nil {
				a.logger.WarnContext(ctx, "fill archive failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
