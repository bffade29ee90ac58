package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/solvys/predictipulse/internal/blob/s3"
	"github.com/solvys/predictipulse/internal/bus"
	"github.com/solvys/predictipulse/internal/cache/redis"
	"github.com/solvys/predictipulse/internal/config"
	"github.com/solvys/predictipulse/internal/domain"
	"github.com/solvys/predictipulse/internal/lifecycle"
	"github.com/solvys/predictipulse/internal/notify"
	"github.com/solvys/predictipulse/internal/store/memory"
	"github.com/solvys/predictipulse/internal/store/postgres"
)

// Dependencies bundles every dependency the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Orders    domain.OrderStore
	Positions domain.PositionStore
	Fills     domain.FillStore

	// Caches and coordination
	Locks      domain.LockManager
	QuoteCache domain.QuoteCache // nil when Redis is disabled
	SignalBus  *redis.SignalBus  // nil when Redis is disabled
	Bus        *bus.Bus

	// Blob storage
	Archiver *s3blob.Archiver // nil unless archiving is enabled in trade mode

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres reports whether the mode persists state across restarts.
// Paper and monitor runs are ephemeral and use in-memory stores.
func needsPostgres(mode string) bool {
	return mode == "trade"
}

// Wire constructs the concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Event bus ---
	deps.Bus = bus.New(logger)
	closers = append(closers, deps.Bus.Close)

	// --- Stores ---
	var pgOrders *postgres.OrderStore
	var pgFills *postgres.FillStore
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		pgOrders = postgres.NewOrderStore(pool)
		pgFills = postgres.NewFillStore(pool)
		deps.Orders = pgOrders
		deps.Positions = postgres.NewPositionStore(pool)
		deps.Fills = pgFills
	} else {
		deps.Orders = memory.NewOrderStore()
		deps.Positions = memory.NewPositionStore()
		deps.Fills = memory.NewFillStore()
	}

	// --- Redis (submission locks, shared quote mirror, signal bus) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Locks = redis.NewLockManager(redisClient)
		deps.QuoteCache = redis.NewQuoteCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	} else {
		deps.Locks = lifecycle.NewMemoryLocks()
	}

	// --- S3 archiving (trade mode only; memory stores have nothing worth
	// archiving) ---
	if cfg.Archive.Enabled && pgOrders != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), pgOrders, pgFills, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	events := make([]domain.EventType, 0, len(cfg.Notify.Events))
	for _, e := range cfg.Notify.Events {
		events = append(events, domain.EventType(e))
	}
	deps.Notifier = notify.NewNotifier(senders, events, logger)

	return deps, cleanup, nil
}
