package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PREDICTIPULSE_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDICTIPULSE_* environment variables
// and overwrites the corresponding Config fields when a variable is set.
// This lets operators inject secrets at deploy time without touching the
// TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Strategy ──
	setFloat64(&cfg.Strategy.TargetBuyEV, "PREDICTIPULSE_STRATEGY_TARGET_BUY_EV")
	setFloat64(&cfg.Strategy.TargetSellEV, "PREDICTIPULSE_STRATEGY_TARGET_SELL_EV")
	setFloat64(&cfg.Strategy.KellyMultiplier, "PREDICTIPULSE_STRATEGY_KELLY_MULTIPLIER")
	setFloat64(&cfg.Strategy.MaxPctBankroll, "PREDICTIPULSE_STRATEGY_MAX_PCT_BANKROLL")
	setFloat64(&cfg.Strategy.MaxDollarBet, "PREDICTIPULSE_STRATEGY_MAX_DOLLAR_BET")
	setDuration(&cfg.Strategy.ScanInterval, "PREDICTIPULSE_STRATEGY_SCAN_INTERVAL")
	setBool(&cfg.Strategy.DryRun, "PREDICTIPULSE_STRATEGY_DRY_RUN")

	// ── Feeds ──
	setStr(&cfg.Feeds.BoltOdds.WSURL, "PREDICTIPULSE_FEEDS_BOLTODDS_WS_URL")
	setStr(&cfg.Feeds.BoltOdds.APIKey, "PREDICTIPULSE_FEEDS_BOLTODDS_API_KEY")
	setStringSlice(&cfg.Feeds.BoltOdds.Sportsbooks, "PREDICTIPULSE_FEEDS_BOLTODDS_SPORTSBOOKS")
	setStr(&cfg.Feeds.Kalshi.WSURL, "PREDICTIPULSE_FEEDS_KALSHI_WS_URL")
	setStringSlice(&cfg.Feeds.Kalshi.Tickers, "PREDICTIPULSE_FEEDS_KALSHI_TICKERS")

	// ── Kalshi venue ──
	setStr(&cfg.Kalshi.BaseURL, "PREDICTIPULSE_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.APIKey, "PREDICTIPULSE_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.APISecret, "PREDICTIPULSE_KALSHI_API_SECRET")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PREDICTIPULSE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PREDICTIPULSE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDICTIPULSE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDICTIPULSE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDICTIPULSE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDICTIPULSE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDICTIPULSE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDICTIPULSE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDICTIPULSE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PREDICTIPULSE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PREDICTIPULSE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PREDICTIPULSE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICTIPULSE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICTIPULSE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDICTIPULSE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDICTIPULSE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDICTIPULSE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PREDICTIPULSE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDICTIPULSE_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDICTIPULSE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDICTIPULSE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDICTIPULSE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDICTIPULSE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDICTIPULSE_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PREDICTIPULSE_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "PREDICTIPULSE_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "PREDICTIPULSE_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PREDICTIPULSE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PREDICTIPULSE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDICTIPULSE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PREDICTIPULSE_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PREDICTIPULSE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDICTIPULSE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDICTIPULSE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDICTIPULSE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDICTIPULSE_MODE")
	setStr(&cfg.LogLevel, "PREDICTIPULSE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
