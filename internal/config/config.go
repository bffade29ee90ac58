// Package config defines the top-level configuration for the engine and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PREDICTIPULSE_* environment
// variables.
type Config struct {
	Strategy Strategy `toml:"strategy"`
	Feeds    Feeds    `toml:"feeds"`
	Kalshi   Kalshi   `toml:"kalshi"`
	Paper    Paper    `toml:"paper"`
	Postgres Postgres `toml:"postgres"`
	Redis    Redis    `toml:"redis"`
	S3       S3       `toml:"s3"`
	Archive  Archive  `toml:"archive"`
	Server   Server   `toml:"server"`
	Notify   Notify   `toml:"notify"`
	Mode     string   `toml:"mode"`
	LogLevel string   `toml:"log_level"`
}

// Strategy holds the detection and sizing parameters. EV targets and the
// probability band gate which directions are tradable; the Kelly block caps
// how much any one signal can stake.
type Strategy struct {
	TargetBuyEV     float64  `toml:"target_buy_ev"`
	TargetSellEV    float64  `toml:"target_sell_ev"`
	MinTrueProb     float64  `toml:"min_true_prob"`
	MaxTrueProb     float64  `toml:"max_true_prob"`
	KellyMultiplier float64  `toml:"kelly_multiplier"`
	MaxPctBankroll  float64  `toml:"max_pct_bankroll"`
	MaxDollarBet    float64  `toml:"max_dollar_bet"`
	MinOrderSize    float64  `toml:"min_order_size"`
	ScanInterval    duration `toml:"scan_interval"`
	CycleTimeout    duration `toml:"cycle_timeout"`
	MaxQuoteAge     duration `toml:"max_quote_age"`
	DryRun          bool     `toml:"dry_run"`
}

// Feeds selects and configures the quote sources.
type Feeds struct {
	BoltOdds BoltOddsFeed `toml:"boltodds"`
	Kalshi   KalshiFeed   `toml:"kalshi"`
	Sim      SimFeed      `toml:"sim"`
}

// BoltOddsFeed holds the sharp odds stream parameters.
type BoltOddsFeed struct {
	Enabled       bool     `toml:"enabled"`
	WSURL         string   `toml:"ws_url"`
	APIKey        string   `toml:"api_key"`
	Sports        []string `toml:"sports"`
	Sportsbooks   []string `toml:"sportsbooks"`
	FlatVigFactor float64  `toml:"flat_vig_factor"` // one-sided devig haircut
}

// KalshiFeed holds the venue ticker stream parameters.
type KalshiFeed struct {
	Enabled bool     `toml:"enabled"`
	WSURL   string   `toml:"ws_url"`
	Tickers []string `toml:"tickers"`
}

// SimFeed holds the synthetic quote generator parameters used in paper mode.
type SimFeed struct {
	Enabled  bool     `toml:"enabled"`
	Outcomes []string `toml:"outcomes"`
	Interval duration `toml:"interval"`
	Spread   float64  `toml:"spread"`
	Bias     float64  `toml:"bias"`
	Drift    float64  `toml:"drift"`
	Seed     int64    `toml:"seed"`
}

// Kalshi holds the execution venue credentials and limits.
type Kalshi struct {
	BaseURL      string   `toml:"base_url"`
	APIKey       string   `toml:"api_key"`
	APISecret    string   `toml:"api_secret"`
	MinOrderUSD  float64  `toml:"min_order_usd"`
	RequestLimit float64  `toml:"request_limit"`
	Burst        int      `toml:"burst"`
	Timeout      duration `toml:"timeout"`
}

// Paper holds the simulated execution venue parameters.
type Paper struct {
	StartingBalance float64 `toml:"starting_balance"`
	MinOrderUSD     float64 `toml:"min_order_usd"`
}

// Postgres holds PostgreSQL connection parameters.
type Postgres struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// Redis holds Redis connection parameters.
type Redis struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3 holds S3-compatible object storage parameters.
type S3 struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Archive controls periodic upload of closed orders and fills to S3.
type Archive struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// Server holds HTTP control API parameters.
type Server struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// Notify holds notification channel credentials.
type Notify struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. These
// match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Strategy: Strategy{
			TargetBuyEV:     0.05,
			TargetSellEV:    0.05,
			MinTrueProb:     0.15,
			MaxTrueProb:     0.85,
			KellyMultiplier: 0.5,
			MaxPctBankroll:  0.10,
			MaxDollarBet:    50,
			MinOrderSize:    1,
			ScanInterval:    duration{5 * time.Second},
			CycleTimeout:    duration{10 * time.Second},
			MaxQuoteAge:     duration{30 * time.Second},
			DryRun:          false,
		},
		Feeds: Feeds{
			BoltOdds: BoltOddsFeed{
				Enabled:       true,
				WSURL:         "wss://stream.boltodds.com/v1/odds",
				Sportsbooks:   []string{"pinnacle", "circa"},
				FlatVigFactor: 0.025,
			},
			Kalshi: KalshiFeed{
				Enabled: true,
				WSURL:   "wss://api.elections.kalshi.com/trade-api/ws/v2",
			},
			Sim: SimFeed{
				Enabled:  false,
				Interval: duration{500 * time.Millisecond},
				Spread:   0.01,
				Drift:    0.005,
			},
		},
		Kalshi: Kalshi{
			BaseURL:      "https://api.elections.kalshi.com/trade-api/v2",
			MinOrderUSD:  1,
			RequestLimit: 10,
			Burst:        5,
			Timeout:      duration{30 * time.Second},
		},
		Paper: Paper{
			StartingBalance: 1000,
			MinOrderUSD:     1,
		},
		Postgres: Postgres{
			Host:          "localhost",
			Port:          5432,
			Database:      "predictipulse",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: Redis{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "predictipulse-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: Archive{
			Enabled:       false,
			Interval:      duration{24 * time.Hour},
			RetentionDays: 90,
		},
		Server: Server{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: Notify{
			Events: []string{"opportunity", "order_update"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"paper":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, paper, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Strategy
	s := c.Strategy
	if s.MinTrueProb < 0 || s.MinTrueProb > 1 || s.MaxTrueProb < 0 || s.MaxTrueProb > 1 {
		errs = append(errs, "strategy: probability bounds must be within [0, 1]")
	}
	if s.MinTrueProb >= s.MaxTrueProb {
		errs = append(errs, "strategy: min_true_prob must be below max_true_prob")
	}
	if s.KellyMultiplier <= 0 || s.KellyMultiplier > 1 {
		errs = append(errs, "strategy: kelly_multiplier must be within (0, 1]")
	}
	if s.MaxPctBankroll <= 0 || s.MaxPctBankroll > 1 {
		errs = append(errs, "strategy: max_pct_bankroll must be within (0, 1]")
	}
	if s.MaxDollarBet <= 0 {
		errs = append(errs, "strategy: max_dollar_bet must be > 0")
	}
	if s.ScanInterval.Duration <= 0 {
		errs = append(errs, "strategy: scan_interval must be > 0")
	}
	if s.CycleTimeout.Duration <= 0 {
		errs = append(errs, "strategy: cycle_timeout must be > 0")
	}
	if s.MaxQuoteAge.Duration <= 0 {
		errs = append(errs, "strategy: max_quote_age must be > 0")
	}

	// At least one feed must be enabled, the consensus model has nothing to
	// blend otherwise.
	if !c.Feeds.BoltOdds.Enabled && !c.Feeds.Kalshi.Enabled && !c.Feeds.Sim.Enabled {
		errs = append(errs, "feeds: at least one feed must be enabled")
	}
	if c.Feeds.BoltOdds.Enabled {
		if c.Feeds.BoltOdds.WSURL == "" {
			errs = append(errs, "feeds.boltodds: ws_url must not be empty")
		}
		if c.Feeds.BoltOdds.APIKey == "" && c.Mode != "paper" {
			errs = append(errs, "feeds.boltodds: api_key is required outside paper mode")
		}
	}
	if c.Feeds.Kalshi.Enabled && c.Feeds.Kalshi.WSURL == "" {
		errs = append(errs, "feeds.kalshi: ws_url must not be empty")
	}
	if c.Feeds.Sim.Enabled && len(c.Feeds.Sim.Outcomes) == 0 {
		errs = append(errs, "feeds.sim: outcomes must not be empty when enabled")
	}

	// Kalshi venue credentials are only needed when orders go to the real
	// venue.
	if c.Mode == "trade" {
		if c.Kalshi.APIKey == "" || c.Kalshi.APISecret == "" {
			errs = append(errs, "kalshi: api_key and api_secret are required for trade mode")
		}
		if c.Kalshi.BaseURL == "" {
			errs = append(errs, "kalshi: base_url must not be empty")
		}
	}
	if c.Mode == "paper" && c.Paper.StartingBalance <= 0 {
		errs = append(errs, "paper: starting_balance must be > 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" && c.S3.Region == "" {
			errs = append(errs, "s3: endpoint or region must be set when archiving is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Telegram credentials come in pairs.
	tk := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tk != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
