package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "paper"

[strategy]
kelly_multiplier = 0.25
scan_interval = "2s"

[feeds.sim]
enabled = true
outcomes = ["OUT-1", "OUT-2"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.25, cfg.Strategy.KellyMultiplier)
	assert.Equal(t, 2*time.Second, cfg.Strategy.ScanInterval.Duration)
	assert.Equal(t, []string{"OUT-1", "OUT-2"}, cfg.Feeds.Sim.Outcomes)
	// Untouched fields keep their defaults.
	assert.Equal(t, 0.05, cfg.Strategy.TargetBuyEV)
	assert.Equal(t, 0.10, cfg.Strategy.MaxPctBankroll)
	assert.Equal(t, 50.0, cfg.Strategy.MaxDollarBet)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := writeConfig(t, `
[kalshi]
api_key = "from-file"
`)

	t.Setenv("PREDICTIPULSE_KALSHI_API_KEY", "from-env")
	t.Setenv("PREDICTIPULSE_STRATEGY_SCAN_INTERVAL", "750ms")
	t.Setenv("PREDICTIPULSE_NOTIFY_EVENTS", "opportunity, order_update")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Kalshi.APIKey)
	assert.Equal(t, 750*time.Millisecond, cfg.Strategy.ScanInterval.Duration)
	assert.Equal(t, []string{"opportunity", "order_update"}, cfg.Notify.Events)
}

func TestValidateDefaultsArePaperReady(t *testing.T) {
	cfg := Defaults()
	cfg.Feeds.Sim.Enabled = true
	cfg.Feeds.Sim.Outcomes = []string{"OUT-1"}
	cfg.Feeds.BoltOdds.Enabled = false
	cfg.Feeds.Kalshi.Enabled = false

	require.NoError(t, cfg.Validate())
}

func TestValidateTradeModeRequiresVenueCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Feeds.BoltOdds.APIKey = "k"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key and api_secret are required")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "warp"
	cfg.Strategy.MinTrueProb = 0.9 // above MaxTrueProb
	cfg.Strategy.KellyMultiplier = 1.5
	cfg.Notify.TelegramToken = "token-without-chat"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "min_true_prob")
	assert.Contains(t, err.Error(), "kelly_multiplier")
	assert.Contains(t, err.Error(), "telegram_token")
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Kalshi.APISecret = "super-secret"
	cfg.Postgres.Password = "hunter2"
	cfg.Notify.DiscordWebhookURL = "https://discord.com/api/webhooks/x"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Kalshi.APISecret)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Notify.DiscordWebhookURL)
	// Original untouched.
	assert.Equal(t, "super-secret", cfg.Kalshi.APISecret)
	// Non-secret fields survive.
	assert.Equal(t, cfg.Postgres.Host, red.Postgres.Host)
}
