package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sources.json", cfg.Catalog.Path)
	assert.Equal(t, 16, cfg.Scheduler.MaxConcurrentFires)
	assert.Equal(t, 10, cfg.Scheduler.UpcomingLimit)
	assert.Equal(t, 15*time.Minute, cfg.ReaperInterval())
	assert.Equal(t, time.Hour, cfg.StuckTimeout())
	assert.Equal(t, 10*time.Second, cfg.WebhookTimeout())
	assert.Equal(t, 3, cfg.Webhook.MaxAttempts)
	assert.Equal(t, time.Second, cfg.WebhookBackoffBase())
	assert.Equal(t, "memory", cfg.DB.Provider)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  port: 9090
catalog:
  path: /etc/orchestrator/sources.json
reaper:
  interval_minutes: 5
  stuck_timeout_minutes: 30
webhook:
  max_attempts: 5
connectors:
  world-bank:
    url: https://api.worldbank.org/v2/country/all/indicator/NY.GDP.MKTP.CD
    timeout_seconds: 45
  fred:
    url: https://api.stlouisfed.org/fred/series/observations
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/etc/orchestrator/sources.json", cfg.Catalog.Path)
	assert.Equal(t, 5*time.Minute, cfg.ReaperInterval())
	assert.Equal(t, 30*time.Minute, cfg.StuckTimeout())
	assert.Equal(t, 5, cfg.Webhook.MaxAttempts)

	require.Len(t, cfg.Connectors, 2)
	assert.Equal(t, 45*time.Second, cfg.Connectors["world-bank"].Timeout())
	assert.Equal(t, time.Duration(0), cfg.Connectors["fred"].Timeout())
	assert.Equal(t, "https://api.stlouisfed.org/fred/series/observations", cfg.Connectors["fred"].URL)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"empty catalog path", func(c *Config) { c.Catalog.Path = "" }},
		{"connector without url", func(c *Config) { c.Connectors = map[string]ConnectorConfig{"fred": {TimeoutSeconds: 30}} }},
		{"zero fires", func(c *Config) { c.Scheduler.MaxConcurrentFires = 0 }},
		{"zero reaper interval", func(c *Config) { c.Reaper.IntervalMinutes = 0 }},
		{"zero stuck timeout", func(c *Config) { c.Reaper.StuckTimeoutMinutes = 0 }},
		{"zero webhook timeout", func(c *Config) { c.Webhook.TimeoutSeconds = 0 }},
		{"zero webhook attempts", func(c *Config) { c.Webhook.MaxAttempts = 0 }},
		{"postgres without dsn", func(c *Config) { c.DB.Provider = "postgres"; c.DB.DSN = "" }},
		{"pubsub without project", func(c *Config) { c.PubSub.Provider = "pubsub" }},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true; c.Auth.APIKey = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
