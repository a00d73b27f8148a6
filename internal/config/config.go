// Package config loads and validates orchestrator configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig               `mapstructure:"server"`
	Auth       AuthConfig                 `mapstructure:"auth"`
	Catalog    CatalogConfig              `mapstructure:"catalog"`
	Connectors map[string]ConnectorConfig `mapstructure:"connectors"`
	Scheduler  SchedulerConfig            `mapstructure:"scheduler"`
	Reaper     ReaperConfig               `mapstructure:"reaper"`
	Webhook    WebhookConfig              `mapstructure:"webhook"`
	DB         DBConfig                   `mapstructure:"db"`
	PubSub     PubSubConfig               `mapstructure:"pubsub"`
	Logging    LoggingConfig              `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CatalogConfig points at the source catalog file.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// ConnectorConfig describes one HTTP-backed connector endpoint, keyed in
// the Connectors map by the name catalog entries refer to.
type ConnectorConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout converts the fetch timeout config into a duration. Zero means
// the connector's own default applies.
func (c ConnectorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SchedulerConfig governs timer registration and fire fan-out.
type SchedulerConfig struct {
	MaxConcurrentFires int `mapstructure:"max_concurrent_fires"`
	UpcomingLimit      int `mapstructure:"upcoming_limit"`
}

// ReaperConfig controls the stuck-run sweep.
type ReaperConfig struct {
	IntervalMinutes     int `mapstructure:"interval_minutes"`
	StuckTimeoutMinutes int `mapstructure:"stuck_timeout_minutes"`
}

// WebhookConfig controls outbound delivery behavior.
type WebhookConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxAttempts    int `mapstructure:"max_attempts"`
	BackoffBaseMs  int `mapstructure:"backoff_base_ms"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for the failure alert side channel.
type PubSubConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ORCHESTRATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("catalog.path", "sources.json")
	v.SetDefault("scheduler.max_concurrent_fires", 16)
	v.SetDefault("scheduler.upcoming_limit", 10)
	v.SetDefault("reaper.interval_minutes", 15)
	v.SetDefault("reaper.stuck_timeout_minutes", 60)
	v.SetDefault("webhook.timeout_seconds", 10)
	v.SetDefault("webhook.max_attempts", 3)
	v.SetDefault("webhook.backoff_base_ms", 1000)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("pubsub.provider", "noop")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	for name, conn := range c.Connectors {
		if conn.URL == "" {
			return fmt.Errorf("connectors.%s.url is required", name)
		}
	}
	if c.Scheduler.MaxConcurrentFires <= 0 {
		return fmt.Errorf("scheduler.max_concurrent_fires must be > 0")
	}
	if c.Reaper.IntervalMinutes <= 0 {
		return fmt.Errorf("reaper.interval_minutes must be > 0")
	}
	if c.Reaper.StuckTimeoutMinutes <= 0 {
		return fmt.Errorf("reaper.stuck_timeout_minutes must be > 0")
	}
	if c.Webhook.TimeoutSeconds <= 0 {
		return fmt.Errorf("webhook.timeout_seconds must be > 0")
	}
	if c.Webhook.MaxAttempts <= 0 {
		return fmt.Errorf("webhook.max_attempts must be > 0")
	}
	if c.DB.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db.provider is postgres")
	}
	if c.PubSub.Provider == "pubsub" && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub.provider is pubsub")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// WebhookTimeout converts the delivery timeout config into a duration.
func (c Config) WebhookTimeout() time.Duration {
	return time.Duration(c.Webhook.TimeoutSeconds) * time.Second
}

// WebhookBackoffBase converts the backoff base config into a duration.
func (c Config) WebhookBackoffBase() time.Duration {
	return time.Duration(c.Webhook.BackoffBaseMs) * time.Millisecond
}

// ReaperInterval converts the sweep interval config into a duration.
func (c Config) ReaperInterval() time.Duration {
	return time.Duration(c.Reaper.IntervalMinutes) * time.Minute
}

// StuckTimeout converts the stuck-run threshold config into a duration.
func (c Config) StuckTimeout() time.Duration {
	return time.Duration(c.Reaper.StuckTimeoutMinutes) * time.Minute
}
