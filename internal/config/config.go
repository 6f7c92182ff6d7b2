// Package config loads and validates unfurler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store provider names accepted by store.provider.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Scraper    ScraperConfig    `mapstructure:"scraper"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Direct     DirectConfig     `mapstructure:"direct"`
	OEmbed     OEmbedConfig     `mapstructure:"oembed"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Store      StoreConfig      `mapstructure:"store"`
	Events     EventsConfig     `mapstructure:"events"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Assets     AssetsConfig     `mapstructure:"assets"`
	VideoProxy VideoProxyConfig `mapstructure:"video_proxy"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ScraperConfig governs the strategy fallback chain.
type ScraperConfig struct {
	AttemptDelayMs int `mapstructure:"attempt_delay_ms"`
}

// HeadlessConfig configures the browser automation strategy.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// DirectConfig configures the direct HTTP strategy.
type DirectConfig struct {
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	ProxyURLs      []string `mapstructure:"proxy_urls"`
	WarmUp         bool     `mapstructure:"warm_up"`
}

// OEmbedConfig configures the metadata API strategy.
type OEmbedConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
}

// PipelineConfig bounds per-event processing.
type PipelineConfig struct {
	ProcessTimeoutSec int `mapstructure:"process_timeout_seconds"`
	LinkConcurrency   int `mapstructure:"link_concurrency"`
}

// CacheConfig controls the rendered-unfurl cache.
type CacheConfig struct {
	TTLHours int `mapstructure:"ttl_hours"`
}

// DedupConfig controls the per-URL processing lease.
type DedupConfig struct {
	LeaseTTLSeconds int `mapstructure:"lease_ttl_seconds"`
}

// StoreConfig selects and configures the shared KV store.
type StoreConfig struct {
	Provider string `mapstructure:"provider"`
	Redis    struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Postgres struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"postgres"`
}

// EventsConfig sizes the event queue and worker pool.
type EventsConfig struct {
	QueueDepth int `mapstructure:"queue_depth"`
	Workers    int `mapstructure:"workers"`
}

// PubSubConfig holds the event subscription metadata. When disabled,
// events arrive only over the HTTP API.
type PubSubConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ProjectID      string `mapstructure:"project_id"`
	SubscriptionID string `mapstructure:"subscription_id"`
}

// ChatConfig points at the chat platform's unfurl endpoint.
type ChatConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// AssetsConfig controls media re-hosting.
type AssetsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// VideoProxyConfig points at the embeddable video player collaborator.
type VideoProxyConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("UNFURLER")
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
	v.SetDefault("scraper.attempt_delay_ms", 500)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 15)
	v.SetDefault("direct.timeout_seconds", 10)
	v.SetDefault("direct.warm_up", false)
	v.SetDefault("oembed.enabled", true)
	v.SetDefault("oembed.timeout_seconds", 8)
	v.SetDefault("pipeline.process_timeout_seconds", 30)
	v.SetDefault("pipeline.link_concurrency", 3)
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("dedup.lease_ttl_seconds", 300)
	v.SetDefault("store.provider", StoreMemory)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("events.queue_depth", 128)
	v.SetDefault("events.workers", 4)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("chat.timeout_seconds", 10)
	v.SetDefault("assets.enabled", false)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.LinkConcurrency <= 0 {
		return fmt.Errorf("pipeline.link_concurrency must be > 0")
	}
	if c.Pipeline.ProcessTimeoutSec <= 0 {
		return fmt.Errorf("pipeline.process_timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Store.Provider {
	case StoreMemory:
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr must be set for the redis provider")
		}
	case StorePostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn must be set for the postgres provider")
		}
	default:
		return fmt.Errorf("store.provider must be one of %s, %s, %s", StoreMemory, StoreRedis, StorePostgres)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.SubscriptionID == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.subscription_id must be set when pubsub is enabled")
	}
	if c.Chat.Endpoint == "" {
		return fmt.Errorf("chat.endpoint must be set")
	}
	if c.Assets.Enabled && c.Assets.GCSBucket == "" {
		return fmt.Errorf("assets.gcs_bucket must be set when asset re-hosting is enabled")
	}
	return nil
}

// AttemptDelay returns the inter-strategy delay as a duration.
func (c Config) AttemptDelay() time.Duration {
	return time.Duration(c.Scraper.AttemptDelayMs) * time.Millisecond
}

// ProcessTimeout returns the per-event budget as a duration.
func (c Config) ProcessTimeout() time.Duration {
	return time.Duration(c.Pipeline.ProcessTimeoutSec) * time.Second
}

// CacheTTL returns the render cache TTL as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// LeaseTTL returns the dedup lease TTL as a duration.
func (c Config) LeaseTTL() time.Duration {
	return time.Duration(c.Dedup.LeaseTTLSeconds) * time.Second
}
