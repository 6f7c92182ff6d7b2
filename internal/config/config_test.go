package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
scraper:
  attempt_delay_ms: 250
headless:
  enabled: true
  max_parallel: 4
  nav_timeout_seconds: 20
direct:
  timeout_seconds: 12
  proxy_urls: ["http://proxy1:8080", "http://proxy2:8080"]
  warm_up: true
pipeline:
  process_timeout_seconds: 45
  link_concurrency: 5
cache:
  ttl_hours: 12
dedup:
  lease_ttl_seconds: 120
store:
  provider: redis
  redis:
    addr: redis:6379
    db: 2
chat:
  endpoint: https://chat.example.com/api/unfurl
video_proxy:
  base_url: https://proxy.example.com
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Headless.MaxParallel != 4 {
		t.Fatalf("expected headless overrides to apply, got %+v", cfg.Headless)
	}
	if len(cfg.Direct.ProxyURLs) != 2 || !cfg.Direct.WarmUp {
		t.Fatalf("expected direct overrides to apply, got %+v", cfg.Direct)
	}
	if cfg.Store.Provider != StoreRedis || cfg.Store.Redis.Addr != "redis:6379" || cfg.Store.Redis.DB != 2 {
		t.Fatalf("expected redis store config, got %+v", cfg.Store)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected development logging disabled")
	}
	if got := cfg.AttemptDelay(); got != 250*time.Millisecond {
		t.Fatalf("expected attempt delay 250ms, got %v", got)
	}
	if got := cfg.ProcessTimeout(); got != 45*time.Second {
		t.Fatalf("expected process timeout 45s, got %v", got)
	}
	if got := cfg.CacheTTL(); got != 12*time.Hour {
		t.Fatalf("expected cache ttl 12h, got %v", got)
	}
	if got := cfg.LeaseTTL(); got != 120*time.Second {
		t.Fatalf("expected lease ttl 120s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("UNFURLER_CHAT_ENDPOINT", "https://chat.example.com/api/unfurl")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Store.Provider != StoreMemory {
		t.Fatalf("expected default memory store, got %q", cfg.Store.Provider)
	}
	if cfg.CacheTTL() != 24*time.Hour {
		t.Fatalf("expected default cache ttl 24h, got %v", cfg.CacheTTL())
	}
	if cfg.Events.Workers != 4 || cfg.Events.QueueDepth != 128 {
		t.Fatalf("expected default event sizing, got %+v", cfg.Events)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Pipeline: PipelineConfig{
			ProcessTimeoutSec: 30,
			LinkConcurrency:   3,
		},
		Store: StoreConfig{Provider: StoreMemory},
		Chat:  ChatConfig{Endpoint: "https://chat.example.com/api/unfurl"},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "invalid port",
			mutate: func(c *Config) { c.Server.Port = 0 },
			want:   "server.port",
		},
		{
			name:   "invalid link concurrency",
			mutate: func(c *Config) { c.Pipeline.LinkConcurrency = 0 },
			want:   "pipeline.link_concurrency",
		},
		{
			name:   "invalid process timeout",
			mutate: func(c *Config) { c.Pipeline.ProcessTimeoutSec = 0 },
			want:   "pipeline.process_timeout_seconds",
		},
		{
			name: "headless missing max parallel",
			mutate: func(c *Config) {
				c.Headless.Enabled = true
				c.Headless.MaxParallel = 0
			},
			want: "headless.max_parallel",
		},
		{
			name:   "unknown store provider",
			mutate: func(c *Config) { c.Store.Provider = "etcd" },
			want:   "store.provider",
		},
		{
			name:   "redis provider missing addr",
			mutate: func(c *Config) { c.Store.Provider = StoreRedis },
			want:   "store.redis.addr",
		},
		{
			name:   "postgres provider missing dsn",
			mutate: func(c *Config) { c.Store.Provider = StorePostgres },
			want:   "store.postgres.dsn",
		},
		{
			name:   "pubsub enabled without subscription",
			mutate: func(c *Config) { c.PubSub.Enabled = true },
			want:   "pubsub.project_id",
		},
		{
			name:   "missing chat endpoint",
			mutate: func(c *Config) { c.Chat.Endpoint = "" },
			want:   "chat.endpoint",
		},
		{
			name:   "assets enabled without bucket",
			mutate: func(c *Config) { c.Assets.Enabled = true },
			want:   "assets.gcs_bucket",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
