// Package main wires together the unfurler service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/gramlink/unfurler/internal/api"
	"github.com/gramlink/unfurler/internal/assets"
	blobgcs "github.com/gramlink/unfurler/internal/blob/gcs"
	"github.com/gramlink/unfurler/internal/cache"
	"github.com/gramlink/unfurler/internal/clock/system"
	"github.com/gramlink/unfurler/internal/config"
	"github.com/gramlink/unfurler/internal/dedup"
	"github.com/gramlink/unfurler/internal/delivery"
	"github.com/gramlink/unfurler/internal/events"
	eventsmemory "github.com/gramlink/unfurler/internal/events/memory"
	eventspubsub "github.com/gramlink/unfurler/internal/events/pubsub"
	"github.com/gramlink/unfurler/internal/logging"
	"github.com/gramlink/unfurler/internal/metrics"
	"github.com/gramlink/unfurler/internal/pipeline"
	"github.com/gramlink/unfurler/internal/render"
	"github.com/gramlink/unfurler/internal/scrape"
	"github.com/gramlink/unfurler/internal/scrape/direct"
	"github.com/gramlink/unfurler/internal/scrape/headless"
	"github.com/gramlink/unfurler/internal/scrape/oembed"
	"github.com/gramlink/unfurler/internal/secrets"
	"github.com/gramlink/unfurler/internal/store"
	storememory "github.com/gramlink/unfurler/internal/store/memory"
	storepostgres "github.com/gramlink/unfurler/internal/store/postgres"
	storeredis "github.com/gramlink/unfurler/internal/store/redis"
	"github.com/gramlink/unfurler/internal/unfurl"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	clock := system.New()

	kv, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build kv store: %w", err)
	}
	defer closeStore()

	gate := dedup.New(kv, cfg.LeaseTTL(), logger)
	renderCache := cache.NewWithClock(kv, cfg.CacheTTL(), logger, clock)

	secretSource := secrets.NewCached(secrets.NewEnvSource("", map[string][]string{
		"chat":   {"token"},
		"oembed": {"access_token"},
	}))

	orchestrator, closeScrapers := buildScrapers(ctx, cfg, secretSource, logger, m)
	defer closeScrapers()

	rehoster, closeBlob, err := buildRehoster(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build rehoster: %w", err)
	}
	defer closeBlob()

	chatToken := ""
	if bundle, err := secretSource.GetSecret(ctx, "chat"); err != nil {
		logger.Warn("chat token unavailable, delivering unauthenticated", zap.Error(err))
	} else {
		chatToken = bundle["token"]
	}
	deliverer, err := delivery.New(delivery.Config{
		Endpoint: cfg.Chat.Endpoint,
		Token:    chatToken,
		Timeout:  time.Duration(cfg.Chat.TimeoutSeconds) * time.Second,
	}, nil, logger)
	if err != nil {
		return fmt.Errorf("build deliverer: %w", err)
	}

	renderer := render.New(render.Config{
		VideoProxyBaseURL: cfg.VideoProxy.BaseURL,
	}, rehoster, logger, m)

	pipe := pipeline.New(pipeline.Config{
		ProcessTimeout:  cfg.ProcessTimeout(),
		LinkConcurrency: cfg.Pipeline.LinkConcurrency,
	}, orchestrator, renderer, gate, renderCache, deliverer, logger, m)

	queue := eventsmemory.NewQueue(cfg.Events.QueueDepth)
	pool := events.NewPool(queue, pipe, cfg.Events.Workers, logger)
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		pool.Run(ctx)
	}()

	if cfg.PubSub.Enabled {
		source, err := eventspubsub.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.SubscriptionID, queue, logger)
		if err != nil {
			return fmt.Errorf("build pubsub source: %w", err)
		}
		defer func() {
			if closeErr := source.Close(); closeErr != nil {
				logger.Warn("pubsub source close failed", zap.Error(closeErr))
			}
		}()
		go func() {
			if err := source.Run(ctx); err != nil {
				logger.Error("pubsub receive stopped", zap.Error(err))
			}
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(queue, registry, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", zap.Error(err))
	}
	queue.Close()
	<-poolDone
	return nil
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.KV, func(), error) {
	switch cfg.Store.Provider {
	case config.StoreRedis:
		s, err := storeredis.New(ctx, storeredis.Config{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if closeErr := s.Close(); closeErr != nil {
				logger.Warn("redis close failed", zap.Error(closeErr))
			}
		}, nil
	case config.StorePostgres:
		s, err := storepostgres.New(ctx, storepostgres.Config{DSN: cfg.Store.Postgres.DSN})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return storememory.New(), func() {}, nil
	}
}

func buildScrapers(
	ctx context.Context,
	cfg config.Config,
	secretSource unfurl.SecretSource,
	logger *zap.Logger,
	m *metrics.Metrics,
) (*scrape.Orchestrator, func()) {
	var strategies []unfurl.Strategy
	closers := make([]func(), 0, 1)

	if cfg.Headless.Enabled {
		browser := headless.New(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		strategies = append(strategies, browser)
		closers = append(closers, browser.Close)
	}

	strategies = append(strategies, direct.New(direct.Config{
		Timeout:   time.Duration(cfg.Direct.TimeoutSeconds) * time.Second,
		ProxyURLs: cfg.Direct.ProxyURLs,
		WarmUp:    cfg.Direct.WarmUp,
	}))

	if cfg.OEmbed.Enabled {
		accessToken := ""
		if bundle, err := secretSource.GetSecret(ctx, "oembed"); err != nil {
			logger.Warn("oembed token unavailable, using legacy endpoint only", zap.Error(err))
		} else {
			accessToken = bundle["access_token"]
		}
		strategies = append(strategies, oembed.New(oembed.Config{
			AccessToken: accessToken,
			Timeout:     time.Duration(cfg.OEmbed.TimeoutSeconds) * time.Second,
		}))
	}

	orchestrator := scrape.NewOrchestrator(strategies, cfg.AttemptDelay(), logger, m)
	return orchestrator, func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}
}

func buildRehoster(ctx context.Context, cfg config.Config, logger *zap.Logger) (unfurl.Rehoster, func(), error) {
	if !cfg.Assets.Enabled {
		return nil, func() {}, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create storage client: %w", err)
	}
	blobStore, err := blobgcs.New(client, blobgcs.Config{
		Bucket:        cfg.Assets.GCSBucket,
		PublicBaseURL: cfg.Assets.PublicBaseURL,
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	return assets.New(blobStore, nil, logger), func() {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("storage client close failed", zap.Error(closeErr))
		}
	}, nil
}
