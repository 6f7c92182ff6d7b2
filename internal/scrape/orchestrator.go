// Package scrape coordinates the scraping strategies behind a single
// resolve call with ordered fallback.
package scrape

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gramlink/unfurler/internal/metrics"
	"github.com/gramlink/unfurler/internal/unfurl"
)

// DefaultAttemptDelay spaces out consecutive strategy attempts so a
// failing site doesn't see a burst of correlated requests.
const DefaultAttemptDelay = 500 * time.Millisecond

// DefaultBatchConcurrency bounds ResolveMany fan-out.
const DefaultBatchConcurrency = 3

// exhaustedStrategy names the synthetic result returned when every
// strategy failed.
const exhaustedStrategy = "all-strategies"

// Orchestrator tries strategies in priority order: browser automation
// first (best evasion, most expensive), then direct HTTP, then the
// metadata API (cheapest, degrades most gracefully).
type Orchestrator struct {
	strategies   []unfurl.Strategy
	attemptDelay time.Duration
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// NewOrchestrator builds an Orchestrator over the given ordered strategies.
func NewOrchestrator(
	strategies []unfurl.Strategy,
	attemptDelay time.Duration,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Orchestrator {
	if attemptDelay <= 0 {
		attemptDelay = DefaultAttemptDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		strategies:   strategies,
		attemptDelay: attemptDelay,
		logger:       logger,
		metrics:      m,
	}
}

// Resolve runs the fallback chain for one URL and never returns an
// error or panics: on total failure the result aggregates every
// strategy's failure reason so a single log line shows the whole story.
func (o *Orchestrator) Resolve(ctx context.Context, url string) unfurl.ScrapeResult {
	start := time.Now()
	failures := make([]string, 0, len(o.strategies))

	for i, strategy := range o.strategies {
		if i > 0 {
			if err := sleepCtx(ctx, o.attemptDelay); err != nil {
				failures = append(failures, fmt.Sprintf("canceled before %s: %v", strategy.Name(), err))
				break
			}
		}

		result := o.attempt(ctx, strategy, url)
		o.metrics.ObserveScrape(strategy.Name(), result.Success, result.Elapsed)
		if result.Success {
			o.logger.Debug("scrape resolved",
				zap.String("url", url),
				zap.String("strategy", strategy.Name()),
				zap.Duration("elapsed", result.Elapsed))
			return result
		}

		o.logger.Debug("strategy failed",
			zap.String("url", url),
			zap.String("strategy", strategy.Name()),
			zap.String("error", result.Err))
		failures = append(failures, fmt.Sprintf("%s: %s", strategy.Name(), result.Err))
	}

	o.logger.Warn("all strategies exhausted",
		zap.String("url", url),
		zap.Strings("failures", failures))
	return unfurl.Failure(exhaustedStrategy, strings.Join(failures, "; "), time.Since(start))
}

// attempt isolates one strategy call, converting panics into failed results.
func (o *Orchestrator) attempt(ctx context.Context, strategy unfurl.Strategy, url string) (result unfurl.ScrapeResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("strategy panicked",
				zap.String("strategy", strategy.Name()),
				zap.String("url", url),
				zap.Any("panic", r))
			result = unfurl.Failure(strategy.Name(), fmt.Sprintf("panic: %v", r), time.Since(start))
		}
	}()
	return strategy.Scrape(ctx, url)
}

// ResolveMany resolves a batch with bounded concurrency, returning
// per-URL results in input order. One URL's failure never aborts the
// rest of the batch.
func (o *Orchestrator) ResolveMany(ctx context.Context, urls []string, maxConcurrent int) []unfurl.ScrapeResult {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultBatchConcurrency
	}

	results := make([]unfurl.ScrapeResult, len(urls))
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = o.Resolve(ctx, url)
		}(i, url)
	}
	wg.Wait()
	return results
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
