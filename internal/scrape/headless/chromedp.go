// Package headless implements the browser-automation scraping strategy
// using chromedp and headless Chrome.
package headless

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/gramlink/unfurler/internal/scrape/extract"
	"github.com/gramlink/unfurler/internal/unfurl"
)

// StrategyName identifies this variant in scrape results and logs.
const StrategyName = "browser-automation"

// DefaultNavigationTimeout bounds a single page load.
const DefaultNavigationTimeout = 15 * time.Second

var defaultUserAgents = []string{
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 13; SM-S918B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36",
}

// viewports to sample from; all plausible phone dimensions.
var viewports = []struct{ width, height int64 }{
	{390, 844},
	{393, 873},
	{412, 915},
	{430, 932},
}

// Config controls the behavior of the headless strategy.
type Config struct {
	MaxParallel       int
	NavigationTimeout time.Duration
	UserAgents        []string
}

// Strategy drives a shared headless browser. The Chrome allocator is
// initialized lazily on first use behind a mutex so concurrent first
// calls don't double-launch, then reused for the process lifetime.
type Strategy struct {
	cfg     Config
	limiter chan struct{}

	mu          sync.Mutex
	allocator   context.Context
	allocCancel context.CancelFunc
	closed      bool
}

// New creates the strategy without starting a browser.
func New(cfg Config) *Strategy {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = defaultUserAgents
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Strategy{cfg: cfg, limiter: limiter}
}

// Name implements unfurl.Strategy.
func (s *Strategy) Name() string { return StrategyName }

// Scrape renders the post page in headless Chrome and extracts meta
// tags and structured data from the resulting DOM. Navigation errors
// and timeouts come back as failed results, never as panics.
func (s *Strategy) Scrape(ctx context.Context, url string) unfurl.ScrapeResult {
	start := time.Now()
	if !unfurl.IsPostURL(url) {
		return unfurl.Failure(StrategyName, "invalid url", time.Since(start))
	}

	allocator, err := s.ensureAllocator()
	if err != nil {
		return unfurl.Failure(StrategyName, err.Error(), time.Since(start))
	}
	if err := s.acquire(ctx); err != nil {
		return unfurl.Failure(StrategyName, err.Error(), time.Since(start))
	}
	defer s.release()

	taskCtx, taskCancel := chromedp.NewContext(allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, s.cfg.NavigationTimeout)
	defer cancel()

	html, err := s.renderPage(taskCtx, url)
	if err != nil {
		return unfurl.Failure(StrategyName, fmt.Sprintf("render page: %v", err), time.Since(start))
	}

	record, err := extract.FromHTML([]byte(html), url)
	if err != nil {
		return unfurl.Failure(StrategyName, fmt.Sprintf("extract metadata: %v", err), time.Since(start))
	}
	if !record.HasSignal() {
		return unfurl.Failure(StrategyName, "no metadata in rendered page", time.Since(start))
	}

	return unfurl.ScrapeResult{
		Success:  true,
		Record:   &record,
		Strategy: StrategyName,
		Elapsed:  time.Since(start),
	}
}

func (s *Strategy) renderPage(ctx context.Context, url string) (string, error) {
	var html string
	actions := []chromedp.Action{
		s.antiDetectionAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

// antiDetectionAction randomizes user agent and viewport and enables
// mobile emulation so rendered pages match organic phone traffic.
func (s *Strategy) antiDetectionAction() chromedp.Action {
	ua := s.cfg.UserAgents[rand.IntN(len(s.cfg.UserAgents))]
	vp := viewports[rand.IntN(len(viewports))]
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if err := emulation.SetDeviceMetricsOverride(vp.width, vp.height, 2.0, true).Do(ctx); err != nil {
			return fmt.Errorf("set device metrics: %w", err)
		}
		return nil
	})
}

// ensureAllocator lazily launches the browser allocator exactly once.
func (s *Strategy) ensureAllocator() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("headless strategy is closed")
	}
	if s.allocator != nil {
		return s.allocator, nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	s.allocator, s.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return s.allocator, nil
}

// Close tears down the shared browser. Called once at process shutdown.
func (s *Strategy) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
		s.allocator = nil
	}
}

func (s *Strategy) acquire(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	select {
	case s.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (s *Strategy) release() {
	if s.limiter == nil {
		return
	}
	select {
	case <-s.limiter:
	default:
	}
}
