// Package direct implements the direct-HTTP scraping strategy using
// the Colly collector.
package direct

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/gramlink/unfurler/internal/scrape/extract"
	"github.com/gramlink/unfurler/internal/unfurl"
)

// StrategyName identifies this variant in scrape results and logs.
const StrategyName = "direct-http"

// DefaultTimeout bounds one GET including the optional warm-up.
const DefaultTimeout = 10 * time.Second

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.8",
	"en-US,en;q=0.9,es;q=0.5",
}

// Config controls collector behavior.
type Config struct {
	Timeout    time.Duration
	UserAgents []string
	// ProxyURLs is an optional pool; one is chosen at random per attempt.
	ProxyURLs []string
	// WarmUp issues a low-cost homepage GET before the post page so the
	// traffic pattern resembles an organic visit.
	WarmUp bool
}

// Strategy implements unfurl.Strategy with a plain HTTP GET.
type Strategy struct {
	cfg           Config
	proxies       []*url.URL
	baseCollector *colly.Collector
}

// New builds a Strategy. Malformed proxy URLs are dropped up front.
func New(cfg Config) *Strategy {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = defaultUserAgents
	}

	var proxies []*url.URL
	for _, raw := range cfg.ProxyURLs {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			proxies = append(proxies, u)
		}
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Strategy{
		cfg:           cfg,
		proxies:       proxies,
		baseCollector: c,
	}
}

// Name implements unfurl.Strategy.
func (s *Strategy) Name() string { return StrategyName }

// Scrape fetches the post page and extracts its metadata. The body is
// validated with structural heuristics before parsing so bot-block
// interstitials come back as failures instead of empty records.
func (s *Strategy) Scrape(ctx context.Context, rawURL string) unfurl.ScrapeResult {
	start := time.Now()
	if !unfurl.IsPostURL(rawURL) {
		return unfurl.Failure(StrategyName, "invalid url", time.Since(start))
	}

	collector := s.newCollector()

	if s.cfg.WarmUp {
		s.warmUp(ctx, rawURL)
	}

	body, err := s.fetch(ctx, collector, rawURL)
	if err != nil {
		return unfurl.Failure(StrategyName, err.Error(), time.Since(start))
	}
	if !extract.LooksLikePostHTML(body) {
		return unfurl.Failure(StrategyName, "response is not post html", time.Since(start))
	}

	record, err := extract.FromHTML(body, rawURL)
	if err != nil {
		return unfurl.Failure(StrategyName, fmt.Sprintf("extract metadata: %v", err), time.Since(start))
	}
	if !record.HasSignal() {
		return unfurl.Failure(StrategyName, "no metadata in response", time.Since(start))
	}

	return unfurl.ScrapeResult{
		Success:  true,
		Record:   &record,
		Strategy: StrategyName,
		Elapsed:  time.Since(start),
	}
}

func (s *Strategy) newCollector() *colly.Collector {
	collector := s.baseCollector.Clone()
	collector.UserAgent = s.cfg.UserAgents[rand.IntN(len(s.cfg.UserAgents))]
	collector.SetRequestTimeout(s.cfg.Timeout)
	if len(s.proxies) > 0 {
		collector.SetProxyFunc(s.randomProxy)
	}
	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", acceptLanguages[rand.IntN(len(acceptLanguages))])
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
	})
	return collector
}

// warmUp visits the site homepage first, best effort. Its outcome
// never affects the scrape.
func (s *Strategy) warmUp(ctx context.Context, rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	homepage := fmt.Sprintf("%s://%s/", u.Scheme, u.Host)
	_, _ = s.fetch(ctx, s.newCollector(), homepage)
}

func (s *Strategy) fetch(ctx context.Context, collector *colly.Collector, target string) ([]byte, error) {
	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("visit %s: %w", target, err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("response for %s: %w", target, fetchErr)
		}
		return body, nil
	}
}

func (s *Strategy) randomProxy(_ *http.Request) (*url.URL, error) {
	return s.proxies[rand.IntN(len(s.proxies))], nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
