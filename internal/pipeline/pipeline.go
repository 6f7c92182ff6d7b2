// Package pipeline drives one inbound link event end to end: filter,
// deduplicate, resolve, render, deliver.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gramlink/unfurler/internal/cache"
	"github.com/gramlink/unfurler/internal/dedup"
	"github.com/gramlink/unfurler/internal/metrics"
	"github.com/gramlink/unfurler/internal/unfurl"
)

// DefaultProcessTimeout bounds one event end to end. A stuck browser
// must not hold an event worker forever.
const DefaultProcessTimeout = 30 * time.Second

// DefaultLinkConcurrency bounds per-event link fan-out.
const DefaultLinkConcurrency = 3

// Resolver runs the scraping fallback chain for one URL.
type Resolver interface {
	Resolve(ctx context.Context, url string) unfurl.ScrapeResult
}

// Config tunes pipeline behavior.
type Config struct {
	ProcessTimeout  time.Duration
	LinkConcurrency int
}

// Pipeline processes inbound events into delivered unfurls.
type Pipeline struct {
	cfg       Config
	resolver  Resolver
	renderer  unfurl.Renderer
	gate      *dedup.Gate
	cache     *cache.RenderCache
	deliverer unfurl.Deliverer
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// New wires the pipeline together. Every collaborator is required
// except metrics.
func New(
	cfg Config,
	resolver Resolver,
	renderer unfurl.Renderer,
	gate *dedup.Gate,
	renderCache *cache.RenderCache,
	deliverer unfurl.Deliverer,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Pipeline {
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = DefaultProcessTimeout
	}
	if cfg.LinkConcurrency <= 0 {
		cfg.LinkConcurrency = DefaultLinkConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:       cfg,
		resolver:  resolver,
		renderer:  renderer,
		gate:      gate,
		cache:     renderCache,
		deliverer: deliverer,
		logger:    logger,
		metrics:   m,
	}
}

// linkGroup is one canonical URL plus every original spelling of it
// that appeared in the event. The unfurl map is keyed by original URL,
// so one resolved payload can serve several keys.
type linkGroup struct {
	canonical string
	originals []string
}

// Process handles one event and reports how it ended. It never returns
// an error or panics; failures are folded into the outcome so queue
// consumers can ack without retry logic.
func (p *Pipeline) Process(ctx context.Context, event unfurl.InboundEvent) (outcome unfurl.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("event processing panicked",
				zap.String("conversation_ref", event.ConversationRef),
				zap.Any("panic", r))
			outcome = unfurl.Outcome{Status: unfurl.OutcomeFailed, ErrText: fmt.Sprintf("panic: %v", r)}
			p.metrics.ObserveEvent(string(outcome.Status))
		}
	}()
	outcome = p.process(ctx, event)
	p.metrics.ObserveEvent(string(outcome.Status))
	return outcome
}

func (p *Pipeline) process(ctx context.Context, event unfurl.InboundEvent) unfurl.Outcome {
	if event.ConversationRef == "" || event.MessageRef == "" || event.UnfurlRef == "" {
		return unfurl.Outcome{Status: unfurl.OutcomeFailed, ErrText: "event missing conversation, message, or unfurl reference"}
	}
	if len(event.Links) == 0 {
		return unfurl.Outcome{Status: unfurl.OutcomeNoLinks}
	}

	groups := p.filterLinks(event.Links)
	if len(groups) == 0 {
		return unfurl.Outcome{Status: unfurl.OutcomeNoLinks}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProcessTimeout)
	defer cancel()

	unfurls, skipped := p.resolveGroups(ctx, groups)
	if len(unfurls) == 0 {
		return unfurl.Outcome{Status: unfurl.OutcomeNoUnfurls, Skipped: skipped}
	}

	if err := p.deliverer.DeliverUnfurls(ctx, event.ConversationRef, event.MessageRef, event.UnfurlRef, unfurls); err != nil {
		p.logger.Error("unfurl delivery failed",
			zap.String("conversation_ref", event.ConversationRef),
			zap.String("message_ref", event.MessageRef),
			zap.Error(err))
		return unfurl.Outcome{
			Status:   unfurl.OutcomeFailed,
			Unfurled: len(unfurls),
			Skipped:  skipped,
			ErrText:  err.Error(),
		}
	}

	return unfurl.Outcome{Status: unfurl.OutcomeDelivered, Unfurled: len(unfurls), Skipped: skipped}
}

// filterLinks keeps only post links, canonicalizes them, and groups
// duplicate spellings so each canonical URL is resolved once per event.
func (p *Pipeline) filterLinks(links []unfurl.EventLink) []linkGroup {
	groups := make([]linkGroup, 0, len(links))
	index := make(map[string]int, len(links))

	for _, link := range links {
		if !unfurl.IsPostURL(link.URL) {
			continue
		}
		canonical, err := unfurl.Canonicalize(link.URL)
		if err != nil {
			p.logger.Debug("link rejected", zap.String("url", link.URL), zap.Error(err))
			continue
		}
		if i, ok := index[canonical]; ok {
			groups[i].originals = append(groups[i].originals, link.URL)
			continue
		}
		index[canonical] = len(groups)
		groups = append(groups, linkGroup{canonical: canonical, originals: []string{link.URL}})
	}
	return groups
}

// resolveGroups fans out over the canonical links with bounded
// concurrency and fans the rendered payloads back in, keyed by every
// original spelling.
func (p *Pipeline) resolveGroups(ctx context.Context, groups []linkGroup) (map[string]unfurl.RenderedUnfurl, int) {
	rendered := make([]*unfurl.RenderedUnfurl, len(groups))
	var skipped int

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	sem := make(chan struct{}, p.cfg.LinkConcurrency)

	for i, group := range groups {
		wg.Add(1)
		go func(i int, group linkGroup) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, wasSkipped := p.resolveLink(ctx, group.canonical)
			if wasSkipped {
				mu.Lock()
				skipped++
				mu.Unlock()
				return
			}
			rendered[i] = result
		}(i, group)
	}
	wg.Wait()

	unfurls := make(map[string]unfurl.RenderedUnfurl, len(groups))
	for i, group := range groups {
		if rendered[i] == nil {
			continue
		}
		for _, original := range group.originals {
			unfurls[original] = *rendered[i]
		}
	}
	return unfurls, skipped
}

// resolveLink takes one canonical URL through the lease gate, cache,
// scraper, and renderer. The second return is true when the link was
// skipped because another call holds its lease. Panics anywhere in the
// chain degrade to a dropped link, never a crashed event.
func (p *Pipeline) resolveLink(ctx context.Context, canonicalURL string) (result *unfurl.RenderedUnfurl, skipped bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("link processing panicked",
				zap.String("url", canonicalURL), zap.Any("panic", r))
			result = nil
			skipped = false
		}
	}()

	if !p.gate.TryAcquire(ctx, canonicalURL) {
		p.metrics.ObserveDedupSkip()
		return nil, true
	}
	// Release must outlive the per-event timeout or a timed-out link
	// would stay leased until expiry.
	defer p.gate.Release(context.WithoutCancel(ctx), canonicalURL)

	if cached := p.cache.Get(ctx, canonicalURL); cached != nil {
		p.metrics.ObserveCacheLookup(true)
		return cached, false
	}
	p.metrics.ObserveCacheLookup(false)

	scraped := p.resolver.Resolve(ctx, canonicalURL)
	if scraped.Success && scraped.Record != nil {
		// The URL itself is authoritative for identity fields; the
		// scraped record fills in everything else.
		record := unfurl.Merge(urlRecord(canonicalURL), *scraped.Record)
		payload := p.renderer.Render(ctx, &record)
		if payload != nil {
			p.cache.Put(ctx, canonicalURL, *payload)
		}
		return payload, false
	}

	// Every strategy failed. Render the minimal link-only preview from
	// what the URL itself tells us, and keep it out of the cache so the
	// next share gets a fresh scrape attempt.
	p.logger.Warn("scrape exhausted, rendering fallback",
		zap.String("url", canonicalURL), zap.String("error", scraped.Err))
	fallback := urlRecord(canonicalURL)
	return p.renderer.Render(ctx, &fallback), false
}

// urlRecord builds the partial record the URL alone can vouch for.
func urlRecord(canonicalURL string) unfurl.PostRecord {
	return unfurl.PostRecord{
		URL:         canonicalURL,
		PostID:      unfurl.ExtractPostID(canonicalURL),
		ContentType: contentTypeFromPath(canonicalURL),
	}
}

func contentTypeFromPath(url string) unfurl.ContentType {
	switch {
	case strings.Contains(url, "/reel"):
		return unfurl.ContentTypeReel
	case strings.Contains(url, "/tv/"):
		return unfurl.ContentTypeTV
	default:
		return ""
	}
}
