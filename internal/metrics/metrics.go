// Package metrics exposes Prometheus collectors for the unfurler service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the service collectors. A nil *Metrics is valid and
// turns every observation into a no-op, so wiring stays optional in
// tests and development binaries.
type Metrics struct {
	scrapeAttempts  *prometheus.CounterVec
	scrapeDuration  *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	dedupSkips      prometheus.Counter
	eventsProcessed *prometheus.CounterVec
	unfurlsRendered *prometheus.CounterVec
}

// New registers the unfurler collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		scrapeAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unfurler_scrape_attempts_total",
				Help: "Scrape attempts, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		),
		scrapeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "unfurler_scrape_duration_seconds",
				Help:    "Per-strategy scrape latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unfurler_cache_lookups_total",
				Help: "Render cache lookups, labeled by result.",
			},
			[]string{"result"},
		),
		dedupSkips: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "unfurler_dedup_skips_total",
				Help: "Links skipped because another call held the lease.",
			},
		),
		eventsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unfurler_events_processed_total",
				Help: "Processed link events, labeled by outcome status.",
			},
			[]string{"status"},
		),
		unfurlsRendered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unfurler_unfurls_rendered_total",
				Help: "Rendered unfurls, labeled by layout.",
			},
			[]string{"layout"},
		),
	}
}

// ObserveScrape records one strategy attempt.
func (m *Metrics) ObserveScrape(strategy string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.scrapeAttempts.WithLabelValues(strategy, outcome).Inc()
	m.scrapeDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// ObserveCacheLookup records a cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveDedupSkip records one link dropped by the dedup gate.
func (m *Metrics) ObserveDedupSkip() {
	if m == nil {
		return
	}
	m.dedupSkips.Inc()
}

// ObserveEvent records the final status of one processed event.
func (m *Metrics) ObserveEvent(status string) {
	if m == nil {
		return
	}
	m.eventsProcessed.WithLabelValues(status).Inc()
}

// ObserveRender records the layout chosen for one rendered unfurl.
func (m *Metrics) ObserveRender(layout string) {
	if m == nil {
		return
	}
	m.unfurlsRendered.WithLabelValues(layout).Inc()
}
