// Package cache stores rendered unfurls keyed by canonical URL so
// repeated shares skip scraping and rendering entirely.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gramlink/unfurler/internal/store"
	"github.com/gramlink/unfurler/internal/unfurl"
)

// DefaultTTL is how long a rendered unfurl stays fresh.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "cache:"

// entry wraps the payload with its write time so staleness survives
// stores without native TTL eviction.
type entry struct {
	CanonicalURL string                `json:"canonical_url"`
	Payload      unfurl.RenderedUnfurl `json:"rendered_payload"`
	CachedAt     time.Time             `json:"cached_at"`
	TTLSeconds   int64                 `json:"ttl"`
}

// RenderCache is a read-through cache over the shared KV store. It is
// advisory: every error degrades to a miss or a skipped write.
type RenderCache struct {
	kv     store.KV
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// New constructs a RenderCache. A non-positive ttl falls back to the default.
func New(kv store.KV, ttl time.Duration, logger *zap.Logger) *RenderCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RenderCache{kv: kv, ttl: ttl, logger: logger, now: time.Now}
}

// NewWithClock constructs a RenderCache on an explicit clock.
func NewWithClock(kv store.KV, ttl time.Duration, logger *zap.Logger, clock unfurl.Clock) *RenderCache {
	c := New(kv, ttl, logger)
	if clock != nil {
		c.now = clock.Now
	}
	return c
}

// Get returns the cached render for the canonical URL, or nil on miss,
// staleness, or any store error.
func (c *RenderCache) Get(ctx context.Context, canonicalURL string) *unfurl.RenderedUnfurl {
	raw, err := c.kv.Get(ctx, keyPrefix+canonicalURL)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("cache read failed", zap.String("url", canonicalURL), zap.Error(err))
		}
		return nil
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.logger.Warn("cache entry corrupt", zap.String("url", canonicalURL), zap.Error(err))
		return nil
	}
	if c.now().Sub(e.CachedAt) > time.Duration(e.TTLSeconds)*time.Second {
		return nil
	}
	return &e.Payload
}

// Put writes a fully rendered payload, resetting the TTL from now.
// Failures are logged and swallowed.
func (c *RenderCache) Put(ctx context.Context, canonicalURL string, payload unfurl.RenderedUnfurl) {
	raw, err := json.Marshal(entry{
		CanonicalURL: canonicalURL,
		Payload:      payload,
		CachedAt:     c.now().UTC(),
		TTLSeconds:   int64(c.ttl / time.Second),
	})
	if err != nil {
		c.logger.Warn("cache entry marshal failed", zap.String("url", canonicalURL), zap.Error(err))
		return
	}
	if err := c.kv.Put(ctx, keyPrefix+canonicalURL, raw, c.ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("url", canonicalURL), zap.Error(err))
	}
}
