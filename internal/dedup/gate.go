// Package dedup prevents concurrent duplicate processing of a URL via
// a short-lived lease held in the shared KV store.
package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gramlink/unfurler/internal/store"
)

// DefaultLeaseTTL bounds how long a crashed worker can block a URL.
const DefaultLeaseTTL = 5 * time.Minute

const keyPrefix = "lease:"

// lease is the record written under the URL key. It is informational;
// exclusivity comes from the store's conditional create.
type lease struct {
	URL        string    `json:"url"`
	AcquiredAt time.Time `json:"acquired_at"`
	LeaseTTL   string    `json:"lease_ttl"`
}

// Gate issues per-URL leases.
type Gate struct {
	kv     store.KV
	ttl    time.Duration
	logger *zap.Logger
}

// New constructs a Gate. A non-positive ttl falls back to the default.
func New(kv store.KV, ttl time.Duration, logger *zap.Logger) *Gate {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{kv: kv, ttl: ttl, logger: logger}
}

// TryAcquire claims the URL for processing. It returns false when an
// unexpired lease already exists, meaning another in-flight call owns
// the URL and the caller must skip it. Store failures fail open: the
// lease is a non-critical optimization and unfurling availability wins
// over strict exclusivity.
func (g *Gate) TryAcquire(ctx context.Context, canonicalURL string) bool {
	payload, err := json.Marshal(lease{
		URL:        canonicalURL,
		AcquiredAt: time.Now().UTC(),
		LeaseTTL:   g.ttl.String(),
	})
	if err != nil {
		g.logger.Warn("lease marshal failed", zap.String("url", canonicalURL), zap.Error(err))
		return true
	}

	err = g.kv.ConditionalCreate(ctx, keyPrefix+canonicalURL, payload, g.ttl)
	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrAlreadyExists):
		g.logger.Debug("url already being processed", zap.String("url", canonicalURL))
		return false
	default:
		g.logger.Warn("lease store unavailable, failing open",
			zap.String("url", canonicalURL), zap.Error(err))
		return true
	}
}

// Release drops the lease once processing finishes so the next share
// of the URL is not blocked for the rest of the TTL. Best effort: on
// store failure the lease simply ages out.
func (g *Gate) Release(ctx context.Context, canonicalURL string) {
	if err := g.kv.Delete(ctx, keyPrefix+canonicalURL); err != nil {
		g.logger.Warn("lease release failed, waiting for expiry",
			zap.String("url", canonicalURL), zap.Error(err))
	}
}
