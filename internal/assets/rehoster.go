// Package assets copies short-lived CDN media to stable storage so
// previews keep working after the upstream signed URLs expire.
package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gramlink/unfurler/internal/blob"
)

// DefaultFetchTimeout bounds one media download.
const DefaultFetchTimeout = 10 * time.Second

// maxAssetBytes caps a single download. Post images are far smaller;
// anything bigger is not worth re-hosting.
const maxAssetBytes = 20 << 20

// Rehoster downloads media and writes it to a blob store. It never
// fails the render path: any error returns "" and the caller keeps the
// original URL.
type Rehoster struct {
	store  blob.Store
	client *http.Client
	logger *zap.Logger
}

// New builds a Rehoster over the given store. A nil client gets a
// default with a bounded timeout.
func New(store blob.Store, client *http.Client, logger *zap.Logger) *Rehoster {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rehoster{store: store, client: client, logger: logger}
}

// Rehost fetches the media URL and stores a copy, returning the stable
// URL or "" on any failure.
func (r *Rehoster) Rehost(ctx context.Context, mediaURL, postID string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		r.logger.Debug("asset request invalid", zap.String("url", mediaURL), zap.Error(err))
		return ""
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("asset fetch failed", zap.String("url", mediaURL), zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Debug("asset fetch rejected",
			zap.String("url", mediaURL), zap.Int("status", resp.StatusCode))
		return ""
	}

	body := io.LimitReader(resp.Body, maxAssetBytes)
	path := objectPath(mediaURL, postID)
	stored, err := r.store.PutObject(ctx, path, resp.Header.Get("Content-Type"), body)
	if err != nil {
		r.logger.Warn("asset store failed",
			zap.String("url", mediaURL), zap.String("path", path), zap.Error(err))
		return ""
	}
	return stored
}

// objectPath derives a stable object name from the post and the media
// URL, so re-hosting the same asset twice overwrites rather than
// duplicates.
func objectPath(mediaURL, postID string) string {
	sum := sha256.Sum256([]byte(mediaURL))
	if postID == "" {
		postID = "unknown"
	}
	return fmt.Sprintf("media/%s/%s", postID, hex.EncodeToString(sum[:8]))
}
