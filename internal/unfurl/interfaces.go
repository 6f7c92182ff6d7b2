package unfurl

import (
	"context"
	"time"
)

// Strategy attempts to retrieve post data for one URL. Implementations
// must validate the URL shape before any network I/O and must report
// failures through the result, never by panicking.
type Strategy interface {
	Name() string
	Scrape(ctx context.Context, url string) ScrapeResult
}

// Renderer maps a normalized record to a chat-ready payload. A nil
// record yields a nil unfurl.
type Renderer interface {
	Render(ctx context.Context, record *PostRecord) *RenderedUnfurl
}

// Deliverer hands completed unfurls to the chat platform, keyed by the
// original URL as it appeared in the message.
type Deliverer interface {
	DeliverUnfurls(
		ctx context.Context,
		conversationRef, messageRef, unfurlRef string,
		unfurls map[string]RenderedUnfurl,
	) error
}

// SecretSource retrieves a named key-value secret bundle.
type SecretSource interface {
	GetSecret(ctx context.Context, name string) (map[string]string, error)
}

// Rehoster copies remote media to stable storage and returns the new
// URL, or "" when re-hosting failed and the caller should fall back to
// the original URL.
type Rehoster interface {
	Rehost(ctx context.Context, mediaURL, postID string) string
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
