// Package render turns normalized post records into chat-ready rich
// message payloads, dispatching on content type.
package render

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/gramlink/unfurler/internal/metrics"
	"github.com/gramlink/unfurler/internal/unfurl"
)

// DefaultColor is the accent color attached to every unfurl.
const DefaultColor = "#E1306C"

// Layout names reported to metrics.
const (
	layoutVideo    = "video"
	layoutImage    = "image"
	layoutFallback = "fallback"
)

// captionPatterns strip the "N likes, M comments - user on Platform:
// "caption"" boilerplate that meta descriptions wrap around the real
// caption. Tried in order; the first match wins, raw text is the
// fallback.
var captionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*[\d.,KMkm]+\s+likes?,\s*[\d.,KMkm]+\s+comments?\s*-\s*[\w.]+\s+on\s+[^:]+:\s*[“"](.+)[”"]\s*$`),
	regexp.MustCompile(`^\s*[\w.]+\s+on\s+[^:]+:\s*[“"](.+)[”"]\s*$`),
	regexp.MustCompile(`^\s*[“"](.+)[”"]\s*$`),
}

// Config controls rendering behavior.
type Config struct {
	// VideoProxyBaseURL is the base of the embeddable-player collaborator.
	// When empty, video posts render with the image layout instead.
	VideoProxyBaseURL string
	Color             string
	MaxCaptionRunes   int
}

// Renderer implements unfurl.Renderer.
type Renderer struct {
	cfg      Config
	rehoster unfurl.Rehoster
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// New builds a Renderer. The rehoster is optional; without one, media
// URLs pass through unchanged.
func New(cfg Config, rehoster unfurl.Rehoster, logger *zap.Logger, m *metrics.Metrics) *Renderer {
	if cfg.Color == "" {
		cfg.Color = DefaultColor
	}
	if cfg.MaxCaptionRunes <= 0 {
		cfg.MaxCaptionRunes = 300
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{cfg: cfg, rehoster: rehoster, logger: logger, metrics: m}
}

// Render maps a record onto the richest layout its fields support.
// A nil record yields a nil unfurl.
func (r *Renderer) Render(ctx context.Context, record *unfurl.PostRecord) *unfurl.RenderedUnfurl {
	if record == nil {
		return nil
	}

	switch {
	case record.HasVideo() && record.VideoURL != "" && r.cfg.VideoProxyBaseURL != "":
		r.metrics.ObserveRender(layoutVideo)
		return r.renderVideo(record)
	case record.HasMedia():
		r.metrics.ObserveRender(layoutImage)
		return r.renderImage(ctx, record)
	default:
		r.metrics.ObserveRender(layoutFallback)
		return r.renderFallback(record)
	}
}

func (r *Renderer) renderVideo(record *unfurl.PostRecord) *unfurl.RenderedUnfurl {
	blocks := []unfurl.Block{headerBlock(record)}
	if caption := CleanCaption(record.Caption); caption != "" {
		blocks = append(blocks, unfurl.Block{Type: unfurl.BlockCaption, Text: r.truncate(caption)})
	}
	blocks = append(blocks,
		unfurl.Block{Type: unfurl.BlockVideo, AltText: altText(record)},
		contextBlock(record),
	)
	return &unfurl.RenderedUnfurl{
		Color:    r.cfg.Color,
		Blocks:   blocks,
		VideoURL: r.videoEmbedURL(record.VideoURL),
	}
}

func (r *Renderer) renderImage(ctx context.Context, record *unfurl.PostRecord) *unfurl.RenderedUnfurl {
	imageURL := record.ImageURL
	if imageURL == "" {
		// Video post without a proxy configured; the thumbnail is all
		// we can show, and some records only carry the video URL.
		imageURL = record.VideoURL
	}
	if r.rehoster != nil {
		if stable := r.rehoster.Rehost(ctx, imageURL, record.PostID); stable != "" {
			imageURL = stable
		}
	}

	blocks := []unfurl.Block{headerBlock(record)}
	if caption := CleanCaption(record.Caption); caption != "" {
		blocks = append(blocks, unfurl.Block{Type: unfurl.BlockCaption, Text: r.truncate(caption)})
	}
	blocks = append(blocks,
		unfurl.Block{Type: unfurl.BlockImage, ImageURL: imageURL, AltText: altText(record)},
		contextBlock(record),
	)
	return &unfurl.RenderedUnfurl{Color: r.cfg.Color, Blocks: blocks}
}

// renderFallback covers degraded records where no media survived any
// strategy: a minimal text-only layout that names the content type and
// links back without claiming data that was never retrieved.
func (r *Renderer) renderFallback(record *unfurl.PostRecord) *unfurl.RenderedUnfurl {
	kind := string(record.ContentType)
	if kind == "" {
		kind = "post"
	}
	text := fmt.Sprintf("Instagram %s", kind)
	if record.Username != "" {
		text = fmt.Sprintf("%s by @%s", text, record.Username)
	}
	return &unfurl.RenderedUnfurl{
		Color: r.cfg.Color,
		Blocks: []unfurl.Block{
			{Type: unfurl.BlockContext, Text: fmt.Sprintf("%s · %s", text, record.URL)},
		},
	}
}

// videoEmbedURL builds the embeddable-player URL: the proxy base plus
// the percent-encoded original video URL.
func (r *Renderer) videoEmbedURL(videoURL string) string {
	base := strings.TrimSuffix(r.cfg.VideoProxyBaseURL, "/")
	return base + "/video/" + url.QueryEscape(videoURL)
}

func (r *Renderer) truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= r.cfg.MaxCaptionRunes {
		return text
	}
	return string(runes[:r.cfg.MaxCaptionRunes-1]) + "…"
}

func headerBlock(record *unfurl.PostRecord) unfurl.Block {
	name := record.Username
	if name == "" {
		name = "unknown"
	}
	text := "@" + name
	if record.IsVerified {
		text += " ✓"
	}
	return unfurl.Block{Type: unfurl.BlockHeader, Text: text}
}

func contextBlock(record *unfurl.PostRecord) unfurl.Block {
	parts := make([]string, 0, 3)
	if record.Likes != nil {
		parts = append(parts, FormatCount(*record.Likes)+" likes")
	}
	if record.Comments != nil {
		parts = append(parts, FormatCount(*record.Comments)+" comments")
	}
	parts = append(parts, "View on Instagram: "+record.URL)
	return unfurl.Block{Type: unfurl.BlockContext, Text: strings.Join(parts, " · ")}
}

func altText(record *unfurl.PostRecord) string {
	if record.Username != "" {
		return fmt.Sprintf("%s by @%s", record.ContentType, record.Username)
	}
	return string(record.ContentType)
}

// CleanCaption extracts the real caption out of boilerplate-wrapped
// description text. Unmatched text passes through as-is.
func CleanCaption(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, pattern := range captionPatterns {
		if m := pattern.FindStringSubmatch(raw); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return raw
}

// FormatCount abbreviates counts with K/M suffixes above 1,000 and
// 1,000,000, matching how the platform itself displays engagement.
func FormatCount(n int) string {
	switch {
	case n >= 1_000_000:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1_000_000)) + "M"
	case n >= 1_000:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1_000)) + "K"
	default:
		return fmt.Sprintf("%d", n)
	}
}

func trimZero(s string) string {
	return strings.TrimSuffix(s, ".0")
}
