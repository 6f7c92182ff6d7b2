// Package oembed implements the metadata-API scraping strategy. It is
// the cheapest variant and usually returns partial data only.
package oembed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gramlink/unfurler/internal/unfurl"
)

// StrategyName identifies this variant in scrape results and logs.
const StrategyName = "metadata-api"

// Default endpoints; the legacy one still answers for some posts the
// primary endpoint rejects.
const (
	DefaultPrimaryEndpoint = "https://graph.facebook.com/v16.0/instagram_oembed"
	DefaultLegacyEndpoint  = "https://api.instagram.com/oembed"
)

// DefaultTimeout bounds one endpoint call.
const DefaultTimeout = 8 * time.Second

var videoURLPattern = regexp.MustCompile(`https://[^"'\s\\]+\.mp4[^"'\s\\]*`)

// Config controls endpoint selection and auth.
type Config struct {
	PrimaryEndpoint string
	LegacyEndpoint  string
	// AccessToken is appended to primary-endpoint calls when set.
	AccessToken string
	Timeout     time.Duration
	// HTTPClient overrides the default client (primarily for testing).
	HTTPClient *http.Client
}

// Strategy implements unfurl.Strategy against oEmbed-style endpoints.
type Strategy struct {
	cfg    Config
	client *http.Client
}

// payload is the subset of the oEmbed response the renderer can use.
type payload struct {
	AuthorName   string `json:"author_name"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
	HTML         string `json:"html"`
}

// New builds a Strategy with endpoint and client defaults applied.
func New(cfg Config) *Strategy {
	if cfg.PrimaryEndpoint == "" {
		cfg.PrimaryEndpoint = DefaultPrimaryEndpoint
	}
	if cfg.LegacyEndpoint == "" {
		cfg.LegacyEndpoint = DefaultLegacyEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Strategy{cfg: cfg, client: client}
}

// Name implements unfurl.Strategy.
func (s *Strategy) Name() string { return StrategyName }

// Scrape queries the primary endpoint, then the legacy endpoint when
// the first call fails or returns non-200, and maps the JSON onto a
// partial record. The embedded HTML fragment is additionally pattern
// matched for a direct video URL.
func (s *Strategy) Scrape(ctx context.Context, rawURL string) unfurl.ScrapeResult {
	start := time.Now()
	if !unfurl.IsPostURL(rawURL) {
		return unfurl.Failure(StrategyName, "invalid url", time.Since(start))
	}

	p, err := s.query(ctx, s.cfg.PrimaryEndpoint, rawURL, true)
	if err != nil {
		var legacyErr error
		p, legacyErr = s.query(ctx, s.cfg.LegacyEndpoint, rawURL, false)
		if legacyErr != nil {
			return unfurl.Failure(
				StrategyName,
				fmt.Sprintf("primary: %v; legacy: %v", err, legacyErr),
				time.Since(start),
			)
		}
	}

	record := s.toRecord(p, rawURL)
	if !record.HasSignal() {
		return unfurl.Failure(StrategyName, "oembed response carried no usable fields", time.Since(start))
	}

	return unfurl.ScrapeResult{
		Success:  true,
		Record:   &record,
		Strategy: StrategyName,
		Elapsed:  time.Since(start),
	}
}

func (s *Strategy) query(ctx context.Context, endpoint, postURL string, withToken bool) (payload, error) {
	q := url.Values{}
	q.Set("url", postURL)
	q.Set("omitscript", "true")
	if withToken && s.cfg.AccessToken != "" {
		q.Set("access_token", s.cfg.AccessToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return payload{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return payload{}, fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return payload{}, fmt.Errorf("endpoint %s returned %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return payload{}, fmt.Errorf("read response: %w", err)
	}
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return payload{}, fmt.Errorf("decode oembed json: %w", err)
	}
	return p, nil
}

func (s *Strategy) toRecord(p payload, rawURL string) unfurl.PostRecord {
	record := unfurl.PostRecord{
		URL:      rawURL,
		PostID:   unfurl.ExtractPostID(rawURL),
		Username: p.AuthorName,
		Caption:  p.Title,
		ImageURL: p.ThumbnailURL,
	}
	if m := videoURLPattern.FindString(p.HTML); m != "" {
		record.VideoURL = m
	}
	switch {
	case strings.Contains(rawURL, "/reel"):
		record.ContentType = unfurl.ContentTypeReel
	case strings.Contains(rawURL, "/tv/"):
		record.ContentType = unfurl.ContentTypeTV
	case record.VideoURL != "":
		record.ContentType = unfurl.ContentTypeVideo
	default:
		record.ContentType = unfurl.ContentTypePhoto
	}
	return record
}
