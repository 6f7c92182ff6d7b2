// Package extract recovers post metadata from scraped HTML. All three
// scraping strategies funnel their markup through here so Open Graph,
// Twitter Card, JSON-LD and inline video extraction behave identically
// regardless of how the page was fetched.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/gramlink/unfurler/internal/unfurl"
)

var (
	// og:description usually opens with "123K likes, 456 comments - ...".
	engagementPattern = regexp.MustCompile(`(?i)([\d.,]+[KM]?)\s+likes?,\s*([\d.,]+[KM]?)\s+comments?`)
	usernamePattern   = regexp.MustCompile(`@?([A-Za-z0-9._]+)\s+on\s+Instagram`)
	verifiedMarkers   = []string{`"is_verified":true`, `"isVerified":true`, "coreui-badge--verified"}
)

// FromHTML parses the page and pulls out every field it can find, in
// source-priority order: Open Graph, Twitter Card, JSON-LD, inline
// video elements, verification heuristics. Missing fields stay empty.
func FromHTML(html []byte, pageURL string) (unfurl.PostRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return unfurl.PostRecord{}, fmt.Errorf("parse html: %w", err)
	}

	record := unfurl.PostRecord{
		URL:    pageURL,
		PostID: unfurl.ExtractPostID(pageURL),
	}

	applyOpenGraph(doc, &record)
	applyTwitterCard(doc, &record)
	applyJSONLD(doc, &record)
	applyInlineVideo(doc, &record)

	if record.ContentType == "" {
		record.ContentType = contentTypeFromURL(pageURL, record.VideoURL != "")
	}
	if !record.IsVerified {
		record.IsVerified = hasVerifiedMarker(html)
	}
	return record, nil
}

func applyOpenGraph(doc *goquery.Document, record *unfurl.PostRecord) {
	get := func(property string) string {
		return metaContent(doc, fmt.Sprintf(`meta[property=%q]`, property))
	}

	if record.ImageURL == "" {
		record.ImageURL = get("og:image")
	}
	if record.VideoURL == "" {
		for _, p := range []string{"og:video:secure_url", "og:video:url", "og:video"} {
			if v := get(p); v != "" {
				record.VideoURL = v
				break
			}
		}
	}
	if strings.HasPrefix(get("og:type"), "video") && record.ContentType == "" {
		record.ContentType = unfurl.ContentTypeVideo
	}

	title := get("og:title")
	description := get("og:description")
	if record.Username == "" {
		record.Username = usernameFromText(title)
	}
	if record.Caption == "" {
		if description != "" {
			record.Caption = description
		} else {
			record.Caption = title
		}
	}
	applyEngagement(description, record)
}

func applyTwitterCard(doc *goquery.Document, record *unfurl.PostRecord) {
	get := func(name string) string {
		return metaContent(doc, fmt.Sprintf(`meta[name=%q]`, name))
	}

	if record.ImageURL == "" {
		record.ImageURL = get("twitter:image")
	}
	if record.VideoURL == "" {
		record.VideoURL = get("twitter:player:stream")
	}
	if record.Username == "" {
		record.Username = usernameFromText(get("twitter:title"))
	}
	if record.Caption == "" {
		record.Caption = get("twitter:description")
	}
}

// jsonLD covers the subset of schema.org fields the post pages embed.
type jsonLD struct {
	Type    string `json:"@type"`
	Caption string `json:"caption"`
	Author  struct {
		Name          string `json:"name"`
		AlternateName string `json:"alternateName"`
	} `json:"author"`
	ContentURL   string `json:"contentUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
	UploadDate   string `json:"uploadDate"`
}

func applyJSONLD(doc *goquery.Document, record *unfurl.PostRecord) {
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var ld jsonLD
		if err := json.Unmarshal([]byte(s.Text()), &ld); err != nil {
			return true
		}
		if record.Username == "" {
			record.Username = strings.TrimPrefix(firstNonEmpty(ld.Author.AlternateName, ld.Author.Name), "@")
		}
		if record.Caption == "" {
			record.Caption = ld.Caption
		}
		if strings.EqualFold(ld.Type, "VideoObject") {
			if record.VideoURL == "" {
				record.VideoURL = ld.ContentURL
			}
			if record.ImageURL == "" {
				record.ImageURL = ld.ThumbnailURL
			}
		} else if record.ImageURL == "" {
			record.ImageURL = firstNonEmpty(ld.ThumbnailURL, ld.ContentURL)
		}
		return record.Username == "" || record.Caption == "" || !record.HasMedia()
	})
}

func applyInlineVideo(doc *goquery.Document, record *unfurl.PostRecord) {
	if record.VideoURL != "" {
		return
	}
	doc.Find("video[src], video source[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		if src != "" && !strings.HasPrefix(src, "blob:") {
			record.VideoURL = src
			return false
		}
		return true
	})
}

func applyEngagement(description string, record *unfurl.PostRecord) {
	m := engagementPattern.FindStringSubmatch(description)
	if m == nil {
		return
	}
	if record.Likes == nil {
		if n, ok := parseCount(m[1]); ok {
			record.Likes = unfurl.IntPtr(n)
		}
	}
	if record.Comments == nil {
		if n, ok := parseCount(m[2]); ok {
			record.Comments = unfurl.IntPtr(n)
		}
	}
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

func usernameFromText(text string) string {
	m := usernamePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

func contentTypeFromURL(pageURL string, hasVideo bool) unfurl.ContentType {
	switch {
	case strings.Contains(pageURL, "/reel"):
		return unfurl.ContentTypeReel
	case strings.Contains(pageURL, "/tv/"):
		return unfurl.ContentTypeTV
	case hasVideo:
		return unfurl.ContentTypeVideo
	default:
		return unfurl.ContentTypePhoto
	}
}

func hasVerifiedMarker(html []byte) bool {
	for _, marker := range verifiedMarkers {
		if bytes.Contains(html, []byte(marker)) {
			return true
		}
	}
	return false
}

// parseCount reads counts like "1,234", "12.3K" or "2M".
func parseCount(raw string) (int, bool) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	multiplier := 1.0
	switch {
	case strings.HasSuffix(raw, "K"), strings.HasSuffix(raw, "k"):
		multiplier = 1_000
		raw = raw[:len(raw)-1]
	case strings.HasSuffix(raw, "M"), strings.HasSuffix(raw, "m"):
		multiplier = 1_000_000
		raw = raw[:len(raw)-1]
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return int(f * multiplier), true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
