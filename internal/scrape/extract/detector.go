package extract

import (
	"bytes"
	"strings"
)

const minHTMLBytes = 512

// Markers that indicate real post markup rather than an interstitial.
var contentMarkers = []string{
	`property="og:`,
	`name="twitter:`,
	"application/ld+json",
	"shortcode_media",
}

// Markers from bot-block and challenge pages. Their presence makes a
// body unusable even when it is syntactically valid HTML.
var blockMarkers = []string{
	"checkpoint_required",
	"challenge_required",
	"captcha",
	"temporarily blocked",
}

// LooksLikePostHTML applies structural heuristics to decide whether a
// response body is a genuine post page worth parsing. Binary payloads,
// tiny stubs and known bot-block pages are rejected.
func LooksLikePostHTML(body []byte) bool {
	if len(body) < minHTMLBytes {
		return false
	}
	if bytes.IndexByte(body[:min(len(body), 1024)], 0x00) >= 0 {
		return false
	}

	head := strings.ToLower(string(body[:min(len(body), 16*1024)]))
	if !strings.Contains(head, "<html") && !strings.Contains(head, "<!doctype html") {
		return false
	}
	for _, marker := range blockMarkers {
		if strings.Contains(head, marker) {
			return false
		}
	}
	for _, marker := range contentMarkers {
		if strings.Contains(head, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
