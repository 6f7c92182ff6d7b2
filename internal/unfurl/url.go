package unfurl

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// postPathPattern matches the shortcode segment of a post URL. The
// reels alias redirects to reel on the site itself, so both count.
var postPathPattern = regexp.MustCompile(`(?:^|/)(p|reel|reels|tv)/([A-Za-z0-9_-]+)`)

// Canonicalize normalizes a post URL into its cache/dedup identity.
// It lowercases and normalizes the host (dropping the www prefix and
// default ports), forces https, and strips query string, fragment and
// trailing slash. Canonicalize is idempotent.
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	host = strings.TrimPrefix(host, "www.")

	path := u.EscapedPath()
	for strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}

	return "https://" + host + path, nil
}

// IsPostURL reports whether the URL points at a supported post page.
func IsPostURL(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	if !isPostHost(u.Host) {
		return false
	}
	return postPathPattern.MatchString(u.Path)
}

// ExtractPostID pulls the shortcode out of a post URL, or returns ""
// when the URL does not follow the /p/, /reel/ or /tv/ shape.
func ExtractPostID(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	m := postPathPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return ""
	}
	return m[2]
}

func isPostHost(host string) bool {
	h := strings.ToLower(host)
	h = strings.TrimSuffix(h, ":80")
	h = strings.TrimSuffix(h, ":443")
	return h == "instagram.com" || strings.HasSuffix(h, ".instagram.com")
}
