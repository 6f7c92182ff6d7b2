package direct

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gramlink/unfurler/internal/scrape/extract"
)

var postPage = `<!DOCTYPE html>
<html><head>
<meta property="og:title" content="some_user on Instagram: &quot;sunset&quot;" />
<meta property="og:description" content="12 likes, 3 comments - some_user on January 1, 2026" />
<meta property="og:image" content="https://cdn.example/photo.jpg" />
</head><body>` + strings.Repeat("<p>pad</p>", 100) + `</body></html>`

func TestScrape_RejectsNonPostURL(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	result := s.Scrape(context.Background(), "https://example.com/whatever")
	require.False(t, result.Success)
	require.Equal(t, "invalid url", result.Err)
	require.Equal(t, StrategyName, result.Strategy)
}

func TestFetch_ReturnsBodyAndSendsRotatedHeaders(t *testing.T) {
	t.Parallel()

	var gotUA, gotAccept atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		gotAccept.Store(r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(postPage))
	}))
	defer server.Close()

	s := New(Config{Timeout: 5 * time.Second})
	body, err := s.fetch(context.Background(), s.newCollector(), server.URL+"/p/Abc123")
	require.NoError(t, err)
	require.True(t, extract.LooksLikePostHTML(body))

	require.Contains(t, s.cfg.UserAgents, gotUA.Load().(string))
	require.NotEmpty(t, gotAccept.Load().(string))

	record, err := extract.FromHTML(body, "https://instagram.com/p/Abc123")
	require.NoError(t, err)
	require.Equal(t, "some_user", record.Username)
	require.Equal(t, "https://cdn.example/photo.jpg", record.ImageURL)
}

func TestFetch_HTTPErrorSurfacesAsFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	s := New(Config{Timeout: 5 * time.Second})
	_, err := s.fetch(context.Background(), s.newCollector(), server.URL+"/p/Abc123")
	require.Error(t, err)
}

func TestLooksLikePostHTML_RejectsBlockPage(t *testing.T) {
	t.Parallel()

	blockPage := `<html><body>challenge_required` + strings.Repeat(" ", 600) + `</body></html>`
	require.False(t, extract.LooksLikePostHTML([]byte(blockPage)))
}

func TestNew_DropsMalformedProxyURLs(t *testing.T) {
	t.Parallel()

	s := New(Config{ProxyURLs: []string{"http://proxy-a:8080", "::bad::", "socks5://proxy-b:1080"}})
	require.Len(t, s.proxies, 2)

	proxy, err := s.randomProxy(nil)
	require.NoError(t, err)
	require.Contains(t, []string{"proxy-a:8080", "proxy-b:1080"}, proxy.Host)
}
