package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gramlink/unfurler/internal/unfurl"
)

const photoPage = `<!DOCTYPE html>
<html><head>
<meta property="og:title" content="some_user on Instagram: &quot;sunset&quot;" />
<meta property="og:description" content="12.3K likes, 456 comments - some_user on January 1, 2026: &quot;sunset&quot;" />
<meta property="og:image" content="https://cdn.example/photo.jpg" />
<meta property="og:type" content="article" />
</head><body></body></html>`

const videoPage = `<!DOCTYPE html>
<html><head>
<meta property="og:type" content="video.other" />
<meta property="og:video:secure_url" content="https://cdn.example/clip.mp4" />
<meta property="og:image" content="https://cdn.example/thumb.jpg" />
<meta name="twitter:title" content="reel_user on Instagram" />
</head><body></body></html>`

const jsonLDPage = `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">
{"@type":"VideoObject","caption":"a fine clip","author":{"name":"Clip Author","alternateName":"@clip_author"},
 "contentUrl":"https://cdn.example/ld.mp4","thumbnailUrl":"https://cdn.example/ld.jpg"}
</script>
</head><body></body></html>`

func TestFromHTML_OpenGraphPhoto(t *testing.T) {
	t.Parallel()

	record, err := FromHTML([]byte(photoPage), "https://instagram.com/p/Abc123")
	require.NoError(t, err)

	require.Equal(t, "Abc123", record.PostID)
	require.Equal(t, "some_user", record.Username)
	require.Equal(t, "https://cdn.example/photo.jpg", record.ImageURL)
	require.Equal(t, unfurl.ContentTypePhoto, record.ContentType)
	require.NotNil(t, record.Likes)
	require.Equal(t, 12300, *record.Likes)
	require.NotNil(t, record.Comments)
	require.Equal(t, 456, *record.Comments)
	require.False(t, record.HasVideo())
}

func TestFromHTML_OpenGraphVideo(t *testing.T) {
	t.Parallel()

	record, err := FromHTML([]byte(videoPage), "https://instagram.com/reel/XYZ_-9")
	require.NoError(t, err)

	require.Equal(t, "https://cdn.example/clip.mp4", record.VideoURL)
	require.Equal(t, "https://cdn.example/thumb.jpg", record.ImageURL)
	require.Equal(t, "reel_user", record.Username)
	require.True(t, record.HasVideo())
}

func TestFromHTML_JSONLDFallback(t *testing.T) {
	t.Parallel()

	record, err := FromHTML([]byte(jsonLDPage), "https://instagram.com/p/LdOnly1")
	require.NoError(t, err)

	require.Equal(t, "clip_author", record.Username)
	require.Equal(t, "a fine clip", record.Caption)
	require.Equal(t, "https://cdn.example/ld.mp4", record.VideoURL)
	require.Equal(t, "https://cdn.example/ld.jpg", record.ImageURL)
}

func TestFromHTML_InlineVideoElement(t *testing.T) {
	t.Parallel()

	page := `<!DOCTYPE html><html><head></head><body>
<video src="https://cdn.example/inline.mp4"></video></body></html>`
	record, err := FromHTML([]byte(page), "https://instagram.com/tv/Q1w2E3")
	require.NoError(t, err)

	require.Equal(t, "https://cdn.example/inline.mp4", record.VideoURL)
	require.Equal(t, unfurl.ContentTypeTV, record.ContentType)
}

func TestFromHTML_VerifiedHeuristic(t *testing.T) {
	t.Parallel()

	page := `<!DOCTYPE html><html><head></head><body>
<script>{"user":{"is_verified":true}}</script></body></html>`
	record, err := FromHTML([]byte(page), "https://instagram.com/p/Ver1fy")
	require.NoError(t, err)
	require.True(t, record.IsVerified)
}

func TestLooksLikePostHTML(t *testing.T) {
	t.Parallel()

	pad := strings.Repeat(" ", minHTMLBytes)
	cases := []struct {
		name string
		body string
		want bool
	}{
		{"real page", photoPage + pad, true},
		{"tiny stub", "<html></html>", false},
		{"binary", "\x00\x01\x02" + pad, false},
		{"no html tag", "just plain text" + pad, false},
		{"challenge page", `<html><head><meta property="og:title" content="x"></head>checkpoint_required</html>` + pad, false},
		{"plain html without markers", "<html><body>hello</body></html>" + pad, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, LooksLikePostHTML([]byte(tc.body)), tc.name)
	}
}

func TestParseCount(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		"1,234": 1234,
		"12.3K": 12300,
		"2M":    2000000,
		"7":     7,
	}
	for raw, want := range cases {
		got, ok := parseCount(raw)
		require.True(t, ok, raw)
		require.Equal(t, want, got, raw)
	}
	_, ok := parseCount("many")
	require.False(t, ok)
}
