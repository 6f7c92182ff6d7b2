package oembed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gramlink/unfurler/internal/unfurl"
)

const postURL = "https://instagram.com/p/Abc123"

func TestScrape_RejectsNonPostURL(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	result := s.Scrape(context.Background(), "https://example.com/p/Abc123")
	require.False(t, result.Success)
	require.Equal(t, "invalid url", result.Err)
}

func TestScrape_PrimaryEndpointSuccess(t *testing.T) {
	t.Parallel()

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, postURL, r.URL.Query().Get("url"))
		require.Equal(t, "token-123", r.URL.Query().Get("access_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"author_name": "some_user",
			"title": "a caption",
			"thumbnail_url": "https://cdn.example/thumb.jpg",
			"html": "<blockquote><video src=\"https://cdn.example/clip.mp4?tag=1\"></video></blockquote>"
		}`))
	}))
	defer primary.Close()

	s := New(Config{PrimaryEndpoint: primary.URL, AccessToken: "token-123"})
	result := s.Scrape(context.Background(), postURL)

	require.True(t, result.Success)
	require.Equal(t, StrategyName, result.Strategy)
	require.Equal(t, "some_user", result.Record.Username)
	require.Equal(t, "a caption", result.Record.Caption)
	require.Equal(t, "https://cdn.example/thumb.jpg", result.Record.ImageURL)
	require.Equal(t, "https://cdn.example/clip.mp4?tag=1", result.Record.VideoURL)
	require.Equal(t, "Abc123", result.Record.PostID)
}

func TestScrape_FallsBackToLegacyEndpoint(t *testing.T) {
	t.Parallel()

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer primary.Close()

	legacyCalled := false
	legacy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		legacyCalled = true
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"author_name": "legacy_user", "thumbnail_url": "https://cdn.example/t.jpg"}`))
	}))
	defer legacy.Close()

	s := New(Config{PrimaryEndpoint: primary.URL, LegacyEndpoint: legacy.URL})
	result := s.Scrape(context.Background(), postURL)

	require.True(t, legacyCalled)
	require.True(t, result.Success)
	require.Equal(t, "legacy_user", result.Record.Username)
}

func TestScrape_BothEndpointsFailing(t *testing.T) {
	t.Parallel()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	s := New(Config{PrimaryEndpoint: down.URL, LegacyEndpoint: down.URL})
	result := s.Scrape(context.Background(), postURL)

	require.False(t, result.Success)
	require.Contains(t, result.Err, "primary")
	require.Contains(t, result.Err, "legacy")
}

func TestScrape_ContentTypeFromURLShape(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"author_name": "reel_user"}`))
	}))
	defer server.Close()

	s := New(Config{PrimaryEndpoint: server.URL})
	result := s.Scrape(context.Background(), "https://instagram.com/reel/XYZ_-9")
	require.True(t, result.Success)
	require.Equal(t, unfurl.ContentTypeReel, result.Record.ContentType)
}
