package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gramlink/unfurler/internal/unfurl"
)

func sampleUnfurls() map[string]unfurl.RenderedUnfurl {
	return map[string]unfurl.RenderedUnfurl{
		"https://instagram.com/p/Abc123": {
			Color:  "#E1306C",
			Blocks: []unfurl.Block{{Type: unfurl.BlockHeader, Text: "@some_user"}},
		},
	}
}

func TestDeliverUnfurls_PostsPayloadWithAuth(t *testing.T) {
	t.Parallel()

	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer xoxb-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	d, err := New(Config{Endpoint: srv.URL, Token: "xoxb-token"}, srv.Client(), nil)
	require.NoError(t, err)

	err = d.DeliverUnfurls(context.Background(), "C123", "1724956800.000100", "ref-1", sampleUnfurls())
	require.NoError(t, err)

	require.Equal(t, "C123", got.ConversationRef)
	require.Equal(t, "1724956800.000100", got.MessageRef)
	require.Equal(t, "ref-1", got.UnfurlRef)
	require.Contains(t, got.Unfurls, "https://instagram.com/p/Abc123")
}

func TestDeliverUnfurls_NonOKStatusIsAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d, err := New(Config{Endpoint: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)

	err = d.DeliverUnfurls(context.Background(), "C123", "m", "u", sampleUnfurls())
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestDeliverUnfurls_PlatformRejectionIsAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"cannot_find_message"}`))
	}))
	defer srv.Close()

	d, err := New(Config{Endpoint: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)

	err = d.DeliverUnfurls(context.Background(), "C123", "m", "u", sampleUnfurls())
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot_find_message")
}

func TestNew_RequiresEndpoint(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil, nil)
	require.Error(t, err)
}
