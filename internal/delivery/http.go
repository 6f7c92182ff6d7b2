// Package delivery hands rendered unfurls back to the chat platform.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gramlink/unfurler/internal/unfurl"
)

// DefaultTimeout bounds one delivery call.
const DefaultTimeout = 10 * time.Second

// Config captures the chat platform endpoint.
type Config struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
}

// payload is the wire shape of one delivery call.
type payload struct {
	ConversationRef string                           `json:"conversation_ref"`
	MessageRef      string                           `json:"message_ref"`
	UnfurlRef       string                           `json:"unfurl_ref"`
	Unfurls         map[string]unfurl.RenderedUnfurl `json:"unfurls"`
}

// response is the platform's acknowledgment envelope.
type response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// HTTPDeliverer implements unfurl.Deliverer over the platform's HTTP API.
type HTTPDeliverer struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds an HTTPDeliverer. A nil client gets a default with the
// configured timeout.
func New(cfg Config, client *http.Client, logger *zap.Logger) (*HTTPDeliverer, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("delivery endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPDeliverer{cfg: cfg, client: client, logger: logger}, nil
}

// DeliverUnfurls posts the unfurl map keyed by original URL. Failures
// are returned to the caller; the pipeline decides whether to retry.
func (d *HTTPDeliverer) DeliverUnfurls(
	ctx context.Context,
	conversationRef, messageRef, unfurlRef string,
	unfurls map[string]unfurl.RenderedUnfurl,
) error {
	body, err := json.Marshal(payload{
		ConversationRef: conversationRef,
		MessageRef:      messageRef,
		UnfurlRef:       unfurlRef,
		Unfurls:         unfurls,
	})
	if err != nil {
		return fmt.Errorf("marshal delivery payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if d.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.Token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver unfurls: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("chat api returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var ack response
	if err := json.Unmarshal(raw, &ack); err == nil && !ack.OK && ack.Error != "" {
		return fmt.Errorf("chat api rejected unfurls: %s", ack.Error)
	}

	d.logger.Debug("unfurls delivered",
		zap.String("conversation_ref", conversationRef),
		zap.String("message_ref", messageRef),
		zap.Int("count", len(unfurls)))
	return nil
}
