// Package pubsub feeds link events from a Google Cloud Pub/Sub
// subscription into the local event queue.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/gramlink/unfurler/internal/events"
	"github.com/gramlink/unfurler/internal/unfurl"
)

// Source receives messages from one subscription and enqueues the
// decoded events.
type Source struct {
	client *pubsub.Client
	sub    *pubsub.Subscription
	queue  events.Queue
	logger *zap.Logger
}

// New creates a Pub/Sub client and verifies the subscription exists.
// It authenticates using Application Default Credentials.
func New(ctx context.Context, projectID, subscriptionID string, queue events.Queue, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	sub := client.Subscription(subscriptionID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after existence check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check subscription %q: %w", subscriptionID, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after existence check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("subscription %q does not exist in project %q", subscriptionID, projectID)
	}

	return &Source{client: client, sub: sub, queue: queue, logger: logger}, nil
}

// Run receives until the context is canceled. Malformed messages are
// acked and dropped; a full local queue nacks so the broker redelivers.
func (s *Source) Run(ctx context.Context) error {
	err := s.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var event unfurl.InboundEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			s.logger.Warn("dropping undecodable event message",
				zap.String("message_id", msg.ID), zap.Error(err))
			msg.Ack()
			return
		}

		if err := s.queue.Enqueue(ctx, event); err != nil {
			s.logger.Warn("event queue full, nacking for redelivery",
				zap.String("message_id", msg.ID), zap.Error(err))
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("receive: %w", err)
	}
	return nil
}

// Close releases the underlying client connection.
func (s *Source) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
