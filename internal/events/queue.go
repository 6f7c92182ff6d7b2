// Package events moves inbound link events from their transport to the
// processing pipeline.
package events

import (
	"context"

	"github.com/gramlink/unfurler/internal/unfurl"
)

// Queue decouples event ingestion from processing. Implementations must
// be safe for concurrent producers and consumers.
type Queue interface {
	// Enqueue pushes an event or returns when the context ends.
	Enqueue(ctx context.Context, event unfurl.InboundEvent) error

	// Dequeue pops the next event, respecting context cancellation.
	Dequeue(ctx context.Context) (unfurl.InboundEvent, error)

	// Close stops the queue for shutdown.
	Close()
}
