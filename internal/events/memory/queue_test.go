package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gramlink/unfurler/internal/unfurl"
)

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	event := unfurl.InboundEvent{ConversationRef: "C1", MessageRef: "m1", UnfurlRef: "u1"}
	require.NoError(t, q.Enqueue(context.Background(), event))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, event, got)
}

func TestEnqueueRespectsContextWhenFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), unfurl.InboundEvent{ConversationRef: "C1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, unfurl.InboundEvent{ConversationRef: "C2"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDequeueRespectsContextWhenEmpty(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseIsIdempotentAndDrains(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), unfurl.InboundEvent{ConversationRef: "C1"}))
	q.Close()
	q.Close()

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "C1", got.ConversationRef)

	_, err = q.Dequeue(context.Background())
	require.EqualError(t, err, "queue closed")
}
