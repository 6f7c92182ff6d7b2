package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gramlink/unfurler/internal/store"
	memorystore "github.com/gramlink/unfurler/internal/store/memory"
)

type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("store down")
}

func (failingKV) Put(context.Context, string, []byte, time.Duration) error {
	return errors.New("store down")
}

func (failingKV) ConditionalCreate(context.Context, string, []byte, time.Duration) error {
	return errors.New("store down")
}

func (failingKV) Delete(context.Context, string) error {
	return errors.New("store down")
}

func TestGate_FirstAcquireWinsSecondSkips(t *testing.T) {
	t.Parallel()

	gate := New(memorystore.New(), time.Minute, zap.NewNop())
	ctx := context.Background()

	require.True(t, gate.TryAcquire(ctx, "https://instagram.com/p/Abc123"))
	require.False(t, gate.TryAcquire(ctx, "https://instagram.com/p/Abc123"))
	// A different URL is unaffected.
	require.True(t, gate.TryAcquire(ctx, "https://instagram.com/p/Other99"))
}

func TestGate_ReacquireAfterLeaseExpiry(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	kv := memorystore.NewWithClock(func() time.Time { return now })
	gate := New(kv, time.Minute, zap.NewNop())
	ctx := context.Background()

	require.True(t, gate.TryAcquire(ctx, "https://instagram.com/p/Abc123"))
	now = now.Add(2 * time.Minute)
	require.True(t, gate.TryAcquire(ctx, "https://instagram.com/p/Abc123"))
}

func TestGate_ReleaseAllowsImmediateReacquire(t *testing.T) {
	t.Parallel()

	gate := New(memorystore.New(), time.Minute, zap.NewNop())
	ctx := context.Background()
	url := "https://instagram.com/p/Abc123"

	require.True(t, gate.TryAcquire(ctx, url))
	gate.Release(ctx, url)
	require.True(t, gate.TryAcquire(ctx, url))
}

func TestGate_FailsOpenWhenStoreUnavailable(t *testing.T) {
	t.Parallel()

	gate := New(failingKV{}, time.Minute, zap.NewNop())
	require.True(t, gate.TryAcquire(context.Background(), "https://instagram.com/p/Abc123"))
	// Release on a failing store must not panic; the lease ages out.
	gate.Release(context.Background(), "https://instagram.com/p/Abc123")
}

var _ store.KV = failingKV{}
