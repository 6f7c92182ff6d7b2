package headless

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScrape_RejectsNonPostURLWithoutBrowser(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	defer s.Close()

	result := s.Scrape(context.Background(), "https://example.com/not-a-post")
	require.False(t, result.Success)
	require.Equal(t, "invalid url", result.Err)
	require.Equal(t, StrategyName, result.Strategy)

	// URL validation must short-circuit before any browser launch.
	s.mu.Lock()
	require.Nil(t, s.allocator)
	s.mu.Unlock()
}

func TestEnsureAllocator_SingleInstanceUnderConcurrency(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	defer s.Close()

	allocators := make([]context.Context, 8)
	var wg sync.WaitGroup
	for i := range allocators {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			alloc, err := s.ensureAllocator()
			require.NoError(t, err)
			allocators[i] = alloc
		}(i)
	}
	wg.Wait()

	for _, alloc := range allocators[1:] {
		require.Same(t, allocators[0], alloc, "concurrent first calls must share one allocator")
	}
}

func TestClose_IsIdempotentAndBlocksReuse(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	_, err := s.ensureAllocator()
	require.NoError(t, err)

	s.Close()
	s.Close()

	_, err = s.ensureAllocator()
	require.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	require.Equal(t, DefaultNavigationTimeout, s.cfg.NavigationTimeout)
	require.NotEmpty(t, s.cfg.UserAgents)
	require.Nil(t, s.limiter)

	bounded := New(Config{MaxParallel: 2, NavigationTimeout: time.Second})
	require.Equal(t, time.Second, bounded.cfg.NavigationTimeout)
	require.Equal(t, 2, cap(bounded.limiter))
}
