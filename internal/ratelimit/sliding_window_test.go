package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/authcore/internal/ratelimit/store"
)

func TestSlidingWindowLimiter_AllowWithinLimit(t *testing.T) {
	t.Parallel()

	limiter := NewSlidingWindowLimiter(nil, 5, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := limiter.Allow(ctx, "caller:a")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 5-(i+1), result.Remaining)
	}
}

func TestSlidingWindowLimiter_RejectsOverLimit(t *testing.T) {
	t.Parallel()

	limiter := NewSlidingWindowLimiter(nil, 3, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "caller:b")
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	// Request N+1 within the window is rejected with a retry hint.
	result, err := limiter.Allow(ctx, "caller:b")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Zero(t, result.Remaining)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestSlidingWindowLimiter_WindowElapses(t *testing.T) {
	t.Parallel()

	limiter := NewSlidingWindowLimiter(nil, 2, 50*time.Millisecond, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Allow(ctx, "caller:c")
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	result, err := limiter.Allow(ctx, "caller:c")
	require.NoError(t, err)
	require.False(t, result.Allowed)

	time.Sleep(60 * time.Millisecond)

	result, err = limiter.Allow(ctx, "caller:c")
	require.NoError(t, err)
	assert.True(t, result.Allowed, "request after window elapsed should succeed")
}

func TestSlidingWindowLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	limiter := NewSlidingWindowLimiter(nil, 1, time.Minute, nil)
	ctx := context.Background()

	result, err := limiter.Allow(ctx, "caller:x")
	require.NoError(t, err)
	require.True(t, result.Allowed)

	result, err = limiter.Allow(ctx, "caller:y")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestSlidingWindowLimiter_ConcurrentSameKey(t *testing.T) {
	t.Parallel()

	const limit = 50
	limiter := NewSlidingWindowLimiter(nil, limit, time.Minute, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < limit*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := limiter.Allow(ctx, "caller:shared")
			require.NoError(t, err)
			if result.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, allowed, "exactly limit requests should be admitted")
}

func TestSlidingWindowLimiter_Reset(t *testing.T) {
	t.Parallel()

	limiter := NewSlidingWindowLimiter(nil, 1, time.Minute, nil)
	ctx := context.Background()

	result, err := limiter.Allow(ctx, "caller:r")
	require.NoError(t, err)
	require.True(t, result.Allowed)

	result, err = limiter.Allow(ctx, "caller:r")
	require.NoError(t, err)
	require.False(t, result.Allowed)

	require.NoError(t, limiter.Reset(ctx, "caller:r"))

	result, err = limiter.Allow(ctx, "caller:r")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestSlidingWindowLimiter_Cleanup(t *testing.T) {
	t.Parallel()

	limiter := NewSlidingWindowLimiter(nil, 10, 10*time.Millisecond, nil)
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "caller:idle")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	limiter.Cleanup(10 * time.Millisecond)

	_, loaded := limiter.windows.Load("caller:idle")
	assert.False(t, loaded, "idle key should be evicted")
}

func TestSlidingWindowLimiter_DistributedStore(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	defer func() { _ = s.Close() }()

	limiter := NewSlidingWindowLimiterWithPrecision(s, 3, time.Second, 5, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "caller:d")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := limiter.Allow(ctx, "caller:d")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestNoopLimiter(t *testing.T) {
	t.Parallel()

	limiter := NewNoopLimiter()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		result, err := limiter.Allow(ctx, "any")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
	assert.NoError(t, limiter.Reset(ctx, "any"))
}

func TestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		by       KeyBy
		caller   string
		ip       string
		service  string
		expected string
	}{
		{"by caller", KeyByCaller, "svc-a", "10.0.0.1", "erp", "caller:svc-a"},
		{"by ip", KeyByIP, "svc-a", "10.0.0.1", "erp", "ip:10.0.0.1"},
		{"by service", KeyByService, "svc-a", "10.0.0.1", "erp", "service:erp"},
		{"empty caller", KeyByCaller, "", "", "", "caller:unknown"},
		{"unknown mode defaults to caller", KeyBy("other"), "svc-a", "", "", "caller:svc-a"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, Key(tt.by, tt.caller, tt.ip, tt.service))
		})
	}
}
