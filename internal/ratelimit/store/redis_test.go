package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := DefaultRedisConfig()
	cfg.Address = mr.Addr()

	s, err := NewRedisStore(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, mr
}

func TestRedisStore_GetSet(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.True(t, IsKeyNotFound(err))

	require.NoError(t, s.Set(ctx, "k", 7, time.Minute))
	value, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(7), value)
}

func TestRedisStore_Increment(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	value, err := s.Increment(ctx, "counter", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), value)

	value, err = s.Increment(ctx, "counter", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), value)
}

func TestRedisStore_IncrementWithExpiry(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	value, err := s.IncrementWithExpiry(ctx, "c", 1, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)

	value, err = s.IncrementWithExpiry(ctx, "c", 1, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), value)

	// After the TTL elapses the counter restarts.
	mr.FastForward(3 * time.Second)

	value, err = s.IncrementWithExpiry(ctx, "c", 1, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)
}

func TestRedisStore_Delete(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", 1, time.Minute))
	require.NoError(t, s.Delete(ctx, "k"))

	_, err := s.Get(ctx, "k")
	assert.True(t, IsKeyNotFound(err))
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", 1, time.Minute))
	assert.True(t, mr.Exists("authcore:rl:k"))
}

func TestRedisStore_CloseIdempotent(t *testing.T) {
	s, _ := newTestRedisStore(t)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestNewRedisStore_ConnectFailure(t *testing.T) {
	t.Parallel()

	cfg := DefaultRedisConfig()
	cfg.Address = "127.0.0.1:1"
	cfg.Timeout = 100 * time.Millisecond

	_, err := NewRedisStore(cfg, nil)
	assert.Error(t, err)
}
