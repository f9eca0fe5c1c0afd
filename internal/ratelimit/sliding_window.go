package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/authcore/internal/ratelimit/store"
)

// SlidingWindowLimiter implements the sliding window rate limiting
// algorithm. With a nil store it keeps per-key timestamp lists in
// memory; with a store it uses sub-window counters so multiple
// instances can share state.
type SlidingWindowLimiter struct {
	store     store.Store
	limit     int
	window    time.Duration
	precision int
	logger    *zap.Logger

	windows sync.Map
}

// windowState holds the in-memory state for one key. The slice is
// self-trimming: entries older than the window are dropped before
// each check.
type windowState struct {
	attempts []time.Time
	mu       sync.Mutex
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
// Pass a nil store for purely local limiting.
func NewSlidingWindowLimiter(s store.Store, limit int, window time.Duration, logger *zap.Logger) *SlidingWindowLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SlidingWindowLimiter{
		store:     s,
		limit:     limit,
		window:    window,
		precision: 10,
		logger:    logger,
	}
}

// NewSlidingWindowLimiterWithPrecision creates a limiter with a custom
// sub-window count for store-backed mode.
func NewSlidingWindowLimiterWithPrecision(
	s store.Store,
	limit int,
	window time.Duration,
	precision int,
	logger *zap.Logger,
) *SlidingWindowLimiter {
	l := NewSlidingWindowLimiter(s, limit, window, logger)
	if precision >= 1 {
		l.precision = precision
	}
	return l
}

// Allow implements Limiter.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN implements Limiter.
func (l *SlidingWindowLimiter) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	if l.store == nil {
		return l.allowLocal(key, n)
	}
	return l.allowDistributed(ctx, key, n)
}

// allowLocal performs rate limiting using in-memory state.
func (l *SlidingWindowLimiter) allowLocal(key string, n int) (*Result, error) {
	now := time.Now()
	ws := l.getOrCreateWindowState(key)

	ws.mu.Lock()
	defer ws.mu.Unlock()

	l.trimExpired(ws, now)

	count := len(ws.attempts)
	allowed := count+n <= l.limit
	if allowed {
		for i := 0; i < n; i++ {
			ws.attempts = append(ws.attempts, now)
		}
		count += n
	}

	return &Result{
		Allowed:    allowed,
		Limit:      l.limit,
		Remaining:  l.remaining(count),
		ResetAfter: l.resetAfter(ws, now),
		RetryAfter: l.retryAfter(ws, now, count, n, allowed),
	}, nil
}

// getOrCreateWindowState retrieves or creates state for the given key.
func (l *SlidingWindowLimiter) getOrCreateWindowState(key string) *windowState {
	value, _ := l.windows.LoadOrStore(key, &windowState{})
	return value.(*windowState)
}

// trimExpired removes attempts outside the current window.
func (l *SlidingWindowLimiter) trimExpired(ws *windowState, now time.Time) {
	windowStart := now.Add(-l.window)
	valid := ws.attempts[:0]
	for _, t := range ws.attempts {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}
	ws.attempts = valid
}

// remaining calculates requests remaining in the window.
func (l *SlidingWindowLimiter) remaining(count int) int {
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// resetAfter calculates time until the window fully resets.
func (l *SlidingWindowLimiter) resetAfter(ws *windowState, now time.Time) time.Duration {
	if len(ws.attempts) == 0 {
		return l.window
	}
	resetAfter := ws.attempts[0].Add(l.window).Sub(now)
	if resetAfter < 0 {
		resetAfter = 0
	}
	return resetAfter
}

// retryAfter calculates how long a rejected caller must wait before a
// slot frees up.
func (l *SlidingWindowLimiter) retryAfter(ws *windowState, now time.Time, count, n int, allowed bool) time.Duration {
	if allowed || len(ws.attempts) == 0 {
		return 0
	}

	excess := count + n - l.limit
	if excess <= 0 || excess > len(ws.attempts) {
		return 0
	}

	retryAfter := ws.attempts[excess-1].Add(l.window).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return retryAfter
}

// allowDistributed performs rate limiting using sub-window counters in
// the shared store.
func (l *SlidingWindowLimiter) allowDistributed(ctx context.Context, key string, n int) (*Result, error) {
	now := time.Now()
	windowMs := l.window.Milliseconds()
	subWindowSize := windowMs / int64(l.precision)
	currentSubWindow := now.UnixMilli() / subWindowSize

	total := int64(0)
	for i := 0; i < l.precision; i++ {
		subKey := key + ":sw:" + strconv.FormatInt(currentSubWindow-int64(i), 10)
		count, err := l.store.Get(ctx, subKey)
		if err != nil && !store.IsKeyNotFound(err) {
			return nil, err
		}
		total += count
	}

	allowed := int(total)+n <= l.limit
	if allowed {
		currentKey := key + ":sw:" + strconv.FormatInt(currentSubWindow, 10)
		expiration := l.window + time.Duration(subWindowSize)*time.Millisecond
		if _, err := l.store.IncrementWithExpiry(ctx, currentKey, int64(n), expiration); err != nil {
			l.logger.Warn("failed to increment rate limit counter", zap.Error(err))
		}
		total += int64(n)
	}

	var retryAfter time.Duration
	if !allowed {
		// Approximate time until the oldest sub-window expires.
		retryAfter = time.Duration(subWindowSize) * time.Millisecond
	}

	return &Result{
		Allowed:    allowed,
		Limit:      l.limit,
		Remaining:  l.remaining(int(total)),
		ResetAfter: l.window,
		RetryAfter: retryAfter,
	}, nil
}

// Reset implements Limiter.
func (l *SlidingWindowLimiter) Reset(ctx context.Context, key string) error {
	l.windows.Delete(key)

	if l.store != nil {
		windowMs := l.window.Milliseconds()
		subWindowSize := windowMs / int64(l.precision)
		currentSubWindow := time.Now().UnixMilli() / subWindowSize

		for i := 0; i < l.precision; i++ {
			subKey := key + ":sw:" + strconv.FormatInt(currentSubWindow-int64(i), 10)
			if err := l.store.Delete(ctx, subKey); err != nil {
				l.logger.Warn("failed to delete rate limit sub-window", zap.Error(err))
			}
		}
	}

	return nil
}

// Cleanup removes idle window states from memory.
func (l *SlidingWindowLimiter) Cleanup(maxAge time.Duration) {
	windowStart := time.Now().Add(-maxAge)

	l.windows.Range(func(key, value interface{}) bool {
		ws := value.(*windowState)
		ws.mu.Lock()

		idle := true
		for _, t := range ws.attempts {
			if t.After(windowStart) {
				idle = false
				break
			}
		}
		if idle {
			l.windows.Delete(key)
		}

		ws.mu.Unlock()
		return true
	})
}

// Ensure SlidingWindowLimiter implements Limiter.
var _ Limiter = (*SlidingWindowLimiter)(nil)
