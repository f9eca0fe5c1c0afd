package credstore

import (
	"sync"
	"time"
)

// lockoutTracker maintains per-credential sliding windows of failed
// access attempts. Entries older than the window are dropped before
// each check, so the structure is self-trimming.
type lockoutTracker struct {
	maxAttempts int
	window      time.Duration

	mu       sync.Mutex
	failures map[string][]time.Time
}

// newLockoutTracker creates a tracker. maxAttempts <= 0 disables
// lockout entirely.
func newLockoutTracker(maxAttempts int, window time.Duration) *lockoutTracker {
	return &lockoutTracker{
		maxAttempts: maxAttempts,
		window:      window,
		failures:    make(map[string][]time.Time),
	}
}

// lockedUntil returns the time the lockout for id ends, or the zero
// time when the credential is not locked out.
func (t *lockoutTracker) lockedUntil(id string, now time.Time) time.Time {
	if t.maxAttempts <= 0 {
		return time.Time{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	recent := t.trim(id, now)
	if len(recent) < t.maxAttempts {
		return time.Time{}
	}

	// The lockout ends when the oldest counted failure ages out.
	return recent[len(recent)-t.maxAttempts].Add(t.window)
}

// recordFailure registers a failed access attempt for id.
func (t *lockoutTracker) recordFailure(id string, now time.Time) {
	if t.maxAttempts <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	recent := t.trim(id, now)
	t.failures[id] = append(recent, now)
}

// reset clears the failure history for id, typically after a
// successful retrieval or a credential update.
func (t *lockoutTracker) reset(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failures, id)
}

// trim drops failures outside the window and stores the result.
// Callers must hold t.mu.
func (t *lockoutTracker) trim(id string, now time.Time) []time.Time {
	windowStart := now.Add(-t.window)
	attempts := t.failures[id]

	valid := attempts[:0]
	for _, at := range attempts {
		if at.After(windowStart) {
			valid = append(valid, at)
		}
	}

	if len(valid) == 0 {
		delete(t.failures, id)
		return nil
	}
	t.failures[id] = valid
	return valid
}
