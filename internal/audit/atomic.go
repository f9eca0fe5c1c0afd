package audit

import (
	"context"
	"sync/atomic"
)

// AtomicLogger wraps a Logger with an atomic pointer for lock-free
// hot-swap on configuration reload. Components hold the wrapper; Swap
// replaces the inner logger so all subsequent calls use the new one
// without re-wiring.
type AtomicLogger struct {
	current atomic.Pointer[Logger]
}

// Ensure AtomicLogger satisfies the Logger interface.
var _ Logger = (*AtomicLogger)(nil)

// defaultNoop avoids allocating on every Load when the pointer is nil
// (zero-value struct).
var defaultNoop Logger = &noopLogger{}

// NewAtomicLogger creates a new AtomicLogger wrapping the given
// logger. A nil logger is replaced with a no-op delegate.
func NewAtomicLogger(logger Logger) *AtomicLogger {
	if logger == nil {
		logger = NewNoopLogger()
	}
	a := &AtomicLogger{}
	a.current.Store(&logger)
	return a
}

// Swap atomically replaces the inner logger and returns the previous
// one. The caller is responsible for closing the previous logger.
func (a *AtomicLogger) Swap(newLogger Logger) Logger {
	if newLogger == nil {
		newLogger = NewNoopLogger()
	}
	old := a.current.Swap(&newLogger)
	if old != nil {
		return *old
	}
	return nil
}

// Load returns the current inner logger.
func (a *AtomicLogger) Load() Logger {
	if ptr := a.current.Load(); ptr != nil {
		return *ptr
	}
	return defaultNoop
}

// Log delegates to the current inner logger.
func (a *AtomicLogger) Log(ctx context.Context, event *Event) {
	a.Load().Log(ctx, event)
}

// Close closes the current inner logger.
func (a *AtomicLogger) Close() error {
	return a.Load().Close()
}
