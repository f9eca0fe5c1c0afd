package auth

import (
	"context"
	"time"

	"github.com/vyrodovalexey/authcore/internal/audit"
	"github.com/vyrodovalexey/authcore/internal/observability"
)

// Start launches the periodic session sweep. Start must be called at
// most once.
func (m *Manager) Start(ctx context.Context) {
	interval := m.config.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		defer close(m.doneCh)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.sweep(ctx)
			}
		}
	}()
}

// Stop halts the sweep and closes the manager. Subsequent operations
// fail with ErrClosed.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// sweep evicts sessions that are expired or idle. It iterates a
// snapshot of the session ids so evictions never race a concurrent
// map walk.
func (m *Manager) sweep(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	now := time.Now().UTC()
	evicted := 0
	for _, id := range ids {
		m.mu.Lock()
		sess, ok := m.sessions[id]
		if ok && !sess.IsValid(now, m.config.IdleTimeout) {
			sess.Status = SessionExpired
			m.evictLocked(id)
			evicted++
			m.mu.Unlock()
			m.auditor.Log(ctx, audit.NewEvent(audit.OpSessionExpire, audit.EntitySession, id, true))
			continue
		}
		m.mu.Unlock()
	}

	if evicted > 0 {
		m.mu.Lock()
		m.metrics.SetActiveSessions(len(m.sessions))
		m.mu.Unlock()
		m.logger.Debug("session sweep completed", observability.Int("evicted", evicted))
	}
}
