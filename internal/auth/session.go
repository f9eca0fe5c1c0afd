package auth

import (
	"time"
)

// SessionStatus represents the lifecycle state of a session.
// Transitions are forward-only: pending moves to authenticated, and
// authenticated moves to expired or revoked, never backward.
type SessionStatus string

// Session statuses.
const (
	SessionPending       SessionStatus = "pending"
	SessionAuthenticated SessionStatus = "authenticated"
	SessionExpired       SessionStatus = "expired"
	SessionRevoked       SessionStatus = "revoked"
)

// Session is the result of a successful authentication. It is owned
// by the manager; callers receive copies.
type Session struct {
	ID        string            `json:"session_id"`
	Status    SessionStatus     `json:"status"`
	AuthType  AuthType          `json:"auth_type"`
	ServiceID string            `json:"service_identifier"`
	IssuedAt  time.Time         `json:"issued_at"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Scopes    []string          `json:"scopes,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	LastUsed  time.Time         `json:"last_used"`

	// Tokens issued by the provider. Withheld from summaries.
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`

	// Internal tokens minted by the token manager when one is
	// configured. Withheld from summaries.
	InternalAccessToken  string `json:"-"`
	InternalRefreshToken string `json:"-"`
}

// IsValid reports whether the session is usable at the given time: it
// must be authenticated, not past expiry, and not idle beyond the
// idle timeout (when one is configured).
func (s *Session) IsValid(now time.Time, idleTimeout time.Duration) bool {
	if s == nil || s.Status != SessionAuthenticated {
		return false
	}
	if s.ExpiresAt != nil && now.After(*s.ExpiresAt) {
		return false
	}
	if idleTimeout > 0 && now.Sub(s.LastUsed) > idleTimeout {
		return false
	}
	return true
}

// clone returns a copy safe to hand to callers.
func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Scopes = append([]string(nil), s.Scopes...)
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Summary is the listing view of a session. It never carries token
// values.
type Summary struct {
	ID        string        `json:"session_id"`
	Status    SessionStatus `json:"status"`
	AuthType  AuthType      `json:"auth_type"`
	ServiceID string        `json:"service_identifier"`
	IssuedAt  time.Time     `json:"issued_at"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	Scopes    []string      `json:"scopes,omitempty"`
	LastUsed  time.Time     `json:"last_used"`
}

// summary returns the token-free listing view.
func (s *Session) summary() *Summary {
	return &Summary{
		ID:        s.ID,
		Status:    s.Status,
		AuthType:  s.AuthType,
		ServiceID: s.ServiceID,
		IssuedAt:  s.IssuedAt,
		ExpiresAt: s.ExpiresAt,
		Scopes:    append([]string(nil), s.Scopes...),
		LastUsed:  s.LastUsed,
	}
}
