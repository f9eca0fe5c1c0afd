package auth

import (
	"github.com/google/uuid"

	"github.com/vyrodovalexey/authcore/internal/audit"
)

// Context carries per-call caller identity. It is ephemeral, created
// for one authentication call and never cached.
type Context struct {
	CallerID      string   `json:"caller_id,omitempty"`
	Tenant        string   `json:"tenant,omitempty"`
	Scopes        []string `json:"scopes,omitempty"`
	IPAddress     string   `json:"ip_address,omitempty"`
	UserAgent     string   `json:"user_agent,omitempty"`
	CorrelationID string   `json:"correlation_id"`
}

// NewContext creates a caller context with a fresh correlation id.
func NewContext(callerID string) *Context {
	return &Context{
		CallerID:      callerID,
		CorrelationID: uuid.New().String(),
	}
}

// orEmpty returns a usable context for optional caller contexts.
func (c *Context) orEmpty() *Context {
	if c == nil {
		return &Context{CorrelationID: uuid.New().String()}
	}
	if c.CorrelationID == "" {
		c.CorrelationID = uuid.New().String()
	}
	return c
}

// actor returns the audit actor view of the context.
func (c *Context) actor() *audit.Actor {
	return &audit.Actor{
		ID:        c.CallerID,
		Tenant:    c.Tenant,
		IPAddress: c.IPAddress,
		UserAgent: c.UserAgent,
	}
}
