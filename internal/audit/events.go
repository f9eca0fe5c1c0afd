package audit

import (
	"time"

	"github.com/google/uuid"
)

// Operation identifies the audited operation.
type Operation string

// Audited operations.
const (
	// Authentication manager operations
	OpAuthenticate   Operation = "authenticate"
	OpSessionReuse   Operation = "session_reuse"
	OpSessionRefresh Operation = "session_refresh"
	OpSessionRevoke  Operation = "session_revoke"
	OpSessionExpire  Operation = "session_expire"

	// Token manager operations
	OpTokenGenerate Operation = "token_generate"
	OpTokenValidate Operation = "token_validate"
	OpTokenRefresh  Operation = "token_refresh"
	OpTokenRevoke   Operation = "token_revoke"
	OpTokenCleanup  Operation = "token_cleanup"

	// Credential store operations
	OpCredentialStore    Operation = "credential_store"
	OpCredentialRetrieve Operation = "credential_retrieve"
	OpCredentialUpdate   Operation = "credential_update"
	OpCredentialRotate   Operation = "credential_rotate"
	OpCredentialDelete   Operation = "credential_delete"

	// Security operations
	OpRateLimitExceeded Operation = "rate_limit_exceeded"
	OpLockout           Operation = "lockout"
	OpIntegrityFailure  Operation = "integrity_failure"
)

// EntityType identifies the kind of entity an event refers to.
type EntityType string

// Entity types.
const (
	EntitySession    EntityType = "session"
	EntityToken      EntityType = "token"
	EntityCredential EntityType = "credential"
	EntityCaller     EntityType = "caller"
)

// Actor describes the caller responsible for an audited operation.
type Actor struct {
	// ID is the caller identity (user, service account).
	ID string `json:"id,omitempty"`

	// Tenant is the tenant identifier.
	Tenant string `json:"tenant,omitempty"`

	// IPAddress is the originating IP address.
	IPAddress string `json:"ip_address,omitempty"`

	// UserAgent is the caller's user agent.
	UserAgent string `json:"user_agent,omitempty"`
}

// Event is a single append-only audit record.
type Event struct {
	// ID is a unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Operation is the audited operation.
	Operation Operation `json:"operation"`

	// EntityType is the kind of entity the operation acted on.
	EntityType EntityType `json:"entity_type,omitempty"`

	// EntityID is the id of the session, token, or credential.
	EntityID string `json:"entity_id,omitempty"`

	// Success indicates whether the operation succeeded.
	Success bool `json:"success"`

	// Reason carries the failure reason when Success is false.
	Reason string `json:"reason,omitempty"`

	// Actor is the caller responsible for the operation.
	Actor *Actor `json:"actor,omitempty"`

	// Details contains additional operation metadata. Secret material
	// must never be placed here; known-sensitive keys are redacted on
	// write as a second line of defense.
	Details map[string]interface{} `json:"details,omitempty"`

	// TraceID is the distributed-tracing trace ID, when present.
	TraceID string `json:"trace_id,omitempty"`

	// SpanID is the distributed-tracing span ID, when present.
	SpanID string `json:"span_id,omitempty"`

	// Duration is how long the operation took.
	Duration time.Duration `json:"duration,omitempty"`
}

// NewEvent creates a new audit event with default values.
func NewEvent(op Operation, entityType EntityType, entityID string, success bool) *Event {
	return &Event{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		Operation:  op,
		EntityType: entityType,
		EntityID:   entityID,
		Success:    success,
	}
}

// WithActor sets the actor.
func (e *Event) WithActor(actor *Actor) *Event {
	e.Actor = actor
	return e
}

// WithReason sets the failure reason.
func (e *Event) WithReason(reason string) *Event {
	e.Reason = reason
	return e
}

// WithDetail adds a detail entry to the event.
func (e *Event) WithDetail(key string, value interface{}) *Event {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithDuration sets the duration.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// Outcome returns the metric label for the event outcome.
func (e *Event) Outcome() string {
	if e.Success {
		return "success"
	}
	return "failure"
}
