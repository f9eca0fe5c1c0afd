package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/vyrodovalexey/authcore/internal/audit"
	"github.com/vyrodovalexey/authcore/internal/breaker"
	"github.com/vyrodovalexey/authcore/internal/credstore"
	"github.com/vyrodovalexey/authcore/internal/observability"
	"github.com/vyrodovalexey/authcore/internal/ratelimit"
	"github.com/vyrodovalexey/authcore/internal/token"
)

// Sentinel errors for session operations.
var (
	// ErrClosed is returned after the manager is stopped.
	ErrClosed = errors.New("authentication manager is closed")

	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoRefreshToken is returned when a session cannot be
	// refreshed because the provider issued no refresh token.
	ErrNoRefreshToken = errors.New("session has no refresh token")
)

// CredentialStore is the slice of the credential store the manager
// needs for resolving and storing service credentials.
type CredentialStore interface {
	Store(ctx context.Context, id string, ctype credstore.CredentialType, serviceID string, payload []byte, meta *credstore.Metadata) error
	Retrieve(ctx context.Context, id string, decrypt bool) ([]byte, error)
}

// TokenIssuer is the slice of the token manager used to mint and
// revoke internal tokens bound to sessions.
type TokenIssuer interface {
	Generate(ctx context.Context, req *token.Request) (*token.Response, error)
	Revoke(ctx context.Context, value string) (bool, error)
}

// Config holds authentication manager configuration.
type Config struct {
	// SessionTTL is the default session lifetime applied when a
	// provider does not set an expiry.
	SessionTTL time.Duration `yaml:"sessionTTL"`

	// IdleTimeout expires sessions unused for this long. Zero
	// disables idle expiry.
	IdleTimeout time.Duration `yaml:"idleTimeout"`

	// CleanupInterval is the period of the session sweep started by
	// Start.
	CleanupInterval time.Duration `yaml:"cleanupInterval"`

	// MaxConcurrentAuth caps simultaneous outbound provider calls.
	// Zero disables the admission limiter.
	MaxConcurrentAuth int64 `yaml:"maxConcurrentAuth"`
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() *Config {
	return &Config{
		SessionTTL:        time.Hour,
		IdleTimeout:       30 * time.Minute,
		CleanupInterval:   time.Minute,
		MaxConcurrentAuth: 32,
	}
}

// inflightCall deduplicates concurrent authentications for one cache
// key. Waiters block on done and share the single result.
type inflightCall struct {
	done    chan struct{}
	session *Session
	err     error
}

// Manager authenticates callers against registered providers and
// caches the resulting sessions.
type Manager struct {
	config      *Config
	registry    *registry
	limiter     ratelimit.Limiter
	limitKeyBy  ratelimit.KeyBy
	credentials CredentialStore
	tokens      TokenIssuer
	breakers    *breaker.Registry
	sem         *semaphore.Weighted
	logger      observability.Logger
	auditor     audit.Logger
	metrics     *Metrics

	mu       sync.Mutex
	sessions map[string]*Session
	byKey    map[string]string
	inflight map[string]*inflightCall
	closed   bool

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// ManagerOption is a functional option for the manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(auditor audit.Logger) ManagerOption {
	return func(m *Manager) {
		m.auditor = auditor
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithRateLimiter sets the rate limiter applied before any other
// work.
func WithRateLimiter(limiter ratelimit.Limiter) ManagerOption {
	return func(m *Manager) {
		m.limiter = limiter
	}
}

// WithRateLimitKey selects the attribute rate limit windows are keyed
// by. Defaults to the caller identity.
func WithRateLimitKey(by ratelimit.KeyBy) ManagerOption {
	return func(m *Manager) {
		m.limitKeyBy = by
	}
}

// SetRateLimiter replaces the rate limiter and key strategy. A nil
// limiter disables rate limiting. Safe to call while the manager is
// serving.
func (m *Manager) SetRateLimiter(limiter ratelimit.Limiter, by ratelimit.KeyBy) {
	m.mu.Lock()
	m.limiter = limiter
	m.limitKeyBy = by
	m.mu.Unlock()
}

// WithCredentialStore sets the store used to resolve credentials not
// supplied by the caller.
func WithCredentialStore(store CredentialStore) ManagerOption {
	return func(m *Manager) {
		m.credentials = store
	}
}

// WithTokenManager sets the issuer used to mint an internal
// access/refresh pair onto each session after provider success. Nil
// leaves sessions carrying provider tokens only.
func WithTokenManager(tokens TokenIssuer) ManagerOption {
	return func(m *Manager) {
		m.tokens = tokens
	}
}

// WithBreakers sets the circuit breaker registry guarding provider
// calls.
func WithBreakers(breakers *breaker.Registry) ManagerOption {
	return func(m *Manager) {
		m.breakers = breakers
	}
}

// NewManager creates an authentication manager.
func NewManager(config *Config, opts ...ManagerOption) *Manager {
	if config == nil {
		config = DefaultConfig()
	}

	m := &Manager{
		config:   config,
		registry: newRegistry(),
		logger:   observability.NopLogger(),
		auditor:  audit.NewNoopLogger(),
		sessions: make(map[string]*Session),
		byKey:    make(map[string]string),
		inflight: make(map[string]*inflightCall),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.metrics == nil {
		m.metrics = NewMetricsWithRegisterer("authcore", nil)
	}
	if m.breakers == nil {
		m.breakers = breaker.NewRegistry(breaker.DefaultConfig(), m.logger)
	}
	if config.MaxConcurrentAuth > 0 {
		m.sem = semaphore.NewWeighted(config.MaxConcurrentAuth)
	}

	return m
}

// RegisterProvider registers a provider. Registration is an
// idempotent upsert; registering a provider id under a conflicting
// auth type fails with *ConfigurationError.
func (m *Manager) RegisterProvider(p Provider) error {
	return m.registry.register(p)
}

// cacheKey identifies the session cache slot for a service and auth
// type.
func cacheKey(serviceID string, authType AuthType) string {
	return serviceID + "|" + string(authType)
}

// credentialID is the credential store id for a service and auth
// type.
func credentialID(serviceID string, authType AuthType) string {
	return serviceID + "." + string(authType)
}

// Authenticate authenticates against the service. A cached valid
// session for the same (service, auth type) is returned without a
// provider call; concurrent calls for one key share a single provider
// call.
func (m *Manager) Authenticate(ctx context.Context, serviceID string, authType AuthType, creds *Credentials, actx *Context) (*Session, error) {
	if serviceID == "" {
		return nil, &ConfigurationError{Component: "manager", Reason: "service identifier is required"}
	}
	actx = actx.orEmpty()

	if err := m.checkRateLimit(ctx, serviceID, actx); err != nil {
		return nil, err
	}

	key := cacheKey(serviceID, authType)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	// Reuse a valid cached session without touching the provider.
	now := time.Now().UTC()
	if sid, ok := m.byKey[key]; ok {
		if sess := m.sessions[sid]; sess.IsValid(now, m.config.IdleTimeout) {
			sess.LastUsed = now
			out := sess.clone()
			m.mu.Unlock()
			m.metrics.RecordSessionReuse()
			m.auditSession(ctx, audit.OpSessionReuse, out.ID, actx, true, "")
			return out, nil
		}
		m.evictLocked(sid)
	}

	// Join an in-flight authentication for the same key.
	if call, ok := m.inflight[key]; ok {
		m.mu.Unlock()
		select {
		case <-call.done:
			if call.err != nil {
				return nil, call.err
			}
			return call.session.clone(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	call := &inflightCall{done: make(chan struct{})}
	m.inflight[key] = call
	m.mu.Unlock()

	session, err := m.doAuthenticate(ctx, serviceID, authType, creds, actx)

	m.mu.Lock()
	delete(m.inflight, key)
	if err == nil && !m.closed {
		m.sessions[session.ID] = session
		m.byKey[key] = session.ID
		m.metrics.SetActiveSessions(len(m.sessions))
	}
	call.session = session
	call.err = err
	m.mu.Unlock()
	close(call.done)

	m.metrics.RecordAttempt(serviceID, err == nil)
	if err != nil {
		m.auditSession(ctx, audit.OpAuthenticate, "", actx, false, err.Error())
		return nil, err
	}
	m.auditSession(ctx, audit.OpAuthenticate, session.ID, actx, true, "")
	return session.clone(), nil
}

// checkRateLimit applies the rate limiter keyed by the configured
// caller attribute.
func (m *Manager) checkRateLimit(ctx context.Context, serviceID string, actx *Context) error {
	m.mu.Lock()
	limiter, by := m.limiter, m.limitKeyBy
	m.mu.Unlock()
	if limiter == nil {
		return nil
	}
	if by == "" {
		by = ratelimit.KeyByCaller
	}

	key := ratelimit.Key(by, actx.CallerID, actx.IPAddress, serviceID)
	result, err := limiter.Allow(ctx, key)
	if err != nil {
		// A broken limiter store must not take authentication down.
		m.logger.Warn("rate limiter check failed", observability.Error(err))
		return nil
	}
	if result.Allowed {
		return nil
	}

	m.metrics.RecordRateLimited()
	m.auditor.Log(ctx, audit.NewEvent(audit.OpRateLimitExceeded, audit.EntityCaller, key, false).
		WithActor(actx.actor()).
		WithDetail("retry_after", result.RetryAfter.String()))
	return &RateLimitError{Key: key, RetryAfter: result.RetryAfter}
}

// doAuthenticate resolves credentials, selects a provider, and
// performs the provider call under the admission limiter and the
// provider's circuit breaker.
func (m *Manager) doAuthenticate(ctx context.Context, serviceID string, authType AuthType, creds *Credentials, actx *Context) (*Session, error) {
	creds, err := m.resolveCredentials(ctx, serviceID, authType, creds)
	if err != nil {
		return nil, err
	}

	provider := m.registry.selectProvider(serviceID, authType)
	if provider == nil {
		return nil, &ConfigurationError{
			Component: "manager",
			Reason:    fmt.Sprintf("no provider registered for auth type %q", authType),
		}
	}

	if m.sem != nil {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			return nil, &ConnectionError{Provider: provider.ID(), Reason: "admission wait cancelled", Err: err}
		}
		defer m.sem.Release(1)
	}

	var session *Session
	start := time.Now()
	err = m.breakers.GetOrCreate(provider.ID()).Execute(ctx, func(ctx context.Context) error {
		var perr error
		session, perr = provider.Authenticate(ctx, creds, actx)
		return perr
	})
	m.metrics.RecordProviderCall(provider.ID(), time.Since(start))

	if errors.Is(err, breaker.ErrOpen) {
		return nil, &ConnectionError{Provider: provider.ID(), Reason: "circuit breaker open"}
	}
	if err != nil {
		return nil, err
	}

	m.normalizeSession(session, serviceID, authType)

	if m.tokens != nil {
		if err := m.mintInternalTokens(ctx, session, actx); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// mintInternalTokens issues an internal access/refresh pair bound to
// the session. A minting failure fails the authentication so the
// per-client token quota holds.
func (m *Manager) mintInternalTokens(ctx context.Context, session *Session, actx *Context) error {
	resp, err := m.tokens.Generate(ctx, &token.Request{
		Type:     token.TypeAccess,
		ClientID: session.ServiceID,
		UserID:   actx.CallerID,
		Scope:    append([]string(nil), session.Scopes...),
		Claims: map[string]interface{}{
			"session_id": session.ID,
			"auth_type":  string(session.AuthType),
		},
	})
	if err != nil {
		return fmt.Errorf("minting internal tokens for session %s: %w", session.ID, err)
	}
	session.InternalAccessToken = resp.AccessToken
	session.InternalRefreshToken = resp.RefreshToken
	return nil
}

// resolveCredentials uses caller-supplied credentials or falls back
// to the credential store.
func (m *Manager) resolveCredentials(ctx context.Context, serviceID string, authType AuthType, creds *Credentials) (*Credentials, error) {
	if creds == nil {
		if m.credentials == nil {
			return nil, &AuthenticationError{
				ServiceID: serviceID,
				Reason:    "no credentials supplied and no credential store configured",
			}
		}

		payload, err := m.credentials.Retrieve(ctx, credentialID(serviceID, authType), true)
		if err != nil {
			return nil, &AuthenticationError{
				ServiceID: serviceID,
				Reason:    "no stored credentials",
				Err:       err,
			}
		}

		creds = &Credentials{}
		if err := json.Unmarshal(payload, creds); err != nil {
			return nil, &AuthenticationError{
				ServiceID: serviceID,
				Reason:    "stored credentials are malformed",
				Err:       err,
			}
		}
	}

	if err := creds.Validate(); err != nil {
		return nil, &AuthenticationError{ServiceID: serviceID, Reason: "invalid credentials", Err: err}
	}
	return creds, nil
}

// normalizeSession fills the fields the manager owns on a
// provider-issued session.
func (m *Manager) normalizeSession(session *Session, serviceID string, authType AuthType) {
	now := time.Now().UTC()
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	session.Status = SessionAuthenticated
	session.ServiceID = serviceID
	session.AuthType = authType
	if session.IssuedAt.IsZero() {
		session.IssuedAt = now
	}
	session.LastUsed = now
	if session.ExpiresAt == nil && m.config.SessionTTL > 0 {
		exp := now.Add(m.config.SessionTTL)
		session.ExpiresAt = &exp
	}
}

// ValidateSession reports whether the session is usable, refreshing
// its last-used timestamp when it is. Invalid sessions are evicted.
func (m *Manager) ValidateSession(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	sess, ok := m.sessions[sessionID]
	if !ok {
		return false
	}

	now := time.Now().UTC()
	if !sess.IsValid(now, m.config.IdleTimeout) {
		m.evictLocked(sessionID)
		return false
	}

	sess.LastUsed = now
	return true
}

// RefreshSession exchanges the session's refresh token for a new
// session through the owning provider and replaces the cached entry
// atomically.
func (m *Manager) RefreshSession(ctx context.Context, sessionID string, actx *Context) (*Session, error) {
	actx = actx.orEmpty()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if sess.RefreshToken == "" {
		m.mu.Unlock()
		return nil, ErrNoRefreshToken
	}
	serviceID, authType, refreshToken := sess.ServiceID, sess.AuthType, sess.RefreshToken
	internalAccess, internalRefresh := sess.InternalAccessToken, sess.InternalRefreshToken
	m.mu.Unlock()

	provider := m.registry.selectProvider(serviceID, authType)
	if provider == nil {
		return nil, &ConfigurationError{
			Component: "manager",
			Reason:    fmt.Sprintf("no provider registered for auth type %q", authType),
		}
	}

	var next *Session
	err := m.breakers.GetOrCreate(provider.ID()).Execute(ctx, func(ctx context.Context) error {
		var perr error
		next, perr = provider.RefreshToken(ctx, refreshToken, actx)
		return perr
	})
	if errors.Is(err, breaker.ErrOpen) {
		err = &ConnectionError{Provider: provider.ID(), Reason: "circuit breaker open"}
	}
	if err != nil {
		m.auditSession(ctx, audit.OpSessionRefresh, sessionID, actx, false, err.Error())
		return nil, err
	}

	m.normalizeSession(next, serviceID, authType)

	// The provider refresh replaces provider tokens only; the
	// internal pair stays bound to the continuing session.
	next.InternalAccessToken = internalAccess
	next.InternalRefreshToken = internalRefresh

	m.mu.Lock()
	m.evictLocked(sessionID)
	if !m.closed {
		m.sessions[next.ID] = next
		m.byKey[cacheKey(serviceID, authType)] = next.ID
		m.metrics.SetActiveSessions(len(m.sessions))
	}
	out := next.clone()
	m.mu.Unlock()

	m.auditSession(ctx, audit.OpSessionRefresh, out.ID, actx, true, "")
	return out, nil
}

// RevokeSession revokes the session's token with the provider,
// best-effort, and evicts it from the cache. Revoking an unknown
// session returns false.
func (m *Manager) RevokeSession(ctx context.Context, sessionID string, actx *Context) bool {
	actx = actx.orEmpty()

	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	serviceID, authType, accessToken := sess.ServiceID, sess.AuthType, sess.AccessToken
	internalToken := sess.InternalAccessToken
	sess.Status = SessionRevoked
	m.evictLocked(sessionID)
	m.metrics.SetActiveSessions(len(m.sessions))
	m.mu.Unlock()

	// Internal token revocation cascades to the linked refresh token.
	if internalToken != "" && m.tokens != nil {
		if _, err := m.tokens.Revoke(ctx, internalToken); err != nil {
			m.logger.Warn("internal token revocation failed",
				observability.String("session_id", sessionID),
				observability.Error(err),
			)
		}
	}

	if accessToken != "" {
		if provider := m.registry.selectProvider(serviceID, authType); provider != nil {
			if _, err := provider.RevokeToken(ctx, accessToken, actx); err != nil {
				m.logger.Warn("provider token revocation failed",
					observability.String("session_id", sessionID),
					observability.Error(err),
				)
			}
		}
	}

	m.auditSession(ctx, audit.OpSessionRevoke, sessionID, actx, true, "")
	return true
}

// StoreCredentials encrypts and stores service credentials for later
// resolution by Authenticate.
func (m *Manager) StoreCredentials(ctx context.Context, creds *Credentials) error {
	if m.credentials == nil {
		return &ConfigurationError{Component: "manager", Reason: "no credential store configured"}
	}
	if err := creds.Validate(); err != nil {
		return &ConfigurationError{Component: "manager", Reason: "invalid credentials", Err: err}
	}

	payload, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	return m.credentials.Store(
		ctx,
		credentialID(creds.ServiceID, creds.Type),
		credentialType(creds.Type),
		creds.ServiceID,
		payload,
		nil,
	)
}

// credentialType maps an auth type onto the store's credential type.
func credentialType(authType AuthType) credstore.CredentialType {
	switch authType {
	case AuthTypePassword:
		return credstore.TypePassword
	case AuthTypeAPIKey:
		return credstore.TypeAPIKey
	case AuthTypeBearerToken:
		return credstore.TypeBearerToken
	case AuthTypeCertificate:
		return credstore.TypeCertificate
	case AuthTypeOAuth2:
		return credstore.TypeOAuthClient
	default:
		return credstore.CredentialType(authType)
	}
}

// ListActiveSessions returns token-free summaries of currently valid
// sessions, optionally filtered by service and auth type.
func (m *Manager) ListActiveSessions(serviceID string, authType AuthType) []*Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	summaries := make([]*Summary, 0, len(m.sessions))
	for _, sess := range m.sessions {
		if serviceID != "" && sess.ServiceID != serviceID {
			continue
		}
		if authType != "" && sess.AuthType != authType {
			continue
		}
		if !sess.IsValid(now, m.config.IdleTimeout) {
			continue
		}
		summaries = append(summaries, sess.summary())
	}
	return summaries
}

// evictLocked removes a session from both maps. Caller holds the
// lock.
func (m *Manager) evictLocked(sessionID string) {
	sess, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	delete(m.sessions, sessionID)

	key := cacheKey(sess.ServiceID, sess.AuthType)
	if m.byKey[key] == sessionID {
		delete(m.byKey, key)
	}
}

// auditSession emits a session lifecycle audit event, best-effort.
func (m *Manager) auditSession(ctx context.Context, op audit.Operation, sessionID string, actx *Context, success bool, reason string) {
	event := audit.NewEvent(op, audit.EntitySession, sessionID, success).WithActor(actx.actor())
	if reason != "" {
		event.WithReason(reason)
	}
	m.auditor.Log(ctx, event)
}
