package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/authcore/internal/audit"
	"github.com/vyrodovalexey/authcore/internal/observability"
)

// Config holds token manager configuration.
type Config struct {
	// Issuer and Audience are embedded in claim-tokens and verified
	// on validation.
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`

	// AccessTokenTTL is the lifetime of opaque access tokens.
	AccessTokenTTL time.Duration `yaml:"accessTokenTTL"`

	// RefreshTokenTTL is the lifetime of opaque refresh tokens.
	RefreshTokenTTL time.Duration `yaml:"refreshTokenTTL"`

	// ClaimTokenTTL is the lifetime of signed claim-tokens.
	ClaimTokenTTL time.Duration `yaml:"claimTokenTTL"`

	// APIKeyTTL is the lifetime of API keys. Zero means no expiry.
	APIKeyTTL time.Duration `yaml:"apiKeyTTL"`

	// MaxTokensPerClient bounds outstanding tokens per client id.
	// Zero disables the quota.
	MaxTokensPerClient int `yaml:"maxTokensPerClient"`

	// RotateOnRefresh revokes the old access token on refresh.
	RotateOnRefresh bool `yaml:"rotateOnRefresh"`

	// CleanupInterval is the period of the expired-token sweep
	// started by Start.
	CleanupInterval time.Duration `yaml:"cleanupInterval"`

	// Signing configures claim-token signing. Claim-token requests
	// fail when unset.
	Signing *SigningConfig `yaml:"signing,omitempty"`
}

// DefaultConfig returns the default token manager configuration.
func DefaultConfig() *Config {
	return &Config{
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    30 * 24 * time.Hour,
		ClaimTokenTTL:      time.Hour,
		MaxTokensPerClient: 100,
		RotateOnRefresh:    true,
		CleanupInterval:    5 * time.Minute,
	}
}

// Manager issues, validates, refreshes, and revokes tokens.
type Manager struct {
	config  *Config
	signer  *signer
	archive *Archive
	logger  observability.Logger
	auditor audit.Logger
	metrics *Metrics

	mu        sync.Mutex
	tokens    map[string]*Info  // token id -> info
	index     map[string]string // content hash -> token id
	perClient map[string]int
	closed    bool

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

// WithArchive sets the durable token archive.
func WithArchive(archive *Archive) ManagerOption {
	return func(m *Manager) {
		m.archive = archive
	}
}

// NewManager creates a token manager.
func NewManager(config *Config, opts ...ManagerOption) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}

	m := &Manager{
		config:    config,
		logger:    observability.NopLogger(),
		auditor:   audit.NewNoopLogger(),
		tokens:    make(map[string]*Info),
		index:     make(map[string]string),
		perClient: make(map[string]int),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.metrics == nil {
		m.metrics = NewMetricsWithRegisterer("authcore", nil)
	}

	if config.Signing != nil {
		s, err := newSigner(config.Signing)
		if err != nil {
			return nil, err
		}
		m.signer = s
	}

	return m, nil
}

// Generate issues a new token per the request. Access requests issue
// a linked access/refresh pair. The per-client quota is enforced
// before any token material is created.
func (m *Manager) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil || req.ClientID == "" {
		return nil, &TokenError{Op: "generate", Reason: "client id is required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	issuing := 1
	if req.Type == TypeAccess {
		issuing = 2
	}
	if limit := m.config.MaxTokensPerClient; limit > 0 && m.perClient[req.ClientID]+issuing > limit {
		m.audit(ctx, audit.OpTokenGenerate, "", false, "token quota exceeded")
		return nil, &QuotaError{ClientID: req.ClientID, Limit: limit}
	}

	now := time.Now().UTC()

	var (
		resp *Response
		err  error
	)
	switch req.Type {
	case TypeClaim:
		resp, err = m.generateClaim(req, now)
	case TypeAccess:
		resp, err = m.generatePair(req, now)
	case TypeAPIKey:
		resp, err = m.generateAPIKey(req, now)
	case TypeRefresh:
		err = fmt.Errorf("%w: refresh tokens are issued only as part of an access pair", ErrUnknownTokenType)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownTokenType, req.Type)
	}
	if err != nil {
		m.audit(ctx, audit.OpTokenGenerate, "", false, err.Error())
		return nil, err
	}

	m.audit(ctx, audit.OpTokenGenerate, resp.TokenID, true, "")
	return resp, nil
}

// generateClaim mints a signed claim-token. Caller holds the lock.
func (m *Manager) generateClaim(req *Request, now time.Time) (*Response, error) {
	if m.signer == nil {
		return nil, ErrSigningNotConfigured
	}

	info := m.newInfo(req, TypeClaim, now, m.ttl(TypeClaim, req.Lifetime))

	value, err := m.signer.sign(info)
	if err != nil {
		return nil, &TokenError{Op: "generate", TokenID: info.ID, Err: err}
	}
	info.Value = value
	info.Hash = hashValue(value)

	m.insert(info)

	return &Response{
		TokenID:     info.ID,
		AccessToken: value,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn(info, now),
		Scope:       append([]string(nil), info.Scope...),
	}, nil
}

// generatePair mints a linked opaque access/refresh pair. Caller
// holds the lock.
func (m *Manager) generatePair(req *Request, now time.Time) (*Response, error) {
	accessValue, err := newOpaque(prefixAccess)
	if err != nil {
		return nil, &TokenError{Op: "generate", Err: err}
	}
	refreshValue, err := newOpaque(prefixRefresh)
	if err != nil {
		return nil, &TokenError{Op: "generate", Err: err}
	}

	access := m.newInfo(req, TypeAccess, now, m.ttl(TypeAccess, req.Lifetime))
	access.Value = accessValue
	access.Hash = hashValue(accessValue)

	refresh := m.newInfo(req, TypeRefresh, now, m.ttl(TypeRefresh, 0))
	refresh.Value = refreshValue
	refresh.Hash = hashValue(refreshValue)

	access.RefreshTokenID = refresh.ID
	refresh.ParentTokenID = access.ID

	m.insert(access)
	m.insert(refresh)

	return &Response{
		TokenID:      access.ID,
		AccessToken:  accessValue,
		RefreshToken: refreshValue,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn(access, now),
		Scope:        append([]string(nil), access.Scope...),
	}, nil
}

// generateAPIKey mints a static API key. Caller holds the lock.
func (m *Manager) generateAPIKey(req *Request, now time.Time) (*Response, error) {
	value, err := newOpaque(prefixAPIKey)
	if err != nil {
		return nil, &TokenError{Op: "generate", Err: err}
	}

	info := m.newInfo(req, TypeAPIKey, now, m.ttl(TypeAPIKey, req.Lifetime))
	info.Value = value
	info.Hash = hashValue(value)

	m.insert(info)

	return &Response{
		TokenID:     info.ID,
		AccessToken: value,
		TokenType:   "APIKey",
		ExpiresIn:   expiresIn(info, now),
		Scope:       append([]string(nil), info.Scope...),
	}, nil
}

// Validate checks a token value and returns its metadata when valid.
// Validation fails closed: unknown, revoked, expired, or not-yet-valid
// tokens all return false. Expiry observed here is applied to the
// token state.
func (m *Manager) Validate(ctx context.Context, value string) (bool, *Info) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || value == "" {
		m.metrics.RecordValidation(false)
		return false, nil
	}

	// A single now covers every temporal check in this call.
	now := time.Now().UTC()

	id, ok := m.index[hashValue(value)]
	if !ok {
		m.metrics.RecordValidation(false)
		m.audit(ctx, audit.OpTokenValidate, "", false, "unknown token")
		return false, nil
	}
	info := m.tokens[id]

	if info.Status != StatusActive {
		m.metrics.RecordValidation(false)
		m.audit(ctx, audit.OpTokenValidate, id, false, "token not active")
		return false, nil
	}
	if info.NotBefore != nil && now.Before(*info.NotBefore) {
		m.metrics.RecordValidation(false)
		m.audit(ctx, audit.OpTokenValidate, id, false, "token not yet valid")
		return false, nil
	}
	if info.expired(now) {
		m.expire(info)
		m.metrics.RecordValidation(false)
		m.audit(ctx, audit.OpTokenValidate, id, false, "token expired")
		return false, nil
	}

	if info.Type == TypeClaim {
		if m.signer == nil {
			m.metrics.RecordValidation(false)
			m.audit(ctx, audit.OpTokenValidate, id, false, "no signing key configured")
			return false, nil
		}
		if err := m.signer.verify(value, info.Issuer, info.Audience, now); err != nil {
			m.metrics.RecordValidation(false)
			m.audit(ctx, audit.OpTokenValidate, id, false, "signature verification failed")
			return false, nil
		}
	}

	m.metrics.RecordValidation(true)
	m.audit(ctx, audit.OpTokenValidate, id, true, "")
	return true, info.clone()
}

// Refresh exchanges an active refresh token for a fresh access token.
// With rotation enabled the previous access token is revoked; the
// refresh token itself is retained and re-linked.
func (m *Manager) Refresh(ctx context.Context, refreshValue string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	now := time.Now().UTC()

	id, ok := m.index[hashValue(refreshValue)]
	if !ok {
		m.audit(ctx, audit.OpTokenRefresh, "", false, "unknown refresh token")
		return nil, &TokenError{Op: "refresh", Err: ErrNotRefreshToken}
	}
	refresh := m.tokens[id]

	if refresh.Type != TypeRefresh || refresh.Status != StatusActive {
		m.audit(ctx, audit.OpTokenRefresh, id, false, "not an active refresh token")
		return nil, &TokenError{Op: "refresh", TokenID: id, Err: ErrNotRefreshToken}
	}
	if refresh.expired(now) {
		m.expire(refresh)
		m.audit(ctx, audit.OpTokenRefresh, id, false, "refresh token expired")
		return nil, &TokenError{Op: "refresh", TokenID: id, Err: ErrNotRefreshToken}
	}

	old := m.tokens[refresh.ParentTokenID]
	if m.config.RotateOnRefresh && old != nil && old.Status == StatusActive {
		m.revoke(old)
	}

	// Without rotation the previous access token stays outstanding, so
	// the new one counts against the same per-client quota as Generate.
	if limit := m.config.MaxTokensPerClient; limit > 0 && m.perClient[refresh.ClientID]+1 > limit {
		m.audit(ctx, audit.OpTokenRefresh, id, false, "token quota exceeded")
		return nil, &QuotaError{ClientID: refresh.ClientID, Limit: limit}
	}

	accessValue, err := newOpaque(prefixAccess)
	if err != nil {
		return nil, &TokenError{Op: "refresh", TokenID: id, Err: err}
	}

	access := &Info{
		ID:             uuid.New().String(),
		Type:           TypeAccess,
		Value:          accessValue,
		Hash:           hashValue(accessValue),
		IssuedAt:       now,
		Issuer:         refresh.Issuer,
		Audience:       refresh.Audience,
		Subject:        refresh.Subject,
		ClientID:       refresh.ClientID,
		Scope:          append([]string(nil), refresh.Scope...),
		Claims:         refresh.clone().Claims,
		Status:         StatusActive,
		RefreshTokenID: refresh.ID,
	}
	if ttl := m.ttl(TypeAccess, 0); ttl > 0 {
		exp := now.Add(ttl)
		access.ExpiresAt = &exp
	}

	refresh.ParentTokenID = access.ID
	m.insert(access)
	m.persist(refresh)

	m.audit(ctx, audit.OpTokenRefresh, access.ID, true, "")

	return &Response{
		TokenID:      access.ID,
		AccessToken:  accessValue,
		RefreshToken: refreshValue,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn(access, now),
		Scope:        append([]string(nil), access.Scope...),
	}, nil
}

// Revoke marks a token and its linked pair revoked and drops them
// from the lookup index. Revoking an unknown token is a no-op.
func (m *Manager) Revoke(ctx context.Context, value string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrManagerClosed
	}

	id, ok := m.index[hashValue(value)]
	if !ok {
		return false, nil
	}
	info := m.tokens[id]

	m.revoke(info)

	// Revocation cascades across the access/refresh link.
	for _, pairID := range []string{info.RefreshTokenID, info.ParentTokenID} {
		if pairID == "" {
			continue
		}
		if pair, ok := m.tokens[pairID]; ok && pair.Status == StatusActive {
			m.revoke(pair)
		}
	}

	m.audit(ctx, audit.OpTokenRevoke, id, true, "")
	return true, nil
}

// CleanupExpired sweeps active tokens past expiry, marking them
// expired and removing them from the lookup index. It returns the
// number of tokens swept.
func (m *Manager) CleanupExpired(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0
	}

	now := time.Now().UTC()
	count := 0
	for _, info := range m.tokens {
		if info.Status == StatusActive && info.expired(now) {
			m.expire(info)
			count++
		}
	}

	if count > 0 {
		m.auditor.Log(ctx, audit.NewEvent(audit.OpTokenCleanup, audit.EntityToken, "", true).
			WithDetail("expired_count", count))
		m.logger.Debug("expired token sweep completed", observability.Int("count", count))
	}
	return count
}

// Start launches the periodic expired-token sweep. Start must be
// called at most once.
func (m *Manager) Start(ctx context.Context) {
	interval := m.config.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
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
				m.CleanupExpired(ctx)
			}
		}
	}()
}

// Stop halts the sweep and closes the manager. Subsequent operations
// fail with ErrManagerClosed.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// newInfo builds the common fields of a token record. Caller holds
// the lock.
func (m *Manager) newInfo(req *Request, tokenType Type, now time.Time, ttl time.Duration) *Info {
	subject := req.Subject
	if subject == "" {
		subject = req.UserID
	}
	if subject == "" {
		subject = req.ClientID
	}

	audience := req.Audience
	if audience == "" {
		audience = m.config.Audience
	}

	info := &Info{
		ID:       uuid.New().String(),
		Type:     tokenType,
		IssuedAt: now,
		Issuer:   m.config.Issuer,
		Audience: audience,
		Subject:  subject,
		ClientID: req.ClientID,
		Scope:    append([]string(nil), req.Scope...),
		Status:   StatusActive,
	}
	if len(req.Claims) > 0 {
		info.Claims = make(map[string]interface{}, len(req.Claims))
		for k, v := range req.Claims {
			info.Claims[k] = v
		}
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		info.ExpiresAt = &exp
	}
	return info
}

// ttl resolves the effective lifetime for a token type.
func (m *Manager) ttl(tokenType Type, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	switch tokenType {
	case TypeAccess:
		return m.config.AccessTokenTTL
	case TypeRefresh:
		return m.config.RefreshTokenTTL
	case TypeClaim:
		return m.config.ClaimTokenTTL
	case TypeAPIKey:
		return m.config.APIKeyTTL
	default:
		return 0
	}
}

// insert adds a token to the maps and archive. Caller holds the lock.
func (m *Manager) insert(info *Info) {
	m.tokens[info.ID] = info
	m.index[info.Hash] = info.ID
	m.perClient[info.ClientID]++
	m.metrics.RecordIssued(info.Type)
	m.persist(info)
}

// revoke marks a token revoked and drops it from the lookup index.
// Caller holds the lock.
func (m *Manager) revoke(info *Info) {
	info.Status = StatusRevoked
	m.remove(info)
	m.metrics.RecordRevoked()
}

// expire marks a token expired and drops it from the lookup index.
// Caller holds the lock.
func (m *Manager) expire(info *Info) {
	info.Status = StatusExpired
	m.remove(info)
	m.metrics.RecordExpired()
}

// remove drops a token from the lookup index and releases its quota
// slot, persisting the final state to the archive. Caller holds the
// lock.
func (m *Manager) remove(info *Info) {
	delete(m.index, info.Hash)
	delete(m.tokens, info.ID)
	if m.perClient[info.ClientID] > 0 {
		m.perClient[info.ClientID]--
		if m.perClient[info.ClientID] == 0 {
			delete(m.perClient, info.ClientID)
		}
	}
	m.persist(info)
}

// persist writes the token to the archive, best-effort.
func (m *Manager) persist(info *Info) {
	if m.archive == nil {
		return
	}
	if err := m.archive.Put(info); err != nil {
		m.logger.Warn("failed to archive token",
			observability.String("token_id", info.ID),
			observability.Error(err),
		)
	}
}

// audit emits a token lifecycle audit event, best-effort.
func (m *Manager) audit(ctx context.Context, op audit.Operation, tokenID string, success bool, reason string) {
	event := audit.NewEvent(op, audit.EntityToken, tokenID, success)
	if reason != "" {
		event.WithReason(reason)
	}
	m.auditor.Log(ctx, event)
}

// expiresIn returns the whole seconds until expiry, or zero for
// non-expiring tokens.
func expiresIn(info *Info, now time.Time) int64 {
	if info.ExpiresAt == nil {
		return 0
	}
	return int64(info.ExpiresAt.Sub(now).Seconds())
}
