package auth

import (
	"context"
	"sync"
)

// Provider is the contract implemented once per authentication
// backend and consumed by the manager.
type Provider interface {
	// ID returns the stable provider identifier.
	ID() string

	// AuthType returns the authentication mechanism this provider
	// implements.
	AuthType() AuthType

	// SupportsService reports whether the provider serves the given
	// service identifier.
	SupportsService(serviceID string) bool

	// Authenticate performs the backend authentication call.
	Authenticate(ctx context.Context, creds *Credentials, actx *Context) (*Session, error)

	// ValidateToken checks a token with the backend.
	ValidateToken(ctx context.Context, token string, actx *Context) (bool, error)

	// RefreshToken exchanges a refresh token for a new session.
	RefreshToken(ctx context.Context, refreshToken string, actx *Context) (*Session, error)

	// RevokeToken invalidates a token with the backend.
	RevokeToken(ctx context.Context, token string, actx *Context) (bool, error)
}

// registryKey identifies a provider registration.
type registryKey struct {
	providerID string
	authType   AuthType
}

// registry holds registered providers. Registration is an idempotent
// upsert keyed by (provider id, auth type); re-registering the same
// provider id with a different auth type is a conflict.
type registry struct {
	mu        sync.RWMutex
	providers map[registryKey]Provider

	// order preserves registration order for fallback selection.
	order []registryKey
}

func newRegistry() *registry {
	return &registry{
		providers: make(map[registryKey]Provider),
	}
}

// register upserts a provider.
func (r *registry) register(p Provider) error {
	if p == nil || p.ID() == "" {
		return &ConfigurationError{Component: "provider registry", Reason: "provider id is required"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{providerID: p.ID(), authType: p.AuthType()}

	// One auth type per provider id.
	for existing := range r.providers {
		if existing.providerID == key.providerID && existing.authType != key.authType {
			return &ConfigurationError{
				Component: "provider registry",
				Reason: "provider " + key.providerID + " already registered with auth type " +
					string(existing.authType),
			}
		}
	}

	if _, ok := r.providers[key]; !ok {
		r.order = append(r.order, key)
	}
	r.providers[key] = p
	return nil
}

// selectProvider picks the provider for a (service id, auth type)
// pair. A provider that explicitly supports the service wins; failing
// that, the first registered provider of the auth type is used.
func (r *registry) selectProvider(serviceID string, authType AuthType) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var fallback Provider
	for _, key := range r.order {
		if key.authType != authType {
			continue
		}
		p := r.providers[key]
		if p.SupportsService(serviceID) {
			return p
		}
		if fallback == nil {
			fallback = p
		}
	}
	return fallback
}
