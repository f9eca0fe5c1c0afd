package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/authcore/internal/auth"
)

func erpCreds(serviceID string) *auth.Credentials {
	return &auth.Credentials{
		Type:      auth.AuthTypePassword,
		ServiceID: serviceID,
		Username:  "svc-user",
		Password:  "svc-pass",
	}
}

func TestERP_Authenticate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req erpLoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Username != "svc-user" || req.Password != "svc-pass" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_credentials"})
			return
		}

		_ = json.NewEncoder(w).Encode(erpTokenResponse{
			AccessToken:  "erp-at",
			RefreshToken: "erp-rt",
			ExpiresIn:    900,
			Scope:        []string{"orders:read"},
		})
	}))
	t.Cleanup(server.Close)

	p, err := NewERP(&ERPConfig{BaseURL: server.URL, Services: []string{"erp"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "erp", p.ID())
	assert.Equal(t, auth.AuthTypePassword, p.AuthType())
	assert.True(t, p.SupportsService("erp"))
	assert.False(t, p.SupportsService("other"))

	sess, err := p.Authenticate(context.Background(), erpCreds("erp"), nil)
	require.NoError(t, err)
	assert.Equal(t, "erp-at", sess.AccessToken)
	assert.Equal(t, "erp-rt", sess.RefreshToken)
	assert.Equal(t, []string{"orders:read"}, sess.Scopes)
	require.NotNil(t, sess.ExpiresAt)

	// A backend rejection is an authentication failure, not a
	// connection failure.
	bad := erpCreds("erp")
	bad.Password = "wrong"
	_, err = p.Authenticate(context.Background(), bad, nil)
	require.Error(t, err)
	assert.True(t, auth.IsAuthenticationError(err))
	assert.Contains(t, err.Error(), "invalid_credentials")
}

func TestERP_AuthenticateServerErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	p, err := NewERP(&ERPConfig{BaseURL: server.URL}, nil)
	require.NoError(t, err)

	_, err = p.Authenticate(context.Background(), erpCreds("erp"), nil)
	require.Error(t, err)
	assert.True(t, auth.IsConnectionError(err))
}

func TestERP_AuthenticateTransportFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	p, err := NewERP(&ERPConfig{BaseURL: server.URL}, nil)
	require.NoError(t, err)

	_, err = p.Authenticate(context.Background(), erpCreds("erp"), nil)
	require.Error(t, err)
	assert.True(t, auth.IsConnectionError(err))
}

func TestERP_AuthenticateWrongCredentialType(t *testing.T) {
	t.Parallel()

	p, err := NewERP(&ERPConfig{BaseURL: "http://unused.invalid"}, nil)
	require.NoError(t, err)

	_, err = p.Authenticate(context.Background(), &auth.Credentials{
		Type:      auth.AuthTypeAPIKey,
		ServiceID: "erp",
		APIKey:    "k",
	}, nil)
	require.Error(t, err)
	assert.True(t, auth.IsAuthenticationError(err))
}

func TestERP_APIKeyMode(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req erpLoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.APIKey != "top-secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_ = json.NewEncoder(w).Encode(erpTokenResponse{AccessToken: "erp-at", ExpiresIn: 300})
	}))
	t.Cleanup(server.Close)

	p, err := NewERP(&ERPConfig{
		Name:     "erp-apikey",
		BaseURL:  server.URL,
		AuthType: auth.AuthTypeAPIKey,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, auth.AuthTypeAPIKey, p.AuthType())

	sess, err := p.Authenticate(context.Background(), &auth.Credentials{
		Type:      auth.AuthTypeAPIKey,
		ServiceID: "erp",
		APIKey:    "top-secret",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "erp-at", sess.AccessToken)
}

func TestERP_LocalUserSkipsBackend(t *testing.T) {
	t.Parallel()

	var backendCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendCalls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	hash, err := HashServicePassword("svc-pass")
	require.NoError(t, err)

	p, err := NewERP(&ERPConfig{
		BaseURL:    server.URL,
		LocalUsers: map[string]string{"svc-user": hash},
	}, nil)
	require.NoError(t, err)

	sess, err := p.Authenticate(context.Background(), erpCreds("erp"), nil)
	require.NoError(t, err)
	assert.Equal(t, "true", sess.Metadata["local"])
	assert.Equal(t, int32(0), backendCalls.Load())

	bad := erpCreds("erp")
	bad.Password = "wrong"
	_, err = p.Authenticate(context.Background(), bad, nil)
	require.Error(t, err)
	assert.True(t, auth.IsAuthenticationError(err))
	assert.Equal(t, int32(0), backendCalls.Load())
}

func TestERP_TokenLifecycle(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/validate":
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			_ = json.NewEncoder(w).Encode(map[string]bool{"valid": req["token"] == "erp-at"})
		case "/auth/refresh":
			_ = json.NewEncoder(w).Encode(erpTokenResponse{AccessToken: "erp-at-2", RefreshToken: "erp-rt-2"})
		case "/auth/logout":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	p, err := NewERP(&ERPConfig{BaseURL: server.URL}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	valid, err := p.ValidateToken(ctx, "erp-at", nil)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = p.ValidateToken(ctx, "stale", nil)
	require.NoError(t, err)
	assert.False(t, valid)

	sess, err := p.RefreshToken(ctx, "erp-rt", nil)
	require.NoError(t, err)
	assert.Equal(t, "erp-at-2", sess.AccessToken)

	revoked, err := p.RevokeToken(ctx, "erp-at", nil)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestNewERP_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewERP(nil, nil)
	assert.True(t, auth.IsConfigurationError(err))

	_, err = NewERP(&ERPConfig{}, nil)
	assert.True(t, auth.IsConfigurationError(err))

	_, err = NewERP(&ERPConfig{BaseURL: "http://x", AuthType: auth.AuthTypeCertificate}, nil)
	assert.True(t, auth.IsConfigurationError(err))
}
