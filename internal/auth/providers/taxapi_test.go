package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/authcore/internal/auth"
)

func taxCreds() *auth.Credentials {
	return &auth.Credentials{
		Type:         auth.AuthTypeOAuth2,
		ServiceID:    "tax",
		ClientID:     "client-1",
		ClientSecret: "s3cret",
	}
}

func newTaxServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		switch r.URL.Path {
		case "/oauth/token":
			switch r.PostForm.Get("grant_type") {
			case "client_credentials":
				if r.PostForm.Get("client_id") != "client-1" || r.PostForm.Get("client_secret") != "s3cret" {
					w.WriteHeader(http.StatusUnauthorized)
					_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client"})
					return
				}
				_ = json.NewEncoder(w).Encode(oauthTokenResponse{
					AccessToken:  "tax-at",
					RefreshToken: "tax-rt",
					TokenType:    "Bearer",
					ExpiresIn:    3600,
					Scope:        "filings:read filings:write",
				})
			case "refresh_token":
				if r.PostForm.Get("refresh_token") != "tax-rt" {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				_ = json.NewEncoder(w).Encode(oauthTokenResponse{
					AccessToken: "tax-at-2",
					TokenType:   "Bearer",
					ExpiresIn:   3600,
				})
			default:
				w.WriteHeader(http.StatusBadRequest)
			}
		case "/oauth/introspect":
			_ = json.NewEncoder(w).Encode(map[string]bool{"active": r.PostForm.Get("token") == "tax-at"})
		case "/oauth/revoke":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("{}"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTaxProvider(t *testing.T) *TaxAPIProvider {
	t.Helper()

	server := newTaxServer(t)
	p, err := NewTaxAPI(&TaxAPIConfig{
		TokenURL:      server.URL + "/oauth/token",
		IntrospectURL: server.URL + "/oauth/introspect",
		RevokeURL:     server.URL + "/oauth/revoke",
		Services:      []string{"tax"},
		Scopes:        []string{"filings:read"},
	}, nil)
	require.NoError(t, err)
	return p
}

func TestTaxAPI_Authenticate(t *testing.T) {
	t.Parallel()

	p := newTaxProvider(t)
	assert.Equal(t, "taxapi", p.ID())
	assert.Equal(t, auth.AuthTypeOAuth2, p.AuthType())
	assert.True(t, p.SupportsService("tax"))

	sess, err := p.Authenticate(context.Background(), taxCreds(), nil)
	require.NoError(t, err)
	assert.Equal(t, "tax-at", sess.AccessToken)
	assert.Equal(t, "tax-rt", sess.RefreshToken)
	assert.Equal(t, []string{"filings:read", "filings:write"}, sess.Scopes)
	assert.Equal(t, "Bearer", sess.Metadata["token_type"])
	require.NotNil(t, sess.ExpiresAt)
}

func TestTaxAPI_AuthenticateRejected(t *testing.T) {
	t.Parallel()

	p := newTaxProvider(t)

	bad := taxCreds()
	bad.ClientSecret = "wrong"
	_, err := p.Authenticate(context.Background(), bad, nil)
	require.Error(t, err)
	assert.True(t, auth.IsAuthenticationError(err))

	_, err = p.Authenticate(context.Background(), &auth.Credentials{
		Type:      auth.AuthTypePassword,
		ServiceID: "tax",
		Username:  "u",
		Password:  "p",
	}, nil)
	require.Error(t, err)
	assert.True(t, auth.IsAuthenticationError(err))
}

func TestTaxAPI_TokenLifecycle(t *testing.T) {
	t.Parallel()

	p := newTaxProvider(t)
	ctx := context.Background()

	active, err := p.ValidateToken(ctx, "tax-at", nil)
	require.NoError(t, err)
	assert.True(t, active)

	active, err = p.ValidateToken(ctx, "stale", nil)
	require.NoError(t, err)
	assert.False(t, active)

	sess, err := p.RefreshToken(ctx, "tax-rt", nil)
	require.NoError(t, err)
	assert.Equal(t, "tax-at-2", sess.AccessToken)

	_, err = p.RefreshToken(ctx, "bogus", nil)
	require.Error(t, err)
	assert.True(t, auth.IsAuthenticationError(err))

	revoked, err := p.RevokeToken(ctx, "tax-at", nil)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestNewTaxAPI_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewTaxAPI(nil, nil)
	assert.True(t, auth.IsConfigurationError(err))

	_, err = NewTaxAPI(&TaxAPIConfig{}, nil)
	assert.True(t, auth.IsConfigurationError(err))
}
