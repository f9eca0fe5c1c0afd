package providers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vyrodovalexey/authcore/internal/auth"
	"github.com/vyrodovalexey/authcore/internal/observability"
)

// TaxAPIConfig configures the tax API provider.
type TaxAPIConfig struct {
	// Name is the provider id. Defaults to "taxapi".
	Name string `yaml:"name"`

	// TokenURL is the OAuth2 token endpoint.
	TokenURL string `yaml:"tokenURL"`

	// IntrospectURL is the token introspection endpoint.
	IntrospectURL string `yaml:"introspectURL"`

	// RevokeURL is the token revocation endpoint. Optional.
	RevokeURL string `yaml:"revokeURL"`

	// Services lists the service identifiers this instance serves.
	Services []string `yaml:"services"`

	// Scopes are requested on every token grant.
	Scopes []string `yaml:"scopes"`

	// Timeout bounds each backend call.
	Timeout time.Duration `yaml:"timeout"`
}

// TaxAPIProvider authenticates with an OAuth2 client-credentials
// grant against the tax authority's token endpoint.
type TaxAPIProvider struct {
	name     string
	config   *TaxAPIConfig
	services map[string]bool
	client   *http.Client
	logger   observability.Logger
}

var _ auth.Provider = (*TaxAPIProvider)(nil)

// NewTaxAPI creates a tax API provider.
func NewTaxAPI(config *TaxAPIConfig, logger observability.Logger) (*TaxAPIProvider, error) {
	if config == nil || config.TokenURL == "" {
		return nil, &auth.ConfigurationError{Component: "taxapi provider", Reason: "token URL is required"}
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	name := config.Name
	if name == "" {
		name = "taxapi"
	}

	return &TaxAPIProvider{
		name:     name,
		config:   config,
		services: serviceSet(config.Services),
		client:   newHTTPClient(config.Timeout),
		logger:   logger,
	}, nil
}

// ID returns the provider id.
func (p *TaxAPIProvider) ID() string {
	return p.name
}

// AuthType returns oauth2.
func (p *TaxAPIProvider) AuthType() auth.AuthType {
	return auth.AuthTypeOAuth2
}

// SupportsService reports whether this instance serves the service.
func (p *TaxAPIProvider) SupportsService(serviceID string) bool {
	return p.services[serviceID]
}

type oauthTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
}

// Authenticate performs a client-credentials grant.
func (p *TaxAPIProvider) Authenticate(ctx context.Context, creds *auth.Credentials, actx *auth.Context) (*auth.Session, error) {
	if creds == nil || creds.Type != auth.AuthTypeOAuth2 {
		return nil, &auth.AuthenticationError{
			ServiceID: serviceOf(creds),
			Reason:    "taxapi provider requires oauth2 client credentials",
		}
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)
	if len(p.config.Scopes) > 0 {
		form.Set("scope", strings.Join(p.config.Scopes, " "))
	}

	var resp oauthTokenResponse
	if err := postForm(ctx, p.client, p.name, p.config.TokenURL, form, &resp); err != nil {
		return nil, err
	}
	return p.session(&resp), nil
}

// ValidateToken introspects the token.
func (p *TaxAPIProvider) ValidateToken(ctx context.Context, token string, actx *auth.Context) (bool, error) {
	if p.config.IntrospectURL == "" {
		return false, &auth.ConfigurationError{Component: "taxapi provider", Reason: "no introspection endpoint configured"}
	}

	form := url.Values{}
	form.Set("token", token)

	var resp struct {
		Active bool `json:"active"`
	}
	err := postForm(ctx, p.client, p.name, p.config.IntrospectURL, form, &resp)
	if err != nil {
		if auth.IsAuthenticationError(err) {
			return false, nil
		}
		return false, err
	}
	return resp.Active, nil
}

// RefreshToken performs a refresh-token grant.
func (p *TaxAPIProvider) RefreshToken(ctx context.Context, refreshToken string, actx *auth.Context) (*auth.Session, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	var resp oauthTokenResponse
	if err := postForm(ctx, p.client, p.name, p.config.TokenURL, form, &resp); err != nil {
		return nil, err
	}
	return p.session(&resp), nil
}

// RevokeToken revokes the token when a revocation endpoint is
// configured; otherwise revocation is a local no-op.
func (p *TaxAPIProvider) RevokeToken(ctx context.Context, token string, actx *auth.Context) (bool, error) {
	if p.config.RevokeURL == "" {
		return true, nil
	}

	form := url.Values{}
	form.Set("token", token)

	err := postForm(ctx, p.client, p.name, p.config.RevokeURL, form, nil)
	if err != nil {
		if auth.IsAuthenticationError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *TaxAPIProvider) session(resp *oauthTokenResponse) *auth.Session {
	now := time.Now().UTC()

	var scopes []string
	if resp.Scope != "" {
		scopes = strings.Fields(resp.Scope)
	}

	return &auth.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiryFromSeconds(now, resp.ExpiresIn),
		Scopes:       scopes,
		Metadata:     map[string]string{"provider": p.name, "token_type": resp.TokenType},
	}
}
