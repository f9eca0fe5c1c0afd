package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/authcore/internal/auth"
	"github.com/vyrodovalexey/authcore/internal/observability"
)

// ERPConfig configures the ERP provider.
type ERPConfig struct {
	// Name is the provider id. Defaults to "erp".
	Name string `yaml:"name"`

	// BaseURL is the ERP authentication endpoint base.
	BaseURL string `yaml:"baseURL"`

	// AuthType selects password or api_key authentication for this
	// instance. Defaults to password.
	AuthType auth.AuthType `yaml:"authType"`

	// Services lists the service identifiers this instance serves.
	Services []string `yaml:"services"`

	// Timeout bounds each backend call.
	Timeout time.Duration `yaml:"timeout"`

	// LoginPath, RefreshPath, LogoutPath, ValidatePath override the
	// default endpoint paths.
	LoginPath    string `yaml:"loginPath"`
	RefreshPath  string `yaml:"refreshPath"`
	LogoutPath   string `yaml:"logoutPath"`
	ValidatePath string `yaml:"validatePath"`

	// LocalUsers maps usernames to bcrypt password hashes. When a
	// username is present here, the password is verified locally and
	// no backend call is made.
	LocalUsers map[string]string `yaml:"localUsers,omitempty"`
}

// ERPProvider authenticates against an ERP-style HTTP JSON backend.
type ERPProvider struct {
	name     string
	authType auth.AuthType
	baseURL  string
	services map[string]bool
	paths    erpPaths
	local    map[string]string
	client   *http.Client
	logger   observability.Logger
}

type erpPaths struct {
	login    string
	refresh  string
	logout   string
	validate string
}

var _ auth.Provider = (*ERPProvider)(nil)

// NewERP creates an ERP provider.
func NewERP(config *ERPConfig, logger observability.Logger) (*ERPProvider, error) {
	if config == nil || config.BaseURL == "" {
		return nil, &auth.ConfigurationError{Component: "erp provider", Reason: "base URL is required"}
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	name := config.Name
	if name == "" {
		name = "erp"
	}
	authType := config.AuthType
	if authType == "" {
		authType = auth.AuthTypePassword
	}
	if authType != auth.AuthTypePassword && authType != auth.AuthTypeAPIKey {
		return nil, &auth.ConfigurationError{
			Component: "erp provider",
			Reason:    fmt.Sprintf("unsupported auth type %q", authType),
		}
	}

	paths := erpPaths{
		login:    orDefault(config.LoginPath, "/auth/login"),
		refresh:  orDefault(config.RefreshPath, "/auth/refresh"),
		logout:   orDefault(config.LogoutPath, "/auth/logout"),
		validate: orDefault(config.ValidatePath, "/auth/validate"),
	}

	return &ERPProvider{
		name:     name,
		authType: authType,
		baseURL:  config.BaseURL,
		services: serviceSet(config.Services),
		paths:    paths,
		local:    config.LocalUsers,
		client:   newHTTPClient(config.Timeout),
		logger:   logger,
	}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ID returns the provider id.
func (p *ERPProvider) ID() string {
	return p.name
}

// AuthType returns the configured authentication type.
func (p *ERPProvider) AuthType() auth.AuthType {
	return p.authType
}

// SupportsService reports whether this instance serves the service.
func (p *ERPProvider) SupportsService(serviceID string) bool {
	return p.services[serviceID]
}

type erpLoginRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

type erpTokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	Scope        []string `json:"scope"`
}

// Authenticate logs in against the ERP backend, or verifies the
// password locally for users with a configured bcrypt hash.
func (p *ERPProvider) Authenticate(ctx context.Context, creds *auth.Credentials, actx *auth.Context) (*auth.Session, error) {
	if creds == nil || creds.Type != p.authType {
		return nil, &auth.AuthenticationError{
			ServiceID: serviceOf(creds),
			Reason:    fmt.Sprintf("provider %s requires %s credentials", p.name, p.authType),
		}
	}

	if p.authType == auth.AuthTypePassword {
		if hash, ok := p.local[creds.Username]; ok {
			return p.authenticateLocal(creds, hash)
		}
	}

	body := erpLoginRequest{}
	switch p.authType {
	case auth.AuthTypePassword:
		body.Username = creds.Username
		body.Password = creds.Password
	case auth.AuthTypeAPIKey:
		body.APIKey = creds.APIKey
	}

	var resp erpTokenResponse
	if err := postJSON(ctx, p.client, p.name, p.baseURL+p.paths.login, body, &resp); err != nil {
		return nil, err
	}
	return p.session(&resp), nil
}

// authenticateLocal verifies the password against the configured
// bcrypt hash without a backend round trip.
func (p *ERPProvider) authenticateLocal(creds *auth.Credentials, hash string) (*auth.Session, error) {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)); err != nil {
		return nil, &auth.AuthenticationError{
			ServiceID: creds.ServiceID,
			Reason:    "invalid username or password",
		}
	}

	return &auth.Session{
		Metadata: map[string]string{
			"provider": p.name,
			"subject":  creds.Username,
			"local":    "true",
		},
	}, nil
}

// ValidateToken asks the backend whether the token is still valid.
func (p *ERPProvider) ValidateToken(ctx context.Context, token string, actx *auth.Context) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	err := postJSON(ctx, p.client, p.name, p.baseURL+p.paths.validate, map[string]string{"token": token}, &resp)
	if err != nil {
		if auth.IsAuthenticationError(err) {
			return false, nil
		}
		return false, err
	}
	return resp.Valid, nil
}

// RefreshToken exchanges a refresh token for a new session.
func (p *ERPProvider) RefreshToken(ctx context.Context, refreshToken string, actx *auth.Context) (*auth.Session, error) {
	var resp erpTokenResponse
	err := postJSON(ctx, p.client, p.name, p.baseURL+p.paths.refresh,
		map[string]string{"refresh_token": refreshToken}, &resp)
	if err != nil {
		return nil, err
	}
	return p.session(&resp), nil
}

// RevokeToken logs the token out of the backend.
func (p *ERPProvider) RevokeToken(ctx context.Context, token string, actx *auth.Context) (bool, error) {
	err := postJSON(ctx, p.client, p.name, p.baseURL+p.paths.logout,
		map[string]string{"token": token}, nil)
	if err != nil {
		if auth.IsAuthenticationError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *ERPProvider) session(resp *erpTokenResponse) *auth.Session {
	now := time.Now().UTC()
	return &auth.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiryFromSeconds(now, resp.ExpiresIn),
		Scopes:       resp.Scope,
		Metadata:     map[string]string{"provider": p.name},
	}
}

func serviceOf(creds *auth.Credentials) string {
	if creds == nil {
		return ""
	}
	return creds.ServiceID
}

// HashServicePassword returns a bcrypt hash for a locally-verified
// service password.
func HashServicePassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
