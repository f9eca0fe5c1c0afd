package auth

import (
	"fmt"
)

// AuthType identifies the authentication mechanism.
type AuthType string

// Authentication types.
const (
	AuthTypePassword    AuthType = "password"
	AuthTypeAPIKey      AuthType = "api_key"
	AuthTypeBearerToken AuthType = "bearer_token"
	AuthTypeCertificate AuthType = "certificate"
	AuthTypeOAuth2      AuthType = "oauth2"
)

// Credentials is a tagged union over the supported credential kinds.
// Type selects which fields are meaningful.
type Credentials struct {
	Type      AuthType `json:"type"`
	ServiceID string   `json:"service_identifier"`

	// Password credentials.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// API key credentials.
	APIKey string `json:"api_key,omitempty"`

	// Bearer token credentials.
	BearerToken string `json:"bearer_token,omitempty"`

	// Certificate credentials, PEM encoded.
	CertificatePEM []byte `json:"certificate_pem,omitempty"`
	PrivateKeyPEM  []byte `json:"private_key_pem,omitempty"`

	// OAuth2 client credentials.
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// Validate checks that the fields required by the credential type are
// present.
func (c *Credentials) Validate() error {
	if c == nil {
		return fmt.Errorf("credentials are required")
	}
	if c.ServiceID == "" {
		return fmt.Errorf("service identifier is required")
	}

	switch c.Type {
	case AuthTypePassword:
		if c.Username == "" || c.Password == "" {
			return fmt.Errorf("password credentials require username and password")
		}
	case AuthTypeAPIKey:
		if c.APIKey == "" {
			return fmt.Errorf("api key credentials require a key")
		}
	case AuthTypeBearerToken:
		if c.BearerToken == "" {
			return fmt.Errorf("bearer token credentials require a token")
		}
	case AuthTypeCertificate:
		if len(c.CertificatePEM) == 0 || len(c.PrivateKeyPEM) == 0 {
			return fmt.Errorf("certificate credentials require certificate and private key")
		}
	case AuthTypeOAuth2:
		if c.ClientID == "" || c.ClientSecret == "" {
			return fmt.Errorf("oauth2 credentials require client id and secret")
		}
	default:
		return fmt.Errorf("unknown credential type %q", c.Type)
	}
	return nil
}

// Redacted returns a loggable description with all secret material
// withheld.
func (c *Credentials) Redacted() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("credentials{type=%s, service=%s}", c.Type, c.ServiceID)
}
