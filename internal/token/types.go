package token

import (
	"time"
)

// Type identifies the kind of token.
type Type string

// Token types.
const (
	// TypeAccess is a short-lived opaque access token, issued paired
	// with a refresh token.
	TypeAccess Type = "access"

	// TypeRefresh is a long-lived opaque refresh token.
	TypeRefresh Type = "refresh"

	// TypeClaim is a self-contained signed token carrying claims.
	TypeClaim Type = "claim"

	// TypeAPIKey is a static opaque key with optional expiry.
	TypeAPIKey Type = "api_key"
)

// Status represents the lifecycle status of a token. Transitions are
// forward-only: active may move to expired or revoked, never back.
type Status string

// Token statuses.
const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// Info holds the metadata of an issued token. Value is kept only in
// memory and never serialized; the archive and all lookups use Hash.
type Info struct {
	ID        string     `json:"token_id"`
	Type      Type       `json:"type"`
	Value     string     `json:"-"`
	Hash      string     `json:"content_hash"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	NotBefore *time.Time `json:"not_before,omitempty"`
	Issuer    string     `json:"issuer,omitempty"`
	Audience  string     `json:"audience,omitempty"`
	Subject   string     `json:"subject,omitempty"`
	ClientID  string     `json:"client_id"`
	Scope     []string   `json:"scope,omitempty"`
	Claims    map[string]interface{} `json:"claims,omitempty"`
	Status    Status     `json:"status"`

	// RefreshTokenID links an access token to its refresh token;
	// ParentTokenID links a refresh token back to its access token.
	RefreshTokenID string `json:"refresh_token_id,omitempty"`
	ParentTokenID  string `json:"parent_token_id,omitempty"`
}

// clone returns a copy safe to hand out of the manager.
func (i *Info) clone() *Info {
	if i == nil {
		return nil
	}
	out := *i
	out.Scope = append([]string(nil), i.Scope...)
	if i.Claims != nil {
		out.Claims = make(map[string]interface{}, len(i.Claims))
		for k, v := range i.Claims {
			out.Claims[k] = v
		}
	}
	return &out
}

// expired reports whether the token is past expiry at the given time.
func (i *Info) expired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}

// Request describes a token generation request.
type Request struct {
	Type     Type
	ClientID string
	UserID   string
	Scope    []string
	Claims   map[string]interface{}

	// Lifetime overrides the configured TTL when positive.
	Lifetime time.Duration

	// Audience and Subject override the configured defaults.
	Audience string
	Subject  string
}

// Response is the result of token generation or refresh.
type Response struct {
	TokenID      string   `json:"token_id"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in,omitempty"`
	Scope        []string `json:"scope,omitempty"`
}
