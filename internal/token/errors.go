package token

import (
	"errors"
	"fmt"
)

// Sentinel errors for token operations.
var (
	// ErrManagerClosed is returned after the manager is stopped.
	ErrManagerClosed = errors.New("token manager is closed")

	// ErrUnknownTokenType is returned for an unsupported token type.
	ErrUnknownTokenType = errors.New("unknown token type")

	// ErrSigningNotConfigured is returned when a claim-token is
	// requested but no signing configuration was provided.
	ErrSigningNotConfigured = errors.New("token signing is not configured")

	// ErrNotRefreshToken is returned when the token passed to refresh
	// is not an active refresh token.
	ErrNotRefreshToken = errors.New("token is not an active refresh token")
)

// TokenError describes a failed token operation.
type TokenError struct {
	Op      string
	TokenID string
	Reason  string
	Err     error
}

// Error implements the error interface.
func (e *TokenError) Error() string {
	msg := fmt.Sprintf("token %s failed", e.Op)
	if e.TokenID != "" {
		msg += " for token " + e.TokenID
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *TokenError) Unwrap() error {
	return e.Err
}

// QuotaError indicates the per-client outstanding-token quota was
// exceeded.
type QuotaError struct {
	ClientID string
	Limit    int
}

// Error implements the error interface.
func (e *QuotaError) Error() string {
	return fmt.Sprintf("client %s exceeded outstanding token quota of %d", e.ClientID, e.Limit)
}

// IsQuotaError reports whether err is a QuotaError.
func IsQuotaError(err error) bool {
	var quotaErr *QuotaError
	return errors.As(err, &quotaErr)
}
