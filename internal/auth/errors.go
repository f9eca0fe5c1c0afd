package auth

import (
	"errors"
	"fmt"
	"time"
)

// ConfigurationError indicates missing or invalid setup. It is fatal
// for the call and never retried.
type ConfigurationError struct {
	Component string
	Reason    string
	Err       error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Component != "" {
		msg += " in " + e.Component
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
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var confErr *ConfigurationError
	return errors.As(err, &confErr)
}

// AuthenticationError indicates rejected credentials or a
// provider-reported rejection. Not retried automatically.
type AuthenticationError struct {
	ServiceID string
	Reason    string
	Err       error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	msg := "authentication failed"
	if e.ServiceID != "" {
		msg += " for service " + e.ServiceID
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
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// IsAuthenticationError reports whether err is an AuthenticationError.
func IsAuthenticationError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

// ConnectionError indicates a network or IO failure talking to a
// provider. Callers may retry with backoff; the manager itself never
// does.
type ConnectionError struct {
	Provider string
	Reason   string
	Err      error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	msg := "connection failed"
	if e.Provider != "" {
		msg += " to provider " + e.Provider
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
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Retryable marks the error as safe to retry with backoff.
func (e *ConnectionError) Retryable() bool {
	return true
}

// IsConnectionError reports whether err is a ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// RateLimitError indicates the caller exceeded its rate limit and
// must back off for at least RetryAfter.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Key, e.RetryAfter)
}

// IsRateLimitError reports whether err is a RateLimitError.
func IsRateLimitError(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}
