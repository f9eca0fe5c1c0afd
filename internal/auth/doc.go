// Package auth implements the authentication manager: provider
// registration and dispatch, session caching and lifecycle, rate
// limiting, and credential resolution.
//
// The manager never retries on behalf of callers. Connection failures
// surface as *ConnectionError and the retry policy belongs to the
// caller, keeping failure semantics observable and preventing retry
// storms from compounding with rate limits.
package auth
