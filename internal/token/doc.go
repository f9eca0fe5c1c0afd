// Package token implements token lifecycle management: signed
// claim-tokens, opaque access/refresh pairs, and static API keys.
//
// Tokens are looked up by a SHA-256 content hash so plaintext values
// never serve as map keys or appear in logs. Revoked and expired
// tokens leave the fast lookup index but are retained in a durable
// archive for audit.
package token
