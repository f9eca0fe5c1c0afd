package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Opaque token prefixes. The prefix identifies the token kind in
// transit without revealing anything about the random payload.
const (
	prefixAccess  = "ac_"
	prefixRefresh = "rf_"
	prefixAPIKey  = "ak_"
)

const opaqueBytes = 32

// newOpaque returns a prefixed base64url-encoded random token value.
func newOpaque(prefix string) (string, error) {
	raw := make([]byte, opaqueBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate token value: %w", err)
	}
	return prefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// hashValue returns the hex SHA-256 digest used as the lookup key and
// integrity reference for a token value.
func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
