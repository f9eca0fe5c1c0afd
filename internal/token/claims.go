package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// SigningConfig configures claim-token signing. Exactly one of
// SharedSecret (HS256) or PrivateKeyPEM (RS256, ES256) must be set.
type SigningConfig struct {
	// Algorithm is one of HS256, RS256, ES256.
	Algorithm string `yaml:"algorithm"`

	// SharedSecret is the HMAC secret for HS256.
	SharedSecret []byte `yaml:"sharedSecret"`

	// PrivateKeyPEM is the PEM-encoded private key for RS256/ES256.
	PrivateKeyPEM []byte `yaml:"privateKeyPEM"`
}

// signer signs and verifies claim-tokens.
type signer struct {
	alg       jwa.SignatureAlgorithm
	signKey   jwk.Key
	verifyKey jwk.Key
}

// newSigner validates the signing configuration and prepares the
// signing and verification keys.
func newSigner(config *SigningConfig) (*signer, error) {
	if config == nil {
		return nil, ErrSigningNotConfigured
	}
	if len(config.SharedSecret) > 0 && len(config.PrivateKeyPEM) > 0 {
		return nil, fmt.Errorf("signing config must set a shared secret or a private key, not both")
	}

	var alg jwa.SignatureAlgorithm
	switch strings.ToUpper(config.Algorithm) {
	case "HS256":
		alg = jwa.HS256
	case "RS256":
		alg = jwa.RS256
	case "ES256":
		alg = jwa.ES256
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", config.Algorithm)
	}

	if alg == jwa.HS256 {
		if len(config.SharedSecret) == 0 {
			return nil, fmt.Errorf("algorithm %s requires a shared secret", alg)
		}
		key, err := jwk.FromRaw(config.SharedSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to build signing key: %w", err)
		}
		return &signer{alg: alg, signKey: key, verifyKey: key}, nil
	}

	if len(config.PrivateKeyPEM) == 0 {
		return nil, fmt.Errorf("algorithm %s requires a private key", alg)
	}
	signKey, err := jwk.ParseKey(config.PrivateKeyPEM, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	verifyKey, err := jwk.PublicKeyOf(signKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	return &signer{alg: alg, signKey: signKey, verifyKey: verifyKey}, nil
}

// sign serializes and signs the claim-token described by info.
func (s *signer) sign(info *Info) (string, error) {
	builder := jwt.NewBuilder().
		JwtID(info.ID).
		IssuedAt(info.IssuedAt)

	if info.Issuer != "" {
		builder = builder.Issuer(info.Issuer)
	}
	if info.Audience != "" {
		builder = builder.Audience([]string{info.Audience})
	}
	if info.Subject != "" {
		builder = builder.Subject(info.Subject)
	}
	if info.ExpiresAt != nil {
		builder = builder.Expiration(*info.ExpiresAt)
	}
	if info.NotBefore != nil {
		builder = builder.NotBefore(*info.NotBefore)
	}
	if len(info.Scope) > 0 {
		builder = builder.Claim("scope", strings.Join(info.Scope, " "))
	}
	for name, value := range info.Claims {
		builder = builder.Claim(name, value)
	}

	tok, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("failed to build claim token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(s.alg, s.signKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign claim token: %w", err)
	}
	return string(signed), nil
}

// verify checks the signature and standard claims of a claim-token
// against the single captured now.
func (s *signer) verify(value, issuer, audience string, now time.Time) error {
	opts := []jwt.ParseOption{
		jwt.WithKey(s.alg, s.verifyKey),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	if _, err := jwt.Parse([]byte(value), opts...); err != nil {
		return fmt.Errorf("claim token verification failed: %w", err)
	}
	return nil
}
