package providers

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"strings"
	"time"

	"github.com/vyrodovalexey/authcore/internal/auth"
	"github.com/vyrodovalexey/authcore/internal/observability"
)

const certTokenPrefix = "cert_"

// CertAuthConfig configures the certificate authority provider.
type CertAuthConfig struct {
	// Name is the provider id. Defaults to "certauth".
	Name string `yaml:"name"`

	// CAPEM holds the PEM-encoded trust anchors client certificates
	// must chain to.
	CAPEM []byte `yaml:"caPEM"`

	// Services lists the service identifiers this instance serves.
	Services []string `yaml:"services"`

	// SessionTTL bounds sessions independently of certificate expiry.
	SessionTTL time.Duration `yaml:"sessionTTL"`
}

// CertAuthProvider authenticates clients by verifying their
// certificate chain against a configured CA pool. Sessions are bound
// to the certificate fingerprint.
type CertAuthProvider struct {
	name     string
	pool     *x509.CertPool
	services map[string]bool
	ttl      time.Duration
	logger   observability.Logger
}

var _ auth.Provider = (*CertAuthProvider)(nil)

// NewCertAuth creates a certificate authority provider.
func NewCertAuth(config *CertAuthConfig, logger observability.Logger) (*CertAuthProvider, error) {
	if config == nil || len(config.CAPEM) == 0 {
		return nil, &auth.ConfigurationError{Component: "certauth provider", Reason: "CA certificates are required"}
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(config.CAPEM) {
		return nil, &auth.ConfigurationError{Component: "certauth provider", Reason: "no usable CA certificates in pool"}
	}

	name := config.Name
	if name == "" {
		name = "certauth"
	}
	ttl := config.SessionTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &CertAuthProvider{
		name:     name,
		pool:     pool,
		services: serviceSet(config.Services),
		ttl:      ttl,
		logger:   logger,
	}, nil
}

// ID returns the provider id.
func (p *CertAuthProvider) ID() string {
	return p.name
}

// AuthType returns certificate.
func (p *CertAuthProvider) AuthType() auth.AuthType {
	return auth.AuthTypeCertificate
}

// SupportsService reports whether this instance serves the service.
func (p *CertAuthProvider) SupportsService(serviceID string) bool {
	return p.services[serviceID]
}

// Authenticate verifies the client certificate chain, expiry, and
// key possession, and issues a fingerprint-bound session.
func (p *CertAuthProvider) Authenticate(ctx context.Context, creds *auth.Credentials, actx *auth.Context) (*auth.Session, error) {
	if creds == nil || creds.Type != auth.AuthTypeCertificate {
		return nil, &auth.AuthenticationError{
			ServiceID: serviceOf(creds),
			Reason:    "certauth provider requires certificate credentials",
		}
	}

	// The key pair check proves possession of the private key for the
	// presented certificate.
	pair, err := tls.X509KeyPair(creds.CertificatePEM, creds.PrivateKeyPEM)
	if err != nil {
		return nil, &auth.AuthenticationError{
			ServiceID: creds.ServiceID,
			Reason:    "certificate and private key do not match",
			Err:       err,
		}
	}

	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, &auth.AuthenticationError{
			ServiceID: creds.ServiceID,
			Reason:    "malformed certificate",
			Err:       err,
		}
	}

	now := time.Now().UTC()
	intermediates := x509.NewCertPool()
	for _, der := range pair.Certificate[1:] {
		if cert, err := x509.ParseCertificate(der); err == nil {
			intermediates.AddCert(cert)
		}
	}

	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:         p.pool,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, &auth.AuthenticationError{
			ServiceID: creds.ServiceID,
			Reason:    "certificate chain verification failed",
			Err:       err,
		}
	}

	fingerprint := certFingerprint(leaf)

	// Sessions never outlive the certificate.
	expires := now.Add(p.ttl)
	if leaf.NotAfter.Before(expires) {
		expires = leaf.NotAfter
	}

	return &auth.Session{
		AccessToken: certTokenPrefix + fingerprint,
		ExpiresAt:   &expires,
		Metadata: map[string]string{
			"provider":    p.name,
			"subject":     leaf.Subject.CommonName,
			"fingerprint": fingerprint,
			"serial":      leaf.SerialNumber.String(),
		},
	}, nil
}

// ValidateToken checks the shape of a fingerprint-bound token. The
// provider keeps no token state; session validity is owned by the
// manager.
func (p *CertAuthProvider) ValidateToken(ctx context.Context, token string, actx *auth.Context) (bool, error) {
	return strings.HasPrefix(token, certTokenPrefix) && len(token) == len(certTokenPrefix)+sha256.Size*2, nil
}

// RefreshToken is not supported; certificate sessions are
// re-established by presenting the certificate again.
func (p *CertAuthProvider) RefreshToken(ctx context.Context, refreshToken string, actx *auth.Context) (*auth.Session, error) {
	return nil, &auth.AuthenticationError{
		Reason: "certificate sessions are re-established, not refreshed",
	}
}

// RevokeToken is a local no-op; the session eviction in the manager
// is the revocation.
func (p *CertAuthProvider) RevokeToken(ctx context.Context, token string, actx *auth.Context) (bool, error) {
	return true, nil
}

func certFingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}
