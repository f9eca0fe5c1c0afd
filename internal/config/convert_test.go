package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/authcore/internal/auth"
	"github.com/vyrodovalexey/authcore/internal/ratelimit"
)

func TestRateLimitConfig_KeyBy(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ratelimit.KeyByCaller, (&RateLimitConfig{}).KeyBy())
	assert.Equal(t, ratelimit.KeyByCaller, (&RateLimitConfig{By: "caller"}).KeyBy())
	assert.Equal(t, ratelimit.KeyByIP, (&RateLimitConfig{By: "ip"}).KeyBy())
	assert.Equal(t, ratelimit.KeyByService, (&RateLimitConfig{By: "service"}).KeyBy())
}

func TestAuthConfig_Build(t *testing.T) {
	t.Parallel()

	cfg := (&AuthConfig{
		SessionTTL:        Duration(time.Hour),
		IdleTimeout:       Duration(15 * time.Minute),
		CleanupInterval:   Duration(time.Minute),
		MaxConcurrentAuth: 8,
	}).Build()

	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 15*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, int64(8), cfg.MaxConcurrentAuth)
}

func TestTokenConfig_Build_SharedSecret(t *testing.T) {
	t.Parallel()

	cfg, err := (&TokenConfig{
		Issuer:         "authcore",
		AccessTokenTTL: Duration(time.Minute),
		Signing: &SigningConfig{
			Algorithm:    "HS256",
			SharedSecret: "super-secret",
		},
	}).Build()
	require.NoError(t, err)

	require.NotNil(t, cfg.Signing)
	assert.Equal(t, "HS256", cfg.Signing.Algorithm)
	assert.Equal(t, []byte("super-secret"), cfg.Signing.SharedSecret)
	assert.Nil(t, cfg.Signing.PrivateKeyPEM)
}

func TestTokenConfig_Build_KeyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "key.pem")
	require.NoError(t, os.WriteFile(path, []byte("pem bytes"), 0o600))

	cfg, err := (&TokenConfig{
		Signing: &SigningConfig{Algorithm: "ES256", PrivateKeyFile: path},
	}).Build()
	require.NoError(t, err)
	assert.Equal(t, []byte("pem bytes"), cfg.Signing.PrivateKeyPEM)

	_, err = (&TokenConfig{
		Signing: &SigningConfig{Algorithm: "ES256", PrivateKeyFile: filepath.Join(t.TempDir(), "absent.pem")},
	}).Build()
	require.Error(t, err)
}

func TestMasterKeyConfig_BuildSource(t *testing.T) {
	t.Parallel()

	src, err := (&MasterKeyConfig{Source: "env", EnvVar: "SOME_KEY"}).BuildSource(nil)
	require.NoError(t, err)
	assert.NotNil(t, src)

	src, err = (&MasterKeyConfig{Source: "file", File: "/etc/authcore/key"}).BuildSource(nil)
	require.NoError(t, err)
	assert.NotNil(t, src)

	_, err = (&MasterKeyConfig{Source: "vault"}).BuildSource(nil)
	require.Error(t, err)

	_, err = (&MasterKeyConfig{Source: "hsm"}).BuildSource(nil)
	require.Error(t, err)
}

func TestERPConfig_Build(t *testing.T) {
	t.Parallel()

	cfg := (&ERPConfig{
		Name:     "erp-apikey",
		BaseURL:  "http://erp.local",
		AuthType: "api_key",
		Services: []string{"erp-prod"},
		Timeout:  Duration(5 * time.Second),
	}).Build()

	assert.Equal(t, "erp-apikey", cfg.Name)
	assert.Equal(t, auth.AuthTypeAPIKey, cfg.AuthType)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestCertAuthConfig_Build(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte("ca bundle"), 0o600))

	cfg, err := (&CertAuthConfig{Name: "certauth", CAFile: path}).Build()
	require.NoError(t, err)
	assert.Equal(t, []byte("ca bundle"), cfg.CAPEM)

	_, err = (&CertAuthConfig{CAFile: filepath.Join(t.TempDir(), "absent.pem")}).Build()
	require.Error(t, err)
}
