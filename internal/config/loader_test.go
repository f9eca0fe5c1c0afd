package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromReader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFromReader(strings.NewReader(""))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddress)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window.Duration())
	assert.True(t, cfg.Token.RotateOnRefresh)
	assert.Equal(t, 720*time.Hour, cfg.Token.RefreshTokenTTL.Duration())
	assert.Equal(t, "env", cfg.CredStore.MasterKey.Source)
}

func TestLoadConfigFromReader_Overrides(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFromReader(strings.NewReader(`
server:
  listenAddress: ":8443"
auth:
  sessionTTL: "45m"
  idleTimeout: "10m"
token:
  issuer: "auth.example.com"
  accessTokenTTL: "5m"
  rotateOnRefresh: false
credStore:
  dir: "/tmp/creds"
  kdfIterations: 50000
`))
	require.NoError(t, err)

	assert.Equal(t, ":8443", cfg.Server.ListenAddress)
	assert.Equal(t, 45*time.Minute, cfg.Auth.SessionTTL.Duration())
	assert.Equal(t, 10*time.Minute, cfg.Auth.IdleTimeout.Duration())
	assert.Equal(t, "auth.example.com", cfg.Token.Issuer)
	assert.Equal(t, 5*time.Minute, cfg.Token.AccessTokenTTL.Duration())
	assert.False(t, cfg.Token.RotateOnRefresh)
	assert.Equal(t, "/tmp/creds", cfg.CredStore.Dir)
	assert.Equal(t, 50000, cfg.CredStore.KDFIterations)

	// Sections absent from the file keep their defaults.
	assert.Equal(t, 720*time.Hour, cfg.Token.RefreshTokenTTL.Duration())
	assert.True(t, cfg.Breaker.Enabled)
}

func TestLoadConfigFromReader_EnvSubstitution(t *testing.T) {
	t.Setenv("AUTHCORE_TEST_ISSUER", "issuer-from-env")
	os.Unsetenv("AUTHCORE_TEST_MISSING")

	cfg, err := LoadConfigFromReader(strings.NewReader(`
token:
  issuer: "${AUTHCORE_TEST_ISSUER}"
  audience: "${AUTHCORE_TEST_MISSING:-fallback-audience}"
providers:
  erp:
    - name: "erp"
      baseURL: "http://erp.local"
      localUsers:
        svc: "$$2a$$10$$hashhashhash"
`))
	require.NoError(t, err)

	assert.Equal(t, "issuer-from-env", cfg.Token.Issuer)
	assert.Equal(t, "fallback-audience", cfg.Token.Audience)
	assert.Equal(t, "$2a$10$hashhashhash", cfg.Providers.ERP[0].LocalUsers["svc"])
}

func TestLoadConfig_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "authcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listenAddress: \":7000\"\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.ListenAddress)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfigFromReader_InvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := LoadConfigFromReader(strings.NewReader("server: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadConfigFromReader_InvalidDuration(t *testing.T) {
	t.Parallel()

	_, err := LoadConfigFromReader(strings.NewReader("auth:\n  sessionTTL: \"not-a-duration\"\n"))
	require.Error(t, err)
}

func TestLoadConfigFromReader_ValidationFailure(t *testing.T) {
	t.Parallel()

	_, err := LoadConfigFromReader(strings.NewReader(`
rateLimit:
  enabled: true
  requests: -1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rateLimit.requests")
}
