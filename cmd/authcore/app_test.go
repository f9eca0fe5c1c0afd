package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/authcore/internal/config"
	"github.com/vyrodovalexey/authcore/internal/observability"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	content := `
server:
  listenAddress: "127.0.0.1:0"
  shutdownTimeout: "2s"
audit:
  enabled: true
  output: "` + filepath.Join(dir, "audit.log") + `"
rateLimit:
  enabled: true
  requests: 100
  window: "1m"
token:
  archivePath: "` + filepath.Join(dir, "archive.db") + `"
  signing:
    algorithm: "HS256"
    sharedSecret: "test-secret"
credStore:
  dir: "` + filepath.Join(dir, "creds") + `"
  kdfIterations: 1000
  masterKey:
    source: "env"
    envVar: "AUTHCORE_TEST_MASTER_KEY"
providers:
  erp:
    - name: "erp"
      baseURL: "http://127.0.0.1:1"
      services: ["erp-prod"]
`
	path := filepath.Join(dir, "authcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func setMasterKey(t *testing.T) {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	t.Setenv("AUTHCORE_TEST_MASTER_KEY", base64.StdEncoding.EncodeToString(key))
}

func TestInitApplication(t *testing.T) {
	setMasterKey(t)
	path := writeTestConfig(t)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	app, err := initApplication(context.Background(), cfg, observability.NopLogger(), zap.NewNop())
	require.NoError(t, err)

	assert.NotNil(t, app.auditor)
	assert.NotNil(t, app.credentials)
	assert.NotNil(t, app.tokens)
	assert.NotNil(t, app.archive)
	assert.NotNil(t, app.sessions)
	assert.NotNil(t, app.server)

	app.sessions.Stop()
	app.tokens.Stop()
	require.NoError(t, app.credentials.Close())
	require.NoError(t, app.archive.Close())
	require.NoError(t, app.auditor.Close())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	setMasterKey(t)
	path := writeTestConfig(t)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	app, err := initApplication(context.Background(), cfg, observability.NopLogger(), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.run(ctx, path) }()

	// Give the listener and watcher a moment to start before stopping.
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after context cancellation")
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("AUTHCORE_TEST_ENV_VAR", "set")
	assert.Equal(t, "set", getEnvOrDefault("AUTHCORE_TEST_ENV_VAR", "fallback"))
	assert.Equal(t, "fallback", getEnvOrDefault("AUTHCORE_TEST_ENV_VAR_ABSENT", "fallback"))
}
