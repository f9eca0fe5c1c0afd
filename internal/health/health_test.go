package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestLiveness(t *testing.T) {
	t.Parallel()

	h := NewHandler()
	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusHealthy, decodeBody(t, rec)["status"])
}

func TestReadiness_AllHealthy(t *testing.T) {
	t.Parallel()

	h := NewHandler()
	h.Register(NewCheckFunc("archive", func(context.Context) error { return nil }))
	h.Register(NewCheckFunc("limiter", func(context.Context) error { return nil }))

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, StatusHealthy, body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, StatusHealthy, checks["archive"])
	assert.Equal(t, StatusHealthy, checks["limiter"])
}

func TestReadiness_FailingCheck(t *testing.T) {
	t.Parallel()

	h := NewHandler()
	h.Register(NewCheckFunc("archive", func(context.Context) error { return nil }))
	h.Register(NewCheckFunc("limiter", func(context.Context) error { return errors.New("down") }))

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, StatusUnhealthy, body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, StatusHealthy, checks["archive"])
	assert.Equal(t, StatusUnhealthy, checks["limiter"])
}

func TestReadiness_Draining(t *testing.T) {
	t.Parallel()

	h := NewHandler()
	h.Register(NewCheckFunc("archive", func(context.Context) error { return nil }))
	h.SetDraining(true)

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, StatusDraining, decodeBody(t, rec)["status"])
}
