// Package health provides liveness and readiness handlers for the
// operational listener.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/vyrodovalexey/authcore/internal/observability"
)

// Status values reported per check and overall.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDraining  = "draining"
)

// Check probes one dependency.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to the Check interface.
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewCheckFunc creates a named functional check.
func NewCheckFunc(name string, fn func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

// Name implements Check.
func (c *CheckFunc) Name() string { return c.name }

// Check implements Check.
func (c *CheckFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// response is the JSON body written by both handlers.
type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves liveness and readiness endpoints. Liveness reports
// process health only; readiness runs the registered dependency
// checks and reports draining during shutdown.
type Handler struct {
	logger       observability.Logger
	checkTimeout time.Duration

	mu       sync.RWMutex
	checks   []Check
	draining bool
}

// HandlerOption is a functional option for the handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithCheckTimeout bounds each dependency check. Defaults to 2s.
func WithCheckTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		h.checkTimeout = timeout
	}
}

// NewHandler creates a health handler.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		logger:       observability.NopLogger(),
		checkTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a readiness check.
func (h *Handler) Register(check Check) {
	h.mu.Lock()
	h.checks = append(h.checks, check)
	h.mu.Unlock()
}

// SetDraining marks the service as draining. A draining service fails
// readiness so load balancers stop sending new work.
func (h *Handler) SetDraining(draining bool) {
	h.mu.Lock()
	h.draining = draining
	h.mu.Unlock()
}

// Liveness serves the liveness endpoint.
func (h *Handler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: StatusHealthy})
}

// Readiness serves the readiness endpoint.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	draining := h.draining
	checks := make([]Check, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	if draining {
		writeJSON(w, http.StatusServiceUnavailable, response{Status: StatusDraining})
		return
	}

	resp := response{Status: StatusHealthy, Checks: make(map[string]string, len(checks))}
	code := http.StatusOK

	for _, check := range checks {
		ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
		err := check.Check(ctx)
		cancel()

		if err != nil {
			h.logger.Warn("readiness check failed",
				observability.String("check", check.Name()),
				observability.Error(err),
			)
			resp.Checks[check.Name()] = StatusUnhealthy
			resp.Status = StatusUnhealthy
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[check.Name()] = StatusHealthy
	}

	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
