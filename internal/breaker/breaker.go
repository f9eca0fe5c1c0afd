// Package breaker wraps sony/gobreaker for provider dispatch. Each
// authentication provider gets its own breaker so a failing upstream
// cannot exhaust callers of healthy ones.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/authcore/internal/observability"
)

// ErrOpen is returned when the breaker rejects a call without
// dispatching it.
var ErrOpen = errors.New("circuit breaker is open")

// Config holds circuit breaker configuration.
type Config struct {
	// Enabled turns breakers on. Disabled breakers pass every call
	// through.
	Enabled bool `yaml:"enabled"`

	// MinRequests is the minimum number of observed requests before
	// the failure ratio can trip the breaker.
	MinRequests int `yaml:"minRequests"`

	// FailureRatio trips the breaker when reached. Defaults to 0.5.
	FailureRatio float64 `yaml:"failureRatio"`

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration `yaml:"openTimeout"`

	// HalfOpenRequests is the number of probe requests allowed in the
	// half-open state.
	HalfOpenRequests int `yaml:"halfOpenRequests"`
}

// DefaultConfig returns the default breaker configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:          true,
		MinRequests:      5,
		FailureRatio:     0.5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// Breaker guards calls to one upstream.
type Breaker struct {
	cb      *gobreaker.CircuitBreaker
	enabled bool
}

// New creates a breaker with the given name.
func New(name string, config *Config, logger observability.Logger) *Breaker {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if !config.Enabled {
		return &Breaker{enabled: false}
	}

	minRequests := uint32(config.MinRequests)
	if minRequests == 0 {
		minRequests = 1
	}
	ratio := config.FailureRatio
	if ratio <= 0 {
		ratio = 0.5
	}
	halfOpen := uint32(config.HalfOpenRequests)
	if halfOpen == 0 {
		halfOpen = 1
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: halfOpen,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	}

	return &Breaker{
		cb:      gobreaker.NewCircuitBreaker(settings),
		enabled: true,
	}
}

// Execute runs fn through the breaker. When the breaker is open the
// call is rejected with ErrOpen without invoking fn.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !b.enabled {
		return fn(ctx)
	}

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// State returns the breaker state name.
func (b *Breaker) State() string {
	if !b.enabled {
		return "disabled"
	}
	return b.cb.State().String()
}
