package breaker

import (
	"sync"

	"github.com/vyrodovalexey/authcore/internal/observability"
)

// Registry manages one breaker per provider name.
type Registry struct {
	breakers sync.Map
	config   *Config
	logger   observability.Logger
}

// NewRegistry creates a breaker registry.
func NewRegistry(config *Config, logger observability.Logger) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Registry{
		config: config,
		logger: logger,
	}
}

// GetOrCreate returns the breaker for name, creating it on first use.
func (r *Registry) GetOrCreate(name string) *Breaker {
	if value, ok := r.breakers.Load(name); ok {
		return value.(*Breaker)
	}

	b := New(name, r.config, r.logger)
	actual, loaded := r.breakers.LoadOrStore(name, b)
	if loaded {
		return actual.(*Breaker)
	}

	r.logger.Debug("created circuit breaker", observability.String("name", name))
	return b
}
