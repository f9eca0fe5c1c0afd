package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/authcore/internal/observability"
)

const redactedValue = "[REDACTED]"

// Logger is the audit logger interface.
type Logger interface {
	// Log appends an audit event. The call is best-effort: write
	// failures are reported on the fallback logger, never returned.
	Log(ctx context.Context, event *Event)

	// Close closes the logger and any underlying file.
	Close() error
}

// Config holds audit logger configuration.
type Config struct {
	// Enabled toggles audit logging.
	Enabled bool `yaml:"enabled"`

	// Output is "stdout", "stderr", or a file path.
	Output string `yaml:"output"`

	// RedactKeys lists detail keys whose values are replaced before
	// writing. Matching is case-insensitive and includes substrings.
	RedactKeys []string `yaml:"redactKeys"`
}

// DefaultConfig returns the default audit configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Output:  "stdout",
		RedactKeys: []string{
			"password", "secret", "token", "key", "credential",
		},
	}
}

// logger implements the Logger interface.
type logger struct {
	config   *Config
	writer   io.Writer
	closer   io.Closer
	mu       sync.Mutex
	fallback observability.Logger
	metrics  *Metrics
}

// LoggerOption is a functional option for the logger.
type LoggerOption func(*logger)

// WithFallbackLogger sets the fallback logger used to report write
// failures.
func WithFallbackLogger(l observability.Logger) LoggerOption {
	return func(lg *logger) {
		lg.fallback = l
	}
}

// WithMetrics sets the metrics.
func WithMetrics(m *Metrics) LoggerOption {
	return func(lg *logger) {
		lg.metrics = m
	}
}

// WithWriter sets the output writer, overriding Config.Output.
func WithWriter(w io.Writer) LoggerOption {
	return func(lg *logger) {
		lg.writer = w
	}
}

// NewLogger creates a new audit logger.
func NewLogger(config *Config, opts ...LoggerOption) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	l := &logger{
		config:   config,
		fallback: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.metrics == nil {
		l.metrics = NewMetrics("authcore")
	}

	if l.writer == nil {
		writer, closer, err := createWriter(config.Output)
		if err != nil {
			return nil, err
		}
		l.writer = writer
		l.closer = closer
	}

	return l, nil
}

// createWriter creates the output writer based on configuration.
func createWriter(output string) (io.Writer, io.Closer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		// Path comes from trusted configuration.
		//nolint:gosec // G304: path from config is trusted
		file, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open audit log file: %w", err)
		}
		return file, file, nil
	}
}

// Log appends an audit event.
func (l *logger) Log(ctx context.Context, event *Event) {
	if !l.config.Enabled || event == nil {
		return
	}

	if event.TraceID == "" {
		event.TraceID = extractTraceID(ctx)
	}
	if event.SpanID == "" {
		event.SpanID = extractSpanID(ctx)
	}

	l.redact(event)
	l.metrics.RecordEvent(event.Operation, event.Outcome())
	l.write(event)
}

// redact replaces values of sensitive detail keys.
func (l *logger) redact(event *Event) {
	if event.Details == nil || len(l.config.RedactKeys) == 0 {
		return
	}
	for key := range event.Details {
		if l.shouldRedact(key) {
			event.Details[key] = redactedValue
		}
	}
}

// shouldRedact checks if a detail key must be redacted.
func (l *logger) shouldRedact(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, redactKey := range l.config.RedactKeys {
		if strings.Contains(lowerKey, strings.ToLower(redactKey)) {
			return true
		}
	}
	return false
}

// write serializes the event and appends it to the output. Failures
// go to the fallback logger only.
func (l *logger) write(event *Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	output, err := json.Marshal(event)
	if err != nil {
		l.fallback.Error("failed to marshal audit event", observability.Error(err))
		return
	}
	output = append(output, '\n')

	if _, err := l.writer.Write(output); err != nil {
		l.fallback.Error("failed to write audit event",
			observability.String("operation", string(event.Operation)),
			observability.Error(err),
		)
	}
}

// Close closes the logger.
func (l *logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// extractTraceID extracts the trace ID from the OpenTelemetry span
// context. Returns an empty string when no valid trace is present.
func extractTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// extractSpanID extracts the span ID from the OpenTelemetry span
// context. Returns an empty string when no valid span is present.
func extractSpanID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasSpanID() {
		return sc.SpanID().String()
	}
	return ""
}

// noopLogger is a no-op audit logger.
type noopLogger struct{}

// NewNoopLogger creates a new no-op audit logger.
func NewNoopLogger() Logger {
	return &noopLogger{}
}

func (l *noopLogger) Log(_ context.Context, _ *Event) {}

func (l *noopLogger) Close() error { return nil }

// Ensure implementations satisfy the interface.
var (
	_ Logger = (*logger)(nil)
	_ Logger = (*noopLogger)(nil)
)
