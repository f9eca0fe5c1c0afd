package credstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/authcore/internal/audit"
)

// Metrics holds Prometheus metrics for the credential store.
type Metrics struct {
	operationsTotal  *prometheus.CounterVec
	operationSeconds *prometheus.HistogramVec
	lockoutsTotal    prometheus.Counter
}

// NewMetrics creates credential store metrics registered on the
// default registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates credential store metrics registered
// on the given registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "authcore"
	}

	m := &Metrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "credstore",
				Name:      "operations_total",
				Help:      "Total number of credential store operations.",
			},
			[]string{"operation", "outcome"},
		),
		operationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "credstore",
				Name:      "operation_duration_seconds",
				Help:      "Duration of credential store operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		lockoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "credstore",
				Name:      "lockouts_total",
				Help:      "Total number of credential access lockouts.",
			},
		),
	}

	if registerer != nil {
		registerer.MustRegister(m.operationsTotal, m.operationSeconds, m.lockoutsTotal)
	}

	return m
}

// RecordOperation records the outcome and duration of an operation.
func (m *Metrics) RecordOperation(op audit.Operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(string(op), outcome).Inc()
	m.operationSeconds.WithLabelValues(string(op)).Observe(d.Seconds())
}

// RecordLockout records a credential access lockout.
func (m *Metrics) RecordLockout() {
	if m == nil {
		return
	}
	m.lockoutsTotal.Inc()
}
