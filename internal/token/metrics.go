package token

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the token manager.
type Metrics struct {
	issuedTotal      *prometheus.CounterVec
	validationsTotal *prometheus.CounterVec
	revokedTotal     prometheus.Counter
	expiredTotal     prometheus.Counter
	activeTokens     prometheus.Gauge
}

// NewMetrics creates token metrics registered on the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates token metrics registered on the
// given registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "authcore"
	}

	m := &Metrics{
		issuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "token",
				Name:      "issued_total",
				Help:      "Total number of tokens issued.",
			},
			[]string{"type"},
		),
		validationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "token",
				Name:      "validations_total",
				Help:      "Total number of token validations.",
			},
			[]string{"outcome"},
		),
		revokedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "token",
				Name:      "revoked_total",
				Help:      "Total number of tokens revoked.",
			},
		),
		expiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "token",
				Name:      "expired_total",
				Help:      "Total number of tokens marked expired.",
			},
		),
		activeTokens: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "token",
				Name:      "active",
				Help:      "Number of active tokens in the lookup index.",
			},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.issuedTotal,
			m.validationsTotal,
			m.revokedTotal,
			m.expiredTotal,
			m.activeTokens,
		)
	}

	return m
}

// RecordIssued records an issued token.
func (m *Metrics) RecordIssued(tokenType Type) {
	if m == nil {
		return
	}
	m.issuedTotal.WithLabelValues(string(tokenType)).Inc()
	m.activeTokens.Inc()
}

// RecordValidation records a validation outcome.
func (m *Metrics) RecordValidation(valid bool) {
	if m == nil {
		return
	}
	outcome := "invalid"
	if valid {
		outcome = "valid"
	}
	m.validationsTotal.WithLabelValues(outcome).Inc()
}

// RecordRevoked records a revoked token.
func (m *Metrics) RecordRevoked() {
	if m == nil {
		return
	}
	m.revokedTotal.Inc()
	m.activeTokens.Dec()
}

// RecordExpired records a token swept as expired.
func (m *Metrics) RecordExpired() {
	if m == nil {
		return
	}
	m.expiredTotal.Inc()
	m.activeTokens.Dec()
}
