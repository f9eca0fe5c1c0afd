package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the authentication manager.
type Metrics struct {
	attemptsTotal   *prometheus.CounterVec
	sessionReuses   prometheus.Counter
	activeSessions  prometheus.Gauge
	providerSeconds *prometheus.HistogramVec
	rateLimited     prometheus.Counter
}

// NewMetrics creates manager metrics registered on the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates manager metrics registered on the
// given registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "authcore"
	}

	m := &Metrics{
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "attempts_total",
				Help:      "Total number of authentication attempts.",
			},
			[]string{"service", "outcome"},
		),
		sessionReuses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "session_reuses_total",
				Help:      "Total number of authentications served from the session cache.",
			},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "active_sessions",
				Help:      "Number of cached sessions.",
			},
		),
		providerSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "provider_duration_seconds",
				Help:      "Duration of provider calls.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "rate_limited_total",
				Help:      "Total number of calls rejected by the rate limiter.",
			},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.attemptsTotal,
			m.sessionReuses,
			m.activeSessions,
			m.providerSeconds,
			m.rateLimited,
		)
	}

	return m
}

// RecordAttempt records an authentication attempt outcome.
func (m *Metrics) RecordAttempt(service string, success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.attemptsTotal.WithLabelValues(service, outcome).Inc()
}

// RecordSessionReuse records an authentication served from cache.
func (m *Metrics) RecordSessionReuse() {
	if m == nil {
		return
	}
	m.sessionReuses.Inc()
}

// SetActiveSessions records the session cache size.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// RecordProviderCall records the duration of one provider call.
func (m *Metrics) RecordProviderCall(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerSeconds.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordRateLimited records a rate-limited call.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
