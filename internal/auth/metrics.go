package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for authentication operations.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	failureTotal    *prometheus.CounterVec
	disabledTotal   prometheus.Counter
}

// NewMetrics creates a new Metrics instance registered with registerer.
// A nil registerer leaves the collectors unregistered; duplicate
// registration is ignored.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "keyward"
	}

	m := &Metrics{}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "requests_total",
			Help:      "Total number of authentication requests",
		},
		[]string{"transport", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "request_duration_seconds",
			Help:      "Authentication request duration in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"transport"},
	)

	m.failureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "failure_total",
			Help:      "Total number of failed authentications",
		},
		[]string{"stage", "reason"},
	)

	m.disabledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "disabled_passthrough_total",
			Help:      "Requests let through while authentication is disabled",
		},
	)

	if registerer != nil {
		for _, c := range []prometheus.Collector{
			m.requestsTotal,
			m.requestDuration,
			m.failureTotal,
			m.disabledTotal,
		} {
			_ = registerer.Register(c)
		}
	}

	return m
}

// RecordRequest records an authentication request.
func (m *Metrics) RecordRequest(transport, status string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(transport, status).Inc()
	m.requestDuration.WithLabelValues(transport).Observe(duration.Seconds())
}

// RecordFailure records a failed authentication.
func (m *Metrics) RecordFailure(stage Stage, reason string) {
	m.failureTotal.WithLabelValues(string(stage), reason).Inc()
}

// RecordDisabled records a request let through with authentication disabled.
func (m *Metrics) RecordDisabled() {
	m.disabledTotal.Inc()
}
