package signature

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for signature verification.
type Metrics struct {
	verificationTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "keyward"
	}

	return &Metrics{
		verificationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "signature",
				Name:      "verification_total",
				Help:      "Total number of request signature verifications",
			},
			[]string{"status", "reason"},
		),
	}
}

// RecordVerification records one verification.
func (m *Metrics) RecordVerification(status, reason string) {
	m.verificationTotal.WithLabelValues(status, reason).Inc()
}

// MustRegister registers the metrics with the given registry.
// AlreadyRegisteredError is ignored.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	if err := registry.Register(m.verificationTotal); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(err)
		}
	}
}
