package apikey

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for API key operations.
type Metrics struct {
	validationTotal    *prometheus.CounterVec
	validationDuration *prometheus.HistogramVec
	kdfDuration        prometheus.Histogram
	generatedTotal     prometheus.Counter
	revokedTotal       prometheus.Counter
	storeFailures      *prometheus.CounterVec
	keys               *prometheus.GaugeVec
	registry           *prometheus.Registry
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "keyward"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.validationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apikey",
			Name:      "validation_total",
			Help:      "Total number of API key validation attempts",
		},
		[]string{"status", "reason"},
	)

	m.validationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "apikey",
			Name:      "validation_duration_seconds",
			Help:      "API key validation duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"status"},
	)

	m.kdfDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "apikey",
			Name:      "kdf_duration_seconds",
			Help:      "Time spent deriving a key hash",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	m.generatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apikey",
			Name:      "generated_total",
			Help:      "Total number of API keys generated",
		},
	)

	m.revokedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apikey",
			Name:      "revoked_total",
			Help:      "Total number of API keys revoked",
		},
	)

	m.storeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apikey",
			Name:      "store_failures_total",
			Help:      "Total number of failed credential store writes",
		},
		[]string{"operation"},
	)

	m.keys = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "apikey",
			Name:      "keys",
			Help:      "Number of stored API keys by state",
		},
		[]string{"state"},
	)

	m.registry.MustRegister(m.collectors()...)

	return m
}

// Init pre-initializes label combinations so they appear in /metrics
// output before the first event.
func (m *Metrics) Init() {
	m.validationTotal.WithLabelValues("success", "valid")
	m.validationDuration.WithLabelValues("success")
	m.validationDuration.WithLabelValues("failure")
	for _, r := range AllReasons {
		m.validationTotal.WithLabelValues("failure", string(r))
	}
	for _, op := range []string{"generate", "validate", "revoke", "close"} {
		m.storeFailures.WithLabelValues(op)
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.validationTotal,
		m.validationDuration,
		m.kdfDuration,
		m.generatedTotal,
		m.revokedTotal,
		m.storeFailures,
		m.keys,
	}
}

// RecordValidation records an API key validation attempt.
func (m *Metrics) RecordValidation(status, reason string, duration time.Duration) {
	m.validationTotal.WithLabelValues(status, reason).Inc()
	m.validationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordKDF records one key derivation.
func (m *Metrics) RecordKDF(duration time.Duration) {
	m.kdfDuration.Observe(duration.Seconds())
}

// RecordGenerated records a generated key.
func (m *Metrics) RecordGenerated() {
	m.generatedTotal.Inc()
}

// RecordRevoked records a revoked key.
func (m *Metrics) RecordRevoked() {
	m.revokedTotal.Inc()
}

// RecordStoreFailure records a failed store write for the operation.
func (m *Metrics) RecordStoreFailure(operation string) {
	m.storeFailures.WithLabelValues(operation).Inc()
}

// SetKeyCounts sets the active and revoked key gauges.
func (m *Metrics) SetKeyCounts(active, revoked int) {
	m.keys.WithLabelValues("active").Set(float64(active))
	m.keys.WithLabelValues("revoked").Set(float64(revoked))
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with the given registry.
// AlreadyRegisteredError is ignored so the same Metrics can be registered twice.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	for _, c := range m.collectors() {
		if err := registry.Register(c); err != nil {
			if !isAlreadyRegistered(err) {
				panic(err)
			}
		}
	}
}

func isAlreadyRegistered(err error) bool {
	var are prometheus.AlreadyRegisteredError
	return errors.As(err, &are)
}
