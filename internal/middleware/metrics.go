package middleware

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/keyward/internal/observability"
)

// Metrics holds middleware specific counters.
type Metrics struct {
	panicsRecovered prometheus.Counter
}

// NewMetrics creates middleware metrics registered with registerer. A nil
// registerer leaves them unregistered.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "keyward"
	}

	m := &Metrics{
		panicsRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "panics_recovered_total",
			Help:      "Total number of panics recovered in HTTP handlers",
		}),
	}

	if registerer != nil {
		if err := registerer.Register(m.panicsRecovered); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
	return m
}

// RecordPanic counts a recovered panic. Safe on a nil receiver.
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.panicsRecovered.Inc()
}

// RequestMetrics records every request in metrics under its route pattern.
func RequestMetrics(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.RecordRequest(c.Request.Method, routeOf(c), c.Writer.Status(), time.Since(start))
	}
}
