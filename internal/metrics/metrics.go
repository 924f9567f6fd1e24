// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the auth subsystem counters. Registered on a private registry
// so tests can construct throwaway instances without collision.
type Metrics struct {
	Registry *prometheus.Registry

	AuthOperations *prometheus.CounterVec
	SessionsSwept  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		AuthOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "renovator",
			Subsystem: "auth",
			Name:      "operations_total",
			Help:      "Auth operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		SessionsSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "renovator",
			Subsystem: "auth",
			Name:      "sessions_swept_total",
			Help:      "Expired sessions removed by the background sweeper.",
		}),
	}
}

// Observe records one auth operation outcome.
func (m *Metrics) Observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.AuthOperations.WithLabelValues(operation, outcome).Inc()
}
