package resilient

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors shared by every resilient
// client in the process. Register once against a single registry at
// startup (see buildRuntime in cmd/server).
type Metrics struct {
	CallsTotal        *prometheus.CounterVec
	RetriesTotal      *prometheus.CounterVec
	BreakerTransitions *prometheus.CounterVec
	Inflight          *prometheus.GaugeVec
}

// NewMetrics builds and registers the collector set against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: "venue_client",
			Name:      "calls_total",
			Help:      "Venue client calls by endpoint and outcome.",
		}, []string{"venue", "endpoint", "outcome"}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: "venue_client",
			Name:      "retries_total",
			Help:      "Retry attempts by endpoint.",
		}, []string{"venue", "endpoint"}),
		BreakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: "venue_client",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions by endpoint and target state.",
		}, []string{"venue", "endpoint", "to_state"}),
		Inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "trading",
			Subsystem: "venue_client",
			Name:      "inflight_calls",
			Help:      "In-flight venue client calls by endpoint.",
		}, []string{"venue", "endpoint"}),
	}
	reg.MustRegister(m.CallsTotal, m.RetriesTotal, m.BreakerTransitions, m.Inflight)
	return m
}
