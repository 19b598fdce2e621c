package metrics

import "github.com/prometheus/client_golang/prometheus"

// BreakerMetrics tracks circuit breaker state per protected dependency.
// State is 0 for closed, 1 for half-open and 2 for open.
type BreakerMetrics struct {
	State        *prometheus.GaugeVec
	StateChanges *prometheus.CounterVec
}

// NewBreakerMetrics creates and registers circuit breaker metrics on the given registry.
func NewBreakerMetrics(reg prometheus.Registerer) *BreakerMetrics {
	m := &BreakerMetrics{
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"name"}),
		StateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_state_changes_total",
			Help:      "Total number of circuit breaker state transitions.",
		}, []string{"name", "state"}),
	}

	reg.MustRegister(m.State, m.StateChanges)
	return m
}

func (m *BreakerMetrics) SetState(name, state string, value float64) {
	m.State.WithLabelValues(name).Set(value)
	m.StateChanges.WithLabelValues(name, state).Inc()
}
