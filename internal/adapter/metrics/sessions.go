package metrics

import "github.com/prometheus/client_golang/prometheus"

// SessionMetrics holds Prometheus metrics for session lookups.
type SessionMetrics struct {
	Lookups   *prometheus.CounterVec
	Evictions prometheus.Counter
}

// NewSessionMetrics creates and registers session metrics on the given registry.
func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "lookups_total",
			Help:      "Total number of session lookups, by result.",
		}, []string{"result"}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "evictions_total",
			Help:      "Total number of expired sessions removed by the reaper.",
		}),
	}

	reg.MustRegister(m.Lookups, m.Evictions)
	return m
}

func (m *SessionMetrics) ObserveLookup(result string) {
	m.Lookups.WithLabelValues(result).Inc()
}

func (m *SessionMetrics) ObserveEvictions(n int) {
	m.Evictions.Add(float64(n))
}
