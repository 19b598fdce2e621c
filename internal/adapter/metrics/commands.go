package metrics

import "github.com/prometheus/client_golang/prometheus"

// CommandMetrics holds Prometheus metrics for realtime commands and logins.
type CommandMetrics struct {
	CommandsTotal *prometheus.CounterVec
	LoginsTotal   *prometheus.CounterVec
}

// NewCommandMetrics creates and registers command metrics on the given registry.
func NewCommandMetrics(reg prometheus.Registerer) *CommandMetrics {
	m := &CommandMetrics{
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of realtime commands, by command and result.",
		}, []string{"command", "result"}),
		LoginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Total number of login attempts, by result code.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.CommandsTotal, m.LoginsTotal)
	return m
}

func (m *CommandMetrics) ObserveCommand(command, result string) {
	m.CommandsTotal.WithLabelValues(command, result).Inc()
}

func (m *CommandMetrics) ObserveLogin(result string) {
	m.LoginsTotal.WithLabelValues(result).Inc()
}
