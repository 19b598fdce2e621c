package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics tracks realtime connections by tier and broadcasts by channel.
type WebSocketMetrics struct {
	ActiveConnections *prometheus.GaugeVec
	ConnectionsTotal  *prometheus.CounterVec
	MessagesPublished *prometheus.CounterVec
}

func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Open realtime connections by tier (none, moderator, admin).",
		}, []string{"tier"}),
		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_total",
			Help:      "Realtime connections accepted since start, by tier.",
		}, []string{"tier"}),
		MessagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_published_total",
			Help:      "Broadcasts published, by channel.",
		}, []string{"channel"}),
	}

	reg.MustRegister(m.ActiveConnections, m.ConnectionsTotal, m.MessagesPublished)
	return m
}

func (m *WebSocketMetrics) Connected(tier string) {
	m.ActiveConnections.WithLabelValues(tier).Inc()
	m.ConnectionsTotal.WithLabelValues(tier).Inc()
}

func (m *WebSocketMetrics) Disconnected(tier string) {
	m.ActiveConnections.WithLabelValues(tier).Dec()
}

func (m *WebSocketMetrics) Published(channel string) {
	m.MessagesPublished.WithLabelValues(channel).Inc()
}
