package metrics

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Page access outcomes for PageDenials.
const (
	DenialNotAuthenticated = "not_authenticated"
	DenialForbidden        = "forbidden"
)

// HTTPMetrics tracks gateway traffic by route.
type HTTPMetrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	InFlightGauge   prometheus.Gauge
	PageDenials     *prometheus.CounterVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route", "status_code"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status_code"}),
		InFlightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of HTTP requests currently being processed.",
		}),
		PageDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "page_denials_total",
			Help:      "Gated page requests turned away, by page and reason.",
		}, []string{"route", "reason"}),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.InFlightGauge, m.PageDenials)
	return m
}

func (m *HTTPMetrics) ObservePageDenial(route, reason string) {
	m.PageDenials.WithLabelValues(route, reason).Inc()
}

// untracked routes: scrapes and health checks would drown the panel traffic, and the
// websocket upgrade lasts as long as the connection.
func untracked(route string) bool {
	switch route {
	case "/metrics", "/health", "/connection/websocket":
		return true
	}
	return strings.HasPrefix(route, "/health/")
}

// routeLabel folds requests that matched no route into one label.
func routeLabel(route string) string {
	if route == "" || route == "/*" {
		return "unmatched"
	}
	return route
}

// Middleware records request counts and latency per route template.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if untracked(route) {
				return next(c)
			}

			m.InFlightGauge.Inc()
			defer m.InFlightGauge.Dec()

			timer := prometheus.NewTimer(nil)
			err := next(c)
			elapsed := timer.ObserveDuration()

			status := c.Response().Status
			// Echo errors are rendered after the chain unwinds.
			if httpErr, ok := errors.AsType[*echo.HTTPError](err); ok && !c.Response().Committed {
				status = httpErr.Code
			}

			labels := []string{c.Request().Method, routeLabel(route), strconv.Itoa(status)}
			m.RequestDuration.WithLabelValues(labels...).Observe(elapsed.Seconds())
			m.RequestsTotal.WithLabelValues(labels...).Inc()
			return err
		}
	}
}
