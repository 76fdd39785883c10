package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process-wide HTTP metrics.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	PanicsRecovered prometheus.Counter
}

// New registers HTTP metrics with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reconcile_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status"}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconcile_http_requests_total",
			Help: "HTTP requests served by route and status",
		}, []string{"method", "route", "status"}),
		PanicsRecovered: f.NewCounter(prometheus.CounterOpts{
			Name: "reconcile_http_panics_recovered_total",
			Help: "Handler panics converted to 500 responses",
		}),
	}
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := statusLabel(status)
	m.RequestDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
	m.RequestsTotal.WithLabelValues(method, route, code).Inc()
}

func (m *Metrics) IncPanicsRecovered() {
	if m == nil {
		return
	}
	m.PanicsRecovered.Inc()
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
