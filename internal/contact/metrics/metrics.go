package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"reconcile/internal/contact/models"
)

// Metrics provides observability for identity resolution.
type Metrics struct {
	Resolutions      *prometheus.CounterVec
	IdentifyDuration prometheus.Histogram
	ChainsMerged     prometheus.Counter
	CacheLookups     *prometheus.CounterVec
	CacheBreakerOpen prometheus.Gauge
	EventsPublished  prometheus.Counter
	EventsFailed     prometheus.Counter
	EventsDropped    prometheus.Counter
}

// New registers contact metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconcile_resolutions_total",
			Help: "Identify resolutions by outcome (created, matched, attached, merged)",
		}, []string{"outcome"}),
		IdentifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconcile_identify_duration_seconds",
			Help:    "Duration of identify including the store transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ChainsMerged: f.NewCounter(prometheus.CounterOpts{
			Name: "reconcile_chains_merged_total",
			Help: "Primaries demoted into an older chain by merges",
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconcile_view_cache_lookups_total",
			Help: "Identity view cache lookups by result (hit, miss, error, skipped)",
		}, []string{"result"}),
		CacheBreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "reconcile_view_cache_breaker_open",
			Help: "View cache circuit breaker state (0=closed, 1=open)",
		}),
		EventsPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "reconcile_events_published_total",
			Help: "Contact events delivered to the broker",
		}),
		EventsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "reconcile_events_failed_total",
			Help: "Contact events the broker rejected",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "reconcile_events_dropped_total",
			Help: "Contact events dropped because the outbound queue was full",
		}),
	}
}

func (m *Metrics) IncResolution(kind models.OutcomeKind) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(string(kind)).Inc()
}

// ObserveIdentify records an identify duration. Call with the start time.
func (m *Metrics) ObserveIdentify(start time.Time) {
	if m == nil {
		return
	}
	m.IdentifyDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddChainsMerged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ChainsMerged.Add(float64(n))
}

func (m *Metrics) IncCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) SetCacheBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CacheBreakerOpen.Set(1)
	} else {
		m.CacheBreakerOpen.Set(0)
	}
}

func (m *Metrics) IncEventsPublished() {
	if m == nil {
		return
	}
	m.EventsPublished.Inc()
}

func (m *Metrics) IncEventsFailed() {
	if m == nil {
		return
	}
	m.EventsFailed.Inc()
}

func (m *Metrics) IncEventsDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}
