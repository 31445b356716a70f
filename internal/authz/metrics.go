package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	fetchFound = "found"
	fetchEmpty = "empty"
	fetchError = "error"
	fetchStale = "stale"
)

// Metrics exposes Prometheus collectors for authorization resolution. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	fetches   *prometheus.CounterVec
	duration  prometheus.Histogram
	decisions *prometheus.CounterVec
	denials   *prometheus.CounterVec
	stores    prometheus.Gauge
}

// NewMetrics registers the authorization collectors on registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salesdesk_authz_fetches_total",
			Help: "Authorization record fetches by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "salesdesk_authz_fetch_duration_seconds",
			Help:    "Latency of authorization record fetches.",
			Buckets: prometheus.DefBuckets,
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salesdesk_authz_guard_decisions_total",
			Help: "Route guard outcomes.",
		}, []string{"outcome"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salesdesk_authz_action_denials_total",
			Help: "Mutations refused before reaching the data layer.",
		}, []string{"capability"}),
		stores: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "salesdesk_authz_sessions",
			Help: "Sessions with a live authorization store.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(m.fetches, m.duration, m.decisions, m.denials, m.stores)
	}
	return m
}

func (m *Metrics) observeFetch(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(result).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeDecision(o Outcome) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(o.String()).Inc()
}

// ObserveDenial counts a refused mutation.
func (m *Metrics) ObserveDenial(c Capability) {
	if m == nil {
		return
	}
	label := string(c)
	if label == "" {
		label = "admin"
	}
	m.denials.WithLabelValues(label).Inc()
}

func (m *Metrics) setStores(n int) {
	if m == nil {
		return
	}
	m.stores.Set(float64(n))
}
