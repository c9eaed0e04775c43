package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the ingestion pipeline and the
// viewer fan-out.
type Metrics struct {
	AlertsIngested   *prometheus.CounterVec // labels: source={mqtt,firms,http}
	AlertsDropped    *prometheus.CounterVec // labels: source, reason={validation,persistence}
	AlertsDelivered  prometheus.Counter
	BroadcastsTotal  prometheus.Counter
	ConnectedViewers prometheus.Gauge
	PollDuration     prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.AlertsIngested,
		m.AlertsDropped,
		m.AlertsDelivered,
		m.BroadcastsTotal,
		m.ConnectedViewers,
		m.PollDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered metrics so parallel tests avoid
// "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		AlertsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skywatch",
			Name:      "alerts_ingested_total",
			Help:      "Alerts persisted and broadcast, by ingestion source.",
		}, []string{"source"}),
		AlertsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skywatch",
			Name:      "alerts_dropped_total",
			Help:      "Alerts dropped before fan-out, by source and reason.",
		}, []string{"source", "reason"}),
		AlertsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skywatch",
			Name:      "alerts_delivered_total",
			Help:      "Per-session alert deliveries over WebSocket.",
		}),
		BroadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skywatch",
			Name:      "broadcasts_total",
			Help:      "Broadcast calls issued after successful persistence.",
		}),
		ConnectedViewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skywatch",
			Name:      "connected_viewers",
			Help:      "Currently connected WebSocket viewer sessions.",
		}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "skywatch",
			Name:      "firms_poll_duration_seconds",
			Help:      "Duration of a FIRMS fetch-and-ingest cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}
