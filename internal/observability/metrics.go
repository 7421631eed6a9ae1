package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the dashboard service.
type Metrics struct {
	// Refresh pipeline metrics.
	Refreshes         *prometheus.CounterVec // labels: outcome={success,degraded,source_error,discarded}
	RecordsFetched    prometheus.Counter
	RecordsDropped    *prometheus.CounterVec // labels: reason={invalid_cell,invalid_intensity}
	RecordsCollapsed  prometheus.Counter
	RefreshDuration   prometheus.Histogram
	DetectionsCurrent *prometheus.GaugeVec // labels: severity
	SnapshotPublishes *prometheus.CounterVec // labels: outcome={success,error}

	// Selection metrics.
	SelectionEvents *prometheus.CounterVec // labels: kind={select,swap,clear,reveal}
	ActiveSessions  prometheus.Gauge

	// Reverse geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Refreshes,
		m.RecordsFetched,
		m.RecordsDropped,
		m.RecordsCollapsed,
		m.RefreshDuration,
		m.DetectionsCurrent,
		m.SnapshotPublishes,
		m.SelectionEvents,
		m.ActiveSessions,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wildfire",
			Name:      "refreshes_total",
			Help:      "Refresh attempts by outcome.",
		}, []string{"outcome"}),
		RecordsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wildfire",
			Name:      "records_fetched_total",
			Help:      "Total raw hotspot records returned by the data source.",
		}),
		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wildfire",
			Name:      "records_dropped_total",
			Help:      "Raw records dropped during a refresh, by reason.",
		}, []string{"reason"}),
		RecordsCollapsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wildfire",
			Name:      "records_collapsed_total",
			Help:      "Raw records superseded by another observation of the same cell in one refresh.",
		}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wildfire",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete fetch-decode-classify-swap cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		DetectionsCurrent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wildfire",
			Name:      "detections_current",
			Help:      "Detections in the current map snapshot, by severity.",
		}, []string{"severity"}),
		SnapshotPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wildfire",
			Name:      "snapshot_publishes_total",
			Help:      "Snapshot publish attempts to the sink topic, by outcome.",
		}, []string{"outcome"}),
		SelectionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wildfire",
			Name:      "selection_events_total",
			Help:      "Selection state transitions, by kind.",
		}, []string{"kind"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wildfire",
			Name:      "active_sessions",
			Help:      "Open dashboard sessions.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wildfire",
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wildfire",
			Name:      "geocode_cache_total",
			Help:      "Reverse geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wildfire",
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wildfire",
			Name:      "geocode_enabled",
			Help:      "1 when place-name lookup is enabled, 0 otherwise.",
		}),
	}
}
