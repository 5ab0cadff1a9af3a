package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// fusion engine and query surface.
type Metrics struct {
	FusionRuns          *prometheus.CounterVec // labels: outcome={success,error}
	FusionDuration      prometheus.Histogram
	InterpolationFaults prometheus.Counter
	GridCells           prometheus.Gauge

	// Store metrics.
	StoreRebuilds  *prometheus.CounterVec // labels: outcome={success,error}
	SnapshotActive prometheus.Gauge

	// Query surface metrics.
	Requests           *prometheus.CounterVec // labels: endpoint, outcome={ok,client_error,degraded,error}
	TileRenderDuration prometheus.Histogram
	AlertsPublished    prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FusionRuns,
		m.FusionDuration,
		m.InterpolationFaults,
		m.GridCells,
		m.StoreRebuilds,
		m.SnapshotActive,
		m.Requests,
		m.TileRenderDuration,
		m.AlertsPublished,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FusionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airgrid",
			Name:      "fusion_runs_total",
			Help:      "Fusion pipeline runs by outcome.",
		}, []string{"outcome"}),
		FusionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "airgrid",
			Name:      "fusion_duration_seconds",
			Help:      "Duration of a complete fusion run.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		InterpolationFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airgrid",
			Name:      "interpolation_faults_total",
			Help:      "Malformed-input interpolation failures, each fatal to one fusion run.",
		}),
		GridCells: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "airgrid",
			Name:      "grid_cells",
			Help:      "Node count of the most recently fused grid.",
		}),
		StoreRebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airgrid",
			Name:      "store_rebuilds_total",
			Help:      "Grid store rebuilds by outcome.",
		}, []string{"outcome"}),
		SnapshotActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "airgrid",
			Name:      "snapshot_active",
			Help:      "1 when a grid snapshot is being served, 0 before the first build.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airgrid",
			Name:      "requests_total",
			Help:      "Query API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		TileRenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "airgrid",
			Name:      "tile_render_duration_seconds",
			Help:      "Raster tile render duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		AlertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airgrid",
			Name:      "alerts_published_total",
			Help:      "Alert events published to the sink topic.",
		}),
	}
}
