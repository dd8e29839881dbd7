package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initLayoutMetrics() {
	r.LayoutRunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "layout_runs_total",
			Help: "Total number of layout runs by backend and outcome",
		},
		[]string{"backend", "status"},
	)

	r.LayoutRunDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "layout_run_duration_seconds",
			Help:    "Wall time of a layout run from start to convergence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		},
		[]string{"backend"},
	)

	r.LayoutStepsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "layout_steps_total",
			Help: "Total number of simulation steps executed",
		},
		[]string{"backend"},
	)

	r.LayoutBackendFallbacks = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "layout_backend_fallbacks_total",
			Help: "Backend initialization failures that downgraded a layout",
		},
		[]string{"from", "to"},
	)

	r.LayoutStaleBatches = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "layout_stale_batches_total",
			Help: "Position batches discarded because a newer layout superseded them",
		},
	)

	r.LayoutDroppedEdges = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "layout_dropped_edges_total",
			Help: "Edges dropped because an endpoint was missing",
		},
	)

	r.LayoutCalculating = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "layout_calculating",
			Help: "1 while a layout run is in progress",
		},
	)
}
