package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initPoolMetrics() {
	r.PoolTasksTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_tasks_total",
			Help: "Total number of worker pool tasks by outcome",
		},
		[]string{"status"},
	)

	r.PoolTaskDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pool_task_duration_seconds",
			Help:    "Time from submission to result for worker pool tasks",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
	)

	r.PoolUtilization = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "pool_utilization_percent",
			Help: "Busy workers as a percentage of the pool size",
		},
	)

	r.PoolQueueDepth = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "pool_queue_depth",
			Help: "Tasks waiting for an idle worker",
		},
	)

	r.PoolWorkers = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "pool_workers",
			Help: "Number of live workers",
		},
	)

	r.PoolWorkerRestarts = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "pool_worker_restarts_total",
			Help: "Workers replaced after a crash",
		},
	)
}
