package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RecordLayoutRun records a finished layout run
func (r *Registry) RecordLayoutRun(backend, status string, steps int, duration time.Duration) {
	r.LayoutRunsTotal.WithLabelValues(backend, status).Inc()
	r.LayoutRunDuration.WithLabelValues(backend).Observe(duration.Seconds())
	r.LayoutStepsTotal.WithLabelValues(backend).Add(float64(steps))
}

// RecordFallback records a backend that failed to initialize
func (r *Registry) RecordFallback(from, to string) {
	r.LayoutBackendFallbacks.WithLabelValues(from, to).Inc()
}

// SetCalculating flips the in-progress gauge
func (r *Registry) SetCalculating(on bool) {
	if on {
		r.LayoutCalculating.Set(1)
	} else {
		r.LayoutCalculating.Set(0)
	}
}

// RecordPoolTask records a task leaving the worker pool
func (r *Registry) RecordPoolTask(status string, duration time.Duration) {
	r.PoolTasksTotal.WithLabelValues(status).Inc()
	r.PoolTaskDuration.Observe(duration.Seconds())
}

// UpdatePoolMetrics updates the pool gauges
func (r *Registry) UpdatePoolMetrics(workers, queued int, utilization float64) {
	r.PoolWorkers.Set(float64(workers))
	r.PoolQueueDepth.Set(float64(queued))
	r.PoolUtilization.Set(utilization)
}

// RecordKernelDispatch records one kernel dispatch
func (r *Registry) RecordKernelDispatch(kernel string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.KernelDispatchesTotal.WithLabelValues(kernel, status).Inc()
	r.KernelDispatchDuration.WithLabelValues(kernel).Observe(duration.Seconds())
}

// RecordDeviceOpen records a compute device probe
func (r *Registry) RecordDeviceOpen(device string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.KernelDeviceOpensTotal.WithLabelValues(device, status).Inc()
}

// Handler serves the registry in the Prometheus text format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
