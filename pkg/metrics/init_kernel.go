package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initKernelMetrics() {
	r.KernelDispatchesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernel_dispatches_total",
			Help: "Total number of kernel dispatches by kernel and outcome",
		},
		[]string{"kernel", "status"},
	)

	r.KernelDispatchDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kernel_dispatch_duration_seconds",
			Help:    "Kernel dispatch duration in seconds",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1.0},
		},
		[]string{"kernel"},
	)

	r.KernelDeviceOpensTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernel_device_opens_total",
			Help: "Compute device probes by device and outcome",
		},
		[]string{"device", "status"},
	)
}
