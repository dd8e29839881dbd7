package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the layout engine
type Registry struct {
	// Layout Metrics
	LayoutRunsTotal        *prometheus.CounterVec
	LayoutRunDuration      *prometheus.HistogramVec
	LayoutStepsTotal       *prometheus.CounterVec
	LayoutBackendFallbacks *prometheus.CounterVec
	LayoutStaleBatches     prometheus.Counter
	LayoutDroppedEdges     prometheus.Counter
	LayoutCalculating      prometheus.Gauge

	// Worker Pool Metrics
	PoolTasksTotal     *prometheus.CounterVec
	PoolTaskDuration   prometheus.Histogram
	PoolUtilization    prometheus.Gauge
	PoolQueueDepth     prometheus.Gauge
	PoolWorkers        prometheus.Gauge
	PoolWorkerRestarts prometheus.Counter

	// Kernel Metrics
	KernelDispatchesTotal  *prometheus.CounterVec
	KernelDispatchDuration *prometheus.HistogramVec
	KernelDeviceOpensTotal *prometheus.CounterVec

	// Uptime is computed on scrape; Go runtime and process metrics come
	// from the client_golang collectors
	Uptime prometheus.GaugeFunc

	registry  *prometheus.Registry
	startTime time.Time
}

// NewRegistry creates a registry with every metric registered. Each
// component takes its Registry as a dependency; there is no global one.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry:  reg,
		startTime: time.Now(),
	}

	// Initialize all metrics
	r.initLayoutMetrics()
	r.initPoolMetrics()
	r.initKernelMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
