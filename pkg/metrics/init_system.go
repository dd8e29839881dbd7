package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// initSystemMetrics registers the Go runtime and process collectors next
// to an uptime gauge read at scrape time
func (r *Registry) initSystemMetrics() {
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: "layout"}),
	)

	r.Uptime = promauto.With(r.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "layout_engine_uptime_seconds",
			Help: "Time since the metrics registry was created in seconds",
		},
		func() float64 { return time.Since(r.startTime).Seconds() },
	)
}
