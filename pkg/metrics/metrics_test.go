package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}

	// Verify all metrics are initialized
	if r.LayoutRunsTotal == nil {
		t.Error("LayoutRunsTotal not initialized")
	}
	if r.PoolUtilization == nil {
		t.Error("PoolUtilization not initialized")
	}
	if r.KernelDispatchesTotal == nil {
		t.Error("KernelDispatchesTotal not initialized")
	}
	if r.registry == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	a.RecordFallback("kernel", "worker")

	var metric dto.Metric
	if err := b.LayoutBackendFallbacks.WithLabelValues("kernel", "worker").Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 0 {
		t.Errorf("Fallback leaked into another registry: %v", metric.Counter.GetValue())
	}
}

func TestRecordLayoutRun(t *testing.T) {
	r := NewRegistry()

	r.RecordLayoutRun("synchronous", "converged", 300, 20*time.Millisecond)
	r.RecordLayoutRun("synchronous", "converged", 250, 15*time.Millisecond)
	r.RecordLayoutRun("worker", "cancelled", 10, time.Millisecond)

	counter, err := r.LayoutRunsTotal.GetMetricWithLabelValues("synchronous", "converged")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}

	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2 {
		t.Errorf("Counter value = %v, want 2", metric.Counter.GetValue())
	}

	steps, _ := r.LayoutStepsTotal.GetMetricWithLabelValues("synchronous")
	if err := steps.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 550 {
		t.Errorf("Steps = %v, want 550", metric.Counter.GetValue())
	}
}

func TestRecordFallback(t *testing.T) {
	r := NewRegistry()

	r.RecordFallback("kernel", "worker")
	r.RecordFallback("kernel", "worker")
	r.RecordFallback("worker", "synchronous")

	counter, err := r.LayoutBackendFallbacks.GetMetricWithLabelValues("kernel", "worker")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}

	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2 {
		t.Errorf("Fallbacks = %v, want 2", metric.Counter.GetValue())
	}
}

func TestPoolMetrics(t *testing.T) {
	r := NewRegistry()

	r.UpdatePoolMetrics(4, 3, 75)
	r.RecordPoolTask("success", 10*time.Millisecond)
	r.RecordPoolTask("crashed", 5*time.Millisecond)
	r.PoolWorkerRestarts.Inc()

	tests := []struct {
		name     string
		gauge    prometheus.Gauge
		expected float64
	}{
		{"PoolWorkers", r.PoolWorkers, 4},
		{"PoolQueueDepth", r.PoolQueueDepth, 3},
		{"PoolUtilization", r.PoolUtilization, 75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var metric dto.Metric
			if err := tt.gauge.Write(&metric); err != nil {
				t.Fatalf("Failed to write metric: %v", err)
			}

			if metric.Gauge.GetValue() != tt.expected {
				t.Errorf("%s = %v, want %v", tt.name, metric.Gauge.GetValue(), tt.expected)
			}
		})
	}

	var metric dto.Metric
	if err := r.PoolTaskDuration.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 2 {
		t.Errorf("Task duration sample count = %v, want 2", metric.Histogram.GetSampleCount())
	}
}

func TestKernelMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordKernelDispatch("many_body", time.Microsecond, nil)
	r.RecordKernelDispatch("many_body", time.Microsecond, errors.New("lane failed"))
	r.RecordDeviceOpen("software", nil)

	var metric dto.Metric
	failed, _ := r.KernelDispatchesTotal.GetMetricWithLabelValues("many_body", "error")
	if err := failed.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1 {
		t.Errorf("Failed dispatches = %v, want 1", metric.Counter.GetValue())
	}

	opens, _ := r.KernelDeviceOpensTotal.GetMetricWithLabelValues("software", "success")
	if err := opens.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1 {
		t.Errorf("Device opens = %v, want 1", metric.Counter.GetValue())
	}
}

func TestSystemMetrics(t *testing.T) {
	r := NewRegistry()

	families, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	found := make(map[string]*dto.MetricFamily)
	for _, f := range families {
		found[f.GetName()] = f
	}
	if _, ok := found["go_goroutines"]; !ok {
		t.Error("Go runtime collector not registered")
	}
	uptime, ok := found["layout_engine_uptime_seconds"]
	if !ok {
		t.Fatal("uptime gauge not registered")
	}
	if v := uptime.GetMetric()[0].GetGauge().GetValue(); v < 0 {
		t.Errorf("uptime = %v, want >= 0", v)
	}
}

func TestMetricNaming(t *testing.T) {
	r := NewRegistry()
	promRegistry := r.GetPrometheusRegistry()

	metrics, err := promRegistry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	if len(metrics) == 0 {
		t.Fatal("No metrics registered")
	}

	prefixes := []string{"layout_", "pool_", "kernel_", "go_", "process_"}
	for _, m := range metrics {
		name := m.GetName()
		ok := false
		for _, p := range prefixes {
			if strings.HasPrefix(name, p) {
				ok = true
				break
			}
		}
		if !ok {
			t.Errorf("Metric %s has no known prefix", name)
		}
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.UpdatePoolMetrics(2, 0, 50)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "pool_utilization_percent 50") {
		t.Errorf("Expected utilization in scrape output, got:\n%s", body)
	}
}

func BenchmarkRecordKernelDispatch(b *testing.B) {
	r := NewRegistry()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.RecordKernelDispatch("link", time.Microsecond, nil)
	}
}
