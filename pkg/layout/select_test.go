package layout

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestSelectBackend(t *testing.T) {
	tests := []struct {
		name       string
		layoutType string
		nodes      int
		opts       SelectOptions
		want       Backend
	}{
		{"small force layout", TypeForceDirected2D, 99, SelectOptions{Concurrent: WorkerPool}, Synchronous},
		{"at threshold", TypeForceDirected2D, 100, SelectOptions{Concurrent: WorkerPool}, WorkerPool},
		{"large force layout", TypeForceDirected2D, 101, SelectOptions{Concurrent: WorkerPool}, WorkerPool},
		{"large 3d on kernel", TypeForceDirected3D, 5000, SelectOptions{Concurrent: GpuKernel}, GpuKernel},
		{"zero concurrent means pool", TypeForceDirected3D, 500, SelectOptions{}, WorkerPool},
		{"custom threshold", TypeForceDirected2D, 10, SelectOptions{Threshold: 10, Concurrent: GpuKernel}, GpuKernel},
		{"circular is always in-process", TypeCircular, 10000, SelectOptions{Concurrent: GpuKernel}, Synchronous},
		{"hierarchical is always in-process", TypeHierarchical, 10000, SelectOptions{Concurrent: WorkerPool}, Synchronous},
		{"unknown type", "radial", 10000, SelectOptions{Concurrent: WorkerPool}, Synchronous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectBackend(tt.layoutType, tt.nodes, tt.opts); got != tt.want {
				t.Errorf("SelectBackend(%q, %d) = %v, want %v", tt.layoutType, tt.nodes, got, tt.want)
			}
		})
	}
}

func TestSelectBackendProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		layoutType := rapid.SampledFrom([]string{
			TypeForceDirected2D, TypeForceDirected3D, TypeCircular, TypeHierarchical,
		}).Draw(t, "type")
		nodes := rapid.IntRange(0, 100000).Draw(t, "nodes")
		threshold := rapid.IntRange(1, 10000).Draw(t, "threshold")
		concurrent := rapid.SampledFrom([]Backend{WorkerPool, GpuKernel}).Draw(t, "concurrent")
		opts := SelectOptions{Threshold: threshold, Concurrent: concurrent}

		got := SelectBackend(layoutType, nodes, opts)
		if again := SelectBackend(layoutType, nodes, opts); again != got {
			t.Fatalf("not deterministic: %v then %v", got, again)
		}

		wantConcurrent := IsForceDirected(layoutType) && nodes >= threshold
		switch {
		case wantConcurrent && got != concurrent:
			t.Fatalf("expected %v for %d nodes over threshold %d, got %v", concurrent, nodes, threshold, got)
		case !wantConcurrent && got != Synchronous:
			t.Fatalf("expected synchronous for %s with %d nodes, got %v", layoutType, nodes, got)
		}
	})
}

func TestParseBackend(t *testing.T) {
	for _, b := range []Backend{Synchronous, WorkerPool, GpuKernel} {
		got, err := ParseBackend(b.String())
		if err != nil {
			t.Fatalf("ParseBackend(%q): %v", b.String(), err)
		}
		if got != b {
			t.Errorf("ParseBackend(%q) = %v", b.String(), got)
		}
	}

	if b, err := ParseBackend(" GPU "); err != nil || b != GpuKernel {
		t.Errorf("alias gpu = %v, %v", b, err)
	}
	if _, err := ParseBackend("quantum"); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	want := map[State]string{
		Initializing: "initializing",
		Running:      "running",
		Converged:    "converged",
		Stopped:      "stopped",
	}
	for s, name := range want {
		if s.String() != name {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), name)
		}
	}
}
