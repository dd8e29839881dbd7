package layout

// DefaultThreshold is the node count at which force layouts leave the
// caller's goroutine
const DefaultThreshold = 100

// SelectOptions tunes SelectBackend
type SelectOptions struct {
	// Threshold is the minimum node count for the concurrent backend.
	// Zero means DefaultThreshold.
	Threshold int

	// Concurrent is WorkerPool or GpuKernel. Synchronous, the zero value,
	// means WorkerPool.
	Concurrent Backend
}

// SelectBackend picks the backend for a layout. Large force-directed
// layouts go to the concurrent backend; everything else runs in-process.
func SelectBackend(layoutType string, nodeCount int, opts SelectOptions) Backend {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if !IsForceDirected(layoutType) || nodeCount < threshold {
		return Synchronous
	}
	if opts.Concurrent == Synchronous {
		return WorkerPool
	}
	return opts.Concurrent
}
