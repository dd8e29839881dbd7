package layout

import (
	"context"
	"sync"
	"sync/atomic"
)

// Run is one invocation of Manager.Layout
type Run struct {
	gen      uint64
	backend  Backend
	strategy Strategy
	ids      []string

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	result Result
	err    error

	destroyOnce sync.Once
}

func newRun(ctx context.Context, gen uint64, s Strategy, ids []string) *Run {
	runCtx, cancel := context.WithCancel(ctx)
	return &Run{
		gen:      gen,
		backend:  s.Backend(),
		strategy: s,
		ids:      ids,
		ctx:      runCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Wait blocks until the run finishes or ctx is done. A cancelled or
// superseded run returns context.Canceled.
func (r *Run) Wait(ctx context.Context) (Result, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Done is closed when the run has finished
func (r *Run) Done() <-chan struct{} { return r.done }

// Cancel stops the run. It does not wait for the stepping goroutine.
func (r *Run) Cancel() { r.cancel() }

func (r *Run) Generation() uint64 { return r.gen }
func (r *Run) Backend() Backend   { return r.backend }
func (r *Run) State() State       { return State(r.state.Load()) }

// NodePosition resolves a node against this run's strategy
func (r *Run) NodePosition(id string) Position {
	return r.strategy.NodePosition(id)
}

func (r *Run) setState(s State) { r.state.Store(int32(s)) }

func (r *Run) progress() (int, float64) {
	if p, ok := r.strategy.(progressReporter); ok {
		return p.Progress()
	}
	return 0, 0
}

func (r *Run) snapshot() []PositionUpdate {
	out := make([]PositionUpdate, len(r.ids))
	for i, id := range r.ids {
		p := r.strategy.NodePosition(id)
		out[i] = PositionUpdate{NodeID: id, X: p.X, Y: p.Y, Z: p.Z}
	}
	return out
}

func (r *Run) destroy() {
	r.destroyOnce.Do(r.strategy.Destroy)
}

// retire cancels the run, waits for its stepping goroutine and releases
// the backend
func (r *Run) retire() {
	r.cancel()
	<-r.done
	r.destroy()
}
