package layout

import (
	"context"
	"errors"
	"sync"

	"github.com/dd0wney/cluso-layout/pkg/force"
	"github.com/dd0wney/cluso-layout/pkg/worker"
)

var errNoPool = errors.New("no worker pool configured")

// poolStrategy runs the whole simulation as one task on the worker pool.
// Progress messages are merged into a local position map as they arrive.
type poolStrategy struct {
	pool   *worker.Pool
	req    worker.Request
	drags  DragReader
	center Position

	mu        sync.RWMutex
	positions map[string]Position
	iteration int
	alpha     float64
	err       error

	started bool
	updated chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc

	destroyOnce sync.Once
}

// newPoolStrategy snapshots the current drags into the request pins.
// Drags made after submission are applied by NodePosition only.
func newPoolStrategy(pool *worker.Pool, layoutType string, g *force.Graph, nodes []force.NodeSpec, edges []force.EdgeSpec, cfg force.Config, drags DragReader) (*poolStrategy, error) {
	if pool == nil {
		return nil, errNoPool
	}
	if pool.Size() == 0 {
		return nil, worker.ErrPoolClosed
	}

	specs := make([]force.NodeSpec, len(nodes))
	copy(specs, nodes)
	for i := range specs {
		if pin, ok := drags.DragOverride(specs[i].ID); ok {
			specs[i].Pin = pin
		}
	}

	return &poolStrategy{
		pool:      pool,
		req:       worker.NewRequest(layoutType, specs, edges, cfg),
		drags:     drags,
		center:    cfg.Center,
		positions: initialPositions(g),
		alpha:     cfg.Alpha,
		updated:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Step submits the task on its first call, then blocks until the next
// progress message, completion or ctx.
func (s *poolStrategy) Step(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if !s.started {
		s.started = true
		execCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		go s.execute(execCtx)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return s.finished()
	default:
	}

	select {
	case <-s.done:
		return s.finished()
	case <-s.updated:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (s *poolStrategy) finished() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return false, s.err
	}
	return true, nil
}

func (s *poolStrategy) execute(ctx context.Context) {
	defer close(s.done)
	res, err := s.pool.Execute(ctx, s.req, s.merge)
	if err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		return
	}
	s.merge(res)
}

func (s *poolStrategy) merge(res *worker.Result) {
	s.mu.Lock()
	for _, n := range res.Nodes {
		s.positions[n.ID] = Position{X: n.X, Y: n.Y, Z: n.Z}
	}
	s.iteration = res.Iteration
	s.alpha = res.Alpha
	s.mu.Unlock()

	select {
	case s.updated <- struct{}{}:
	default:
	}
}

func (s *poolStrategy) NodePosition(id string) Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return resolvePosition(s.drags, id, s.center, func(id string) (Position, bool) {
		p, ok := s.positions[id]
		return p, ok
	})
}

func (s *poolStrategy) Progress() (int, float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.iteration, s.alpha
}

// Destroy abandons an unfinished task and waits until the pool has
// released its worker
func (s *poolStrategy) Destroy() {
	s.destroyOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
			<-s.done
		}
	})
}

func (s *poolStrategy) Backend() Backend { return WorkerPool }
