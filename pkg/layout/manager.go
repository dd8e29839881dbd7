package layout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-layout/pkg/force"
	"github.com/dd0wney/cluso-layout/pkg/kernel"
	"github.com/dd0wney/cluso-layout/pkg/logging"
	"github.com/dd0wney/cluso-layout/pkg/metrics"
	"github.com/dd0wney/cluso-layout/pkg/pubsub"
	"github.com/dd0wney/cluso-layout/pkg/worker"
)

// TopicPositions carries Batches of every run
const TopicPositions = "positions"

// Config tunes the manager
type Config struct {
	// Threshold is the node count at which force layouts go concurrent
	Threshold int

	// Concurrent is the preferred concurrent backend
	Concurrent Backend

	// PublishEvery is the number of steps between batches on the
	// concurrent path. Zero means every step.
	PublishEvery int

	// Buffer is the per-subscriber batch buffer
	Buffer int
}

// DefaultConfig returns the manager defaults
func DefaultConfig() Config {
	return Config{
		Threshold:    DefaultThreshold,
		Concurrent:   WorkerPool,
		PublishEvery: 1,
		Buffer:       pubsub.DefaultBuffer,
	}
}

// Deps are the collaborators of a Manager. Every field is optional: a nil
// Pool or OpenDevice makes that backend fall back.
type Deps struct {
	Pool       *worker.Pool
	OpenDevice kernel.Opener
	Drags      DragReader
	Logger     logging.Logger
	Metrics    *metrics.Registry
}

// Manager owns at most one active layout run and fans its positions out
// to subscribers
type Manager struct {
	cfg     Config
	pool    *worker.Pool
	open    kernel.Opener
	drags   DragReader
	logger  logging.Logger
	metrics *metrics.Registry
	ps      *pubsub.PubSub[Batch]

	mu     sync.Mutex // serializes Layout and Close
	closed bool

	active      atomic.Pointer[Run]
	generation  atomic.Uint64
	calculating atomic.Bool
}

// NewManager creates a manager
func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.PublishEvery <= 0 {
		cfg.PublishEvery = 1
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = pubsub.DefaultBuffer
	}
	m := &Manager{
		cfg:     cfg,
		pool:    deps.Pool,
		open:    deps.OpenDevice,
		drags:   deps.Drags,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		ps:      pubsub.NewPubSubWithBuffer[Batch](cfg.Buffer),
	}
	if m.drags == nil {
		m.drags = noDrags{}
	}
	if m.logger == nil {
		m.logger = logging.NewNopLogger()
	}
	return m
}

// Layout retires the previous run and starts a new one. Synchronous runs
// complete before Layout returns; concurrent runs step on their own
// goroutine and publish Batches. ctx bounds the whole run.
func (m *Manager) Layout(ctx context.Context, req Request) (*Run, error) {
	if !knownType(req.Type) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLayoutType, req.Type)
	}
	cfg := req.Config
	cfg.Is3D = req.Type == TypeForceDirected3D
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if prev := m.active.Load(); prev != nil {
		prev.retire()
	}
	gen := m.generation.Add(1)
	m.setCalculating(true)

	g := force.BuildGraph(req.Nodes, req.Edges, cfg)
	if len(g.Dropped) > 0 {
		m.logger.Debug("dropped dangling edges",
			logging.Generation(gen),
			logging.Count(len(g.Dropped)))
		if m.metrics != nil {
			m.metrics.LayoutDroppedEdges.Add(float64(len(g.Dropped)))
		}
	}

	want := SelectBackend(req.Type, len(g.Nodes), SelectOptions{
		Threshold:  m.cfg.Threshold,
		Concurrent: m.cfg.Concurrent,
	})
	strategy, err := m.initStrategy(ctx, want, req, g, cfg)
	if err != nil {
		m.setCalculating(false)
		m.mu.Unlock()
		return nil, err
	}

	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	run := newRun(ctx, gen, strategy, ids)
	m.active.Store(run)
	m.mu.Unlock()

	m.logger.Debug("layout started",
		logging.Generation(gen),
		logging.LayoutType(req.Type),
		logging.Backend(run.backend),
		logging.Count(len(ids)))

	if run.backend == Synchronous {
		m.drive(run)
		return run, nil
	}
	go m.drive(run)
	return run, nil
}

// initStrategy walks the fallback chain from want until a backend
// initializes. Failures are logged and counted, never returned, except
// for the last backend in the chain.
func (m *Manager) initStrategy(ctx context.Context, want Backend, req Request, g *force.Graph, cfg force.Config) (Strategy, error) {
	if !IsForceDirected(req.Type) {
		return newStaticStrategy(req.Type, g, cfg, m.drags), nil
	}

	b := want
	for {
		s, err := m.newStrategy(ctx, b, req, g, cfg)
		if err == nil {
			return s, nil
		}
		next, ok := b.next()
		if !ok {
			return nil, fmt.Errorf("init %s backend: %w", b, err)
		}
		m.logger.Warn("backend init failed, falling back",
			logging.Backend(b),
			logging.String("fallback", next.String()),
			logging.Error(err))
		if m.metrics != nil {
			m.metrics.RecordFallback(b.String(), next.String())
		}
		b = next
	}
}

func (m *Manager) newStrategy(ctx context.Context, b Backend, req Request, g *force.Graph, cfg force.Config) (Strategy, error) {
	switch b {
	case GpuKernel:
		return m.newKernel(ctx, g, cfg)
	case WorkerPool:
		return newPoolStrategy(m.pool, req.Type, g, req.Nodes, req.Edges, cfg, m.drags)
	default:
		return newSyncStrategy(g, cfg, m.drags)
	}
}

func (m *Manager) newKernel(ctx context.Context, g *force.Graph, cfg force.Config) (Strategy, error) {
	if m.open == nil {
		return nil, kernel.ErrNoDevice
	}
	dev, err := m.open(ctx)
	if m.metrics != nil {
		name := "unavailable"
		if dev != nil {
			name = dev.Name()
		}
		m.metrics.RecordDeviceOpen(name, err)
	}
	if err != nil {
		return nil, err
	}

	var opts []kernel.ProgramOption
	if m.metrics != nil {
		reg := m.metrics
		opts = append(opts, kernel.WithObserver(func(name string, _ int, d time.Duration, err error) {
			reg.RecordKernelDispatch(name, d, err)
		}))
	}
	s, err := newKernelStrategy(dev, g, cfg, m.drags, opts...)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	m.logger.Debug("kernel device ready", logging.Device(dev.Name()), logging.Int("lanes", dev.Lanes()))
	return s, nil
}

// drive steps a run to its end. It runs on the caller's goroutine for
// synchronous runs and on a dedicated goroutine otherwise.
func (m *Manager) drive(run *Run) {
	defer close(run.done)

	timer := logging.StartTimer(m.logger, "layout finished",
		logging.Generation(run.gen),
		logging.Backend(run.backend))
	run.setState(Running)
	concurrent := run.backend != Synchronous

	var (
		steps int
		err   error
	)
	for {
		done, stepErr := run.strategy.Step(run.ctx)
		if stepErr != nil {
			err = stepErr
			break
		}
		steps++
		if done {
			break
		}
		if concurrent && steps%m.cfg.PublishEvery == 0 {
			m.publish(run, false)
		}
	}

	iterations, alpha := run.progress()
	run.result = Result{
		Positions:  run.snapshot(),
		Iterations: iterations,
		Duration:   timer.Elapsed(),
		Backend:    run.backend,
	}

	status := "converged"
	switch {
	case err == nil:
		run.setState(Converged)
		m.publish(run, true)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		status = "cancelled"
		run.setState(Stopped)
	default:
		status = "error"
		run.setState(Stopped)
	}
	run.err = err
	run.destroy()

	if m.metrics != nil {
		m.metrics.RecordLayoutRun(run.backend.String(), status, iterations, run.result.Duration)
	}
	outcome := []logging.Field{
		logging.String("status", status),
		logging.Iteration(iterations),
		logging.Alpha(alpha),
	}
	if status == "error" {
		timer.EndError(err, outcome...)
	} else {
		timer.End(outcome...)
	}

	if m.generation.Load() == run.gen {
		m.setCalculating(false)
	}
}

// publish fans a snapshot out to subscribers unless a newer run has
// started
func (m *Manager) publish(run *Run, done bool) {
	if run.gen != m.generation.Load() {
		if m.metrics != nil {
			m.metrics.LayoutStaleBatches.Inc()
		}
		return
	}
	iteration, alpha := run.progress()
	m.ps.Publish(TopicPositions, Batch{
		Generation: run.gen,
		Backend:    run.backend,
		Iteration:  iteration,
		Alpha:      alpha,
		Done:       done,
		Updates:    run.snapshot(),
	})
}

func (m *Manager) setCalculating(on bool) {
	m.calculating.Store(on)
	if m.metrics != nil {
		m.metrics.SetCalculating(on)
	}
}

// NodePosition resolves a node against the active run. Without a run it
// returns the drag override, if any, applied to the origin.
func (m *Manager) NodePosition(id string) Position {
	if run := m.active.Load(); run != nil {
		return run.NodePosition(id)
	}
	var pos Position
	if pin, ok := m.drags.DragOverride(id); ok {
		pos = pin.Apply(pos)
	}
	return pos
}

// IsCalculating reports whether the current run is still stepping
func (m *Manager) IsCalculating() bool { return m.calculating.Load() }

// Generation returns the generation of the newest run
func (m *Manager) Generation() uint64 { return m.generation.Load() }

// Active returns the newest run, or nil before the first Layout
func (m *Manager) Active() *Run { return m.active.Load() }

// Subscribe streams the Batches of every run until ctx is done or the
// manager closes
func (m *Manager) Subscribe(ctx context.Context) (*pubsub.Subscription[Batch], error) {
	return m.ps.Subscribe(ctx, TopicPositions)
}

// Close retires the active run and ends every subscription. The worker
// pool is owned by the caller and stays open.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if run := m.active.Load(); run != nil {
		run.retire()
	}
	m.setCalculating(false)
	m.ps.Shutdown()
	return nil
}
