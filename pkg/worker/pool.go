package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-layout/pkg/logging"
	"github.com/dd0wney/cluso-layout/pkg/metrics"
)

// MaxDefaultSize caps the pool size chosen from the CPU count
const MaxDefaultSize = 8

// Config holds worker pool settings
type Config struct {
	// Size is the number of workers; 0 means min(NumCPU, MaxDefaultSize)
	Size int `yaml:"size" toml:"size" validate:"gte=0,lte=256"`

	// Transport is "chan" or "inproc"
	Transport string `yaml:"transport" toml:"transport" validate:"omitempty,oneof=chan inproc"`

	CompressThreshold int           `yaml:"compress_threshold" toml:"compress_threshold" validate:"gte=0"`
	ProgressInterval  time.Duration `yaml:"progress_interval" toml:"progress_interval" validate:"gte=0"`
}

// DefaultConfig returns the default pool settings
func DefaultConfig() Config {
	return Config{
		Transport:         TransportChan,
		CompressThreshold: DefaultCompressThreshold,
		ProgressInterval:  DefaultProgressInterval,
	}
}

// HandlerFactory builds the handler of a new worker. Worker IDs are never
// reused, so a replacement worker gets a fresh ID.
type HandlerFactory func(workerID int) Handler

// Option configures a Pool
type Option func(*Pool)

func WithLogger(l logging.Logger) Option { return func(p *Pool) { p.logger = l } }

func WithMetrics(m *metrics.Registry) Option { return func(p *Pool) { p.metrics = m } }

func WithTransport(t Transport) Option { return func(p *Pool) { p.transport = t } }

func WithHandlerFactory(f HandlerFactory) Option { return func(p *Pool) { p.handlers = f } }

// Pool runs layout requests on a fixed set of background workers.
// A crashed worker fails only the task it owned and is replaced.
type Pool struct {
	cfg       Config
	codec     Codec
	transport Transport
	handlers  HandlerFactory
	logger    logging.Logger
	metrics   *metrics.Registry

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	workers []*workerHandle
	queue   []*task
	tasks   map[string]*task
	closed  bool
	nextID  int

	wg sync.WaitGroup

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	crashed   atomic.Uint64
	cancelled atomic.Uint64
	restarts  atomic.Uint64
}

type workerHandle struct {
	id      int
	host    Endpoint
	remote  Endpoint
	task    *task
	cancel  context.CancelFunc
	retired bool
	done    chan struct{}
	err     error // set before done is closed
}

type task struct {
	id         string
	frame      []byte
	onProgress func(*Result)
	result     chan taskOutcome
	submitted  time.Time
	worker     *workerHandle
	abandoned  bool
}

type taskOutcome struct {
	res *Result
	err error
}

// Stats is a point-in-time view of the pool
type Stats struct {
	Workers     int
	Busy        int
	Queued      int
	Utilization float64
	Submitted   uint64
	Completed   uint64
	Failed      uint64
	Crashed     uint64
	Cancelled   uint64
	Restarts    uint64
}

// NewPool starts cfg.Size workers
func NewPool(cfg Config, opts ...Option) (*Pool, error) {
	if cfg.Size < 0 {
		return nil, fmt.Errorf("pool size %d is negative", cfg.Size)
	}
	if cfg.Size == 0 {
		cfg.Size = min(runtime.NumCPU(), MaxDefaultSize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:     cfg,
		codec:   Codec{CompressThreshold: cfg.CompressThreshold},
		logger:  logging.NewNopLogger(),
		tasks:   make(map[string]*task),
		ctx:     ctx,
		cancel:  cancel,
		workers: make([]*workerHandle, 0, cfg.Size),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.transport == nil {
		t, err := NewTransport(cfg.Transport)
		if err != nil {
			cancel()
			return nil, err
		}
		p.transport = t
	}
	if p.handlers == nil {
		h := ForceHandler{ProgressInterval: cfg.ProgressInterval}
		p.handlers = func(int) Handler { return h }
	}

	var spawnErr error
	p.mu.Lock()
	for i := 0; i < cfg.Size; i++ {
		w, err := p.spawnLocked()
		if err != nil {
			spawnErr = fmt.Errorf("failed to start worker %d: %w", i, err)
			break
		}
		p.workers = append(p.workers, w)
	}
	p.updateGaugesLocked()
	p.mu.Unlock()

	if spawnErr != nil {
		p.Close()
		return nil, spawnErr
	}

	p.logger.Info("Worker pool started",
		logging.Int("size", cfg.Size),
		logging.String("transport", p.transport.Name()))
	return p, nil
}

// spawnLocked connects and starts one worker. The caller holds p.mu.
func (p *Pool) spawnLocked() (*workerHandle, error) {
	id := p.nextID
	p.nextID++

	host, remote, err := p.transport.Connect(id)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(p.ctx)
	w := &workerHandle{id: id, host: host, remote: remote, cancel: cancel, done: make(chan struct{})}
	handler := p.handlers(id)

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		defer cancel()
		w.err = Serve(ctx, remote, handler, p.codec, p.logger.With(logging.WorkerID(id)))
		close(w.done)
		// Close the host side so the reader notices on every transport
		host.Close()
	}()
	go p.readLoop(w)

	return w, nil
}

// readLoop delivers worker responses until the host endpoint fails
func (p *Pool) readLoop(w *workerHandle) {
	defer p.wg.Done()

	for {
		frame, err := w.host.Recv()
		if err != nil {
			w.remote.Close()
			<-w.done
			p.handleWorkerExit(w)
			return
		}

		msg, err := p.codec.Decode(frame)
		if err != nil {
			p.logger.Warn("Dropping undecodable worker frame", logging.WorkerID(w.id), logging.Error(err))
			continue
		}
		p.handleMessage(w, msg)
	}
}

func (p *Pool) handleMessage(w *workerHandle, msg *Message) {
	p.mu.Lock()
	t := w.task
	if t == nil || t.id != msg.ID {
		p.mu.Unlock()
		p.logger.Debug("Discarding response for unknown task", logging.TaskID(msg.ID), logging.WorkerID(w.id))
		return
	}

	if !msg.Terminal() {
		abandoned := t.abandoned
		p.mu.Unlock()
		if !abandoned && t.onProgress != nil {
			if res, err := msg.DecodeResult(); err == nil {
				t.onProgress(res)
			}
		}
		return
	}

	w.task = nil
	delete(p.tasks, t.id)
	abandoned := t.abandoned
	p.dispatchLocked()
	p.updateGaugesLocked()
	p.mu.Unlock()

	if abandoned {
		return
	}

	if msg.Type == MsgLayoutError {
		p.failed.Add(1)
		p.finish(t, nil, &TaskError{TaskID: t.id, Kind: KindRemote, Message: msg.Error}, "error")
		return
	}
	res, err := msg.DecodeResult()
	if err != nil {
		p.failed.Add(1)
		p.finish(t, nil, &TaskError{TaskID: t.id, Kind: KindRemote, Message: err.Error(), Cause: err}, "error")
		return
	}
	p.completed.Add(1)
	p.finish(t, res, nil, "success")
}

// handleWorkerExit rejects the task a dead worker owned and replaces it
func (p *Pool) handleWorkerExit(w *workerHandle) {
	p.mu.Lock()
	if p.closed || w.retired {
		p.mu.Unlock()
		return
	}

	t := w.task
	w.task = nil
	if t != nil {
		delete(p.tasks, t.id)
	}
	replacement, orphaned, spawnErr := p.replaceLocked(w)
	p.dispatchLocked()
	p.updateGaugesLocked()
	p.mu.Unlock()

	cause := w.err
	if cause == nil || !errors.Is(cause, ErrWorkerCrashed) {
		cause = fmt.Errorf("%w: worker %d exited: %v", ErrWorkerCrashed, w.id, cause)
	}
	p.logger.Warn("Worker exited", logging.WorkerID(w.id), logging.Error(cause))
	p.replaced(w, replacement, spawnErr, orphaned)

	if t != nil && !t.abandoned {
		p.crashed.Add(1)
		p.finish(t, nil, &TaskError{TaskID: t.id, Kind: KindCrash, Message: cause.Error(), Cause: cause}, "crashed")
	}
}

// replaceLocked swaps w for a fresh worker in the same slot. If the spawn
// fails the slot is dropped, and once no slot is left the queued tasks are
// returned so the caller can reject them.
func (p *Pool) replaceLocked(w *workerHandle) (*workerHandle, []*task, error) {
	slot := -1
	for i, candidate := range p.workers {
		if candidate == w {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, nil, nil
	}

	replacement, err := p.spawnLocked()
	if err == nil {
		p.workers[slot] = replacement
		return replacement, nil, nil
	}
	p.workers = append(p.workers[:slot], p.workers[slot+1:]...)
	if len(p.workers) > 0 {
		return nil, nil, err
	}

	orphaned := p.queue
	p.queue = nil
	for _, t := range orphaned {
		delete(p.tasks, t.id)
	}
	return nil, orphaned, err
}

// replaced records the outcome of replaceLocked. The caller must not hold p.mu.
func (p *Pool) replaced(old, replacement *workerHandle, spawnErr error, orphaned []*task) {
	if replacement != nil {
		p.restarts.Add(1)
		if p.metrics != nil {
			p.metrics.PoolWorkerRestarts.Inc()
		}
		p.logger.Info("Worker replaced", logging.WorkerID(old.id), logging.Int("replacement", replacement.id))
	} else if spawnErr != nil {
		p.logger.Error("Failed to replace worker", logging.WorkerID(old.id), logging.Error(spawnErr))
	}
	for _, t := range orphaned {
		p.finish(t, nil, fmt.Errorf("%w: no workers left: %v", ErrPoolClosed, spawnErr), "closed")
	}
}

// Execute runs req on the next idle worker and blocks until its result
// arrives or ctx is done. onProgress, when non-nil, is called from the
// pool's reader goroutine for each progress message.
func (p *Pool) Execute(ctx context.Context, req Request, onProgress func(*Result)) (*Result, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	msg, err := newMessage(MsgCalculateLayout, req.ID, &req)
	if err != nil {
		return nil, err
	}
	frame, err := p.codec.Encode(msg)
	if err != nil {
		return nil, err
	}

	t := &task{
		id:         req.ID,
		frame:      frame,
		onProgress: onProgress,
		result:     make(chan taskOutcome, 1),
		submitted:  time.Now(),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if len(p.workers) == 0 {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: no workers left", ErrPoolClosed)
	}
	if _, dup := p.tasks[t.id]; dup {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, t.id)
	}
	p.tasks[t.id] = t
	p.queue = append(p.queue, t)
	p.dispatchLocked()
	p.updateGaugesLocked()
	p.mu.Unlock()
	p.submitted.Add(1)

	select {
	case out := <-t.result:
		return out.res, out.err
	case <-ctx.Done():
		p.abandon(t)
		return nil, ctx.Err()
	}
}

// abandon forgets a task whose caller gave up. A queued task is removed.
// The worker running an in-flight task is stopped and replaced, so the
// slot is free for the next task right away.
func (p *Pool) abandon(t *task) {
	p.mu.Lock()
	if _, ok := p.tasks[t.id]; !ok || t.abandoned {
		p.mu.Unlock()
		return
	}
	t.abandoned = true
	delete(p.tasks, t.id)
	p.cancelled.Add(1)
	if p.metrics != nil {
		p.metrics.RecordPoolTask("cancelled", time.Since(t.submitted))
	}

	w := t.worker
	if w == nil {
		for i, queued := range p.queue {
			if queued == t {
				p.queue = append(p.queue[:i], p.queue[i+1:]...)
				break
			}
		}
		p.updateGaugesLocked()
		p.mu.Unlock()
		return
	}

	w.task = nil
	w.retired = true
	w.cancel()
	w.host.Close()
	w.remote.Close()
	replacement, orphaned, spawnErr := p.replaceLocked(w)
	p.dispatchLocked()
	p.updateGaugesLocked()
	p.mu.Unlock()

	p.logger.Debug("Stopped worker of abandoned task", logging.TaskID(t.id), logging.WorkerID(w.id))
	p.replaced(w, replacement, spawnErr, orphaned)
}

// dispatchLocked hands queued tasks to idle workers in FIFO order
func (p *Pool) dispatchLocked() {
	for len(p.queue) > 0 {
		w := p.idleWorkerLocked()
		if w == nil {
			return
		}
		t := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]

		w.task = t
		t.worker = w
		if err := w.host.Send(t.frame); err != nil {
			// The reader sees the same failure and rejects the task
			p.logger.Warn("Failed to send task", logging.TaskID(t.id), logging.WorkerID(w.id), logging.Error(err))
		}
	}
}

// idleWorkerLocked returns the lowest-slot idle worker
func (p *Pool) idleWorkerLocked() *workerHandle {
	for _, w := range p.workers {
		if w.task == nil {
			return w
		}
	}
	return nil
}

func (p *Pool) finish(t *task, res *Result, err error, status string) {
	if p.metrics != nil {
		p.metrics.RecordPoolTask(status, time.Since(t.submitted))
	}
	t.result <- taskOutcome{res: res, err: err}
}

func (p *Pool) busyLocked() int {
	busy := 0
	for _, w := range p.workers {
		if w.task != nil {
			busy++
		}
	}
	return busy
}

func (p *Pool) utilizationLocked() float64 {
	if len(p.workers) == 0 {
		return 0
	}
	return float64(p.busyLocked()) / float64(len(p.workers)) * 100
}

func (p *Pool) updateGaugesLocked() {
	if p.metrics != nil {
		p.metrics.UpdatePoolMetrics(len(p.workers), len(p.queue), p.utilizationLocked())
	}
}

// Utilization returns busy workers as a percentage of the pool size
func (p *Pool) Utilization() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.utilizationLocked()
}

// Size returns the number of live workers
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Stats returns a snapshot of the pool counters
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		Workers:     len(p.workers),
		Busy:        p.busyLocked(),
		Queued:      len(p.queue),
		Utilization: p.utilizationLocked(),
	}
	p.mu.Unlock()

	s.Submitted = p.submitted.Load()
	s.Completed = p.completed.Load()
	s.Failed = p.failed.Load()
	s.Crashed = p.crashed.Load()
	s.Cancelled = p.cancelled.Load()
	s.Restarts = p.restarts.Load()
	return s
}

// Close stops every worker and rejects all pending tasks with
// ErrPoolClosed. It is safe to call more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	pending := make([]*task, 0, len(p.tasks))
	for _, t := range p.tasks {
		if !t.abandoned {
			pending = append(pending, t)
		}
	}
	p.tasks = make(map[string]*task)
	p.queue = nil
	workers := p.workers
	for _, w := range workers {
		w.task = nil
	}
	p.workers = nil
	p.updateGaugesLocked()
	p.mu.Unlock()

	for _, t := range pending {
		p.finish(t, nil, ErrPoolClosed, "closed")
	}

	p.cancel()
	for _, w := range workers {
		w.host.Close()
		w.remote.Close()
	}
	p.wg.Wait()

	p.logger.Info("Worker pool closed", logging.Int("rejected", len(pending)))
	return nil
}
