package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dd0wney/cluso-layout/pkg/force"
	"github.com/dd0wney/cluso-layout/pkg/logging"
)

// DefaultProgressInterval is the minimum gap between progress messages
const DefaultProgressInterval = 50 * time.Millisecond

// Handler computes one layout request. progress may be called any number
// of times before Handle returns.
type Handler interface {
	Handle(ctx context.Context, req *Request, progress func(*Result)) (*Result, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, req *Request, progress func(*Result)) (*Result, error)

func (f HandlerFunc) Handle(ctx context.Context, req *Request, progress func(*Result)) (*Result, error) {
	return f(ctx, req, progress)
}

// ForceHandler runs the force simulation to convergence
type ForceHandler struct {
	ProgressInterval time.Duration
}

func (h ForceHandler) Handle(ctx context.Context, req *Request, progress func(*Result)) (*Result, error) {
	if req.Dimensions != 2 && req.Dimensions != 3 {
		return nil, fmt.Errorf("unsupported dimensions %d", req.Dimensions)
	}

	start := time.Now()
	cfg := req.Config()
	g := force.BuildGraph(req.Nodes, req.Edges, cfg)
	sim, err := force.NewSimulation(g, cfg)
	if err != nil {
		return nil, err
	}

	interval := h.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	lastProgress := start

	for !sim.Converged() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sim.Step()
		if progress != nil && time.Since(lastProgress) >= interval && !sim.Converged() {
			progress(snapshot(sim, start, g.Dropped))
			lastProgress = time.Now()
		}
	}

	res := snapshot(sim, start, g.Dropped)
	res.Progress = 100
	return res, nil
}

func snapshot(sim *force.Simulation, start time.Time, dropped []string) *Result {
	nodes := sim.Nodes()
	res := &Result{
		Nodes:        make([]NodePosition, len(nodes)),
		Iteration:    sim.Iteration(),
		Alpha:        sim.Alpha(),
		DurationMs:   float64(time.Since(start).Microseconds()) / 1000,
		DroppedEdges: dropped,
	}
	for i, n := range nodes {
		res.Nodes[i] = NodePosition{ID: n.ID, X: n.Pos.X, Y: n.Pos.Y, Z: n.Pos.Z}
	}
	res.Progress = estimateProgress(sim)
	return res
}

// estimateProgress reports whichever stop condition is closer, as a percentage
func estimateProgress(sim *force.Simulation) float64 {
	cfg := sim.Config()
	var byIter, byAlpha float64
	if cfg.Iterations > 0 {
		byIter = float64(sim.Iteration()) / float64(cfg.Iterations)
	}
	if cfg.AlphaMin > 0 && cfg.Alpha > cfg.AlphaMin && sim.Alpha() > 0 {
		byAlpha = math.Log(cfg.Alpha/sim.Alpha()) / math.Log(cfg.Alpha/cfg.AlphaMin)
	}
	return math.Min(100, 100*math.Max(byIter, byAlpha))
}

// errWorkerPanic wraps the value recovered from a crashed handler
type errWorkerPanic struct {
	value any
}

func (e *errWorkerPanic) Error() string { return fmt.Sprintf("handler panic: %v", e.value) }

// Serve runs a worker loop on ep until the endpoint closes or the handler
// panics. A handler error is reported as LAYOUT_ERROR and the loop keeps
// serving. A panic ends the loop: Serve closes ep and returns an error
// wrapping ErrWorkerCrashed.
func Serve(ctx context.Context, ep Endpoint, handler Handler, codec Codec, logger logging.Logger) error {
	for {
		frame, err := ep.Recv()
		if err != nil {
			if errors.Is(err, ErrEndpointClosed) {
				return nil
			}
			return fmt.Errorf("worker recv: %w", err)
		}

		msg, err := codec.Decode(frame)
		if err != nil {
			logger.Warn("Dropping undecodable frame", logging.Error(err))
			continue
		}

		req, err := msg.DecodeRequest()
		if err != nil {
			if sendErr := send(ep, codec, errorMessage(msg.ID, err)); sendErr != nil {
				return sendErr
			}
			continue
		}

		res, err := handle(ctx, ep, codec, handler, req)
		var crash *errWorkerPanic
		if errors.As(err, &crash) {
			ep.Close()
			return fmt.Errorf("%w: %v", ErrWorkerCrashed, crash)
		}

		var reply *Message
		if err != nil {
			reply = errorMessage(req.ID, err)
		} else if reply, err = newMessage(MsgLayoutComplete, req.ID, res); err != nil {
			reply = errorMessage(req.ID, err)
		}
		if err := send(ep, codec, reply); err != nil {
			return err
		}
	}
}

// handle runs the handler with panic recovery, forwarding progress frames
func handle(ctx context.Context, ep Endpoint, codec Codec, handler Handler, req *Request) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, &errWorkerPanic{value: r}
		}
	}()

	progress := func(p *Result) {
		msg, err := newMessage(MsgLayoutProgress, req.ID, p)
		if err != nil {
			return
		}
		// Progress is advisory; a failed send surfaces on the final reply
		_ = send(ep, codec, msg)
	}
	return handler.Handle(ctx, req, progress)
}

func send(ep Endpoint, codec Codec, msg *Message) error {
	frame, err := codec.Encode(msg)
	if err != nil {
		return err
	}
	if err := ep.Send(frame); err != nil {
		if errors.Is(err, ErrEndpointClosed) {
			return nil
		}
		return fmt.Errorf("worker send: %w", err)
	}
	return nil
}
