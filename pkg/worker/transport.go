package worker

import (
	"errors"
	"sync"
)

// ErrEndpointClosed is returned by Send and Recv after either side of a
// pipe is closed
var ErrEndpointClosed = errors.New("endpoint closed")

// Endpoint is one side of a host/worker connection
type Endpoint interface {
	Send(frame []byte) error
	Recv() ([]byte, error)
	Close() error
}

// Transport connects the pool to a new worker
type Transport interface {
	Name() string
	// Connect returns the host side and the worker side of a fresh link
	Connect(workerID int) (host Endpoint, worker Endpoint, err error)
}

// Transport names accepted by NewTransport
const (
	TransportChan   = "chan"
	TransportInproc = "inproc"
)

// NewTransport returns the transport registered under name
func NewTransport(name string) (Transport, error) {
	switch name {
	case "", TransportChan:
		return ChanTransport{Buffer: 16}, nil
	case TransportInproc:
		return NewInprocTransport(""), nil
	default:
		return nil, errors.New("unknown transport " + name)
	}
}

// ChanTransport links host and worker with a pair of Go channels
type ChanTransport struct {
	Buffer int
}

func (ChanTransport) Name() string { return TransportChan }

// Connect creates an in-memory pipe. Closing either side closes both.
func (t ChanTransport) Connect(int) (Endpoint, Endpoint, error) {
	toWorker := make(chan []byte, t.Buffer)
	toHost := make(chan []byte, t.Buffer)
	shared := &pipeState{done: make(chan struct{})}

	host := &chanEndpoint{in: toHost, out: toWorker, state: shared}
	worker := &chanEndpoint{in: toWorker, out: toHost, state: shared}
	return host, worker, nil
}

type pipeState struct {
	done chan struct{}
	once sync.Once
}

type chanEndpoint struct {
	in    <-chan []byte
	out   chan<- []byte
	state *pipeState
}

func (e *chanEndpoint) Send(frame []byte) error {
	select {
	case <-e.state.done:
		return ErrEndpointClosed
	default:
	}
	select {
	case e.out <- frame:
		return nil
	case <-e.state.done:
		return ErrEndpointClosed
	}
}

func (e *chanEndpoint) Recv() ([]byte, error) {
	select {
	case frame := <-e.in:
		return frame, nil
	case <-e.state.done:
		return nil, ErrEndpointClosed
	}
}

func (e *chanEndpoint) Close() error {
	e.state.once.Do(func() { close(e.state.done) })
	return nil
}
