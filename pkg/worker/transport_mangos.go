package worker

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pair"

	// Register the in-process transport
	_ "go.nanomsg.org/mangos/v3/transport/inproc"
)

// InprocTransport links host and worker with a mangos PAIR socket over
// inproc://. The host listens and the worker dials.
type InprocTransport struct {
	prefix string
	seq    atomic.Uint64
}

// NewInprocTransport creates a transport whose addresses start with prefix.
// An empty prefix gets a random one so independent pools never collide.
func NewInprocTransport(prefix string) *InprocTransport {
	if prefix == "" {
		prefix = uuid.NewString()
	}
	return &InprocTransport{prefix: prefix}
}

func (t *InprocTransport) Name() string { return TransportInproc }

func (t *InprocTransport) Connect(workerID int) (Endpoint, Endpoint, error) {
	addr := fmt.Sprintf("inproc://layout-%s/%d/%d", t.prefix, workerID, t.seq.Add(1))

	hostSock, err := pair.NewSocket()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create host PAIR socket: %w", err)
	}
	if err := hostSock.Listen(addr); err != nil {
		hostSock.Close()
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	workerSock, err := pair.NewSocket()
	if err != nil {
		hostSock.Close()
		return nil, nil, fmt.Errorf("failed to create worker PAIR socket: %w", err)
	}
	if err := workerSock.Dial(addr); err != nil {
		hostSock.Close()
		workerSock.Close()
		return nil, nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	return &mangosEndpoint{sock: hostSock}, &mangosEndpoint{sock: workerSock}, nil
}

// mangosEndpoint wraps a mangos.Socket to implement Endpoint
type mangosEndpoint struct {
	sock mangos.Socket
}

func (e *mangosEndpoint) Send(frame []byte) error {
	if err := e.sock.Send(frame); err != nil {
		if err == mangos.ErrClosed {
			return ErrEndpointClosed
		}
		return err
	}
	return nil
}

func (e *mangosEndpoint) Recv() ([]byte, error) {
	frame, err := e.sock.Recv()
	if err != nil {
		if err == mangos.ErrClosed {
			return nil, ErrEndpointClosed
		}
		return nil, err
	}
	return frame, nil
}

func (e *mangosEndpoint) Close() error {
	if err := e.sock.Close(); err != nil && err != mangos.ErrClosed {
		return err
	}
	return nil
}
