// Package graphstate holds the consumer side of a layout: the positions
// last received from the manager and the drag overrides the user applies.
package graphstate

import (
	"context"
	"sync"

	"github.com/dd0wney/cluso-layout/pkg/force"
	"github.com/dd0wney/cluso-layout/pkg/layout"
	"github.com/dd0wney/cluso-layout/pkg/logging"
	"github.com/dd0wney/cluso-layout/pkg/pubsub"
)

// Store is the single writer of drag overrides. Strategies read them
// through layout.DragReader.
type Store struct {
	mu         sync.RWMutex
	is3D       bool
	drags      map[string]force.Pin
	positions  map[string]layout.Position
	generation uint64
	iteration  int
	done       bool
	stale      uint64

	logger logging.Logger
}

var _ layout.DragReader = (*Store)(nil)

// Option configures a Store
type Option func(*Store)

// With3D makes PinAt pin the Z axis too
func With3D() Option { return func(s *Store) { s.is3D = true } }

// WithLogger sets the store logger
func WithLogger(l logging.Logger) Option { return func(s *Store) { s.logger = l } }

// NewStore creates an empty store
func NewStore(opts ...Option) *Store {
	s := &Store{
		drags:     make(map[string]force.Pin),
		positions: make(map[string]layout.Position),
		logger:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pin sets the drag override of a node. Nil axes stay free.
func (s *Store) Pin(id string, pin force.Pin) {
	pin = clonePin(pin)

	s.mu.Lock()
	s.drags[id] = pin
	if pos, ok := s.positions[id]; ok {
		s.positions[id] = pin.Apply(pos)
	}
	s.mu.Unlock()
	s.logger.Debug("node dragged", logging.NodeID(id))
}

// PinAt drags a node to pos
func (s *Store) PinAt(id string, pos layout.Position) {
	s.Pin(id, force.PinAt(pos, s.is3D))
}

// Unpin releases a dragged node. The next batch moves it again.
func (s *Store) Unpin(id string) {
	s.mu.Lock()
	_, dragged := s.drags[id]
	delete(s.drags, id)
	s.mu.Unlock()
	if dragged {
		s.logger.Debug("node released", logging.NodeID(id))
	}
}

// DragOverride returns the pin of a dragged node
func (s *Store) DragOverride(id string) (force.Pin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pin, ok := s.drags[id]
	return pin, ok
}

// Dragged returns the IDs with an active drag override
func (s *Store) Dragged() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.drags))
	for id := range s.drags {
		ids = append(ids, id)
	}
	return ids
}

// ApplyBatch merges a batch into the position cache. Batches from a
// generation older than the newest one seen are discarded, and the
// return value reports whether the batch was applied. Dragged axes keep
// their pin.
func (s *Store) ApplyBatch(b layout.Batch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.Generation < s.generation {
		s.stale++
		s.logger.Debug("discarded stale batch",
			logging.Generation(b.Generation),
			logging.Uint64("current", s.generation))
		return false
	}
	if b.Generation > s.generation {
		s.generation = b.Generation
		s.done = false
	}

	for _, u := range b.Updates {
		pos := layout.Position{X: u.X, Y: u.Y, Z: u.Z}
		if pin, ok := s.drags[u.NodeID]; ok {
			pos = pin.Apply(pos)
		}
		s.positions[u.NodeID] = pos
	}
	s.iteration = b.Iteration
	s.done = s.done || b.Done
	return true
}

// Consume applies every batch from sub until ctx is done or the
// subscription ends
func (s *Store) Consume(ctx context.Context, sub *pubsub.Subscription[layout.Batch]) error {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-sub.Channel():
			if !ok {
				return nil
			}
			s.ApplyBatch(b)
		}
	}
}

// Position returns the cached position of a node
func (s *Store) Position(id string) (layout.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[id]
	return pos, ok
}

// Positions returns a copy of every cached position
func (s *Store) Positions() map[string]layout.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]layout.Position, len(s.positions))
	for id, p := range s.positions {
		out[id] = p
	}
	return out
}

// Generation returns the newest generation applied
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Settled reports whether the final batch of the current generation has
// been applied
func (s *Store) Settled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// Iteration returns the iteration of the last applied batch
func (s *Store) Iteration() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.iteration
}

// Stale returns the number of discarded batches
func (s *Store) Stale() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

func clonePin(p force.Pin) force.Pin {
	var out force.Pin
	if p.X != nil {
		x := *p.X
		out.X = &x
	}
	if p.Y != nil {
		y := *p.Y
		out.Y = &y
	}
	if p.Z != nil {
		z := *p.Z
		out.Z = &z
	}
	return out
}
