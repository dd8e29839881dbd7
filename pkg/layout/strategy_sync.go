package layout

import (
	"context"
	"sync"

	"github.com/dd0wney/cluso-layout/pkg/force"
)

// syncStrategy runs the simulation in-process. Step never blocks.
type syncStrategy struct {
	mu     sync.RWMutex
	sim    *force.Simulation
	pins   pinSource
	drags  DragReader
	center Position

	destroyOnce sync.Once
	destroyed   bool
}

func newSyncStrategy(g *force.Graph, cfg force.Config, drags DragReader) (*syncStrategy, error) {
	sim, err := force.NewSimulation(g, cfg)
	if err != nil {
		return nil, err
	}
	return &syncStrategy{
		sim:    sim,
		pins:   newPinSource(drags, g),
		drags:  drags,
		center: cfg.Center,
	}, nil
}

func (s *syncStrategy) Step(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return true, nil
	}
	s.sim.SetPins(s.pins.lookup)
	return s.sim.Step(), nil
}

func (s *syncStrategy) NodePosition(id string) Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return resolvePosition(s.drags, id, s.center, s.sim.Position)
}

func (s *syncStrategy) Progress() (int, float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sim.Iteration(), s.sim.Alpha()
}

func (s *syncStrategy) Destroy() {
	s.destroyOnce.Do(func() {
		s.mu.Lock()
		s.destroyed = true
		s.mu.Unlock()
	})
}

func (s *syncStrategy) Backend() Backend { return Synchronous }
