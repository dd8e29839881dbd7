package force

import (
	"context"
	"fmt"
)

// Simulation integrates a force-directed layout one step at a time.
// It is not safe for concurrent use; callers serialize access.
type Simulation struct {
	cfg   Config
	nodes []Node
	edges []Edge
	index map[string]int

	alpha     float64
	iteration int

	force []Vec3 // per-step accumulator
}

// NewSimulation creates a simulation over a copy of the graph's working set
func NewSimulation(g *Graph, cfg Config) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("%w: nil graph", ErrInvalidConfig)
	}

	nodes := make([]Node, len(g.Nodes))
	copy(nodes, g.Nodes)
	edges := make([]Edge, len(g.Edges))
	copy(edges, g.Edges)
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}

	return &Simulation{
		cfg:   cfg,
		nodes: nodes,
		edges: edges,
		index: index,
		alpha: cfg.Alpha,
		force: make([]Vec3, len(nodes)),
	}, nil
}

// Step performs exactly one integration pass and decays alpha once.
// It reports whether the simulation has converged; once converged, further
// calls do nothing and keep returning true.
func (s *Simulation) Step() bool {
	if s.Converged() {
		return true
	}

	for i := range s.force {
		s.force[i] = Vec3{}
	}

	s.applyManyBody()
	s.applyLinks()
	s.applyCenter()
	s.integrate()

	s.alpha *= 1 - s.cfg.AlphaDecay
	s.iteration++

	return s.Converged()
}

// Run steps until convergence or until ctx is done. onTick, when non-nil,
// is called after every step.
func (s *Simulation) Run(ctx context.Context, onTick func(*Simulation)) error {
	for !s.Converged() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.Step()
		if onTick != nil {
			onTick(s)
		}
	}
	return nil
}

// Converged reports whether alpha reached alphaMin or the iteration cap was hit
func (s *Simulation) Converged() bool {
	return s.alpha <= s.cfg.AlphaMin || s.iteration >= s.cfg.Iterations
}

// Alpha returns the current temperature
func (s *Simulation) Alpha() float64 { return s.alpha }

// Iteration returns the number of completed steps
func (s *Simulation) Iteration() int { return s.iteration }

// Config returns the simulation parameters
func (s *Simulation) Config() Config { return s.cfg }

// Len returns the number of simulated nodes
func (s *Simulation) Len() int { return len(s.nodes) }

// Reheat restarts a converged simulation at the given temperature and
// resets the iteration count
func (s *Simulation) Reheat(alpha float64) {
	s.alpha = alpha
	s.iteration = 0
}

// Position returns the simulated position of a node
func (s *Simulation) Position(id string) (Vec3, bool) {
	i, ok := s.index[id]
	if !ok {
		return Vec3{}, false
	}
	return s.nodes[i].Pos, true
}

// Positions returns the current position of every node keyed by ID
func (s *Simulation) Positions() map[string]Vec3 {
	out := make(map[string]Vec3, len(s.nodes))
	for _, n := range s.nodes {
		out[n.ID] = n.Pos
	}
	return out
}

// Nodes returns a copy of the simulated nodes in index order
func (s *Simulation) Nodes() []Node {
	out := make([]Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Edges returns the resolved links
func (s *Simulation) Edges() []Edge {
	out := make([]Edge, len(s.edges))
	copy(out, s.edges)
	return out
}

// SetPins refreshes the fixed coordinates of every node from lookup.
// Nodes without an entry keep the pin they were built with.
// Pinned axes are snapped to the pin immediately so the next step
// computes forces against the authoritative position.
func (s *Simulation) SetPins(lookup func(id string) (Pin, bool)) {
	for i := range s.nodes {
		n := &s.nodes[i]
		pin, ok := lookup(n.ID)
		if !ok {
			continue
		}
		n.Fixed = pin
		n.Pos = pin.Apply(n.Pos)
		if pin.X != nil {
			n.Vel.X = 0
		}
		if pin.Y != nil {
			n.Vel.Y = 0
		}
		if pin.Z != nil {
			n.Vel.Z = 0
		}
	}
}
