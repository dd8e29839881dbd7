package layout

import (
	"context"
	"math"
	"sync"

	"github.com/dd0wney/cluso-layout/pkg/force"
)

// staticStrategy computes a one-shot layout on its first step
type staticStrategy struct {
	mu        sync.RWMutex
	compute   func() map[string]Position
	positions map[string]Position
	done      bool
	drags     DragReader
	center    Position
}

func newStaticStrategy(layoutType string, g *force.Graph, cfg force.Config, drags DragReader) *staticStrategy {
	s := &staticStrategy{
		positions: initialPositions(g),
		drags:     drags,
		center:    cfg.Center,
	}
	switch layoutType {
	case TypeHierarchical:
		s.compute = func() map[string]Position { return hierarchicalPositions(g, cfg) }
	default:
		s.compute = func() map[string]Position { return circularPositions(g, cfg) }
	}
	return s
}

func (s *staticStrategy) Step(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.positions = s.compute()
		s.done = true
	}
	return true, nil
}

func (s *staticStrategy) NodePosition(id string) Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return resolvePosition(s.drags, id, s.center, func(id string) (Position, bool) {
		p, ok := s.positions[id]
		return p, ok
	})
}

func (s *staticStrategy) Progress() (int, float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.done {
		return 1, 0
	}
	return 0, 1
}

func (s *staticStrategy) Destroy() {}

func (s *staticStrategy) Backend() Backend { return Synchronous }

// circularPositions spaces nodes one link distance apart around the
// center. A single node sits on the center.
func circularPositions(g *force.Graph, cfg force.Config) map[string]Position {
	positions := make(map[string]Position, len(g.Nodes))
	n := len(g.Nodes)
	if n == 0 {
		return positions
	}
	if n == 1 {
		positions[g.Nodes[0].ID] = g.Nodes[0].Fixed.Apply(cfg.Center)
		return positions
	}

	spacing := cfg.LinkDistance
	if spacing <= 0 {
		spacing = force.DefaultConfig().LinkDistance
	}
	radius := math.Max(spacing*float64(n)/(2*math.Pi), spacing)
	angleStep := 2 * math.Pi / float64(n)

	for i, node := range g.Nodes {
		angle := float64(i) * angleStep
		pos := Position{
			X: cfg.Center.X + radius*math.Cos(angle),
			Y: cfg.Center.Y + radius*math.Sin(angle),
		}
		positions[node.ID] = node.Fixed.Apply(pos)
	}
	return positions
}

// hierarchicalPositions places roots on the top row and each BFS level
// below the previous one, with y growing downward as on screen. Nodes
// unreachable from a root join the last level.
func hierarchicalPositions(g *force.Graph, cfg force.Config) map[string]Position {
	positions := make(map[string]Position, len(g.Nodes))
	n := len(g.Nodes)
	if n == 0 {
		return positions
	}

	outgoing := make([][]int, n)
	incoming := make([]int, n)
	for _, e := range g.Edges {
		outgoing[e.Source] = append(outgoing[e.Source], e.Target)
		incoming[e.Target]++
	}

	roots := make([]int, 0)
	for i := range g.Nodes {
		if incoming[i] == 0 {
			roots = append(roots, i)
		}
	}
	if len(roots) == 0 {
		// Every node is on a cycle
		roots = []int{0}
	}

	levels := make([][]int, 0)
	visited := make([]bool, n)
	for _, r := range roots {
		visited[r] = true
	}
	current := roots
	for len(current) > 0 {
		levels = append(levels, current)
		next := make([]int, 0)
		for _, i := range current {
			for _, j := range outgoing[i] {
				if !visited[j] {
					visited[j] = true
					next = append(next, j)
				}
			}
		}
		current = next
	}

	for i := range g.Nodes {
		if !visited[i] {
			levels[len(levels)-1] = append(levels[len(levels)-1], i)
		}
	}

	spacing := cfg.LinkDistance
	if spacing <= 0 {
		spacing = force.DefaultConfig().LinkDistance
	}
	levelHeight := 2 * spacing
	top := cfg.Center.Y - levelHeight*float64(len(levels)-1)/2

	for depth, level := range levels {
		y := top + float64(depth)*levelHeight
		left := cfg.Center.X - spacing*float64(len(level)-1)/2
		for k, i := range level {
			pos := Position{X: left + float64(k)*spacing, Y: y}
			positions[g.Nodes[i].ID] = g.Nodes[i].Fixed.Apply(pos)
		}
	}
	return positions
}
