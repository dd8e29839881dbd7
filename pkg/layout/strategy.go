package layout

import (
	"context"

	"github.com/dd0wney/cluso-layout/pkg/force"
)

// Strategy computes one layout on one backend. A strategy is created per
// Layout call and destroyed when its run is retired.
type Strategy interface {
	// NodePosition never fails: drag overrides win, then the last
	// computed position, then the layout center for unknown IDs.
	NodePosition(id string) Position

	// Step advances the layout and reports whether it has finished
	Step(ctx context.Context) (done bool, err error)

	// Destroy releases backend resources. It is idempotent.
	Destroy()

	Backend() Backend
}

// progressReporter is implemented by strategies that track the simulation
// temperature
type progressReporter interface {
	Progress() (iteration int, alpha float64)
}

// pinSource merges live drag overrides over the pins a request was built
// with. It answers for every node so a released drag falls back to the
// node's own pin.
type pinSource struct {
	drags DragReader
	base  map[string]force.Pin
}

func newPinSource(drags DragReader, g *force.Graph) pinSource {
	base := make(map[string]force.Pin, len(g.Nodes))
	for _, n := range g.Nodes {
		if !n.Fixed.IsZero() {
			base[n.ID] = n.Fixed
		}
	}
	return pinSource{drags: drags, base: base}
}

func (p pinSource) lookup(id string) (force.Pin, bool) {
	if pin, ok := p.drags.DragOverride(id); ok {
		return pin, true
	}
	return p.base[id], true
}

// resolvePosition applies the NodePosition precedence to a computed
// position lookup
func resolvePosition(drags DragReader, id string, center Position, computed func(string) (Position, bool)) Position {
	pos, ok := computed(id)
	if !ok {
		pos = center
	}
	if pin, ok := drags.DragOverride(id); ok {
		pos = pin.Apply(pos)
	}
	return pos
}

func initialPositions(g *force.Graph) map[string]Position {
	out := make(map[string]Position, len(g.Nodes))
	for _, n := range g.Nodes {
		out[n.ID] = n.Pos
	}
	return out
}
