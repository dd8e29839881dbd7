package layout

import (
	"context"
	"math"
	"testing"

	"github.com/dd0wney/cluso-layout/pkg/force"
)

func staticGraph(ids []string, edges [][2]string) *force.Graph {
	nodes := make([]force.NodeSpec, len(ids))
	for i, id := range ids {
		nodes[i] = force.NodeSpec{ID: id}
	}
	specs := make([]force.EdgeSpec, len(edges))
	for i, e := range edges {
		specs[i] = force.EdgeSpec{ID: e[0] + "-" + e[1], Source: e[0], Target: e[1]}
	}
	return force.BuildGraph(nodes, specs, force.DefaultConfig())
}

func TestCircularPositions(t *testing.T) {
	cfg := force.DefaultConfig()
	cfg.Center = force.Vec3{X: 10, Y: -5}
	g := staticGraph([]string{"a", "b", "c", "d", "e", "f"}, nil)

	positions := circularPositions(g, cfg)
	if len(positions) != 6 {
		t.Fatalf("expected 6 positions, got %d", len(positions))
	}

	radius := positions["a"].Distance(cfg.Center)
	if radius < cfg.LinkDistance {
		t.Errorf("radius %v smaller than link distance", radius)
	}
	for id, p := range positions {
		if d := p.Distance(cfg.Center); math.Abs(d-radius) > 1e-9 {
			t.Errorf("node %s at distance %v, want %v", id, d, radius)
		}
		if p.Z != 0 {
			t.Errorf("node %s has Z = %v", id, p.Z)
		}
	}
}

func TestCircularSingleNodeSitsOnCenter(t *testing.T) {
	cfg := force.DefaultConfig()
	cfg.Center = force.Vec3{X: 3, Y: 4}
	positions := circularPositions(staticGraph([]string{"solo"}, nil), cfg)
	if positions["solo"] != cfg.Center {
		t.Errorf("expected center, got %+v", positions["solo"])
	}
}

func TestHierarchicalLevels(t *testing.T) {
	cfg := force.DefaultConfig()
	g := staticGraph(
		[]string{"root", "left", "right", "leaf", "orphan"},
		[][2]string{{"root", "left"}, {"root", "right"}, {"left", "leaf"}, {"right", "leaf"}},
	)

	positions := hierarchicalPositions(g, cfg)

	// orphan has no incoming edges, so it is a root too
	if positions["root"].Y != positions["orphan"].Y {
		t.Errorf("roots on different rows: %v vs %v", positions["root"].Y, positions["orphan"].Y)
	}
	if positions["left"].Y != positions["right"].Y {
		t.Errorf("siblings on different rows")
	}
	if !(positions["root"].Y < positions["left"].Y && positions["left"].Y < positions["leaf"].Y) {
		t.Errorf("levels not top-down: root %v, left %v, leaf %v",
			positions["root"].Y, positions["left"].Y, positions["leaf"].Y)
	}
	if positions["left"].X == positions["right"].X {
		t.Errorf("siblings overlap")
	}
}

func TestHierarchicalCycleUsesFirstNode(t *testing.T) {
	g := staticGraph([]string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}})
	positions := hierarchicalPositions(g, force.DefaultConfig())
	if len(positions) != 3 {
		t.Fatalf("expected 3 positions, got %d", len(positions))
	}
	if !(positions["a"].Y < positions["b"].Y && positions["b"].Y < positions["c"].Y) {
		t.Errorf("cycle not unrolled from a: %+v", positions)
	}
}

func TestStaticStrategyIsDoneAfterOneStep(t *testing.T) {
	g := staticGraph([]string{"a", "b"}, [][2]string{{"a", "b"}})
	s := newStaticStrategy(TypeCircular, g, force.DefaultConfig(), noDrags{})

	done, err := s.Step(context.Background())
	if err != nil || !done {
		t.Fatalf("Step() = %v, %v", done, err)
	}
	if iter, _ := s.Progress(); iter != 1 {
		t.Errorf("iteration = %d", iter)
	}
	if got := s.NodePosition("missing"); got != (Position{}) {
		t.Errorf("unknown node should resolve to center, got %+v", got)
	}
}
