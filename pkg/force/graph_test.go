package force

import (
	"math"
	"testing"
)

func TestBuildGraphDropsDanglingEdges(t *testing.T) {
	cfg := DefaultConfig()
	nodes := []NodeSpec{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	edges := []EdgeSpec{
		{ID: "ab", Source: "a", Target: "b"},
		{ID: "ax", Source: "a", Target: "missing"},
		{ID: "xb", Source: "ghost", Target: "b"},
		{ID: "cc", Source: "c", Target: "c"},
	}

	g := BuildGraph(nodes, edges, cfg)
	if len(g.Edges) != 1 || g.Edges[0].ID != "ab" {
		t.Fatalf("Expected only edge ab to survive, got %+v", g.Edges)
	}
	if len(g.Dropped) != 3 {
		t.Errorf("Expected 3 dropped edges, got %v", g.Dropped)
	}

	sim, err := NewSimulation(g, cfg)
	if err != nil {
		t.Fatalf("NewSimulation failed: %v", err)
	}
	for !sim.Step() {
	}
	if len(sim.Edges()) != 1 {
		t.Errorf("Expected simulation edge list to exclude dropped edges, got %d", len(sim.Edges()))
	}
}

func TestBuildGraphDuplicateNodesKeepFirst(t *testing.T) {
	nodes := []NodeSpec{
		{ID: "a", X: fptr(1), Y: fptr(2)},
		{ID: "a", X: fptr(9), Y: fptr(9)},
		{ID: "b"},
	}
	g := BuildGraph(nodes, nil, DefaultConfig())
	if len(g.Nodes) != 2 {
		t.Fatalf("Expected 2 nodes, got %d", len(g.Nodes))
	}
	i, ok := g.Index("a")
	if !ok {
		t.Fatal("Node a not indexed")
	}
	if g.Nodes[i].Pos.X != 1 || g.Nodes[i].Pos.Y != 2 {
		t.Errorf("Expected first occurrence to win, got %+v", g.Nodes[i].Pos)
	}
	if j, _ := g.Index("b"); j != 1 {
		t.Errorf("Expected b at index 1, got %d", j)
	}
}

func TestBuildGraphEdgeDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LinkDistance = 42
	cfg.LinkStrength = 0.7
	nodes := []NodeSpec{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	edges := []EdgeSpec{
		{ID: "ab", Source: "a", Target: "b"},
		{ID: "bc", Source: "b", Target: "c", Distance: 10, Strength: 0.2},
	}

	g := BuildGraph(nodes, edges, cfg)
	if g.Edges[0].Distance != 42 || g.Edges[0].Strength != 0.7 {
		t.Errorf("Expected config defaults on ab, got %+v", g.Edges[0])
	}
	if g.Edges[1].Distance != 10 || g.Edges[1].Strength != 0.2 {
		t.Errorf("Expected explicit values on bc, got %+v", g.Edges[1])
	}
}

func TestBuildGraphNodeDefaults(t *testing.T) {
	nodes := []NodeSpec{
		{ID: "a"},
		{ID: "b", Mass: 3, Size: 8},
		{ID: "c", Pin: Pin{X: fptr(7)}},
	}
	g := BuildGraph(nodes, nil, DefaultConfig())

	if g.Nodes[0].Mass != 1 {
		t.Errorf("Expected default mass 1, got %v", g.Nodes[0].Mass)
	}
	if g.Nodes[1].Mass != 3 || g.Nodes[1].Radius != 8 {
		t.Errorf("Expected mass 3 radius 8, got %+v", g.Nodes[1])
	}
	if g.Nodes[2].Pos.X != 7 {
		t.Errorf("Expected pin applied to initial position, got %+v", g.Nodes[2].Pos)
	}
	if g.Nodes[2].Pos.Y != InitialPosition(2, false).Y {
		t.Errorf("Expected free axis to keep seeded position, got %+v", g.Nodes[2].Pos)
	}
}

func TestInitialPositionIsDeterministic(t *testing.T) {
	seen := make(map[Vec3]bool)
	for i := 0; i < 50; i++ {
		a := InitialPosition(i, false)
		b := InitialPosition(i, false)
		if a != b {
			t.Fatalf("Placement %d is not deterministic: %+v vs %+v", i, a, b)
		}
		if a.Z != 0 {
			t.Errorf("2D placement %d has Z=%v", i, a.Z)
		}
		if seen[a] {
			t.Errorf("Placement %d collides with an earlier node", i)
		}
		seen[a] = true

		want := initialRadius * math.Sqrt(0.5+float64(i))
		if r := math.Hypot(a.X, a.Y); math.Abs(r-want) > 1e-9 {
			t.Errorf("Placement %d radius %v, expected %v", i, r, want)
		}
	}

	p := InitialPosition(3, true)
	want := initialRadius * math.Cbrt(3.5)
	if r := p.Distance(Vec3{}); math.Abs(r-want) > 1e-9 {
		t.Errorf("3D placement radius %v, expected %v", r, want)
	}
}
