package force

import "math"

var (
	// Phyllotaxis angles, the same spiral d3-force-3d seeds unplaced nodes with
	initialRadius    = 10.0
	initialAngleRoll = math.Pi * (3 - math.Sqrt(5))
	initialAngleYaw  = math.Pi * 20 / (9 + math.Sqrt(221))
)

// Graph is the resolved node/edge working set of one simulation
type Graph struct {
	Nodes []Node
	Edges []Edge

	// Dropped lists the IDs of edges that referenced unknown nodes or
	// looped back onto their source
	Dropped []string

	index map[string]int
}

// BuildGraph converts node and edge specs into a simulation working set.
// Edges whose endpoints are missing are dropped, never reported as errors.
// Duplicate node IDs keep their first occurrence.
func BuildGraph(nodes []NodeSpec, edges []EdgeSpec, cfg Config) *Graph {
	g := &Graph{
		Nodes: make([]Node, 0, len(nodes)),
		Edges: make([]Edge, 0, len(edges)),
		index: make(map[string]int, len(nodes)),
	}

	for _, spec := range nodes {
		if _, dup := g.index[spec.ID]; dup {
			continue
		}
		i := len(g.Nodes)
		pos := InitialPosition(i, cfg.Is3D)
		if spec.X != nil {
			pos.X = *spec.X
		}
		if spec.Y != nil {
			pos.Y = *spec.Y
		}
		if spec.Z != nil && cfg.Is3D {
			pos.Z = *spec.Z
		}
		if !cfg.Is3D {
			pos.Z = 0
		}

		mass := spec.Mass
		if mass <= 0 {
			mass = 1
		}

		g.index[spec.ID] = i
		g.Nodes = append(g.Nodes, Node{
			ID:     spec.ID,
			Pos:    spec.Pin.Apply(pos),
			Mass:   mass,
			Radius: spec.Size,
			Fixed:  spec.Pin,
		})
	}

	for _, spec := range edges {
		src, okSrc := g.index[spec.Source]
		dst, okDst := g.index[spec.Target]
		if !okSrc || !okDst || src == dst {
			g.Dropped = append(g.Dropped, spec.ID)
			continue
		}

		dist := spec.Distance
		if dist <= 0 {
			dist = cfg.LinkDistance
		}
		strength := spec.Strength
		if strength == 0 {
			strength = cfg.LinkStrength
		}

		g.Edges = append(g.Edges, Edge{
			ID:       spec.ID,
			Source:   src,
			Target:   dst,
			Distance: dist,
			Strength: strength,
		})
	}

	return g
}

// Index returns the position of a node in Nodes
func (g *Graph) Index(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// InitialPosition returns the deterministic phyllotaxis seed for the i-th node
func InitialPosition(i int, is3D bool) Vec3 {
	fi := float64(i)
	roll := fi * initialAngleRoll
	if !is3D {
		r := initialRadius * math.Sqrt(0.5+fi)
		return Vec3{X: r * math.Cos(roll), Y: r * math.Sin(roll)}
	}

	r := initialRadius * math.Cbrt(0.5+fi)
	yaw := fi * initialAngleYaw
	return Vec3{
		X: r * math.Sin(roll) * math.Cos(yaw),
		Y: r * math.Cos(roll),
		Z: r * math.Sin(roll) * math.Sin(yaw),
	}
}
