package cli

import (
	"fmt"
	"math/rand/v2"

	"github.com/dd0wney/cluso-layout/pkg/force"
)

// randomGraph generates a connected graph: every node after the first
// links to an earlier one, and gets edgesPerNode-1 extra random links.
// The same seed always yields the same graph.
func randomGraph(nodes, edgesPerNode int, seed uint64) ([]force.NodeSpec, []force.EdgeSpec) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	specs := make([]force.NodeSpec, nodes)
	for i := range specs {
		specs[i] = force.NodeSpec{ID: fmt.Sprintf("n%d", i)}
	}

	edges := make([]force.EdgeSpec, 0, nodes*max(edgesPerNode, 1))
	for i := 1; i < nodes; i++ {
		edges = append(edges, force.EdgeSpec{
			ID:     fmt.Sprintf("e%d", len(edges)),
			Source: specs[rng.IntN(i)].ID,
			Target: specs[i].ID,
		})
	}
	if nodes > 1 {
		for i := range nodes {
			for range edgesPerNode - 1 {
				j := rng.IntN(nodes)
				if j == i {
					continue
				}
				edges = append(edges, force.EdgeSpec{
					ID:     fmt.Sprintf("e%d", len(edges)),
					Source: specs[i].ID,
					Target: specs[j].ID,
				})
			}
		}
	}
	return specs, edges
}
