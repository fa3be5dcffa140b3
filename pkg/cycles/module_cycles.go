package cycles

import (
	"sort"

	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/graph"
	"gonum.org/v1/gonum/graph/topo"
)

// ModuleCycle represents a circular dependency between module configurations
type ModuleCycle struct {
	Nodes []dep.Key // Members of the strongly connected component, sorted
}

// FindModuleCycles finds all circular dependencies in the module graph
func FindModuleCycles(mg *graph.ModuleGraph) []ModuleCycle {
	sccs := topo.TarjanSCC(mg.Graph())

	cycles := make([]ModuleCycle, 0)
	for _, scc := range sccs {
		// Only components with more than one node are cycles; self edges are rejected by the graph
		if len(scc) < 2 {
			continue
		}

		nodes := make([]dep.Key, 0, len(scc))
		for _, n := range scc {
			if key, ok := mg.KeyOf(n.ID()); ok {
				nodes = append(nodes, key)
			}
		}
		sort.Slice(nodes, func(i, j int) bool {
			return nodes[i].String() < nodes[j].String()
		})

		cycles = append(cycles, ModuleCycle{Nodes: nodes})
	}

	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i].Nodes[0].String() < cycles[j].Nodes[0].String()
	})
	return cycles
}

// Names returns the member names of the cycle
func (c ModuleCycle) Names() []string {
	out := make([]string, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		out = append(out, n.String())
	}
	return out
}
