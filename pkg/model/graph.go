package model

import (
	"sort"

	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/graph"
)

// Graph is the JSON view of a resolved dependency graph served to clients
type Graph struct {
	Root  string           `json:"root"`
	Nodes map[string]*Node `json:"nodes"`
	Edges []*Edge          `json:"edges"`
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
		Edges: make([]*Edge, 0),
	}
}

// Node is one (module, configuration) pair.
type Node struct {
	ID            string                 `json:"id"`
	Module        string                 `json:"module"`
	Configuration string                 `json:"configuration"`
	Treeish       string                 `json:"treeish,omitempty"` // empty for the default branch
	Kept          bool                   `json:"kept,omitempty"`    // covered but kept to avoid a cycle
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Edge types
const (
	EdgeDependency = "dependency"
	EdgeCollapsed  = "collapsed" // from a dropped configuration to the node that covers it
)

// Edge represents a directed connection between two nodes.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// AddNode adds a node to the graph. If a node with the same ID exists, it updates it.
func (g *Graph) AddNode(node *Node) {
	if node.Metadata == nil {
		node.Metadata = make(map[string]interface{})
	}
	g.Nodes[node.ID] = node
}

// AddEdge adds an edge to the graph.
func (g *Graph) AddEdge(edge *Edge) {
	g.Edges = append(g.Edges, edge)
}

// FromResult converts a resolution result into its JSON view.
// Collapsed configurations appear as nodes with a collapsed edge to their cover.
func FromResult(res *graph.Result) *Graph {
	g := NewGraph()
	g.Root = res.Root.String()

	kept := make(map[string]bool, len(res.Kept))
	for _, k := range res.Kept {
		kept[k.String()] = true
	}

	for _, k := range res.Graph.Nodes() {
		g.AddNode(&Node{
			ID:            k.String(),
			Module:        k.Name,
			Configuration: k.Configuration,
			Treeish:       res.Treeish[k.Name],
			Kept:          kept[k.String()],
		})
	}
	for _, e := range res.Graph.Edges() {
		g.AddEdge(&Edge{Source: e[0].String(), Target: e[1].String(), Type: EdgeDependency})
	}

	collapsed := make([]dep.Key, 0, len(res.Collapsed))
	for from := range res.Collapsed {
		collapsed = append(collapsed, from)
	}
	sort.Slice(collapsed, func(i, j int) bool { return collapsed[i].String() < collapsed[j].String() })

	for _, from := range collapsed {
		to := res.Collapsed[from]
		g.AddNode(&Node{
			ID:            from.String(),
			Module:        from.Name,
			Configuration: from.Configuration,
			Treeish:       res.Treeish[from.Name],
			Metadata:      map[string]interface{}{"collapsedInto": to.String()},
		})
		g.AddEdge(&Edge{Source: from.String(), Target: to.String(), Type: EdgeCollapsed})
	}
	return g
}
