package graph

import (
	"fmt"
	"sort"

	"github.com/ritzau/deps-builder/pkg/dep"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// ModuleGraph is the (module, configuration) dependency graph.
// Reachability queries go through the gonum graph; the ordered adjacency
// lists keep traversal in declared dependency order.
type ModuleGraph struct {
	graph  *simple.DirectedGraph
	ids    map[dep.Key]int64     // Map from node key to graph ID
	keys   map[int64]dep.Key     // Reverse of ids
	deps   map[int64][]int64     // Ordered outgoing edges
	nextID int64
}

// NewModuleGraph creates an empty module graph
func NewModuleGraph() *ModuleGraph {
	return &ModuleGraph{
		graph: simple.NewDirectedGraph(),
		ids:   make(map[dep.Key]int64),
		keys:  make(map[int64]dep.Key),
		deps:  make(map[int64][]int64),
	}
}

// AddNode adds a node to the graph, returning false if it already existed
func (mg *ModuleGraph) AddNode(key dep.Key) bool {
	if _, exists := mg.ids[key]; exists {
		return false
	}

	id := mg.nextID
	mg.nextID++
	mg.ids[key] = id
	mg.keys[id] = key
	mg.graph.AddNode(simple.Node(id))
	return true
}

// HasNode reports whether key is in the graph
func (mg *ModuleGraph) HasNode(key dep.Key) bool {
	_, ok := mg.ids[key]
	return ok
}

// AddDependency adds a dependency edge from source to target, creating missing nodes.
// Self edges are rejected.
func (mg *ModuleGraph) AddDependency(source, target dep.Key) error {
	if source == target {
		return fmt.Errorf("%s cannot depend on itself", source)
	}
	mg.AddNode(source)
	mg.AddNode(target)

	sourceID := mg.ids[source]
	targetID := mg.ids[target]

	if !mg.graph.HasEdgeFromTo(sourceID, targetID) {
		mg.graph.SetEdge(mg.graph.NewEdge(mg.graph.Node(sourceID), mg.graph.Node(targetID)))
		mg.deps[sourceID] = append(mg.deps[sourceID], targetID)
	}
	return nil
}

// Dependencies returns the direct dependencies of key in declared order
func (mg *ModuleGraph) Dependencies(key dep.Key) []dep.Key {
	id, ok := mg.ids[key]
	if !ok {
		return nil
	}
	out := make([]dep.Key, 0, len(mg.deps[id]))
	for _, t := range mg.deps[id] {
		out = append(out, mg.keys[t])
	}
	return out
}

// Dependents returns the nodes with an edge to key, in insertion order
func (mg *ModuleGraph) Dependents(key dep.Key) []dep.Key {
	id, ok := mg.ids[key]
	if !ok {
		return nil
	}
	var ids []int64
	iter := mg.graph.To(id)
	for iter.Next() {
		ids = append(ids, iter.Node().ID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]dep.Key, 0, len(ids))
	for _, p := range ids {
		out = append(out, mg.keys[p])
	}
	return out
}

// PathExists reports whether target is reachable from source through dependency edges
func (mg *ModuleGraph) PathExists(source, target dep.Key) bool {
	sourceID, ok := mg.ids[source]
	if !ok {
		return false
	}
	targetID, ok := mg.ids[target]
	if !ok {
		return false
	}
	return topo.PathExistsIn(mg.graph, mg.graph.Node(sourceID), mg.graph.Node(targetID))
}

// Redirect points every edge that targets from at to instead, keeping each
// dependent's declared order. Dependents already depending on to just lose
// their edge to from.
func (mg *ModuleGraph) Redirect(from, to dep.Key) error {
	fromID, ok := mg.ids[from]
	if !ok {
		return fmt.Errorf("unknown node %s", from)
	}
	toID, ok := mg.ids[to]
	if !ok {
		return fmt.Errorf("unknown node %s", to)
	}

	for _, p := range mg.Dependents(from) {
		pID := mg.ids[p]
		if pID == toID {
			return fmt.Errorf("redirecting %s to %s would make %s depend on itself", from, to, to)
		}

		hasTo := mg.graph.HasEdgeFromTo(pID, toID)
		list := mg.deps[pID][:0]
		for _, t := range mg.deps[pID] {
			switch {
			case t != fromID:
				list = append(list, t)
			case !hasTo:
				list = append(list, toID)
			}
		}
		mg.deps[pID] = list

		mg.graph.RemoveEdge(pID, fromID)
		if !hasTo {
			mg.graph.SetEdge(mg.graph.NewEdge(mg.graph.Node(pID), mg.graph.Node(toID)))
		}
	}
	return nil
}

// RemoveDependencies deletes every outgoing edge of key, keeping the node
func (mg *ModuleGraph) RemoveDependencies(key dep.Key) {
	id, ok := mg.ids[key]
	if !ok {
		return
	}
	for _, t := range mg.deps[id] {
		mg.graph.RemoveEdge(id, t)
	}
	delete(mg.deps, id)
}

// RemoveNode deletes key and every edge touching it
func (mg *ModuleGraph) RemoveNode(key dep.Key) {
	id, ok := mg.ids[key]
	if !ok {
		return
	}
	for _, p := range mg.Dependents(key) {
		pID := mg.ids[p]
		list := mg.deps[pID][:0]
		for _, t := range mg.deps[pID] {
			if t != id {
				list = append(list, t)
			}
		}
		mg.deps[pID] = list
	}
	mg.graph.RemoveNode(id)
	delete(mg.deps, id)
	delete(mg.ids, key)
	delete(mg.keys, id)
}

// Prune removes every node not reachable from root and returns the removed keys
func (mg *ModuleGraph) Prune(root dep.Key) []dep.Key {
	reachable := mg.Closure(root)
	reachable[root] = true

	var removed []dep.Key
	for _, key := range mg.Nodes() {
		if !reachable[key] {
			mg.RemoveNode(key)
			removed = append(removed, key)
		}
	}
	return removed
}

// Closure returns every node reachable from key, excluding key itself
func (mg *ModuleGraph) Closure(key dep.Key) map[dep.Key]bool {
	out := make(map[dep.Key]bool)
	var visit func(k dep.Key)
	visit = func(k dep.Key) {
		for _, d := range mg.Dependencies(k) {
			if !out[d] {
				out[d] = true
				visit(d)
			}
		}
	}
	visit(key)
	delete(out, key)
	return out
}

// Nodes returns all nodes in insertion order
func (mg *ModuleGraph) Nodes() []dep.Key {
	ids := make([]int64, 0, len(mg.keys))
	for id := range mg.keys {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]dep.Key, 0, len(ids))
	for _, id := range ids {
		out = append(out, mg.keys[id])
	}
	return out
}

// Edges returns all dependency edges as [source, target] pairs
func (mg *ModuleGraph) Edges() [][2]dep.Key {
	var edges [][2]dep.Key
	for _, source := range mg.Nodes() {
		for _, target := range mg.Dependencies(source) {
			edges = append(edges, [2]dep.Key{source, target})
		}
	}
	return edges
}

// ConfigurationsOf returns the configurations of module present in the graph
func (mg *ModuleGraph) ConfigurationsOf(module string) []string {
	var out []string
	for _, key := range mg.Nodes() {
		if key.Name == module {
			out = append(out, key.Configuration)
		}
	}
	return out
}

// Graph returns the underlying directed graph
func (mg *ModuleGraph) Graph() *simple.DirectedGraph {
	return mg.graph
}

// KeyOf returns the node key for a graph ID
func (mg *ModuleGraph) KeyOf(id int64) (dep.Key, bool) {
	key, ok := mg.keys[id]
	return key, ok
}

// Len returns the number of nodes
func (mg *ModuleGraph) Len() int {
	return len(mg.ids)
}
