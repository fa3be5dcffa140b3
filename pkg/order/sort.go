// Package order linearizes a resolved module graph into a build order.
package order

import (
	"fmt"
	"strings"

	"github.com/ritzau/deps-builder/pkg/cycles"
	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/graph"
)

// CycleError reports a dependency cycle found while ordering.
// Members is the path along which the cycle was found, first node repeated at the end.
type CycleError struct {
	Members    []dep.Key
	Components []cycles.ModuleCycle
}

func (e *CycleError) Error() string {
	names := make([]string, 0, len(e.Members))
	for _, m := range e.Members {
		names = append(names, m.String())
	}
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(names, " -> "))
}

// Sort returns every node reachable from root with dependencies before dependents.
// Siblings are visited in declared dependency order, so the result is deterministic.
func Sort(g *graph.ModuleGraph, root dep.Key) ([]dep.Key, error) {
	if !g.HasNode(root) {
		return nil, fmt.Errorf("root %s is not in the graph", root)
	}

	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[dep.Key]int, g.Len())
	var (
		stack []dep.Key
		out   []dep.Key
	)

	var visit func(k dep.Key) error
	visit = func(k dep.Key) error {
		state[k] = onStack
		stack = append(stack, k)

		for _, d := range g.Dependencies(k) {
			switch state[d] {
			case onStack:
				return cycleAt(g, stack, d)
			case unvisited:
				if err := visit(d); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[k] = done
		out = append(out, k)
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	return out, nil
}

func cycleAt(g *graph.ModuleGraph, stack []dep.Key, start dep.Key) *CycleError {
	var members []dep.Key
	for i, k := range stack {
		if k == start {
			members = append(members, stack[i:]...)
			break
		}
	}
	members = append(members, start)
	return &CycleError{
		Members:    members,
		Components: cycles.FindModuleCycles(g),
	}
}
