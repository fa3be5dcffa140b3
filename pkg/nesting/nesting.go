// Package nesting decides when building one configuration of a module makes
// building another configuration of the same module redundant.
//
// A configuration covers every configuration it inherits from, directly or
// transitively, and itself.
package nesting

import (
	"sync"

	"github.com/ritzau/deps-builder/pkg/modconfig"
)

// ParentSource exposes the direct parents of a module's configurations
type ParentSource interface {
	Parents(config string) []string
}

// Closure memoizes the ancestor sets of one module's configurations
type Closure struct {
	parents ParentSource

	mu        sync.Mutex
	ancestors map[string]map[string]bool
}

// NewClosure creates a closure over a module's inheritance declarations
func NewClosure(parents ParentSource) *Closure {
	return &Closure{
		parents:   parents,
		ancestors: make(map[string]map[string]bool),
	}
}

// Ancestors returns the transitive parents of config, excluding config itself
func (c *Closure) Ancestors(config string) map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ancestorsLocked(config)
}

func (c *Closure) ancestorsLocked(config string) map[string]bool {
	if set, ok := c.ancestors[config]; ok {
		return set
	}

	set := make(map[string]bool)
	queue := append([]string(nil), c.parents.Parents(config)...)
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if set[p] || p == config {
			continue
		}
		set[p] = true
		queue = append(queue, c.parents.Parents(p)...)
	}

	c.ancestors[config] = set
	return set
}

// Covers reports whether building a also satisfies a request for b
func (c *Closure) Covers(a, b string) bool {
	if a == b {
		return true
	}
	return c.Ancestors(a)[b]
}

// ReduceToMaximal drops every configuration covered by another member of the input.
// Order of the survivors follows the input; duplicates collapse to the first.
func (c *Closure) ReduceToMaximal(configs []string) []string {
	unique := make([]string, 0, len(configs))
	seen := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if !seen[cfg] {
			seen[cfg] = true
			unique = append(unique, cfg)
		}
	}

	var out []string
	for _, b := range unique {
		covered := false
		for _, a := range unique {
			if a != b && c.Covers(a, b) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, b)
		}
	}
	return out
}

// CoveringCandidates returns the members of maximal that cover b, excluding b
func (c *Closure) CoveringCandidates(b string, maximal []string) []string {
	var out []string
	for _, a := range maximal {
		if a != b && c.Covers(a, b) {
			out = append(out, a)
		}
	}
	return out
}

// Registry holds one Closure per module for the duration of a run
type Registry struct {
	mu       sync.RWMutex
	closures map[string]*Closure
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{closures: make(map[string]*Closure)}
}

// Register installs the closure of a module model, replacing any previous one
func (r *Registry) Register(model *modconfig.Model) *Closure {
	c := NewClosure(model)
	r.mu.Lock()
	r.closures[model.Module] = c
	r.mu.Unlock()
	return c
}

// Closure returns the closure of a module, nil if it was never registered
func (r *Registry) Closure(module string) *Closure {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closures[module]
}

// Covers reports whether config a of module covers config b of the same module.
// Unknown modules only cover identical configurations.
func (r *Registry) Covers(module, a, b string) bool {
	if a == b {
		return true
	}
	c := r.Closure(module)
	if c == nil {
		return false
	}
	return c.Covers(a, b)
}
