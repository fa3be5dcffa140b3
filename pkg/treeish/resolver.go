package treeish

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultBranch is used when the resolver is created without one
const DefaultBranch = "master"

// ConflictError reports two different explicit treeishes requested for one module
type ConflictError struct {
	Module       string
	First        string
	FirstParent  string
	Second       string
	SecondParent string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("treeish conflict for %s: %s requires %q but %s requires %q",
		e.Module, e.FirstParent, e.First, e.SecondParent, e.Second)
}

// Request is an explicit treeish and the module that asked for it
type Request struct {
	Treeish string
	Parent  string
}

// Resolver tracks the single source revision allowed per module during a resolution run
type Resolver struct {
	defaultBranch string

	mu       sync.Mutex
	explicit map[string]Request
	seen     map[string]bool
}

// NewResolver creates a resolver. Requests for defaultBranch count as default requests.
func NewResolver(defaultBranch string) *Resolver {
	if defaultBranch == "" {
		defaultBranch = DefaultBranch
	}
	return &Resolver{
		defaultBranch: defaultBranch,
		explicit:      make(map[string]Request),
		seen:          make(map[string]bool),
	}
}

// Record registers that parent requested module at treeish.
// changed is true the first time a module is seen and whenever an explicit
// treeish replaces the default one, i.e. whenever the checkout has to move.
func (r *Resolver) Record(module, treeish, parent string) (changed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	first := !r.seen[module]
	r.seen[module] = true

	if r.isDefault(treeish) {
		return first, nil
	}

	prev, ok := r.explicit[module]
	if !ok {
		r.explicit[module] = Request{Treeish: treeish, Parent: parent}
		return true, nil
	}
	if prev.Treeish == treeish {
		return first, nil
	}
	return false, &ConflictError{
		Module:       module,
		First:        prev.Treeish,
		FirstParent:  prev.Parent,
		Second:       treeish,
		SecondParent: parent,
	}
}

func (r *Resolver) isDefault(treeish string) bool {
	return treeish == "" || treeish == r.defaultBranch
}

// Treeish returns the explicit treeish chosen for module, or "" for the default branch
func (r *Resolver) Treeish(module string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.explicit[module].Treeish
}

// Snapshot returns every explicit choice made so far, keyed by module
func (r *Resolver) Snapshot() map[string]Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Request, len(r.explicit))
	for k, v := range r.explicit {
		out[k] = v
	}
	return out
}

// Modules returns every module seen, sorted
func (r *Resolver) Modules() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.seen))
	for m := range r.seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
