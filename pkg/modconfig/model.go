package modconfig

import (
	"fmt"
	"strings"

	"github.com/ritzau/deps-builder/pkg/dep"
)

// DefaultConfiguration is the conventional configuration name used when no
// configuration is marked *default.
const DefaultConfiguration = "full-build"

// Entry is one raw item of a deps list. Remove entries are written `-name`.
type Entry struct {
	Dep    dep.Dep
	Remove bool
}

// BuildSpec describes how a configuration is built
type BuildSpec struct {
	Tool          string   `json:"tool" yaml:"tool"`
	Target        string   `json:"target" yaml:"target"`
	Configuration string   `json:"configuration" yaml:"configuration"`
	Parameters    []string `json:"parameters,omitempty" yaml:"parameters"`
}

// Declaration is a configuration section as written in the module file.
// Force is nil when the section declares no force list.
type Declaration struct {
	Name      string
	Parents   []string
	IsDefault bool
	Entries   []Entry
	Force     []string
	Build     *BuildSpec
}

// Configuration is a validated configuration with its merged dependency list
type Configuration struct {
	Name      string
	Parents   []string
	IsDefault bool
	Deps      []dep.Dep
	Force     []string
	Build     *BuildSpec
}

// Model holds every configuration of one module
type Model struct {
	Module      string
	configs     map[string]*Configuration
	order       []string
	defaultName string
	explicit    bool // defaultName comes from a declaration
}

// NewModel validates the declarations of a module and merges their dependency lists.
// defaults is the module-wide `default` section and may be nil.
func NewModel(module string, defaults *Declaration, decls []Declaration) (*Model, error) {
	m := &Model{
		Module:  module,
		configs: make(map[string]*Configuration, len(decls)),
	}

	byName := make(map[string]*Declaration, len(decls))
	var marked []string
	for i := range decls {
		d := &decls[i]
		if d.Name == "" {
			return nil, &BadConfigurationError{Module: module, Reason: "configuration without a name"}
		}
		if _, exists := byName[d.Name]; exists {
			return nil, &BadConfigurationError{Module: module, Configuration: d.Name, Reason: "declared more than once"}
		}
		byName[d.Name] = d
		m.order = append(m.order, d.Name)
		if d.IsDefault {
			marked = append(marked, d.Name)
		}
	}

	for _, name := range m.order {
		for _, parent := range byName[name].Parents {
			if parent == name {
				return nil, &BadConfigurationError{Module: module, Configuration: name, Reason: "inherits from itself"}
			}
			if _, ok := byName[parent]; !ok {
				return nil, &BadConfigurationError{Module: module, Configuration: name,
					Reason: fmt.Sprintf("unknown parent configuration %q", parent)}
			}
		}
	}
	if err := checkParentCycles(module, m.order, byName); err != nil {
		return nil, err
	}

	switch {
	case len(marked) > 1:
		return nil, &AmbiguousDefaultError{Module: module, Candidates: marked}
	case len(marked) == 1:
		m.defaultName, m.explicit = marked[0], true
	case len(m.order) == 1:
		m.defaultName, m.explicit = m.order[0], true
	default:
		m.defaultName = DefaultConfiguration
	}

	for _, name := range m.order {
		d := byName[name]
		ancestors := linearize(name, byName)

		entries := make([]Entry, 0)
		if defaults != nil {
			entries = append(entries, defaults.Entries...)
		}
		for _, a := range ancestors {
			entries = append(entries, byName[a].Entries...)
		}
		entries = append(entries, d.Entries...)

		deps, err := mergeEntries(module, name, entries)
		if err != nil {
			return nil, err
		}

		m.configs[name] = &Configuration{
			Name:      name,
			Parents:   append([]string(nil), d.Parents...),
			IsDefault: name == m.defaultName && m.explicit,
			Deps:      deps,
			Force:     nearestForce(name, byName, defaults),
			Build:     d.Build,
		}
	}

	return m, nil
}

// mergeEntries applies removal directives and rejects self and duplicate dependencies
func mergeEntries(module, config string, entries []Entry) ([]dep.Dep, error) {
	var out []dep.Dep
	for i := 0; i < len(entries); i++ {
		e := entries[i]
		if !e.Remove {
			if dep.SameModule(e.Dep.Name, module) {
				return nil, &BadConfigurationError{Module: module, Configuration: config,
					Reason: "module depends on itself"}
			}
			out = append(out, e.Dep)
			continue
		}

		if i+1 >= len(entries) || entries[i+1].Remove || !dep.SameModule(entries[i+1].Dep.Name, e.Dep.Name) {
			return nil, &BadConfigurationError{Module: module, Configuration: config,
				Reason: fmt.Sprintf("removal of %s must be followed by a replacement %s", e.Dep, e.Dep.Name)}
		}

		kept := out[:0]
		removed := 0
		for _, d := range out {
			if d.Matches(e.Dep) {
				removed++
				continue
			}
			kept = append(kept, d)
		}
		if removed == 0 {
			return nil, &BadConfigurationError{Module: module, Configuration: config,
				Reason: fmt.Sprintf("removal of %s matches no inherited dependency", e.Dep)}
		}
		out = kept
	}

	seen := make(map[string]bool, len(out))
	for _, d := range out {
		key := strings.ToLower(d.Name)
		if seen[key] {
			return nil, &DuplicateDependencyError{Module: module, Configuration: config, Dependency: d.Name}
		}
		seen[key] = true
	}
	return out, nil
}

// linearize returns the ancestors of name, root-most first, in declared parent order
func linearize(name string, byName map[string]*Declaration) []string {
	var out []string
	visited := map[string]bool{name: true}
	var visit func(n string)
	visit = func(n string) {
		for _, p := range byName[n].Parents {
			if visited[p] {
				continue
			}
			visited[p] = true
			visit(p)
			out = append(out, p)
		}
	}
	visit(name)
	return out
}

// nearestForce picks the force list of the closest declaration that has one
func nearestForce(name string, byName map[string]*Declaration, defaults *Declaration) []string {
	queue := []string{name}
	visited := map[string]bool{name: true}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if f := byName[n].Force; f != nil {
			return append([]string(nil), f...)
		}
		for _, p := range byName[n].Parents {
			if !visited[p] {
				visited[p] = true
				queue = append(queue, p)
			}
		}
	}
	if defaults != nil && defaults.Force != nil {
		return append([]string(nil), defaults.Force...)
	}
	return nil
}

func checkParentCycles(module string, order []string, byName map[string]*Declaration) error {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(order))

	var visit func(n string) error
	visit = func(n string) error {
		color[n] = gray
		for _, p := range byName[n].Parents {
			switch color[p] {
			case gray:
				return &BadConfigurationError{Module: module, Configuration: n,
					Reason: fmt.Sprintf("inheritance cycle through %s", p)}
			case white:
				if err := visit(p); err != nil {
					return err
				}
			}
		}
		color[n] = black
		return nil
	}

	for _, n := range order {
		if color[n] == white {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// Resolve maps a requested configuration name to a declared one.
// The empty name resolves to the module's default configuration.
// It never falls back on its own; callers decide what to do with
// a NoSuchConfigurationError.
func (m *Model) Resolve(name string) (string, error) {
	if name == "" {
		name = m.defaultName
	}
	if _, ok := m.configs[name]; ok {
		return name, nil
	}
	if len(m.configs) == 0 && name == DefaultConfiguration {
		return name, nil
	}
	return "", &NoSuchConfigurationError{Module: m.Module, Configuration: name}
}

// Default returns the default configuration name
func (m *Model) Default() (string, error) {
	return m.Resolve("")
}

// Configuration returns a declared configuration
func (m *Model) Configuration(name string) (*Configuration, bool) {
	c, ok := m.configs[name]
	return c, ok
}

// Deps returns the merged dependency list of a configuration
func (m *Model) Deps(name string) ([]dep.Dep, error) {
	resolved, err := m.Resolve(name)
	if err != nil {
		return nil, err
	}
	c, ok := m.configs[resolved]
	if !ok {
		return nil, nil
	}
	return append([]dep.Dep(nil), c.Deps...), nil
}

// Force returns the branch preference list of a configuration
func (m *Model) Force(name string) []string {
	if c, ok := m.configs[name]; ok {
		return append([]string(nil), c.Force...)
	}
	return nil
}

// Parents returns the direct parents of a configuration
func (m *Model) Parents(name string) []string {
	if c, ok := m.configs[name]; ok {
		return c.Parents
	}
	return nil
}

// Build returns the build spec of a configuration, nil if none is declared
func (m *Model) Build(name string) *BuildSpec {
	if c, ok := m.configs[name]; ok {
		return c.Build
	}
	return nil
}

// Names returns the declared configuration names in file order
func (m *Model) Names() []string {
	return append([]string(nil), m.order...)
}
