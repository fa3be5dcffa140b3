// Package graphtest provides in-memory module configurations for tests.
package graphtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ritzau/deps-builder/pkg/modconfig"
	"github.com/ritzau/deps-builder/pkg/moduleyaml"
)

// Source serves configuration models from memory. Unknown modules have no
// configurations and no dependencies.
type Source struct {
	mu     sync.Mutex
	models map[string]*modconfig.Model
	Loads  map[string]int
}

// NewSource creates an empty in-memory source
func NewSource() *Source {
	return &Source{
		models: make(map[string]*modconfig.Model),
		Loads:  make(map[string]int),
	}
}

// Add declares a module. Each config is written `name > parent1, parent2 *default: dep1 dep2`.
// Dependencies prefixed with '-' are removal directives.
func (s *Source) Add(module string, configs ...string) *Source {
	var decls []modconfig.Declaration
	for _, c := range configs {
		decls = append(decls, ParseDeclaration(c))
	}
	m, err := modconfig.NewModel(module, nil, decls)
	if err != nil {
		panic(fmt.Sprintf("graphtest: invalid module %s: %v", module, err))
	}
	s.mu.Lock()
	s.models[module] = m
	s.mu.Unlock()
	return s
}

// Put stores an already built model
func (s *Source) Put(m *modconfig.Model) *Source {
	s.mu.Lock()
	s.models[m.Module] = m
	s.mu.Unlock()
	return s
}

// LoadConfigurations implements graph.ConfigSource
func (s *Source) LoadConfigurations(ctx context.Context, module string) (*modconfig.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Loads[module]++
	if m, ok := s.models[module]; ok {
		return m, nil
	}
	return modconfig.NewModel(module, nil, nil)
}

// ParseDeclaration parses the compact test notation used by Add. The head
// uses the module.yaml header grammar.
func ParseDeclaration(s string) modconfig.Declaration {
	head, body, _ := strings.Cut(s, ":")

	d, err := moduleyaml.ParseHeader(head)
	if err != nil {
		panic(fmt.Sprintf("graphtest: %v", err))
	}
	for _, ref := range strings.Fields(body) {
		entry, err := moduleyaml.ParseEntry(ref)
		if err != nil {
			panic(fmt.Sprintf("graphtest: %v", err))
		}
		d.Entries = append(d.Entries, entry)
	}
	return d
}
