package moduleyaml

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/ritzau/deps-builder/pkg/logging"
	"github.com/ritzau/deps-builder/pkg/modconfig"
	"golang.org/x/sync/singleflight"
)

// Source loads the configuration model of a module
type Source interface {
	LoadConfigurations(ctx context.Context, module string) (*modconfig.Model, error)
}

// FileSource reads <Workspace>/<module>/module.yaml.
// A module without the file has no configurations and no dependencies.
type FileSource struct {
	Workspace string
}

// NewFileSource creates a source rooted at workspace
func NewFileSource(workspace string) *FileSource {
	return &FileSource{Workspace: workspace}
}

// Path returns the module.yaml location of module
func (s *FileSource) Path(module string) string {
	return filepath.Join(s.Workspace, module, FileName)
}

// LoadConfigurations implements Source
func (s *FileSource) LoadConfigurations(ctx context.Context, module string) (*modconfig.Model, error) {
	path := s.Path(module)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logging.DebugContext(ctx, "module has no configuration file", "module", module, "path", path)
		return modconfig.NewModel(module, nil, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(module, data)
}

// Cache memoizes models per module. Concurrent loads of the same module share one read.
type Cache struct {
	source Source
	group  singleflight.Group

	mu     sync.RWMutex
	models map[string]*modconfig.Model
}

// NewCache wraps source with a model cache
func NewCache(source Source) *Cache {
	return &Cache{
		source: source,
		models: make(map[string]*modconfig.Model),
	}
}

// LoadConfigurations implements Source
func (c *Cache) LoadConfigurations(ctx context.Context, module string) (*modconfig.Model, error) {
	c.mu.RLock()
	m, ok := c.models[module]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	v, err, _ := c.group.Do(module, func() (interface{}, error) {
		m, err := c.source.LoadConfigurations(ctx, module)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.models[module] = m
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*modconfig.Model), nil
}

// Invalidate drops the cached models of modules, typically after a checkout moved
func (c *Cache) Invalidate(modules ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range modules {
		delete(c.models, m)
	}
}

// Purge drops every cached model
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = make(map[string]*modconfig.Model)
}

// Len returns the number of cached models
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}
