package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/logging"
	"github.com/ritzau/deps-builder/pkg/metrics"
	"github.com/ritzau/deps-builder/pkg/modconfig"
	"github.com/ritzau/deps-builder/pkg/nesting"
	"github.com/ritzau/deps-builder/pkg/treeish"
)

// RootParent names the requester of the root module in treeish conflicts
const RootParent = "<root>"

// ConfigSource loads the configuration model of a module
type ConfigSource interface {
	LoadConfigurations(ctx context.Context, module string) (*modconfig.Model, error)
}

// FetchRequest asks for a module checkout at a treeish before its configuration is read
type FetchRequest struct {
	Module  string
	Treeish string   // "" means the default branch
	Parent  string   // requesting module, RootParent for the root
	Force   []string // branch preference of the requesting configuration
}

// FetchFunc brings a module's working copy to the requested revision
type FetchFunc func(ctx context.Context, req FetchRequest) error

// Options configures a Builder. Zero values get fresh per-run state.
type Options struct {
	Resolver *treeish.Resolver
	Registry *nesting.Registry
	Fetch    FetchFunc
}

// Builder expands a root module into the full dependency graph
type Builder struct {
	source   ConfigSource
	resolver *treeish.Resolver
	registry *nesting.Registry
	fetch    FetchFunc
	logger   *slog.Logger
}

// Result is the outcome of one resolution run
type Result struct {
	Root      dep.Key
	Graph     *ModuleGraph
	Requested map[string][]string     // module -> every configuration requested during expansion
	Collapsed map[dep.Key]dep.Key     // dropped node -> node that covers it
	Kept      []dep.Key               // covered nodes kept because collapsing would create a cycle
	Treeish   map[string]string       // module -> explicit treeish, absent for default
	Models    map[string]*modconfig.Model
	Registry  *nesting.Registry
}

// NewBuilder creates a graph builder reading configurations from source
func NewBuilder(source ConfigSource, opts Options) *Builder {
	if opts.Resolver == nil {
		opts.Resolver = treeish.NewResolver("")
	}
	if opts.Registry == nil {
		opts.Registry = nesting.NewRegistry()
	}
	return &Builder{
		source:   source,
		resolver: opts.Resolver,
		registry: opts.Registry,
		fetch:    opts.Fetch,
		logger:   logging.New("graph"),
	}
}

// expansion holds the mutable state of a single Build call
type expansion struct {
	b           *Builder
	graph       *ModuleGraph
	models      map[string]*modconfig.Model
	requested   map[string][]string
	moduleOrder []string
	visited     map[dep.Key]bool
	expanding   map[dep.Key]bool
}

// Build resolves root and everything it transitively requires
func (b *Builder) Build(ctx context.Context, root dep.Dep) (*Result, error) {
	res, err := b.build(ctx, root)
	if err != nil {
		metrics.ResolutionsTotal.WithLabelValues(metrics.StatusFailed).Inc()
		return nil, err
	}
	metrics.ResolutionsTotal.WithLabelValues(metrics.StatusOK).Inc()
	metrics.GraphNodes.Set(float64(res.Graph.Len()))
	metrics.CollapsedNodes.Set(float64(len(res.Collapsed)))
	return res, nil
}

func (b *Builder) build(ctx context.Context, root dep.Dep) (*Result, error) {
	x := &expansion{
		b:         b,
		graph:     NewModuleGraph(),
		models:    make(map[string]*modconfig.Model),
		requested: make(map[string][]string),
		visited:   make(map[dep.Key]bool),
		expanding: make(map[dep.Key]bool),
	}

	b.logger.InfoContext(ctx, "resolving dependency graph", "root", root.String())

	if err := x.record(ctx, root, RootParent, nil); err != nil {
		return nil, err
	}
	model, err := x.model(ctx, root.Name)
	if err != nil {
		return nil, err
	}
	config, err := model.Resolve(root.Configuration)
	if err != nil {
		return nil, err
	}

	rootKey := dep.Key{Name: root.Name, Configuration: config}
	x.graph.AddNode(rootKey)
	x.request(rootKey)

	if err := x.expand(ctx, rootKey); err != nil {
		return nil, err
	}

	res := &Result{
		Root:      rootKey,
		Graph:     x.graph,
		Requested: x.requested,
		Collapsed: make(map[dep.Key]dep.Key),
		Treeish:   make(map[string]string),
		Models:    x.models,
		Registry:  b.registry,
	}
	x.relax(ctx, res)

	if removed := x.graph.Prune(rootKey); len(removed) > 0 {
		b.logger.DebugContext(ctx, "pruned unreachable nodes", "count", len(removed))
	}

	for module, req := range b.resolver.Snapshot() {
		res.Treeish[module] = req.Treeish
	}

	b.logger.InfoContext(ctx, "dependency graph resolved",
		"nodes", x.graph.Len(), "collapsed", len(res.Collapsed), "kept", len(res.Kept))
	return res, nil
}

// record validates the treeish of d and fetches the module when its checkout has to move
func (x *expansion) record(ctx context.Context, d dep.Dep, parent string, force []string) error {
	changed, err := x.b.resolver.Record(d.Name, d.Treeish, parent)
	if err != nil {
		return err
	}
	if !changed || x.b.fetch == nil {
		return nil
	}

	stale := x.invalidate(ctx, d.Name, d.Treeish, parent)

	req := FetchRequest{
		Module:  d.Name,
		Treeish: x.b.resolver.Treeish(d.Name),
		Parent:  parent,
		Force:   force,
	}
	if err := x.b.fetch(ctx, req); err != nil {
		return fmt.Errorf("fetching %s: %w", d.Name, err)
	}

	for _, key := range stale {
		if err := x.expand(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// invalidate forgets what was read from module before its checkout moves.
// Nodes of the module that were already expanded lose their outgoing edges
// and are returned so they can be expanded again from the new revision.
func (x *expansion) invalidate(ctx context.Context, module, treeish, parent string) []dep.Key {
	if _, loaded := x.models[module]; !loaded {
		return nil
	}
	x.b.logger.WarnContext(ctx, "module revision changed after its configuration was read",
		"module", module, "treeish", treeish, "parent", parent)
	delete(x.models, module)

	var stale []dep.Key
	for _, key := range x.graph.Nodes() {
		if key.Name != module || !x.visited[key] {
			continue
		}
		if x.expanding[key] {
			x.b.logger.WarnContext(ctx, "cannot re-expand a configuration that requested its own revision change",
				"node", key.String())
			continue
		}
		delete(x.visited, key)
		x.graph.RemoveDependencies(key)
		stale = append(stale, key)
	}
	return stale
}

func (x *expansion) model(ctx context.Context, module string) (*modconfig.Model, error) {
	if m, ok := x.models[module]; ok {
		return m, nil
	}
	m, err := x.b.source.LoadConfigurations(ctx, module)
	if err != nil {
		return nil, fmt.Errorf("loading configurations of %s: %w", module, err)
	}
	x.models[module] = m
	x.b.registry.Register(m)
	return m, nil
}

func (x *expansion) request(key dep.Key) {
	configs, seen := x.requested[key.Name]
	if !seen {
		x.moduleOrder = append(x.moduleOrder, key.Name)
	}
	for _, c := range configs {
		if c == key.Configuration {
			return
		}
	}
	x.requested[key.Name] = append(configs, key.Configuration)
}

func (x *expansion) expand(ctx context.Context, key dep.Key) error {
	if x.visited[key] {
		return nil
	}
	x.visited[key] = true
	x.expanding[key] = true
	defer delete(x.expanding, key)

	if err := ctx.Err(); err != nil {
		return err
	}

	model, err := x.model(ctx, key.Name)
	if err != nil {
		return err
	}
	deps, err := model.Deps(key.Configuration)
	if err != nil {
		return err
	}
	force := model.Force(key.Configuration)

	for _, d := range deps {
		if err := x.record(ctx, d, key.Name, force); err != nil {
			return err
		}

		child, err := x.model(ctx, d.Name)
		if err != nil {
			return err
		}
		config, err := child.Resolve(d.Configuration)
		if err != nil {
			return fmt.Errorf("%s requires %s: %w", key, d, err)
		}

		target := dep.Key{Name: d.Name, Configuration: config}
		if err := x.graph.AddDependency(key, target); err != nil {
			return err
		}
		x.request(target)

		if err := x.expand(ctx, target); err != nil {
			return err
		}
	}
	return nil
}

// relax collapses nodes whose configuration is covered by a sibling configuration
// of the same module, unless the covering node already depends on the covered one.
func (x *expansion) relax(ctx context.Context, res *Result) {
	for _, module := range x.moduleOrder {
		configs := x.requested[module]
		if len(configs) < 2 {
			continue
		}
		closure := x.b.registry.Closure(module)
		if closure == nil {
			continue
		}
		maximal := closure.ReduceToMaximal(configs)

		for _, b := range configs {
			if contains(maximal, b) {
				continue
			}
			covered := dep.Key{Name: module, Configuration: b}
			if !x.graph.HasNode(covered) {
				continue
			}
			if covered == res.Root {
				res.Kept = append(res.Kept, covered)
				continue
			}

			collapsed := false
			for _, a := range closure.CoveringCandidates(b, maximal) {
				cover := dep.Key{Name: module, Configuration: a}
				if !x.graph.HasNode(cover) || x.graph.PathExists(cover, covered) {
					continue
				}
				if err := x.graph.Redirect(covered, cover); err != nil {
					x.b.logger.WarnContext(ctx, "redirect failed", "from", covered.String(), "to", cover.String(), "error", err)
					continue
				}
				x.graph.RemoveNode(covered)
				res.Collapsed[covered] = cover
				collapsed = true
				x.b.logger.DebugContext(ctx, "collapsed covered configuration",
					"module", module, "covered", b, "by", a)
				break
			}

			if !collapsed {
				res.Kept = append(res.Kept, covered)
				x.b.logger.DebugContext(ctx, "kept covered configuration to avoid a cycle",
					"module", module, "configuration", b)
			}
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
