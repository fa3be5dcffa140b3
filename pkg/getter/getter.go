// Package getter checks out every module a root module transitively requires.
package getter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/graph"
	"github.com/ritzau/deps-builder/pkg/logging"
	"github.com/ritzau/deps-builder/pkg/nesting"
	"github.com/ritzau/deps-builder/pkg/treeish"
	"github.com/ritzau/deps-builder/pkg/vcs"
)

// CurrentBranchVar in a force list expands to the branch the root module is on
const CurrentBranchVar = "$CURRENT_BRANCH"

// Invalidator drops cached configurations of modules whose checkout moved
type Invalidator interface {
	Invalidate(modules ...string)
}

// Options configures a Getter
type Options struct {
	Policy        vcs.Policy
	DefaultBranch string
	// Cache is invalidated for each fetched module, may be nil
	Cache Invalidator
}

// Getter resolves a root module while fetching each module at its chosen revision
type Getter struct {
	source   graph.ConfigSource
	provider vcs.Provider
	opts     Options
	logger   *slog.Logger
}

// Result is a resolved graph together with the commit of every fetched module
type Result struct {
	*graph.Result
	Commits map[string]string
}

// New creates a getter
func New(source graph.ConfigSource, provider vcs.Provider, opts Options) *Getter {
	if opts.DefaultBranch == "" {
		opts.DefaultBranch = treeish.DefaultBranch
	}
	return &Getter{
		source:   source,
		provider: provider,
		opts:     opts,
		logger:   logging.New("getter"),
	}
}

// run is the per-Get state shared by fetch hook invocations
type run struct {
	g    *Getter
	root string

	mu            sync.Mutex
	commits       map[string]string
	currentBranch *string
}

// Get resolves root, fetching modules as the resolution discovers them
func (g *Getter) Get(ctx context.Context, root dep.Dep) (*Result, error) {
	r := &run{g: g, root: root.Name, commits: make(map[string]string)}

	builder := graph.NewBuilder(g.source, graph.Options{
		Resolver: treeish.NewResolver(g.opts.DefaultBranch),
		Registry: nesting.NewRegistry(),
		Fetch:    r.fetch,
	})

	res, err := builder.Build(ctx, root)
	if err != nil {
		return nil, err
	}

	g.logger.InfoContext(ctx, "workspace ready", "root", root.String(), "modules", len(r.commits))
	return &Result{Result: res, Commits: r.commits}, nil
}

func (r *run) fetch(ctx context.Context, req graph.FetchRequest) error {
	target := req.Treeish
	if target == "" && len(req.Force) > 0 {
		branch, err := r.preferredBranch(ctx, req)
		if err != nil {
			return err
		}
		target = branch
	}

	commit, err := r.g.provider.Fetch(ctx, req.Module, target, r.g.opts.Policy)
	if err != nil {
		return err
	}
	if r.g.opts.Cache != nil {
		r.g.opts.Cache.Invalidate(req.Module)
	}

	r.mu.Lock()
	r.commits[req.Module] = commit
	r.mu.Unlock()

	r.g.logger.DebugContext(ctx, "fetched module",
		"module", req.Module, "treeish", target, "commit", commit, "parent", req.Parent)
	return nil
}

// preferredBranch returns the first force branch that exists on the module's remote,
// or "" to stay on the default branch
func (r *run) preferredBranch(ctx context.Context, req graph.FetchRequest) (string, error) {
	for _, b := range req.Force {
		if strings.Contains(b, CurrentBranchVar) {
			current, err := r.rootBranch(ctx)
			if err != nil {
				return "", err
			}
			if current == "" {
				continue
			}
			b = strings.ReplaceAll(b, CurrentBranchVar, current)
		}

		ok, err := r.g.provider.HasRemoteBranch(ctx, req.Module, b)
		if err != nil {
			return "", fmt.Errorf("checking branch %s of %s: %w", b, req.Module, err)
		}
		if ok {
			r.g.logger.DebugContext(ctx, "using forced branch", "module", req.Module, "branch", b)
			return b, nil
		}
	}
	return "", nil
}

func (r *run) rootBranch(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentBranch != nil {
		return *r.currentBranch, nil
	}
	branch, err := r.g.provider.CurrentBranch(ctx, r.root)
	if err != nil {
		return "", fmt.Errorf("reading current branch of %s: %w", r.root, err)
	}
	r.currentBranch = &branch
	return branch, nil
}
