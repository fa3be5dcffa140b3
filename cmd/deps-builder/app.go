package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ritzau/deps-builder/pkg/config"
	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/graph"
	"github.com/ritzau/deps-builder/pkg/logging"
	"github.com/ritzau/deps-builder/pkg/moduleyaml"
	"github.com/ritzau/deps-builder/pkg/order"
	"github.com/ritzau/deps-builder/pkg/treeish"
	"github.com/ritzau/deps-builder/pkg/vcs"
)

// app holds what every command shares
type app struct {
	cfg    *config.Config
	root   dep.Dep
	cache  *moduleyaml.Cache
	logger *slog.Logger
}

func newApp(cfg *config.Config, root dep.Dep) *app {
	return &app{
		cfg:    cfg,
		root:   root,
		cache:  moduleyaml.NewCache(moduleyaml.NewFileSource(cfg.Workspace)),
		logger: logging.New("cli"),
	}
}

// resolution is a resolved graph with its build order
type resolution struct {
	*graph.Result
	Order []dep.Key
}

// resolve builds the graph from the checkouts already in the workspace
func (a *app) resolve(ctx context.Context) (*resolution, error) {
	res, err := graph.NewBuilder(a.cache, graph.Options{
		Resolver: treeish.NewResolver(a.cfg.DefaultBranch),
	}).Build(ctx, a.root)
	if err != nil {
		return nil, err
	}
	return a.sort(res)
}

func (a *app) sort(res *graph.Result) (*resolution, error) {
	keys, err := order.Sort(res.Graph, res.Root)
	if err != nil {
		return nil, err
	}
	return &resolution{Result: res, Order: keys}, nil
}

func (a *app) provider() *vcs.GitProvider {
	return vcs.NewGitProvider(a.cfg.Workspace, a.cfg.GitURL, a.cfg.DefaultBranch, nil)
}

func (a *app) describe() string {
	return fmt.Sprintf("%s in %s", a.root, a.cfg.Workspace)
}
