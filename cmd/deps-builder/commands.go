package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/ritzau/deps-builder/pkg/build"
	"github.com/ritzau/deps-builder/pkg/getter"
	"github.com/ritzau/deps-builder/pkg/model"
	"github.com/ritzau/deps-builder/pkg/output"
	"github.com/ritzau/deps-builder/pkg/scheduler"
	"github.com/ritzau/deps-builder/pkg/watcher"
	"github.com/ritzau/deps-builder/pkg/web"
)

func runOrder(ctx context.Context, a *app) error {
	r, err := a.resolve(ctx)
	if err != nil {
		return err
	}
	output.PrintOrder(os.Stdout, r.Result, r.Order)
	return nil
}

func runGraph(ctx context.Context, a *app) error {
	r, err := a.resolve(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(model.FromResult(r.Result))
}

func runGet(ctx context.Context, a *app) error {
	g := getter.New(a.cache, a.provider(), getter.Options{
		Policy:        a.cfg.LocalChangesPolicy(),
		DefaultBranch: a.cfg.DefaultBranch,
		Cache:         a.cache,
	})
	res, err := g.Get(ctx, a.root)
	if err != nil {
		return err
	}
	r, err := a.sort(res.Result)
	if err != nil {
		return err
	}
	output.PrintCommits(os.Stdout, res.Commits)
	output.PrintOrder(os.Stdout, r.Result, r.Order)
	return nil
}

func (a *app) builder(r *resolution) build.Builder {
	shell := build.NewShellBuilder(a.cfg.Workspace, r.Models)
	if a.cfg.DryRun {
		return &build.DryRunBuilder{Shell: shell}
	}
	return shell
}

func runBuild(ctx context.Context, a *app) error {
	r, err := a.resolve(ctx)
	if err != nil {
		return err
	}

	sched := scheduler.New(r.Order, r.Graph, r.Registry)
	start := time.Now()
	report, err := build.NewRunner(a.cfg.Workers).Run(ctx, sched, a.builder(r))
	if report != nil {
		output.PrintBuildReport(os.Stdout, report, time.Since(start))
	}
	return err
}

// server ties a status server to resolution and build runs
type server struct {
	a   *app
	web *web.Server

	mu      sync.Mutex
	current *resolution
	running bool
}

func runServe(ctx context.Context, a *app) error {
	s := &server{a: a, web: web.NewServer()}
	s.web.OnBuild(func() error { return s.startBuild(ctx) })

	s.refresh(ctx)

	if a.cfg.Watch {
		if err := s.watch(ctx); err != nil {
			return err
		}
	}

	return s.web.Start(ctx, a.cfg.Port)
}

// refresh re-resolves the root and publishes the outcome
func (s *server) refresh(ctx context.Context) {
	s.web.PublishResolving(s.a.root)
	r, err := s.a.resolve(ctx)
	if err != nil {
		s.a.logger.WarnContext(ctx, "resolution failed", "root", s.a.describe(), "error", err)
		s.web.SetResolution(s.a.root, nil, nil, err)
		return
	}

	s.mu.Lock()
	s.current = r
	s.mu.Unlock()
	s.web.SetResolution(s.a.root, r.Result, r.Order, nil)
}

func (s *server) startBuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return web.ErrBuildRunning
	}
	if s.current == nil {
		return errors.New("no graph resolved yet")
	}

	r := s.current
	sched := scheduler.New(r.Order, r.Graph, r.Registry)
	runner := build.NewRunner(s.a.cfg.Workers)
	runner.OnFinish = s.web.NodeFinished

	s.running = true
	s.web.BuildStarted(sched, len(r.Order))

	go func() {
		_, err := runner.Run(ctx, sched, s.a.builder(r))
		s.web.BuildFinished(err)

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()
	return nil
}

// watch re-resolves whenever a module.yaml or checkout changes
func (s *server) watch(ctx context.Context) error {
	fw, err := watcher.NewFileWatcher(s.a.cfg.Workspace)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	debouncer := watcher.NewDebouncer(fw.Events(), 300*time.Millisecond, 3*time.Second)
	debouncer.Start(ctx)

	go func() {
		for event := range debouncer.Output() {
			analysis := watcher.AnalyzeChanges(event, s.a.cfg.Workspace)
			if !analysis.NeedResolve {
				continue
			}
			s.a.logger.InfoContext(ctx, "workspace changed", "type", event.Type.String(), "modules", analysis.Modules)
			s.a.cache.Invalidate(analysis.Modules...)
			s.refresh(ctx)
		}
	}()
	return nil
}
