package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/logging"
	"github.com/ritzau/deps-builder/pkg/metrics"
	"github.com/ritzau/deps-builder/pkg/scheduler"
	"golang.org/x/sync/errgroup"
)

// ErrStalled is returned when the scheduler stopped with nodes left unbuilt
// although no build failed
var ErrStalled = errors.New("build stalled with unbuilt nodes")

// BuildFailedError wraps the error of the first node whose build failed
type BuildFailedError struct {
	Node dep.Key
	Err  error
}

func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("build of %s failed: %v", e.Node, e.Err)
}

func (e *BuildFailedError) Unwrap() error {
	return e.Err
}

// NodeResult is the outcome of one dispatched build
type NodeResult struct {
	Node     dep.Key       `json:"node"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// Report lists the builds a run dispatched, in completion order
type Report struct {
	Results []NodeResult
	State   scheduler.State
}

// Runner drives a fixed pool of workers over a scheduler
type Runner struct {
	Workers int
	// OnFinish, if set, is called from the worker goroutines after every node build
	OnFinish func(NodeResult)

	mu     sync.Mutex
	report Report
	logger *slog.Logger
}

// NewRunner creates a runner with the given pool size, at least one
func NewRunner(workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{Workers: workers, logger: logging.New("runner")}
}

// Run builds every node the scheduler hands out. A failed build stops new
// dispatch while builds already running complete. Cancelling ctx cancels the
// scheduler and running builds.
func (r *Runner) Run(ctx context.Context, s *scheduler.Scheduler, b Builder) (*Report, error) {
	stop := context.AfterFunc(ctx, s.Cancel)
	defer stop()

	r.report = Report{}
	start := time.Now()
	r.logger.InfoContext(ctx, "starting build", "workers", r.Workers)

	var g errgroup.Group
	for i := 0; i < r.Workers; i++ {
		worker := i
		g.Go(func() error {
			return r.work(ctx, worker, s, b)
		})
	}
	err := g.Wait()

	r.mu.Lock()
	report := r.report
	r.mu.Unlock()
	report.State = s.Snapshot()

	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err == nil && s.Failed() {
		err = fmt.Errorf("%w: %d waiting", ErrStalled, len(report.State.Waiting))
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "build stopped", "error", err, "built", len(report.State.Built))
		return &report, err
	}
	r.logger.InfoContext(ctx, "build finished", "nodes", len(report.Results), "elapsed", time.Since(start))
	return &report, nil
}

func (r *Runner) work(ctx context.Context, worker int, s *scheduler.Scheduler, b Builder) error {
	var first error
	for {
		node, ok := s.TryStartBuild()
		if !ok {
			return first
		}

		metrics.BuildsStarted.Inc()
		metrics.BuildsInFlight.Inc()
		started := time.Now()

		err := b.Build(ctx, node)

		elapsed := time.Since(started)
		metrics.BuildsInFlight.Dec()
		metrics.BuildDuration.Observe(elapsed.Seconds())

		s.EndBuild(node, err != nil)

		res := NodeResult{Node: node, Duration: elapsed}
		if err != nil {
			res.Err = err.Error()
			metrics.BuildsFinished.WithLabelValues(metrics.StatusFailed).Inc()
			r.logger.ErrorContext(ctx, "build failed", "node", node.String(), "worker", worker, "error", err)
			if first == nil {
				first = &BuildFailedError{Node: node, Err: err}
			}
		} else {
			metrics.BuildsFinished.WithLabelValues(metrics.StatusOK).Inc()
			r.logger.InfoContext(ctx, "built", "node", node.String(), "worker", worker, "elapsed", elapsed)
		}

		r.mu.Lock()
		r.report.Results = append(r.report.Results, res)
		r.mu.Unlock()
		if r.OnFinish != nil {
			r.OnFinish(res)
		}
	}
}
