// Package scheduler hands out ready module configurations to build workers.
//
// Nodes move waiting -> building -> built. A node is ready when its whole
// dependency closure is built, no other configuration of the same module is
// building, and no building node has the module in its closure. Finishing a
// configuration also finishes every waiting configuration of the same module
// that it covers. A failure is sticky: nothing is dispatched afterwards.
package scheduler

import (
	"log/slog"
	"sync"

	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/graph"
	"github.com/ritzau/deps-builder/pkg/logging"
)

// Coverage decides whether configuration a of module covers configuration b
type Coverage interface {
	Covers(module, a, b string) bool
}

// State is a point-in-time copy of the scheduler sets, each in build order
type State struct {
	Waiting  []dep.Key `json:"waiting"`
	Building []dep.Key `json:"building"`
	Built    []dep.Key `json:"built"`
	Failed   bool      `json:"failed"`
}

// Scheduler is safe for concurrent use by any number of workers
type Scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	order    []dep.Key
	waiting  map[dep.Key]bool
	building map[dep.Key]bool
	built    map[dep.Key]bool
	failed   bool

	closure      map[dep.Key]map[dep.Key]bool
	closureNames map[dep.Key]map[string]bool
	coverage     Coverage
	logger       *slog.Logger
}

// New creates a scheduler over order, which must already be acyclic and
// contain every node's dependencies.
func New(order []dep.Key, g *graph.ModuleGraph, coverage Coverage) *Scheduler {
	s := &Scheduler{
		order:        append([]dep.Key(nil), order...),
		waiting:      make(map[dep.Key]bool, len(order)),
		building:     make(map[dep.Key]bool),
		built:        make(map[dep.Key]bool, len(order)),
		closure:      make(map[dep.Key]map[dep.Key]bool, len(order)),
		closureNames: make(map[dep.Key]map[string]bool, len(order)),
		coverage:     coverage,
		logger:       logging.New("scheduler"),
	}
	s.cond = sync.NewCond(&s.mu)

	for _, k := range order {
		s.waiting[k] = true
		c := g.Closure(k)
		names := make(map[string]bool, len(c))
		for d := range c {
			names[d.Name] = true
		}
		s.closure[k] = c
		s.closureNames[k] = names
	}
	return s
}

// TryStartBuild returns the next node to build, blocking while work remains
// but nothing is ready. It returns false once everything is built or the
// scheduler has failed.
func (s *Scheduler) TryStartBuild() (dep.Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.failed || len(s.waiting) == 0 {
			return dep.Key{}, false
		}

		if k, ok := s.nextReady(); ok {
			delete(s.waiting, k)
			s.building[k] = true
			s.logger.Debug("dispatching", "node", k.String(), "waiting", len(s.waiting), "building", len(s.building))
			return k, true
		}

		if len(s.building) == 0 {
			// Nothing can ever become ready; only possible with a graph that skipped ordering.
			s.logger.Error("no buildable node left", "waiting", len(s.waiting))
			s.failed = true
			s.cond.Broadcast()
			return dep.Key{}, false
		}

		s.cond.Wait()
	}
}

func (s *Scheduler) nextReady() (dep.Key, bool) {
	for _, m := range s.order {
		if s.waiting[m] && s.ready(m) {
			return m, true
		}
	}
	return dep.Key{}, false
}

func (s *Scheduler) ready(m dep.Key) bool {
	for d := range s.closure[m] {
		if !s.built[d] {
			return false
		}
	}
	for b := range s.building {
		if b.Name == m.Name || s.closureNames[b][m.Name] {
			return false
		}
	}
	return true
}

// EndBuild records the outcome of a dispatched node and wakes blocked workers
func (s *Scheduler) EndBuild(k dep.Key, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.building, k)
	s.built[k] = true
	if failed {
		s.failed = true
		s.logger.Warn("build failed, stopping dispatch", "node", k.String())
	}

	for w := range s.waiting {
		if w.Name == k.Name && s.coverage != nil && s.coverage.Covers(k.Name, k.Configuration, w.Configuration) {
			delete(s.waiting, w)
			s.built[w] = true
			s.logger.Debug("covered by finished build", "node", w.String(), "by", k.String())
		}
	}

	s.cond.Broadcast()
}

// Cancel stops dispatching and releases every blocked worker
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = true
	s.cond.Broadcast()
}

// Failed reports whether a build failed or the scheduler was cancelled
func (s *Scheduler) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Snapshot copies the current state
func (s *Scheduler) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{Failed: s.failed}
	for _, k := range s.order {
		switch {
		case s.waiting[k]:
			st.Waiting = append(st.Waiting, k)
		case s.building[k]:
			st.Building = append(st.Building, k)
		case s.built[k]:
			st.Built = append(st.Built, k)
		}
	}
	return st
}
