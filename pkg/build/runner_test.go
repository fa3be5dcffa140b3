package build

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/graph"
	"github.com/ritzau/deps-builder/pkg/graph/graphtest"
	"github.com/ritzau/deps-builder/pkg/order"
	"github.com/ritzau/deps-builder/pkg/scheduler"
)

func newScheduler(t *testing.T, src *graphtest.Source, root string) *scheduler.Scheduler {
	t.Helper()
	res, err := graph.NewBuilder(src, graph.Options{}).Build(context.Background(), dep.MustParse(root))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	keys, err := order.Sort(res.Graph, res.Root)
	if err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	return scheduler.New(keys, res.Graph, res.Registry)
}

// diamond: A -> B, C; B -> D; C -> D
func diamond() *graphtest.Source {
	return graphtest.NewSource().
		Add("A", "full-build: B C").
		Add("B", "full-build: D").
		Add("C", "full-build: D")
}

func TestRunBuildsInDependencyOrder(t *testing.T) {
	s := newScheduler(t, diamond(), "A")

	var mu sync.Mutex
	done := make(map[string]bool)
	b := BuilderFunc(func(ctx context.Context, node dep.Key) error {
		mu.Lock()
		defer mu.Unlock()
		deps := map[string][]string{"A": {"B", "C"}, "B": {"D"}, "C": {"D"}}
		for _, d := range deps[node.Name] {
			if !done[d] {
				t.Errorf("%s built before its dependency %s", node.Name, d)
			}
		}
		done[node.Name] = true
		return nil
	})

	report, err := NewRunner(4).Run(context.Background(), s, b)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(report.Results) != 4 {
		t.Errorf("got %d results, want 4", len(report.Results))
	}
	if len(report.State.Built) != 4 || report.State.Failed {
		t.Errorf("unexpected final state %+v", report.State)
	}
}

func TestRunStopsOnFailure(t *testing.T) {
	s := newScheduler(t, diamond(), "A")

	boom := errors.New("compiler exploded")
	var mu sync.Mutex
	var built []string
	b := BuilderFunc(func(ctx context.Context, node dep.Key) error {
		mu.Lock()
		built = append(built, node.Name)
		mu.Unlock()
		if node.Name == "D" {
			return boom
		}
		return nil
	})

	report, err := NewRunner(2).Run(context.Background(), s, b)

	var bfe *BuildFailedError
	if !errors.As(err, &bfe) {
		t.Fatalf("expected BuildFailedError, got %v", err)
	}
	if bfe.Node.Name != "D" || !errors.Is(err, boom) {
		t.Errorf("unexpected failure %v", bfe)
	}
	if len(built) != 1 {
		t.Errorf("nothing should be dispatched after D failed, built %v", built)
	}
	if !report.State.Failed {
		t.Error("report should record the failed state")
	}
}

func TestRunCompletesInFlightBuildsAfterFailure(t *testing.T) {
	src := graphtest.NewSource().Add("A", "full-build: B C")
	s := newScheduler(t, src, "A")

	release := make(chan struct{})
	var finished sync.WaitGroup
	finished.Add(1)
	b := BuilderFunc(func(ctx context.Context, node dep.Key) error {
		switch node.Name {
		case "B":
			<-release
			finished.Done()
			return nil
		case "C":
			defer close(release)
			return errors.New("C failed")
		}
		return nil
	})

	report, err := NewRunner(2).Run(context.Background(), s, b)
	if err == nil {
		t.Fatal("expected failure")
	}
	finished.Wait()

	var okB bool
	for _, r := range report.Results {
		if r.Node.Name == "B" && r.Err == "" {
			okB = true
		}
		if r.Node.Name == "A" {
			t.Error("A must not be built after C failed")
		}
	}
	if !okB {
		t.Errorf("in-flight build of B should complete, results %+v", report.Results)
	}
}

func TestRunCancel(t *testing.T) {
	src := graphtest.NewSource().Add("A", "full-build: B")
	s := newScheduler(t, src, "A")

	ctx, cancel := context.WithCancel(context.Background())
	b := BuilderFunc(func(ctx context.Context, node dep.Key) error {
		cancel()
		<-ctx.Done()
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := NewRunner(2).Run(ctx, s, b)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !s.Failed() {
		t.Error("cancel should stop the scheduler")
	}
}

func TestOnFinish(t *testing.T) {
	s := newScheduler(t, diamond(), "A")
	r := NewRunner(3)

	var mu sync.Mutex
	var seen []string
	r.OnFinish = func(res NodeResult) {
		mu.Lock()
		seen = append(seen, res.Node.Name)
		mu.Unlock()
	}
	if _, err := r.Run(context.Background(), s, BuilderFunc(func(context.Context, dep.Key) error { return nil })); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 4 {
		t.Errorf("OnFinish saw %v", seen)
	}
}

func TestRunReportsStalledScheduler(t *testing.T) {
	// A cycle the ordering step would have rejected leaves nothing buildable
	g := graph.NewModuleGraph()
	a := dep.Key{Name: "A", Configuration: "full-build"}
	b := dep.Key{Name: "B", Configuration: "full-build"}
	g.AddDependency(a, b)
	g.AddDependency(b, a)
	s := scheduler.New([]dep.Key{b, a}, g, nil)

	var built []dep.Key
	report, err := NewRunner(2).Run(context.Background(), s, BuilderFunc(func(ctx context.Context, node dep.Key) error {
		built = append(built, node)
		return nil
	}))

	if !errors.Is(err, ErrStalled) {
		t.Fatalf("expected ErrStalled, got %v", err)
	}
	if len(built) != 0 {
		t.Errorf("nothing should be built, got %v", built)
	}
	if len(report.State.Waiting) != 2 {
		t.Errorf("expected both nodes left waiting, got %+v", report.State)
	}
}
