package output

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/ritzau/deps-builder/pkg/build"
	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/graph"
	"github.com/ritzau/deps-builder/pkg/graph/graphtest"
	"github.com/ritzau/deps-builder/pkg/order"
	"github.com/ritzau/deps-builder/pkg/scheduler"
)

func init() {
	color.NoColor = true
}

func TestPrintOrder(t *testing.T) {
	src := graphtest.NewSource().
		Add("A", "full-build: B@v1 X/client").
		Add("B", "full-build: X/full-build").
		Add("X", "client", "full-build > client *default")
	res, err := graph.NewBuilder(src, graph.Options{}).Build(context.Background(), dep.MustParse("A"))
	if err != nil {
		t.Fatal(err)
	}
	keys, err := order.Sort(res.Graph, res.Root)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	PrintOrder(&buf, res, keys)
	out := buf.String()

	for _, want := range []string{
		"Build order for A/full-build",
		"1. X/full-build",
		"B/full-build @v1",
		"X/client -> X/full-build",
		"3 node(s)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintCycle(t *testing.T) {
	src := graphtest.NewSource().
		Add("A", "full-build: B").
		Add("B", "full-build: A")
	res, err := graph.NewBuilder(src, graph.Options{}).Build(context.Background(), dep.MustParse("A"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = order.Sort(res.Graph, res.Root)
	var cerr *order.CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CycleError, got %v", err)
	}

	var buf bytes.Buffer
	PrintCycle(&buf, cerr)
	if !strings.Contains(buf.String(), "DEPENDENCY CYCLE") || !strings.Contains(buf.String(), "-> B/full-build") {
		t.Errorf("unexpected cycle output:\n%s", buf.String())
	}
}

func TestPrintCommits(t *testing.T) {
	var buf bytes.Buffer
	PrintCommits(&buf, map[string]string{"B": "0123456789abcdef", "A": "abc"})
	out := buf.String()
	if strings.Index(out, "A") > strings.Index(out, "B ") {
		t.Errorf("modules should be sorted:\n%s", out)
	}
	if !strings.Contains(out, "0123456789ab\n") || strings.Contains(out, "0123456789abc") {
		t.Errorf("commits should be shortened:\n%s", out)
	}
}

func TestPrintBuildReport(t *testing.T) {
	report := &build.Report{
		Results: []build.NodeResult{
			{Node: dep.Key{Name: "C", Configuration: "full-build"}, Duration: time.Second},
			{Node: dep.Key{Name: "B", Configuration: "full-build"}, Err: "exit status 2"},
		},
		State: scheduler.State{
			Waiting: []dep.Key{{Name: "A", Configuration: "full-build"}},
			Failed:  true,
		},
	}

	var buf bytes.Buffer
	PrintBuildReport(&buf, report, 2*time.Second)
	out := buf.String()
	for _, want := range []string{"✓ C/full-build", "✗ B/full-build", "Not built: 1 node(s)", "1 failed, 1 built"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
