package order

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/graph"
	"github.com/ritzau/deps-builder/pkg/graph/graphtest"
)

func sortModule(t *testing.T, src *graphtest.Source, root string) ([]string, error) {
	t.Helper()
	res, err := graph.NewBuilder(src, graph.Options{}).Build(context.Background(), dep.MustParse(root))
	if err != nil {
		t.Fatalf("Build(%s) failed: %v", root, err)
	}
	keys, err := Sort(res.Graph, res.Root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range keys {
		out = append(out, k.String())
	}
	return out, nil
}

func TestSortLinearChain(t *testing.T) {
	src := graphtest.NewSource().
		Add("A", "full-build: B").
		Add("B", "full-build: C").
		Add("C", "full-build: D")

	got, err := sortModule(t, src, "A")
	if err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	want := []string{"D/full-build", "C/full-build", "B/full-build", "A/full-build"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestSortCycle(t *testing.T) {
	src := graphtest.NewSource().
		Add("A", "full-build: B").
		Add("B", "full-build: C").
		Add("C", "full-build: D").
		Add("D", "full-build: A")

	_, err := sortModule(t, src, "A")

	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	want := []dep.Key{
		{Name: "A", Configuration: "full-build"},
		{Name: "B", Configuration: "full-build"},
		{Name: "C", Configuration: "full-build"},
		{Name: "D", Configuration: "full-build"},
		{Name: "A", Configuration: "full-build"},
	}
	if !reflect.DeepEqual(cycle.Members, want) {
		t.Errorf("cycle members = %v, want %v", cycle.Members, want)
	}
	if len(cycle.Components) != 1 || len(cycle.Components[0].Nodes) != 4 {
		t.Errorf("expected one 4-node component, got %v", cycle.Components)
	}
}

func TestSortSubsumedConfiguration(t *testing.T) {
	src := graphtest.NewSource().
		Add("A", "full-build: B C").
		Add("B", "full-build: X/client").
		Add("C", "full-build: X").
		Add("X", "client:", "full-build > client *default:")

	got, err := sortModule(t, src, "A")
	if err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	want := []string{"X/full-build", "B/full-build", "C/full-build", "A/full-build"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestSortCycleSafeNoCollapse(t *testing.T) {
	src := graphtest.NewSource().
		Add("A", "client:", "full-build > client *default: X").
		Add("X", "full-build: A/client")

	got, err := sortModule(t, src, "A")
	if err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	want := []string{"A/client", "X/full-build", "A/full-build"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestSortDependenciesPrecedeDependents(t *testing.T) {
	src := graphtest.NewSource().
		Add("App", "full-build: Net Log UI").
		Add("Net", "full-build: Log Core").
		Add("UI", "full-build: Core Log").
		Add("Log", "full-build: Core")

	res, err := graph.NewBuilder(src, graph.Options{}).Build(context.Background(), dep.MustParse("App"))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	first, err := Sort(res.Graph, res.Root)
	if err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	position := make(map[dep.Key]int)
	for i, k := range first {
		position[k] = i
	}
	for _, e := range res.Graph.Edges() {
		if position[e[1]] >= position[e[0]] {
			t.Errorf("%s placed before its dependency %s", e[0], e[1])
		}
	}

	second, _ := Sort(res.Graph, res.Root)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Sort is not deterministic: %v vs %v", first, second)
	}
}

func TestSortUnknownRoot(t *testing.T) {
	if _, err := Sort(graph.NewModuleGraph(), dep.Key{Name: "A"}); err == nil {
		t.Error("expected error for missing root")
	}
}
