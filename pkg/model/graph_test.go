package model

import (
	"context"
	"testing"

	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/graph"
	"github.com/ritzau/deps-builder/pkg/graph/graphtest"
)

func TestFromResult(t *testing.T) {
	// A needs X/client and B; B needs X/full-build which covers client
	src := graphtest.NewSource().
		Add("A", "full-build: X/client B").
		Add("B", "full-build: X@v2/full-build").
		Add("X", "client", "full-build > client *default")

	res, err := graph.NewBuilder(src, graph.Options{}).Build(context.Background(), dep.MustParse("A"))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	g := FromResult(res)
	if g.Root != "A/full-build" {
		t.Errorf("Root = %q", g.Root)
	}

	x, ok := g.Nodes["X/full-build"]
	if !ok {
		t.Fatalf("missing X/full-build in %v", g.Nodes)
	}
	if x.Treeish != "v2" || x.Module != "X" {
		t.Errorf("X node = %+v", x)
	}

	client, ok := g.Nodes["X/client"]
	if !ok || client.Metadata["collapsedInto"] != "X/full-build" {
		t.Errorf("collapsed node = %+v", client)
	}

	var deps, collapsed int
	for _, e := range g.Edges {
		switch e.Type {
		case EdgeDependency:
			deps++
		case EdgeCollapsed:
			collapsed++
			if e.Source != "X/client" || e.Target != "X/full-build" {
				t.Errorf("unexpected collapsed edge %+v", e)
			}
		}
	}
	// A->B, A->X/full-build, B->X/full-build
	if deps != 3 || collapsed != 1 {
		t.Errorf("edges: %d dependency, %d collapsed", deps, collapsed)
	}
}
