package cycles

import (
	"testing"

	"github.com/ritzau/deps-builder/pkg/dep"
	"github.com/ritzau/deps-builder/pkg/graph"
)

func key(name string) dep.Key {
	return dep.Key{Name: name, Configuration: "full-build"}
}

func TestFindModuleCycles_NoCycles(t *testing.T) {
	mg := graph.NewModuleGraph()

	// Create a simple acyclic dependency chain: A -> B -> C
	_ = mg.AddDependency(key("A"), key("B"))
	_ = mg.AddDependency(key("B"), key("C"))

	cycles := FindModuleCycles(mg)

	if len(cycles) != 0 {
		t.Errorf("Expected no cycles, but found %d", len(cycles))
	}
}

func TestFindModuleCycles_SimpleCycle(t *testing.T) {
	mg := graph.NewModuleGraph()

	// Create a simple cycle: A -> B -> A
	_ = mg.AddDependency(key("A"), key("B"))
	_ = mg.AddDependency(key("B"), key("A"))

	cycles := FindModuleCycles(mg)

	if len(cycles) != 1 {
		t.Fatalf("Expected 1 cycle, but found %d", len(cycles))
	}

	names := cycles[0].Names()
	if len(names) != 2 || names[0] != "A/full-build" || names[1] != "B/full-build" {
		t.Errorf("Expected cycle [A/full-build B/full-build], got %v", names)
	}
}

func TestFindModuleCycles_MultipleCycles(t *testing.T) {
	mg := graph.NewModuleGraph()

	// Cycle 1: A -> B -> A
	_ = mg.AddDependency(key("A"), key("B"))
	_ = mg.AddDependency(key("B"), key("A"))

	// Cycle 2: C -> D -> E -> C
	_ = mg.AddDependency(key("C"), key("D"))
	_ = mg.AddDependency(key("D"), key("E"))
	_ = mg.AddDependency(key("E"), key("C"))

	// Acyclic tail
	_ = mg.AddDependency(key("E"), key("F"))

	cycles := FindModuleCycles(mg)

	if len(cycles) != 2 {
		t.Fatalf("Expected 2 cycles, but found %d", len(cycles))
	}
	if len(cycles[0].Nodes) != 2 || len(cycles[1].Nodes) != 3 {
		t.Errorf("Expected a 2-node cycle then a 3-node cycle, got %v and %v",
			cycles[0].Names(), cycles[1].Names())
	}
}

func TestFindModuleCycles_ConfigurationsAreDistinctNodes(t *testing.T) {
	mg := graph.NewModuleGraph()

	client := dep.Key{Name: "A", Configuration: "client"}
	full := dep.Key{Name: "A", Configuration: "full-build"}

	// A/full-build -> X -> A/client is not a cycle
	_ = mg.AddDependency(full, key("X"))
	_ = mg.AddDependency(key("X"), client)

	if cycles := FindModuleCycles(mg); len(cycles) != 0 {
		t.Errorf("Expected no cycles, got %v", cycles)
	}
}
