package treeish

import (
	"errors"
	"testing"
)

func TestConflictingExplicitTreeishes(t *testing.T) {
	r := NewResolver("")

	if _, err := r.Record("C", "t1", "B"); err != nil {
		t.Fatalf("first record failed: %v", err)
	}
	_, err := r.Record("C", "t2", "A")

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.FirstParent != "B" || conflict.SecondParent != "A" {
		t.Errorf("conflict should name both parents, got %+v", conflict)
	}
}

func TestDefaultNeverConflicts(t *testing.T) {
	tests := []struct {
		name     string
		requests []Request
		want     string
	}{
		{"default then explicit", []Request{{"", "B"}, {"t1", "A"}}, "t1"},
		{"explicit then default", []Request{{"t1", "A"}, {"", "B"}}, "t1"},
		{"default branch is default", []Request{{"t1", "A"}, {"master", "B"}}, "t1"},
		{"same explicit twice", []Request{{"t1", "A"}, {"t1", "B"}}, "t1"},
		{"only defaults", []Request{{"", "A"}, {"master", "B"}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver("master")
			for _, req := range tt.requests {
				if _, err := r.Record("C", req.Treeish, req.Parent); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
			if got := r.Treeish("C"); got != tt.want {
				t.Errorf("Treeish = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecordChanged(t *testing.T) {
	r := NewResolver("master")

	steps := []struct {
		treeish string
		want    bool
	}{
		{"", true},    // first sighting
		{"", false},   // nothing moves
		{"t1", true},  // explicit replaces default
		{"t1", false}, // identical explicit is a no-op
		{"", false},
	}

	for i, s := range steps {
		changed, err := r.Record("C", s.treeish, "P")
		if err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
		if changed != s.want {
			t.Errorf("step %d: changed = %v, want %v", i, changed, s.want)
		}
	}
}

func TestCustomDefaultBranch(t *testing.T) {
	r := NewResolver("main")
	if _, err := r.Record("C", "main", "A"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Record("C", "master", "B"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Record("C", "develop", "D"); err == nil {
		t.Error("expected conflict between master and develop when default is main")
	}
}
