package blueprint

import (
	"reflect"
	"testing"
)

// buildTree grows a tree from slash-separated chains.
func buildTree(t *testing.T, chains ...[]string) *Tree {
	t.Helper()
	tree := NewTree()
	for _, chain := range chains {
		node := tree
		for _, name := range chain {
			node = node.Add(name)
		}
	}
	return tree
}

func TestTreeMergeUnion(t *testing.T) {
	t.Parallel()

	a := buildTree(t, []string{"admin"}, []string{"finance"})
	b := buildTree(t, []string{"finance"}, []string{"legal"})

	merged := Merge(a, b)
	want := []string{"admin", "finance", "legal"}
	if got := merged.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Merge().Keys() = %v, want %v", got, want)
	}
}

func TestTreeMergeRecursive(t *testing.T) {
	t.Parallel()

	a := buildTree(t, []string{"finance", "reports"})
	b := buildTree(t, []string{"finance", "budget"})

	merged := Merge(a, b)
	finance, ok := merged.Descend("finance")
	if !ok {
		t.Fatalf("Merge() lost the finance subtree")
	}
	want := []string{"budget", "reports"}
	if got := finance.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("finance.Keys() = %v, want %v", got, want)
	}
}

func TestTreeMergeProperties(t *testing.T) {
	t.Parallel()

	a := buildTree(t, []string{"admin", "hr"}, []string{"finance"})
	b := buildTree(t, []string{"finance", "reports"}, []string{"legal"})
	c := buildTree(t, []string{"ops"})

	if !Merge(a, b).Equal(Merge(b, a)) {
		t.Errorf("merge is not commutative")
	}
	if !Merge(Merge(a, b), c).Equal(Merge(a, Merge(b, c))) {
		t.Errorf("merge is not associative")
	}
	if !Merge(a, a).Equal(Merge(a)) {
		t.Errorf("merge is not idempotent")
	}
	if !Merge(a, nil).Equal(Merge(a)) {
		t.Errorf("merge with nil changed the tree")
	}
}

func TestTreeMergeDoesNotModifyInputs(t *testing.T) {
	t.Parallel()

	a := buildTree(t, []string{"admin"})
	b := buildTree(t, []string{"finance", "reports"})

	Merge(a, b)

	if got := a.Keys(); !reflect.DeepEqual(got, []string{"admin"}) {
		t.Errorf("input a was modified: keys = %v", got)
	}
	if a.Nodes() != 1 {
		t.Errorf("input a node count = %d, want 1", a.Nodes())
	}
	if b.Nodes() != 2 {
		t.Errorf("input b node count = %d, want 2", b.Nodes())
	}
}

func TestTreeAt(t *testing.T) {
	t.Parallel()

	tree := buildTree(t, []string{"finance", "reports", "q1"})

	tests := []struct {
		name     string
		segments []string
		found    bool
	}{
		{name: "root", segments: nil, found: true},
		{name: "first level", segments: []string{"finance"}, found: true},
		{name: "deep", segments: []string{"finance", "reports", "q1"}, found: true},
		{name: "missing leaf", segments: []string{"finance", "budget"}, found: false},
		{name: "missing chain", segments: []string{"admin", "hr"}, found: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, found := tree.At(tt.segments)
			if found != tt.found {
				t.Errorf("At(%v) found = %v, want %v", tt.segments, found, tt.found)
			}
		})
	}
}

func TestTreeNodes(t *testing.T) {
	t.Parallel()

	tree := buildTree(t,
		[]string{"finance", "reports"},
		[]string{"finance", "budget"},
		[]string{"admin"},
	)
	// finance, reports, budget, admin.
	if got := tree.Nodes(); got != 4 {
		t.Errorf("Nodes() = %d, want 4", got)
	}
	if got := (*Tree)(nil).Nodes(); got != 0 {
		t.Errorf("nil Nodes() = %d, want 0", got)
	}
}

func TestTreeKeysSorted(t *testing.T) {
	t.Parallel()

	tree := buildTree(t, []string{"zeta"}, []string{"alpha"}, []string{"mid"})
	want := []string{"alpha", "mid", "zeta"}
	if got := tree.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	if got := NewTree().Keys(); got != nil {
		t.Errorf("empty Keys() = %v, want nil", got)
	}
}
