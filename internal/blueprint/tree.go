// Package blueprint builds and merges the potential trees that templates
// declare over a project. A tree holds directory names only; whether a name
// is backed by a physical entry is decided elsewhere, at lookup time.
package blueprint

import "sort"

// Tree is one level of declared structure: a set of child names, each with
// its own subtree. Trees are grown during a scan and treated as immutable
// once published; rebuilding replaces the whole tree rather than editing it
// in place.
type Tree struct {
	children map[string]*Tree
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{children: make(map[string]*Tree)}
}

// Add grows a child of the given name and returns it. An existing child is
// returned unchanged.
func (t *Tree) Add(name string) *Tree {
	if child, ok := t.children[name]; ok {
		return child
	}
	child := NewTree()
	t.children[name] = child
	return child
}

// Descend returns the subtree for name.
func (t *Tree) Descend(name string) (*Tree, bool) {
	if t == nil {
		return nil, false
	}
	child, ok := t.children[name]
	return child, ok
}

// At walks the tree along segments and returns the node reached. Empty
// segments address the tree itself.
func (t *Tree) At(segments []string) (*Tree, bool) {
	node := t
	for _, name := range segments {
		child, ok := node.Descend(name)
		if !ok {
			return nil, false
		}
		node = child
	}
	return node, true
}

// Keys returns the direct child names in sorted order.
func (t *Tree) Keys() []string {
	if t == nil || len(t.children) == 0 {
		return nil
	}
	keys := make([]string, 0, len(t.children))
	for name := range t.children {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of direct children.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.children)
}

// Nodes returns the total number of names declared beneath the tree.
func (t *Tree) Nodes() int {
	if t == nil {
		return 0
	}
	n := len(t.children)
	for _, child := range t.children {
		n += child.Nodes()
	}
	return n
}

// Equal reports whether two trees declare exactly the same names.
func (t *Tree) Equal(other *Tree) bool {
	if t.Len() != other.Len() {
		return false
	}
	if t == nil || other == nil {
		return true
	}
	for name, child := range t.children {
		oc, ok := other.children[name]
		if !ok || !child.Equal(oc) {
			return false
		}
	}
	return true
}

// Merge unions any number of trees into a fresh tree. The inputs are never
// modified, so published trees can be merged safely while in use. A name
// present in several inputs appears once, with its subtrees unioned
// recursively; the operation is commutative, associative and idempotent.
// Nil inputs are ignored.
func Merge(trees ...*Tree) *Tree {
	out := NewTree()
	for _, t := range trees {
		mergeInto(out, t)
	}
	return out
}

func mergeInto(dst, src *Tree) {
	if src == nil {
		return
	}
	for name, child := range src.children {
		d, ok := dst.children[name]
		if !ok {
			d = NewTree()
			dst.children[name] = d
		}
		mergeInto(d, child)
	}
}
