// Package cdt implements the capability derivation tree (spec §3.3, §4.5):
// one tree per Untyped root, recording parent/child/sibling relationships
// between capabilities so that revoking a capability can recursively tear
// down everything derived from it.
//
// Nodes live in a fixed arena indexed by Ref, never addressed by a pointer
// that could dangle across a reallocation (spec §9 "unchecked pointer
// graphs... replace raw pointers with arena-plus-index").
package cdt

import (
	"github.com/kaal-project/kaal/internal/capability"
	"github.com/kaal-project/kaal/internal/kerr"
)

// Ref indexes a node in a Tree's arena. NoRef (-1) means "no node" (used
// for parent/child/sibling links that are absent); the zero value is the
// first arena slot.
type Ref int32

// NoRef is the sentinel meaning "no node referenced".
const NoRef Ref = -1

type node struct {
	cap    capability.Cap
	parent Ref
	child  Ref // first child
	sib    Ref // next sibling
	prev   Ref // previous sibling, or NoRef if first child of its parent
	live   bool
}

// Tree is a capability derivation tree arena.
type Tree struct {
	nodes []node
	free  []Ref
}

// New returns an empty tree.
func New() *Tree { return &Tree{} }

func (t *Tree) alloc(n node) Ref {
	if len(t.free) > 0 {
		ref := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		t.nodes[ref] = n
		return ref
	}
	t.nodes = append(t.nodes, n)
	return Ref(len(t.nodes) - 1)
}

func (t *Tree) valid(ref Ref) bool {
	return ref >= 0 && int(ref) < len(t.nodes) && t.nodes[ref].live
}

// Root inserts a new root node (no parent) holding cap and returns its Ref.
// Used when an object is first retyped and given its first, underiving
// capability.
func (t *Tree) Root(cap capability.Cap) Ref {
	return t.alloc(node{cap: cap, parent: NoRef, child: NoRef, sib: NoRef, prev: NoRef, live: true})
}

// Get returns the capability held at ref.
func (t *Tree) Get(ref Ref) (capability.Cap, error) {
	if !t.valid(ref) {
		return capability.Cap{}, kerr.New(kerr.NotFound, "cdt: invalid node reference")
	}
	return t.nodes[ref].cap, nil
}

// Parent returns the parent of ref, or NoRef if ref is a root.
func (t *Tree) Parent(ref Ref) Ref {
	if !t.valid(ref) {
		return NoRef
	}
	return t.nodes[ref].parent
}

// Children returns the direct children of ref in sibling-list order.
func (t *Tree) Children(ref Ref) []Ref {
	if !t.valid(ref) {
		return nil
	}
	var out []Ref
	for c := t.nodes[ref].child; c != NoRef; c = t.nodes[c].sib {
		out = append(out, c)
	}
	return out
}

func (t *Tree) link(parent, child Ref) {
	t.nodes[child].parent = parent
	t.nodes[child].prev = NoRef
	t.nodes[child].sib = t.nodes[parent].child
	if t.nodes[parent].child != NoRef {
		t.nodes[t.nodes[parent].child].prev = child
	}
	t.nodes[parent].child = child
}

func (t *Tree) unlink(ref Ref) {
	n := t.nodes[ref]
	if n.prev != NoRef {
		t.nodes[n.prev].sib = n.sib
	} else if n.parent != NoRef {
		t.nodes[n.parent].child = n.sib
	}
	if n.sib != NoRef {
		t.nodes[n.sib].prev = n.prev
	}
}

// DeriveChild creates a new capability from parent with newRights, which
// must be a subset of parent's current rights (spec §4.5 derive_child).
// The new node becomes a child of parent in the tree.
func (t *Tree) DeriveChild(parent Ref, newRights capability.Rights) (Ref, error) {
	if !t.valid(parent) {
		return NoRef, kerr.New(kerr.InvalidCapability, "cdt: derive from invalid node")
	}
	child, err := t.nodes[parent].cap.Derive(newRights)
	if err != nil {
		return NoRef, err
	}
	ref := t.alloc(node{cap: child, live: true})
	t.link(parent, ref)
	return ref, nil
}

// MintChild creates a badged copy of parent's capability (Endpoint/
// Notification only, spec §4.5 mint_child) as a new child node.
func (t *Tree) MintChild(parent Ref, badge uint64) (Ref, error) {
	if !t.valid(parent) {
		return NoRef, kerr.New(kerr.InvalidCapability, "cdt: mint from invalid node")
	}
	child, err := t.nodes[parent].cap.Mint(badge)
	if err != nil {
		return NoRef, err
	}
	ref := t.alloc(node{cap: child, live: true})
	t.link(parent, ref)
	return ref, nil
}

// NewChild links cap as a new child node under parent without deriving it
// from parent's own capability value. DeriveChild/MintChild both carry
// parent's own object forward (rights reduced or badge attached); this is
// for the one case where a node's capability names a different object
// entirely — Untyped.Retype minting the first capability over a freshly
// constructed object — while still wanting the new capability torn down
// when parent (the Untyped) is revoked (spec §4.7 "retype", §8.6
// revocation cascade).
func (t *Tree) NewChild(parent Ref, cap capability.Cap) (Ref, error) {
	if !t.valid(parent) {
		return NoRef, kerr.New(kerr.InvalidCapability, "cdt: new child under invalid node")
	}
	ref := t.alloc(node{cap: cap, live: true})
	t.link(parent, ref)
	return ref, nil
}

// Revoke performs a depth-first destroy of ref's descendants, then
// nullifies ref's own capability, then unlinks ref from its parent's child
// list (spec §4.5). It is a no-op returning kerr.NotFound if ref is already
// revoked/freed (spec §8 "cap_revoke on an already-revoked slot is a
// no-op").
//
// Traversal captures each node's next-sibling link before descending into
// or freeing that node, so that destroying a node mid-traversal cannot
// corrupt the walk (spec §9, grounded on original_source's cdt.rs ordering).
func (t *Tree) Revoke(ref Ref) error {
	if !t.valid(ref) || t.nodes[ref].cap.IsNull() {
		return kerr.New(kerr.NotFound, "cdt: revoke of unknown/already-revoked node")
	}
	t.destroyChildren(ref)
	t.nodes[ref].cap = capability.Cap{}
	t.unlink(ref)
	t.nodes[ref].child = NoRef
	t.nodes[ref].sib = NoRef
	t.nodes[ref].prev = NoRef
	t.nodes[ref].parent = NoRef
	return nil
}

// destroyChildren recursively nullifies and frees every descendant of ref,
// leaving ref itself untouched (its own nullification happens in Revoke).
func (t *Tree) destroyChildren(ref Ref) {
	child := t.nodes[ref].child
	for child != NoRef {
		next := t.nodes[child].sib // capture before any mutation of child
		t.destroyChildren(child)
		t.nodes[child].cap = capability.Cap{}
		t.free = append(t.free, child)
		t.nodes[child].live = false
		child = next
	}
	t.nodes[ref].child = NoRef
}

// Delete fully releases ref's arena slot after it (and everything beneath
// it) has been revoked. Slot structure may otherwise linger after Revoke
// (spec §4.5 invariant); Delete is the explicit release.
func (t *Tree) Delete(ref Ref) error {
	if !t.valid(ref) {
		return kerr.New(kerr.NotFound, "cdt: delete of unknown node")
	}
	if t.nodes[ref].child != NoRef {
		return kerr.New(kerr.InvalidInvocation, "cdt: delete of node with live children")
	}
	t.unlink(ref)
	t.nodes[ref].live = false
	t.free = append(t.free, ref)
	return nil
}

// IsNull reports whether ref currently holds the Null capability (used by
// tests checking the post-revoke invariant).
func (t *Tree) IsNull(ref Ref) bool {
	if !t.valid(ref) {
		return true
	}
	return t.nodes[ref].cap.IsNull()
}

// SetCap overwrites ref's capability in place, without changing its
// position in the tree. Used by CNode.Mutate to adjust guard/badge bits on
// a slot without minting a new derivation-tree node for it.
func (t *Tree) SetCap(ref Ref, cap capability.Cap) error {
	if !t.valid(ref) {
		return kerr.New(kerr.NotFound, "cdt: set on invalid node")
	}
	t.nodes[ref].cap = cap
	return nil
}
