// Package cnode implements the CNode capability table (spec §3.4, §4.6):
// a fixed-size array of slots, each either empty or referencing a node in a
// capability derivation tree. This is the CDT-aware design spec.md §9
// names as the intended one (as opposed to a by-value CNode) — the
// implementer's Open Question is resolved in favor of it here.
package cnode

import (
	"github.com/kaal-project/kaal/internal/capability"
	"github.com/kaal-project/kaal/internal/cdt"
	"github.com/kaal-project/kaal/internal/kerr"
)

// MinSizeBits and MaxSizeBits bound a CNode's size exponent (spec §3.4:
// "2^k slots, 4 ≤ k ≤ 12").
const (
	MinSizeBits = 4
	MaxSizeBits = 12
)

// CNode is a fixed-size capability table of 2^SizeBits slots. Slots
// reference nodes in a shared capability derivation tree.
type CNode struct {
	tree     *cdt.Tree
	sizeBits uint
	slots    []cdt.Ref
}

// New allocates a CNode of 2^sizeBits slots backed by tree. sizeBits must
// be in [MinSizeBits, MaxSizeBits].
func New(tree *cdt.Tree, sizeBits uint) (*CNode, error) {
	if sizeBits < MinSizeBits || sizeBits > MaxSizeBits {
		return nil, kerr.New(kerr.InvalidArguments, "cnode: size_bits out of range")
	}
	n := 1 << sizeBits
	slots := make([]cdt.Ref, n)
	for i := range slots {
		slots[i] = cdt.NoRef
	}
	return &CNode{tree: tree, sizeBits: sizeBits, slots: slots}, nil
}

// SizeBits returns the CNode's size exponent.
func (c *CNode) SizeBits() uint { return c.sizeBits }

// Len returns the number of slots (2^SizeBits).
func (c *CNode) Len() int { return len(c.slots) }

func (c *CNode) bounds(index uint32) error {
	if int(index) >= len(c.slots) {
		return kerr.New(kerr.InvalidArguments, "cnode: index out of range")
	}
	return nil
}

// IsEmpty reports whether slot index holds no capability. Per spec §8:
// `C.is_empty(i) ⇔ C.lookup(i) = None`.
func (c *CNode) IsEmpty(index uint32) bool {
	if c.bounds(index) != nil {
		return true
	}
	return c.slots[index] == cdt.NoRef
}

// Lookup returns the capability held at index. Per spec §8, a non-empty
// slot never holds a Null capability.
func (c *CNode) Lookup(index uint32) (capability.Cap, error) {
	if err := c.bounds(index); err != nil {
		return capability.Cap{}, err
	}
	ref := c.slots[index]
	if ref == cdt.NoRef {
		return capability.Cap{}, kerr.New(kerr.NotFound, "cnode: empty slot")
	}
	return c.tree.Get(ref)
}

// ref returns the raw cdt.Ref at index, for operations (invoke, IPC
// transfer) that need to derive/mint further children from what's there.
func (c *CNode) ref(index uint32) (cdt.Ref, error) {
	if err := c.bounds(index); err != nil {
		return cdt.NoRef, err
	}
	ref := c.slots[index]
	if ref == cdt.NoRef {
		return cdt.NoRef, kerr.New(kerr.NotFound, "cnode: empty slot")
	}
	return ref, nil
}

// Ref exposes the raw derivation-tree reference at index (used by the
// invocation dispatcher and IPC engine to derive/mint further capabilities
// without going through another CNode round-trip).
func (c *CNode) Ref(index uint32) (cdt.Ref, error) { return c.ref(index) }

// Tree returns the derivation tree this CNode is backed by.
func (c *CNode) Tree() *cdt.Tree { return c.tree }

// Insert places ref into slot index. Fails with kerr.SlotOccupied if the
// slot is already non-empty (spec §4.6 "Insert into a non-empty slot
// fails").
func (c *CNode) Insert(index uint32, ref cdt.Ref) error {
	if err := c.bounds(index); err != nil {
		return err
	}
	if c.slots[index] != cdt.NoRef {
		return kerr.New(kerr.SlotOccupied, "cnode: insert into occupied slot")
	}
	c.slots[index] = ref
	return nil
}

// Delete clears slot index. It does not revoke the underlying derivation
// tree node — callers that want to tear down descendants too must call
// cdt.Tree.Revoke themselves first (Delete here is the CNode-local
// bookkeeping operation, spec §4.6).
func (c *CNode) Delete(index uint32) error {
	if err := c.bounds(index); err != nil {
		return err
	}
	if c.slots[index] == cdt.NoRef {
		return kerr.New(kerr.NotFound, "cnode: delete of empty slot")
	}
	c.slots[index] = cdt.NoRef
	return nil
}

// Move transfers the capability at src to dst, clearing src. dst must be
// empty (spec §4.6 "Move clears source").
func (c *CNode) Move(src, dst uint32) error {
	ref, err := c.ref(src)
	if err != nil {
		return err
	}
	if err := c.bounds(dst); err != nil {
		return err
	}
	if c.slots[dst] != cdt.NoRef {
		return kerr.New(kerr.SlotOccupied, "cnode: move into occupied slot")
	}
	c.slots[dst] = ref
	c.slots[src] = cdt.NoRef
	return nil
}

// Copy installs an equal-rights derived child of src's capability into dst,
// leaving src unchanged (spec §4.6 "Copy leaves source"). The new slot is a
// proper child in the derivation tree, so revoking src's node still tears
// down the copy.
func (c *CNode) Copy(src, dst uint32) error {
	srcRef, err := c.ref(src)
	if err != nil {
		return err
	}
	if err := c.bounds(dst); err != nil {
		return err
	}
	if c.slots[dst] != cdt.NoRef {
		return kerr.New(kerr.SlotOccupied, "cnode: copy into occupied slot")
	}
	cap, err := c.tree.Get(srcRef)
	if err != nil {
		return err
	}
	childRef, err := c.tree.DeriveChild(srcRef, cap.Rights())
	if err != nil {
		return err
	}
	c.slots[dst] = childRef
	return nil
}

// Mutate applies f to the capability at index in place, without minting a
// new derivation-tree node (spec §4.6 "mutate(index, f)").
func (c *CNode) Mutate(index uint32, f func(capability.Cap) capability.Cap) error {
	ref, err := c.ref(index)
	if err != nil {
		return err
	}
	cap, err := c.tree.Get(ref)
	if err != nil {
		return err
	}
	return c.tree.SetCap(ref, f(cap))
}

// Entry is one (index, capability) pair yielded by Iterate.
type Entry struct {
	Index uint32
	Cap   capability.Cap
}

// Iterate returns every non-empty slot's (index, capability) pair, in
// ascending index order (spec §4.6 "Iteration yields (index, cap) for
// non-null slots").
func (c *CNode) Iterate() []Entry {
	var out []Entry
	for i, ref := range c.slots {
		if ref == cdt.NoRef {
			continue
		}
		cap, err := c.tree.Get(ref)
		if err != nil {
			continue
		}
		out = append(out, Entry{Index: uint32(i), Cap: cap})
	}
	return out
}
