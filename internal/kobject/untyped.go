package kobject

import (
	"github.com/kaal-project/kaal/internal/addr"
	"github.com/kaal-project/kaal/internal/capability"
	"github.com/kaal-project/kaal/internal/kerr"
)

// minSizeBits is the per-type minimum retype size, kept as a table rather
// than inline magic numbers at call sites (spec §4.7 "Per-type minimum
// size"; original_source's untyped.rs keeps the same shape).
var minSizeBits = map[capability.Type]uint{
	capability.Thread:       12, // 4 KiB
	capability.Endpoint:     6,  // 64 B
	capability.Notification: 6,  // 64 B
	capability.CNode:        6,  // 64 B (1 slot)
	capability.Page:         12, // 4 KiB
	capability.PageTable:    12, // 4 KiB
	capability.VSpace:       12, // 4 KiB
}

// MinSizeBits returns the minimum size_bits a retype of t is permitted to
// request, or ok=false if t is not a retypable object type.
func MinSizeBits(t capability.Type) (bits uint, ok bool) {
	bits, ok = minSizeBits[t]
	return
}

type untypedChild struct {
	base addr.Phys
	size uint64
}

// Untyped is aligned, unformed physical memory that can be retyped into
// concrete kernel objects (spec §3.8).
type Untyped struct {
	base      addr.Phys
	sizeBits  uint
	watermark uint64
	children  []untypedChild
	available bool
}

// NewUntyped constructs an Untyped region of 2^sizeBits bytes starting at
// base.
func NewUntyped(base addr.Phys, sizeBits uint) *Untyped {
	return &Untyped{base: base, sizeBits: sizeBits, available: true}
}

// Base returns the region's physical base address.
func (u *Untyped) Base() addr.Phys { return u.base }

// SizeBits returns log2 of the region's size.
func (u *Untyped) SizeBits() uint { return u.sizeBits }

// Size returns the region's size in bytes.
func (u *Untyped) Size() uint64 { return uint64(1) << u.sizeBits }

// Watermark returns the current allocation offset from base.
func (u *Untyped) Watermark() uint64 { return u.watermark }

// NumChildren returns how many objects have been retyped from this region
// and not yet cleared by Revoke.
func (u *Untyped) NumChildren() int { return len(u.children) }

// Available reports the availability flag set when the Untyped was
// constructed. Nothing clears it: it stays true after the region is used
// up or revoked, and Retype does not consult it.
func (u *Untyped) Available() bool { return u.available }

// Retype aligns the watermark up to the requested object's natural
// alignment, checks that the object fits within the remaining region, and
// returns the physical address of the new object (spec §4.7
// Untyped.retype).
func (u *Untyped) Retype(t capability.Type, sizeBits uint) (addr.Phys, error) {
	min, ok := MinSizeBits(t)
	if !ok {
		return 0, kerr.New(kerr.InvalidInvocation, "untyped: type is not retypable")
	}
	if sizeBits < min {
		sizeBits = min
	}
	align := uint64(1) << sizeBits
	aligned := (u.watermark + align - 1) &^ (align - 1)
	if aligned+align > u.Size() {
		return 0, kerr.New(kerr.InsufficientMemory, "untyped: object does not fit in remaining region")
	}
	base := u.base.Add(aligned)
	u.children = append(u.children, untypedChild{base: base, size: align})
	u.watermark = aligned + align
	return base, nil
}

// Revoke destroys all children accounting: clears the child list and resets
// the watermark to zero (spec §4.5 "Revocation clears children and resets
// watermark"). It does not itself tear down the capability subtree — that
// is internal/cdt.Tree.Revoke's job on the capability that roots this
// Untyped; the two are driven together by whatever layer holds both (the
// object manager / boot code), since an Untyped only has enough
// information to account for its own memory, not to walk a derivation
// tree it doesn't own.
func (u *Untyped) Revoke() {
	u.children = nil
	u.watermark = 0
}

// ChildrenSizeSum returns Σ size(cᵢ) — exposed for the accounting invariant
// test (spec §8 "Untyped accounting").
func (u *Untyped) ChildrenSizeSum() uint64 {
	var sum uint64
	for _, c := range u.children {
		sum += c.size
	}
	return sum
}

// ChildrenWithinBounds reports whether every recorded child lies within
// [base, base+2^size_bits) (spec §8 accounting invariant).
func (u *Untyped) ChildrenWithinBounds() bool {
	for _, c := range u.children {
		if !c.base.Within(u.base, u.Size()) {
			return false
		}
		if uint64(c.base-u.base)+c.size > u.Size() {
			return false
		}
	}
	return true
}
