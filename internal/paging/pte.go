// Package paging implements the AArch64 page-table descriptor format (spec
// §6.1, bit-exact) and the four-level mapper built on it (spec §4.3): map,
// unmap, and translate over a VSpace root, with intermediate tables
// allocated lazily from internal/memory and identity-mapping that picks the
// largest natural page size at each step.
package paging

import "github.com/kaal-project/kaal/internal/addr"

// PTE is one 64-bit page-table descriptor (spec §6.1).
type PTE uint64

const (
	bitValid      = uint64(1) << 0
	bitTablePage  = uint64(1) << 1 // 1 = table (non-leaf) or page (L3 leaf); 0 = block
	shiftAttrIdx  = 2
	maskAttrIdx   = uint64(0x7) << shiftAttrIdx
	shiftAP       = 6
	maskAP        = uint64(0x3) << shiftAP
	shiftSH       = 8
	maskSH        = uint64(0x3) << shiftSH
	shInner       = uint64(0x3) << shiftSH // "11 inner" per spec §6.1
	bitAF         = uint64(1) << 10
	bitNG         = uint64(1) << 11
	addrMask      = uint64(0x0000_FFFF_FFFF_F000) // bits 12-47
	bitPXN        = uint64(1) << 53
	bitUXN        = uint64(1) << 54
)

// Attribute indices into MAIR_EL1 (spec §4.1 "two attribute indices
// (normal, device)").
const (
	AttrNormal = 0
	AttrDevice = 1
)

// Permission captures a mapping's intent: readable is implicit (AArch64 has
// no pure write-only mapping), writable/executable/user-accessible are the
// meaningful axes, plus whether the target is device or normal memory
// (spec §4.1 MAIR attribute indices, §4.3 "Kernel mappings use
// privileged-only access flags; user mappings... set privileged-execute-
// never and user-execute-never where appropriate").
type Permission struct {
	Write      bool
	User       bool
	Device     bool
	Executable bool
}

// apBits encodes the AArch64 AP[2:1] field (spec §6.1 bits 6-7): 00 read-
// write EL1-only, 01 read-write EL1/EL0, 10 read-only EL1-only, 11 read-
// only EL1/EL0.
func apBits(p Permission) uint64 {
	switch {
	case p.Write && p.User:
		return 0b01
	case p.Write && !p.User:
		return 0b00
	case !p.Write && p.User:
		return 0b11
	default:
		return 0b10
	}
}

func xnBits(p Permission) uint64 {
	if p.Executable {
		return 0
	}
	// Non-executable mappings set both privileged- and user-execute-never;
	// a real split policy (PXN only for user code, UXN only for kernel
	// code) lives in whatever calls Map with a concrete Permission.
	return bitPXN | bitUXN
}

func attrIdx(p Permission) uint64 {
	if p.Device {
		return AttrDevice
	}
	return AttrNormal
}

func newLeaf(phys addr.Phys, tablePage uint64, p Permission) PTE {
	v := bitValid | tablePage | bitAF | bitNG | shInner
	v |= (attrIdx(p) << shiftAttrIdx) & maskAttrIdx
	v |= (apBits(p) << shiftAP) & maskAP
	v |= uint64(phys) & addrMask
	v |= xnBits(p)
	return PTE(v)
}

// newBlockDescriptor builds a block (huge/large page) leaf descriptor —
// bit 1 clear (spec §6.1 "block entries set bit 1 clear").
func newBlockDescriptor(phys addr.Phys, p Permission) PTE { return newLeaf(phys, 0, p) }

// newPageDescriptor builds an L3 page leaf descriptor — bit 1 set (spec
// §6.1 "table entries set it").
func newPageDescriptor(phys addr.Phys, p Permission) PTE { return newLeaf(phys, bitTablePage, p) }

// newTableDescriptor builds an intermediate (non-leaf) table descriptor
// pointing at the next-level table.
func newTableDescriptor(phys addr.Phys) PTE {
	return PTE(bitValid | bitTablePage | (uint64(phys) & addrMask))
}

// Valid reports the descriptor's valid bit.
func (e PTE) Valid() bool { return uint64(e)&bitValid != 0 }

// IsTableOrPage reports whether bit 1 is set (table at an intermediate
// level, or L3 page leaf) as opposed to a block leaf.
func (e PTE) IsTableOrPage() bool { return uint64(e)&bitTablePage != 0 }

// Addr extracts the descriptor's output address (next-level table, or leaf
// frame).
func (e PTE) Addr() addr.Phys { return addr.Phys(uint64(e) & addrMask) }

// Permission decodes a leaf descriptor's access intent back out, for tests
// and for Translate's callers that need to know what they mapped.
func (e PTE) Permission() Permission {
	v := uint64(e)
	ap := (v & maskAP) >> shiftAP
	return Permission{
		Write:      ap == 0b00 || ap == 0b01,
		User:       ap == 0b01 || ap == 0b11,
		Device:     (v&maskAttrIdx)>>shiftAttrIdx == AttrDevice,
		Executable: v&(bitPXN|bitUXN) == 0,
	}
}
