package paging

import (
	"github.com/kaal-project/kaal/internal/addr"
	"github.com/kaal-project/kaal/internal/kerr"
	"github.com/kaal-project/kaal/internal/memory"
)

const numLevels = 4 // L0 (top) .. L3 (leaf), per spec §3.9/§6.1

// table is the host-simulated backing store for one 4 KiB, 512-descriptor
// physical page-table frame. On real hardware this would just be memory at
// the frame's physical address; hosted, internal/memory only reserves
// address ranges, so paging keeps the actual descriptor words here, keyed
// by the physical address memory.Allocator handed out.
type table [512]PTE

// Mapper walks and mutates one VSpace's four-level page-table tree (spec
// §4.3). Intermediate tables are allocated lazily from mem and zeroed on
// allocation, matching the policy spec.md names explicitly.
type Mapper struct {
	mem    *memory.Allocator
	tables map[addr.Phys]*table
	root   addr.Phys
}

// NewMapper allocates a fresh, zeroed root table from mem and returns a
// Mapper over it.
func NewMapper(mem *memory.Allocator) (*Mapper, error) {
	root, err := mem.Alloc()
	if err != nil {
		return nil, err
	}
	m := &Mapper{mem: mem, tables: map[addr.Phys]*table{}}
	m.tables[root] = &table{}
	m.root = root
	return m, nil
}

// Root returns the VSpace's root physical address (what a Thread's
// VSpaceRoot field, or TTBR0/TTBR1, names).
func (m *Mapper) Root() addr.Phys { return m.root }

func levelForSize(size uint64) (int, error) {
	switch size {
	case addr.PageSizeHuge:
		return 1, nil
	case addr.PageSizeLarge:
		return 2, nil
	case addr.PageSize:
		return 3, nil
	default:
		return 0, kerr.New(kerr.InvalidArguments, "paging: size must be 4 KiB, 2 MiB, or 1 GiB")
	}
}

// walkTo descends from the root to targetLevel, allocating and zeroing
// intermediate tables as needed (spec §4.3 "allocated lazily... zeroed on
// allocation"). It returns the level-targetLevel table (the one indexed by
// virt.Index(targetLevel)) and the index into it the leaf entry belongs at.
func (m *Mapper) walkTo(virt addr.Virt, targetLevel int) (*table, int, error) {
	cur := m.tables[m.root]
	for level := 0; level < targetLevel; level++ {
		idx := int(virt.Index(level))
		entry := cur[idx]
		if !entry.Valid() {
			next, err := m.mem.Alloc()
			if err != nil {
				return nil, 0, err
			}
			m.tables[next] = &table{}
			cur[idx] = newTableDescriptor(next)
			cur = m.tables[next]
			continue
		}
		if !entry.IsTableOrPage() {
			return nil, 0, kerr.New(kerr.InvalidArguments, "paging: intermediate entry is already a block mapping")
		}
		cur = m.tables[entry.Addr()]
	}
	return cur, int(virt.Index(targetLevel)), nil
}

// Map installs a leaf descriptor for [virt, virt+size) → phys (spec §4.3
// map). size must be one of the three natural page sizes; virt and phys
// must be aligned to it.
func (m *Mapper) Map(virt addr.Virt, phys addr.Phys, size uint64, perm Permission) error {
	level, err := levelForSize(size)
	if err != nil {
		return err
	}
	if !virt.Aligned(size) || !phys.Aligned(size) {
		return kerr.New(kerr.InvalidArguments, "paging: misaligned map")
	}
	tbl, idx, err := m.walkTo(virt, level)
	if err != nil {
		return err
	}
	if tbl[idx].Valid() {
		return kerr.New(kerr.InvalidArguments, "paging: already mapped")
	}
	if level == numLevels-1 {
		tbl[idx] = newPageDescriptor(phys, perm)
	} else {
		tbl[idx] = newBlockDescriptor(phys, perm)
	}
	return nil
}

// Unmap clears the leaf descriptor covering [virt, virt+size) (spec §4.3
// unmap).
func (m *Mapper) Unmap(virt addr.Virt, size uint64) error {
	level, err := levelForSize(size)
	if err != nil {
		return err
	}
	if !virt.Aligned(size) {
		return kerr.New(kerr.InvalidArguments, "paging: misaligned unmap")
	}
	tbl, idx, err := m.walkTo(virt, level)
	if err != nil {
		return err
	}
	if !tbl[idx].Valid() {
		return kerr.New(kerr.NotFound, "paging: not mapped")
	}
	tbl[idx] = 0
	return nil
}

// Translate walks the table tree for virt and returns the backing physical
// address (spec §4.3 translate), following whichever level the mapping
// was installed at (block or page).
func (m *Mapper) Translate(virt addr.Virt) (addr.Phys, bool) {
	cur := m.tables[m.root]
	for level := 0; level < numLevels; level++ {
		idx := int(virt.Index(level))
		entry := cur[idx]
		if !entry.Valid() {
			return 0, false
		}
		if level == numLevels-1 || !entry.IsTableOrPage() {
			offset := uint64(virt) & (pageSizeAtLevel(level) - 1)
			return entry.Addr().Add(offset), true
		}
		cur = m.tables[entry.Addr()]
	}
	return 0, false
}

func pageSizeAtLevel(level int) uint64 {
	switch level {
	case 1:
		return addr.PageSizeHuge
	case 2:
		return addr.PageSizeLarge
	default:
		return addr.PageSize
	}
}

// IdentityMap maps [start, end) to itself, choosing the largest natural
// page size at each step (spec §4.3 "1 GiB where aligned and size
// permits, else 2 MiB, else 4 KiB").
func (m *Mapper) IdentityMap(start, end addr.Phys, perm Permission) error {
	v := addr.Virt(start)
	for uint64(v) < uint64(end) {
		remaining := uint64(end) - uint64(v)
		size := chooseSize(addr.Phys(v), remaining)
		if err := m.Map(v, addr.Phys(v), size, perm); err != nil {
			return err
		}
		v = v.Add(size)
	}
	return nil
}

func chooseSize(p addr.Phys, remaining uint64) uint64 {
	if p.Aligned(addr.PageSizeHuge) && remaining >= addr.PageSizeHuge {
		return addr.PageSizeHuge
	}
	if p.Aligned(addr.PageSizeLarge) && remaining >= addr.PageSizeLarge {
		return addr.PageSizeLarge
	}
	return addr.PageSize
}
