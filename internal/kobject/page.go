package kobject

import "github.com/kaal-project/kaal/internal/addr"

// Page is a retyped 4 KiB (or larger, for block mappings — spec §3.1)
// physical frame kernel object. Its content/mapping is managed by
// internal/paging; this type is the handle the capability model and
// object manager carry around (spec §3.9, §4.7).
type Page struct {
	Phys addr.Phys
	// Mapped records whether this page is currently installed in some
	// VSpace, so unmap/map invocations can validate "already mapped" /
	// "not mapped" (spec §4.3 error table).
	Mapped bool
	MappedAt addr.Virt
}

// NewPage constructs a Page object backed by phys, unmapped.
func NewPage(phys addr.Phys) *Page { return &Page{Phys: phys} }

// PageTable is a retyped 4 KiB page-table-level object (spec §3.9). Its 512
// descriptor entries are owned and encoded by internal/paging; this handle
// just names the backing physical page.
type PageTable struct {
	Phys addr.Phys
}

// NewPageTable constructs a PageTable object backed by phys (zeroed by the
// frame allocator per spec §4.3 "zeroed on allocation").
func NewPageTable(phys addr.Phys) *PageTable { return &PageTable{Phys: phys} }

// VSpace is the root of a four-level page-table tree (spec §3.9's L0 top
// level). It is itself a PageTable-shaped object; kept as a distinct type
// because it is what a Thread's VSpaceRoot names (spec §3.5) and because
// capability.VSpace is a distinct capability type from capability.PageTable.
type VSpace struct {
	Phys addr.Phys
}

// NewVSpace constructs a VSpace root object backed by phys.
func NewVSpace(phys addr.Phys) *VSpace { return &VSpace{Phys: phys} }
