package kobject

import (
	"github.com/kaal-project/kaal/internal/cnode"
)

// ObjectTable resolves a capability's object pointer (spec §3.2's "Kernel
// virtual address of the backing object") to the live Go value backing it.
// In a hosted build there is no MMU translating that address for us, so the
// table is the stand-in a real kernel gets for free by mapping every object
// at the address its capability names.
//
// Keys are the addr.Phys value an Untyped.Retype call returned, reused
// as the capability's Object() field — the same address space the spec
// already defines, rather than inventing a second identity scheme (see
// SPEC_FULL.md's note on why github.com/google/uuid was not wired in).
type ObjectTable struct {
	threads       map[uint64]*Thread
	endpoints     map[uint64]*Endpoint
	notifications map[uint64]*Notification
	untypeds      map[uint64]*Untyped
	cnodes        map[uint64]*cnode.CNode
	pages         map[uint64]*Page
	pageTables    map[uint64]*PageTable
	vspaces       map[uint64]*VSpace
	irqHandlers   map[uint64]*IrqHandler
}

// NewObjectTable returns an empty registry.
func NewObjectTable() *ObjectTable {
	return &ObjectTable{
		threads:       make(map[uint64]*Thread),
		endpoints:     make(map[uint64]*Endpoint),
		notifications: make(map[uint64]*Notification),
		untypeds:      make(map[uint64]*Untyped),
		cnodes:        make(map[uint64]*cnode.CNode),
		pages:         make(map[uint64]*Page),
		pageTables:    make(map[uint64]*PageTable),
		vspaces:       make(map[uint64]*VSpace),
		irqHandlers:   make(map[uint64]*IrqHandler),
	}
}

func (r *ObjectTable) RegisterThread(addr uint64, t *Thread)             { r.threads[addr] = t }
func (r *ObjectTable) RegisterEndpoint(addr uint64, e *Endpoint)         { r.endpoints[addr] = e }
func (r *ObjectTable) RegisterNotification(addr uint64, n *Notification) { r.notifications[addr] = n }
func (r *ObjectTable) RegisterUntyped(addr uint64, u *Untyped)           { r.untypeds[addr] = u }
func (r *ObjectTable) RegisterCNode(addr uint64, c *cnode.CNode)         { r.cnodes[addr] = c }
func (r *ObjectTable) RegisterPage(addr uint64, p *Page)                 { r.pages[addr] = p }
func (r *ObjectTable) RegisterPageTable(addr uint64, p *PageTable)       { r.pageTables[addr] = p }
func (r *ObjectTable) RegisterVSpace(addr uint64, v *VSpace)             { r.vspaces[addr] = v }
func (r *ObjectTable) RegisterIrqHandler(addr uint64, h *IrqHandler)     { r.irqHandlers[addr] = h }

func (r *ObjectTable) Thread(addr uint64) (*Thread, bool)             { t, ok := r.threads[addr]; return t, ok }
func (r *ObjectTable) Endpoint(addr uint64) (*Endpoint, bool)         { e, ok := r.endpoints[addr]; return e, ok }
func (r *ObjectTable) Notification(addr uint64) (*Notification, bool) { n, ok := r.notifications[addr]; return n, ok }
func (r *ObjectTable) Untyped(addr uint64) (*Untyped, bool)           { u, ok := r.untypeds[addr]; return u, ok }
func (r *ObjectTable) CNode(addr uint64) (*cnode.CNode, bool)         { c, ok := r.cnodes[addr]; return c, ok }
func (r *ObjectTable) Page(addr uint64) (*Page, bool)                 { p, ok := r.pages[addr]; return p, ok }
func (r *ObjectTable) PageTable(addr uint64) (*PageTable, bool)       { p, ok := r.pageTables[addr]; return p, ok }
func (r *ObjectTable) VSpace(addr uint64) (*VSpace, bool)             { v, ok := r.vspaces[addr]; return v, ok }
func (r *ObjectTable) IrqHandler(addr uint64) (*IrqHandler, bool)     { h, ok := r.irqHandlers[addr]; return h, ok }
