// Package capability implements the kernel's capability value type (spec
// §3.2, §4.4): a fixed-size, pure-value token naming a kernel object and
// the rights held over it. Capability operations are pure functions; all
// mutating access to the object they name goes through the object itself
// (internal/kobject), never through the capability value.
package capability

import (
	"fmt"

	"github.com/kaal-project/kaal/internal/kerr"
)

// Type is the capability's type tag (8 bits in the spec's wire layout).
type Type uint8

const (
	Null Type = iota
	Untyped
	Endpoint
	Notification
	Thread
	CNode
	VSpace
	PageTable
	Page
	IrqHandler
	IrqControl
	Reply
)

func (t Type) String() string {
	switch t {
	case Null:
		return "Null"
	case Untyped:
		return "Untyped"
	case Endpoint:
		return "Endpoint"
	case Notification:
		return "Notification"
	case Thread:
		return "Thread"
	case CNode:
		return "CNode"
	case VSpace:
		return "VSpace"
	case PageTable:
		return "PageTable"
	case Page:
		return "Page"
	case IrqHandler:
		return "IrqHandler"
	case IrqControl:
		return "IrqControl"
	case Reply:
		return "Reply"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Rights is the capability's rights bitmask (8 bits in the spec's wire
// layout).
type Rights uint8

const (
	Read Rights = 1 << iota
	Write
	Grant
)

// Subset reports whether r is a subset of other — used to enforce that
// derivation may only reduce rights, never increase them (spec §3.2, §8).
func (r Rights) Subset(other Rights) bool { return r&^other == 0 }

func (r Rights) String() string {
	s := ""
	if r&Read != 0 {
		s += "R"
	}
	if r&Write != 0 {
		s += "W"
	}
	if r&Grant != 0 {
		s += "G"
	}
	if s == "" {
		return "-"
	}
	return s
}

// Cap is the 32-byte capability record (spec §3.2): type tag, rights,
// object pointer, badge, and padding reserved for alignment. A Null
// capability has a zero object pointer and empty rights (the zero value is
// exactly the Null capability).
type Cap struct {
	typ    Type
	rights Rights
	_      [6]byte // alignment padding between the 2-byte header and the pointer fields
	object uint64   // kernel virtual address of the backing object
	badge  uint64   // CNode guard / endpoint badge / notification signal word, by type
	_      [8]byte  // reserved, pads the record to 32 bytes
}

// New constructs a capability of the given type, naming object with the
// given rights. The badge starts at zero; use WithBadge to set it.
func New(t Type, object uint64, rights Rights) Cap {
	return Cap{typ: t, rights: rights, object: object}
}

// NullCap is the zero-value Null capability.
var NullCap = Cap{}

// Type returns the capability's type tag.
func (c Cap) Type() Type { return c.typ }

// Rights returns the capability's rights bitmask.
func (c Cap) Rights() Rights { return c.rights }

// Object returns the kernel virtual address of the backing object. Zero for
// a Null capability.
func (c Cap) Object() uint64 { return c.object }

// Badge returns the guard/badge/signal word. Only meaningful for
// Endpoint, Reply, and Notification capabilities, and for CNode guard bits.
func (c Cap) Badge() uint64 { return c.badge }

// IsNull reports whether c is the Null capability.
func (c Cap) IsNull() bool { return c.typ == Null }

// WithRights returns a copy of c with its rights replaced outright (used by
// construction helpers, not by derivation — derivation must go through
// Derive so the monotonicity invariant is checked).
func (c Cap) WithRights(r Rights) Cap {
	c.rights = r
	return c
}

// WithBadge returns a copy of c with its badge/guard word replaced.
func (c Cap) WithBadge(badge uint64) Cap {
	c.badge = badge
	return c
}

// HasRight reports whether c holds all bits of want.
func (c Cap) HasRight(want Rights) bool { return c.rights&want == want }

// Derive returns a child capability with newRights, which must be a subset
// of c's current rights (spec §3.2 "derivation may only reduce rights,
// never increase them"; §4.4 "derive"). The badge is preserved unchanged —
// badge rewriting is Mint's job, not Derive's (spec §4.5: derive_child
// preserves identity, mint_child attaches a badge).
func (c Cap) Derive(newRights Rights) (Cap, error) {
	if c.IsNull() {
		return Cap{}, kerr.New(kerr.InvalidCapability, "derive from null capability")
	}
	if !newRights.Subset(c.rights) {
		return Cap{}, kerr.New(kerr.InsufficientRights, "derived rights exceed parent rights")
	}
	child := c
	child.rights = newRights
	return child, nil
}

// Mint returns a badged copy of c. Only Endpoint and Notification
// capabilities may be minted (spec §4.4, §4.5 mint_child); rights are
// preserved unchanged. A badge of zero is equivalent to a plain copy (spec
// §8 round-trip law).
func (c Cap) Mint(badge uint64) (Cap, error) {
	if c.typ != Endpoint && c.typ != Notification {
		return Cap{}, kerr.New(kerr.InvalidInvocation, "mint only valid on Endpoint/Notification")
	}
	child := c
	child.badge = badge
	return child, nil
}

// CheckRight validates that c holds the rights an invocation requires,
// returning an error carrying kerr.InsufficientRights otherwise (spec
// §4.8 step 3).
func (c Cap) CheckRight(want Rights) error {
	if !c.HasRight(want) {
		return kerr.New(kerr.InsufficientRights, fmt.Sprintf("requires %s, have %s", want, c.rights))
	}
	return nil
}
