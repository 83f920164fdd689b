// Package kobject implements the kernel's typed objects (spec §3.5-§3.10,
// §4.7): the Thread Control Block, Endpoint, Notification, Untyped memory,
// Page, PageTable, and IrqHandler. Each type pairs a kernel data structure
// with the method set the invocation dispatcher (internal/invoke) calls
// into.
package kobject

import (
	"github.com/kaal-project/kaal/internal/addr"
	"github.com/kaal-project/kaal/internal/cnode"
	"github.com/kaal-project/kaal/internal/kerr"
)

// ThreadState is the TCB's scheduling/blocking state (spec §3.5 state
// machine).
type ThreadState uint8

const (
	Inactive ThreadState = iota
	Runnable
	Running
	BlockedOnSend
	BlockedOnReceive
	BlockedOnReply
	BlockedOnNotification
)

func (s ThreadState) String() string {
	switch s {
	case Inactive:
		return "Inactive"
	case Runnable:
		return "Runnable"
	case Running:
		return "Running"
	case BlockedOnSend:
		return "BlockedOnSend"
	case BlockedOnReceive:
		return "BlockedOnReceive"
	case BlockedOnReply:
		return "BlockedOnReply"
	case BlockedOnNotification:
		return "BlockedOnNotification"
	default:
		return "Unknown"
	}
}

// Context is the saved CPU context restored on dispatch and captured on
// entry (spec §3.5, §4.1): general registers x0-x30, the exception link
// register (return PC), saved program status, user stack pointer, and the
// saved TTBR0 (the thread's user page-table root).
type Context struct {
	Regs   [31]uint64
	ELR    uint64
	SPSR   uint64
	UserSP uint64
	TTBR0  uint64
}

// Thread is a Thread Control Block (spec §3.5).
type Thread struct {
	Ctx Context

	CSpaceRoot *cnode.CNode
	VSpaceRoot addr.Phys
	IPCBuffer  addr.Virt

	State ThreadState

	// BlockedEndpoint/BlockedNotification carry the payload for the
	// BlockedOn{Send,Receive,Notification} states; Go's enum can't carry a
	// payload inline the way the spec's pseudocode does, so the blocking
	// object is tracked alongside the State tag instead.
	BlockedEndpoint     *Endpoint
	BlockedNotification *Notification

	// ReplyBlockerOf is set while State == BlockedOnReply: the endpoint the
	// call was made against, kept only for diagnostics/cancellation.
	ReplyBlockerOf *Endpoint

	Priority      uint8
	TimeSlice     uint32
	TimeSliceInit uint32
	Authority     uint64

	// FaultEndpoint, if non-nil, receives fault messages for this thread
	// (spec §7 "Fault handling"). If nil, a fault suspends the thread.
	FaultEndpoint *Endpoint

	// Cancelled is set by IPC cancellation (spec §5) so that the thread's
	// resumed syscall path can report the cancellation to user space.
	Cancelled bool

	// Pending carries a blocked sender's message until a receiver arrives to
	// complete the rendezvous (spec §4.9 "On resumption, message has already
	// been delivered"). Set by internal/ipc.Send before the thread blocks;
	// cleared once delivered.
	Pending *Message

	// IPCOverflow holds the data words beyond the 8 that travel in
	// registers — the "slow path" per-thread IPC buffer contents (spec
	// §4.9). internal/ipc writes it on delivery; a real build would instead
	// copy these words into the thread's user-mapped IPC buffer page.
	IPCOverflow []uint64

	// PendingIsCall distinguishes a blocked Call from a blocked plain Send
	// while both sit in the same endpoint send queue, so that whichever
	// Receive later matches this thread knows whether to leave it
	// BlockedOnReply or make it Runnable (spec §4.9).
	PendingIsCall bool

	// ReplyTo is the one-shot link a Call/Receive match leaves on the
	// receiving thread, naming the caller internal/ipc.Reply should wake
	// (spec §4.9 "a one-shot Reply capability is synthesised and delivered
	// to the receiver").
	ReplyTo *Thread
}

// NewThread constructs a fresh TCB in the Inactive state, as produced by
// Untyped.Retype(Thread, ...) (spec §4.7).
func NewThread(priority uint8, timeSlice uint32) *Thread {
	return &Thread{State: Inactive, Priority: priority, TimeSlice: timeSlice, TimeSliceInit: timeSlice}
}

// SetPriority mutates the TCB's scheduling priority (spec §4.7
// Thread.set_priority).
func (t *Thread) SetPriority(p uint8) { t.Priority = p }

// SetSpace installs CSpace/VSpace roots (spec §4.7 Thread.set_space).
func (t *Thread) SetSpace(cspace *cnode.CNode, vspace addr.Phys) {
	t.CSpaceRoot = cspace
	t.VSpaceRoot = vspace
}

// SetIPCBuffer installs the thread's IPC buffer virtual address (spec §4.7
// Thread.set_ipc_buffer).
func (t *Thread) SetIPCBuffer(v addr.Virt) { t.IPCBuffer = v }

// Suspend transitions the thread to Inactive (spec §4.7 Thread.suspend,
// state machine "suspend / preempt" + "destroy" edges collapse here to the
// Inactive target named by the spec's diagram).
func (t *Thread) Suspend() {
	t.clearBlocking()
	t.State = Inactive
}

// Resume transitions an Inactive thread to Runnable (spec §4.7
// Thread.resume). Only valid from Inactive; from any other source state
// the thread is left unchanged and kerr.InvalidInvocation is returned.
func (t *Thread) Resume() error {
	if t.State != Inactive {
		return kerr.New(kerr.InvalidInvocation, "resume: thread not inactive")
	}
	t.clearBlocking()
	t.State = Runnable
	return nil
}

// WriteRegisters overwrites the thread's saved general-purpose registers
// and ELR (spec §4.7 Thread.write_registers).
func (t *Thread) WriteRegisters(regs [31]uint64, elr uint64) {
	t.Ctx.Regs = regs
	t.Ctx.ELR = elr
}

// ReadRegisters returns a copy of the thread's saved context.
func (t *Thread) ReadRegisters() Context { return t.Ctx }

func (t *Thread) clearBlocking() {
	t.BlockedEndpoint = nil
	t.BlockedNotification = nil
	t.ReplyBlockerOf = nil
}

// BlockOnSend marks the thread blocked sending to ep (internal/ipc calls
// this; internal/sched then removes it from the run queue).
func (t *Thread) BlockOnSend(ep *Endpoint) {
	t.clearBlocking()
	t.State = BlockedOnSend
	t.BlockedEndpoint = ep
}

// BlockOnReceive marks the thread blocked receiving from ep.
func (t *Thread) BlockOnReceive(ep *Endpoint) {
	t.clearBlocking()
	t.State = BlockedOnReceive
	t.BlockedEndpoint = ep
}

// BlockOnReply marks the thread blocked awaiting a Reply, having called
// through ep.
func (t *Thread) BlockOnReply(ep *Endpoint) {
	t.clearBlocking()
	t.State = BlockedOnReply
	t.ReplyBlockerOf = ep
}

// BlockOnNotificationWait marks the thread blocked in Notification.Wait.
func (t *Thread) BlockOnNotificationWait(n *Notification) {
	t.clearBlocking()
	t.State = BlockedOnNotification
	t.BlockedNotification = n
}

// Unblock transitions a blocked thread back to Runnable (spec §4.10
// unblock; the scheduler enqueues it separately).
func (t *Thread) Unblock() {
	t.clearBlocking()
	t.State = Runnable
}
