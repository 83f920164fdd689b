package syscall

import (
	"github.com/go-logr/logr"

	"github.com/kaal-project/kaal/internal/addr"
	"github.com/kaal-project/kaal/internal/capability"
	"github.com/kaal-project/kaal/internal/cdt"
	"github.com/kaal-project/kaal/internal/cnode"
	"github.com/kaal-project/kaal/internal/invoke"
	"github.com/kaal-project/kaal/internal/ipc"
	"github.com/kaal-project/kaal/internal/kerr"
	"github.com/kaal-project/kaal/internal/kobject"
	"github.com/kaal-project/kaal/internal/paging"
	"github.com/kaal-project/kaal/internal/sched"
)

// ObjectInvoke is the syscall number routing to the generic invocation
// dispatcher (spec §4.11 step 3 "object invocations resolve a capability
// by slot index... and call the dispatcher"). Spec.md §6.3's stable table
// names six of the seven capability-management numbers (0x20-0x25); 0x26 is
// reserved there without a name, which this kernel uses for the generic
// path that reaches Thread/Untyped/Notification/IrqHandler invocations —
// the cap-management numbers 0x20-0x25 stay CNode-local operations (handled
// below without going through internal/invoke.Dispatch at all).
const ObjectInvoke Number = 0x26

// ipcSyscall is the syscall number whose x0 is interpreted as an encoded
// (op, label) pair rather than a plain argument (spec §6.3 "Invocation
// syscalls (send/recv/call/reply) use an encoded label in the upper bits
// of x0 rather than a separate syscall number"). The stable table leaves
// no number named for these explicitly; 0x02 sits in the unused gap right
// after yield (0x01) and before the 0x10s block.
const ipcSyscall Number = 0x02

// Dispatcher wires the syscall ABI to the kernel's subsystems: the
// invocation dispatcher, the IPC engine, the scheduler, and the page
// mapper. It is the Go analogue of spec §4.11's assembly-to-handler
// pathway, minus the trap-frame save/restore the architecture layer owns.
type Dispatcher struct {
	Objects *kobject.ObjectTable
	Sched   *sched.Scheduler
	Mapper  *paging.Mapper
	Log     logr.Logger
}

// Handle processes one syscall trap, mutating tf's return register (and,
// for yield/block/preempt, the scheduler's current thread) in place (spec
// §4.11 steps 2-4).
func (d *Dispatcher) Handle(tf *TrapFrame) {
	num := SyscallNumber(tf)
	switch {
	case num == Yield:
		d.Sched.YieldCurrent()
		SetReturn(tf, 0)
	case num == DebugPrint:
		d.Log.Info("debug_print", "thread", d.Sched.Current().Priority)
		SetReturn(tf, 0)
	case num == ipcSyscall:
		d.handleIPC(tf)
	case num == ObjectInvoke:
		d.handleInvoke(tf)
	case num == MemoryMap:
		d.handleMemoryMap(tf)
	case num == MemoryUnmap:
		d.handleMemoryUnmap(tf)
	case num == CapAllocate:
		d.handleRetype(tf)
	case num == MemoryAllocate:
		d.handleCreate(tf, capability.Page)
	case num == EndpointCreate:
		d.handleCreate(tf, capability.Endpoint)
	case num == ProcessCreate:
		d.handleCreate(tf, capability.Thread)
	case num == NotificationCreate:
		d.handleCreate(tf, capability.Notification)
	case num == Signal:
		d.handleNotify(tf, invoke.NotificationSignal)
	case num == Wait:
		d.handleNotify(tf, invoke.NotificationWait)
	case num == Poll:
		d.handleNotify(tf, invoke.NotificationPoll)
	case num == CapMint:
		d.handleCapMint(tf)
	case num == CapDerive:
		d.handleCapDerive(tf)
	case num == CapCopy:
		d.handleCapCopy(tf)
	case num == CapMove:
		d.handleCapMove(tf)
	case num == CapDelete:
		d.handleCapDelete(tf)
	case num == CapRetype:
		d.handleRetype(tf)
	case num == IrqHandlerAck:
		d.handleIrqAck(tf)
	default:
		SetReturn(tf, kerr.Sentinel)
	}
}

func (d *Dispatcher) currentCSpace() (*cnode.CNode, error) {
	cur := d.Sched.Current()
	if cur.CSpaceRoot == nil {
		return nil, kerr.New(kerr.InvalidCapability, "syscall: thread has no cspace")
	}
	return cur.CSpaceRoot, nil
}

func (d *Dispatcher) currentCap(slot uint32) (capability.Cap, error) {
	cspace, err := d.currentCSpace()
	if err != nil {
		return capability.Cap{}, err
	}
	return cspace.Lookup(slot)
}

func (d *Dispatcher) currentRef(slot uint32) (cdt.Ref, error) {
	cspace, err := d.currentCSpace()
	if err != nil {
		return cdt.NoRef, err
	}
	return cspace.Ref(slot)
}

// handleInvoke implements the ObjectInvoke path: x6 names the target
// capability's slot, x0 is the invocation label, x1-x5 are its first five
// argument words (spec §6.3's register convention; invocations needing
// more words, like Thread.WriteRegisters's 32, are expected to arrive via
// the slow-path IPC buffer exactly as an overlong IPC message would — not
// modeled further here since no caller in this kernel's own boot path
// needs it).
func (d *Dispatcher) handleInvoke(tf *TrapFrame) {
	slot := CapArg(tf)
	cspace, err := d.currentCSpace()
	if err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	ref, err := d.currentRef(slot)
	if err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	cap, err := cspace.Lookup(slot)
	if err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	args := Args(tf)
	label := invoke.Label(args[0])
	res, err := invoke.Dispatch(d.Objects, cspace, ref, cap, label, args[1:], nil)
	if err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	SetReturn(tf, res.Value)
}

// handleRetype backs both CapAllocate (0x10) and CapRetype (0x25): they are
// the same Untyped.Retype-then-install operation, reachable either as its
// own direct syscall number or via the capability-management block (spec
// §6.3 lists 0x10 "cap_allocate" and the 0x20-0x26 "capability management"
// range separately, but names no distinct semantics for the former — this
// kernel treats it as the retype path's direct-syscall alias, same as
// EndpointCreate/NotificationCreate/ProcessCreate/MemoryAllocate below fix
// the object type and leave this one generic). x0 names the source Untyped
// capability's slot, x1 the object type, x2 size_bits, x3 the destination
// slot for the new capability.
func (d *Dispatcher) handleRetype(tf *TrapFrame) {
	args := Args(tf)
	untypedSlot := uint32(args[0])
	d.retype(tf, untypedSlot, capability.Type(args[1]), args[2], uint32(args[3]))
}

// handleCreate is handleRetype with the object type fixed by the syscall
// number rather than read from an argument word (spec §6.3's
// endpoint_create/process_create/notification_create/memory_allocate). x0
// is the source Untyped's slot, x1 is size_bits, x2 is the destination slot.
func (d *Dispatcher) handleCreate(tf *TrapFrame, objType capability.Type) {
	args := Args(tf)
	untypedSlot := uint32(args[0])
	d.retype(tf, untypedSlot, objType, args[1], uint32(args[2]))
}

func (d *Dispatcher) retype(tf *TrapFrame, untypedSlot uint32, objType capability.Type, sizeBits uint64, destSlot uint32) {
	cspace, err := d.currentCSpace()
	if err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	ref, err := d.currentRef(untypedSlot)
	if err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	cap, err := cspace.Lookup(untypedSlot)
	if err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	res, err := invoke.Dispatch(d.Objects, cspace, ref, cap, invoke.UntypedRetype,
		[]uint64{uint64(objType), sizeBits, uint64(destSlot)}, nil)
	if err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	SetReturn(tf, res.Value)
}

// handleNotify backs the direct signal/wait/poll syscalls (spec §6.3
// 0x18-0x1A), each of which names the target Notification capability by
// slot in x0 rather than going through the generic invocation path — the
// same shortcut handleCreate takes for the common object-creation cases.
func (d *Dispatcher) handleNotify(tf *TrapFrame, label invoke.Label) {
	args := Args(tf)
	slot := uint32(args[0])
	cap, err := d.currentCap(slot)
	if err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	var notifyArgs []uint64
	if label == invoke.NotificationSignal {
		notifyArgs = []uint64{args[1]}
	}
	res, err := invoke.Dispatch(d.Objects, nil, cdt.NoRef, cap, label, notifyArgs, nil)
	if err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	SetReturn(tf, res.Value)
}

// handleIrqAck backs the direct IRQ-ack syscall (spec §6.3 0x40-0x41's ack
// half; IrqHandlerGet, the other half, has no GIC-backed handler
// constructor wired up anywhere in this kernel yet and is left unhandled).
// x0 names the IrqHandler capability's slot.
func (d *Dispatcher) handleIrqAck(tf *TrapFrame) {
	args := Args(tf)
	cap, err := d.currentCap(uint32(args[0]))
	if err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	if _, err := invoke.Dispatch(d.Objects, nil, cdt.NoRef, cap, invoke.IrqHandlerAck, nil, nil); err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	SetReturn(tf, 0)
}

// handleCapMint and handleCapDerive create a new child node in the
// invoking thread's own derivation tree and install it into a destination
// slot — the CNode-local capability-management operations spec §4.6 says
// the object manager that owns the CSpace handles directly, rather than
// routing through internal/invoke.Dispatch (which only ever sees a single
// already-resolved capability, not a whole CSpace to mutate). x0 is the
// source slot, x1 the destination slot, x2 the new rights mask (Derive) or
// badge (Mint).
func (d *Dispatcher) handleCapMint(tf *TrapFrame) {
	args := Args(tf)
	d.capChild(tf, uint32(args[0]), uint32(args[1]), func(cspace *cnode.CNode, ref cdt.Ref) (cdt.Ref, error) {
		return cspace.Tree().MintChild(ref, args[2])
	})
}

func (d *Dispatcher) handleCapDerive(tf *TrapFrame) {
	args := Args(tf)
	d.capChild(tf, uint32(args[0]), uint32(args[1]), func(cspace *cnode.CNode, ref cdt.Ref) (cdt.Ref, error) {
		return cspace.Tree().DeriveChild(ref, capability.Rights(args[2]))
	})
}

func (d *Dispatcher) capChild(tf *TrapFrame, srcSlot, dstSlot uint32, derive func(*cnode.CNode, cdt.Ref) (cdt.Ref, error)) {
	cspace, err := d.currentCSpace()
	if err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	srcRef, err := cspace.Ref(srcSlot)
	if err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	childRef, err := derive(cspace, srcRef)
	if err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	if err := cspace.Insert(dstSlot, childRef); err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	SetReturn(tf, 0)
}

// handleCapCopy, handleCapMove and handleCapDelete are thin wrappers over
// CNode's own Copy/Move/Delete (spec §4.6): x0 is the source slot, x1 (for
// copy/move) the destination slot.
func (d *Dispatcher) handleCapCopy(tf *TrapFrame) {
	args := Args(tf)
	cspace, err := d.currentCSpace()
	if err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	if err := cspace.Copy(uint32(args[0]), uint32(args[1])); err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	SetReturn(tf, 0)
}

func (d *Dispatcher) handleCapMove(tf *TrapFrame) {
	args := Args(tf)
	cspace, err := d.currentCSpace()
	if err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	if err := cspace.Move(uint32(args[0]), uint32(args[1])); err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	SetReturn(tf, 0)
}

func (d *Dispatcher) handleCapDelete(tf *TrapFrame) {
	args := Args(tf)
	cspace, err := d.currentCSpace()
	if err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	if err := cspace.Delete(uint32(args[0])); err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	SetReturn(tf, 0)
}

func (d *Dispatcher) handleIPC(tf *TrapFrame) {
	op, label := DecodeInvocation(tf.Regs[RegArg0])
	slot := CapArg(tf)
	epCap, err := d.currentCap(slot)
	if err != nil || epCap.Type() != capability.Endpoint {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	ep, ok := d.Objects.Endpoint(epCap.Object())
	if !ok {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	cur := d.Sched.Current()
	args := Args(tf)
	msg := kobject.Message{Label: label, Data: append([]uint64(nil), args[1:]...)}

	switch op {
	case OpSend:
		if _, err := ipc.Send(ep, cur, msg); err != nil {
			SetReturn(tf, kerr.Sentinel)
			return
		}
	case OpRecv:
		if _, err := ipc.Receive(ep, cur); err != nil {
			SetReturn(tf, kerr.Sentinel)
			return
		}
	case OpCall:
		if _, err := ipc.Call(ep, cur, msg); err != nil {
			SetReturn(tf, kerr.Sentinel)
			return
		}
	case OpReply:
		if err := ipc.Reply(cur, msg); err != nil {
			SetReturn(tf, kerr.Sentinel)
			return
		}
	default:
		SetReturn(tf, kerr.Sentinel)
		return
	}
	if next := d.Sched.Current(); next != cur {
		*tf = TrapFrame{Regs: next.Ctx.Regs, ELR: next.Ctx.ELR, SPSR: next.Ctx.SPSR, TTBR0: next.Ctx.TTBR0}
	}
}

func (d *Dispatcher) handleMemoryMap(tf *TrapFrame) {
	args := Args(tf)
	virt := addr.Virt(args[0])
	phys := addr.Phys(args[1])
	size := args[2]
	perm := paging.Permission{
		Write:      args[3]&1 != 0,
		Executable: args[3]&2 != 0,
		User:       args[3]&4 != 0,
		Device:     args[3]&8 != 0,
	}
	if err := d.Mapper.Map(virt, phys, size, perm); err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	SetReturn(tf, 0)
}

func (d *Dispatcher) handleMemoryUnmap(tf *TrapFrame) {
	args := Args(tf)
	if err := d.Mapper.Unmap(addr.Virt(args[0]), args[1]); err != nil {
		SetReturn(tf, kerr.Sentinel)
		return
	}
	SetReturn(tf, 0)
}
