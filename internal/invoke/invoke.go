// Package invoke implements the invocation dispatcher (spec §4.8): the
// single entry point the syscall path calls with a resolved capability, an
// invocation label, and argument words. It validates the capability, the
// rights it grants, and the argument count, then calls the named method on
// the typed object the capability names (internal/kobject).
package invoke

import (
	"github.com/kaal-project/kaal/internal/addr"
	"github.com/kaal-project/kaal/internal/capability"
	"github.com/kaal-project/kaal/internal/cdt"
	"github.com/kaal-project/kaal/internal/cnode"
	"github.com/kaal-project/kaal/internal/kerr"
	"github.com/kaal-project/kaal/internal/kobject"
)

// Label is an invocation's opcode, scoped to the capability type it is sent
// to — label 0 means something different for a Thread than for an Untyped.
type Label uint64

// Thread invocation labels (spec §4.8's worked example, reproduced exactly).
const (
	ThreadReadRegisters  Label = 0
	ThreadWriteRegisters Label = 1
	ThreadSetPriority    Label = 3
	ThreadSetIPCBuffer   Label = 7
	ThreadSetSpace       Label = 8
	ThreadSuspend        Label = 9
	ThreadResume         Label = 10
)

// Untyped invocation labels (spec §4.7).
const (
	UntypedRetype Label = 0
	UntypedRevoke Label = 1
)

// Notification invocation labels (spec §4.7 signal/wait/poll).
const (
	NotificationSignal Label = 0
	NotificationWait   Label = 1
	NotificationPoll   Label = 2
)

// IrqHandler invocation labels (spec §4.7 ack/bind).
const (
	IrqHandlerAck  Label = 0
	IrqHandlerBind Label = 1
)

// Result carries an invocation's outcome back to the syscall layer as a
// single return value. For Untyped.Retype it is the new object's physical
// address; the capability over that object is already installed in the
// destination slot by Dispatch.
type Result struct {
	Value uint64
}

// Dispatch is the invocation dispatcher entry point (spec §4.8 algorithm,
// steps 1-5). reg resolves a capability's Object() address to the live
// kobject value; cspace is the invoking thread's own CSpace and ref is cap's
// node within cspace.Tree() — both unused outside the Untyped case, which
// needs them to install a freshly retyped object's capability and to drive
// cdt.Tree.Revoke transitively (spec §4.7, §8.6). cap is the already-looked-
// up capability the invocation was sent to; args are the syscall's
// data-word arguments; capArgs are any capability arguments transferred
// alongside (only IrqHandler.Bind uses one, today).
func Dispatch(reg *kobject.ObjectTable, cspace *cnode.CNode, ref cdt.Ref, cap capability.Cap, label Label, args []uint64, capArgs []capability.Cap) (Result, error) {
	// Step 1: Null capability is always rejected.
	if cap.IsNull() {
		return Result{}, kerr.New(kerr.InvalidCapability, "dispatch: null capability")
	}

	switch cap.Type() {
	case capability.Untyped:
		return dispatchUntyped(reg, cspace, ref, cap, label, args)
	case capability.Thread:
		return dispatchThread(reg, cap, label, args)
	case capability.Notification:
		return dispatchNotification(reg, cap, label, args)
	case capability.IrqHandler:
		return dispatchIrqHandler(reg, cap, label, args, capArgs)
	default:
		// Endpoint/Reply invocations go through the IPC engine's own
		// send/recv/call/reply path (spec §4.9), not this dispatcher;
		// CNode capability-management invocations are handled by the
		// object manager that owns the CSpace (spec §4.6). Anything
		// else sent here has no invocation label set of its own.
		return Result{}, kerr.New(kerr.InvalidInvocation, "dispatch: type has no invocation label set")
	}
}

func checkArgc(args []uint64, want int) error {
	if len(args) != want {
		return kerr.New(kerr.InvalidArguments, "dispatch: wrong argument count")
	}
	return nil
}

// retypeRights is the rights a freshly retyped object's first capability
// carries (spec §4.7: the Untyped's own Grant right, since retyping conveys
// full authority over the new object to whoever held the Untyped).
func retypeRights() capability.Rights {
	return capability.Read | capability.Write | capability.Grant
}

// registerRetyped constructs the live kobject value a successful
// Untyped.Retype(objType, ...) call names, and registers it at addr so the
// rest of the system — starting with the capability this function's caller
// installs — can dereference it (spec §4.7; internal/kobject.ObjectTable's
// own doc comment names this exact gap as the hosted stand-in for a real
// MMU's object dereference). objType is always one of the types
// internal/kobject/untyped.go's minSizeBits table admits, since u.Retype
// already rejected anything else before this is called.
func registerRetyped(reg *kobject.ObjectTable, tree *cdt.Tree, objType capability.Type, phys addr.Phys, sizeBits uint) error {
	key := uint64(phys)
	switch objType {
	case capability.Thread:
		reg.RegisterThread(key, kobject.NewThread(0, 0))
	case capability.Endpoint:
		reg.RegisterEndpoint(key, kobject.NewEndpoint())
	case capability.Notification:
		reg.RegisterNotification(key, kobject.NewNotification())
	case capability.Page:
		reg.RegisterPage(key, kobject.NewPage(phys))
	case capability.PageTable:
		reg.RegisterPageTable(key, kobject.NewPageTable(phys))
	case capability.VSpace:
		reg.RegisterVSpace(key, kobject.NewVSpace(phys))
	case capability.CNode:
		c, err := cnode.New(tree, sizeBits)
		if err != nil {
			return err
		}
		reg.RegisterCNode(key, c)
	default:
		return kerr.New(kerr.InvalidInvocation, "dispatch: type not retypable into a live object")
	}
	return nil
}

func dispatchUntyped(reg *kobject.ObjectTable, cspace *cnode.CNode, ref cdt.Ref, cap capability.Cap, label Label, args []uint64) (Result, error) {
	u, ok := reg.Untyped(cap.Object())
	if !ok {
		return Result{}, kerr.New(kerr.InvalidCapability, "dispatch: untyped object not found")
	}
	tree := cspace.Tree()
	switch label {
	case UntypedRetype:
		if err := cap.CheckRight(capability.Write); err != nil {
			return Result{}, err
		}
		if err := checkArgc(args, 3); err != nil {
			return Result{}, err
		}
		objType := capability.Type(args[0])
		sizeBits := uint(args[1])
		destSlot := uint32(args[2])
		if objType == capability.CNode && sizeBits > cnode.MaxSizeBits {
			return Result{}, kerr.New(kerr.InvalidArguments, "dispatch: cnode size_bits exceeds maximum")
		}

		phys, err := u.Retype(objType, sizeBits)
		if err != nil {
			return Result{}, err
		}
		if err := registerRetyped(reg, tree, objType, phys, sizeBits); err != nil {
			return Result{}, err
		}

		childRef, err := tree.NewChild(ref, capability.New(objType, uint64(phys), retypeRights()))
		if err != nil {
			return Result{}, err
		}
		if err := cspace.Insert(destSlot, childRef); err != nil {
			return Result{}, err
		}
		return Result{Value: uint64(phys)}, nil
	case UntypedRevoke:
		if err := cap.CheckRight(capability.Write); err != nil {
			return Result{}, err
		}
		if err := checkArgc(args, 0); err != nil {
			return Result{}, err
		}
		u.Revoke()
		if err := tree.Revoke(ref); err != nil {
			return Result{}, err
		}
		return Result{}, nil
	default:
		return Result{}, kerr.New(kerr.InvalidInvocation, "dispatch: unknown untyped label")
	}
}

func dispatchThread(reg *kobject.ObjectTable, cap capability.Cap, label Label, args []uint64) (Result, error) {
	t, ok := reg.Thread(cap.Object())
	if !ok {
		return Result{}, kerr.New(kerr.InvalidCapability, "dispatch: thread object not found")
	}
	switch label {
	case ThreadReadRegisters:
		if err := cap.CheckRight(capability.Read); err != nil {
			return Result{}, err
		}
		if err := checkArgc(args, 0); err != nil {
			return Result{}, err
		}
		ctx := t.ReadRegisters()
		return Result{Value: ctx.ELR}, nil
	case ThreadWriteRegisters:
		if err := cap.CheckRight(capability.Write); err != nil {
			return Result{}, err
		}
		if err := checkArgc(args, 32); err != nil {
			return Result{}, err
		}
		var regs [31]uint64
		copy(regs[:], args[:31])
		t.WriteRegisters(regs, args[31])
		return Result{}, nil
	case ThreadSetPriority:
		if err := cap.CheckRight(capability.Write); err != nil {
			return Result{}, err
		}
		if err := checkArgc(args, 1); err != nil {
			return Result{}, err
		}
		t.SetPriority(uint8(args[0]))
		return Result{}, nil
	case ThreadSetIPCBuffer:
		if err := cap.CheckRight(capability.Write); err != nil {
			return Result{}, err
		}
		if err := checkArgc(args, 1); err != nil {
			return Result{}, err
		}
		t.SetIPCBuffer(addr.Virt(args[0]))
		return Result{}, nil
	case ThreadSetSpace:
		if err := cap.CheckRight(capability.Write); err != nil {
			return Result{}, err
		}
		if err := checkArgc(args, 1); err != nil {
			return Result{}, err
		}
		vspace, ok := reg.VSpace(args[0])
		if !ok {
			return Result{}, kerr.New(kerr.InvalidCapability, "dispatch: set_space: vspace not found")
		}
		t.SetSpace(t.CSpaceRoot, vspace.Phys)
		return Result{}, nil
	case ThreadSuspend:
		if err := cap.CheckRight(capability.Write); err != nil {
			return Result{}, err
		}
		if err := checkArgc(args, 0); err != nil {
			return Result{}, err
		}
		t.Suspend()
		return Result{}, nil
	case ThreadResume:
		if err := cap.CheckRight(capability.Write); err != nil {
			return Result{}, err
		}
		if err := checkArgc(args, 0); err != nil {
			return Result{}, err
		}
		if err := t.Resume(); err != nil {
			return Result{}, err
		}
		return Result{}, nil
	default:
		return Result{}, kerr.New(kerr.InvalidInvocation, "dispatch: unknown thread label")
	}
}

func dispatchNotification(reg *kobject.ObjectTable, cap capability.Cap, label Label, args []uint64) (Result, error) {
	n, ok := reg.Notification(cap.Object())
	if !ok {
		return Result{}, kerr.New(kerr.InvalidCapability, "dispatch: notification object not found")
	}
	switch label {
	case NotificationSignal:
		if err := cap.CheckRight(capability.Write); err != nil {
			return Result{}, err
		}
		if err := checkArgc(args, 1); err != nil {
			return Result{}, err
		}
		n.Signal(args[0])
		return Result{}, nil
	case NotificationWait:
		if err := cap.CheckRight(capability.Read); err != nil {
			return Result{}, err
		}
		if err := checkArgc(args, 0); err != nil {
			return Result{}, err
		}
		value, _ := n.Wait()
		return Result{Value: value}, nil
	case NotificationPoll:
		if err := cap.CheckRight(capability.Read); err != nil {
			return Result{}, err
		}
		if err := checkArgc(args, 0); err != nil {
			return Result{}, err
		}
		return Result{Value: n.Poll()}, nil
	default:
		return Result{}, kerr.New(kerr.InvalidInvocation, "dispatch: unknown notification label")
	}
}

func dispatchIrqHandler(reg *kobject.ObjectTable, cap capability.Cap, label Label, args []uint64, capArgs []capability.Cap) (Result, error) {
	h, ok := reg.IrqHandler(cap.Object())
	if !ok {
		return Result{}, kerr.New(kerr.InvalidCapability, "dispatch: irq handler object not found")
	}
	switch label {
	case IrqHandlerAck:
		if err := cap.CheckRight(capability.Write); err != nil {
			return Result{}, err
		}
		if err := checkArgc(args, 0); err != nil {
			return Result{}, err
		}
		if err := h.Ack(); err != nil {
			return Result{}, err
		}
		return Result{}, nil
	case IrqHandlerBind:
		if err := cap.CheckRight(capability.Grant); err != nil {
			return Result{}, err
		}
		if err := checkArgc(args, 0); err != nil {
			return Result{}, err
		}
		if len(capArgs) != 1 || capArgs[0].Type() != capability.Notification {
			return Result{}, kerr.New(kerr.InvalidArguments, "dispatch: bind requires one notification capability")
		}
		n, ok := reg.Notification(capArgs[0].Object())
		if !ok {
			return Result{}, kerr.New(kerr.InvalidCapability, "dispatch: bind: notification not found")
		}
		h.Bind(n)
		return Result{}, nil
	default:
		return Result{}, kerr.New(kerr.InvalidInvocation, "dispatch: unknown irq handler label")
	}
}
