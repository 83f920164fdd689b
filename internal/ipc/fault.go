package ipc

import "github.com/kaal-project/kaal/internal/kobject"

// FaultClass identifies the kind of user fault being reported (spec §7
// "Fault handling"; grounded on original_source's fault-message encoding in
// kernel/src/ipc/operations.rs, adapted to this message shape rather than
// ported verbatim).
type FaultClass uint64

const (
	FaultIllegalInstruction FaultClass = iota
	FaultDataAbort
	FaultBadSyscall
)

// FaultLabel is the fixed message label a fault delivery always carries, so
// a fault handler can distinguish it from an ordinary application message
// on the same endpoint.
const FaultLabel uint64 = ^uint64(0) - 1

// DeliverFault reports a fault on faulting's behalf (spec §7): if the
// thread has a fault endpoint configured, the fault is sent as an ordinary
// IPC message (class, faulting address, syndrome as the three data words);
// otherwise the thread is suspended outright. Returns whether the fault
// endpoint rendezvous completed immediately.
func DeliverFault(faulting *kobject.Thread, class FaultClass, faultAddr, syndrome uint64) bool {
	if faulting.FaultEndpoint == nil {
		faulting.Suspend()
		return false
	}
	msg := kobject.Message{Label: FaultLabel, Data: []uint64{uint64(class), faultAddr, syndrome}}
	delivered, err := Send(faulting.FaultEndpoint, faulting, msg)
	if err != nil {
		faulting.Suspend()
		return false
	}
	return delivered
}
