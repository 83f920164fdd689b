//go:build arm64

package aarch64

import (
	_ "unsafe" // required for //go:linkname directives

	"github.com/kaal-project/kaal/internal/ipc"
	"github.com/kaal-project/kaal/internal/syscall"
)

// Source identifies which of the vector table's four source combinations
// an exception entered through (spec §4.1 "current-EL-with-SP0,
// current-EL-with-SPx, lower-EL-64, lower-EL-32").
type Source uint8

const (
	SourceCurrentELSP0 Source = iota
	SourceCurrentELSPx
	SourceLowerEL64
	SourceLowerEL32
)

// Class identifies which of the vector table's four exception classes
// fired (spec §4.1 "synchronous, IRQ, FIQ, SError").
type Class uint8

const (
	ClassSynchronous Class = iota
	ClassIRQ
	ClassFIQ
	ClassSError
)

// ESR_EL1 Exception Class (EC) field values this kernel distinguishes
// (spec §6.3's syscall dispatch and §4.9's fault delivery both key off
// these).
const (
	ecDataAbortLowerEL     = 0b100100
	ecInstructionAbortLowerEL = 0b100000
	ecSVC64                = 0b010101
	ecUnknown              = 0b000000
)

//go:linkname set_vbar_el1 set_vbar_el1
//go:nosplit
func set_vbar_el1(addr uintptr)

var vectorTableStart [0]byte

// InstallVectorTable points VBAR_EL1 at the linker-placed exception vector
// table (spec §4.1 "2 KiB-aligned, 16 slots of 128 bytes each"). The table
// itself is hand-written assembly (not modeled in this Go tree, same as
// the teacher's `exception_vectors_start` symbol) — each slot's trampoline
// saves the full trap frame and calls HandleException or HandleIRQ below.
func InstallVectorTable() error {
	set_vbar_el1(addrOf(&vectorTableStart))
	return nil
}

// Kernel wires a Dispatcher and a fault-delivery hook so HandleException
// and HandleIRQ (called directly from the assembly trampolines) can route
// into the hosted kernel packages.
type Kernel struct {
	Dispatch    func(tf *syscall.TrapFrame)
	OnIRQ       func(irq uint32)
	OnFault     func(class ipc.FaultClass, faultAddr, syndrome uint64)
}

// HandleException is called from the synchronous-exception trampoline with
// the just-saved trap frame (spec §4.11 step 1 "short trampoline saving
// the full trap frame... passing its address to the C-ABI handler").
//
//go:nosplit
func (k *Kernel) HandleException(tf *syscall.TrapFrame) {
	recordTrapFrame(tf)
	ec := uint8((tf.ESR >> 26) & 0x3F)
	switch ec {
	case ecSVC64:
		k.Dispatch(tf)
	case ecDataAbortLowerEL:
		k.OnFault(ipc.FaultDataAbort, tf.FAR, tf.ESR)
	case ecInstructionAbortLowerEL:
		k.OnFault(ipc.FaultIllegalInstruction, tf.FAR, tf.ESR)
	default:
		k.OnFault(ipc.FaultBadSyscall, tf.FAR, tf.ESR)
	}
}

// HandleIRQ is called from the IRQ trampoline after the trap frame is
// saved; irq is the GIC-acknowledged interrupt ID (spec §4.1 GIC driver).
//
//go:nosplit
func (k *Kernel) HandleIRQ(irq uint32) {
	if k.OnIRQ != nil {
		k.OnIRQ(irq)
	}
	EndOfInterrupt(irq)
}
