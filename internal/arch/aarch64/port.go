//go:build arm64

package aarch64

import (
	_ "unsafe" // required for //go:linkname directives

	"github.com/kaal-project/kaal/internal/syscall"
)

//go:linkname write_trapframe_asm write_trapframe_asm
//go:nosplit
func write_trapframe_asm(tf *syscall.TrapFrame)

var lastTrapFrame syscall.TrapFrame

// recordTrapFrame is called by the assembly trampoline (via HandleException
// in practice, since that's this tree's only entry point into Go) to keep
// the most recently saved trap frame available to ReadSyscallArgs.
//
//go:nosplit
func recordTrapFrame(tf *syscall.TrapFrame) { lastTrapFrame = *tf }

// Port implements internal/arch/port.Port for AArch64 (spec §9).
type Port struct{}

func (Port) InstallVectorTable() error { return InstallVectorTable() }

func (Port) EnableMMU(ttbr0 uint64) error { return EnableMMU(ttbr0, ttbr0) }

func (Port) WriteTrapFrame(tf *syscall.TrapFrame) error {
	write_trapframe_asm(tf)
	return nil
}

func (Port) ReadSyscallArgs() *syscall.TrapFrame {
	tf := lastTrapFrame
	return &tf
}

func (Port) SignalEndOfInterrupt(irq uint32) error {
	EndOfInterrupt(irq)
	return nil
}

func (Port) Name() string { return "aarch64" }
