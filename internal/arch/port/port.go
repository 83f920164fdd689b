// Package port defines the architecture port interface (spec §9): the
// small set of operations internal/boot and internal/syscall need from the
// underlying CPU, kept behind an interface so the hosted packages never
// import anything arch-specific directly. internal/arch/aarch64 is the
// only implementation with real bodies; this package also exports a
// not-implemented stub for architectures the kernel doesn't target yet,
// matching spec §9's "conditional assembly for architecture variants"
// without actually switching on build tags outside internal/arch/aarch64
// itself.
package port

import (
	"github.com/kaal-project/kaal/internal/kerr"
	"github.com/kaal-project/kaal/internal/syscall"
)

// Port is the architecture-specific operations the rest of the kernel
// calls through, never reimplements (spec §9).
type Port interface {
	// InstallVectorTable points the CPU's exception vector base at the
	// kernel's vector table (spec §4.1, §6.2).
	InstallVectorTable() error

	// EnableMMU turns on address translation using the given translation
	// table base (spec §4.1 "MMU enable").
	EnableMMU(ttbr0 uint64) error

	// WriteTrapFrame restores a saved trap frame into the registers an
	// eret will resume from (spec §4.11 "restores... on exit").
	WriteTrapFrame(tf *syscall.TrapFrame) error

	// ReadSyscallArgs captures the current exception's register state into
	// a TrapFrame (spec §4.11 "short trampoline saving the full trap
	// frame").
	ReadSyscallArgs() *syscall.TrapFrame

	// SignalEndOfInterrupt acknowledges irq at the interrupt controller so
	// it can be re-asserted (spec §4.1 GIC EOI).
	SignalEndOfInterrupt(irq uint32) error

	// Name identifies the port for boot-log purposes.
	Name() string
}

// Unsupported is a Port whose every error-returning method reports
// kerr.NotImplemented; ReadSyscallArgs returns nil and Name returns
// ArchName. It
// backs architecture targets this kernel names in spec §9 but doesn't
// implement (x86-64, RISC-V) — internal/boot can still be built and
// exercised in hosted tests against it without a real aarch64 target.
type Unsupported struct {
	ArchName string
}

func (u Unsupported) err() error {
	return kerr.New(kerr.NotImplemented, u.ArchName+" port")
}

func (u Unsupported) InstallVectorTable() error             { return u.err() }
func (u Unsupported) EnableMMU(uint64) error                { return u.err() }
func (u Unsupported) WriteTrapFrame(*syscall.TrapFrame) error { return u.err() }
func (u Unsupported) ReadSyscallArgs() *syscall.TrapFrame    { return nil }
func (u Unsupported) SignalEndOfInterrupt(uint32) error      { return u.err() }
func (u Unsupported) Name() string                           { return u.ArchName }
