//go:build arm64

// Command kernel is the entry point reached from the hand-written boot
// assembly (not modeled in this Go tree, same as the teacher's boot.s)
// with the MMU off and interrupts masked (spec §4.12 step 1). It wires
// internal/boot's hosted orchestration to the AArch64 architecture port:
// install the exception vector, enable the MMU over the root task's
// VSpace, bring up the GIC and timer, and hand off to the root task.
// KernelMain never returns — the final step is an exception return the
// assembly trampoline performs once the root task's trap frame is
// installed.
package main

import (
	_ "unsafe" // required for //go:linkname directives

	"github.com/go-logr/logr"

	"github.com/kaal-project/kaal/internal/addr"
	"github.com/kaal-project/kaal/internal/arch/aarch64"
	"github.com/kaal-project/kaal/internal/boot"
	"github.com/kaal-project/kaal/internal/bootcfg"
	"github.com/kaal-project/kaal/internal/ipc"
	"github.com/kaal-project/kaal/internal/klog"
	"github.com/kaal-project/kaal/internal/syscall"
)

// Linker-provided physical extents (spec §4.12 steps 1-2), read through a
// handful of //go:linkname accessors into symbols the linker script
// defines — the same shape as the teacher's getLinkerSymbol table
// (src/mazboot/golang/main/memory.go), just narrowed to what this kernel
// actually needs at boot instead of every section boundary.
//
//go:linkname kernelImageStart kernel_image_start
//go:nosplit
func kernelImageStart() uintptr

//go:linkname kernelImageEnd kernel_image_end
//go:nosplit
func kernelImageEnd() uintptr

//go:linkname ramStart ram_start
//go:nosplit
func ramStart() uintptr

//go:linkname ramSize ram_size
//go:nosplit
func ramSize() uintptr

// dtbRegionSize bounds the capability internal/boot installs over the
// device-tree blob (spec §4.12 step 5); the parse itself is a stub (spec
// §1 excludes the ELF/tooling surface that would consume the DTB), so an
// upper bound rather than the blob's real size is good enough here.
const dtbRegionSize = 1 << 21 // 2 MiB

var dtbPtr uintptr

// setDTBPtr records the device-tree pointer QEMU hands off in x0 under
// the Linux boot protocol (spec §4.12 step 1), called by the boot
// trampoline before anything else runs — same shape as the teacher's
// dtb_qemu.go setDTBPtr.
//
//go:nosplit
func setDTBPtr(p uintptr) { dtbPtr = p }

// kernelInstance is the single Kernel instance the exception vector
// trampoline dispatches into; the trampoline itself is hand-written
// assembly (not modeled here) that calls handleException/handleIRQ below
// by linker symbol, the same indirection the teacher uses to reach
// KernelMainBody from assembly.
var kernelInstance *aarch64.Kernel

//go:linkname handleException kernel_handle_exception
//go:nosplit
func handleException(tf *syscall.TrapFrame) { kernelInstance.HandleException(tf) }

//go:linkname handleIRQ kernel_handle_irq
//go:nosplit
func handleIRQ(irq uint32) { kernelInstance.HandleIRQ(irq) }

// KernelMain is called from the boot trampoline with r0 holding the DTB
// pointer QEMU passed in x0 (spec §4.12 step 1). It never returns.
//
//go:noinline
func KernelMain(r0 uintptr) {
	setDTBPtr(r0)

	// Early breadcrumbs go straight to the UART: klog's zap sink needs the
	// Go allocator, which isn't safe to touch until boot.Boot has handed
	// back a working VSpace, same staging the teacher's KernelMain follows
	// with uartPuts before anything else comes up.
	uart := aarch64.UART{}
	uart.Write([]byte("kernel: boot\n"))

	p := aarch64.Port{}
	if err := p.InstallVectorTable(); err != nil {
		uart.Write([]byte("kernel: vector table install failed\n"))
		hang()
	}

	log := klog.New(false)

	cfg := bootcfg.QEMUVirt(
		addr.Phys(ramStart()), uint64(ramSize()),
		addr.Phys(kernelImageStart()), uint64(kernelImageEnd()-kernelImageStart()),
	)
	if dtbPtr != 0 {
		cfg.DTBBase = addr.Phys(dtbPtr)
		cfg.DTBSize = dtbRegionSize
	}

	k, err := boot.Boot(cfg, log)
	if err != nil {
		log.Error(err, "boot failed")
		hang()
	}

	if err := p.EnableMMU(uint64(k.RootTask.VSpaceRoot)); err != nil {
		log.Error(err, "mmu enable failed")
		hang()
	}

	dispatcher := &syscall.Dispatcher{
		Objects: k.Objects,
		Sched:   k.Sched,
		Mapper:  k.Mapper,
		Log:     log,
	}
	kernelInstance = &aarch64.Kernel{
		Dispatch: dispatcher.Handle,
		OnIRQ:    func(irq uint32) { onIRQ(k, irq, log) },
		OnFault:  func(class ipc.FaultClass, faultAddr, syndrome uint64) { onFault(k, class, faultAddr, syndrome) },
	}

	aarch64.InitGIC()
	aarch64.InitTimer(cfg.SchedulerQuantumUsec)

	// The root task's entry point and registers come from loading its ELF
	// image, which spec §1 names as an explicit Non-goal; what's restored
	// here is whatever context the root TCB carries out of internal/boot
	// (zeroed, bar the saved VSpace root), same limitation the teacher's
	// own kernel.go accepts by embedding a fixed image rather than a
	// general loader.
	tf := syscall.TrapFrame{
		Regs:  k.RootTask.Ctx.Regs,
		ELR:   k.RootTask.Ctx.ELR,
		SPSR:  0, // EL0t, all exception masks clear (spec §4.1)
		TTBR0: uint64(k.RootTask.VSpaceRoot),
	}
	p.WriteTrapFrame(&tf) // never returns: the trampoline erets into the root task

	hang()
}

// onIRQ services the one interrupt source this port brings up at boot:
// the generic timer's tick, which drives the scheduler's time-slice
// accounting (spec §4.10 Tick, §4.12 step 8). Anything else unmasked
// later is logged rather than dispatched further, since nothing in this
// tree registers additional IRQ handlers yet.
func onIRQ(k *boot.Kernel, irq uint32, log logr.Logger) {
	if irq == aarch64.IRQTimerPPI {
		k.Sched.Tick()
		aarch64.ArmTimer(k.Config.SchedulerQuantumUsec)
		return
	}
	log.V(1).Info("unhandled irq", "irq", irq)
}

// onFault reports a synchronous fault on the current thread's behalf
// (spec §7 Fault handling).
func onFault(k *boot.Kernel, class ipc.FaultClass, faultAddr, syndrome uint64) {
	ipc.DeliverFault(k.Sched.Current(), class, faultAddr, syndrome)
}

func hang() {
	for {
	}
}
