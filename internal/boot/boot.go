// Package boot implements the kernel's boot sequence (spec §4.12): it
// brings up the physical frame allocator over the RAM region a (possibly
// stubbed) device-tree parse discovered, constructs the root task's
// CSpace, VSpace, and TCB, carves a root Untyped covering the memory the
// root task is entitled to retype from, populates the boot info page, and
// starts the scheduler with an idle thread and the root task made
// current.
//
// Steps 1 (bootloader handoff with DTB pointer and root-task image
// bounds) and 4 (exception vector install) are the architecture port's
// job (internal/arch/port, internal/arch/aarch64); this package covers
// everything spec §4.12 names that can run hosted, grounded on
// original_source/kernel/src/boot/{mod,root_task}.rs for sequencing and
// the teacher's MMIODevice-table device enumeration style
// (src/mazboot/golang/main/mmu.go) for how device regions reach the boot
// info page.
package boot

import (
	"math/bits"

	"github.com/go-logr/logr"

	"github.com/kaal-project/kaal/internal/addr"
	"github.com/kaal-project/kaal/internal/bootcfg"
	"github.com/kaal-project/kaal/internal/capability"
	"github.com/kaal-project/kaal/internal/cdt"
	"github.com/kaal-project/kaal/internal/cnode"
	"github.com/kaal-project/kaal/internal/kerr"
	"github.com/kaal-project/kaal/internal/kobject"
	"github.com/kaal-project/kaal/internal/memory"
	"github.com/kaal-project/kaal/internal/paging"
	"github.com/kaal-project/kaal/internal/sched"
	"github.com/kaal-project/kaal/internal/syscall"
)

// RootCSpaceSizeBits sizes the root task's initial CNode (spec §4.12 step
// 5 "populate a CSpace"): 2^7 = 128 slots, enough for the fixed slots this
// package installs plus headroom for whatever the root task derives from
// them.
const RootCSpaceSizeBits = 7

// Root-CSpace slot numbers the root task is handed at fixed, well-known
// indices (spec §4.12 step 5). Slot 0 is deliberately left
// empty — a Null capability there lets early root-task code treat "slot
// 0" as a safe sentinel the way a null pointer would.
const (
	SlotRootUntyped = 1
	SlotRootCSpace  = 2
	SlotRootVSpace  = 3
	SlotBootInfo    = 4
	SlotDTBRegion   = 5
	SlotIrqControl  = 6
)

// RootTaskPriority and RootTaskTimeSlice seed the root task's scheduling
// parameters (spec §3.5). The root task runs at the highest priority
// (lowest number) available to user code; priority 0 is reserved.
const (
	RootTaskPriority  uint8  = 1
	RootTaskTimeSlice uint32 = 10
	idlePriority      uint8  = 255
)

// Fixed virtual addresses the root task is mapped at (spec §4.12 step 5
// "map a stack and IPC buffer"; §6.4 "IPC buffer VA"). These live well
// inside TTBR0's lower half so they never collide with a sanely sized
// user image loaded at its own ELF-specified base.
const (
	KernelVirtBase   = addr.Virt(0xFFFF_0000_0000_0000) // TTBR1 upper half, spec §4.1
	UserVAWindowBase = addr.Virt(0x0000_0000_1000_0000)
	IPCBufferVA      = addr.Virt(0x0000_007F_FFFF_F000)
	BootInfoVA       = addr.Virt(0x0000_007F_FFFF_E000)
)

// bootstrapSize is how much physical memory right after the kernel image
// this package reserves for the frame allocator's own use (root VSpace's
// page tables, the boot info page) before computing the root Untyped's
// extent. It is deliberately generous — a handful of page tables and one
// metadata page — rather than computed exactly, the same way the
// teacher's own mmu.go reserves a fixed-size early heap rather than
// sizing it to the precise bootstrap workload.
const bootstrapSize = 4 << 20 // 4 MiB

// Kernel bundles every subsystem the boot sequence wires together. The
// syscall dispatcher and architecture layer are constructed on top of
// this by whatever drives the running system (internal/syscall.Dispatcher,
// cmd/kernel).
type Kernel struct {
	Config bootcfg.Config

	Tree    *cdt.Tree
	Frames  *memory.Allocator
	Mapper  *paging.Mapper
	Objects *kobject.ObjectTable
	Sched   *sched.Scheduler

	RootUntyped *kobject.Untyped
	RootCSpace  *cnode.CNode
	RootTask    *kobject.Thread
	IdleTask    *kobject.Thread

	BootInfo syscall.BootInfo
}

// Boot runs spec §4.12 steps 2, 3, 5 and 6: it reserves the kernel image
// and a bootstrap region out of the frame allocator (steps 2-3), builds
// the root task's CSpace/VSpace/TCB and boot info page (step 5), and
// initializes the scheduler with an idle thread and the root task made
// current (step 6). The caller (cmd/kernel, driven by the architecture
// port) is responsible for steps 1, 4 and 7.
func Boot(cfg bootcfg.Config, log logr.Logger) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// The frame allocator is deliberately scoped to [RAMBase, frameRegionEnd)
	// only — everything from frameRegionEnd to the end of RAM belongs
	// exclusively to the root Untyped's own watermark accounting (spec
	// §3.8). Reserve() only excludes frames from Alloc() within whatever
	// region the allocator already covers; it cannot carve out a bounded
	// sub-pool on its own, so keeping the allocator's region this small is
	// what keeps Mapper's lazy table allocations from ever landing inside
	// untyped-memory's address range.
	bootstrapBase := cfg.KernelImageBase.Add(cfg.KernelImageSize).AlignUp(memory.FrameSize)
	frameRegionEnd := bootstrapBase.Add(bootstrapSize)
	if uint64(frameRegionEnd-cfg.RAMBase) > cfg.RAMSize {
		return nil, kerr.New(kerr.InsufficientMemory, "boot: RAM too small for bootstrap region")
	}

	frames, err := memory.New(cfg.RAMBase, uint64(frameRegionEnd-cfg.RAMBase))
	if err != nil {
		return nil, err
	}
	if err := frames.Reserve(cfg.KernelImageBase, cfg.KernelImageSize); err != nil {
		return nil, err
	}

	k := &Kernel{
		Config:  cfg,
		Tree:    cdt.New(),
		Frames:  frames,
		Objects: kobject.NewObjectTable(),
	}

	untypedSizeBits, err := largestPow2Within(frameRegionEnd, cfg.RAMBase.Add(cfg.RAMSize))
	if err != nil {
		return nil, err
	}
	untypedBase := frameRegionEnd
	k.RootUntyped = kobject.NewUntyped(untypedBase, untypedSizeBits)
	k.Objects.RegisterUntyped(uint64(untypedBase), k.RootUntyped)

	if err := k.buildRootTask(); err != nil {
		return nil, err
	}
	k.buildBootInfo()
	k.initScheduler(log)

	log.Info("boot: kernel initialized",
		"ramBase", cfg.RAMBase, "ramSize", cfg.RAMSize,
		"rootUntypedBase", untypedBase, "rootUntypedSizeBits", untypedSizeBits,
		"devices", len(cfg.Devices))
	return k, nil
}

// largestPow2Within returns log2 of the largest power-of-two-sized,
// naturally aligned region that fits in [base, limit), used to size the
// root Untyped over whatever RAM remains after the kernel image and
// bootstrap region (spec §4.12 step 5 "an Untyped covering all remaining
// memory").
func largestPow2Within(base, limit addr.Phys) (uint, error) {
	if limit <= base {
		return 0, kerr.New(kerr.InsufficientMemory, "boot: no RAM left for root untyped")
	}
	remaining := uint64(limit - base)
	sizeBits := uint(bits.Len64(remaining)) - 1
	for sizeBits > 0 && !base.Aligned(uint64(1)<<sizeBits) {
		sizeBits--
	}
	return sizeBits, nil
}

// buildRootTask retypes the root CSpace and TCB from the root Untyped,
// builds the root VSpace via the page mapper, wires the fixed capability
// slots (spec §4.12 step 5), and leaves the root task Runnable with its
// CSpace/VSpace/IPC buffer installed.
func (k *Kernel) buildRootTask() error {
	cspacePhys, err := k.RootUntyped.Retype(capability.CNode, RootCSpaceSizeBits)
	if err != nil {
		return err
	}
	cspace, err := cnode.New(k.Tree, RootCSpaceSizeBits)
	if err != nil {
		return err
	}
	k.RootCSpace = cspace
	k.Objects.RegisterCNode(uint64(cspacePhys), cspace)

	mapper, err := paging.NewMapper(k.Frames)
	if err != nil {
		return err
	}
	k.Mapper = mapper
	vspace := kobject.NewVSpace(mapper.Root())
	k.Objects.RegisterVSpace(uint64(mapper.Root()), vspace)

	threadPhys, err := k.RootUntyped.Retype(capability.Thread, 0)
	if err != nil {
		return err
	}
	root := kobject.NewThread(RootTaskPriority, RootTaskTimeSlice)
	root.SetSpace(cspace, mapper.Root())
	root.SetIPCBuffer(IPCBufferVA)
	k.RootTask = root
	k.Objects.RegisterThread(uint64(threadPhys), root)

	if err := installSlot(cspace, k.Tree, SlotRootUntyped,
		capability.New(capability.Untyped, uint64(k.RootUntyped.Base()), capability.Read|capability.Write|capability.Grant)); err != nil {
		return err
	}
	if err := installSlot(cspace, k.Tree, SlotRootCSpace,
		capability.New(capability.CNode, uint64(cspacePhys), capability.Read|capability.Write|capability.Grant)); err != nil {
		return err
	}
	if err := installSlot(cspace, k.Tree, SlotRootVSpace,
		capability.New(capability.VSpace, uint64(mapper.Root()), capability.Read|capability.Write|capability.Grant)); err != nil {
		return err
	}
	if err := installSlot(cspace, k.Tree, SlotIrqControl,
		capability.New(capability.IrqControl, 0, capability.Grant)); err != nil {
		return err
	}

	bootInfoPhys, err := k.Frames.Alloc()
	if err != nil {
		return err
	}
	if err := mapper.Map(BootInfoVA, bootInfoPhys, addr.PageSize, paging.Permission{User: true}); err != nil {
		return err
	}
	k.Objects.RegisterPage(uint64(bootInfoPhys), kobject.NewPage(bootInfoPhys))
	if err := installSlot(cspace, k.Tree, SlotBootInfo,
		capability.New(capability.Page, uint64(bootInfoPhys), capability.Read)); err != nil {
		return err
	}

	if k.Config.DTBSize != 0 {
		if err := installSlot(cspace, k.Tree, SlotDTBRegion,
			capability.New(capability.Page, uint64(k.Config.DTBBase), capability.Read)); err != nil {
			return err
		}
	}

	return root.Resume()
}

// installSlot roots cap as a new derivation-tree node and inserts it at
// index in cspace — the boot sequence's fixed capabilities have no
// pre-existing parent to derive from, so they are tree roots exactly like
// a freshly retyped object's first capability (spec §4.5 "New capability
// created from an existing one becomes a child"; roots are the base
// case).
func installSlot(cspace *cnode.CNode, tree *cdt.Tree, index uint32, cap capability.Cap) error {
	ref := tree.Root(cap)
	return cspace.Insert(index, ref)
}

// buildBootInfo fills in the boot info page's in-kernel representation
// (spec §6.4): header, device-region array translated from bootcfg, and
// the single untyped descriptor naming the root Untyped.
func (k *Kernel) buildBootInfo() {
	devices := make([]syscall.DeviceRegion, len(k.Config.Devices))
	for i, d := range k.Config.Devices {
		devices[i] = syscall.DeviceRegion{Phys: d.Phys, Size: d.Size, Type: d.Type, IRQ: d.IRQ}
	}

	k.BootInfo = syscall.BootInfo{
		Header: syscall.BootInfoHeader{
			RAMSize:           k.Config.RAMSize,
			KernelVirtBase:    KernelVirtBase,
			UserVAWindowBase:  UserVAWindowBase,
			IPCBufferVA:       IPCBufferVA,
			InitialCSpaceSlot: SlotRootCSpace,
			InitialVSpaceSlot: SlotRootVSpace,
		},
		Devices: devices,
		Untypeds: []syscall.UntypedDescriptor{
			{Phys: k.RootUntyped.Base(), SizeBits: k.RootUntyped.SizeBits(), Device: false},
		},
	}
}

// initScheduler constructs the idle thread (spec §4.12 step 6 "wait-for-
// interrupt loop") at the lowest priority, builds the scheduler around
// it, and makes the root task current via Unblock — the same preemption
// path internal/sched already uses whenever a higher-priority thread
// becomes ready, here firing once at boot since the root task's priority
// is always numerically lower than idle's.
func (k *Kernel) initScheduler(log logr.Logger) {
	idle := kobject.NewThread(idlePriority, 0)
	idle.State = kobject.Running
	k.IdleTask = idle
	k.Sched = sched.New(idle)
	k.Sched.Unblock(k.RootTask)
	log.V(1).Info("boot: scheduler started", "current", "root-task")
}
