// Package bootcfg is a typed, validated description of the machine
// internal/boot brings up: RAM extent, MMIO device regions, and the
// initial untyped-memory layout handed to the root task. spec.md §1 names
// a manifest/config-file parser as an explicit Non-goal, so there is no
// TOML/flag surface here — but the boot sequence still configures off a
// validated Go structure rather than scattered globals, the same shape as
// the teacher's MMIODevice/mmioDevices table
// (src/mazboot/golang/main/mmu.go), adapted from per-board literal slices
// into one typed, constructor-validated Config.
package bootcfg

import (
	"github.com/kaal-project/kaal/internal/addr"
	"github.com/kaal-project/kaal/internal/kerr"
	"github.com/kaal-project/kaal/internal/syscall"
)

// Device describes one MMIO region the boot sequence must identity-map
// device-nGnRnE before any driver touches it (spec §4.1, §4.12 step 3),
// matching the teacher's MMIODevice fields (name/start/size) plus the
// boot-info device-type tag and IRQ number spec.md §6.4 records.
type Device struct {
	Name string
	Phys addr.Phys
	Size uint64
	Type syscall.DeviceType
	IRQ  uint32
}

// Config is the whole machine description internal/boot consumes (spec
// §4.12 "memory discovery" + "device regions").
type Config struct {
	// RAMBase and RAMSize bound the physical memory the frame allocator
	// manages (spec §4.2).
	RAMBase addr.Phys
	RAMSize uint64

	// KernelImageBase and KernelImageSize name the range occupied by the
	// already-loaded kernel image, reserved out of the frame allocator
	// before anything else is allocated (spec §4.12 step 2).
	KernelImageBase addr.Phys
	KernelImageSize uint64

	// Devices lists every MMIO region the root task's boot info page will
	// describe (spec §6.4 device-region array).
	Devices []Device

	// SchedulerQuantumUsec is the fixed time-slice length the timer is
	// armed for (spec §4.10 "time slice").
	SchedulerQuantumUsec uint32

	// DTBBase and DTBSize locate the device-tree blob the bootloader
	// handed the kernel (spec §4.12 step 1). A zero DTBSize means no DTB
	// region is reported in the boot info page — internal/boot's
	// device-tree parse is a stub (spec §1 excludes the ELF
	// loader/tooling surface that would normally consume one), but the
	// physical region itself is still carved out and handed to the root
	// task as a capability (spec §4.12 step 5 "device-tree region") when
	// set.
	DTBBase addr.Phys
	DTBSize uint64
}

// Validate checks the structural invariants internal/boot relies on
// without inspecting hardware: RAM and the kernel image must be non-empty,
// the kernel image must fall inside RAM, and no two device regions may
// overlap.
func (c Config) Validate() error {
	if c.RAMSize == 0 {
		return kerr.New(kerr.InvalidArguments, "bootcfg: RAMSize must be nonzero")
	}
	if c.KernelImageSize == 0 {
		return kerr.New(kerr.InvalidArguments, "bootcfg: KernelImageSize must be nonzero")
	}
	if uint64(c.KernelImageBase) < uint64(c.RAMBase) ||
		uint64(c.KernelImageBase)+c.KernelImageSize > uint64(c.RAMBase)+c.RAMSize {
		return kerr.New(kerr.InvalidArguments, "bootcfg: kernel image falls outside RAM")
	}
	if c.SchedulerQuantumUsec == 0 {
		return kerr.New(kerr.InvalidArguments, "bootcfg: SchedulerQuantumUsec must be nonzero")
	}
	if c.DTBSize != 0 {
		if uint64(c.DTBBase) < uint64(c.RAMBase) ||
			uint64(c.DTBBase)+c.DTBSize > uint64(c.RAMBase)+c.RAMSize {
			return kerr.New(kerr.InvalidArguments, "bootcfg: DTB region falls outside RAM")
		}
	}
	for i, d := range c.Devices {
		if d.Size == 0 {
			return kerr.New(kerr.InvalidArguments, "bootcfg: device "+d.Name+" has zero size")
		}
		for j, other := range c.Devices {
			if i == j {
				continue
			}
			if overlaps(d, other) {
				return kerr.New(kerr.InvalidArguments, "bootcfg: devices "+d.Name+" and "+other.Name+" overlap")
			}
		}
	}
	return nil
}

func overlaps(a, b Device) bool {
	aEnd := uint64(a.Phys) + a.Size
	bEnd := uint64(b.Phys) + b.Size
	return uint64(a.Phys) < bEnd && uint64(b.Phys) < aEnd
}

// QEMUVirt is the default configuration for the QEMU "virt" AArch64
// machine this kernel targets (spec §4.1's GIC/timer/UART base addresses,
// matching internal/arch/aarch64's register constants and the teacher's
// gic_qemu.go/uart_qemu.go/timer_qemu.go base addresses).
func QEMUVirt(ramBase addr.Phys, ramSize uint64, kernelImageBase addr.Phys, kernelImageSize uint64) Config {
	return Config{
		RAMBase:         ramBase,
		RAMSize:         ramSize,
		KernelImageBase: kernelImageBase,
		KernelImageSize: kernelImageSize,
		Devices: []Device{
			{Name: "gic-dist", Phys: 0x08000000, Size: 0x10000, Type: syscall.DeviceGIC},
			{Name: "gic-cpu", Phys: 0x08010000, Size: 0x10000, Type: syscall.DeviceGIC},
			{Name: "uart0", Phys: 0x09000000, Size: 0x1000, Type: syscall.DeviceUART, IRQ: 33},
		},
		SchedulerQuantumUsec: 10_000,
	}
}
