//go:build arm64

package aarch64

import _ "unsafe" // required for //go:linkname directives

// GICv2 register layout for the QEMU virt machine (spec §4.1 "GIC
// driver"), adapted from the teacher's gic_qemu.go — same distributor and
// CPU-interface base addresses, renamed to the kernel's own constant
// style.
const (
	gicDistBase = 0x08000000
	gicCPUBase  = 0x08010000

	gicdCTLR       = gicDistBase + 0x000
	gicdIGROUPRn   = gicDistBase + 0x080
	gicdISENABLERn = gicDistBase + 0x100
	gicdICENABLERn = gicDistBase + 0x180
	gicdICPENDRn   = gicDistBase + 0x280
	gicdIPRIORITYRn = gicDistBase + 0x400
	gicdITARGETSRn = gicDistBase + 0x800
	gicdICFGRn     = gicDistBase + 0xC00

	gicdISACTIVERn = gicDistBase + 0x300

	gicc_CTLR = gicCPUBase + 0x000
	gicc_PMR  = gicCPUBase + 0x004
	gicc_BPR  = gicCPUBase + 0x008
	gicc_IAR  = gicCPUBase + 0x00C
	gicc_EOIR = gicCPUBase + 0x010
)

//go:linkname mmio_read32 mmio_read32
//go:nosplit
func mmio_read32(addr uintptr) uint32

//go:linkname mmio_write32 mmio_write32
//go:nosplit
func mmio_write32(addr uintptr, value uint32)

// InitGIC brings up the GICv2 distributor and CPU interface: priority
// mask open, all SPIs/PPIs routed to Group 1 on CPU 0, level-triggered,
// default priority (spec §4.1, grounded on the teacher's gic_qemu.go
// gicInit sequence).
//
//go:nosplit
func InitGIC() {
	mmio_write32(gicdCTLR, 0)
	mmio_write32(gicc_CTLR, 0)
	mmio_write32(gicc_PMR, 0xFF)
	mmio_write32(gicc_BPR, 0)

	for i := 0; i < 32; i++ {
		mmio_write32(gicdICPENDRn+uintptr(i*4), 0xFFFFFFFF)
		mmio_write32(gicdIGROUPRn+uintptr(i*4), 0xFFFFFFFF)
	}
	for i := 0; i < 256; i++ {
		mmio_write32(gicdIPRIORITYRn+uintptr(i*4), 0x80808080)
		mmio_write32(gicdITARGETSRn+uintptr(i*4), 0x01010101)
	}
	for i := 0; i < 64; i++ {
		mmio_write32(gicdICFGRn+uintptr(i*4), 0)
	}

	mmio_write32(gicdCTLR, 0x03)
	mmio_write32(gicc_CTLR, 0x03)
}

// EnableIRQ unmasks irq at the distributor (spec §4.12 step 8 "IRQ
// unmask").
//
//go:nosplit
func EnableIRQ(irq uint32) {
	mmio_write32(gicdISENABLERn+uintptr(irq/32*4), 1<<(irq%32))
}

// DisableIRQ masks irq at the distributor.
//
//go:nosplit
func DisableIRQ(irq uint32) {
	mmio_write32(gicdICENABLERn+uintptr(irq/32*4), 1<<(irq%32))
}

// AcknowledgeInterrupt reads the CPU interface's IAR, returning the
// pending interrupt ID (1023 if spurious).
//
//go:nosplit
func AcknowledgeInterrupt() uint32 {
	return mmio_read32(gicc_IAR) & 0x3FF
}

// EndOfInterrupt signals completion of irq's handling to the CPU interface
// (spec §9 SignalEndOfInterrupt).
//
//go:nosplit
func EndOfInterrupt(irq uint32) {
	mmio_write32(gicc_EOIR, irq)
}
