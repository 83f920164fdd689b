//go:build arm64

package aarch64

import _ "unsafe" // required for //go:linkname directives

// IRQTimerPPI is the ARM Generic Timer's virtual-timer PPI ID on the QEMU
// virt machine (spec §4.1, matching the teacher's gic_qemu.go
// IRQ_ID_TIMER_PPI / original_source's scheduler tick source).
const IRQTimerPPI = 27

const (
	cntvCTLEnable = 1 << 0
	cntvCTLIMask  = 1 << 1
)

//go:linkname read_cntfrq_el0 read_cntfrq_el0
//go:nosplit
func read_cntfrq_el0() uint32

//go:linkname write_cntv_ctl_el0 write_cntv_ctl_el0
//go:nosplit
func write_cntv_ctl_el0(value uint32)

//go:linkname write_cntv_tval_el0 write_cntv_tval_el0
//go:nosplit
func write_cntv_tval_el0(value uint32)

var timerFreqHz uint32

// InitTimer reads the timer's tick frequency and arms the first tick at
// the scheduler's fixed quantum (spec §4.10 "time slice", §4.12 step 8
// "timer enable").
//
//go:nosplit
func InitTimer(quantumUsec uint32) {
	timerFreqHz = read_cntfrq_el0()
	ArmTimer(quantumUsec)
	write_cntv_ctl_el0(cntvCTLEnable)
	EnableIRQ(IRQTimerPPI)
}

// ArmTimer sets the virtual timer to fire after quantumUsec microseconds,
// called again from the timer IRQ handler to reload the next quantum
// (spec §4.10 Tick).
//
//go:nosplit
func ArmTimer(quantumUsec uint32) {
	ticks := uint64(quantumUsec) * uint64(timerFreqHz) / 1_000_000
	if ticks > 0xFFFFFFFF {
		ticks = 0xFFFFFFFF
	}
	write_cntv_tval_el0(uint32(ticks))
}
