//go:build arm64

package aarch64

import _ "unsafe" // required for //go:linkname directives

// PL011 UART on the QEMU virt machine (spec §4.12's boot log sink before
// internal/klog's allocator-backed logger can run), adapted from the
// teacher's uart_qemu.go.
const (
	uartBase = 0x09000000
	uartDR   = uartBase + 0x00
	uartFR   = uartBase + 0x18
)

const uartFRTXFF = 1 << 5 // transmit FIFO full

//go:linkname mmio_read mmio_read
//go:nosplit
func mmio_read(addr uintptr) uint32

//go:linkname mmio_write mmio_write
//go:nosplit
func mmio_write(addr uintptr, value uint32)

// UART is an io.Writer over the PL011 debug UART, usable both directly
// during early boot and as internal/klog's sink once logging is safe to
// use (spec §10 "kernel boot logs and hosted-test logs go through the
// same logr.Logger call sites").
type UART struct{}

//go:nosplit
func putc(c byte) {
	for mmio_read(uartFR)&uartFRTXFF != 0 {
	}
	mmio_write(uartDR, uint32(c))
}

// Write implements io.Writer, translating '\n' to "\r\n" as the teacher's
// uartPuts call sites always did by convention.
func (UART) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			putc('\r')
		}
		putc(b)
	}
	return len(p), nil
}
