package kobject

import "github.com/kaal-project/kaal/internal/kerr"

// EOISignaler is the narrow interface IrqHandler needs from the
// architecture layer's interrupt controller driver (spec §4.1 GIC "end-of-
// interrupt" operation) — kept as an interface here so kobject never
// imports internal/arch.
type EOISignaler interface {
	SignalEndOfInterrupt(irq uint32)
}

// IrqHandler binds a hardware IRQ line to a Notification so the kernel
// converts interrupts into signals (spec §3.8 implied by §4.7
// IrqHandler.ack/bind). Re-arming requires an explicit user Ack first: if a
// second interrupt fires before the previous one is acknowledged, Deliver
// reports it as not delivered rather than risking a duplicate signal — the
// kernel's resolution of spec §9's open EOI-ordering question.
type IrqHandler struct {
	IRQ      uint32
	notif    *Notification
	needsAck bool
	gic      EOISignaler
}

// NewIrqHandler constructs a handler for the given IRQ line, talking to gic
// for end-of-interrupt signalling.
func NewIrqHandler(irq uint32, gic EOISignaler) *IrqHandler {
	return &IrqHandler{IRQ: irq, gic: gic}
}

// Bind attaches notif so that future interrupts on this line become
// signals (spec §4.7 IrqHandler.bind).
func (h *IrqHandler) Bind(notif *Notification) { h.notif = notif }

// Deliver is called by the architecture layer's interrupt dispatch path
// when this IRQ fires. It signals the bound notification with badge 1 and
// returns true, unless a previous delivery is still unacknowledged, in
// which case it returns false and the interrupt is dropped (no duplicate
// signal, per the Open Question resolution above).
func (h *IrqHandler) Deliver() (delivered bool) {
	if h.notif == nil || h.needsAck {
		return false
	}
	h.notif.Signal(1)
	h.needsAck = true
	return true
}

// Ack tells the GIC to end-of-interrupt this line and clears needsAck so
// the next Deliver can proceed (spec §4.7 IrqHandler.ack).
func (h *IrqHandler) Ack() error {
	if !h.needsAck {
		return kerr.New(kerr.InvalidInvocation, "irq: ack with nothing pending")
	}
	if h.gic != nil {
		h.gic.SignalEndOfInterrupt(h.IRQ)
	}
	h.needsAck = false
	return nil
}

// NeedsAck reports whether a delivered interrupt is awaiting user Ack.
func (h *IrqHandler) NeedsAck() bool { return h.needsAck }
