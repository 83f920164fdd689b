// Package klog is the kernel's hosted logging facade. It wraps logr.Logger
// so every package above the architecture layer logs through one call site
// (grounded in jra3-system-agent's cmd/main.go, which wires logr + zapr +
// zap the same way). The architecture layer (internal/arch/aarch64) cannot
// use this package — it runs before the Go allocator is safe to call from
// an exception handler — and instead keeps the teacher's raw UART writer.
package klog

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// New returns a zap-backed logr.Logger. development=true selects a
// human-readable console encoder (for kernel-in-userspace test harnesses
// and simulators); development=false selects the production JSON encoder.
func New(development bool) logr.Logger {
	var zl *zap.Logger
	var err error
	if development {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}

// Discard returns a no-op logger, used by default in unit tests that don't
// care about kernel log output.
func Discard() logr.Logger { return logr.Discard() }
