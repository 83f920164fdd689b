package port_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kaal-project/kaal/internal/arch/port"
	"github.com/kaal-project/kaal/internal/kerr"
)

func TestUnsupportedPortReportsNotImplemented(t *testing.T) {
	p := port.Unsupported{ArchName: "x86-64"}

	assert.True(t, kerr.Is(p.InstallVectorTable(), kerr.NotImplemented))
	assert.True(t, kerr.Is(p.EnableMMU(0), kerr.NotImplemented))
	assert.True(t, kerr.Is(p.WriteTrapFrame(nil), kerr.NotImplemented))
	assert.True(t, kerr.Is(p.SignalEndOfInterrupt(0), kerr.NotImplemented))
	assert.Nil(t, p.ReadSyscallArgs())
	assert.Equal(t, "x86-64", p.Name())
}
