package bootcfg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaal-project/kaal/internal/addr"
	"github.com/kaal-project/kaal/internal/bootcfg"
	"github.com/kaal-project/kaal/internal/kerr"
)

func TestQEMUVirtValidates(t *testing.T) {
	c := bootcfg.QEMUVirt(addr.Phys(0x4000_0000), 256<<20, addr.Phys(0x4008_0000), 2<<20)
	require.NoError(t, c.Validate())
}

func TestValidateRejectsZeroRAM(t *testing.T) {
	c := bootcfg.QEMUVirt(0, 0, 0, 1)
	assert.True(t, kerr.Is(c.Validate(), kerr.InvalidArguments))
}

func TestValidateRejectsKernelImageOutsideRAM(t *testing.T) {
	c := bootcfg.QEMUVirt(addr.Phys(0x4000_0000), 1<<20, addr.Phys(0x5000_0000), 1<<16)
	assert.True(t, kerr.Is(c.Validate(), kerr.InvalidArguments))
}

func TestValidateRejectsOverlappingDevices(t *testing.T) {
	c := bootcfg.QEMUVirt(addr.Phys(0x4000_0000), 256<<20, addr.Phys(0x4008_0000), 2<<20)
	c.Devices = append(c.Devices, bootcfg.Device{
		Name: "overlap", Phys: 0x08000000, Size: 0x100,
	})
	assert.True(t, kerr.Is(c.Validate(), kerr.InvalidArguments))
}

func TestValidateRejectsZeroQuantum(t *testing.T) {
	c := bootcfg.QEMUVirt(addr.Phys(0x4000_0000), 256<<20, addr.Phys(0x4008_0000), 2<<20)
	c.SchedulerQuantumUsec = 0
	assert.True(t, kerr.Is(c.Validate(), kerr.InvalidArguments))
}
