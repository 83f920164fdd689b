package memory_test

import (
	"testing"

	"github.com/kaal-project/kaal/internal/addr"
	"github.com/kaal-project/kaal/internal/kerr"
	"github.com/kaal-project/kaal/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocPicksLowestClearBit(t *testing.T) {
	a, err := memory.New(addr.Phys(0x4000_0000), 16*memory.FrameSize)
	require.NoError(t, err)

	f0, err := a.Alloc()
	require.NoError(t, err)
	assert.Equal(t, addr.Phys(0x4000_0000), f0)

	require.NoError(t, a.Free(f0))
	f1, err := a.Alloc()
	require.NoError(t, err)
	assert.Equal(t, f0, f1, "freed lowest frame is reused before higher ones")
}

func TestReserveExcludesKernelImageFromAllocation(t *testing.T) {
	a, err := memory.New(addr.Phys(0x4000_0000), 16*memory.FrameSize)
	require.NoError(t, err)
	require.NoError(t, a.Reserve(addr.Phys(0x4000_0000), 4*memory.FrameSize))

	f, err := a.Alloc()
	require.NoError(t, err)
	assert.Equal(t, addr.Phys(0x4000_0000+4*memory.FrameSize), f)
}

func TestAllocFailsWhenExhausted(t *testing.T) {
	a, err := memory.New(addr.Phys(0x1000_0000), 2*memory.FrameSize)
	require.NoError(t, err)
	_, err = a.Alloc()
	require.NoError(t, err)
	_, err = a.Alloc()
	require.NoError(t, err)

	_, err = a.Alloc()
	assert.True(t, kerr.Is(err, kerr.InsufficientMemory))
}

func TestDoubleFreeFails(t *testing.T) {
	a, err := memory.New(addr.Phys(0x1000_0000), memory.FrameSize)
	require.NoError(t, err)
	f, err := a.Alloc()
	require.NoError(t, err)
	require.NoError(t, a.Free(f))
	err = a.Free(f)
	assert.True(t, kerr.Is(err, kerr.InvalidArguments))
}
