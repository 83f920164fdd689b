package paging_test

import (
	"testing"

	"github.com/kaal-project/kaal/internal/addr"
	"github.com/kaal-project/kaal/internal/kerr"
	"github.com/kaal-project/kaal/internal/memory"
	"github.com/kaal-project/kaal/internal/paging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMapper(t *testing.T) (*paging.Mapper, *memory.Allocator) {
	t.Helper()
	mem, err := memory.New(addr.Phys(0x4000_0000), 4096*memory.FrameSize)
	require.NoError(t, err)
	m, err := paging.NewMapper(mem)
	require.NoError(t, err)
	return m, mem
}

func TestMapTranslateRoundTrip(t *testing.T) {
	m, mem := newMapper(t)
	frame, err := mem.Alloc()
	require.NoError(t, err)

	virt := addr.Virt(0x1_0000_0000)
	require.NoError(t, m.Map(virt, frame, addr.PageSize, paging.Permission{Write: true}))

	got, ok := m.Translate(virt)
	require.True(t, ok)
	assert.Equal(t, frame, got)
}

func TestTranslateWithOffset(t *testing.T) {
	m, mem := newMapper(t)
	frame, err := mem.Alloc()
	require.NoError(t, err)

	virt := addr.Virt(0x2_0000_0000)
	require.NoError(t, m.Map(virt, frame, addr.PageSize, paging.Permission{}))

	got, ok := m.Translate(virt.Add(0x20))
	require.True(t, ok)
	assert.Equal(t, frame.Add(0x20), got)
}

func TestMapRejectsMisalignment(t *testing.T) {
	m, mem := newMapper(t)
	frame, err := mem.Alloc()
	require.NoError(t, err)

	err = m.Map(addr.Virt(0x1001), frame, addr.PageSize, paging.Permission{})
	assert.True(t, kerr.Is(err, kerr.InvalidArguments))
}

func TestMapRejectsDoubleMap(t *testing.T) {
	m, mem := newMapper(t)
	frame, err := mem.Alloc()
	require.NoError(t, err)
	virt := addr.Virt(0x3_0000_0000)
	require.NoError(t, m.Map(virt, frame, addr.PageSize, paging.Permission{}))

	err = m.Map(virt, frame, addr.PageSize, paging.Permission{})
	assert.True(t, kerr.Is(err, kerr.InvalidArguments))
}

func TestUnmapThenTranslateFails(t *testing.T) {
	m, mem := newMapper(t)
	frame, err := mem.Alloc()
	require.NoError(t, err)
	virt := addr.Virt(0x4_0000_0000)
	require.NoError(t, m.Map(virt, frame, addr.PageSize, paging.Permission{}))

	require.NoError(t, m.Unmap(virt, addr.PageSize))
	_, ok := m.Translate(virt)
	assert.False(t, ok)
}

func TestUnmapNotMappedFails(t *testing.T) {
	m, _ := newMapper(t)
	err := m.Unmap(addr.Virt(0x5_0000_0000), addr.PageSize)
	assert.True(t, kerr.Is(err, kerr.NotFound))
}

func TestIdentityMapChoosesLargestPageSize(t *testing.T) {
	m, _ := newMapper(t)
	start := addr.Phys(0)
	end := addr.Phys(addr.PageSizeHuge + addr.PageSizeLarge + addr.PageSize)
	require.NoError(t, m.IdentityMap(start, end, paging.Permission{Write: true, Executable: true}))

	phys, ok := m.Translate(addr.Virt(0))
	require.True(t, ok)
	assert.Equal(t, addr.Phys(0), phys)

	mid, ok := m.Translate(addr.Virt(addr.PageSizeHuge))
	require.True(t, ok)
	assert.Equal(t, addr.Phys(addr.PageSizeHuge), mid)
}

func TestBlockDescriptorClearsTablePageBit(t *testing.T) {
	m, mem := newMapper(t)
	frame, err := mem.Alloc()
	require.NoError(t, err)
	// A 2 MiB block needs a 2 MiB-aligned frame; carve one out directly.
	block := frame.AlignUp(addr.PageSizeLarge)

	virt := addr.Virt(0x6_0000_0000)
	require.NoError(t, m.Map(virt, block, addr.PageSizeLarge, paging.Permission{Write: true}))

	got, ok := m.Translate(virt)
	require.True(t, ok)
	assert.Equal(t, block, got)
}
