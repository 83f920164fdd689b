package addr_test

import (
	"testing"

	"github.com/kaal-project/kaal/internal/addr"
	"github.com/stretchr/testify/assert"
)

func TestAlignment(t *testing.T) {
	p := addr.Phys(0x5000_0123)
	assert.Equal(t, addr.Phys(0x5000_0000), p.AlignDown(addr.PageSize))
	assert.Equal(t, addr.Phys(0x5000_1000), p.AlignUp(addr.PageSize))
	assert.False(t, p.Aligned(addr.PageSize))
	assert.True(t, p.AlignDown(addr.PageSize).Aligned(addr.PageSize))
}

func TestWithin(t *testing.T) {
	u := addr.Phys(0x5000_0000)
	assert.True(t, u.Add(0x10).Within(u, 1<<20))
	assert.False(t, u.Within(u.Add(0x1000), 1<<20))
}

func TestVirtIndex(t *testing.T) {
	v := addr.Virt(0x0000_4321_5000)
	for level := 0; level <= 3; level++ {
		idx := v.Index(level)
		assert.Less(t, idx, uint64(512))
	}
}
