package cnode_test

import (
	"testing"

	"github.com/kaal-project/kaal/internal/capability"
	"github.com/kaal-project/kaal/internal/cdt"
	"github.com/kaal-project/kaal/internal/cnode"
	"github.com/kaal-project/kaal/internal/kerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPopulated(t *testing.T) (*cnode.CNode, cdt.Ref) {
	t.Helper()
	tree := cdt.New()
	cn, err := cnode.New(tree, 4)
	require.NoError(t, err)
	root := tree.Root(capability.New(capability.Endpoint, 0x1000, capability.Read|capability.Write|capability.Grant))
	require.NoError(t, cn.Insert(0, root))
	return cn, root
}

func TestSizeBitsBounds(t *testing.T) {
	tree := cdt.New()
	_, err := cnode.New(tree, 3)
	assert.Error(t, err)
	_, err = cnode.New(tree, 13)
	assert.Error(t, err)
	cn, err := cnode.New(tree, 4)
	require.NoError(t, err)
	assert.Equal(t, 16, cn.Len())
}

func TestEmptyLookupInvariant(t *testing.T) {
	cn, _ := newPopulated(t)
	assert.False(t, cn.IsEmpty(0))
	assert.True(t, cn.IsEmpty(1))

	_, err := cn.Lookup(1)
	assert.True(t, kerr.Is(err, kerr.NotFound))

	cap, err := cn.Lookup(0)
	require.NoError(t, err)
	assert.False(t, cap.IsNull())
}

func TestInsertOccupiedFails(t *testing.T) {
	cn, root := newPopulated(t)
	err := cn.Insert(0, root)
	assert.True(t, kerr.Is(err, kerr.SlotOccupied))
}

func TestOutOfRangeIndex(t *testing.T) {
	cn, _ := newPopulated(t)
	_, err := cn.Lookup(16)
	assert.Error(t, err)
}

func TestMoveClearsSource(t *testing.T) {
	cn, _ := newPopulated(t)
	require.NoError(t, cn.Move(0, 1))
	assert.True(t, cn.IsEmpty(0))
	assert.False(t, cn.IsEmpty(1))
}

func TestCopyLeavesSource(t *testing.T) {
	cn, _ := newPopulated(t)
	require.NoError(t, cn.Copy(0, 1))
	assert.False(t, cn.IsEmpty(0))
	assert.False(t, cn.IsEmpty(1))

	a, _ := cn.Lookup(0)
	b, _ := cn.Lookup(1)
	assert.Equal(t, a.Rights(), b.Rights())
	assert.Equal(t, a.Object(), b.Object())
}

// TestCopyThenDeleteRoundTrip is spec §8's "Copy-then-delete of a
// capability yields the original CNode state" law.
func TestCopyThenDeleteRoundTrip(t *testing.T) {
	cn, _ := newPopulated(t)
	before := cn.Iterate()

	require.NoError(t, cn.Copy(0, 1))
	require.NoError(t, cn.Delete(1))

	after := cn.Iterate()
	assert.Equal(t, before, after)
}

func TestIterateYieldsNonNullSlots(t *testing.T) {
	cn, _ := newPopulated(t)
	require.NoError(t, cn.Copy(0, 2))
	entries := cn.Iterate()
	assert.Len(t, entries, 2)
	for _, e := range entries {
		assert.False(t, e.Cap.IsNull())
	}
}

func TestMutateInPlace(t *testing.T) {
	cn, _ := newPopulated(t)
	require.NoError(t, cn.Mutate(0, func(c capability.Cap) capability.Cap {
		return c.WithBadge(42)
	}))
	cap, err := cn.Lookup(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), cap.Badge())
}
