package cdt_test

import (
	"testing"

	"github.com/kaal-project/kaal/internal/capability"
	"github.com/kaal-project/kaal/internal/cdt"
	"github.com/kaal-project/kaal/internal/kerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveMonotone(t *testing.T) {
	tree := cdt.New()
	root := tree.Root(capability.New(capability.Endpoint, 0x1000, capability.Read|capability.Write|capability.Grant))

	child, err := tree.DeriveChild(root, capability.Read)
	require.NoError(t, err)

	cap, err := tree.Get(child)
	require.NoError(t, err)
	assert.Equal(t, capability.Read, cap.Rights())

	_, err = tree.DeriveChild(child, capability.Write)
	assert.True(t, kerr.Is(err, kerr.InsufficientRights))
}

// TestRevocationCascade follows spec §8 scenario 6: Untyped U retyped into
// TCB T; TCB cap copied (here: derived as a child of the root with the
// root's full rights) to s1; derived read-only cap at s2. Revoke the
// root should destroy both descendants.
func TestRevocationCascade(t *testing.T) {
	tree := cdt.New()
	root := tree.Root(capability.New(capability.Thread, 0x5000_0000, capability.Read|capability.Write|capability.Grant))

	s1, err := tree.DeriveChild(root, capability.Read|capability.Write|capability.Grant)
	require.NoError(t, err)
	s2, err := tree.DeriveChild(s1, capability.Read)
	require.NoError(t, err)

	require.NoError(t, tree.Revoke(root))

	assert.True(t, tree.IsNull(root))
	assert.True(t, tree.IsNull(s1))
	assert.True(t, tree.IsNull(s2))
}

func TestRevokeAlreadyRevokedIsNoOp(t *testing.T) {
	tree := cdt.New()
	root := tree.Root(capability.New(capability.Endpoint, 0x1000, capability.Read))
	require.NoError(t, tree.Revoke(root))
	require.NoError(t, tree.Delete(root))

	err := tree.Revoke(root)
	assert.True(t, kerr.Is(err, kerr.NotFound))
}

func TestRevokeReentrantSafeDuringSiblingWalk(t *testing.T) {
	tree := cdt.New()
	root := tree.Root(capability.New(capability.Endpoint, 0x1000, capability.Read|capability.Grant))

	var kids []cdt.Ref
	for i := 0; i < 5; i++ {
		k, err := tree.DeriveChild(root, capability.Read)
		require.NoError(t, err)
		kids = append(kids, k)
	}

	require.NoError(t, tree.Revoke(root))
	for _, k := range kids {
		assert.True(t, tree.IsNull(k))
	}
}

func TestMintOnlyEndpointOrNotification(t *testing.T) {
	tree := cdt.New()
	root := tree.Root(capability.New(capability.Thread, 0x2000, capability.Grant))
	_, err := tree.MintChild(root, 1)
	assert.True(t, kerr.Is(err, kerr.InvalidInvocation))
}
