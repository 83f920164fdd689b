package invoke_test

import (
	"testing"

	"github.com/kaal-project/kaal/internal/addr"
	"github.com/kaal-project/kaal/internal/capability"
	"github.com/kaal-project/kaal/internal/cdt"
	"github.com/kaal-project/kaal/internal/cnode"
	"github.com/kaal-project/kaal/internal/invoke"
	"github.com/kaal-project/kaal/internal/kerr"
	"github.com/kaal-project/kaal/internal/kobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchRejectsNullCapability(t *testing.T) {
	reg := kobject.NewObjectTable()
	_, err := invoke.Dispatch(reg, nil, cdt.NoRef, capability.NullCap, invoke.ThreadResume, nil, nil)
	assert.True(t, kerr.Is(err, kerr.InvalidCapability))
}

func TestDispatchUntypedRetype(t *testing.T) {
	reg := kobject.NewObjectTable()
	u := kobject.NewUntyped(addr.Phys(0x6000_0000), 20)
	reg.RegisterUntyped(0x6000_0000, u)

	tree := cdt.New()
	cspace, err := cnode.New(tree, 4)
	require.NoError(t, err)
	ref := tree.Root(capability.New(capability.Untyped, 0x6000_0000, capability.Read|capability.Write))
	require.NoError(t, cspace.Insert(1, ref))
	untypedCap, err := cspace.Lookup(1)
	require.NoError(t, err)

	res, err := invoke.Dispatch(reg, cspace, ref, untypedCap, invoke.UntypedRetype,
		[]uint64{uint64(capability.Thread), 0, 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x6000_0000), res.Value)
	assert.Equal(t, 1, u.NumChildren())

	// The retyped address must name a live, registered kobject, not just a
	// reserved range of physical memory.
	thr, ok := reg.Thread(res.Value)
	require.True(t, ok)

	// And the new capability must land in the requested destination slot,
	// usable through the same dispatch path as any other capability.
	threadCap, err := cspace.Lookup(2)
	require.NoError(t, err)
	assert.Equal(t, capability.Thread, threadCap.Type())
	assert.Equal(t, res.Value, threadCap.Object())

	threadRef, err := cspace.Ref(2)
	require.NoError(t, err)
	_, err = invoke.Dispatch(reg, cspace, threadRef, threadCap, invoke.ThreadSetPriority, []uint64{7}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(7), thr.Priority)
}

func TestDispatchUntypedRetypeRequiresWrite(t *testing.T) {
	reg := kobject.NewObjectTable()
	u := kobject.NewUntyped(addr.Phys(0x7000_0000), 16)
	reg.RegisterUntyped(0x7000_0000, u)

	tree := cdt.New()
	cspace, err := cnode.New(tree, 4)
	require.NoError(t, err)
	ref := tree.Root(capability.New(capability.Untyped, 0x7000_0000, capability.Read))
	require.NoError(t, cspace.Insert(1, ref))
	cap, err := cspace.Lookup(1)
	require.NoError(t, err)

	_, err = invoke.Dispatch(reg, cspace, ref, cap, invoke.UntypedRetype,
		[]uint64{uint64(capability.Endpoint), 6, 2}, nil)
	assert.True(t, kerr.Is(err, kerr.InsufficientRights))
}

func TestDispatchUntypedRevokeDestroysRetypedSubtree(t *testing.T) {
	reg := kobject.NewObjectTable()
	u := kobject.NewUntyped(addr.Phys(0x5000_0000), 20)
	reg.RegisterUntyped(0x5000_0000, u)

	tree := cdt.New()
	cspace, err := cnode.New(tree, 4)
	require.NoError(t, err)
	untypedRef := tree.Root(capability.New(capability.Untyped, 0x5000_0000, capability.Read|capability.Write))
	require.NoError(t, cspace.Insert(1, untypedRef))
	untypedCap, err := cspace.Lookup(1)
	require.NoError(t, err)

	// Retype into a Thread at s1 (slot 2), then copy that capability into
	// s2 (slot 3) — this is spec §8.6's "revocation cascade" scenario: U
	// retyped into T, T's cap copied to s1, a derived cap at s2.
	_, err = invoke.Dispatch(reg, cspace, untypedRef, untypedCap, invoke.UntypedRetype,
		[]uint64{uint64(capability.Thread), 0, 2}, nil)
	require.NoError(t, err)
	require.NoError(t, cspace.Copy(2, 3))

	untypedCap, err = cspace.Lookup(1) // re-fetch: retype doesn't change it, but keep the call sites symmetric
	require.NoError(t, err)
	_, err = invoke.Dispatch(reg, cspace, untypedRef, untypedCap, invoke.UntypedRevoke, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, u.NumChildren())
	assert.Equal(t, uint64(0), u.Watermark())

	s1, err := cspace.Ref(2)
	require.NoError(t, err)
	s2, err := cspace.Ref(3)
	require.NoError(t, err)
	assert.True(t, tree.IsNull(s1), "s1 must be Null after the cascade")
	assert.True(t, tree.IsNull(s2), "s2 must be Null after the cascade")
}

func TestDispatchThreadResumeAndSuspend(t *testing.T) {
	reg := kobject.NewObjectTable()
	thr := kobject.NewThread(50, 10)
	reg.RegisterThread(0x1234, thr)

	cap := capability.New(capability.Thread, 0x1234, capability.Write)
	_, err := invoke.Dispatch(reg, nil, cdt.NoRef, cap, invoke.ThreadResume, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, kobject.Runnable, thr.State)

	_, err = invoke.Dispatch(reg, nil, cdt.NoRef, cap, invoke.ThreadSuspend, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, kobject.Inactive, thr.State)
}

func TestDispatchThreadWrongArgCount(t *testing.T) {
	reg := kobject.NewObjectTable()
	thr := kobject.NewThread(50, 10)
	reg.RegisterThread(0x1234, thr)

	cap := capability.New(capability.Thread, 0x1234, capability.Write)
	_, err := invoke.Dispatch(reg, nil, cdt.NoRef, cap, invoke.ThreadSetPriority, []uint64{1, 2}, nil)
	assert.True(t, kerr.Is(err, kerr.InvalidArguments))
}

func TestDispatchNotificationSignalAndWait(t *testing.T) {
	reg := kobject.NewObjectTable()
	n := kobject.NewNotification()
	reg.RegisterNotification(0x2000, n)

	writer := capability.New(capability.Notification, 0x2000, capability.Write)
	_, err := invoke.Dispatch(reg, nil, cdt.NoRef, writer, invoke.NotificationSignal, []uint64{0x3}, nil)
	require.NoError(t, err)

	reader := capability.New(capability.Notification, 0x2000, capability.Read)
	res, err := invoke.Dispatch(reg, nil, cdt.NoRef, reader, invoke.NotificationWait, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x3), res.Value)
}

func TestDispatchIrqHandlerBindRequiresGrant(t *testing.T) {
	reg := kobject.NewObjectTable()
	h := kobject.NewIrqHandler(9, nil)
	n := kobject.NewNotification()
	reg.RegisterIrqHandler(0x9000, h)
	reg.RegisterNotification(0x2000, n)

	cap := capability.New(capability.IrqHandler, 0x9000, capability.Write)
	notifCap := capability.New(capability.Notification, 0x2000, capability.Read)
	_, err := invoke.Dispatch(reg, nil, cdt.NoRef, cap, invoke.IrqHandlerBind, nil, []capability.Cap{notifCap})
	assert.True(t, kerr.Is(err, kerr.InsufficientRights))

	cap = capability.New(capability.IrqHandler, 0x9000, capability.Grant)
	_, err = invoke.Dispatch(reg, nil, cdt.NoRef, cap, invoke.IrqHandlerBind, nil, []capability.Cap{notifCap})
	require.NoError(t, err)

	assert.True(t, h.Deliver())
}

func TestDispatchUnknownLabelFails(t *testing.T) {
	reg := kobject.NewObjectTable()
	thr := kobject.NewThread(50, 10)
	reg.RegisterThread(0x1234, thr)

	cap := capability.New(capability.Thread, 0x1234, capability.Write)
	_, err := invoke.Dispatch(reg, nil, cdt.NoRef, cap, invoke.Label(99), nil, nil)
	assert.True(t, kerr.Is(err, kerr.InvalidInvocation))
}

func TestDispatchEndpointHasNoInvocationLabels(t *testing.T) {
	reg := kobject.NewObjectTable()
	cap := capability.New(capability.Endpoint, 0x1, capability.Read|capability.Write)
	_, err := invoke.Dispatch(reg, nil, cdt.NoRef, cap, invoke.Label(0), nil, nil)
	assert.True(t, kerr.Is(err, kerr.InvalidInvocation))
}
