package kobject_test

import (
	"testing"

	"github.com/kaal-project/kaal/internal/addr"
	"github.com/kaal-project/kaal/internal/capability"
	"github.com/kaal-project/kaal/internal/kerr"
	"github.com/kaal-project/kaal/internal/kobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRetypeAndUse mirrors spec §8 end-to-end scenario 1.
func TestRetypeAndUse(t *testing.T) {
	u := kobject.NewUntyped(addr.Phys(0x5000_0000), 20)

	threadAddr, err := u.Retype(capability.Thread, 12)
	require.NoError(t, err)
	assert.Equal(t, addr.Phys(0x5000_0000), threadAddr)

	epAddr, err := u.Retype(capability.Endpoint, 6)
	require.NoError(t, err)
	assert.Equal(t, addr.Phys(0x5000_1000), epAddr)

	assert.Equal(t, 2, u.NumChildren())

	u.Revoke()
	assert.Equal(t, 0, u.NumChildren())
	assert.Equal(t, uint64(0), u.Watermark())
}

func TestRetypeTooLargeFails(t *testing.T) {
	u := kobject.NewUntyped(addr.Phys(0x1000), 12)
	_, err := u.Retype(capability.Thread, 20)
	assert.True(t, kerr.Is(err, kerr.InsufficientMemory))
}

func TestUntypedAccountingInvariant(t *testing.T) {
	u := kobject.NewUntyped(addr.Phys(0x4000_0000), 16)
	_, err := u.Retype(capability.Endpoint, 6)
	require.NoError(t, err)
	_, err = u.Retype(capability.Notification, 6)
	require.NoError(t, err)

	assert.LessOrEqual(t, u.ChildrenSizeSum(), u.Size())
	assert.True(t, u.ChildrenWithinBounds())
}

// TestThreadResumeFromInactive mirrors spec §8 end-to-end scenario 3
// (the thread-state half of it; scheduler preemption itself is tested in
// internal/sched).
func TestThreadResumeFromInactive(t *testing.T) {
	b := kobject.NewThread(50, 10)
	assert.Equal(t, kobject.Inactive, b.State)
	require.NoError(t, b.Resume())
	assert.Equal(t, kobject.Runnable, b.State)
}

func TestResumeRequiresInactive(t *testing.T) {
	a := kobject.NewThread(100, 10)
	a.State = kobject.Running
	err := a.Resume()
	assert.True(t, kerr.Is(err, kerr.InvalidInvocation))
}

func TestEndpointRendezvousEmptiesQueues(t *testing.T) {
	ep := kobject.NewEndpoint()
	sender := kobject.NewThread(10, 10)
	receiver := kobject.NewThread(10, 10)

	ep.QueueSend(sender)
	ep.QueueReceive(receiver)

	s, r, ok := ep.TryMatch()
	assert.True(t, ok)
	assert.Same(t, sender, s)
	assert.Same(t, receiver, r)
	assert.Equal(t, 0, ep.SendQueueLen())
	assert.Equal(t, 0, ep.RecvQueueLen())
}

func TestNotificationSignalAndWait(t *testing.T) {
	n := kobject.NewNotification()

	value, blocked := n.Wait()
	assert.True(t, blocked)
	assert.Equal(t, uint64(0), value)

	n.Signal(0x4)
	n.Signal(0x1)
	value, blocked = n.Wait()
	assert.False(t, blocked)
	assert.Equal(t, uint64(0x5), value)

	assert.Equal(t, uint64(0), n.Poll())
}

func TestNotificationSignalWakesQueuedReceiver(t *testing.T) {
	n := kobject.NewNotification()
	waiter := kobject.NewThread(10, 10)
	n.QueueReceiver(waiter)

	value, woken := n.Signal(0x2)
	assert.Same(t, waiter, woken)
	assert.Equal(t, uint64(0x2), value)
	assert.Equal(t, 0, n.RecvQueueLen())
}

type fakeGIC struct{ eoid []uint32 }

func (f *fakeGIC) SignalEndOfInterrupt(irq uint32) { f.eoid = append(f.eoid, irq) }

func TestIrqHandlerRequiresAckBeforeRearm(t *testing.T) {
	gic := &fakeGIC{}
	h := kobject.NewIrqHandler(27, gic)
	n := kobject.NewNotification()
	h.Bind(n)

	assert.True(t, h.Deliver())
	assert.False(t, h.Deliver(), "second interrupt before ack must not deliver")

	require.NoError(t, h.Ack())
	assert.Equal(t, []uint32{27}, gic.eoid)
	assert.True(t, h.Deliver())
}
