package ipc

import "github.com/kaal-project/kaal/internal/kobject"

// CancelEndpoint unblocks every thread queued on ep to send or receive,
// marking each Runnable with its Cancelled flag set. A caller whose Call
// was already matched and is waiting in BlockedOnReply is in neither queue
// and is not woken here (spec §4.9 "Blocked threads are
// cancellable — destroying the endpoint unblocks all queued threads,
// marking them Runnable with an IPC-cancelled indicator").
func CancelEndpoint(ep *kobject.Endpoint) []*kobject.Thread {
	waiters := ep.CancelAll()
	for _, t := range waiters {
		t.Pending = nil
		t.PendingIsCall = false
		t.Cancelled = true
		t.Unblock()
	}
	return waiters
}

// CancelNotification unblocks every thread waiting in n.Wait, marking each
// Runnable with its Cancelled flag set (spec §5 "Cancellation").
func CancelNotification(n *kobject.Notification) []*kobject.Thread {
	waiters := n.CancelAll()
	for _, t := range waiters {
		t.Cancelled = true
		t.Unblock()
	}
	return waiters
}
