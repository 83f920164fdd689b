package kobject

// Notification is an asynchronous signalling object (spec §3.7): a single
// 64-bit signal word, OR-ed into by Signal and atomically consumed by Wait.
// There is no listener list and no queuing of signal values (spec §9) —
// only the one receiver queue for threads blocked in Wait.
type Notification struct {
	word      uint64
	receivers []*Thread
}

// NewNotification constructs an empty Notification.
func NewNotification() *Notification { return &Notification{} }

// Signal ORs badge into the signal word (spec §4.7 Notification.signal). If
// a receiver is already queued, it is dequeued, handed the resulting value
// (which also resets the word to zero), and returned so the caller can
// unblock it; otherwise Signal returns (0, nil) and the word persists for a
// future Wait/Poll.
func (n *Notification) Signal(badge uint64) (value uint64, woken *Thread) {
	n.word |= badge
	if len(n.receivers) == 0 {
		return 0, nil
	}
	woken, n.receivers = n.receivers[0], n.receivers[1:]
	value = n.word
	n.word = 0
	return value, woken
}

// Wait returns the current signal word and clears it if non-zero
// (spec §4.7 Notification.wait "atomically consumes and returns"). If the
// word is zero, Wait reports blocked=true and the caller must queue the
// thread via QueueReceiver.
func (n *Notification) Wait() (value uint64, blocked bool) {
	if n.word == 0 {
		return 0, true
	}
	value, n.word = n.word, 0
	return value, false
}

// QueueReceiver enqueues t as blocked waiting for a signal.
func (n *Notification) QueueReceiver(t *Thread) { n.receivers = append(n.receivers, t) }

// Poll returns the signal word, resetting it to zero if non-zero, without
// ever blocking (spec §4.7 Notification.poll "returns 0 on empty").
func (n *Notification) Poll() uint64 {
	value := n.word
	n.word = 0
	return value
}

// CancelAll drains the receiver queue (spec §5 "Cancellation" — destroying
// a Notification unblocks every waiter).
func (n *Notification) CancelAll() []*Thread {
	all := n.receivers
	n.receivers = nil
	return all
}

// RecvQueueLen exposes receiver-queue depth for tests.
func (n *Notification) RecvQueueLen() int { return len(n.receivers) }
