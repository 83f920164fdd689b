package kobject

// Endpoint is a synchronous IPC rendezvous point (spec §3.6). At most one of
// its two FIFO queues is non-empty at any instant — a successful rendezvous
// always empties both sides before returning control to internal/ipc.
type Endpoint struct {
	senders   []*Thread
	receivers []*Thread
}

// NewEndpoint constructs an empty Endpoint, as produced by
// Untyped.Retype(Endpoint, ...).
func NewEndpoint() *Endpoint { return &Endpoint{} }

// QueueSend appends t to the sender queue (spec §4.7
// Endpoint.queue_send).
func (e *Endpoint) QueueSend(t *Thread) { e.senders = append(e.senders, t) }

// QueueReceive appends t to the receiver queue (spec §4.7
// Endpoint.queue_receive).
func (e *Endpoint) QueueReceive(t *Thread) { e.receivers = append(e.receivers, t) }

// TryMatch removes and returns the head of each queue if both are
// non-empty (spec §4.7 Endpoint.try_match). ok is false if no rendezvous is
// currently possible.
func (e *Endpoint) TryMatch() (sender, receiver *Thread, ok bool) {
	if len(e.senders) == 0 || len(e.receivers) == 0 {
		return nil, nil, false
	}
	sender, e.senders = e.senders[0], e.senders[1:]
	receiver, e.receivers = e.receivers[0], e.receivers[1:]
	return sender, receiver, true
}

// HasWaitingReceiver reports whether a receiver is already queued (used by
// Send to decide fast rendezvous vs. blocking).
func (e *Endpoint) HasWaitingReceiver() bool { return len(e.receivers) > 0 }

// HasWaitingSender reports whether a sender is already queued (used by
// Receive).
func (e *Endpoint) HasWaitingSender() bool { return len(e.senders) > 0 }

// PopReceiver removes and returns the head receiver, or nil if none.
func (e *Endpoint) PopReceiver() *Thread {
	if len(e.receivers) == 0 {
		return nil
	}
	var t *Thread
	t, e.receivers = e.receivers[0], e.receivers[1:]
	return t
}

// PopSender removes and returns the head sender, or nil if none.
func (e *Endpoint) PopSender() *Thread {
	if len(e.senders) == 0 {
		return nil
	}
	var t *Thread
	t, e.senders = e.senders[0], e.senders[1:]
	return t
}

// CancelAll drains both queues, returning every thread that was waiting so
// the caller (internal/ipc) can mark them Runnable with an IPC-cancelled
// indicator (spec §5 "Cancellation", §4.9 "Blocked threads are
// cancellable").
func (e *Endpoint) CancelAll() []*Thread {
	all := make([]*Thread, 0, len(e.senders)+len(e.receivers))
	all = append(all, e.senders...)
	all = append(all, e.receivers...)
	e.senders = nil
	e.receivers = nil
	return all
}

// SendQueueLen and RecvQueueLen expose queue depth for tests and the spec
// §8 end-to-end scenarios ("E.send_queue length 1").
func (e *Endpoint) SendQueueLen() int { return len(e.senders) }
func (e *Endpoint) RecvQueueLen() int { return len(e.receivers) }
