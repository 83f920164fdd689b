// Package sched implements the 256-priority bitmap scheduler (spec §4.10):
// one FIFO ready queue per priority level, a four-word bitmap for O(1)
// find-next, and the yield/block/unblock/tick operations that drive thread
// dispatch.
package sched

import (
	"math/bits"

	"github.com/kaal-project/kaal/internal/kobject"
)

// NumPriorities is the scheduler's priority range (spec §4.10: "0-255, 0
// highest, 255 lowest").
const NumPriorities = 256

// bitmapWords is NumPriorities packed into 64-bit words (spec §4.10 "A
// 256-bit bitmap, held as four 64-bit words").
const bitmapWords = NumPriorities / 64

// Scheduler holds one CPU's ready queues and current thread. Padding to a
// cache line isn't meaningful in a hosted Go build the way it is for a
// real per-CPU struct array (spec §9 "SMP readiness... per-CPU state
// should be laid out to avoid false sharing") — that concern only bites
// once multiple of these share a cache line in an actual array, which is
// internal/boot's job when it allocates per-CPU state, not this type's.
type Scheduler struct {
	bitmap [bitmapWords]uint64
	queues [NumPriorities][]*kobject.Thread

	current *kobject.Thread
	idle    *kobject.Thread
}

// New constructs an empty scheduler with idle as the fallback thread run
// when no other thread is Runnable (spec §4.10 "Returns None iff all words
// are zero, in which case the idle TCB is chosen").
func New(idle *kobject.Thread) *Scheduler {
	return &Scheduler{idle: idle, current: idle}
}

// Current returns the thread presently selected to run.
func (s *Scheduler) Current() *kobject.Thread { return s.current }

func (s *Scheduler) setBit(p uint8) {
	s.bitmap[p/64] |= uint64(1) << (63 - p%64)
}

func (s *Scheduler) clearBit(p uint8) {
	s.bitmap[p/64] &^= uint64(1) << (63 - p%64)
}

// Enqueue appends t to the tail of its priority's queue and sets the
// bitmap bit (spec §4.10 Enqueue).
func (s *Scheduler) Enqueue(t *kobject.Thread) {
	p := t.Priority
	s.queues[p] = append(s.queues[p], t)
	s.setBit(p)
}

// dequeueHighest removes and returns the head of the highest-priority
// non-empty queue, or nil if every queue is empty (spec §4.10
// Find-next + Dequeue).
func (s *Scheduler) dequeueHighest() *kobject.Thread {
	for w := 0; w < bitmapWords; w++ {
		word := s.bitmap[w]
		if word == 0 {
			continue
		}
		lz := bits.LeadingZeros64(word)
		p := uint8(w*64 + lz)
		q := s.queues[p]
		t := q[0]
		if len(q) == 1 {
			s.queues[p] = nil
			s.clearBit(p)
		} else {
			s.queues[p] = q[1:]
		}
		return t
	}
	return nil
}

// pickNext selects the next thread to run: the highest-priority ready
// thread, or the idle thread if none is ready (spec §4.10 Find-next).
func (s *Scheduler) pickNext() *kobject.Thread {
	if t := s.dequeueHighest(); t != nil {
		return t
	}
	return s.idle
}

// YieldCurrent implements spec §4.10 yield_current: the current thread
// transitions back to Runnable and is re-enqueued at the tail of its own
// priority (unless it is the idle thread, which is never queued), then the
// next thread is picked and becomes current/Running. Callers only reach
// this path while prev is still eligible to run again — a thread that is
// blocking instead calls BlockCurrent after setting its own Blocked* state.
func (s *Scheduler) YieldCurrent() *kobject.Thread {
	prev := s.current
	if prev != nil && prev != s.idle {
		prev.State = kobject.Runnable
		s.Enqueue(prev)
	}
	next := s.pickNext()
	next.State = kobject.Running
	s.current = next
	return next
}

// BlockCurrent implements spec §4.10 block_current: the caller has already
// set current's state to one of the Blocked* states; this just picks and
// switches to the next thread.
func (s *Scheduler) BlockCurrent() *kobject.Thread {
	next := s.pickNext()
	next.State = kobject.Running
	s.current = next
	return next
}

// Unblock implements spec §4.10 unblock(tcb): marks tcb Runnable and
// enqueues it; if tcb's priority is strictly higher (numerically lower)
// than the current thread's, preempts by calling YieldCurrent.
func (s *Scheduler) Unblock(t *kobject.Thread) *kobject.Thread {
	t.Unblock()
	s.Enqueue(t)
	if s.current != nil && t.Priority < s.current.Priority {
		return s.YieldCurrent()
	}
	return s.current
}

// Tick implements spec §4.10's timer tick: decrements current's time
// slice; when it reaches zero, refills it and yields.
func (s *Scheduler) Tick() *kobject.Thread {
	cur := s.current
	if cur == nil || cur == s.idle {
		return cur
	}
	if cur.TimeSlice > 0 {
		cur.TimeSlice--
	}
	if cur.TimeSlice == 0 {
		cur.TimeSlice = cur.TimeSliceInit
		return s.YieldCurrent()
	}
	return cur
}

// ReadyLen exposes a priority's queue depth, for tests.
func (s *Scheduler) ReadyLen(priority uint8) int { return len(s.queues[priority]) }

// BitmapSet reports whether priority's bitmap bit is currently set, for
// tests verifying the bitmap/queue invariant stays in sync.
func (s *Scheduler) BitmapSet(priority uint8) bool {
	return s.bitmap[priority/64]&(uint64(1)<<(63-priority%64)) != 0
}
