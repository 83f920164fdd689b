package sched_test

import (
	"testing"

	"github.com/kaal-project/kaal/internal/kobject"
	"github.com/kaal-project/kaal/internal/sched"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindNextPicksHighestPriority(t *testing.T) {
	idle := kobject.NewThread(255, 10)
	s := sched.New(idle)

	low := kobject.NewThread(200, 10)
	high := kobject.NewThread(10, 10)
	s.Enqueue(low)
	s.Enqueue(high)

	next := s.BlockCurrent()
	assert.Same(t, high, next)
	assert.Equal(t, kobject.Running, high.State)
}

func TestFindNextFallsBackToIdle(t *testing.T) {
	idle := kobject.NewThread(255, 10)
	s := sched.New(idle)
	next := s.BlockCurrent()
	assert.Same(t, idle, next)
}

func TestBitmapClearedWhenQueueEmpties(t *testing.T) {
	idle := kobject.NewThread(255, 10)
	s := sched.New(idle)
	thr := kobject.NewThread(42, 10)
	s.Enqueue(thr)
	assert.True(t, s.BitmapSet(42))

	s.BlockCurrent()
	assert.False(t, s.BitmapSet(42))
}

func TestFIFOWithinPriority(t *testing.T) {
	idle := kobject.NewThread(255, 10)
	s := sched.New(idle)
	a := kobject.NewThread(5, 10)
	b := kobject.NewThread(5, 10)
	s.Enqueue(a)
	s.Enqueue(b)

	require.Same(t, a, s.BlockCurrent())
	require.Same(t, b, s.BlockCurrent())
}

// TestPriorityPreemption mirrors spec §8 end-to-end scenario 3: Thread A
// priority 100 is Running; Thread B priority 50 is Inactive. Resuming B
// preempts A, which is left Runnable and queued at its own priority.
func TestPriorityPreemption(t *testing.T) {
	idle := kobject.NewThread(255, 10)
	s := sched.New(idle)

	a := kobject.NewThread(100, 10)
	s.Enqueue(a)
	require.Same(t, a, s.BlockCurrent()) // A becomes current/Running

	b := kobject.NewThread(50, 10)
	require.NoError(t, b.Resume())

	next := s.Unblock(b)
	assert.Same(t, b, next)
	assert.Equal(t, kobject.Running, b.State)
	assert.Equal(t, kobject.Runnable, a.State)
	assert.Equal(t, 1, s.ReadyLen(100))
}

func TestTickRefillsAndYieldsOnExhaustion(t *testing.T) {
	idle := kobject.NewThread(255, 10)
	s := sched.New(idle)
	a := kobject.NewThread(10, 1)
	s.Enqueue(a)
	s.BlockCurrent() // a becomes current, Running

	b := kobject.NewThread(10, 1)
	b.State = kobject.Runnable
	s.Enqueue(b)

	next := s.Tick()
	assert.Same(t, b, next)
	assert.Equal(t, uint32(1), a.TimeSlice, "exhausted slice is refilled before requeue")
	assert.Equal(t, kobject.Runnable, a.State)
}
