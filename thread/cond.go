package thread

import (
	"github.com/sohnryang/pintos/container"
	"github.com/sohnryang/pintos/kernelerr"
)

// Cond is a Mesa-style condition variable (spec.md §4.3, threads/synch.c
// cond_wait/cond_signal/cond_broadcast): signaling and waking are not
// atomic, so a woken waiter must recheck its condition. Each waiter gets
// its own private semaphore so Signal can wake exactly the
// highest-priority one, kept ordered the same way the ready queue and
// lock waiters are.
type Cond struct {
	waiters *container.PriorityList[int, *Semaphore]
}

// NewCond returns a condition variable with no waiters.
func NewCond() *Cond {
	return &Cond{waiters: container.New[int, *Semaphore]()}
}

// Wait atomically releases lock and blocks until signaled, then
// reacquires lock before returning (cond_wait). lock must be held by cur.
func (c *Cond) Wait(cur *Thread, lock *Lock) {
	s := cur.sched
	waiter := NewSemaphore(0)

	s.mu.Lock()
	c.waiters.Insert(cur.priorityLocked(), waiter)
	s.mu.Unlock()

	lock.Release(cur)
	waiter.Down(cur)
	lock.Acquire(cur)
}

// Signal wakes the highest-priority thread waiting on c, if any
// (cond_signal). lock must be held by cur and must be the lock associated
// with c.
func (c *Cond) Signal(cur *Thread, lock *Lock) {
	kernelerr.Assert(lock.HeldBy(cur), "Cond.Signal: lock not held by current thread")
	s := cur.sched

	s.mu.Lock()
	waiter, ok := c.waiters.PopMax()
	s.mu.Unlock()

	if ok {
		waiter.Up(s)
	}
}

// Broadcast wakes every thread waiting on c (cond_broadcast).
func (c *Cond) Broadcast(cur *Thread, lock *Lock) {
	for {
		s := cur.sched
		s.mu.Lock()
		_, ok := c.waiters.PeekMax()
		s.mu.Unlock()
		if !ok {
			return
		}
		c.Signal(cur, lock)
	}
}
