package thread

import (
	"github.com/sohnryang/pintos/container"
	"github.com/sohnryang/pintos/kernelerr"
)

// Semaphore is a nonnegative integer with two atomic operations, Down
// ("P", wait for positive then decrement) and Up ("V", increment and wake
// the highest-priority waiter), per spec.md §4.3 and the original
// threads/synch.c. Waiters are kept in priority order so Up always wakes
// the most urgent thread, the same invariant the ready queue maintains.
type Semaphore struct {
	value   int
	waiters *container.PriorityList[int, *Thread]
}

// NewSemaphore returns a semaphore initialized to value.
func NewSemaphore(value int) *Semaphore {
	return &Semaphore{value: value, waiters: container.New[int, *Thread]()}
}

// Down waits for sem to become positive and then decrements it
// (sema_down). Must be called by cur's own goroutine; may block.
func (sem *Semaphore) Down(cur *Thread) {
	s := cur.sched
	for {
		s.mu.Lock()
		if sem.value > 0 {
			sem.value--
			s.mu.Unlock()
			return
		}
		kernelerr.Assert(s.running == cur, "Semaphore.Down called by a thread that is not RUNNING")
		sem.waiters.Insert(cur.priorityLocked(), cur)
		s.blockLocked(cur)
		next := s.pickNextLocked()
		s.mu.Unlock()
		s.switchTo(cur, next)
	}
}

// TryDown decrements sem without blocking if it is already positive
// (sema_try_down), reporting whether it succeeded.
func (sem *Semaphore) TryDown(s *Scheduler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sem.value > 0 {
		sem.value--
		return true
	}
	return false
}

// Up increments sem and wakes its highest-priority waiter, if any
// (sema_up), preempting the running thread if the newly-ready waiter now
// outranks it.
func (sem *Semaphore) Up(s *Scheduler) {
	s.mu.Lock()
	woken, ok := sem.waiters.PopMax()
	sem.value++
	s.mu.Unlock()
	if ok {
		s.Unblock(woken)
	}
}
