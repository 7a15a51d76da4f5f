package thread

import "github.com/sohnryang/pintos/kernelerr"

// Lock is a binary semaphore with an owner: at most one thread may hold
// it at a time, and only the thread that acquired it may release it
// (spec.md §4.3, threads/synch.c). Acquiring a held lock donates the
// acquirer's priority up the chain of holders via propagateDonation, and
// releasing recomputes the releasing thread's own priority, implementing
// nested priority donation.
type Lock struct {
	holder *Thread
	sema   *Semaphore
}

// NewLock returns an unheld lock.
func NewLock() *Lock {
	return &Lock{sema: NewSemaphore(1)}
}

// HeldBy reports whether t currently owns l.
func (l *Lock) HeldBy(t *Thread) bool {
	s := t.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	return l.holder == t
}

// Acquire acquires l, blocking if necessary (lock_acquire). If l is
// already held, cur's priority is donated up the chain of lock holders
// before cur blocks, so the chain runs at least as fast as cur needs.
func (l *Lock) Acquire(cur *Thread) {
	s := cur.sched
	kernelerr.Assert(!l.HeldBy(cur), "Lock.Acquire: already held by current thread")

	s.mu.Lock()
	holder := l.holder
	if holder != nil {
		kernelerr.Assert(cur.waitOnLock == nil, "Lock.Acquire: thread already waiting on a lock")
		cur.waitOnLock = l
	}
	priority := cur.priorityLocked()
	s.mu.Unlock()

	if holder != nil {
		s.propagateDonation(l, priority)
	}

	l.sema.Down(cur)

	s.mu.Lock()
	cur.heldLocks = append(cur.heldLocks, l)
	cur.waitOnLock = nil
	l.holder = cur
	s.mu.Unlock()

	s.fixPriority(cur)
}

// TryAcquire acquires l only if it is not already held, without blocking
// (lock_try_acquire).
func (l *Lock) TryAcquire(cur *Thread) bool {
	s := cur.sched
	kernelerr.Assert(!l.HeldBy(cur), "Lock.TryAcquire: already held by current thread")
	if !l.sema.TryDown(s) {
		return false
	}
	s.mu.Lock()
	cur.heldLocks = append(cur.heldLocks, l)
	l.holder = cur
	s.mu.Unlock()
	return true
}

// Release releases l, which must be held by cur (lock_release). cur's own
// effective priority is recomputed (it may drop once the donation l was
// carrying is gone), and if cur is itself waiting on another lock, that
// chain's donations are recomputed to reflect cur's possibly-lower
// priority before the next waiter on l is woken.
func (l *Lock) Release(cur *Thread) {
	kernelerr.Assert(l.HeldBy(cur), "Lock.Release: not held by current thread")

	s := cur.sched
	s.mu.Lock()
	l.holder = nil
	for i, hl := range cur.heldLocks {
		if hl == l {
			cur.heldLocks = append(cur.heldLocks[:i], cur.heldLocks[i+1:]...)
			break
		}
	}
	waitLock := cur.waitOnLock
	s.mu.Unlock()

	s.fixPriority(cur)
	if waitLock != nil {
		s.propagateDonation(waitLock, 0)
	}
	l.sema.Up(s)
}
