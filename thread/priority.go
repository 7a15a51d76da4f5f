package thread

import (
	"github.com/sohnryang/pintos/fixedpoint"
	"github.com/sohnryang/pintos/kconfig"
	"github.com/sohnryang/pintos/kernelerr"
)

// donationLocked returns the highest priority currently donated to t
// through any lock it holds (thread_get_donation): the maximum, across
// t's held locks, of the highest-priority thread waiting on each lock.
// Donation never applies under MLFQS. Caller holds s.mu.
func (s *Scheduler) donationLocked(t *Thread) int {
	if s.mlfqs {
		return 0
	}
	max := 0
	for _, l := range t.heldLocks {
		if pri, ok := l.sema.waiters.MaxKey(); ok && pri > max {
			max = pri
		}
	}
	return max
}

// mlfqsPriority derives a thread's priority from its recent_cpu and nice
// under MLFQS (thread_fix_priority's MLFQS branch): PRI_MAX -
// recent_cpu/4 - nice*2, clamped to [PRI_MIN, PRI_MAX].
func mlfqsPriority(recentCPU fixedpoint.Fixed, nice int) int {
	p := kconfig.PriMax - recentCPU.DivInt(4).ToIntRound() - nice*2
	if p > kconfig.PriMax {
		p = kconfig.PriMax
	}
	if p < kconfig.PriMin {
		p = kconfig.PriMin
	}
	return p
}

// fixPriority recomputes t's effective priority (thread_fix_priority). t
// is always the thread currently RUNNING at the time of the call — every
// caller (SetBasePriority, SetNice, Lock.Acquire, Lock.Release) acts on
// its own thread — so there is no ready-queue or waiter-queue position to
// fix up here; only propagateDonation, which walks to OTHER threads
// up a wait-chain, needs to reorder queues.
func (s *Scheduler) fixPriority(t *Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mlfqs {
		t.priority = mlfqsPriority(t.recentCPU, t.nice)
		return
	}
	donation := s.donationLocked(t)
	if donation > t.basePriority {
		t.priority = donation
	} else {
		t.priority = t.basePriority
	}
}

// reorderLocked repositions t within the queue it currently occupies
// after its priority has changed. A thread mid-donation-walk may be
// sitting in the ready queue (if it was preempted after acquiring a lock
// another thread now wants) or nowhere in particular (if it is the
// thread actually RUNNING); reinserting is a harmless no-op when t isn't
// present. Caller holds s.mu.
func (s *Scheduler) reorderLocked(t *Thread) {
	if t.State() != Ready {
		return
	}
	s.ready.Reinsert(func(v *Thread) bool { return v == t }, t.priority)
}

// propagateDonation walks the chain of lock holders starting at lock,
// recomputing each holder's effective priority and reordering whatever
// queue it sits in, following lock_propagate_donation in the original
// kernel. priorityNew seeds the candidate priority for lock's own holder
// before the waiting thread has been registered in lock's waiter list
// (Lock.Acquire calls this before the blocking sema_down insert); lock
// release/priority-lowering call it with priorityNew=0, a no-op seed that
// simply forces a fresh walk of the chain.
//
// The walk is iterative, not recursive (per the Design Notes), and bounded
// by donationDepthLimit: a chain longer than that can only mean a cycle
// in wait_on_lock, which is a programmer error, not a scenario the
// in-scope tests exercise.
func (s *Scheduler) propagateDonation(lock *Lock, priorityNew int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastHolder *Thread
	holder := lock.holder
	first := true
	for depth := 0; holder != nil; depth++ {
		kernelerr.Assertf(depth <= s.donationDepthLimit, "donation chain exceeds sanity depth %d", s.donationDepthLimit)

		donationMax := s.donationLocked(holder)
		if first && donationMax < priorityNew {
			donationMax = priorityNew
		}
		first = false

		if donationMax <= holder.basePriority {
			holder.priority = holder.basePriority
		} else {
			holder.priority = donationMax
		}

		waitLock := holder.waitOnLock
		if waitLock == nil {
			lastHolder = nil
			break
		}
		waitLock.sema.waiters.Reinsert(func(v *Thread) bool { return v == holder }, holder.priority)
		lastHolder = holder
		holder = waitLock.holder
	}

	if lastHolder != nil {
		s.reorderLocked(lastHolder)
	}
	if holder != nil {
		s.reorderLocked(holder)
	}
}
