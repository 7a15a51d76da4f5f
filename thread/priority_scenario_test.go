package thread_test

import (
	"testing"

	"github.com/sohnryang/pintos/kconfig"
	"github.com/sohnryang/pintos/klog"
	"github.com/sohnryang/pintos/thread"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler() *thread.Scheduler {
	return thread.NewScheduler(kconfig.New(), klog.Discard())
}

// TestPriorityOrdering is the first seed scenario: three threads created
// at priorities 50, 30, 10 must run to completion in strictly descending
// priority order, each printing its name exactly once. None of them
// block on anything, so plain ready-queue ordering (and the immediate
// preemption thread_create causes) is all that is exercised.
func TestPriorityOrdering(t *testing.T) {
	sched := newTestScheduler()
	var order []string

	_, err := sched.Create("H", 50, func(*thread.Thread) { order = append(order, "H") })
	require.NoError(t, err)
	_, err = sched.Create("M", 30, func(*thread.Thread) { order = append(order, "M") })
	require.NoError(t, err)
	_, err = sched.Create("L", 10, func(*thread.Thread) { order = append(order, "L") })
	require.NoError(t, err)

	sched.Start()
	sched.Wait()

	assert.Equal(t, []string{"H", "M", "L"}, order)
}

// TestDonationChain is the second seed scenario: a low-priority thread L
// holds a lock; a higher-priority thread H then blocks acquiring it,
// donating its priority to L. Every cross-thread sequencing point here is
// a scheduler primitive (Create's immediate preemption, Lock.Acquire's
// blocking) rather than a raw channel, since only scheduler primitives
// hand the CPU between the simulated threads.
func TestDonationChain(t *testing.T) {
	sched := newTestScheduler()
	lockA := thread.NewLock()
	var order []string

	_, err := sched.Create("L", 10, func(l *thread.Thread) {
		lockA.Acquire(l)

		// Creating H (priority 50 > L's 10) immediately preempts L; H
		// blocks acquiring lockA, donating its priority to L, and
		// control returns here once H is parked waiting.
		_, err := sched.Create("H", 50, func(h *thread.Thread) {
			lockA.Acquire(h)
			order = append(order, "H")
			lockA.Release(h)
		})
		require.NoError(t, err)

		assert.Equal(t, 50, l.Priority(), "L should carry H's donated priority while H waits on lockA")

		// M (priority 30) must not preempt L while the donation holds:
		// 30 < 50.
		_, err = sched.Create("M", 30, func(*thread.Thread) {
			order = append(order, "M")
		})
		require.NoError(t, err)
		assert.Equal(t, 50, l.Priority())

		lockA.Release(l)
		assert.Equal(t, 10, l.Priority(), "donation clears once the lock is released")
		order = append(order, "L")
	})
	require.NoError(t, err)

	sched.Start()
	sched.Wait()

	assert.Equal(t, []string{"H", "M", "L"}, order)
}

// TestNestedDonation covers donation through two locks held by the same
// thread (spec.md §8 seed scenario 3): L holds both lockA (which H
// blocks on) and lockB (which M blocks on). Releasing the
// lesser-donating lock first must not drop L below the higher donation
// still outstanding on the other lock.
func TestNestedDonation(t *testing.T) {
	sched := newTestScheduler()
	lockA := thread.NewLock()
	lockB := thread.NewLock()
	var order []string

	_, err := sched.Create("L", 10, func(l *thread.Thread) {
		lockA.Acquire(l)
		lockB.Acquire(l)

		// M (priority 30) is created first, while L is still at 10: it
		// preempts L, blocks on lockB and donates 30. H (priority 50)
		// then preempts L in turn, blocks on lockA and donates 50, so
		// both donations are registered before L releases anything.
		_, err := sched.Create("M", 30, func(m *thread.Thread) {
			lockB.Acquire(m)
			order = append(order, "M")
			lockB.Release(m)
		})
		require.NoError(t, err)
		_, err = sched.Create("H", 50, func(h *thread.Thread) {
			lockA.Acquire(h)
			order = append(order, "H")
			lockA.Release(h)
		})
		require.NoError(t, err)

		assert.Equal(t, 50, l.Priority(), "both H and M donate; the max (H) wins")

		lockB.Release(l)
		assert.Equal(t, 50, l.Priority(), "lockA's donation from H still holds after releasing lockB")

		lockA.Release(l)
		assert.Equal(t, 10, l.Priority())
		order = append(order, "L")
	})
	require.NoError(t, err)

	sched.Start()
	sched.Wait()

	assert.Equal(t, []string{"H", "M", "L"}, order)
}

// TestSetPriorityDropsDonation covers thread_set_priority's interaction
// with an active donation: lowering a thread's own base priority while it
// still holds a donated-to lock must not drop its effective priority
// below the donated floor, but must take effect once the lock is
// released.
func TestSetPriorityDropsDonation(t *testing.T) {
	sched := newTestScheduler()
	lockA := thread.NewLock()

	_, err := sched.Create("L", 10, func(l *thread.Thread) {
		lockA.Acquire(l)

		_, err := sched.Create("H", 50, func(h *thread.Thread) {
			lockA.Acquire(h)
			lockA.Release(h)
		})
		require.NoError(t, err)

		assert.Equal(t, 50, l.Priority())
		l.SetBasePriority(5)
		assert.Equal(t, 50, l.Priority(), "donation still active after lowering own base priority")

		lockA.Release(l)
		assert.Equal(t, 5, l.Priority(), "the lowered base priority takes effect once the lock is released")
	})
	require.NoError(t, err)

	sched.Start()
	sched.Wait()
}
