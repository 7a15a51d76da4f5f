package thread_test

import (
	"testing"

	"github.com/sohnryang/pintos/kconfig"
	"github.com/sohnryang/pintos/thread"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSemaphorePingPong mirrors sema_self_test from the original kernel: a
// pair of semaphores ping-pongs control between two threads, and both
// must complete exactly the agreed number of exchanges.
func TestSemaphorePingPong(t *testing.T) {
	sched := newTestScheduler()
	ping := thread.NewSemaphore(0)
	pong := thread.NewSemaphore(0)
	const rounds = 5
	var aCount, bCount int

	_, err := sched.Create("a", kconfig.PriDefault, func(a *thread.Thread) {
		for i := 0; i < rounds; i++ {
			ping.Up(a.Scheduler())
			pong.Down(a)
			aCount++
		}
	})
	require.NoError(t, err)

	_, err = sched.Create("b", kconfig.PriDefault, func(b *thread.Thread) {
		for i := 0; i < rounds; i++ {
			ping.Down(b)
			pong.Up(b.Scheduler())
			bCount++
		}
	})
	require.NoError(t, err)

	sched.Start()
	sched.Wait()

	assert.Equal(t, rounds, aCount)
	assert.Equal(t, rounds, bCount)
}

// TestCondSignalWakesHighestPriority checks that Cond.Signal wakes the
// highest-priority waiter first, matching cond_signal's use of
// sema_less_priority to pick among waiters.
func TestCondSignalWakesHighestPriority(t *testing.T) {
	sched := newTestScheduler()
	lock := thread.NewLock()
	cond := thread.NewCond()
	var order []string

	_, err := sched.Create("owner", 10, func(owner *thread.Thread) {
		lock.Acquire(owner)

		_, err := sched.Create("low", 20, func(low *thread.Thread) {
			lock.Acquire(low)
			cond.Wait(low, lock)
			order = append(order, "low")
			lock.Release(low)
		})
		require.NoError(t, err)
		_, err = sched.Create("high", 40, func(high *thread.Thread) {
			lock.Acquire(high)
			cond.Wait(high, lock)
			order = append(order, "high")
			lock.Release(high)
		})
		require.NoError(t, err)

		lock.Release(owner)
		// Let both waiters reach cond.Wait before signaling.
		owner.Yield()
		owner.Yield()

		lock.Acquire(owner)
		cond.Broadcast(owner, lock)
		lock.Release(owner)
	})
	require.NoError(t, err)

	sched.Start()
	sched.Wait()

	require.NotEmpty(t, order)
	assert.Equal(t, "high", order[0], "the highest-priority waiter must be signaled first")
}
