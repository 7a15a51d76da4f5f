package timer_test

import (
	"testing"

	"github.com/sohnryang/pintos/kconfig"
	"github.com/sohnryang/pintos/klog"
	"github.com/sohnryang/pintos/thread"
	"github.com/sohnryang/pintos/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSleepWakesInDeadlineOrder schedules two sleepers with different
// durations and a lowest-priority driver thread that ticks the timer
// forward; the driver only ever runs once both sleepers have blocked (it
// is outranked by both), so it safely stands in for the external timer
// tick source without reaching for a raw channel. Sleepers must wake in
// deadline order, not creation order.
func TestSleepWakesInDeadlineOrder(t *testing.T) {
	sched := thread.NewScheduler(kconfig.New(), klog.Discard())
	tm := timer.New(sched, klog.Discard())
	var order []string

	_, err := sched.Create("short", kconfig.PriDefault, func(cur *thread.Thread) {
		tm.Sleep(cur, 3)
		order = append(order, "short")
	})
	require.NoError(t, err)

	_, err = sched.Create("long", kconfig.PriDefault, func(cur *thread.Thread) {
		tm.Sleep(cur, 7)
		order = append(order, "long")
	})
	require.NoError(t, err)

	_, err = sched.Create("driver", kconfig.PriMin, func(*thread.Thread) {
		for i := 0; i < 10; i++ {
			tm.Tick()
		}
	})
	require.NoError(t, err)

	sched.Start()
	sched.Wait()

	assert.Equal(t, []string{"short", "long"}, order)
	assert.Equal(t, uint64(10), tm.Ticks())
}

// TestSleepNonPositiveIsNoop mirrors the original behavior of a sleep
// request for zero or negative ticks: it must not block at all.
func TestSleepNonPositiveIsNoop(t *testing.T) {
	sched := thread.NewScheduler(kconfig.New(), klog.Discard())
	tm := timer.New(sched, klog.Discard())
	ran := false

	_, err := sched.Create("solo", kconfig.PriDefault, func(cur *thread.Thread) {
		tm.Sleep(cur, 0)
		tm.Sleep(cur, -5)
		ran = true
	})
	require.NoError(t, err)

	sched.Start()
	sched.Wait()

	assert.True(t, ran)
}
