package kernel_test

import (
	"testing"

	"github.com/sohnryang/pintos/kconfig"
	"github.com/sohnryang/pintos/kernel"
	"github.com/sohnryang/pintos/klog"
	"github.com/sohnryang/pintos/thread"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSleepAccuracy is spec.md §8 seed scenario 4: a thread that sleeps
// for 100 ticks must not return to Ready before current_ticks reaches
// its deadline, and must be Ready by no later than one tick past it.
func TestSleepAccuracy(t *testing.T) {
	k := kernel.New(kernel.DefaultConfig(), klog.Discard())

	var wokeAtTick uint64

	_, err := k.Sched.Create("sleeper", kconfig.PriDefault, func(cur *thread.Thread) {
		k.Timer.Sleep(cur, 100)
		wokeAtTick = k.Timer.Ticks()
	})
	require.NoError(t, err)

	_, err = k.Sched.Create("driver", kconfig.PriMin, func(*thread.Thread) {
		for i := 0; i < 250; i++ {
			k.Tick()
		}
	})
	require.NoError(t, err)

	k.Start()
	k.Wait()

	assert.GreaterOrEqual(t, wokeAtTick, uint64(100))
	assert.LessOrEqual(t, wokeAtTick, uint64(101))
}

// TestMLFQSModeRecomputesPriorityFromNiceness exercises the kernel-level
// wiring between package timer and package mlfqs: raising a thread's
// niceness under MLFQS must eventually lower its priority below a
// nice-0 thread's, once the 4-tick recompute has run.
func TestMLFQSModeRecomputesPriorityFromNiceness(t *testing.T) {
	cfg := kernel.DefaultConfig()
	cfg.Kernel = kconfig.New(kconfig.WithMLFQS(true))
	k := kernel.New(cfg, klog.Discard())

	var nice, neutral *thread.Thread
	_, err := k.Sched.Create("nice", kconfig.PriDefault, func(cur *thread.Thread) {
		nice = cur
		cur.SetNice(19)
		k.Timer.Sleep(cur, 50)
	})
	require.NoError(t, err)
	_, err = k.Sched.Create("neutral", kconfig.PriDefault, func(cur *thread.Thread) {
		neutral = cur
		k.Timer.Sleep(cur, 50)
	})
	require.NoError(t, err)

	_, err = k.Sched.Create("driver", kconfig.PriMin, func(*thread.Thread) {
		for i := 0; i < 60; i++ {
			k.Tick()
		}
	})
	require.NoError(t, err)

	k.Start()
	k.Wait()

	assert.Less(t, nice.Priority(), neutral.Priority())
}
