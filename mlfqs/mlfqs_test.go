package mlfqs_test

import (
	"testing"

	"github.com/sohnryang/pintos/kconfig"
	"github.com/sohnryang/pintos/klog"
	"github.com/sohnryang/pintos/mlfqs"
	"github.com/sohnryang/pintos/thread"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRecentCPUIncrementsOnlyRunningThread checks that Tick accounts
// recent_cpu to whichever thread is RUNNING at the time, never to idle.
func TestRecentCPUIncrementsOnlyRunningThread(t *testing.T) {
	sched := thread.NewScheduler(kconfig.New(kconfig.WithMLFQS(true)), klog.Discard())
	ctrl := mlfqs.New(sched, klog.Discard())

	var solo *thread.Thread
	_, err := sched.Create("solo", kconfig.PriDefault, func(cur *thread.Thread) {
		solo = cur
		for i := uint64(1); i <= 3; i++ {
			ctrl.Tick(i)
		}
	})
	require.NoError(t, err)

	sched.Start()
	sched.Wait()

	require.NotNil(t, solo)
	assert.Equal(t, 3, solo.RecentCPU().ToIntRound())
}

// TestMLFQSPriorityFallsAsRecentCPURises guards the sign of the
// recent_cpu term in the priority formula (spec.md §4.2: "priority =
// PRI_MAX − recent_cpu/4 − nice·2"): a thread that accumulates recent_cpu
// by running must end up with a *lower* priority than a thread that never
// ran, not a higher one.
func TestMLFQSPriorityFallsAsRecentCPURises(t *testing.T) {
	sched := thread.NewScheduler(kconfig.New(kconfig.WithMLFQS(true)), klog.Discard())
	ctrl := mlfqs.New(sched, klog.Discard())

	var quiet *thread.Thread
	_, err := sched.Create("quiet", kconfig.PriDefault, func(cur *thread.Thread) {
		quiet = cur
	})
	require.NoError(t, err)

	_, err = sched.Create("busy", kconfig.PriDefault, func(cur *thread.Thread) {
		for i := uint64(1); i <= 32; i++ {
			ctrl.Tick(i)
		}
		assert.Less(t, cur.Priority(), quiet.Priority(), "heavy recent_cpu must lower priority, not raise it")
	})
	require.NoError(t, err)

	sched.Start()
	sched.Wait()
}

// TestLoadAvgRisesWithReadyThreads exercises the once-a-second load_avg
// recompute: with a busy ready queue, load_avg should move up from zero.
func TestLoadAvgRisesWithReadyThreads(t *testing.T) {
	sched := thread.NewScheduler(kconfig.New(kconfig.WithMLFQS(true)), klog.Discard())
	ctrl := mlfqs.New(sched, klog.Discard())

	_, err := sched.Create("busy", kconfig.PriDefault, func(cur *thread.Thread) {
		_, err := sched.Create("sibling", kconfig.PriDefault, func(*thread.Thread) {
			for i := uint64(1); i <= uint64(kconfig.TimerFreq); i++ {
				ctrl.Tick(i)
			}
		})
		require.NoError(t, err)
		for i := uint64(1); i <= uint64(kconfig.TimerFreq); i++ {
			ctrl.Tick(i)
		}
	})
	require.NoError(t, err)

	sched.Start()
	sched.Wait()

	assert.Greater(t, int64(ctrl.LoadAvg()), int64(0))
}
