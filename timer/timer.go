// Package timer implements the sleep/wakeup facility spec.md §4.4 builds
// on top of a periodic tick source: a monotonic tick counter, a per-thread
// wakeup deadline, and the `earliest_wakeup_tick` fast-path gate from the
// original threads/thread.c, which keeps Tick cheap on every invocation
// that wakes nobody.
package timer

import (
	"github.com/sohnryang/pintos/klog"
	"github.com/sohnryang/pintos/thread"
)

// noWakeupScheduled is the sentinel earliestWakeup holds when no thread is
// sleeping, mirroring the original's earliest_wakeup_tick = INT64_MAX.
const noWakeupScheduled = ^uint64(0)

// Timer owns the tick counter and sleep list for one scheduler. The timer
// tick source itself (spec.md §1: "the timer tick source... [is an] out
// of scope... external collaborator") is outside this package; callers
// drive Tick from whatever simulates that interrupt.
type Timer struct {
	sched *thread.Scheduler
	log   *klog.Logger

	ticks          uint64
	sleeping       []*thread.Thread
	earliestWakeup uint64
}

// New returns a Timer counting ticks for sched.
func New(sched *thread.Scheduler, log *klog.Logger) *Timer {
	if log == nil {
		log = klog.Discard()
	}
	return &Timer{sched: sched, log: log, earliestWakeup: noWakeupScheduled}
}

// Ticks returns the number of ticks elapsed since the timer was created.
func (tm *Timer) Ticks() uint64 { return tm.ticks }

// Sleep blocks the calling thread until at least n ticks have elapsed
// (thread_sleep). n <= 0 returns immediately without yielding. Must be
// called by cur's own goroutine; cur must be the running thread.
func (tm *Timer) Sleep(cur *thread.Thread, n int64) {
	if n <= 0 {
		return
	}
	wakeup := tm.ticks + uint64(n)
	cur.SetWakeupTick(wakeup)
	tm.sleeping = append(tm.sleeping, cur)
	if wakeup < tm.earliestWakeup {
		tm.earliestWakeup = wakeup
	}
	tm.log.Debug().Int("tid", cur.Tid()).Log("thread sleeping")
	cur.Block()
}

// Tick advances the tick counter by one, wakes every sleeper whose
// deadline has passed, and requests a yield-on-return once the current
// scheduling quantum expires (spec.md §4.1, §4.4). Call it once per
// simulated tick, from the currently-running thread's own context —
// standing in for the timer IRQ firing on the interrupted thread's stack.
func (tm *Timer) Tick() {
	tm.ticks++

	if tm.ticks >= tm.earliestWakeup {
		tm.wake(tm.ticks)
	}

	if tm.sched.Tick() {
		if running := tm.sched.Current(); running != nil {
			running.Yield()
		}
	}
}

// wake moves every sleeper whose wakeup_tick has passed back to Ready and
// recomputes earliestWakeup from what remains, following thread_wakeup's
// two-pass rebuild of sleep_list.
func (tm *Timer) wake(now uint64) {
	remaining := tm.sleeping[:0]
	var woken []*thread.Thread
	for _, t := range tm.sleeping {
		if t.WakeupTick() <= now {
			woken = append(woken, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	tm.sleeping = remaining

	next := noWakeupScheduled
	for _, t := range tm.sleeping {
		if wt := t.WakeupTick(); wt < next {
			next = wt
		}
	}
	tm.earliestWakeup = next

	for _, t := range woken {
		tm.log.Debug().Int("tid", t.Tid()).Log("thread woken")
		tm.sched.Unblock(t)
	}
}
