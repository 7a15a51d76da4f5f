// Package mlfqs implements the multi-level feedback queue controller of
// spec.md §4.2/§6: the system-wide load_avg accumulator and the per-tick,
// per-second, and per-4-ticks recomputation of every thread's recent_cpu
// and effective priority. It is a direct port of the accounting half of
// the original threads/thread.c MLFQS branch, built on package
// fixedpoint's Q17.14 arithmetic, following threads/fixed_arith.c's exact
// constants for the load_avg and recent_cpu recurrences.
//
// The per-thread priority formula itself (PRI_MAX - recent_cpu/4 -
// nice*2) lives in package thread (Scheduler.RecomputeMLFQSPriorities),
// because applying it also requires reordering the ready queue under the
// scheduler's lock; Controller only owns the system-wide load_avg state
// and the tick-driven schedule for when to recompute.
package mlfqs

import (
	"github.com/sohnryang/pintos/fixedpoint"
	"github.com/sohnryang/pintos/kconfig"
	"github.com/sohnryang/pintos/klog"
	"github.com/sohnryang/pintos/thread"
)

var (
	fiftyNineSixtieths = fixedpoint.FromInt(59).Div(fixedpoint.FromInt(60))
	oneSixtieth        = fixedpoint.FromInt(1).Div(fixedpoint.FromInt(60))
	two                = fixedpoint.FromInt(2)
	one                = fixedpoint.FromInt(1)
)

// Controller owns the system-wide load_avg and drives the periodic
// recent_cpu/priority recomputation for one scheduler. It is only
// meaningful when the scheduler was constructed with kconfig.Config.MLFQS
// set; Tick is a no-op otherwise.
type Controller struct {
	sched   *thread.Scheduler
	log     *klog.Logger
	loadAvg fixedpoint.Fixed
}

// New returns a Controller with load_avg initialized to zero, matching
// the original kernel's boot-time value.
func New(sched *thread.Scheduler, log *klog.Logger) *Controller {
	if log == nil {
		log = klog.Discard()
	}
	return &Controller{sched: sched, log: log}
}

// LoadAvg returns the current system load average, in Q17.14 fixed point.
func (c *Controller) LoadAvg() fixedpoint.Fixed { return c.loadAvg }

// Tick drives the MLFQS accounting for one timer tick (spec.md §6): the
// running thread's recent_cpu is incremented every tick (unless it is
// idle); load_avg and every thread's recent_cpu are recomputed once per
// TIMER_FREQ ticks; every thread's priority is recomputed every 4 ticks.
// ticks is the tick count as of this call, matching timer.Timer.Ticks()
// after its own increment.
func (c *Controller) Tick(ticks uint64) {
	if !c.sched.MLFQS() {
		return
	}

	if running := c.sched.Current(); running != nil && !c.sched.IsIdle(running) {
		running.SetRecentCPU(running.RecentCPU().Add(one))
	}

	if ticks%kconfig.TimerFreq == 0 {
		c.recomputeLoadAvgAndRecentCPU()
	}

	if ticks%4 == 0 {
		c.sched.RecomputeMLFQSPriorities()
	}
}

// recomputeLoadAvgAndRecentCPU implements the once-per-second refresh:
// load_avg = (59/60)*load_avg + (1/60)*ready_threads, then every thread's
// recent_cpu = (2*load_avg)/(2*load_avg+1)*recent_cpu + nice.
func (c *Controller) recomputeLoadAvgAndRecentCPU() {
	ready := fixedpoint.FromInt(c.sched.ReadyLen())
	c.loadAvg = fiftyNineSixtieths.Mul(c.loadAvg).Add(oneSixtieth.Mul(ready))

	coeff := two.Mul(c.loadAvg).Div(two.Mul(c.loadAvg).Add(one))
	for _, t := range c.sched.AllThreads() {
		if c.sched.IsIdle(t) {
			continue
		}
		recent := coeff.Mul(t.RecentCPU()).Add(fixedpoint.FromInt(t.Nice()))
		t.SetRecentCPU(recent)
	}

	c.log.Debug().Log("mlfqs load_avg and recent_cpu recomputed")
}
