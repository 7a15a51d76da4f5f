package thread

import (
	"sync"

	"github.com/sohnryang/pintos/container"
	"github.com/sohnryang/pintos/kconfig"
	"github.com/sohnryang/pintos/kernelerr"
	"github.com/sohnryang/pintos/klog"
)

// Scheduler owns the ready queue, the tid counter, and the run loop that
// hands the CPU between threads (spec.md §4.1). Pintos' single low-level
// mutual-exclusion primitive is "disable interrupts"; here that role is
// played by mu, which every operation that touches the ready queue, a
// thread's state, or priority must hold. This is the idiomatic-Go
// rendition the Design Notes call for: "explicit initialization phases...
// rather than relying on link-time ordering" becomes a constructor that
// wires everything up, and "disabling interrupts" becomes a mutex.
//
// There is no dedicated OS thread/goroutine standing in for the CPU
// itself: whichever goroutine is not parked on a Thread.resume channel
// receive is, by construction, the single active execution context,
// exactly mirroring "at most one RUNNING thread" on real single-CPU
// hardware. Start kicks off the first real thread; Wait blocks the
// caller until every thread it created has reached Dying.
type Scheduler struct {
	mu sync.Mutex

	ready *container.PriorityList[int, *Thread]
	all   []*Thread

	running *Thread
	idle    *Thread

	nextTid int

	mlfqs         bool
	quantum       uint
	tickInQuantum uint

	wg sync.WaitGroup

	log *klog.Logger

	// donationDepthLimit bounds the priority-donation propagation walk
	// (spec.md Design Notes: "bound loop depth by a configurable sanity
	// limit and panic otherwise to catch accidental cycles").
	donationDepthLimit int
}

// NewScheduler constructs a Scheduler and its idle thread, per the boot
// sequence spec.md Design Notes describes: thread_init first, everything
// else after. The returned Scheduler has no running thread until Start is
// called.
func NewScheduler(cfg kconfig.Config, log *klog.Logger) *Scheduler {
	if log == nil {
		log = klog.Discard()
	}
	s := &Scheduler{
		ready:              container.New[int, *Thread](),
		mlfqs:              cfg.MLFQS,
		quantum:            cfg.Quantum,
		log:                log,
		donationDepthLimit: kconfig.DonationSanityDepth,
	}
	if s.quantum == 0 {
		s.quantum = kconfig.DefaultQuantum
	}
	s.idle = s.newThread("idle", kconfig.PriMin, nil)
	s.idle.state.init(Blocked)
	s.all = append(s.all, s.idle)
	return s
}

// MLFQS reports whether the scheduler is running in MLFQS mode.
func (s *Scheduler) MLFQS() bool { return s.mlfqs }

func (s *Scheduler) allocTid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTid++
	return s.nextTid
}

func (s *Scheduler) newThread(name string, priority int, _ func(*Thread)) *Thread {
	t := &Thread{
		tid:          s.allocTid(),
		name:         name,
		basePriority: priority,
		priority:     priority,
		sched:        s,
		resume:       make(chan struct{}, 1),
	}
	t.state.init(Ready)
	return t
}

// Create allocates a new thread and adds it to the ready queue
// (thread_create), starting its own goroutine parked until scheduled in.
// Errors: the return signature carries a kernelerr.ErrOutOfMemory path
// purely to keep the call shape faithful to spec.md §4.1 ("thread_create
// fails with OUT_OF_MEMORY when a stack page cannot be allocated"); this
// simulation has no real page allocator backing kernel stacks, so Create
// always succeeds.
func (s *Scheduler) Create(name string, priority int, entry func(*Thread)) (*Thread, error) {
	t := s.newThread(name, priority, nil)
	t.parent = s.Current()

	s.wg.Add(1)
	go func() {
		<-t.resume
		entry(t)
		t.Exit()
	}()

	s.mu.Lock()
	s.all = append(s.all, t)
	s.readyInsertLocked(t)
	s.mu.Unlock()

	s.log.Debug().Str("name", name).Int("tid", t.tid).Int("priority", priority).Log("thread created")

	s.maybePreempt()
	return t, nil
}

// Current returns the thread currently RUNNING, or nil before Start runs.
func (s *Scheduler) Current() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) readyInsertLocked(t *Thread) {
	t.state.Store(Ready)
	s.ready.Insert(t.priorityLocked(), t)
}

// blockLocked transitions the given thread to Blocked. Caller must hold
// s.mu.
func (s *Scheduler) blockLocked(t *Thread) {
	t.state.Store(Blocked)
}

// Block transitions the calling thread (which must be the running
// thread) to Blocked and yields the CPU to the next ready thread. It is
// invoked by sleep and by synchronization primitives whose wait
// condition fails (spec.md §4.1).
func (t *Thread) Block() {
	s := t.sched
	s.mu.Lock()
	kernelerr.Assert(s.running == t, "Block called by a thread that is not RUNNING")
	s.blockLocked(t)
	next := s.pickNextLocked()
	s.mu.Unlock()
	s.switchTo(t, next)
}

// Unblock moves a Blocked thread to Ready (sema_up, timer wake,
// cancellation) and preempts the running thread if the newly-ready thread
// now outranks it (spec.md §4.1).
func (s *Scheduler) Unblock(t *Thread) {
	s.mu.Lock()
	kernelerr.Assert(t.State() == Blocked, "Unblock called on a thread that is not BLOCKED")
	s.readyInsertLocked(t)
	s.mu.Unlock()
	s.log.Debug().Int("tid", t.tid).Str("name", t.name).Log("thread unblocked")
	s.maybePreempt()
}

// Yield voluntarily relinquishes the CPU: the running thread goes back to
// Ready (unless it is the idle thread, which is never enqueued) and the
// scheduler picks the next thread, possibly the same one.
func (t *Thread) Yield() {
	s := t.sched
	s.mu.Lock()
	kernelerr.Assert(s.running == t, "Yield called by a thread that is not RUNNING")
	if t != s.idle {
		s.readyInsertLocked(t)
	} else {
		t.state.Store(Blocked)
	}
	next := s.pickNextLocked()
	s.mu.Unlock()
	s.switchTo(t, next)
}

// pickNextLocked implements next_thread_to_run: pop the ready queue head,
// falling back to the idle thread. Caller holds s.mu.
func (s *Scheduler) pickNextLocked() *Thread {
	if next, ok := s.ready.PopMax(); ok {
		return next
	}
	return s.idle
}

// switchTo performs the context-switch hand-off described in spec.md
// §4.1: it wakes next and, unless prev is Dying, blocks the calling
// goroutine until prev is scheduled again. This models "switch(prev,
// next) ... returns in the context of next" using a pair of per-thread
// channels instead of the assembly trampoline the real kernel uses. The
// caller is always prev's own execution context (possibly a bootstrap
// stand-in — see Start), so blocking here is exactly suspending prev's
// kernel stack until resumed.
func (s *Scheduler) switchTo(prev, next *Thread) {
	s.mu.Lock()
	s.running = next
	next.state.Store(Running)
	s.mu.Unlock()

	next.resume <- struct{}{}

	if prev.State() == Dying {
		return
	}
	<-prev.resume
}

// maybePreempt yields the running thread if the ready queue's head now
// outranks it (spec.md §4.1: "after every unblock and every priority
// change, if the head of READY has priority greater than the running
// thread, yield"). Every entry point into the scheduler (Create, Unblock,
// a priority change, a timer tick) executes on the currently-running
// thread's own execution context — there is exactly one active goroutine
// at a time, matching real single-CPU hardware where even the timer
// interrupt runs on the interrupted thread's kernel stack — so it is
// always safe for maybePreempt to yield directly rather than merely
// queue a yield-on-return.
func (s *Scheduler) maybePreempt() {
	s.mu.Lock()
	running := s.running
	if running == nil {
		s.mu.Unlock()
		return
	}
	headPri, ok := s.ready.MaxKey()
	s.mu.Unlock()
	if ok && headPri > running.Priority() {
		running.Yield()
	}
}

// Tick drives the periodic quantum-expiry check; the timer package calls
// this once per simulated tick, from within the currently-running
// thread's own context (standing in for the timer IRQ firing on its
// stack). It returns true once a full quantum has elapsed, so the caller
// can request a yield-on-return.
func (s *Scheduler) Tick() (quantumExpired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickInQuantum++
	if s.tickInQuantum >= s.quantum {
		s.tickInQuantum = 0
		return true
	}
	return false
}

// Start performs the very first scheduling decision: it pops the
// highest-priority ready thread (ordinarily the thread created first, or
// whichever was given the highest priority) and switches to it. It must
// be called exactly once, after every thread the test or boot sequence
// wants pre-queued has been created via Create, and does not block:
// control returns to the caller as soon as the chosen thread has been
// handed the CPU. Call Wait afterward to block until every created
// thread (other than idle) has exited.
func (s *Scheduler) Start() {
	s.mu.Lock()
	next := s.pickNextLocked()
	s.mu.Unlock()

	bootstrap := &Thread{name: "bootstrap", resume: make(chan struct{}, 1)}
	bootstrap.state.init(Dying)
	s.switchTo(bootstrap, next)
}

// Wait blocks until every thread created via Create has reached Dying.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// AllThreads returns a snapshot of every thread the scheduler knows
// about, including idle and Dying ones not yet reclaimed.
func (s *Scheduler) AllThreads() []*Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Thread, len(s.all))
	copy(out, s.all)
	return out
}

// ReadyLen returns the number of threads currently ready to run plus the
// running thread (unless it is idle), used by the MLFQS load_avg
// computation (spec.md §4.2).
func (s *Scheduler) ReadyLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.ready.Len()
	if s.running != nil && s.running != s.idle {
		n++
	}
	return n
}

// IsIdle reports whether t is this scheduler's idle thread, used by
// package mlfqs to skip recent_cpu accounting for it (spec.md §4.2:
// "recent_cpu increments by one per tick for the running thread (except
// idle)").
func (s *Scheduler) IsIdle(t *Thread) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t == s.idle
}

// RecomputeMLFQSPriorities recomputes every thread's MLFQS-derived
// priority (thread_fix_priority applied to the whole all-threads list) and
// reorders the ready queue to match, per spec.md §6: "recomputes
// priorities every 4 ticks." It is a no-op outside MLFQS mode.
func (s *Scheduler) RecomputeMLFQSPriorities() {
	if !s.mlfqs {
		return
	}
	s.mu.Lock()
	for _, t := range s.all {
		if t == s.idle {
			continue
		}
		t.priority = mlfqsPriority(t.recentCPU, t.nice)
		if t.state.Load() == Ready {
			s.ready.Reinsert(func(v *Thread) bool { return v == t }, t.priority)
		}
	}
	s.mu.Unlock()
	s.maybePreempt()
}
