package thread

import "github.com/sohnryang/pintos/kernelerr"

// Exit tears the calling thread down (thread_exit): it notifies any
// linked process context, transitions to Dying, and performs the final
// context switch. It must be called exactly once, by the thread's own
// goroutine. It returns once the CPU has been handed to the next thread;
// the goroutine that calls it should do nothing afterward but let its
// function return and end.
func (t *Thread) Exit() {
	s := t.sched

	if pc := t.ProcessContext(); pc != nil {
		pc.NotifyThreadDying()
	}

	s.mu.Lock()
	kernelerr.Assert(s.running == t, "Exit called by a thread that is not RUNNING")
	t.state.Store(Dying)
	next := s.pickNextLocked()
	s.mu.Unlock()

	s.switchTo(t, next)
	s.wg.Done()
}
