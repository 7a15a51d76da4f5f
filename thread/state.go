package thread

import "sync/atomic"

// State is one of the four states a thread may occupy (spec.md §3).
//
// State Machine:
//
//	Ready → Running      [scheduler picks the thread]
//	Running → Ready      [Yield: voluntary or quantum expiry]
//	Running → Blocked    [Block: sleep or a failed wait condition]
//	Blocked → Ready       [Unblock: sema_up, timer wake, cancellation]
//	Running → Dying      [Exit]
//
// Following the teacher's FastState (eventloop/state.go), the value is
// stored behind atomic.Uint32 so a thread's own state can be read without
// taking the scheduler lock (e.g. from the idle-thread fast path), while
// every transition that changes ready/waiter-queue membership is still
// made under the scheduler's lock — an atomic Store alone would not keep
// the queue and the state field consistent.
type State uint32

const (
	// Running is held by at most one thread at a time (spec.md invariant 1).
	Running State = iota
	// Ready threads sit in the scheduler's ready queue.
	Ready
	// Blocked threads sit in exactly one waiter collection.
	Blocked
	// Dying threads are past Exit; the next context switch reclaims them.
	Dying
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Ready:
		return "READY"
	case Blocked:
		return "BLOCKED"
	case Dying:
		return "DYING"
	default:
		return "UNKNOWN"
	}
}

type atomicState struct {
	v atomic.Uint32
}

func (a *atomicState) Load() State     { return State(a.v.Load()) }
func (a *atomicState) Store(s State)   { a.v.Store(uint32(s)) }
func (a *atomicState) init(s State)    { a.v.Store(uint32(s)) }
