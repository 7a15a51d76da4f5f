// Command pintosim boots a kernel.Kernel and drives one of the seed
// end-to-end scenarios of spec.md §8, the way the original kernel's own
// pintos/tests harness boots the simulated machine and greps its console
// output for expected lines. Each scenario logs the tokens a grader
// would look for (H, M, L, L@50, L@10, ...) through klog rather than the
// original's raw console, since this core's console is just another
// injected collaborator (package process's WithConsole).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sohnryang/pintos/kconfig"
	"github.com/sohnryang/pintos/kernel"
	"github.com/sohnryang/pintos/klog"
	"github.com/sohnryang/pintos/thread"
	"github.com/sohnryang/pintos/vm"
)

func main() {
	fs := flag.NewFlagSet("pintosim", flag.ExitOnError)
	scenario := fs.String("scenario", "priority-ordering", "seed scenario to run: "+scenarioNames())
	cfg, err := kconfig.ParseFlags(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "pintosim:", err)
		os.Exit(1)
	}

	run, ok := scenarios[*scenario]
	if !ok {
		fmt.Fprintf(os.Stderr, "pintosim: unknown scenario %q (known: %s)\n", *scenario, scenarioNames())
		os.Exit(1)
	}

	log := klog.Default()
	kcfg := kernel.DefaultConfig()
	kcfg.Kernel = cfg
	run(kernel.New(kcfg, log), log)
}

func scenarioNames() string {
	names := ""
	for _, n := range []string{
		"priority-ordering", "donation-chain", "nested-donation",
		"sleep-accuracy", "stack-growth", "swap-roundtrip",
	} {
		if names != "" {
			names += ", "
		}
		names += n
	}
	return names
}

var scenarios = map[string]func(*kernel.Kernel, *klog.Logger){
	"priority-ordering": runPriorityOrdering,
	"donation-chain":    runDonationChain,
	"nested-donation":   runNestedDonation,
	"sleep-accuracy":    runSleepAccuracy,
	"stack-growth":      runStackGrowth,
	"swap-roundtrip":    runSwapRoundtrip,
}

func logToken(log *klog.Logger, token string) {
	log.Info().Str("token", token).Log("pintosim: scenario token")
}

// runPriorityOrdering is spec.md §8 scenario 1: H(50), M(30), L(10) must
// run to completion in strictly descending priority order.
func runPriorityOrdering(k *kernel.Kernel, log *klog.Logger) {
	must(k.Sched.Create("H", 50, func(*thread.Thread) { logToken(log, "H") }))
	must(k.Sched.Create("M", 30, func(*thread.Thread) { logToken(log, "M") }))
	must(k.Sched.Create("L", 10, func(*thread.Thread) { logToken(log, "L") }))
	k.Start()
	k.Wait()
}

// runDonationChain is spec.md §8 scenario 2: L holds lockA, H's creation
// donates its priority to L; releasing lockA restores L's base priority.
func runDonationChain(k *kernel.Kernel, log *klog.Logger) {
	lockA := thread.NewLock()
	must(k.Sched.Create("L", 10, func(l *thread.Thread) {
		lockA.Acquire(l)
		must(k.Sched.Create("H", 50, func(h *thread.Thread) {
			lockA.Acquire(h)
			logToken(log, "H")
			lockA.Release(h)
		}))
		logToken(log, fmt.Sprintf("L@%d", l.Priority()))
		must(k.Sched.Create("M", 30, func(*thread.Thread) { logToken(log, "M") }))
		lockA.Release(l)
		logToken(log, fmt.Sprintf("L@%d", l.Priority()))
	}))
	k.Start()
	k.Wait()
}

// runNestedDonation is spec.md §8 scenario 3: L holds lockA; M holds
// lockB and blocks on lockA; H blocks on lockB. H's priority reaches L via
// two hops (H to M, M to L), so L logs L@50 before releasing lockA and
// L@10 after.
func runNestedDonation(k *kernel.Kernel, log *klog.Logger) {
	lockA := thread.NewLock()
	lockB := thread.NewLock()
	must(k.Sched.Create("L", 10, func(l *thread.Thread) {
		lockA.Acquire(l)
		must(k.Sched.Create("M", 30, func(m *thread.Thread) {
			lockB.Acquire(m)
			lockA.Acquire(m)
			logToken(log, "M")
			lockA.Release(m)
			lockB.Release(m)
		}))
		must(k.Sched.Create("H", 50, func(h *thread.Thread) {
			lockB.Acquire(h)
			logToken(log, "H")
			lockB.Release(h)
		}))
		logToken(log, fmt.Sprintf("L@%d", l.Priority()))
		lockA.Release(l)
		logToken(log, fmt.Sprintf("L@%d", l.Priority()))
	}))
	k.Start()
	k.Wait()
}

// runSleepAccuracy is spec.md §8 scenario 4: a thread asleep for 100
// ticks must not return to Ready before its deadline, and must be Ready
// within one tick past it.
func runSleepAccuracy(k *kernel.Kernel, log *klog.Logger) {
	must(k.Sched.Create("sleeper", kconfig.PriDefault, func(cur *thread.Thread) {
		k.Timer.Sleep(cur, 100)
		logToken(log, fmt.Sprintf("woke@%d", k.Timer.Ticks()))
	}))
	must(k.Sched.Create("driver", kconfig.PriMin, func(*thread.Thread) {
		for i := 0; i < 150; i++ {
			k.Tick()
		}
	}))
	k.Start()
	k.Wait()
}

type fakeEvictor struct{}

func (fakeEvictor) Register(*vm.Frame)             {}
func (fakeEvictor) Evict() ([]byte, bool)          { return nil, false }
func (fakeEvictor) Deactivate(*vm.Frame) error     { return nil }
func (fakeEvictor) ReadIn(*vm.Frame, []byte) error { return nil }

// runStackGrowth is spec.md §8 scenario 5: a write at esp-4 must install
// a fresh anonymous page at round_down(esp-4).
func runStackGrowth(k *kernel.Kernel, log *klog.Logger) {
	must(k.Sched.Create("main", kconfig.PriDefault, func(*thread.Thread) {
		vmm := vm.New(k.Pages, fakeEvictor{}, log)
		esp := uintptr(kconfig.PhysBase)
		vmm.SetStackPointer(esp)
		if err := vmm.Store(esp-4, 0x42); err != nil {
			logToken(log, "stack-growth-failed")
			return
		}
		if vmm.PTEState(esp-4) == vm.PTEResident {
			logToken(log, "stack-grown")
		}
	}))
	k.Start()
	k.Wait()
}

// runSwapRoundtrip is spec.md §8 scenario 6: filling physical memory with
// dirty anonymous pages and then touching one more must evict the oldest
// without losing its contents.
func runSwapRoundtrip(k *kernel.Kernel, log *klog.Logger) {
	must(k.Sched.Create("main", kconfig.PriDefault, func(*thread.Thread) {
		vmm := vm.New(k.Pages, k.Swap, log)
		base := uintptr(0x08040000)
		n := k.Pages.Available()
		for i := 0; i < n; i++ {
			addr := base + uintptr(i)*kconfig.PageSize
			must0(vmm.CreateMapping(addr, nil, true, false, 0, 0))
			must0(vmm.Store(addr, byte(i)))
		}
		// One more page than there are frames; this forces the clock
		// hand to evict the first page written.
		extra := base + uintptr(n)*kconfig.PageSize
		must0(vmm.CreateMapping(extra, nil, true, false, 0, 0))
		must0(vmm.Store(extra, 0xff))

		b, err := vmm.Load(base)
		if err != nil {
			logToken(log, "swap-roundtrip-failed")
			return
		}
		if b == 0 {
			logToken(log, "swap-roundtrip-ok")
		} else {
			logToken(log, "swap-roundtrip-corrupted")
		}
	}))
	k.Start()
	k.Wait()
}

func must(_ *thread.Thread, err error) {
	if err != nil {
		panic(err)
	}
}

func must0(err error) {
	if err != nil {
		panic(err)
	}
}
