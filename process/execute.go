package process

import (
	"encoding/binary"
	"strings"

	"github.com/sohnryang/pintos/kconfig"
	"github.com/sohnryang/pintos/kernelerr"
	"github.com/sohnryang/pintos/klog"
	"github.com/sohnryang/pintos/palloc"
	"github.com/sohnryang/pintos/thread"
	"github.com/sohnryang/pintos/uaccess"
	"github.com/sohnryang/pintos/vm"
)

const ptrSize = 4

// Execute implements spec.md §4.7 execute(cmd): tokenize cmd by spaces,
// create a child thread whose entry point opens and loads the named
// executable, pushes the argv vector onto its initial user stack, and
// signals load completion. The caller (which must be the currently
// running thread) blocks on the child's load_sema; if the load failed,
// the returned error wraps ErrBadExecutable and the child has already run
// its own exit sequence. On success the child is linked into caller's
// children list and its pid is the returned Context's Pid.
func Execute(caller *thread.Thread, sched *thread.Scheduler, fs FileSystem, loader Loader, pages *palloc.Pool, evictor vm.Evictor, log *klog.Logger, cmd string, opts ...Option) (*Context, error) {
	argv := strings.Fields(cmd)
	if len(argv) == 0 {
		return nil, kernelerr.Wrap(kernelerr.ErrBadExecutable, "process: empty command line")
	}
	name := argv[0]
	if log == nil {
		log = klog.Discard()
	}

	ctx := &Context{
		name:     name,
		fs:       fs,
		loader:   loader,
		pages:    pages,
		evictor:  evictor,
		sched:    sched,
		log:      log,
		loadSema: thread.NewSemaphore(0),
		exitSema: thread.NewSemaphore(0),
	}
	for _, opt := range opts {
		opt(ctx)
	}

	child, _ := sched.Create(name, kconfig.PriDefault, func(t *thread.Thread) {
		ctx.mu.Lock()
		ctx.pid = t.Tid()
		ctx.thread = t
		ctx.mu.Unlock()
		t.SetProcessContext(ctx)

		vmm := vm.New(pages, evictor, log)
		ctx.mu.Lock()
		ctx.vmm = vmm
		ctx.mu.Unlock()

		ok := ctx.load(vmm, fs, loader, argv)

		ctx.mu.Lock()
		ctx.loadSuccess = ok
		ctx.mu.Unlock()
		ctx.loadSema.Up(sched)

		if !ok {
			log.Err().Str("name", name).Log("process: load failed")
			ctx.Exit(-1)
		}
		// The interrupt-return into user mode, and the user program's own
		// execution, are out of scope (spec.md §1: "the x86 context switch
		// assembly" and "the system-call trampoline"). There is no program
		// body here: once the load finishes this function returns, the
		// thread exits, and NotifyThreadDying runs Exit(0), which tears
		// down the VMM.
	})
	ctx.thread = child

	if caller != nil {
		caller.AddChild(ctx)
	}

	ctx.loadSema.Down(caller)
	if !ctx.loadSuccess {
		return ctx, kernelerr.Wrap(kernelerr.ErrBadExecutable, "process: load failed")
	}
	return ctx, nil
}

// load opens the named executable, denies writes to it for the process's
// lifetime, hands it to loader, and on success materializes the first
// stack page and pushes argv onto it. It reports overall success.
func (p *Context) load(vmm *vm.Manager, fs FileSystem, loader Loader, argv []string) bool {
	fsLock.Lock()
	exe, err := fs.Open(argv[0])
	fsLock.Unlock()
	if err != nil {
		return false
	}
	exe.DenyWrite()
	p.mu.Lock()
	p.exeFile = exe
	p.mu.Unlock()

	if _, ok := loader.Load(exe, vmm); !ok {
		return false
	}

	stackPage := uintptr(kconfig.PhysBase) - kconfig.PageSize
	if err := vmm.CreateMapping(stackPage, nil, true, false, 0, 0); err != nil {
		return false
	}
	if _, err := pushArgv(vmm, uintptr(kconfig.PhysBase), argv); err != nil {
		return false
	}
	return true
}

// pushArgv writes argv onto the user stack below esp exactly as the
// original kernel's push_args does (original_source/src/userprog/
// process.c): argument strings written downward in reverse order, the
// stack pointer rounded down to a 4-byte boundary, a NULL sentinel, then
// pointers to each string in argv[0..argc-1] order (so argv[0] ends up
// lowest), then a pointer to that array, argc, and a dummy return address.
// It returns the final stack pointer a simulated interrupt-return would
// install into the user frame.
func pushArgv(vmm *vm.Manager, esp uintptr, argv []string) (uintptr, error) {
	sp := esp
	strAddr := make([]uintptr, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i]
		sp -= uintptr(len(s) + 1)
		if err := uaccess.MemcpyToUser(vmm, sp, []byte(s)); err != nil {
			return 0, err
		}
		if err := uaccess.CopyByteToUser(vmm, sp+uintptr(len(s)), 0); err != nil {
			return 0, err
		}
		strAddr[i] = sp
	}

	sp &^= uintptr(ptrSize - 1)

	sp -= ptrSize
	if err := writeUint32(vmm, sp, 0); err != nil {
		return 0, err
	}

	for i := len(argv) - 1; i >= 0; i-- {
		sp -= ptrSize
		if err := writeUint32(vmm, sp, uint32(strAddr[i])); err != nil {
			return 0, err
		}
	}
	argvBase := sp

	sp -= ptrSize
	if err := writeUint32(vmm, sp, uint32(argvBase)); err != nil {
		return 0, err
	}

	sp -= ptrSize
	if err := writeUint32(vmm, sp, uint32(len(argv))); err != nil {
		return 0, err
	}

	sp -= ptrSize
	if err := writeUint32(vmm, sp, 0); err != nil {
		return 0, err
	}

	return sp, nil
}

func writeUint32(vmm *vm.Manager, addr uintptr, v uint32) error {
	var b [ptrSize]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return uaccess.MemcpyToUser(vmm, addr, b[:])
}
