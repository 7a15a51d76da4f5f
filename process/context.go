// Package process implements the durable process context and user-program
// lifecycle of spec.md §4.7: pid, exit status, the parent/child handshake
// semaphores, the file-descriptor table, and the checked system-call
// dispatch that sits on top of package uaccess and package vm. The file
// system, ELF loader, and keyboard/console devices are out of scope
// collaborators (spec.md §1); this package only consumes the narrow
// interfaces below, the same way package vm only consumes FileBacking.
package process

import (
	"sort"
	"sync"

	"github.com/sohnryang/pintos/kernelerr"
	"github.com/sohnryang/pintos/klog"
	"github.com/sohnryang/pintos/palloc"
	"github.com/sohnryang/pintos/thread"
	"github.com/sohnryang/pintos/vm"
)

// File is the per-descriptor surface the out-of-scope file system must
// provide: vm.FileBacking for mmap/exe-load plus the cursor and deny-write
// operations spec.md §3's exe_file and §6's read/write/seek/tell rely on.
type File interface {
	vm.FileBacking
	Seek(pos int64)
	Tell() int64
	Close() error
	DenyWrite()
	AllowWrite()
}

// FileSystem is the out-of-scope filesystem collaborator of spec.md §1,
// serialized in the original kernel by a single global lock (§5); the
// syscall handlers of this package take the package-level fsLock around
// their calls into it.
type FileSystem interface {
	Create(name string, initialSize int64) bool
	Remove(name string) bool
	Open(name string) (File, error)
}

// Loader installs an executable's segments into a freshly built address
// space, standing in for the out-of-scope ELF loader (spec.md §1, §4.7).
// It reports the program's entry point and whether the load succeeded.
type Loader interface {
	Load(exe File, vmm *vm.Manager) (entry uintptr, ok bool)
}

const (
	fdStdin    = 0
	fdStdout   = 1
	fdReserved = 2
	ioChunk    = 128
)

type fdEntry struct {
	fd   int
	file File
}

// Context is the durable portion of a running user program (spec.md §3
// "Process context"): the part of a process that outlives its thread long
// enough for the parent to reap it via Wait. The zero value is not usable;
// build one through Execute.
type Context struct {
	mu sync.Mutex

	pid         int
	name        string
	exitCode    int
	exited      bool
	loadSuccess bool

	loadSema *thread.Semaphore
	exitSema *thread.Semaphore

	fds     []fdEntry
	exeFile File

	vmm *vm.Manager
	fs  FileSystem

	loader  Loader
	pages   *palloc.Pool
	evictor vm.Evictor

	thread *thread.Thread
	sched  *thread.Scheduler
	log    *klog.Logger

	keyboard func() (byte, bool)
	console  func([]byte)
	halt     func()
}

// Option configures optional collaborators a Context's syscalls reach for.
type Option func(*Context)

// WithKeyboard supplies the blocking, per-byte keyboard source fd 0 reads
// from. Without one, reads from fd 0 return zero bytes (immediate EOF).
func WithKeyboard(read func() (byte, bool)) Option {
	return func(c *Context) { c.keyboard = read }
}

// WithConsole supplies the sink fd 1 writes chunk their bytes to. Without
// one, writes to fd 1 are silently discarded.
func WithConsole(write func([]byte)) Option {
	return func(c *Context) { c.console = write }
}

// WithHalt supplies the whole-kernel shutdown hook SYS_HALT invokes.
func WithHalt(halt func()) Option {
	return func(c *Context) { c.halt = halt }
}

// Pid returns the process's pid, equal to its thread's tid (spec.md §3).
func (p *Context) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// Name returns the process's program name.
func (p *Context) Name() string { return p.name }

// Exited reports whether the process has already run its exit sequence.
func (p *Context) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

// ExitCode returns the process's exit status, valid once Exited is true.
func (p *Context) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// VMM returns the process's virtual memory manager.
func (p *Context) VMM() *vm.Manager { return p.vmm }

// NotifyThreadDying implements thread.ProcessContext. It is the backstop
// for a user program that never reached an explicit exit syscall (e.g. an
// unhandled page fault forced the thread down); exit(0) is a no-op if
// SysExit or a fault handler already ran the exit sequence, since Exit is
// idempotent.
func (p *Context) NotifyThreadDying() {
	p.Exit(0)
}

// Exit implements spec.md §4.7 exit(status): close every file descriptor,
// release the write-deny on the executable and close it, tear down the
// VMM, record the exit code, and signal the parent's exit_sema exactly
// once. Safe to call more than once (the first call wins) since both the
// explicit SYS_EXIT path and the thread-dying backstop may reach it.
func (p *Context) Exit(status int) {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	p.exited = true
	p.exitCode = status
	fds := p.fds
	p.fds = nil
	exe := p.exeFile
	p.exeFile = nil
	vmm := p.vmm
	p.mu.Unlock()

	for _, e := range fds {
		e.file.Close()
	}
	if exe != nil {
		exe.AllowWrite()
		exe.Close()
	}
	if vmm != nil {
		vmm.Destroy()
	}

	p.log.Info().Str("name", p.name).Int("pid", p.pid).Int("status", status).Log("process exited")
	p.exitSema.Up(p.sched)
}

// Wait implements spec.md §4.7 wait(pid): if pid does not name a child of
// caller, fail immediately. Otherwise block on the child's exit_sema,
// reap its exit code, and unlink it from caller's children list so a
// second wait on the same pid fails (the child no longer appears in
// caller's children).
func (p *Context) Wait(caller *thread.Thread, pid int) (int, error) {
	var child *Context
	for _, c := range caller.Children() {
		if pc, ok := c.(*Context); ok && pc.Pid() == pid {
			child = pc
			break
		}
	}
	if child == nil {
		return -1, kernelerr.Wrapf(kernelerr.ErrInvalidSyscall, "process: %d is not a child of %q", pid, caller.Name())
	}
	child.exitSema.Down(caller)
	caller.RemoveChild(child)
	return child.ExitCode(), nil
}

func (p *Context) fileForFdLocked(fd int) (File, bool) {
	for _, e := range p.fds {
		if e.fd == fd {
			return e.file, true
		}
	}
	return nil, false
}

// nextFreeFdLocked returns the smallest fd at or above fdReserved not
// already in use, per spec.md §3 "fd allocation uses the smallest unused
// positive integer above the reserved slots." p.fds is kept sorted by fd,
// so the first gap in the sequence fdReserved, fdReserved+1, ... is the
// answer.
func (p *Context) nextFreeFdLocked() int {
	fd := fdReserved
	for _, e := range p.fds {
		if e.fd != fd {
			break
		}
		fd++
	}
	return fd
}

func (p *Context) openFdLocked(f File) int {
	fd := p.nextFreeFdLocked()
	p.fds = append(p.fds, fdEntry{fd: fd, file: f})
	sort.Slice(p.fds, func(i, j int) bool { return p.fds[i].fd < p.fds[j].fd })
	return fd
}

func (p *Context) closeFdLocked(fd int) {
	for i, e := range p.fds {
		if e.fd == fd {
			e.file.Close()
			p.fds = append(p.fds[:i], p.fds[i+1:]...)
			return
		}
	}
}
