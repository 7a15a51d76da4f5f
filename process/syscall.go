package process

import (
	"sync"

	"github.com/sohnryang/pintos/kernelerr"
	"github.com/sohnryang/pintos/thread"
	"github.com/sohnryang/pintos/uaccess"
)

// fsLock is the single global filesystem lock spec.md §5 describes
// ("Filesystem: serialized by a single global lock held across every
// filesystem call") and §9 Design Notes calls out as kernel-global
// singleton state alongside the tid counter and swap subsystem. Every
// syscall handler that reaches the injected FileSystem or one of its File
// handles directly takes this lock for the duration of the call, matching
// the original kernel's filesys_lock, and Context.load takes it while
// opening the executable. Context.Exit (and so SysExit) closes the open
// files and the executable without taking it.
var fsLock sync.Mutex

// checkedString reads a NUL-terminated user string argument, failing the
// whole syscall (and the owning process, per spec.md §6: "on any validity
// failure the process exits with status -1") if the pointer is bad.
func (p *Context) checkedString(addr uintptr) (string, error) {
	s, err := uaccess.Strlcpy(p.vmm, addr)
	if err != nil {
		p.Exit(-1)
		return "", err
	}
	return s, nil
}

// SysHalt implements SYS_HALT: shut down the whole simulated kernel via
// the injected hook, or is a no-op if none was supplied.
func (p *Context) SysHalt() {
	if p.halt != nil {
		p.halt()
	}
}

// SysExit implements SYS_EXIT(status).
func (p *Context) SysExit(status int) {
	p.Exit(status)
}

// SysExec implements SYS_EXEC(cmd) -> pid: read the command line out of
// user memory and spawn a child the same way the top-level Execute does,
// reusing this process's loader/page-pool/evictor collaborators. Returns
// -1 (never blocks the caller beyond the child's load attempt) if the
// pointer is invalid or the child failed to load, exactly mirroring
// Execute's own load_sema handshake (spec.md §4.7).
func (p *Context) SysExec(caller *thread.Thread, cmdAddr uintptr) int {
	cmd, err := p.checkedString(cmdAddr)
	if err != nil {
		return -1
	}
	child, err := Execute(caller, p.sched, p.fs, p.loader, p.pages, p.evictor, p.log, cmd)
	if err != nil {
		return -1
	}
	return child.Pid()
}

// SysWait implements SYS_WAIT(pid) -> status.
func (p *Context) SysWait(caller *thread.Thread, pid int) int {
	status, err := p.Wait(caller, pid)
	if err != nil {
		return -1
	}
	return status
}

// SysCreate implements SYS_CREATE(name, initialSize) -> bool.
func (p *Context) SysCreate(nameAddr uintptr, initialSize int64) bool {
	name, err := p.checkedString(nameAddr)
	if err != nil {
		return false
	}
	fsLock.Lock()
	defer fsLock.Unlock()
	return p.fs.Create(name, initialSize)
}

// SysRemove implements SYS_REMOVE(name) -> bool.
func (p *Context) SysRemove(nameAddr uintptr) bool {
	name, err := p.checkedString(nameAddr)
	if err != nil {
		return false
	}
	fsLock.Lock()
	defer fsLock.Unlock()
	return p.fs.Remove(name)
}

// SysOpen implements SYS_OPEN(name) -> fd, allocating the smallest unused
// fd above the reserved keyboard/console slots (spec.md §3).
func (p *Context) SysOpen(nameAddr uintptr) int {
	name, err := p.checkedString(nameAddr)
	if err != nil {
		return -1
	}
	fsLock.Lock()
	f, err := p.fs.Open(name)
	fsLock.Unlock()
	if err != nil {
		return -1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openFdLocked(f)
}

// SysFilesize implements SYS_FILESIZE(fd) -> len.
func (p *Context) SysFilesize(fd int) int {
	p.mu.Lock()
	f, ok := p.fileForFdLocked(fd)
	p.mu.Unlock()
	if !ok {
		return -1
	}
	fsLock.Lock()
	defer fsLock.Unlock()
	return int(f.Len())
}

// SysRead implements SYS_READ(fd, buffer, length) -> n. fd 0 reads from
// the keyboard, one byte at a time, blocking on each (spec.md §6: "fd 0 is
// keyboard (blocking per-byte)"); any other fd reads through the
// filesystem lock in bursts of at most 128 bytes (ioChunk),
// advancing the file's cursor. Every destination byte is validated via
// package uaccess; an invalid buffer pointer kills the process.
func (p *Context) SysRead(fd int, bufAddr uintptr, length int) int {
	if fd == fdStdout {
		p.Exit(-1)
		return -1
	}
	if fd == fdStdin {
		return p.readKeyboard(bufAddr, length)
	}

	p.mu.Lock()
	f, ok := p.fileForFdLocked(fd)
	p.mu.Unlock()
	if !ok {
		return -1
	}

	total := 0
	for total < length {
		chunk := length - total
		if chunk > ioChunk {
			chunk = ioChunk
		}
		buf := make([]byte, chunk)

		fsLock.Lock()
		pos := f.Tell()
		n, err := f.ReadAt(buf, pos)
		if n > 0 {
			f.Seek(pos + int64(n))
		}
		fsLock.Unlock()

		if n > 0 {
			if err := uaccess.MemcpyToUser(p.vmm, bufAddr+uintptr(total), buf[:n]); err != nil {
				p.Exit(-1)
				return -1
			}
			total += n
		}
		if err != nil || n < chunk {
			break
		}
	}
	return total
}

// readKeyboard services fd 0: one blocking keyboard read per destination
// byte, exactly as many as the user asked for or until the keyboard
// source reports none left.
func (p *Context) readKeyboard(bufAddr uintptr, length int) int {
	if p.keyboard == nil {
		return 0
	}
	for i := 0; i < length; i++ {
		b, ok := p.keyboard()
		if !ok {
			return i
		}
		if err := uaccess.CopyByteToUser(p.vmm, bufAddr+uintptr(i), b); err != nil {
			p.Exit(-1)
			return -1
		}
	}
	return length
}

// SysWrite implements SYS_WRITE(fd, buffer, length) -> n. fd 1 is
// write-only console output, chunked in bursts of at most 128 bytes
// (spec.md §6); any other fd writes through the filesystem lock in the
// same burst size, advancing the file's cursor.
func (p *Context) SysWrite(fd int, bufAddr uintptr, length int) int {
	if fd == fdStdin {
		p.Exit(-1)
		return -1
	}
	if fd == fdStdout {
		return p.writeConsole(bufAddr, length)
	}

	p.mu.Lock()
	f, ok := p.fileForFdLocked(fd)
	p.mu.Unlock()
	if !ok {
		return -1
	}

	total := 0
	for total < length {
		chunk := length - total
		if chunk > ioChunk {
			chunk = ioChunk
		}
		buf := make([]byte, chunk)
		if err := uaccess.MemcpyFromUser(p.vmm, bufAddr+uintptr(total), buf); err != nil {
			p.Exit(-1)
			return -1
		}

		fsLock.Lock()
		pos := f.Tell()
		n, err := f.WriteAt(buf, pos)
		if n > 0 {
			f.Seek(pos + int64(n))
		}
		fsLock.Unlock()

		total += n
		if err != nil || n < chunk {
			break
		}
	}
	return total
}

func (p *Context) writeConsole(bufAddr uintptr, length int) int {
	total := 0
	for total < length {
		chunk := length - total
		if chunk > ioChunk {
			chunk = ioChunk
		}
		buf := make([]byte, chunk)
		if err := uaccess.MemcpyFromUser(p.vmm, bufAddr+uintptr(total), buf); err != nil {
			p.Exit(-1)
			return -1
		}
		if p.console != nil {
			p.console(buf)
		}
		total += chunk
	}
	return total
}

// SysSeek implements SYS_SEEK(fd, position).
func (p *Context) SysSeek(fd int, position int64) {
	p.mu.Lock()
	f, ok := p.fileForFdLocked(fd)
	p.mu.Unlock()
	if !ok {
		return
	}
	fsLock.Lock()
	f.Seek(position)
	fsLock.Unlock()
}

// SysTell implements SYS_TELL(fd) -> pos. spec.md §9 Open Question (c)
// notes that one lineage of the original dispatcher computed the offset
// but never wrote it back to the caller; this redesigned dispatcher
// always returns it.
func (p *Context) SysTell(fd int) int64 {
	p.mu.Lock()
	f, ok := p.fileForFdLocked(fd)
	p.mu.Unlock()
	if !ok {
		return -1
	}
	fsLock.Lock()
	defer fsLock.Unlock()
	return f.Tell()
}

// SysClose implements SYS_CLOSE(fd).
func (p *Context) SysClose(fd int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fsLock.Lock()
	defer fsLock.Unlock()
	p.closeFdLocked(fd)
}

// SyscallNumber enumerates the syscall numbers spec.md §6 lists, in the
// order the original kernel's syscall-nr.h defines them.
type SyscallNumber int

// Syscall numbers, matching the source's syscall-nr.h ordering.
const (
	SysNrHalt SyscallNumber = iota
	SysNrExit
	SysNrExec
	SysNrWait
	SysNrCreate
	SysNrRemove
	SysNrOpen
	SysNrFilesize
	SysNrRead
	SysNrWrite
	SysNrSeek
	SysNrTell
	SysNrClose
)

// InvalidSyscall reports an unrecognized syscall number (spec.md §7
// InvalidSyscall: "Process exits(-1)"), for a dispatcher built on top of
// the SysNr* table that receives a number outside SysNrHalt..SysNrClose.
func (p *Context) InvalidSyscall(nr SyscallNumber) error {
	p.Exit(-1)
	return kernelerr.Wrapf(kernelerr.ErrInvalidSyscall, "process: unknown syscall number %d", nr)
}
