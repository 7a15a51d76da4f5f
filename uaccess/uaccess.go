// Package uaccess implements the fault-tolerant user-memory copy
// primitives of spec.md §4.8: every byte moved between kernel and user
// space must tolerate the user side not being (yet) mapped. The original
// kernel does this with inline assembly and a page-fault fixup trampoline
// (spec.md Design Notes); this rewrite instead takes the "VMM-side probe
// that validates the PTE chain before the copy" alternative the Design
// Notes call out, driving package vm's Load/Store directly. vm.Manager
// already does exactly the work a real fault handler would do on a
// checked access (materializing a stub or growing the stack), so routing
// through it gives the same semantics without inline assembly.
package uaccess

import (
	"github.com/sohnryang/pintos/kconfig"
	"github.com/sohnryang/pintos/kernelerr"
	"github.com/sohnryang/pintos/vm"
)

// checkRange rejects an access that would cross into kernel space
// (addr+n > PHYS_BASE), matching the original's get_user/put_user bound
// check before it ever touches the page tables.
func checkRange(addr uintptr, n int) error {
	if addr >= kconfig.PhysBase || uintptr(n) > kconfig.PhysBase-addr {
		return kernelerr.Wrapf(kernelerr.ErrInvalidUserPointer, "uaccess: address range [%#x,%#x) outside user space", addr, addr+uintptr(n))
	}
	return nil
}

// CopyByteFromUser reads the byte at the user virtual address uaddr,
// materializing its backing frame on demand (spec.md §4.8). It fails with
// kernelerr.ErrInvalidUserPointer if uaddr is outside user space or has no
// valid mapping (stack-growth addresses are still accepted, per vm.Manager
// semantics).
func CopyByteFromUser(vmm *vm.Manager, uaddr uintptr) (byte, error) {
	if err := checkRange(uaddr, 1); err != nil {
		return 0, err
	}
	return vmm.Load(uaddr)
}

// CopyByteToUser writes b to the user virtual address uaddr, materializing
// its backing frame on demand. It fails if uaddr is outside user space, has
// no valid mapping, or names a read-only page.
func CopyByteToUser(vmm *vm.Manager, uaddr uintptr, b byte) error {
	if err := checkRange(uaddr, 1); err != nil {
		return err
	}
	return vmm.Store(uaddr, b)
}

// MemcpyFromUser copies len(dst) bytes starting at the user virtual
// address uaddr into dst, checking every byte (spec.md §4.8 "fixed-length
// memcpy in each direction (both endpoints checked)"). It stops and
// returns an error at the first faulting byte.
func MemcpyFromUser(vmm *vm.Manager, uaddr uintptr, dst []byte) error {
	if err := checkRange(uaddr, len(dst)); err != nil {
		return err
	}
	for i := range dst {
		b, err := vmm.Load(uaddr + uintptr(i))
		if err != nil {
			return err
		}
		dst[i] = b
	}
	return nil
}

// MemcpyToUser copies every byte of src to the user virtual address uaddr,
// checking every byte.
func MemcpyToUser(vmm *vm.Manager, uaddr uintptr, src []byte) error {
	if err := checkRange(uaddr, len(src)); err != nil {
		return err
	}
	for i, b := range src {
		if err := vmm.Store(uaddr+uintptr(i), b); err != nil {
			return err
		}
	}
	return nil
}

// maxUserString bounds Strlen/Strlcpy's scan so a missing NUL terminator
// in a malicious or buggy user buffer can't spin the kernel forever; the
// original kernel has the same implicit bound by virtue of running out of
// mapped user address space.
const maxUserString = 4096

// Strlen returns the length of the NUL-terminated string at the user
// virtual address uaddr, not counting the terminator, used by
// system-call argument unmarshalling (spec.md §4.8). It fails if the scan
// runs off user space, hits an unmapped byte, or finds no terminator
// within maxUserString bytes.
func Strlen(vmm *vm.Manager, uaddr uintptr) (int, error) {
	for i := 0; i < maxUserString; i++ {
		b, err := CopyByteFromUser(vmm, uaddr+uintptr(i))
		if err != nil {
			return 0, err
		}
		if b == 0 {
			return i, nil
		}
	}
	return 0, kernelerr.Wrapf(kernelerr.ErrInvalidUserPointer, "uaccess: string at %#x exceeds %d bytes with no terminator", uaddr, maxUserString)
}

// Strlcpy reads the NUL-terminated string at the user virtual address
// uaddr into a freshly allocated Go string, bounded by maxUserString
// bytes, mirroring the bounded strlcpy helper spec.md §4.8 calls for.
func Strlcpy(vmm *vm.Manager, uaddr uintptr) (string, error) {
	n, err := Strlen(vmm, uaddr)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if err := MemcpyFromUser(vmm, uaddr, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
