// Package vm implements the per-process demand-paged virtual memory
// manager of spec.md §4.5: a mapping table from user page to MmapInfo,
// fanning out to a shared Frame descriptor, materializing pages on fault
// from a file or from swap, and growing the user stack on a near-esp
// fault. Eviction itself (the clock algorithm and swap bitmap) lives in
// package swap, reached only through the Evictor interface below so the
// two packages don't import each other in a cycle — the same
// marker-interface technique package thread uses for ProcessContext.
package vm

import "github.com/sohnryang/pintos/kernelerr"

// Frame is the physical-frame descriptor of spec.md §3: the kernel
// mapping of one physical page, the set of MmapInfos that alias it, and
// its residency/swap bookkeeping. A Frame with kpage == nil is not
// resident: it is either a stub (nothing to restore) or swapped out.
type Frame struct {
	kpage        []byte
	mappings     []*MmapInfo
	isStub       bool
	isSwappedOut bool
	swapSector   uint64
	dirty        bool
}

// Resident reports whether the frame currently has a backing physical
// page (spec.md invariant 7: "A frame is in active_frames iff kpage !=
// unset and is_swapped_out = false").
func (f *Frame) Resident() bool { return f.kpage != nil }

// IsStub reports whether the frame holds no content to restore: it was
// never materialized, or ClearResident dropped its page after a discard
// or a write-back to its file, so the next fault re-reads the file or
// zero-fills the page.
func (f *Frame) IsStub() bool { return f.isStub }

// IsSwappedOut reports whether the frame's content currently lives in
// swap rather than physical memory.
func (f *Frame) IsSwappedOut() bool { return f.isSwappedOut }

// SwapSector returns the first swap sector holding this frame's content,
// valid only while IsSwappedOut is true.
func (f *Frame) SwapSector() uint64 { return f.swapSector }

// Dirty reports whether the frame's content has been written to since it
// was last materialized or written back.
func (f *Frame) Dirty() bool { return f.dirty }

// Kpage returns the frame's resident backing buffer, or nil if the frame
// is not currently resident. Package swap uses this to read content out
// before eviction and to write content back in on fault.
func (f *Frame) Kpage() []byte { return f.kpage }

// Mappings returns a snapshot of the MmapInfos aliasing this frame
// (spec.md invariant 8: "For each MmapInfo m, m.frame.mappings contains
// m").
func (f *Frame) Mappings() []*MmapInfo {
	out := make([]*MmapInfo, len(f.mappings))
	copy(out, f.mappings)
	return out
}

func (f *Frame) addMapping(m *MmapInfo) {
	f.mappings = append(f.mappings, m)
}

func (f *Frame) removeMapping(m *MmapInfo) {
	for i, mm := range f.mappings {
		if mm == m {
			f.mappings = append(f.mappings[:i], f.mappings[i+1:]...)
			return
		}
	}
}

// setResident installs kpage as the frame's backing storage, clearing
// both the stub and swapped-out flags.
func (f *Frame) setResident(kpage []byte) {
	f.kpage = kpage
	f.isStub = false
	f.isSwappedOut = false
	f.dirty = false
}

// ClearResident discards the frame's backing storage without recording a
// swap sector (used when a read-only executable page is discarded rather
// than written back, spec.md §4.6). The caller is responsible for
// returning the previously-held kpage buffer to the page pool.
func (f *Frame) ClearResident() {
	f.kpage = nil
	f.isStub = true
	f.dirty = false
}

// MarkSwappedOut records that the frame's content now lives at sector,
// discarding the kpage buffer. The caller is responsible for returning the
// previously-held kpage buffer to the page pool.
func (f *Frame) MarkSwappedOut(sector uint64) {
	f.kpage = nil
	f.isStub = false
	f.isSwappedOut = true
	f.swapSector = sector
	f.dirty = false
}

// DirtyFileBackedMapping returns the frame's file-backed, non-executable
// alias if the frame is dirty, or nil if there is none (spec.md §4.6: "At
// most one aliased file-backed mapping may be dirty at a time").
func (f *Frame) DirtyFileBackedMapping() *MmapInfo {
	if !f.dirty {
		return nil
	}
	var dirty *MmapInfo
	for _, m := range f.mappings {
		if m.Anonymous() || m.ExeMapping() {
			continue
		}
		kernelerr.Assert(dirty == nil, "vm: more than one dirty file-backed alias on one frame")
		dirty = m
	}
	return dirty
}

// AllExecutable reports whether every alias of the frame is a read-only
// executable mapping, the condition under which eviction discards the
// frame outright instead of writing it back or swapping it out (spec.md
// §4.6).
func (f *Frame) AllExecutable() bool {
	if len(f.mappings) == 0 {
		return false
	}
	for _, m := range f.mappings {
		if !m.ExeMapping() {
			return false
		}
	}
	return true
}
