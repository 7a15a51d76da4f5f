// Package swap implements the global clock-hand eviction policy and swap
// bitmap of spec.md §4.6, grounded on the original kernel's vm/swap.c
// (bitmap_scan_and_flip over a block device discovered by BLOCK_SWAP
// role) and vm/frame.c (the active-frame list the clock hand walks). A
// single Swapper instance is shared by every process's vm.Manager,
// exactly mirroring the original's file-scope swap_lock guarding one
// system-wide active_frames list, clock_hand, and swap_block_map
// (spec.md §4.6 invariants, §5 "Swap subsystem: single lock").
package swap

import (
	"sync"

	"github.com/sohnryang/pintos/blockdev"
	"github.com/sohnryang/pintos/kconfig"
	"github.com/sohnryang/pintos/kernelerr"
	"github.com/sohnryang/pintos/klog"
	"github.com/sohnryang/pintos/palloc"
	"github.com/sohnryang/pintos/vm"
)

// Swapper owns the active-frame list, clock hand, and swap slot bitmap.
// It implements vm.Evictor. The zero value is not usable; build one with
// New.
type Swapper struct {
	mu sync.Mutex

	pages *palloc.Pool
	dev   blockdev.Device
	log   *klog.Logger

	active []*vm.Frame
	hand   int

	slotFree []bool // false => occupied, indexed by page-slot (not sector)
}

// New returns a Swapper drawing victim pages from pages and, if dev is
// non-nil, writing swapped-out content to dev (the device registered
// under blockdev.RoleSwap). A nil dev models "swap_present = false" in
// the original kernel: Evict still runs (discarding exe pages and
// writing back dirty file-backed ones), but when the victim would have
// to be swapped out there is no slot to allocate, so Evict logs an
// ErrOutOfMemory failure and returns ok == false.
func New(pages *palloc.Pool, dev blockdev.Device, log *klog.Logger) *Swapper {
	if log == nil {
		log = klog.Discard()
	}
	s := &Swapper{pages: pages, dev: dev, log: log}
	if dev != nil {
		slots := dev.NumSectors() / kconfig.SectorsPerPage
		s.slotFree = make([]bool, slots)
		for i := range s.slotFree {
			s.slotFree[i] = true
		}
	}
	return s
}

// Register adds f to the active-frame list (swap_register_frame).
func (s *Swapper) Register(f *vm.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = append(s.active, f)
}

// unregisterLocked removes f from the active list, fixing up the clock
// hand if it pointed at or past the removed element. Caller holds s.mu.
func (s *Swapper) unregisterLocked(f *vm.Frame) {
	for i, af := range s.active {
		if af == f {
			s.active = append(s.active[:i], s.active[i+1:]...)
			if s.hand > i || s.hand >= len(s.active) {
				if s.hand > 0 {
					s.hand--
				}
			}
			return
		}
	}
}

// findVictimLocked implements the clock algorithm (swap_find_victim):
// advance the hand past every frame with at least one accessed alias,
// clearing those accessed bits along the way, until landing on one with
// none. Caller holds s.mu.
func (s *Swapper) findVictimLocked() (*vm.Frame, bool) {
	if len(s.active) == 0 {
		return nil, false
	}
	if s.hand >= len(s.active) {
		s.hand = 0
	}

	for range s.active {
		f := s.active[s.hand]
		accessed := false
		for _, m := range f.Mappings() {
			if m.Accessed() {
				accessed = true
				m.ClearAccessed()
			}
		}
		if !accessed {
			return f, true
		}
		s.hand = (s.hand + 1) % len(s.active)
	}
	// Every frame had its accessed bit set on this sweep; the one the
	// hand now rests on has had its bit just cleared, so take it.
	return s.active[s.hand], true
}

// deactivateLocked implements deactivate_frame (spec.md §4.6): clear every
// alias so future accesses fault, then either flush a dirty file-backed
// page back to its file, discard a read-only executable page, or swap an
// anonymous/modified page out, since it may still be faulted back in by
// the owning process. It removes f from the active list but leaves
// disposal of its kpage buffer to the caller, which reads f.Kpage() before
// calling this and decides for itself whether to recycle the buffer
// directly (Evict) or return it to the shared pool. Caller holds s.mu.
func (s *Swapper) deactivateLocked(f *vm.Frame) error {
	s.unregisterLocked(f)

	switch dirty := f.DirtyFileBackedMapping(); {
	case dirty != nil:
		if _, err := dirty.File().WriteAt(f.Kpage()[:dirty.MappedSize()], dirty.Offset()); err != nil {
			return kernelerr.Wrapf(kernelerr.ErrIoFailure, "swap: writing back file-backed page: %v", err)
		}
		f.ClearResident()

	case f.AllExecutable():
		f.ClearResident()

	default:
		sector, err := s.allocSlotLocked()
		if err != nil {
			return err
		}
		if err := s.writeOutLocked(f, sector); err != nil {
			return err
		}
		f.MarkSwappedOut(sector)
	}
	return nil
}

// Evict selects a victim via the clock algorithm and deactivates it,
// handing its kpage buffer directly back to the caller for reuse without
// a round trip through the shared pool (swap_find_victim +
// deactivate_frame, spec.md §4.6).
func (s *Swapper) Evict() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.findVictimLocked()
	if !ok {
		return nil, false
	}
	kpage := f.Kpage()
	if err := s.deactivateLocked(f); err != nil {
		s.log.Err().Err(err).Log("swap: eviction failed")
		s.pages.FreePage(kpage)
		return nil, false
	}
	return kpage, true
}

// Deactivate releases a single frame on process teardown (spec.md §4.7), a
// simpler policy than eviction: a dirty file-backed page is still flushed
// to its file, but everything else is discarded outright rather than
// swapped out, since the owning process is gone and nothing will ever
// fault it back in. A frame already swapped out just has its slot
// released; a frame never materialized is a no-op.
func (s *Swapper) Deactivate(f *vm.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.IsSwappedOut() {
		s.freeSlotLocked(f.SwapSector())
		return nil
	}
	if !f.Resident() {
		return nil
	}

	s.unregisterLocked(f)
	kpage := f.Kpage()
	defer s.pages.FreePage(kpage)

	if dirty := f.DirtyFileBackedMapping(); dirty != nil {
		if _, err := dirty.File().WriteAt(kpage[:dirty.MappedSize()], dirty.Offset()); err != nil {
			f.ClearResident()
			return kernelerr.Wrapf(kernelerr.ErrIoFailure, "swap: writing back file-backed page: %v", err)
		}
	}
	f.ClearResident()
	return nil
}

// ReadIn reads a previously-evicted frame's content back from swap into
// kpage and releases its slot (swap_read_frame + swap_free_frame,
// spec.md §4.5 step 1).
func (s *Swapper) ReadIn(f *vm.Frame, kpage []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kernelerr.Assert(s.dev != nil, "swap: ReadIn called with no swap device present")
	sector := f.SwapSector()
	sectorSize := s.dev.SectorSize()
	for i := 0; i < kconfig.SectorsPerPage; i++ {
		if err := s.dev.ReadSector(sector+uint64(i), kpage[i*sectorSize:(i+1)*sectorSize]); err != nil {
			return kernelerr.Wrapf(kernelerr.ErrIoFailure, "swap: reading sector %d: %v", sector+uint64(i), err)
		}
	}
	s.freeSlotLocked(sector)
	return nil
}

// allocSlotLocked finds and claims a free SECTORS_PER_PAGE-sized run in
// the swap bitmap, returning its first sector (bitmap_scan_and_flip).
func (s *Swapper) allocSlotLocked() (uint64, error) {
	if s.dev == nil {
		return 0, kernelerr.Wrap(kernelerr.ErrOutOfMemory, "swap: no swap device present")
	}
	for slot, free := range s.slotFree {
		if free {
			s.slotFree[slot] = false
			return uint64(slot) * kconfig.SectorsPerPage, nil
		}
	}
	return 0, kernelerr.Wrap(kernelerr.ErrOutOfMemory, "swap: swap space exhausted")
}

func (s *Swapper) freeSlotLocked(sector uint64) {
	s.slotFree[sector/kconfig.SectorsPerPage] = true
}

// writeOutLocked writes f's resident content out to the swap slot
// starting at sector (swap_write_frame). Caller holds s.mu.
func (s *Swapper) writeOutLocked(f *vm.Frame, sector uint64) error {
	sectorSize := s.dev.SectorSize()
	kpage := f.Kpage()
	for i := 0; i < kconfig.SectorsPerPage; i++ {
		if err := s.dev.WriteSector(sector+uint64(i), kpage[i*sectorSize:(i+1)*sectorSize]); err != nil {
			return kernelerr.Wrapf(kernelerr.ErrIoFailure, "swap: writing sector %d: %v", sector+uint64(i), err)
		}
	}
	return nil
}

// ActiveLen returns the number of frames currently resident system-wide,
// used by tests asserting spec.md invariant 7.
func (s *Swapper) ActiveLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
