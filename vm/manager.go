package vm

import (
	"sync"

	"github.com/sohnryang/pintos/kconfig"
	"github.com/sohnryang/pintos/kernelerr"
	"github.com/sohnryang/pintos/klog"
	"github.com/sohnryang/pintos/palloc"
)

// PTEState is the tri-state of a simulated page-table entry spec.md §4.5
// calls for: "a stub PTE is present-bit-clear but carries the writable
// flag so the fault handler can distinguish 'known mapping' from
// 'illegal access'". The original names this pagedir_set_page_stub.
type PTEState int

const (
	// PTEAbsent means no mapping exists at this address at all.
	PTEAbsent PTEState = iota
	// PTEStub means a mapping is declared but never yet materialized.
	PTEStub
	// PTEResident means the page is backed by a physical frame right now.
	PTEResident
)

// Evictor is the global eviction collaborator a Manager calls into when
// the page allocator has no free frame (package swap's clock algorithm,
// spec.md §4.6). Defining it here rather than importing package swap
// directly avoids an import cycle, since swap's eviction logic needs the
// concrete *Frame/*MmapInfo types this package defines.
type Evictor interface {
	// Register adds f to the system-wide active-frame list once it has
	// become resident.
	Register(f *Frame)
	// Evict selects a victim via the clock algorithm, deactivates it
	// (writing it back to its file or to swap as spec.md §4.6 dictates),
	// and returns its freed kpage buffer directly to the caller for
	// immediate reuse (no trip through the shared page pool). ok is
	// false if no frame is currently resident anywhere, or if the victim
	// could not be written back or swapped out.
	Evict() (kpage []byte, ok bool)
	// Deactivate releases f on process teardown (spec.md §4.7): a dirty
	// file-backed page is still flushed to its file, a swapped-out page
	// just has its slot released, and anything else is discarded outright
	// rather than written to swap, since the owning process is gone.
	Deactivate(f *Frame) error
	// ReadIn reads a previously-evicted frame's content into kpage (which
	// must be exactly page-size bytes) and releases its swap slot.
	ReadIn(f *Frame, kpage []byte) error
}

// Manager is one process's virtual memory manager (spec.md §4.5): a
// mapping table keyed by page-aligned user address, the frames it owns,
// and the current user stack pointer used to recognize stack-growth
// faults. Accessed only by the owning thread plus, conceptually, one
// interrupt-initiated page fault for that same thread (spec.md §5); mu
// exists only because this simulation runs each thread on its own
// goroutine and a fault may race a concurrent Destroy from process exit.
type Manager struct {
	mu sync.Mutex

	mappings map[uintptr]*MmapInfo
	frames   []*Frame

	pages   *palloc.Pool
	evictor Evictor
	log     *klog.Logger

	esp uintptr
}

// New returns an empty Manager drawing physical frames from pages and
// evicting through evictor.
func New(pages *palloc.Pool, evictor Evictor, log *klog.Logger) *Manager {
	if log == nil {
		log = klog.Discard()
	}
	return &Manager{
		mappings: make(map[uintptr]*MmapInfo),
		pages:    pages,
		evictor:  evictor,
		log:      log,
		esp:      kconfig.PhysBase,
	}
}

func roundDownPage(addr uintptr) uintptr {
	return addr &^ uintptr(kconfig.PageSize-1)
}

// SetStackPointer records the process's current user esp, consulted by a
// subsequent fault to decide whether it is a legitimate stack-growth
// request (spec.md §4.5, §6).
func (m *Manager) SetStackPointer(esp uintptr) {
	m.mu.Lock()
	m.esp = esp
	m.mu.Unlock()
}

// CreateMapping installs a new mapping at upage (vmm_create_anonymous /
// vmm_create_file_map), refusing if the page is already mapped. Passing a
// nil file creates an anonymous mapping; otherwise the mapping is
// file-backed, reading mappedSize bytes (<= page size) from offset.
func (m *Manager) CreateMapping(upage uintptr, file FileBacking, writable, exeMapping bool, offset int64, mappedSize int) error {
	kernelerr.Assertf(upage == roundDownPage(upage), "CreateMapping: upage %#x is not page-aligned", upage)
	kernelerr.Assertf(mappedSize <= kconfig.PageSize, "CreateMapping: mappedSize %d exceeds page size", mappedSize)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.mappings[upage]; exists {
		return kernelerr.Wrapf(kernelerr.ErrInvalidUserPointer, "vm: %#x already mapped", upage)
	}

	frame := &Frame{isStub: true}
	info := &MmapInfo{
		upage:      upage,
		file:       file,
		writable:   writable,
		exeMapping: exeMapping,
		offset:     offset,
		mappedSize: mappedSize,
		frame:      frame,
	}
	frame.addMapping(info)

	m.mappings[upage] = info
	m.frames = append(m.frames, frame)
	return nil
}

// PTEState reports the tri-state of the mapping covering addr.
func (m *Manager) PTEState(addr uintptr) PTEState {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.mappings[roundDownPage(addr)]
	if !ok {
		return PTEAbsent
	}
	if info.frame.Resident() {
		return PTEResident
	}
	return PTEStub
}

// isStackGrowthLocked reports whether a fault at addr is a legitimate
// stack-extension request: at most STACK_GROW_LIMIT bytes below the
// current esp (an address at or above esp also qualifies), and within
// [PHYS_BASE - 8 MiB, PHYS_BASE) (spec.md §4.5, §6). Caller holds m.mu.
func (m *Manager) isStackGrowthLocked(addr uintptr) bool {
	if m.esp > addr && m.esp-addr > kconfig.StackGrowLimit {
		return false
	}
	lowerBound := uintptr(kconfig.PhysBase) - uintptr(kconfig.MaxStackBytes)
	return addr >= lowerBound && addr < uintptr(kconfig.PhysBase)
}

// ensureResidentLocked implements the page fault handler of spec.md §4.5:
// look up (or, for a stack-growth address, create) the mapping covering
// addr, then materialize its frame if it is not already resident,
// evicting a victim first if the page pool is exhausted. Caller holds
// m.mu.
func (m *Manager) ensureResidentLocked(addr uintptr) (*MmapInfo, error) {
	upage := roundDownPage(addr)
	info, ok := m.mappings[upage]
	if !ok {
		if !m.isStackGrowthLocked(addr) {
			return nil, kernelerr.Wrapf(kernelerr.ErrInvalidUserPointer, "vm: unmapped address %#x", addr)
		}
		frame := &Frame{isStub: true}
		info = &MmapInfo{upage: upage, writable: true, frame: frame}
		frame.addMapping(info)
		m.mappings[upage] = info
		m.frames = append(m.frames, frame)
		m.log.Debug().Log("vm: grew user stack")
	}

	if info.frame.Resident() {
		return info, nil
	}

	kpage := m.pages.GetPage()
	if kpage == nil {
		var freed bool
		kpage, freed = m.evictor.Evict()
		if !freed {
			return nil, kernelerr.Wrap(kernelerr.ErrOutOfMemory, "vm: no frame available and nothing evictable")
		}
	}

	if err := m.materializeLocked(info, kpage); err != nil {
		m.pages.FreePage(kpage)
		return nil, err
	}

	info.frame.setResident(kpage)
	m.evictor.Register(info.frame)
	return info, nil
}

// materializeLocked fills kpage with the correct initial content for
// info's mapping: read back from swap, read from the backing file
// (zero-filling the tail), or a zeroed anonymous page, per spec.md §4.5
// steps 1-3. Caller holds m.mu.
func (m *Manager) materializeLocked(info *MmapInfo, kpage []byte) error {
	switch {
	case info.frame.IsSwappedOut():
		return m.evictor.ReadIn(info.frame, kpage)
	case info.file != nil:
		n, err := info.file.ReadAt(kpage[:info.mappedSize], info.offset)
		if err != nil && n == 0 {
			return kernelerr.Wrap(kernelerr.ErrIoFailure, "vm: reading file-backed page")
		}
		for i := n; i < len(kpage); i++ {
			kpage[i] = 0
		}
		return nil
	default:
		for i := range kpage {
			kpage[i] = 0
		}
		return nil
	}
}

// Load reads the byte at user virtual address addr, materializing its
// backing frame on demand. It is the VMM-side probe package uaccess
// builds CopyByteFromUser on (spec.md §4.8, Design Notes).
func (m *Manager) Load(addr uintptr) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, err := m.ensureResidentLocked(addr)
	if err != nil {
		return 0, err
	}
	info.markAccessed()
	return info.frame.kpage[addr-info.upage], nil
}

// Store writes b to user virtual address addr, materializing its backing
// frame on demand. Writing to a non-writable mapping is treated as an
// invalid access, mirroring a real write-protection fault.
func (m *Manager) Store(addr uintptr, b byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, err := m.ensureResidentLocked(addr)
	if err != nil {
		return err
	}
	if !info.writable {
		return kernelerr.Wrapf(kernelerr.ErrInvalidUserPointer, "vm: write to read-only page %#x", info.upage)
	}
	info.markAccessed()
	info.frame.kpage[addr-info.upage] = b
	info.frame.dirty = true
	return nil
}

// Destroy tears down every mapping this process owns, per spec.md §4.7
// "tear down VMM (eviction of mappings first, then free)": each resident
// frame flushes dirty file-backed content back to its file before its page
// is returned to the shared pool; a frame already swapped out just has its
// slot released, so no swap space is leaked by a dying process. Unlike a
// live eviction, a resident anonymous page is simply discarded rather than
// written to swap, since the process will never fault it back in.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.frames {
		if err := m.evictor.Deactivate(f); err != nil {
			m.log.Err().Err(err).Log("vm: error deactivating frame on process exit")
		}
	}
	m.mappings = make(map[uintptr]*MmapInfo)
	m.frames = nil
}
