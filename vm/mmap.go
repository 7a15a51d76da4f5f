package vm

// FileBacking is the minimal surface package vm needs from the
// out-of-scope file system collaborator (spec.md §1: file_read/
// file_write/file_seek/file_length), expressed as the idiomatic
// io.ReaderAt/io.WriterAt shape instead of a seek-then-read/write pair.
type FileBacking interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Len() int64
}

// MmapInfo is the mapping of one user virtual page to either anonymous,
// zero-initialized memory or a region of a file (spec.md §3). It
// resolves to exactly one Frame, which it may share with other MmapInfos
// of the same process.
type MmapInfo struct {
	upage uintptr

	file       FileBacking
	writable   bool
	exeMapping bool
	offset     int64
	mappedSize int

	frame *MmapInfoFrame

	accessed bool
}

// MmapInfoFrame is an alias for *Frame, named distinctly in this file so
// the mapping/frame relationship documented in spec.md §3 reads the same
// way here as in the data model (m.frame.mappings contains m).
type MmapInfoFrame = Frame

// Upage returns the page-aligned user virtual address this mapping
// covers.
func (m *MmapInfo) Upage() uintptr { return m.upage }

// Anonymous reports whether the mapping has no backing file.
func (m *MmapInfo) Anonymous() bool { return m.file == nil }

// Writable reports whether user code may write through this mapping.
func (m *MmapInfo) Writable() bool { return m.writable }

// ExeMapping reports whether this is a read-only executable mapping,
// discarded rather than written back on eviction (spec.md §4.6).
func (m *MmapInfo) ExeMapping() bool { return m.exeMapping }

// File returns the backing file, or nil for an anonymous mapping.
func (m *MmapInfo) File() FileBacking { return m.file }

// Offset returns the backing file's byte offset for this mapping.
func (m *MmapInfo) Offset() int64 { return m.offset }

// MappedSize returns the number of bytes read from the backing file
// (<= page size; the remainder of the page is zero-filled).
func (m *MmapInfo) MappedSize() int { return m.mappedSize }

// Frame returns the frame this mapping currently resolves to.
func (m *MmapInfo) Frame() *Frame { return m.frame }

// Accessed reports this mapping's simulated accessed bit (ClearAccessed
// clears it),
// standing in for the hardware PTE accessed bit the clock algorithm
// inspects (spec.md §4.6).
func (m *MmapInfo) Accessed() bool { return m.accessed }

// ClearAccessed clears the simulated accessed bit (the clock hand's
// second-chance sweep).
func (m *MmapInfo) ClearAccessed() { m.accessed = false }

func (m *MmapInfo) markAccessed() { m.accessed = true }
