package vm_test

import (
	"io"
	"sync"
	"testing"

	"github.com/sohnryang/pintos/blockdev"
	"github.com/sohnryang/pintos/kconfig"
	"github.com/sohnryang/pintos/klog"
	"github.com/sohnryang/pintos/palloc"
	"github.com/sohnryang/pintos/swap"
	"github.com/sohnryang/pintos/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFile is a minimal in-memory stand-in for the out-of-scope file system
// collaborator, implementing vm.FileBacking.
type memFile struct {
	mu   sync.Mutex
	data []byte
}

func newMemFile(data []byte) *memFile {
	return &memFile{data: append([]byte(nil), data...)}
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:], p)
	return len(p), nil
}

func (f *memFile) Len() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data))
}

// fakeEvictor never evicts; it is enough for tests whose page pool is large
// enough that Manager never needs a real Evictor.
type fakeEvictor struct{}

func (fakeEvictor) Register(*vm.Frame)             {}
func (fakeEvictor) Evict() ([]byte, bool)          { return nil, false }
func (fakeEvictor) Deactivate(*vm.Frame) error     { return nil }
func (fakeEvictor) ReadIn(*vm.Frame, []byte) error { return nil }

func TestAnonymousPageIsZeroFilledOnFirstFault(t *testing.T) {
	mgr := vm.New(palloc.NewPool(4), fakeEvictor{}, klog.Discard())
	require.NoError(t, mgr.CreateMapping(0x1000, nil, true, false, 0, 0))

	b, err := mgr.Load(0x1000)
	require.NoError(t, err)
	assert.Equal(t, byte(0), b)
	assert.Equal(t, vm.PTEResident, mgr.PTEState(0x1000))
}

func TestFileBackedPageZeroFillsTail(t *testing.T) {
	mgr := vm.New(palloc.NewPool(4), fakeEvictor{}, klog.Discard())
	file := newMemFile([]byte{1, 2, 3})
	require.NoError(t, mgr.CreateMapping(0x1000, file, false, true, 0, 3))

	first, err := mgr.Load(0x1000)
	require.NoError(t, err)
	assert.Equal(t, byte(1), first)

	tail, err := mgr.Load(0x1000 + 10)
	require.NoError(t, err)
	assert.Equal(t, byte(0), tail)
}

func TestStoreRejectsReadOnlyMapping(t *testing.T) {
	mgr := vm.New(palloc.NewPool(4), fakeEvictor{}, klog.Discard())
	file := newMemFile([]byte{9})
	require.NoError(t, mgr.CreateMapping(0x1000, file, false, true, 0, 1))

	err := mgr.Store(0x1000, 5)
	assert.Error(t, err)
}

func TestStoreIsVisibleToLoad(t *testing.T) {
	mgr := vm.New(palloc.NewPool(4), fakeEvictor{}, klog.Discard())
	require.NoError(t, mgr.CreateMapping(0x1000, nil, true, false, 0, 0))

	require.NoError(t, mgr.Store(0x1000, 7))
	b, err := mgr.Load(0x1000)
	require.NoError(t, err)
	assert.Equal(t, byte(7), b)
}

func TestDuplicateMappingRejected(t *testing.T) {
	mgr := vm.New(palloc.NewPool(4), fakeEvictor{}, klog.Discard())
	require.NoError(t, mgr.CreateMapping(0x1000, nil, true, false, 0, 0))
	assert.Error(t, mgr.CreateMapping(0x1000, nil, true, false, 0, 0))
}

func TestStackGrowthCreatesMappingNearEsp(t *testing.T) {
	mgr := vm.New(palloc.NewPool(4), fakeEvictor{}, klog.Discard())
	esp := uintptr(kconfig.PhysBase - kconfig.PageSize)
	mgr.SetStackPointer(esp)

	assert.Equal(t, vm.PTEAbsent, mgr.PTEState(esp-4))
	_, err := mgr.Load(esp - 4)
	require.NoError(t, err)
	assert.Equal(t, vm.PTEResident, mgr.PTEState(esp-4))
}

func TestStackGrowthRejectsFarBelowEsp(t *testing.T) {
	mgr := vm.New(palloc.NewPool(4), fakeEvictor{}, klog.Discard())
	esp := uintptr(kconfig.PhysBase - kconfig.PageSize)
	mgr.SetStackPointer(esp)

	_, err := mgr.Load(esp - kconfig.StackGrowLimit - 4096)
	assert.Error(t, err)
}

// TestEvictionRoundTripPreservesContent drives a pool of exactly one page
// through two anonymous mappings with a real swap.Swapper, forcing the
// second fault to evict the first and the third fault to read it back from
// swap (spec.md §8 seed scenario 6: swap round-trip).
func TestEvictionRoundTripPreservesContent(t *testing.T) {
	pages := palloc.NewPool(1)
	dev := blockdev.NewMemDevice(32, 512)
	sw := swap.New(pages, dev, klog.Discard())
	mgr := vm.New(pages, sw, klog.Discard())

	require.NoError(t, mgr.CreateMapping(0x1000, nil, true, false, 0, 0))
	require.NoError(t, mgr.CreateMapping(0x2000, nil, true, false, 0, 0))

	require.NoError(t, mgr.Store(0x1000, 42))
	require.NoError(t, mgr.Store(0x2000, 7))

	assert.Equal(t, vm.PTEStub, mgr.PTEState(0x1000))
	assert.Equal(t, 1, sw.ActiveLen())

	got, err := mgr.Load(0x1000)
	require.NoError(t, err)
	assert.Equal(t, byte(42), got)
	assert.Equal(t, 1, sw.ActiveLen())
}

// TestDestroyWritesBackDirtyFileBackedPages exercises spec.md §4.7: a
// process exiting with a dirty, file-backed, non-executable mapping still
// resident must flush it before its frame is released.
func TestDestroyWritesBackDirtyFileBackedPages(t *testing.T) {
	pages := palloc.NewPool(4)
	sw := swap.New(pages, nil, klog.Discard())
	mgr := vm.New(pages, sw, klog.Discard())

	file := newMemFile(make([]byte, 4))
	require.NoError(t, mgr.CreateMapping(0x1000, file, true, false, 0, 4))
	require.NoError(t, mgr.Store(0x1000, 99))

	mgr.Destroy()
	assert.Equal(t, byte(99), file.data[0])
	assert.Equal(t, 4, pages.Available())
}
