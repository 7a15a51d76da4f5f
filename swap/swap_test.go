package swap_test

import (
	"io"
	"testing"

	"github.com/sohnryang/pintos/blockdev"
	"github.com/sohnryang/pintos/klog"
	"github.com/sohnryang/pintos/palloc"
	"github.com/sohnryang/pintos/swap"
	"github.com/sohnryang/pintos/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFile struct{ data []byte }

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	return copy(p, f.data[off:]), nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	return copy(f.data[off:], p), nil
}

func (f *memFile) Len() int64 { return int64(len(f.data)) }

// TestEvictionDiscardsExecutablePagesWithoutSwappingOut exercises spec.md
// §4.6's discard branch: a read-only executable page needs no swap slot at
// all, so eviction must succeed even with no swap device present.
func TestEvictionDiscardsExecutablePagesWithoutSwappingOut(t *testing.T) {
	pages := palloc.NewPool(1)
	sw := swap.New(pages, nil, klog.Discard())
	mgr := vm.New(pages, sw, klog.Discard())

	file := &memFile{data: []byte{1, 2, 3, 4}}
	require.NoError(t, mgr.CreateMapping(0x1000, file, false, true, 0, 4))
	require.NoError(t, mgr.CreateMapping(0x2000, nil, true, false, 0, 0))

	_, err := mgr.Load(0x1000)
	require.NoError(t, err)
	assert.Equal(t, 1, sw.ActiveLen())

	_, err = mgr.Load(0x2000)
	require.NoError(t, err)

	assert.Equal(t, vm.PTEStub, mgr.PTEState(0x1000))
	assert.Equal(t, 1, sw.ActiveLen())
}

// TestEvictionWritesBackDirtyFileBackedPage exercises spec.md §4.6's
// write-back branch: a dirty, file-backed, non-executable page is flushed
// to its file rather than ever going to swap.
func TestEvictionWritesBackDirtyFileBackedPage(t *testing.T) {
	pages := palloc.NewPool(1)
	sw := swap.New(pages, nil, klog.Discard())
	mgr := vm.New(pages, sw, klog.Discard())

	file := &memFile{data: make([]byte, 4)}
	require.NoError(t, mgr.CreateMapping(0x1000, file, true, false, 0, 4))
	require.NoError(t, mgr.Store(0x1000, 55))
	require.NoError(t, mgr.CreateMapping(0x2000, nil, true, false, 0, 0))

	_, err := mgr.Load(0x2000)
	require.NoError(t, err)

	assert.Equal(t, byte(55), file.data[0])
	assert.Equal(t, vm.PTEStub, mgr.PTEState(0x1000))
	assert.Equal(t, 1, sw.ActiveLen())
}

// TestDeactivateReleasesSwappedOutSlotWithoutReadingIn covers the leak this
// package used to have: a process exiting while one of its pages is
// swapped out must still free that page's slot, even though Deactivate is
// never asked to read its content back in.
func TestDeactivateReleasesSwappedOutSlotWithoutReadingIn(t *testing.T) {
	pages := palloc.NewPool(1)
	dev := blockdev.NewMemDevice(16, 512)
	sw := swap.New(pages, dev, klog.Discard())
	mgr := vm.New(pages, sw, klog.Discard())

	require.NoError(t, mgr.CreateMapping(0x1000, nil, true, false, 0, 0))
	require.NoError(t, mgr.CreateMapping(0x2000, nil, true, false, 0, 0))
	require.NoError(t, mgr.Store(0x1000, 1))
	require.NoError(t, mgr.Store(0x2000, 2))

	assert.Equal(t, vm.PTEStub, mgr.PTEState(0x1000))
	mgr.Destroy()
	assert.Equal(t, 1, pages.Available())
	assert.Equal(t, 0, sw.ActiveLen())
}
