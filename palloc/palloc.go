// Package palloc simulates the physical page allocator spec.md §1 lists
// as an out-of-scope collaborator (palloc_get_page/palloc_free_page): a
// fixed-size pool of zeroed page-sized buffers, handed out to whichever
// subsystem needs a physical frame (package vm for a resident page,
// package thread's Scheduler for a kernel stack in a fuller build). This
// core only exercises the user-page pool that package vm draws from.
package palloc

import (
	"sync"

	"github.com/sohnryang/pintos/kconfig"
)

// Pool is a fixed-capacity set of physical pages, each kconfig.PageSize
// bytes. GetPage returns nil on exhaustion exactly like the real
// allocator returning NULL; callers that need to surface this as an
// error wrap it in kernelerr.ErrOutOfMemory.
type Pool struct {
	mu   sync.Mutex
	free [][]byte
}

// NewPool returns a Pool with the given number of pages pre-allocated.
func NewPool(pages int) *Pool {
	p := &Pool{free: make([][]byte, 0, pages)}
	for i := 0; i < pages; i++ {
		p.free = append(p.free, make([]byte, kconfig.PageSize))
	}
	return p
}

// GetPage removes and returns one zeroed page from the pool, or nil if
// none remain.
func (p *Pool) GetPage() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		return nil
	}
	pg := p.free[n-1]
	p.free = p.free[:n-1]
	return pg
}

// FreePage returns pg to the pool, zeroing it first so the next GetPage
// caller sees a clean page (anonymous pages are zero-fill-on-demand).
func (p *Pool) FreePage(pg []byte) {
	for i := range pg {
		pg[i] = 0
	}
	p.mu.Lock()
	p.free = append(p.free, pg)
	p.mu.Unlock()
}

// Available reports how many pages remain unallocated.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
