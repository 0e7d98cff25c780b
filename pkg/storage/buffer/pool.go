// Package buffer implements the fixed-size frame cache shared by every
// paged file in the engine: pin/unpin with LRU eviction over a file
// registry, the way storage_engine/bufferpool did in the teacher engine
// this package was adapted from, generalized to the fixed-record data and
// directory pages described in pkg/storage/pagedfile.
package buffer

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/dustin/go-humanize"

	"ledgercore/pkg/ids"
	"ledgercore/pkg/storage/frame"
)

// PageFile is the subset of basefile.BaseFile the pool needs to load and
// flush pages. Declared locally so the buffer package does not import
// basefile just to register it.
type PageFile interface {
	FileID() uint32
	LoadPage(pid ids.PageID, out []byte) bool
	FlushPage(pid ids.PageID, buf []byte) bool
}

// Pool is a fixed-capacity cache of page frames with LRU eviction. Exactly
// one mutex (mu) protects the page table, the LRU list, and the file
// registry; per-frame mutation of page bytes is serialized by the frame's
// own latch instead (see pkg/storage/frame), acquired by callers such as
// the table layer, never by Pin/Unpin themselves.
type Pool struct {
	mu       sync.Mutex
	capacity int
	frames   map[ids.PageID]*frame.Frame
	lru      *list.List
	lruElem  map[ids.PageID]*list.Element
	files    map[uint32]PageFile

	// victim is a best-effort secondary cache of bytes for recently
	// evicted frames, so a page that thrashes in and out of the pool can
	// skip the disk read on re-pin. It never participates in pin/LRU
	// semantics; Pool.frames/lru remain the sole source of truth for what
	// is "in the pool".
	victim *ristretto.Cache[uint64, []byte]

	Logf func(format string, args ...any) // nil-safe; defaults to no-op
}

// NewPool creates a pool holding at most capacity frames.
func NewPool(capacity int) *Pool {
	victim, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: int64(capacity) * 10,
		MaxCost:     int64(capacity) * ids.PageSize,
		BufferItems: 64,
	})
	if err != nil {
		// A victim cache is an optimization, not a correctness
		// requirement; fall back to running without one.
		victim = nil
	}

	return &Pool{
		capacity: capacity,
		frames:   make(map[ids.PageID]*frame.Frame, capacity),
		lru:      list.New(),
		lruElem:  make(map[ids.PageID]*list.Element, capacity),
		files:    make(map[uint32]PageFile),
		victim:   victim,
	}
}

func (p *Pool) logf(format string, args ...any) {
	if p.Logf != nil {
		p.Logf(format, args...)
	}
}

// RegisterFile records fileID -> f so the pool can load/flush frames it
// owns on miss and on eviction.
func (p *Pool) RegisterFile(f PageFile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[f.FileID()] = f
}

// touchLocked moves pid to the MRU end of the LRU list. Caller holds mu.
func (p *Pool) touchLocked(pid ids.PageID) {
	if el, ok := p.lruElem[pid]; ok {
		p.lru.MoveToBack(el)
		return
	}
	p.lruElem[pid] = p.lru.PushBack(pid)
}

func (p *Pool) removeFromLRULocked(pid ids.PageID) {
	if el, ok := p.lruElem[pid]; ok {
		p.lru.Remove(el)
		delete(p.lruElem, pid)
	}
}

// PinPage returns the frame holding pid, loading it from its owning file if
// necessary, with its pin count incremented. Returns nil if pid is invalid
// or no frame can be made available.
func (p *Pool) PinPage(pid ids.PageID) *frame.Frame {
	if !pid.IsValid() {
		return nil
	}

	p.mu.Lock()

	if fr, ok := p.frames[pid]; ok {
		fr.PinCount++
		p.touchLocked(pid)
		p.mu.Unlock()
		p.logf("[buffer] hit page=%d pin=%d", pid.Value(), fr.PinCount)
		return fr
	}

	if len(p.frames) >= p.capacity {
		if _, ok := p.evictLocked(); !ok {
			p.mu.Unlock()
			p.logf("[buffer] pin failed: all %d frames pinned", p.capacity)
			return nil
		}
	}

	owner, ok := p.files[pid.FileID()]
	if !ok {
		p.mu.Unlock()
		return nil
	}

	fr := &frame.Frame{PageID: pid, PinCount: 1}
	if cached, found := p.victimGet(pid); found {
		copy(fr.Data[:], cached)
	} else if !owner.LoadPage(pid, fr.Data[:]) {
		p.mu.Unlock()
		return nil
	}

	p.frames[pid] = fr
	p.touchLocked(pid)
	p.mu.Unlock()
	p.logf("[buffer] miss page=%d loaded (%s)", pid.Value(), humanize.Bytes(ids.PageSize))
	return fr
}

// evictLocked selects the LRU-front unpinned frame, detaches it from the
// page table and LRU list (caller holds mu), then flushes it with mu
// released so disk I/O never happens under the pool-wide lock. Returns
// false if every frame is currently pinned.
func (p *Pool) evictLocked() (ids.PageID, bool) {
	var el *list.Element
	var victim *frame.Frame
	var pid ids.PageID

	for e := p.lru.Front(); e != nil; e = e.Next() {
		candidate := e.Value.(ids.PageID)
		fr := p.frames[candidate]
		if fr.PinCount == 0 {
			el, victim, pid = e, fr, candidate
			break
		}
	}
	if victim == nil {
		return ids.InvalidPageID, false
	}

	delete(p.frames, pid)
	p.lru.Remove(el)
	delete(p.lruElem, pid)
	owner := p.files[pid.FileID()]

	p.mu.Unlock()
	if victim.IsDirty {
		if owner != nil {
			owner.FlushPage(pid, victim.Data[:])
		}
	}
	p.victimSet(pid, victim.Data[:])
	p.mu.Lock()

	return pid, true
}

// UnpinPage decrements pid's pin count. A pin count that would go negative
// is a caller bug; it is clamped to zero instead of panicking since this is
// a non-transactional bookkeeping structure.
func (p *Pool) UnpinPage(fr *frame.Frame) {
	if fr == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if fr.PinCount > 0 {
		fr.PinCount--
	}
	if fr.PinCount == 0 {
		p.touchLocked(fr.PageID)
	}
}

// FlushAll writes every dirty frame back through its owning file. Used on
// teardown.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for pid, fr := range p.frames {
		if !fr.IsDirty {
			continue
		}
		owner, ok := p.files[pid.FileID()]
		if !ok {
			continue
		}
		if !owner.FlushPage(pid, fr.Data[:]) {
			return fmt.Errorf("buffer: flush page %d failed during teardown", pid.Value())
		}
		fr.IsDirty = false
	}
	return nil
}

func (p *Pool) victimGet(pid ids.PageID) ([]byte, bool) {
	if p.victim == nil {
		return nil, false
	}
	return p.victim.Get(pid.Value())
}

func (p *Pool) victimSet(pid ids.PageID, data []byte) {
	if p.victim == nil {
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	p.victim.Set(pid.Value(), cp, int64(len(cp)))
}
