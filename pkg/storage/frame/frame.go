// Package frame defines the in-memory buffer pool slot: a page's bytes plus
// its pin count, dirty bit, and a latch distinct from the buffer pool's own
// bookkeeping mutex.
package frame

import (
	"sync"

	"ledgercore/pkg/ids"
)

// Frame holds one cached page and the bookkeeping the buffer pool needs to
// pin, evict, and flush it. The mutex here is the "frame latch" of
// spec.md §4.2: the table layer holds it while mutating Data, not the
// buffer pool's pin/unpin path.
type Frame struct {
	mu sync.Mutex

	PageID   ids.PageID
	Data     [ids.PageSize]byte
	IsDirty  bool
	PinCount int32
}

// Lock acquires the frame latch for exclusive mutation of Data.
func (f *Frame) Lock() { f.mu.Lock() }

// Unlock releases the frame latch.
func (f *Frame) Unlock() { f.mu.Unlock() }
