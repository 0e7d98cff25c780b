// Package table implements record-level CRUD over a paged file: slot
// allocation with lazy page rollover, write-ahead logging of every
// mutation, and free-slot accounting on the owning directory entry. Update
// and Delete log before touching the page; Insert fills a slot first (the
// RID is only known then) and logs before marking the page dirty. It is
// the Go analogue of yase's Storage/table.cc, generalized to log through
// pkg/wal instead of a single global LogManager.
package table

import (
	"sync"

	"ledgercore/pkg/ids"
	"ledgercore/pkg/storage/buffer"
	"ledgercore/pkg/storage/page"
	"ledgercore/pkg/storage/pagedfile"
	"ledgercore/pkg/wal"
)

// Table is a named fixed-record-size collection backed by a paged file.
type Table struct {
	name       string
	file       *pagedfile.PagedFile
	pool       *buffer.Pool
	log        *wal.LogManager
	recordSize uint16
	capacity   int

	mu          sync.Mutex
	nextFreePID ids.PageID
}

// New creates a table over an already-initialized paged file, allocating
// its first data page.
func New(name string, file *pagedfile.PagedFile, pool *buffer.Pool, log *wal.LogManager) (*Table, error) {
	pid, err := file.AllocatePage()
	if err != nil {
		return nil, err
	}
	return &Table{
		name:        name,
		file:        file,
		pool:        pool,
		log:         log,
		recordSize:  file.RecordSize(),
		capacity:    file.Capacity(),
		nextFreePID: pid,
	}, nil
}

// Name returns the table's name.
func (t *Table) Name() string { return t.name }

func (t *Table) snapshotFreePID() ids.PageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextFreePID
}

// Insert writes record to the table's current free page, rolling over to a
// freshly allocated page when full, and logs the insert before returning a
// valid RID. Returns an invalid RID if the log append or page allocation
// fails.
func (t *Table) Insert(record []byte) ids.RID {
	for {
		localFreePID := t.snapshotFreePID()

		fr := t.pool.PinPage(localFreePID)
		if fr == nil {
			return ids.InvalidRID
		}

		fr.Lock()
		slot, ok := page.Insert(fr.Data[:], t.capacity, record)
		fr.Unlock()

		if !ok {
			t.pool.UnpinPage(fr)

			t.mu.Lock()
			if t.nextFreePID != localFreePID {
				t.mu.Unlock()
				continue
			}
			newPID, err := t.file.AllocatePage()
			if err != nil || !newPID.IsValid() {
				t.mu.Unlock()
				return ids.InvalidRID
			}
			t.nextFreePID = newPID
			t.mu.Unlock()
			continue
		}

		rid := ids.NewRID(localFreePID, slot)
		if !t.log.LogInsert(rid, record) {
			t.pool.UnpinPage(fr)
			return ids.InvalidRID
		}

		fr.Lock()
		fr.IsDirty = true
		fr.Unlock()
		t.pool.UnpinPage(fr)

		t.file.AdjustFreeSlots(localFreePID, -1)
		return rid
	}
}

// Read copies the record at rid into out. Returns false if rid is invalid,
// its page has been deallocated, or the slot is empty.
func (t *Table) Read(rid ids.RID, out []byte) bool {
	if !rid.IsValid() || !t.file.PageExists(rid.PageID()) {
		return false
	}

	fr := t.pool.PinPage(rid.PageID())
	if fr == nil {
		return false
	}
	defer t.pool.UnpinPage(fr)

	fr.Lock()
	defer fr.Unlock()
	return page.Read(fr.Data[:], t.capacity, rid.Slot(), out)
}

// Delete logs and then applies the deletion of rid, incrementing the
// owning directory entry's free-slot count on success.
func (t *Table) Delete(rid ids.RID) bool {
	if !rid.IsValid() {
		return false
	}

	fr := t.pool.PinPage(rid.PageID())
	if fr == nil {
		return false
	}

	if !t.log.LogDelete(rid) {
		t.pool.UnpinPage(fr)
		return false
	}

	fr.Lock()
	ok := page.Delete(fr.Data[:], t.capacity, rid.Slot())
	if ok {
		fr.IsDirty = true
	}
	fr.Unlock()
	t.pool.UnpinPage(fr)

	if ok {
		t.file.AdjustFreeSlots(rid.PageID(), 1)
	}
	return ok
}

// Update logs and then applies an in-place overwrite of rid with record.
func (t *Table) Update(rid ids.RID, record []byte) bool {
	if !rid.IsValid() {
		return false
	}

	fr := t.pool.PinPage(rid.PageID())
	if fr == nil {
		return false
	}
	defer t.pool.UnpinPage(fr)

	if !t.log.LogUpdate(rid, record) {
		return false
	}

	fr.Lock()
	defer fr.Unlock()
	ok := page.Update(fr.Data[:], t.capacity, rid.Slot(), record)
	if ok {
		fr.IsDirty = true
	}
	return ok
}
