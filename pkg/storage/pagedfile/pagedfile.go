// Package pagedfile implements a paged file: a pair of base files, one
// holding fixed-size-record data pages and one holding directory pages that
// track which data pages exist and how many free slots each has. It is the
// Go analogue of storage_engine/access/heapfile_manager adapted to the
// directory/data-page split described by yase's Storage/file.cc, generalized
// to arbitrary fixed record sizes rather than the teacher's variable-length
// slotted rows.
package pagedfile

import (
	"fmt"
	"sync"

	"ledgercore/pkg/ids"
	"ledgercore/pkg/storage/buffer"
	"ledgercore/pkg/storage/page"
)

// PagedFile is a data base file plus its directory base file, registered
// with a shared buffer pool.
type PagedFile struct {
	pool       *buffer.Pool
	dataFile   pageCreator
	dirFile    pageCreator
	dataFileID uint32
	dirFileID  uint32
	recordSize uint16
	capacity   int
	entries    int // entries per directory page

	// mu serializes directory mutation so two allocators never observe the
	// same directory state and race on a scavenged slot or a new directory
	// page.
	mu sync.Mutex

	dirPageCount int // cached; mutated only under mu
}

// dataFile/dirFile are the minimal surface pagedfile needs from the
// underlying base files beyond what the buffer pool already does, namely
// page creation.
type pageCreator interface {
	CreatePage() (ids.PageID, error)
	FileID() uint32
	PageCount() uint32
}

// New creates a fresh paged file over dataFile/dirFile (already registered
// with pool) storing fixed-size records of recordSize bytes, and
// initializes the first directory page.
func New(pool *buffer.Pool, dataFile, dirFile pageCreator, recordSize uint16) (*PagedFile, error) {
	capacity := page.Capacity(ids.PageSize, recordSize)
	if capacity <= 0 {
		return nil, fmt.Errorf("pagedfile: record size %d leaves no room for a single record", recordSize)
	}

	pf := &PagedFile{
		pool:       pool,
		dataFile:   dataFile,
		dirFile:    dirFile,
		dataFileID: dataFile.FileID(),
		dirFileID:  dirFile.FileID(),
		recordSize: recordSize,
		capacity:   capacity,
		entries:    page.EntriesPerDirPage(ids.PageSize),
	}

	dirPID, err := dirFile.CreatePage()
	if err != nil {
		return nil, fmt.Errorf("pagedfile: create first directory page: %w", err)
	}
	fr := pool.PinPage(dirPID)
	if fr == nil {
		return nil, fmt.Errorf("pagedfile: pin first directory page")
	}
	fr.Lock()
	page.InitDirPage(fr.Data[:], capacity)
	fr.IsDirty = true
	fr.Unlock()
	pool.UnpinPage(fr)
	pf.dirPageCount = 1

	return pf, nil
}

// RecordSize returns the fixed record size this paged file was created with.
func (pf *PagedFile) RecordSize() uint16 { return pf.recordSize }

// Capacity returns how many records fit on one data page.
func (pf *PagedFile) Capacity() int { return pf.capacity }

func (pf *PagedFile) dirPageID(dirPageNum int) ids.PageID {
	return ids.NewPageID(pf.dirFileID, uint16(dirPageNum))
}

func (pf *PagedFile) dirLocation(pageNum uint16) (dirPageNum, index int) {
	dirPageNum = int(pageNum) / pf.entries
	index = int(pageNum) % pf.entries
	return
}

// AllocatePage returns the PageId of a data page belonging to this table,
// scavenging a previously deallocated page when one is available.
func (pf *PagedFile) AllocatePage() (ids.PageID, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	if pid, ok := pf.scavengeLocked(); ok {
		fr := pf.pool.PinPage(pid)
		if fr == nil {
			return ids.InvalidPageID, fmt.Errorf("pagedfile: pin scavenged page %d", pid.Value())
		}
		fr.Lock()
		fr.IsDirty = true
		fr.Unlock()
		pf.pool.UnpinPage(fr)
		return pid, nil
	}

	dataPID, err := pf.dataFile.CreatePage()
	if err != nil {
		return ids.InvalidPageID, fmt.Errorf("pagedfile: create data page: %w", err)
	}

	if int(dataPID.PageNum())+1 > pf.entries*pf.dirPageCount {
		if err := pf.growDirectoryLocked(); err != nil {
			return ids.InvalidPageID, err
		}
	}

	dirPageNum, index := pf.dirLocation(dataPID.PageNum())
	dirPID := pf.dirPageID(dirPageNum)
	dirFr := pf.pool.PinPage(dirPID)
	if dirFr == nil {
		return ids.InvalidPageID, fmt.Errorf("pagedfile: pin directory page %d", dirPageNum)
	}
	dirFr.Lock()
	page.SetEntry(dirFr.Data[:], index, page.DirEntry{
		FreeSlots: uint16(pf.capacity),
		Allocated: true,
		Created:   true,
	})
	dirFr.IsDirty = true
	dirFr.Unlock()
	pf.pool.UnpinPage(dirFr)

	dataFr := pf.pool.PinPage(dataPID)
	if dataFr == nil {
		return ids.InvalidPageID, fmt.Errorf("pagedfile: pin new data page %d", dataPID.Value())
	}
	dataFr.Lock()
	page.InitDataPage(dataFr.Data[:], pf.recordSize)
	dataFr.IsDirty = true
	dataFr.Unlock()
	pf.pool.UnpinPage(dataFr)

	return dataPID, nil
}

// growDirectoryLocked creates a new directory page and initializes every
// entry on it. Caller holds mu.
func (pf *PagedFile) growDirectoryLocked() error {
	newDirPID, err := pf.dirFile.CreatePage()
	if err != nil {
		return fmt.Errorf("pagedfile: create directory page %d: %w", pf.dirPageCount, err)
	}
	fr := pf.pool.PinPage(newDirPID)
	if fr == nil {
		return fmt.Errorf("pagedfile: pin new directory page %d", pf.dirPageCount)
	}
	fr.Lock()
	page.InitDirPage(fr.Data[:], pf.capacity)
	fr.IsDirty = true
	fr.Unlock()
	pf.pool.UnpinPage(fr)
	pf.dirPageCount++
	return nil
}

// scavengeLocked linear-searches directory pages for the first created-but-
// unallocated entry, flips it to allocated, and returns its PageId. Caller
// holds mu.
func (pf *PagedFile) scavengeLocked() (ids.PageID, bool) {
	for dirPageNum := 0; dirPageNum < pf.dirPageCount; dirPageNum++ {
		dirPID := pf.dirPageID(dirPageNum)
		fr := pf.pool.PinPage(dirPID)
		if fr == nil {
			return ids.InvalidPageID, false
		}
		fr.Lock()
		for i := 0; i < pf.entries; i++ {
			e := page.Entry(fr.Data[:], i)
			if e.Created && !e.Allocated {
				e.Allocated = true
				e.FreeSlots = uint16(pf.capacity)
				page.SetEntry(fr.Data[:], i, e)
				fr.IsDirty = true
				fr.Unlock()
				pf.pool.UnpinPage(fr)
				pageNum := dirPageNum*pf.entries + i
				return ids.NewPageID(pf.dataFileID, uint16(pageNum)), true
			}
		}
		fr.Unlock()
		pf.pool.UnpinPage(fr)
	}
	return ids.InvalidPageID, false
}

// DeallocatePage marks pid's directory entry as not-allocated and zeroes the
// data page's record count. Returns false if the entry was never created or
// already deallocated.
func (pf *PagedFile) DeallocatePage(pid ids.PageID) bool {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	dirPageNum, index := pf.dirLocation(pid.PageNum())
	if dirPageNum >= pf.dirPageCount {
		return false
	}
	dirPID := pf.dirPageID(dirPageNum)
	dirFr := pf.pool.PinPage(dirPID)
	if dirFr == nil {
		return false
	}
	dirFr.Lock()
	e := page.Entry(dirFr.Data[:], index)
	if !e.Created || !e.Allocated {
		dirFr.Unlock()
		pf.pool.UnpinPage(dirFr)
		return false
	}
	e.Allocated = false
	page.SetEntry(dirFr.Data[:], index, e)
	dirFr.IsDirty = true
	dirFr.Unlock()
	pf.pool.UnpinPage(dirFr)

	if dataFr := pf.pool.PinPage(pid); dataFr != nil {
		dataFr.Lock()
		page.InitDataPage(dataFr.Data[:], pf.recordSize)
		dataFr.IsDirty = true
		dataFr.Unlock()
		pf.pool.UnpinPage(dataFr)
	}

	return true
}

// PageExists reports whether pid's directory entry is currently allocated.
func (pf *PagedFile) PageExists(pid ids.PageID) bool {
	dirPageNum, index := pf.dirLocation(pid.PageNum())

	pf.mu.Lock()
	if dirPageNum >= pf.dirPageCount {
		pf.mu.Unlock()
		return false
	}
	pf.mu.Unlock()

	dirPID := pf.dirPageID(dirPageNum)
	fr := pf.pool.PinPage(dirPID)
	if fr == nil {
		return false
	}
	fr.Lock()
	e := page.Entry(fr.Data[:], index)
	fr.Unlock()
	pf.pool.UnpinPage(fr)
	return e.Allocated
}

// AdjustFreeSlots changes the free-slot count of pid's directory entry by
// delta, clamped to [0, capacity]. Used by the table layer after a
// successful insert (delta=-1) or delete (delta=+1).
func (pf *PagedFile) AdjustFreeSlots(pid ids.PageID, delta int) bool {
	dirPageNum, index := pf.dirLocation(pid.PageNum())

	dirPID := pf.dirPageID(dirPageNum)
	fr := pf.pool.PinPage(dirPID)
	if fr == nil {
		return false
	}
	defer pf.pool.UnpinPage(fr)

	fr.Lock()
	defer fr.Unlock()

	e := page.Entry(fr.Data[:], index)
	next := int(e.FreeSlots) + delta
	if next < 0 {
		next = 0
	}
	if next > pf.capacity {
		next = pf.capacity
	}
	e.FreeSlots = uint16(next)
	page.SetEntry(fr.Data[:], index, e)
	fr.IsDirty = true
	return true
}
