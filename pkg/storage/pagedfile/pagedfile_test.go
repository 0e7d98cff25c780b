package pagedfile

import (
	"path/filepath"
	"testing"

	"ledgercore/pkg/ids"
	"ledgercore/pkg/storage/basefile"
	"ledgercore/pkg/storage/buffer"
	"ledgercore/pkg/storage/page"
)

func newFixture(t *testing.T, recordSize uint16) (*buffer.Pool, *basefile.BaseFile, *PagedFile) {
	t.Helper()
	dir := t.TempDir()

	dataFile, err := basefile.Open(1, filepath.Join(dir, "t"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dataFile.Close() })

	dirFile, err := basefile.Open(2, filepath.Join(dir, "t.dir"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dirFile.Close() })

	pool := buffer.NewPool(64)
	pool.RegisterFile(dataFile)
	pool.RegisterFile(dirFile)

	pf, err := New(pool, dataFile, dirFile, recordSize)
	if err != nil {
		t.Fatal(err)
	}
	return pool, dataFile, pf
}

func TestAllocatePageExistsAndDeallocate(t *testing.T) {
	_, _, pf := newFixture(t, 8)

	pid, err := pf.AllocatePage()
	if err != nil {
		t.Fatal(err)
	}
	if !pf.PageExists(pid) {
		t.Fatal("PageExists false for freshly allocated page")
	}
	if !pf.DeallocatePage(pid) {
		t.Fatal("DeallocatePage failed")
	}
	if pf.PageExists(pid) {
		t.Fatal("PageExists true after deallocation")
	}
}

func TestAllocateScavengesBeforeGrowing(t *testing.T) {
	_, _, pf := newFixture(t, 8)

	p1, _ := pf.AllocatePage()
	pf.DeallocatePage(p1)

	p2, err := pf.AllocatePage()
	if err != nil {
		t.Fatal(err)
	}
	if p2 != p1 {
		t.Fatalf("expected scavenged page %d to be reused, got %d", p1.Value(), p2.Value())
	}
}

func TestAllocateGrowsDirectoryAcrossManyPages(t *testing.T) {
	pool, _, pf := newFixture(t, 8)
	_ = pool

	entriesPerDir := page.EntriesPerDirPage(ids.PageSize)
	// Allocate enough fresh pages to force at least one directory growth.
	n := entriesPerDir + 5
	seen := make(map[uint64]bool, n)
	for i := 0; i < n; i++ {
		pid, err := pf.AllocatePage()
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		if seen[pid.Value()] {
			t.Fatalf("duplicate page id %d at iteration %d", pid.Value(), i)
		}
		seen[pid.Value()] = true
		if !pf.PageExists(pid) {
			t.Fatalf("PageExists false for page %d", pid.Value())
		}
	}
}

func TestAdjustFreeSlotsClampsToRange(t *testing.T) {
	pool, _, pf := newFixture(t, 8)
	pid, _ := pf.AllocatePage()

	// No public getter exists, so read the directory entry directly.
	freeSlots := func() int {
		dirPageNum, index := pf.dirLocation(pid.PageNum())
		fr := pool.PinPage(pf.dirPageID(dirPageNum))
		if fr == nil {
			t.Fatal("pin directory page failed")
		}
		defer pool.UnpinPage(fr)
		fr.Lock()
		defer fr.Unlock()
		return int(page.Entry(fr.Data[:], index).FreeSlots)
	}

	if !pf.AdjustFreeSlots(pid, -(pf.Capacity() + 10)) {
		t.Fatal("AdjustFreeSlots failed")
	}
	if got := freeSlots(); got != 0 {
		t.Fatalf("free slots after oversized decrement = %d, want 0", got)
	}
	if !pf.AdjustFreeSlots(pid, pf.Capacity()+10) {
		t.Fatal("AdjustFreeSlots failed")
	}
	if got := freeSlots(); got != pf.Capacity() {
		t.Fatalf("free slots after oversized increment = %d, want %d", got, pf.Capacity())
	}
}

func TestDeallocateUnknownPageFails(t *testing.T) {
	_, _, pf := newFixture(t, 8)
	if pf.DeallocatePage(ids.NewPageID(1, 999)) {
		t.Fatal("expected deallocate of never-created page to fail")
	}
}
