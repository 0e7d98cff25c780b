package txn

import (
	"path/filepath"
	"testing"

	"ledgercore/pkg/ids"
	"ledgercore/pkg/lock"
	"ledgercore/pkg/wal"
)

func newFixture(t *testing.T) *Registry {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "log")
	lm, err := wal.Open(logPath, 4096)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { lm.Close() })
	return NewRegistry(lm, lock.NewManager())
}

func TestBeginAssignsIncreasingTimestamps(t *testing.T) {
	r := newFixture(t)
	t1 := r.Begin()
	t2 := r.Begin()
	if t2.Timestamp() <= t1.Timestamp() {
		t.Fatalf("t2 ts %d should exceed t1 ts %d", t2.Timestamp(), t1.Timestamp())
	}
}

func TestCommitReleasesLocksAndRemovesFromActive(t *testing.T) {
	r := newFixture(t)
	tx := r.Begin()

	rid := ids.NewRID(ids.NewPageID(1, 0), 0)
	if !r.locks.AcquireLock(tx, rid, lock.XL, false) {
		t.Fatal("acquire failed")
	}
	if len(tx.Locks()) != 1 {
		t.Fatal("expected one held lock before commit")
	}

	if !tx.Commit() {
		t.Fatal("commit failed")
	}
	if tx.State() != Committed {
		t.Fatalf("state = %v, want Committed", tx.State())
	}

	for _, active := range r.Active() {
		if active == tx {
			t.Fatal("committed transaction still in active list")
		}
	}

	// Lock should now be free for another transaction.
	tx2 := r.Begin()
	if !r.locks.AcquireLock(tx2, rid, lock.XL, false) {
		t.Fatal("lock was not actually released by commit")
	}
}

func TestCommitOnNonInProgressFails(t *testing.T) {
	r := newFixture(t)
	tx := r.Begin()
	tx.Commit()
	if tx.Commit() {
		t.Fatal("second commit on already-committed transaction should fail")
	}
}

func TestAbortReturnsTimestampAndReleasesLocks(t *testing.T) {
	r := newFixture(t)
	tx := r.Begin()
	rid := ids.NewRID(ids.NewPageID(1, 0), 1)
	r.locks.AcquireLock(tx, rid, lock.SH, false)

	got := tx.Abort()
	if got != tx.Timestamp() {
		t.Fatalf("Abort() = %d, want %d", got, tx.Timestamp())
	}
	if tx.State() != Aborted {
		t.Fatal("state should be Aborted")
	}

	tx2 := r.Begin()
	if !r.locks.AcquireLock(tx2, rid, lock.XL, false) {
		t.Fatal("lock was not released by abort")
	}
}

func TestAbortOnNonInProgressReturnsInvalidTimestamp(t *testing.T) {
	r := newFixture(t)
	tx := r.Begin()
	tx.Abort()
	if got := tx.Abort(); got != ids.InvalidTimestamp {
		t.Fatalf("second abort = %d, want invalid timestamp sentinel", got)
	}
}
