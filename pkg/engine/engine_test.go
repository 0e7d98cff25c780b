package engine

import (
	"testing"

	"ledgercore/pkg/lock"
)

func newFixture(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	cfg.BufferPoolPages = 16
	cfg.LogBufferBytes = 1 << 16

	e, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestCreateTableInsertCommitRead(t *testing.T) {
	e := newFixture(t)

	tbl, err := e.CreateTable("accounts", 8)
	if err != nil {
		t.Fatal(err)
	}

	tx := e.Begin()
	rid := tbl.Insert([]byte("balance1"))
	if !rid.IsValid() {
		t.Fatal("insert returned invalid rid")
	}
	if !e.Locks().AcquireLock(tx, rid, lock.XL, false) {
		t.Fatal("acquire lock failed")
	}
	if !tx.Commit() {
		t.Fatal("commit failed")
	}

	out := make([]byte, 8)
	if !tbl.Read(rid, out) {
		t.Fatal("read after commit failed")
	}
	if string(out) != "balance1" {
		t.Fatalf("read = %q", out)
	}
}

func TestCreateTableDuplicateNameFails(t *testing.T) {
	e := newFixture(t)
	if _, err := e.CreateTable("t", 8); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateTable("t", 8); err == nil {
		t.Fatal("expected error creating duplicate table name")
	}
}

func TestTableLookupMissingReturnsFalse(t *testing.T) {
	e := newFixture(t)
	if _, ok := e.Table("nope"); ok {
		t.Fatal("lookup of missing table should fail")
	}
}

func TestCreateIndexAndLookup(t *testing.T) {
	e := newFixture(t)
	idx, err := e.CreateIndex("by_balance", 8, 8)
	if err != nil {
		t.Fatal(err)
	}
	if !idx.Insert([]byte("key00001"), []byte("payload1")) {
		t.Fatal("index insert failed")
	}

	got, ok := e.Index("by_balance")
	if !ok {
		t.Fatal("index lookup failed")
	}
	out := make([]byte, 8)
	if !got.Search([]byte("key00001"), out) {
		t.Fatal("search through looked-up index failed")
	}
}

func TestCreateIndexDuplicateNameFails(t *testing.T) {
	e := newFixture(t)
	if _, err := e.CreateIndex("idx", 4, 4); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateIndex("idx", 4, 4); err == nil {
		t.Fatal("expected error creating duplicate index name")
	}
}

func TestAbortReleasesLockForNextTransaction(t *testing.T) {
	e := newFixture(t)
	tbl, err := e.CreateTable("t", 4)
	if err != nil {
		t.Fatal(err)
	}

	tx1 := e.Begin()
	rid := tbl.Insert([]byte("abcd"))
	e.Locks().AcquireLock(tx1, rid, lock.XL, false)
	tx1.Abort()

	tx2 := e.Begin()
	if !e.Locks().AcquireLock(tx2, rid, lock.XL, false) {
		t.Fatal("lock should have been released by abort")
	}
}
