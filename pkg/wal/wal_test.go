package wal

import (
	"path/filepath"
	"testing"

	"ledgercore/pkg/ids"
)

func TestAppendAndFlushAdvancesDurableLSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	lm, err := Open(path, 4096)
	if err != nil {
		t.Fatal(err)
	}
	defer lm.Close()

	rid := ids.NewRID(ids.NewPageID(1, 0), 3)
	if !lm.LogInsert(rid, []byte("hello")) {
		t.Fatal("LogInsert failed")
	}
	if lm.DurableLSN() != 0 {
		t.Fatalf("durable lsn = %d before flush, want 0", lm.DurableLSN())
	}
	if !lm.Flush() {
		t.Fatal("Flush failed")
	}
	if lm.DurableLSN() != lm.CurrentLSN() {
		t.Fatalf("durable lsn %d != current lsn %d after flush", lm.DurableLSN(), lm.CurrentLSN())
	}
}

func TestDurableLSNNeverDecreases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	lm, err := Open(path, 4096)
	if err != nil {
		t.Fatal(err)
	}
	defer lm.Close()

	rid := ids.NewRID(ids.NewPageID(1, 0), 0)
	prev := lm.DurableLSN()
	for i := 0; i < 20; i++ {
		lm.LogInsert(rid, []byte("xxxxxxxx"))
		lm.Flush()
		cur := lm.DurableLSN()
		if cur < prev {
			t.Fatalf("durable lsn decreased: %d -> %d", prev, cur)
		}
		prev = cur
	}
}

func TestCommitThenEndOrdering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	lm, err := Open(path, 4096)
	if err != nil {
		t.Fatal(err)
	}

	rid := ids.NewRID(ids.NewPageID(1, 0), 1)
	if !lm.LogInsert(rid, []byte("record1")) {
		t.Fatal("insert failed")
	}
	if !lm.LogCommit(42) {
		t.Fatal("commit failed")
	}
	if !lm.Flush() {
		t.Fatal("flush failed")
	}
	if !lm.LogEnd(42) {
		t.Fatal("end failed")
	}
	lm.Flush()
	lm.Close()

	records, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0].Type != Insert || records[1].Type != Commit || records[2].Type != End {
		t.Fatalf("unexpected record order: %v %v %v", records[0].Type, records[1].Type, records[2].Type)
	}
	commitOffset := records[1].Offset
	endOffset := records[2].Offset
	if !(commitOffset < endOffset) {
		t.Fatal("commit record must precede end record")
	}
}

func TestAbortBeforeCommitLeavesNoCommitRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	lm, err := Open(path, 4096)
	if err != nil {
		t.Fatal(err)
	}

	rid := ids.NewRID(ids.NewPageID(1, 0), 1)
	lm.LogInsert(rid, []byte("record1"))
	lm.LogAbort(7)
	lm.LogEnd(7)
	lm.Flush()
	lm.Close()

	records, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range records {
		if r.Type == Commit {
			t.Fatal("found a commit record despite aborting before commit")
		}
	}
}

func TestOversizedRecordRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	lm, err := Open(path, 64)
	if err != nil {
		t.Fatal(err)
	}
	defer lm.Close()

	rid := ids.NewRID(ids.NewPageID(1, 0), 0)
	huge := make([]byte, 1024)
	if lm.LogInsert(rid, huge) {
		t.Fatal("expected oversized record to be rejected")
	}
}

func TestInvalidRIDRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	lm, err := Open(path, 4096)
	if err != nil {
		t.Fatal(err)
	}
	defer lm.Close()

	if lm.LogInsert(ids.InvalidRID, []byte("x")) {
		t.Fatal("expected invalid rid to be rejected")
	}
	if lm.LogDelete(ids.InvalidRID) {
		t.Fatal("expected invalid rid to be rejected")
	}
}
