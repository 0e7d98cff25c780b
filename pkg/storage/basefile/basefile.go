// Package basefile wraps a single OS file as a flat array of fixed-size
// pages: raw positional reads/writes plus page allocation. It owns no
// caching — that is the buffer pool's job (see pkg/storage/buffer).
package basefile

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"ledgercore/pkg/ids"
)

// BaseFile is one OS file truncated and opened read/write on creation. The
// page counter is the sole source of truth for allocated page numbers:
// CreatePage increments it atomically so concurrent callers receive
// distinct, contiguous page numbers.
type BaseFile struct {
	id   uint32
	path string

	file      *os.File
	pageCount atomic.Uint32

	mu sync.Mutex // serializes CreatePage's rollback-on-failure path
}

// Open creates (truncating) or reopens path as a base file identified by
// fileID within the engine's file registry.
func Open(fileID uint32, path string) (*BaseFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("basefile: open %s: %w", path, err)
	}
	return &BaseFile{id: fileID, path: path, file: f}, nil
}

// FileID returns the file id this base file was registered under.
func (bf *BaseFile) FileID() uint32 { return bf.id }

// PageCount returns the number of pages created so far.
func (bf *BaseFile) PageCount() uint32 { return bf.pageCount.Load() }

// CreatePage atomically reserves the next page number and writes a
// zero-filled page at its offset. On write failure the counter is rolled
// back and an invalid PageId is returned.
func (bf *BaseFile) CreatePage() (ids.PageID, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	num := bf.pageCount.Load()
	if num > 0xffff {
		return ids.InvalidPageID, fmt.Errorf("basefile: %s exhausted page number space", bf.path)
	}
	pid := ids.NewPageID(bf.id, uint16(num))

	var zero [ids.PageSize]byte
	if _, err := bf.file.WriteAt(zero[:], int64(num)*ids.PageSize); err != nil {
		return ids.InvalidPageID, fmt.Errorf("basefile: create page %d: %w", num, err)
	}
	bf.pageCount.Add(1)
	return pid, nil
}

// LoadPage reads exactly PageSize bytes for pid into out. Returns false if
// pid is invalid or fewer than PageSize bytes could be read.
func (bf *BaseFile) LoadPage(pid ids.PageID, out []byte) bool {
	if !pid.IsValid() || len(out) != ids.PageSize {
		return false
	}
	offset := int64(pid.PageNum()) * ids.PageSize
	n, err := bf.file.ReadAt(out, offset)
	return err == nil && n == ids.PageSize
}

// FlushPage writes exactly PageSize bytes from buf for pid, then issues a
// durability barrier before reporting success.
func (bf *BaseFile) FlushPage(pid ids.PageID, buf []byte) bool {
	if !pid.IsValid() || len(buf) != ids.PageSize {
		return false
	}
	offset := int64(pid.PageNum()) * ids.PageSize
	if _, err := bf.file.WriteAt(buf, offset); err != nil {
		return false
	}
	return bf.file.Sync() == nil
}

// Close issues a durability barrier and closes the underlying file.
func (bf *BaseFile) Close() error {
	if err := bf.file.Sync(); err != nil {
		return fmt.Errorf("basefile: sync %s on close: %w", bf.path, err)
	}
	return bf.file.Close()
}
