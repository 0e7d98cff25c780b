package page

import "encoding/binary"

// Directory entry binary layout (all values little-endian), repeated
// EntrySize-byte entries packed back to back across a directory page:
//
//	Offset  Size  Field
//	────────────────────────────────
//	0       2     FreeSlots  uint16
//	2       1     Allocated  bool
//	3       1     Created    bool
const (
	entryOffFreeSlots = 0
	entryOffAllocated = 2
	entryOffCreated   = 3

	// EntrySize is the packed byte size of one directory entry.
	EntrySize = 4
)

// EntriesPerDirPage returns E, the number of directory entries that fit on
// one directory page.
func EntriesPerDirPage(pageSize int) int {
	return pageSize / EntrySize
}

// InitDirPage marks every entry on a fresh directory page as
// created=false, allocated=false, free_slots=capacity.
func InitDirPage(data []byte, capacity int) {
	e := EntriesPerDirPage(len(data))
	for i := 0; i < e; i++ {
		SetEntry(data, i, DirEntry{FreeSlots: uint16(capacity)})
	}
}

// DirEntry is the decoded form of one directory entry.
type DirEntry struct {
	FreeSlots uint16
	Allocated bool
	Created   bool
}

// Entry decodes the index-th entry on a directory page.
func Entry(data []byte, index int) DirEntry {
	off := index * EntrySize
	return DirEntry{
		FreeSlots: binary.LittleEndian.Uint16(data[off+entryOffFreeSlots:]),
		Allocated: data[off+entryOffAllocated] != 0,
		Created:   data[off+entryOffCreated] != 0,
	}
}

// SetEntry encodes e into the index-th entry slot on a directory page.
func SetEntry(data []byte, index int, e DirEntry) {
	off := index * EntrySize
	binary.LittleEndian.PutUint16(data[off+entryOffFreeSlots:], e.FreeSlots)
	data[off+entryOffAllocated] = boolByte(e.Allocated)
	data[off+entryOffCreated] = boolByte(e.Created)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
