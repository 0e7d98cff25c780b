// Package ids defines the fixed-width identifiers shared across the storage
// engine: page ids, record ids, and log sequence numbers.
//
// Layout follows the original coursework engine this package was modeled
// on: a PageId packs a 32-bit file id and a 16-bit page number into the top
// 48 bits of a uint64, leaving the low 16 bits free. A RID reuses exactly
// that free space for a slot number, so a RID's page portion can be
// recovered by simply masking off the low 16 bits.
package ids

import "math"

// PageSize is the fixed page size used by every base file in the engine.
const PageSize = 4096

// InvalidPageID is the sentinel value denoting "no such page".
const InvalidPageID PageID = PageID(math.MaxUint64)

// PageID is an opaque 64-bit identifier: file id in bits 32-63, page number
// in bits 16-31, and the low 16 bits reserved for slot encoding when reused
// as a RID.
type PageID uint64

// NewPageID packs a file id and page number into a PageID.
func NewPageID(fileID uint32, pageNum uint16) PageID {
	return PageID(uint64(fileID)<<32 | uint64(pageNum)<<16)
}

// IsValid reports whether p is not the sentinel invalid value.
func (p PageID) IsValid() bool {
	return p != InvalidPageID
}

// FileID returns the file id portion of p.
func (p PageID) FileID() uint32 {
	return uint32(uint64(p) >> 32)
}

// PageNum returns the page number portion of p.
func (p PageID) PageNum() uint16 {
	return uint16((uint64(p) & 0xffffffff) >> 16)
}

// Value returns the raw 64-bit encoding, e.g. for use as a map key.
func (p PageID) Value() uint64 {
	return uint64(p)
}

// InvalidRID is the sentinel value denoting "no such record".
const InvalidRID RID = RID(math.MaxUint64)

// RID identifies a record: the PageID of its containing page ORed with a
// 16-bit slot number.
type RID uint64

// NewRID builds a RID from a page id and slot number.
func NewRID(pid PageID, slot uint16) RID {
	return RID(uint64(pid) | uint64(slot))
}

// IsValid reports whether r is not the sentinel invalid value.
func (r RID) IsValid() bool {
	return r != InvalidRID
}

// PageID returns the page id portion of r (the slot bits cleared).
func (r RID) PageID() PageID {
	return PageID(uint64(r) &^ 0xffff)
}

// Slot returns the slot number portion of r.
func (r RID) Slot() uint16 {
	return uint16(uint64(r) & 0xffff)
}

// Value returns the raw 64-bit encoding, used as the lock table key and the
// log record's data-mutation identifier.
func (r RID) Value() uint64 {
	return uint64(r)
}

// LSN is a byte offset into the write-ahead log, used as a log sequence
// number.
type LSN = uint64

// InvalidTimestamp is returned by Transaction.Abort when the abort protocol
// itself fails, matching the original engine's kInvalidTimestamp sentinel.
const InvalidTimestamp uint64 = math.MaxUint64
