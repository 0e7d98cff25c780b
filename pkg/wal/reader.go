package wal

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// Record is the decoded form of one on-disk log record.
type Record struct {
	Type        RecordType
	ID          uint64 // RID value for data ops, tx timestamp for control records
	Payload     []byte
	TrailingLSN uint64
	Offset      uint64 // byte offset this record starts at, i.e. its LSN
}

// ReadAll decodes every record durable in the log file at path, in append
// order, verifying each record's checksum. It is read-only and does not
// require a LogManager to be open on the same file; used by tests and by
// anything that needs to inspect durable log contents directly.
func ReadAll(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s for read: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	var records []Record
	var offset int64
	header := make([]byte, headerSize)

	for offset < info.Size() {
		if _, err := io.ReadFull(f, header); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("wal: read header at %d: %w", offset, err)
		}

		typ := RecordType(header[headerOffType])
		id := binary.LittleEndian.Uint64(header[headerOffID:])
		payloadLen := binary.LittleEndian.Uint32(header[headerOffPayloadLen:])

		rest := make([]byte, int(payloadLen)+trailerLSNSize+trailerChecksumSize)
		if _, err := io.ReadFull(f, rest); err != nil {
			return nil, fmt.Errorf("wal: read record body at %d: %w", offset, err)
		}

		payload := rest[:payloadLen]
		trailingLSN := binary.LittleEndian.Uint64(rest[payloadLen:])
		checksum := binary.LittleEndian.Uint64(rest[int(payloadLen)+trailerLSNSize:])

		want := xxhash.Sum64(append(append([]byte{}, header...), rest[:int(payloadLen)+trailerLSNSize]...))
		if want != checksum {
			return nil, fmt.Errorf("wal: checksum mismatch at offset %d", offset)
		}

		records = append(records, Record{
			Type:        typ,
			ID:          id,
			Payload:     payload,
			TrailingLSN: trailingLSN,
			Offset:      uint64(offset),
		})

		size := int64(recordSize(int(payloadLen)))
		offset += size
	}

	return records, nil
}
