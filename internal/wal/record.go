package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/graphstore/internal/hash"
	"github.com/hupe1980/graphstore/internal/types"
)

// RecordType identifies the type of WAL record.
type RecordType uint8

const (
	RecordTypeNodeTable RecordType = iota + 1
	RecordTypeRelTable
	RecordTypeDropTable
	RecordTypeDropProperty
	RecordTypeCommit
	RecordTypeRollback
	RecordTypeCheckpoint
)

func (t RecordType) String() string {
	switch t {
	case RecordTypeNodeTable:
		return "NODE_TABLE"
	case RecordTypeRelTable:
		return "REL_TABLE"
	case RecordTypeDropTable:
		return "DROP_TABLE"
	case RecordTypeDropProperty:
		return "DROP_PROPERTY"
	case RecordTypeCommit:
		return "COMMIT"
	case RecordTypeRollback:
		return "ROLLBACK"
	case RecordTypeCheckpoint:
		return "CHECKPOINT"
	}
	return fmt.Sprintf("RecordType(%d)", uint8(t))
}

var (
	ErrInvalidCRC  = errors.New("wal: invalid record checksum")
	ErrInvalidType = errors.New("wal: invalid record type")
	ErrShortRead   = errors.New("wal: short record payload")
)

const (
	// recordHeaderSize is type, LSN and payload length.
	recordHeaderSize = 1 + 8 + 4
	payloadSize      = 8 + 8 + 4
	// RecordSize is the encoded size of every record.
	RecordSize = 4 + recordHeaderSize + payloadSize
)

// Record is one WAL entry. TxID is set on commit and rollback records,
// TableID on table records and PropertyID on property records.
type Record struct {
	LSN        uint64
	Type       RecordType
	TxID       uint64
	TableID    types.TableID
	PropertyID types.PropertyID
}

// Encode writes the record to w.
// Format:
// [CRC32C: 4 bytes] [Type: 1 byte] [LSN: 8 bytes] [Length: 4 bytes] [Payload: Length bytes]
// Payload: [TxID: 8 bytes] [TableID: 8 bytes] [PropertyID: 4 bytes]
func (r *Record) Encode(w io.Writer) error {
	var buf [RecordSize]byte
	body := buf[4:]
	body[0] = byte(r.Type)
	binary.LittleEndian.PutUint64(body[1:], r.LSN)
	binary.LittleEndian.PutUint32(body[9:], payloadSize)
	payload := body[recordHeaderSize:]
	binary.LittleEndian.PutUint64(payload[0:], r.TxID)
	binary.LittleEndian.PutUint64(payload[8:], uint64(r.TableID))
	binary.LittleEndian.PutUint32(payload[16:], uint32(r.PropertyID))
	binary.LittleEndian.PutUint32(buf[:4], hash.CRC32C(body))
	_, err := w.Write(buf[:])
	return err
}

// Decode reads a record from r. It returns the number of bytes consumed.
func Decode(r io.Reader) (*Record, int64, error) {
	var head [4 + recordHeaderSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, 0, err
	}
	length := binary.LittleEndian.Uint32(head[4+9:])
	if length != payloadSize {
		return nil, int64(len(head)), fmt.Errorf("%w: payload of %d bytes", ErrShortRead, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, int64(len(head)), err
	}
	n := int64(len(head)) + int64(length)

	if hash.CRC32CParts(head[4:], payload) != binary.LittleEndian.Uint32(head[:4]) {
		return nil, n, ErrInvalidCRC
	}
	rec := &Record{
		Type:       RecordType(head[4]),
		LSN:        binary.LittleEndian.Uint64(head[5:]),
		TxID:       binary.LittleEndian.Uint64(payload[0:]),
		TableID:    types.TableID(binary.LittleEndian.Uint64(payload[8:])),
		PropertyID: types.PropertyID(binary.LittleEndian.Uint32(payload[16:])),
	}
	if rec.Type < RecordTypeNodeTable || rec.Type > RecordTypeCheckpoint {
		return nil, n, fmt.Errorf("%w: %d", ErrInvalidType, rec.Type)
	}
	return rec, n, nil
}
