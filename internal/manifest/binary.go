package manifest

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/graphstore/internal/diskarray"
	"github.com/hupe1980/graphstore/internal/hash"
	"github.com/hupe1980/graphstore/internal/types"
)

const (
	binaryMagic   = 0x464d5347 // "GSMF"
	binaryVersion = 1
	maxPayload    = 1 << 30
)

// WriteBinary writes the manifest in binary format.
func (m *Manifest) WriteBinary(w io.Writer) error {
	pb := newPayloadBuffer(make([]byte, 0, 256+len(m.Stats)+len(m.Tables)*256))

	pb.writeUint64(m.ID)
	pb.writeUint64(uint64(m.CreatedAt.UnixNano()))
	pb.writeUint8(m.NodeGroupSizeLog2)
	pb.writeUint32(m.NumDataPages)
	pb.writeUint64(uint64(m.NextTableID))
	pb.writeUint64(m.NextTxID)
	pb.writeUint32(uint32(len(m.Tables)))
	for _, t := range m.Tables {
		pb.writeUint64(uint64(t.ID))
		pb.writeUint8(uint8(t.Kind))
		pb.writeString(t.Name)
		pb.writeUint32(uint32(t.PrimaryKey))
		pb.writeUint64(uint64(t.SrcTableID))
		pb.writeUint64(uint64(t.DstTableID))
		pb.writeString(t.PKIndexPath)
		pb.writeUint32(uint32(len(t.Properties)))
		for _, p := range t.Properties {
			pb.writeString(p.Name)
			pb.writeUint8(uint8(p.DataType))
			pb.writeUint32(uint32(p.PropertyID))
		}
		pb.writeUint32(uint32(len(t.Columns)))
		for _, c := range t.Columns {
			pb.writeUint32(uint32(c.PropertyID))
			pb.writeArrayHeader(c.Metadata)
			pb.writeArrayHeader(c.Nulls)
			pb.writeArrayHeader(c.Dictionary)
			pb.writeBool(c.MayHaveNull)
		}
	}
	pb.writeBytes(m.Stats)

	if pb.err != nil {
		return pb.err
	}

	payload := pb.buf
	header := make([]byte, 16)
	binary.LittleEndian.PutUint32(header[0:4], binaryMagic)
	binary.LittleEndian.PutUint32(header[4:8], binaryVersion)
	binary.LittleEndian.PutUint32(header[8:12], hash.CRC32C(payload))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadBinary reads the manifest from binary format.
func ReadBinary(r io.Reader) (*Manifest, error) {
	header := make([]byte, 16)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}

	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != binaryMagic {
		return nil, fmt.Errorf("%w: invalid magic %x", ErrCorrupt, magic)
	}
	version := binary.LittleEndian.Uint32(header[4:8])
	if version != binaryVersion {
		return nil, fmt.Errorf("%w: %d", ErrIncompatibleVersion, version)
	}
	checksum := binary.LittleEndian.Uint32(header[8:12])
	length := binary.LittleEndian.Uint32(header[12:16])
	if length > maxPayload {
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrCorrupt, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrCorrupt, err)
	}
	if hash.CRC32C(payload) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	pb := newPayloadBuffer(payload)
	m := &Manifest{Version: int(version)}

	m.ID = pb.readUint64()
	m.CreatedAt = time.Unix(0, int64(pb.readUint64()))
	m.NodeGroupSizeLog2 = pb.readUint8()
	m.NumDataPages = pb.readUint32()
	m.NextTableID = types.TableID(pb.readUint64())
	m.NextTxID = pb.readUint64()

	numTables := pb.readCount()
	m.Tables = make([]TableInfo, numTables)
	for i := range m.Tables {
		t := &m.Tables[i]
		t.ID = types.TableID(pb.readUint64())
		t.Kind = TableKind(pb.readUint8())
		t.Name = pb.readString()
		t.PrimaryKey = types.PropertyID(pb.readUint32())
		t.SrcTableID = types.TableID(pb.readUint64())
		t.DstTableID = types.TableID(pb.readUint64())
		t.PKIndexPath = pb.readString()
		t.Properties = make([]types.Property, pb.readCount())
		for j := range t.Properties {
			t.Properties[j] = types.Property{
				Name:       pb.readString(),
				DataType:   types.PhysicalType(pb.readUint8()),
				PropertyID: types.PropertyID(pb.readUint32()),
				TableID:    t.ID,
			}
		}
		t.Columns = make([]ColumnInfo, pb.readCount())
		for j := range t.Columns {
			t.Columns[j] = ColumnInfo{
				PropertyID:  types.PropertyID(pb.readUint32()),
				Metadata:    pb.readArrayHeader(),
				Nulls:       pb.readArrayHeader(),
				Dictionary:  pb.readArrayHeader(),
				MayHaveNull: pb.readBool(),
			}
		}
	}
	m.Stats = pb.readBytes()

	if pb.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, pb.err)
	}
	return m, nil
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func newPayloadBuffer(b []byte) *payloadBuffer {
	return &payloadBuffer{buf: b}
}

func (p *payloadBuffer) writeUint8(v uint8) {
	if p.err != nil {
		return
	}
	p.buf = append(p.buf, v)
}

func (p *payloadBuffer) writeBool(v bool) {
	if v {
		p.writeUint8(1)
		return
	}
	p.writeUint8(0)
}

func (p *payloadBuffer) writeUint64(v uint64) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

func (p *payloadBuffer) writeUint32(v uint32) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *payloadBuffer) writeString(s string) {
	if p.err != nil {
		return
	}
	if len(s) > 65535 {
		p.err = fmt.Errorf("manifest: string too long: %d", len(s))
		return
	}
	p.buf = binary.LittleEndian.AppendUint16(p.buf, uint16(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *payloadBuffer) writeBytes(b []byte) {
	p.writeUint32(uint32(len(b)))
	if p.err != nil {
		return
	}
	p.buf = append(p.buf, b...)
}

func (p *payloadBuffer) writeArrayHeader(h diskarray.Header) {
	p.writeUint64(h.NumElements)
	p.writeUint32(h.FirstPIP)
}

// take returns the next n bytes, or nil once the payload is exhausted.
func (p *payloadBuffer) take(n int) []byte {
	if p.err != nil {
		return nil
	}
	if n < 0 || p.pos+n > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return nil
	}
	b := p.buf[p.pos : p.pos+n]
	p.pos += n
	return b
}

func (p *payloadBuffer) readUint8() uint8 {
	if b := p.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (p *payloadBuffer) readBool() bool { return p.readUint8() != 0 }

func (p *payloadBuffer) readUint64() uint64 {
	if b := p.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (p *payloadBuffer) readUint32() uint32 {
	if b := p.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

// readCount reads an element count and rejects counts the remaining payload
// cannot hold.
func (p *payloadBuffer) readCount() int {
	n := int(p.readUint32())
	if p.err == nil && n > len(p.buf)-p.pos {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	return n
}

func (p *payloadBuffer) readString() string {
	if p.err != nil {
		return ""
	}
	b := p.take(2)
	if b == nil {
		return ""
	}
	return string(p.take(int(binary.LittleEndian.Uint16(b))))
}

func (p *payloadBuffer) readBytes() []byte {
	n := int(p.readUint32())
	b := p.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (p *payloadBuffer) readArrayHeader() diskarray.Header {
	return diskarray.Header{NumElements: p.readUint64(), FirstPIP: p.readUint32()}
}
