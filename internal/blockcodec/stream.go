package blockcodec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultBlockSize is the block size used by NewWriter when blockSize <= 0.
const DefaultBlockSize = 256 * 1024

// Writer splits a byte stream into compressed blocks.
type Writer struct {
	w         io.Writer
	t         Type
	blockSize int
	buffer    *bytes.Buffer
	written   int64
}

// NewWriter returns a Writer emitting blocks of at most blockSize raw bytes.
func NewWriter(w io.Writer, t Type, blockSize int) *Writer {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Writer{
		w:         w,
		t:         t,
		blockSize: blockSize,
		buffer:    bytes.NewBuffer(make([]byte, 0, blockSize)),
	}
}

// Write buffers p, emitting full blocks as needed.
func (c *Writer) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		space := c.blockSize - c.buffer.Len()
		if space <= 0 {
			if err := c.flushBlock(); err != nil {
				return total, err
			}
			space = c.blockSize
		}
		n, _ := c.buffer.Write(p[:min(len(p), space)])
		total += n
		p = p[n:]
	}
	return total, nil
}

func (c *Writer) flushBlock() error {
	if c.buffer.Len() == 0 {
		return nil
	}
	block, err := Compress(c.buffer.Bytes(), c.t)
	if err != nil {
		return err
	}
	n, err := c.w.Write(block)
	c.written += int64(n)
	if err != nil {
		return err
	}
	c.buffer.Reset()
	return nil
}

// Flush emits the buffered partial block.
func (c *Writer) Flush() error { return c.flushBlock() }

// BytesWritten returns the number of framed bytes written so far.
func (c *Writer) BytesWritten() int64 { return c.written }

// Reader decodes a stream written by Writer.
type Reader struct {
	r   io.Reader
	t   Type
	buf []byte
	hdr [HeaderSize]byte
}

// NewReader returns a Reader decoding blocks of type t from r.
func NewReader(r io.Reader, t Type) *Reader {
	return &Reader{r: r, t: t}
}

// Read implements io.Reader.
func (c *Reader) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		if err := c.next(); err != nil {
			return 0, err
		}
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

func (c *Reader) next() error {
	if _, err := io.ReadFull(c.r, c.hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: truncated header", ErrCorrupt)
		}
		return err
	}
	size, _ := FrameSize(c.hdr[:])
	frame := make([]byte, size)
	copy(frame, c.hdr[:])
	if _, err := io.ReadFull(c.r, frame[HeaderSize:]); err != nil {
		return fmt.Errorf("%w: truncated block: %w", ErrCorrupt, err)
	}
	if binary.LittleEndian.Uint32(c.hdr[4:]) == 0 {
		c.buf = frame[HeaderSize:]
		return nil
	}
	data, err := Decompress(frame, c.t)
	if err != nil {
		return err
	}
	c.buf = data
	return nil
}
