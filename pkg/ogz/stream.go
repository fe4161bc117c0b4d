package ogz

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
)

// Reader is a little-endian cursor over a map stream. It keeps a running
// CRC32 of every byte consumed, including skipped ones. The first failure is
// sticky: the failing call and every later one return zero values and Err
// reports the failure.
type Reader struct {
	r   io.Reader
	crc uint32
	pos int64
	err error
	buf [8]byte
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) fill(p []byte) bool {
	if r.err != nil {
		clear(p)
		return false
	}
	n, err := io.ReadFull(r.r, p)
	r.crc = crc32.Update(r.crc, crc32.IEEETable, p[:n])
	r.pos += int64(n)
	if err != nil {
		clear(p)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			r.err = fmt.Errorf("%w: at offset %d", ErrTruncated, r.pos)
		} else {
			r.err = err
		}
		return false
	}
	return true
}

// U8 reads one byte.
func (r *Reader) U8() uint8 {
	b := r.buf[:1]
	r.fill(b)
	return b[0]
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() uint16 {
	b := r.buf[:2]
	r.fill(b)
	return binary.LittleEndian.Uint16(b)
}

// I16 reads a little-endian int16.
func (r *Reader) I16() int16 { return int16(r.U16()) }

// U32 reads a little-endian uint32.
func (r *Reader) U32() uint32 {
	b := r.buf[:4]
	r.fill(b)
	return binary.LittleEndian.Uint32(b)
}

// I32 reads a little-endian int32.
func (r *Reader) I32() int32 { return int32(r.U32()) }

// F32 reads a little-endian IEEE float.
func (r *Reader) F32() float32 { return math.Float32frombits(r.U32()) }

// ReadFull fills p. It reports false on a short read.
func (r *Reader) ReadFull(p []byte) bool { return r.fill(p) }

// Bytes reads n bytes into a new slice.
func (r *Reader) Bytes(n int) []byte {
	if n <= 0 {
		return nil
	}
	p := make([]byte, n)
	r.fill(p)
	return p
}

// String reads n bytes and returns them as a string.
func (r *Reader) String(n int) string { return string(r.Bytes(n)) }

// Skip consumes n bytes. Skipped bytes still feed the checksum.
func (r *Reader) Skip(n int64) {
	if n <= 0 || r.err != nil {
		return
	}
	got, err := io.CopyN(crcWriter{r}, r.r, n)
	r.pos += got
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.err = fmt.Errorf("%w: at offset %d", ErrTruncated, r.pos)
		} else {
			r.err = err
		}
	}
}

// Drain consumes the rest of the stream so that CRC covers all of it.
func (r *Reader) Drain() error {
	if r.err != nil {
		return r.err
	}
	got, err := io.Copy(crcWriter{r}, r.r)
	r.pos += got
	if err != nil {
		r.err = err
	}
	return r.err
}

// CRC returns the checksum of every byte consumed so far.
func (r *Reader) CRC() uint32 { return r.crc }

// Pos returns the number of bytes consumed.
func (r *Reader) Pos() int64 { return r.pos }

// Err returns the first read failure.
func (r *Reader) Err() error { return r.err }

type crcWriter struct{ r *Reader }

func (w crcWriter) Write(p []byte) (int, error) {
	w.r.crc = crc32.Update(w.r.crc, crc32.IEEETable, p)
	return len(p), nil
}

// Writer is the little-endian output counterpart of Reader with the same
// sticky error behavior.
type Writer struct {
	w   io.Writer
	pos int64
	err error
	buf [8]byte
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// PutBytes writes p.
func (w *Writer) PutBytes(p []byte) {
	if w.err != nil || len(p) == 0 {
		return
	}
	n, err := w.w.Write(p)
	w.pos += int64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	w.err = err
}

// PutU8 writes one byte.
func (w *Writer) PutU8(v uint8) {
	w.buf[0] = v
	w.PutBytes(w.buf[:1])
}

// PutU16 writes a little-endian uint16.
func (w *Writer) PutU16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[:2], v)
	w.PutBytes(w.buf[:2])
}

// PutI16 writes a little-endian int16.
func (w *Writer) PutI16(v int16) { w.PutU16(uint16(v)) }

// PutU32 writes a little-endian uint32.
func (w *Writer) PutU32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.PutBytes(w.buf[:4])
}

// PutI32 writes a little-endian int32.
func (w *Writer) PutI32(v int32) { w.PutU32(uint32(v)) }

// PutF32 writes a little-endian IEEE float.
func (w *Writer) PutF32(v float32) { w.PutU32(math.Float32bits(v)) }

// PutString writes the raw bytes of s.
func (w *Writer) PutString(s string) { w.PutBytes([]byte(s)) }

// Pos returns the number of bytes written.
func (w *Writer) Pos() int64 { return w.pos }

// Err returns the first write failure.
func (w *Writer) Err() error { return w.err }
