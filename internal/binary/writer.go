package binary

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Writer accumulates little-endian encoded bytes, used by the canonical
// module builder (module.Builder) to emit SBC sections.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the bytes written so far.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return w.buf.Len() }

func (w *Writer) WriteByte(b byte) { w.buf.WriteByte(b) }

func (w *Writer) WriteBytes(b []byte) { w.buf.Write(b) }

func (w *Writer) WriteU8(v uint8) { w.buf.WriteByte(v) }

func (w *Writer) WriteI8(v int8) { w.buf.WriteByte(byte(v)) }

func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteI16(v int16) { w.WriteU16(uint16(v)) }

func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteI32(v int32) { w.WriteU32(uint32(v)) }

func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteI64(v int64) { w.WriteU64(uint64(v)) }

// WriteU128 writes a 16-byte little-endian value from (high, low) halves,
// the inverse of Reader.ReadU128.
func (w *Writer) WriteU128(hi, lo uint64) {
	w.WriteU64(lo)
	w.WriteU64(hi)
}

func (w *Writer) WriteF32(v float32) { w.WriteU32(math.Float32bits(v)) }

func (w *Writer) WriteF64(v float64) { w.WriteU64(math.Float64bits(v)) }

// WriteCString writes s followed by a single NUL terminator.
func (w *Writer) WriteCString(s string) {
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
}

// PadTo4 pads the buffer with zero bytes until its length is a multiple of
// four, matching the module's 4-byte section alignment contract.
func (w *Writer) PadTo4() {
	for w.buf.Len()%4 != 0 {
		w.buf.WriteByte(0)
	}
}
