// Package binary provides the low-level little-endian codec SBC modules are
// built from: fixed-width integer/float reads and writes over a byte slice,
// with bounds and alignment checks baked into every accessor so callers
// never need a manual length check before reading.
package binary

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// BoundsError is returned by every bounds failure so callers can detect it
// with errors.As independent of the reported position.
type BoundsError struct {
	Pos, Need, Len int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("at position %d: need %d bytes, have %d", e.Pos, e.Need, e.Len)
}

// Reader reads little-endian scalars from a fixed byte slice, tracking a
// cursor position and rejecting any access that would run past the end of
// the slice.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps data for sequential little-endian reads starting at 0.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Position returns the current cursor offset.
func (r *Reader) Position() int { return r.pos }

// Len returns the total length of the underlying buffer.
func (r *Reader) Len() int { return len(r.data) }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// Seek moves the cursor to an absolute offset within the buffer.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return r.wrapErr(pos, 0)
	}
	r.pos = pos
	return nil
}

func (r *Reader) wrapErr(pos, need int) error {
	return &BoundsError{Pos: pos, Need: need, Len: len(r.data)}
}

func (r *Reader) need(n int) error {
	if r.pos < 0 || n < 0 || r.pos+n > len(r.data) {
		return r.wrapErr(r.pos, n)
	}
	return nil
}

// ReadByte reads a single byte and advances the cursor.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, r.wrapErr(r.pos, n)
	}
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// PeekBytes reads n bytes at an absolute offset without moving the cursor.
func (r *Reader) PeekBytes(offset, n int) ([]byte, error) {
	if offset < 0 || n < 0 || offset+n > len(r.data) {
		return nil, r.wrapErr(offset, n)
	}
	return r.data[offset : offset+n], nil
}

// RequireAligned4 fails unless the cursor sits on a 4-byte boundary, per
// spec.md §4.1's "4-byte aligned" section/offset contract.
func (r *Reader) RequireAligned4() error {
	if r.pos%4 != 0 {
		return fmt.Errorf("offset %d is not 4-byte aligned", r.pos)
	}
	return nil
}

func (r *Reader) ReadU8() (uint8, error) { return r.ReadByte() }

func (r *Reader) ReadI8() (int8, error) {
	b, err := r.ReadByte()
	return int8(b), err
}

func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadI16() (int16, error) {
	v, err := r.ReadU16()
	return int16(v), err
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

// ReadU128 reads a 16-byte little-endian unsigned 128-bit value as
// (high, low) 64-bit halves, per spec.md §3's "high then low" slot order.
func (r *Reader) ReadU128() (hi, lo uint64, err error) {
	b, err := r.ReadBytes(16)
	if err != nil {
		return 0, 0, err
	}
	lo = binary.LittleEndian.Uint64(b[0:8])
	hi = binary.LittleEndian.Uint64(b[8:16])
	return hi, lo, nil
}

func (r *Reader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) ReadF64() (float64, error) {
	v, err := r.ReadU64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadCString reads a NUL-terminated UTF-8 string starting at the cursor,
// used to resolve *_str fields into the const-pool's string region.
func (r *Reader) ReadCString() (string, error) {
	start := r.pos
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", fmt.Errorf("unterminated string starting at %d: %w", start, err)
		}
		if b == 0 {
			break
		}
	}
	s := r.data[start : r.pos-1]
	if !utf8.Valid(s) {
		return "", fmt.Errorf("invalid UTF-8 in string at %d", start)
	}
	return string(s), nil
}

// ReadCStringAt reads a NUL-terminated UTF-8 string at an absolute offset
// without disturbing the cursor.
func ReadCStringAt(data []byte, offset int) (string, error) {
	if offset < 0 || offset > len(data) {
		return "", fmt.Errorf("string offset %d out of range (len %d)", offset, len(data))
	}
	end := offset
	for end < len(data) && data[end] != 0 {
		end++
	}
	if end >= len(data) {
		return "", fmt.Errorf("unterminated string at offset %d", offset)
	}
	s := data[offset:end]
	if !utf8.Valid(s) {
		return "", fmt.Errorf("invalid UTF-8 in string at offset %d", offset)
	}
	return string(s), nil
}
