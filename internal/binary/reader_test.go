package binary

import (
	"bytes"
	"testing"
)

func TestReaderReadByte(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	r := NewReader(data)

	for i, want := range data {
		if r.Position() != i {
			t.Errorf("position before read %d: got %d, want %d", i, r.Position(), i)
		}
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte %d: %v", i, err)
		}
		if b != want {
			t.Errorf("ReadByte %d: got 0x%02x, want 0x%02x", i, b, want)
		}
	}

	if _, err := r.ReadByte(); err == nil {
		t.Error("expected bounds error past end of buffer")
	}
}

func TestReaderReadBytesPastEnd(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	if _, err := r.ReadBytes(10); err == nil {
		t.Error("expected error reading past end")
	}
}

func TestReaderLittleEndianRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteU16(0x1234)
	w.WriteU32(0xDEADBEEF)
	w.WriteI32(-1)
	w.WriteU64(0x0102030405060708)
	w.WriteF32(3.5)
	w.WriteF64(2.25)
	w.WriteU128(0x1, 0x2)

	r := NewReader(w.Bytes())
	if v, err := r.ReadU16(); err != nil || v != 0x1234 {
		t.Fatalf("ReadU16: got %#x, %v", v, err)
	}
	if v, err := r.ReadU32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("ReadU32: got %#x, %v", v, err)
	}
	if v, err := r.ReadI32(); err != nil || v != -1 {
		t.Fatalf("ReadI32: got %d, %v", v, err)
	}
	if v, err := r.ReadU64(); err != nil || v != 0x0102030405060708 {
		t.Fatalf("ReadU64: got %#x, %v", v, err)
	}
	if v, err := r.ReadF32(); err != nil || v != 3.5 {
		t.Fatalf("ReadF32: got %v, %v", v, err)
	}
	if v, err := r.ReadF64(); err != nil || v != 2.25 {
		t.Fatalf("ReadF64: got %v, %v", v, err)
	}
	if hi, lo, err := r.ReadU128(); err != nil || hi != 1 || lo != 2 {
		t.Fatalf("ReadU128: got hi=%d lo=%d, %v", hi, lo, err)
	}
}

func TestReaderRequireAligned4(t *testing.T) {
	r := NewReader(make([]byte, 16))
	if err := r.RequireAligned4(); err != nil {
		t.Fatalf("expected aligned at 0: %v", err)
	}
	if _, err := r.ReadByte(); err != nil {
		t.Fatal(err)
	}
	if err := r.RequireAligned4(); err == nil {
		t.Error("expected alignment error at offset 1")
	}
}

func TestReadCString(t *testing.T) {
	data := append([]byte("hello"), 0, 'x')
	r := NewReader(data)
	s, err := r.ReadCString()
	if err != nil {
		t.Fatalf("ReadCString: %v", err)
	}
	if s != "hello" {
		t.Errorf("ReadCString: got %q, want %q", s, "hello")
	}
	if r.Position() != 6 {
		t.Errorf("position: got %d, want 6", r.Position())
	}
}

func TestReadCStringAt(t *testing.T) {
	data := []byte("abc\x00def\x00")
	s, err := ReadCStringAt(data, 4)
	if err != nil {
		t.Fatalf("ReadCStringAt: %v", err)
	}
	if s != "def" {
		t.Errorf("got %q, want %q", s, "def")
	}

	if _, err := ReadCStringAt(data, 100); err == nil {
		t.Error("expected out-of-range error")
	}

	unterminated := []byte("noterm")
	if _, err := ReadCStringAt(unterminated, 0); err == nil {
		t.Error("expected unterminated string error")
	}
}

func TestReadCStringInvalidUTF8(t *testing.T) {
	data := []byte{0xff, 0xfe, 0x00}
	if _, err := ReadCStringAt(data, 0); err == nil {
		t.Error("expected invalid utf8 error")
	}
}

func TestPeekBytesDoesNotAdvance(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4})
	b, err := r.PeekBytes(1, 2)
	if err != nil {
		t.Fatalf("PeekBytes: %v", err)
	}
	if !bytes.Equal(b, []byte{2, 3}) {
		t.Errorf("got %v, want [2 3]", b)
	}
	if r.Position() != 0 {
		t.Errorf("PeekBytes should not move cursor, got pos %d", r.Position())
	}
}
