package module_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/sbclang/sbcvm/module"
	"github.com/sbclang/sbcvm/sbcerr"
)

func buildMinimal(t *testing.T) *module.Builder {
	t.Helper()
	b := module.NewBuilder()
	i32 := b.AddType(module.Type{Kind: module.KindI32})
	sig := b.AddSignature(module.Signature{RetTypeID: i32})
	name := b.InternString("main")
	methodID := b.AddMethod(module.Method{NameStr: name, SigID: sig})
	fnID := b.AddFunction(methodID, []byte{0x7D}) // Halt opcode byte
	b.AddExport("main", fnID, 0)
	b.SetEntryMethod(methodID)
	return b
}

func TestRoundTrip(t *testing.T) {
	b := buildMinimal(t)
	data := b.Encode()

	m, err := module.Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Functions) != 1 {
		t.Fatalf("got %d functions, want 1", len(m.Functions))
	}
	if len(m.Types) != 1 || m.Types[0].Kind != module.KindI32 {
		t.Fatalf("types not round-tripped: %+v", m.Types)
	}
	name, err := m.String(m.Methods[0].NameStr)
	if err != nil || name != "main" {
		t.Fatalf("method name: got %q, err %v", name, err)
	}

	// Re-encoding the loaded module's constituent parts through a fresh
	// Builder must reproduce the same bytes (the "emit -> load -> re-emit"
	// property).
	b2 := module.NewBuilder()
	i32 := b2.AddType(module.Type{Kind: module.KindI32})
	sig := b2.AddSignature(module.Signature{RetTypeID: i32})
	mName := b2.InternString("main")
	methodID := b2.AddMethod(module.Method{NameStr: mName, SigID: sig})
	fnID := b2.AddFunction(methodID, []byte{0x7D})
	b2.AddExport("main", fnID, 0)
	b2.SetEntryMethod(methodID)
	data2 := b2.Encode()

	if len(data) != len(data2) {
		t.Fatalf("re-encoded length differs: %d vs %d", len(data), len(data2))
	}
	for i := range data {
		if data[i] != data2[i] {
			t.Fatalf("re-encoded byte %d differs: %#x vs %#x", i, data[i], data2[i])
		}
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	data := buildMinimal(t).Encode()
	data[0] ^= 0xFF
	if _, err := module.Load(data); err == nil {
		t.Fatal("expected error for corrupted magic")
	}
}

func TestLoadRejectsMissingEntryMethod(t *testing.T) {
	b := buildMinimal(t)
	b.SetEntryMethod(99)
	data := b.Encode()
	if _, err := module.Load(data); err == nil {
		t.Fatal("expected error for entry method referencing no function")
	}
}

func TestLoadRejectsOverlappingFunctionCode(t *testing.T) {
	b := module.NewBuilder()
	sig := b.AddSignature(module.Signature{RetTypeID: module.VoidRet})
	m1 := b.AddMethod(module.Method{SigID: sig})
	m2 := b.AddMethod(module.Method{SigID: sig})
	b.AddFunction(m1, []byte{0x7D, 0x7D, 0x7D, 0x7D})
	b.AddFunction(m2, []byte{0x7D})
	data := b.Encode()

	if _, err := module.Load(data); err != nil {
		t.Fatalf("Load of disjoint functions should succeed: %v", err)
	}

	// Now corrupt the second function's code_offset record (id, offset,
	// size triplet, 12 bytes per function) to fall back inside the first
	// function's [0,4) range, producing a genuine code-range overlap.
	tableOff := binary.LittleEndian.Uint32(data[12:16])
	count := binary.LittleEndian.Uint32(data[8:12])
	var fnsOff uint32
	for i := uint32(0); i < count; i++ {
		entryOff := tableOff + i*16
		if module.SectionID(binary.LittleEndian.Uint32(data[entryOff:entryOff+4])) == module.SectionFunctions {
			fnsOff = binary.LittleEndian.Uint32(data[entryOff+4 : entryOff+8])
		}
	}
	if fnsOff == 0 {
		t.Fatal("expected a functions section")
	}
	secondRecord := fnsOff + 12 // each function record is method_id, code_offset, code_size
	binary.LittleEndian.PutUint32(data[secondRecord+4:secondRecord+8], 0)

	_, err := module.Load(data)
	if err == nil {
		t.Fatal("expected error for overlapping function code ranges")
	}
	var sbcErr *sbcerr.Error
	if !errors.As(err, &sbcErr) {
		t.Fatalf("expected *sbcerr.Error, got %T: %v", err, err)
	}
	if sbcErr.Kind != sbcerr.KindSectionOverlap {
		t.Fatalf("got kind %q, want %q", sbcErr.Kind, sbcerr.KindSectionOverlap)
	}
}

func TestLoadRejectsOverlappingSections(t *testing.T) {
	data := buildMinimal(t).Encode()

	tableOff := binary.LittleEndian.Uint32(data[12:16])
	count := binary.LittleEndian.Uint32(data[8:12])

	var methodsEntry, sigsEntry uint32
	for i := uint32(0); i < count; i++ {
		entryOff := tableOff + i*16
		id := binary.LittleEndian.Uint32(data[entryOff : entryOff+4])
		switch module.SectionID(id) {
		case module.SectionMethods:
			methodsEntry = entryOff
		case module.SectionSignatures:
			sigsEntry = entryOff
		}
	}
	if methodsEntry == 0 || sigsEntry == 0 {
		t.Fatal("expected both a methods and a signatures section entry")
	}

	// Point the signatures section's offset at the methods section's offset,
	// so the two non-empty byte ranges overlap.
	methodsOff := binary.LittleEndian.Uint32(data[methodsEntry+4 : methodsEntry+8])
	binary.LittleEndian.PutUint32(data[sigsEntry+4:sigsEntry+8], methodsOff)

	_, err := module.Load(data)
	if err == nil {
		t.Fatal("expected error for overlapping sections")
	}
	var sbcErr *sbcerr.Error
	if !errors.As(err, &sbcErr) {
		t.Fatalf("expected *sbcerr.Error, got %T: %v", err, err)
	}
	if sbcErr.Kind != sbcerr.KindSectionOverlap {
		t.Fatalf("got kind %q, want %q", sbcErr.Kind, sbcerr.KindSectionOverlap)
	}
}

func TestLoadRejectsUnknownSectionID(t *testing.T) {
	data := buildMinimal(t).Encode()

	tableOff := binary.LittleEndian.Uint32(data[12:16])
	// Corrupt the first section table entry's id to one no section uses.
	binary.LittleEndian.PutUint32(data[tableOff:tableOff+4], 0xFF)

	if _, err := module.Load(data); err == nil {
		t.Fatal("expected error for unknown section id")
	}
}

func TestLoadRejectsMisalignedSectionOffset(t *testing.T) {
	data := buildMinimal(t).Encode()

	tableOff := binary.LittleEndian.Uint32(data[12:16])
	off := binary.LittleEndian.Uint32(data[tableOff+4 : tableOff+8])
	binary.LittleEndian.PutUint32(data[tableOff+4:tableOff+8], off+1)

	_, err := module.Load(data)
	if err == nil {
		t.Fatal("expected error for misaligned section offset")
	}
	var sbcErr *sbcerr.Error
	if !errors.As(err, &sbcErr) {
		t.Fatalf("expected *sbcerr.Error, got %T: %v", err, err)
	}
	if sbcErr.Kind != sbcerr.KindBadAlignment {
		t.Fatalf("got kind %q, want %q", sbcErr.Kind, sbcerr.KindBadAlignment)
	}
}

func TestConstPoolTaggedEntries(t *testing.T) {
	b := module.NewBuilder()
	sig := b.AddSignature(module.Signature{RetTypeID: module.VoidRet})
	methodID := b.AddMethod(module.Method{SigID: sig})
	fnID := b.AddFunction(methodID, []byte{0x7D})
	b.SetEntryMethod(methodID)
	_ = fnID

	strID := b.AddConstString("hello")
	f64ID := b.AddConstF64(3.5)
	i128ID := b.AddConstI128(0, 42)
	jtID := b.AddConstJmpTable([]int32{4, 8, -2})

	data := b.Encode()
	m, err := module.Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Consts.Entries[strID].Tag != module.ConstTagString {
		t.Errorf("const %d: wrong tag", strID)
	}
	s, err := m.String(m.Consts.Entries[strID].StrOffset)
	if err != nil || s != "hello" {
		t.Errorf("const string: got %q, err %v", s, err)
	}
	if m.Consts.Entries[f64ID].F64 != 3.5 {
		t.Errorf("const f64: got %v", m.Consts.Entries[f64ID].F64)
	}
	if m.Consts.Entries[i128ID].Lo != 42 {
		t.Errorf("const i128: got %+v", m.Consts.Entries[i128ID])
	}
	got := m.Consts.Entries[jtID].CaseOffsets
	if len(got) != 3 || got[2] != -2 {
		t.Errorf("const jmp table: got %v", got)
	}
}

func TestLoadRejectsDuplicateImport(t *testing.T) {
	b := module.NewBuilder()
	sig := b.AddSignature(module.Signature{RetTypeID: module.VoidRet})
	methodID := b.AddMethod(module.Method{SigID: sig})
	b.AddFunction(methodID, []byte{0x7D})
	b.SetEntryMethod(methodID)
	b.AddImport("core.os", "args_count", sig, 0)
	b.AddImport("core.os", "args_count", sig, 0)
	data := b.Encode()
	if _, err := module.Load(data); err == nil {
		t.Fatal("expected error for duplicate import")
	}
}
