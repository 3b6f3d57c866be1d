package module

import (
	"sort"

	"github.com/sbclang/sbcvm/internal/binary"
	"github.com/sbclang/sbcvm/sbcerr"
)

// Load parses data into a *Module and runs structural validation
// (spec.md §4.1, "Loading"). It never executes any code in data.
func Load(data []byte) (*Module, error) {
	m, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func decode(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	hdr, err := decodeHeader(r)
	if err != nil {
		return nil, err
	}

	if int(hdr.SectionTableOffset)+int(hdr.SectionCount)*sectionEntrySize > len(data) {
		return nil, sbcerr.Load(sbcerr.KindTruncated, "section table runs past end of module")
	}
	entries := make([]SectionEntry, hdr.SectionCount)
	tr := binary.NewReader(data)
	if err := tr.Seek(int(hdr.SectionTableOffset)); err != nil {
		return nil, sbcerr.Load(sbcerr.KindBadOffset, "section table offset: %v", err)
	}
	for i := range entries {
		e, err := decodeSectionEntry(tr)
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}

	byID := make(map[SectionID]SectionEntry, len(entries))
	for _, e := range entries {
		id := SectionID(e.ID)
		if _, ok := sectionNames[id]; !ok {
			return nil, sbcerr.Load(sbcerr.KindUnknownSection, "unknown section id %d", e.ID)
		}
		if e.Offset%4 != 0 {
			return nil, sbcerr.Load(sbcerr.KindBadAlignment, "section %s offset %d not 4-byte aligned", id, e.Offset)
		}
		if _, dup := byID[id]; dup {
			return nil, sbcerr.Load(sbcerr.KindSectionOrder, "duplicate section id %d", e.ID)
		}
		byID[id] = e
	}
	for _, id := range requiredSections {
		if _, ok := byID[id]; !ok {
			return nil, sbcerr.Load(sbcerr.KindUnknownSection, "missing required section %s", id)
		}
	}
	if err := checkSectionsDisjoint(entries); err != nil {
		return nil, err
	}

	m := &Module{Header: hdr}

	sectionBytes := func(id SectionID) ([]byte, bool, error) {
		e, ok := byID[id]
		if !ok {
			return nil, false, nil
		}
		if int(e.Offset)+int(e.ByteSize) > len(data) {
			return nil, false, sbcerr.Load(sbcerr.KindTruncated, "section %s runs past end of module", id)
		}
		return data[e.Offset : e.Offset+e.ByteSize], true, nil
	}

	if b, _, err := sectionBytes(SectionTypes); err != nil {
		return nil, err
	} else if m.Types, err = decodeTypes(b, byID[SectionTypes].ElementCount); err != nil {
		return nil, err
	}
	if b, _, err := sectionBytes(SectionFields); err != nil {
		return nil, err
	} else if m.Fields, err = decodeFields(b, byID[SectionFields].ElementCount); err != nil {
		return nil, err
	}
	if b, _, err := sectionBytes(SectionMethods); err != nil {
		return nil, err
	} else if m.Methods, err = decodeMethods(b, byID[SectionMethods].ElementCount); err != nil {
		return nil, err
	}
	if b, _, err := sectionBytes(SectionSignatures); err != nil {
		return nil, err
	} else if m.Sigs, err = decodeSignatures(b, byID[SectionSignatures].ElementCount); err != nil {
		return nil, err
	}
	if b, _, err := sectionBytes(SectionConstPool); err != nil {
		return nil, err
	} else if m.Consts, err = decodeConstPool(b); err != nil {
		return nil, err
	}
	if b, _, err := sectionBytes(SectionGlobals); err != nil {
		return nil, err
	} else if m.Globals, err = decodeGlobals(b, byID[SectionGlobals].ElementCount); err != nil {
		return nil, err
	}
	if b, _, err := sectionBytes(SectionFunctions); err != nil {
		return nil, err
	} else if m.Functions, err = decodeFunctions(b, byID[SectionFunctions].ElementCount); err != nil {
		return nil, err
	}
	if b, ok, err := sectionBytes(SectionCode); err != nil {
		return nil, err
	} else if ok {
		m.Code = append([]byte(nil), b...)
	}
	if b, ok, err := sectionBytes(SectionDebug); err != nil {
		return nil, err
	} else if ok {
		di, err := decodeDebug(b, byID[SectionDebug].ElementCount)
		if err != nil {
			return nil, err
		}
		m.Debug = di
	}
	if b, ok, err := sectionBytes(SectionImports); err != nil {
		return nil, err
	} else if ok {
		if m.Imports, err = decodeImportExports(b, byID[SectionImports].ElementCount); err != nil {
			return nil, err
		}
	}
	if b, ok, err := sectionBytes(SectionExports); err != nil {
		return nil, err
	} else if ok {
		if m.Exports, err = decodeImportExports(b, byID[SectionExports].ElementCount); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// checkSectionsDisjoint rejects a section table whose byte ranges overlap,
// spec.md §4.1's "sections do not overlap" and §8 scenario 9 ("section
// table claims overlap -> Load fails with 'section overlap'"). Zero-size
// sections never overlap anything, matching zero-length functions' own
// treatment in validateFunctions.
func checkSectionsDisjoint(entries []SectionEntry) error {
	ranges := make([]SectionEntry, 0, len(entries))
	for _, e := range entries {
		if e.ByteSize > 0 {
			ranges = append(ranges, e)
		}
	}
	sort.Slice(ranges, func(a, b int) bool { return ranges[a].Offset < ranges[b].Offset })
	for i := 1; i < len(ranges); i++ {
		prev, cur := ranges[i-1], ranges[i]
		if uint64(cur.Offset) < uint64(prev.Offset)+uint64(prev.ByteSize) {
			return sbcerr.Load(sbcerr.KindSectionOverlap, "sections %s and %s overlap", SectionID(prev.ID), SectionID(cur.ID))
		}
	}
	return nil
}

func decodeHeader(r *binary.Reader) (Header, error) {
	var h Header
	magic, err := r.ReadU32()
	if err != nil {
		return h, sbcerr.Load(sbcerr.KindTruncated, "header: %v", err)
	}
	if magic != Magic {
		return h, sbcerr.Load(sbcerr.KindBadMagic, "got 0x%08x, want 0x%08x", magic, Magic)
	}
	version, err := r.ReadU16()
	if err != nil {
		return h, sbcerr.Load(sbcerr.KindTruncated, "header version: %v", err)
	}
	flags, err := r.ReadU8()
	if err != nil {
		return h, sbcerr.Load(sbcerr.KindTruncated, "header flags: %v", err)
	}
	endian, err := r.ReadU8()
	if err != nil {
		return h, sbcerr.Load(sbcerr.KindTruncated, "header endian: %v", err)
	}
	sectionCount, err := r.ReadU32()
	if err != nil {
		return h, sbcerr.Load(sbcerr.KindTruncated, "header section_count: %v", err)
	}
	sectionTableOffset, err := r.ReadU32()
	if err != nil {
		return h, sbcerr.Load(sbcerr.KindTruncated, "header section_table_offset: %v", err)
	}
	entryMethodID, err := r.ReadU32()
	if err != nil {
		return h, sbcerr.Load(sbcerr.KindTruncated, "header entry_method_id: %v", err)
	}
	stackMax, err := r.ReadU32()
	if err != nil {
		return h, sbcerr.Load(sbcerr.KindTruncated, "header stack_max: %v", err)
	}
	reserved1, err := r.ReadU32()
	if err != nil {
		return h, sbcerr.Load(sbcerr.KindTruncated, "header reserved: %v", err)
	}
	reserved2, err := r.ReadU32()
	if err != nil {
		return h, sbcerr.Load(sbcerr.KindTruncated, "header reserved: %v", err)
	}
	if reserved1 != 0 || reserved2 != 0 {
		return h, sbcerr.Load(sbcerr.KindBadMagic, "reserved header fields must be zero")
	}
	if version != Version {
		return h, sbcerr.Load(sbcerr.KindBadMagic, "unsupported version %d", version)
	}

	h = Header{
		Magic:              magic,
		Version:            version,
		Flags:              flags,
		Endian:             endian,
		SectionCount:       sectionCount,
		SectionTableOffset: sectionTableOffset,
		EntryMethodID:      entryMethodID,
		StackMax:           stackMax,
	}
	return h, nil
}

func decodeSectionEntry(r *binary.Reader) (SectionEntry, error) {
	id, err := r.ReadU32()
	if err != nil {
		return SectionEntry{}, sbcerr.Load(sbcerr.KindTruncated, "section table entry: %v", err)
	}
	off, err := r.ReadU32()
	if err != nil {
		return SectionEntry{}, sbcerr.Load(sbcerr.KindTruncated, "section table entry: %v", err)
	}
	size, err := r.ReadU32()
	if err != nil {
		return SectionEntry{}, sbcerr.Load(sbcerr.KindTruncated, "section table entry: %v", err)
	}
	count, err := r.ReadU32()
	if err != nil {
		return SectionEntry{}, sbcerr.Load(sbcerr.KindTruncated, "section table entry: %v", err)
	}
	return SectionEntry{ID: id, Offset: off, ByteSize: size, ElementCount: count}, nil
}

func decodeTypes(b []byte, count uint32) ([]Type, error) {
	r := binary.NewReader(b)
	out := make([]Type, 0, count)
	for i := uint32(0); i < count; i++ {
		kind, err := r.ReadU8()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "type %d: %v", i, err)
		}
		if _, err := r.ReadBytes(3); err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "type %d padding: %v", i, err)
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "type %d: %v", i, err)
		}
		fieldCount, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "type %d: %v", i, err)
		}
		fieldStart, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "type %d: %v", i, err)
		}
		out = append(out, Type{Kind: TypeKind(kind), Size: size, FieldCount: fieldCount, FieldStart: fieldStart})
	}
	return out, nil
}

func decodeFields(b []byte, count uint32) ([]Field, error) {
	r := binary.NewReader(b)
	out := make([]Field, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "field %d: %v", i, err)
		}
		typeID, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "field %d: %v", i, err)
		}
		offset, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "field %d: %v", i, err)
		}
		flags, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "field %d: %v", i, err)
		}
		out = append(out, Field{NameStr: name, TypeID: typeID, Offset: offset, Flags: flags})
	}
	return out, nil
}

func decodeMethods(b []byte, count uint32) ([]Method, error) {
	r := binary.NewReader(b)
	out := make([]Method, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "method %d: %v", i, err)
		}
		sig, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "method %d: %v", i, err)
		}
		codeOff, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "method %d: %v", i, err)
		}
		locals, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "method %d: %v", i, err)
		}
		flags, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "method %d: %v", i, err)
		}
		out = append(out, Method{NameStr: name, SigID: sig, CodeOffset: codeOff, Locals: locals, Flags: flags})
	}
	return out, nil
}

func decodeSignatures(b []byte, count uint32) ([]Signature, error) {
	r := binary.NewReader(b)
	out := make([]Signature, 0, count)
	for i := uint32(0); i < count; i++ {
		ret, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "signature %d: %v", i, err)
		}
		paramCount, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "signature %d: %v", i, err)
		}
		params := make([]uint32, paramCount)
		for j := range params {
			p, err := r.ReadU32()
			if err != nil {
				return nil, sbcerr.Load(sbcerr.KindTruncated, "signature %d param %d: %v", i, j, err)
			}
			params[j] = p
		}
		out = append(out, Signature{RetTypeID: ret, ParamTypes: params})
	}
	return out, nil
}

func decodeConstPool(b []byte) (ConstPool, error) {
	r := binary.NewReader(b)
	blobLen, err := r.ReadU32()
	if err != nil {
		return ConstPool{}, sbcerr.Load(sbcerr.KindTruncated, "const pool string blob len: %v", err)
	}
	blob, err := r.ReadBytes(int(blobLen))
	if err != nil {
		return ConstPool{}, sbcerr.Load(sbcerr.KindTruncated, "const pool string blob: %v", err)
	}
	if err := alignReader(r); err != nil {
		return ConstPool{}, err
	}
	count, err := r.ReadU32()
	if err != nil {
		return ConstPool{}, sbcerr.Load(sbcerr.KindTruncated, "const pool count: %v", err)
	}
	entries := make([]Const, 0, count)
	for i := uint32(0); i < count; i++ {
		tag, err := r.ReadU32()
		if err != nil {
			return ConstPool{}, sbcerr.Load(sbcerr.KindTruncated, "const %d tag: %v", i, err)
		}
		c := Const{Tag: ConstTag(tag)}
		switch c.Tag {
		case ConstTagString:
			off, err := r.ReadU32()
			if err != nil {
				return ConstPool{}, sbcerr.Load(sbcerr.KindTruncated, "const %d: %v", i, err)
			}
			c.StrOffset = off
		case ConstTagI128, ConstTagU128:
			hi, lo, err := r.ReadU128()
			if err != nil {
				return ConstPool{}, sbcerr.Load(sbcerr.KindTruncated, "const %d: %v", i, err)
			}
			c.Hi, c.Lo = hi, lo
		case ConstTagF32:
			v, err := r.ReadF32()
			if err != nil {
				return ConstPool{}, sbcerr.Load(sbcerr.KindTruncated, "const %d: %v", i, err)
			}
			c.F32 = v
		case ConstTagF64:
			v, err := r.ReadF64()
			if err != nil {
				return ConstPool{}, sbcerr.Load(sbcerr.KindTruncated, "const %d: %v", i, err)
			}
			c.F64 = v
		case ConstTagJmpTableBlob:
			caseCount, err := r.ReadU32()
			if err != nil {
				return ConstPool{}, sbcerr.Load(sbcerr.KindTruncated, "const %d case count: %v", i, err)
			}
			cases := make([]int32, caseCount)
			for j := range cases {
				v, err := r.ReadI32()
				if err != nil {
					return ConstPool{}, sbcerr.Load(sbcerr.KindTruncated, "const %d case %d: %v", i, j, err)
				}
				cases[j] = v
			}
			c.CaseOffsets = cases
		default:
			return ConstPool{}, sbcerr.Load(sbcerr.KindBadConstTag, "const %d: tag %d", i, tag)
		}
		entries = append(entries, c)
	}
	return ConstPool{StringBlob: append([]byte(nil), blob...), Entries: entries}, nil
}

// alignReader advances r to the next 4-byte boundary within its own buffer.
func alignReader(r *binary.Reader) error {
	pad := (4 - r.Position()%4) % 4
	if pad == 0 {
		return nil
	}
	_, err := r.ReadBytes(pad)
	if err != nil {
		return sbcerr.Load(sbcerr.KindBadAlignment, "const pool padding: %v", err)
	}
	return nil
}

func decodeGlobals(b []byte, count uint32) ([]Global, error) {
	r := binary.NewReader(b)
	out := make([]Global, 0, count)
	for i := uint32(0); i < count; i++ {
		typeID, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "global %d: %v", i, err)
		}
		hasInit, err := r.ReadU8()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "global %d: %v", i, err)
		}
		if _, err := r.ReadBytes(3); err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "global %d padding: %v", i, err)
		}
		initConstID, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "global %d: %v", i, err)
		}
		out = append(out, Global{TypeID: typeID, HasInit: hasInit != 0, InitConstID: initConstID})
	}
	return out, nil
}

func decodeFunctions(b []byte, count uint32) ([]Function, error) {
	r := binary.NewReader(b)
	out := make([]Function, 0, count)
	for i := uint32(0); i < count; i++ {
		methodID, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "function %d: %v", i, err)
		}
		codeOff, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "function %d: %v", i, err)
		}
		codeSize, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "function %d: %v", i, err)
		}
		if codeOff%4 != 0 {
			return nil, sbcerr.Load(sbcerr.KindBadAlignment, "function %d code_offset %d not 4-byte aligned", i, codeOff)
		}
		out = append(out, Function{MethodID: methodID, CodeOffset: codeOff, CodeSize: codeSize})
	}
	return out, nil
}

func decodeDebug(b []byte, count uint32) (*DebugInfo, error) {
	r := binary.NewReader(b)
	entries := make([]DebugEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		start, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "debug entry %d: %v", i, err)
		}
		end, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "debug entry %d: %v", i, err)
		}
		line, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "debug entry %d: %v", i, err)
		}
		col, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "debug entry %d: %v", i, err)
		}
		if end < start {
			return nil, sbcerr.Load(sbcerr.KindBadOffset, "debug entry %d: pc_end < pc_start", i)
		}
		entries = append(entries, DebugEntry{PCStart: start, PCEnd: end, Line: line, Column: col})
	}
	return &DebugInfo{Entries: entries}, nil
}

func decodeImportExports(b []byte, count uint32) ([]ImportExport, error) {
	r := binary.NewReader(b)
	out := make([]ImportExport, 0, count)
	for i := uint32(0); i < count; i++ {
		modStr, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "import/export %d: %v", i, err)
		}
		symStr, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "import/export %d: %v", i, err)
		}
		target, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "import/export %d: %v", i, err)
		}
		flags, err := r.ReadU32()
		if err != nil {
			return nil, sbcerr.Load(sbcerr.KindTruncated, "import/export %d: %v", i, err)
		}
		out = append(out, ImportExport{ModuleStr: modStr, SymbolStr: symStr, Target: target, Flags: flags})
	}
	return out, nil
}
