package module

import (
	"sort"

	"github.com/sbclang/sbcvm/internal/binary"
)

// Builder assembles a well-formed SBC module byte-for-byte compatible with
// Load, used to emit fixtures for tests and by future producers of SBC
// bytecode. Mirrors the loader's section layout exactly (module/decode.go).
type Builder struct {
	entryMethodID uint32
	stackMax      uint32

	types     []Type
	fields    []Field
	methods   []Method
	sigs      []Signature
	globals   []Global
	functions []Function
	code      binary.Writer
	imports   []ImportExport
	exports   []ImportExport
	debug     []DebugEntry

	stringBlob []byte
	strOffsets map[string]uint32
	consts     []Const
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		stringBlob: []byte{0}, // offset 0 is reserved for the empty string
		strOffsets: map[string]uint32{"": 0},
	}
}

// SetEntryMethod records the module's entry_method_id.
func (b *Builder) SetEntryMethod(id uint32) *Builder { b.entryMethodID = id; return b }

// SetStackMax records the module's declared stack_max (0 means "default").
func (b *Builder) SetStackMax(n uint32) *Builder { b.stackMax = n; return b }

// InternString appends s to the string region if not already present and
// returns its offset, suitable for any *_str field.
func (b *Builder) InternString(s string) uint32 {
	if off, ok := b.strOffsets[s]; ok {
		return off
	}
	off := uint32(len(b.stringBlob))
	b.stringBlob = append(b.stringBlob, []byte(s)...)
	b.stringBlob = append(b.stringBlob, 0)
	b.strOffsets[s] = off
	return off
}

// AddType appends a Type and returns its id.
func (b *Builder) AddType(t Type) uint32 {
	b.types = append(b.types, t)
	return uint32(len(b.types) - 1)
}

// AddField appends a Field and returns its id.
func (b *Builder) AddField(f Field) uint32 {
	b.fields = append(b.fields, f)
	return uint32(len(b.fields) - 1)
}

// AddSignature appends a Signature and returns its id.
func (b *Builder) AddSignature(s Signature) uint32 {
	b.sigs = append(b.sigs, s)
	return uint32(len(b.sigs) - 1)
}

// AddMethod appends a Method and returns its id.
func (b *Builder) AddMethod(m Method) uint32 {
	b.methods = append(b.methods, m)
	return uint32(len(b.methods) - 1)
}

// AddGlobal appends a Global and returns its id.
func (b *Builder) AddGlobal(g Global) uint32 {
	b.globals = append(b.globals, g)
	return uint32(len(b.globals) - 1)
}

// AddConstString interns s and adds a String-tagged const entry, returning
// its const id.
func (b *Builder) AddConstString(s string) uint32 {
	return b.addConst(Const{Tag: ConstTagString, StrOffset: b.InternString(s)})
}

// AddConstI128 / AddConstU128 add a 128-bit tagged const entry.
func (b *Builder) AddConstI128(hi, lo uint64) uint32 {
	return b.addConst(Const{Tag: ConstTagI128, Hi: hi, Lo: lo})
}
func (b *Builder) AddConstU128(hi, lo uint64) uint32 {
	return b.addConst(Const{Tag: ConstTagU128, Hi: hi, Lo: lo})
}

// AddConstF32 / AddConstF64 add a float tagged const entry.
func (b *Builder) AddConstF32(v float32) uint32 { return b.addConst(Const{Tag: ConstTagF32, F32: v}) }
func (b *Builder) AddConstF64(v float64) uint32 { return b.addConst(Const{Tag: ConstTagF64, F64: v}) }

// AddConstJmpTable adds a JmpTableBlob const holding case-relative offsets.
func (b *Builder) AddConstJmpTable(cases []int32) uint32 {
	return b.addConst(Const{Tag: ConstTagJmpTableBlob, CaseOffsets: append([]int32(nil), cases...)})
}

func (b *Builder) addConst(c Const) uint32 {
	b.consts = append(b.consts, c)
	return uint32(len(b.consts) - 1)
}

// AddFunction appends code (already opcode-encoded) to the code section,
// registers a Function entry for methodID, and returns the function id.
// Code is padded to a 4-byte boundary per spec.md's function alignment rule.
func (b *Builder) AddFunction(methodID uint32, code []byte) uint32 {
	for b.code.Len()%4 != 0 {
		b.code.WriteByte(0)
	}
	off := uint32(b.code.Len())
	b.code.WriteBytes(code)
	fn := Function{MethodID: methodID, CodeOffset: off, CodeSize: uint32(len(code))}
	b.functions = append(b.functions, fn)
	return uint32(len(b.functions) - 1)
}

// AddImport appends an import record. moduleName/symbolName are interned
// automatically.
func (b *Builder) AddImport(moduleName, symbolName string, sigID, flags uint32) {
	b.imports = append(b.imports, ImportExport{
		ModuleStr: b.InternString(moduleName),
		SymbolStr: b.InternString(symbolName),
		Target:    sigID,
		Flags:     flags,
	})
}

// AddExport appends an export record naming funcID under symbolName.
func (b *Builder) AddExport(symbolName string, funcID, flags uint32) {
	b.exports = append(b.exports, ImportExport{
		SymbolStr: b.InternString(symbolName),
		Target:    funcID,
		Flags:     flags,
	})
}

// AddDebugEntry records a pc-range-to-source-position mapping.
func (b *Builder) AddDebugEntry(e DebugEntry) { b.debug = append(b.debug, e) }

// Encode serializes the accumulated module into SBC binary form.
func (b *Builder) Encode() []byte {
	type section struct {
		id   SectionID
		body []byte
	}
	var secs []section

	secs = append(secs, section{SectionTypes, encodeTypes(b.types)})
	secs = append(secs, section{SectionFields, encodeFields(b.fields)})
	secs = append(secs, section{SectionMethods, encodeMethods(b.methods)})
	secs = append(secs, section{SectionSignatures, encodeSignatures(b.sigs)})
	secs = append(secs, section{SectionConstPool, encodeConstPool(b.stringBlob, b.consts)})
	secs = append(secs, section{SectionGlobals, encodeGlobals(b.globals)})
	secs = append(secs, section{SectionFunctions, encodeFunctions(b.functions)})
	secs = append(secs, section{SectionCode, b.code.Bytes()})
	if len(b.debug) > 0 {
		secs = append(secs, section{SectionDebug, encodeDebug(b.debug)})
	}
	if len(b.imports) > 0 {
		secs = append(secs, section{SectionImports, encodeImportExports(b.imports)})
	}
	if len(b.exports) > 0 {
		secs = append(secs, section{SectionExports, encodeImportExports(b.exports)})
	}

	sort.Slice(secs, func(i, j int) bool { return secs[i].id < secs[j].id })

	elementCounts := map[SectionID]uint32{
		SectionTypes:      uint32(len(b.types)),
		SectionFields:     uint32(len(b.fields)),
		SectionMethods:    uint32(len(b.methods)),
		SectionSignatures: uint32(len(b.sigs)),
		SectionConstPool:  uint32(len(b.consts)),
		SectionGlobals:    uint32(len(b.globals)),
		SectionFunctions:  uint32(len(b.functions)),
		SectionCode:       0,
		SectionDebug:      uint32(len(b.debug)),
		SectionImports:    uint32(len(b.imports)),
		SectionExports:    uint32(len(b.exports)),
	}

	const headerLen = headerSize
	sectionTableLen := len(secs) * sectionEntrySize
	bodyOffset := headerLen + sectionTableLen

	offsets := make([]uint32, len(secs))
	cur := bodyOffset
	for i, s := range secs {
		cur = (cur + 3) &^ 3 // Load requires 4-byte-aligned section offsets
		offsets[i] = uint32(cur)
		cur += len(s.body)
	}

	w := binary.NewWriter()
	w.WriteU32(Magic)
	w.WriteU16(Version)
	w.WriteU8(0) // flags
	w.WriteU8(0) // endian: little
	w.WriteU32(uint32(len(secs)))
	w.WriteU32(uint32(headerLen))
	w.WriteU32(b.entryMethodID)
	w.WriteU32(b.stackMax)
	w.WriteU32(0)
	w.WriteU32(0)

	for i, s := range secs {
		w.WriteU32(uint32(s.id))
		w.WriteU32(offsets[i])
		w.WriteU32(uint32(len(s.body)))
		w.WriteU32(elementCounts[s.id])
	}
	for i, s := range secs {
		for w.Len() < int(offsets[i]) {
			w.WriteByte(0)
		}
		w.WriteBytes(s.body)
	}

	return w.Bytes()
}

func encodeTypes(types []Type) []byte {
	w := binary.NewWriter()
	for _, t := range types {
		w.WriteU8(byte(t.Kind))
		w.WriteBytes([]byte{0, 0, 0})
		w.WriteU32(t.Size)
		w.WriteU32(t.FieldCount)
		w.WriteU32(t.FieldStart)
	}
	return w.Bytes()
}

func encodeFields(fields []Field) []byte {
	w := binary.NewWriter()
	for _, f := range fields {
		w.WriteU32(f.NameStr)
		w.WriteU32(f.TypeID)
		w.WriteU32(f.Offset)
		w.WriteU32(f.Flags)
	}
	return w.Bytes()
}

func encodeMethods(methods []Method) []byte {
	w := binary.NewWriter()
	for _, m := range methods {
		w.WriteU32(m.NameStr)
		w.WriteU32(m.SigID)
		w.WriteU32(m.CodeOffset)
		w.WriteU32(m.Locals)
		w.WriteU32(m.Flags)
	}
	return w.Bytes()
}

func encodeSignatures(sigs []Signature) []byte {
	w := binary.NewWriter()
	for _, s := range sigs {
		w.WriteU32(s.RetTypeID)
		w.WriteU32(uint32(len(s.ParamTypes)))
		for _, p := range s.ParamTypes {
			w.WriteU32(p)
		}
	}
	return w.Bytes()
}

func encodeConstPool(blob []byte, consts []Const) []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(blob)))
	w.WriteBytes(blob)
	w.PadTo4()
	w.WriteU32(uint32(len(consts)))
	for _, c := range consts {
		w.WriteU32(uint32(c.Tag))
		switch c.Tag {
		case ConstTagString:
			w.WriteU32(c.StrOffset)
		case ConstTagI128, ConstTagU128:
			w.WriteU128(c.Hi, c.Lo)
		case ConstTagF32:
			w.WriteF32(c.F32)
		case ConstTagF64:
			w.WriteF64(c.F64)
		case ConstTagJmpTableBlob:
			w.WriteU32(uint32(len(c.CaseOffsets)))
			for _, off := range c.CaseOffsets {
				w.WriteI32(off)
			}
		}
	}
	return w.Bytes()
}

func encodeGlobals(globals []Global) []byte {
	w := binary.NewWriter()
	for _, g := range globals {
		w.WriteU32(g.TypeID)
		if g.HasInit {
			w.WriteU8(1)
		} else {
			w.WriteU8(0)
		}
		w.WriteBytes([]byte{0, 0, 0})
		w.WriteU32(g.InitConstID)
	}
	return w.Bytes()
}

func encodeFunctions(functions []Function) []byte {
	w := binary.NewWriter()
	for _, fn := range functions {
		w.WriteU32(fn.MethodID)
		w.WriteU32(fn.CodeOffset)
		w.WriteU32(fn.CodeSize)
	}
	return w.Bytes()
}

func encodeDebug(entries []DebugEntry) []byte {
	w := binary.NewWriter()
	for _, e := range entries {
		w.WriteU32(e.PCStart)
		w.WriteU32(e.PCEnd)
		w.WriteU32(e.Line)
		w.WriteU32(e.Column)
	}
	return w.Bytes()
}

func encodeImportExports(rows []ImportExport) []byte {
	w := binary.NewWriter()
	for _, r := range rows {
		w.WriteU32(r.ModuleStr)
		w.WriteU32(r.SymbolStr)
		w.WriteU32(r.Target)
		w.WriteU32(r.Flags)
	}
	return w.Bytes()
}
