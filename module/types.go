// Package module implements the SBC binary container: its in-memory value
// types (spec.md §3), the loader that turns bytes into a *Module, the
// structural validator, and the canonical builder used to emit modules for
// round-trip tests.
package module

// VoidRet is the reserved ret_type_id meaning "no return value"
// (spec.md §3, Signature.ret_type_id = u32::MAX).
const VoidRet uint32 = 0xFFFFFFFF

// Header is the 32-byte module header (spec.md §4.1).
type Header struct {
	Magic              uint32
	Version            uint16
	Flags              uint8
	Endian             uint8
	SectionCount       uint32
	SectionTableOffset uint32
	EntryMethodID      uint32
	StackMax           uint32
}

// SectionEntry is one 16-byte row of the section table.
type SectionEntry struct {
	ID           uint32
	Offset       uint32
	ByteSize     uint32
	ElementCount uint32
}

// TypeKind enumerates the primitive and reference kinds a Type can be.
type TypeKind byte

const (
	KindI8 TypeKind = iota
	KindI16
	KindI32
	KindI64
	KindU8
	KindU16
	KindU32
	KindU64
	KindF32
	KindF64
	KindI128
	KindU128
	KindBool
	KindChar
	KindRef
)

var typeKindNames = map[TypeKind]string{
	KindI8: "i8", KindI16: "i16", KindI32: "i32", KindI64: "i64",
	KindU8: "u8", KindU16: "u16", KindU32: "u32", KindU64: "u64",
	KindF32: "f32", KindF64: "f64", KindI128: "i128", KindU128: "u128",
	KindBool: "bool", KindChar: "char", KindRef: "ref",
}

func (k TypeKind) String() string {
	if s, ok := typeKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsPrimitive reports whether k is a scalar kind as opposed to Ref.
func (k TypeKind) IsPrimitive() bool { return k != KindRef }

// NaturalSize returns the kind's natural storage size in bytes, per
// spec.md §3: "primitive kinds have ... their natural size; Ref has size 0".
func (k TypeKind) NaturalSize() uint32 {
	switch k {
	case KindI8, KindU8, KindBool:
		return 1
	case KindI16, KindU16, KindChar:
		return 2
	case KindI32, KindU32, KindF32:
		return 4
	case KindI64, KindU64, KindF64:
		return 8
	case KindI128, KindU128:
		return 16
	case KindRef:
		return 0
	default:
		return 0
	}
}

// Type is a declared type: a primitive or a struct-like Object shape
// described by a contiguous run of Fields.
type Type struct {
	Kind       TypeKind
	Size       uint32
	FieldCount uint32
	FieldStart uint32
}

// Field describes one member of an Object type.
type Field struct {
	NameStr uint32 // offset into the const-pool string region
	TypeID  uint32
	Offset  uint32
	Flags   uint32
}

// Signature is a function's parameter and return type shape.
type Signature struct {
	RetTypeID  uint32 // VoidRet for no return value
	ParamTypes []uint32
}

// HasReturn reports whether the signature returns a value.
func (s Signature) HasReturn() bool { return s.RetTypeID != VoidRet }

// Method carries name/signature/code metadata for a callable.
type Method struct {
	NameStr    uint32
	SigID      uint32
	CodeOffset uint32
	Locals     uint32
	Flags      uint32
}

// Function maps a method to its code range within the code section.
type Function struct {
	MethodID   uint32
	CodeOffset uint32
	CodeSize   uint32
}

// Global is a module-level mutable cell with an optional initializer.
type Global struct {
	TypeID      uint32
	HasInit     bool
	InitConstID uint32
}

// ConstTag identifies the shape of a tagged const-pool entry.
type ConstTag uint32

const (
	ConstTagString      ConstTag = 0
	ConstTagI128        ConstTag = 1
	ConstTagU128        ConstTag = 2
	ConstTagF32         ConstTag = 3
	ConstTagF64         ConstTag = 4
	ConstTagJmpTableBlob ConstTag = 6
)

// Const is one tagged const-pool entry (spec.md §4.1).
type Const struct {
	Tag ConstTag

	// ConstTagString
	StrOffset uint32

	// ConstTagI128 / ConstTagU128: high then low 64-bit halves.
	Hi, Lo uint64

	// ConstTagF32 / ConstTagF64
	F32 float32
	F64 float64

	// ConstTagJmpTableBlob: case offsets, relative per spec.md §4.2.
	CaseOffsets []int32
}

// ConstPool holds the interned string blob and the tagged const entries.
type ConstPool struct {
	StringBlob []byte
	Entries    []Const
}

// ImportExport is the shared record shape for both imports and exports
// (spec.md §4.1: "Imports and exports carry (module_name_str,
// symbol_name_str, sig_id or func_id, flags)").
type ImportExport struct {
	ModuleStr uint32
	SymbolStr uint32
	Target    uint32 // sig_id (import) or func_id (export)
	Flags     uint32
}

// IsWeak reports whether the optional/weak bit (bit 0) is set.
func (ie ImportExport) IsWeak() bool { return ie.Flags&1 != 0 }

// DebugEntry maps a pc range within one function to a source position.
type DebugEntry struct {
	PCStart, PCEnd uint32
	Line, Column   uint32
}

// DebugInfo is the optional debug section content.
type DebugInfo struct {
	Entries []DebugEntry
}

// LineFor returns the (line, column) covering pc, if the debug section has
// an entry for it.
func (d *DebugInfo) LineFor(pc uint32) (line, column uint32, ok bool) {
	if d == nil {
		return 0, 0, false
	}
	for _, e := range d.Entries {
		if pc >= e.PCStart && pc < e.PCEnd {
			return e.Line, e.Column, true
		}
	}
	return 0, 0, false
}

// Module is the fully parsed, immutable SBC module (spec.md §3).
type Module struct {
	Header    Header
	Types     []Type
	Fields    []Field
	Methods   []Method
	Sigs      []Signature
	Consts    ConstPool
	Globals   []Global
	Functions []Function
	Code      []byte
	Imports   []ImportExport
	Exports   []ImportExport
	Debug     *DebugInfo
}

// String resolves a *_str offset into the const-pool's string region.
func (m *Module) String(offset uint32) (string, error) {
	return stringAt(m.Consts.StringBlob, offset)
}

// FuncCode returns the byte slice for fn's code range.
func (m *Module) FuncCode(fn Function) []byte {
	return m.Code[fn.CodeOffset : fn.CodeOffset+fn.CodeSize]
}

// FunctionByMethodID finds the Function entry for a given method id.
func (m *Module) FunctionByMethodID(methodID uint32) (Function, bool) {
	for _, fn := range m.Functions {
		if fn.MethodID == methodID {
			return fn, true
		}
	}
	return Function{}, false
}

// EffectiveStackMax returns the module-level stack_max, defaulting to 1024
// when the header field is zero (spec.md §4.1).
func (h Header) EffectiveStackMax() uint32 {
	if h.StackMax == 0 {
		return 1024
	}
	return h.StackMax
}
