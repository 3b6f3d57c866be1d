// Package opcode defines the SBC instruction set: the opcode byte space,
// each opcode's fixed operand layout, and a decoder that turns a function's
// raw code bytes into a stream of typed Instr values. The verifier and the
// interpreter both walk code through Decode so the operand layout is
// defined in exactly one place, mirroring the teacher's wasm/instruction.go
// single-source-of-truth for WASM's own operand shapes.
package opcode

import (
	"fmt"
)

// Op identifies an SBC opcode byte.
type Op byte

// Stack shape.
const (
	Pop Op = iota
	Dup
	Dup2
	Swap
	Rot
)

// Constants.
const (
	ConstI8 Op = iota + 5
	ConstI16
	ConstI32
	ConstI64
	ConstU8
	ConstU16
	ConstU32
	ConstU64
	ConstF32
	ConstF64
	ConstChar
	ConstBool
	ConstNull
	ConstString
	ConstI128
	ConstU128
)

// Arithmetic: Add/Sub/Mul/Div for I32,I64,U32,U64,F32,F64; Mod for the four
// integer widths only (spec.md §4.2, §4.4 division semantics).
const (
	AddI32 Op = iota + 21
	AddI64
	AddU32
	AddU64
	AddF32
	AddF64
	SubI32
	SubI64
	SubU32
	SubU64
	SubF32
	SubF64
	MulI32
	MulI64
	MulU32
	MulU64
	MulF32
	MulF64
	DivI32
	DivI64
	DivU32
	DivU64
	DivF32
	DivF64
	ModI32
	ModI64
	ModU32
	ModU64
)

// Bitwise and shifts, integer widths only.
const (
	AndI32 Op = iota + 49
	AndI64
	AndU32
	AndU64
	OrI32
	OrI64
	OrU32
	OrU64
	XorI32
	XorI64
	XorU32
	XorU64
	ShlI32
	ShlI64
	ShlU32
	ShlU64
	ShrI32
	ShrI64
	ShrU32
	ShrU64
)

// Negation: signed integers and floats only.
const (
	NegI32 Op = iota + 69
	NegI64
	NegF32
	NegF64
)

// Inc/Dec wrap at the declared width (spec.md §4.2); every integer width
// that can be a local/field/array element gets its own pair.
const (
	IncI8 Op = iota + 73
	IncI16
	IncI32
	IncI64
	IncU8
	IncU16
	IncU32
	IncU64
	DecI8
	DecI16
	DecI32
	DecI64
	DecU8
	DecU16
	DecU32
	DecU64
)

// Comparisons, signed and unsigned forms distinct, all produce Bool.
const (
	CmpEqI32 Op = iota + 89
	CmpEqI64
	CmpEqU32
	CmpEqU64
	CmpEqF32
	CmpEqF64
	CmpNeI32
	CmpNeI64
	CmpNeU32
	CmpNeU64
	CmpNeF32
	CmpNeF64
	CmpLtI32
	CmpLtI64
	CmpLtU32
	CmpLtU64
	CmpLtF32
	CmpLtF64
	CmpLeI32
	CmpLeI64
	CmpLeU32
	CmpLeU64
	CmpLeF32
	CmpLeF64
	CmpGtI32
	CmpGtI64
	CmpGtU32
	CmpGtU64
	CmpGtF32
	CmpGtF64
	CmpGeI32
	CmpGeI64
	CmpGeU32
	CmpGeU64
	CmpGeF32
	CmpGeF64
)

// Control flow.
const (
	Jmp Op = iota + 125
	JmpTrue
	JmpFalse
	JmpTable
	Call
	CallIndirect
	TailCall
	CallCheck
	Ret
	Halt
	Trap
	Line
	Breakpoint
	ProfileStart
	ProfileEnd
)

// Locals.
const (
	LoadLocal Op = iota + 140
	StoreLocal
	Enter
	Leave
)

// Globals.
const (
	LoadGlobal Op = iota + 144
	StoreGlobal
)

// References.
const (
	IsNull Op = iota + 146
	RefEq
	RefNe
	TypeOf
	NewObject
	LoadField
	StoreField
)

// Arrays (fixed length).
const (
	NewArray Op = iota + 153 // default element width (I32-family)
	NewArrayI64
	NewArrayF32
	NewArrayF64
	NewArrayRef
	ArrayLen
	ArrayGetI32
	ArraySetI32
	ArrayGetI64
	ArraySetI64
	ArrayGetU32
	ArraySetU32
	ArrayGetU64
	ArraySetU64
	ArrayGetF32
	ArraySetF32
	ArrayGetF64
	ArraySetF64
	ArrayGetRef
	ArraySetRef
)

// Lists (growable); spec.md §4.2 only names I64/F32/F64/Ref variants beside
// the default 32-bit list.
const (
	NewList Op = iota + 173
	NewListI64
	NewListF32
	NewListF64
	NewListRef
	ListLen
	ListClear
	ListPushI32
	ListPopI32
	ListGetI32
	ListSetI32
	ListInsertI32
	ListRemoveI32
	ListPushI64
	ListPopI64
	ListGetI64
	ListSetI64
	ListInsertI64
	ListRemoveI64
	ListPushF32
	ListPopF32
	ListGetF32
	ListSetF32
	ListInsertF32
	ListRemoveF32
	ListPushF64
	ListPopF64
	ListGetF64
	ListSetF64
	ListInsertF64
	ListRemoveF64
	ListPushRef
	ListPopRef
	ListGetRef
	ListSetRef
	ListInsertRef
	ListRemoveRef
)

// Strings.
const (
	StringLen Op = iota + 210
	StringConcat
	StringGetChar
	StringSlice
)

// Closures & upvalues.
const (
	NewClosure Op = iota + 214
	LoadUpvalue
	StoreUpvalue
)

// Intrinsics & host calls.
const (
	Intrinsic Op = iota + 217
	SysCall
)

// names maps every opcode to its mnemonic, used by disassembly and trap
// diagnostics ("last_op 0x04 Jmp ...").
var names = map[Op]string{
	Pop: "Pop", Dup: "Dup", Dup2: "Dup2", Swap: "Swap", Rot: "Rot",

	ConstI8: "ConstI8", ConstI16: "ConstI16", ConstI32: "ConstI32", ConstI64: "ConstI64",
	ConstU8: "ConstU8", ConstU16: "ConstU16", ConstU32: "ConstU32", ConstU64: "ConstU64",
	ConstF32: "ConstF32", ConstF64: "ConstF64", ConstChar: "ConstChar", ConstBool: "ConstBool",
	ConstNull: "ConstNull", ConstString: "ConstString", ConstI128: "ConstI128", ConstU128: "ConstU128",

	AddI32: "AddI32", AddI64: "AddI64", AddU32: "AddU32", AddU64: "AddU64", AddF32: "AddF32", AddF64: "AddF64",
	SubI32: "SubI32", SubI64: "SubI64", SubU32: "SubU32", SubU64: "SubU64", SubF32: "SubF32", SubF64: "SubF64",
	MulI32: "MulI32", MulI64: "MulI64", MulU32: "MulU32", MulU64: "MulU64", MulF32: "MulF32", MulF64: "MulF64",
	DivI32: "DivI32", DivI64: "DivI64", DivU32: "DivU32", DivU64: "DivU64", DivF32: "DivF32", DivF64: "DivF64",
	ModI32: "ModI32", ModI64: "ModI64", ModU32: "ModU32", ModU64: "ModU64",

	AndI32: "AndI32", AndI64: "AndI64", AndU32: "AndU32", AndU64: "AndU64",
	OrI32: "OrI32", OrI64: "OrI64", OrU32: "OrU32", OrU64: "OrU64",
	XorI32: "XorI32", XorI64: "XorI64", XorU32: "XorU32", XorU64: "XorU64",
	ShlI32: "ShlI32", ShlI64: "ShlI64", ShlU32: "ShlU32", ShlU64: "ShlU64",
	ShrI32: "ShrI32", ShrI64: "ShrI64", ShrU32: "ShrU32", ShrU64: "ShrU64",

	NegI32: "NegI32", NegI64: "NegI64", NegF32: "NegF32", NegF64: "NegF64",

	IncI8: "IncI8", IncI16: "IncI16", IncI32: "IncI32", IncI64: "IncI64",
	IncU8: "IncU8", IncU16: "IncU16", IncU32: "IncU32", IncU64: "IncU64",
	DecI8: "DecI8", DecI16: "DecI16", DecI32: "DecI32", DecI64: "DecI64",
	DecU8: "DecU8", DecU16: "DecU16", DecU32: "DecU32", DecU64: "DecU64",

	CmpEqI32: "CmpEqI32", CmpEqI64: "CmpEqI64", CmpEqU32: "CmpEqU32", CmpEqU64: "CmpEqU64", CmpEqF32: "CmpEqF32", CmpEqF64: "CmpEqF64",
	CmpNeI32: "CmpNeI32", CmpNeI64: "CmpNeI64", CmpNeU32: "CmpNeU32", CmpNeU64: "CmpNeU64", CmpNeF32: "CmpNeF32", CmpNeF64: "CmpNeF64",
	CmpLtI32: "CmpLtI32", CmpLtI64: "CmpLtI64", CmpLtU32: "CmpLtU32", CmpLtU64: "CmpLtU64", CmpLtF32: "CmpLtF32", CmpLtF64: "CmpLtF64",
	CmpLeI32: "CmpLeI32", CmpLeI64: "CmpLeI64", CmpLeU32: "CmpLeU32", CmpLeU64: "CmpLeU64", CmpLeF32: "CmpLeF32", CmpLeF64: "CmpLeF64",
	CmpGtI32: "CmpGtI32", CmpGtI64: "CmpGtI64", CmpGtU32: "CmpGtU32", CmpGtU64: "CmpGtU64", CmpGtF32: "CmpGtF32", CmpGtF64: "CmpGtF64",
	CmpGeI32: "CmpGeI32", CmpGeI64: "CmpGeI64", CmpGeU32: "CmpGeU32", CmpGeU64: "CmpGeU64", CmpGeF32: "CmpGeF32", CmpGeF64: "CmpGeF64",

	Jmp: "Jmp", JmpTrue: "JmpTrue", JmpFalse: "JmpFalse", JmpTable: "JmpTable",
	Call: "Call", CallIndirect: "CallIndirect", TailCall: "TailCall", CallCheck: "CallCheck",
	Ret: "Ret", Halt: "Halt", Trap: "Trap", Line: "Line",
	Breakpoint: "Breakpoint", ProfileStart: "ProfileStart", ProfileEnd: "ProfileEnd",

	LoadLocal: "LoadLocal", StoreLocal: "StoreLocal", Enter: "Enter", Leave: "Leave",
	LoadGlobal: "LoadGlobal", StoreGlobal: "StoreGlobal",

	IsNull: "IsNull", RefEq: "RefEq", RefNe: "RefNe", TypeOf: "TypeOf",
	NewObject: "NewObject", LoadField: "LoadField", StoreField: "StoreField",

	NewArray: "NewArray", NewArrayI64: "NewArrayI64", NewArrayF32: "NewArrayF32", NewArrayF64: "NewArrayF64", NewArrayRef: "NewArrayRef",
	ArrayLen: "ArrayLen",
	ArrayGetI32: "ArrayGetI32", ArraySetI32: "ArraySetI32",
	ArrayGetI64: "ArrayGetI64", ArraySetI64: "ArraySetI64",
	ArrayGetU32: "ArrayGetU32", ArraySetU32: "ArraySetU32",
	ArrayGetU64: "ArrayGetU64", ArraySetU64: "ArraySetU64",
	ArrayGetF32: "ArrayGetF32", ArraySetF32: "ArraySetF32",
	ArrayGetF64: "ArrayGetF64", ArraySetF64: "ArraySetF64",
	ArrayGetRef: "ArrayGetRef", ArraySetRef: "ArraySetRef",

	NewList: "NewList", NewListI64: "NewListI64", NewListF32: "NewListF32", NewListF64: "NewListF64", NewListRef: "NewListRef",
	ListLen: "ListLen", ListClear: "ListClear",
	ListPushI32: "ListPushI32", ListPopI32: "ListPopI32", ListGetI32: "ListGetI32", ListSetI32: "ListSetI32", ListInsertI32: "ListInsertI32", ListRemoveI32: "ListRemoveI32",
	ListPushI64: "ListPushI64", ListPopI64: "ListPopI64", ListGetI64: "ListGetI64", ListSetI64: "ListSetI64", ListInsertI64: "ListInsertI64", ListRemoveI64: "ListRemoveI64",
	ListPushF32: "ListPushF32", ListPopF32: "ListPopF32", ListGetF32: "ListGetF32", ListSetF32: "ListSetF32", ListInsertF32: "ListInsertF32", ListRemoveF32: "ListRemoveF32",
	ListPushF64: "ListPushF64", ListPopF64: "ListPopF64", ListGetF64: "ListGetF64", ListSetF64: "ListSetF64", ListInsertF64: "ListInsertF64", ListRemoveF64: "ListRemoveF64",
	ListPushRef: "ListPushRef", ListPopRef: "ListPopRef", ListGetRef: "ListGetRef", ListSetRef: "ListSetRef", ListInsertRef: "ListInsertRef", ListRemoveRef: "ListRemoveRef",

	StringLen: "StringLen", StringConcat: "StringConcat", StringGetChar: "StringGetChar", StringSlice: "StringSlice",

	NewClosure: "NewClosure", LoadUpvalue: "LoadUpvalue", StoreUpvalue: "StoreUpvalue",

	Intrinsic: "Intrinsic", SysCall: "SysCall",
}

// Name returns op's mnemonic, or a hex placeholder for unknown bytes.
func Name(op Op) string {
	if n, ok := names[op]; ok {
		return n
	}
	return fmt.Sprintf("Unknown(0x%02x)", byte(op))
}

// IsDefined reports whether op is a recognized opcode.
func IsDefined(op Op) bool {
	_, ok := names[op]
	return ok
}
