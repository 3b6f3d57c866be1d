package verify

import (
	"github.com/sbclang/sbcvm/module"
	"github.com/sbclang/sbcvm/opcode"
)

// isIn reports whether op has an entry in tbl, without relying on Go's
// zero-value default (KindI8 is 0 and is itself a valid TypeKind, so a
// "found != zero" check would silently miss opcodes that map to KindI8,
// such as IncI8/DecI8).
func isIn(tbl map[opcode.Op]module.TypeKind, op opcode.Op) bool {
	_, ok := tbl[op]
	return ok
}

// effect describes a fixed, type-known stack transition: pop these types
// (in top-to-bottom order) and push these types. Opcodes whose effect
// depends on runtime-polymorphic data (Pop/Dup/Swap/Rot, locals/globals,
// calls, arrays/lists/fields) are handled directly in function.go instead
// of through this table.
type effect struct {
	pop  []module.TypeKind
	push []module.TypeKind
}

var binaryArith = map[opcode.Op]module.TypeKind{
	opcode.AddI32: module.KindI32, opcode.AddI64: module.KindI64, opcode.AddU32: module.KindU32, opcode.AddU64: module.KindU64, opcode.AddF32: module.KindF32, opcode.AddF64: module.KindF64,
	opcode.SubI32: module.KindI32, opcode.SubI64: module.KindI64, opcode.SubU32: module.KindU32, opcode.SubU64: module.KindU64, opcode.SubF32: module.KindF32, opcode.SubF64: module.KindF64,
	opcode.MulI32: module.KindI32, opcode.MulI64: module.KindI64, opcode.MulU32: module.KindU32, opcode.MulU64: module.KindU64, opcode.MulF32: module.KindF32, opcode.MulF64: module.KindF64,
	opcode.DivI32: module.KindI32, opcode.DivI64: module.KindI64, opcode.DivU32: module.KindU32, opcode.DivU64: module.KindU64, opcode.DivF32: module.KindF32, opcode.DivF64: module.KindF64,
	opcode.ModI32: module.KindI32, opcode.ModI64: module.KindI64, opcode.ModU32: module.KindU32, opcode.ModU64: module.KindU64,
}

var bitwiseOps = map[opcode.Op]module.TypeKind{
	opcode.AndI32: module.KindI32, opcode.AndI64: module.KindI64, opcode.AndU32: module.KindU32, opcode.AndU64: module.KindU64,
	opcode.OrI32: module.KindI32, opcode.OrI64: module.KindI64, opcode.OrU32: module.KindU32, opcode.OrU64: module.KindU64,
	opcode.XorI32: module.KindI32, opcode.XorI64: module.KindI64, opcode.XorU32: module.KindU32, opcode.XorU64: module.KindU64,
}

var shiftOps = map[opcode.Op]module.TypeKind{
	opcode.ShlI32: module.KindI32, opcode.ShlI64: module.KindI64, opcode.ShlU32: module.KindU32, opcode.ShlU64: module.KindU64,
	opcode.ShrI32: module.KindI32, opcode.ShrI64: module.KindI64, opcode.ShrU32: module.KindU32, opcode.ShrU64: module.KindU64,
}

var negOps = map[opcode.Op]module.TypeKind{
	opcode.NegI32: module.KindI32, opcode.NegI64: module.KindI64, opcode.NegF32: module.KindF32, opcode.NegF64: module.KindF64,
}

var incDecOps = map[opcode.Op]module.TypeKind{
	opcode.IncI8: module.KindI8, opcode.IncI16: module.KindI16, opcode.IncI32: module.KindI32, opcode.IncI64: module.KindI64,
	opcode.IncU8: module.KindU8, opcode.IncU16: module.KindU16, opcode.IncU32: module.KindU32, opcode.IncU64: module.KindU64,
	opcode.DecI8: module.KindI8, opcode.DecI16: module.KindI16, opcode.DecI32: module.KindI32, opcode.DecI64: module.KindI64,
	opcode.DecU8: module.KindU8, opcode.DecU16: module.KindU16, opcode.DecU32: module.KindU32, opcode.DecU64: module.KindU64,
}

var cmpOps = map[opcode.Op]module.TypeKind{
	opcode.CmpEqI32: module.KindI32, opcode.CmpEqI64: module.KindI64, opcode.CmpEqU32: module.KindU32, opcode.CmpEqU64: module.KindU64, opcode.CmpEqF32: module.KindF32, opcode.CmpEqF64: module.KindF64,
	opcode.CmpNeI32: module.KindI32, opcode.CmpNeI64: module.KindI64, opcode.CmpNeU32: module.KindU32, opcode.CmpNeU64: module.KindU64, opcode.CmpNeF32: module.KindF32, opcode.CmpNeF64: module.KindF64,
	opcode.CmpLtI32: module.KindI32, opcode.CmpLtI64: module.KindI64, opcode.CmpLtU32: module.KindU32, opcode.CmpLtU64: module.KindU64, opcode.CmpLtF32: module.KindF32, opcode.CmpLtF64: module.KindF64,
	opcode.CmpLeI32: module.KindI32, opcode.CmpLeI64: module.KindI64, opcode.CmpLeU32: module.KindU32, opcode.CmpLeU64: module.KindU64, opcode.CmpLeF32: module.KindF32, opcode.CmpLeF64: module.KindF64,
	opcode.CmpGtI32: module.KindI32, opcode.CmpGtI64: module.KindI64, opcode.CmpGtU32: module.KindU32, opcode.CmpGtU64: module.KindU64, opcode.CmpGtF32: module.KindF32, opcode.CmpGtF64: module.KindF64,
	opcode.CmpGeI32: module.KindI32, opcode.CmpGeI64: module.KindI64, opcode.CmpGeU32: module.KindU32, opcode.CmpGeU64: module.KindU64, opcode.CmpGeF32: module.KindF32, opcode.CmpGeF64: module.KindF64,
}

// constEffect reports the push type for every fixed inline constant opcode.
// Narrow integer constants widen to I32 immediately, per spec.md §3's value
// discipline ("I8/I16/U8/U16 widen to I32 on push").
var constEffect = map[opcode.Op]module.TypeKind{
	opcode.ConstI8: module.KindI32, opcode.ConstI16: module.KindI32, opcode.ConstI32: module.KindI32, opcode.ConstI64: module.KindI64,
	opcode.ConstU8: module.KindI32, opcode.ConstU16: module.KindI32, opcode.ConstU32: module.KindU32, opcode.ConstU64: module.KindU64,
	opcode.ConstF32: module.KindF32, opcode.ConstF64: module.KindF64,
	opcode.ConstChar: module.KindChar, opcode.ConstBool: module.KindBool,
	opcode.ConstNull: module.KindRef, opcode.ConstString: module.KindRef,
	opcode.ConstI128: module.KindI128, opcode.ConstU128: module.KindU128,
}

var arrayElemType = map[opcode.Op]module.TypeKind{
	opcode.ArrayGetI32: module.KindI32, opcode.ArraySetI32: module.KindI32,
	opcode.ArrayGetI64: module.KindI64, opcode.ArraySetI64: module.KindI64,
	opcode.ArrayGetU32: module.KindU32, opcode.ArraySetU32: module.KindU32,
	opcode.ArrayGetU64: module.KindU64, opcode.ArraySetU64: module.KindU64,
	opcode.ArrayGetF32: module.KindF32, opcode.ArraySetF32: module.KindF32,
	opcode.ArrayGetF64: module.KindF64, opcode.ArraySetF64: module.KindF64,
	opcode.ArrayGetRef: module.KindRef, opcode.ArraySetRef: module.KindRef,
}

func isArrayGet(op opcode.Op) bool {
	switch op {
	case opcode.ArrayGetI32, opcode.ArrayGetI64, opcode.ArrayGetU32, opcode.ArrayGetU64, opcode.ArrayGetF32, opcode.ArrayGetF64, opcode.ArrayGetRef:
		return true
	}
	return false
}

var listElemType = map[opcode.Op]module.TypeKind{
	opcode.ListPushI32: module.KindI32, opcode.ListPopI32: module.KindI32, opcode.ListGetI32: module.KindI32, opcode.ListSetI32: module.KindI32, opcode.ListInsertI32: module.KindI32, opcode.ListRemoveI32: module.KindI32,
	opcode.ListPushI64: module.KindI64, opcode.ListPopI64: module.KindI64, opcode.ListGetI64: module.KindI64, opcode.ListSetI64: module.KindI64, opcode.ListInsertI64: module.KindI64, opcode.ListRemoveI64: module.KindI64,
	opcode.ListPushF32: module.KindF32, opcode.ListPopF32: module.KindF32, opcode.ListGetF32: module.KindF32, opcode.ListSetF32: module.KindF32, opcode.ListInsertF32: module.KindF32, opcode.ListRemoveF32: module.KindF32,
	opcode.ListPushF64: module.KindF64, opcode.ListPopF64: module.KindF64, opcode.ListGetF64: module.KindF64, opcode.ListSetF64: module.KindF64, opcode.ListInsertF64: module.KindF64, opcode.ListRemoveF64: module.KindF64,
	opcode.ListPushRef: module.KindRef, opcode.ListPopRef: module.KindRef, opcode.ListGetRef: module.KindRef, opcode.ListSetRef: module.KindRef, opcode.ListInsertRef: module.KindRef, opcode.ListRemoveRef: module.KindRef,
}
