package opcode

import "github.com/sbclang/sbcvm/internal/binary"

// Encoder assembles a function body byte-for-byte. It is the bytecode-level
// building block the canonical module builder (module.Builder) and test
// fixtures compose programs from, mirroring the teacher's own
// EncodeInstructions helper used throughout wasm/encode_test.go-style
// fixtures.
type Encoder struct {
	w binary.Writer
}

// NewEncoder returns an empty function-body encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// Bytes returns the assembled code so far.
func (e *Encoder) Bytes() []byte { return e.w.Bytes() }

// Len returns the number of bytes emitted so far, usable to compute forward
// jump offsets before the target is known.
func (e *Encoder) Len() int { return e.w.Len() }

func (e *Encoder) op(op Op) *Encoder {
	e.w.WriteByte(byte(op))
	return e
}

// simple, operand-free opcodes share one emitter.
func (e *Encoder) Plain(op Op) *Encoder { return e.op(op) }

func (e *Encoder) Pop() *Encoder  { return e.op(Pop) }
func (e *Encoder) Dup() *Encoder  { return e.op(Dup) }
func (e *Encoder) Dup2() *Encoder { return e.op(Dup2) }
func (e *Encoder) Swap() *Encoder { return e.op(Swap) }
func (e *Encoder) Rot() *Encoder  { return e.op(Rot) }

func (e *Encoder) ConstI8(v int8) *Encoder  { e.op(ConstI8); e.w.WriteI8(v); return e }
func (e *Encoder) ConstI16(v int16) *Encoder { e.op(ConstI16); e.w.WriteI16(v); return e }
func (e *Encoder) ConstI32(v int32) *Encoder { e.op(ConstI32); e.w.WriteI32(v); return e }
func (e *Encoder) ConstI64(v int64) *Encoder { e.op(ConstI64); e.w.WriteI64(v); return e }
func (e *Encoder) ConstU8(v uint8) *Encoder  { e.op(ConstU8); e.w.WriteU8(v); return e }
func (e *Encoder) ConstU16(v uint16) *Encoder { e.op(ConstU16); e.w.WriteU16(v); return e }
func (e *Encoder) ConstU32(v uint32) *Encoder { e.op(ConstU32); e.w.WriteU32(v); return e }
func (e *Encoder) ConstU64(v uint64) *Encoder { e.op(ConstU64); e.w.WriteU64(v); return e }
func (e *Encoder) ConstF32(v float32) *Encoder { e.op(ConstF32); e.w.WriteF32(v); return e }
func (e *Encoder) ConstF64(v float64) *Encoder { e.op(ConstF64); e.w.WriteF64(v); return e }
func (e *Encoder) ConstChar(v uint16) *Encoder { e.op(ConstChar); e.w.WriteU16(v); return e }
func (e *Encoder) ConstBool(v bool) *Encoder {
	e.op(ConstBool)
	if v {
		e.w.WriteU8(1)
	} else {
		e.w.WriteU8(0)
	}
	return e
}
func (e *Encoder) ConstNull() *Encoder { return e.op(ConstNull) }

func (e *Encoder) ConstString(constID uint32) *Encoder { e.op(ConstString); e.w.WriteU32(constID); return e }
func (e *Encoder) ConstI128(constID uint32) *Encoder   { e.op(ConstI128); e.w.WriteU32(constID); return e }
func (e *Encoder) ConstU128(constID uint32) *Encoder   { e.op(ConstU128); e.w.WriteU32(constID); return e }

// Jmp, JmpTrue, JmpFalse take a placeholder relative offset; use PatchRel32
// to backfill it once the target address is known.
func (e *Encoder) jumpOp(op Op, rel int32) (*Encoder, int) {
	e.op(op)
	at := e.w.Len()
	e.w.WriteI32(rel)
	return e, at
}

func (e *Encoder) Jmp(rel int32) (*Encoder, int)      { return e.jumpOp(Jmp, rel) }
func (e *Encoder) JmpTrue(rel int32) (*Encoder, int)  { return e.jumpOp(JmpTrue, rel) }
func (e *Encoder) JmpFalse(rel int32) (*Encoder, int) { return e.jumpOp(JmpFalse, rel) }

func (e *Encoder) JmpTable(constID uint32, defaultRel int32) *Encoder {
	e.op(JmpTable)
	e.w.WriteU32(constID)
	e.w.WriteI32(defaultRel)
	return e
}

func (e *Encoder) Call(funcID uint32, argc uint8) *Encoder {
	e.op(Call)
	e.w.WriteU32(funcID)
	e.w.WriteU8(argc)
	return e
}

func (e *Encoder) TailCall(funcID uint32, argc uint8) *Encoder {
	e.op(TailCall)
	e.w.WriteU32(funcID)
	e.w.WriteU8(argc)
	return e
}

func (e *Encoder) CallIndirect(sigID uint32, argc uint8) *Encoder {
	e.op(CallIndirect)
	e.w.WriteU32(sigID)
	e.w.WriteU8(argc)
	return e
}

func (e *Encoder) CallCheck(slots uint16) *Encoder {
	e.op(CallCheck)
	e.w.WriteU16(slots)
	return e
}

func (e *Encoder) Ret() *Encoder  { return e.op(Ret) }
func (e *Encoder) Halt() *Encoder { return e.op(Halt) }
func (e *Encoder) Trap() *Encoder { return e.op(Trap) }

func (e *Encoder) Line(line, column uint32) *Encoder {
	e.op(Line)
	e.w.WriteU32(line)
	e.w.WriteU32(column)
	return e
}

func (e *Encoder) Breakpoint() *Encoder   { return e.op(Breakpoint) }
func (e *Encoder) ProfileStart() *Encoder { return e.op(ProfileStart) }
func (e *Encoder) ProfileEnd() *Encoder   { return e.op(ProfileEnd) }

func (e *Encoder) indexOp(op Op, index uint32) *Encoder {
	e.op(op)
	e.w.WriteU32(index)
	return e
}

func (e *Encoder) LoadLocal(i uint32) *Encoder   { return e.indexOp(LoadLocal, i) }
func (e *Encoder) StoreLocal(i uint32) *Encoder  { return e.indexOp(StoreLocal, i) }
func (e *Encoder) LoadGlobal(i uint32) *Encoder  { return e.indexOp(LoadGlobal, i) }
func (e *Encoder) StoreGlobal(i uint32) *Encoder { return e.indexOp(StoreGlobal, i) }
func (e *Encoder) LoadUpvalue(i uint32) *Encoder  { return e.indexOp(LoadUpvalue, i) }
func (e *Encoder) StoreUpvalue(i uint32) *Encoder { return e.indexOp(StoreUpvalue, i) }
func (e *Encoder) NewObject(typeID uint32) *Encoder { return e.indexOp(NewObject, typeID) }
func (e *Encoder) LoadField(fieldID uint32) *Encoder  { return e.indexOp(LoadField, fieldID) }
func (e *Encoder) StoreField(fieldID uint32) *Encoder { return e.indexOp(StoreField, fieldID) }

func (e *Encoder) Enter(localsCount uint16) *Encoder {
	e.op(Enter)
	e.w.WriteU16(localsCount)
	return e
}
func (e *Encoder) Leave() *Encoder { return e.op(Leave) }

func (e *Encoder) IsNull() *Encoder { return e.op(IsNull) }
func (e *Encoder) RefEq() *Encoder  { return e.op(RefEq) }
func (e *Encoder) RefNe() *Encoder  { return e.op(RefNe) }
func (e *Encoder) TypeOf() *Encoder { return e.op(TypeOf) }

func (e *Encoder) newArrayOp(op Op, typeID, length uint32) *Encoder {
	e.op(op)
	e.w.WriteU32(typeID)
	e.w.WriteU32(length)
	return e
}

func (e *Encoder) NewArray(typeID, length uint32) *Encoder     { return e.newArrayOp(NewArray, typeID, length) }
func (e *Encoder) NewArrayI64(typeID, length uint32) *Encoder  { return e.newArrayOp(NewArrayI64, typeID, length) }
func (e *Encoder) NewArrayF32(typeID, length uint32) *Encoder  { return e.newArrayOp(NewArrayF32, typeID, length) }
func (e *Encoder) NewArrayF64(typeID, length uint32) *Encoder  { return e.newArrayOp(NewArrayF64, typeID, length) }
func (e *Encoder) NewArrayRef(typeID, length uint32) *Encoder  { return e.newArrayOp(NewArrayRef, typeID, length) }

func (e *Encoder) ArrayLen() *Encoder { return e.op(ArrayLen) }

func (e *Encoder) ArrayGetI32() *Encoder { return e.op(ArrayGetI32) }
func (e *Encoder) ArraySetI32() *Encoder { return e.op(ArraySetI32) }
func (e *Encoder) ArrayGetI64() *Encoder { return e.op(ArrayGetI64) }
func (e *Encoder) ArraySetI64() *Encoder { return e.op(ArraySetI64) }
func (e *Encoder) ArrayGetU32() *Encoder { return e.op(ArrayGetU32) }
func (e *Encoder) ArraySetU32() *Encoder { return e.op(ArraySetU32) }
func (e *Encoder) ArrayGetU64() *Encoder { return e.op(ArrayGetU64) }
func (e *Encoder) ArraySetU64() *Encoder { return e.op(ArraySetU64) }
func (e *Encoder) ArrayGetF32() *Encoder { return e.op(ArrayGetF32) }
func (e *Encoder) ArraySetF32() *Encoder { return e.op(ArraySetF32) }
func (e *Encoder) ArrayGetF64() *Encoder { return e.op(ArrayGetF64) }
func (e *Encoder) ArraySetF64() *Encoder { return e.op(ArraySetF64) }
func (e *Encoder) ArrayGetRef() *Encoder { return e.op(ArrayGetRef) }
func (e *Encoder) ArraySetRef() *Encoder { return e.op(ArraySetRef) }

func (e *Encoder) newListOp(op Op, typeID, initCap uint32) *Encoder {
	e.op(op)
	e.w.WriteU32(typeID)
	e.w.WriteU32(initCap)
	return e
}

func (e *Encoder) NewList(typeID, initCap uint32) *Encoder    { return e.newListOp(NewList, typeID, initCap) }
func (e *Encoder) NewListI64(typeID, initCap uint32) *Encoder { return e.newListOp(NewListI64, typeID, initCap) }
func (e *Encoder) NewListF32(typeID, initCap uint32) *Encoder { return e.newListOp(NewListF32, typeID, initCap) }
func (e *Encoder) NewListF64(typeID, initCap uint32) *Encoder { return e.newListOp(NewListF64, typeID, initCap) }
func (e *Encoder) NewListRef(typeID, initCap uint32) *Encoder { return e.newListOp(NewListRef, typeID, initCap) }

func (e *Encoder) ListLen() *Encoder   { return e.op(ListLen) }
func (e *Encoder) ListClear() *Encoder { return e.op(ListClear) }

func (e *Encoder) ListPushI32() *Encoder   { return e.op(ListPushI32) }
func (e *Encoder) ListPopI32() *Encoder    { return e.op(ListPopI32) }
func (e *Encoder) ListGetI32() *Encoder    { return e.op(ListGetI32) }
func (e *Encoder) ListSetI32() *Encoder    { return e.op(ListSetI32) }
func (e *Encoder) ListInsertI32() *Encoder { return e.op(ListInsertI32) }
func (e *Encoder) ListRemoveI32() *Encoder { return e.op(ListRemoveI32) }

func (e *Encoder) ListPushI64() *Encoder   { return e.op(ListPushI64) }
func (e *Encoder) ListPopI64() *Encoder    { return e.op(ListPopI64) }
func (e *Encoder) ListGetI64() *Encoder    { return e.op(ListGetI64) }
func (e *Encoder) ListSetI64() *Encoder    { return e.op(ListSetI64) }
func (e *Encoder) ListInsertI64() *Encoder { return e.op(ListInsertI64) }
func (e *Encoder) ListRemoveI64() *Encoder { return e.op(ListRemoveI64) }

func (e *Encoder) ListPushF32() *Encoder   { return e.op(ListPushF32) }
func (e *Encoder) ListPopF32() *Encoder    { return e.op(ListPopF32) }
func (e *Encoder) ListGetF32() *Encoder    { return e.op(ListGetF32) }
func (e *Encoder) ListSetF32() *Encoder    { return e.op(ListSetF32) }
func (e *Encoder) ListInsertF32() *Encoder { return e.op(ListInsertF32) }
func (e *Encoder) ListRemoveF32() *Encoder { return e.op(ListRemoveF32) }

func (e *Encoder) ListPushF64() *Encoder   { return e.op(ListPushF64) }
func (e *Encoder) ListPopF64() *Encoder    { return e.op(ListPopF64) }
func (e *Encoder) ListGetF64() *Encoder    { return e.op(ListGetF64) }
func (e *Encoder) ListSetF64() *Encoder    { return e.op(ListSetF64) }
func (e *Encoder) ListInsertF64() *Encoder { return e.op(ListInsertF64) }
func (e *Encoder) ListRemoveF64() *Encoder { return e.op(ListRemoveF64) }

func (e *Encoder) ListPushRef() *Encoder   { return e.op(ListPushRef) }
func (e *Encoder) ListPopRef() *Encoder    { return e.op(ListPopRef) }
func (e *Encoder) ListGetRef() *Encoder    { return e.op(ListGetRef) }
func (e *Encoder) ListSetRef() *Encoder    { return e.op(ListSetRef) }
func (e *Encoder) ListInsertRef() *Encoder { return e.op(ListInsertRef) }
func (e *Encoder) ListRemoveRef() *Encoder { return e.op(ListRemoveRef) }

func (e *Encoder) StringLen() *Encoder     { return e.op(StringLen) }
func (e *Encoder) StringConcat() *Encoder  { return e.op(StringConcat) }
func (e *Encoder) StringGetChar() *Encoder { return e.op(StringGetChar) }
func (e *Encoder) StringSlice() *Encoder   { return e.op(StringSlice) }

func (e *Encoder) NewClosure(funcID uint32, upvalueCount uint8) *Encoder {
	e.op(NewClosure)
	e.w.WriteU32(funcID)
	e.w.WriteU8(upvalueCount)
	return e
}

func (e *Encoder) Intrinsic(id uint32) *Encoder {
	e.op(Intrinsic)
	e.w.WriteU32(id)
	return e
}

func (e *Encoder) SysCall() *Encoder { return e.op(SysCall) }

// binary arithmetic/compare families generated for every declared width.
func (e *Encoder) AddI32() *Encoder { return e.op(AddI32) }
func (e *Encoder) AddI64() *Encoder { return e.op(AddI64) }
func (e *Encoder) AddU32() *Encoder { return e.op(AddU32) }
func (e *Encoder) AddU64() *Encoder { return e.op(AddU64) }
func (e *Encoder) AddF32() *Encoder { return e.op(AddF32) }
func (e *Encoder) AddF64() *Encoder { return e.op(AddF64) }
func (e *Encoder) SubI32() *Encoder { return e.op(SubI32) }
func (e *Encoder) SubI64() *Encoder { return e.op(SubI64) }
func (e *Encoder) SubU32() *Encoder { return e.op(SubU32) }
func (e *Encoder) SubU64() *Encoder { return e.op(SubU64) }
func (e *Encoder) SubF32() *Encoder { return e.op(SubF32) }
func (e *Encoder) SubF64() *Encoder { return e.op(SubF64) }
func (e *Encoder) MulI32() *Encoder { return e.op(MulI32) }
func (e *Encoder) MulI64() *Encoder { return e.op(MulI64) }
func (e *Encoder) MulU32() *Encoder { return e.op(MulU32) }
func (e *Encoder) MulU64() *Encoder { return e.op(MulU64) }
func (e *Encoder) MulF32() *Encoder { return e.op(MulF32) }
func (e *Encoder) MulF64() *Encoder { return e.op(MulF64) }
func (e *Encoder) DivI32() *Encoder { return e.op(DivI32) }
func (e *Encoder) DivI64() *Encoder { return e.op(DivI64) }
func (e *Encoder) DivU32() *Encoder { return e.op(DivU32) }
func (e *Encoder) DivU64() *Encoder { return e.op(DivU64) }
func (e *Encoder) DivF32() *Encoder { return e.op(DivF32) }
func (e *Encoder) DivF64() *Encoder { return e.op(DivF64) }
func (e *Encoder) ModI32() *Encoder { return e.op(ModI32) }
func (e *Encoder) ModI64() *Encoder { return e.op(ModI64) }
func (e *Encoder) ModU32() *Encoder { return e.op(ModU32) }
func (e *Encoder) ModU64() *Encoder { return e.op(ModU64) }

func (e *Encoder) AndI32() *Encoder { return e.op(AndI32) }
func (e *Encoder) AndI64() *Encoder { return e.op(AndI64) }
func (e *Encoder) AndU32() *Encoder { return e.op(AndU32) }
func (e *Encoder) AndU64() *Encoder { return e.op(AndU64) }
func (e *Encoder) OrI32() *Encoder  { return e.op(OrI32) }
func (e *Encoder) OrI64() *Encoder  { return e.op(OrI64) }
func (e *Encoder) OrU32() *Encoder  { return e.op(OrU32) }
func (e *Encoder) OrU64() *Encoder  { return e.op(OrU64) }
func (e *Encoder) XorI32() *Encoder { return e.op(XorI32) }
func (e *Encoder) XorI64() *Encoder { return e.op(XorI64) }
func (e *Encoder) XorU32() *Encoder { return e.op(XorU32) }
func (e *Encoder) XorU64() *Encoder { return e.op(XorU64) }
func (e *Encoder) ShlI32() *Encoder { return e.op(ShlI32) }
func (e *Encoder) ShlI64() *Encoder { return e.op(ShlI64) }
func (e *Encoder) ShlU32() *Encoder { return e.op(ShlU32) }
func (e *Encoder) ShlU64() *Encoder { return e.op(ShlU64) }
func (e *Encoder) ShrI32() *Encoder { return e.op(ShrI32) }
func (e *Encoder) ShrI64() *Encoder { return e.op(ShrI64) }
func (e *Encoder) ShrU32() *Encoder { return e.op(ShrU32) }
func (e *Encoder) ShrU64() *Encoder { return e.op(ShrU64) }

func (e *Encoder) NegI32() *Encoder { return e.op(NegI32) }
func (e *Encoder) NegI64() *Encoder { return e.op(NegI64) }
func (e *Encoder) NegF32() *Encoder { return e.op(NegF32) }
func (e *Encoder) NegF64() *Encoder { return e.op(NegF64) }

func (e *Encoder) CmpEqI32() *Encoder { return e.op(CmpEqI32) }
func (e *Encoder) CmpEqI64() *Encoder { return e.op(CmpEqI64) }
func (e *Encoder) CmpEqU32() *Encoder { return e.op(CmpEqU32) }
func (e *Encoder) CmpEqU64() *Encoder { return e.op(CmpEqU64) }
func (e *Encoder) CmpEqF32() *Encoder { return e.op(CmpEqF32) }
func (e *Encoder) CmpEqF64() *Encoder { return e.op(CmpEqF64) }

func (e *Encoder) CmpNeI32() *Encoder { return e.op(CmpNeI32) }
func (e *Encoder) CmpNeI64() *Encoder { return e.op(CmpNeI64) }
func (e *Encoder) CmpNeU32() *Encoder { return e.op(CmpNeU32) }
func (e *Encoder) CmpNeU64() *Encoder { return e.op(CmpNeU64) }
func (e *Encoder) CmpNeF32() *Encoder { return e.op(CmpNeF32) }
func (e *Encoder) CmpNeF64() *Encoder { return e.op(CmpNeF64) }

func (e *Encoder) CmpLtI32() *Encoder { return e.op(CmpLtI32) }
func (e *Encoder) CmpLtI64() *Encoder { return e.op(CmpLtI64) }
func (e *Encoder) CmpLtU32() *Encoder { return e.op(CmpLtU32) }
func (e *Encoder) CmpLtU64() *Encoder { return e.op(CmpLtU64) }
func (e *Encoder) CmpLtF32() *Encoder { return e.op(CmpLtF32) }
func (e *Encoder) CmpLtF64() *Encoder { return e.op(CmpLtF64) }

func (e *Encoder) CmpLeI32() *Encoder { return e.op(CmpLeI32) }
func (e *Encoder) CmpLeI64() *Encoder { return e.op(CmpLeI64) }
func (e *Encoder) CmpLeU32() *Encoder { return e.op(CmpLeU32) }
func (e *Encoder) CmpLeU64() *Encoder { return e.op(CmpLeU64) }
func (e *Encoder) CmpLeF32() *Encoder { return e.op(CmpLeF32) }
func (e *Encoder) CmpLeF64() *Encoder { return e.op(CmpLeF64) }

func (e *Encoder) CmpGtI32() *Encoder { return e.op(CmpGtI32) }
func (e *Encoder) CmpGtI64() *Encoder { return e.op(CmpGtI64) }
func (e *Encoder) CmpGtU32() *Encoder { return e.op(CmpGtU32) }
func (e *Encoder) CmpGtU64() *Encoder { return e.op(CmpGtU64) }
func (e *Encoder) CmpGtF32() *Encoder { return e.op(CmpGtF32) }
func (e *Encoder) CmpGtF64() *Encoder { return e.op(CmpGtF64) }

func (e *Encoder) CmpGeI32() *Encoder { return e.op(CmpGeI32) }
func (e *Encoder) CmpGeI64() *Encoder { return e.op(CmpGeI64) }
func (e *Encoder) CmpGeU32() *Encoder { return e.op(CmpGeU32) }
func (e *Encoder) CmpGeU64() *Encoder { return e.op(CmpGeU64) }
func (e *Encoder) CmpGeF32() *Encoder { return e.op(CmpGeF32) }
func (e *Encoder) CmpGeF64() *Encoder { return e.op(CmpGeF64) }

func (e *Encoder) IncI8() *Encoder  { return e.op(IncI8) }
func (e *Encoder) IncI16() *Encoder { return e.op(IncI16) }
func (e *Encoder) IncI32() *Encoder { return e.op(IncI32) }
func (e *Encoder) IncI64() *Encoder { return e.op(IncI64) }
func (e *Encoder) IncU8() *Encoder  { return e.op(IncU8) }
func (e *Encoder) IncU16() *Encoder { return e.op(IncU16) }
func (e *Encoder) IncU32() *Encoder { return e.op(IncU32) }
func (e *Encoder) IncU64() *Encoder { return e.op(IncU64) }

func (e *Encoder) DecI8() *Encoder  { return e.op(DecI8) }
func (e *Encoder) DecI16() *Encoder { return e.op(DecI16) }
func (e *Encoder) DecI32() *Encoder { return e.op(DecI32) }
func (e *Encoder) DecI64() *Encoder { return e.op(DecI64) }
func (e *Encoder) DecU8() *Encoder  { return e.op(DecU8) }
func (e *Encoder) DecU16() *Encoder { return e.op(DecU16) }
func (e *Encoder) DecU32() *Encoder { return e.op(DecU32) }
func (e *Encoder) DecU64() *Encoder { return e.op(DecU64) }

// PatchRel32 overwrites a 4-byte relative-offset placeholder previously
// returned by Jmp/JmpTrue/JmpFalse, computing rel from the target address.
func (e *Encoder) PatchRel32(at int, target uint32) {
	rel := int32(int64(target) - int64(at+4))
	b := e.w.Bytes()
	b[at] = byte(rel)
	b[at+1] = byte(rel >> 8)
	b[at+2] = byte(rel >> 16)
	b[at+3] = byte(rel >> 24)
}
