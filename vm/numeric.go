package vm

import (
	"github.com/sbclang/sbcvm/module"
	"github.com/sbclang/sbcvm/opcode"
	"github.com/sbclang/sbcvm/sbcerr"
)

// execBinary pops b (top) then a, applies op, and pushes the result.
// push(a); push(b); OP computes a∘b, the usual stack-machine convention.
func (v *VM) execBinary(op opcode.Op) error {
	b, err := v.pop()
	if err != nil {
		return err
	}
	a, err := v.pop()
	if err != nil {
		return err
	}

	switch op {
	case opcode.AddI32:
		v.push(i32Slot(a.asI32() + b.asI32()))
	case opcode.AddI64:
		v.push(i64Slot(a.asI64() + b.asI64()))
	case opcode.AddU32:
		v.push(u32Slot(a.asU32() + b.asU32()))
	case opcode.AddU64:
		v.push(u64Slot(a.asU64() + b.asU64()))
	case opcode.AddF32:
		v.push(f32Slot(a.asF32() + b.asF32()))
	case opcode.AddF64:
		v.push(f64Slot(a.asF64() + b.asF64()))

	case opcode.SubI32:
		v.push(i32Slot(a.asI32() - b.asI32()))
	case opcode.SubI64:
		v.push(i64Slot(a.asI64() - b.asI64()))
	case opcode.SubU32:
		v.push(u32Slot(a.asU32() - b.asU32()))
	case opcode.SubU64:
		v.push(u64Slot(a.asU64() - b.asU64()))
	case opcode.SubF32:
		v.push(f32Slot(a.asF32() - b.asF32()))
	case opcode.SubF64:
		v.push(f64Slot(a.asF64() - b.asF64()))

	case opcode.MulI32:
		v.push(i32Slot(a.asI32() * b.asI32()))
	case opcode.MulI64:
		v.push(i64Slot(a.asI64() * b.asI64()))
	case opcode.MulU32:
		v.push(u32Slot(a.asU32() * b.asU32()))
	case opcode.MulU64:
		v.push(u64Slot(a.asU64() * b.asU64()))
	case opcode.MulF32:
		v.push(f32Slot(a.asF32() * b.asF32()))
	case opcode.MulF64:
		v.push(f64Slot(a.asF64() * b.asF64()))

	case opcode.DivI32:
		x, y := a.asI32(), b.asI32()
		if y == 0 {
			return v.trap(sbcerr.KindDivByZero, "signed i32 division by zero")
		}
		if x == -1<<31 && y == -1 {
			return v.trap(sbcerr.KindDivByZero, "signed i32 division overflow: MIN_I32 / -1")
		}
		v.push(i32Slot(x / y))
	case opcode.DivI64:
		x, y := a.asI64(), b.asI64()
		if y == 0 {
			return v.trap(sbcerr.KindDivByZero, "signed i64 division by zero")
		}
		if x == -1<<63 && y == -1 {
			return v.trap(sbcerr.KindDivByZero, "signed i64 division overflow: MIN_I64 / -1")
		}
		v.push(i64Slot(x / y))
	case opcode.DivU32:
		x, y := a.asU32(), b.asU32()
		if y == 0 {
			v.push(u32Slot(0))
		} else {
			v.push(u32Slot(x / y))
		}
	case opcode.DivU64:
		x, y := a.asU64(), b.asU64()
		if y == 0 {
			v.push(u64Slot(0))
		} else {
			v.push(u64Slot(x / y))
		}
	case opcode.DivF32:
		v.push(f32Slot(a.asF32() / b.asF32()))
	case opcode.DivF64:
		v.push(f64Slot(a.asF64() / b.asF64()))

	case opcode.ModI32:
		x, y := a.asI32(), b.asI32()
		if y == 0 {
			return v.trap(sbcerr.KindDivByZero, "signed i32 modulo by zero")
		}
		if x == -1<<31 && y == -1 {
			v.push(i32Slot(0))
		} else {
			v.push(i32Slot(x % y))
		}
	case opcode.ModI64:
		x, y := a.asI64(), b.asI64()
		if y == 0 {
			return v.trap(sbcerr.KindDivByZero, "signed i64 modulo by zero")
		}
		if x == -1<<63 && y == -1 {
			v.push(i64Slot(0))
		} else {
			v.push(i64Slot(x % y))
		}
	case opcode.ModU32:
		x, y := a.asU32(), b.asU32()
		if y == 0 {
			v.push(u32Slot(0))
		} else {
			v.push(u32Slot(x % y))
		}
	case opcode.ModU64:
		x, y := a.asU64(), b.asU64()
		if y == 0 {
			v.push(u64Slot(0))
		} else {
			v.push(u64Slot(x % y))
		}

	case opcode.AndI32, opcode.AndU32:
		v.push(slot{bits: uint64(a.asU32() & b.asU32()), kind: a.kind})
	case opcode.AndI64, opcode.AndU64:
		v.push(slot{bits: a.asU64() & b.asU64(), kind: a.kind})
	case opcode.OrI32, opcode.OrU32:
		v.push(slot{bits: uint64(a.asU32() | b.asU32()), kind: a.kind})
	case opcode.OrI64, opcode.OrU64:
		v.push(slot{bits: a.asU64() | b.asU64(), kind: a.kind})
	case opcode.XorI32, opcode.XorU32:
		v.push(slot{bits: uint64(a.asU32() ^ b.asU32()), kind: a.kind})
	case opcode.XorI64, opcode.XorU64:
		v.push(slot{bits: a.asU64() ^ b.asU64(), kind: a.kind})

	case opcode.ShlI32, opcode.ShlU32:
		count := b.asU32() & 31
		v.push(slot{bits: uint64(a.asU32() << count), kind: a.kind})
	case opcode.ShlI64, opcode.ShlU64:
		count := b.asU64() & 63
		v.push(slot{bits: a.asU64() << count, kind: a.kind})
	case opcode.ShrI32:
		count := b.asU32() & 31
		v.push(i32Slot(a.asI32() >> count))
	case opcode.ShrU32:
		count := b.asU32() & 31
		v.push(u32Slot(a.asU32() >> count))
	case opcode.ShrI64:
		count := b.asU64() & 63
		v.push(i64Slot(a.asI64() >> count))
	case opcode.ShrU64:
		count := b.asU64() & 63
		v.push(u64Slot(a.asU64() >> count))

	case opcode.CmpEqI32, opcode.CmpEqU32:
		v.push(boolSlot(a.asU32() == b.asU32()))
	case opcode.CmpEqI64, opcode.CmpEqU64:
		v.push(boolSlot(a.asU64() == b.asU64()))
	case opcode.CmpEqF32:
		v.push(boolSlot(a.asF32() == b.asF32()))
	case opcode.CmpEqF64:
		v.push(boolSlot(a.asF64() == b.asF64()))
	case opcode.CmpNeI32, opcode.CmpNeU32:
		v.push(boolSlot(a.asU32() != b.asU32()))
	case opcode.CmpNeI64, opcode.CmpNeU64:
		v.push(boolSlot(a.asU64() != b.asU64()))
	case opcode.CmpNeF32:
		v.push(boolSlot(a.asF32() != b.asF32()))
	case opcode.CmpNeF64:
		v.push(boolSlot(a.asF64() != b.asF64()))
	case opcode.CmpLtI32:
		v.push(boolSlot(a.asI32() < b.asI32()))
	case opcode.CmpLtI64:
		v.push(boolSlot(a.asI64() < b.asI64()))
	case opcode.CmpLtU32:
		v.push(boolSlot(a.asU32() < b.asU32()))
	case opcode.CmpLtU64:
		v.push(boolSlot(a.asU64() < b.asU64()))
	case opcode.CmpLtF32:
		v.push(boolSlot(a.asF32() < b.asF32()))
	case opcode.CmpLtF64:
		v.push(boolSlot(a.asF64() < b.asF64()))
	case opcode.CmpLeI32:
		v.push(boolSlot(a.asI32() <= b.asI32()))
	case opcode.CmpLeI64:
		v.push(boolSlot(a.asI64() <= b.asI64()))
	case opcode.CmpLeU32:
		v.push(boolSlot(a.asU32() <= b.asU32()))
	case opcode.CmpLeU64:
		v.push(boolSlot(a.asU64() <= b.asU64()))
	case opcode.CmpLeF32:
		v.push(boolSlot(a.asF32() <= b.asF32()))
	case opcode.CmpLeF64:
		v.push(boolSlot(a.asF64() <= b.asF64()))
	case opcode.CmpGtI32:
		v.push(boolSlot(a.asI32() > b.asI32()))
	case opcode.CmpGtI64:
		v.push(boolSlot(a.asI64() > b.asI64()))
	case opcode.CmpGtU32:
		v.push(boolSlot(a.asU32() > b.asU32()))
	case opcode.CmpGtU64:
		v.push(boolSlot(a.asU64() > b.asU64()))
	case opcode.CmpGtF32:
		v.push(boolSlot(a.asF32() > b.asF32()))
	case opcode.CmpGtF64:
		v.push(boolSlot(a.asF64() > b.asF64()))
	case opcode.CmpGeI32:
		v.push(boolSlot(a.asI32() >= b.asI32()))
	case opcode.CmpGeI64:
		v.push(boolSlot(a.asI64() >= b.asI64()))
	case opcode.CmpGeU32:
		v.push(boolSlot(a.asU32() >= b.asU32()))
	case opcode.CmpGeU64:
		v.push(boolSlot(a.asU64() >= b.asU64()))
	case opcode.CmpGeF32:
		v.push(boolSlot(a.asF32() >= b.asF32()))
	case opcode.CmpGeF64:
		v.push(boolSlot(a.asF64() >= b.asF64()))

	default:
		return v.trap(sbcerr.KindUnknownOpcode, "unhandled binary opcode %s", opcode.Name(op))
	}
	return nil
}

func (v *VM) execNeg(op opcode.Op) error {
	a, err := v.pop()
	if err != nil {
		return err
	}
	switch op {
	case opcode.NegI32:
		v.push(i32Slot(-a.asI32()))
	case opcode.NegI64:
		v.push(i64Slot(-a.asI64()))
	case opcode.NegF32:
		v.push(f32Slot(-a.asF32()))
	case opcode.NegF64:
		v.push(f64Slot(-a.asF64()))
	default:
		return v.trap(sbcerr.KindUnknownOpcode, "unhandled neg opcode %s", opcode.Name(op))
	}
	return nil
}

// execIncDec mutates the top-of-stack value at its declared narrow width,
// wrapping silently on overflow the way spec.md §4.2 describes ("wrap at
// the declared width"); no trap, unlike the 32/64-bit Div/Mod family.
func (v *VM) execIncDec(op opcode.Op) error {
	a, err := v.pop()
	if err != nil {
		return err
	}
	var delta int64 = 1
	if isDecOp(op) {
		delta = -1
	}
	switch op {
	case opcode.IncI8, opcode.DecI8:
		v.push(slot{bits: uint64(uint32(int32(int8(a.asI32()) + int8(delta)))), kind: module.KindI8})
	case opcode.IncI16, opcode.DecI16:
		v.push(slot{bits: uint64(uint32(int32(int16(a.asI32()) + int16(delta)))), kind: module.KindI16})
	case opcode.IncI32, opcode.DecI32:
		v.push(i32Slot(a.asI32() + int32(delta)))
	case opcode.IncI64, opcode.DecI64:
		v.push(i64Slot(a.asI64() + delta))
	case opcode.IncU8, opcode.DecU8:
		v.push(slot{bits: uint64(uint8(a.asU32()) + uint8(delta)), kind: module.KindU8})
	case opcode.IncU16, opcode.DecU16:
		v.push(slot{bits: uint64(uint16(a.asU32()) + uint16(delta)), kind: module.KindU16})
	case opcode.IncU32, opcode.DecU32:
		v.push(u32Slot(a.asU32() + uint32(delta)))
	case opcode.IncU64, opcode.DecU64:
		v.push(u64Slot(a.asU64() + uint64(delta)))
	default:
		return v.trap(sbcerr.KindUnknownOpcode, "unhandled inc/dec opcode %s", opcode.Name(op))
	}
	return nil
}

func isDecOp(op opcode.Op) bool {
	switch op {
	case opcode.DecI8, opcode.DecI16, opcode.DecI32, opcode.DecI64,
		opcode.DecU8, opcode.DecU16, opcode.DecU32, opcode.DecU64:
		return true
	}
	return false
}
