package opcode

import (
	"fmt"

	"github.com/sbclang/sbcvm/internal/binary"
)

// Immediate operand shapes, one struct per opcode family that carries
// operands. An opcode with no operands leaves Instr.Imm nil.

// ConstImm carries an inline scalar constant (ConstI8..ConstU64, ConstF32,
// ConstF64, ConstChar, ConstBool).
type ConstImm struct {
	I int64
	U uint64
	F32 float32
	F64 float64
}

// PoolImm references a const-pool entry (ConstString, ConstI128, ConstU128).
type PoolImm struct {
	ConstID uint32
}

// JumpImm carries a pc-relative branch target, relative to the byte
// immediately after the operand (spec.md §6).
type JumpImm struct {
	Rel int32
}

// JumpTableImm carries the JmpTableBlob const id and the default branch.
type JumpTableImm struct {
	ConstID uint32
	Default int32
}

// CallImm carries a direct call target and argument count.
type CallImm struct {
	FuncID uint32
	Argc   uint8
}

// CallIndirectImm carries the expected callee signature and argument count.
type CallIndirectImm struct {
	SigID uint32
	Argc  uint8
}

// StackProbeImm carries the CallCheck headroom operand.
type StackProbeImm struct {
	Slots uint16
}

// LineImm carries debug line/column metadata.
type LineImm struct {
	Line, Column uint32
}

// IndexImm carries a single u32 index (locals, globals, upvalues, fields,
// types, consts).
type IndexImm struct {
	Index uint32
}

// EnterImm carries the locals window size pushed by Enter.
type EnterImm struct {
	LocalsCount uint16
}

// NewArrayImm carries the element type and fixed length.
type NewArrayImm struct {
	TypeID uint32
	Length uint32
}

// NewListImm carries the element type and initial capacity.
type NewListImm struct {
	TypeID          uint32
	InitialCapacity uint32
}

// NewClosureImm carries the function and the number of captured upvalues.
type NewClosureImm struct {
	FuncID        uint32
	UpvalueCount  uint8
}

// IntrinsicImm carries the fixed intrinsic id.
type IntrinsicImm struct {
	ID uint32
}

// Instr is a single decoded instruction, its byte offset, and the offset of
// the next instruction (used as the base for relative jump operands).
type Instr struct {
	Op     Op
	PC     uint32
	NextPC uint32
	Imm    any
}

// Decode reads one instruction starting at the reader's current position.
func Decode(r *binary.Reader) (Instr, error) {
	pc := uint32(r.Position())
	opByte, err := r.ReadByte()
	if err != nil {
		return Instr{}, err
	}
	op := Op(opByte)

	instr := Instr{Op: op, PC: pc}

	switch op {
	case ConstI8:
		v, err := r.ReadI8()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = ConstImm{I: int64(v)}
	case ConstI16:
		v, err := r.ReadI16()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = ConstImm{I: int64(v)}
	case ConstI32:
		v, err := r.ReadI32()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = ConstImm{I: int64(v)}
	case ConstI64:
		v, err := r.ReadI64()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = ConstImm{I: v}
	case ConstU8:
		v, err := r.ReadU8()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = ConstImm{U: uint64(v)}
	case ConstU16:
		v, err := r.ReadU16()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = ConstImm{U: uint64(v)}
	case ConstU32:
		v, err := r.ReadU32()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = ConstImm{U: uint64(v)}
	case ConstU64:
		v, err := r.ReadU64()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = ConstImm{U: v}
	case ConstF32:
		v, err := r.ReadF32()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = ConstImm{F32: v}
	case ConstF64:
		v, err := r.ReadF64()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = ConstImm{F64: v}
	case ConstChar:
		v, err := r.ReadU16()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = ConstImm{U: uint64(v)}
	case ConstBool:
		v, err := r.ReadU8()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = ConstImm{U: uint64(v)}
	case ConstNull:
		// no operand

	case ConstString, ConstI128, ConstU128:
		id, err := r.ReadU32()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = PoolImm{ConstID: id}

	case Jmp, JmpTrue, JmpFalse:
		rel, err := r.ReadI32()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = JumpImm{Rel: rel}

	case JmpTable:
		constID, err := r.ReadU32()
		if err != nil {
			return Instr{}, err
		}
		def, err := r.ReadI32()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = JumpTableImm{ConstID: constID, Default: def}

	case Call, TailCall:
		fn, err := r.ReadU32()
		if err != nil {
			return Instr{}, err
		}
		argc, err := r.ReadU8()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = CallImm{FuncID: fn, Argc: argc}

	case CallIndirect:
		sig, err := r.ReadU32()
		if err != nil {
			return Instr{}, err
		}
		argc, err := r.ReadU8()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = CallIndirectImm{SigID: sig, Argc: argc}

	case CallCheck:
		slots, err := r.ReadU16()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = StackProbeImm{Slots: slots}

	case Line:
		line, err := r.ReadU32()
		if err != nil {
			return Instr{}, err
		}
		col, err := r.ReadU32()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = LineImm{Line: line, Column: col}

	case LoadLocal, StoreLocal, LoadGlobal, StoreGlobal, LoadUpvalue, StoreUpvalue,
		NewObject, LoadField, StoreField:
		idx, err := r.ReadU32()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = IndexImm{Index: idx}

	case Enter:
		n, err := r.ReadU16()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = EnterImm{LocalsCount: n}

	case NewArray, NewArrayI64, NewArrayF32, NewArrayF64, NewArrayRef:
		typeID, err := r.ReadU32()
		if err != nil {
			return Instr{}, err
		}
		length, err := r.ReadU32()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = NewArrayImm{TypeID: typeID, Length: length}

	case NewList, NewListI64, NewListF32, NewListF64, NewListRef:
		typeID, err := r.ReadU32()
		if err != nil {
			return Instr{}, err
		}
		cap_, err := r.ReadU32()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = NewListImm{TypeID: typeID, InitialCapacity: cap_}

	case NewClosure:
		fn, err := r.ReadU32()
		if err != nil {
			return Instr{}, err
		}
		n, err := r.ReadU8()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = NewClosureImm{FuncID: fn, UpvalueCount: n}

	case Intrinsic:
		id, err := r.ReadU32()
		if err != nil {
			return Instr{}, err
		}
		instr.Imm = IntrinsicImm{ID: id}

	default:
		if !IsDefined(op) {
			return Instr{}, fmt.Errorf("unknown opcode 0x%02x at %d", opByte, pc)
		}
		// every other defined opcode (arithmetic, compares, stack shape,
		// array/list element ops, string ops, Ret/Halt/Trap/Leave/
		// Breakpoint/ProfileStart/ProfileEnd/IsNull/RefEq/RefNe/TypeOf/
		// ArrayLen/ListLen/ListClear/SysCall) takes operands only from the
		// value stack and has no encoded immediate.
	}

	instr.NextPC = uint32(r.Position())
	return instr, nil
}

// Target resolves a JumpImm/JumpTableImm relative offset to an absolute pc,
// per spec.md §6: "relative to the byte after the operand".
func (in Instr) Target(rel int32) uint32 {
	return uint32(int64(in.NextPC) + int64(rel))
}

// Format renders an instruction for disassembly and trap diagnostics, e.g.
// "Call func_id=3 argc=2".
func (in Instr) Format() string {
	name := Name(in.Op)
	switch imm := in.Imm.(type) {
	case nil:
		return name
	case ConstImm:
		if imm.F64 != 0 || imm.F32 != 0 {
			return fmt.Sprintf("%s %v", name, imm.F64)
		}
		if imm.U != 0 {
			return fmt.Sprintf("%s %d", name, imm.U)
		}
		return fmt.Sprintf("%s %d", name, imm.I)
	case PoolImm:
		return fmt.Sprintf("%s const_id=%d", name, imm.ConstID)
	case JumpImm:
		return fmt.Sprintf("%s rel=%d target=%d", name, imm.Rel, in.Target(imm.Rel))
	case JumpTableImm:
		return fmt.Sprintf("%s table_const=%d default_rel=%d", name, imm.ConstID, imm.Default)
	case CallImm:
		return fmt.Sprintf("%s func_id=%d argc=%d", name, imm.FuncID, imm.Argc)
	case CallIndirectImm:
		return fmt.Sprintf("%s sig_id=%d argc=%d", name, imm.SigID, imm.Argc)
	case StackProbeImm:
		return fmt.Sprintf("%s slots=%d", name, imm.Slots)
	case LineImm:
		return fmt.Sprintf("%s %d:%d", name, imm.Line, imm.Column)
	case IndexImm:
		return fmt.Sprintf("%s index=%d", name, imm.Index)
	case EnterImm:
		return fmt.Sprintf("%s locals=%d", name, imm.LocalsCount)
	case NewArrayImm:
		return fmt.Sprintf("%s type_id=%d length=%d", name, imm.TypeID, imm.Length)
	case NewListImm:
		return fmt.Sprintf("%s type_id=%d cap=%d", name, imm.TypeID, imm.InitialCapacity)
	case NewClosureImm:
		return fmt.Sprintf("%s func_id=%d upvalues=%d", name, imm.FuncID, imm.UpvalueCount)
	case IntrinsicImm:
		return fmt.Sprintf("%s id=%d", name, imm.ID)
	default:
		return name
	}
}

// Size returns the instruction's encoded length in bytes, including the
// opcode byte.
func (in Instr) Size() uint32 {
	return in.NextPC - in.PC
}
