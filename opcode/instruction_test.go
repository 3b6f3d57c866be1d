package opcode_test

import (
	"testing"

	"github.com/sbclang/sbcvm/opcode"
)

func TestDecodeConstAndArithmetic(t *testing.T) {
	e := opcode.NewEncoder()
	e.ConstI32(40).ConstI32(2).AddI32().Halt()

	instrs, err := opcode.DecodeFunction(e.Bytes())
	if err != nil {
		t.Fatalf("DecodeFunction: %v", err)
	}
	if len(instrs) != 4 {
		t.Fatalf("got %d instructions, want 4", len(instrs))
	}
	if instrs[0].Op != opcode.ConstI32 {
		t.Errorf("instr 0: got %s, want ConstI32", opcode.Name(instrs[0].Op))
	}
	imm, ok := instrs[0].Imm.(opcode.ConstImm)
	if !ok || imm.I != 40 {
		t.Errorf("instr 0 imm: got %#v, want I=40", instrs[0].Imm)
	}
	if instrs[3].Op != opcode.Halt {
		t.Errorf("instr 3: got %s, want Halt", opcode.Name(instrs[3].Op))
	}
}

func TestJumpTargetRelativeToNextPC(t *testing.T) {
	e := opcode.NewEncoder()
	e.ConstBool(true)
	_, at := e.Jmp(0)
	e.Halt()
	target := uint32(e.Len())
	e.PatchRel32(at, target)
	e.ConstI32(99)
	e.Halt()

	instrs, err := opcode.DecodeFunction(e.Bytes())
	if err != nil {
		t.Fatalf("DecodeFunction: %v", err)
	}
	jmp := instrs[1]
	if jmp.Op != opcode.Jmp {
		t.Fatalf("expected Jmp, got %s", opcode.Name(jmp.Op))
	}
	imm := jmp.Imm.(opcode.JumpImm)
	if jmp.Target(imm.Rel) != target {
		t.Errorf("Target: got %d, want %d", jmp.Target(imm.Rel), target)
	}
}

func TestDecodeCallAndCallIndirect(t *testing.T) {
	e := opcode.NewEncoder()
	e.Call(3, 2).CallIndirect(7, 1).TailCall(9, 0)

	instrs, err := opcode.DecodeFunction(e.Bytes())
	if err != nil {
		t.Fatalf("DecodeFunction: %v", err)
	}
	call := instrs[0].Imm.(opcode.CallImm)
	if call.FuncID != 3 || call.Argc != 2 {
		t.Errorf("Call imm: got %+v", call)
	}
	ci := instrs[1].Imm.(opcode.CallIndirectImm)
	if ci.SigID != 7 || ci.Argc != 1 {
		t.Errorf("CallIndirect imm: got %+v", ci)
	}
	tc := instrs[2].Imm.(opcode.CallImm)
	if tc.FuncID != 9 || tc.Argc != 0 {
		t.Errorf("TailCall imm: got %+v", tc)
	}
}

func TestDecodeJmpTable(t *testing.T) {
	e := opcode.NewEncoder()
	e.JmpTable(5, -10)
	instrs, err := opcode.DecodeFunction(e.Bytes())
	if err != nil {
		t.Fatalf("DecodeFunction: %v", err)
	}
	jt := instrs[0].Imm.(opcode.JumpTableImm)
	if jt.ConstID != 5 || jt.Default != -10 {
		t.Errorf("JmpTable imm: got %+v", jt)
	}
}

func TestUnknownOpcodeRejected(t *testing.T) {
	_, err := opcode.DecodeFunction([]byte{0xFE})
	if err == nil {
		t.Error("expected error decoding unknown opcode byte")
	}
}

func TestFormatIncludesOperands(t *testing.T) {
	e := opcode.NewEncoder()
	e.Call(3, 2)
	instrs, err := opcode.DecodeFunction(e.Bytes())
	if err != nil {
		t.Fatalf("DecodeFunction: %v", err)
	}
	got := instrs[0].Format()
	want := "Call func_id=3 argc=2"
	if got != want {
		t.Errorf("Format: got %q, want %q", got, want)
	}
}

func TestNewArrayAndNewList(t *testing.T) {
	e := opcode.NewEncoder()
	e.NewArray(1, 3).ArraySetI32().NewList(2, 4)
	instrs, err := opcode.DecodeFunction(e.Bytes())
	if err != nil {
		t.Fatalf("DecodeFunction: %v", err)
	}
	na := instrs[0].Imm.(opcode.NewArrayImm)
	if na.TypeID != 1 || na.Length != 3 {
		t.Errorf("NewArray imm: got %+v", na)
	}
	nl := instrs[2].Imm.(opcode.NewListImm)
	if nl.TypeID != 2 || nl.InitialCapacity != 4 {
		t.Errorf("NewList imm: got %+v", nl)
	}
}

func TestIsInstructionStart(t *testing.T) {
	e := opcode.NewEncoder()
	e.ConstI32(1).ConstI32(2).AddI32().Halt()
	instrs, err := opcode.DecodeFunction(e.Bytes())
	if err != nil {
		t.Fatalf("DecodeFunction: %v", err)
	}
	if !opcode.IsInstructionStart(instrs, instrs[1].PC) {
		t.Error("expected instrs[1].PC to be an instruction start")
	}
	if opcode.IsInstructionStart(instrs, instrs[0].PC+1) {
		t.Error("mid-instruction offset should not be a start")
	}
}
