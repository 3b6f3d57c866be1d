package opcode

import "github.com/sbclang/sbcvm/internal/binary"

// DecodeFunction walks an entire function's code slice and returns every
// instruction it contains, in program order. Used by the loader's opcode
// scan (spec.md §4.1: "walk opcodes and verify each operand lies inside the
// function") and by the verifier and disassembler.
func DecodeFunction(code []byte) ([]Instr, error) {
	r := binary.NewReader(code)
	instrs := make([]Instr, 0, len(code)/2)
	for r.Remaining() > 0 {
		in, err := Decode(r)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, in)
	}
	return instrs, nil
}

// AtPC returns the instruction whose PC equals pc, and whether one exists.
// Linear scan is fine here: used only off the hot path, by the verifier's
// CFG builder and by trap/debug reporting.
func AtPC(instrs []Instr, pc uint32) (Instr, bool) {
	for _, in := range instrs {
		if in.PC == pc {
			return in, true
		}
	}
	return Instr{}, false
}

// IsInstructionStart reports whether pc is the first byte of some
// instruction in instrs, used to reject branches into the middle of an
// instruction (spec.md §4.3).
func IsInstructionStart(instrs []Instr, pc uint32) bool {
	_, ok := AtPC(instrs, pc)
	return ok
}

// Disassemble renders every instruction as "pc: mnemonic operands".
func Disassemble(instrs []Instr) []string {
	out := make([]string, len(instrs))
	for i, in := range instrs {
		out[i] = in.Format()
	}
	return out
}
