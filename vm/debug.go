package vm

import (
	"fmt"

	"github.com/sbclang/sbcvm/heap"
	"github.com/sbclang/sbcvm/module"
)

// Step executes exactly one instruction, for cmd/sbcrun's interactive
// debugger (grounded on the teacher's bubbletea TUI, adapted from a
// one-shot component function call to single-instruction stepping). The
// entry frame must already be pushed by StartStep before the first call.
func (v *VM) Step() (Status, Result, error) {
	return v.step()
}

// StartStep pushes the module's entry frame without running any
// instructions, so a debugger can call Step in a loop from instruction
// zero instead of Run's run-to-completion loop.
func (v *VM) StartStep() error {
	entryFn, ok := v.m.FunctionByMethodID(v.m.Header.EntryMethodID)
	if !ok {
		return fmt.Errorf("vm: entry method %d has no function", v.m.Header.EntryMethodID)
	}
	entryFuncID, ok := v.funcIndexByMethodID(entryFn.MethodID)
	if !ok {
		return fmt.Errorf("vm: entry function not found")
	}
	v.pushFrame(entryFuncID, nil, heap.Null)
	return nil
}

// PC reports the currently executing function id and instruction offset,
// or ok=false once the program has halted (no frames left).
func (v *VM) PC() (funcID uint32, pc uint32, ok bool) {
	fr := v.curFrame()
	if fr == nil {
		return 0, 0, false
	}
	fb := v.funcs[fr.funcID]
	if fr.ip < 0 || fr.ip >= len(fb.instrs) {
		return fr.funcID, 0, false
	}
	return fr.funcID, fb.instrs[fr.ip].PC, true
}

// CurrentInstruction renders the mnemonic and operands of the instruction
// about to execute, in the same format trap diagnostics use.
func (v *VM) CurrentInstruction() string {
	fr := v.curFrame()
	if fr == nil {
		return ""
	}
	fb := v.funcs[fr.funcID]
	if fr.ip < 0 || fr.ip >= len(fb.instrs) {
		return ""
	}
	return fb.instrs[fr.ip].Format()
}

// FrameDepth reports how many call frames are currently active.
func (v *VM) FrameDepth() int { return len(v.frames) }

// StackSnapshot renders the current value stack top-to-bottom, most recent
// push first, for display in the debugger's stack pane.
func (v *VM) StackSnapshot() []string {
	out := make([]string, len(v.stack))
	for i := range v.stack {
		s := v.stack[len(v.stack)-1-i]
		out[i] = formatSlot(s)
	}
	return out
}

// LocalsSnapshot renders the current frame's locals window.
func (v *VM) LocalsSnapshot() []string {
	fr := v.curFrame()
	if fr == nil {
		return nil
	}
	out := make([]string, fr.localsCount)
	for i := 0; i < fr.localsCount; i++ {
		out[i] = formatSlot(v.locals[fr.localsBase+i])
	}
	return out
}

func formatSlot(s slot) string {
	switch s.kind {
	case module.KindF32:
		return fmt.Sprintf("f32:%v", s.asF32())
	case module.KindF64:
		return fmt.Sprintf("f64:%v", s.asF64())
	case module.KindBool:
		return fmt.Sprintf("bool:%v", s.asBool())
	case module.KindChar:
		return fmt.Sprintf("char:%q", rune(s.asChar()))
	case module.KindRef:
		return fmt.Sprintf("ref:%d", s.asRef())
	case module.KindI64:
		return fmt.Sprintf("i64:%d", s.asI64())
	case module.KindU64, module.KindU32, module.KindU16, module.KindU8:
		return fmt.Sprintf("u32:%d", s.asU32())
	case module.KindI128, module.KindU128:
		return fmt.Sprintf("i128:%d:%d", s.hi, s.bits)
	default:
		return fmt.Sprintf("i32:%d", s.asI32())
	}
}
