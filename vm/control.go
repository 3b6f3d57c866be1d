package vm

import (
	"github.com/sbclang/sbcvm/heap"
	"github.com/sbclang/sbcvm/module"
	"github.com/sbclang/sbcvm/sbcerr"
)

// popArgs pops argc values off the stack in reverse, restoring left-to-right
// call order for the callee's locals window.
func (v *VM) popArgs(argc int) ([]slot, error) {
	args := make([]slot, argc)
	for i := argc - 1; i >= 0; i-- {
		s, err := v.pop()
		if err != nil {
			return nil, err
		}
		args[i] = s
	}
	return args, nil
}

// execCall enters funcID as a fresh (non-closure) frame.
func (v *VM) execCall(funcID uint32, argc int) error {
	if int(funcID) >= len(v.funcs) {
		return v.trap(sbcerr.KindIndexOutOfRange, "Call: function %d does not exist", funcID)
	}
	args, err := v.popArgs(argc)
	if err != nil {
		return err
	}
	v.pushFrame(funcID, args, heap.Null)
	v.maybeCollect()
	return nil
}

// execCallIndirect pops a closure Ref below its args, resolving both the
// target function and its captured upvalues from the heap's closure object.
func (v *VM) execCallIndirect(argc int) error {
	args, err := v.popArgs(argc)
	if err != nil {
		return err
	}
	r, err := v.pop()
	if err != nil {
		return err
	}
	ref := r.asRef()
	funcID, err := v.heap.ClosureFunc(ref)
	if err != nil {
		return v.trap(sbcerr.KindNullDeref, "CallIndirect: %v", err)
	}
	if int(funcID) >= len(v.funcs) {
		return v.trap(sbcerr.KindIndexOutOfRange, "CallIndirect: function %d does not exist", funcID)
	}
	v.pushFrame(funcID, args, ref)
	v.maybeCollect()
	return nil
}

// execTailCall replaces the current frame in place rather than growing the
// call stack, the same way Ret would unwind it but without ever returning to
// the caller (spec.md §4.4: TailCall requires the callee's declared return
// type to exactly match the caller's).
func (v *VM) execTailCall(funcID uint32, argc int) error {
	if int(funcID) >= len(v.funcs) {
		return v.trap(sbcerr.KindIndexOutOfRange, "TailCall: function %d does not exist", funcID)
	}
	cur := v.curFrame()
	if v.funcs[funcID].sig.RetTypeID != cur.retTypeID {
		return v.trap(sbcerr.KindTypeMismatch, "TailCall: callee return type %d does not match caller %d",
			v.funcs[funcID].sig.RetTypeID, cur.retTypeID)
	}
	args, err := v.popArgs(argc)
	if err != nil {
		return err
	}
	v.popFrame()
	v.pushFrame(funcID, args, heap.Null)
	v.maybeCollect()
	return nil
}

// execRet unwinds the current frame, leaving the single declared return
// value (or nothing, for a void signature) on the stack for the caller.
func (v *VM) execRet() (Status, Result, error) {
	fr := v.curFrame()
	var retVal slot
	hasRet := fr.retTypeID != module.VoidRet
	if hasRet {
		s, err := v.pop()
		if err != nil {
			return StatusRunning, Result{}, err
		}
		retVal = s
	}
	// Discard anything the callee left behind above its own frame base
	// (verified unreachable in a well-formed module, defense in depth).
	v.stack = v.stack[:fr.stackBase]
	v.popFrame()

	if len(v.frames) == 0 {
		if hasRet {
			return StatusHalted, Result{Status: StatusHalted, ExitCode: retVal.asI32()}, nil
		}
		return StatusHalted, Result{Status: StatusHalted, ExitCode: 0}, nil
	}
	if hasRet {
		v.push(retVal)
	}
	v.maybeCollect()
	return StatusRunning, Result{}, nil
}

// execHalt ends the program immediately: spec.md §6's exit-code contract is
// "0 on success, else the top-of-stack i32 at Halt".
func (v *VM) execHalt() (Status, Result) {
	code := int32(0)
	if s, err := v.peek(); err == nil {
		code = s.asI32()
	}
	return StatusHalted, Result{Status: StatusHalted, ExitCode: code}
}

// execIntrinsic realizes the host-import boundary (spec.md §4.6). Call and
// CallIndirect can only target module-defined Functions (verify/function.go
// indexes Call's operand directly into m.Functions with no import-table
// offset, and Function.CodeSize >= 1 rules out an import ever posing as a
// callable function), so an imported symbol is instead invoked through
// Intrinsic, whose ID operand is reinterpreted as an index into m.Imports;
// the import's Target field is the sig_id that gives the exact arity and
// parameter types to pop.
func (v *VM) execIntrinsic(id uint32) error {
	if int(id) >= len(v.m.Imports) {
		return v.trap(sbcerr.KindMissingImport, "Intrinsic: import %d does not exist", id)
	}
	imp := v.m.Imports[id]
	sig := v.m.Sigs[imp.Target]

	args := make([]uint64, len(sig.ParamTypes))
	for i := len(sig.ParamTypes) - 1; i >= 0; i-- {
		s, err := v.pop()
		if err != nil {
			return err
		}
		args[i] = s.raw()
	}

	moduleName, err := v.m.String(imp.ModuleStr)
	if err != nil {
		return v.trap(sbcerr.KindMissingImport, "Intrinsic: %v", err)
	}
	symbolName, err := v.m.String(imp.SymbolStr)
	if err != nil {
		return v.trap(sbcerr.KindMissingImport, "Intrinsic: %v", err)
	}

	ret, hasReturn, err := v.resolver.Resolve(moduleName, symbolName, args, v.heap)
	if err != nil {
		if imp.IsWeak() {
			v.push(zeroSlot(module.KindI32))
			return nil
		}
		return v.trap(sbcerr.KindMissingImport, "Intrinsic %s.%s: %v", moduleName, symbolName, err)
	}
	if hasReturn && sig.HasReturn() {
		v.push(slotOfKind(v.m.Types[sig.RetTypeID].Kind, ret))
	}
	return nil
}

// execSysCall is an unconditional trap: spec.md §9 states plainly that
// SysCall's behavior "is an unconditional trap in the source."
func (v *VM) execSysCall() error {
	return v.trap(sbcerr.KindSysCall, "SysCall executed")
}

func (v *VM) resolveTarget(fr *frame, rel int32) (int, error) {
	fb := v.funcs[fr.funcID]
	pc := fb.instrs[fr.ip].Target(rel)
	idx, ok := fb.pcIndex[pc]
	if !ok {
		return 0, v.trap(sbcerr.KindIndexOutOfRange, "branch target pc %d is not an instruction boundary", pc)
	}
	return idx, nil
}

func (v *VM) execJumpTable(constID uint32, defaultRel int32) error {
	sel, err := v.pop()
	if err != nil {
		return err
	}
	fr := v.curFrame()
	entry := v.m.Consts.Entries[constID]
	idx := int(sel.asI32())
	var rel int32
	if idx < 0 || idx >= len(entry.CaseOffsets) {
		rel = defaultRel
	} else {
		rel = entry.CaseOffsets[idx]
	}
	target, err := v.resolveTarget(fr, rel)
	if err != nil {
		return err
	}
	if target <= fr.ip {
		v.maybeCollect()
	}
	fr.ip = target
	return nil
}
