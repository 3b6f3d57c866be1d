package verify

import (
	"github.com/sbclang/sbcvm/module"
	"github.com/sbclang/sbcvm/opcode"
	"github.com/sbclang/sbcvm/sbcerr"
)

// anyKind is a verifier-internal placeholder type used only for upvalue
// slots, whose static type is not recoverable from the module format (a
// closure's captured values are typed dynamically at NewClosure time, not
// declared). Two anyKind values compare equal to each other but to nothing
// concrete, which is sound: it never lets a real type mismatch through, it
// only refuses to prove upvalue slots are the same pseudo-type across an
// unrelated merge, which is conservative rather than unsound.
const anyKind = module.TypeKind(0xFF)

// funcCtx is the static context shared by every instruction in one function:
// the module it belongs to, its own signature, and its decoded body.
type funcCtx struct {
	m       *module.Module
	funcID  uint32
	sig     module.Signature
	instrs  []opcode.Instr
	starts  map[uint32]bool
	numLocals int
}

// successor describes how an instruction's outcome propagates through the
// worklist: one (pc, state) pair to enqueue.
type successor struct {
	pc uint32
	st state
}

// verifyFunction runs the abstract interpreter over one function's body,
// spec.md §4.3.
func verifyFunction(m *module.Module, funcID uint32, fn module.Function) error {
	instrs, err := opcode.DecodeFunction(m.FuncCode(fn))
	if err != nil {
		return sbcerr.Verify(sbcerr.KindUnknownOpcode, funcID, 0, "%v", err)
	}
	if len(instrs) == 0 || instrs[0].Op != opcode.Enter {
		return sbcerr.Verify(sbcerr.KindNoFallthrough, funcID, 0, "function body must begin with Enter")
	}
	enterImm := instrs[0].Imm.(opcode.EnterImm)

	method := m.Methods[fn.MethodID]
	sig := m.Sigs[method.SigID]

	starts := make(map[uint32]bool, len(instrs))
	for _, in := range instrs {
		starts[in.PC] = true
	}

	ctx := &funcCtx{
		m:         m,
		funcID:    funcID,
		sig:       sig,
		instrs:    instrs,
		starts:    starts,
		numLocals: len(sig.ParamTypes) + int(enterImm.LocalsCount),
	}

	init := state{locals: make([]localSlot, ctx.numLocals)}
	for i, p := range sig.ParamTypes {
		init.locals[i] = localSlot{init: true, typ: m.Types[p].Kind}
	}

	seen := map[uint32]state{instrs[0].NextPC: init}
	worklist := []uint32{instrs[0].NextPC}

	for len(worklist) > 0 {
		pc := worklist[0]
		worklist = worklist[1:]
		st := seen[pc].clone()

		cur, ok := atPC(instrs, pc)
		if !ok {
			return sbcerr.Verify(sbcerr.KindBadBranchTarget, funcID, pc, "branch target is not an instruction boundary")
		}

		for {
			succs, terminal, err := ctx.step(cur, &st)
			if err != nil {
				return err
			}
			if terminal {
				break
			}
			if len(succs) == 1 && succs[0].pc == cur.NextPC {
				next, ok := atPC(instrs, cur.NextPC)
				if !ok {
					return sbcerr.Verify(sbcerr.KindNoFallthrough, funcID, cur.PC, "code runs off the end of the function without a terminator")
				}
				if err := ctx.merge(succs[0].pc, succs[0].st, seen, &worklist); err != nil {
					return err
				}
				cur = next
				st = succs[0].st
				continue
			}
			for _, s := range succs {
				if err := ctx.merge(s.pc, s.st, seen, &worklist); err != nil {
					return err
				}
			}
			break
		}
	}
	return nil
}

func atPC(instrs []opcode.Instr, pc uint32) (opcode.Instr, bool) {
	return opcode.AtPC(instrs, pc)
}

// merge records st as the incoming state at pc, enqueuing pc if it is newly
// discovered, or verifying st agrees exactly with the previously recorded
// state if pc was already reachable by another path (spec.md §4.3's merge
// point consistency check).
func (ctx *funcCtx) merge(pc uint32, st state, seen map[uint32]state, worklist *[]uint32) error {
	if !ctx.starts[pc] {
		return sbcerr.Verify(sbcerr.KindBadBranchTarget, ctx.funcID, pc, "branch target %d is not an instruction boundary", pc)
	}
	if prev, ok := seen[pc]; ok {
		if !prev.equal(st) {
			return sbcerr.Verify(sbcerr.KindMergeMismatch, ctx.funcID, pc, "incompatible stack/locals shapes merge at pc %d", pc)
		}
		return nil
	}
	seen[pc] = st
	*worklist = append(*worklist, pc)
	return nil
}

func (ctx *funcCtx) fail(kind sbcerr.Kind, pc uint32, detail string, args ...any) error {
	return sbcerr.Verify(kind, ctx.funcID, pc, detail, args...)
}

func (ctx *funcCtx) popExpect(st *state, pc uint32, want module.TypeKind) error {
	got, ok := st.pop()
	if !ok {
		return ctx.fail(sbcerr.KindStackUnderflow, pc, "expected %s, stack empty", want)
	}
	if got != want {
		return ctx.fail(sbcerr.KindTypeMismatch, pc, "expected %s, got %s", want, got)
	}
	return nil
}

func (ctx *funcCtx) popAny(st *state, pc uint32) (module.TypeKind, error) {
	got, ok := st.pop()
	if !ok {
		return 0, ctx.fail(sbcerr.KindStackUnderflow, pc, "stack empty")
	}
	return got, nil
}

// step applies one instruction's abstract effect to st, returning the set
// of control-flow successors (as raw target pcs paired with the resulting
// state) and whether this instruction is a true dead end (Halt/Trap: no
// successors at all, not even via fallthrough).
func (ctx *funcCtx) step(in opcode.Instr, st *state) ([]successor, bool, error) {
	op := in.Op
	pc := in.PC

	switch {
	case op == opcode.Pop:
		if _, err := ctx.popAny(st, pc); err != nil {
			return nil, false, err
		}
	case op == opcode.Dup:
		t, ok := st.top()
		if !ok {
			return nil, false, ctx.fail(sbcerr.KindStackUnderflow, pc, "Dup on empty stack")
		}
		st.push(t)
	case op == opcode.Dup2:
		if len(st.stack) < 2 {
			return nil, false, ctx.fail(sbcerr.KindStackUnderflow, pc, "Dup2 needs 2 values")
		}
		a, b := st.stack[len(st.stack)-2], st.stack[len(st.stack)-1]
		st.push(a)
		st.push(b)
	case op == opcode.Swap:
		n := len(st.stack)
		if n < 2 {
			return nil, false, ctx.fail(sbcerr.KindStackUnderflow, pc, "Swap needs 2 values")
		}
		st.stack[n-1], st.stack[n-2] = st.stack[n-2], st.stack[n-1]
	case op == opcode.Rot:
		n := len(st.stack)
		if n < 3 {
			return nil, false, ctx.fail(sbcerr.KindStackUnderflow, pc, "Rot needs 3 values")
		}
		st.stack[n-3], st.stack[n-2], st.stack[n-1] = st.stack[n-2], st.stack[n-1], st.stack[n-3]

	case isIn(constEffect, op):
		st.push(constEffect[op])

	case isIn(binaryArith, op):
		k := binaryArith[op]
		if err := ctx.popExpect(st, pc, k); err != nil {
			return nil, false, err
		}
		if err := ctx.popExpect(st, pc, k); err != nil {
			return nil, false, err
		}
		st.push(k)
	case isIn(bitwiseOps, op):
		k := bitwiseOps[op]
		if err := ctx.popExpect(st, pc, k); err != nil {
			return nil, false, err
		}
		if err := ctx.popExpect(st, pc, k); err != nil {
			return nil, false, err
		}
		st.push(k)
	case isIn(shiftOps, op):
		k := shiftOps[op]
		if err := ctx.popExpect(st, pc, module.KindI32); err != nil {
			return nil, false, err
		}
		if err := ctx.popExpect(st, pc, k); err != nil {
			return nil, false, err
		}
		st.push(k)
	case isIn(negOps, op):
		k := negOps[op]
		if err := ctx.popExpect(st, pc, k); err != nil {
			return nil, false, err
		}
		st.push(k)
	case isIn(incDecOps, op):
		k := incDecOps[op]
		if err := ctx.popExpect(st, pc, k); err != nil {
			return nil, false, err
		}
		st.push(k)
	case isIn(cmpOps, op):
		k := cmpOps[op]
		if err := ctx.popExpect(st, pc, k); err != nil {
			return nil, false, err
		}
		if err := ctx.popExpect(st, pc, k); err != nil {
			return nil, false, err
		}
		st.push(module.KindBool)

	case op == opcode.LoadLocal:
		idx := int(in.Imm.(opcode.IndexImm).Index)
		if idx < 0 || idx >= ctx.numLocals {
			return nil, false, ctx.fail(sbcerr.KindIndexOutOfRange, pc, "local %d out of range", idx)
		}
		slot := st.locals[idx]
		if !slot.init {
			return nil, false, ctx.fail(sbcerr.KindUninitLocal, pc, "local %d read before write", idx)
		}
		st.push(slot.typ)
	case op == opcode.StoreLocal:
		idx := int(in.Imm.(opcode.IndexImm).Index)
		if idx < 0 || idx >= ctx.numLocals {
			return nil, false, ctx.fail(sbcerr.KindIndexOutOfRange, pc, "local %d out of range", idx)
		}
		t, err := ctx.popAny(st, pc)
		if err != nil {
			return nil, false, err
		}
		st.locals[idx] = localSlot{init: true, typ: t}

	case op == opcode.LoadGlobal:
		idx := int(in.Imm.(opcode.IndexImm).Index)
		if idx < 0 || idx >= len(ctx.m.Globals) {
			return nil, false, ctx.fail(sbcerr.KindIndexOutOfRange, pc, "global %d out of range", idx)
		}
		st.push(ctx.m.Types[ctx.m.Globals[idx].TypeID].Kind)
	case op == opcode.StoreGlobal:
		idx := int(in.Imm.(opcode.IndexImm).Index)
		if idx < 0 || idx >= len(ctx.m.Globals) {
			return nil, false, ctx.fail(sbcerr.KindIndexOutOfRange, pc, "global %d out of range", idx)
		}
		want := ctx.m.Types[ctx.m.Globals[idx].TypeID].Kind
		if err := ctx.popExpect(st, pc, want); err != nil {
			return nil, false, err
		}

	case op == opcode.LoadUpvalue:
		st.push(anyKind)
	case op == opcode.StoreUpvalue:
		if _, err := ctx.popAny(st, pc); err != nil {
			return nil, false, err
		}

	case op == opcode.NewObject:
		typeID := in.Imm.(opcode.IndexImm).Index
		if int(typeID) >= len(ctx.m.Types) {
			return nil, false, ctx.fail(sbcerr.KindIndexOutOfRange, pc, "type %d out of range", typeID)
		}
		st.push(module.KindRef)
	case op == opcode.LoadField:
		fieldID := in.Imm.(opcode.IndexImm).Index
		if int(fieldID) >= len(ctx.m.Fields) {
			return nil, false, ctx.fail(sbcerr.KindIndexOutOfRange, pc, "field %d out of range", fieldID)
		}
		if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
			return nil, false, err
		}
		st.push(ctx.m.Types[ctx.m.Fields[fieldID].TypeID].Kind)
	case op == opcode.StoreField:
		fieldID := in.Imm.(opcode.IndexImm).Index
		if int(fieldID) >= len(ctx.m.Fields) {
			return nil, false, ctx.fail(sbcerr.KindIndexOutOfRange, pc, "field %d out of range", fieldID)
		}
		want := ctx.m.Types[ctx.m.Fields[fieldID].TypeID].Kind
		if err := ctx.popExpect(st, pc, want); err != nil {
			return nil, false, err
		}
		if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
			return nil, false, err
		}

	case op == opcode.IsNull:
		if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
			return nil, false, err
		}
		st.push(module.KindBool)
	case op == opcode.RefEq || op == opcode.RefNe:
		if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
			return nil, false, err
		}
		if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
			return nil, false, err
		}
		st.push(module.KindBool)
	case op == opcode.TypeOf:
		if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
			return nil, false, err
		}
		st.push(module.KindU32)

	case op == opcode.NewArray || op == opcode.NewArrayI64 || op == opcode.NewArrayF32 || op == opcode.NewArrayF64 || op == opcode.NewArrayRef:
		imm := in.Imm.(opcode.NewArrayImm)
		if int(imm.TypeID) >= len(ctx.m.Types) {
			return nil, false, ctx.fail(sbcerr.KindIndexOutOfRange, pc, "array element type %d out of range", imm.TypeID)
		}
		st.push(module.KindRef)
	case op == opcode.ArrayLen:
		if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
			return nil, false, err
		}
		st.push(module.KindU32)
	case isIn(arrayElemType, op):
		elem := arrayElemType[op]
		if isArrayGet(op) {
			if err := ctx.popExpect(st, pc, module.KindI32); err != nil {
				return nil, false, err
			}
			if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
				return nil, false, err
			}
			st.push(elem)
		} else {
			if err := ctx.popExpect(st, pc, elem); err != nil {
				return nil, false, err
			}
			if err := ctx.popExpect(st, pc, module.KindI32); err != nil {
				return nil, false, err
			}
			if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
				return nil, false, err
			}
		}

	case op == opcode.NewList || op == opcode.NewListI64 || op == opcode.NewListF32 || op == opcode.NewListF64 || op == opcode.NewListRef:
		imm := in.Imm.(opcode.NewListImm)
		if int(imm.TypeID) >= len(ctx.m.Types) {
			return nil, false, ctx.fail(sbcerr.KindIndexOutOfRange, pc, "list element type %d out of range", imm.TypeID)
		}
		st.push(module.KindRef)
	case op == opcode.ListLen:
		if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
			return nil, false, err
		}
		st.push(module.KindU32)
	case op == opcode.ListClear:
		if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
			return nil, false, err
		}

	case isIn(listElemType, op):
		elem := listElemType[op]
		switch {
		case isListPush(op):
			if err := ctx.popExpect(st, pc, elem); err != nil {
				return nil, false, err
			}
			if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
				return nil, false, err
			}
		case isListPop(op):
			if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
				return nil, false, err
			}
			st.push(elem)
		case isListGetOrRemove(op):
			if err := ctx.popExpect(st, pc, module.KindI32); err != nil {
				return nil, false, err
			}
			if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
				return nil, false, err
			}
			st.push(elem)
		case isListSetOrInsert(op):
			if err := ctx.popExpect(st, pc, elem); err != nil {
				return nil, false, err
			}
			if err := ctx.popExpect(st, pc, module.KindI32); err != nil {
				return nil, false, err
			}
			if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
				return nil, false, err
			}
		}

	case op == opcode.StringLen:
		if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
			return nil, false, err
		}
		st.push(module.KindU32)
	case op == opcode.StringConcat:
		if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
			return nil, false, err
		}
		if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
			return nil, false, err
		}
		st.push(module.KindRef)
	case op == opcode.StringGetChar:
		if err := ctx.popExpect(st, pc, module.KindI32); err != nil {
			return nil, false, err
		}
		if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
			return nil, false, err
		}
		st.push(module.KindChar)
	case op == opcode.StringSlice:
		if err := ctx.popExpect(st, pc, module.KindI32); err != nil {
			return nil, false, err
		}
		if err := ctx.popExpect(st, pc, module.KindI32); err != nil {
			return nil, false, err
		}
		if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
			return nil, false, err
		}
		st.push(module.KindRef)

	case op == opcode.NewClosure:
		imm := in.Imm.(opcode.NewClosureImm)
		if int(imm.FuncID) >= len(ctx.m.Functions) {
			return nil, false, ctx.fail(sbcerr.KindIndexOutOfRange, pc, "closure func %d out of range", imm.FuncID)
		}
		for i := uint8(0); i < imm.UpvalueCount; i++ {
			if _, err := ctx.popAny(st, pc); err != nil {
				return nil, false, err
			}
		}
		st.push(module.KindRef)

	case op == opcode.Intrinsic:
		// Unlike Call/CallIndirect, the immediate is not a function or
		// signature id directly but an index into the import table; the
		// import's Target field is the sig_id that gives the exact arity
		// and types to check, mirroring vm/control.go's execIntrinsic.
		imm := in.Imm.(opcode.IntrinsicImm)
		if int(imm.ID) >= len(ctx.m.Imports) {
			return nil, false, ctx.fail(sbcerr.KindIndexOutOfRange, pc, "import %d out of range", imm.ID)
		}
		imp := ctx.m.Imports[imm.ID]
		if int(imp.Target) >= len(ctx.m.Sigs) {
			return nil, false, ctx.fail(sbcerr.KindIndexOutOfRange, pc, "import %d signature %d out of range", imm.ID, imp.Target)
		}
		sig := ctx.m.Sigs[imp.Target]
		for i := len(sig.ParamTypes) - 1; i >= 0; i-- {
			want := ctx.m.Types[sig.ParamTypes[i]].Kind
			if err := ctx.popExpect(st, pc, want); err != nil {
				return nil, false, err
			}
		}
		if sig.HasReturn() {
			st.push(ctx.m.Types[sig.RetTypeID].Kind)
		}

	case op == opcode.SysCall:
		// execSysCall is an unconditional trap (vm/control.go); nothing
		// follows it, so it needs no stack effect of its own.
		return nil, true, nil

	case op == opcode.Line, op == opcode.Breakpoint, op == opcode.ProfileStart, op == opcode.ProfileEnd, op == opcode.Leave, op == opcode.CallCheck:
		// no stack effect

	case op == opcode.Enter:
		return nil, false, ctx.fail(sbcerr.KindBadBranchTarget, pc, "Enter may only appear as the function's first instruction")

	case op == opcode.Call || op == opcode.TailCall:
		imm := in.Imm.(opcode.CallImm)
		if int(imm.FuncID) >= len(ctx.m.Functions) {
			return nil, false, ctx.fail(sbcerr.KindIndexOutOfRange, pc, "call target %d out of range", imm.FuncID)
		}
		callee := ctx.m.Functions[imm.FuncID]
		calleeSig := ctx.m.Sigs[ctx.m.Methods[callee.MethodID].SigID]
		if int(imm.Argc) != len(calleeSig.ParamTypes) {
			return nil, false, ctx.fail(sbcerr.KindArityMismatch, pc, "call to func %d: argc %d, want %d", imm.FuncID, imm.Argc, len(calleeSig.ParamTypes))
		}
		for i := len(calleeSig.ParamTypes) - 1; i >= 0; i-- {
			want := ctx.m.Types[calleeSig.ParamTypes[i]].Kind
			if err := ctx.popExpect(st, pc, want); err != nil {
				return nil, false, err
			}
		}
		if op == opcode.TailCall {
			if calleeSig.RetTypeID != ctx.sig.RetTypeID {
				return nil, false, ctx.fail(sbcerr.KindTypeMismatch, pc, "tail call return type mismatch")
			}
			return nil, true, nil
		}
		if calleeSig.HasReturn() {
			st.push(ctx.m.Types[calleeSig.RetTypeID].Kind)
		}

	case op == opcode.CallIndirect:
		imm := in.Imm.(opcode.CallIndirectImm)
		if int(imm.SigID) >= len(ctx.m.Sigs) {
			return nil, false, ctx.fail(sbcerr.KindIndexOutOfRange, pc, "signature %d out of range", imm.SigID)
		}
		sig := ctx.m.Sigs[imm.SigID]
		if int(imm.Argc) != len(sig.ParamTypes) {
			return nil, false, ctx.fail(sbcerr.KindArityMismatch, pc, "call_indirect argc %d, want %d", imm.Argc, len(sig.ParamTypes))
		}
		for i := len(sig.ParamTypes) - 1; i >= 0; i-- {
			want := ctx.m.Types[sig.ParamTypes[i]].Kind
			if err := ctx.popExpect(st, pc, want); err != nil {
				return nil, false, err
			}
		}
		if err := ctx.popExpect(st, pc, module.KindRef); err != nil {
			return nil, false, err
		}
		if sig.HasReturn() {
			st.push(ctx.m.Types[sig.RetTypeID].Kind)
		}

	case op == opcode.Ret:
		if ctx.sig.HasReturn() {
			want := ctx.m.Types[ctx.sig.RetTypeID].Kind
			if err := ctx.popExpect(st, pc, want); err != nil {
				return nil, false, err
			}
		}
		return nil, true, nil
	case op == opcode.Halt || op == opcode.Trap:
		return nil, true, nil

	case op == opcode.Jmp:
		target := in.Target(in.Imm.(opcode.JumpImm).Rel)
		return []successor{{pc: target, st: st.clone()}}, false, nil
	case op == opcode.JmpTrue || op == opcode.JmpFalse:
		if err := ctx.popExpect(st, pc, module.KindBool); err != nil {
			return nil, false, err
		}
		target := in.Target(in.Imm.(opcode.JumpImm).Rel)
		return []successor{{pc: target, st: st.clone()}, {pc: in.NextPC, st: st.clone()}}, false, nil
	case op == opcode.JmpTable:
		imm := in.Imm.(opcode.JumpTableImm)
		if err := ctx.popExpect(st, pc, module.KindI32); err != nil {
			return nil, false, err
		}
		if int(imm.ConstID) >= len(ctx.m.Consts.Entries) || ctx.m.Consts.Entries[imm.ConstID].Tag != module.ConstTagJmpTableBlob {
			return nil, false, ctx.fail(sbcerr.KindBadConstTag, pc, "jump table const %d is not a JmpTableBlob", imm.ConstID)
		}
		cases := ctx.m.Consts.Entries[imm.ConstID].CaseOffsets
		succs := make([]successor, 0, len(cases)+1)
		succs = append(succs, successor{pc: in.Target(imm.Default), st: st.clone()})
		for _, rel := range cases {
			succs = append(succs, successor{pc: in.Target(rel), st: st.clone()})
		}
		return succs, false, nil

	default:
		return nil, false, ctx.fail(sbcerr.KindUnknownOpcode, pc, "unhandled opcode %s in verifier", opcode.Name(op))
	}

	return []successor{{pc: in.NextPC, st: st.clone()}}, false, nil
}

func isListPush(op opcode.Op) bool {
	switch op {
	case opcode.ListPushI32, opcode.ListPushI64, opcode.ListPushF32, opcode.ListPushF64, opcode.ListPushRef:
		return true
	}
	return false
}
func isListPop(op opcode.Op) bool {
	switch op {
	case opcode.ListPopI32, opcode.ListPopI64, opcode.ListPopF32, opcode.ListPopF64, opcode.ListPopRef:
		return true
	}
	return false
}
func isListGetOrRemove(op opcode.Op) bool {
	switch op {
	case opcode.ListGetI32, opcode.ListGetI64, opcode.ListGetF32, opcode.ListGetF64, opcode.ListGetRef,
		opcode.ListRemoveI32, opcode.ListRemoveI64, opcode.ListRemoveF32, opcode.ListRemoveF64, opcode.ListRemoveRef:
		return true
	}
	return false
}
func isListSetOrInsert(op opcode.Op) bool {
	switch op {
	case opcode.ListSetI32, opcode.ListSetI64, opcode.ListSetF32, opcode.ListSetF64, opcode.ListSetRef,
		opcode.ListInsertI32, opcode.ListInsertI64, opcode.ListInsertF32, opcode.ListInsertF64, opcode.ListInsertRef:
		return true
	}
	return false
}
