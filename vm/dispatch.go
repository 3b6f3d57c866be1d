package vm

import (
	"github.com/sbclang/sbcvm/heap"
	"github.com/sbclang/sbcvm/module"
	"github.com/sbclang/sbcvm/opcode"
	"github.com/sbclang/sbcvm/sbcerr"
)

// step decodes and executes the instruction at the current frame's ip,
// mirroring verify/function.go's per-opcode switch but operating on
// concrete slot/heap values instead of abstract stack-map entries.
func (v *VM) step() (Status, Result, error) {
	fr := v.curFrame()
	fb := &v.funcs[fr.funcID]
	if fr.ip >= len(fb.instrs) {
		return StatusRunning, Result{}, v.trap(sbcerr.KindIndexOutOfRange, "ip ran past the end of function %d", fr.funcID)
	}
	in := fb.instrs[fr.ip]
	nextIP := fr.ip + 1

	switch in.Op {
	case opcode.Pop:
		if _, err := v.pop(); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.Dup:
		s, err := v.peek()
		if err != nil {
			return StatusRunning, Result{}, err
		}
		v.push(s)
	case opcode.Dup2:
		n := len(v.stack)
		if n < 2 {
			return StatusRunning, Result{}, v.trap(sbcerr.KindStackUnderflow, "Dup2 on stack of height %d", n)
		}
		v.push(v.stack[n-2])
		v.push(v.stack[n-1])
	case opcode.Swap:
		n := len(v.stack)
		if n < 2 {
			return StatusRunning, Result{}, v.trap(sbcerr.KindStackUnderflow, "Swap on stack of height %d", n)
		}
		v.stack[n-1], v.stack[n-2] = v.stack[n-2], v.stack[n-1]
	case opcode.Rot:
		n := len(v.stack)
		if n < 3 {
			return StatusRunning, Result{}, v.trap(sbcerr.KindStackUnderflow, "Rot on stack of height %d", n)
		}
		v.stack[n-3], v.stack[n-2], v.stack[n-1] = v.stack[n-2], v.stack[n-1], v.stack[n-3]

	case opcode.ConstI8:
		v.push(i32Slot(int32(in.Imm.(opcode.ConstImm).I)))
	case opcode.ConstI16:
		v.push(i32Slot(int32(in.Imm.(opcode.ConstImm).I)))
	case opcode.ConstI32:
		v.push(i32Slot(int32(in.Imm.(opcode.ConstImm).I)))
	case opcode.ConstI64:
		v.push(i64Slot(in.Imm.(opcode.ConstImm).I))
	case opcode.ConstU8:
		v.push(u32Slot(uint32(in.Imm.(opcode.ConstImm).U)))
	case opcode.ConstU16:
		v.push(u32Slot(uint32(in.Imm.(opcode.ConstImm).U)))
	case opcode.ConstU32:
		v.push(u32Slot(uint32(in.Imm.(opcode.ConstImm).U)))
	case opcode.ConstU64:
		v.push(u64Slot(in.Imm.(opcode.ConstImm).U))
	case opcode.ConstF32:
		v.push(f32Slot(in.Imm.(opcode.ConstImm).F32))
	case opcode.ConstF64:
		v.push(f64Slot(in.Imm.(opcode.ConstImm).F64))
	case opcode.ConstChar:
		v.push(charSlot(uint16(in.Imm.(opcode.ConstImm).U)))
	case opcode.ConstBool:
		v.push(boolSlot(in.Imm.(opcode.ConstImm).U != 0))
	case opcode.ConstNull:
		v.push(refSlot(heap.Null))
	case opcode.ConstString, opcode.ConstI128, opcode.ConstU128:
		id := in.Imm.(opcode.PoolImm).ConstID
		kind := module.KindRef
		if in.Op == opcode.ConstI128 {
			kind = module.KindI128
		} else if in.Op == opcode.ConstU128 {
			kind = module.KindU128
		}
		v.push(v.slotFromConst(v.m.Consts.Entries[id], kind))

	case opcode.AddI32, opcode.AddI64, opcode.AddU32, opcode.AddU64, opcode.AddF32, opcode.AddF64,
		opcode.SubI32, opcode.SubI64, opcode.SubU32, opcode.SubU64, opcode.SubF32, opcode.SubF64,
		opcode.MulI32, opcode.MulI64, opcode.MulU32, opcode.MulU64, opcode.MulF32, opcode.MulF64,
		opcode.DivI32, opcode.DivI64, opcode.DivU32, opcode.DivU64, opcode.DivF32, opcode.DivF64,
		opcode.ModI32, opcode.ModI64, opcode.ModU32, opcode.ModU64,
		opcode.AndI32, opcode.AndI64, opcode.AndU32, opcode.AndU64,
		opcode.OrI32, opcode.OrI64, opcode.OrU32, opcode.OrU64,
		opcode.XorI32, opcode.XorI64, opcode.XorU32, opcode.XorU64,
		opcode.ShlI32, opcode.ShlI64, opcode.ShlU32, opcode.ShlU64,
		opcode.ShrI32, opcode.ShrI64, opcode.ShrU32, opcode.ShrU64,
		opcode.CmpEqI32, opcode.CmpEqI64, opcode.CmpEqU32, opcode.CmpEqU64, opcode.CmpEqF32, opcode.CmpEqF64,
		opcode.CmpNeI32, opcode.CmpNeI64, opcode.CmpNeU32, opcode.CmpNeU64, opcode.CmpNeF32, opcode.CmpNeF64,
		opcode.CmpLtI32, opcode.CmpLtI64, opcode.CmpLtU32, opcode.CmpLtU64, opcode.CmpLtF32, opcode.CmpLtF64,
		opcode.CmpLeI32, opcode.CmpLeI64, opcode.CmpLeU32, opcode.CmpLeU64, opcode.CmpLeF32, opcode.CmpLeF64,
		opcode.CmpGtI32, opcode.CmpGtI64, opcode.CmpGtU32, opcode.CmpGtU64, opcode.CmpGtF32, opcode.CmpGtF64,
		opcode.CmpGeI32, opcode.CmpGeI64, opcode.CmpGeU32, opcode.CmpGeU64, opcode.CmpGeF32, opcode.CmpGeF64:
		if err := v.execBinary(in.Op); err != nil {
			return StatusRunning, Result{}, err
		}

	case opcode.NegI32, opcode.NegI64, opcode.NegF32, opcode.NegF64:
		if err := v.execNeg(in.Op); err != nil {
			return StatusRunning, Result{}, err
		}

	case opcode.IncI8, opcode.IncI16, opcode.IncI32, opcode.IncI64,
		opcode.IncU8, opcode.IncU16, opcode.IncU32, opcode.IncU64,
		opcode.DecI8, opcode.DecI16, opcode.DecI32, opcode.DecI64,
		opcode.DecU8, opcode.DecU16, opcode.DecU32, opcode.DecU64:
		if err := v.execIncDec(in.Op); err != nil {
			return StatusRunning, Result{}, err
		}

	case opcode.Jmp:
		target, err := v.resolveTarget(fr, in.Imm.(opcode.JumpImm).Rel)
		if err != nil {
			return StatusRunning, Result{}, err
		}
		if target <= fr.ip {
			v.maybeCollect()
		}
		nextIP = target
	case opcode.JmpTrue, opcode.JmpFalse:
		cond, err := v.pop()
		if err != nil {
			return StatusRunning, Result{}, err
		}
		want := in.Op == opcode.JmpTrue
		if cond.asBool() == want {
			target, err := v.resolveTarget(fr, in.Imm.(opcode.JumpImm).Rel)
			if err != nil {
				return StatusRunning, Result{}, err
			}
			if target <= fr.ip {
				v.maybeCollect()
			}
			nextIP = target
		}
	case opcode.JmpTable:
		imm := in.Imm.(opcode.JumpTableImm)
		if err := v.execJumpTable(imm.ConstID, imm.Default); err != nil {
			return StatusRunning, Result{}, err
		}
		nextIP = fr.ip

	case opcode.Call:
		// fr.ip must record the resume point before pushFrame grows the
		// frame stack, since pushFrame's append may relocate its backing
		// array and this pointer would otherwise go stale.
		fr.ip = nextIP
		imm := in.Imm.(opcode.CallImm)
		if err := v.execCall(imm.FuncID, int(imm.Argc)); err != nil {
			return StatusRunning, Result{}, err
		}
		return StatusRunning, Result{}, nil
	case opcode.CallIndirect:
		fr.ip = nextIP
		imm := in.Imm.(opcode.CallIndirectImm)
		if err := v.execCallIndirect(int(imm.Argc)); err != nil {
			return StatusRunning, Result{}, err
		}
		return StatusRunning, Result{}, nil
	case opcode.TailCall:
		// The caller frame is discarded, not resumed, so its ip never
		// needs to be preserved here.
		imm := in.Imm.(opcode.CallImm)
		if err := v.execTailCall(imm.FuncID, int(imm.Argc)); err != nil {
			return StatusRunning, Result{}, err
		}
		return StatusRunning, Result{}, nil
	case opcode.CallCheck:
		// Stack headroom is a teacher-side asyncify concern (reserving space
		// before a call that might suspend); this engine never suspends
		// mid-call, so the probe is accepted and has no effect.
	case opcode.Ret:
		status, result, err := v.execRet()
		if err != nil {
			return StatusRunning, Result{}, err
		}
		return status, result, nil
	case opcode.Halt:
		status, result := v.execHalt()
		return status, result, nil
	case opcode.Trap:
		return StatusRunning, Result{}, v.trap(sbcerr.KindUnreachable, "Trap instruction executed")
	case opcode.Line, opcode.Breakpoint, opcode.ProfileStart, opcode.ProfileEnd:
		// Debug-only opcodes: line tracking is resolved from the module's
		// debug section in trap(), not from replaying Line at dispatch time.

	case opcode.LoadLocal:
		idx := in.Imm.(opcode.IndexImm).Index
		v.push(v.locals[fr.localsBase+int(idx)])
	case opcode.StoreLocal:
		idx := in.Imm.(opcode.IndexImm).Index
		s, err := v.pop()
		if err != nil {
			return StatusRunning, Result{}, err
		}
		v.locals[fr.localsBase+int(idx)] = s
	case opcode.Leave:
		// Paired with Enter in well-formed code; the locals window is torn
		// down by popFrame on Ret instead, so Leave itself is a no-op here.

	case opcode.LoadGlobal:
		idx := in.Imm.(opcode.IndexImm).Index
		v.push(v.globals[idx])
	case opcode.StoreGlobal:
		idx := in.Imm.(opcode.IndexImm).Index
		s, err := v.pop()
		if err != nil {
			return StatusRunning, Result{}, err
		}
		v.globals[idx] = s

	case opcode.LoadUpvalue:
		if err := v.execLoadUpvalue(in.Imm.(opcode.IndexImm).Index); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.StoreUpvalue:
		if err := v.execStoreUpvalue(in.Imm.(opcode.IndexImm).Index); err != nil {
			return StatusRunning, Result{}, err
		}

	case opcode.IsNull:
		if err := v.execIsNull(); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.RefEq, opcode.RefNe:
		if err := v.execRefCmp(in.Op); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.TypeOf:
		if err := v.execTypeOf(); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.NewObject:
		if err := v.execNewObject(in.Imm.(opcode.IndexImm).Index); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.LoadField:
		if err := v.execLoadField(in.Imm.(opcode.IndexImm).Index); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.StoreField:
		if err := v.execStoreField(in.Imm.(opcode.IndexImm).Index); err != nil {
			return StatusRunning, Result{}, err
		}

	case opcode.NewArray, opcode.NewArrayI64, opcode.NewArrayF32, opcode.NewArrayF64, opcode.NewArrayRef:
		imm := in.Imm.(opcode.NewArrayImm)
		if err := v.execNewArray(in.Op, imm.Length); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.ArrayLen:
		if err := v.execArrayLen(); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.ArrayGetI32, opcode.ArraySetI32, opcode.ArrayGetI64, opcode.ArraySetI64,
		opcode.ArrayGetU32, opcode.ArraySetU32, opcode.ArrayGetU64, opcode.ArraySetU64,
		opcode.ArrayGetF32, opcode.ArraySetF32, opcode.ArrayGetF64, opcode.ArraySetF64,
		opcode.ArrayGetRef, opcode.ArraySetRef:
		if err := v.execArrayAccess(in.Op); err != nil {
			return StatusRunning, Result{}, err
		}

	case opcode.NewList, opcode.NewListI64, opcode.NewListF32, opcode.NewListF64, opcode.NewListRef:
		imm := in.Imm.(opcode.NewListImm)
		if err := v.execNewList(in.Op, imm.InitialCapacity); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.ListLen:
		if err := v.execListLen(); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.ListClear:
		if err := v.execListClear(); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.ListPushI32, opcode.ListPushI64, opcode.ListPushF32, opcode.ListPushF64, opcode.ListPushRef:
		if err := v.execListPush(in.Op); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.ListPopI32, opcode.ListPopI64, opcode.ListPopF32, opcode.ListPopF64, opcode.ListPopRef:
		if err := v.execListPop(in.Op); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.ListGetI32, opcode.ListGetI64, opcode.ListGetF32, opcode.ListGetF64, opcode.ListGetRef:
		if err := v.execListGet(in.Op); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.ListSetI32, opcode.ListSetI64, opcode.ListSetF32, opcode.ListSetF64, opcode.ListSetRef:
		if err := v.execListSet(in.Op); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.ListInsertI32, opcode.ListInsertI64, opcode.ListInsertF32, opcode.ListInsertF64, opcode.ListInsertRef:
		if err := v.execListInsert(in.Op); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.ListRemoveI32, opcode.ListRemoveI64, opcode.ListRemoveF32, opcode.ListRemoveF64, opcode.ListRemoveRef:
		if err := v.execListRemove(in.Op); err != nil {
			return StatusRunning, Result{}, err
		}

	case opcode.StringLen:
		if err := v.execStringLen(); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.StringConcat:
		if err := v.execStringConcat(); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.StringGetChar:
		if err := v.execStringGetChar(); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.StringSlice:
		if err := v.execStringSlice(); err != nil {
			return StatusRunning, Result{}, err
		}

	case opcode.NewClosure:
		imm := in.Imm.(opcode.NewClosureImm)
		if err := v.execNewClosure(imm.FuncID, imm.UpvalueCount); err != nil {
			return StatusRunning, Result{}, err
		}

	case opcode.Intrinsic:
		if err := v.execIntrinsic(in.Imm.(opcode.IntrinsicImm).ID); err != nil {
			return StatusRunning, Result{}, err
		}
	case opcode.SysCall:
		return StatusRunning, Result{}, v.execSysCall()

	default:
		return StatusRunning, Result{}, v.trap(sbcerr.KindUnknownOpcode, "unhandled opcode %s", opcode.Name(in.Op))
	}

	fr.ip = nextIP
	return StatusRunning, Result{}, nil
}
