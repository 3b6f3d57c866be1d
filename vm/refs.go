package vm

import (
	"github.com/sbclang/sbcvm/heap"
	"github.com/sbclang/sbcvm/module"
	"github.com/sbclang/sbcvm/opcode"
	"github.com/sbclang/sbcvm/sbcerr"
)

func slotOfKind(kind module.TypeKind, raw uint64) slot {
	return slot{bits: raw, kind: kind}
}

func (v *VM) execNewObject(typeID uint32) error {
	t := v.m.Types[typeID]
	h := v.heap.NewStruct(typeID, t.FieldCount)
	v.push(refSlot(h))
	v.maybeCollect()
	return nil
}

// localFieldOffset turns a global field-table index into the 0-based offset
// within the struct instance that actually holds it, by locating which
// declared type owns fieldID and subtracting that type's FieldStart. Field
// tables are global (spec.md §4.1), but heap.FieldRaw addresses a struct's
// own flat slot array, so this translation happens once per access.
func (v *VM) localFieldOffset(ref heap.Handle, fieldID uint32) (uint32, module.TypeKind, error) {
	typeID, err := v.heap.TypeID(ref)
	if err != nil {
		return 0, 0, v.trap(sbcerr.KindNullDeref, "field access on non-struct ref: %v", err)
	}
	t := v.m.Types[typeID]
	if fieldID < t.FieldStart || fieldID >= t.FieldStart+t.FieldCount {
		return 0, 0, v.trap(sbcerr.KindOutOfBounds, "field %d does not belong to type %d", fieldID, typeID)
	}
	return fieldID - t.FieldStart, v.m.Types[v.m.Fields[fieldID].TypeID].Kind, nil
}

func (v *VM) execLoadField(fieldID uint32) error {
	r, err := v.pop()
	if err != nil {
		return err
	}
	ref := r.asRef()
	off, kind, err := v.localFieldOffset(ref, fieldID)
	if err != nil {
		return err
	}
	raw, err := v.heap.FieldRaw(ref, off)
	if err != nil {
		return v.trap(sbcerr.KindNullDeref, "LoadField: %v", err)
	}
	v.push(slotOfKind(kind, raw))
	return nil
}

func (v *VM) execStoreField(fieldID uint32) error {
	val, err := v.pop()
	if err != nil {
		return err
	}
	r, err := v.pop()
	if err != nil {
		return err
	}
	ref := r.asRef()
	off, _, err := v.localFieldOffset(ref, fieldID)
	if err != nil {
		return err
	}
	if err := v.heap.SetFieldRaw(ref, off, val.raw()); err != nil {
		return v.trap(sbcerr.KindNullDeref, "StoreField: %v", err)
	}
	return nil
}

func (v *VM) execIsNull() error {
	r, err := v.pop()
	if err != nil {
		return err
	}
	v.push(boolSlot(r.asRef() == heap.Null))
	return nil
}

func (v *VM) execRefCmp(op opcode.Op) error {
	b, err := v.pop()
	if err != nil {
		return err
	}
	a, err := v.pop()
	if err != nil {
		return err
	}
	eq := a.asRef() == b.asRef()
	if op == opcode.RefNe {
		eq = !eq
	}
	v.push(boolSlot(eq))
	return nil
}

func (v *VM) execTypeOf() error {
	r, err := v.pop()
	if err != nil {
		return err
	}
	typeID, err := v.heap.TypeID(r.asRef())
	if err != nil {
		return v.trap(sbcerr.KindNullDeref, "TypeOf: %v", err)
	}
	v.push(u32Slot(typeID))
	return nil
}

func widthOf(op opcode.Op) heap.ElemWidth {
	switch op {
	case opcode.NewArrayI64, opcode.NewListI64:
		return heap.WidthI64
	case opcode.NewArrayF32, opcode.NewListF32:
		return heap.WidthF32
	case opcode.NewArrayF64, opcode.NewListF64:
		return heap.WidthF64
	case opcode.NewArrayRef, opcode.NewListRef:
		return heap.WidthRef
	default:
		return heap.WidthI32
	}
}

func (v *VM) execNewArray(op opcode.Op, length uint32) error {
	h := v.heap.NewArray(widthOf(op), length)
	v.push(refSlot(h))
	v.maybeCollect()
	return nil
}

func (v *VM) execNewList(op opcode.Op, cap_ uint32) error {
	h := v.heap.NewList(widthOf(op), cap_)
	v.push(refSlot(h))
	v.maybeCollect()
	return nil
}

func (v *VM) execArrayLen() error {
	r, err := v.pop()
	if err != nil {
		return err
	}
	n, err := v.heap.ArrayLen(r.asRef())
	if err != nil {
		return v.trap(sbcerr.KindNullDeref, "ArrayLen: %v", err)
	}
	v.push(u32Slot(n))
	return nil
}

func arrayElemKind(op opcode.Op) module.TypeKind {
	switch op {
	case opcode.ArrayGetI32, opcode.ArraySetI32:
		return module.KindI32
	case opcode.ArrayGetI64, opcode.ArraySetI64:
		return module.KindI64
	case opcode.ArrayGetU32, opcode.ArraySetU32:
		return module.KindU32
	case opcode.ArrayGetU64, opcode.ArraySetU64:
		return module.KindU64
	case opcode.ArrayGetF32, opcode.ArraySetF32:
		return module.KindF32
	case opcode.ArrayGetF64, opcode.ArraySetF64:
		return module.KindF64
	default:
		return module.KindRef
	}
}

func isArrayGetOp(op opcode.Op) bool {
	switch op {
	case opcode.ArrayGetI32, opcode.ArrayGetI64, opcode.ArrayGetU32, opcode.ArrayGetU64,
		opcode.ArrayGetF32, opcode.ArrayGetF64, opcode.ArrayGetRef:
		return true
	}
	return false
}

func (v *VM) execArrayAccess(op opcode.Op) error {
	kind := arrayElemKind(op)
	if isArrayGetOp(op) {
		idxSlot, err := v.pop()
		if err != nil {
			return err
		}
		r, err := v.pop()
		if err != nil {
			return err
		}
		ref, idx := r.asRef(), uint32(idxSlot.asI32())
		switch op {
		case opcode.ArrayGetF32:
			f, err := v.heap.ArrayGetF32(ref, idx)
			if err != nil {
				return v.trap(sbcerr.KindOutOfBounds, "array get: %v", err)
			}
			v.push(f32Slot(f))
		case opcode.ArrayGetF64:
			f, err := v.heap.ArrayGetF64(ref, idx)
			if err != nil {
				return v.trap(sbcerr.KindOutOfBounds, "array get: %v", err)
			}
			v.push(f64Slot(f))
		case opcode.ArrayGetRef:
			h, err := v.heap.ArrayGetRef(ref, idx)
			if err != nil {
				return v.trap(sbcerr.KindOutOfBounds, "array get: %v", err)
			}
			v.push(refSlot(h))
		default:
			raw, err := v.heap.ArrayGetInt(ref, idx)
			if err != nil {
				return v.trap(sbcerr.KindOutOfBounds, "array get: %v", err)
			}
			v.push(slotOfKind(kind, raw))
		}
		return nil
	}

	val, err := v.pop()
	if err != nil {
		return err
	}
	idxSlot, err := v.pop()
	if err != nil {
		return err
	}
	r, err := v.pop()
	if err != nil {
		return err
	}
	ref, idx := r.asRef(), uint32(idxSlot.asI32())
	switch op {
	case opcode.ArraySetF32:
		err = v.heap.ArraySetF32(ref, idx, val.asF32())
	case opcode.ArraySetF64:
		err = v.heap.ArraySetF64(ref, idx, val.asF64())
	case opcode.ArraySetRef:
		err = v.heap.ArraySetRef(ref, idx, val.asRef())
	default:
		err = v.heap.ArraySetInt(ref, idx, val.raw())
	}
	if err != nil {
		return v.trap(sbcerr.KindOutOfBounds, "array set: %v", err)
	}
	return nil
}

func (v *VM) execListLen() error {
	r, err := v.pop()
	if err != nil {
		return err
	}
	n, err := v.heap.ListLen(r.asRef())
	if err != nil {
		return v.trap(sbcerr.KindNullDeref, "ListLen: %v", err)
	}
	v.push(u32Slot(n))
	return nil
}

func (v *VM) execListClear() error {
	r, err := v.pop()
	if err != nil {
		return err
	}
	if err := v.heap.ListClear(r.asRef()); err != nil {
		return v.trap(sbcerr.KindNullDeref, "ListClear: %v", err)
	}
	return nil
}

func listElemKind(op opcode.Op) module.TypeKind {
	switch op {
	case opcode.ListPushI32, opcode.ListPopI32, opcode.ListGetI32, opcode.ListSetI32, opcode.ListInsertI32, opcode.ListRemoveI32:
		return module.KindI32
	case opcode.ListPushI64, opcode.ListPopI64, opcode.ListGetI64, opcode.ListSetI64, opcode.ListInsertI64, opcode.ListRemoveI64:
		return module.KindI64
	case opcode.ListPushF32, opcode.ListPopF32, opcode.ListGetF32, opcode.ListSetF32, opcode.ListInsertF32, opcode.ListRemoveF32:
		return module.KindF32
	case opcode.ListPushF64, opcode.ListPopF64, opcode.ListGetF64, opcode.ListSetF64, opcode.ListInsertF64, opcode.ListRemoveF64:
		return module.KindF64
	default:
		return module.KindRef
	}
}

func (v *VM) execListPush(op opcode.Op) error {
	val, err := v.pop()
	if err != nil {
		return err
	}
	r, err := v.pop()
	if err != nil {
		return err
	}
	ref := r.asRef()
	var opErr error
	switch op {
	case opcode.ListPushF32:
		opErr = v.heap.ListPushF32(ref, val.asF32())
	case opcode.ListPushF64:
		opErr = v.heap.ListPushF64(ref, val.asF64())
	case opcode.ListPushRef:
		opErr = v.heap.ListPushRef(ref, val.asRef())
	default:
		opErr = v.heap.ListPushInt(ref, val.raw())
	}
	if opErr != nil {
		return v.trap(sbcerr.KindNullDeref, "ListPush: %v", opErr)
	}
	v.maybeCollect()
	return nil
}

func (v *VM) execListPop(op opcode.Op) error {
	r, err := v.pop()
	if err != nil {
		return err
	}
	ref := r.asRef()
	kind := listElemKind(op)
	switch op {
	case opcode.ListPopF32:
		f, err := v.heap.ListPopF32(ref)
		if err != nil {
			return v.trap(sbcerr.KindOutOfBounds, "ListPop: %v", err)
		}
		v.push(f32Slot(f))
	case opcode.ListPopF64:
		f, err := v.heap.ListPopF64(ref)
		if err != nil {
			return v.trap(sbcerr.KindOutOfBounds, "ListPop: %v", err)
		}
		v.push(f64Slot(f))
	case opcode.ListPopRef:
		h, err := v.heap.ListPopRef(ref)
		if err != nil {
			return v.trap(sbcerr.KindOutOfBounds, "ListPop: %v", err)
		}
		v.push(refSlot(h))
	default:
		raw, err := v.heap.ListPopInt(ref)
		if err != nil {
			return v.trap(sbcerr.KindOutOfBounds, "ListPop: %v", err)
		}
		v.push(slotOfKind(kind, raw))
	}
	return nil
}

func (v *VM) execListGet(op opcode.Op) error {
	idxSlot, err := v.pop()
	if err != nil {
		return err
	}
	r, err := v.pop()
	if err != nil {
		return err
	}
	ref, idx := r.asRef(), uint32(idxSlot.asI32())
	kind := listElemKind(op)
	switch op {
	case opcode.ListGetF32:
		f, err := v.heap.ListGetF32(ref, idx)
		if err != nil {
			return v.trap(sbcerr.KindOutOfBounds, "ListGet: %v", err)
		}
		v.push(f32Slot(f))
	case opcode.ListGetF64:
		f, err := v.heap.ListGetF64(ref, idx)
		if err != nil {
			return v.trap(sbcerr.KindOutOfBounds, "ListGet: %v", err)
		}
		v.push(f64Slot(f))
	case opcode.ListGetRef:
		h, err := v.heap.ListGetRef(ref, idx)
		if err != nil {
			return v.trap(sbcerr.KindOutOfBounds, "ListGet: %v", err)
		}
		v.push(refSlot(h))
	default:
		raw, err := v.heap.ListGetInt(ref, idx)
		if err != nil {
			return v.trap(sbcerr.KindOutOfBounds, "ListGet: %v", err)
		}
		v.push(slotOfKind(kind, raw))
	}
	return nil
}

func (v *VM) execListSet(op opcode.Op) error {
	val, err := v.pop()
	if err != nil {
		return err
	}
	idxSlot, err := v.pop()
	if err != nil {
		return err
	}
	r, err := v.pop()
	if err != nil {
		return err
	}
	ref, idx := r.asRef(), uint32(idxSlot.asI32())
	var opErr error
	switch op {
	case opcode.ListSetF32:
		opErr = v.heap.ListSetF32(ref, idx, val.asF32())
	case opcode.ListSetF64:
		opErr = v.heap.ListSetF64(ref, idx, val.asF64())
	case opcode.ListSetRef:
		opErr = v.heap.ListSetRef(ref, idx, val.asRef())
	default:
		opErr = v.heap.ListSetInt(ref, idx, val.raw())
	}
	if opErr != nil {
		return v.trap(sbcerr.KindOutOfBounds, "ListSet: %v", opErr)
	}
	return nil
}

func (v *VM) execListInsert(op opcode.Op) error {
	val, err := v.pop()
	if err != nil {
		return err
	}
	idxSlot, err := v.pop()
	if err != nil {
		return err
	}
	r, err := v.pop()
	if err != nil {
		return err
	}
	ref, idx := r.asRef(), uint32(idxSlot.asI32())
	var opErr error
	switch op {
	case opcode.ListInsertF32:
		opErr = v.heap.ListInsertF32(ref, idx, val.asF32())
	case opcode.ListInsertF64:
		opErr = v.heap.ListInsertF64(ref, idx, val.asF64())
	case opcode.ListInsertRef:
		opErr = v.heap.ListInsertRef(ref, idx, val.asRef())
	default:
		opErr = v.heap.ListInsertInt(ref, idx, val.raw())
	}
	if opErr != nil {
		return v.trap(sbcerr.KindOutOfBounds, "ListInsert: %v", opErr)
	}
	v.maybeCollect()
	return nil
}

func (v *VM) execListRemove(op opcode.Op) error {
	idxSlot, err := v.pop()
	if err != nil {
		return err
	}
	r, err := v.pop()
	if err != nil {
		return err
	}
	ref, idx := r.asRef(), uint32(idxSlot.asI32())
	kind := listElemKind(op)
	switch op {
	case opcode.ListRemoveF32:
		f, err := v.heap.ListRemoveF32(ref, idx)
		if err != nil {
			return v.trap(sbcerr.KindOutOfBounds, "ListRemove: %v", err)
		}
		v.push(f32Slot(f))
	case opcode.ListRemoveF64:
		f, err := v.heap.ListRemoveF64(ref, idx)
		if err != nil {
			return v.trap(sbcerr.KindOutOfBounds, "ListRemove: %v", err)
		}
		v.push(f64Slot(f))
	case opcode.ListRemoveRef:
		h, err := v.heap.ListRemoveRef(ref, idx)
		if err != nil {
			return v.trap(sbcerr.KindOutOfBounds, "ListRemove: %v", err)
		}
		v.push(refSlot(h))
	default:
		raw, err := v.heap.ListRemoveInt(ref, idx)
		if err != nil {
			return v.trap(sbcerr.KindOutOfBounds, "ListRemove: %v", err)
		}
		v.push(slotOfKind(kind, raw))
	}
	return nil
}

func (v *VM) execStringLen() error {
	r, err := v.pop()
	if err != nil {
		return err
	}
	s, err := v.heap.String(r.asRef())
	if err != nil {
		return v.trap(sbcerr.KindNullDeref, "StringLen: %v", err)
	}
	v.push(u32Slot(uint32(len(s))))
	return nil
}

func (v *VM) execStringConcat() error {
	b, err := v.pop()
	if err != nil {
		return err
	}
	a, err := v.pop()
	if err != nil {
		return err
	}
	h, err := v.heap.Concat(a.asRef(), b.asRef())
	if err != nil {
		return v.trap(sbcerr.KindNullDeref, "StringConcat: %v", err)
	}
	v.push(refSlot(h))
	v.maybeCollect()
	return nil
}

func (v *VM) execStringGetChar() error {
	idxSlot, err := v.pop()
	if err != nil {
		return err
	}
	r, err := v.pop()
	if err != nil {
		return err
	}
	s, err := v.heap.String(r.asRef())
	if err != nil {
		return v.trap(sbcerr.KindNullDeref, "StringGetChar: %v", err)
	}
	idx := idxSlot.asI32()
	if idx < 0 || int(idx) >= len(s) {
		return v.trap(sbcerr.KindOutOfBounds, "string index %d out of range for length %d", idx, len(s))
	}
	v.push(charSlot(uint16(s[idx])))
	return nil
}

func (v *VM) execStringSlice() error {
	end, err := v.pop()
	if err != nil {
		return err
	}
	start, err := v.pop()
	if err != nil {
		return err
	}
	r, err := v.pop()
	if err != nil {
		return err
	}
	h, err := v.heap.Slice(r.asRef(), uint32(start.asI32()), uint32(end.asI32()))
	if err != nil {
		return v.trap(sbcerr.KindOutOfBounds, "StringSlice: %v", err)
	}
	v.push(refSlot(h))
	v.maybeCollect()
	return nil
}

func (v *VM) execNewClosure(funcID uint32, upvalueCount uint8) error {
	upvalues := make([]uint64, upvalueCount)
	for i := int(upvalueCount) - 1; i >= 0; i-- {
		s, err := v.pop()
		if err != nil {
			return err
		}
		upvalues[i] = s.raw()
	}
	h := v.heap.NewClosure(funcID, upvalues)
	v.push(refSlot(h))
	v.maybeCollect()
	return nil
}

func (v *VM) execLoadUpvalue(idx uint32) error {
	fr := v.curFrame()
	if fr.upvalues == heap.Null {
		return v.trap(sbcerr.KindNullDeref, "LoadUpvalue in a non-closure frame")
	}
	raw, err := v.heap.Upvalue(fr.upvalues, idx)
	if err != nil {
		return v.trap(sbcerr.KindIndexOutOfRange, "LoadUpvalue: %v", err)
	}
	// Conservatively tagged Ref: module metadata carries no per-upvalue
	// type, and an over-tagged scalar only costs one extra GC root scan
	// (see conservativeUpvalueIndices).
	v.push(slot{bits: raw, kind: module.KindRef})
	return nil
}

func (v *VM) execStoreUpvalue(idx uint32) error {
	s, err := v.pop()
	if err != nil {
		return err
	}
	fr := v.curFrame()
	if fr.upvalues == heap.Null {
		return v.trap(sbcerr.KindNullDeref, "StoreUpvalue in a non-closure frame")
	}
	if err := v.heap.SetUpvalue(fr.upvalues, idx, s.raw()); err != nil {
		return v.trap(sbcerr.KindIndexOutOfRange, "StoreUpvalue: %v", err)
	}
	return nil
}
