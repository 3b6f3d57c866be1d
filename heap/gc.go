package heap

// Tracer supplies the reference layout of struct and closure objects, which
// the heap itself cannot know (it stores every scalar and ref-typed slot as
// a raw uint64 word). The vm package, which owns the module's declared
// field and signature types, is the natural implementation.
type Tracer interface {
	// StructRefOffsets returns the field offsets of typeID that hold a Ref
	// value rather than a scalar.
	StructRefOffsets(typeID uint32) []uint32
	// ClosureRefUpvalues returns the upvalue indices of a closure over
	// funcID that hold a Ref value rather than a scalar.
	ClosureRefUpvalues(funcID uint32) []uint32
}

// Collect runs a stop-the-world mark-sweep pass: every object transitively
// reachable from roots survives, and everything else's handle slot is
// freed for reuse by a later alloc. It returns the heap's occupancy after
// the sweep.
func (h *Heap) Collect(roots []Handle, tracer Tracer) Stats {
	h.numGCs++

	work := append([]Handle(nil), roots...)
	for len(work) > 0 {
		handle := work[len(work)-1]
		work = work[:len(work)-1]
		if handle == Null {
			continue
		}
		idx := int(handle) - 1
		if idx < 0 || idx >= len(h.objects) || h.objects[idx] == nil {
			continue
		}
		o := h.objects[idx]
		if o.marked {
			continue
		}
		o.marked = true

		switch o.kind {
		case KindArray, KindList:
			if o.width == WidthRef {
				work = append(work, o.refs...)
			}
		case KindStruct:
			for _, off := range tracer.StructRefOffsets(o.typeID) {
				if int(off) < len(o.ints) {
					work = append(work, Handle(o.ints[off]))
				}
			}
		case KindClosure:
			for _, idx := range tracer.ClosureRefUpvalues(o.funcID) {
				if int(idx) < len(o.upvalues) {
					work = append(work, Handle(o.upvalues[idx]))
				}
			}
		}
	}

	h.freelist = h.freelist[:0]
	for i, o := range h.objects {
		if o == nil {
			h.freelist = append(h.freelist, Handle(i+1))
			continue
		}
		if !o.marked {
			h.objects[i] = nil
			h.freelist = append(h.freelist, Handle(i+1))
			continue
		}
		o.marked = false
	}
	return h.Stats()
}
