// Package heap implements SBC's handle-indexed object heap: strings,
// fixed-length arrays, growable lists, structured objects, and closures,
// all reachable only through an opaque Handle, plus the mark-sweep
// collector that reclaims them.
package heap

import "fmt"

// Handle identifies a heap object. The zero Handle is the null reference
// (spec.md §5's "ref 0 is null"); real objects start at 1.
type Handle uint32

// Null is the reserved handle value meaning "no object".
const Null Handle = 0

// Kind tags what shape of payload an object carries.
type Kind byte

const (
	KindString Kind = iota
	KindArray
	KindList
	KindStruct
	KindClosure
)

// ElemWidth identifies the element representation of an array or list, one
// of the widths spec.md §5 allows for each container family.
type ElemWidth byte

const (
	WidthI32 ElemWidth = iota
	WidthI64
	WidthU32
	WidthU64
	WidthF32
	WidthF64
	WidthRef
)

// object is the heap's internal representation of one allocation. Scalar
// payloads of every integer width are stored widened into a uint64 slot
// (the same widening the stack itself applies), float payloads keep their
// native width, and Ref-typed slots store Handles directly so the
// collector's mark phase can walk them without per-kind special-casing.
type object struct {
	kind   Kind
	marked bool

	str string

	width ElemWidth
	ints  []uint64
	f32s  []float32
	f64s  []float64
	refs  []Handle

	typeID   uint32
	funcID   uint32
	upvalues []uint64
}

// Stats reports the heap's current occupancy, used by cmd/sbcrun's
// diagnostics output and by tests asserting GC actually reclaims memory.
type Stats struct {
	Live      int
	Capacity  int
	FreeSlots int
	NumGCs    int
}

// Heap is an arena of handle-addressed objects with freelist-based handle
// reuse, grounded on the teacher's growable-index-space arena
// (component/internal/arena/state.go's slice-plus-index-return shape),
// extended here with a LIFO freelist so repeated alloc/collect cycles are
// deterministic in tests.
type Heap struct {
	objects  []*object // objects[h-1] is the object for Handle h; nil means free
	freelist []Handle
	numGCs   int
}

// New returns an empty heap.
func New() *Heap {
	return &Heap{}
}

func (h *Heap) alloc(o *object) Handle {
	if n := len(h.freelist); n > 0 {
		handle := h.freelist[n-1]
		h.freelist = h.freelist[:n-1]
		h.objects[handle-1] = o
		return handle
	}
	h.objects = append(h.objects, o)
	return Handle(len(h.objects))
}

func (h *Heap) get(handle Handle) (*object, error) {
	if handle == Null {
		return nil, fmt.Errorf("heap: null handle dereferenced")
	}
	idx := int(handle) - 1
	if idx < 0 || idx >= len(h.objects) || h.objects[idx] == nil {
		return nil, fmt.Errorf("heap: handle %d is not live", handle)
	}
	return h.objects[idx], nil
}

// Stats reports current occupancy.
func (h *Heap) Stats() Stats {
	live := 0
	for _, o := range h.objects {
		if o != nil {
			live++
		}
	}
	return Stats{Live: live, Capacity: len(h.objects), FreeSlots: len(h.freelist), NumGCs: h.numGCs}
}

// KindOf reports the object kind behind a handle.
func (h *Heap) KindOf(handle Handle) (Kind, error) {
	o, err := h.get(handle)
	if err != nil {
		return 0, err
	}
	return o.kind, nil
}

// --- strings ---

// NewString allocates an immutable string object.
func (h *Heap) NewString(s string) Handle {
	return h.alloc(&object{kind: KindString, str: s})
}

// String returns a string object's contents.
func (h *Heap) String(handle Handle) (string, error) {
	o, err := h.get(handle)
	if err != nil {
		return "", err
	}
	if o.kind != KindString {
		return "", fmt.Errorf("heap: handle %d is not a string", handle)
	}
	return o.str, nil
}

// Concat allocates a new string holding a's contents followed by b's.
func (h *Heap) Concat(a, b Handle) (Handle, error) {
	sa, err := h.String(a)
	if err != nil {
		return Null, err
	}
	sb, err := h.String(b)
	if err != nil {
		return Null, err
	}
	return h.NewString(sa + sb), nil
}

// Slice allocates a new string holding s[start:end] (byte offsets).
func (h *Heap) Slice(handle Handle, start, end uint32) (Handle, error) {
	s, err := h.String(handle)
	if err != nil {
		return Null, err
	}
	if int(end) > len(s) || start > end {
		return Null, fmt.Errorf("heap: string slice [%d:%d] out of range for length %d", start, end, len(s))
	}
	return h.NewString(s[start:end]), nil
}

// --- arrays (fixed length) ---

// NewArray allocates a fixed-length array of the given element width,
// zero-initialized.
func (h *Heap) NewArray(width ElemWidth, length uint32) Handle {
	o := &object{kind: KindArray, width: width}
	switch width {
	case WidthF32:
		o.f32s = make([]float32, length)
	case WidthF64:
		o.f64s = make([]float64, length)
	case WidthRef:
		o.refs = make([]Handle, length)
	default:
		o.ints = make([]uint64, length)
	}
	return h.alloc(o)
}

func (h *Heap) arrayOf(handle Handle) (*object, error) {
	o, err := h.get(handle)
	if err != nil {
		return nil, err
	}
	if o.kind != KindArray {
		return nil, fmt.Errorf("heap: handle %d is not an array", handle)
	}
	return o, nil
}

// ArrayLen returns an array's fixed length.
func (h *Heap) ArrayLen(handle Handle) (uint32, error) {
	o, err := h.arrayOf(handle)
	if err != nil {
		return 0, err
	}
	return uint32(containerLen(o)), nil
}

func containerLen(o *object) int {
	switch o.width {
	case WidthF32:
		return len(o.f32s)
	case WidthF64:
		return len(o.f64s)
	case WidthRef:
		return len(o.refs)
	default:
		return len(o.ints)
	}
}

// ArrayGetInt reads an integer-family element (I32/I64/U32/U64), widened to
// uint64.
func (h *Heap) ArrayGetInt(handle Handle, index uint32) (uint64, error) {
	o, err := h.arrayOf(handle)
	if err != nil {
		return 0, err
	}
	if int(index) >= len(o.ints) {
		return 0, fmt.Errorf("heap: array index %d out of range for length %d", index, len(o.ints))
	}
	return o.ints[index], nil
}

// ArraySetInt writes an integer-family element.
func (h *Heap) ArraySetInt(handle Handle, index uint32, v uint64) error {
	o, err := h.arrayOf(handle)
	if err != nil {
		return err
	}
	if int(index) >= len(o.ints) {
		return fmt.Errorf("heap: array index %d out of range for length %d", index, len(o.ints))
	}
	o.ints[index] = v
	return nil
}

// ArrayGetF32/ArraySetF32/ArrayGetF64/ArraySetF64 mirror the integer
// accessors for float-family arrays.
func (h *Heap) ArrayGetF32(handle Handle, index uint32) (float32, error) {
	o, err := h.arrayOf(handle)
	if err != nil {
		return 0, err
	}
	if int(index) >= len(o.f32s) {
		return 0, fmt.Errorf("heap: array index %d out of range", index)
	}
	return o.f32s[index], nil
}

func (h *Heap) ArraySetF32(handle Handle, index uint32, v float32) error {
	o, err := h.arrayOf(handle)
	if err != nil {
		return err
	}
	if int(index) >= len(o.f32s) {
		return fmt.Errorf("heap: array index %d out of range", index)
	}
	o.f32s[index] = v
	return nil
}

func (h *Heap) ArrayGetF64(handle Handle, index uint32) (float64, error) {
	o, err := h.arrayOf(handle)
	if err != nil {
		return 0, err
	}
	if int(index) >= len(o.f64s) {
		return 0, fmt.Errorf("heap: array index %d out of range", index)
	}
	return o.f64s[index], nil
}

func (h *Heap) ArraySetF64(handle Handle, index uint32, v float64) error {
	o, err := h.arrayOf(handle)
	if err != nil {
		return err
	}
	if int(index) >= len(o.f64s) {
		return fmt.Errorf("heap: array index %d out of range", index)
	}
	o.f64s[index] = v
	return nil
}

// ArrayGetRef/ArraySetRef access Ref-family array elements.
func (h *Heap) ArrayGetRef(handle Handle, index uint32) (Handle, error) {
	o, err := h.arrayOf(handle)
	if err != nil {
		return Null, err
	}
	if int(index) >= len(o.refs) {
		return Null, fmt.Errorf("heap: array index %d out of range", index)
	}
	return o.refs[index], nil
}

func (h *Heap) ArraySetRef(handle Handle, index uint32, v Handle) error {
	o, err := h.arrayOf(handle)
	if err != nil {
		return err
	}
	if int(index) >= len(o.refs) {
		return fmt.Errorf("heap: array index %d out of range", index)
	}
	o.refs[index] = v
	return nil
}

// --- lists (growable) ---

// NewList allocates an empty growable list of the given element width.
func (h *Heap) NewList(width ElemWidth, initialCapacity uint32) Handle {
	o := &object{kind: KindList, width: width}
	switch width {
	case WidthF32:
		o.f32s = make([]float32, 0, initialCapacity)
	case WidthF64:
		o.f64s = make([]float64, 0, initialCapacity)
	case WidthRef:
		o.refs = make([]Handle, 0, initialCapacity)
	default:
		o.ints = make([]uint64, 0, initialCapacity)
	}
	return h.alloc(o)
}

func (h *Heap) listOf(handle Handle) (*object, error) {
	o, err := h.get(handle)
	if err != nil {
		return nil, err
	}
	if o.kind != KindList {
		return nil, fmt.Errorf("heap: handle %d is not a list", handle)
	}
	return o, nil
}

// ListLen returns a list's current length.
func (h *Heap) ListLen(handle Handle) (uint32, error) {
	o, err := h.listOf(handle)
	if err != nil {
		return 0, err
	}
	return uint32(containerLen(o)), nil
}

// ListClear empties a list in place.
func (h *Heap) ListClear(handle Handle) error {
	o, err := h.listOf(handle)
	if err != nil {
		return err
	}
	o.ints = o.ints[:0]
	o.f32s = o.f32s[:0]
	o.f64s = o.f64s[:0]
	o.refs = o.refs[:0]
	return nil
}

func (h *Heap) ListPushInt(handle Handle, v uint64) error {
	o, err := h.listOf(handle)
	if err != nil {
		return err
	}
	o.ints = append(o.ints, v)
	return nil
}

func (h *Heap) ListPopInt(handle Handle) (uint64, error) {
	o, err := h.listOf(handle)
	if err != nil {
		return 0, err
	}
	n := len(o.ints)
	if n == 0 {
		return 0, fmt.Errorf("heap: pop from empty list")
	}
	v := o.ints[n-1]
	o.ints = o.ints[:n-1]
	return v, nil
}

func (h *Heap) ListGetInt(handle Handle, index uint32) (uint64, error) {
	o, err := h.listOf(handle)
	if err != nil {
		return 0, err
	}
	if int(index) >= len(o.ints) {
		return 0, fmt.Errorf("heap: list index %d out of range for length %d", index, len(o.ints))
	}
	return o.ints[index], nil
}

func (h *Heap) ListSetInt(handle Handle, index uint32, v uint64) error {
	o, err := h.listOf(handle)
	if err != nil {
		return err
	}
	if int(index) >= len(o.ints) {
		return fmt.Errorf("heap: list index %d out of range for length %d", index, len(o.ints))
	}
	o.ints[index] = v
	return nil
}

func (h *Heap) ListInsertInt(handle Handle, index uint32, v uint64) error {
	o, err := h.listOf(handle)
	if err != nil {
		return err
	}
	if int(index) > len(o.ints) {
		return fmt.Errorf("heap: list insert index %d out of range for length %d", index, len(o.ints))
	}
	o.ints = append(o.ints, 0)
	copy(o.ints[index+1:], o.ints[index:])
	o.ints[index] = v
	return nil
}

func (h *Heap) ListRemoveInt(handle Handle, index uint32) (uint64, error) {
	o, err := h.listOf(handle)
	if err != nil {
		return 0, err
	}
	if int(index) >= len(o.ints) {
		return 0, fmt.Errorf("heap: list remove index %d out of range for length %d", index, len(o.ints))
	}
	v := o.ints[index]
	o.ints = append(o.ints[:index], o.ints[index+1:]...)
	return v, nil
}

// ListPushF32/Pop/Get/Set/Insert/Remove and the F64/Ref families mirror the
// integer-family operations above at their own native width.
func (h *Heap) ListPushF32(handle Handle, v float32) error {
	o, err := h.listOf(handle)
	if err != nil {
		return err
	}
	o.f32s = append(o.f32s, v)
	return nil
}

func (h *Heap) ListPopF32(handle Handle) (float32, error) {
	o, err := h.listOf(handle)
	if err != nil {
		return 0, err
	}
	n := len(o.f32s)
	if n == 0 {
		return 0, fmt.Errorf("heap: pop from empty list")
	}
	v := o.f32s[n-1]
	o.f32s = o.f32s[:n-1]
	return v, nil
}

func (h *Heap) ListGetF32(handle Handle, index uint32) (float32, error) {
	o, err := h.listOf(handle)
	if err != nil {
		return 0, err
	}
	if int(index) >= len(o.f32s) {
		return 0, fmt.Errorf("heap: list index %d out of range", index)
	}
	return o.f32s[index], nil
}

func (h *Heap) ListSetF32(handle Handle, index uint32, v float32) error {
	o, err := h.listOf(handle)
	if err != nil {
		return err
	}
	if int(index) >= len(o.f32s) {
		return fmt.Errorf("heap: list index %d out of range", index)
	}
	o.f32s[index] = v
	return nil
}

func (h *Heap) ListInsertF32(handle Handle, index uint32, v float32) error {
	o, err := h.listOf(handle)
	if err != nil {
		return err
	}
	if int(index) > len(o.f32s) {
		return fmt.Errorf("heap: list insert index %d out of range", index)
	}
	o.f32s = append(o.f32s, 0)
	copy(o.f32s[index+1:], o.f32s[index:])
	o.f32s[index] = v
	return nil
}

func (h *Heap) ListRemoveF32(handle Handle, index uint32) (float32, error) {
	o, err := h.listOf(handle)
	if err != nil {
		return 0, err
	}
	if int(index) >= len(o.f32s) {
		return 0, fmt.Errorf("heap: list remove index %d out of range", index)
	}
	v := o.f32s[index]
	o.f32s = append(o.f32s[:index], o.f32s[index+1:]...)
	return v, nil
}

func (h *Heap) ListPushF64(handle Handle, v float64) error {
	o, err := h.listOf(handle)
	if err != nil {
		return err
	}
	o.f64s = append(o.f64s, v)
	return nil
}

func (h *Heap) ListPopF64(handle Handle) (float64, error) {
	o, err := h.listOf(handle)
	if err != nil {
		return 0, err
	}
	n := len(o.f64s)
	if n == 0 {
		return 0, fmt.Errorf("heap: pop from empty list")
	}
	v := o.f64s[n-1]
	o.f64s = o.f64s[:n-1]
	return v, nil
}

func (h *Heap) ListGetF64(handle Handle, index uint32) (float64, error) {
	o, err := h.listOf(handle)
	if err != nil {
		return 0, err
	}
	if int(index) >= len(o.f64s) {
		return 0, fmt.Errorf("heap: list index %d out of range", index)
	}
	return o.f64s[index], nil
}

func (h *Heap) ListSetF64(handle Handle, index uint32, v float64) error {
	o, err := h.listOf(handle)
	if err != nil {
		return err
	}
	if int(index) >= len(o.f64s) {
		return fmt.Errorf("heap: list index %d out of range", index)
	}
	o.f64s[index] = v
	return nil
}

func (h *Heap) ListInsertF64(handle Handle, index uint32, v float64) error {
	o, err := h.listOf(handle)
	if err != nil {
		return err
	}
	if int(index) > len(o.f64s) {
		return fmt.Errorf("heap: list insert index %d out of range", index)
	}
	o.f64s = append(o.f64s, 0)
	copy(o.f64s[index+1:], o.f64s[index:])
	o.f64s[index] = v
	return nil
}

func (h *Heap) ListRemoveF64(handle Handle, index uint32) (float64, error) {
	o, err := h.listOf(handle)
	if err != nil {
		return 0, err
	}
	if int(index) >= len(o.f64s) {
		return 0, fmt.Errorf("heap: list remove index %d out of range", index)
	}
	v := o.f64s[index]
	o.f64s = append(o.f64s[:index], o.f64s[index+1:]...)
	return v, nil
}

func (h *Heap) ListPushRef(handle Handle, v Handle) error {
	o, err := h.listOf(handle)
	if err != nil {
		return err
	}
	o.refs = append(o.refs, v)
	return nil
}

func (h *Heap) ListPopRef(handle Handle) (Handle, error) {
	o, err := h.listOf(handle)
	if err != nil {
		return Null, err
	}
	n := len(o.refs)
	if n == 0 {
		return Null, fmt.Errorf("heap: pop from empty list")
	}
	v := o.refs[n-1]
	o.refs = o.refs[:n-1]
	return v, nil
}

func (h *Heap) ListGetRef(handle Handle, index uint32) (Handle, error) {
	o, err := h.listOf(handle)
	if err != nil {
		return Null, err
	}
	if int(index) >= len(o.refs) {
		return Null, fmt.Errorf("heap: list index %d out of range", index)
	}
	return o.refs[index], nil
}

func (h *Heap) ListSetRef(handle Handle, index uint32, v Handle) error {
	o, err := h.listOf(handle)
	if err != nil {
		return err
	}
	if int(index) >= len(o.refs) {
		return fmt.Errorf("heap: list index %d out of range", index)
	}
	o.refs[index] = v
	return nil
}

func (h *Heap) ListInsertRef(handle Handle, index uint32, v Handle) error {
	o, err := h.listOf(handle)
	if err != nil {
		return err
	}
	if int(index) > len(o.refs) {
		return fmt.Errorf("heap: list insert index %d out of range", index)
	}
	o.refs = append(o.refs, Null)
	copy(o.refs[index+1:], o.refs[index:])
	o.refs[index] = v
	return nil
}

func (h *Heap) ListRemoveRef(handle Handle, index uint32) (Handle, error) {
	o, err := h.listOf(handle)
	if err != nil {
		return Null, err
	}
	if int(index) >= len(o.refs) {
		return Null, fmt.Errorf("heap: list remove index %d out of range", index)
	}
	v := o.refs[index]
	o.refs = append(o.refs[:index], o.refs[index+1:]...)
	return v, nil
}

// --- structs ---

// NewStruct allocates a fresh object of the given declared type, with
// fieldCount raw slots (ref-typed fields hold a Handle cast to uint64).
func (h *Heap) NewStruct(typeID uint32, fieldCount uint32) Handle {
	return h.alloc(&object{kind: KindStruct, typeID: typeID, ints: make([]uint64, fieldCount)})
}

func (h *Heap) structOf(handle Handle) (*object, error) {
	o, err := h.get(handle)
	if err != nil {
		return nil, err
	}
	if o.kind != KindStruct {
		return nil, fmt.Errorf("heap: handle %d is not a struct", handle)
	}
	return o, nil
}

// TypeID returns a struct object's declared type.
func (h *Heap) TypeID(handle Handle) (uint32, error) {
	o, err := h.structOf(handle)
	if err != nil {
		return 0, err
	}
	return o.typeID, nil
}

// FieldRaw/SetFieldRaw access a struct's field slots as raw 64-bit words;
// the vm package reinterprets the bits per the field's declared type.
func (h *Heap) FieldRaw(handle Handle, offset uint32) (uint64, error) {
	o, err := h.structOf(handle)
	if err != nil {
		return 0, err
	}
	if int(offset) >= len(o.ints) {
		return 0, fmt.Errorf("heap: field offset %d out of range for %d fields", offset, len(o.ints))
	}
	return o.ints[offset], nil
}

func (h *Heap) SetFieldRaw(handle Handle, offset uint32, v uint64) error {
	o, err := h.structOf(handle)
	if err != nil {
		return err
	}
	if int(offset) >= len(o.ints) {
		return fmt.Errorf("heap: field offset %d out of range for %d fields", offset, len(o.ints))
	}
	o.ints[offset] = v
	return nil
}

// FieldRef/SetFieldRef access a Ref-typed field without the uint64<->Handle
// cast leaking into vm.
func (h *Heap) FieldRef(handle Handle, offset uint32) (Handle, error) {
	v, err := h.FieldRaw(handle, offset)
	return Handle(v), err
}

func (h *Heap) SetFieldRef(handle Handle, offset uint32, v Handle) error {
	return h.SetFieldRaw(handle, offset, uint64(v))
}

// --- closures ---

// NewClosure allocates a closure over funcID capturing upvalues, each
// stored as a raw 64-bit word (Ref-typed captures hold a Handle cast to
// uint64, consistent with struct field storage).
func (h *Heap) NewClosure(funcID uint32, upvalues []uint64) Handle {
	cp := append([]uint64(nil), upvalues...)
	return h.alloc(&object{kind: KindClosure, funcID: funcID, upvalues: cp})
}

func (h *Heap) closureOf(handle Handle) (*object, error) {
	o, err := h.get(handle)
	if err != nil {
		return nil, err
	}
	if o.kind != KindClosure {
		return nil, fmt.Errorf("heap: handle %d is not a closure", handle)
	}
	return o, nil
}

// ClosureFunc returns the function a closure wraps.
func (h *Heap) ClosureFunc(handle Handle) (uint32, error) {
	o, err := h.closureOf(handle)
	if err != nil {
		return 0, err
	}
	return o.funcID, nil
}

// Upvalue/SetUpvalue access a closure's captured slots.
func (h *Heap) Upvalue(handle Handle, index uint32) (uint64, error) {
	o, err := h.closureOf(handle)
	if err != nil {
		return 0, err
	}
	if int(index) >= len(o.upvalues) {
		return 0, fmt.Errorf("heap: upvalue index %d out of range for %d upvalues", index, len(o.upvalues))
	}
	return o.upvalues[index], nil
}

func (h *Heap) SetUpvalue(handle Handle, index uint32, v uint64) error {
	o, err := h.closureOf(handle)
	if err != nil {
		return err
	}
	if int(index) >= len(o.upvalues) {
		return fmt.Errorf("heap: upvalue index %d out of range for %d upvalues", index, len(o.upvalues))
	}
	o.upvalues[index] = v
	return nil
}
