package heap_test

import (
	"testing"

	"github.com/sbclang/sbcvm/heap"
)

type noRefs struct{}

func (noRefs) StructRefOffsets(uint32) []uint32   { return nil }
func (noRefs) ClosureRefUpvalues(uint32) []uint32 { return nil }

func TestStringRoundTrip(t *testing.T) {
	h := heap.New()
	s := h.NewString("hello")
	got, err := h.String(s)
	if err != nil || got != "hello" {
		t.Fatalf("String: got %q, err %v", got, err)
	}
}

func TestStringConcatAndSlice(t *testing.T) {
	h := heap.New()
	a := h.NewString("foo")
	b := h.NewString("bar")
	c, err := h.Concat(a, b)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	got, _ := h.String(c)
	if got != "foobar" {
		t.Fatalf("Concat: got %q", got)
	}
	d, err := h.Slice(c, 1, 4)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	got, _ = h.String(d)
	if got != "oob" {
		t.Fatalf("Slice: got %q", got)
	}
}

func TestArrayGetSetInt(t *testing.T) {
	h := heap.New()
	a := h.NewArray(heap.WidthI32, 4)
	if n, err := h.ArrayLen(a); err != nil || n != 4 {
		t.Fatalf("ArrayLen: got %d, err %v", n, err)
	}
	if err := h.ArraySetInt(a, 2, 99); err != nil {
		t.Fatalf("ArraySetInt: %v", err)
	}
	v, err := h.ArrayGetInt(a, 2)
	if err != nil || v != 99 {
		t.Fatalf("ArrayGetInt: got %d, err %v", v, err)
	}
	if _, err := h.ArrayGetInt(a, 10); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestListPushPopInsertRemove(t *testing.T) {
	h := heap.New()
	l := h.NewList(heap.WidthI64, 0)
	for _, v := range []uint64{1, 2, 3} {
		if err := h.ListPushInt(l, v); err != nil {
			t.Fatalf("ListPushInt: %v", err)
		}
	}
	n, _ := h.ListLen(l)
	if n != 3 {
		t.Fatalf("ListLen: got %d", n)
	}
	if err := h.ListInsertInt(l, 1, 42); err != nil {
		t.Fatalf("ListInsertInt: %v", err)
	}
	got, _ := h.ListGetInt(l, 1)
	if got != 42 {
		t.Fatalf("ListGetInt after insert: got %d", got)
	}
	removed, err := h.ListRemoveInt(l, 0)
	if err != nil || removed != 1 {
		t.Fatalf("ListRemoveInt: got %d, err %v", removed, err)
	}
	popped, err := h.ListPopInt(l)
	if err != nil || popped != 3 {
		t.Fatalf("ListPopInt: got %d, err %v", popped, err)
	}
}

func TestStructFields(t *testing.T) {
	h := heap.New()
	s := h.NewStruct(5, 2)
	if tid, err := h.TypeID(s); err != nil || tid != 5 {
		t.Fatalf("TypeID: got %d, err %v", tid, err)
	}
	if err := h.SetFieldRaw(s, 0, 0xFF); err != nil {
		t.Fatalf("SetFieldRaw: %v", err)
	}
	v, err := h.FieldRaw(s, 0)
	if err != nil || v != 0xFF {
		t.Fatalf("FieldRaw: got %d, err %v", v, err)
	}
}

func TestClosureUpvalues(t *testing.T) {
	h := heap.New()
	c := h.NewClosure(7, []uint64{1, 2, 3})
	fn, err := h.ClosureFunc(c)
	if err != nil || fn != 7 {
		t.Fatalf("ClosureFunc: got %d, err %v", fn, err)
	}
	v, err := h.Upvalue(c, 1)
	if err != nil || v != 2 {
		t.Fatalf("Upvalue: got %d, err %v", v, err)
	}
}

func TestCollectReclaimsUnreachable(t *testing.T) {
	h := heap.New()
	keep := h.NewString("kept")
	_ = h.NewString("garbage1")
	_ = h.NewString("garbage2")

	before := h.Stats()
	if before.Live != 3 {
		t.Fatalf("expected 3 live objects before GC, got %d", before.Live)
	}

	after := h.Collect([]heap.Handle{keep}, noRefs{})
	if after.Live != 1 {
		t.Fatalf("expected 1 live object after GC, got %d", after.Live)
	}
	if s, err := h.String(keep); err != nil || s != "kept" {
		t.Fatalf("root survived with wrong contents: %q, %v", s, err)
	}
}

func TestCollectFollowsRefArray(t *testing.T) {
	h := heap.New()
	leaf := h.NewString("leaf")
	arr := h.NewArray(heap.WidthRef, 1)
	if err := h.ArraySetRef(arr, 0, leaf); err != nil {
		t.Fatalf("ArraySetRef: %v", err)
	}
	_ = h.NewString("unreachable")

	after := h.Collect([]heap.Handle{arr}, noRefs{})
	if after.Live != 2 { // arr itself + the leaf string it holds
		t.Fatalf("expected 2 live objects, got %d", after.Live)
	}
	got, err := h.ArrayGetRef(arr, 0)
	if err != nil || got != leaf {
		t.Fatalf("array ref survived GC incorrectly: %v, %v", got, err)
	}
}

func TestHandleReuseAfterCollect(t *testing.T) {
	h := heap.New()
	a := h.NewString("a")
	_ = a
	h.Collect(nil, noRefs{}) // nothing rooted, everything freed
	if st := h.Stats(); st.Live != 0 || st.FreeSlots != 1 {
		t.Fatalf("expected all slots freed, got %+v", st)
	}
	b := h.NewString("b")
	if st := h.Stats(); st.Live != 1 || st.Capacity != 1 {
		t.Fatalf("expected the freed slot to be reused, got %+v", st)
	}
	got, _ := h.String(b)
	if got != "b" {
		t.Fatalf("reused handle has wrong contents: %q", got)
	}
}
