package vm

import (
	"math"

	"github.com/sbclang/sbcvm/heap"
	"github.com/sbclang/sbcvm/module"
)

// slot is one value-stack, local, global, or upvalue cell: a 64-bit word
// plus the concrete type currently held there. spec.md §3 says a stack
// slot carries no type at runtime "except implicitly through the opcode
// that consumes it" — but the engine tracks it anyway, the same way the
// verifier's abstract state does, so GC root enumeration can pick out Ref
// slots without re-deriving reachability from the module's static types at
// every safepoint.
//
// I128/U128 have no arithmetic opcodes (spec.md §4.2) and only ever move
// as a single push/store/load unit, so rather than spread their two
// 64-bit halves across two physical stack indices (which would double
// every other opcode's index arithmetic for a feature with no operators),
// a slot simply carries a second word, hi, used only when kind is KindI128
// or KindU128. This keeps one logical value occupying one logical slot,
// consistent with the verifier's abstract stack treating it as a single
// unit.
type slot struct {
	bits uint64
	hi   uint64
	kind module.TypeKind
}

func i32Slot(v int32) slot   { return slot{bits: uint64(uint32(v)), kind: module.KindI32} }
func u32Slot(v uint32) slot  { return slot{bits: uint64(v), kind: module.KindU32} }
func i64Slot(v int64) slot   { return slot{bits: uint64(v), kind: module.KindI64} }
func u64Slot(v uint64) slot  { return slot{bits: v, kind: module.KindU64} }
func f32Slot(v float32) slot { return slot{bits: uint64(math.Float32bits(v)), kind: module.KindF32} }
func f64Slot(v float64) slot { return slot{bits: math.Float64bits(v), kind: module.KindF64} }
func boolSlot(v bool) slot {
	if v {
		return slot{bits: 1, kind: module.KindBool}
	}
	return slot{bits: 0, kind: module.KindBool}
}
func charSlot(v uint16) slot { return slot{bits: uint64(v), kind: module.KindChar} }
func refSlot(h heap.Handle) slot {
	return slot{bits: uint64(h), kind: module.KindRef}
}
func i128Slot(hi, lo uint64) slot { return slot{bits: lo, hi: hi, kind: module.KindI128} }
func u128Slot(hi, lo uint64) slot { return slot{bits: lo, hi: hi, kind: module.KindU128} }

func (s slot) asI32() int32   { return int32(uint32(s.bits)) }
func (s slot) asU32() uint32  { return uint32(s.bits) }
func (s slot) asI64() int64   { return int64(s.bits) }
func (s slot) asU64() uint64  { return s.bits }
func (s slot) asF32() float32 { return math.Float32frombits(uint32(s.bits)) }
func (s slot) asF64() float64 { return math.Float64frombits(s.bits) }
func (s slot) asBool() bool   { return s.bits != 0 }
func (s slot) asChar() uint16 { return uint16(s.bits) }
func (s slot) asRef() heap.Handle {
	return heap.Handle(uint32(s.bits))
}

// raw widens any scalar slot to its bit-pattern as a 64-bit word, the
// representation imports and struct/closure storage use uniformly
// (spec.md §4.5's "ref-typed fields are u32 handles" stored in the same
// 8-byte cell as every other field).
func (s slot) raw() uint64 { return s.bits }
