package vm

import "github.com/sbclang/sbcvm/heap"

// frame is one call's activation record (spec.md §4.4's Frame). The
// locals window it owns lives in the VM's shared locals arena at
// [localsBase, localsBase+localsCount); ip indexes into the function's
// pre-decoded instruction slice rather than tracking a raw byte pc, so
// dispatch never re-decodes an instruction it has already seen.
type frame struct {
	funcID      uint32
	ip          int
	localsBase  int
	localsCount int
	retTypeID   uint32
	upvalues    heap.Handle // Null for a non-closure (module-level) frame
	stackBase   int         // value-stack height when this frame was entered
}
