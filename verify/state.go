// Package verify implements SBC's static verifier: an abstract interpreter
// that walks every function's code once per reachable control-flow edge,
// tracking an abstract value stack and a locals initialization/type table,
// and rejects any module whose bytecode could violate a type or stack
// invariant at runtime. It never executes a single real value.
package verify

import (
	"github.com/sbclang/sbcvm/module"
)

// localSlot is the verifier's knowledge about one local variable slot at a
// given program point: whether it has definitely been written, and if so,
// with what type.
type localSlot struct {
	init bool
	typ  module.TypeKind
}

// state is the abstract machine state flowing along one control-flow edge:
// the operand stack (by type) and the locals table. States are compared for
// equality at merge points (spec.md §4.3's "merge point consistency").
type state struct {
	stack  []module.TypeKind
	locals []localSlot
}

func (s state) clone() state {
	return state{
		stack:  append([]module.TypeKind(nil), s.stack...),
		locals: append([]localSlot(nil), s.locals...),
	}
}

func (s *state) push(t module.TypeKind) { s.stack = append(s.stack, t) }

func (s *state) pop() (module.TypeKind, bool) {
	if len(s.stack) == 0 {
		return 0, false
	}
	t := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return t, true
}

func (s state) top() (module.TypeKind, bool) {
	if len(s.stack) == 0 {
		return 0, false
	}
	return s.stack[len(s.stack)-1], true
}

// equal reports whether two states agree exactly on stack shape and locals
// initialization/type, the condition spec.md §4.3 requires at every merge
// point (a pc reached from more than one predecessor).
func (s state) equal(o state) bool {
	if len(s.stack) != len(o.stack) || len(s.locals) != len(o.locals) {
		return false
	}
	for i := range s.stack {
		if s.stack[i] != o.stack[i] {
			return false
		}
	}
	for i := range s.locals {
		if s.locals[i] != o.locals[i] {
			return false
		}
	}
	return true
}
