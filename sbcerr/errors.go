// Package sbcerr is the structured error type shared by every stage of the
// SBC pipeline: loader, verifier, and execution engine.
package sbcerr

import (
	"fmt"
	"strings"
)

// Phase indicates which pipeline stage produced the error.
type Phase string

const (
	PhaseLoad   Phase = "load"   // binary module loading
	PhaseVerify Phase = "verify" // static verification
	PhaseRun    Phase = "run"    // interpreter trap
	PhaseHost   Phase = "host"   // import resolver failure
)

// Kind categorizes the error within its phase.
type Kind string

const (
	KindBadMagic        Kind = "bad_magic"
	KindBadVersion       Kind = "bad_version"
	KindSectionOverlap   Kind = "section_overlap"
	KindSectionOrder     Kind = "section_order"
	KindUnknownSection   Kind = "unknown_section"
	KindBadOffset        Kind = "bad_offset"
	KindBadAlignment     Kind = "bad_alignment"
	KindIndexOutOfRange  Kind = "index_out_of_range"
	KindBadConstTag      Kind = "bad_const_tag"
	KindUnknownOpcode    Kind = "unknown_opcode"
	KindDuplicateImport  Kind = "duplicate_import"
	KindTruncated        Kind = "truncated"
	KindInvalidUTF8      Kind = "invalid_utf8"

	KindTypeMismatch     Kind = "type_mismatch"
	KindStackUnderflow   Kind = "stack_underflow"
	KindStackOverflow    Kind = "stack_overflow"
	KindUninitLocal      Kind = "uninitialized_local"
	KindBadBranchTarget  Kind = "bad_branch_target"
	KindNoFallthrough    Kind = "missing_terminator"
	KindMergeMismatch    Kind = "merge_mismatch"

	KindOutOfBounds   Kind = "out_of_bounds"
	KindNullDeref     Kind = "null_deref"
	KindDivByZero     Kind = "div_by_zero"
	KindArityMismatch Kind = "arity_mismatch"
	KindMissingImport Kind = "missing_import"
	KindEmptyPop      Kind = "empty_pop"
	KindUnreachable   Kind = "unreachable"
	KindSysCall       Kind = "syscall"

	KindHostFailure Kind = "host_failure"
)

// Error is the structured error returned by every package in this module.
//
// FuncID/PC are populated for verify- and run-phase errors and render as
// "(func F pc P)". Opcode/Operands/Line/Column are populated only for
// run-phase (trap) errors; they render as the "last_op 0xNN ... line L:C"
// substrings the embedder's test suite matches against.
type Error struct {
	Phase    Phase
	Kind     Kind
	Detail   string
	Cause    error
	FuncID   uint32
	PC       uint32
	Opcode   byte
	OpName   string
	Operands string
	HasLine  bool
	Line     uint32
	Column   uint32
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Phase == PhaseVerify {
		fmt.Fprintf(&b, " (func %d pc %d)", e.FuncID, e.PC)
	}

	if e.Phase == PhaseRun {
		fmt.Fprintf(&b, " (func %d pc %d) last_op 0x%02x %s", e.FuncID, e.PC, e.Opcode, e.OpName)
		if e.Operands != "" {
			b.WriteString(" operands ")
			b.WriteString(e.Operands)
		}
		if e.HasLine {
			fmt.Fprintf(&b, " line %d:%d", e.Line, e.Column)
		}
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Load builds a loader-phase diagnostic.
func Load(kind Kind, detail string, args ...any) *Error {
	return &Error{Phase: PhaseLoad, Kind: kind, Detail: fmt.Sprintf(detail, args...)}
}

// LoadWrap builds a loader-phase diagnostic wrapping an underlying cause.
func LoadWrap(kind Kind, cause error, detail string, args ...any) *Error {
	return &Error{Phase: PhaseLoad, Kind: kind, Detail: fmt.Sprintf(detail, args...), Cause: cause}
}

// Verify builds a verifier-phase diagnostic, always naming the offending
// function and pc as spec.md §4.3 requires.
func Verify(kind Kind, funcID, pc uint32, detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseVerify,
		Kind:   kind,
		FuncID: funcID,
		PC:     pc,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// TrapBuilder accumulates the fields of a runtime trap before rendering.
type TrapBuilder struct {
	err Error
}

// Trap starts building a runtime trap diagnostic.
func Trap(kind Kind) *TrapBuilder {
	return &TrapBuilder{err: Error{Phase: PhaseRun, Kind: kind}}
}

func (b *TrapBuilder) At(funcID, pc uint32) *TrapBuilder {
	b.err.FuncID = funcID
	b.err.PC = pc
	return b
}

func (b *TrapBuilder) Op(opcode byte, name, operands string) *TrapBuilder {
	b.err.Opcode = opcode
	b.err.OpName = name
	b.err.Operands = operands
	return b
}

func (b *TrapBuilder) Line(line, column uint32) *TrapBuilder {
	b.err.HasLine = true
	b.err.Line = line
	b.err.Column = column
	return b
}

func (b *TrapBuilder) Detail(msg string, args ...any) *TrapBuilder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

func (b *TrapBuilder) Cause(err error) *TrapBuilder {
	b.err.Cause = err
	return b
}

func (b *TrapBuilder) Build() *Error {
	e := b.err
	return &e
}

// Host builds a Host-phase error, surfaced by the interpreter as a Trap
// with the resolver's message attached (spec.md §7).
func Host(detail string, cause error) *Error {
	return &Error{Phase: PhaseHost, Kind: KindHostFailure, Detail: detail, Cause: cause}
}
