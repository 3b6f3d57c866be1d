package verify_test

import (
	"testing"

	"github.com/sbclang/sbcvm/module"
	"github.com/sbclang/sbcvm/opcode"
	"github.com/sbclang/sbcvm/verify"
)

// buildFunc wires a single function with the given signature and code into
// a minimal loadable module and returns it.
func buildFunc(t *testing.T, sig module.Signature, code []byte) *module.Module {
	t.Helper()
	b := module.NewBuilder()
	sigID := b.AddSignature(sig)
	methodID := b.AddMethod(module.Method{SigID: sigID})
	b.AddFunction(methodID, code)
	b.SetEntryMethod(methodID)
	m, err := module.Load(b.Encode())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func TestVerifyAcceptsWellTypedFunction(t *testing.T) {
	b := module.NewBuilder()
	i32 := b.AddType(module.Type{Kind: module.KindI32})
	sigID := b.AddSignature(module.Signature{RetTypeID: i32})
	methodID := b.AddMethod(module.Method{SigID: sigID})

	e := opcode.NewEncoder()
	e.Enter(0).ConstI32(5).ConstI32(3).AddI32().Ret()
	b.AddFunction(methodID, e.Bytes())
	b.SetEntryMethod(methodID)

	m, err := module.Load(b.Encode())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := verify.Verify(m); err != nil {
		t.Fatalf("Verify: unexpected error: %v", err)
	}
}

func TestVerifyRejectsTypeMismatch(t *testing.T) {
	b := module.NewBuilder()
	i32 := b.AddType(module.Type{Kind: module.KindI32})
	sigID := b.AddSignature(module.Signature{RetTypeID: i32})
	methodID := b.AddMethod(module.Method{SigID: sigID})

	e := opcode.NewEncoder()
	e.Enter(0).ConstI32(5).ConstF64(1.0).AddI32().Ret()
	b.AddFunction(methodID, e.Bytes())
	b.SetEntryMethod(methodID)

	m, err := module.Load(b.Encode())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := verify.Verify(m); err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestVerifyRejectsStackUnderflow(t *testing.T) {
	sig := module.Signature{RetTypeID: module.VoidRet}
	e := opcode.NewEncoder()
	e.Enter(0).AddI32().Ret()
	m := buildFunc(t, sig, e.Bytes())
	if err := verify.Verify(m); err == nil {
		t.Fatal("expected stack underflow error")
	}
}

func TestVerifyRejectsUninitializedLocal(t *testing.T) {
	sig := module.Signature{RetTypeID: module.VoidRet}
	e := opcode.NewEncoder()
	e.Enter(1).LoadLocal(0).Pop().Ret()
	m := buildFunc(t, sig, e.Bytes())
	if err := verify.Verify(m); err == nil {
		t.Fatal("expected uninitialized local error")
	}
}

func TestVerifyAcceptsStoredThenLoadedLocal(t *testing.T) {
	b := module.NewBuilder()
	sigID := b.AddSignature(module.Signature{RetTypeID: module.VoidRet})
	methodID := b.AddMethod(module.Method{SigID: sigID})

	e := opcode.NewEncoder()
	e.Enter(1).ConstI32(1).StoreLocal(0).LoadLocal(0).Pop().Ret()
	b.AddFunction(methodID, e.Bytes())
	b.SetEntryMethod(methodID)

	m, err := module.Load(b.Encode())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := verify.Verify(m); err != nil {
		t.Fatalf("Verify: unexpected error: %v", err)
	}
}

func TestVerifyRejectsBadBranchTarget(t *testing.T) {
	sig := module.Signature{RetTypeID: module.VoidRet}
	e := opcode.NewEncoder()
	e.Enter(0)
	_, at := e.Jmp(0)
	e.Ret()
	e.PatchRel32(at, 9999)
	m := buildFunc(t, sig, e.Bytes())
	if err := verify.Verify(m); err == nil {
		t.Fatal("expected bad branch target error")
	}
}

func TestVerifyRejectsMissingTerminator(t *testing.T) {
	sig := module.Signature{RetTypeID: module.VoidRet}
	e := opcode.NewEncoder()
	e.Enter(0).ConstI32(1).Pop()
	m := buildFunc(t, sig, e.Bytes())
	if err := verify.Verify(m); err == nil {
		t.Fatal("expected missing terminator error")
	}
}

func TestVerifyRejectsMergeMismatch(t *testing.T) {
	sig := module.Signature{RetTypeID: module.VoidRet}
	e := opcode.NewEncoder()
	e.Enter(0)
	e.ConstBool(true)
	_, atJmpTrue := e.JmpTrue(0)
	e.ConstI32(1) // fallthrough path leaves an I32 on the stack
	_, atJmp := e.Jmp(0)
	l1 := uint32(e.Len())
	e.ConstF64(1.0) // branch path leaves an F64 on the stack instead
	l2 := uint32(e.Len())
	e.Ret()
	e.PatchRel32(atJmpTrue, l1)
	e.PatchRel32(atJmp, l2)

	m := buildFunc(t, sig, e.Bytes())
	if err := verify.Verify(m); err == nil {
		t.Fatal("expected merge mismatch error")
	}
}

func TestVerifyAcceptsConsistentBranches(t *testing.T) {
	b := module.NewBuilder()
	i32 := b.AddType(module.Type{Kind: module.KindI32})
	sigID := b.AddSignature(module.Signature{RetTypeID: i32})
	methodID := b.AddMethod(module.Method{SigID: sigID})

	e := opcode.NewEncoder()
	e.Enter(0)
	e.ConstBool(true)
	_, atJmpTrue := e.JmpTrue(0)
	e.ConstI32(1)
	_, atJmp := e.Jmp(0)
	l1 := uint32(e.Len())
	e.ConstI32(2) // both paths leave an I32, so the merge at l2 agrees
	l2 := uint32(e.Len())
	e.Ret()
	e.PatchRel32(atJmpTrue, l1)
	e.PatchRel32(atJmp, l2)

	b.AddFunction(methodID, e.Bytes())
	b.SetEntryMethod(methodID)
	m, err := module.Load(b.Encode())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := verify.Verify(m); err != nil {
		t.Fatalf("Verify: unexpected error: %v", err)
	}
}

func TestVerifyRejectsArgcMismatch(t *testing.T) {
	b := module.NewBuilder()
	i32 := b.AddType(module.Type{Kind: module.KindI32})
	calleeSig := b.AddSignature(module.Signature{RetTypeID: i32, ParamTypes: []uint32{i32, i32}})
	calleeMethod := b.AddMethod(module.Method{SigID: calleeSig})
	calleeFn := b.AddFunction(calleeMethod, opcode.NewEncoder().Enter(0).ConstI32(0).Ret().Bytes())

	callerSig := b.AddSignature(module.Signature{RetTypeID: i32})
	callerMethod := b.AddMethod(module.Method{SigID: callerSig})
	e := opcode.NewEncoder()
	e.Enter(0).ConstI32(1).Call(calleeFn, 1).Ret() // calleeSig wants 2 args, argc says 1
	b.AddFunction(callerMethod, e.Bytes())
	b.SetEntryMethod(callerMethod)

	m, err := module.Load(b.Encode())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := verify.Verify(m); err == nil {
		t.Fatal("expected arity mismatch error")
	}
}

func TestVerifyAcceptsWellTypedCall(t *testing.T) {
	b := module.NewBuilder()
	i32 := b.AddType(module.Type{Kind: module.KindI32})
	calleeSig := b.AddSignature(module.Signature{RetTypeID: i32, ParamTypes: []uint32{i32, i32}})
	calleeMethod := b.AddMethod(module.Method{SigID: calleeSig})
	calleeFn := b.AddFunction(calleeMethod, opcode.NewEncoder().Enter(0).ConstI32(0).Ret().Bytes())

	callerSig := b.AddSignature(module.Signature{RetTypeID: i32})
	callerMethod := b.AddMethod(module.Method{SigID: callerSig})
	e := opcode.NewEncoder()
	e.Enter(0).ConstI32(1).ConstI32(2).Call(calleeFn, 2).Ret()
	b.AddFunction(callerMethod, e.Bytes())
	b.SetEntryMethod(callerMethod)

	m, err := module.Load(b.Encode())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := verify.Verify(m); err != nil {
		t.Fatalf("Verify: unexpected error: %v", err)
	}
}
