package vm_test

import (
	"context"
	"testing"

	"github.com/sbclang/sbcvm/module"
	"github.com/sbclang/sbcvm/opcode"
	"github.com/sbclang/sbcvm/vm"
)

// buildRun wires a single exported, entry-point function and runs it with
// the given config, returning the result.
func buildRun(t *testing.T, retTypeID uint32, code []byte, cfg vm.Config) vm.Result {
	t.Helper()
	b := module.NewBuilder()
	methodID := b.AddMethod(module.Method{SigID: b.AddSignature(module.Signature{RetTypeID: retTypeID})})
	fnID := b.AddFunction(methodID, code)
	b.AddExport("main", fnID, 0)
	b.SetEntryMethod(methodID)

	m, err := module.Load(b.Encode())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, err := vm.New(m, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v.Run(context.Background())
}

func TestRunAddsAndHalts(t *testing.T) {
	e := opcode.NewEncoder()
	e.Enter(0).ConstI32(2).ConstI32(3).AddI32().Halt()
	res := buildRun(t, module.VoidRet, e.Bytes(), vm.Config{})
	if res.Status != vm.StatusHalted {
		t.Fatalf("status: got %v, err %v", res.Status, res.Err)
	}
	if res.ExitCode != 5 {
		t.Fatalf("exit code: got %d, want 5", res.ExitCode)
	}
}

func TestRunReturnsValue(t *testing.T) {
	b := module.NewBuilder()
	i32 := b.AddType(module.Type{Kind: module.KindI32})
	sigID := b.AddSignature(module.Signature{RetTypeID: i32})
	methodID := b.AddMethod(module.Method{SigID: sigID})

	e := opcode.NewEncoder()
	e.Enter(0).ConstI32(41).ConstI32(1).AddI32().Ret()
	fnID := b.AddFunction(methodID, e.Bytes())
	b.AddExport("main", fnID, 0)
	b.SetEntryMethod(methodID)

	m, err := module.Load(b.Encode())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, err := vm.New(m, vm.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := v.Run(context.Background())
	if res.Status != vm.StatusHalted || res.Err != nil {
		t.Fatalf("run: status=%v err=%v", res.Status, res.Err)
	}
	if res.ExitCode != 42 {
		t.Fatalf("Ret from the entry frame should carry its return value out as the exit code, got %d", res.ExitCode)
	}
}

func TestDivByZeroTraps(t *testing.T) {
	e := opcode.NewEncoder()
	e.Enter(0).ConstI32(1).ConstI32(0).DivI32().Halt()
	res := buildRun(t, module.VoidRet, e.Bytes(), vm.Config{})
	if res.Status != vm.StatusTrapped {
		t.Fatalf("status: got %v, want trapped", res.Status)
	}
	if res.Err == nil {
		t.Fatal("expected a trap error")
	}
}

func TestUnsignedDivByZeroReturnsZero(t *testing.T) {
	e := opcode.NewEncoder()
	e.Enter(0).ConstU32(7).ConstU32(0).DivU32().Halt()
	res := buildRun(t, module.VoidRet, e.Bytes(), vm.Config{})
	if res.Status != vm.StatusHalted {
		t.Fatalf("status: got %v, err %v", res.Status, res.Err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code: got %d, want 0", res.ExitCode)
	}
}

func TestLocalsStoreAndLoadRoundTrip(t *testing.T) {
	e := opcode.NewEncoder()
	e.Enter(1).ConstI32(9).StoreLocal(0).LoadLocal(0).ConstI32(1).AddI32().Halt()
	res := buildRun(t, module.VoidRet, e.Bytes(), vm.Config{})
	if res.Status != vm.StatusHalted {
		t.Fatalf("status: got %v, err %v", res.Status, res.Err)
	}
	if res.ExitCode != 10 {
		t.Fatalf("exit code: got %d, want 10", res.ExitCode)
	}
}

func TestCallInvokesCallee(t *testing.T) {
	b := module.NewBuilder()
	i32 := b.AddType(module.Type{Kind: module.KindI32})
	calleeSig := b.AddSignature(module.Signature{RetTypeID: i32, ParamTypes: []uint32{i32, i32}})
	calleeMethod := b.AddMethod(module.Method{SigID: calleeSig})

	ce := opcode.NewEncoder()
	ce.Enter(0).LoadLocal(0).LoadLocal(1).AddI32().Ret()
	calleeFnID := b.AddFunction(calleeMethod, ce.Bytes())

	mainSig := b.AddSignature(module.Signature{RetTypeID: module.VoidRet})
	mainMethod := b.AddMethod(module.Method{SigID: mainSig})

	me := opcode.NewEncoder()
	me.Enter(0).ConstI32(4).ConstI32(5).Call(calleeFnID, 2).Halt()
	mainFnID := b.AddFunction(mainMethod, me.Bytes())
	b.AddExport("main", mainFnID, 0)
	b.SetEntryMethod(mainMethod)

	m, err := module.Load(b.Encode())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, err := vm.New(m, vm.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := v.Run(context.Background())
	if res.Status != vm.StatusHalted {
		t.Fatalf("status: got %v, err %v", res.Status, res.Err)
	}
	if res.ExitCode != 9 {
		t.Fatalf("exit code: got %d, want 9", res.ExitCode)
	}
}

func TestBackwardBranchLoopTerminates(t *testing.T) {
	e := opcode.NewEncoder()
	e.Enter(1).ConstI32(0).StoreLocal(0)
	loopStart := e.Len()
	e.LoadLocal(0).IncI32().StoreLocal(0)
	e.LoadLocal(0).ConstI32(5).CmpLtI32()
	// jump back to loopStart while locals[0] < 5
	jmp, at := e.JmpTrue(0)
	jmp.PatchRel32(at, uint32(loopStart))
	e.LoadLocal(0).Halt()
	res := buildRun(t, module.VoidRet, e.Bytes(), vm.Config{})
	if res.Status != vm.StatusHalted {
		t.Fatalf("status: got %v, err %v", res.Status, res.Err)
	}
	if res.ExitCode != 5 {
		t.Fatalf("exit code: got %d, want 5", res.ExitCode)
	}
}

func TestStepSingleInstructionAtATime(t *testing.T) {
	b := module.NewBuilder()
	methodID := b.AddMethod(module.Method{SigID: b.AddSignature(module.Signature{RetTypeID: module.VoidRet})})
	e := opcode.NewEncoder()
	e.Enter(0).ConstI32(1).ConstI32(2).AddI32().Halt()
	fnID := b.AddFunction(methodID, e.Bytes())
	b.AddExport("main", fnID, 0)
	b.SetEntryMethod(methodID)

	m, err := module.Load(b.Encode())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, err := vm.New(m, vm.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := v.StartStep(); err != nil {
		t.Fatalf("StartStep: %v", err)
	}

	steps := 0
	for {
		status, result, err := v.Step()
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		steps++
		if status != vm.StatusRunning {
			if result.ExitCode != 3 {
				t.Fatalf("exit code: got %d, want 3", result.ExitCode)
			}
			break
		}
		if steps > 10 {
			t.Fatal("too many steps, Step never halted")
		}
	}
	if steps < 3 {
		t.Fatalf("expected multiple single-instruction steps, got %d", steps)
	}
}

func TestGCCollectsUnreachableConcatResults(t *testing.T) {
	b := module.NewBuilder()
	methodID := b.AddMethod(module.Method{SigID: b.AddSignature(module.Signature{RetTypeID: module.VoidRet})})
	left := b.AddConstString("foo")
	right := b.AddConstString("bar")

	e := opcode.NewEncoder()
	e.Enter(0)
	for i := 0; i < 8; i++ {
		// Each iteration's ConstStrings and concat result are all
		// unreachable by the time the next iteration starts.
		e.ConstString(left).ConstString(right).StringConcat().Pop()
	}
	e.Halt()
	fnID := b.AddFunction(methodID, e.Bytes())
	b.AddExport("main", fnID, 0)
	b.SetEntryMethod(methodID)

	m, err := module.Load(b.Encode())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, err := vm.New(m, vm.Config{GCThreshold: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := v.Run(context.Background())
	if res.Status != vm.StatusHalted {
		t.Fatalf("status: got %v, err %v", res.Status, res.Err)
	}
	stats := v.Heap().Stats()
	if stats.NumGCs == 0 {
		t.Fatal("expected at least one collection given the low threshold")
	}
	if stats.Live >= 24 { // 8 iterations * 3 strings each if nothing were ever collected
		t.Fatalf("expected most garbage to be reclaimed, live=%d", stats.Live)
	}
}
