package sbcvm_test

import (
	"context"
	"os"
	"testing"

	"github.com/sbclang/sbcvm"
	"github.com/sbclang/sbcvm/heap"
	"github.com/sbclang/sbcvm/hostimport"
	"github.com/sbclang/sbcvm/module"
	"github.com/sbclang/sbcvm/opcode"
)

func buildAddTwoConstsModule(t *testing.T) []byte {
	t.Helper()
	b := module.NewBuilder()
	methodID := b.AddMethod(module.Method{SigID: b.AddSignature(module.Signature{RetTypeID: module.VoidRet})})
	e := opcode.NewEncoder()
	e.Enter(0).ConstI32(2).ConstI32(3).AddI32().Halt()
	fnID := b.AddFunction(methodID, e.Bytes())
	b.AddExport("main", fnID, 0)
	b.SetEntryMethod(methodID)
	return b.Encode()
}

func TestLoadBytesAndNew(t *testing.T) {
	data := buildAddTwoConstsModule(t)
	m, err := sbcvm.LoadBytes(data)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	v, err := sbcvm.New(m, sbcvm.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := v.Run(context.Background())
	if res.ExitCode != 5 {
		t.Fatalf("exit code: got %d, want 5", res.ExitCode)
	}
}

func TestExecuteRunsToCompletion(t *testing.T) {
	data := buildAddTwoConstsModule(t)
	res, err := sbcvm.Execute(context.Background(), data, sbcvm.Config{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ExitCode != 5 {
		t.Fatalf("exit code: got %d, want 5", res.ExitCode)
	}
}

func TestLoadFileAndExecuteFile(t *testing.T) {
	data := buildAddTwoConstsModule(t)
	path := t.TempDir() + "/add.sbc"
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m, err := sbcvm.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if m == nil {
		t.Fatal("LoadFile returned a nil module")
	}

	res, err := sbcvm.ExecuteFile(context.Background(), path, sbcvm.Config{})
	if err != nil {
		t.Fatalf("ExecuteFile: %v", err)
	}
	if res.ExitCode != 5 {
		t.Fatalf("exit code: got %d, want 5", res.ExitCode)
	}
}

func TestExecuteFileReportsMissingFile(t *testing.T) {
	if _, err := sbcvm.ExecuteFile(context.Background(), "/no/such/path.sbc", sbcvm.Config{}); err == nil {
		t.Fatal("expected an error reading a nonexistent file")
	}
}

func TestExecuteWithCustomImportResolver(t *testing.T) {
	b := module.NewBuilder()
	i32 := b.AddType(module.Type{Kind: module.KindI32})
	sigID := b.AddSignature(module.Signature{RetTypeID: i32, ParamTypes: []uint32{i32}})
	b.AddImport("env", "double", sigID, 0)

	methodID := b.AddMethod(module.Method{SigID: b.AddSignature(module.Signature{RetTypeID: module.VoidRet})})
	e := opcode.NewEncoder()
	e.Enter(0).ConstI32(21).Intrinsic(0).Halt()
	fnID := b.AddFunction(methodID, e.Bytes())
	b.AddExport("main", fnID, 0)
	b.SetEntryMethod(methodID)

	resolver := hostimport.ResolverFunc(func(moduleName, symbolName string, args []uint64, h *heap.Heap) (uint64, bool, error) {
		if moduleName == "env" && symbolName == "double" {
			return args[0] * 2, true, nil
		}
		return 0, false, hostimport.ErrUnknownSymbol
	})

	res, err := sbcvm.Execute(context.Background(), b.Encode(), sbcvm.Config{
		ImportResolver: resolver,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ExitCode != 42 {
		t.Fatalf("exit code: got %d, want 42", res.ExitCode)
	}
}
