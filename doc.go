// Package sbcvm loads, verifies, and executes SBC bytecode modules.
//
// SBC (stack bytecode) is a self-contained binary format: a fixed header,
// a section table, and typed sections describing types, methods, function
// code, constants, globals, imports/exports, and optional debug info. There
// is no linear memory and no raw pointer arithmetic — every mutable value
// lives on the interpreter's value stack, in a local/global slot, or as a
// heap object (string, array, list, struct, or closure) reached only
// through an opaque handle.
//
// # Architecture
//
//	sbcvm/            Root package: LoadFile/LoadBytes/Execute convenience API
//	├── module/       Binary format decode/encode and the Module data model
//	├── verify/       Static abstract-interpretation verifier
//	├── vm/           The stack-based interpreter, heap-backed GC, dispatch loop
//	├── heap/         Handle-indexed object arena and mark-sweep collector
//	├── hostimport/   Host function resolution (core.os/core.fs/core.log/core.dl)
//	├── opcode/       Instruction set: opcode bytes, operand shapes, decoder
//	├── sbcerr/       Structured, phase-tagged error type shared by every stage
//	├── sblog/        Package-level structured logger accessor
//	├── scratch/      Reusable byte arena for allocation-free hot paths
//	└── cmd/sbcrun/   Command-line driver and interactive debugger
//
// # Quick start
//
//	result, err := sbcvm.Execute(ctx, bytecode, sbcvm.Config{
//	    Argv: os.Args[1:],
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.Exit(int(result.ExitCode))
//
// # Host functions
//
// A module's Intrinsic calls are served by a chain of resolvers: the
// built-in core.os/core.fs/core.log/core.dl set, then whatever
// hostimport.Resolver the embedder supplies through Config.ImportResolver.
// Register additional host functions with hostimport.Registry:
//
//	reg := hostimport.NewRegistry()
//	reg.Register(myHost{}) // myHost's exported methods become import symbols
//
// # Thread safety
//
// A *vm.VM is not safe for concurrent use; each Execute/Run call owns a
// private value stack, locals arena, and heap. Running the same module
// bytes through multiple Execute calls concurrently is safe — each call
// loads and verifies its own independent *module.Module.
package sbcvm
