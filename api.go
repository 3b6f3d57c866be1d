package sbcvm

import (
	"context"
	"os"

	"github.com/sbclang/sbcvm/module"
	"github.com/sbclang/sbcvm/vm"
)

// Config re-exports vm.Config so callers driving the convenience API below
// never need to import the vm package directly.
type Config = vm.Config

// Result re-exports vm.Result, see vm.Status's doc for the terminal states.
type Result = vm.Result

// LoadBytes decodes and structurally validates an in-memory SBC module. It
// never executes any code in data (module.Load's own contract).
func LoadBytes(data []byte) (*module.Module, error) {
	return module.Load(data)
}

// LoadFile reads path and decodes it as an SBC module.
func LoadFile(path string) (*module.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadBytes(data)
}

// New builds a VM over m ready to Run, per cfg (verification runs
// automatically unless cfg.SkipVerify is set).
func New(m *module.Module, cfg Config) (*vm.VM, error) {
	return vm.New(m, cfg)
}

// Execute loads, verifies, and runs an SBC module to completion in one
// call: the common case for a CLI driver or a single-shot embedding that
// has no need to inspect the loaded *module.Module or *vm.VM in between.
func Execute(ctx context.Context, data []byte, cfg Config) (Result, error) {
	m, err := LoadBytes(data)
	if err != nil {
		return Result{Status: vm.StatusTrapped}, err
	}
	v, err := vm.New(m, cfg)
	if err != nil {
		return Result{Status: vm.StatusTrapped}, err
	}
	res := v.Run(ctx)
	return res, res.Err
}

// ExecuteFile is Execute reading the module from path.
func ExecuteFile(ctx context.Context, path string, cfg Config) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Status: vm.StatusTrapped}, err
	}
	return Execute(ctx, data, cfg)
}
