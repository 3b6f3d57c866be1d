// Package hostimport implements the SBC host import contract (spec.md
// §4.6): a resolver the engine calls when an Intrinsic instruction names
// an import, after popping arguments in reverse declaration order off the
// value stack. A small set of built-in modules (core.os, core.fs, core.log,
// core.dl) are served by a default resolver installed ahead of whatever
// resolver the embedder supplies.
package hostimport

import (
	"errors"

	"github.com/sbclang/sbcvm/heap"
)

// ErrUnknownSymbol is the sentinel a Resolver returns when it does not
// recognize moduleName/symbolName, letting a Chain fall through to the
// next resolver in line (spec.md §4.6: "falls through ... if they return
// 'unknown symbol'").
var ErrUnknownSymbol = errors.New("hostimport: unknown symbol")

// Resolver services one imported-function call. args holds the callee's
// parameters, widened to raw 64-bit words in declaration order; Ref-typed
// parameters carry a heap.Handle cast to uint64. h gives host functions
// access to the calling VM's heap (e.g. to read a string argument or
// allocate a string result).
type Resolver interface {
	Resolve(moduleName, symbolName string, args []uint64, h *heap.Heap) (ret uint64, hasReturn bool, err error)
}

// ResolverFunc adapts a plain function to a Resolver.
type ResolverFunc func(moduleName, symbolName string, args []uint64, h *heap.Heap) (uint64, bool, error)

func (f ResolverFunc) Resolve(moduleName, symbolName string, args []uint64, h *heap.Heap) (uint64, bool, error) {
	return f(moduleName, symbolName, args, h)
}

// Chain tries each resolver in order, advancing to the next on
// ErrUnknownSymbol. It returns ErrUnknownSymbol itself if every resolver in
// the chain misses, so a Chain can itself be chained.
func Chain(resolvers ...Resolver) Resolver {
	return ResolverFunc(func(moduleName, symbolName string, args []uint64, h *heap.Heap) (uint64, bool, error) {
		for _, r := range resolvers {
			if r == nil {
				continue
			}
			ret, hasRet, err := r.Resolve(moduleName, symbolName, args, h)
			if errors.Is(err, ErrUnknownSymbol) {
				continue
			}
			return ret, hasRet, err
		}
		return 0, false, ErrUnknownSymbol
	})
}
