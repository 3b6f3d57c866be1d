package hostimport

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/sbclang/sbcvm/heap"
)

// Host is a Go struct whose exported methods are bound to module.symbol
// pairs by a naming convention: a method named ArgsGet on a host whose
// Namespace is "core.os" answers the symbol "core.os.args_get". Grounded
// on the teacher's HostRegistry (runtime/host.go), simplified to a single
// fixed method signature since SBC's own type system (not WIT) already
// describes every import's arity and types.
type Host interface {
	Namespace() string
}

// HostMethod is the signature every registrable host method must have.
type HostMethod func(args []uint64, h *heap.Heap) (ret uint64, hasReturn bool, err error)

// Registry binds Host method sets and serves Resolve by exact
// namespace+symbol lookup.
type Registry struct {
	funcs map[string]map[string]HostMethod
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]map[string]HostMethod)}
}

// Register binds every exported method of h (except Namespace itself) whose
// signature matches HostMethod.
func (r *Registry) Register(h Host) {
	ns := h.Namespace()
	if r.funcs[ns] == nil {
		r.funcs[ns] = make(map[string]HostMethod)
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		m := rt.Method(i)
		if !m.IsExported() || m.Name == "Namespace" {
			continue
		}
		bound, ok := rv.Method(i).Interface().(func([]uint64, *heap.Heap) (uint64, bool, error))
		if !ok {
			continue
		}
		r.funcs[ns][toSnakeCase(m.Name)] = HostMethod(bound)
	}
}

// Resolve implements Resolver.
func (r *Registry) Resolve(moduleName, symbolName string, args []uint64, h *heap.Heap) (uint64, bool, error) {
	ns, ok := r.funcs[moduleName]
	if !ok {
		return 0, false, ErrUnknownSymbol
	}
	fn, ok := ns[symbolName]
	if !ok {
		return 0, false, ErrUnknownSymbol
	}
	return fn(args, h)
}

// toSnakeCase converts an exported Go method name (ArgsGet) to the host
// symbol naming convention (args_get).
func toSnakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
