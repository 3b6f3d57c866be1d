package hostimport_test

import (
	"errors"
	"testing"

	"github.com/sbclang/sbcvm/heap"
	"github.com/sbclang/sbcvm/hostimport"
)

func TestRegistrySnakeCasesMethodNames(t *testing.T) {
	r := hostimport.NewRegistry()
	r.Register(hostimport.NewCoreOS([]string{"a", "b"}, nil))

	h := heap.New()
	ret, hasRet, err := r.Resolve("core.os", "args_count", nil, h)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !hasRet || ret != 2 {
		t.Fatalf("args_count: got ret=%d hasRet=%v, want 2 true", ret, hasRet)
	}
}

func TestRegistryUnknownSymbol(t *testing.T) {
	r := hostimport.NewRegistry()
	r.Register(hostimport.NewCoreOS(nil, nil))
	h := heap.New()

	if _, _, err := r.Resolve("core.os", "not_a_symbol", nil, h); !errors.Is(err, hostimport.ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
	if _, _, err := r.Resolve("core.nope", "anything", nil, h); !errors.Is(err, hostimport.ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol for unknown module, got %v", err)
	}
}

func TestCoreOSEnvGet(t *testing.T) {
	h := heap.New()
	r := hostimport.NewRegistry()
	r.Register(hostimport.NewCoreOS(nil, map[string]string{"HOME": "/root"}))

	key := h.NewString("HOME")
	ret, hasRet, err := r.Resolve("core.os", "env_get", []uint64{uint64(key)}, h)
	if err != nil || !hasRet {
		t.Fatalf("env_get: err=%v hasRet=%v", err, hasRet)
	}
	got, err := h.String(heap.Handle(ret))
	if err != nil || got != "/root" {
		t.Fatalf("env_get: got %q, err %v", got, err)
	}

	missing := h.NewString("NOPE")
	ret, _, err = r.Resolve("core.os", "env_get", []uint64{uint64(missing)}, h)
	if err != nil {
		t.Fatalf("env_get missing key: %v", err)
	}
	if heap.Handle(ret) != heap.Null {
		t.Fatalf("env_get missing key: expected Null, got %d", ret)
	}
}

func TestCoreFSWriteReadRoundTrip(t *testing.T) {
	h := heap.New()
	r := hostimport.NewRegistry()
	r.Register(hostimport.NewCoreFS())

	dir := t.TempDir() + "/hostimport.txt"
	path := h.NewString(dir)

	fdRaw, _, err := r.Resolve("core.fs", "open", []uint64{uint64(path), 1}, h)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if int64(fdRaw) < 0 {
		t.Fatalf("open: got invalid fd %d", int64(fdRaw))
	}

	buf := h.NewArray(heap.WidthI32, 5)
	data := []byte("hello")
	for i, c := range data {
		if err := h.ArraySetInt(buf, uint32(i), uint64(c)); err != nil {
			t.Fatalf("ArraySetInt: %v", err)
		}
	}
	n, _, err := r.Resolve("core.fs", "write", []uint64{fdRaw, uint64(buf), uint64(len(data))}, h)
	if err != nil || n != uint64(len(data)) {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	if _, _, err := r.Resolve("core.fs", "close", []uint64{fdRaw}, h); err != nil {
		t.Fatalf("close: %v", err)
	}

	fdRaw, _, err = r.Resolve("core.fs", "open", []uint64{uint64(path), 0}, h)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	readBuf := h.NewArray(heap.WidthI32, 5)
	n, _, err = r.Resolve("core.fs", "read", []uint64{fdRaw, uint64(readBuf), 5}, h)
	if err != nil || n != 5 {
		t.Fatalf("read: n=%d err=%v", n, err)
	}
	for i := range data {
		v, err := h.ArrayGetInt(readBuf, uint32(i))
		if err != nil || byte(v) != data[i] {
			t.Fatalf("read byte %d: got %d, want %d", i, v, data[i])
		}
	}
}

func TestCoreDLAlwaysFails(t *testing.T) {
	h := heap.New()
	r := hostimport.NewRegistry()
	r.Register(&hostimport.CoreDL{})

	ret, hasRet, err := r.Resolve("core.dl", "open", []uint64{0, 0}, h)
	if err != nil || !hasRet || int64(ret) != -1 {
		t.Fatalf("open: ret=%d hasRet=%v err=%v", ret, hasRet, err)
	}
	errRet, _, err := r.Resolve("core.dl", "last_error", nil, h)
	if err != nil {
		t.Fatalf("last_error: %v", err)
	}
	msg, err := h.String(heap.Handle(errRet))
	if err != nil || msg == "" {
		t.Fatalf("last_error: got %q, err %v", msg, err)
	}
}

func TestChainFallsThroughToNextResolver(t *testing.T) {
	first := hostimport.ResolverFunc(func(string, string, []uint64, *heap.Heap) (uint64, bool, error) {
		return 0, false, hostimport.ErrUnknownSymbol
	})
	second := hostimport.ResolverFunc(func(mod, sym string, args []uint64, h *heap.Heap) (uint64, bool, error) {
		return 42, true, nil
	})
	chained := hostimport.Chain(first, second)

	ret, hasRet, err := chained.Resolve("anything", "anything", nil, heap.New())
	if err != nil || !hasRet || ret != 42 {
		t.Fatalf("Chain: ret=%d hasRet=%v err=%v", ret, hasRet, err)
	}
}

func TestChainReturnsUnknownWhenAllMiss(t *testing.T) {
	miss := hostimport.ResolverFunc(func(string, string, []uint64, *heap.Heap) (uint64, bool, error) {
		return 0, false, hostimport.ErrUnknownSymbol
	})
	chained := hostimport.Chain(miss, nil)
	if _, _, err := chained.Resolve("x", "y", nil, heap.New()); !errors.Is(err, hostimport.ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestNewDefaultResolverServesAllBuiltins(t *testing.T) {
	r := hostimport.NewDefaultResolver([]string{"prog"}, nil)
	h := heap.New()
	for _, mod := range []string{"core.os", "core.fs", "core.log", "core.dl"} {
		if _, _, err := r.Resolve(mod, "__definitely_missing__", nil, h); !errors.Is(err, hostimport.ErrUnknownSymbol) {
			t.Fatalf("module %s: expected ErrUnknownSymbol for a bogus symbol, got %v", mod, err)
		}
	}
	if _, _, err := r.Resolve("core.nonexistent", "anything", nil, h); !errors.Is(err, hostimport.ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol for an unregistered module, got %v", err)
	}
}
