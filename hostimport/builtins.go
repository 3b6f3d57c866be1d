package hostimport

import (
	"fmt"
	"os"
	"time"

	"github.com/sbclang/sbcvm/heap"
	"github.com/sbclang/sbcvm/sblog"
)

// CoreOS serves core.os: argv/envp access fed from values the embedder
// supplied rather than read from the real process environment, plus
// cwd_get (the process's real working directory) and a monotonic clock
// measured from when the CoreOS was constructed.
type CoreOS struct {
	Argv  []string
	Envp  map[string]string
	start time.Time
}

func NewCoreOS(argv []string, envp map[string]string) *CoreOS {
	return &CoreOS{Argv: argv, Envp: envp, start: time.Now()}
}

func (*CoreOS) Namespace() string { return "core.os" }

func (c *CoreOS) ArgsCount(args []uint64, h *heap.Heap) (uint64, bool, error) {
	return uint64(len(c.Argv)), true, nil
}

func (c *CoreOS) ArgsGet(args []uint64, h *heap.Heap) (uint64, bool, error) {
	if len(args) < 1 {
		return 0, false, fmt.Errorf("core.os.args_get: missing index")
	}
	idx := int(args[0])
	if idx < 0 || idx >= len(c.Argv) {
		return uint64(heap.Null), true, nil
	}
	return uint64(h.NewString(c.Argv[idx])), true, nil
}

func (c *CoreOS) EnvGet(args []uint64, h *heap.Heap) (uint64, bool, error) {
	if len(args) < 1 {
		return 0, false, fmt.Errorf("core.os.env_get: missing key handle")
	}
	key, err := h.String(heap.Handle(args[0]))
	if err != nil {
		return 0, false, err
	}
	v, ok := c.Envp[key]
	if !ok {
		return uint64(heap.Null), true, nil
	}
	return uint64(h.NewString(v)), true, nil
}

func (c *CoreOS) CwdGet(args []uint64, h *heap.Heap) (uint64, bool, error) {
	wd, err := os.Getwd()
	if err != nil {
		return uint64(heap.Null), true, nil
	}
	return uint64(h.NewString(wd)), true, nil
}

func (c *CoreOS) TimeMonoNs(args []uint64, h *heap.Heap) (uint64, bool, error) {
	return uint64(time.Since(c.start).Nanoseconds()), true, nil
}

// CoreFS serves core.fs: a small per-VM file descriptor table, integer
// handles distinct from heap.Handle (spec.md §4.6).
type CoreFS struct {
	files map[int64]*os.File
	next  int64
}

func NewCoreFS() *CoreFS {
	return &CoreFS{files: make(map[int64]*os.File)}
}

func (*CoreFS) Namespace() string { return "core.fs" }

// Open flags: 0 read-only, 1 write-create-truncate, 2 append-create.
func (f *CoreFS) Open(args []uint64, h *heap.Heap) (uint64, bool, error) {
	if len(args) < 2 {
		return uint64(int64(-1)), true, nil
	}
	path, err := h.String(heap.Handle(args[0]))
	if err != nil {
		return uint64(int64(-1)), true, nil
	}
	var file *os.File
	switch args[1] {
	case 1:
		file, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	case 2:
		file, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	default:
		file, err = os.Open(path)
	}
	if err != nil {
		return uint64(int64(-1)), true, nil
	}
	fd := f.next
	f.next++
	f.files[fd] = file
	return uint64(fd), true, nil
}

func (f *CoreFS) Read(args []uint64, h *heap.Heap) (uint64, bool, error) {
	if len(args) < 3 {
		return 0, true, nil
	}
	file, ok := f.files[int64(args[0])]
	if !ok {
		return 0, true, nil
	}
	bufHandle := heap.Handle(args[1])
	maxLen, err := h.ArrayLen(bufHandle)
	if err != nil {
		return 0, true, nil
	}
	if want := uint32(args[2]); want < maxLen {
		maxLen = want
	}
	buf := make([]byte, maxLen)
	n, _ := file.Read(buf)
	for i := 0; i < n; i++ {
		_ = h.ArraySetInt(bufHandle, uint32(i), uint64(buf[i]))
	}
	return uint64(n), true, nil
}

func (f *CoreFS) Write(args []uint64, h *heap.Heap) (uint64, bool, error) {
	if len(args) < 3 {
		return 0, true, nil
	}
	file, ok := f.files[int64(args[0])]
	if !ok {
		return 0, true, nil
	}
	bufHandle := heap.Handle(args[1])
	n := uint32(args[2])
	if avail, err := h.ArrayLen(bufHandle); err == nil && n > avail {
		n = avail
	}
	buf := make([]byte, n)
	for i := uint32(0); i < n; i++ {
		v, err := h.ArrayGetInt(bufHandle, i)
		if err != nil {
			break
		}
		buf[i] = byte(v)
	}
	written, _ := file.Write(buf)
	return uint64(written), true, nil
}

func (f *CoreFS) Close(args []uint64, h *heap.Heap) (uint64, bool, error) {
	if len(args) < 1 {
		return 0, true, nil
	}
	fd := int64(args[0])
	file, ok := f.files[fd]
	if !ok {
		return 0, true, nil
	}
	delete(f.files, fd)
	_ = file.Close()
	return 0, true, nil
}

// CoreLog serves core.log: host-visible module writes flow through the
// same zap logger and encoder as the engine's own diagnostics.
type CoreLog struct{}

func (CoreLog) Namespace() string { return "core.log" }

func (CoreLog) Log(args []uint64, h *heap.Heap) (uint64, bool, error) {
	if len(args) < 1 {
		return 0, false, nil
	}
	msg, err := h.String(heap.Handle(args[0]))
	if err != nil {
		msg = fmt.Sprintf("<unreadable log message: %v>", err)
	}
	sblog.L().Info(msg)
	return 0, false, nil
}

// CoreDL serves core.dl. Dynamic library loading has no portable meaning
// inside this VM's own bytecode sandbox, so open always fails and
// last_error reports why; embedders targeting a platform where dlopen is
// meaningful should wrap the resolver with their own core.dl.
type CoreDL struct {
	lastErr string
}

func (*CoreDL) Namespace() string { return "core.dl" }

func (d *CoreDL) Open(args []uint64, h *heap.Heap) (uint64, bool, error) {
	d.lastErr = "dynamic library loading is not supported by this engine"
	return uint64(int64(-1)), true, nil
}

func (d *CoreDL) LastError(args []uint64, h *heap.Heap) (uint64, bool, error) {
	if d.lastErr == "" {
		return uint64(heap.Null), true, nil
	}
	return uint64(h.NewString(d.lastErr)), true, nil
}

// NewDefaultResolver builds the registry of built-in modules the engine
// installs ahead of the embedder's own resolver (spec.md §4.6).
func NewDefaultResolver(argv []string, envp map[string]string) Resolver {
	r := NewRegistry()
	r.Register(NewCoreOS(argv, envp))
	r.Register(NewCoreFS())
	r.Register(CoreLog{})
	r.Register(&CoreDL{})
	return r
}
