package vstest

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

type filterFunc func(n int, reason abi.ActivationReason, frameData *uintptr, ctx abi.FrameContext, core abi.Core) abi.Frame

type publicFunc func(in, out abi.Map, core abi.Core)

type asyncResult struct {
	f   abi.Frame
	n   int
	err string
}

// harness routes engine callbacks to Go closures keyed by instance or
// user data.
type harness struct {
	e    *Engine
	api  abi.Table
	core abi.Core

	mu        sync.Mutex
	next      uintptr
	filters   map[uintptr]filterFunc
	funcs     map[uintptr]publicFunc
	done      map[uintptr]chan asyncResult
	freed     []uintptr
	funcFrees []uintptr
	logs      []string
	logFrees  []uintptr
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		e:       New(opts...),
		next:    1,
		filters: make(map[uintptr]filterFunc),
		funcs:   make(map[uintptr]publicFunc),
		done:    make(map[uintptr]chan asyncResult),
	}
	api, err := h.e.Open(abi.MakeVersion(abi.APIMajor, h.e.minor), h.callbacks())
	require.NoError(t, err)
	h.api = api
	h.core = api.CreateCore(0)
	require.NotZero(t, h.core)
	t.Cleanup(func() { h.api.FreeCore(h.core) })
	return h
}

func (h *harness) callbacks() *abi.Callbacks {
	return &abi.Callbacks{
		FilterGetFrame: func(n int, reason abi.ActivationReason, instance uintptr, frameData *uintptr, ctx abi.FrameContext, core abi.Core) abi.Frame {
			h.mu.Lock()
			fn := h.filters[instance]
			h.mu.Unlock()
			return fn(n, reason, frameData, ctx, core)
		},
		FilterFree: func(instance uintptr, _ abi.Core) {
			h.mu.Lock()
			h.freed = append(h.freed, instance)
			h.mu.Unlock()
		},
		PublicFunction: func(in, out abi.Map, userData uintptr, core abi.Core) {
			h.mu.Lock()
			fn := h.funcs[userData]
			h.mu.Unlock()
			fn(in, out, core)
		},
		FreeFunctionData: func(userData uintptr) {
			h.mu.Lock()
			h.funcFrees = append(h.funcFrees, userData)
			h.mu.Unlock()
		},
		FrameDone: func(userData uintptr, f abi.Frame, n int, _ abi.Node, errMsg string) {
			h.mu.Lock()
			ch := h.done[userData]
			h.mu.Unlock()
			ch <- asyncResult{f: f, n: n, err: errMsg}
		},
		LogHandler: func(_ abi.MessageType, msg string, _ uintptr) {
			h.mu.Lock()
			h.logs = append(h.logs, msg)
			h.mu.Unlock()
		},
		LogHandlerFree: func(userData uintptr) {
			h.mu.Lock()
			h.logFrees = append(h.logFrees, userData)
			h.mu.Unlock()
		},
	}
}

func (h *harness) id() uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	return h.next
}

func (h *harness) filter(fn filterFunc) uintptr {
	id := h.id()
	h.mu.Lock()
	h.filters[id] = fn
	h.mu.Unlock()
	return id
}

func (h *harness) function(fn publicFunc) uintptr {
	id := h.id()
	h.mu.Lock()
	h.funcs[id] = fn
	h.mu.Unlock()
	return id
}

func (h *harness) async(buf int) (uintptr, chan asyncResult) {
	id := h.id()
	ch := make(chan asyncResult, buf)
	h.mu.Lock()
	h.done[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *harness) freedFilters() []uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uintptr(nil), h.freed...)
}

// invoke calls ns.name and fails the test on an engine error.
func (h *harness) invoke(t *testing.T, ns, name string, set func(m abi.Map)) abi.Map {
	t.Helper()
	p := h.api.GetPluginByNamespace(ns, h.core)
	require.NotZero(t, p, "plugin %s", ns)
	in := h.api.CreateMap()
	defer h.api.FreeMap(in)
	if set != nil {
		set(in)
	}
	out := h.api.Invoke(p, name, in)
	msg, failed := h.api.MapGetError(out)
	require.False(t, failed, msg)
	return out
}

// invokeErr calls ns.name and returns the engine's error message.
func (h *harness) invokeErr(t *testing.T, ns, name string, set func(m abi.Map)) string {
	t.Helper()
	p := h.api.GetPluginByNamespace(ns, h.core)
	require.NotZero(t, p, "plugin %s", ns)
	in := h.api.CreateMap()
	defer h.api.FreeMap(in)
	if set != nil {
		set(in)
	}
	out := h.api.Invoke(p, name, in)
	defer h.api.FreeMap(out)
	msg, failed := h.api.MapGetError(out)
	require.True(t, failed, "expected %s.%s to fail", ns, name)
	return msg
}

// blank returns a new 8-bit gray BlankClip node of the given length.
func (h *harness) blank(t *testing.T, length int) abi.Node {
	t.Helper()
	gray8 := abi.VideoFormatID(abi.ColorFamilyGray, abi.SampleTypeInteger, 8, 0, 0)
	out := h.invoke(t, "std", "BlankClip", func(m abi.Map) {
		h.api.MapSetInt(m, "width", 16, abi.MapReplace)
		h.api.MapSetInt(m, "height", 8, abi.MapReplace)
		h.api.MapSetInt(m, "length", int64(length), abi.MapReplace)
		h.api.MapSetInt(m, "format", int64(gray8), abi.MapReplace)
		h.api.MapSetFloat(m, "color", 7, abi.MapReplace)
	})
	defer h.api.FreeMap(out)
	node, perr := h.api.MapGetNode(out, "clip", 0)
	require.Equal(t, abi.PropSuccess, perr)
	return node
}

func (h *harness) videoFilter(t *testing.T, name string, vi abi.VideoInfo, mode abi.FilterMode, deps []abi.FilterDependency, fn filterFunc) abi.Node {
	t.Helper()
	node := h.api.CreateVideoFilter2(name, &vi, mode, deps, h.filter(fn), h.core)
	require.NotZero(t, node)
	return node
}

func plane(api abi.Table, f abi.Frame, p int) []byte {
	ptr := api.GetReadPtr(f, p)
	return unsafe.Slice((*byte)(ptr), api.GetStride(f, p)*api.GetFrameHeight(f, p))
}
