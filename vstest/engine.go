// Package vstest is an in-process engine that implements the VapourSynth
// function tables in Go. It runs the real frame request protocol (initial
// activation, upstream dependencies, frames-ready and error activations)
// on a worker pool, so code built on the engine ABI can be tested without
// libvapoursynth installed.
//
// The engine ships a small "std" plugin (BlankClip, BlankAudio,
// SetFrameProps, LoadPlugin). Plugin binaries are simulated: WithPluginFile
// registers what LoadPlugin finds at a path.
package vstest

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

// Option configures an Engine.
type Option func(*Engine)

// WithVersion caps the API minor version the engine accepts. The default
// serves 4.0 and 4.1.
func WithVersion(minor int) Option {
	return func(e *Engine) { e.minor = minor }
}

// WithScript enables the script environment. fn evaluates script text.
func WithScript(fn ScriptFunc) Option {
	return func(e *Engine) { e.script = fn }
}

// WithPluginFile makes LoadPlugin(path) succeed and register spec.
func WithPluginFile(path string, spec PluginSpec) Option {
	return func(e *Engine) { e.files[path] = spec }
}

// WithWritablePlugin adds a plugin to every core that accepts
// RegisterFunction calls.
func WithWritablePlugin(id, namespace, name string) Option {
	return func(e *Engine) {
		e.writable = append(e.writable, PluginSpec{ID: id, Namespace: namespace, Name: name})
	}
}

// WithLogger receives every message passed to LogMessage.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// PluginSpec describes a simulated plugin binary. Its functions copy their
// arguments into their return map.
type PluginSpec struct {
	ID        string
	Namespace string
	Name      string
	Version   int
	// APIVersion is the packed API version the plugin requires. Zero means
	// 4.0.
	APIVersion int
	Functions  []FunctionSpec
}

// FunctionSpec is one function of a PluginSpec.
type FunctionSpec struct {
	Name    string
	Args    string
	Returns string
}

// Stats is a snapshot of the engine's object counts.
type Stats struct {
	Cores       int
	Nodes       int
	Frames      int
	Maps        int
	Functions   int
	LogHandlers int
	Scripts     int
	Requests    int

	// FilterFrees counts FilterFree callbacks delivered.
	FilterFrees int
	// FunctionFrees counts FreeFunctionData callbacks delivered.
	FunctionFrees int
	// InvalidCalls counts calls made with stale or unknown handles.
	InvalidCalls int
}

// Engine is the in-process engine. It implements the Open, OpenScript and
// OpenPlugin methods of a vapoursynth.PluginBackend.
type Engine struct {
	minor    int
	script   ScriptFunc
	log      *zap.Logger
	files    map[string]PluginSpec
	inits    map[string]PluginInit
	writable []PluginSpec

	mu       sync.Mutex
	objects  map[uintptr]any
	counters Stats
	// cb serves cores created by scripts: the callbacks of the first
	// table opened.
	cb *abi.Callbacks
}

var lastID atomic.Uintptr

// nextID returns a fresh handle. Handles are unique across engines so a
// stale handle from one engine never resolves in another.
func nextID() uintptr { return lastID.Add(8) + 0x10000 }

// New returns an engine with no cores.
func New(opts ...Option) *Engine {
	e := &Engine{
		minor:   abi.APIMinor,
		log:     zap.NewNop(),
		files:   make(map[string]PluginSpec),
		inits:   make(map[string]PluginInit),
		objects: make(map[uintptr]any),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Open returns a function table for the packed version.
func (e *Engine) Open(version int, cb *abi.Callbacks) (abi.Table, error) {
	major, minor := abi.SplitVersion(version)
	if major != abi.APIMajor || minor > e.minor {
		return nil, fmt.Errorf("%w: test engine refused API %d.%d", abi.ErrNotSupported, major, minor)
	}
	if cb == nil {
		return nil, fmt.Errorf("open API %d.%d: nil callbacks", major, minor)
	}
	e.mu.Lock()
	if e.cb == nil {
		e.cb = cb
	}
	e.mu.Unlock()
	return &table{e: e, cb: cb, minor: minor}, nil
}

// OpenScript returns the script table when WithScript was given.
func (e *Engine) OpenScript(version int) (abi.ScriptTable, error) {
	major, minor := abi.SplitVersion(version)
	if e.script == nil {
		return nil, fmt.Errorf("%w: test engine has no script evaluator", abi.ErrNotSupported)
	}
	if major != abi.ScriptAPIMajor || minor > abi.ScriptAPIMinor {
		return nil, fmt.Errorf("%w: test engine refused script API %d.%d", abi.ErrNotSupported, major, minor)
	}
	return &scriptTable{e: e, minor: minor}, nil
}

// Stats returns the current object counts.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.counters
	for _, o := range e.objects {
		switch o.(type) {
		case *coreObj:
			s.Cores++
		case *nodeObj:
			s.Nodes++
		case *frameObj:
			s.Frames++
		case *mapObj:
			s.Maps++
		case *funcObj:
			s.Functions++
		case *logObj:
			s.LogHandlers++
		case *scriptObj:
			s.Scripts++
		case *request:
			s.Requests++
		}
	}
	return s
}

// RefCount returns the reference count of a node, frame or function
// handle, or zero when the handle is not live.
func (e *Engine) RefCount(h uintptr) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch o := e.objects[h].(type) {
	case *nodeObj:
		return o.refs
	case *frameObj:
		return o.refs
	case *funcObj:
		return o.refs
	}
	return 0
}

// deferred collects callbacks into Go code that must run after the engine
// lock is released.
type deferred struct {
	fns []func()
}

func (d *deferred) add(fn func()) { d.fns = append(d.fns, fn) }

func (d *deferred) run() {
	for _, fn := range d.fns {
		fn()
	}
}

// locked runs fn under the engine lock, then runs whatever fn deferred.
func (e *Engine) locked(fn func(d *deferred)) {
	var d deferred
	e.mu.Lock()
	fn(&d)
	e.mu.Unlock()
	d.run()
}

// lookup resolves a handle to an object of type T. Misses are counted as
// invalid calls. Callers hold e.mu.
func lookup[T any](e *Engine, h uintptr) (T, bool) {
	v, ok := e.objects[h].(T)
	if !ok {
		e.counters.InvalidCalls++
	}
	return v, ok
}

func (e *Engine) register(h uintptr, o any) { e.objects[h] = o }
