//go:build darwin || linux

package native

import (
	"fmt"
	"sync"

	"github.com/ebitengine/purego"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

// library is one lazily opened shared library.
type library struct {
	base     string
	explicit string
	symbol   string

	once   sync.Once
	handle uintptr
	entry  func(version int32) uintptr
	path   string
	err    error
}

func (l *library) load() error {
	l.once.Do(func() {
		var lastErr error
		for _, path := range libraryPaths(l.explicit, l.base) {
			h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
			if err != nil {
				lastErr = err
				continue
			}
			sym, err := purego.Dlsym(h, l.symbol)
			if err != nil {
				lastErr = err
				continue
			}
			purego.RegisterFunc(&l.entry, sym)
			l.handle = h
			l.path = path
			return
		}
		l.err = fmt.Errorf("%w: lib%s (last error: %v)", abi.ErrLibraryNotFound, l.base, lastErr)
	})
	return l.err
}

// Backend loads libvapoursynth and libvapoursynth-script on first use.
type Backend struct {
	cfg    Config
	core   library
	script library

	mu      sync.Mutex
	tables  map[int]*table
	scripts map[int]*scriptTable
}

// NewBackend returns a backend for cfg. Nothing is loaded until Open.
func NewBackend(cfg Config) *Backend {
	return &Backend{
		cfg:     cfg,
		core:    library{base: "vapoursynth", explicit: cfg.LibraryPath, symbol: "getVapourSynthAPI"},
		script:  library{base: "vapoursynth-script", explicit: cfg.ScriptLibraryPath, symbol: "getVSScriptAPI"},
		tables:  make(map[int]*table),
		scripts: make(map[int]*scriptTable),
	}
}

// Path returns the path the core library was loaded from.
func (b *Backend) Path() string { return b.core.path }

// Open returns the VSAPI table for version.
func (b *Backend) Open(version int, cb *abi.Callbacks) (abi.Table, error) {
	if err := b.core.load(); err != nil {
		return nil, err
	}
	initCallbacks(cb)

	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.tables[version]; ok {
		return t, nil
	}
	p := b.core.entry(int32(version))
	if p == 0 {
		major, minor := abi.SplitVersion(version)
		return nil, fmt.Errorf("%w: engine refused API %d.%d", abi.ErrNotSupported, major, minor)
	}
	_, minor := abi.SplitVersion(version)
	t := &table{a: bindAPI(p, minor)}
	b.tables[version] = t
	return t, nil
}

// OpenScript returns the VSSCRIPTAPI table for version.
func (b *Backend) OpenScript(version int) (abi.ScriptTable, error) {
	if err := b.script.load(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.scripts[version]; ok {
		return t, nil
	}
	p := b.script.entry(int32(version))
	if p == 0 {
		major, minor := abi.SplitVersion(version)
		return nil, fmt.Errorf("%w: script library refused API %d.%d", abi.ErrNotSupported, major, minor)
	}
	t := &scriptTable{s: bindScriptAPI(p)}
	b.scripts[version] = t
	return t, nil
}

// scriptTable implements abi.ScriptTable.
type scriptTable struct {
	s *vsscriptapi
}

var _ abi.ScriptTable = (*scriptTable)(nil)

func (t *scriptTable) GetAPIVersion() int { return int(t.s.getAPIVersion()) }

func (t *scriptTable) CreateScript(core abi.Core) abi.Script {
	return abi.Script(t.s.createScript(uintptr(core)))
}

func (t *scriptTable) GetCore(s abi.Script) abi.Core { return abi.Core(t.s.getCore(uintptr(s))) }

func (t *scriptTable) EvaluateBuffer(s abi.Script, buffer, filename string) int {
	return int(t.s.evaluateBuffer(uintptr(s), buffer, filename))
}

func (t *scriptTable) EvaluateFile(s abi.Script, filename string) int {
	return int(t.s.evaluateFile(uintptr(s), filename))
}

func (t *scriptTable) GetError(s abi.Script) string { return goString(t.s.getError(uintptr(s))) }
func (t *scriptTable) GetExitCode(s abi.Script) int { return int(t.s.getExitCode(uintptr(s))) }

func (t *scriptTable) GetVariable(s abi.Script, name string, dst abi.Map) int {
	return int(t.s.getVariable(uintptr(s), name, uintptr(dst)))
}

func (t *scriptTable) SetVariables(s abi.Script, vars abi.Map) int {
	return int(t.s.setVariables(uintptr(s), uintptr(vars)))
}

func (t *scriptTable) GetOutputNode(s abi.Script, index int) abi.Node {
	return abi.Node(t.s.getOutputNode(uintptr(s), int32(index)))
}

func (t *scriptTable) GetOutputAlphaNode(s abi.Script, index int) abi.Node {
	return abi.Node(t.s.getOutputAlphaNode(uintptr(s), int32(index)))
}

func (t *scriptTable) GetAltOutputMode(s abi.Script, index int) int {
	return int(t.s.getAltOutputMode(uintptr(s), int32(index)))
}

func (t *scriptTable) FreeScript(s abi.Script) { t.s.freeScript(uintptr(s)) }

func (t *scriptTable) EvalSetWorkingDir(s abi.Script, setCWD bool) {
	t.s.evalSetWorkingDir(uintptr(s), boolInt(setCWD))
}
