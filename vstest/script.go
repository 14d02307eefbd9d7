package vstest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

// ScriptFunc evaluates script text inside sc. A returned error fails the
// evaluation; its text becomes the script error.
type ScriptFunc func(sc *ScriptContext, text, filename string) error

// ExitError fails an evaluation with a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

type output struct {
	node    uintptr
	alpha   uintptr
	altMode int
}

type scriptObj struct {
	id       uintptr
	core     *coreObj
	vars     *mapObj
	outputs  map[int]output
	err      string
	exitCode int
	chdir    bool
}

// ScriptContext is what a ScriptFunc sees of the environment being
// evaluated.
type ScriptContext struct {
	t *table
	s *scriptObj
}

// Core returns the environment's core.
func (sc *ScriptContext) Core() abi.Core { return abi.Core(sc.s.core.id) }

// API returns a function table bound to the environment's core callbacks.
func (sc *ScriptContext) API() abi.Table { return sc.t }

// WorkingDir reports whether file evaluation runs in the script's
// directory.
func (sc *ScriptContext) WorkingDir() bool {
	sc.t.e.mu.Lock()
	defer sc.t.e.mu.Unlock()
	return sc.s.chdir
}

// Invoke calls ns.name with args and returns the "clip" it produced, or
// zero for functions that return no clip. The caller owns the returned
// reference.
func (sc *ScriptContext) Invoke(ns, name string, args map[string]any) (abi.Node, error) {
	t := sc.t
	p := t.GetPluginByNamespace(ns, sc.Core())
	if p == 0 {
		return 0, fmt.Errorf("no plugin with namespace %s", ns)
	}
	in := t.CreateMap()
	defer t.FreeMap(in)
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := setArg(t, in, k, args[k]); err != nil {
			return 0, err
		}
	}
	out := t.Invoke(p, name, in)
	defer t.FreeMap(out)
	if msg, failed := t.MapGetError(out); failed {
		return 0, errors.New(msg)
	}
	node, perr := t.MapGetNode(out, "clip", 0)
	if perr != abi.PropSuccess {
		return 0, nil
	}
	return node, nil
}

func setArg(t *table, m abi.Map, key string, v any) error {
	var ok bool
	switch v := v.(type) {
	case int:
		ok = t.MapSetInt(m, key, int64(v), abi.MapReplace)
	case int64:
		ok = t.MapSetInt(m, key, v, abi.MapReplace)
	case []int64:
		ok = t.MapSetIntArray(m, key, v)
	case float64:
		ok = t.MapSetFloat(m, key, v, abi.MapReplace)
	case []float64:
		ok = t.MapSetFloatArray(m, key, v)
	case string:
		ok = t.MapSetData(m, key, []byte(v), abi.DataUTF8, abi.MapReplace)
	case []byte:
		ok = t.MapSetData(m, key, v, abi.DataBinary, abi.MapReplace)
	case abi.Node:
		ok = t.MapSetNode(m, key, v, abi.MapReplace)
	case abi.Function:
		ok = t.MapSetFunction(m, key, v, abi.MapReplace)
	default:
		return fmt.Errorf("argument %s: unsupported type %T", key, v)
	}
	if !ok {
		return fmt.Errorf("argument %s: cannot store %T", key, v)
	}
	return nil
}

// SetOutput sets output index. It takes over the caller's references to
// clip and alpha; alpha may be zero.
func (sc *ScriptContext) SetOutput(index int, clip, alpha abi.Node) {
	sc.t.e.locked(func(d *deferred) {
		s := sc.s
		if old, ok := s.outputs[index]; ok {
			sc.t.e.release(d, old.node)
			sc.t.e.release(d, old.alpha)
		}
		s.outputs[index] = output{node: uintptr(clip), alpha: uintptr(alpha)}
	})
}

// SetAltOutputMode sets the alternate output mode of an existing output.
func (sc *ScriptContext) SetAltOutputMode(index, mode int) {
	sc.t.e.locked(func(*deferred) {
		if o, ok := sc.s.outputs[index]; ok {
			o.altMode = mode
			sc.s.outputs[index] = o
		}
	})
}

// Var returns the first element of variable name. Data is returned as a
// string; node, frame and function handles are borrowed.
func (sc *ScriptContext) Var(name string) (any, bool) {
	sc.t.e.mu.Lock()
	defer sc.t.e.mu.Unlock()
	p, ok := sc.s.vars.props[name]
	if !ok || len(p.elems) == 0 {
		return nil, false
	}
	if dv, ok := p.elems[0].(dataValue); ok {
		return string(dv.b), true
	}
	return p.elems[0], true
}

// SetVar defines variable name. v is stored the way Invoke stores
// arguments.
func (sc *ScriptContext) SetVar(name string, v any) error {
	m := sc.t.CreateMap()
	defer sc.t.FreeMap(m)
	if err := setArg(sc.t, m, name, v); err != nil {
		return err
	}
	sc.t.e.locked(func(d *deferred) {
		if src, ok := lookup[*mapObj](sc.t.e, uintptr(m)); ok {
			sc.t.e.copyKey(d, src, sc.s.vars, name)
		}
	})
	return nil
}

// scriptTable implements the script API on top of the engine.
type scriptTable struct {
	e     *Engine
	minor int
}

var _ abi.ScriptTable = (*scriptTable)(nil)

func (st *scriptTable) GetAPIVersion() int {
	return abi.MakeVersion(abi.ScriptAPIMajor, abi.ScriptAPIMinor)
}

func (st *scriptTable) withScript(h abi.Script, fn func(d *deferred, s *scriptObj)) {
	st.e.locked(func(d *deferred) {
		if s, ok := lookup[*scriptObj](st.e, uintptr(h)); ok {
			fn(d, s)
		}
	})
}

// CreateScript creates an environment. A nonzero core is taken over by
// the environment; zero creates a new core.
func (st *scriptTable) CreateScript(core abi.Core) abi.Script {
	var h abi.Script
	st.e.locked(func(*deferred) {
		var c *coreObj
		if core != 0 {
			var ok bool
			if c, ok = lookup[*coreObj](st.e, uintptr(core)); !ok {
				return
			}
		} else {
			if st.e.cb == nil {
				return
			}
			c = st.e.newCore(st.e.cb, 0)
		}
		s := &scriptObj{
			id:      nextID(),
			core:    c,
			vars:    newMap(),
			outputs: make(map[int]output),
		}
		c.script = s
		st.e.register(s.id, s)
		h = abi.Script(s.id)
	})
	return h
}

func (st *scriptTable) GetCore(h abi.Script) abi.Core {
	var c abi.Core
	st.withScript(h, func(_ *deferred, s *scriptObj) { c = abi.Core(s.core.id) })
	return c
}

func (st *scriptTable) EvaluateBuffer(h abi.Script, buffer, filename string) int {
	var s *scriptObj
	st.withScript(h, func(_ *deferred, so *scriptObj) { s = so })
	if s == nil {
		return 1
	}
	return st.evaluate(s, buffer, filename)
}

func (st *scriptTable) evaluate(s *scriptObj, text, filename string) int {
	sc := &ScriptContext{t: &table{e: st.e, cb: s.core.cb, minor: st.e.minor}, s: s}
	err := st.e.script(sc, text, filename)

	st.e.mu.Lock()
	defer st.e.mu.Unlock()
	if err == nil {
		s.err, s.exitCode = "", 0
		return 0
	}
	s.err, s.exitCode = err.Error(), 1
	var exit *ExitError
	if errors.As(err, &exit) {
		s.exitCode = exit.Code
	}
	return 1
}

// EvaluateFile reads filename and evaluates it. With EvalSetWorkingDir the
// process working directory is the script's directory during evaluation.
func (st *scriptTable) EvaluateFile(h abi.Script, filename string) int {
	var (
		s     *scriptObj
		chdir bool
	)
	st.withScript(h, func(_ *deferred, so *scriptObj) { s, chdir = so, so.chdir })
	if s == nil {
		return 1
	}
	text, err := os.ReadFile(filename)
	if err != nil {
		st.e.mu.Lock()
		s.err, s.exitCode = fmt.Sprintf("Failed to read %s: %v", filename, err), 1
		st.e.mu.Unlock()
		return 1
	}
	if chdir {
		prev, err := os.Getwd()
		if err == nil && os.Chdir(filepath.Dir(filename)) == nil {
			defer os.Chdir(prev)
		}
	}
	return st.evaluate(s, string(text), filename)
}

func (st *scriptTable) GetError(h abi.Script) (msg string) {
	st.withScript(h, func(_ *deferred, s *scriptObj) { msg = s.err })
	return msg
}

func (st *scriptTable) GetExitCode(h abi.Script) (code int) {
	st.withScript(h, func(_ *deferred, s *scriptObj) { code = s.exitCode })
	return code
}

func (st *scriptTable) GetVariable(h abi.Script, name string, dst abi.Map) int {
	rc := 1
	st.withScript(h, func(d *deferred, s *scriptObj) {
		m, ok := lookup[*mapObj](st.e, uintptr(dst))
		if ok && st.e.copyKey(d, s.vars, m, name) {
			rc = 0
		}
	})
	return rc
}

func (st *scriptTable) SetVariables(h abi.Script, vars abi.Map) int {
	rc := 1
	st.withScript(h, func(d *deferred, s *scriptObj) {
		if m, ok := lookup[*mapObj](st.e, uintptr(vars)); ok {
			st.e.copyInto(d, m, s.vars)
			rc = 0
		}
	})
	return rc
}

func (st *scriptTable) outputRef(h abi.Script, index int, pick func(output) uintptr) abi.Node {
	var n abi.Node
	st.withScript(h, func(_ *deferred, s *scriptObj) {
		o, ok := s.outputs[index]
		if ok && pick(o) != 0 && st.e.acquire(pick(o)) {
			n = abi.Node(pick(o))
		}
	})
	return n
}

func (st *scriptTable) GetOutputNode(h abi.Script, index int) abi.Node {
	return st.outputRef(h, index, func(o output) uintptr { return o.node })
}

func (st *scriptTable) GetOutputAlphaNode(h abi.Script, index int) abi.Node {
	return st.outputRef(h, index, func(o output) uintptr { return o.alpha })
}

func (st *scriptTable) GetAltOutputMode(h abi.Script, index int) (mode int) {
	st.withScript(h, func(_ *deferred, s *scriptObj) { mode = s.outputs[index].altMode })
	return mode
}

func (st *scriptTable) EvalSetWorkingDir(h abi.Script, setCWD bool) {
	st.withScript(h, func(_ *deferred, s *scriptObj) { s.chdir = setCWD })
}

// FreeScript drops the environment's outputs and variables, then frees its
// core.
func (st *scriptTable) FreeScript(h abi.Script) {
	var c *coreObj
	st.withScript(h, func(d *deferred, s *scriptObj) {
		for _, o := range s.outputs {
			st.e.release(d, o.node)
			st.e.release(d, o.alpha)
		}
		s.outputs = nil
		st.e.clearMap(d, s.vars)
		delete(st.e.objects, s.id)
		c = s.core
		c.script = nil
	})
	if c != nil {
		st.e.freeCore(c)
	}
}
