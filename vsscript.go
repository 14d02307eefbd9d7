package vapoursynth

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

// ScriptError is a failed script evaluation.
type ScriptError struct {
	Filename string
	ExitCode int
	Message  string
}

func (e *ScriptError) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("script: %s", e.Message)
	}
	return fmt.Sprintf("script %s: %s", e.Filename, e.Message)
}

// Environment is a script evaluation environment. It owns its core: the
// core and every handle derived from it become invalid on Close.
type Environment struct {
	api  *API
	st   abi.ScriptTable
	ptr  abi.Script
	core *Core
	once sync.Once
}

// NewEnvironment creates an empty script environment with a fresh core.
func (a *API) NewEnvironment() (*Environment, error) {
	if err := a.require(FeatureScript); err != nil {
		return nil, err
	}
	s := a.script.CreateScript(0)
	if s == 0 {
		return nil, fmt.Errorf("create script environment: %w", ErrNotSupported)
	}
	cp := a.script.GetCore(s)
	core := &Core{api: a, ptr: cp, state: &coreState{}}
	cores.Store(cp, core)
	return &Environment{api: a, st: a.script, ptr: s, core: core}, nil
}

// EnvironmentFromScript creates an environment and evaluates text in it.
func (a *API) EnvironmentFromScript(text, filename string) (*Environment, error) {
	env, err := a.NewEnvironment()
	if err != nil {
		return nil, err
	}
	if err := env.Eval(text, filename); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

// EnvironmentFromFile creates an environment and evaluates the file at path.
func (a *API) EnvironmentFromFile(path string) (*Environment, error) {
	env, err := a.NewEnvironment()
	if err != nil {
		return nil, err
	}
	if err := env.EvalFile(path); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func (e *Environment) handle() (abi.Script, error) {
	if e == nil || e.ptr == 0 {
		return 0, ErrInvalidHandle
	}
	if err := e.core.state.check(); err != nil {
		return 0, err
	}
	return e.ptr, nil
}

// Core returns the environment's core. It is closed with the environment.
func (e *Environment) Core() *Core { return e.core }

// SetWorkingDir makes file evaluation change into the script's directory.
func (e *Environment) SetWorkingDir(enable bool) error {
	s, err := e.handle()
	if err != nil {
		return err
	}
	e.st.EvalSetWorkingDir(s, enable)
	return nil
}

// Eval evaluates script text. filename is used in error messages and for
// relative imports.
func (e *Environment) Eval(text, filename string) error {
	s, err := e.handle()
	if err != nil {
		return err
	}
	if filename == "" {
		filename = "<string>"
	}
	if e.st.EvaluateBuffer(s, text, filename) != 0 {
		return e.scriptError(s, filename)
	}
	return nil
}

// EvalFile evaluates the script file at path.
func (e *Environment) EvalFile(path string) error {
	s, err := e.handle()
	if err != nil {
		return err
	}
	if e.st.EvaluateFile(s, path) != 0 {
		return e.scriptError(s, path)
	}
	return nil
}

func (e *Environment) scriptError(s abi.Script, filename string) error {
	return &ScriptError{Filename: filename, ExitCode: e.st.GetExitCode(s), Message: e.st.GetError(s)}
}

// ExitCode returns the exit code of the last evaluation.
func (e *Environment) ExitCode() int {
	s, err := e.handle()
	if err != nil {
		return 0
	}
	return e.st.GetExitCode(s)
}

// Output returns a new reference to the node set as output index.
func (e *Environment) Output(index int) (*Node, error) {
	s, err := e.handle()
	if err != nil {
		return nil, err
	}
	n := e.st.GetOutputNode(s, index)
	if n == 0 {
		return nil, fmt.Errorf("script output %d: %w", index, ErrKeyNotFound)
	}
	return e.api.newNode(n, e.core.state), nil
}

// OutputAlpha returns the alpha node of output index, or nil when the
// output has none.
func (e *Environment) OutputAlpha(index int) (*Node, error) {
	s, err := e.handle()
	if err != nil {
		return nil, err
	}
	n := e.st.GetOutputAlphaNode(s, index)
	if n == 0 {
		return nil, nil
	}
	return e.api.newNode(n, e.core.state), nil
}

// AltOutputMode returns the alternate output mode set for index.
func (e *Environment) AltOutputMode(index int) int {
	s, err := e.handle()
	if err != nil {
		return 0
	}
	return e.st.GetAltOutputMode(s, index)
}

// Variable returns the script variable name stored under the same key of
// a new map.
func (e *Environment) Variable(name string) (*OwnedMap, error) {
	s, err := e.handle()
	if err != nil {
		return nil, err
	}
	m := e.core.NewMap()
	if e.st.GetVariable(s, name, m.ptr) != 0 {
		m.Release()
		return nil, &MapError{Op: "get variable", Key: name, Err: ErrKeyNotFound}
	}
	return m, nil
}

// SetVariables defines one script variable per key of vars.
func (e *Environment) SetVariables(vars *MapRef) error {
	s, err := e.handle()
	if err != nil {
		return err
	}
	m, err := vars.handle()
	if err != nil {
		return err
	}
	if e.st.SetVariables(s, m) != 0 {
		return &MapError{Op: "set variables", Err: ErrTypeMismatch}
	}
	return nil
}

// Close frees the environment and its core. Safe to call twice.
func (e *Environment) Close() error {
	e.once.Do(func() {
		if live := e.core.LiveHandles(); live > 0 {
			e.api.log.Warn("script environment closed with live handles", zap.Int64("handles", live))
		}
		e.core.Close()
		e.core.state.closed.Store(true)
		cores.Delete(e.core.ptr)
		e.st.FreeScript(e.ptr)
		failFrameRequests(e.core.state)
	})
	return nil
}
