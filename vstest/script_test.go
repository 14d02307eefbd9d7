package vstest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

// runScript interprets a tiny command language: one command per line.
func runScript(sc *ScriptContext, text, _ string) error {
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		switch f := strings.Fields(line); f[0] {
		case "blank":
			clip, err := sc.Invoke("std", "BlankClip", map[string]any{"length": 3, "width": 8, "height": 8})
			if err != nil {
				return err
			}
			sc.SetOutput(0, clip, 0)
		case "bad":
			_, err := sc.Invoke("std", "BlankClip", map[string]any{"width": -1})
			return err
		case "set":
			if err := sc.SetVar(f[1], f[2]); err != nil {
				return err
			}
		case "copy":
			v, ok := sc.Var(f[1])
			if !ok {
				return errors.New("undefined " + f[1])
			}
			if err := sc.SetVar(f[2], v); err != nil {
				return err
			}
		case "exit":
			return &ExitError{Code: 3, Message: "exit requested"}
		}
	}
	return nil
}

func newScriptEngine(t *testing.T) (*Engine, abi.ScriptTable) {
	t.Helper()
	e := New(WithScript(runScript))
	api, err := e.Open(abi.MakeVersion(4, 1), &abi.Callbacks{
		FilterFree:       func(uintptr, abi.Core) {},
		FreeFunctionData: func(uintptr) {},
		LogHandlerFree:   func(uintptr) {},
	})
	require.NoError(t, err)
	require.NotNil(t, api)
	st, err := e.OpenScript(abi.MakeVersion(4, 1))
	require.NoError(t, err)
	return e, st
}

func TestScriptOutputs(t *testing.T) {
	e, st := newScriptEngine(t)
	s := st.CreateScript(0)
	require.NotZero(t, s)
	require.NotZero(t, st.GetCore(s))

	require.Zero(t, st.EvaluateBuffer(s, "blank", "test.vpy"))
	node := st.GetOutputNode(s, 0)
	require.NotZero(t, node)
	assert.Equal(t, 2, e.RefCount(uintptr(node)))
	assert.Zero(t, st.GetOutputAlphaNode(s, 0))
	assert.Zero(t, st.GetOutputNode(s, 1))

	st.FreeScript(s)
	stats := e.Stats()
	assert.Zero(t, stats.Scripts)
	assert.Zero(t, stats.Cores)
	assert.Zero(t, stats.Nodes)
}

func TestScriptErrors(t *testing.T) {
	_, st := newScriptEngine(t)
	s := st.CreateScript(0)
	defer st.FreeScript(s)

	assert.Equal(t, 1, st.EvaluateBuffer(s, "bad", "bad.vpy"))
	assert.Equal(t, "BlankClip: invalid width or height", st.GetError(s))
	assert.Equal(t, 1, st.GetExitCode(s))

	assert.Equal(t, 1, st.EvaluateBuffer(s, "exit", "exit.vpy"))
	assert.Equal(t, "exit requested", st.GetError(s))
	assert.Equal(t, 3, st.GetExitCode(s))

	assert.Zero(t, st.EvaluateBuffer(s, "set a b", "ok.vpy"))
	assert.Empty(t, st.GetError(s))
	assert.Zero(t, st.GetExitCode(s))
}

func TestScriptVariables(t *testing.T) {
	e, st := newScriptEngine(t)
	api, err := e.Open(abi.MakeVersion(4, 1), &abi.Callbacks{})
	require.NoError(t, err)
	s := st.CreateScript(0)
	defer st.FreeScript(s)

	vars := api.CreateMap()
	defer api.FreeMap(vars)
	api.MapSetData(vars, "src", []byte("input.mkv"), abi.DataUTF8, abi.MapReplace)
	require.Zero(t, st.SetVariables(s, vars))

	require.Zero(t, st.EvaluateBuffer(s, "copy src dst", "vars.vpy"))
	dst := api.CreateMap()
	defer api.FreeMap(dst)
	require.Zero(t, st.GetVariable(s, "dst", dst))
	v, _ := api.MapGetData(dst, "dst", 0)
	assert.Equal(t, "input.mkv", string(v))

	assert.NotZero(t, st.GetVariable(s, "missing", dst))
}

func TestScriptFile(t *testing.T) {
	_, st := newScriptEngine(t)
	s := st.CreateScript(0)
	defer st.FreeScript(s)

	path := filepath.Join(t.TempDir(), "clip.vpy")
	require.NoError(t, os.WriteFile(path, []byte("blank\n"), 0o644))
	require.Zero(t, st.EvaluateFile(s, path))
	assert.Equal(t, 1, st.EvaluateFile(s, filepath.Join(t.TempDir(), "missing.vpy")))
	assert.Contains(t, st.GetError(s), "Failed to read")
}

func TestCreateScriptNeedsCallbacks(t *testing.T) {
	e := New(WithScript(runScript))
	st, err := e.OpenScript(abi.MakeVersion(4, 0))
	require.NoError(t, err)
	assert.Zero(t, st.CreateScript(0), "no table opened yet")
}
