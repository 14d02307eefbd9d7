package vapoursynth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/vapoursynth/vstest"
)

func TestEnvironmentOutputs(t *testing.T) {
	api, e := newTestAPI(t, vstest.WithScript(evalScript))
	require.True(t, api.Supports(FeatureScript))

	env, err := api.EnvironmentFromScript("blank 6", "clip.vpy")
	require.NoError(t, err)
	out, err := env.Output(0)
	require.NoError(t, err)
	assert.Equal(t, 6, out.NumFrames())
	alpha, err := env.OutputAlpha(0)
	require.NoError(t, err)
	assert.Nil(t, alpha)
	assert.Zero(t, env.AltOutputMode(0))
	_, err = env.Output(1)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	f, err := out.GetFrame(5)
	require.NoError(t, err)
	f.Release()

	require.NoError(t, env.Close())
	require.NoError(t, env.Close())
	assert.False(t, out.Valid())
	out.Release()
	stats := e.Stats()
	assert.Zero(t, stats.Scripts)
	assert.Zero(t, stats.Cores)
	assert.Zero(t, stats.InvalidCalls)
}

func TestEnvironmentErrors(t *testing.T) {
	api, _ := newTestAPI(t, vstest.WithScript(evalScript))

	_, err := api.EnvironmentFromScript("fail", "abort.vpy")
	var se *ScriptError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.ExitCode)
	assert.Equal(t, "abort.vpy", se.Filename)
	assert.EqualError(t, err, "script abort.vpy: script aborted")

	env, err := api.NewEnvironment()
	require.NoError(t, err)
	defer env.Close()
	err = env.Eval("copy undefined x", "")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "<string>", se.Filename)
	assert.Equal(t, "name 'undefined' is not defined", se.Message)
	assert.Equal(t, 1, env.ExitCode())
}

func TestEnvironmentVariables(t *testing.T) {
	api, _ := newTestAPI(t, vstest.WithScript(evalScript))
	env, err := api.NewEnvironment()
	require.NoError(t, err)
	defer env.Close()

	vars := env.Core().NewMap()
	defer vars.Release()
	require.NoError(t, vars.SetString("source", "input.y4m"))
	require.NoError(t, env.SetVariables(vars.Ref()))
	require.NoError(t, env.Eval("copy source target", "vars.vpy"))

	v, err := env.Variable("target")
	require.NoError(t, err)
	defer v.Release()
	s, err := v.String("target")
	require.NoError(t, err)
	assert.Equal(t, "input.y4m", s)

	_, err = env.Variable("missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestEnvironmentFromFile(t *testing.T) {
	api, _ := newTestAPI(t, vstest.WithScript(evalScript))
	path := filepath.Join(t.TempDir(), "clip.vpy")
	require.NoError(t, os.WriteFile(path, []byte("blank 2\n"), 0o644))

	env, err := api.EnvironmentFromFile(path)
	require.NoError(t, err)
	defer env.Close()
	require.NoError(t, env.SetWorkingDir(true))
	require.NoError(t, env.EvalFile(path))
	out, err := env.Output(0)
	require.NoError(t, err)
	defer out.Release()
	assert.Equal(t, 2, out.NumFrames())

	_, err = api.EnvironmentFromFile(filepath.Join(t.TempDir(), "missing.vpy"))
	var se *ScriptError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Message, "Failed to read")
}

func TestEnvironmentRequiresScript(t *testing.T) {
	api, _ := newTestAPI(t)
	_, err := api.NewEnvironment()
	var fe *FeatureError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, FeatureScript, fe.Feature)
	assert.EqualError(t, err, "script environment not available")
}
