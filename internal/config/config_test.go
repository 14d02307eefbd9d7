package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vspipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, -1, cfg.Pipe.End)
	assert.Equal(t, "raw", cfg.Pipe.Container)
}

func TestLoadFileAndOverrides(t *testing.T) {
	path := writeFile(t, `
log:
  level: debug
  format: json
core:
  threads: 4
  plugins:
    - /usr/lib/vapoursynth/libffms2.so
pipe:
  container: y4m
  requests: 8
  props: [_PictType, _Matrix]
rtp:
  address: 127.0.0.1:5004
`)
	cfg, err := Load(path, map[string]any{
		"pipe.start":     "10",
		"pipe.props":     "_Combed,_Matrix",
		"metrics.listen": ":2112",
	})
	require.NoError(t, err)

	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, cfg.Log)
	assert.Equal(t, 4, cfg.Core.Threads)
	assert.Equal(t, []string{"/usr/lib/vapoursynth/libffms2.so"}, cfg.Core.Plugins)
	assert.Equal(t, "y4m", cfg.Pipe.Container)
	assert.Equal(t, 8, cfg.Pipe.Requests)
	assert.Equal(t, 10, cfg.Pipe.Start, "weakly typed override")
	assert.Equal(t, -1, cfg.Pipe.End, "default kept")
	assert.Equal(t, []string{"_Combed", "_Matrix"}, cfg.Pipe.Props)
	assert.Equal(t, "127.0.0.1:5004", cfg.RTP.Address)
	assert.Equal(t, 1200, cfg.RTP.MTU)
	assert.Equal(t, ":2112", cfg.Metrics.Listen)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "read config")

	_, err = Load(writeFile(t, "pipe: [1, 2"), nil)
	assert.ErrorContains(t, err, "parse config")

	_, err = Load(writeFile(t, "pipe:\n  colour: red\n"), nil)
	assert.ErrorContains(t, err, "colour")

	_, err = Load("", map[string]any{"pipe.container": "mkv", "log.level": "loud"})
	assert.ErrorContains(t, err, `pipe.container "mkv"`)
	assert.ErrorContains(t, err, "log.level")

	_, err = Load(writeFile(t, "log: debug\n"), map[string]any{"log.level": "info"})
	assert.ErrorContains(t, err, "log is not a section")
}

func TestSet(t *testing.T) {
	raw := map[string]any{}
	require.NoError(t, Set(raw, "a.b.c", 1))
	require.NoError(t, Set(raw, "a.d", 2))
	assert.Equal(t, map[string]any{"a": map[string]any{"b": map[string]any{"c": 1}, "d": 2}}, raw)
}

func TestLogger(t *testing.T) {
	l, err := LogConfig{Level: "warn", Format: "json"}.Logger()
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(-1))
	assert.True(t, l.Core().Enabled(1))

	_, err = LogConfig{Level: "nope"}.Logger()
	assert.Error(t, err)
}
