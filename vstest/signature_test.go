package vstest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		in      string
		want    []argSpec
		extra   bool
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "clip:vnode;", want: []argSpec{{name: "clip", typ: "vnode"}}},
		{in: "planes:int[]:opt:empty;", want: []argSpec{{name: "planes", typ: "int", array: true, optional: true, empty: true}}},
		{in: "clip:vnode;any", want: []argSpec{{name: "clip", typ: "vnode"}}, extra: true},
		{in: "x:int;x:float;", wantErr: true},
		{in: "x:complex;", wantErr: true},
		{in: "x:int:sometimes;", wantErr: true},
		{in: "9x:int;", wantErr: true},
		{in: "x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, extra, err := parseArgs(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.extra, extra)
		})
	}
}

func TestCheckArgs(t *testing.T) {
	sig, extra, err := parseArgs("clip:vnode;radius:float:opt;planes:int[]:opt;")
	require.NoError(t, err)
	fn := &pluginFunc{name: "Blur", sig: sig, extra: extra}
	e := New()

	build := func(set func(m *mapObj)) *mapObj {
		m := newMap()
		set(m)
		return m
	}
	var d deferred
	tests := []struct {
		name string
		in   *mapObj
		want string
	}{
		{"ok", build(func(m *mapObj) {
			e.set(&d, m, "clip", abi.PropertyVideoNode, uintptr(1), abi.MapReplace)
			e.set(&d, m, "radius", abi.PropertyInt, int64(2), abi.MapReplace)
		}), ""},
		{"required", build(func(*mapObj) {}), "Blur: argument clip is required"},
		{"type", build(func(m *mapObj) {
			e.set(&d, m, "clip", abi.PropertyAudioNode, uintptr(1), abi.MapReplace)
		}), "Blur: argument clip is not of the correct type"},
		{"empty", build(func(m *mapObj) {
			e.set(&d, m, "clip", abi.PropertyVideoNode, uintptr(1), abi.MapReplace)
			e.setEmpty(m, "planes", abi.PropertyInt)
		}), "Blur: argument planes does not accept empty arrays"},
		{"unknown", build(func(m *mapObj) {
			e.set(&d, m, "clip", abi.PropertyVideoNode, uintptr(1), abi.MapReplace)
			e.set(&d, m, "sigma", abi.PropertyFloat, 1.0, abi.MapReplace)
			e.set(&d, m, "mode", abi.PropertyInt, int64(1), abi.MapReplace)
		}), "Blur: Function does not take argument(s) named sigma, mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkArgs(fn, tt.in))
		})
	}
}
