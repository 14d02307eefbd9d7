//go:build darwin || linux

package native

import (
	"errors"
	"unsafe"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

// rawPluginAPI is the VSPLUGINAPI struct.
type rawPluginAPI struct {
	getAPIVersion    uintptr
	configPlugin     uintptr
	registerFunction uintptr
}

// pluginTable implements abi.PluginTable over a bound VSPLUGINAPI.
type pluginTable struct {
	getAPIVersion    func() int32
	configPlugin     func(id, namespace, name string, pluginVersion, apiVersion, flags int32, plugin uintptr) int32
	registerFunction func(name, args, returnType string, fn, userData, plugin uintptr) int32
}

var _ abi.PluginTable = (*pluginTable)(nil)

func bindPluginAPI(p uintptr) *pluginTable {
	r := (*rawPluginAPI)(unsafe.Pointer(p))
	t := &pluginTable{}
	bind(&t.getAPIVersion, r.getAPIVersion)
	bind(&t.configPlugin, r.configPlugin)
	bind(&t.registerFunction, r.registerFunction)
	return t
}

// OpenPlugin binds the VSPLUGINAPI table the engine passed to a plugin's
// init entry point. Functions registered through it are served by the
// callbacks of the last Open, so the caller must have opened the core
// table first.
func (b *Backend) OpenPlugin(pluginAPI uintptr) (abi.PluginTable, error) {
	if pluginAPI == 0 {
		return nil, errors.New("nil plugin API table")
	}
	if active.Load() == nil {
		return nil, errors.New("plugin API opened before the core API")
	}
	return bindPluginAPI(pluginAPI), nil
}

func (t *pluginTable) GetAPIVersion() int { return int(t.getAPIVersion()) }

func (t *pluginTable) ConfigPlugin(id, namespace, name string, pluginVersion, apiVersion, flags int, plugin abi.Plugin) bool {
	return t.configPlugin(id, namespace, name, int32(pluginVersion), int32(apiVersion), int32(flags), uintptr(plugin)) != 0
}

func (t *pluginTable) RegisterFunction(name, args, returnType string, userData uintptr, plugin abi.Plugin) bool {
	return t.registerFunction(name, args, returnType, publicFuncCallback, userData, uintptr(plugin)) != 0
}
