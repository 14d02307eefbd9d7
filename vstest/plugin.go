package vstest

import (
	"fmt"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

// PluginInit is the entry point of a simulated plugin library. It gets the
// plugin being loaded and the plugin API handle, the two arguments of
// VapourSynthPluginInit2, and configures the plugin through
// Engine.OpenPlugin.
type PluginInit func(plugin, pluginAPI uintptr)

// WithPluginInit makes LoadPlugin(path) run init, as loading a plugin
// library runs its init function.
func WithPluginInit(path string, init PluginInit) Option {
	return func(e *Engine) { e.inits[path] = init }
}

// pluginInitObj is the plugin API handed to one PluginInit call.
type pluginInitObj struct {
	id         uintptr
	plugin     *pluginObj
	api        int
	configured bool
	done       bool
}

// OpenPlugin returns the plugin API behind a handle passed to a
// PluginInit. It stops working once that init function returns.
func (e *Engine) OpenPlugin(pluginAPI uintptr) (abi.PluginTable, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pi, ok := e.objects[pluginAPI].(*pluginInitObj)
	if !ok || pi.done {
		return nil, fmt.Errorf("%w: unknown plugin API handle %#x", abi.ErrNotSupported, pluginAPI)
	}
	return &pluginTable{e: e, id: pluginAPI}, nil
}

// initPlugin runs init once the engine lock is released, then admits the
// plugin it configured into c.
func (e *Engine) initPlugin(d *deferred, c *coreObj, path string, init PluginInit, in, out *mapObj) {
	forceNS, hasNS := in.stringArg("forcens")
	forceID, hasID := in.stringArg("forceid")
	p := &pluginObj{id: nextID(), core: c, path: path}
	pi := &pluginInitObj{id: nextID(), plugin: p}
	e.register(p.id, p)
	e.register(pi.id, pi)

	d.add(func() {
		init(p.id, pi.id)
		e.locked(func(d *deferred) {
			pi.done = true
			delete(e.objects, pi.id)
			if hasNS {
				p.ns = forceNS
			}
			if hasID {
				p.pluginID = forceID
			}
			msg := fmt.Sprintf("Failed to load %s. Error given: plugin was not configured", path)
			if pi.configured {
				msg = e.admitPlugin(c, p.pluginID, p.ns, pi.api, path)
			}
			if msg != "" {
				for _, fn := range p.funcs {
					delete(e.objects, fn.id)
				}
				delete(e.objects, p.id)
				e.setError(d, out, msg)
				return
			}
			c.plugins = append(c.plugins, p)
		})
	})
}

// pluginTable implements abi.PluginTable for one PluginInit call.
type pluginTable struct {
	e  *Engine
	id uintptr
}

var _ abi.PluginTable = (*pluginTable)(nil)

// active returns the init call's state while it is running. Callers hold
// the engine lock.
func (t *pluginTable) active(plugin abi.Plugin) (*pluginInitObj, bool) {
	pi, ok := lookup[*pluginInitObj](t.e, t.id)
	if !ok || pi.done || pi.plugin.id != uintptr(plugin) {
		return nil, false
	}
	return pi, true
}

func (t *pluginTable) GetAPIVersion() int { return abi.MakeVersion(abi.APIMajor, t.e.minor) }

func (t *pluginTable) ConfigPlugin(id, namespace, name string, pluginVersion, apiVersion, flags int, plugin abi.Plugin) bool {
	var ok bool
	t.e.locked(func(*deferred) {
		pi, live := t.active(plugin)
		if !live || pi.configured || !validKey(namespace) || id == "" {
			return
		}
		p := pi.plugin
		p.pluginID, p.ns, p.name, p.version = id, namespace, name, pluginVersion
		p.writable = flags&abi.PluginModifiable != 0
		pi.api = apiVersion
		pi.configured = true
		ok = true
	})
	return ok
}

// RegisterFunction accepts functions between configuration and the end of
// the init call, whatever the plugin's flags.
func (t *pluginTable) RegisterFunction(name, args, returnType string, userData uintptr, plugin abi.Plugin) bool {
	var ok bool
	t.e.locked(func(*deferred) {
		pi, live := t.active(plugin)
		if !live || !pi.configured {
			return
		}
		ok = t.e.addFunc(pi.plugin, name, args, returnType, userData, nil)
	})
	return ok
}
