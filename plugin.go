package vapoursynth

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

// Plugin is a borrowed handle to a loaded plugin. It is valid while its
// core is open.
type Plugin struct {
	core *Core
	ptr  abi.Plugin
}

func (p *Plugin) table() abi.Table { return p.core.api.table }

func (p *Plugin) handle() (abi.Plugin, error) {
	if p == nil || p.ptr == 0 {
		return 0, ErrInvalidHandle
	}
	if _, err := p.core.handle(); err != nil {
		return 0, err
	}
	return p.ptr, nil
}

// ID returns the plugin identifier.
func (p *Plugin) ID() string {
	h, err := p.handle()
	if err != nil {
		return ""
	}
	return p.table().GetPluginID(h)
}

// Namespace returns the plugin namespace.
func (p *Plugin) Namespace() string {
	h, err := p.handle()
	if err != nil {
		return ""
	}
	return p.table().GetPluginNamespace(h)
}

// Name returns the human readable plugin name.
func (p *Plugin) Name() string {
	h, err := p.handle()
	if err != nil {
		return ""
	}
	return p.table().GetPluginName(h)
}

// Path returns the file the plugin was loaded from, or "" for built-ins.
func (p *Plugin) Path() string {
	h, err := p.handle()
	if err != nil {
		return ""
	}
	return p.table().GetPluginPath(h)
}

// Version returns the plugin's own version number.
func (p *Plugin) Version() int {
	h, err := p.handle()
	if err != nil {
		return 0
	}
	return p.table().GetPluginVersion(h)
}

// PluginFunction describes a function exported by a plugin.
type PluginFunction struct {
	Name       string
	Arguments  string
	ReturnType string
}

// Signature parses the argument string.
func (f PluginFunction) Signature() (Signature, error) { return ParseSignature(f.Arguments) }

func (p *Plugin) describe(fn abi.PluginFunction) PluginFunction {
	t := p.table()
	return PluginFunction{
		Name:       t.GetPluginFunctionName(fn),
		Arguments:  t.GetPluginFunctionArguments(fn),
		ReturnType: t.GetPluginFunctionReturnType(fn),
	}
}

// Functions lists the plugin's functions.
func (p *Plugin) Functions() []PluginFunction {
	h, err := p.handle()
	if err != nil {
		return nil
	}
	var out []PluginFunction
	for fn := p.table().GetNextPluginFunction(0, h); fn != 0; fn = p.table().GetNextPluginFunction(fn, h) {
		out = append(out, p.describe(fn))
	}
	return out
}

// Function looks up one function by name.
func (p *Plugin) Function(name string) (PluginFunction, bool) {
	h, err := p.handle()
	if err != nil {
		return PluginFunction{}, false
	}
	fn := p.table().GetPluginFunctionByName(name, h)
	if fn == 0 {
		return PluginFunction{}, false
	}
	return p.describe(fn), true
}

// Invoke calls a plugin function. args may be nil. The caller owns the
// returned map.
func (p *Plugin) Invoke(name string, args *MapRef) (*OwnedMap, error) {
	h, err := p.handle()
	if err != nil {
		return nil, err
	}
	var in abi.Map
	if args != nil {
		if in, err = args.handle(); err != nil {
			return nil, err
		}
	} else {
		tmp := p.core.NewMap()
		defer tmp.Release()
		in = tmp.ptr
	}
	out := p.core.api.newOwnedMap(p.table().Invoke(h, name, in), p.core.state)
	if msg, failed := out.ErrorMessage(); failed {
		out.Release()
		return nil, &InvokeError{Plugin: p.Namespace(), Function: name, Message: msg}
	}
	return out, nil
}

// InvokeClip calls a plugin function and returns the "clip" it produces.
func (p *Plugin) InvokeClip(name string, args *MapRef) (*Node, error) {
	ret, err := p.Invoke(name, args)
	if err != nil {
		return nil, err
	}
	defer ret.Release()
	return ret.Node("clip")
}

// RegisterFunction adds a Go implemented function to a writable plugin.
// returns defaults to ClipSignature.
func (p *Plugin) RegisterFunction(name string, args, returns Signature, fn FunctionImpl) error {
	h, err := p.handle()
	if err != nil {
		return err
	}
	if returns == nil {
		returns = ClipSignature
	}
	id := publicFunctions.Insert(&publicFunction{api: p.core.api, name: p.Namespace() + "." + name, fn: fn})
	if !p.table().RegisterFunction(name, args.String(), returns.String(), id, h) {
		publicFunctions.Remove(id)
		return fmt.Errorf("register %s.%s: %w", p.Namespace(), name, ErrNotSupported)
	}
	return nil
}

// FilterConstructor adapts a node constructor into a plugin function that
// returns its node under "clip".
func FilterConstructor(create func(core *Core, args *MapRef) (*Node, error)) FunctionImpl {
	return func(core *Core, in *MapRef, out *MapRefMut) error {
		n, err := create(core, in)
		if err != nil {
			return err
		}
		return out.ConsumeNode("clip", n)
	}
}

// PluginMetadata identifies a plugin library to the engine.
type PluginMetadata struct {
	ID        string
	Namespace string
	Name      string
	// Version is the plugin's own version. Zero means 1.
	Version int
	// ReadOnly keeps other code from registering functions in the
	// namespace once initialization is over.
	ReadOnly bool
}

// Export is a function a plugin registers while it is initialized.
type Export struct {
	Name string
	Args Signature
	// Returns defaults to ClipSignature.
	Returns Signature
	Fn      FunctionImpl
}

// InitPlugin configures the plugin the engine is loading and registers
// exports. It is the body of a plugin library's init entry point and
// receives the two pointers the engine passed to it:
//
//	//export VapourSynthPluginInit2
//	func VapourSynthPluginInit2(plugin, pluginAPI unsafe.Pointer) {
//		api, err := vapoursynth.Load(vapoursynth.Options{DisableScript: true})
//		if err == nil {
//			err = api.InitPlugin(uintptr(plugin), uintptr(pluginAPI), meta, exports...)
//		}
//		...
//	}
//
// The plugin declares the API version a negotiated as its requirement. Registration stops at
// the first export the engine refuses.
func (a *API) InitPlugin(plugin, pluginAPI uintptr, meta PluginMetadata, exports ...Export) error {
	pb, ok := a.backend.(PluginBackend)
	if !ok {
		return fmt.Errorf("init plugin %s: %w", meta.ID, ErrNotSupported)
	}
	if plugin == 0 {
		return fmt.Errorf("init plugin %s: %w", meta.ID, ErrInvalidHandle)
	}
	if meta.ID == "" || meta.Namespace == "" {
		return fmt.Errorf("init plugin %q: identifier and namespace are required", meta.ID)
	}
	pt, err := pb.OpenPlugin(pluginAPI)
	if err != nil {
		return fmt.Errorf("init plugin %s: %w", meta.ID, err)
	}
	version := meta.Version
	if version == 0 {
		version = 1
	}
	flags := abi.PluginModifiable
	if meta.ReadOnly {
		flags = 0
	}
	h := abi.Plugin(plugin)
	if !pt.ConfigPlugin(meta.ID, meta.Namespace, meta.Name, version, a.version.Packed(), flags, h) {
		return fmt.Errorf("init plugin %s: configuration refused", meta.ID)
	}
	for _, ex := range exports {
		returns := ex.Returns
		if returns == nil {
			returns = ClipSignature
		}
		id := publicFunctions.Insert(&publicFunction{api: a, name: meta.Namespace + "." + ex.Name, fn: ex.Fn})
		if !pt.RegisterFunction(ex.Name, ex.Args.String(), returns.String(), id, h) {
			publicFunctions.Remove(id)
			return fmt.Errorf("init plugin %s: register %s.%s: %w", meta.ID, meta.Namespace, ex.Name, ErrNotSupported)
		}
	}
	a.log.Debug("plugin initialized",
		zap.String("id", meta.ID),
		zap.String("namespace", meta.Namespace),
		zap.Int("functions", len(exports)))
	return nil
}
