package abi

import "unsafe"

// Callbacks are the Go functions a backend must route native callbacks to.
// A backend receives one Callbacks value when it is opened and uses it for
// every filter, function, frame-done and log handler it creates.
type Callbacks struct {
	// FilterGetFrame services a filter activation. frameData points at the
	// first of the four per-request scratch slots the engine keeps.
	FilterGetFrame func(n int, reason ActivationReason, instance uintptr, frameData *uintptr, ctx FrameContext, core Core) Frame

	// FilterFree runs once when the engine drops the last reference to a filter node.
	FilterFree func(instance uintptr, core Core)

	// PublicFunction services both Function objects and registered plugin functions.
	PublicFunction func(in, out Map, userData uintptr, core Core)

	// FreeFunctionData runs when a Function object is destroyed.
	FreeFunctionData func(userData uintptr)

	// FrameDone completes an asynchronous frame request. f is zero on failure.
	FrameDone func(userData uintptr, f Frame, n int, node Node, errMsg string)

	LogHandler     func(msgType MessageType, msg string, userData uintptr)
	LogHandlerFree func(userData uintptr)
}

// Table is the VSAPI function table. Method names follow the C member names.
//
// Ownership follows the C ABI exactly: methods documented there as returning
// a new reference return one here, and the caller releases it with the
// matching Free method.
type Table interface {
	GetAPIVersion() int

	// Filters and nodes.
	CreateVideoFilter2(name string, vi *VideoInfo, mode FilterMode, deps []FilterDependency, instance uintptr, core Core) Node
	CreateAudioFilter2(name string, ai *AudioInfo, mode FilterMode, deps []FilterDependency, instance uintptr, core Core) Node
	SetLinearFilter(node Node) int
	SetCacheMode(node Node, mode CacheMode)
	SetCacheOptions(node Node, fixedSize, maxSize, maxHistorySize int)
	FreeNode(node Node)
	AddNodeRef(node Node) Node
	GetNodeType(node Node) MediaType
	GetVideoInfo(node Node) VideoInfo
	GetAudioInfo(node Node) AudioInfo

	// Frames.
	NewVideoFrame(format *VideoFormat, width, height int, propSrc Frame, core Core) Frame
	NewAudioFrame(format *AudioFormat, numSamples int, propSrc Frame, core Core) Frame
	FreeFrame(f Frame)
	AddFrameRef(f Frame) Frame
	CopyFrame(f Frame, core Core) Frame
	GetFramePropertiesRO(f Frame) Map
	GetFramePropertiesRW(f Frame) Map
	GetStride(f Frame, plane int) int
	GetReadPtr(f Frame, plane int) unsafe.Pointer
	GetWritePtr(f Frame, plane int) unsafe.Pointer
	GetVideoFrameFormat(f Frame) VideoFormat
	GetAudioFrameFormat(f Frame) AudioFormat
	GetFrameType(f Frame) MediaType
	GetFrameWidth(f Frame, plane int) int
	GetFrameHeight(f Frame, plane int) int
	GetFrameLength(f Frame) int

	// Formats.
	GetVideoFormatName(format *VideoFormat) (string, bool)
	GetAudioFormatName(format *AudioFormat) (string, bool)
	QueryVideoFormat(cf ColorFamily, st SampleType, bits, ssw, ssh int, core Core) (VideoFormat, bool)
	QueryAudioFormat(st SampleType, bits int, layout uint64, core Core) (AudioFormat, bool)
	QueryVideoFormatID(cf ColorFamily, st SampleType, bits, ssw, ssh int, core Core) uint32
	GetVideoFormatByID(id uint32, core Core) (VideoFormat, bool)

	// Frame requests.
	GetFrame(n int, node Node) (Frame, string)
	GetFrameAsync(n int, node Node, userData uintptr)
	GetFrameFilter(n int, node Node, ctx FrameContext) Frame
	RequestFrameFilter(n int, node Node, ctx FrameContext)
	ReleaseFrameEarly(node Node, n int, ctx FrameContext)
	SetFilterError(msg string, ctx FrameContext)

	// Functions.
	CreateFunction(userData uintptr, core Core) Function
	FreeFunction(f Function)
	AddFunctionRef(f Function) Function
	CallFunction(f Function, in, out Map)

	// Maps.
	CreateMap() Map
	FreeMap(m Map)
	ClearMap(m Map)
	CopyMap(src, dst Map)
	MapSetError(m Map, msg string)
	MapGetError(m Map) (string, bool)
	MapNumKeys(m Map) int
	MapGetKey(m Map, index int) string
	MapDeleteKey(m Map, key string) bool
	MapNumElements(m Map, key string) int
	MapGetType(m Map, key string) PropertyType
	MapSetEmpty(m Map, key string, t PropertyType) bool

	MapGetInt(m Map, key string, index int) (int64, GetPropError)
	MapGetIntArray(m Map, key string) ([]int64, GetPropError)
	MapSetInt(m Map, key string, v int64, mode AppendMode) bool
	MapSetIntArray(m Map, key string, v []int64) bool

	MapGetFloat(m Map, key string, index int) (float64, GetPropError)
	MapGetFloatArray(m Map, key string) ([]float64, GetPropError)
	MapSetFloat(m Map, key string, v float64, mode AppendMode) bool
	MapSetFloatArray(m Map, key string, v []float64) bool

	MapGetData(m Map, key string, index int) ([]byte, GetPropError)
	MapGetDataTypeHint(m Map, key string, index int) (DataTypeHint, GetPropError)
	MapSetData(m Map, key string, v []byte, hint DataTypeHint, mode AppendMode) bool

	MapGetNode(m Map, key string, index int) (Node, GetPropError)
	MapSetNode(m Map, key string, node Node, mode AppendMode) bool
	MapConsumeNode(m Map, key string, node Node, mode AppendMode) bool
	MapGetFrame(m Map, key string, index int) (Frame, GetPropError)
	MapSetFrame(m Map, key string, f Frame, mode AppendMode) bool
	MapConsumeFrame(m Map, key string, f Frame, mode AppendMode) bool
	MapGetFunction(m Map, key string, index int) (Function, GetPropError)
	MapSetFunction(m Map, key string, f Function, mode AppendMode) bool
	MapConsumeFunction(m Map, key string, f Function, mode AppendMode) bool

	// Plugins.
	RegisterFunction(name, args, returnType string, userData uintptr, plugin Plugin) bool
	GetPluginByID(id string, core Core) Plugin
	GetPluginByNamespace(ns string, core Core) Plugin
	GetNextPlugin(p Plugin, core Core) Plugin
	GetPluginName(p Plugin) string
	GetPluginID(p Plugin) string
	GetPluginNamespace(p Plugin) string
	GetNextPluginFunction(f PluginFunction, p Plugin) PluginFunction
	GetPluginFunctionByName(name string, p Plugin) PluginFunction
	GetPluginFunctionName(f PluginFunction) string
	GetPluginFunctionArguments(f PluginFunction) string
	GetPluginFunctionReturnType(f PluginFunction) string
	GetPluginPath(p Plugin) string
	GetPluginVersion(p Plugin) int
	Invoke(p Plugin, name string, args Map) Map

	// Core.
	CreateCore(flags int) Core
	FreeCore(core Core)
	SetMaxCacheSize(bytes int64, core Core) int64
	SetThreadCount(threads int, core Core) int
	GetCoreInfo(core Core) CoreInfo
	LogMessage(t MessageType, msg string, core Core)
	AddLogHandler(userData uintptr, core Core) LogHandle
	RemoveLogHandler(h LogHandle, core Core) bool

	// Available from API 4.1. Callers gate these on the negotiated version;
	// backends may panic when they are called on a 4.0 table.
	ClearNodeCache(node Node)
	ClearCoreCaches(core Core)
	GetNodeName(node Node) string
	GetNodeFilterMode(node Node) FilterMode
	GetNumNodeDependencies(node Node) int
	GetNodeDependency(node Node, index int) FilterDependency
	GetCoreNodeTiming(core Core) bool
	SetCoreNodeTiming(core Core, enable bool)
	GetNodeProcessingTime(node Node, reset bool) int64
	GetFreedNodeProcessingTime(core Core, reset bool) int64
}

// PluginTable is the VSPLUGINAPI table an engine passes to a plugin's
// VapourSynthPluginInit2 entry point. It is only valid during that call.
type PluginTable interface {
	GetAPIVersion() int
	ConfigPlugin(id, namespace, name string, pluginVersion, apiVersion, flags int, plugin Plugin) bool
	RegisterFunction(name, args, returnType string, userData uintptr, plugin Plugin) bool
}

// ScriptTable is the VSSCRIPTAPI function table.
type ScriptTable interface {
	GetAPIVersion() int
	CreateScript(core Core) Script
	GetCore(s Script) Core
	EvaluateBuffer(s Script, buffer, filename string) int
	EvaluateFile(s Script, filename string) int
	GetError(s Script) string
	GetExitCode(s Script) int
	GetVariable(s Script, name string, dst Map) int
	SetVariables(s Script, vars Map) int
	GetOutputNode(s Script, index int) Node
	GetOutputAlphaNode(s Script, index int) Node
	GetAltOutputMode(s Script, index int) int
	FreeScript(s Script)
	EvalSetWorkingDir(s Script, setCWD bool)
}
