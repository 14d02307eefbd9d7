//go:build darwin || linux

package native

import (
	"runtime"
	"unsafe"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

// table implements abi.Table over a bound VSAPI.
type table struct {
	a *vsapi
}

var _ abi.Table = (*table)(nil)

func videoFormatToC(f *abi.VideoFormat) cVideoFormat {
	return cVideoFormat{
		colorFamily:    int32(f.ColorFamily),
		sampleType:     int32(f.SampleType),
		bitsPerSample:  int32(f.BitsPerSample),
		bytesPerSample: int32(f.BytesPerSample),
		subSamplingW:   int32(f.SubSamplingW),
		subSamplingH:   int32(f.SubSamplingH),
		numPlanes:      int32(f.NumPlanes),
	}
}

func videoFormatFromC(f *cVideoFormat) abi.VideoFormat {
	if f == nil {
		return abi.VideoFormat{}
	}
	return abi.VideoFormat{
		ColorFamily:    abi.ColorFamily(f.colorFamily),
		SampleType:     abi.SampleType(f.sampleType),
		BitsPerSample:  int(f.bitsPerSample),
		BytesPerSample: int(f.bytesPerSample),
		SubSamplingW:   int(f.subSamplingW),
		SubSamplingH:   int(f.subSamplingH),
		NumPlanes:      int(f.numPlanes),
	}
}

func audioFormatToC(f *abi.AudioFormat) cAudioFormat {
	return cAudioFormat{
		sampleType:     int32(f.SampleType),
		bitsPerSample:  int32(f.BitsPerSample),
		bytesPerSample: int32(f.BytesPerSample),
		numChannels:    int32(f.NumChannels),
		channelLayout:  f.ChannelLayout,
	}
}

func audioFormatFromC(f *cAudioFormat) abi.AudioFormat {
	if f == nil {
		return abi.AudioFormat{}
	}
	return abi.AudioFormat{
		SampleType:     abi.SampleType(f.sampleType),
		BitsPerSample:  int(f.bitsPerSample),
		BytesPerSample: int(f.bytesPerSample),
		NumChannels:    int(f.numChannels),
		ChannelLayout:  f.channelLayout,
	}
}

func depsToC(deps []abi.FilterDependency) []cFilterDependency {
	out := make([]cFilterDependency, len(deps))
	for i, d := range deps {
		out[i] = cFilterDependency{source: uintptr(d.Source), requestPattern: int32(d.RequestPattern)}
	}
	return out
}

func firstDep(deps []cFilterDependency) *cFilterDependency {
	if len(deps) == 0 {
		return nil
	}
	return &deps[0]
}

func (t *table) GetAPIVersion() int { return int(t.a.getAPIVersion()) }

func (t *table) CreateVideoFilter2(name string, vi *abi.VideoInfo, mode abi.FilterMode, deps []abi.FilterDependency, instance uintptr, core abi.Core) abi.Node {
	cvi := cVideoInfo{
		format:    videoFormatToC(&vi.Format),
		fpsNum:    vi.FPSNum,
		fpsDen:    vi.FPSDen,
		width:     int32(vi.Width),
		height:    int32(vi.Height),
		numFrames: int32(vi.NumFrames),
	}
	cdeps := depsToC(deps)
	n := t.a.createVideoFilter2(name, &cvi, getFrameCallback, filterFreeCallback, int32(mode),
		firstDep(cdeps), int32(len(cdeps)), instance, uintptr(core))
	runtime.KeepAlive(cdeps)
	return abi.Node(n)
}

func (t *table) CreateAudioFilter2(name string, ai *abi.AudioInfo, mode abi.FilterMode, deps []abi.FilterDependency, instance uintptr, core abi.Core) abi.Node {
	cai := cAudioInfo{
		format:     audioFormatToC(&ai.Format),
		sampleRate: int32(ai.SampleRate),
		numSamples: ai.NumSamples,
		numFrames:  int32(ai.NumFrames),
	}
	cdeps := depsToC(deps)
	n := t.a.createAudioFilter2(name, &cai, getFrameCallback, filterFreeCallback, int32(mode),
		firstDep(cdeps), int32(len(cdeps)), instance, uintptr(core))
	runtime.KeepAlive(cdeps)
	return abi.Node(n)
}

func (t *table) SetLinearFilter(node abi.Node) int { return int(t.a.setLinearFilter(uintptr(node))) }

func (t *table) SetCacheMode(node abi.Node, mode abi.CacheMode) {
	t.a.setCacheMode(uintptr(node), int32(mode))
}

func (t *table) SetCacheOptions(node abi.Node, fixedSize, maxSize, maxHistorySize int) {
	t.a.setCacheOptions(uintptr(node), int32(fixedSize), int32(maxSize), int32(maxHistorySize))
}

func (t *table) FreeNode(node abi.Node)                  { t.a.freeNode(uintptr(node)) }
func (t *table) AddNodeRef(node abi.Node) abi.Node       { return abi.Node(t.a.addNodeRef(uintptr(node))) }
func (t *table) GetNodeType(node abi.Node) abi.MediaType { return abi.MediaType(t.a.getNodeType(uintptr(node))) }

func (t *table) GetVideoInfo(node abi.Node) abi.VideoInfo {
	vi := t.a.getVideoInfo(uintptr(node))
	if vi == nil {
		return abi.VideoInfo{}
	}
	return abi.VideoInfo{
		Format:    videoFormatFromC(&vi.format),
		FPSNum:    vi.fpsNum,
		FPSDen:    vi.fpsDen,
		Width:     int(vi.width),
		Height:    int(vi.height),
		NumFrames: int(vi.numFrames),
	}
}

func (t *table) GetAudioInfo(node abi.Node) abi.AudioInfo {
	ai := t.a.getAudioInfo(uintptr(node))
	if ai == nil {
		return abi.AudioInfo{}
	}
	return abi.AudioInfo{
		Format:     audioFormatFromC(&ai.format),
		SampleRate: int(ai.sampleRate),
		NumSamples: ai.numSamples,
		NumFrames:  int(ai.numFrames),
	}
}

func (t *table) NewVideoFrame(format *abi.VideoFormat, width, height int, propSrc abi.Frame, core abi.Core) abi.Frame {
	cf := videoFormatToC(format)
	return abi.Frame(t.a.newVideoFrame(&cf, int32(width), int32(height), uintptr(propSrc), uintptr(core)))
}

func (t *table) NewAudioFrame(format *abi.AudioFormat, numSamples int, propSrc abi.Frame, core abi.Core) abi.Frame {
	cf := audioFormatToC(format)
	return abi.Frame(t.a.newAudioFrame(&cf, int32(numSamples), uintptr(propSrc), uintptr(core)))
}

func (t *table) FreeFrame(f abi.Frame)             { t.a.freeFrame(uintptr(f)) }
func (t *table) AddFrameRef(f abi.Frame) abi.Frame { return abi.Frame(t.a.addFrameRef(uintptr(f))) }

func (t *table) CopyFrame(f abi.Frame, core abi.Core) abi.Frame {
	return abi.Frame(t.a.copyFrame(uintptr(f), uintptr(core)))
}

func (t *table) GetFramePropertiesRO(f abi.Frame) abi.Map {
	return abi.Map(t.a.getFramePropertiesRO(uintptr(f)))
}

func (t *table) GetFramePropertiesRW(f abi.Frame) abi.Map {
	return abi.Map(t.a.getFramePropertiesRW(uintptr(f)))
}

func (t *table) GetStride(f abi.Frame, plane int) int { return int(t.a.getStride(uintptr(f), int32(plane))) }

func (t *table) GetReadPtr(f abi.Frame, plane int) unsafe.Pointer {
	return t.a.getReadPtr(uintptr(f), int32(plane))
}

func (t *table) GetWritePtr(f abi.Frame, plane int) unsafe.Pointer {
	return t.a.getWritePtr(uintptr(f), int32(plane))
}

func (t *table) GetVideoFrameFormat(f abi.Frame) abi.VideoFormat {
	return videoFormatFromC(t.a.getVideoFrameFormat(uintptr(f)))
}

func (t *table) GetAudioFrameFormat(f abi.Frame) abi.AudioFormat {
	return audioFormatFromC(t.a.getAudioFrameFormat(uintptr(f)))
}

func (t *table) GetFrameType(f abi.Frame) abi.MediaType {
	return abi.MediaType(t.a.getFrameType(uintptr(f)))
}

func (t *table) GetFrameWidth(f abi.Frame, plane int) int {
	return int(t.a.getFrameWidth(uintptr(f), int32(plane)))
}

func (t *table) GetFrameHeight(f abi.Frame, plane int) int {
	return int(t.a.getFrameHeight(uintptr(f), int32(plane)))
}

func (t *table) GetFrameLength(f abi.Frame) int { return int(t.a.getFrameLength(uintptr(f))) }

// formatNameSize is the buffer size the engine requires for format names.
const formatNameSize = 32

func (t *table) GetVideoFormatName(format *abi.VideoFormat) (string, bool) {
	cf := videoFormatToC(format)
	var buf [formatNameSize]byte
	if t.a.getVideoFormatName(&cf, &buf[0]) == 0 {
		return "", false
	}
	return bufString(buf[:]), true
}

func (t *table) GetAudioFormatName(format *abi.AudioFormat) (string, bool) {
	cf := audioFormatToC(format)
	var buf [formatNameSize]byte
	if t.a.getAudioFormatName(&cf, &buf[0]) == 0 {
		return "", false
	}
	return bufString(buf[:]), true
}

func (t *table) QueryVideoFormat(cf abi.ColorFamily, st abi.SampleType, bits, ssw, ssh int, core abi.Core) (abi.VideoFormat, bool) {
	var out cVideoFormat
	if t.a.queryVideoFormat(&out, int32(cf), int32(st), int32(bits), int32(ssw), int32(ssh), uintptr(core)) == 0 {
		return abi.VideoFormat{}, false
	}
	return videoFormatFromC(&out), true
}

func (t *table) QueryAudioFormat(st abi.SampleType, bits int, layout uint64, core abi.Core) (abi.AudioFormat, bool) {
	var out cAudioFormat
	if t.a.queryAudioFormat(&out, int32(st), int32(bits), layout, uintptr(core)) == 0 {
		return abi.AudioFormat{}, false
	}
	return audioFormatFromC(&out), true
}

func (t *table) QueryVideoFormatID(cf abi.ColorFamily, st abi.SampleType, bits, ssw, ssh int, core abi.Core) uint32 {
	return t.a.queryVideoFormatID(int32(cf), int32(st), int32(bits), int32(ssw), int32(ssh), uintptr(core))
}

func (t *table) GetVideoFormatByID(id uint32, core abi.Core) (abi.VideoFormat, bool) {
	var out cVideoFormat
	if t.a.getVideoFormatByID(&out, id, uintptr(core)) == 0 {
		return abi.VideoFormat{}, false
	}
	return videoFormatFromC(&out), true
}

// getFrameErrorSize bounds the error message returned by GetFrame.
const getFrameErrorSize = 1024

func (t *table) GetFrame(n int, node abi.Node) (abi.Frame, string) {
	buf := make([]byte, getFrameErrorSize)
	f := t.a.getFrame(int32(n), uintptr(node), &buf[0], int32(len(buf)))
	if f == 0 {
		return 0, bufString(buf)
	}
	return abi.Frame(f), ""
}

func (t *table) GetFrameAsync(n int, node abi.Node, userData uintptr) {
	t.a.getFrameAsync(int32(n), uintptr(node), frameDoneCallback, userData)
}

func (t *table) GetFrameFilter(n int, node abi.Node, ctx abi.FrameContext) abi.Frame {
	return abi.Frame(t.a.getFrameFilter(int32(n), uintptr(node), uintptr(ctx)))
}

func (t *table) RequestFrameFilter(n int, node abi.Node, ctx abi.FrameContext) {
	t.a.requestFrameFilter(int32(n), uintptr(node), uintptr(ctx))
}

func (t *table) ReleaseFrameEarly(node abi.Node, n int, ctx abi.FrameContext) {
	t.a.releaseFrameEarly(uintptr(node), int32(n), uintptr(ctx))
}

func (t *table) SetFilterError(msg string, ctx abi.FrameContext) {
	t.a.setFilterError(msg, uintptr(ctx))
}

func (t *table) CreateFunction(userData uintptr, core abi.Core) abi.Function {
	return abi.Function(t.a.createFunction(publicFuncCallback, userData, freeFuncCallback, uintptr(core)))
}

func (t *table) FreeFunction(f abi.Function) { t.a.freeFunction(uintptr(f)) }

func (t *table) AddFunctionRef(f abi.Function) abi.Function {
	return abi.Function(t.a.addFunctionRef(uintptr(f)))
}

func (t *table) CallFunction(f abi.Function, in, out abi.Map) {
	t.a.callFunction(uintptr(f), uintptr(in), uintptr(out))
}

func (t *table) CreateMap() abi.Map                { return abi.Map(t.a.createMap()) }
func (t *table) FreeMap(m abi.Map)                 { t.a.freeMap(uintptr(m)) }
func (t *table) ClearMap(m abi.Map)                { t.a.clearMap(uintptr(m)) }
func (t *table) CopyMap(src, dst abi.Map)          { t.a.copyMap(uintptr(src), uintptr(dst)) }
func (t *table) MapSetError(m abi.Map, msg string) { t.a.mapSetError(uintptr(m), msg) }

func (t *table) MapGetError(m abi.Map) (string, bool) {
	p := t.a.mapGetError(uintptr(m))
	if p == 0 {
		return "", false
	}
	return goString(p), true
}

func (t *table) MapNumKeys(m abi.Map) int { return int(t.a.mapNumKeys(uintptr(m))) }

func (t *table) MapGetKey(m abi.Map, index int) string {
	return goString(t.a.mapGetKey(uintptr(m), int32(index)))
}

func (t *table) MapDeleteKey(m abi.Map, key string) bool {
	return t.a.mapDeleteKey(uintptr(m), key) != 0
}

func (t *table) MapNumElements(m abi.Map, key string) int {
	return int(t.a.mapNumElements(uintptr(m), key))
}

func (t *table) MapGetType(m abi.Map, key string) abi.PropertyType {
	return abi.PropertyType(t.a.mapGetType(uintptr(m), key))
}

// The map setters return zero on success.

func (t *table) MapSetEmpty(m abi.Map, key string, pt abi.PropertyType) bool {
	return t.a.mapSetEmpty(uintptr(m), key, int32(pt)) == 0
}

func (t *table) MapGetInt(m abi.Map, key string, index int) (int64, abi.GetPropError) {
	var e int32
	v := t.a.mapGetInt(uintptr(m), key, int32(index), &e)
	return v, abi.GetPropError(e)
}

func (t *table) MapGetIntArray(m abi.Map, key string) ([]int64, abi.GetPropError) {
	var e int32
	p := t.a.mapGetIntArray(uintptr(m), key, &e)
	if e != 0 {
		return nil, abi.GetPropError(e)
	}
	n := t.MapNumElements(m, key)
	out := make([]int64, n)
	if p != nil && n > 0 {
		copy(out, unsafe.Slice(p, n))
	}
	return out, abi.PropSuccess
}

func (t *table) MapSetInt(m abi.Map, key string, v int64, mode abi.AppendMode) bool {
	return t.a.mapSetInt(uintptr(m), key, v, int32(mode)) == 0
}

func (t *table) MapSetIntArray(m abi.Map, key string, v []int64) bool {
	var p *int64
	if len(v) > 0 {
		p = &v[0]
	}
	ok := t.a.mapSetIntArray(uintptr(m), key, p, int32(len(v))) == 0
	runtime.KeepAlive(v)
	return ok
}

func (t *table) MapGetFloat(m abi.Map, key string, index int) (float64, abi.GetPropError) {
	var e int32
	v := t.a.mapGetFloat(uintptr(m), key, int32(index), &e)
	return v, abi.GetPropError(e)
}

func (t *table) MapGetFloatArray(m abi.Map, key string) ([]float64, abi.GetPropError) {
	var e int32
	p := t.a.mapGetFloatArray(uintptr(m), key, &e)
	if e != 0 {
		return nil, abi.GetPropError(e)
	}
	n := t.MapNumElements(m, key)
	out := make([]float64, n)
	if p != nil && n > 0 {
		copy(out, unsafe.Slice(p, n))
	}
	return out, abi.PropSuccess
}

func (t *table) MapSetFloat(m abi.Map, key string, v float64, mode abi.AppendMode) bool {
	return t.a.mapSetFloat(uintptr(m), key, v, int32(mode)) == 0
}

func (t *table) MapSetFloatArray(m abi.Map, key string, v []float64) bool {
	var p *float64
	if len(v) > 0 {
		p = &v[0]
	}
	ok := t.a.mapSetFloatArray(uintptr(m), key, p, int32(len(v))) == 0
	runtime.KeepAlive(v)
	return ok
}

func (t *table) MapGetData(m abi.Map, key string, index int) ([]byte, abi.GetPropError) {
	var e int32
	p := t.a.mapGetData(uintptr(m), key, int32(index), &e)
	if e != 0 {
		return nil, abi.GetPropError(e)
	}
	size := t.a.mapGetDataSize(uintptr(m), key, int32(index), &e)
	if e != 0 {
		return nil, abi.GetPropError(e)
	}
	return goBytes(p, int(size)), abi.PropSuccess
}

func (t *table) MapGetDataTypeHint(m abi.Map, key string, index int) (abi.DataTypeHint, abi.GetPropError) {
	var e int32
	h := t.a.mapGetDataTypeHint(uintptr(m), key, int32(index), &e)
	return abi.DataTypeHint(h), abi.GetPropError(e)
}

func (t *table) MapSetData(m abi.Map, key string, v []byte, hint abi.DataTypeHint, mode abi.AppendMode) bool {
	// An empty value still needs a valid pointer.
	buf := v
	if len(buf) == 0 {
		buf = []byte{0}
	}
	ok := t.a.mapSetData(uintptr(m), key, &buf[0], int32(len(v)), int32(hint), int32(mode)) == 0
	runtime.KeepAlive(buf)
	return ok
}

func (t *table) MapGetNode(m abi.Map, key string, index int) (abi.Node, abi.GetPropError) {
	var e int32
	n := t.a.mapGetNode(uintptr(m), key, int32(index), &e)
	return abi.Node(n), abi.GetPropError(e)
}

func (t *table) MapSetNode(m abi.Map, key string, node abi.Node, mode abi.AppendMode) bool {
	return t.a.mapSetNode(uintptr(m), key, uintptr(node), int32(mode)) == 0
}

func (t *table) MapConsumeNode(m abi.Map, key string, node abi.Node, mode abi.AppendMode) bool {
	return t.a.mapConsumeNode(uintptr(m), key, uintptr(node), int32(mode)) == 0
}

func (t *table) MapGetFrame(m abi.Map, key string, index int) (abi.Frame, abi.GetPropError) {
	var e int32
	f := t.a.mapGetFrame(uintptr(m), key, int32(index), &e)
	return abi.Frame(f), abi.GetPropError(e)
}

func (t *table) MapSetFrame(m abi.Map, key string, f abi.Frame, mode abi.AppendMode) bool {
	return t.a.mapSetFrame(uintptr(m), key, uintptr(f), int32(mode)) == 0
}

func (t *table) MapConsumeFrame(m abi.Map, key string, f abi.Frame, mode abi.AppendMode) bool {
	return t.a.mapConsumeFrame(uintptr(m), key, uintptr(f), int32(mode)) == 0
}

func (t *table) MapGetFunction(m abi.Map, key string, index int) (abi.Function, abi.GetPropError) {
	var e int32
	f := t.a.mapGetFunction(uintptr(m), key, int32(index), &e)
	return abi.Function(f), abi.GetPropError(e)
}

func (t *table) MapSetFunction(m abi.Map, key string, f abi.Function, mode abi.AppendMode) bool {
	return t.a.mapSetFunction(uintptr(m), key, uintptr(f), int32(mode)) == 0
}

func (t *table) MapConsumeFunction(m abi.Map, key string, f abi.Function, mode abi.AppendMode) bool {
	return t.a.mapConsumeFunction(uintptr(m), key, uintptr(f), int32(mode)) == 0
}

func (t *table) RegisterFunction(name, args, returnType string, userData uintptr, plugin abi.Plugin) bool {
	return t.a.registerFunction(name, args, returnType, publicFuncCallback, userData, uintptr(plugin)) != 0
}

func (t *table) GetPluginByID(id string, core abi.Core) abi.Plugin {
	return abi.Plugin(t.a.getPluginByID(id, uintptr(core)))
}

func (t *table) GetPluginByNamespace(ns string, core abi.Core) abi.Plugin {
	return abi.Plugin(t.a.getPluginByNamespace(ns, uintptr(core)))
}

func (t *table) GetNextPlugin(p abi.Plugin, core abi.Core) abi.Plugin {
	return abi.Plugin(t.a.getNextPlugin(uintptr(p), uintptr(core)))
}

func (t *table) GetPluginName(p abi.Plugin) string      { return goString(t.a.getPluginName(uintptr(p))) }
func (t *table) GetPluginID(p abi.Plugin) string        { return goString(t.a.getPluginID(uintptr(p))) }
func (t *table) GetPluginNamespace(p abi.Plugin) string { return goString(t.a.getPluginNamespace(uintptr(p))) }

func (t *table) GetNextPluginFunction(f abi.PluginFunction, p abi.Plugin) abi.PluginFunction {
	return abi.PluginFunction(t.a.getNextPluginFunction(uintptr(f), uintptr(p)))
}

func (t *table) GetPluginFunctionByName(name string, p abi.Plugin) abi.PluginFunction {
	return abi.PluginFunction(t.a.getPluginFunctionByName(name, uintptr(p)))
}

func (t *table) GetPluginFunctionName(f abi.PluginFunction) string {
	return goString(t.a.getPluginFunctionName(uintptr(f)))
}

func (t *table) GetPluginFunctionArguments(f abi.PluginFunction) string {
	return goString(t.a.getPluginFunctionArguments(uintptr(f)))
}

func (t *table) GetPluginFunctionReturnType(f abi.PluginFunction) string {
	return goString(t.a.getPluginFunctionReturnType(uintptr(f)))
}

func (t *table) GetPluginPath(p abi.Plugin) string { return goString(t.a.getPluginPath(uintptr(p))) }
func (t *table) GetPluginVersion(p abi.Plugin) int { return int(t.a.getPluginVersion(uintptr(p))) }

func (t *table) Invoke(p abi.Plugin, name string, args abi.Map) abi.Map {
	return abi.Map(t.a.invoke(uintptr(p), name, uintptr(args)))
}

func (t *table) CreateCore(flags int) abi.Core { return abi.Core(t.a.createCore(int32(flags))) }
func (t *table) FreeCore(core abi.Core)        { t.a.freeCore(uintptr(core)) }

func (t *table) SetMaxCacheSize(bytes int64, core abi.Core) int64 {
	return t.a.setMaxCacheSize(bytes, uintptr(core))
}

func (t *table) SetThreadCount(threads int, core abi.Core) int {
	return int(t.a.setThreadCount(int32(threads), uintptr(core)))
}

func (t *table) GetCoreInfo(core abi.Core) abi.CoreInfo {
	var info cCoreInfo
	t.a.getCoreInfo(uintptr(core), &info)
	return abi.CoreInfo{
		VersionString:       goString(info.versionString),
		Core:                int(info.core),
		API:                 int(info.api),
		NumThreads:          int(info.numThreads),
		MaxFramebufferSize:  info.maxFramebufferSize,
		UsedFramebufferSize: info.usedFramebufferSize,
	}
}

func (t *table) LogMessage(mt abi.MessageType, msg string, core abi.Core) {
	t.a.logMessage(int32(mt), msg, uintptr(core))
}

func (t *table) AddLogHandler(userData uintptr, core abi.Core) abi.LogHandle {
	return abi.LogHandle(t.a.addLogHandler(logHandlerCallback, logFreeCallback, userData, uintptr(core)))
}

func (t *table) RemoveLogHandler(h abi.LogHandle, core abi.Core) bool {
	return t.a.removeLogHandler(uintptr(h), uintptr(core)) != 0
}

func (t *table) ClearNodeCache(node abi.Node)  { t.a.clearNodeCache(uintptr(node)) }
func (t *table) ClearCoreCaches(core abi.Core) { t.a.clearCoreCaches(uintptr(core)) }

func (t *table) GetNodeName(node abi.Node) string { return goString(t.a.getNodeName(uintptr(node))) }

func (t *table) GetNodeFilterMode(node abi.Node) abi.FilterMode {
	return abi.FilterMode(t.a.getNodeFilterMode(uintptr(node)))
}

func (t *table) GetNumNodeDependencies(node abi.Node) int {
	return int(t.a.getNumNodeDependencies(uintptr(node)))
}

func (t *table) GetNodeDependency(node abi.Node, index int) abi.FilterDependency {
	n := t.GetNumNodeDependencies(node)
	p := t.a.getNodeDependencies(uintptr(node))
	if p == nil || index < 0 || index >= n {
		return abi.FilterDependency{}
	}
	d := unsafe.Slice(p, n)[index]
	return abi.FilterDependency{Source: abi.Node(d.source), RequestPattern: abi.RequestPattern(d.requestPattern)}
}

func (t *table) GetCoreNodeTiming(core abi.Core) bool {
	return t.a.getCoreNodeTiming(uintptr(core)) != 0
}

func (t *table) SetCoreNodeTiming(core abi.Core, enable bool) {
	t.a.setCoreNodeTiming(uintptr(core), boolInt(enable))
}

func (t *table) GetNodeProcessingTime(node abi.Node, reset bool) int64 {
	return t.a.getNodeProcessingTime(uintptr(node), boolInt(reset))
}

func (t *table) GetFreedNodeProcessingTime(core abi.Core, reset bool) int64 {
	return t.a.getFreedNodeProcessingTime(uintptr(core), boolInt(reset))
}
