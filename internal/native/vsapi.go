//go:build darwin || linux

package native

import (
	"unsafe"

	"github.com/ebitengine/purego"
)

// C mirrors of the structs passed by pointer. Go lays these out exactly as
// the C compiler does on 64-bit targets.
type cVideoFormat struct {
	colorFamily    int32
	sampleType     int32
	bitsPerSample  int32
	bytesPerSample int32
	subSamplingW   int32
	subSamplingH   int32
	numPlanes      int32
}

type cVideoInfo struct {
	format    cVideoFormat
	fpsNum    int64
	fpsDen    int64
	width     int32
	height    int32
	numFrames int32
}

type cAudioFormat struct {
	sampleType     int32
	bitsPerSample  int32
	bytesPerSample int32
	numChannels    int32
	channelLayout  uint64
}

type cAudioInfo struct {
	format     cAudioFormat
	sampleRate int32
	numSamples int64
	numFrames  int32
}

type cCoreInfo struct {
	versionString       uintptr
	core                int32
	api                 int32
	numThreads          int32
	maxFramebufferSize  int64
	usedFramebufferSize int64
}

type cFilterDependency struct {
	source         uintptr
	requestPattern int32
}

// rawAPI is the 4.0 VSAPI struct: one function pointer per member, in
// declaration order. Members this package never calls keep their slot.
type rawAPI struct {
	createVideoFilter           uintptr
	createVideoFilter2          uintptr
	createAudioFilter           uintptr
	createAudioFilter2          uintptr
	setLinearFilter             uintptr
	setCacheMode                uintptr
	setCacheOptions             uintptr
	freeNode                    uintptr
	addNodeRef                  uintptr
	getNodeType                 uintptr
	getVideoInfo                uintptr
	getAudioInfo                uintptr
	newVideoFrame               uintptr
	newVideoFrame2              uintptr
	newAudioFrame               uintptr
	newAudioFrame2              uintptr
	freeFrame                   uintptr
	addFrameRef                 uintptr
	copyFrame                   uintptr
	getFramePropertiesRO        uintptr
	getFramePropertiesRW        uintptr
	getStride                   uintptr
	getReadPtr                  uintptr
	getWritePtr                 uintptr
	getVideoFrameFormat         uintptr
	getAudioFrameFormat         uintptr
	getFrameType                uintptr
	getFrameWidth               uintptr
	getFrameHeight              uintptr
	getFrameLength              uintptr
	getVideoFormatName          uintptr
	getAudioFormatName          uintptr
	queryVideoFormat            uintptr
	queryAudioFormat            uintptr
	queryVideoFormatID          uintptr
	getVideoFormatByID          uintptr
	getFrame                    uintptr
	getFrameAsync               uintptr
	getFrameFilter              uintptr
	requestFrameFilter          uintptr
	releaseFrameEarly           uintptr
	cacheFrame                  uintptr
	setFilterError              uintptr
	createFunction              uintptr
	freeFunction                uintptr
	addFunctionRef              uintptr
	callFunction                uintptr
	createMap                   uintptr
	freeMap                     uintptr
	clearMap                    uintptr
	copyMap                     uintptr
	mapSetError                 uintptr
	mapGetError                 uintptr
	mapNumKeys                  uintptr
	mapGetKey                   uintptr
	mapDeleteKey                uintptr
	mapNumElements              uintptr
	mapGetType                  uintptr
	mapSetEmpty                 uintptr
	mapGetInt                   uintptr
	mapGetIntSaturated          uintptr
	mapGetIntArray              uintptr
	mapSetInt                   uintptr
	mapSetIntArray              uintptr
	mapGetFloat                 uintptr
	mapGetFloatSaturated        uintptr
	mapGetFloatArray            uintptr
	mapSetFloat                 uintptr
	mapSetFloatArray            uintptr
	mapGetData                  uintptr
	mapGetDataSize              uintptr
	mapGetDataTypeHint          uintptr
	mapSetData                  uintptr
	mapGetNode                  uintptr
	mapSetNode                  uintptr
	mapConsumeNode              uintptr
	mapGetFrame                 uintptr
	mapSetFrame                 uintptr
	mapConsumeFrame             uintptr
	mapGetFunction              uintptr
	mapSetFunction              uintptr
	mapConsumeFunction          uintptr
	registerFunction            uintptr
	getPluginByID               uintptr
	getPluginByNamespace        uintptr
	getNextPlugin               uintptr
	getPluginName               uintptr
	getPluginID                 uintptr
	getPluginNamespace          uintptr
	getNextPluginFunction       uintptr
	getPluginFunctionByName     uintptr
	getPluginFunctionName       uintptr
	getPluginFunctionArguments  uintptr
	getPluginFunctionReturnType uintptr
	getPluginPath               uintptr
	getPluginVersion            uintptr
	invoke                      uintptr
	createCore                  uintptr
	freeCore                    uintptr
	setMaxCacheSize             uintptr
	setThreadCount              uintptr
	getCoreInfo                 uintptr
	getAPIVersion               uintptr
	logMessage                  uintptr
	addLogHandler               uintptr
	removeLogHandler            uintptr
}

// rawAPI41 follows rawAPI in memory when the engine hands out a 4.1 table.
// It must not be read from a 4.0 table.
type rawAPI41 struct {
	getNodeCreationFunctionName      uintptr
	getNodeCreationFunctionArguments uintptr
	getNodeName                      uintptr
	getNodeFilterMode                uintptr
	getNumNodeDependencies           uintptr
	getNodeDependencies              uintptr
	getCoreNodeTiming                uintptr
	setCoreNodeTiming                uintptr
	getNodeProcessingTime            uintptr
	getFreedNodeProcessingTime       uintptr
	clearNodeCache                   uintptr
	clearCoreCaches                  uintptr
}

// vsapi holds the typed bindings of one negotiated table.
type vsapi struct {
	minor int

	createVideoFilter2 func(name string, vi *cVideoInfo, getFrame, free uintptr, mode int32, deps *cFilterDependency, numDeps int32, instance, core uintptr) uintptr
	createAudioFilter2 func(name string, ai *cAudioInfo, getFrame, free uintptr, mode int32, deps *cFilterDependency, numDeps int32, instance, core uintptr) uintptr
	setLinearFilter    func(node uintptr) int32
	setCacheMode       func(node uintptr, mode int32)
	setCacheOptions    func(node uintptr, fixedSize, maxSize, maxHistorySize int32)
	freeNode           func(node uintptr)
	addNodeRef         func(node uintptr) uintptr
	getNodeType        func(node uintptr) int32
	getVideoInfo       func(node uintptr) *cVideoInfo
	getAudioInfo       func(node uintptr) *cAudioInfo

	newVideoFrame        func(format *cVideoFormat, width, height int32, propSrc, core uintptr) uintptr
	newAudioFrame        func(format *cAudioFormat, numSamples int32, propSrc, core uintptr) uintptr
	freeFrame            func(f uintptr)
	addFrameRef          func(f uintptr) uintptr
	copyFrame            func(f, core uintptr) uintptr
	getFramePropertiesRO func(f uintptr) uintptr
	getFramePropertiesRW func(f uintptr) uintptr
	getStride            func(f uintptr, plane int32) int64
	getReadPtr           func(f uintptr, plane int32) unsafe.Pointer
	getWritePtr          func(f uintptr, plane int32) unsafe.Pointer
	getVideoFrameFormat  func(f uintptr) *cVideoFormat
	getAudioFrameFormat  func(f uintptr) *cAudioFormat
	getFrameType         func(f uintptr) int32
	getFrameWidth        func(f uintptr, plane int32) int32
	getFrameHeight       func(f uintptr, plane int32) int32
	getFrameLength       func(f uintptr) int32

	getVideoFormatName func(format *cVideoFormat, buf *byte) int32
	getAudioFormatName func(format *cAudioFormat, buf *byte) int32
	queryVideoFormat   func(format *cVideoFormat, cf, st, bits, ssw, ssh int32, core uintptr) int32
	queryAudioFormat   func(format *cAudioFormat, st, bits int32, layout uint64, core uintptr) int32
	queryVideoFormatID func(cf, st, bits, ssw, ssh int32, core uintptr) uint32
	getVideoFormatByID func(format *cVideoFormat, id uint32, core uintptr) int32

	getFrame           func(n int32, node uintptr, errBuf *byte, bufSize int32) uintptr
	getFrameAsync      func(n int32, node, callback, userData uintptr)
	getFrameFilter     func(n int32, node, ctx uintptr) uintptr
	requestFrameFilter func(n int32, node, ctx uintptr)
	releaseFrameEarly  func(node uintptr, n int32, ctx uintptr)
	setFilterError     func(msg string, ctx uintptr)

	createFunction func(fn, userData, free, core uintptr) uintptr
	freeFunction   func(f uintptr)
	addFunctionRef func(f uintptr) uintptr
	callFunction   func(f, in, out uintptr)

	createMap      func() uintptr
	freeMap        func(m uintptr)
	clearMap       func(m uintptr)
	copyMap        func(src, dst uintptr)
	mapSetError    func(m uintptr, msg string)
	mapGetError    func(m uintptr) uintptr
	mapNumKeys     func(m uintptr) int32
	mapGetKey      func(m uintptr, index int32) uintptr
	mapDeleteKey   func(m uintptr, key string) int32
	mapNumElements func(m uintptr, key string) int32
	mapGetType     func(m uintptr, key string) int32
	mapSetEmpty    func(m uintptr, key string, t int32) int32

	mapGetInt          func(m uintptr, key string, index int32, err *int32) int64
	mapGetIntArray     func(m uintptr, key string, err *int32) *int64
	mapSetInt          func(m uintptr, key string, v int64, appendMode int32) int32
	mapSetIntArray     func(m uintptr, key string, v *int64, size int32) int32
	mapGetFloat        func(m uintptr, key string, index int32, err *int32) float64
	mapGetFloatArray   func(m uintptr, key string, err *int32) *float64
	mapSetFloat        func(m uintptr, key string, v float64, appendMode int32) int32
	mapSetFloatArray   func(m uintptr, key string, v *float64, size int32) int32
	mapGetData         func(m uintptr, key string, index int32, err *int32) uintptr
	mapGetDataSize     func(m uintptr, key string, index int32, err *int32) int32
	mapGetDataTypeHint func(m uintptr, key string, index int32, err *int32) int32
	mapSetData         func(m uintptr, key string, data *byte, size, hint, appendMode int32) int32

	mapGetNode         func(m uintptr, key string, index int32, err *int32) uintptr
	mapSetNode         func(m uintptr, key string, node uintptr, appendMode int32) int32
	mapConsumeNode     func(m uintptr, key string, node uintptr, appendMode int32) int32
	mapGetFrame        func(m uintptr, key string, index int32, err *int32) uintptr
	mapSetFrame        func(m uintptr, key string, f uintptr, appendMode int32) int32
	mapConsumeFrame    func(m uintptr, key string, f uintptr, appendMode int32) int32
	mapGetFunction     func(m uintptr, key string, index int32, err *int32) uintptr
	mapSetFunction     func(m uintptr, key string, f uintptr, appendMode int32) int32
	mapConsumeFunction func(m uintptr, key string, f uintptr, appendMode int32) int32

	registerFunction            func(name, args, returnType string, fn, userData, plugin uintptr) int32
	getPluginByID               func(id string, core uintptr) uintptr
	getPluginByNamespace        func(ns string, core uintptr) uintptr
	getNextPlugin               func(p, core uintptr) uintptr
	getPluginName               func(p uintptr) uintptr
	getPluginID                 func(p uintptr) uintptr
	getPluginNamespace          func(p uintptr) uintptr
	getNextPluginFunction       func(f, p uintptr) uintptr
	getPluginFunctionByName     func(name string, p uintptr) uintptr
	getPluginFunctionName       func(f uintptr) uintptr
	getPluginFunctionArguments  func(f uintptr) uintptr
	getPluginFunctionReturnType func(f uintptr) uintptr
	getPluginPath               func(p uintptr) uintptr
	getPluginVersion            func(p uintptr) int32
	invoke                      func(p uintptr, name string, args uintptr) uintptr

	createCore       func(flags int32) uintptr
	freeCore         func(core uintptr)
	setMaxCacheSize  func(bytes int64, core uintptr) int64
	setThreadCount   func(threads int32, core uintptr) int32
	getCoreInfo      func(core uintptr, info *cCoreInfo)
	getAPIVersion    func() int32
	logMessage       func(t int32, msg string, core uintptr)
	addLogHandler    func(handler, free, userData, core uintptr) uintptr
	removeLogHandler func(h, core uintptr) int32

	getNodeName                func(node uintptr) uintptr
	getNodeFilterMode          func(node uintptr) int32
	getNumNodeDependencies     func(node uintptr) int32
	getNodeDependencies        func(node uintptr) *cFilterDependency
	getCoreNodeTiming          func(core uintptr) int32
	setCoreNodeTiming          func(core uintptr, enable int32)
	getNodeProcessingTime      func(node uintptr, reset int32) int64
	getFreedNodeProcessingTime func(core uintptr, reset int32) int64
	clearNodeCache             func(node uintptr)
	clearCoreCaches            func(core uintptr)
}

func bind(fn any, ptr uintptr) {
	if ptr != 0 {
		purego.RegisterFunc(fn, ptr)
	}
}

// bindAPI binds the table at p. minor selects whether the 4.1 members are
// read.
func bindAPI(p uintptr, minor int) *vsapi {
	r := (*rawAPI)(unsafe.Pointer(p))
	a := &vsapi{minor: minor}

	bind(&a.createVideoFilter2, r.createVideoFilter2)
	bind(&a.createAudioFilter2, r.createAudioFilter2)
	bind(&a.setLinearFilter, r.setLinearFilter)
	bind(&a.setCacheMode, r.setCacheMode)
	bind(&a.setCacheOptions, r.setCacheOptions)
	bind(&a.freeNode, r.freeNode)
	bind(&a.addNodeRef, r.addNodeRef)
	bind(&a.getNodeType, r.getNodeType)
	bind(&a.getVideoInfo, r.getVideoInfo)
	bind(&a.getAudioInfo, r.getAudioInfo)

	bind(&a.newVideoFrame, r.newVideoFrame)
	bind(&a.newAudioFrame, r.newAudioFrame)
	bind(&a.freeFrame, r.freeFrame)
	bind(&a.addFrameRef, r.addFrameRef)
	bind(&a.copyFrame, r.copyFrame)
	bind(&a.getFramePropertiesRO, r.getFramePropertiesRO)
	bind(&a.getFramePropertiesRW, r.getFramePropertiesRW)
	bind(&a.getStride, r.getStride)
	bind(&a.getReadPtr, r.getReadPtr)
	bind(&a.getWritePtr, r.getWritePtr)
	bind(&a.getVideoFrameFormat, r.getVideoFrameFormat)
	bind(&a.getAudioFrameFormat, r.getAudioFrameFormat)
	bind(&a.getFrameType, r.getFrameType)
	bind(&a.getFrameWidth, r.getFrameWidth)
	bind(&a.getFrameHeight, r.getFrameHeight)
	bind(&a.getFrameLength, r.getFrameLength)

	bind(&a.getVideoFormatName, r.getVideoFormatName)
	bind(&a.getAudioFormatName, r.getAudioFormatName)
	bind(&a.queryVideoFormat, r.queryVideoFormat)
	bind(&a.queryAudioFormat, r.queryAudioFormat)
	bind(&a.queryVideoFormatID, r.queryVideoFormatID)
	bind(&a.getVideoFormatByID, r.getVideoFormatByID)

	bind(&a.getFrame, r.getFrame)
	bind(&a.getFrameAsync, r.getFrameAsync)
	bind(&a.getFrameFilter, r.getFrameFilter)
	bind(&a.requestFrameFilter, r.requestFrameFilter)
	bind(&a.releaseFrameEarly, r.releaseFrameEarly)
	bind(&a.setFilterError, r.setFilterError)

	bind(&a.createFunction, r.createFunction)
	bind(&a.freeFunction, r.freeFunction)
	bind(&a.addFunctionRef, r.addFunctionRef)
	bind(&a.callFunction, r.callFunction)

	bind(&a.createMap, r.createMap)
	bind(&a.freeMap, r.freeMap)
	bind(&a.clearMap, r.clearMap)
	bind(&a.copyMap, r.copyMap)
	bind(&a.mapSetError, r.mapSetError)
	bind(&a.mapGetError, r.mapGetError)
	bind(&a.mapNumKeys, r.mapNumKeys)
	bind(&a.mapGetKey, r.mapGetKey)
	bind(&a.mapDeleteKey, r.mapDeleteKey)
	bind(&a.mapNumElements, r.mapNumElements)
	bind(&a.mapGetType, r.mapGetType)
	bind(&a.mapSetEmpty, r.mapSetEmpty)

	bind(&a.mapGetInt, r.mapGetInt)
	bind(&a.mapGetIntArray, r.mapGetIntArray)
	bind(&a.mapSetInt, r.mapSetInt)
	bind(&a.mapSetIntArray, r.mapSetIntArray)
	bind(&a.mapGetFloat, r.mapGetFloat)
	bind(&a.mapGetFloatArray, r.mapGetFloatArray)
	bind(&a.mapSetFloat, r.mapSetFloat)
	bind(&a.mapSetFloatArray, r.mapSetFloatArray)
	bind(&a.mapGetData, r.mapGetData)
	bind(&a.mapGetDataSize, r.mapGetDataSize)
	bind(&a.mapGetDataTypeHint, r.mapGetDataTypeHint)
	bind(&a.mapSetData, r.mapSetData)

	bind(&a.mapGetNode, r.mapGetNode)
	bind(&a.mapSetNode, r.mapSetNode)
	bind(&a.mapConsumeNode, r.mapConsumeNode)
	bind(&a.mapGetFrame, r.mapGetFrame)
	bind(&a.mapSetFrame, r.mapSetFrame)
	bind(&a.mapConsumeFrame, r.mapConsumeFrame)
	bind(&a.mapGetFunction, r.mapGetFunction)
	bind(&a.mapSetFunction, r.mapSetFunction)
	bind(&a.mapConsumeFunction, r.mapConsumeFunction)

	bind(&a.registerFunction, r.registerFunction)
	bind(&a.getPluginByID, r.getPluginByID)
	bind(&a.getPluginByNamespace, r.getPluginByNamespace)
	bind(&a.getNextPlugin, r.getNextPlugin)
	bind(&a.getPluginName, r.getPluginName)
	bind(&a.getPluginID, r.getPluginID)
	bind(&a.getPluginNamespace, r.getPluginNamespace)
	bind(&a.getNextPluginFunction, r.getNextPluginFunction)
	bind(&a.getPluginFunctionByName, r.getPluginFunctionByName)
	bind(&a.getPluginFunctionName, r.getPluginFunctionName)
	bind(&a.getPluginFunctionArguments, r.getPluginFunctionArguments)
	bind(&a.getPluginFunctionReturnType, r.getPluginFunctionReturnType)
	bind(&a.getPluginPath, r.getPluginPath)
	bind(&a.getPluginVersion, r.getPluginVersion)
	bind(&a.invoke, r.invoke)

	bind(&a.createCore, r.createCore)
	bind(&a.freeCore, r.freeCore)
	bind(&a.setMaxCacheSize, r.setMaxCacheSize)
	bind(&a.setThreadCount, r.setThreadCount)
	bind(&a.getCoreInfo, r.getCoreInfo)
	bind(&a.getAPIVersion, r.getAPIVersion)
	bind(&a.logMessage, r.logMessage)
	bind(&a.addLogHandler, r.addLogHandler)
	bind(&a.removeLogHandler, r.removeLogHandler)

	if minor >= 1 {
		t := (*rawAPI41)(unsafe.Add(unsafe.Pointer(p), unsafe.Sizeof(rawAPI{})))
		bind(&a.getNodeName, t.getNodeName)
		bind(&a.getNodeFilterMode, t.getNodeFilterMode)
		bind(&a.getNumNodeDependencies, t.getNumNodeDependencies)
		bind(&a.getNodeDependencies, t.getNodeDependencies)
		bind(&a.getCoreNodeTiming, t.getCoreNodeTiming)
		bind(&a.setCoreNodeTiming, t.setCoreNodeTiming)
		bind(&a.getNodeProcessingTime, t.getNodeProcessingTime)
		bind(&a.getFreedNodeProcessingTime, t.getFreedNodeProcessingTime)
		bind(&a.clearNodeCache, t.clearNodeCache)
		bind(&a.clearCoreCaches, t.clearCoreCaches)
	}
	return a
}

// rawScriptAPI is the VSSCRIPTAPI struct.
type rawScriptAPI struct {
	getAPIVersion      uintptr
	getVSAPI           uintptr
	createScript       uintptr
	getCore            uintptr
	evaluateBuffer     uintptr
	evaluateFile       uintptr
	getError           uintptr
	getExitCode        uintptr
	getVariable        uintptr
	setVariables       uintptr
	getOutputNode      uintptr
	getOutputAlphaNode uintptr
	getAltOutputMode   uintptr
	freeScript         uintptr
	evalSetWorkingDir  uintptr
}

type vsscriptapi struct {
	getAPIVersion      func() int32
	createScript       func(core uintptr) uintptr
	getCore            func(s uintptr) uintptr
	evaluateBuffer     func(s uintptr, buffer, filename string) int32
	evaluateFile       func(s uintptr, filename string) int32
	getError           func(s uintptr) uintptr
	getExitCode        func(s uintptr) int32
	getVariable        func(s uintptr, name string, dst uintptr) int32
	setVariables       func(s, vars uintptr) int32
	getOutputNode      func(s uintptr, index int32) uintptr
	getOutputAlphaNode func(s uintptr, index int32) uintptr
	getAltOutputMode   func(s uintptr, index int32) int32
	freeScript         func(s uintptr)
	evalSetWorkingDir  func(s uintptr, setCWD int32)
}

func bindScriptAPI(p uintptr) *vsscriptapi {
	r := (*rawScriptAPI)(unsafe.Pointer(p))
	s := &vsscriptapi{}
	bind(&s.getAPIVersion, r.getAPIVersion)
	bind(&s.createScript, r.createScript)
	bind(&s.getCore, r.getCore)
	bind(&s.evaluateBuffer, r.evaluateBuffer)
	bind(&s.evaluateFile, r.evaluateFile)
	bind(&s.getError, r.getError)
	bind(&s.getExitCode, r.getExitCode)
	bind(&s.getVariable, r.getVariable)
	bind(&s.setVariables, r.setVariables)
	bind(&s.getOutputNode, r.getOutputNode)
	bind(&s.getOutputAlphaNode, r.getOutputAlphaNode)
	bind(&s.getAltOutputMode, r.getAltOutputMode)
	bind(&s.freeScript, r.freeScript)
	bind(&s.evalSetWorkingDir, r.evalSetWorkingDir)
	return s
}
