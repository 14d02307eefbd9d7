// Package abi describes the VapourSynth v4 C interface in Go terms.
//
// Opaque engine objects are carried as typed uintptr handles. A backend
// (the purego loader or the in-process test engine) implements [Table] and
// [ScriptTable]; everything above this package talks to the engine only
// through those two interfaces.
package abi

// Opaque engine object handles. Zero is always the null handle.
type (
	Core           uintptr
	Node           uintptr
	Frame          uintptr
	Map            uintptr
	Function       uintptr
	Plugin         uintptr
	PluginFunction uintptr
	FrameContext   uintptr
	LogHandle      uintptr
	Script         uintptr
)

// API version negotiated with the engine.
const (
	APIMajor = 4
	APIMinor = 1

	ScriptAPIMajor = 4
	ScriptAPIMinor = 1
)

// MakeVersion packs a major/minor pair the way the engine expects it.
func MakeVersion(major, minor int) int { return major<<16 | minor }

// SplitVersion is the inverse of MakeVersion.
func SplitVersion(v int) (major, minor int) { return v >> 16, v & 0xffff }

// ColorFamily mirrors VSColorFamily.
type ColorFamily int32

const (
	ColorFamilyUndefined ColorFamily = 0
	ColorFamilyGray      ColorFamily = 1
	ColorFamilyRGB       ColorFamily = 2
	ColorFamilyYUV       ColorFamily = 3
)

// SampleType mirrors VSSampleType.
type SampleType int32

const (
	SampleTypeInteger SampleType = 0
	SampleTypeFloat   SampleType = 1
)

// MediaType mirrors VSMediaType.
type MediaType int32

const (
	MediaTypeVideo MediaType = 1
	MediaTypeAudio MediaType = 2
)

// ActivationReason is passed to a filter's getFrame callback.
type ActivationReason int32

const (
	ActivationInitial        ActivationReason = 0
	ActivationAllFramesReady ActivationReason = 1
	ActivationError          ActivationReason = -1
)

// FilterMode mirrors VSFilterMode.
type FilterMode int32

const (
	FilterModeParallel         FilterMode = 0
	FilterModeParallelRequests FilterMode = 1
	FilterModeUnordered        FilterMode = 2
	FilterModeFrameState       FilterMode = 3
)

// CacheMode mirrors VSCacheMode.
type CacheMode int32

const (
	CacheModeAuto         CacheMode = -1
	CacheModeForceDisable CacheMode = 0
	CacheModeForceEnable  CacheMode = 1
)

// RequestPattern mirrors VSRequestPattern.
type RequestPattern int32

const (
	RequestPatternGeneral       RequestPattern = 0
	RequestPatternNoFrameReuse  RequestPattern = 1
	RequestPatternStrictSpatial RequestPattern = 2
)

// PropertyType mirrors VSPropertyType.
type PropertyType int32

const (
	PropertyUnset      PropertyType = 0
	PropertyInt        PropertyType = 1
	PropertyFloat      PropertyType = 2
	PropertyData       PropertyType = 3
	PropertyFunction   PropertyType = 4
	PropertyVideoNode  PropertyType = 5
	PropertyAudioNode  PropertyType = 6
	PropertyVideoFrame PropertyType = 7
	PropertyAudioFrame PropertyType = 8
)

// DataTypeHint mirrors VSDataTypeHint.
type DataTypeHint int32

const (
	DataUnknown DataTypeHint = -1
	DataBinary  DataTypeHint = 0
	DataUTF8    DataTypeHint = 1
)

// GetPropError mirrors VSMapPropertyError.
type GetPropError int32

const (
	PropSuccess GetPropError = 0
	PropUnset   GetPropError = 1
	PropType    GetPropError = 2
	PropError   GetPropError = 3
	PropIndex   GetPropError = 4
)

// AppendMode mirrors VSMapAppendMode.
type AppendMode int32

const (
	MapReplace AppendMode = 0
	MapAppend  AppendMode = 1
)

// MessageType mirrors VSMessageType.
type MessageType int32

const (
	MessageDebug       MessageType = 0
	MessageInformation MessageType = 1
	MessageWarning     MessageType = 2
	MessageCritical    MessageType = 3
	MessageFatal       MessageType = 4
)

// CoreCreationFlags mirrors VSCoreCreationFlags.
const (
	CoreEnableGraphInspection   = 1
	CoreDisableAutoLoading      = 2
	CoreDisableLibraryUnloading = 4
)

// PluginConfigFlags mirrors VSPluginConfigFlags.
const (
	PluginModifiable = 1
)

// AudioFrameSamples is the number of samples carried by every audio frame
// except possibly the last one.
const AudioFrameSamples = 3072

// VideoFormat mirrors VSVideoFormat.
type VideoFormat struct {
	ColorFamily    ColorFamily
	SampleType     SampleType
	BitsPerSample  int
	BytesPerSample int
	SubSamplingW   int
	SubSamplingH   int
	NumPlanes      int
}

// VideoInfo mirrors VSVideoInfo.
type VideoInfo struct {
	Format    VideoFormat
	FPSNum    int64
	FPSDen    int64
	Width     int
	Height    int
	NumFrames int
}

// AudioFormat mirrors VSAudioFormat.
type AudioFormat struct {
	SampleType     SampleType
	BitsPerSample  int
	BytesPerSample int
	NumChannels    int
	ChannelLayout  uint64
}

// AudioInfo mirrors VSAudioInfo.
type AudioInfo struct {
	Format     AudioFormat
	SampleRate int
	NumSamples int64
	NumFrames  int
}

// CoreInfo mirrors VSCoreInfo.
type CoreInfo struct {
	VersionString       string
	Core                int
	API                 int
	NumThreads          int
	MaxFramebufferSize  int64
	UsedFramebufferSize int64
}

// FilterDependency mirrors VSFilterDependency.
type FilterDependency struct {
	Source         Node
	RequestPattern RequestPattern
}
