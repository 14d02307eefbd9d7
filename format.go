package vapoursynth

import (
	"github.com/thesyncim/vapoursynth/internal/abi"
)

// ColorFamily of a video format.
type ColorFamily int

const (
	ColorFamilyUndefined = ColorFamily(abi.ColorFamilyUndefined)
	ColorFamilyGray      = ColorFamily(abi.ColorFamilyGray)
	ColorFamilyRGB       = ColorFamily(abi.ColorFamilyRGB)
	ColorFamilyYUV       = ColorFamily(abi.ColorFamilyYUV)
)

func (c ColorFamily) String() string {
	switch c {
	case ColorFamilyGray:
		return "Gray"
	case ColorFamilyRGB:
		return "RGB"
	case ColorFamilyYUV:
		return "YUV"
	default:
		return "Undefined"
	}
}

// SampleType is integer or floating point.
type SampleType int

const (
	SampleTypeInteger = SampleType(abi.SampleTypeInteger)
	SampleTypeFloat   = SampleType(abi.SampleTypeFloat)
)

func (s SampleType) String() string {
	switch s {
	case SampleTypeInteger:
		return "Integer"
	case SampleTypeFloat:
		return "Float"
	default:
		return "Unknown"
	}
}

// MediaType of a node or frame.
type MediaType int

const (
	MediaTypeVideo = MediaType(abi.MediaTypeVideo)
	MediaTypeAudio = MediaType(abi.MediaTypeAudio)
)

func (m MediaType) String() string {
	switch m {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Preset video format IDs.
const (
	FormatGray8  uint32 = 1<<28 | 8<<16
	FormatGray16 uint32 = 1<<28 | 16<<16
	FormatGray32 uint32 = 1<<28 | 32<<16
	FormatGrayH  uint32 = 1<<28 | 1<<24 | 16<<16
	FormatGrayS  uint32 = 1<<28 | 1<<24 | 32<<16

	FormatYUV410P8  uint32 = 3<<28 | 8<<16 | 2<<8 | 2
	FormatYUV411P8  uint32 = 3<<28 | 8<<16 | 2<<8
	FormatYUV440P8  uint32 = 3<<28 | 8<<16 | 1
	FormatYUV420P8  uint32 = 3<<28 | 8<<16 | 1<<8 | 1
	FormatYUV420P10 uint32 = 3<<28 | 10<<16 | 1<<8 | 1
	FormatYUV420P16 uint32 = 3<<28 | 16<<16 | 1<<8 | 1
	FormatYUV422P8  uint32 = 3<<28 | 8<<16 | 1<<8
	FormatYUV422P10 uint32 = 3<<28 | 10<<16 | 1<<8
	FormatYUV444P8  uint32 = 3<<28 | 8<<16
	FormatYUV444P16 uint32 = 3<<28 | 16<<16
	FormatYUV444PS  uint32 = 3<<28 | 1<<24 | 32<<16

	FormatRGB24 uint32 = 2<<28 | 8<<16
	FormatRGB30 uint32 = 2<<28 | 10<<16
	FormatRGB48 uint32 = 2<<28 | 16<<16
	FormatRGBH  uint32 = 2<<28 | 1<<24 | 16<<16
	FormatRGBS  uint32 = 2<<28 | 1<<24 | 32<<16
)

// VideoFormat describes the sample layout of video frames.
type VideoFormat struct {
	ColorFamily    ColorFamily
	SampleType     SampleType
	BitsPerSample  int
	BytesPerSample int
	SubSamplingW   int // log2 horizontal chroma subsampling
	SubSamplingH   int // log2 vertical chroma subsampling
	NumPlanes      int
}

// ID returns the packed format ID.
func (f VideoFormat) ID() uint32 { return f.toABI().ID() }

// Defined reports whether f is a concrete format. Nodes with variable
// format report an undefined one.
func (f VideoFormat) Defined() bool { return f.ColorFamily != ColorFamilyUndefined }

// Name returns the canonical format name, e.g. "YUV420P8".
func (f VideoFormat) Name() string { return abi.VideoFormatName(f.toABI()) }

func (f VideoFormat) String() string { return f.Name() }

// PlaneWidth returns the width of plane for a frame of the given luma width.
func (f VideoFormat) PlaneWidth(plane, width int) int {
	if plane == 0 || f.ColorFamily != ColorFamilyYUV {
		return width
	}
	return width >> f.SubSamplingW
}

// PlaneHeight returns the height of plane for a frame of the given luma height.
func (f VideoFormat) PlaneHeight(plane, height int) int {
	if plane == 0 || f.ColorFamily != ColorFamilyYUV {
		return height
	}
	return height >> f.SubSamplingH
}

func (f VideoFormat) toABI() abi.VideoFormat {
	return abi.VideoFormat{
		ColorFamily:    abi.ColorFamily(f.ColorFamily),
		SampleType:     abi.SampleType(f.SampleType),
		BitsPerSample:  f.BitsPerSample,
		BytesPerSample: f.BytesPerSample,
		SubSamplingW:   f.SubSamplingW,
		SubSamplingH:   f.SubSamplingH,
		NumPlanes:      f.NumPlanes,
	}
}

func videoFormatFromABI(f abi.VideoFormat) VideoFormat {
	return VideoFormat{
		ColorFamily:    ColorFamily(f.ColorFamily),
		SampleType:     SampleType(f.SampleType),
		BitsPerSample:  f.BitsPerSample,
		BytesPerSample: f.BytesPerSample,
		SubSamplingW:   f.SubSamplingW,
		SubSamplingH:   f.SubSamplingH,
		NumPlanes:      f.NumPlanes,
	}
}

// Audio channel positions used in channel layouts.
const (
	ChannelFrontLeft    = 0
	ChannelFrontRight   = 1
	ChannelFrontCenter  = 2
	ChannelLowFrequency = 3
	ChannelBackLeft     = 4
	ChannelBackRight    = 5
	ChannelSideLeft     = 9
	ChannelSideRight    = 10
)

// Common channel layouts.
const (
	LayoutMono   uint64 = 1 << ChannelFrontCenter
	LayoutStereo uint64 = 1<<ChannelFrontLeft | 1<<ChannelFrontRight
	Layout5_1    uint64 = LayoutStereo | 1<<ChannelFrontCenter | 1<<ChannelLowFrequency | 1<<ChannelBackLeft | 1<<ChannelBackRight
)

// AudioFormat describes the sample layout of audio frames.
type AudioFormat struct {
	SampleType     SampleType
	BitsPerSample  int
	BytesPerSample int
	NumChannels    int
	ChannelLayout  uint64
}

// Name returns the canonical format name.
func (f AudioFormat) Name() string { return abi.AudioFormatName(f.toABI()) }

func (f AudioFormat) String() string { return f.Name() }

func (f AudioFormat) toABI() abi.AudioFormat {
	return abi.AudioFormat{
		SampleType:     abi.SampleType(f.SampleType),
		BitsPerSample:  f.BitsPerSample,
		BytesPerSample: f.BytesPerSample,
		NumChannels:    f.NumChannels,
		ChannelLayout:  f.ChannelLayout,
	}
}

func audioFormatFromABI(f abi.AudioFormat) AudioFormat {
	return AudioFormat{
		SampleType:     SampleType(f.SampleType),
		BitsPerSample:  f.BitsPerSample,
		BytesPerSample: f.BytesPerSample,
		NumChannels:    f.NumChannels,
		ChannelLayout:  f.ChannelLayout,
	}
}
