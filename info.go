package vapoursynth

import (
	"github.com/thesyncim/vapoursynth/internal/abi"
)

// VideoInfo describes a video node's output. A zero Format, Width/Height or
// FPSNum means the property varies from frame to frame.
type VideoInfo struct {
	Format    VideoFormat
	FPSNum    int64
	FPSDen    int64
	Width     int
	Height    int
	NumFrames int
}

// ConstantFormat reports whether every frame has the same format.
func (v VideoInfo) ConstantFormat() bool { return v.Format.Defined() }

// ConstantSize reports whether every frame has the same dimensions.
func (v VideoInfo) ConstantSize() bool { return v.Width > 0 && v.Height > 0 }

// ConstantFramerate reports whether the node has a fixed frame rate.
func (v VideoInfo) ConstantFramerate() bool { return v.FPSNum > 0 && v.FPSDen > 0 }

func (v VideoInfo) toABI() abi.VideoInfo {
	return abi.VideoInfo{
		Format:    v.Format.toABI(),
		FPSNum:    v.FPSNum,
		FPSDen:    v.FPSDen,
		Width:     v.Width,
		Height:    v.Height,
		NumFrames: v.NumFrames,
	}
}

func videoInfoFromABI(v abi.VideoInfo) VideoInfo {
	return VideoInfo{
		Format:    videoFormatFromABI(v.Format),
		FPSNum:    v.FPSNum,
		FPSDen:    v.FPSDen,
		Width:     v.Width,
		Height:    v.Height,
		NumFrames: v.NumFrames,
	}
}

// AudioInfo describes an audio node's output.
type AudioInfo struct {
	Format     AudioFormat
	SampleRate int
	NumSamples int64
	NumFrames  int
}

// FrameSamples returns the number of samples carried by frame n.
func (a AudioInfo) FrameSamples(n int) int {
	if n < 0 || n >= a.NumFrames {
		return 0
	}
	if n < a.NumFrames-1 {
		return abi.AudioFrameSamples
	}
	return int(a.NumSamples - int64(n)*abi.AudioFrameSamples)
}

func (a AudioInfo) toABI() abi.AudioInfo {
	return abi.AudioInfo{
		Format:     a.Format.toABI(),
		SampleRate: a.SampleRate,
		NumSamples: a.NumSamples,
		NumFrames:  a.NumFrames,
	}
}

func audioInfoFromABI(a abi.AudioInfo) AudioInfo {
	return AudioInfo{
		Format:     audioFormatFromABI(a.Format),
		SampleRate: a.SampleRate,
		NumSamples: a.NumSamples,
		NumFrames:  a.NumFrames,
	}
}

// AudioFrameSamples is the sample count of every audio frame but the last.
const AudioFrameSamples = abi.AudioFrameSamples

// CoreInfo describes a running core.
type CoreInfo struct {
	VersionString       string
	Core                int
	API                 Version
	NumThreads          int
	MaxFramebufferSize  int64
	UsedFramebufferSize int64
}
