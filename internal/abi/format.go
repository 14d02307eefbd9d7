package abi

import (
	"fmt"
	"math/bits"
)

// VideoFormatID packs a format description into the engine's 32-bit ID.
func VideoFormatID(cf ColorFamily, st SampleType, bitsPerSample, ssw, ssh int) uint32 {
	return uint32(cf)<<28 | uint32(st)<<24 | uint32(bitsPerSample)<<16 | uint32(ssw)<<8 | uint32(ssh)
}

// ID returns the packed format ID of f.
func (f VideoFormat) ID() uint32 {
	return VideoFormatID(f.ColorFamily, f.SampleType, f.BitsPerSample, f.SubSamplingW, f.SubSamplingH)
}

// UnpackVideoFormatID splits a format ID into its fields.
func UnpackVideoFormatID(id uint32) (cf ColorFamily, st SampleType, bitsPerSample, ssw, ssh int) {
	return ColorFamily(id >> 28 & 0xf), SampleType(id >> 24 & 0xf), int(id >> 16 & 0xff), int(id >> 8 & 0xff), int(id & 0xff)
}

// BuildVideoFormat validates a format description and fills in the derived
// fields. It applies the same rules the engine's queryVideoFormat does.
func BuildVideoFormat(cf ColorFamily, st SampleType, bitsPerSample, ssw, ssh int) (VideoFormat, bool) {
	switch cf {
	case ColorFamilyGray, ColorFamilyRGB, ColorFamilyYUV:
	default:
		return VideoFormat{}, false
	}
	switch st {
	case SampleTypeInteger:
		if bitsPerSample < 8 || bitsPerSample > 32 {
			return VideoFormat{}, false
		}
	case SampleTypeFloat:
		if bitsPerSample != 16 && bitsPerSample != 32 {
			return VideoFormat{}, false
		}
	default:
		return VideoFormat{}, false
	}
	if ssw < 0 || ssh < 0 || ssw > 4 || ssh > 4 {
		return VideoFormat{}, false
	}
	if cf != ColorFamilyYUV && (ssw != 0 || ssh != 0) {
		return VideoFormat{}, false
	}
	f := VideoFormat{
		ColorFamily:    cf,
		SampleType:     st,
		BitsPerSample:  bitsPerSample,
		BytesPerSample: bytesForBits(bitsPerSample),
		SubSamplingW:   ssw,
		SubSamplingH:   ssh,
		NumPlanes:      3,
	}
	if cf == ColorFamilyGray {
		f.NumPlanes = 1
	}
	return f, true
}

// BuildAudioFormat validates an audio format description.
func BuildAudioFormat(st SampleType, bitsPerSample int, layout uint64) (AudioFormat, bool) {
	switch st {
	case SampleTypeInteger:
		if bitsPerSample < 16 || bitsPerSample > 32 {
			return AudioFormat{}, false
		}
	case SampleTypeFloat:
		if bitsPerSample != 32 {
			return AudioFormat{}, false
		}
	default:
		return AudioFormat{}, false
	}
	channels := bits.OnesCount64(layout)
	if channels == 0 {
		return AudioFormat{}, false
	}
	return AudioFormat{
		SampleType:     st,
		BitsPerSample:  bitsPerSample,
		BytesPerSample: bytesForBits(bitsPerSample),
		NumChannels:    channels,
		ChannelLayout:  layout,
	}, true
}

func bytesForBits(b int) int {
	n := (b + 7) / 8
	switch {
	case n <= 1:
		return 1
	case n <= 2:
		return 2
	default:
		return 4
	}
}

// VideoFormatName renders the engine's canonical format name, e.g.
// "YUV420P8", "RGB24", "GrayS".
func VideoFormatName(f VideoFormat) string {
	float := f.SampleType == SampleTypeFloat
	suffix := func() string {
		if float {
			if f.BitsPerSample == 16 {
				return "H"
			}
			return "S"
		}
		return fmt.Sprint(f.BitsPerSample)
	}
	switch f.ColorFamily {
	case ColorFamilyGray:
		return "Gray" + suffix()
	case ColorFamilyRGB:
		if float {
			return "RGB" + suffix()
		}
		return fmt.Sprint("RGB", f.BitsPerSample*3)
	case ColorFamilyYUV:
		var sub string
		switch [2]int{f.SubSamplingW, f.SubSamplingH} {
		case [2]int{0, 0}:
			sub = "444"
		case [2]int{1, 0}:
			sub = "422"
		case [2]int{1, 1}:
			sub = "420"
		case [2]int{2, 0}:
			sub = "411"
		case [2]int{2, 2}:
			sub = "410"
		case [2]int{0, 1}:
			sub = "440"
		default:
			return fmt.Sprintf("YUVssw%dssh%dP%s", f.SubSamplingW, f.SubSamplingH, suffix())
		}
		return "YUV" + sub + "P" + suffix()
	default:
		return "Undefined"
	}
}

// AudioFormatName renders the engine's canonical audio format name.
func AudioFormatName(f AudioFormat) string {
	kind := ""
	if f.SampleType == SampleTypeFloat {
		kind = "F"
	}
	return fmt.Sprintf("Audio%d%s (%d CH)", f.BitsPerSample, kind, f.NumChannels)
}
