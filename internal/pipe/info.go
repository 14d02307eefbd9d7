package pipe

import (
	"fmt"
	"io"
	"math/bits"
	"strings"

	vs "github.com/thesyncim/vapoursynth"
)

var channelNames = [...]string{
	"Front Left", "Front Right", "Front Center", "Low Frequency",
	"Back Left", "Back Right", "Front Left of Center", "Front Right of Center",
	"Back Center", "Side Left", "Side Right", "Top Center",
	"Top Front Left", "Top Front Center", "Top Front Right",
	"Top Back Left", "Top Back Center", "Top Back Right",
}

// LayoutString names the channels of a layout mask, lowest bit first.
func LayoutString(layout uint64) string {
	var names []string
	for layout != 0 {
		i := bits.TrailingZeros64(layout)
		layout &^= 1 << i
		if i < len(channelNames) {
			names = append(names, channelNames[i])
		} else {
			names = append(names, fmt.Sprintf("Channel %d", i))
		}
	}
	return strings.Join(names, ", ")
}

// WriteInfo writes a human readable description of node to w.
func WriteInfo(w io.Writer, node *vs.Node) error {
	var b strings.Builder
	switch node.Type() {
	case vs.MediaTypeVideo:
		vi, err := node.VideoInfo()
		if err != nil {
			return err
		}
		writeVideoInfo(&b, vi)
	case vs.MediaTypeAudio:
		ai, err := node.AudioInfo()
		if err != nil {
			return err
		}
		writeAudioInfo(&b, ai)
	default:
		return vs.ErrInvalidHandle
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeVideoInfo(b *strings.Builder, vi vs.VideoInfo) {
	if vi.ConstantSize() {
		fmt.Fprintf(b, "Width: %d\nHeight: %d\n", vi.Width, vi.Height)
	} else {
		b.WriteString("Width: Variable\nHeight: Variable\n")
	}
	fmt.Fprintf(b, "Frames: %d\n", vi.NumFrames)
	if vi.ConstantFramerate() {
		fmt.Fprintf(b, "FPS: %d/%d (%.3f fps)\n", vi.FPSNum, vi.FPSDen, float64(vi.FPSNum)/float64(vi.FPSDen))
	} else {
		b.WriteString("FPS: Variable\n")
	}
	if !vi.ConstantFormat() {
		b.WriteString("Format Name: Variable\n")
		return
	}
	f := vi.Format
	fmt.Fprintf(b, "Format Name: %s\n", f.Name())
	fmt.Fprintf(b, "Color Family: %s\n", f.ColorFamily)
	fmt.Fprintf(b, "Sample Type: %s\n", f.SampleType)
	fmt.Fprintf(b, "Bits: %d\n", f.BitsPerSample)
	fmt.Fprintf(b, "SubSampling W: %d\n", f.SubSamplingW)
	fmt.Fprintf(b, "SubSampling H: %d\n", f.SubSamplingH)
}

func writeAudioInfo(b *strings.Builder, ai vs.AudioInfo) {
	f := ai.Format
	fmt.Fprintf(b, "Samples: %d\n", ai.NumSamples)
	fmt.Fprintf(b, "Sample Rate: %d\n", ai.SampleRate)
	fmt.Fprintf(b, "Format Name: %s\n", f.Name())
	fmt.Fprintf(b, "Sample Type: %s\n", f.SampleType)
	fmt.Fprintf(b, "Bits: %d\n", f.BitsPerSample)
	fmt.Fprintf(b, "Channels: %d\n", f.NumChannels)
	fmt.Fprintf(b, "Layout: %s\n", LayoutString(f.ChannelLayout))
}
