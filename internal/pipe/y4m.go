package pipe

import (
	"bufio"
	"fmt"
	"io"

	vs "github.com/thesyncim/vapoursynth"
)

// Y4MWriter writes video as a YUV4MPEG2 stream.
type Y4MWriter struct {
	w *bufio.Writer
}

// NewY4MWriter returns a writer producing YUV4MPEG2 on w.
func NewY4MWriter(w io.Writer) *Y4MWriter {
	return &Y4MWriter{w: bufio.NewWriterSize(w, 1<<16)}
}

// Y4MColorspace returns the C tag for format, e.g. "420" or "mono16".
func Y4MColorspace(f vs.VideoFormat) (string, error) {
	if f.SampleType != vs.SampleTypeInteger {
		return "", fmt.Errorf("%w: y4m needs integer samples, got %s", ErrUnsupportedFormat, f.Name())
	}
	var cs string
	switch f.ColorFamily {
	case vs.ColorFamilyGray:
		cs = "mono"
		if f.BitsPerSample > 8 {
			cs += fmt.Sprint(f.BitsPerSample)
		}
		return cs, nil
	case vs.ColorFamilyYUV:
	default:
		return "", fmt.Errorf("%w: y4m needs YUV or Gray, got %s", ErrUnsupportedFormat, f.Name())
	}
	switch [2]int{f.SubSamplingW, f.SubSamplingH} {
	case [2]int{1, 1}:
		cs = "420"
	case [2]int{1, 0}:
		cs = "422"
	case [2]int{0, 0}:
		cs = "444"
	case [2]int{2, 2}:
		cs = "410"
	case [2]int{2, 0}:
		cs = "411"
	case [2]int{0, 1}:
		cs = "440"
	default:
		return "", fmt.Errorf("%w: no y4m tag for %s", ErrUnsupportedFormat, f.Name())
	}
	if f.BitsPerSample > 8 {
		cs += fmt.Sprintf("p%d", f.BitsPerSample)
	}
	return cs, nil
}

func (y *Y4MWriter) WriteHeader(h Header) error {
	if h.Video == nil {
		return fmt.Errorf("%w: y4m carries video only", ErrUnsupportedFormat)
	}
	vi := h.Video
	if !vi.ConstantFormat() || !vi.ConstantSize() {
		return fmt.Errorf("%w: y4m needs constant format and size", ErrUnsupportedFormat)
	}
	cs, err := Y4MColorspace(vi.Format)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(y.w, "YUV4MPEG2 C%s W%d H%d F%d:%d Ip A0:0 XLENGTH=%d\n",
		cs, vi.Width, vi.Height, vi.FPSNum, vi.FPSDen, h.Frames())
	if err != nil {
		return err
	}
	return y.w.Flush()
}

func (y *Y4MWriter) WriteFrame(f *vs.Frame, _ int) (int, error) {
	if _, err := io.WriteString(y.w, "FRAME\n"); err != nil {
		return 0, err
	}
	n, err := writePlanes(y.w, f)
	if err != nil {
		return 0, err
	}
	return n + len("FRAME\n"), y.w.Flush()
}

// writePlanes writes every plane of a video frame row by row, dropping
// stride padding.
func writePlanes(w io.Writer, f *vs.Frame) (int, error) {
	var total int
	for p := 0; p < f.NumPlanes(); p++ {
		for row := 0; row < f.Height(p); row++ {
			line, err := f.PlaneRow(p, row)
			if err != nil {
				return total, err
			}
			n, err := w.Write(line)
			total += n
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}
