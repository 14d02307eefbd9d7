package pipe

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	vs "github.com/thesyncim/vapoursynth"
)

// RawWriter writes video planes back to back without padding, or audio
// samples interleaved across channels.
type RawWriter struct {
	w   *bufio.Writer
	buf []byte
}

// NewRawWriter returns a raw writer on w.
func NewRawWriter(w io.Writer) *RawWriter {
	return &RawWriter{w: bufio.NewWriterSize(w, 1<<16)}
}

// WriteHeader writes nothing. Frames of variable format are still
// written; their layout has to be known from elsewhere.
func (r *RawWriter) WriteHeader(Header) error { return nil }

func (r *RawWriter) WriteFrame(f *vs.Frame, _ int) (int, error) {
	var (
		n   int
		err error
	)
	if f.Type() == vs.MediaTypeAudio {
		r.buf, err = interleave(r.buf[:0], f)
		if err != nil {
			return 0, err
		}
		n, err = r.w.Write(r.buf)
	} else {
		n, err = writePlanes(r.w, f)
	}
	if err != nil {
		return n, err
	}
	return n, r.w.Flush()
}

// packedBytes is the width of one output sample. 24 bit audio is carried
// in 32 bit containers and written as 3 bytes.
func packedBytes(af vs.AudioFormat) int { return (af.BitsPerSample + 7) / 8 }

// interleave appends the samples of an audio frame to dst, channel
// samples interleaved.
func interleave(dst []byte, f *vs.Frame) ([]byte, error) {
	af, err := f.AudioFormat()
	if err != nil {
		return dst, err
	}
	planes := make([][]byte, af.NumChannels)
	for ch := range planes {
		if planes[ch], err = f.Plane(ch); err != nil {
			return dst, err
		}
	}
	in, out := af.BytesPerSample, packedBytes(af)
	for i := 0; i < f.SampleCount(); i++ {
		off := i * in
		for _, p := range planes {
			dst = append(dst, p[off:off+out]...)
		}
	}
	return dst, nil
}

// WAVWriter writes audio as a RIFF WAVE file. The sample count is known
// up front, so the header is written once and never patched.
type WAVWriter struct {
	RawWriter
}

// NewWAVWriter returns a WAVE writer on w.
func NewWAVWriter(w io.Writer) *WAVWriter {
	return &WAVWriter{RawWriter: RawWriter{w: bufio.NewWriterSize(w, 1<<16)}}
}

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xfffe
)

func (w *WAVWriter) WriteHeader(h Header) error {
	if h.Audio == nil {
		return fmt.Errorf("%w: wav carries audio only", ErrUnsupportedFormat)
	}
	af := h.Audio.Format
	sample := packedBytes(af)
	block := sample * af.NumChannels
	data := h.Samples() * int64(block)
	if 60+data > 0xffffffff {
		return fmt.Errorf("%w: %d bytes of audio do not fit in a wav file", ErrUnsupportedFormat, data)
	}
	tag := uint16(wavFormatPCM)
	if af.SampleType == vs.SampleTypeFloat {
		tag = wavFormatFloat
	}

	hdr := make([]byte, 0, 68)
	hdr = append(hdr, "RIFF"...)
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(60+data))
	hdr = append(hdr, "WAVEfmt "...)
	hdr = binary.LittleEndian.AppendUint32(hdr, 40)
	hdr = binary.LittleEndian.AppendUint16(hdr, wavFormatExtensible)
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(af.NumChannels))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(h.Audio.SampleRate))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(h.Audio.SampleRate*block))
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(block))
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(sample*8))
	hdr = binary.LittleEndian.AppendUint16(hdr, 22)
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(af.BitsPerSample))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(af.ChannelLayout))
	// Sub-format GUID: the format tag followed by the fixed WAVE suffix.
	hdr = binary.LittleEndian.AppendUint16(hdr, tag)
	hdr = append(hdr, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xaa, 0x00, 0x38, 0x9b, 0x71)
	hdr = append(hdr, "data"...)
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(data))

	if _, err := w.w.Write(hdr); err != nil {
		return err
	}
	return w.w.Flush()
}
