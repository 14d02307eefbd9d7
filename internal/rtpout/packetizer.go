// Package rtpout sends uncompressed video frames as RTP (RFC 4175) and
// describes the stream with SDP so that receivers such as ffmpeg or
// GStreamer can pick it up.
package rtpout

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/rtp"

	vs "github.com/thesyncim/vapoursynth"
)

const (
	// DefaultMTU keeps packets below common path MTUs.
	DefaultMTU = 1200
	// DefaultPayloadType is the first dynamic payload type.
	DefaultPayloadType = 96
	// ClockRate is the RTP clock of raw video.
	ClockRate = 90000

	rtpHeaderSize     = 12
	extSeqSize        = 2
	segmentHeaderSize = 6
)

// ErrUnsupportedFormat is returned for formats without an RFC 4175 sampling.
var ErrUnsupportedFormat = errors.New("rtpout: unsupported format")

// Sampling is an RFC 4175 sampling structure. A pixel group (pgroup)
// carries Size bytes covering Pixels pixels on each of Lines lines.
type Sampling struct {
	Name   string
	Size   int
	Pixels int
	Lines  int
}

var (
	samplingRGB = Sampling{Name: "RGB", Size: 3, Pixels: 1, Lines: 1}
	sampling444 = Sampling{Name: "YCbCr-4:4:4", Size: 3, Pixels: 1, Lines: 1}
	sampling422 = Sampling{Name: "YCbCr-4:2:2", Size: 4, Pixels: 2, Lines: 1}
	sampling420 = Sampling{Name: "YCbCr-4:2:0", Size: 6, Pixels: 2, Lines: 2}
)

// SamplingFor returns the sampling used to send frames of format f. Only
// 8 bit integer RGB and YUV 4:4:4, 4:2:2 and 4:2:0 are supported.
func SamplingFor(f vs.VideoFormat) (Sampling, error) {
	if f.SampleType != vs.SampleTypeInteger || f.BitsPerSample != 8 {
		return Sampling{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Name())
	}
	switch {
	case f.ColorFamily == vs.ColorFamilyRGB:
		return samplingRGB, nil
	case f.ColorFamily != vs.ColorFamilyYUV:
	case f.SubSamplingW == 0 && f.SubSamplingH == 0:
		return sampling444, nil
	case f.SubSamplingW == 1 && f.SubSamplingH == 0:
		return sampling422, nil
	case f.SubSamplingW == 1 && f.SubSamplingH == 1:
		return sampling420, nil
	}
	return Sampling{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Name())
}

// Packetizer splits video frames into RFC 4175 RTP packets.
type Packetizer struct {
	ssrc        uint32
	payloadType uint8
	mtu         int
	sequencer   rtp.Sequencer
	sampling    Sampling
	vi          vs.VideoInfo
	mu          sync.Mutex
}

// NewPacketizer creates a packetizer for frames described by vi, which
// must have a constant format, size and frame rate.
func NewPacketizer(vi vs.VideoInfo, ssrc uint32, pt uint8, mtu int) (*Packetizer, error) {
	if !vi.ConstantFormat() || !vi.ConstantSize() || !vi.ConstantFramerate() {
		return nil, fmt.Errorf("%w: variable format, size or frame rate", ErrUnsupportedFormat)
	}
	s, err := SamplingFor(vi.Format)
	if err != nil {
		return nil, err
	}
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	if mtu < rtpHeaderSize+extSeqSize+segmentHeaderSize+s.Size {
		return nil, fmt.Errorf("rtpout: mtu %d too small", mtu)
	}
	return &Packetizer{
		ssrc:        ssrc,
		payloadType: pt,
		mtu:         mtu,
		sequencer:   rtp.NewRandomSequencer(),
		sampling:    s,
		vi:          vi,
	}, nil
}

// Sampling returns the sampling structure frames are sent with.
func (p *Packetizer) Sampling() Sampling { return p.sampling }

// Timestamp returns the RTP timestamp of frame n.
func (p *Packetizer) Timestamp(n int) uint32 {
	return uint32(int64(n) * ClockRate * p.vi.FPSDen / p.vi.FPSNum)
}

type segment struct {
	line, offset int // offset in pixels
	data         []byte
}

// Packetize converts frame n to RTP packets. The last packet of the frame
// has the marker bit set.
func (p *Packetizer) Packetize(f *vs.Frame, n int) ([]*rtp.Packet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f.Width(0) != p.vi.Width || f.Height(0) != p.vi.Height {
		return nil, fmt.Errorf("frame %d is %dx%d, stream is %dx%d", n, f.Width(0), f.Height(0), p.vi.Width, p.vi.Height)
	}
	s := p.sampling
	budget := p.mtu - rtpHeaderSize - extSeqSize
	ts := p.Timestamp(n)

	var (
		packets []*rtp.Packet
		pending []segment
		used    int
	)
	flush := func(last bool) {
		payload := make([]byte, extSeqSize, extSeqSize+used)
		seq := p.sequencer.NextSequenceNumber()
		binary.BigEndian.PutUint16(payload, uint16(p.sequencer.RollOverCount()))
		for i, sg := range pending {
			var hdr [segmentHeaderSize]byte
			binary.BigEndian.PutUint16(hdr[0:], uint16(len(sg.data)))
			binary.BigEndian.PutUint16(hdr[2:], uint16(sg.line)&0x7fff)
			off := uint16(sg.offset) & 0x7fff
			if i < len(pending)-1 {
				off |= 0x8000
			}
			binary.BigEndian.PutUint16(hdr[4:], off)
			payload = append(payload, hdr[:]...)
		}
		for _, sg := range pending {
			payload = append(payload, sg.data...)
		}
		packets = append(packets, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         last,
				PayloadType:    p.payloadType,
				SequenceNumber: seq,
				Timestamp:      ts,
				SSRC:           p.ssrc,
			},
			Payload: payload,
		})
		pending, used = pending[:0], 0
	}

	for y := 0; y < p.vi.Height; y += s.Lines {
		line, err := p.packLine(f, y)
		if err != nil {
			return nil, err
		}
		for pos := 0; pos < len(line); {
			room := budget - used - segmentHeaderSize
			if room < s.Size {
				flush(false)
				continue
			}
			take := min(len(line)-pos, room-room%s.Size)
			pending = append(pending, segment{
				line:   y,
				offset: pos / s.Size * s.Pixels,
				data:   line[pos : pos+take : pos+take],
			})
			used += segmentHeaderSize + take
			pos += take
		}
	}
	flush(true)
	return packets, nil
}

// packLine interleaves the planes of the line group starting at row y
// into pixel groups.
func (p *Packetizer) packLine(f *vs.Frame, y int) ([]byte, error) {
	s := p.sampling
	groups := p.vi.Width / s.Pixels
	out := make([]byte, groups*s.Size)

	y0, err := f.PlaneRow(0, y)
	if err != nil {
		return nil, err
	}
	switch s {
	case samplingRGB:
		g, err := f.PlaneRow(1, y)
		if err != nil {
			return nil, err
		}
		b, err := f.PlaneRow(2, y)
		if err != nil {
			return nil, err
		}
		for x := 0; x < groups; x++ {
			out[3*x], out[3*x+1], out[3*x+2] = y0[x], g[x], b[x]
		}
	case sampling444, sampling422:
		cb, err := f.PlaneRow(1, y)
		if err != nil {
			return nil, err
		}
		cr, err := f.PlaneRow(2, y)
		if err != nil {
			return nil, err
		}
		for x := 0; x < groups; x++ {
			if s == sampling444 {
				out[3*x], out[3*x+1], out[3*x+2] = cb[x], y0[x], cr[x]
				continue
			}
			out[4*x], out[4*x+1], out[4*x+2], out[4*x+3] = cb[x], y0[2*x], cr[x], y0[2*x+1]
		}
	case sampling420:
		y1, err := f.PlaneRow(0, y+1)
		if err != nil {
			return nil, err
		}
		cb, err := f.PlaneRow(1, y/2)
		if err != nil {
			return nil, err
		}
		cr, err := f.PlaneRow(2, y/2)
		if err != nil {
			return nil, err
		}
		for x := 0; x < groups; x++ {
			o := 6 * x
			out[o], out[o+1], out[o+2], out[o+3] = y0[2*x], y0[2*x+1], y1[2*x], y1[2*x+1]
			out[o+4], out[o+5] = cb[x], cr[x]
		}
	}
	return out, nil
}

// PacketizeToBytes converts frame n to marshaled RTP packets.
func (p *Packetizer) PacketizeToBytes(f *vs.Frame, n int) ([][]byte, error) {
	packets, err := p.Packetize(f, n)
	if err != nil {
		return nil, err
	}
	result := make([][]byte, len(packets))
	for i, pkt := range packets {
		if result[i], err = pkt.Marshal(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (p *Packetizer) SetSSRC(ssrc uint32) { p.mu.Lock(); p.ssrc = ssrc; p.mu.Unlock() }
func (p *Packetizer) SSRC() uint32        { p.mu.Lock(); defer p.mu.Unlock(); return p.ssrc }
func (p *Packetizer) PayloadType() uint8  { p.mu.Lock(); defer p.mu.Unlock(); return p.payloadType }
func (p *Packetizer) MTU() int            { p.mu.Lock(); defer p.mu.Unlock(); return p.mtu }
