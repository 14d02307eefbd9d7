package rtpout

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vs "github.com/thesyncim/vapoursynth"
	"github.com/thesyncim/vapoursynth/internal/pipe"
	"github.com/thesyncim/vapoursynth/vstest"
)

func newCore(t *testing.T) *vs.Core {
	t.Helper()
	api, err := vs.New(vstest.New(), vs.Options{})
	require.NoError(t, err)
	c, err := api.NewCore(vs.CoreOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func videoInfo(t *testing.T, c *vs.Core, id uint32, w, h int) vs.VideoInfo {
	t.Helper()
	f, err := c.VideoFormatByID(id)
	require.NoError(t, err)
	return vs.VideoInfo{Format: f, FPSNum: 25, FPSDen: 1, Width: w, Height: h, NumFrames: 1}
}

// gradientFrame returns an 8x4 YUV420P8 frame with Y = 8*y+x,
// U = 100+4*y+x and V = 200+4*y+x.
func gradientFrame(t *testing.T, c *vs.Core, vi vs.VideoInfo) *vs.Frame {
	t.Helper()
	fm, err := c.NewVideoFrame(vi.Format, vi.Width, vi.Height, nil)
	require.NoError(t, err)
	base := []int{0, 100, 200}
	for p := 0; p < 3; p++ {
		data, err := fm.WritablePlane(p)
		require.NoError(t, err)
		w, stride := fm.Width(p), fm.Stride(p)
		for y := 0; y < fm.Height(p); y++ {
			for x := 0; x < w; x++ {
				data[y*stride+x] = byte(base[p] + y*w + x)
			}
		}
	}
	f, err := fm.Freeze()
	require.NoError(t, err)
	return f
}

// packed420 is gradientFrame as 4:2:0 pixel groups.
func packed420() []byte {
	var out []byte
	for g := 0; g < 2; g++ {
		for i := 0; i < 4; i++ {
			y0, y1 := 2*g, 2*g+1
			out = append(out,
				byte(8*y0+2*i), byte(8*y0+2*i+1), byte(8*y1+2*i), byte(8*y1+2*i+1),
				byte(100+4*g+i), byte(200+4*g+i))
		}
	}
	return out
}

func TestSamplingFor(t *testing.T) {
	c := newCore(t)
	for _, tc := range []struct {
		id   uint32
		want string
	}{
		{vs.FormatYUV420P8, "YCbCr-4:2:0"},
		{vs.FormatYUV422P8, "YCbCr-4:2:2"},
		{vs.FormatYUV444P8, "YCbCr-4:4:4"},
		{vs.FormatRGB24, "RGB"},
	} {
		f, err := c.VideoFormatByID(tc.id)
		require.NoError(t, err)
		s, err := SamplingFor(f)
		require.NoError(t, err)
		assert.Equal(t, tc.want, s.Name)
	}
	for _, id := range []uint32{vs.FormatYUV420P10, vs.FormatGray8, vs.FormatYUV411P8, vs.FormatRGBS} {
		f, err := c.VideoFormatByID(id)
		require.NoError(t, err)
		_, err = SamplingFor(f)
		assert.ErrorIs(t, err, ErrUnsupportedFormat, f.Name())
	}
}

func TestPacketizeSplitsLines(t *testing.T) {
	c := newCore(t)
	vi := videoInfo(t, c, vs.FormatYUV420P8, 8, 4)
	f := gradientFrame(t, c, vi)
	defer f.Release()

	// Room for two pixel groups per packet.
	pk, err := NewPacketizer(vi, 0x1234, 97, 32)
	require.NoError(t, err)
	packets, err := pk.Packetize(f, 3)
	require.NoError(t, err)
	require.Len(t, packets, 4)

	want := []struct{ line, offset int }{{0, 0}, {0, 4}, {2, 0}, {2, 4}}
	for i, p := range packets {
		assert.Equal(t, i == 3, p.Marker, "marker on packet %d", i)
		assert.EqualValues(t, 10800, p.Timestamp)
		assert.EqualValues(t, 0x1234, p.SSRC)
		assert.EqualValues(t, 97, p.PayloadType)
		assert.Equal(t, packets[0].SequenceNumber+uint16(i), p.SequenceNumber)

		hdr := p.Payload[extSeqSize:]
		assert.EqualValues(t, 12, binary.BigEndian.Uint16(hdr), "length")
		assert.EqualValues(t, want[i].line, binary.BigEndian.Uint16(hdr[2:]), "line")
		assert.EqualValues(t, want[i].offset, binary.BigEndian.Uint16(hdr[4:]), "offset without continuation")
		assert.Len(t, p.Payload, extSeqSize+segmentHeaderSize+12)
	}

	d := NewDepacketizer(pk.Sampling(), vi.Width, vi.Height)
	var frame []byte
	for _, p := range packets {
		frame, err = d.Depacketize(p)
		require.NoError(t, err)
	}
	assert.Equal(t, packed420(), frame)
}

func TestPacketizeSegments(t *testing.T) {
	c := newCore(t)
	vi := videoInfo(t, c, vs.FormatYUV420P8, 8, 4)
	f := gradientFrame(t, c, vi)
	defer f.Release()

	pk, err := NewPacketizer(vi, 1, DefaultPayloadType, 100)
	require.NoError(t, err)
	packets, err := pk.Packetize(f, 0)
	require.NoError(t, err)
	require.Len(t, packets, 1)
	p := packets[0]
	assert.True(t, p.Marker)

	hdr := p.Payload[extSeqSize:]
	assert.EqualValues(t, 24, binary.BigEndian.Uint16(hdr))
	assert.EqualValues(t, 0x8000, binary.BigEndian.Uint16(hdr[4:]), "continuation bit")
	assert.EqualValues(t, 2, binary.BigEndian.Uint16(hdr[8:]), "second segment line")
	assert.EqualValues(t, 0, binary.BigEndian.Uint16(hdr[10:]))
	assert.Equal(t, packed420(), p.Payload[extSeqSize+2*segmentHeaderSize:])

	raw, err := pk.PacketizeToBytes(f, 1)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	var parsed rtp.Packet
	require.NoError(t, parsed.Unmarshal(raw[0]))
	assert.Equal(t, p.SequenceNumber+1, parsed.SequenceNumber)
	assert.EqualValues(t, 3600, parsed.Timestamp)
}

func TestNewPacketizerErrors(t *testing.T) {
	c := newCore(t)
	vi := videoInfo(t, c, vs.FormatYUV420P8, 8, 4)
	_, err := NewPacketizer(vi, 1, 96, 20)
	assert.Error(t, err)

	variable := vi
	variable.FPSNum = 0
	_, err = NewPacketizer(variable, 1, 96, 0)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	pk, err := NewPacketizer(vi, 1, 96, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultMTU, pk.MTU())
}

func TestDescribe(t *testing.T) {
	c := newCore(t)
	vi := videoInfo(t, c, vs.FormatYUV420P8, 1920, 1080)
	vi.FPSNum, vi.FPSDen = 30000, 1001

	sd, err := Describe(vi, SessionOptions{Address: "192.0.2.10", Port: 5004})
	require.NoError(t, err)
	b, err := sd.Marshal()
	require.NoError(t, err)

	var parsed sdp.SessionDescription
	require.NoError(t, parsed.Unmarshal(b))
	assert.Equal(t, "vapoursynth", string(parsed.SessionName))
	require.NotNil(t, parsed.ConnectionInformation)
	assert.Equal(t, "192.0.2.10", parsed.ConnectionInformation.Address.Address)
	require.Len(t, parsed.MediaDescriptions, 1)
	md := parsed.MediaDescriptions[0]
	assert.Equal(t, 5004, md.MediaName.Port.Value)
	assert.Equal(t, []string{"96"}, md.MediaName.Formats)
	rtpmap, ok := md.Attribute("rtpmap")
	require.True(t, ok)
	assert.Equal(t, "96 raw/90000", rtpmap)
	fmtp, ok := md.Attribute("fmtp")
	require.True(t, ok)
	assert.Equal(t, "96 sampling=YCbCr-4:2:0; width=1920; height=1080; depth=8; exactframerate=30000/1001; colorimetry=BT709", fmtp)

	rgb := videoInfo(t, c, vs.FormatRGB24, 8, 8)
	sd, err = Describe(rgb, SessionOptions{Address: "::1", Port: 6000, PayloadType: 100})
	require.NoError(t, err)
	assert.Equal(t, "IP6", sd.Origin.AddressType)
	fmtp, _ = sd.MediaDescriptions[0].Attribute("fmtp")
	assert.Equal(t, "100 sampling=RGB; width=8; height=8; depth=8; exactframerate=25", fmtp)
}

func TestSenderLoopback(t *testing.T) {
	c := newCore(t)
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	var desc bytes.Buffer
	s, err := Dial(pc.LocalAddr().String(), Options{MTU: 100, SDP: &desc})
	require.NoError(t, err)
	defer s.Close()

	std, err := c.PluginByNamespace("std")
	require.NoError(t, err)
	args := c.NewMap()
	defer args.Release()
	require.NoError(t, args.SetInt("width", 8))
	require.NoError(t, args.SetInt("height", 4))
	require.NoError(t, args.SetInt("length", 2))
	require.NoError(t, args.SetInt("fpsnum", 25))
	require.NoError(t, args.SetInt("format", int64(vs.FormatYUV420P8)))
	require.NoError(t, args.SetFloats("color", []float64{16, 128, 128}))
	clip, err := std.InvokeClip("BlankClip", args.Ref())
	require.NoError(t, err)
	defer clip.Release()

	stats, err := pipe.Run(context.Background(), clip, s, pipe.Options{End: -1, Requests: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, s.Packets())
	assert.EqualValues(t, s.Bytes(), stats.Bytes)
	assert.Contains(t, desc.String(), "a=rtpmap:96 raw/90000")

	d := NewDepacketizer(sampling420, 8, 4)
	buf := make([]byte, 1500)
	var frames int
	for i := 0; i < 2; i++ {
		require.NoError(t, pc.SetReadDeadline(time.Now().Add(time.Second)))
		n, _, err := pc.ReadFrom(buf)
		require.NoError(t, err)
		var p rtp.Packet
		require.NoError(t, p.Unmarshal(buf[:n]))
		frame, err := d.Depacketize(&p)
		require.NoError(t, err)
		if frame != nil {
			frames++
			assert.Equal(t, bytes.Repeat([]byte{16, 16, 16, 16, 128, 128}, 8), frame)
		}
	}
	assert.Equal(t, 2, frames)
}
