package pipe

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vs "github.com/thesyncim/vapoursynth"
)

func blankAudio(t *testing.T, c *vs.Core, samples int64) *vs.Node {
	return invoke(t, c, "BlankAudio", func(m *vs.OwnedMap) {
		require.NoError(t, m.SetInt("length", samples))
		require.NoError(t, m.SetInt("samplerate", 48000))
	})
}

func TestRawAudio(t *testing.T) {
	c, _ := newCore(t)
	node := blankAudio(t, c, 5000)
	defer node.Release()

	var buf bytes.Buffer
	stats, err := Run(context.Background(), node, NewRawWriter(&buf), Options{End: -1})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Frames)
	// 16 bit stereo, interleaved.
	assert.Equal(t, 5000*2*2, buf.Len())
	assert.EqualValues(t, buf.Len(), stats.Bytes)
}

func TestWAV(t *testing.T) {
	c, _ := newCore(t)
	node := blankAudio(t, c, 5000)
	defer node.Release()

	var buf bytes.Buffer
	_, err := Run(context.Background(), node, NewWAVWriter(&buf), Options{End: -1})
	require.NoError(t, err)

	b := buf.Bytes()
	require.Len(t, b, 68+5000*4)
	le := binary.LittleEndian
	assert.Equal(t, "RIFF", string(b[0:4]))
	assert.EqualValues(t, 60+5000*4, le.Uint32(b[4:]))
	assert.Equal(t, "WAVEfmt ", string(b[8:16]))
	assert.EqualValues(t, 2, le.Uint16(b[22:]), "channels")
	assert.EqualValues(t, 48000, le.Uint32(b[24:]), "sample rate")
	assert.EqualValues(t, 48000*4, le.Uint32(b[28:]), "byte rate")
	assert.EqualValues(t, 4, le.Uint16(b[32:]), "block align")
	assert.EqualValues(t, 16, le.Uint16(b[34:]))
	assert.EqualValues(t, vs.LayoutStereo, le.Uint32(b[40:]))
	assert.EqualValues(t, 1, le.Uint16(b[44:]), "PCM sub-format")
	assert.Equal(t, "data", string(b[60:64]))
	assert.EqualValues(t, 5000*4, le.Uint32(b[64:]))

	// Only the second frame is written; it is short.
	buf.Reset()
	_, err = Run(context.Background(), node, NewWAVWriter(&buf), Options{Start: 1, End: 1})
	require.NoError(t, err)
	assert.EqualValues(t, (5000-3072)*4, le.Uint32(buf.Bytes()[64:]))
}

func TestWAVRejectsVideo(t *testing.T) {
	c, _ := newCore(t)
	node := yuvClip(t, c, 1)
	defer node.Release()
	_, err := Run(context.Background(), node, NewWAVWriter(&bytes.Buffer{}), Options{End: -1})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWriteInfo(t *testing.T) {
	c, _ := newCore(t)
	video := yuvClip(t, c, 10)
	defer video.Release()
	audio := blankAudio(t, c, 5000)
	defer audio.Release()

	var buf bytes.Buffer
	require.NoError(t, WriteInfo(&buf, video))
	assert.Equal(t, `Width: 8
Height: 4
Frames: 10
FPS: 25/1 (25.000 fps)
Format Name: YUV420P8
Color Family: YUV
Sample Type: Integer
Bits: 8
SubSampling W: 1
SubSampling H: 1
`, buf.String())

	buf.Reset()
	require.NoError(t, WriteInfo(&buf, audio))
	assert.Equal(t, `Samples: 5000
Sample Rate: 48000
Format Name: Audio16 (2 CH)
Sample Type: Integer
Bits: 16
Channels: 2
Layout: Front Left, Front Right
`, buf.String())
}

func TestLayoutString(t *testing.T) {
	assert.Equal(t, "Front Center", LayoutString(vs.LayoutMono))
	assert.Equal(t, "Front Left, Front Right, Front Center, Low Frequency, Back Left, Back Right", LayoutString(vs.Layout5_1))
	assert.Equal(t, "Channel 40", LayoutString(1<<40))
	assert.Empty(t, LayoutString(0))
}

func TestPropsWriter(t *testing.T) {
	c, _ := newCore(t)
	src := yuvClip(t, c, 2)
	defer src.Release()
	std, err := c.PluginByNamespace("std")
	require.NoError(t, err)
	args := c.NewMap()
	defer args.Release()
	require.NoError(t, args.SetNode("clip", src))
	require.NoError(t, args.SetString("Source", "camera"))
	require.NoError(t, args.SetFloats("Gains", []float64{0.5, 2}))
	tagged, err := std.InvokeClip("SetFrameProps", args.Ref())
	require.NoError(t, err)
	defer tagged.Release()

	var buf bytes.Buffer
	_, err = Run(context.Background(), tagged, NewPropsWriter(&buf, "Source", "Gains", "_DurationDen", "Missing"), Options{End: -1})
	require.NoError(t, err)
	assert.Equal(t,
		`{"frame":0,"props":{"Gains":[0.5,2],"Source":"camera","_DurationDen":25}}`+"\n"+
			`{"frame":1,"props":{"Gains":[0.5,2],"Source":"camera","_DurationDen":25}}`+"\n",
		buf.String())
}
