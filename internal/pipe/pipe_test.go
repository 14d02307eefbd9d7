package pipe

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vs "github.com/thesyncim/vapoursynth"
	"github.com/thesyncim/vapoursynth/vstest"
)

func newCore(t *testing.T) (*vs.Core, *vstest.Engine) {
	t.Helper()
	e := vstest.New()
	api, err := vs.New(e, vs.Options{})
	require.NoError(t, err)
	c, err := api.NewCore(vs.CoreOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, e
}

func invoke(t *testing.T, c *vs.Core, fn string, set func(m *vs.OwnedMap)) *vs.Node {
	t.Helper()
	std, err := c.PluginByNamespace("std")
	require.NoError(t, err)
	args := c.NewMap()
	defer args.Release()
	set(args)
	n, err := std.InvokeClip(fn, args.Ref())
	require.NoError(t, err)
	return n
}

// yuvClip is an 8x4 YUV420P8 clip at 25 fps with Y=16 and U=V=128.
func yuvClip(t *testing.T, c *vs.Core, length int) *vs.Node {
	return invoke(t, c, "BlankClip", func(m *vs.OwnedMap) {
		require.NoError(t, m.SetInt("width", 8))
		require.NoError(t, m.SetInt("height", 4))
		require.NoError(t, m.SetInt("length", int64(length)))
		require.NoError(t, m.SetInt("format", int64(vs.FormatYUV420P8)))
		require.NoError(t, m.SetInt("fpsnum", 25))
		require.NoError(t, m.SetFloats("color", []float64{16, 128, 128}))
	})
}

// requireDrained waits for abandoned requests to deliver and release
// their frames.
func requireDrained(t *testing.T, e *vstest.Engine) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := e.Stats()
		return s.Frames == 0 && s.Requests == 0
	}, time.Second, time.Millisecond)
}

type recorder struct {
	mu     sync.Mutex
	header Header
	frames []int
	failAt int
}

func (r *recorder) WriteHeader(h Header) error {
	r.header = h
	return nil
}

func (r *recorder) WriteFrame(f *vs.Frame, n int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && n == r.failAt {
		return 0, errors.New("disk full")
	}
	r.frames = append(r.frames, n)
	return f.Width(0), nil
}

type observed struct {
	mu      sync.Mutex
	written []int
	failed  []int
}

func (o *observed) FrameWritten(n, _ int, latency time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.written = append(o.written, n)
}

func (o *observed) FrameFailed(n int, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, n)
}

func TestRunY4M(t *testing.T) {
	c, _ := newCore(t)
	node := yuvClip(t, c, 3)
	defer node.Release()

	var buf bytes.Buffer
	stats, err := Run(context.Background(), node, NewY4MWriter(&buf), Options{End: -1, Requests: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Frames)

	header := "YUV4MPEG2 C420 W8 H4 F25:1 Ip A0:0 XLENGTH=3\n"
	frame := "FRAME\n" + strings.Repeat("\x10", 32) + strings.Repeat("\x80", 16)
	assert.Equal(t, header+strings.Repeat(frame, 3), buf.String())
	assert.EqualValues(t, 3*len(frame), stats.Bytes)
}

func TestRunOrderAndRange(t *testing.T) {
	c, _ := newCore(t)
	node := yuvClip(t, c, 10)
	defer node.Release()

	rec := &recorder{}
	obs := &observed{}
	stats, err := Run(context.Background(), node, rec, Options{Start: 2, End: 6, Requests: 3, Observer: obs})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4, 5, 6}, rec.frames)
	assert.Equal(t, []int{2, 3, 4, 5, 6}, obs.written)
	assert.Equal(t, 5, rec.header.Frames())
	require.NotNil(t, rec.header.Video)
	assert.Equal(t, 8, rec.header.Video.Width)
	assert.EqualValues(t, 5*8, stats.Bytes)
	assert.Positive(t, stats.FPS())
}

func TestRunWriteFailure(t *testing.T) {
	c, e := newCore(t)
	node := yuvClip(t, c, 8)

	rec := &recorder{failAt: 3}
	obs := &observed{}
	_, err := Run(context.Background(), node, rec, Options{End: -1, Requests: 4, Observer: obs})
	assert.EqualError(t, err, "write frame 3: disk full")
	assert.Equal(t, []int{0, 1, 2}, rec.frames)
	assert.Equal(t, []int{3}, obs.failed)

	node.Release()
	requireDrained(t, e)
}

func TestRunCanceled(t *testing.T) {
	c, e := newCore(t)
	node := yuvClip(t, c, 8)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, node, &recorder{}, Options{End: -1, Requests: 2})
	assert.ErrorIs(t, err, context.Canceled)
	node.Release()
	requireDrained(t, e)
}

func TestRange(t *testing.T) {
	start, end, err := Range(0, -1, 10)
	require.NoError(t, err)
	assert.Equal(t, [2]int{0, 9}, [2]int{start, end})

	for _, tc := range []struct{ start, end int }{{-1, 3}, {10, -1}, {0, 10}, {5, 4}} {
		_, _, err := Range(tc.start, tc.end, 10)
		assert.Error(t, err, "%d-%d", tc.start, tc.end)
	}
}

func TestY4MColorspace(t *testing.T) {
	c, _ := newCore(t)
	for _, tc := range []struct {
		id   uint32
		want string
	}{
		{vs.FormatYUV420P8, "420"},
		{vs.FormatYUV420P10, "420p10"},
		{vs.FormatYUV422P8, "422"},
		{vs.FormatYUV444P16, "444p16"},
		{vs.FormatYUV410P8, "410"},
		{vs.FormatYUV411P8, "411"},
		{vs.FormatYUV440P8, "440"},
		{vs.FormatGray8, "mono"},
		{vs.FormatGray16, "mono16"},
	} {
		f, err := c.VideoFormatByID(tc.id)
		require.NoError(t, err)
		t.Run(f.Name(), func(t *testing.T) {
			cs, err := Y4MColorspace(f)
			require.NoError(t, err)
			assert.Equal(t, tc.want, cs)
		})
	}

	for _, id := range []uint32{vs.FormatRGB24, vs.FormatYUV444PS} {
		f, err := c.VideoFormatByID(id)
		require.NoError(t, err)
		_, err = Y4MColorspace(f)
		assert.ErrorIs(t, err, ErrUnsupportedFormat, f.Name())
	}
}

func TestY4MRejectsAudio(t *testing.T) {
	c, _ := newCore(t)
	node := invoke(t, c, "BlankAudio", func(m *vs.OwnedMap) {
		require.NoError(t, m.SetInt("length", 100))
	})
	defer node.Release()
	_, err := Run(context.Background(), node, NewY4MWriter(&bytes.Buffer{}), Options{End: -1})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestTee(t *testing.T) {
	c, _ := newCore(t)
	node := yuvClip(t, c, 2)
	defer node.Release()

	var raw bytes.Buffer
	rec := &recorder{}
	stats, err := Run(context.Background(), node, Tee(NewRawWriter(&raw), rec), Options{End: -1})
	require.NoError(t, err)
	assert.Equal(t, 2*48, raw.Len())
	assert.EqualValues(t, 2*48, stats.Bytes)
	assert.Equal(t, []int{0, 1}, rec.frames)

	single := Tee(rec)
	assert.Same(t, rec, single)
}
