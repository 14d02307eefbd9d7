package vapoursynth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// passthrough copies each upstream frame and tags it with its number.
type passthrough struct {
	up     *Node
	closed *atomic.Int32
}

func (p passthrough) Upstream(n int) (Upstream, bool) { return Upstream{Node: p.up, N: n}, true }

func (p passthrough) Produce(fc *FrameContext, n int) (*Frame, error) {
	src, err := fc.Frame(p.up, n)
	if err != nil {
		return nil, err
	}
	out, err := fc.Core().CopyFrame(src)
	if err != nil {
		return nil, err
	}
	if err := out.PropsMut().SetInt("Passthrough", int64(n)); err != nil {
		out.Release()
		return nil, err
	}
	return out.Freeze()
}

func (p passthrough) Close() error {
	if p.closed != nil {
		p.closed.Add(1)
	}
	return nil
}

// generator produces frames without upstream input.
type generator struct {
	format  VideoFormat
	produce func(fc *FrameContext, n int) (*Frame, error)
}

func (g generator) Upstream(int) (Upstream, bool) { return Upstream{}, false }

func (g generator) Produce(fc *FrameContext, n int) (*Frame, error) {
	if g.produce != nil {
		return g.produce(fc, n)
	}
	fm, err := fc.Core().NewVideoFrame(g.format, 8, 8, nil)
	if err != nil {
		return nil, err
	}
	return fm.Freeze()
}

func grayInfo(t *testing.T, c *Core, frames int) (VideoInfo, VideoFormat) {
	t.Helper()
	f, err := c.VideoFormatByID(FormatGray8)
	require.NoError(t, err)
	return VideoInfo{Format: f, FPSNum: 25, FPSDen: 1, Width: 8, Height: 8, NumFrames: frames}, f
}

func newGenerator(t *testing.T, c *Core, name string, fn func(fc *FrameContext, n int) (*Frame, error)) *Node {
	t.Helper()
	vi, f := grayInfo(t, c, 4)
	n, err := NewParallelFilter(c, FilterOptions{Name: name, Video: &vi}, generator{format: f, produce: fn})
	require.NoError(t, err)
	return n
}

func TestParallelFilter(t *testing.T) {
	c, e := newTestCore(t)
	src := blankClip(t, c, 5)
	defer src.Release()
	vi, err := src.VideoInfo()
	require.NoError(t, err)

	var closed atomic.Int32
	n, err := NewParallelFilter(c, FilterOptions{
		Name:         "Passthrough",
		Video:        &vi,
		Dependencies: []Dependency{{Node: src, Pattern: PatternStrictSpatial}},
	}, passthrough{up: src, closed: &closed})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		f, err := n.GetFrame(i)
		require.NoError(t, err)
		tag, err := f.Props().Int("Passthrough")
		require.NoError(t, err)
		assert.EqualValues(t, i, tag)
		num, err := f.Props().Int("_DurationNum")
		require.NoError(t, err)
		assert.EqualValues(t, 1, num, "upstream props survive")
		row, err := f.PlaneRow(0, 3)
		require.NoError(t, err)
		assert.Equal(t, byte(7), row[15])
		f.Release()
	}

	name, err := n.Name()
	require.NoError(t, err)
	assert.Equal(t, "Passthrough", name)
	mode, err := n.FilterMode()
	require.NoError(t, err)
	assert.Equal(t, ModeParallel, mode)

	deps, err := n.Dependencies()
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, PatternStrictSpatial, deps[0].Pattern)
	assert.Equal(t, 5, deps[0].Node.NumFrames())
	deps[0].Node.Release()

	n.Release()
	require.Eventually(t, func() bool { return closed.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, e.Stats().Nodes, "only the source is left")
}

// window requests the neighbours of each frame.
type window struct{ up *Node }

func (w window) Request(n int, r *Requests) error {
	for i := n - 1; i <= n+1; i++ {
		if i < 0 || i >= w.up.NumFrames() {
			continue
		}
		if err := r.Add(w.up, i); err != nil {
			return err
		}
	}
	return nil
}

func (w window) Produce(fc *FrameContext, n int) (*Frame, error) {
	for _, u := range fc.Requested() {
		if _, err := fc.Frame(u.Node, u.N); err != nil {
			return nil, err
		}
	}
	src, err := fc.Frame(w.up, n)
	if err != nil {
		return nil, err
	}
	out, err := fc.Core().CopyFrame(src)
	if err != nil {
		return nil, err
	}
	if err := out.PropsMut().SetInt("Window", int64(len(fc.Requested()))); err != nil {
		out.Release()
		return nil, err
	}
	return out.Freeze()
}

// forward returns the upstream frame itself.
type forward struct{ up *Node }

func (p forward) Upstream(n int) (Upstream, bool) { return Upstream{Node: p.up, N: n}, true }

func (p forward) Produce(fc *FrameContext, n int) (*Frame, error) { return fc.Frame(p.up, n) }

func TestForwardFilter(t *testing.T) {
	c, e := newTestCore(t)
	std, err := c.PluginByNamespace("std")
	require.NoError(t, err)
	blank := blankClip(t, c, 3)
	defer blank.Release()
	args := c.NewMap()
	defer args.Release()
	require.NoError(t, args.SetNode("clip", blank))
	require.NoError(t, args.SetString("Source", "camera"))
	require.NoError(t, args.SetFloats("Gains", []float64{0.5, 2}))
	require.NoError(t, args.SetInts("Exposure", []int64{10, 20, 30}))
	src, err := std.InvokeClip("SetFrameProps", args.Ref())
	require.NoError(t, err)
	defer src.Release()

	vi, err := src.VideoInfo()
	require.NoError(t, err)
	n, err := NewParallelFilter(c, FilterOptions{
		Name:         "Forward",
		Video:        &vi,
		Dependencies: []Dependency{{Node: src}},
	}, forward{up: src})
	require.NoError(t, err)
	defer n.Release()

	want, err := src.GetFrame(1)
	require.NoError(t, err)
	defer want.Release()
	got, err := n.GetFrame(1)
	require.NoError(t, err)
	defer got.Release()

	wf, err := want.VideoFormat()
	require.NoError(t, err)
	gf, err := got.VideoFormat()
	require.NoError(t, err)
	assert.Equal(t, wf, gf)

	wp, gp := want.Props(), got.Props()
	assert.Equal(t, wp.Keys(), gp.Keys())
	assert.Subset(t, gp.Keys(), []string{"Source", "Gains", "Exposure", "_DurationNum"})
	for _, key := range wp.Keys() {
		require.Equal(t, wp.Type(key), gp.Type(key), key)
		switch wp.Type(key) {
		case PropertyInt:
			w, _ := wp.Ints(key)
			g, err := gp.Ints(key)
			require.NoError(t, err)
			assert.Equal(t, w, g, key)
		case PropertyFloat:
			w, _ := wp.Floats(key)
			g, err := gp.Floats(key)
			require.NoError(t, err)
			assert.Equal(t, w, g, key)
		case PropertyData:
			w, _ := wp.Data(key)
			g, err := gp.Data(key)
			require.NoError(t, err)
			assert.Equal(t, w, g, key)
		}
	}

	row, err := got.PlaneRow(0, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(7), row[0])

	got.Release()
	want.Release()
	n.Release()
	assert.Zero(t, e.Stats().InvalidCalls)
}

func TestParallelRequestsFilter(t *testing.T) {
	c, _ := newTestCore(t)
	src := blankClip(t, c, 4)
	defer src.Release()
	vi, err := src.VideoInfo()
	require.NoError(t, err)

	n, err := NewParallelRequestsFilter(c, FilterOptions{
		Name:         "Window",
		Video:        &vi,
		Dependencies: []Dependency{{Node: src}},
	}, window{up: src})
	require.NoError(t, err)
	defer n.Release()

	for frame, want := range map[int]int64{0: 2, 1: 3, 3: 2} {
		f, err := n.GetFrame(frame)
		require.NoError(t, err)
		got, err := f.Props().Int("Window")
		require.NoError(t, err)
		assert.EqualValues(t, want, got, "frame %d", frame)
		f.Release()
	}
}

// serialLog is the state of the serialized test filters. Close hands the
// recorded frame order to the test.
type serialLog struct {
	order []int
	done  chan []int
}

func (s *serialLog) Close() error {
	s.done <- s.order
	return nil
}

// serialRecorder records the order frames are produced in. The first
// request waits for gate, so every later request is queued behind it.
type serialRecorder struct {
	up           *Node
	gate         chan struct{}
	active, peak *atomic.Int32
}

func (p serialRecorder) Request(_ *serialLog, n int, r *Requests) error {
	<-p.gate
	return r.Add(p.up, n)
}

func (p serialRecorder) Produce(s *serialLog, fc *FrameContext, n int) (*Frame, error) {
	cur := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		peak := p.peak.Load()
		if cur <= peak || p.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	s.order = append(s.order, n)
	return fc.Frame(p.up, n)
}

// runSerialized requests frames in the given order and returns the order
// the filter produced them in.
func runSerialized(t *testing.T, mode Mode, requests ...int) []int {
	t.Helper()
	c, _ := newTestCore(t)
	c.SetThreadCount(4)
	src := blankClip(t, c, 8)
	defer src.Release()
	vi, err := src.VideoInfo()
	require.NoError(t, err)

	var active, peak atomic.Int32
	gate := make(chan struct{})
	state := serialLog{done: make(chan []int, 1)}
	rec := serialRecorder{up: src, gate: gate, active: &active, peak: &peak}
	opts := FilterOptions{Name: "Recorder", Video: &vi, Dependencies: []Dependency{{Node: src}}}
	var n *Node
	if mode == ModeSerial {
		n, err = NewSerialFilter[serialLog](c, opts, state, rec)
	} else {
		n, err = NewUnorderedFilter[serialLog](c, opts, state, rec)
	}
	require.NoError(t, err)
	got, err := n.FilterMode()
	require.NoError(t, err)
	assert.Equal(t, mode, got)

	var wg sync.WaitGroup
	for _, i := range requests {
		wg.Add(1)
		require.NoError(t, n.GetFrameAsync(i, func(f *Frame, _ int, err error) {
			defer wg.Done()
			assert.NoError(t, err)
			f.Release()
		}))
	}
	close(gate)
	wg.Wait()
	n.Release()

	var order []int
	select {
	case order = <-state.done:
	case <-time.After(time.Second):
		t.Fatal("filter state was not closed")
	}
	assert.EqualValues(t, 1, peak.Load())
	return order
}

// observeLogs routes the package logger to an observer for the test.
func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	zc, logs := observer.New(zapcore.DebugLevel)
	prev := Logger()
	SetLogger(zap.New(zc))
	t.Cleanup(func() { SetLogger(prev) })
	return logs
}

func TestSerialFilter(t *testing.T) {
	t.Run("in order", func(t *testing.T) {
		logs := observeLogs(t)
		order := runSerialized(t, ModeSerial, 0, 1, 2, 3, 4, 5, 6, 7)
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)
		assert.IsIncreasing(t, order)
		assert.Zero(t, logs.FilterMessage("serial filter activated out of order").Len())
	})

	t.Run("reversed", func(t *testing.T) {
		logs := observeLogs(t)
		// Frame 7 is activated first; the queued rest run lowest first.
		order := runSerialized(t, ModeSerial, 7, 6, 5, 4, 3, 2, 1, 0)
		assert.Equal(t, []int{7, 0, 1, 2, 3, 4, 5, 6}, order)
		assert.IsIncreasing(t, order[1:])

		warned := logs.FilterMessage("serial filter activated out of order").AllUntimed()
		require.Len(t, warned, 1)
		fields := warned[0].ContextMap()
		assert.Equal(t, "Recorder", fields["filter"])
		assert.EqualValues(t, 0, fields["n"])
		assert.EqualValues(t, 7, fields["previous"])
	})
}

func TestUnorderedFilter(t *testing.T) {
	logs := observeLogs(t)
	order := runSerialized(t, ModeUnordered, 7, 6, 5, 4, 3, 2, 1, 0)
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)
	assert.Zero(t, logs.FilterMessage("serial filter activated out of order").Len())
}

// twoRequests asks for two upstream frames, which a parallel filter may not.
type twoRequests struct{ up *Node }

func (a twoRequests) request(fc *FrameContext, r *Requests) error {
	if err := r.Add(a.up, fc.N()); err != nil {
		return err
	}
	return r.Add(a.up, fc.N()+1)
}

func (a twoRequests) produce(*FrameContext) (*Frame, error) { return nil, errors.New("unreachable") }
func (a twoRequests) close() error                         { return nil }

func TestParallelFilterSingleRequest(t *testing.T) {
	c, _ := newTestCore(t)
	src := blankClip(t, c, 4)
	defer src.Release()
	vi, err := src.VideoInfo()
	require.NoError(t, err)

	n, err := c.createFilter(FilterOptions{Name: "Twice", Video: &vi, Dependencies: []Dependency{{Node: src}}}, ModeParallel, twoRequests{up: src}, 1)
	require.NoError(t, err)
	defer n.Release()

	_, err = n.GetFrame(0)
	var ge *GetFrameError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "Twice: request frame 1: "+ErrTooManyRequests.Error(), ge.Message)
}

// greedy fetches a frame it never requested.
type greedy struct{ up *Node }

func (g greedy) Request(n int, r *Requests) error { return r.Add(g.up, n) }

func (g greedy) Produce(fc *FrameContext, n int) (*Frame, error) { return fc.Frame(g.up, n+1) }

func TestFrameNotRequested(t *testing.T) {
	c, _ := newTestCore(t)
	src := blankClip(t, c, 4)
	defer src.Release()
	vi, err := src.VideoInfo()
	require.NoError(t, err)

	n, err := NewParallelRequestsFilter(c, FilterOptions{Name: "Greedy", Video: &vi}, greedy{up: src})
	require.NoError(t, err)
	defer n.Release()

	_, err = n.GetFrame(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrFrameNotRequested.Error())
}

func TestFilterFailures(t *testing.T) {
	c, _ := newTestCore(t)

	broken := newGenerator(t, c, "Broken", func(*FrameContext, int) (*Frame, error) {
		return nil, errors.New("sensor offline")
	})
	defer broken.Release()
	_, err := broken.GetFrame(1)
	var ge *GetFrameError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, 1, ge.N)
	assert.Equal(t, "Broken: sensor offline", ge.Message)
	assert.ErrorIs(t, err, ErrFilterFailure)

	// Upstream failures reach consumers of downstream filters unchanged.
	vi, err := broken.VideoInfo()
	require.NoError(t, err)
	down, err := NewParallelFilter(c, FilterOptions{Name: "Down", Video: &vi, Dependencies: []Dependency{{Node: broken}}}, passthrough{up: broken})
	require.NoError(t, err)
	defer down.Release()
	_, err = down.GetFrame(2)
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "Broken: sensor offline", ge.Message)

	panicky := newGenerator(t, c, "Panicky", func(*FrameContext, int) (*Frame, error) { panic("boom") })
	defer panicky.Release()
	_, err = panicky.GetFrame(0)
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "Panicky: panic: boom", ge.Message)

	empty := newGenerator(t, c, "Empty", func(*FrameContext, int) (*Frame, error) { return nil, nil })
	defer empty.Release()
	_, err = empty.GetFrame(0)
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "Empty: no frame produced", ge.Message)
}

func TestFilterOptionsValidation(t *testing.T) {
	c, _ := newTestCore(t)
	vi, f := grayInfo(t, c, 4)
	g := generator{format: f}

	_, err := NewParallelFilter(c, FilterOptions{Video: &vi}, g)
	assert.EqualError(t, err, "create filter: empty name")

	_, err = NewParallelFilter(c, FilterOptions{Name: "Both", Video: &vi, Audio: &AudioInfo{}}, g)
	assert.EqualError(t, err, "create filter Both: exactly one of Video and Audio must be set")

	empty := vi
	empty.NumFrames = 0
	_, err = NewParallelFilter(c, FilterOptions{Name: "Empty", Video: &empty}, g)
	assert.Error(t, err)

	gone := blankClip(t, c, 1)
	gone.Release()
	_, err = NewParallelFilter(c, FilterOptions{Name: "Orphan", Video: &vi, Dependencies: []Dependency{{Node: gone}}}, g)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestGetFrameErrors(t *testing.T) {
	c, _ := newTestCore(t)
	n := blankClip(t, c, 5)
	defer n.Release()

	_, err := n.GetFrame(5)
	var ge *GetFrameError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "Invalid frame number 5 requested, clip only has 5 frames", ge.Message)

	_, err = n.GetFrame(-1)
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "negative frame number", ge.Message)

	done := make(chan error, 1)
	require.NoError(t, n.GetFrameAsync(9, func(f *Frame, i int, err error) {
		assert.Nil(t, f)
		assert.Equal(t, 9, i)
		done <- err
	}))
	assert.ErrorAs(t, <-done, &ge)
}

func TestGetFrameContext(t *testing.T) {
	c, e := newTestCore(t)
	release := make(chan struct{})
	_, format := grayInfo(t, c, 1)
	n := newGenerator(t, c, "Slow", func(fc *FrameContext, _ int) (*Frame, error) {
		<-release
		fm, err := fc.Core().NewVideoFrame(format, 8, 8, nil)
		if err != nil {
			return nil, err
		}
		return fm.Freeze()
	})
	defer n.Release()
	require.NoError(t, n.SetCacheMode(CacheForceDisable))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := n.GetFrameContext(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)

	// The abandoned frame is released once it arrives.
	close(release)
	require.Eventually(t, func() bool {
		s := e.Stats()
		return s.Frames == 0 && s.Requests == 0
	}, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, c.LiveHandles())

	f, err := n.GetFrameContext(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 8, f.Width(0))
	f.Release()
}

func TestAudioNodes(t *testing.T) {
	c, _ := newTestCore(t)
	std, err := c.PluginByNamespace("std")
	require.NoError(t, err)
	clip, err := std.InvokeClip("BlankAudio", nil)
	require.NoError(t, err)
	defer clip.Release()

	assert.Equal(t, MediaTypeAudio, clip.Type())
	ai, err := clip.AudioInfo()
	require.NoError(t, err)
	assert.Equal(t, 44100, ai.SampleRate)
	assert.EqualValues(t, 441000, ai.NumSamples)
	assert.Equal(t, 144, ai.NumFrames)
	assert.Equal(t, AudioFrameSamples, ai.FrameSamples(0))
	assert.Equal(t, 1704, ai.FrameSamples(143))
	assert.Zero(t, ai.FrameSamples(144))
	_, err = clip.VideoInfo()
	assert.Error(t, err)

	f, err := clip.GetFrame(143)
	require.NoError(t, err)
	defer f.Release()
	assert.Equal(t, 1704, f.SampleCount())
	format, err := f.AudioFormat()
	require.NoError(t, err)
	assert.Equal(t, 2, format.NumChannels)
	_, err = f.VideoFormat()
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestModes(t *testing.T) {
	for _, m := range []Mode{ModeParallel, ModeParallelRequests, ModeUnordered, ModeSerial} {
		assert.Equal(t, m, modeFromABI(m.toABI()), m.String())
	}
	assert.True(t, ModeSerial.Serialized())
	assert.True(t, ModeUnordered.Serialized())
	assert.False(t, ModeParallelRequests.Serialized())
	assert.Equal(t, "awaiting-upstream", StateAwaitingUpstream.String())
}
