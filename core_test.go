package vapoursynth

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/thesyncim/vapoursynth/internal/abi"
	"github.com/thesyncim/vapoursynth/vstest"
)

func TestCoreInfo(t *testing.T) {
	c, _ := newTestCore(t)
	info := c.Info()
	assert.Equal(t, Version{4, 1}, info.API)
	assert.Positive(t, info.NumThreads)

	assert.Equal(t, 3, c.SetThreadCount(3))
	assert.Equal(t, 3, c.Info().NumThreads)
	assert.True(t, c.Owned())
	assert.Same(t, c.API(), c.API())
}

func TestCoreCloseInvalidatesHandles(t *testing.T) {
	api, e := newTestAPI(t)
	c, err := api.NewCore(CoreOptions{})
	require.NoError(t, err)

	n := blankClip(t, c, 4)
	f, err := n.GetFrame(0)
	require.NoError(t, err)
	m := c.NewMap()
	require.NoError(t, m.SetNode("clip", n))
	assert.EqualValues(t, 3, c.LiveHandles())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.False(t, n.Valid())
	assert.False(t, f.Valid())
	_, err = n.GetFrame(0)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	_, err = m.Node("clip")
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.Empty(t, c.Plugins())

	// Releasing after close must not reach the engine.
	n.Release()
	f.Release()
	m.Release()
	stats := e.Stats()
	assert.Zero(t, stats.InvalidCalls)
	assert.Zero(t, stats.Cores)
	assert.Zero(t, stats.Nodes)
	assert.Zero(t, stats.Frames)
	assert.EqualValues(t, 0, c.LiveHandles())
}

func TestLiveHandles(t *testing.T) {
	c, _ := newTestCore(t)
	n := blankClip(t, c, 2)
	assert.EqualValues(t, 1, c.LiveHandles())
	clone, err := n.Clone()
	require.NoError(t, err)
	assert.EqualValues(t, 2, c.LiveHandles())
	n.Release()
	n.Release()
	clone.Release()
	assert.EqualValues(t, 0, c.LiveHandles())
}

func TestFormats(t *testing.T) {
	c, _ := newTestCore(t)

	f, err := c.QueryVideoFormat(ColorFamilyYUV, SampleTypeInteger, 10, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, FormatYUV420P10, f.ID())
	assert.Equal(t, "YUV420P10", f.Name())
	assert.Equal(t, 2, f.BytesPerSample)
	assert.Equal(t, 3, f.NumPlanes)
	assert.Equal(t, 8, f.PlaneWidth(1, 16))
	assert.Equal(t, 16, f.PlaneWidth(0, 16))

	gray, err := c.VideoFormatByID(FormatGray8)
	require.NoError(t, err)
	assert.Equal(t, "Gray8", gray.String())
	assert.Equal(t, 1, gray.NumPlanes)

	_, err = c.QueryVideoFormat(ColorFamilyGray, SampleTypeFloat, 8, 0, 0)
	assert.ErrorIs(t, err, ErrNotSupported)

	af, err := c.QueryAudioFormat(SampleTypeFloat, 32, LayoutStereo)
	require.NoError(t, err)
	assert.Equal(t, 2, af.NumChannels)
	assert.Equal(t, 4, af.BytesPerSample)
}

func TestNewFrames(t *testing.T) {
	c, _ := newTestCore(t)
	format, err := c.VideoFormatByID(FormatYUV420P8)
	require.NoError(t, err)

	fm, err := c.NewVideoFrame(format, 16, 8, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, fm.NumPlanes())
	assert.Equal(t, 8, fm.Width(1))
	assert.Equal(t, 4, fm.Height(2))
	assert.Zero(t, fm.Width(3), "plane out of range")

	luma, err := fm.WritablePlane(0)
	require.NoError(t, err)
	for i := range luma {
		luma[i] = 200
	}
	require.NoError(t, fm.PropsMut().SetInt("_Matrix", 1))

	f, err := fm.Freeze()
	require.NoError(t, err)
	defer f.Release()
	assert.False(t, fm.Valid())

	row, err := f.PlaneRow(0, 7)
	require.NoError(t, err)
	assert.Len(t, row, 16)
	assert.Equal(t, byte(200), row[15])
	_, err = f.PlaneRow(0, 8)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	cp, err := c.CopyFrame(f)
	require.NoError(t, err)
	defer cp.Release()
	v, err := cp.Props().Int("_Matrix")
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)

	_, err = c.NewVideoFrame(VideoFormat{}, 16, 8, nil)
	assert.ErrorIs(t, err, ErrNotSupported)

	af, err := c.QueryAudioFormat(SampleTypeInteger, 16, LayoutStereo)
	require.NoError(t, err)
	am, err := c.NewAudioFrame(af, 100, nil)
	require.NoError(t, err)
	defer am.Release()
	assert.Equal(t, 100, am.SampleCount())
	assert.Equal(t, 2, am.NumPlanes())
	ch, err := am.Plane(1)
	require.NoError(t, err)
	assert.Len(t, ch, 200)

	_, err = c.NewAudioFrame(af, AudioFrameSamples+1, nil)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestOutputs(t *testing.T) {
	c, e := newTestCore(t)
	n := blankClip(t, c, 2)
	require.NoError(t, c.SetOutput(3, n))
	require.NoError(t, c.SetOutput(1, n))
	assert.Equal(t, 3, e.RefCount(nativeNode(n)))
	assert.Equal(t, []int{1, 3}, c.OutputIndexes())

	out, err := c.Output(3)
	require.NoError(t, err)
	assert.Equal(t, 2, out.NumFrames())
	out.Release()
	_, err = c.Output(0)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, c.SetOutput(1, n))
	assert.Equal(t, 3, e.RefCount(nativeNode(n)), "replaced output drops its reference")
	n.Release()
}

func TestCoreLogHandlers(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	api, e := newTestAPI(t)
	c, err := api.NewCore(CoreOptions{LogHandler: func(mt MessageType, msg string) {
		mu.Lock()
		seen = append(seen, mt.String()+": "+msg)
		mu.Unlock()
	}})
	require.NoError(t, err)

	zc, logs := observer.New(zapcore.DebugLevel)
	h, err := c.ForwardLogs(zap.New(zc))
	require.NoError(t, err)

	c.Log(MessageWarning, "cache full")
	mu.Lock()
	assert.Equal(t, []string{"warning: cache full"}, seen)
	mu.Unlock()
	entries := logs.FilterMessage("cache full").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)

	h.Remove()
	h.Remove()
	c.Log(MessageInformation, "after remove")
	assert.Zero(t, logs.FilterMessage("after remove").Len())
	assert.Equal(t, 1, e.Stats().LogHandlers)

	require.NoError(t, c.Close())
	assert.Zero(t, e.Stats().LogHandlers)
}

func TestMessageLevels(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, MessageDebug.Level())
	assert.Equal(t, zapcore.InfoLevel, MessageInformation.Level())
	assert.Equal(t, zapcore.WarnLevel, MessageWarning.Level())
	assert.Equal(t, zapcore.ErrorLevel, MessageCritical.Level())
	assert.Equal(t, zapcore.ErrorLevel, MessageFatal.Level())
	assert.Equal(t, "fatal", MessageFatal.String())
}

func TestZapLogHandlerMarksFatal(t *testing.T) {
	zc, logs := observer.New(zapcore.DebugLevel)
	ZapLogHandler(zap.New(zc))(MessageFatal, "abort")
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].ContextMap()["fatal"])
	assert.Equal(t, "vapoursynth", entries[0].ContextMap()["source"])
}

func TestNodeTiming(t *testing.T) {
	c, _ := newTestCore(t)
	require.NoError(t, c.SetNodeTiming(true))
	on, err := c.NodeTiming()
	require.NoError(t, err)
	assert.True(t, on)

	n := blankClip(t, c, 2)
	f, err := n.GetFrame(0)
	require.NoError(t, err)
	f.Release()
	_, err = n.ProcessingTime(true)
	require.NoError(t, err)
	n.Release()
	_, err = c.FreedNodeProcessingTime(false)
	assert.NoError(t, err)
	assert.NoError(t, c.ClearCaches())
}

func TestNewCoreLoadsPlugins(t *testing.T) {
	api, e := newTestAPI(t, vstest.WithPluginFile("/usr/lib/vapoursynth/libecho.so", vstest.PluginSpec{
		ID:        "com.example.echo",
		Namespace: "echo",
		Name:      "Echo",
		Functions: []vstest.FunctionSpec{{Name: "Echo", Args: "x:int;", Returns: "x:int;"}},
	}))
	c, err := api.NewCore(CoreOptions{Plugins: []string{"/usr/lib/vapoursynth/libecho.so"}, Threads: 2})
	require.NoError(t, err)
	defer c.Close()
	p, err := c.PluginByNamespace("echo")
	require.NoError(t, err)
	assert.Equal(t, "com.example.echo", p.ID())

	_, err = api.NewCore(CoreOptions{Plugins: []string{"/missing.so"}})
	var le *PluginLoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "/missing.so", le.Path)
	assert.Equal(t, 1, e.Stats().Cores, "failed construction frees its core")
}

func TestCrossCoreHandles(t *testing.T) {
	api, e := newTestAPI(t)
	a, err := api.NewCore(CoreOptions{})
	require.NoError(t, err)
	defer a.Close()
	b, err := api.NewCore(CoreOptions{})
	require.NoError(t, err)
	defer b.Close()

	srcB := blankClip(t, b, 2)
	defer srcB.Release()
	vi, err := srcB.VideoInfo()
	require.NoError(t, err)

	t.Run("dependency", func(t *testing.T) {
		_, err := NewParallelFilter(a, FilterOptions{
			Name:         "Mixed",
			Video:        &vi,
			Dependencies: []Dependency{{Node: srcB}},
		}, passthrough{up: srcB})
		assert.ErrorIs(t, err, ErrInvalidHandle)
		assert.ErrorContains(t, err, "node belongs to a different core")
	})

	t.Run("request", func(t *testing.T) {
		n, err := NewParallelFilter(a, FilterOptions{Name: "Undeclared", Video: &vi}, passthrough{up: srcB})
		require.NoError(t, err)
		defer n.Release()
		_, err = n.GetFrame(0)
		var ge *GetFrameError
		require.ErrorAs(t, err, &ge)
		assert.Contains(t, ge.Message, "request frame 0: node belongs to a different core")
	})

	t.Run("output frame", func(t *testing.T) {
		n := newGenerator(t, a, "Foreign", func(*FrameContext, int) (*Frame, error) {
			fm, err := b.NewVideoFrame(vi.Format, 8, 8, nil)
			if err != nil {
				return nil, err
			}
			return fm.Freeze()
		})
		defer n.Release()
		_, err := n.GetFrame(0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "output frame: frame belongs to a different core")
	})

	t.Run("map", func(t *testing.T) {
		m := a.NewMap()
		defer m.Release()
		assert.ErrorIs(t, m.SetNode("clip", srcB), ErrInvalidHandle)
		assert.ErrorIs(t, m.AppendNode("clip", srcB), ErrInvalidHandle)

		f, err := srcB.GetFrame(0)
		require.NoError(t, err)
		defer f.Release()
		assert.ErrorIs(t, m.SetFrame("frame", f), ErrInvalidHandle)

		clone, err := srcB.Clone()
		require.NoError(t, err)
		assert.ErrorIs(t, m.ConsumeNode("clip", clone), ErrInvalidHandle)
		assert.False(t, clone.Valid())
		assert.Zero(t, m.Len())

		// Maps without a core accept handles from any core.
		free := api.NewMap()
		defer free.Release()
		assert.NoError(t, free.SetNode("clip", srcB))
	})

	assert.Zero(t, e.Stats().InvalidCalls)
}

// lostCallbacks accepts asynchronous frame requests and never completes them.
type lostCallbacks struct{ abi.Table }

func (lostCallbacks) GetFrameAsync(int, abi.Node, uintptr) {}

func TestCloseFailsPendingRequests(t *testing.T) {
	api, e := newTestAPI(t)
	c, err := api.NewCore(CoreOptions{})
	require.NoError(t, err)
	other, err := api.NewCore(CoreOptions{})
	require.NoError(t, err)
	defer other.Close()
	n := blankClip(t, c, 2)
	defer n.Release()
	keep := blankClip(t, other, 2)
	defer keep.Release()
	api.table = lostCallbacks{api.table}
	before := frameRequests.Len()

	done := make(chan error, 2)
	require.NoError(t, n.GetFrameAsync(1, func(f *Frame, i int, err error) {
		assert.Nil(t, f)
		assert.Equal(t, 1, i)
		done <- err
	}))
	require.NoError(t, keep.GetFrameAsync(0, func(_ *Frame, _ int, err error) { done <- err }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = n.GetFrameContext(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before+3, frameRequests.Len())

	zc, logs := observer.New(zapcore.DebugLevel)
	prev := Logger()
	SetLogger(zap.New(zc))
	defer SetLogger(prev)

	require.NoError(t, c.Close())
	err = <-done
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.ErrorContains(t, err, "frame 1: core freed")
	// The abandoned GetFrameContext request is failed too; the other
	// core's request stays pending.
	assert.Equal(t, before+1, frameRequests.Len())
	assert.Equal(t, 2, logs.FilterMessage("frame request pending when core was freed").Len())
	assert.Empty(t, done)

	frameRequests.RemoveFunc(func(r *frameRequest) bool { return r.core == other.state })
	assert.Zero(t, e.Stats().InvalidCalls)
}
