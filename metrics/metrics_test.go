package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vs "github.com/thesyncim/vapoursynth"
	"github.com/thesyncim/vapoursynth/internal/pipe"
	"github.com/thesyncim/vapoursynth/vstest"
)

var _ pipe.Observer = (*PipeMetrics)(nil)

func newCore(t *testing.T, opts ...vstest.Option) *vs.Core {
	t.Helper()
	api, err := vs.New(vstest.New(opts...), vs.Options{})
	require.NoError(t, err)
	c, err := api.NewCore(vs.CoreOptions{Threads: 3})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func blankClip(t *testing.T, c *vs.Core) *vs.Node {
	t.Helper()
	std, err := c.PluginByNamespace("std")
	require.NoError(t, err)
	n, err := std.InvokeClip("BlankClip", nil)
	require.NoError(t, err)
	return n
}

func TestCoreCollector(t *testing.T) {
	c := newCore(t)
	coll := NewCoreCollector(c, nil)
	on, err := c.NodeTiming()
	require.NoError(t, err)
	assert.True(t, on)

	n := blankClip(t, c)
	require.NoError(t, coll.Track("output", n))
	f, err := n.GetFrame(0)
	require.NoError(t, err)
	f.Release()

	assert.Equal(t, 6, testutil.CollectAndCount(coll))
	assert.Equal(t, 1, testutil.CollectAndCount(coll, "vapoursynth_node_processing_seconds_total"))
	require.NoError(t, testutil.CollectAndCompare(coll, strings.NewReader(`
# HELP vapoursynth_core_live_handles Handles derived from the core that have not been released.
# TYPE vapoursynth_core_live_handles gauge
vapoursynth_core_live_handles 2
# HELP vapoursynth_core_threads Worker threads of the core.
# TYPE vapoursynth_core_threads gauge
vapoursynth_core_threads 3
`), "vapoursynth_core_live_handles", "vapoursynth_core_threads"))

	coll.Close()
	n.Release()
	assert.Zero(t, c.LiveHandles())
	assert.Equal(t, 0, testutil.CollectAndCount(coll, "vapoursynth_node_processing_seconds_total"))
}

func TestCoreCollectorWithoutTiming(t *testing.T) {
	c := newCore(t, vstest.WithVersion(0))
	coll := NewCoreCollector(c, nil)
	n := blankClip(t, c)
	defer n.Release()
	require.NoError(t, coll.Track("output", n))
	defer coll.Close()

	assert.Equal(t, 4, testutil.CollectAndCount(coll))
}

func TestPipeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipeMetrics(reg)
	m.FrameWritten(0, 100, 2*time.Millisecond)
	m.FrameWritten(1, 50, 3*time.Millisecond)
	m.FrameFailed(2, assert.AnError)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.frames))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.bytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures))

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "vapoursynth_pipe_frames_written_total 2")
	assert.Contains(t, string(body), "vapoursynth_pipe_frame_latency_seconds_count 2")
}
