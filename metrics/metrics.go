// Package metrics exports engine and driver statistics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	vs "github.com/thesyncim/vapoursynth"
)

const namespace = "vapoursynth"

var (
	nodeTimeDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "node", "processing_seconds_total"),
		"Time spent producing frames, per node. Needs node timing (API 4.1).",
		[]string{"node", "filter"}, nil)
	freedTimeDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "core", "freed_node_processing_seconds_total"),
		"Time spent producing frames by nodes that were freed.",
		nil, nil)
	threadsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "core", "threads"),
		"Worker threads of the core.",
		nil, nil)
	cacheUsedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "core", "framebuffer_used_bytes"),
		"Memory held by frame buffers.",
		nil, nil)
	cacheMaxDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "core", "framebuffer_max_bytes"),
		"Frame buffer memory limit.",
		nil, nil)
	handlesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "core", "live_handles"),
		"Handles derived from the core that have not been released.",
		nil, nil)
)

// CoreCollector reports core statistics and the processing time of
// registered nodes.
type CoreCollector struct {
	core  *vs.Core
	log   *zap.Logger
	mu    sync.Mutex
	nodes map[string]*vs.Node
}

// NewCoreCollector returns a collector for c. If the negotiated API has
// node timing, timing is enabled on the core.
func NewCoreCollector(c *vs.Core, log *zap.Logger) *CoreCollector {
	if log == nil {
		log = zap.NewNop()
	}
	if c.API().Supports(vs.FeatureNodeTiming) {
		if err := c.SetNodeTiming(true); err != nil {
			log.Warn("enable node timing", zap.Error(err))
		}
	}
	return &CoreCollector{core: c, log: log, nodes: make(map[string]*vs.Node)}
}

// Track reports the processing time of n under label. The collector
// keeps its own reference until Close.
func (c *CoreCollector) Track(label string, n *vs.Node) error {
	clone, err := n.Clone()
	if err != nil {
		return err
	}
	c.mu.Lock()
	old := c.nodes[label]
	c.nodes[label] = clone
	c.mu.Unlock()
	old.Release()
	return nil
}

// Close releases the tracked nodes.
func (c *CoreCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for label, n := range c.nodes {
		n.Release()
		delete(c.nodes, label)
	}
}

func (c *CoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- nodeTimeDesc
	ch <- freedTimeDesc
	ch <- threadsDesc
	ch <- cacheUsedDesc
	ch <- cacheMaxDesc
	ch <- handlesDesc
}

func (c *CoreCollector) Collect(ch chan<- prometheus.Metric) {
	info := c.core.Info()
	ch <- prometheus.MustNewConstMetric(threadsDesc, prometheus.GaugeValue, float64(info.NumThreads))
	ch <- prometheus.MustNewConstMetric(cacheUsedDesc, prometheus.GaugeValue, float64(info.UsedFramebufferSize))
	ch <- prometheus.MustNewConstMetric(cacheMaxDesc, prometheus.GaugeValue, float64(info.MaxFramebufferSize))
	ch <- prometheus.MustNewConstMetric(handlesDesc, prometheus.GaugeValue, float64(c.core.LiveHandles()))

	if !c.core.API().Supports(vs.FeatureNodeTiming) {
		return
	}
	if d, err := c.core.FreedNodeProcessingTime(false); err == nil {
		ch <- prometheus.MustNewConstMetric(freedTimeDesc, prometheus.CounterValue, d.Seconds())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for label, n := range c.nodes {
		d, err := n.ProcessingTime(false)
		if err != nil {
			c.log.Debug("node processing time", zap.String("node", label), zap.Error(err))
			continue
		}
		filter, _ := n.Name()
		ch <- prometheus.MustNewConstMetric(nodeTimeDesc, prometheus.CounterValue, d.Seconds(), label, filter)
	}
}

// PipeMetrics counts frames leaving the output driver. It satisfies the
// driver's Observer interface.
type PipeMetrics struct {
	frames   prometheus.Counter
	bytes    prometheus.Counter
	failures prometheus.Counter
	latency  prometheus.Histogram
}

// NewPipeMetrics creates the driver metrics and registers them with reg.
func NewPipeMetrics(reg prometheus.Registerer) *PipeMetrics {
	m := &PipeMetrics{
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipe",
			Name: "frames_written_total",
			Help: "Frames written to the output.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipe",
			Name: "bytes_written_total",
			Help: "Bytes written to the output.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipe",
			Name: "frame_failures_total",
			Help: "Frames that failed to render or write.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipe",
			Name:    "frame_latency_seconds",
			Help:    "Time from requesting a frame to writing it.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
	reg.MustRegister(m.frames, m.bytes, m.failures, m.latency)
	return m
}

func (m *PipeMetrics) FrameWritten(_ int, bytes int, latency time.Duration) {
	m.frames.Inc()
	m.bytes.Add(float64(bytes))
	m.latency.Observe(latency.Seconds())
}

func (m *PipeMetrics) FrameFailed(int, error) { m.failures.Inc() }

// Handler serves the metrics gathered by g under /metrics.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// Serve exposes Handler(g) on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log *zap.Logger) error {
	srv := &http.Server{Addr: addr, Handler: Handler(g), ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("serving metrics", zap.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
