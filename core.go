package vapoursynth

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thesyncim/vapoursynth/internal/abi"
	"github.com/thesyncim/vapoursynth/internal/handle"
)

// CoreOptions configures NewCore.
type CoreOptions struct {
	// Threads sets the worker count. Zero keeps the engine default.
	Threads int
	// MaxCacheSize in bytes. Zero keeps the engine default.
	MaxCacheSize int64

	DisableAutoLoading      bool
	DisableLibraryUnloading bool
	EnableGraphInspection   bool

	// Plugins are loaded in order after creation. The first failure aborts
	// construction with a *PluginLoadError.
	Plugins []string

	// LogHandler receives engine messages for this core.
	LogHandler LogHandlerFunc
}

func (o CoreOptions) flags() int {
	var f int
	if o.EnableGraphInspection {
		f |= abi.CoreEnableGraphInspection
	}
	if o.DisableAutoLoading {
		f |= abi.CoreDisableAutoLoading
	}
	if o.DisableLibraryUnloading {
		f |= abi.CoreDisableLibraryUnloading
	}
	return f
}

// Core is a handle to an engine core: the filter graph owner, plugin
// registry and worker pool. Every node and frame derives from one core and
// must not outlive it; handles still open when an owned core closes become
// invalid.
type Core struct {
	api   *API
	ptr   abi.Core
	owned bool
	state *coreState

	mu      sync.Mutex
	outputs map[int]*Node
	logs    []*LogHandler
}

// cores maps native core pointers back to Go handles so callbacks resolve
// to the same coreState as the owner.
var cores sync.Map

// NewCore creates a core owned by the caller.
func (a *API) NewCore(opts CoreOptions) (*Core, error) {
	p := a.table.CreateCore(opts.flags())
	if p == 0 {
		return nil, fmt.Errorf("create core: %w", ErrNotSupported)
	}
	c := &Core{api: a, ptr: p, owned: true, state: &coreState{}}
	cores.Store(p, c)

	if opts.LogHandler != nil {
		if _, err := c.AddLogHandler(opts.LogHandler); err != nil {
			c.Close()
			return nil, err
		}
	}
	if opts.Threads > 0 {
		c.SetThreadCount(opts.Threads)
	}
	if opts.MaxCacheSize > 0 {
		c.SetMaxCacheSize(opts.MaxCacheSize)
	}
	for _, path := range opts.Plugins {
		if err := c.LoadPlugin(path); err != nil {
			c.Close()
			return nil, err
		}
	}
	a.log.Debug("core created",
		zap.Uintptr("core", uintptr(p)),
		zap.Int("threads", c.Info().NumThreads))
	return c, nil
}

// borrowCore returns the Go handle of a core the engine passed to a
// callback. Unknown cores get a borrowed handle that never frees.
func (a *API) borrowCore(p abi.Core) *Core {
	if v, ok := cores.Load(p); ok {
		return v.(*Core)
	}
	return &Core{api: a, ptr: p, state: &coreState{}}
}

func (c *Core) handle() (abi.Core, error) {
	if c == nil || c.ptr == 0 {
		return 0, ErrInvalidHandle
	}
	if err := c.state.check(); err != nil {
		return 0, err
	}
	return c.ptr, nil
}

// API returns the capability table the core was created from.
func (c *Core) API() *API { return c.api }

// Owned reports whether Close frees the native core.
func (c *Core) Owned() bool { return c.owned }

// LiveHandles returns the number of owned handles derived from this core
// that have not been released.
func (c *Core) LiveHandles() int64 { return c.state.live.Load() }

// Close releases graph outputs and log handlers, then frees the core if it
// is owned. Handles derived from the core are invalid afterwards.
func (c *Core) Close() error {
	if c == nil || c.state.closed.Load() {
		return nil
	}
	c.mu.Lock()
	outputs := c.outputs
	logs := c.logs
	c.outputs, c.logs = nil, nil
	c.mu.Unlock()

	for _, n := range outputs {
		n.Release()
	}
	for _, h := range logs {
		h.Remove()
	}
	if !c.owned {
		return nil
	}
	if !c.state.closed.CompareAndSwap(false, true) {
		return nil
	}
	if live := c.state.live.Load(); live > 0 {
		c.api.log.Warn("core closed with live handles", zap.Int64("handles", live))
	}
	cores.Delete(c.ptr)
	c.api.table.FreeCore(c.ptr)
	failFrameRequests(c.state)
	return nil
}

// Info returns core statistics.
func (c *Core) Info() CoreInfo {
	p, err := c.handle()
	if err != nil {
		return CoreInfo{}
	}
	ci := c.api.table.GetCoreInfo(p)
	return CoreInfo{
		VersionString:       ci.VersionString,
		Core:                ci.Core,
		API:                 ParseVersion(ci.API),
		NumThreads:          ci.NumThreads,
		MaxFramebufferSize:  ci.MaxFramebufferSize,
		UsedFramebufferSize: ci.UsedFramebufferSize,
	}
}

// SetThreadCount sets the worker count and returns the value in effect.
// Zero or negative selects the number of logical CPUs.
func (c *Core) SetThreadCount(n int) int {
	p, err := c.handle()
	if err != nil {
		return 0
	}
	return c.api.table.SetThreadCount(n, p)
}

// SetMaxCacheSize sets the frame cache limit and returns the value in effect.
func (c *Core) SetMaxCacheSize(bytes int64) int64 {
	p, err := c.handle()
	if err != nil {
		return 0
	}
	return c.api.table.SetMaxCacheSize(bytes, p)
}

// QueryVideoFormat validates and completes a video format description.
func (c *Core) QueryVideoFormat(cf ColorFamily, st SampleType, bits, ssw, ssh int) (VideoFormat, error) {
	p, err := c.handle()
	if err != nil {
		return VideoFormat{}, err
	}
	f, ok := c.api.table.QueryVideoFormat(abi.ColorFamily(cf), abi.SampleType(st), bits, ssw, ssh, p)
	if !ok {
		return VideoFormat{}, fmt.Errorf("video format %v/%v/%d/%d/%d: %w", cf, st, bits, ssw, ssh, ErrNotSupported)
	}
	return videoFormatFromABI(f), nil
}

// VideoFormatByID resolves a packed format ID such as FormatYUV420P8.
func (c *Core) VideoFormatByID(id uint32) (VideoFormat, error) {
	p, err := c.handle()
	if err != nil {
		return VideoFormat{}, err
	}
	f, ok := c.api.table.GetVideoFormatByID(id, p)
	if !ok {
		return VideoFormat{}, fmt.Errorf("video format id %#x: %w", id, ErrNotSupported)
	}
	return videoFormatFromABI(f), nil
}

// QueryAudioFormat validates and completes an audio format description.
func (c *Core) QueryAudioFormat(st SampleType, bits int, layout uint64) (AudioFormat, error) {
	if err := c.api.require(FeatureAudio); err != nil {
		return AudioFormat{}, err
	}
	p, err := c.handle()
	if err != nil {
		return AudioFormat{}, err
	}
	f, ok := c.api.table.QueryAudioFormat(abi.SampleType(st), bits, layout, p)
	if !ok {
		return AudioFormat{}, fmt.Errorf("audio format %v/%d/%#x: %w", st, bits, layout, ErrNotSupported)
	}
	return audioFormatFromABI(f), nil
}

// NewVideoFrame allocates a writable frame. Properties are copied from
// propSrc when it is non-nil.
func (c *Core) NewVideoFrame(format VideoFormat, width, height int, propSrc *Frame) (*FrameMut, error) {
	p, err := c.handle()
	if err != nil {
		return nil, err
	}
	if !format.Defined() || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("new video frame %s %dx%d: %w", format, width, height, ErrNotSupported)
	}
	var src abi.Frame
	if propSrc != nil {
		if src, err = propSrc.handle(); err != nil {
			return nil, err
		}
	}
	vf := format.toABI()
	f := c.api.table.NewVideoFrame(&vf, width, height, src, p)
	if f == 0 {
		return nil, fmt.Errorf("new video frame %s %dx%d: allocation failed", format, width, height)
	}
	return c.api.newFrameMut(f, c.state), nil
}

// NewAudioFrame allocates a writable audio frame of samples per channel.
func (c *Core) NewAudioFrame(format AudioFormat, samples int, propSrc *Frame) (*FrameMut, error) {
	if err := c.api.require(FeatureAudio); err != nil {
		return nil, err
	}
	p, err := c.handle()
	if err != nil {
		return nil, err
	}
	if samples <= 0 || samples > AudioFrameSamples {
		return nil, fmt.Errorf("new audio frame of %d samples: %w", samples, ErrIndexOutOfRange)
	}
	var src abi.Frame
	if propSrc != nil {
		if src, err = propSrc.handle(); err != nil {
			return nil, err
		}
	}
	af := format.toABI()
	f := c.api.table.NewAudioFrame(&af, samples, src, p)
	if f == 0 {
		return nil, fmt.Errorf("new audio frame %s: allocation failed", format)
	}
	return c.api.newFrameMut(f, c.state), nil
}

// CopyFrame returns a writable copy of f, properties included.
func (c *Core) CopyFrame(f *Frame) (*FrameMut, error) {
	p, err := c.handle()
	if err != nil {
		return nil, err
	}
	fp, err := f.handle()
	if err != nil {
		return nil, err
	}
	return c.api.newFrameMut(c.api.table.CopyFrame(fp, p), c.state), nil
}

// NewMap creates an empty map whose node and frame values belong to c.
func (c *Core) NewMap() *OwnedMap {
	return c.api.newOwnedMap(c.api.table.CreateMap(), c.state)
}

// Plugins lists every loaded plugin.
func (c *Core) Plugins() []*Plugin {
	p, err := c.handle()
	if err != nil {
		return nil
	}
	var out []*Plugin
	for pl := c.api.table.GetNextPlugin(0, p); pl != 0; pl = c.api.table.GetNextPlugin(pl, p) {
		out = append(out, &Plugin{core: c, ptr: pl})
	}
	return out
}

// PluginByID looks up a plugin by identifier, e.g. "com.vapoursynth.std".
func (c *Core) PluginByID(id string) (*Plugin, error) {
	p, err := c.handle()
	if err != nil {
		return nil, err
	}
	pl := c.api.table.GetPluginByID(id, p)
	if pl == 0 {
		return nil, fmt.Errorf("plugin id %q: %w", id, ErrKeyNotFound)
	}
	return &Plugin{core: c, ptr: pl}, nil
}

// PluginByNamespace looks up a plugin by namespace, e.g. "std".
func (c *Core) PluginByNamespace(ns string) (*Plugin, error) {
	p, err := c.handle()
	if err != nil {
		return nil, err
	}
	pl := c.api.table.GetPluginByNamespace(ns, p)
	if pl == 0 {
		return nil, fmt.Errorf("plugin namespace %q: %w", ns, ErrKeyNotFound)
	}
	return &Plugin{core: c, ptr: pl}, nil
}

// LoadPlugin loads a plugin binary through std.LoadPlugin.
func (c *Core) LoadPlugin(path string) error {
	std, err := c.PluginByNamespace("std")
	if err != nil {
		return &PluginLoadError{Path: path, Reason: err.Error()}
	}
	args := c.NewMap()
	defer args.Release()
	if err := args.SetString("path", path); err != nil {
		return &PluginLoadError{Path: path, Reason: err.Error()}
	}
	ret, err := std.Invoke("LoadPlugin", args.Ref())
	if err != nil {
		reason := err.Error()
		var ie *InvokeError
		if errors.As(err, &ie) {
			reason = ie.Message
		}
		return &PluginLoadError{Path: path, Reason: reason}
	}
	ret.Release()
	c.api.log.Debug("plugin loaded", zap.String("path", path))
	return nil
}

// SetOutput publishes n as graph output index. The core keeps its own
// reference until the output is replaced or the core closes.
func (c *Core) SetOutput(index int, n *Node) error {
	clone, err := n.Clone()
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.outputs == nil {
		c.outputs = make(map[int]*Node)
	}
	old := c.outputs[index]
	c.outputs[index] = clone
	c.mu.Unlock()
	old.Release()
	return nil
}

// Output returns a new reference to graph output index.
func (c *Core) Output(index int) (*Node, error) {
	c.mu.Lock()
	n := c.outputs[index]
	c.mu.Unlock()
	if n == nil {
		return nil, fmt.Errorf("output %d: %w", index, ErrKeyNotFound)
	}
	return n.Clone()
}

// OutputIndexes returns the set output indexes in ascending order.
func (c *Core) OutputIndexes() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := make([]int, 0, len(c.outputs))
	for i := range c.outputs {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Log sends a message through this core's log handlers.
func (c *Core) Log(t MessageType, msg string) {
	if p, err := c.handle(); err == nil {
		c.api.table.LogMessage(abi.MessageType(t), msg, p)
	}
}

// LogHandler is a registered engine log receiver.
type LogHandler struct {
	core *Core
	ptr  abi.LogHandle
	once sync.Once
}

type logEntry struct {
	fn LogHandlerFunc
}

var logHandlers = handle.New[*logEntry]()

// AddLogHandler registers fn for messages emitted by this core.
func (c *Core) AddLogHandler(fn LogHandlerFunc) (*LogHandler, error) {
	p, err := c.handle()
	if err != nil {
		return nil, err
	}
	id := logHandlers.Insert(&logEntry{fn: fn})
	h := c.api.table.AddLogHandler(id, p)
	if h == 0 {
		logHandlers.Remove(id)
		return nil, fmt.Errorf("add log handler: %w", ErrNotSupported)
	}
	lh := &LogHandler{core: c, ptr: h}
	c.mu.Lock()
	c.logs = append(c.logs, lh)
	c.mu.Unlock()
	return lh, nil
}

// ForwardLogs routes this core's messages to l.
func (c *Core) ForwardLogs(l *zap.Logger) (*LogHandler, error) {
	return c.AddLogHandler(ZapLogHandler(l))
}

// Remove unregisters the handler. Safe to call twice.
func (h *LogHandler) Remove() {
	h.once.Do(func() {
		if p, err := h.core.handle(); err == nil {
			h.core.api.table.RemoveLogHandler(h.ptr, p)
		}
	})
}

func dispatchLog(t abi.MessageType, msg string, userData uintptr) {
	e, ok := logHandlers.Get(userData)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("panic in log handler", zap.Any("panic", r))
		}
	}()
	e.fn(MessageType(t), msg)
}

func dispatchLogFree(userData uintptr) {
	logHandlers.Remove(userData)
}

// ClearCaches drops every cached frame of every node in the core.
func (c *Core) ClearCaches() error {
	if err := c.api.require(FeatureCacheClearing); err != nil {
		return err
	}
	p, err := c.handle()
	if err != nil {
		return err
	}
	c.api.table.ClearCoreCaches(p)
	return nil
}

// SetNodeTiming enables or disables per-node processing time accounting.
func (c *Core) SetNodeTiming(enable bool) error {
	if err := c.api.require(FeatureNodeTiming); err != nil {
		return err
	}
	p, err := c.handle()
	if err != nil {
		return err
	}
	c.api.table.SetCoreNodeTiming(p, enable)
	return nil
}

// NodeTiming reports whether node timing is enabled.
func (c *Core) NodeTiming() (bool, error) {
	if err := c.api.require(FeatureNodeTiming); err != nil {
		return false, err
	}
	p, err := c.handle()
	if err != nil {
		return false, err
	}
	return c.api.table.GetCoreNodeTiming(p), nil
}

// FreedNodeProcessingTime returns the processing time accumulated by
// nodes that no longer exist.
func (c *Core) FreedNodeProcessingTime(reset bool) (time.Duration, error) {
	if err := c.api.require(FeatureNodeTiming); err != nil {
		return 0, err
	}
	p, err := c.handle()
	if err != nil {
		return 0, err
	}
	return time.Duration(c.api.table.GetFreedNodeProcessingTime(p, reset)), nil
}
