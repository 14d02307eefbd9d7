package vapoursynth

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/thesyncim/vapoursynth/internal/abi"
	"github.com/thesyncim/vapoursynth/internal/handle"
)

// Node is an owned reference to a filter graph node.
type Node struct {
	api *API
	r   ref
}

func (a *API) newNode(p abi.Node, core *coreState) *Node {
	n := &Node{api: a}
	n.r.set(uintptr(p), core, true)
	runtime.SetFinalizer(n, (*Node).Release)
	return n
}

func (n *Node) handle() (abi.Node, error) {
	if n == nil {
		return 0, ErrInvalidHandle
	}
	p, err := n.r.get()
	return abi.Node(p), err
}

func (n *Node) detach() (abi.Node, error) {
	if n == nil {
		return 0, ErrInvalidHandle
	}
	runtime.SetFinalizer(n, nil)
	p, err := n.r.detach()
	return abi.Node(p), err
}

// Valid reports whether the handle still refers to a live node.
func (n *Node) Valid() bool { return n != nil && n.r.alive() }

// Release drops this reference. Safe to call twice.
func (n *Node) Release() {
	if n == nil {
		return
	}
	runtime.SetFinalizer(n, nil)
	n.r.release(func(p uintptr) { n.api.table.FreeNode(abi.Node(p)) })
}

// Clone returns a new reference to the same node.
func (n *Node) Clone() (*Node, error) {
	p, err := n.handle()
	if err != nil {
		return nil, err
	}
	return n.api.newNode(n.api.table.AddNodeRef(p), n.r.core), nil
}

// Type returns whether the node produces video or audio.
func (n *Node) Type() MediaType {
	p, err := n.handle()
	if err != nil {
		return 0
	}
	return MediaType(n.api.table.GetNodeType(p))
}

// VideoInfo describes a video node's output.
func (n *Node) VideoInfo() (VideoInfo, error) {
	p, err := n.handle()
	if err != nil {
		return VideoInfo{}, err
	}
	if n.api.table.GetNodeType(p) != abi.MediaTypeVideo {
		return VideoInfo{}, fmt.Errorf("video info of audio node: %w", ErrNotSupported)
	}
	return videoInfoFromABI(n.api.table.GetVideoInfo(p)), nil
}

// AudioInfo describes an audio node's output.
func (n *Node) AudioInfo() (AudioInfo, error) {
	if err := n.api.require(FeatureAudio); err != nil {
		return AudioInfo{}, err
	}
	p, err := n.handle()
	if err != nil {
		return AudioInfo{}, err
	}
	if n.api.table.GetNodeType(p) != abi.MediaTypeAudio {
		return AudioInfo{}, fmt.Errorf("audio info of video node: %w", ErrNotSupported)
	}
	return audioInfoFromABI(n.api.table.GetAudioInfo(p)), nil
}

// NumFrames returns the node's frame count regardless of media type.
func (n *Node) NumFrames() int {
	p, err := n.handle()
	if err != nil {
		return 0
	}
	if n.api.table.GetNodeType(p) == abi.MediaTypeAudio {
		return n.api.table.GetAudioInfo(p).NumFrames
	}
	return n.api.table.GetVideoInfo(p).NumFrames
}

// GetFrame requests frame i and blocks until it is produced. Do not call
// it from inside a filter callback; use the FrameContext instead.
func (n *Node) GetFrame(i int) (*Frame, error) {
	p, err := n.handle()
	if err != nil {
		return nil, err
	}
	if i < 0 {
		return nil, &GetFrameError{N: i, Message: "negative frame number"}
	}
	f, msg := n.api.table.GetFrame(i, p)
	if f == 0 {
		if msg == "" {
			msg = "no frame returned"
		}
		return nil, &GetFrameError{N: i, Message: msg}
	}
	return n.api.newFrame(f, n.r.core), nil
}

// FrameCallback receives the result of an asynchronous request. On success
// the callback owns f and must release it.
type FrameCallback func(f *Frame, n int, err error)

type frameRequest struct {
	api  *API
	core *coreState
	n    int
	fn   FrameCallback
}

var frameRequests = handle.New[*frameRequest]()

// GetFrameAsync requests frame i and returns immediately. fn runs exactly
// once on an engine thread.
func (n *Node) GetFrameAsync(i int, fn FrameCallback) error {
	p, err := n.handle()
	if err != nil {
		return err
	}
	if i < 0 {
		return &GetFrameError{N: i, Message: "negative frame number"}
	}
	id := frameRequests.Insert(&frameRequest{api: n.api, core: n.r.core, n: i, fn: fn})
	n.api.table.GetFrameAsync(i, p, id)
	return nil
}

// GetFrameContext requests frame i and waits for it or for ctx. When ctx
// ends first the request is abandoned and its frame released on arrival.
// Closing the core fails requests the engine never completed, so an
// abandoned request does not outlive its core.
func (n *Node) GetFrameContext(ctx context.Context, i int) (*Frame, error) {
	type result struct {
		f   *Frame
		err error
	}
	ch := make(chan result, 1)
	if err := n.GetFrameAsync(i, func(f *Frame, _ int, err error) {
		ch <- result{f, err}
	}); err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.f, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.f != nil {
				r.f.Release()
			}
		}()
		return nil, ctx.Err()
	}
}

// CacheMode controls the engine's frame cache for a node.
type CacheMode int

const (
	CacheAuto         = CacheMode(abi.CacheModeAuto)
	CacheForceDisable = CacheMode(abi.CacheModeForceDisable)
	CacheForceEnable  = CacheMode(abi.CacheModeForceEnable)
)

// SetCacheMode changes the node's cache policy.
func (n *Node) SetCacheMode(mode CacheMode) error {
	p, err := n.handle()
	if err != nil {
		return err
	}
	n.api.table.SetCacheMode(p, abi.CacheMode(mode))
	return nil
}

// SetCacheOptions tunes the cache. Negative values keep the current setting.
func (n *Node) SetCacheOptions(fixedSize, maxSize, maxHistorySize int) error {
	p, err := n.handle()
	if err != nil {
		return err
	}
	n.api.table.SetCacheOptions(p, fixedSize, maxSize, maxHistorySize)
	return nil
}

// SetLinear marks the node as a linear filter and returns the engine's
// suggested cache size.
func (n *Node) SetLinear() (int, error) {
	p, err := n.handle()
	if err != nil {
		return 0, err
	}
	return n.api.table.SetLinearFilter(p), nil
}

// ClearCache drops every cached frame of the node.
func (n *Node) ClearCache() error {
	if err := n.api.require(FeatureCacheClearing); err != nil {
		return err
	}
	p, err := n.handle()
	if err != nil {
		return err
	}
	n.api.table.ClearNodeCache(p)
	return nil
}

// Name returns the filter name the node was created with.
func (n *Node) Name() (string, error) {
	if err := n.api.require(FeatureNodeIntrospection); err != nil {
		return "", err
	}
	p, err := n.handle()
	if err != nil {
		return "", err
	}
	return n.api.table.GetNodeName(p), nil
}

// FilterMode returns the execution mode the node was created with.
func (n *Node) FilterMode() (Mode, error) {
	if err := n.api.require(FeatureNodeIntrospection); err != nil {
		return 0, err
	}
	p, err := n.handle()
	if err != nil {
		return 0, err
	}
	return modeFromABI(n.api.table.GetNodeFilterMode(p)), nil
}

// Dependency is an upstream node together with its request pattern.
type Dependency struct {
	Node    *Node
	Pattern RequestPattern
}

// RequestPattern tells the engine how a filter consumes an upstream node.
type RequestPattern int

const (
	PatternGeneral       = RequestPattern(abi.RequestPatternGeneral)
	PatternNoFrameReuse  = RequestPattern(abi.RequestPatternNoFrameReuse)
	PatternStrictSpatial = RequestPattern(abi.RequestPatternStrictSpatial)
)

// Dependencies lists the node's upstream nodes. The returned nodes are new
// references owned by the caller.
func (n *Node) Dependencies() ([]Dependency, error) {
	if err := n.api.require(FeatureNodeIntrospection); err != nil {
		return nil, err
	}
	p, err := n.handle()
	if err != nil {
		return nil, err
	}
	count := n.api.table.GetNumNodeDependencies(p)
	deps := make([]Dependency, 0, count)
	for i := 0; i < count; i++ {
		d := n.api.table.GetNodeDependency(p, i)
		deps = append(deps, Dependency{
			Node:    n.api.newNode(n.api.table.AddNodeRef(d.Source), n.r.core),
			Pattern: RequestPattern(d.RequestPattern),
		})
	}
	return deps, nil
}

// ProcessingTime returns the time spent producing frames, optionally
// resetting the counter. Timing must be enabled on the core.
func (n *Node) ProcessingTime(reset bool) (time.Duration, error) {
	if err := n.api.require(FeatureNodeTiming); err != nil {
		return 0, err
	}
	p, err := n.handle()
	if err != nil {
		return 0, err
	}
	return time.Duration(n.api.table.GetNodeProcessingTime(p, reset)), nil
}

// failFrameRequests completes every request still pending on core with
// ErrInvalidHandle. The core has been freed, so no callback can follow.
func failFrameRequests(core *coreState) {
	pending := frameRequests.RemoveFunc(func(r *frameRequest) bool { return r.core == core })
	for _, req := range pending {
		Logger().Warn("frame request pending when core was freed", zap.Int("n", req.n))
		req.deliver(nil, fmt.Errorf("frame %d: core freed: %w", req.n, ErrInvalidHandle))
	}
}

func (req *frameRequest) deliver(f *Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("panic in frame callback", zap.Int("n", req.n), zap.Any("panic", r))
		}
	}()
	req.fn(f, req.n, err)
}

func dispatchFrameDone(userData uintptr, f abi.Frame, i int, _ abi.Node, errMsg string) {
	req, ok := frameRequests.Remove(userData)
	if !ok {
		Logger().Error("frame completion for unknown request", zap.Uintptr("id", userData), zap.Int("n", i))
		return
	}
	if f == 0 {
		if errMsg == "" {
			errMsg = "no frame returned"
		}
		req.deliver(nil, &GetFrameError{N: i, Message: errMsg})
		return
	}
	req.deliver(req.api.newFrame(f, req.core), nil)
}
