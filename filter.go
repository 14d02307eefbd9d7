package vapoursynth

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/thesyncim/vapoursynth/internal/abi"
	"github.com/thesyncim/vapoursynth/internal/handle"
)

// FilterOptions describe the node a filter produces. Exactly one of Video
// and Audio must be set.
type FilterOptions struct {
	Name         string
	Video        *VideoInfo
	Audio        *AudioInfo
	Dependencies []Dependency
}

// ParallelFilter may run for many frames at once and needs at most one
// upstream frame per output frame.
//
// A filter that also implements io.Closer is closed exactly once when the
// engine drops its node.
type ParallelFilter interface {
	// Upstream returns the single upstream frame needed for output frame n.
	// ok is false for filters that generate frames without input.
	Upstream(n int) (up Upstream, ok bool)
	Produce(fc *FrameContext, n int) (*Frame, error)
}

// BatchFilter may run for many frames at once and requests any number of
// upstream frames per output frame.
type BatchFilter interface {
	Request(n int, r *Requests) error
	Produce(fc *FrameContext, n int) (*Frame, error)
}

// StatefulFilter runs one activation at a time and is handed its state by
// pointer. The engine serializes calls, so the state needs no locking.
type StatefulFilter[S any] interface {
	Request(state *S, n int, r *Requests) error
	Produce(state *S, fc *FrameContext, n int) (*Frame, error)
}

// NewParallelFilter creates a ModeParallel node.
func NewParallelFilter(c *Core, opts FilterOptions, f ParallelFilter) (*Node, error) {
	return c.createFilter(opts, ModeParallel, parallelActivator{f}, 1)
}

// NewParallelRequestsFilter creates a ModeParallelRequests node.
func NewParallelRequestsFilter(c *Core, opts FilterOptions, f BatchFilter) (*Node, error) {
	return c.createFilter(opts, ModeParallelRequests, batchActivator{f}, 0)
}

// NewUnorderedFilter creates a ModeUnordered node owning state.
func NewUnorderedFilter[S any](c *Core, opts FilterOptions, state S, f StatefulFilter[S]) (*Node, error) {
	return c.createFilter(opts, ModeUnordered, &statefulActivator[S]{state: state, f: f, name: opts.Name, last: -1}, 0)
}

// NewSerialFilter creates a ModeSerial node owning state.
func NewSerialFilter[S any](c *Core, opts FilterOptions, state S, f StatefulFilter[S]) (*Node, error) {
	return c.createFilter(opts, ModeSerial, &statefulActivator[S]{state: state, f: f, name: opts.Name, serial: true, last: -1}, 0)
}

// activator is the mode-specific half of a filter instance.
type activator interface {
	request(fc *FrameContext, r *Requests) error
	produce(fc *FrameContext) (*Frame, error)
	close() error
}

type parallelActivator struct{ f ParallelFilter }

func (a parallelActivator) request(fc *FrameContext, r *Requests) error {
	up, ok := a.f.Upstream(fc.n)
	if !ok {
		return nil
	}
	return r.Add(up.Node, up.N)
}

func (a parallelActivator) produce(fc *FrameContext) (*Frame, error) { return a.f.Produce(fc, fc.n) }
func (a parallelActivator) close() error                             { return closeValue(a.f) }

type batchActivator struct{ f BatchFilter }

func (a batchActivator) request(fc *FrameContext, r *Requests) error { return a.f.Request(fc.n, r) }
func (a batchActivator) produce(fc *FrameContext) (*Frame, error)    { return a.f.Produce(fc, fc.n) }
func (a batchActivator) close() error                                { return closeValue(a.f) }

type statefulActivator[S any] struct {
	mu     sync.Mutex
	state  S
	f      StatefulFilter[S]
	name   string
	serial bool
	last   int
}

// lock takes the state lock. The engine already serializes these modes,
// so contention means the engine broke its contract; it is logged and the
// state stays protected.
func (a *statefulActivator[S]) lock() {
	if !a.mu.TryLock() {
		Logger().Warn("concurrent activation of a serialized filter", zap.String("filter", a.name))
		a.mu.Lock()
	}
}

func (a *statefulActivator[S]) request(fc *FrameContext, r *Requests) error {
	a.lock()
	defer a.mu.Unlock()
	if a.serial {
		if fc.n <= a.last {
			Logger().Warn("serial filter activated out of order",
				zap.String("filter", a.name), zap.Int("n", fc.n), zap.Int("previous", a.last))
		}
		a.last = fc.n
	}
	return a.f.Request(&a.state, fc.n, r)
}

func (a *statefulActivator[S]) produce(fc *FrameContext) (*Frame, error) {
	a.lock()
	defer a.mu.Unlock()
	return a.f.Produce(&a.state, fc, fc.n)
}

func (a *statefulActivator[S]) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return errors.Join(closeValue(a.f), closeValue(&a.state))
}

func closeValue(v any) error {
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// filterInstance is the Go side of one filter node.
type filterInstance struct {
	api       *API
	core      *Core
	name      string
	mode      Mode
	act       activator
	limit     int
	closeOnce sync.Once
}

var filterInstances = handle.New[*filterInstance]()

func (c *Core) createFilter(opts FilterOptions, mode Mode, act activator, limit int) (*Node, error) {
	p, err := c.handle()
	if err != nil {
		return nil, err
	}
	if opts.Name == "" {
		return nil, errors.New("create filter: empty name")
	}
	deps := make([]abi.FilterDependency, 0, len(opts.Dependencies))
	for _, d := range opts.Dependencies {
		dp, err := d.Node.handle()
		if err == nil {
			err = d.Node.r.belongsTo(c.state, "node")
		}
		if err != nil {
			return nil, fmt.Errorf("create filter %s: dependency: %w", opts.Name, err)
		}
		deps = append(deps, abi.FilterDependency{Source: dp, RequestPattern: abi.RequestPattern(d.Pattern)})
	}

	fi := &filterInstance{api: c.api, core: c, name: opts.Name, mode: mode, act: act, limit: limit}
	id := filterInstances.Insert(fi)

	var node abi.Node
	switch {
	case opts.Video != nil && opts.Audio == nil:
		if opts.Video.NumFrames <= 0 {
			filterInstances.Remove(id)
			return nil, fmt.Errorf("create filter %s: video node needs at least one frame", opts.Name)
		}
		vi := opts.Video.toABI()
		node = c.api.table.CreateVideoFilter2(opts.Name, &vi, mode.toABI(), deps, id, p)
	case opts.Audio != nil && opts.Video == nil:
		if err := c.api.require(FeatureAudio); err != nil {
			filterInstances.Remove(id)
			return nil, err
		}
		ai := opts.Audio.toABI()
		node = c.api.table.CreateAudioFilter2(opts.Name, &ai, mode.toABI(), deps, id, p)
	default:
		filterInstances.Remove(id)
		return nil, fmt.Errorf("create filter %s: exactly one of Video and Audio must be set", opts.Name)
	}
	if node == 0 {
		if fi, ok := filterInstances.Remove(id); ok {
			fi.close()
		}
		return nil, &FilterError{Filter: opts.Name, N: -1, Message: "engine refused to create the filter"}
	}
	c.api.log.Debug("filter created", zap.String("filter", opts.Name), zap.Stringer("mode", mode))
	return c.api.newNode(node, c.state), nil
}

func (fi *filterInstance) close() {
	fi.closeOnce.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				Logger().Error("panic closing filter", zap.String("filter", fi.name), zap.Any("panic", r))
			}
		}()
		if err := fi.act.close(); err != nil {
			Logger().Warn("filter close failed", zap.String("filter", fi.name), zap.Error(err))
		}
	})
}

func dispatchFree(instance uintptr, _ abi.Core) {
	if fi, ok := filterInstances.Remove(instance); ok {
		fi.close()
	}
}

func dispatchGetFrame(n int, reason abi.ActivationReason, instance uintptr, frameData *uintptr, ctx abi.FrameContext, core abi.Core) abi.Frame {
	fi, ok := filterInstances.Get(instance)
	if !ok {
		Logger().Error("activation of unknown filter", zap.Uintptr("instance", instance), zap.Int("n", n))
		return 0
	}
	return fi.activate(n, reason, frameData, ctx, core)
}

// activate drives one callback of the activation state machine:
//
//	Init -> AwaitingUpstream -> Producing -> Done
//	Init -> Producing                       (no upstream requests)
//	any  -> Failed                          (filter error, upstream error)
func (fi *filterInstance) activate(n int, reason abi.ActivationReason, frameData *uintptr, ctxPtr abi.FrameContext, corePtr abi.Core) (out abi.Frame) {
	id := *frameData
	var act *activation
	if id != 0 {
		act, _ = activations.Get(id)
	}

	fc := &FrameContext{inst: fi, core: fi.api.borrowCore(corePtr), ptr: ctxPtr, n: n, act: act}
	fc.scope.set(uintptr(ctxPtr), nil, false)
	defer fc.scope.release(nil)

	finish := func(state ActivationState) {
		if act != nil {
			act.state = state
			act.release()
			activations.Remove(id)
		}
		*frameData = 0
	}
	fail := func(err error) abi.Frame {
		fi.api.table.SetFilterError(fmt.Sprintf("%s: %v", fi.name, err), ctxPtr)
		finish(StateFailed)
		return 0
	}
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("panic in filter", zap.String("filter", fi.name), zap.Int("n", n), zap.Any("panic", r))
			out = fail(fmt.Errorf("panic: %v", r))
		}
	}()

	switch reason {
	case abi.ActivationInitial:
		if act != nil {
			if act.state == StateAwaitingUpstream {
				return 0
			}
			return fail(fmt.Errorf("initial activation in state %s: %w", act.state, ErrProtocolViolation))
		}
		act = &activation{state: StateInit}
		id = activations.Insert(act)
		*frameData = id
		fc.act = act
		if err := fi.act.request(fc, &Requests{fc: fc, limit: fi.limit}); err != nil {
			return fail(err)
		}
		if len(act.requested) > 0 {
			act.state = StateAwaitingUpstream
			return 0
		}
	case abi.ActivationAllFramesReady:
		if act == nil || act.state != StateAwaitingUpstream {
			state := StateInit
			if act != nil {
				state = act.state
			}
			return fail(fmt.Errorf("frames-ready activation in state %s: %w", state, ErrProtocolViolation))
		}
	case abi.ActivationError:
		finish(StateFailed)
		return 0
	default:
		return fail(fmt.Errorf("activation reason %d: %w", reason, ErrProtocolViolation))
	}

	act.state = StateProducing
	f, err := fi.act.produce(fc)
	if err != nil {
		return fail(err)
	}
	if f == nil {
		return fail(errors.New("no frame produced"))
	}
	if err := f.r.belongsTo(fi.core.state, "frame"); err != nil {
		f.Release()
		return fail(fmt.Errorf("output frame: %w", err))
	}
	p, err := f.consume()
	if err != nil {
		return fail(fmt.Errorf("output frame: %w", err))
	}
	finish(StateDone)
	return p
}
