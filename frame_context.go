package vapoursynth

import (
	"fmt"

	"github.com/thesyncim/vapoursynth/internal/abi"
	"github.com/thesyncim/vapoursynth/internal/handle"
)

// ActivationState tracks one output frame request through a filter.
type ActivationState int

const (
	// StateInit is the first activation, before any upstream request.
	StateInit ActivationState = iota
	// StateAwaitingUpstream means requests are out and the filter returned
	// without a frame.
	StateAwaitingUpstream
	// StateProducing means every requested frame is ready and the filter
	// is computing its output.
	StateProducing
	StateDone
	StateFailed
)

func (s ActivationState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingUpstream:
		return "awaiting-upstream"
	case StateProducing:
		return "producing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Upstream names one frame of an upstream node.
type Upstream struct {
	Node *Node
	N    int
}

type upstreamKey struct {
	node abi.Node
	n    int
}

// activation is the per-request bookkeeping. It survives between the
// callbacks of one request; its ID rides in the engine's frameData slot.
type activation struct {
	state     ActivationState
	requested []Upstream
	keys      map[upstreamKey]struct{}
	// held are frames fetched while producing. They are released when the
	// request ends unless one of them became the output.
	held []*Frame
}

func (a *activation) release() {
	for _, f := range a.held {
		f.Release()
	}
	a.held = nil
}

var activations = handle.New[*activation]()

// FrameContext is the engine's per-request context as seen by a filter. It
// is only valid during the callback it was passed to.
type FrameContext struct {
	inst  *filterInstance
	core  *Core
	ptr   abi.FrameContext
	n     int
	act   *activation
	scope ref
}

func (fc *FrameContext) live() error {
	if fc == nil {
		return ErrInvalidHandle
	}
	_, err := fc.scope.get()
	return err
}

// N returns the output frame number being produced.
func (fc *FrameContext) N() int { return fc.n }

// Core returns the core running the filter.
func (fc *FrameContext) Core() *Core { return fc.core }

// State returns the activation state of this request.
func (fc *FrameContext) State() ActivationState {
	if fc.act == nil {
		return StateInit
	}
	return fc.act.state
}

// Requested returns the upstream frames requested for this output frame.
func (fc *FrameContext) Requested() []Upstream {
	if fc.act == nil {
		return nil
	}
	return append([]Upstream(nil), fc.act.requested...)
}

// Frame fetches an upstream frame requested during the initial activation.
// The frame is released when the request completes; Clone it to keep it.
// Returning it as the output frame is allowed.
func (fc *FrameContext) Frame(node *Node, n int) (*Frame, error) {
	if err := fc.live(); err != nil {
		return nil, err
	}
	if fc.act == nil || fc.act.state != StateProducing {
		return nil, fmt.Errorf("fetch frame %d in state %s: %w", n, fc.State(), ErrProtocolViolation)
	}
	p, err := node.handle()
	if err != nil {
		return nil, err
	}
	if err := node.r.belongsTo(fc.inst.core.state, "node"); err != nil {
		return nil, fmt.Errorf("fetch frame %d: %w", n, err)
	}
	if _, ok := fc.act.keys[upstreamKey{p, n}]; !ok {
		return nil, fmt.Errorf("fetch frame %d: %w", n, ErrFrameNotRequested)
	}
	f := fc.inst.api.table.GetFrameFilter(n, p, fc.ptr)
	if f == 0 {
		return nil, &GetFrameError{N: n, Message: "upstream frame unavailable"}
	}
	fr := fc.inst.api.newFrame(f, fc.inst.core.state)
	fc.act.held = append(fc.act.held, fr)
	return fr, nil
}

// ReleaseEarly tells the engine the filter no longer needs a requested
// frame, letting it drop the frame before the request completes.
func (fc *FrameContext) ReleaseEarly(node *Node, n int) error {
	if err := fc.live(); err != nil {
		return err
	}
	p, err := node.handle()
	if err != nil {
		return err
	}
	fc.inst.api.table.ReleaseFrameEarly(p, n, fc.ptr)
	return nil
}

// Requests collects the upstream frames a filter needs for one output frame.
type Requests struct {
	fc    *FrameContext
	limit int
}

// Add requests frame n of node. Requesting the same frame twice is a no-op.
func (r *Requests) Add(node *Node, n int) error {
	fc := r.fc
	if err := fc.live(); err != nil {
		return err
	}
	if fc.act == nil || fc.act.state != StateInit {
		return fmt.Errorf("request frame %d in state %s: %w", n, fc.State(), ErrProtocolViolation)
	}
	p, err := node.handle()
	if err != nil {
		return err
	}
	if err := node.r.belongsTo(fc.inst.core.state, "node"); err != nil {
		return fmt.Errorf("request frame %d: %w", n, err)
	}
	if n < 0 {
		return fmt.Errorf("request frame %d: %w", n, ErrIndexOutOfRange)
	}
	key := upstreamKey{p, n}
	if _, dup := fc.act.keys[key]; dup {
		return nil
	}
	if r.limit > 0 && len(fc.act.requested) >= r.limit {
		return fmt.Errorf("request frame %d: %w", n, ErrTooManyRequests)
	}
	if fc.act.keys == nil {
		fc.act.keys = make(map[upstreamKey]struct{})
	}
	fc.act.keys[key] = struct{}{}
	fc.act.requested = append(fc.act.requested, Upstream{Node: node, N: n})
	fc.inst.api.table.RequestFrameFilter(n, p, fc.ptr)
	return nil
}

// Len returns the number of distinct frames requested so far.
func (r *Requests) Len() int {
	if r.fc.act == nil {
		return 0
	}
	return len(r.fc.act.requested)
}
