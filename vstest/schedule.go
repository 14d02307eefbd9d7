package vstest

import (
	"container/heap"
	"fmt"
	"time"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

type depKey struct {
	node uintptr
	n    int
}

// waiter receives the outcome of a request under the engine lock. On
// success it owns one reference to f.
type waiter func(d *deferred, f *frameObj, err string)

// request is one output frame being produced by a node. Its handle is the
// FrameContext passed to the filter.
type request struct {
	id        uintptr
	node      *nodeObj
	n         int
	frameData [4]uintptr
	waiters   []waiter

	// active is true while the filter callback runs; the context is only
	// usable then.
	active  bool
	deps    []depKey
	results map[depKey]uintptr
	pending int
	depErr  string
	err     string
}

// requestQueue orders waiting requests of a serial node by frame number.
type requestQueue []*request

func (q requestQueue) Len() int           { return len(q) }
func (q requestQueue) Less(i, j int) bool { return q[i].n < q[j].n }
func (q requestQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *requestQueue) Push(x any)        { *q = append(*q, x.(*request)) }

func (q *requestQueue) Pop() any {
	old := *q
	r := old[len(old)-1]
	old[len(old)-1] = nil
	*q = old[:len(old)-1]
	return r
}

func clampFrame(node *nodeObj, n int) int {
	if node.media != abi.MediaTypeVideo {
		return n
	}
	if last := node.vi.NumFrames - 1; n > last {
		n = last
	}
	if n < 0 {
		n = 0
	}
	return n
}

// requestFrame asks node for frame n and arranges for w to receive it.
func (e *Engine) requestFrame(d *deferred, node *nodeObj, n int, w waiter) {
	if f, ok := node.cache[n]; ok {
		f.refs++
		w(d, f, "")
		return
	}
	if r, ok := node.inflight[n]; ok {
		r.waiters = append(r.waiters, w)
		return
	}
	r := &request{id: nextID(), node: node, n: n, waiters: []waiter{w}}
	e.register(r.id, r)
	if node.inflight == nil {
		node.inflight = make(map[int]*request)
	}
	node.inflight[n] = r
	node.refs++
	node.core.inflight.Add(1)

	if node.mode == abi.FilterModeFrameState {
		if node.busy {
			heap.Push(&node.queue, r)
			return
		}
		node.busy = true
	}
	e.schedule(r, abi.ActivationInitial)
}

func (e *Engine) schedule(r *request, reason abi.ActivationReason) {
	r.node.core.pool.submit(func() { e.activate(r, reason) })
}

func (e *Engine) activate(r *request, reason abi.ActivationReason) {
	node := r.node
	if node.builtin != nil {
		e.locked(func(d *deferred) { e.activateBuiltin(d, r, reason) })
		return
	}

	switch node.mode {
	case abi.FilterModeUnordered, abi.FilterModeFrameState:
		node.cbMu.Lock()
		defer node.cbMu.Unlock()
	case abi.FilterModeParallelRequests:
		if reason == abi.ActivationInitial {
			node.cbMu.Lock()
			defer node.cbMu.Unlock()
		}
	}

	e.mu.Lock()
	r.active = true
	cb, core, timing := node.core.cb, abi.Core(node.core.id), node.core.timing
	e.mu.Unlock()

	start := time.Now()
	f := cb.FilterGetFrame(r.n, reason, node.instance, &r.frameData[0], abi.FrameContext(r.id), core)
	elapsed := time.Since(start)

	e.locked(func(d *deferred) {
		r.active = false
		if timing {
			node.procTime += int64(elapsed)
		}
		var out *frameObj
		if f != 0 {
			fo, ok := lookup[*frameObj](e, uintptr(f))
			if !ok {
				e.finish(d, r, nil, fmt.Sprintf("%s: returned an invalid frame for %d", node.name, r.n))
				return
			}
			out = fo
		}
		switch {
		case r.err != "":
			if out != nil {
				e.releaseFrame(d, out)
			}
			e.finish(d, r, nil, r.err)
		case out != nil:
			e.finish(d, r, out, "")
		case reason == abi.ActivationInitial && len(r.deps) > 0:
			e.dispatch(d, r)
		case reason == abi.ActivationError:
			e.finish(d, r, nil, r.depErr)
		default:
			e.finish(d, r, nil, fmt.Sprintf("%s: no frame returned for %d", node.name, r.n))
		}
	})
}

func (e *Engine) activateBuiltin(d *deferred, r *request, reason abi.ActivationReason) {
	switch reason {
	case abi.ActivationInitial:
		for _, k := range r.node.builtin.upstream(r.n) {
			e.addDep(r, k)
		}
		if len(r.deps) > 0 {
			e.dispatch(d, r)
			return
		}
	case abi.ActivationError:
		e.finish(d, r, nil, r.depErr)
		return
	}
	f, err := r.node.builtin.produce(e, d, r)
	e.finish(d, r, f, err)
}

// addDep records an upstream frame for r and holds its node until r ends.
func (e *Engine) addDep(r *request, k depKey) {
	for _, have := range r.deps {
		if have == k {
			return
		}
	}
	e.acquire(k.node)
	r.deps = append(r.deps, k)
}

// dispatch requests every recorded dependency of r.
func (e *Engine) dispatch(d *deferred, r *request) {
	r.pending = len(r.deps)
	r.results = make(map[depKey]uintptr, len(r.deps))
	for _, k := range r.deps {
		k := k
		node := e.objects[k.node].(*nodeObj)
		e.requestFrame(d, node, k.n, func(d *deferred, f *frameObj, err string) {
			e.depDone(d, r, k, f, err)
		})
	}
}

func (e *Engine) depDone(d *deferred, r *request, k depKey, f *frameObj, err string) {
	if f != nil {
		r.results[k] = f.id
	} else if r.depErr == "" {
		r.depErr = err
	}
	r.pending--
	if r.pending > 0 {
		return
	}
	if r.depErr != "" {
		e.schedule(r, abi.ActivationError)
		return
	}
	e.schedule(r, abi.ActivationAllFramesReady)
}

// finish completes r. f, when non-nil, carries the producing reference,
// which finish consumes.
func (e *Engine) finish(d *deferred, r *request, f *frameObj, err string) {
	node := r.node
	delete(node.inflight, r.n)
	delete(e.objects, r.id)
	for _, h := range r.results {
		e.release(d, h)
	}
	r.results = nil
	for _, k := range r.deps {
		e.release(d, k.node)
	}
	r.deps = nil

	if f != nil && node.cacheEnabled() {
		e.cacheFrame(d, node, r.n, f)
	}
	if f == nil && err == "" {
		err = fmt.Sprintf("%s: no frame returned for %d", node.name, r.n)
	}
	for _, w := range r.waiters {
		if f != nil {
			f.refs++
		}
		w(d, f, err)
	}
	r.waiters = nil
	if f != nil {
		e.releaseFrame(d, f)
	}

	if node.mode == abi.FilterModeFrameState && node.builtin == nil {
		if node.queue.Len() > 0 {
			e.schedule(heap.Pop(&node.queue).(*request), abi.ActivationInitial)
		} else {
			node.busy = false
		}
	}
	e.releaseNode(d, node)
	d.add(node.core.inflight.Done)
}

func (e *Engine) cacheFrame(d *deferred, node *nodeObj, n int, f *frameObj) {
	if node.cache == nil {
		node.cache = make(map[int]*frameObj)
	}
	if _, ok := node.cache[n]; ok {
		return
	}
	f.refs++
	node.cache[n] = f
	node.cacheOrder = append(node.cacheOrder, n)
	for len(node.cacheOrder) > node.cacheMax {
		old := node.cacheOrder[0]
		node.cacheOrder = node.cacheOrder[1:]
		e.releaseFrame(d, node.cache[old])
		delete(node.cache, old)
	}
}

// request resolves a FrameContext handle that is inside its callback.
func (e *Engine) activeRequest(ctx abi.FrameContext) (*request, bool) {
	r, ok := lookup[*request](e, uintptr(ctx))
	if !ok || !r.active {
		if ok {
			e.counters.InvalidCalls++
		}
		return nil, false
	}
	return r, true
}
