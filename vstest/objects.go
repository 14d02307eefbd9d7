package vstest

import (
	"sync"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

type coreObj struct {
	id        uintptr
	cb        *abi.Callbacks
	flags     int
	pool      *pool
	maxCache  int64
	plugins   []*pluginObj
	logs      []*logObj
	timing    bool
	freedTime int64
	inflight  sync.WaitGroup
	script    *scriptObj
}

// producer generates the frames of a node implemented inside the engine.
// Both methods run under the engine lock.
type producer interface {
	upstream(n int) []depKey
	produce(e *Engine, d *deferred, r *request) (*frameObj, string)
	release(e *Engine, d *deferred)
}

type nodeObj struct {
	id       uintptr
	core     *coreObj
	refs     int
	name     string
	media    abi.MediaType
	vi       abi.VideoInfo
	ai       abi.AudioInfo
	mode     abi.FilterMode
	deps     []abi.FilterDependency
	instance uintptr
	builtin  producer

	cacheMode  abi.CacheMode
	cacheMax   int
	cache      map[int]*frameObj
	cacheOrder []int
	linear     bool

	inflight map[int]*request
	// cbMu serializes filter callbacks for the modes that need it.
	cbMu     sync.Mutex
	busy     bool
	queue    requestQueue
	procTime int64
}

func (n *nodeObj) numFrames() int {
	if n.media == abi.MediaTypeAudio {
		return n.ai.NumFrames
	}
	return n.vi.NumFrames
}

func (n *nodeObj) cacheEnabled() bool {
	switch n.cacheMode {
	case abi.CacheModeForceDisable:
		return false
	default:
		return n.cacheMax > 0
	}
}

type frameObj struct {
	id      uintptr
	core    *coreObj
	refs    int
	media   abi.MediaType
	vf      abi.VideoFormat
	af      abi.AudioFormat
	width   int
	height  int
	length  int
	planes  [][]byte
	strides []int
	props   *mapObj
}

func (f *frameObj) size() int64 {
	var s int64
	for _, p := range f.planes {
		s += int64(len(p))
	}
	return s
}

type funcObj struct {
	id       uintptr
	core     *coreObj
	refs     int
	userData uintptr
}

type pluginObj struct {
	id       uintptr
	core     *coreObj
	pluginID string
	ns       string
	name     string
	path     string
	version  int
	writable bool
	funcs    []*pluginFunc
}

func (p *pluginObj) function(name string) *pluginFunc {
	for _, f := range p.funcs {
		if f.name == name {
			return f
		}
	}
	return nil
}

// builtinFunc implements a plugin function inside the engine. It runs
// under the engine lock and reports failure with out.setError.
type builtinFunc func(d *deferred, c *coreObj, in, out *mapObj)

type pluginFunc struct {
	id       uintptr
	plugin   *pluginObj
	name     string
	args     string
	returns  string
	sig      []argSpec
	extra    bool
	userData uintptr
	builtin  builtinFunc
}

type logObj struct {
	id       uintptr
	core     *coreObj
	userData uintptr
}

// acquire adds a reference to a node, frame or function handle.
func (e *Engine) acquire(h uintptr) bool {
	switch o := e.objects[h].(type) {
	case *nodeObj:
		o.refs++
	case *frameObj:
		o.refs++
	case *funcObj:
		o.refs++
	default:
		return false
	}
	return true
}

// release drops a reference taken with acquire. Unknown handles are
// ignored: they belonged to a core that is already gone.
func (e *Engine) release(d *deferred, h uintptr) {
	switch o := e.objects[h].(type) {
	case *nodeObj:
		e.releaseNode(d, o)
	case *frameObj:
		e.releaseFrame(d, o)
	case *funcObj:
		e.releaseFunc(d, o)
	}
}

func (e *Engine) releaseNode(d *deferred, n *nodeObj) {
	n.refs--
	if n.refs > 0 {
		return
	}
	e.destroyNode(d, n)
	for _, dep := range n.deps {
		e.release(d, uintptr(dep.Source))
	}
	n.deps = nil
}

// destroyNode frees a node without touching its dependencies.
func (e *Engine) destroyNode(d *deferred, n *nodeObj) {
	delete(e.objects, n.id)
	e.dropCache(d, n)
	n.core.freedTime += n.procTime
	if n.builtin != nil {
		n.builtin.release(e, d)
		return
	}
	e.counters.FilterFrees++
	cb, inst, core := n.core.cb, n.instance, abi.Core(n.core.id)
	d.add(func() { cb.FilterFree(inst, core) })
}

func (e *Engine) dropCache(d *deferred, n *nodeObj) {
	for _, i := range n.cacheOrder {
		e.releaseFrame(d, n.cache[i])
	}
	n.cache = nil
	n.cacheOrder = nil
}

func (e *Engine) releaseFrame(d *deferred, f *frameObj) {
	f.refs--
	if f.refs > 0 {
		return
	}
	delete(e.objects, f.id)
	if f.props != nil {
		e.clearMap(d, f.props)
		delete(e.objects, f.props.id)
	}
	f.planes = nil
}

func (e *Engine) releaseFunc(d *deferred, fn *funcObj) {
	fn.refs--
	if fn.refs > 0 {
		return
	}
	e.destroyFunc(d, fn)
}

func (e *Engine) destroyFunc(d *deferred, fn *funcObj) {
	delete(e.objects, fn.id)
	e.counters.FunctionFrees++
	cb, data := fn.core.cb, fn.userData
	d.add(func() { cb.FreeFunctionData(data) })
}

// destroyCore frees every object that belongs to c, whatever its
// reference count. In-flight requests must have drained.
func (e *Engine) destroyCore(d *deferred, c *coreObj) {
	for h, o := range e.objects {
		switch o := o.(type) {
		case *nodeObj:
			if o.core == c {
				o.deps = nil
				e.destroyNode(d, o)
			}
		case *frameObj:
			if o.core == c {
				o.refs = 1
				e.releaseFrame(d, o)
			}
		case *funcObj:
			if o.core == c {
				e.destroyFunc(d, o)
			}
		case *logObj:
			if o.core == c {
				delete(e.objects, h)
				cb, data := c.cb, o.userData
				d.add(func() { cb.LogHandlerFree(data) })
			}
		case *pluginObj:
			if o.core == c {
				delete(e.objects, h)
			}
		case *pluginFunc:
			if o.plugin.core == c {
				delete(e.objects, h)
			}
		}
	}
	c.logs = nil
	c.plugins = nil
	delete(e.objects, c.id)
}
