package vstest

import (
	"fmt"
	"unsafe"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

// table is the function table handed out by Open. Every table of an engine
// shares the engine's objects; the table only fixes the callbacks used for
// cores it creates and the API minor it was opened at.
type table struct {
	e     *Engine
	cb    *abi.Callbacks
	minor int
}

var _ abi.Table = (*table)(nil)

func (t *table) need41(name string) {
	if t.minor < 1 {
		panic(fmt.Sprintf("vstest: %s called on an API 4.0 table", name))
	}
}

func (t *table) GetAPIVersion() int { return abi.MakeVersion(abi.APIMajor, t.e.minor) }

func (e *Engine) newNode(c *coreObj, name string, media abi.MediaType, mode abi.FilterMode, deps []abi.FilterDependency) (*nodeObj, bool) {
	for _, dep := range deps {
		if _, ok := lookup[*nodeObj](e, uintptr(dep.Source)); !ok {
			return nil, false
		}
	}
	n := &nodeObj{
		id:        nextID(),
		core:      c,
		refs:      1,
		name:      name,
		media:     media,
		mode:      mode,
		deps:      append([]abi.FilterDependency(nil), deps...),
		cacheMode: abi.CacheModeAuto,
		cacheMax:  defaultCacheFrames,
	}
	for _, dep := range deps {
		e.acquire(uintptr(dep.Source))
	}
	e.register(n.id, n)
	return n, true
}

func (t *table) createFilter(name string, media abi.MediaType, mode abi.FilterMode, deps []abi.FilterDependency, instance uintptr, core abi.Core, info func(n *nodeObj) bool) abi.Node {
	var h abi.Node
	t.e.locked(func(d *deferred) {
		c, ok := lookup[*coreObj](t.e, uintptr(core))
		if !ok {
			return
		}
		switch mode {
		case abi.FilterModeParallel, abi.FilterModeParallelRequests, abi.FilterModeUnordered, abi.FilterModeFrameState:
		default:
			return
		}
		n, ok := t.e.newNode(c, name, media, mode, deps)
		if !ok {
			return
		}
		n.instance = instance
		if !info(n) {
			// Creation failed: drop the node without a FilterFree, the
			// caller still owns the instance.
			delete(t.e.objects, n.id)
			for _, dep := range n.deps {
				t.e.release(d, uintptr(dep.Source))
			}
			return
		}
		h = abi.Node(n.id)
	})
	return h
}

func (t *table) CreateVideoFilter2(name string, vi *abi.VideoInfo, mode abi.FilterMode, deps []abi.FilterDependency, instance uintptr, core abi.Core) abi.Node {
	return t.createFilter(name, abi.MediaTypeVideo, mode, deps, instance, core, func(n *nodeObj) bool {
		if vi == nil || vi.NumFrames <= 0 || vi.Width < 0 || vi.Height < 0 {
			return false
		}
		n.vi = *vi
		return true
	})
}

func (t *table) CreateAudioFilter2(name string, ai *abi.AudioInfo, mode abi.FilterMode, deps []abi.FilterDependency, instance uintptr, core abi.Core) abi.Node {
	return t.createFilter(name, abi.MediaTypeAudio, mode, deps, instance, core, func(n *nodeObj) bool {
		if ai == nil || ai.NumSamples <= 0 || ai.SampleRate <= 0 {
			return false
		}
		if _, ok := abi.BuildAudioFormat(ai.Format.SampleType, ai.Format.BitsPerSample, ai.Format.ChannelLayout); !ok {
			return false
		}
		n.ai = *ai
		n.ai.NumFrames = int((ai.NumSamples + abi.AudioFrameSamples - 1) / abi.AudioFrameSamples)
		return true
	})
}

// withNode runs fn on a live node under the engine lock.
func (t *table) withNode(node abi.Node, fn func(d *deferred, n *nodeObj)) {
	t.e.locked(func(d *deferred) {
		if n, ok := lookup[*nodeObj](t.e, uintptr(node)); ok {
			fn(d, n)
		}
	})
}

func (t *table) SetLinearFilter(node abi.Node) int {
	var size int
	t.withNode(node, func(_ *deferred, n *nodeObj) {
		n.linear = true
		size = n.cacheMax
	})
	return size
}

func (t *table) SetCacheMode(node abi.Node, mode abi.CacheMode) {
	t.withNode(node, func(d *deferred, n *nodeObj) {
		n.cacheMode = mode
		switch mode {
		case abi.CacheModeForceDisable:
			t.e.dropCache(d, n)
		case abi.CacheModeForceEnable:
			if n.cacheMax <= 0 {
				n.cacheMax = defaultCacheFrames
			}
		}
	})
}

func (t *table) SetCacheOptions(node abi.Node, fixedSize, maxSize, maxHistorySize int) {
	t.withNode(node, func(d *deferred, n *nodeObj) {
		if maxSize < 0 {
			return
		}
		n.cacheMax = maxSize
		for len(n.cacheOrder) > n.cacheMax {
			old := n.cacheOrder[0]
			n.cacheOrder = n.cacheOrder[1:]
			t.e.releaseFrame(d, n.cache[old])
			delete(n.cache, old)
		}
	})
}

func (t *table) FreeNode(node abi.Node) {
	if node == 0 {
		return
	}
	t.withNode(node, func(d *deferred, n *nodeObj) { t.e.releaseNode(d, n) })
}

func (t *table) AddNodeRef(node abi.Node) abi.Node {
	var h abi.Node
	t.withNode(node, func(_ *deferred, n *nodeObj) {
		n.refs++
		h = node
	})
	return h
}

func (t *table) GetNodeType(node abi.Node) abi.MediaType {
	var m abi.MediaType
	t.withNode(node, func(_ *deferred, n *nodeObj) { m = n.media })
	return m
}

func (t *table) GetVideoInfo(node abi.Node) abi.VideoInfo {
	var vi abi.VideoInfo
	t.withNode(node, func(_ *deferred, n *nodeObj) { vi = n.vi })
	return vi
}

func (t *table) GetAudioInfo(node abi.Node) abi.AudioInfo {
	var ai abi.AudioInfo
	t.withNode(node, func(_ *deferred, n *nodeObj) { ai = n.ai })
	return ai
}

// withFrame runs fn on a live frame under the engine lock.
func (t *table) withFrame(f abi.Frame, fn func(d *deferred, fr *frameObj)) {
	t.e.locked(func(d *deferred) {
		if fr, ok := lookup[*frameObj](t.e, uintptr(f)); ok {
			fn(d, fr)
		}
	})
}

func (t *table) NewVideoFrame(format *abi.VideoFormat, width, height int, propSrc abi.Frame, core abi.Core) abi.Frame {
	var h abi.Frame
	t.e.locked(func(d *deferred) {
		c, ok := lookup[*coreObj](t.e, uintptr(core))
		if !ok || format == nil || width <= 0 || height <= 0 {
			return
		}
		vf, ok := abi.BuildVideoFormat(format.ColorFamily, format.SampleType, format.BitsPerSample, format.SubSamplingW, format.SubSamplingH)
		if !ok {
			return
		}
		fr := t.e.newVideoFrame(c, vf, width, height)
		if propSrc != 0 {
			if src, ok := lookup[*frameObj](t.e, uintptr(propSrc)); ok {
				t.e.copyInto(d, src.props, fr.props)
			}
		}
		h = abi.Frame(fr.id)
	})
	return h
}

func (t *table) NewAudioFrame(format *abi.AudioFormat, numSamples int, propSrc abi.Frame, core abi.Core) abi.Frame {
	var h abi.Frame
	t.e.locked(func(d *deferred) {
		c, ok := lookup[*coreObj](t.e, uintptr(core))
		if !ok || format == nil || numSamples <= 0 || numSamples > abi.AudioFrameSamples {
			return
		}
		af, ok := abi.BuildAudioFormat(format.SampleType, format.BitsPerSample, format.ChannelLayout)
		if !ok {
			return
		}
		fr := t.e.newAudioFrame(c, af, numSamples)
		if propSrc != 0 {
			if src, ok := lookup[*frameObj](t.e, uintptr(propSrc)); ok {
				t.e.copyInto(d, src.props, fr.props)
			}
		}
		h = abi.Frame(fr.id)
	})
	return h
}

func (t *table) FreeFrame(f abi.Frame) {
	if f == 0 {
		return
	}
	t.withFrame(f, func(d *deferred, fr *frameObj) { t.e.releaseFrame(d, fr) })
}

func (t *table) AddFrameRef(f abi.Frame) abi.Frame {
	var h abi.Frame
	t.withFrame(f, func(_ *deferred, fr *frameObj) {
		fr.refs++
		h = f
	})
	return h
}

func (t *table) CopyFrame(f abi.Frame, core abi.Core) abi.Frame {
	var h abi.Frame
	t.withFrame(f, func(d *deferred, fr *frameObj) { h = abi.Frame(t.e.copyFrame(d, fr).id) })
	return h
}

func (t *table) GetFramePropertiesRO(f abi.Frame) abi.Map {
	var h abi.Map
	t.withFrame(f, func(_ *deferred, fr *frameObj) { h = abi.Map(fr.props.id) })
	return h
}

func (t *table) GetFramePropertiesRW(f abi.Frame) abi.Map { return t.GetFramePropertiesRO(f) }

func (t *table) GetStride(f abi.Frame, plane int) int {
	var s int
	t.withFrame(f, func(_ *deferred, fr *frameObj) {
		if fr.planeOK(plane) {
			s = fr.strides[plane]
		}
	})
	return s
}

func (t *table) GetReadPtr(f abi.Frame, plane int) unsafe.Pointer {
	var p unsafe.Pointer
	t.withFrame(f, func(_ *deferred, fr *frameObj) {
		if fr.planeOK(plane) && len(fr.planes[plane]) > 0 {
			p = unsafe.Pointer(&fr.planes[plane][0])
		}
	})
	return p
}

func (t *table) GetWritePtr(f abi.Frame, plane int) unsafe.Pointer { return t.GetReadPtr(f, plane) }

func (t *table) GetVideoFrameFormat(f abi.Frame) abi.VideoFormat {
	var vf abi.VideoFormat
	t.withFrame(f, func(_ *deferred, fr *frameObj) { vf = fr.vf })
	return vf
}

func (t *table) GetAudioFrameFormat(f abi.Frame) abi.AudioFormat {
	var af abi.AudioFormat
	t.withFrame(f, func(_ *deferred, fr *frameObj) { af = fr.af })
	return af
}

func (t *table) GetFrameType(f abi.Frame) abi.MediaType {
	var m abi.MediaType
	t.withFrame(f, func(_ *deferred, fr *frameObj) { m = fr.media })
	return m
}

func (t *table) GetFrameWidth(f abi.Frame, plane int) int {
	var w int
	t.withFrame(f, func(_ *deferred, fr *frameObj) { w = fr.planeWidth(plane) })
	return w
}

func (t *table) GetFrameHeight(f abi.Frame, plane int) int {
	var h int
	t.withFrame(f, func(_ *deferred, fr *frameObj) { h = fr.planeHeight(plane) })
	return h
}

func (t *table) GetFrameLength(f abi.Frame) int {
	var n int
	t.withFrame(f, func(_ *deferred, fr *frameObj) { n = fr.length })
	return n
}

func (t *table) GetVideoFormatName(format *abi.VideoFormat) (string, bool) {
	if format == nil {
		return "", false
	}
	f, ok := abi.BuildVideoFormat(format.ColorFamily, format.SampleType, format.BitsPerSample, format.SubSamplingW, format.SubSamplingH)
	if !ok {
		return "", false
	}
	return abi.VideoFormatName(f), true
}

func (t *table) GetAudioFormatName(format *abi.AudioFormat) (string, bool) {
	if format == nil {
		return "", false
	}
	f, ok := abi.BuildAudioFormat(format.SampleType, format.BitsPerSample, format.ChannelLayout)
	if !ok {
		return "", false
	}
	return abi.AudioFormatName(f), true
}

func (t *table) QueryVideoFormat(cf abi.ColorFamily, st abi.SampleType, bits, ssw, ssh int, _ abi.Core) (abi.VideoFormat, bool) {
	return abi.BuildVideoFormat(cf, st, bits, ssw, ssh)
}

func (t *table) QueryAudioFormat(st abi.SampleType, bits int, layout uint64, _ abi.Core) (abi.AudioFormat, bool) {
	return abi.BuildAudioFormat(st, bits, layout)
}

func (t *table) QueryVideoFormatID(cf abi.ColorFamily, st abi.SampleType, bits, ssw, ssh int, _ abi.Core) uint32 {
	f, ok := abi.BuildVideoFormat(cf, st, bits, ssw, ssh)
	if !ok {
		return 0
	}
	return f.ID()
}

func (t *table) GetVideoFormatByID(id uint32, _ abi.Core) (abi.VideoFormat, bool) {
	return abi.BuildVideoFormat(abi.UnpackVideoFormatID(id))
}

type frameResult struct {
	f   *frameObj
	err string
}

func (t *table) GetFrame(n int, node abi.Node) (abi.Frame, string) {
	ch := make(chan frameResult, 1)
	msg := "invalid node"
	t.withNode(node, func(d *deferred, nd *nodeObj) {
		if n < 0 || n >= nd.numFrames() {
			msg = fmt.Sprintf("Invalid frame number %d requested, clip only has %d frames", n, nd.numFrames())
			return
		}
		msg = ""
		t.e.requestFrame(d, nd, n, func(_ *deferred, f *frameObj, err string) { ch <- frameResult{f, err} })
	})
	if msg != "" {
		return 0, msg
	}
	r := <-ch
	if r.f == nil {
		return 0, r.err
	}
	return abi.Frame(r.f.id), ""
}

func (t *table) GetFrameAsync(n int, node abi.Node, userData uintptr) {
	cb := t.cb
	msg := "invalid node"
	t.withNode(node, func(d *deferred, nd *nodeObj) {
		if n < 0 || n >= nd.numFrames() {
			msg = fmt.Sprintf("Invalid frame number %d requested, clip only has %d frames", n, nd.numFrames())
			return
		}
		msg = ""
		t.e.requestFrame(d, nd, n, func(d *deferred, f *frameObj, err string) {
			var h abi.Frame
			if f != nil {
				h = abi.Frame(f.id)
			}
			d.add(func() { cb.FrameDone(userData, h, n, node, err) })
		})
	})
	if msg != "" {
		cb.FrameDone(userData, 0, n, node, msg)
	}
}

// withRequest resolves ctx and node for the filter-side request calls.
func (t *table) withRequest(ctx abi.FrameContext, node abi.Node, fn func(d *deferred, r *request, nd *nodeObj)) {
	t.e.locked(func(d *deferred) {
		r, ok := t.e.activeRequest(ctx)
		if !ok {
			return
		}
		nd, ok := lookup[*nodeObj](t.e, uintptr(node))
		if !ok {
			return
		}
		fn(d, r, nd)
	})
}

func (t *table) GetFrameFilter(n int, node abi.Node, ctx abi.FrameContext) abi.Frame {
	var h abi.Frame
	t.withRequest(ctx, node, func(_ *deferred, r *request, nd *nodeObj) {
		f, ok := r.results[depKey{node: nd.id, n: clampFrame(nd, n)}]
		if ok && t.e.acquire(f) {
			h = abi.Frame(f)
		}
	})
	return h
}

func (t *table) RequestFrameFilter(n int, node abi.Node, ctx abi.FrameContext) {
	t.withRequest(ctx, node, func(_ *deferred, r *request, nd *nodeObj) {
		if nd.media == abi.MediaTypeAudio && (n < 0 || n >= nd.ai.NumFrames) {
			if r.err == "" {
				r.err = fmt.Sprintf("%s: requested audio frame %d is out of bounds", r.node.name, n)
			}
			return
		}
		t.e.addDep(r, depKey{node: nd.id, n: clampFrame(nd, n)})
	})
}

func (t *table) ReleaseFrameEarly(node abi.Node, n int, ctx abi.FrameContext) {
	t.withRequest(ctx, node, func(d *deferred, r *request, nd *nodeObj) {
		k := depKey{node: nd.id, n: clampFrame(nd, n)}
		if f, ok := r.results[k]; ok {
			delete(r.results, k)
			t.e.release(d, f)
		}
	})
}

func (t *table) SetFilterError(msg string, ctx abi.FrameContext) {
	t.e.locked(func(*deferred) {
		if r, ok := t.e.activeRequest(ctx); ok && r.err == "" {
			r.err = msg
		}
	})
}

func (t *table) CreateFunction(userData uintptr, core abi.Core) abi.Function {
	var h abi.Function
	t.e.locked(func(*deferred) {
		c, ok := lookup[*coreObj](t.e, uintptr(core))
		if !ok {
			return
		}
		fn := &funcObj{id: nextID(), core: c, refs: 1, userData: userData}
		t.e.register(fn.id, fn)
		h = abi.Function(fn.id)
	})
	return h
}

func (t *table) withFunc(f abi.Function, fn func(d *deferred, o *funcObj)) {
	t.e.locked(func(d *deferred) {
		if o, ok := lookup[*funcObj](t.e, uintptr(f)); ok {
			fn(d, o)
		}
	})
}

func (t *table) FreeFunction(f abi.Function) {
	if f == 0 {
		return
	}
	t.withFunc(f, func(d *deferred, o *funcObj) { t.e.releaseFunc(d, o) })
}

func (t *table) AddFunctionRef(f abi.Function) abi.Function {
	var h abi.Function
	t.withFunc(f, func(_ *deferred, o *funcObj) {
		o.refs++
		h = f
	})
	return h
}

func (t *table) CallFunction(f abi.Function, in, out abi.Map) {
	var call func()
	t.withFunc(f, func(_ *deferred, o *funcObj) {
		if _, ok := lookup[*mapObj](t.e, uintptr(in)); !ok {
			return
		}
		if _, ok := lookup[*mapObj](t.e, uintptr(out)); !ok {
			return
		}
		cb, data, core := o.core.cb, o.userData, abi.Core(o.core.id)
		// The caller's reference keeps o alive for the duration of the call.
		call = func() { cb.PublicFunction(in, out, data, core) }
	})
	if call != nil {
		call()
	}
}

func (t *table) CreateMap() abi.Map {
	var h abi.Map
	t.e.locked(func(*deferred) { h = abi.Map(t.e.newMap().id) })
	return h
}

// withMap runs fn on a live map under the engine lock.
func (t *table) withMap(m abi.Map, fn func(d *deferred, mo *mapObj)) {
	t.e.locked(func(d *deferred) {
		if mo, ok := lookup[*mapObj](t.e, uintptr(m)); ok {
			fn(d, mo)
		}
	})
}

func (t *table) FreeMap(m abi.Map) {
	if m == 0 {
		return
	}
	t.withMap(m, func(d *deferred, mo *mapObj) {
		if mo.frame {
			t.e.counters.InvalidCalls++
			return
		}
		t.e.clearMap(d, mo)
		delete(t.e.objects, mo.id)
	})
}

func (t *table) ClearMap(m abi.Map) {
	t.withMap(m, func(d *deferred, mo *mapObj) { t.e.clearMap(d, mo) })
}

func (t *table) CopyMap(src, dst abi.Map) {
	t.e.locked(func(d *deferred) {
		s, ok := lookup[*mapObj](t.e, uintptr(src))
		if !ok {
			return
		}
		if dm, ok := lookup[*mapObj](t.e, uintptr(dst)); ok {
			t.e.copyInto(d, s, dm)
		}
	})
}

func (t *table) MapSetError(m abi.Map, msg string) {
	t.withMap(m, func(d *deferred, mo *mapObj) { t.e.setError(d, mo, msg) })
}

func (t *table) MapGetError(m abi.Map) (string, bool) {
	var (
		msg    string
		failed bool
	)
	t.withMap(m, func(_ *deferred, mo *mapObj) { msg, failed = mo.err, mo.failed })
	return msg, failed
}

func (t *table) MapNumKeys(m abi.Map) int {
	var n int
	t.withMap(m, func(_ *deferred, mo *mapObj) { n = len(mo.keys) })
	return n
}

func (t *table) MapGetKey(m abi.Map, index int) string {
	var k string
	t.withMap(m, func(_ *deferred, mo *mapObj) {
		if index >= 0 && index < len(mo.keys) {
			k = mo.keys[index]
		}
	})
	return k
}

func (t *table) MapDeleteKey(m abi.Map, key string) bool {
	var ok bool
	t.withMap(m, func(d *deferred, mo *mapObj) { ok = t.e.deleteKey(d, mo, key) })
	return ok
}

func (t *table) MapNumElements(m abi.Map, key string) int {
	n := -1
	t.withMap(m, func(_ *deferred, mo *mapObj) {
		if p, ok := mo.props[key]; ok {
			n = len(p.elems)
		}
	})
	return n
}

func (t *table) MapGetType(m abi.Map, key string) abi.PropertyType {
	var pt abi.PropertyType
	t.withMap(m, func(_ *deferred, mo *mapObj) {
		if p, ok := mo.props[key]; ok {
			pt = p.typ
		}
	})
	return pt
}

func (t *table) MapSetEmpty(m abi.Map, key string, pt abi.PropertyType) bool {
	var ok bool
	t.withMap(m, func(_ *deferred, mo *mapObj) { ok = t.e.setEmpty(mo, key, pt) })
	return ok
}

// get fetches one element under the engine lock.
func (t *table) get(m abi.Map, key string, index int, types ...abi.PropertyType) (any, abi.GetPropError) {
	var (
		v    any
		perr = abi.PropError
	)
	t.withMap(m, func(_ *deferred, mo *mapObj) { v, perr = mo.element(key, index, types...) })
	return v, perr
}

// getAll fetches every element of key under the engine lock.
func (t *table) getAll(m abi.Map, key string, pt abi.PropertyType) ([]any, abi.GetPropError) {
	var (
		out  []any
		perr = abi.PropError
	)
	t.withMap(m, func(_ *deferred, mo *mapObj) {
		switch p, ok := mo.props[key]; {
		case mo.failed:
			perr = abi.PropError
		case !ok:
			perr = abi.PropUnset
		case p.typ != pt:
			perr = abi.PropType
		default:
			out, perr = append([]any(nil), p.elems...), abi.PropSuccess
		}
	})
	return out, perr
}

// put stores one element under the engine lock.
func (t *table) put(m abi.Map, key string, pt abi.PropertyType, v any, mode abi.AppendMode) bool {
	var ok bool
	t.withMap(m, func(d *deferred, mo *mapObj) { ok = t.e.set(d, mo, key, pt, v, mode) })
	return ok
}

// putAll replaces key with vs. An empty vs leaves an empty key of type pt.
func (t *table) putAll(m abi.Map, key string, pt abi.PropertyType, vs []any) bool {
	var ok bool
	t.withMap(m, func(d *deferred, mo *mapObj) {
		if !validKey(key) {
			return
		}
		t.e.deleteKey(d, mo, key)
		if !t.e.setEmpty(mo, key, pt) {
			return
		}
		mo.props[key].elems = vs
		ok = true
	})
	return ok
}

func (t *table) MapGetInt(m abi.Map, key string, index int) (int64, abi.GetPropError) {
	v, perr := t.get(m, key, index, abi.PropertyInt)
	if perr != abi.PropSuccess {
		return 0, perr
	}
	return v.(int64), perr
}

func (t *table) MapGetIntArray(m abi.Map, key string) ([]int64, abi.GetPropError) {
	vs, perr := t.getAll(m, key, abi.PropertyInt)
	if perr != abi.PropSuccess {
		return nil, perr
	}
	out := make([]int64, len(vs))
	for i, v := range vs {
		out[i] = v.(int64)
	}
	return out, perr
}

func (t *table) MapSetInt(m abi.Map, key string, v int64, mode abi.AppendMode) bool {
	return t.put(m, key, abi.PropertyInt, v, mode)
}

func (t *table) MapSetIntArray(m abi.Map, key string, v []int64) bool {
	vs := make([]any, len(v))
	for i, x := range v {
		vs[i] = x
	}
	return t.putAll(m, key, abi.PropertyInt, vs)
}

func (t *table) MapGetFloat(m abi.Map, key string, index int) (float64, abi.GetPropError) {
	v, perr := t.get(m, key, index, abi.PropertyFloat)
	if perr != abi.PropSuccess {
		return 0, perr
	}
	return v.(float64), perr
}

func (t *table) MapGetFloatArray(m abi.Map, key string) ([]float64, abi.GetPropError) {
	vs, perr := t.getAll(m, key, abi.PropertyFloat)
	if perr != abi.PropSuccess {
		return nil, perr
	}
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = v.(float64)
	}
	return out, perr
}

func (t *table) MapSetFloat(m abi.Map, key string, v float64, mode abi.AppendMode) bool {
	return t.put(m, key, abi.PropertyFloat, v, mode)
}

func (t *table) MapSetFloatArray(m abi.Map, key string, v []float64) bool {
	vs := make([]any, len(v))
	for i, x := range v {
		vs[i] = x
	}
	return t.putAll(m, key, abi.PropertyFloat, vs)
}

func (t *table) MapGetData(m abi.Map, key string, index int) ([]byte, abi.GetPropError) {
	v, perr := t.get(m, key, index, abi.PropertyData)
	if perr != abi.PropSuccess {
		return nil, perr
	}
	return append([]byte{}, v.(dataValue).b...), perr
}

func (t *table) MapGetDataTypeHint(m abi.Map, key string, index int) (abi.DataTypeHint, abi.GetPropError) {
	v, perr := t.get(m, key, index, abi.PropertyData)
	if perr != abi.PropSuccess {
		return abi.DataUnknown, perr
	}
	return v.(dataValue).hint, perr
}

func (t *table) MapSetData(m abi.Map, key string, v []byte, hint abi.DataTypeHint, mode abi.AppendMode) bool {
	return t.put(m, key, abi.PropertyData, dataValue{b: append([]byte{}, v...), hint: hint}, mode)
}

// getRef fetches a handle element and takes a new reference for the caller.
func (t *table) getRef(m abi.Map, key string, index int, types ...abi.PropertyType) (uintptr, abi.GetPropError) {
	var (
		h    uintptr
		perr = abi.PropError
	)
	t.withMap(m, func(_ *deferred, mo *mapObj) {
		var v any
		if v, perr = mo.element(key, index, types...); perr == abi.PropSuccess {
			h = v.(uintptr)
			t.e.acquire(h)
		}
	})
	return h, perr
}

// putRef stores a handle element. consume transfers the caller's
// reference, which is released even when the store fails.
func (t *table) putRef(m abi.Map, key string, h uintptr, mode abi.AppendMode, consume bool) bool {
	var ok bool
	t.e.locked(func(d *deferred) {
		var pt abi.PropertyType
		switch o := t.e.objects[h].(type) {
		case *nodeObj:
			pt = abi.PropertyVideoNode
			if o.media == abi.MediaTypeAudio {
				pt = abi.PropertyAudioNode
			}
		case *frameObj:
			pt = abi.PropertyVideoFrame
			if o.media == abi.MediaTypeAudio {
				pt = abi.PropertyAudioFrame
			}
		case *funcObj:
			pt = abi.PropertyFunction
		default:
			t.e.counters.InvalidCalls++
			return
		}
		if !consume {
			t.e.acquire(h)
		}
		mo, found := lookup[*mapObj](t.e, uintptr(m))
		if found {
			ok = t.e.set(d, mo, key, pt, h, mode)
		}
		if !ok {
			t.e.release(d, h)
		}
	})
	return ok
}

func (t *table) MapGetNode(m abi.Map, key string, index int) (abi.Node, abi.GetPropError) {
	h, perr := t.getRef(m, key, index, abi.PropertyVideoNode, abi.PropertyAudioNode)
	return abi.Node(h), perr
}

func (t *table) MapSetNode(m abi.Map, key string, node abi.Node, mode abi.AppendMode) bool {
	return t.putRef(m, key, uintptr(node), mode, false)
}

func (t *table) MapConsumeNode(m abi.Map, key string, node abi.Node, mode abi.AppendMode) bool {
	return t.putRef(m, key, uintptr(node), mode, true)
}

func (t *table) MapGetFrame(m abi.Map, key string, index int) (abi.Frame, abi.GetPropError) {
	h, perr := t.getRef(m, key, index, abi.PropertyVideoFrame, abi.PropertyAudioFrame)
	return abi.Frame(h), perr
}

func (t *table) MapSetFrame(m abi.Map, key string, f abi.Frame, mode abi.AppendMode) bool {
	return t.putRef(m, key, uintptr(f), mode, false)
}

func (t *table) MapConsumeFrame(m abi.Map, key string, f abi.Frame, mode abi.AppendMode) bool {
	return t.putRef(m, key, uintptr(f), mode, true)
}

func (t *table) MapGetFunction(m abi.Map, key string, index int) (abi.Function, abi.GetPropError) {
	h, perr := t.getRef(m, key, index, abi.PropertyFunction)
	return abi.Function(h), perr
}

func (t *table) MapSetFunction(m abi.Map, key string, f abi.Function, mode abi.AppendMode) bool {
	return t.putRef(m, key, uintptr(f), mode, false)
}

func (t *table) MapConsumeFunction(m abi.Map, key string, f abi.Function, mode abi.AppendMode) bool {
	return t.putRef(m, key, uintptr(f), mode, true)
}

func (t *table) RegisterFunction(name, args, returnType string, userData uintptr, plugin abi.Plugin) bool {
	var ok bool
	t.e.locked(func(*deferred) {
		p, found := lookup[*pluginObj](t.e, uintptr(plugin))
		if !found || !p.writable {
			return
		}
		ok = t.e.addFunc(p, name, args, returnType, userData, nil)
	})
	return ok
}

func (t *table) withCore(core abi.Core, fn func(d *deferred, c *coreObj)) {
	t.e.locked(func(d *deferred) {
		if c, ok := lookup[*coreObj](t.e, uintptr(core)); ok {
			fn(d, c)
		}
	})
}

func (t *table) findPlugin(core abi.Core, match func(p *pluginObj) bool) abi.Plugin {
	var h abi.Plugin
	t.withCore(core, func(_ *deferred, c *coreObj) {
		for _, p := range c.plugins {
			if match(p) {
				h = abi.Plugin(p.id)
				return
			}
		}
	})
	return h
}

func (t *table) GetPluginByID(id string, core abi.Core) abi.Plugin {
	return t.findPlugin(core, func(p *pluginObj) bool { return p.pluginID == id })
}

func (t *table) GetPluginByNamespace(ns string, core abi.Core) abi.Plugin {
	return t.findPlugin(core, func(p *pluginObj) bool { return p.ns == ns })
}

func (t *table) GetNextPlugin(prev abi.Plugin, core abi.Core) abi.Plugin {
	seen := prev == 0
	return t.findPlugin(core, func(p *pluginObj) bool {
		if seen {
			return true
		}
		seen = abi.Plugin(p.id) == prev
		return false
	})
}

func (t *table) withPlugin(plugin abi.Plugin, fn func(p *pluginObj)) {
	t.e.locked(func(*deferred) {
		if p, ok := lookup[*pluginObj](t.e, uintptr(plugin)); ok {
			fn(p)
		}
	})
}

func (t *table) GetPluginName(plugin abi.Plugin) (s string) {
	t.withPlugin(plugin, func(p *pluginObj) { s = p.name })
	return s
}

func (t *table) GetPluginID(plugin abi.Plugin) (s string) {
	t.withPlugin(plugin, func(p *pluginObj) { s = p.pluginID })
	return s
}

func (t *table) GetPluginNamespace(plugin abi.Plugin) (s string) {
	t.withPlugin(plugin, func(p *pluginObj) { s = p.ns })
	return s
}

func (t *table) GetPluginPath(plugin abi.Plugin) (s string) {
	t.withPlugin(plugin, func(p *pluginObj) { s = p.path })
	return s
}

func (t *table) GetPluginVersion(plugin abi.Plugin) (v int) {
	t.withPlugin(plugin, func(p *pluginObj) { v = p.version })
	return v
}

func (t *table) GetNextPluginFunction(prev abi.PluginFunction, plugin abi.Plugin) abi.PluginFunction {
	var h abi.PluginFunction
	t.withPlugin(plugin, func(p *pluginObj) {
		seen := prev == 0
		for _, f := range p.funcs {
			if seen {
				h = abi.PluginFunction(f.id)
				return
			}
			seen = abi.PluginFunction(f.id) == prev
		}
	})
	return h
}

func (t *table) GetPluginFunctionByName(name string, plugin abi.Plugin) abi.PluginFunction {
	var h abi.PluginFunction
	t.withPlugin(plugin, func(p *pluginObj) {
		if f := p.function(name); f != nil {
			h = abi.PluginFunction(f.id)
		}
	})
	return h
}

func (t *table) withPluginFunc(f abi.PluginFunction, fn func(pf *pluginFunc)) {
	t.e.locked(func(*deferred) {
		if pf, ok := lookup[*pluginFunc](t.e, uintptr(f)); ok {
			fn(pf)
		}
	})
}

func (t *table) GetPluginFunctionName(f abi.PluginFunction) (s string) {
	t.withPluginFunc(f, func(pf *pluginFunc) { s = pf.name })
	return s
}

func (t *table) GetPluginFunctionArguments(f abi.PluginFunction) (s string) {
	t.withPluginFunc(f, func(pf *pluginFunc) { s = pf.args })
	return s
}

func (t *table) GetPluginFunctionReturnType(f abi.PluginFunction) (s string) {
	t.withPluginFunc(f, func(pf *pluginFunc) { s = pf.returns })
	return s
}

func (t *table) Invoke(plugin abi.Plugin, name string, args abi.Map) abi.Map {
	var (
		out  *mapObj
		call func()
	)
	t.e.locked(func(d *deferred) {
		out = t.e.newMap()
		p, ok := lookup[*pluginObj](t.e, uintptr(plugin))
		if !ok {
			t.e.setError(d, out, "Invoke: invalid plugin")
			return
		}
		in, ok := lookup[*mapObj](t.e, uintptr(args))
		if !ok {
			t.e.setError(d, out, "Invoke: invalid argument map")
			return
		}
		fn := p.function(name)
		if fn == nil {
			t.e.setError(d, out, fmt.Sprintf("Function '%s' not found in %s", name, p.ns))
			return
		}
		if msg := checkArgs(fn, in); msg != "" {
			t.e.setError(d, out, msg)
			return
		}
		if fn.builtin != nil {
			fn.builtin(d, p.core, in, out)
			return
		}
		cb, data, core, outH := p.core.cb, fn.userData, abi.Core(p.core.id), abi.Map(out.id)
		call = func() { cb.PublicFunction(args, outH, data, core) }
	})
	if call != nil {
		call()
	}
	return abi.Map(out.id)
}

func (t *table) CreateCore(flags int) abi.Core {
	var h abi.Core
	t.e.locked(func(*deferred) { h = abi.Core(t.e.newCore(t.cb, flags).id) })
	return h
}

func (t *table) FreeCore(core abi.Core) {
	t.e.mu.Lock()
	c, ok := lookup[*coreObj](t.e, uintptr(core))
	t.e.mu.Unlock()
	if !ok {
		return
	}
	t.e.freeCore(c)
}

// freeCore waits for in-flight requests, then destroys c and everything
// that belongs to it.
func (e *Engine) freeCore(c *coreObj) {
	c.inflight.Wait()
	e.locked(func(d *deferred) { e.destroyCore(d, c) })
	c.pool.close()
}

func (t *table) SetMaxCacheSize(bytes int64, core abi.Core) int64 {
	var v int64
	t.withCore(core, func(_ *deferred, c *coreObj) {
		if bytes > 0 {
			c.maxCache = bytes
		}
		v = c.maxCache
	})
	return v
}

func (t *table) SetThreadCount(threads int, core abi.Core) int {
	var p *pool
	t.withCore(core, func(_ *deferred, c *coreObj) { p = c.pool })
	if p == nil {
		return 0
	}
	return p.setThreads(threads)
}

func (t *table) GetCoreInfo(core abi.Core) abi.CoreInfo {
	var ci abi.CoreInfo
	t.withCore(core, func(_ *deferred, c *coreObj) {
		ci = abi.CoreInfo{
			VersionString:       versionString,
			Core:                coreVersion,
			API:                 abi.MakeVersion(abi.APIMajor, t.e.minor),
			NumThreads:          c.pool.threads(),
			MaxFramebufferSize:  c.maxCache,
			UsedFramebufferSize: t.e.usedFramebuffer(c),
		}
	})
	return ci
}

func zapLevel(mt abi.MessageType) zapcore.Level {
	switch mt {
	case abi.MessageDebug:
		return zapcore.DebugLevel
	case abi.MessageInformation:
		return zapcore.InfoLevel
	case abi.MessageWarning:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// LogMessage delivers msg to the handlers of core, or of every core when
// core is zero.
func (t *table) LogMessage(mt abi.MessageType, msg string, core abi.Core) {
	t.e.log.Log(zapLevel(mt), msg, zap.Uintptr("core", uintptr(core)))
	t.e.locked(func(d *deferred) {
		for _, o := range t.e.objects {
			c, ok := o.(*coreObj)
			if !ok || (core != 0 && abi.Core(c.id) != core) {
				continue
			}
			for _, l := range c.logs {
				cb, data := c.cb, l.userData
				d.add(func() { cb.LogHandler(mt, msg, data) })
			}
		}
	})
}

func (t *table) AddLogHandler(userData uintptr, core abi.Core) abi.LogHandle {
	var h abi.LogHandle
	t.withCore(core, func(_ *deferred, c *coreObj) {
		l := &logObj{id: nextID(), core: c, userData: userData}
		t.e.register(l.id, l)
		c.logs = append(c.logs, l)
		h = abi.LogHandle(l.id)
	})
	return h
}

func (t *table) RemoveLogHandler(h abi.LogHandle, core abi.Core) bool {
	var ok bool
	t.withCore(core, func(d *deferred, c *coreObj) {
		for i, l := range c.logs {
			if abi.LogHandle(l.id) != h {
				continue
			}
			c.logs = append(c.logs[:i], c.logs[i+1:]...)
			delete(t.e.objects, l.id)
			cb, data := c.cb, l.userData
			d.add(func() { cb.LogHandlerFree(data) })
			ok = true
			return
		}
	})
	return ok
}

func (t *table) ClearNodeCache(node abi.Node) {
	t.need41("clearNodeCache")
	t.withNode(node, func(d *deferred, n *nodeObj) { t.e.dropCache(d, n) })
}

func (t *table) ClearCoreCaches(core abi.Core) {
	t.need41("clearCoreCaches")
	t.withCore(core, func(d *deferred, c *coreObj) {
		for _, o := range t.e.objects {
			if n, ok := o.(*nodeObj); ok && n.core == c {
				t.e.dropCache(d, n)
			}
		}
	})
}

func (t *table) GetNodeName(node abi.Node) (s string) {
	t.need41("getNodeName")
	t.withNode(node, func(_ *deferred, n *nodeObj) { s = n.name })
	return s
}

func (t *table) GetNodeFilterMode(node abi.Node) (m abi.FilterMode) {
	t.need41("getNodeFilterMode")
	t.withNode(node, func(_ *deferred, n *nodeObj) { m = n.mode })
	return m
}

func (t *table) GetNumNodeDependencies(node abi.Node) (count int) {
	t.need41("getNumNodeDependencies")
	t.withNode(node, func(_ *deferred, n *nodeObj) { count = len(n.deps) })
	return count
}

func (t *table) GetNodeDependency(node abi.Node, index int) (dep abi.FilterDependency) {
	t.need41("getNodeDependencies")
	t.withNode(node, func(_ *deferred, n *nodeObj) {
		if index >= 0 && index < len(n.deps) {
			dep = n.deps[index]
		}
	})
	return dep
}

func (t *table) GetCoreNodeTiming(core abi.Core) (on bool) {
	t.need41("getCoreNodeTiming")
	t.withCore(core, func(_ *deferred, c *coreObj) { on = c.timing })
	return on
}

func (t *table) SetCoreNodeTiming(core abi.Core, enable bool) {
	t.need41("setCoreNodeTiming")
	t.withCore(core, func(_ *deferred, c *coreObj) { c.timing = enable })
}

func (t *table) GetNodeProcessingTime(node abi.Node, reset bool) (ns int64) {
	t.need41("getNodeProcessingTime")
	t.withNode(node, func(_ *deferred, n *nodeObj) {
		ns = n.procTime
		if reset {
			n.procTime = 0
		}
	})
	return ns
}

func (t *table) GetFreedNodeProcessingTime(core abi.Core, reset bool) (ns int64) {
	t.need41("getFreedNodeProcessingTime")
	t.withCore(core, func(_ *deferred, c *coreObj) {
		ns = c.freedTime
		if reset {
			c.freedTime = 0
		}
	})
	return ns
}
