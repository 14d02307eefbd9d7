package vstest

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

const (
	coreVersion   = 70
	versionString = "VapourSynth Go test engine"

	// defaultCacheFrames is the per-node cache size.
	defaultCacheFrames = 10
	defaultMaxCache    = int64(1 << 30)
)

// Channel positions accepted by BlankAudio.
const (
	ChannelFrontLeft  = 0
	ChannelFrontRight = 1
)

func (e *Engine) newCore(cb *abi.Callbacks, flags int) *coreObj {
	c := &coreObj{
		id:       nextID(),
		cb:       cb,
		flags:    flags,
		pool:     newPool(0),
		maxCache: defaultMaxCache,
	}
	e.register(c.id, c)
	e.addStd(c)
	for _, spec := range e.writable {
		e.addPlugin(c, spec, "").writable = true
	}
	return c
}

func (e *Engine) addPlugin(c *coreObj, spec PluginSpec, path string) *pluginObj {
	p := &pluginObj{
		id:       nextID(),
		core:     c,
		pluginID: spec.ID,
		ns:       spec.Namespace,
		name:     spec.Name,
		path:     path,
		version:  spec.Version,
	}
	e.register(p.id, p)
	c.plugins = append(c.plugins, p)
	return p
}

// addFunc registers a function on p. It fails on bad names, duplicate
// names and malformed signatures.
func (e *Engine) addFunc(p *pluginObj, name, args, returns string, userData uintptr, impl builtinFunc) bool {
	if !validKey(name) || p.function(name) != nil {
		return false
	}
	sig, extra, err := parseArgs(args)
	if err != nil {
		return false
	}
	if _, _, err := parseArgs(returns); err != nil {
		return false
	}
	fn := &pluginFunc{
		id:       nextID(),
		plugin:   p,
		name:     name,
		args:     args,
		returns:  returns,
		sig:      sig,
		extra:    extra,
		userData: userData,
		builtin:  impl,
	}
	e.register(fn.id, fn)
	p.funcs = append(p.funcs, fn)
	return true
}

func (e *Engine) addStd(c *coreObj) {
	std := e.addPlugin(c, PluginSpec{
		ID:        "com.vapoursynth.std",
		Namespace: "std",
		Name:      "VapourSynth Core Functions",
		Version:   abi.MakeVersion(coreVersion, 0),
	}, "")
	e.addFunc(std, "BlankClip", "clip:vnode:opt;width:int:opt;height:int:opt;format:int:opt;length:int:opt;fpsnum:int:opt;fpsden:int:opt;color:float[]:opt;keep:int:opt;", "clip:vnode;", 0, e.blankClip)
	e.addFunc(std, "BlankAudio", "channels:int[]:opt;bits:int:opt;sampletype:int:opt;samplerate:int:opt;length:int:opt;keep:int:opt;", "clip:anode;", 0, e.blankAudio)
	e.addFunc(std, "SetFrameProps", "clip:vnode;any", "clip:vnode;", 0, e.setFrameProps)
	e.addFunc(std, "LoadPlugin", "path:data;altsearchpath:int:opt;forcens:data:opt;forceid:data:opt;", "", 0, e.loadPlugin)
}

// newBuiltinNode creates a node served by p and stores it under "clip".
func (e *Engine) newBuiltinNode(d *deferred, c *coreObj, out *mapObj, name string, media abi.MediaType, deps []abi.FilterDependency, p producer) *nodeObj {
	n, _ := e.newNode(c, name, media, abi.FilterModeParallel, deps)
	n.builtin = p
	t := abi.PropertyVideoNode
	if media == abi.MediaTypeAudio {
		t = abi.PropertyAudioNode
	}
	e.set(d, out, "clip", t, n.id, abi.MapReplace)
	return n
}

type blankClip struct {
	core  *coreObj
	vi    abi.VideoInfo
	color []float64
	keep  bool
	frame *frameObj
}

func (e *Engine) blankClip(d *deferred, c *coreObj, in, out *mapObj) {
	vi := abi.VideoInfo{
		Width:     640,
		Height:    480,
		FPSNum:    24,
		FPSDen:    1,
		NumFrames: 240,
	}
	vi.Format, _ = abi.BuildVideoFormat(abi.ColorFamilyRGB, abi.SampleTypeInteger, 8, 0, 0)
	if h := in.handleArg("clip", abi.PropertyVideoNode); h != 0 {
		if src, ok := e.objects[h].(*nodeObj); ok {
			vi = src.vi
		}
	}
	vi.Width = int(in.intArg("width", int64(vi.Width)))
	vi.Height = int(in.intArg("height", int64(vi.Height)))
	vi.NumFrames = int(in.intArg("length", int64(vi.NumFrames)))
	vi.FPSNum = in.intArg("fpsnum", vi.FPSNum)
	vi.FPSDen = in.intArg("fpsden", vi.FPSDen)
	if id := in.intArg("format", 0); id != 0 {
		cf, st, bits, ssw, ssh := abi.UnpackVideoFormatID(uint32(id))
		f, ok := abi.BuildVideoFormat(cf, st, bits, ssw, ssh)
		if !ok {
			e.setError(d, out, "BlankClip: invalid format")
			return
		}
		vi.Format = f
	}

	switch {
	case vi.Width <= 0 || vi.Height <= 0:
		e.setError(d, out, "BlankClip: invalid width or height")
		return
	case vi.Width%(1<<vi.Format.SubSamplingW) != 0 || vi.Height%(1<<vi.Format.SubSamplingH) != 0:
		e.setError(d, out, "BlankClip: dimensions not divisible by subsampling")
		return
	case vi.NumFrames <= 0:
		e.setError(d, out, "BlankClip: invalid length")
		return
	case vi.FPSNum < 0 || vi.FPSDen < 1:
		e.setError(d, out, "BlankClip: invalid framerate")
		return
	}

	color := in.floatArgs("color")
	if len(color) == 0 {
		color = make([]float64, vi.Format.NumPlanes)
	}
	if len(color) != vi.Format.NumPlanes {
		e.setError(d, out, "BlankClip: invalid number of color values specified")
		return
	}
	if vi.Format.SampleType == abi.SampleTypeInteger {
		limit := float64(int64(1)<<vi.Format.BitsPerSample - 1)
		for _, v := range color {
			if v < 0 || v > limit {
				e.setError(d, out, "BlankClip: color value out of range")
				return
			}
		}
	}

	p := &blankClip{core: c, vi: vi, color: color, keep: in.intArg("keep", 0) != 0}
	n := e.newBuiltinNode(d, c, out, "BlankClip", abi.MediaTypeVideo, nil, p)
	n.vi = vi
}

func (b *blankClip) upstream(int) []depKey { return nil }

func (b *blankClip) produce(e *Engine, d *deferred, _ *request) (*frameObj, string) {
	if b.frame != nil {
		b.frame.refs++
		return b.frame, ""
	}
	f := e.newVideoFrame(b.core, b.vi.Format, b.vi.Width, b.vi.Height)
	for p, plane := range f.planes {
		fillPlane(plane, b.vi.Format, b.color[p])
	}
	if b.vi.FPSNum > 0 {
		num, den := reduce(b.vi.FPSDen, b.vi.FPSNum)
		e.set(d, f.props, "_DurationNum", abi.PropertyInt, num, abi.MapReplace)
		e.set(d, f.props, "_DurationDen", abi.PropertyInt, den, abi.MapReplace)
	}
	if b.keep {
		f.refs++
		b.frame = f
	}
	return f, ""
}

func (b *blankClip) release(e *Engine, d *deferred) {
	if b.frame != nil {
		e.releaseFrame(d, b.frame)
		b.frame = nil
	}
}

func fillPlane(plane []byte, f abi.VideoFormat, v float64) {
	switch {
	case f.BytesPerSample == 1:
		for i := range plane {
			plane[i] = byte(v)
		}
	case f.BytesPerSample == 2 && f.SampleType == abi.SampleTypeInteger:
		for i := 0; i+1 < len(plane); i += 2 {
			binary.LittleEndian.PutUint16(plane[i:], uint16(v))
		}
	case f.SampleType == abi.SampleTypeFloat && f.BytesPerSample == 4:
		for i := 0; i+3 < len(plane); i += 4 {
			binary.LittleEndian.PutUint32(plane[i:], math.Float32bits(float32(v)))
		}
	default:
		for i := 0; i+3 < len(plane); i += 4 {
			binary.LittleEndian.PutUint32(plane[i:], uint32(v))
		}
	}
}

func reduce(a, b int64) (int64, int64) {
	x, y := a, b
	for y != 0 {
		x, y = y, x%y
	}
	if x == 0 {
		return a, b
	}
	return a / x, b / x
}

type blankAudio struct {
	core  *coreObj
	ai    abi.AudioInfo
	keep  bool
	frame *frameObj
}

func (e *Engine) blankAudio(d *deferred, c *coreObj, in, out *mapObj) {
	channels := in.intArgs("channels")
	if len(channels) == 0 {
		channels = []int64{ChannelFrontLeft, ChannelFrontRight}
	}
	var layout uint64
	for _, ch := range channels {
		if ch < 0 || ch > 63 || layout&(1<<uint(ch)) != 0 {
			e.setError(d, out, "BlankAudio: invalid channel specified")
			return
		}
		layout |= 1 << uint(ch)
	}
	f, ok := abi.BuildAudioFormat(abi.SampleType(in.intArg("sampletype", 0)), int(in.intArg("bits", 16)), layout)
	if !ok {
		e.setError(d, out, "BlankAudio: invalid format")
		return
	}
	rate := in.intArg("samplerate", 44100)
	if rate <= 0 {
		e.setError(d, out, "BlankAudio: invalid sample rate")
		return
	}
	length := in.intArg("length", 10*rate)
	if length <= 0 {
		e.setError(d, out, "BlankAudio: invalid length")
		return
	}
	ai := abi.AudioInfo{
		Format:     f,
		SampleRate: int(rate),
		NumSamples: length,
		NumFrames:  int((length + abi.AudioFrameSamples - 1) / abi.AudioFrameSamples),
	}
	p := &blankAudio{core: c, ai: ai, keep: in.intArg("keep", 0) != 0}
	n := e.newBuiltinNode(d, c, out, "BlankAudio", abi.MediaTypeAudio, nil, p)
	n.ai = ai
}

func (b *blankAudio) upstream(int) []depKey { return nil }

func (b *blankAudio) produce(e *Engine, _ *deferred, r *request) (*frameObj, string) {
	samples := b.ai.NumSamples - int64(r.n)*abi.AudioFrameSamples
	if samples > abi.AudioFrameSamples {
		samples = abi.AudioFrameSamples
	}
	if samples <= 0 {
		return nil, fmt.Sprintf("BlankAudio: frame %d is past the end", r.n)
	}
	if b.frame != nil && int64(b.frame.length) == samples {
		b.frame.refs++
		return b.frame, ""
	}
	f := e.newAudioFrame(b.core, b.ai.Format, int(samples))
	if b.keep && b.frame == nil {
		f.refs++
		b.frame = f
	}
	return f, ""
}

func (b *blankAudio) release(e *Engine, d *deferred) {
	if b.frame != nil {
		e.releaseFrame(d, b.frame)
		b.frame = nil
	}
}

type setFrameProps struct {
	clip  uintptr
	props *mapObj
}

func (e *Engine) setFrameProps(d *deferred, c *coreObj, in, out *mapObj) {
	clip := in.handleArg("clip", abi.PropertyVideoNode)
	src, ok := e.objects[clip].(*nodeObj)
	if !ok {
		e.setError(d, out, "SetFrameProps: invalid clip")
		return
	}
	props := newMap()
	e.copyInto(d, in, props)
	e.deleteKey(d, props, "clip")
	deps := []abi.FilterDependency{{Source: abi.Node(clip), RequestPattern: abi.RequestPatternStrictSpatial}}
	n := e.newBuiltinNode(d, c, out, "SetFrameProps", abi.MediaTypeVideo, deps, &setFrameProps{clip: clip, props: props})
	n.vi = src.vi
}

func (s *setFrameProps) upstream(n int) []depKey { return []depKey{{node: s.clip, n: n}} }

func (s *setFrameProps) produce(e *Engine, d *deferred, r *request) (*frameObj, string) {
	src, ok := e.objects[r.results[depKey{node: s.clip, n: r.n}]].(*frameObj)
	if !ok {
		return nil, "SetFrameProps: upstream frame missing"
	}
	f := e.copyFrame(d, src)
	e.copyInto(d, s.props, f.props)
	return f, ""
}

func (s *setFrameProps) release(e *Engine, d *deferred) { e.clearMap(d, s.props) }

func (e *Engine) loadPlugin(d *deferred, c *coreObj, in, out *mapObj) {
	path, _ := in.stringArg("path")
	if init, ok := e.inits[path]; ok {
		e.initPlugin(d, c, path, init, in, out)
		return
	}
	spec, ok := e.files[path]
	if !ok {
		e.setError(d, out, fmt.Sprintf("Failed to load %s. Error given: %s: cannot open shared object file: No such file or directory", path, path))
		return
	}
	if ns, ok := in.stringArg("forcens"); ok {
		spec.Namespace = ns
	}
	if id, ok := in.stringArg("forceid"); ok {
		spec.ID = id
	}
	if msg := e.admitPlugin(c, spec.ID, spec.Namespace, spec.APIVersion, path); msg != "" {
		e.setError(d, out, msg)
		return
	}
	p := e.addPlugin(c, spec, path)
	for _, fs := range spec.Functions {
		e.addFunc(p, fs.Name, fs.Args, fs.Returns, 0, e.echo)
	}
}

// admitPlugin returns why a plugin with id, namespace and required API
// version api cannot join c, or "" when it can. Zero api means 4.0.
func (e *Engine) admitPlugin(c *coreObj, id, ns string, api int, path string) string {
	if api == 0 {
		api = abi.MakeVersion(abi.APIMajor, 0)
	}
	if major, minor := abi.SplitVersion(api); major != abi.APIMajor || minor > e.minor {
		return fmt.Sprintf("Core only supports API R%d.%d but the loaded plugin requires API R%d.%d; Filename: %s",
			abi.APIMajor, e.minor, major, minor, path)
	}
	for _, p := range c.plugins {
		if p.pluginID == id {
			return fmt.Sprintf("Plugin %s already loaded (%s) from %s", id, p.name, p.path)
		}
		if p.ns == ns {
			return fmt.Sprintf("Plugin load of %s failed, namespace %s already populated (%s)", path, ns, p.path)
		}
	}
	return ""
}

// echo is the body of every function of a simulated plugin file.
func (e *Engine) echo(d *deferred, _ *coreObj, in, out *mapObj) { e.copyInto(d, in, out) }
