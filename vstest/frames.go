package vstest

import (
	"github.com/thesyncim/vapoursynth/internal/abi"
)

// strideAlign is the row alignment of every video plane.
const strideAlign = 64

func alignUp(n, a int) int { return (n + a - 1) / a * a }

func planeDims(f abi.VideoFormat, width, height, plane int) (int, int) {
	if plane == 0 || f.ColorFamily != abi.ColorFamilyYUV {
		return width, height
	}
	return width >> f.SubSamplingW, height >> f.SubSamplingH
}

func (e *Engine) newVideoFrame(c *coreObj, f abi.VideoFormat, width, height int) *frameObj {
	fr := &frameObj{
		id:     nextID(),
		core:   c,
		refs:   1,
		media:  abi.MediaTypeVideo,
		vf:     f,
		width:  width,
		height: height,
		props:  e.newMap(),
	}
	for p := 0; p < f.NumPlanes; p++ {
		w, h := planeDims(f, width, height, p)
		stride := alignUp(w*f.BytesPerSample, strideAlign)
		fr.strides = append(fr.strides, stride)
		fr.planes = append(fr.planes, make([]byte, stride*h))
	}
	fr.props.frame = true
	e.register(fr.id, fr)
	return fr
}

func (e *Engine) newAudioFrame(c *coreObj, f abi.AudioFormat, samples int) *frameObj {
	fr := &frameObj{
		id:     nextID(),
		core:   c,
		refs:   1,
		media:  abi.MediaTypeAudio,
		af:     f,
		length: samples,
		props:  e.newMap(),
	}
	for ch := 0; ch < f.NumChannels; ch++ {
		fr.strides = append(fr.strides, samples*f.BytesPerSample)
		fr.planes = append(fr.planes, make([]byte, samples*f.BytesPerSample))
	}
	fr.props.frame = true
	e.register(fr.id, fr)
	return fr
}

// copyFrame returns a new frame with the same data and properties.
func (e *Engine) copyFrame(d *deferred, src *frameObj) *frameObj {
	var dst *frameObj
	if src.media == abi.MediaTypeAudio {
		dst = e.newAudioFrame(src.core, src.af, src.length)
	} else {
		dst = e.newVideoFrame(src.core, src.vf, src.width, src.height)
	}
	for i := range src.planes {
		copy(dst.planes[i], src.planes[i])
	}
	e.copyInto(d, src.props, dst.props)
	return dst
}

func (f *frameObj) planeOK(plane int) bool {
	return plane >= 0 && plane < len(f.planes)
}

func (f *frameObj) planeWidth(plane int) int {
	if f.media == abi.MediaTypeAudio {
		return 0
	}
	w, _ := planeDims(f.vf, f.width, f.height, plane)
	return w
}

func (f *frameObj) planeHeight(plane int) int {
	if f.media == abi.MediaTypeAudio {
		return 0
	}
	_, h := planeDims(f.vf, f.width, f.height, plane)
	return h
}

// usedFramebuffer sums the plane memory of every live frame of c.
func (e *Engine) usedFramebuffer(c *coreObj) int64 {
	var n int64
	for _, o := range e.objects {
		if f, ok := o.(*frameObj); ok && f.core == c {
			n += f.size()
		}
	}
	return n
}
