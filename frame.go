package vapoursynth

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

// frameBase holds what shared and exclusive frames have in common.
//
// Plane and channel slices returned by accessors alias engine memory. They
// are valid until the frame handle is released.
type frameBase struct {
	api *API
	r   ref
}

// Frame is a shared, read-only reference to an engine frame.
type Frame struct {
	frameBase
}

// FrameMut is an exclusive, writable frame. It can be frozen into a shared
// Frame once filled; it cannot be cloned.
type FrameMut struct {
	frameBase
}

func (a *API) newFrame(p abi.Frame, core *coreState) *Frame {
	f := &Frame{frameBase{api: a}}
	f.r.set(uintptr(p), core, true)
	runtime.SetFinalizer(f, (*Frame).Release)
	return f
}

func (a *API) newFrameMut(p abi.Frame, core *coreState) *FrameMut {
	f := &FrameMut{frameBase{api: a}}
	f.r.set(uintptr(p), core, true)
	runtime.SetFinalizer(f, (*FrameMut).Release)
	return f
}

func (f *frameBase) handle() (abi.Frame, error) {
	if f == nil {
		return 0, ErrInvalidHandle
	}
	p, err := f.r.get()
	return abi.Frame(p), err
}

func (f *frameBase) free(p uintptr) { f.api.table.FreeFrame(abi.Frame(p)) }

// Valid reports whether the handle still refers to a live frame.
func (f *frameBase) Valid() bool { return f != nil && f.r.alive() }

// Type returns whether the frame holds video or audio.
func (f *frameBase) Type() MediaType {
	p, err := f.handle()
	if err != nil {
		return 0
	}
	return MediaType(f.api.table.GetFrameType(p))
}

// VideoFormat returns the format of a video frame.
func (f *frameBase) VideoFormat() (VideoFormat, error) {
	p, err := f.handle()
	if err != nil {
		return VideoFormat{}, err
	}
	if f.api.table.GetFrameType(p) != abi.MediaTypeVideo {
		return VideoFormat{}, fmt.Errorf("video format of audio frame: %w", ErrNotSupported)
	}
	return videoFormatFromABI(f.api.table.GetVideoFrameFormat(p)), nil
}

// AudioFormat returns the format of an audio frame.
func (f *frameBase) AudioFormat() (AudioFormat, error) {
	p, err := f.handle()
	if err != nil {
		return AudioFormat{}, err
	}
	if f.api.table.GetFrameType(p) != abi.MediaTypeAudio {
		return AudioFormat{}, fmt.Errorf("audio format of video frame: %w", ErrNotSupported)
	}
	return audioFormatFromABI(f.api.table.GetAudioFrameFormat(p)), nil
}

// NumPlanes returns the plane count of a video frame, or the channel
// count of an audio frame.
func (f *frameBase) NumPlanes() int {
	p, err := f.handle()
	if err != nil {
		return 0
	}
	if f.api.table.GetFrameType(p) == abi.MediaTypeAudio {
		return f.api.table.GetAudioFrameFormat(p).NumChannels
	}
	return f.api.table.GetVideoFrameFormat(p).NumPlanes
}

func (f *frameBase) plane(plane int) (abi.Frame, error) {
	p, err := f.handle()
	if err != nil {
		return 0, err
	}
	if plane < 0 || plane >= f.NumPlanes() {
		return 0, fmt.Errorf("plane %d: %w", plane, ErrIndexOutOfRange)
	}
	return p, nil
}

// Width returns the width of plane in pixels.
func (f *frameBase) Width(plane int) int {
	p, err := f.plane(plane)
	if err != nil {
		return 0
	}
	return f.api.table.GetFrameWidth(p, plane)
}

// Height returns the height of plane in pixels.
func (f *frameBase) Height(plane int) int {
	p, err := f.plane(plane)
	if err != nil {
		return 0
	}
	return f.api.table.GetFrameHeight(p, plane)
}

// Stride returns the distance in bytes between two rows of plane.
func (f *frameBase) Stride(plane int) int {
	p, err := f.plane(plane)
	if err != nil {
		return 0
	}
	return f.api.table.GetStride(p, plane)
}

// SampleCount returns the number of samples per channel in an audio frame.
func (f *frameBase) SampleCount() int {
	p, err := f.handle()
	if err != nil {
		return 0
	}
	return f.api.table.GetFrameLength(p)
}

// planeSize returns the byte length of plane including stride padding.
func (f *frameBase) planeSize(p abi.Frame, plane int) int {
	t := f.api.table
	if t.GetFrameType(p) == abi.MediaTypeAudio {
		return t.GetFrameLength(p) * t.GetAudioFrameFormat(p).BytesPerSample
	}
	return t.GetStride(p, plane) * t.GetFrameHeight(p, plane)
}

// Plane returns a read-only view of plane, rows separated by Stride bytes.
// For audio frames plane selects a channel.
func (f *frameBase) Plane(plane int) ([]byte, error) {
	p, err := f.plane(plane)
	if err != nil {
		return nil, err
	}
	ptr := f.api.table.GetReadPtr(p, plane)
	if ptr == nil {
		return nil, ErrInvalidHandle
	}
	return unsafe.Slice((*byte)(ptr), f.planeSize(p, plane)), nil
}

// PlaneRow returns row y of a video plane without stride padding.
func (f *frameBase) PlaneRow(plane, y int) ([]byte, error) {
	data, err := f.Plane(plane)
	if err != nil {
		return nil, err
	}
	p, _ := f.handle()
	t := f.api.table
	if y < 0 || y >= t.GetFrameHeight(p, plane) {
		return nil, fmt.Errorf("row %d: %w", y, ErrIndexOutOfRange)
	}
	stride := t.GetStride(p, plane)
	width := t.GetFrameWidth(p, plane) * t.GetVideoFrameFormat(p).BytesPerSample
	return data[y*stride : y*stride+width], nil
}

// Release drops this reference. Safe to call twice.
func (f *Frame) Release() {
	if f == nil {
		return
	}
	runtime.SetFinalizer(f, nil)
	f.r.release(f.free)
}

// Clone returns a new reference to the same frame.
func (f *Frame) Clone() (*Frame, error) {
	p, err := f.handle()
	if err != nil {
		return nil, err
	}
	return f.api.newFrame(f.api.table.AddFrameRef(p), f.r.core), nil
}

// Props returns the frame's properties. The view is valid while f is.
func (f *Frame) Props() *MapRef {
	p, err := f.handle()
	if err != nil {
		return &MapRef{}
	}
	return &f.api.borrowMap(f.api.table.GetFramePropertiesRO(p), &f.r, f.r.core).MapRef
}

// consume takes ownership of the native frame away from f.
func (f *Frame) consume() (abi.Frame, error) {
	runtime.SetFinalizer(f, nil)
	p, err := f.r.detach()
	return abi.Frame(p), err
}

// Release drops the frame. Safe to call twice.
func (f *FrameMut) Release() {
	if f == nil {
		return
	}
	runtime.SetFinalizer(f, nil)
	f.r.release(f.free)
}

// Props returns a read-only view of the frame's properties.
func (f *FrameMut) Props() *MapRef { return f.PropsMut().Ref() }

// PropsMut returns the frame's properties for writing.
func (f *FrameMut) PropsMut() *MapRefMut {
	p, err := f.handle()
	if err != nil {
		return &MapRefMut{}
	}
	return f.api.borrowMap(f.api.table.GetFramePropertiesRW(p), &f.r, f.r.core)
}

// WritablePlane returns a writable view of plane.
func (f *FrameMut) WritablePlane(plane int) ([]byte, error) {
	p, err := f.plane(plane)
	if err != nil {
		return nil, err
	}
	ptr := f.api.table.GetWritePtr(p, plane)
	if ptr == nil {
		return nil, ErrInvalidHandle
	}
	return unsafe.Slice((*byte)(ptr), f.planeSize(p, plane)), nil
}

// Freeze converts f into a shared frame. f is invalid afterwards.
func (f *FrameMut) Freeze() (*Frame, error) {
	runtime.SetFinalizer(f, nil)
	core := f.r.core
	p, err := f.r.detach()
	if err != nil {
		return nil, err
	}
	return f.api.newFrame(abi.Frame(p), core), nil
}
