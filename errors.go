package vapoursynth

import (
	"errors"
	"fmt"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

var (
	// ErrNotSupported is returned when an optional operation is not supported.
	ErrNotSupported = abi.ErrNotSupported

	// ErrLibraryNotFound is returned when no VapourSynth shared library could be opened.
	ErrLibraryNotFound = abi.ErrLibraryNotFound

	// ErrUnsupportedFeature is returned when the negotiated API version does
	// not carry the requested capability.
	ErrUnsupportedFeature = errors.New("feature not supported by negotiated API version")

	ErrPluginLoad        = errors.New("plugin load failed")
	ErrTypeMismatch      = errors.New("property type mismatch")
	ErrKeyNotFound       = errors.New("property key not found")
	ErrIndexOutOfRange   = errors.New("property index out of range")
	ErrFilterFailure     = errors.New("filter failure")
	ErrInvalidHandle     = errors.New("invalid or released handle")
	ErrTooManyRequests   = errors.New("filter mode allows a single upstream request")
	ErrFrameNotRequested = errors.New("frame was not requested during the initial activation")
	ErrProtocolViolation = errors.New("engine activation protocol violation")
)

// FeatureError reports a capability that the negotiated version lacks.
type FeatureError struct {
	Feature Feature
	Have    Version
	Need    Version
}

func (e *FeatureError) Error() string {
	if e.Have.AtLeast(e.Need) {
		return fmt.Sprintf("%s not available", e.Feature)
	}
	return fmt.Sprintf("%s requires API %s, negotiated %s", e.Feature, e.Need, e.Have)
}

func (e *FeatureError) Unwrap() error { return ErrUnsupportedFeature }

// PluginLoadError reports a plugin the engine refused to load.
type PluginLoadError struct {
	Path   string
	Reason string
}

func (e *PluginLoadError) Error() string {
	return fmt.Sprintf("load plugin %q: %s", e.Path, e.Reason)
}

func (e *PluginLoadError) Unwrap() error { return ErrPluginLoad }

// MapError reports a failed property map access.
type MapError struct {
	Op  string
	Key string
	Err error
}

func (e *MapError) Error() string {
	return fmt.Sprintf("map %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *MapError) Unwrap() error { return e.Err }

// FilterError is a failure raised inside a filter while producing frame N.
type FilterError struct {
	Filter  string
	N       int
	Message string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filter %s frame %d: %s", e.Filter, e.N, e.Message)
}

func (e *FilterError) Unwrap() error { return ErrFilterFailure }

// GetFrameError is the consumer-side view of a failed frame request.
type GetFrameError struct {
	N       int
	Message string
}

func (e *GetFrameError) Error() string {
	return fmt.Sprintf("get frame %d: %s", e.N, e.Message)
}

func (e *GetFrameError) Unwrap() error { return ErrFilterFailure }

// InvokeError reports an error returned by a plugin function call.
type InvokeError struct {
	Plugin   string
	Function string
	Message  string
}

func (e *InvokeError) Error() string {
	if e.Plugin == "" {
		return fmt.Sprintf("call %s: %s", e.Function, e.Message)
	}
	return fmt.Sprintf("invoke %s.%s: %s", e.Plugin, e.Function, e.Message)
}

func (e *InvokeError) Unwrap() error { return ErrFilterFailure }
