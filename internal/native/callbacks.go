//go:build darwin || linux

package native

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

// purego callbacks are a limited process-wide resource, so the trampolines
// are created once and route through the most recently opened Callbacks.
var (
	callbackOnce sync.Once
	active       atomic.Pointer[abi.Callbacks]

	getFrameCallback   uintptr
	filterFreeCallback uintptr
	publicFuncCallback uintptr
	freeFuncCallback   uintptr
	frameDoneCallback  uintptr
	logHandlerCallback uintptr
	logFreeCallback    uintptr
)

func initCallbacks(cb *abi.Callbacks) {
	active.Store(cb)
	callbackOnce.Do(func() {
		getFrameCallback = purego.NewCallback(getFrameHandler)
		filterFreeCallback = purego.NewCallback(filterFreeHandler)
		publicFuncCallback = purego.NewCallback(publicFunctionHandler)
		freeFuncCallback = purego.NewCallback(freeFunctionDataHandler)
		frameDoneCallback = purego.NewCallback(frameDoneHandler)
		logHandlerCallback = purego.NewCallback(logHandler)
		logFreeCallback = purego.NewCallback(logHandlerFreeHandler)
	})
}

// getFrameHandler is VSFilterGetFrame.
func getFrameHandler(n, reason int32, instance, frameData, ctx, core, _ uintptr) uintptr {
	cb := active.Load()
	if cb == nil || cb.FilterGetFrame == nil {
		return 0
	}
	fd := (*uintptr)(unsafe.Pointer(frameData))
	return uintptr(cb.FilterGetFrame(int(n), abi.ActivationReason(reason), instance, fd, abi.FrameContext(ctx), abi.Core(core)))
}

// filterFreeHandler is VSFilterFree.
func filterFreeHandler(instance, core, _ uintptr) {
	if cb := active.Load(); cb != nil && cb.FilterFree != nil {
		cb.FilterFree(instance, abi.Core(core))
	}
}

// publicFunctionHandler is VSPublicFunction.
func publicFunctionHandler(in, out, userData, core, _ uintptr) {
	if cb := active.Load(); cb != nil && cb.PublicFunction != nil {
		cb.PublicFunction(abi.Map(in), abi.Map(out), userData, abi.Core(core))
	}
}

// freeFunctionDataHandler is VSFreeFunctionData.
func freeFunctionDataHandler(userData uintptr) {
	if cb := active.Load(); cb != nil && cb.FreeFunctionData != nil {
		cb.FreeFunctionData(userData)
	}
}

// frameDoneHandler is VSFrameDoneCallback.
func frameDoneHandler(userData, f uintptr, n int32, node, errMsg uintptr) {
	if cb := active.Load(); cb != nil && cb.FrameDone != nil {
		cb.FrameDone(userData, abi.Frame(f), int(n), abi.Node(node), goString(errMsg))
	}
}

// logHandler is VSLogHandler.
func logHandler(msgType int32, msg, userData uintptr) {
	if cb := active.Load(); cb != nil && cb.LogHandler != nil {
		cb.LogHandler(abi.MessageType(msgType), goString(msg), userData)
	}
}

// logHandlerFreeHandler is VSLogHandlerFree.
func logHandlerFreeHandler(userData uintptr) {
	if cb := active.Load(); cb != nil && cb.LogHandlerFree != nil {
		cb.LogHandlerFree(userData)
	}
}
