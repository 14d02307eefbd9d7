package vapoursynth

import "github.com/thesyncim/vapoursynth/internal/abi"

// engineCallbacks is handed to every backend. All Go state reachable from
// native callbacks lives in handle tables keyed by the userData values
// registered here; no Go pointer crosses into the engine.
var engineCallbacks = abi.Callbacks{
	FilterGetFrame:   dispatchGetFrame,
	FilterFree:       dispatchFree,
	PublicFunction:   dispatchPublicFunction,
	FreeFunctionData: dispatchFreeFunctionData,
	FrameDone:        dispatchFrameDone,
	LogHandler:       dispatchLog,
	LogHandlerFree:   dispatchLogFree,
}
