package vapoursynth

import "github.com/thesyncim/vapoursynth/internal/abi"

// Mode is the concurrency contract a filter declares at creation. Each
// mode has its own constructor, and only the constructors for the serialized
// modes hand the filter a mutable state value.
type Mode int

const (
	// ModeParallel runs activations fully concurrently. A filter issues at
	// most one upstream request per output frame.
	ModeParallel Mode = iota
	// ModeParallelRequests runs activations concurrently and lets a filter
	// batch any number of upstream requests.
	ModeParallelRequests
	// ModeUnordered serializes activations in no particular frame order.
	ModeUnordered
	// ModeSerial serializes whole frame cycles in increasing frame order.
	ModeSerial
)

func (m Mode) String() string {
	switch m {
	case ModeParallel:
		return "parallel"
	case ModeParallelRequests:
		return "parallel-requests"
	case ModeUnordered:
		return "unordered"
	case ModeSerial:
		return "serial"
	default:
		return "unknown"
	}
}

// Serialized reports whether the engine runs at most one activation at a time.
func (m Mode) Serialized() bool { return m == ModeUnordered || m == ModeSerial }

func (m Mode) toABI() abi.FilterMode {
	switch m {
	case ModeParallelRequests:
		return abi.FilterModeParallelRequests
	case ModeUnordered:
		return abi.FilterModeUnordered
	case ModeSerial:
		return abi.FilterModeFrameState
	default:
		return abi.FilterModeParallel
	}
}

func modeFromABI(m abi.FilterMode) Mode {
	switch m {
	case abi.FilterModeParallelRequests:
		return ModeParallelRequests
	case abi.FilterModeUnordered:
		return ModeUnordered
	case abi.FilterModeFrameState:
		return ModeSerial
	default:
		return ModeParallel
	}
}
