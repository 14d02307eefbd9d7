package vapoursynth

import (
	"github.com/thesyncim/vapoursynth/internal/native"
)

// Load opens the system VapourSynth libraries and negotiates an API.
//
// The core library is searched in this order: opts.LibraryPath,
// VAPOURSYNTH_LIB_PATH, VAPOURSYNTH_LIB_DIR, the executable's directory,
// the working directory, then the platform's library paths.
func Load(opts Options) (*API, error) {
	b := native.NewBackend(native.Config{
		LibraryPath:       opts.LibraryPath,
		ScriptLibraryPath: opts.ScriptLibraryPath,
	})
	return New(b, opts)
}

var _ PluginBackend = (*native.Backend)(nil)
