// Package native binds the VapourSynth shared libraries with purego, so the
// module builds without cgo.
//
// Library locations checked (in order):
//   - Config.LibraryPath
//   - VAPOURSYNTH_LIB_PATH environment variable (file)
//   - VAPOURSYNTH_LIB_DIR environment variable (directory)
//   - the executable's directory and ../lib
//   - the working directory and the module root's build directory
//   - system library paths
package native

import (
	"os"
	"path/filepath"
	"runtime"
)

// Config selects the libraries to open. Empty paths use the search order
// above.
type Config struct {
	LibraryPath       string
	ScriptLibraryPath string
}

func libName(base string) string {
	switch runtime.GOOS {
	case "darwin":
		return "lib" + base + ".dylib"
	case "windows":
		return base + ".dll"
	default:
		return "lib" + base + ".so"
	}
}

// libraryPaths lists candidate locations for lib<base>.
func libraryPaths(explicit, base string) []string {
	var paths []string
	name := libName(base)

	if explicit != "" {
		paths = append(paths, explicit)
	}
	if base == "vapoursynth" {
		if env := os.Getenv("VAPOURSYNTH_LIB_PATH"); env != "" {
			paths = append(paths, env)
		}
	}
	if dir := os.Getenv("VAPOURSYNTH_LIB_DIR"); dir != "" {
		paths = append(paths, filepath.Join(dir, name))
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, name),
			filepath.Join(exeDir, "..", "lib", name),
		)
	}
	if wd, err := os.Getwd(); err == nil {
		paths = append(paths,
			filepath.Join(wd, name),
			filepath.Join(wd, "build", name),
		)
	}
	if root := findModuleRoot(); root != "" {
		paths = append(paths, filepath.Join(root, "build", name))
	}

	switch runtime.GOOS {
	case "darwin":
		paths = append(paths,
			name,
			"/usr/local/lib/"+name,
			"/opt/homebrew/lib/"+name,
		)
	case "linux":
		paths = append(paths,
			name,
			"/usr/local/lib/"+name,
			"/usr/lib/"+name,
			"/usr/lib/x86_64-linux-gnu/"+name,
			"/usr/lib/aarch64-linux-gnu/"+name,
		)
	}
	return paths
}

// findModuleRoot walks up from the working directory to the directory
// holding go.mod.
func findModuleRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
