//go:build !darwin && !linux

package native

import (
	"fmt"
	"runtime"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

// Backend reports every library as unavailable on platforms without a
// purego loader.
type Backend struct {
	cfg Config
}

// NewBackend returns a backend that cannot load anything.
func NewBackend(cfg Config) *Backend { return &Backend{cfg: cfg} }

// Path is always empty.
func (b *Backend) Path() string { return "" }

func (b *Backend) Open(int, *abi.Callbacks) (abi.Table, error) {
	return nil, fmt.Errorf("%w: no loader for %s", abi.ErrLibraryNotFound, runtime.GOOS)
}

func (b *Backend) OpenScript(int) (abi.ScriptTable, error) {
	return nil, fmt.Errorf("%w: no loader for %s", abi.ErrLibraryNotFound, runtime.GOOS)
}

func (b *Backend) OpenPlugin(uintptr) (abi.PluginTable, error) {
	return nil, fmt.Errorf("%w: no loader for %s", abi.ErrLibraryNotFound, runtime.GOOS)
}
