package vapoursynth

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

// Backend opens an engine function table. The native loader and the
// in-process engine in package vstest both implement it.
type Backend interface {
	// Open returns the function table for the packed API version, or an
	// error when the engine cannot serve that version.
	Open(version int, cb *abi.Callbacks) (abi.Table, error)

	// OpenScript returns the script environment table. Backends without
	// script support return an error wrapping ErrNotSupported.
	OpenScript(version int) (abi.ScriptTable, error)
}

// PluginBackend is a Backend that can also serve a plugin's init entry
// point. Both backends in this module implement it.
type PluginBackend interface {
	Backend

	// OpenPlugin returns the plugin API table behind the pointer the engine
	// passed to VapourSynthPluginInit2.
	OpenPlugin(pluginAPI uintptr) (abi.PluginTable, error)
}

// Options configures API negotiation.
type Options struct {
	// LibraryPath overrides the core library search. Only used by Load.
	LibraryPath string
	// ScriptLibraryPath overrides the script library search. Only used by Load.
	ScriptLibraryPath string
	// MinVersion rejects engines older than this. Zero accepts any 4.x.
	MinVersion Version
	// DisableScript skips opening the script environment table.
	DisableScript bool
	// Logger defaults to the package logger.
	Logger *zap.Logger
}

// API is the capability table negotiated with one engine. It is immutable
// after construction and safe to share between goroutines.
type API struct {
	backend  Backend
	table    abi.Table
	script   abi.ScriptTable
	version  Version
	engine   Version
	features Features
	log      *zap.Logger
}

// New negotiates the newest API version both sides support, starting from
// the newest minor this package knows and stepping down to 4.0.
func New(b Backend, opts Options) (*API, error) {
	log := opts.Logger
	if log == nil {
		log = Logger()
	}

	var (
		table   abi.Table
		version Version
		lastErr error
	)
	for minor := abi.APIMinor; minor >= 0; minor-- {
		v := Version{Major: abi.APIMajor, Minor: minor}
		t, err := b.Open(v.Packed(), &engineCallbacks)
		if err == nil && t != nil {
			table, version = t, v
			break
		}
		lastErr = err
		log.Debug("engine rejected API version", zap.Stringer("version", v), zap.Error(err))
	}
	if table == nil {
		if lastErr == nil {
			lastErr = ErrNotSupported
		}
		return nil, fmt.Errorf("negotiate API %d.x: %w", abi.APIMajor, lastErr)
	}
	if opts.MinVersion.Major != 0 && !version.AtLeast(opts.MinVersion) {
		return nil, &FeatureError{Feature: FeatureVideo, Have: version, Need: opts.MinVersion}
	}

	a := &API{
		backend: b,
		table:   table,
		version: version,
		engine:  ParseVersion(table.GetAPIVersion()),
		log:     log,
	}
	if !opts.DisableScript {
		st, err := b.OpenScript(abi.MakeVersion(abi.ScriptAPIMajor, abi.ScriptAPIMinor))
		if err != nil {
			st, err = b.OpenScript(abi.MakeVersion(abi.ScriptAPIMajor, 0))
		}
		switch {
		case err == nil:
			a.script = st
		case errors.Is(err, ErrNotSupported), errors.Is(err, ErrLibraryNotFound):
			log.Debug("script environment unavailable", zap.Error(err))
		default:
			log.Warn("script environment unavailable", zap.Error(err))
		}
	}
	a.features = featuresFor(version, a.script != nil)
	log.Debug("API negotiated",
		zap.Stringer("version", version),
		zap.Stringer("engine", a.engine),
		zap.Uint32("features", uint32(a.features)))
	return a, nil
}

// Version returns the negotiated API version. It is what feature gating
// uses, and it may be older than EngineVersion.
func (a *API) Version() Version { return a.version }

// EngineVersion returns the API version the engine reports for itself.
func (a *API) EngineVersion() Version { return a.engine }

// Features returns the capability set of the negotiated version.
func (a *API) Features() Features { return a.features }

// Supports reports whether f is available.
func (a *API) Supports(f Feature) bool { return a.features.Has(f) }

// require returns a *FeatureError when f is unavailable.
func (a *API) require(f Feature) error {
	if a.features.Has(f) {
		return nil
	}
	return &FeatureError{Feature: f, Have: a.version, Need: f.MinVersion()}
}

// Log sends a message through the engine's global log handlers.
func (a *API) Log(t MessageType, msg string) {
	a.table.LogMessage(abi.MessageType(t), msg, 0)
}
