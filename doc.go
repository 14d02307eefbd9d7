// Package vapoursynth provides Go bindings for the VapourSynth 4 frame
// server, loaded at runtime through purego.
//
// Key pieces include:
//   - API negotiation and feature detection (New, Load, Features)
//   - Cores, plugins and function invocation
//   - Property maps with typed accessors
//   - Nodes and frames with reference-counted handles
//   - Go filters in the four filter modes
//   - Script environments for evaluating .vpy files
//
// # Architecture
//
//	Load -> API -> Core -> Plugin.Invoke -> Node -> GetFrame -> Frame
//	API -> Environment.EvalFile -> Environment.Output -> Node
//	NewParallelFilter / NewSerialFilter -> Node (getFrame runs Go code)
//
// # Native Libraries
//
// Load searches for libvapoursynth and libvapoursynth-script in
// VAPOURSYNTH_LIB_PATH, VAPOURSYNTH_LIB_DIR, the executable's directory and
// the system library paths. Options.LibraryPath and Options.ScriptLibraryPath
// override the search. The vstest package implements the
// same Backend in Go so that tests run without the native libraries.
//
// # Handles
//
// Nodes, frames, maps and functions are owned handles and must be released.
// Every handle derived from a Core becomes invalid once the core is closed;
// Core.LiveHandles reports handles that are still outstanding.
//
// # Versions
//
// Version 4.0 is the baseline. Node timing, introspection and cache clearing
// need API 4.1 and report ErrUnsupportedFeature on older engines.
package vapoursynth
