package abi

import "errors"

// Sentinels shared by every backend. The root package re-exports them.
var (
	ErrNotSupported    = errors.New("operation not supported")
	ErrLibraryNotFound = errors.New("vapoursynth library not found")
)
