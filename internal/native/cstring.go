//go:build darwin || linux

package native

import (
	"bytes"
	"unsafe"
)

// goString copies a NUL-terminated C string.
func goString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	var n uintptr
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), n))
}

// bufString returns the NUL-terminated prefix of buf.
func bufString(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return string(buf[:i])
	}
	return string(buf)
}

// goBytes copies n bytes of C memory.
func goBytes(ptr uintptr, n int) []byte {
	if ptr == 0 || n <= 0 {
		return []byte{}
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n))
	return out
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
