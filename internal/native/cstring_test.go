//go:build darwin || linux

package native

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestGoString(t *testing.T) {
	b := []byte("YUV420P8\x00garbage")
	assert.Equal(t, "YUV420P8", goString(uintptr(unsafe.Pointer(&b[0]))))
	assert.Equal(t, "", goString(0))
}

func TestBufString(t *testing.T) {
	assert.Equal(t, "abc", bufString([]byte{'a', 'b', 'c', 0, 'd'}))
	assert.Equal(t, "abc", bufString([]byte("abc")))
}

func TestGoBytesCopies(t *testing.T) {
	src := []byte{1, 2, 3}
	out := goBytes(uintptr(unsafe.Pointer(&src[0])), 3)
	src[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, out)
	assert.Equal(t, []byte{}, goBytes(0, 4))
}

func TestStructLayouts(t *testing.T) {
	assert.Equal(t, uintptr(28), unsafe.Sizeof(cVideoFormat{}))
	assert.Equal(t, uintptr(32), unsafe.Offsetof(cVideoInfo{}.fpsNum))
	assert.Equal(t, uintptr(24), unsafe.Offsetof(cAudioInfo{}.sampleRate))
	assert.Equal(t, uintptr(32), unsafe.Offsetof(cAudioInfo{}.numSamples))
	assert.Equal(t, uintptr(24), unsafe.Offsetof(cCoreInfo{}.maxFramebufferSize))
	assert.Equal(t, uintptr(16), unsafe.Sizeof(cFilterDependency{}))
}
