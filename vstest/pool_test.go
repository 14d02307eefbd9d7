package vstest

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolRunsEverything(t *testing.T) {
	p := newPool(2)
	defer p.close()
	assert.Equal(t, 2, p.threads())

	var (
		wg  sync.WaitGroup
		ran atomic.Int32
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		p.submit(func() {
			defer wg.Done()
			ran.Add(1)
		})
	}
	wg.Wait()
	assert.Equal(t, int32(100), ran.Load())
}

func TestPoolResize(t *testing.T) {
	p := newPool(4)
	defer p.close()
	assert.Equal(t, 1, p.setThreads(1))
	assert.Equal(t, 1, p.threads())
	assert.Equal(t, runtime.NumCPU(), p.setThreads(0))

	done := make(chan struct{})
	p.submit(func() { close(done) })
	<-done
}
