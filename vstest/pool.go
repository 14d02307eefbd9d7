package vstest

import (
	"runtime"
	"sync"
)

// pool is an unbounded task queue served by a resizable set of workers.
// submit never blocks, so it is safe to call with the engine lock held.
type pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	workers int
	target  int
	closed  bool
}

func newPool(threads int) *pool {
	p := &pool{}
	p.cond = sync.NewCond(&p.mu)
	p.setThreads(threads)
	return p
}

func (p *pool) submit(fn func()) {
	p.mu.Lock()
	p.queue = append(p.queue, fn)
	p.mu.Unlock()
	p.cond.Signal()
}

// setThreads changes the worker count. Zero or negative selects the number
// of logical CPUs.
func (p *pool) setThreads(n int) int {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	p.mu.Lock()
	p.target = n
	for p.workers < p.target {
		p.workers++
		go p.work()
	}
	p.mu.Unlock()
	p.cond.Broadcast()
	return n
}

func (p *pool) threads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target
}

func (p *pool) work() {
	p.mu.Lock()
	for {
		for len(p.queue) == 0 && !p.closed && p.workers <= p.target {
			p.cond.Wait()
		}
		if p.workers > p.target || (p.closed && len(p.queue) == 0) {
			p.workers--
			p.mu.Unlock()
			return
		}
		fn := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()
		fn()
		p.mu.Lock()
	}
}

// close stops the workers once the queue has drained.
func (p *pool) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
}
