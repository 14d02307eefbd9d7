package vapoursynth

import (
	"fmt"
	"sync/atomic"
)

// coreState is shared by a core and every owned handle derived from it, so
// handles can refuse to touch native memory once the core is gone.
type coreState struct {
	closed atomic.Bool
	live   atomic.Int64
}

func (s *coreState) check() error {
	if s != nil && s.closed.Load() {
		return ErrInvalidHandle
	}
	return nil
}

// ref is the release-once cell behind every handle. An owned handle frees
// its native object when released; a borrowed one only clears the cell when
// the scope that lent it ends.
type ref struct {
	ptr  atomic.Uintptr
	core *coreState
	// owned handles count toward core liveness and free on release.
	owned bool
}

func (r *ref) set(p uintptr, core *coreState, owned bool) {
	r.ptr.Store(p)
	r.core = core
	r.owned = owned
	if owned && core != nil {
		core.live.Add(1)
	}
}

// get returns the native pointer or ErrInvalidHandle.
func (r *ref) get() (uintptr, error) {
	p := r.ptr.Load()
	if p == 0 {
		return 0, ErrInvalidHandle
	}
	if err := r.core.check(); err != nil {
		return 0, err
	}
	return p, nil
}

// alive reports whether get would succeed.
func (r *ref) alive() bool {
	_, err := r.get()
	return err == nil
}

// release clears the cell and calls free with the native pointer. It
// returns false when the cell was already empty. free is skipped for
// borrowed cells and when the owning core has been freed.
func (r *ref) release(free func(uintptr)) bool {
	p := r.ptr.Swap(0)
	if p == 0 {
		return false
	}
	if !r.owned {
		return true
	}
	if r.core != nil {
		r.core.live.Add(-1)
		if r.core.closed.Load() {
			return true
		}
	}
	free(p)
	return true
}

// belongsTo reports an error when the handle was derived from a core
// other than core. The engine aborts the process on mixed-core graphs, so
// the mismatch has to be caught before the handle reaches it. Handles or
// targets without a known core are not checked.
func (r *ref) belongsTo(core *coreState, what string) error {
	if r.core != nil && core != nil && r.core != core {
		return fmt.Errorf("%s belongs to a different core: %w", what, ErrInvalidHandle)
	}
	return nil
}

// detach clears the cell without freeing because ownership moved to the
// engine or another handle.
func (r *ref) detach() (uintptr, error) {
	if err := r.core.check(); err != nil {
		return 0, err
	}
	p := r.ptr.Swap(0)
	if p == 0 {
		return 0, ErrInvalidHandle
	}
	if r.owned && r.core != nil {
		r.core.live.Add(-1)
	}
	return p, nil
}
