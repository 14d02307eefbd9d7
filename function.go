package vapoursynth

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/thesyncim/vapoursynth/internal/abi"
	"github.com/thesyncim/vapoursynth/internal/handle"
)

// FunctionImpl implements a callable exposed to the engine. in and out are
// only valid during the call. A returned error is stored in out.
type FunctionImpl func(core *Core, in *MapRef, out *MapRefMut) error

// Function is an owned reference to an engine function object.
type Function struct {
	api *API
	r   ref
}

func (a *API) newFunction(p abi.Function, core *coreState) *Function {
	fn := &Function{api: a}
	fn.r.set(uintptr(p), core, true)
	runtime.SetFinalizer(fn, (*Function).Release)
	return fn
}

func (fn *Function) handle() (abi.Function, error) {
	if fn == nil {
		return 0, ErrInvalidHandle
	}
	p, err := fn.r.get()
	return abi.Function(p), err
}

// Valid reports whether the handle still refers to a live function.
func (fn *Function) Valid() bool { return fn != nil && fn.r.alive() }

// Release drops this reference. Safe to call twice.
func (fn *Function) Release() {
	if fn == nil {
		return
	}
	runtime.SetFinalizer(fn, nil)
	fn.r.release(func(p uintptr) { fn.api.table.FreeFunction(abi.Function(p)) })
}

// Clone returns a new reference to the same function.
func (fn *Function) Clone() (*Function, error) {
	p, err := fn.handle()
	if err != nil {
		return nil, err
	}
	return fn.api.newFunction(fn.api.table.AddFunctionRef(p), fn.r.core), nil
}

// Call invokes the function. in may be nil. The caller owns the result.
func (fn *Function) Call(in *MapRef) (*OwnedMap, error) {
	p, err := fn.handle()
	if err != nil {
		return nil, err
	}
	var args abi.Map
	if in != nil {
		if args, err = in.handle(); err != nil {
			return nil, err
		}
	} else {
		tmp := fn.api.NewMap()
		defer tmp.Release()
		args = tmp.ptr
	}
	out := fn.api.newOwnedMap(fn.api.table.CreateMap(), fn.r.core)
	fn.api.table.CallFunction(p, args, out.ptr)
	if msg, failed := out.ErrorMessage(); failed {
		out.Release()
		return nil, &InvokeError{Function: "function", Message: msg}
	}
	return out, nil
}

type publicFunction struct {
	api  *API
	name string
	fn   FunctionImpl
}

var publicFunctions = handle.New[*publicFunction]()

// NewFunction exposes fn to the engine, for example to pass it as a
// function argument to a plugin.
func (c *Core) NewFunction(fn FunctionImpl) (*Function, error) {
	cp, err := c.handle()
	if err != nil {
		return nil, err
	}
	id := publicFunctions.Insert(&publicFunction{api: c.api, name: "function", fn: fn})
	p := c.api.table.CreateFunction(id, cp)
	if p == 0 {
		publicFunctions.Remove(id)
		return nil, fmt.Errorf("create function: %w", ErrNotSupported)
	}
	return c.api.newFunction(p, c.state), nil
}

func dispatchPublicFunction(in, out abi.Map, userData uintptr, core abi.Core) {
	pf, ok := publicFunctions.Get(userData)
	if !ok {
		Logger().Error("call to unknown function", zap.Uintptr("id", userData))
		return
	}
	c := pf.api.borrowCore(core)

	var inScope, outScope ref
	inScope.set(uintptr(in), nil, false)
	outScope.set(uintptr(out), nil, false)
	defer inScope.release(nil)
	defer outScope.release(nil)

	args := &pf.api.borrowMap(in, &inScope, c.state).MapRef
	ret := pf.api.borrowMap(out, &outScope, c.state)

	defer func() {
		if r := recover(); r != nil {
			Logger().Error("panic in function", zap.String("function", pf.name), zap.Any("panic", r))
			pf.api.table.MapSetError(out, fmt.Sprintf("%s: panic: %v", pf.name, r))
		}
	}()
	if err := pf.fn(c, args, ret); err != nil {
		pf.api.table.MapSetError(out, fmt.Sprintf("%s: %v", pf.name, err))
	}
}

func dispatchFreeFunctionData(userData uintptr) {
	publicFunctions.Remove(userData)
}
