package vapoursynth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctionCall(t *testing.T) {
	c, e := newTestCore(t)
	var calls int
	fn, err := c.NewFunction(func(core *Core, in *MapRef, out *MapRefMut) error {
		calls++
		assert.Same(t, c, core)
		s, err := in.String("greeting")
		if err != nil {
			return err
		}
		return out.SetString("reply", s+", world")
	})
	require.NoError(t, err)

	args := c.NewMap()
	defer args.Release()
	require.NoError(t, args.SetString("greeting", "hello"))
	ret, err := fn.Call(args.Ref())
	require.NoError(t, err)
	reply, err := ret.String("reply")
	require.NoError(t, err)
	assert.Equal(t, "hello, world", reply)
	ret.Release()

	_, err = fn.Call(nil)
	var ie *InvokeError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, ie.Message, ErrKeyNotFound.Error())
	assert.Equal(t, 2, calls)

	// A function stored in a map is the same engine object.
	m := c.NewMap()
	require.NoError(t, m.SetFunction("cb", fn))
	stored, err := m.Function("cb")
	require.NoError(t, err)
	m.Release()
	ret, err = stored.Call(args.Ref())
	require.NoError(t, err)
	ret.Release()
	assert.Equal(t, 3, calls)

	clone, err := fn.Clone()
	require.NoError(t, err)
	fn.Release()
	stored.Release()
	assert.Zero(t, e.Stats().FunctionFrees)
	clone.Release()
	assert.Equal(t, 1, e.Stats().FunctionFrees)
	assert.False(t, clone.Valid())
	_, err = clone.Call(nil)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestFunctionPanicBecomesError(t *testing.T) {
	c, _ := newTestCore(t)
	fn, err := c.NewFunction(func(*Core, *MapRef, *MapRefMut) error { panic("bad state") })
	require.NoError(t, err)
	defer fn.Release()

	_, err = fn.Call(nil)
	assert.EqualError(t, err, "call function: function: panic: bad state")
	assert.True(t, errors.Is(err, ErrFilterFailure))
}

func TestBorrowedMapsExpire(t *testing.T) {
	c, _ := newTestCore(t)
	var kept *MapRef
	fn, err := c.NewFunction(func(_ *Core, in *MapRef, _ *MapRefMut) error {
		kept = in
		return nil
	})
	require.NoError(t, err)
	defer fn.Release()

	ret, err := fn.Call(nil)
	require.NoError(t, err)
	ret.Release()
	_, err = kept.Int("x")
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.Zero(t, kept.Len())
}

func TestSignature(t *testing.T) {
	sig, err := ParseSignature("clip:vnode;planes:int[]:opt;expr:data[]:empty;")
	require.NoError(t, err)
	require.Len(t, sig, 3)
	assert.Equal(t, Arg{Name: "planes", Type: ArgInt, Array: true, Optional: true}, sig[1])
	assert.True(t, sig[2].Empty)
	assert.Equal(t, "clip:vnode;planes:int[]:opt;expr:data[]:empty;", sig.String())
	assert.Equal(t, "clip:vnode;", ClipSignature.String())

	for _, bad := range []string{"clip", ":int", "x:matrix", "x:int:maybe"} {
		_, err := ParseSignature(bad)
		assert.Error(t, err, bad)
	}
}
