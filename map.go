package vapoursynth

import (
	"runtime"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

// PropertyType is the element type stored under a map key.
type PropertyType int

const (
	PropertyUnset      = PropertyType(abi.PropertyUnset)
	PropertyInt        = PropertyType(abi.PropertyInt)
	PropertyFloat      = PropertyType(abi.PropertyFloat)
	PropertyData       = PropertyType(abi.PropertyData)
	PropertyFunction   = PropertyType(abi.PropertyFunction)
	PropertyVideoNode  = PropertyType(abi.PropertyVideoNode)
	PropertyAudioNode  = PropertyType(abi.PropertyAudioNode)
	PropertyVideoFrame = PropertyType(abi.PropertyVideoFrame)
	PropertyAudioFrame = PropertyType(abi.PropertyAudioFrame)
)

func (t PropertyType) String() string {
	switch t {
	case PropertyUnset:
		return "unset"
	case PropertyInt:
		return "int"
	case PropertyFloat:
		return "float"
	case PropertyData:
		return "data"
	case PropertyFunction:
		return "function"
	case PropertyVideoNode:
		return "vnode"
	case PropertyAudioNode:
		return "anode"
	case PropertyVideoFrame:
		return "vframe"
	case PropertyAudioFrame:
		return "aframe"
	default:
		return "unknown"
	}
}

// kind groups property types the way typed accessors see them: a node
// accessor accepts both video and audio nodes.
type kind int

const (
	kindInt kind = iota
	kindFloat
	kindData
	kindNode
	kindFrame
	kindFunction
)

func (k kind) accepts(t PropertyType) bool {
	switch k {
	case kindInt:
		return t == PropertyInt
	case kindFloat:
		return t == PropertyFloat
	case kindData:
		return t == PropertyData
	case kindNode:
		return t == PropertyVideoNode || t == PropertyAudioNode
	case kindFrame:
		return t == PropertyVideoFrame || t == PropertyAudioFrame
	case kindFunction:
		return t == PropertyFunction
	}
	return false
}

func (k kind) String() string {
	switch k {
	case kindInt:
		return "int"
	case kindFloat:
		return "float"
	case kindData:
		return "data"
	case kindNode:
		return "node"
	case kindFrame:
		return "frame"
	default:
		return "function"
	}
}

// MapRef is a read-only view of a property map. Maps borrowed from frames
// or passed into callbacks stay valid only as long as their owner does.
type MapRef struct {
	api   *API
	ptr   abi.Map
	owner *ref
	core  *coreState
}

// MapRefMut is a writable view of a property map.
type MapRefMut struct {
	MapRef
}

// OwnedMap is a property map owned by Go. Release frees it.
type OwnedMap struct {
	MapRefMut
	own ref
}

// NewMap creates an empty map owned by the caller.
func (a *API) NewMap() *OwnedMap {
	return a.newOwnedMap(a.table.CreateMap(), nil)
}

func (a *API) newOwnedMap(p abi.Map, core *coreState) *OwnedMap {
	m := &OwnedMap{}
	m.own.set(uintptr(p), nil, true)
	m.api, m.ptr, m.owner, m.core = a, p, &m.own, core
	runtime.SetFinalizer(m, (*OwnedMap).Release)
	return m
}

// borrowMap wraps a map whose lifetime is bounded by owner.
func (a *API) borrowMap(p abi.Map, owner *ref, core *coreState) *MapRefMut {
	return &MapRefMut{MapRef{api: a, ptr: p, owner: owner, core: core}}
}

// Release frees the map and every reference it holds. Safe to call twice.
func (m *OwnedMap) Release() {
	runtime.SetFinalizer(m, nil)
	m.own.release(func(p uintptr) { m.api.table.FreeMap(abi.Map(p)) })
}

// Clear removes every key.
func (m *OwnedMap) Clear() error {
	p, err := m.handle()
	if err != nil {
		return &MapError{Op: "clear", Err: err}
	}
	m.api.table.ClearMap(p)
	return nil
}

// Ref returns a read-only view.
func (m *MapRefMut) Ref() *MapRef { return &m.MapRef }

func (m *MapRef) handle() (abi.Map, error) {
	if m == nil || m.owner == nil {
		return 0, ErrInvalidHandle
	}
	if _, err := m.owner.get(); err != nil {
		return 0, err
	}
	return m.ptr, nil
}

// Len returns the number of keys.
func (m *MapRef) Len() int {
	p, err := m.handle()
	if err != nil {
		return 0
	}
	return m.api.table.MapNumKeys(p)
}

// Keys returns the keys in insertion order.
func (m *MapRef) Keys() []string {
	p, err := m.handle()
	if err != nil {
		return nil
	}
	n := m.api.table.MapNumKeys(p)
	keys := make([]string, n)
	for i := range keys {
		keys[i] = m.api.table.MapGetKey(p, i)
	}
	return keys
}

// Type returns the element type stored under key, or PropertyUnset.
func (m *MapRef) Type(key string) PropertyType {
	p, err := m.handle()
	if err != nil {
		return PropertyUnset
	}
	return PropertyType(m.api.table.MapGetType(p, key))
}

// NumElements returns the number of values stored under key.
func (m *MapRef) NumElements(key string) (int, error) {
	p, err := m.handle()
	if err != nil {
		return 0, &MapError{Op: "get", Key: key, Err: err}
	}
	n := m.api.table.MapNumElements(p, key)
	if n < 0 {
		return 0, &MapError{Op: "get", Key: key, Err: ErrKeyNotFound}
	}
	return n, nil
}

// ErrorMessage returns the error stored in the map, if any. Engine calls
// report failure this way.
func (m *MapRef) ErrorMessage() (string, bool) {
	p, err := m.handle()
	if err != nil {
		return "", false
	}
	return m.api.table.MapGetError(p)
}

// CopyTo copies every key of m into dst, replacing keys present in both.
func (m *MapRef) CopyTo(dst *MapRefMut) error {
	src, err := m.handle()
	if err != nil {
		return &MapError{Op: "copy", Err: err}
	}
	d, err := dst.handle()
	if err != nil {
		return &MapError{Op: "copy", Err: err}
	}
	m.api.table.CopyMap(src, d)
	return nil
}

// lookup validates key and index against the expected element kind.
func (m *MapRef) lookup(key string, k kind, index int) (abi.Map, error) {
	p, err := m.handle()
	if err != nil {
		return 0, &MapError{Op: "get", Key: key, Err: err}
	}
	t := PropertyType(m.api.table.MapGetType(p, key))
	if t == PropertyUnset {
		return 0, &MapError{Op: "get", Key: key, Err: ErrKeyNotFound}
	}
	if !k.accepts(t) {
		return 0, &MapError{Op: "get " + k.String(), Key: key, Err: ErrTypeMismatch}
	}
	if index < 0 || index >= m.api.table.MapNumElements(p, key) {
		return 0, &MapError{Op: "get", Key: key, Err: ErrIndexOutOfRange}
	}
	return p, nil
}

func propError(key string, e abi.GetPropError) error {
	switch e {
	case abi.PropSuccess:
		return nil
	case abi.PropUnset:
		return &MapError{Op: "get", Key: key, Err: ErrKeyNotFound}
	case abi.PropType:
		return &MapError{Op: "get", Key: key, Err: ErrTypeMismatch}
	case abi.PropIndex:
		return &MapError{Op: "get", Key: key, Err: ErrIndexOutOfRange}
	default:
		return &MapError{Op: "get", Key: key, Err: ErrInvalidHandle}
	}
}

// Int returns the first integer stored under key.
func (m *MapRef) Int(key string) (int64, error) { return m.IntAt(key, 0) }

// IntAt returns the integer at index.
func (m *MapRef) IntAt(key string, index int) (int64, error) {
	p, err := m.lookup(key, kindInt, index)
	if err != nil {
		return 0, err
	}
	v, e := m.api.table.MapGetInt(p, key, index)
	return v, propError(key, e)
}

// Ints returns every integer stored under key.
func (m *MapRef) Ints(key string) ([]int64, error) {
	p, err := m.lookup(key, kindInt, 0)
	if err != nil {
		return nil, err
	}
	v, e := m.api.table.MapGetIntArray(p, key)
	return v, propError(key, e)
}

// Float returns the first float stored under key.
func (m *MapRef) Float(key string) (float64, error) { return m.FloatAt(key, 0) }

// FloatAt returns the float at index.
func (m *MapRef) FloatAt(key string, index int) (float64, error) {
	p, err := m.lookup(key, kindFloat, index)
	if err != nil {
		return 0, err
	}
	v, e := m.api.table.MapGetFloat(p, key, index)
	return v, propError(key, e)
}

// Floats returns every float stored under key.
func (m *MapRef) Floats(key string) ([]float64, error) {
	p, err := m.lookup(key, kindFloat, 0)
	if err != nil {
		return nil, err
	}
	v, e := m.api.table.MapGetFloatArray(p, key)
	return v, propError(key, e)
}

// Data returns a copy of the first byte string stored under key.
func (m *MapRef) Data(key string) ([]byte, error) { return m.DataAt(key, 0) }

// DataAt returns a copy of the byte string at index.
func (m *MapRef) DataAt(key string, index int) ([]byte, error) {
	p, err := m.lookup(key, kindData, index)
	if err != nil {
		return nil, err
	}
	v, e := m.api.table.MapGetData(p, key, index)
	return v, propError(key, e)
}

// String returns the first byte string stored under key as a string.
func (m *MapRef) String(key string) (string, error) {
	b, err := m.DataAt(key, 0)
	return string(b), err
}

// DataHint returns whether the byte string at index is text or binary.
func (m *MapRef) DataHint(key string, index int) (DataHint, error) {
	p, err := m.lookup(key, kindData, index)
	if err != nil {
		return DataUnknown, err
	}
	v, e := m.api.table.MapGetDataTypeHint(p, key, index)
	return DataHint(v), propError(key, e)
}

// Node returns a new reference to the first node stored under key.
func (m *MapRef) Node(key string) (*Node, error) { return m.NodeAt(key, 0) }

// NodeAt returns a new reference to the node at index.
func (m *MapRef) NodeAt(key string, index int) (*Node, error) {
	p, err := m.lookup(key, kindNode, index)
	if err != nil {
		return nil, err
	}
	v, e := m.api.table.MapGetNode(p, key, index)
	if err := propError(key, e); err != nil {
		return nil, err
	}
	return m.api.newNode(v, m.core), nil
}

// Frame returns a new reference to the first frame stored under key.
func (m *MapRef) Frame(key string) (*Frame, error) { return m.FrameAt(key, 0) }

// FrameAt returns a new reference to the frame at index.
func (m *MapRef) FrameAt(key string, index int) (*Frame, error) {
	p, err := m.lookup(key, kindFrame, index)
	if err != nil {
		return nil, err
	}
	v, e := m.api.table.MapGetFrame(p, key, index)
	if err := propError(key, e); err != nil {
		return nil, err
	}
	return m.api.newFrame(v, m.core), nil
}

// Function returns a new reference to the first function stored under key.
func (m *MapRef) Function(key string) (*Function, error) { return m.FunctionAt(key, 0) }

// FunctionAt returns a new reference to the function at index.
func (m *MapRef) FunctionAt(key string, index int) (*Function, error) {
	p, err := m.lookup(key, kindFunction, index)
	if err != nil {
		return nil, err
	}
	v, e := m.api.table.MapGetFunction(p, key, index)
	if err := propError(key, e); err != nil {
		return nil, err
	}
	return m.api.newFunction(v, m.core), nil
}

// DataHint tells consumers how to interpret a byte string.
type DataHint int

const (
	DataUnknown = DataHint(abi.DataUnknown)
	DataBinary  = DataHint(abi.DataBinary)
	DataUTF8    = DataHint(abi.DataUTF8)
)

// prepareSet checks that key may hold values of kind k. A key's element
// type is fixed once set; DeleteKey it first to change type.
func (m *MapRefMut) prepareSet(key string, k kind) (abi.Map, error) {
	p, err := m.handle()
	if err != nil {
		return 0, &MapError{Op: "set", Key: key, Err: err}
	}
	if t := PropertyType(m.api.table.MapGetType(p, key)); t != PropertyUnset && !k.accepts(t) {
		return 0, &MapError{Op: "set " + k.String(), Key: key, Err: ErrTypeMismatch}
	}
	return p, nil
}

func setResult(key string, ok bool) error {
	if ok {
		return nil
	}
	return &MapError{Op: "set", Key: key, Err: ErrTypeMismatch}
}

func appendMode(appendValue bool) abi.AppendMode {
	if appendValue {
		return abi.MapAppend
	}
	return abi.MapReplace
}

// SetInt replaces the values under key with v.
func (m *MapRefMut) SetInt(key string, v int64) error { return m.putInt(key, v, false) }

// AppendInt appends v to the values under key.
func (m *MapRefMut) AppendInt(key string, v int64) error { return m.putInt(key, v, true) }

func (m *MapRefMut) putInt(key string, v int64, app bool) error {
	p, err := m.prepareSet(key, kindInt)
	if err != nil {
		return err
	}
	return setResult(key, m.api.table.MapSetInt(p, key, v, appendMode(app)))
}

// SetInts replaces the values under key with vs.
func (m *MapRefMut) SetInts(key string, vs []int64) error {
	p, err := m.prepareSet(key, kindInt)
	if err != nil {
		return err
	}
	return setResult(key, m.api.table.MapSetIntArray(p, key, vs))
}

// SetFloat replaces the values under key with v.
func (m *MapRefMut) SetFloat(key string, v float64) error { return m.putFloat(key, v, false) }

// AppendFloat appends v to the values under key.
func (m *MapRefMut) AppendFloat(key string, v float64) error { return m.putFloat(key, v, true) }

func (m *MapRefMut) putFloat(key string, v float64, app bool) error {
	p, err := m.prepareSet(key, kindFloat)
	if err != nil {
		return err
	}
	return setResult(key, m.api.table.MapSetFloat(p, key, v, appendMode(app)))
}

// SetFloats replaces the values under key with vs.
func (m *MapRefMut) SetFloats(key string, vs []float64) error {
	p, err := m.prepareSet(key, kindFloat)
	if err != nil {
		return err
	}
	return setResult(key, m.api.table.MapSetFloatArray(p, key, vs))
}

// SetData replaces the values under key with a binary byte string.
func (m *MapRefMut) SetData(key string, v []byte) error {
	return m.putData(key, v, abi.DataBinary, false)
}

// AppendData appends a binary byte string.
func (m *MapRefMut) AppendData(key string, v []byte) error {
	return m.putData(key, v, abi.DataBinary, true)
}

// SetString replaces the values under key with a UTF-8 string.
func (m *MapRefMut) SetString(key, v string) error {
	return m.putData(key, []byte(v), abi.DataUTF8, false)
}

// AppendString appends a UTF-8 string.
func (m *MapRefMut) AppendString(key, v string) error {
	return m.putData(key, []byte(v), abi.DataUTF8, true)
}

func (m *MapRefMut) putData(key string, v []byte, hint abi.DataTypeHint, app bool) error {
	p, err := m.prepareSet(key, kindData)
	if err != nil {
		return err
	}
	return setResult(key, m.api.table.MapSetData(p, key, v, hint, appendMode(app)))
}

// SetNode stores a new reference to n under key. The caller keeps its own.
func (m *MapRefMut) SetNode(key string, n *Node) error { return m.putNode(key, n, false) }

// AppendNode appends a new reference to n.
func (m *MapRefMut) AppendNode(key string, n *Node) error { return m.putNode(key, n, true) }

func (m *MapRefMut) putNode(key string, n *Node, app bool) error {
	p, err := m.prepareSet(key, kindNode)
	if err != nil {
		return err
	}
	np, err := n.handle()
	if err == nil {
		err = n.r.belongsTo(m.core, "node")
	}
	if err != nil {
		return &MapError{Op: "set", Key: key, Err: err}
	}
	return setResult(key, m.api.table.MapSetNode(p, key, np, appendMode(app)))
}

// ConsumeNode moves n into the map. n is invalid afterwards, also when
// storing fails: the reference is dropped then.
func (m *MapRefMut) ConsumeNode(key string, n *Node) error {
	np, err := n.detach()
	if err != nil {
		return &MapError{Op: "set", Key: key, Err: err}
	}
	if err := n.r.belongsTo(m.core, "node"); err != nil {
		m.api.table.FreeNode(np)
		return &MapError{Op: "set", Key: key, Err: err}
	}
	p, err := m.prepareSet(key, kindNode)
	if err != nil {
		m.api.table.FreeNode(np)
		return err
	}
	return setResult(key, m.api.table.MapConsumeNode(p, key, np, abi.MapReplace))
}

// SetFrame stores a new reference to f under key.
func (m *MapRefMut) SetFrame(key string, f *Frame) error { return m.putFrame(key, f, false) }

// AppendFrame appends a new reference to f.
func (m *MapRefMut) AppendFrame(key string, f *Frame) error { return m.putFrame(key, f, true) }

func (m *MapRefMut) putFrame(key string, f *Frame, app bool) error {
	p, err := m.prepareSet(key, kindFrame)
	if err != nil {
		return err
	}
	fp, err := f.handle()
	if err == nil {
		err = f.r.belongsTo(m.core, "frame")
	}
	if err != nil {
		return &MapError{Op: "set", Key: key, Err: err}
	}
	return setResult(key, m.api.table.MapSetFrame(p, key, fp, appendMode(app)))
}

// SetFunction stores a new reference to fn under key.
func (m *MapRefMut) SetFunction(key string, fn *Function) error { return m.putFunction(key, fn, false) }

// AppendFunction appends a new reference to fn.
func (m *MapRefMut) AppendFunction(key string, fn *Function) error { return m.putFunction(key, fn, true) }

func (m *MapRefMut) putFunction(key string, fn *Function, app bool) error {
	p, err := m.prepareSet(key, kindFunction)
	if err != nil {
		return err
	}
	fp, err := fn.handle()
	if err != nil {
		return &MapError{Op: "set", Key: key, Err: err}
	}
	return setResult(key, m.api.table.MapSetFunction(p, key, fp, appendMode(app)))
}

// DeleteKey removes key and reports whether it was present.
func (m *MapRefMut) DeleteKey(key string) bool {
	p, err := m.handle()
	if err != nil {
		return false
	}
	return m.api.table.MapDeleteKey(p, key)
}

// SetError stores an error message. Engine consumers treat a map carrying
// an error as a failed call.
func (m *MapRefMut) SetError(msg string) error {
	p, err := m.handle()
	if err != nil {
		return &MapError{Op: "set error", Err: err}
	}
	m.api.table.MapSetError(p, msg)
	return nil
}
