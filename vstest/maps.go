package vstest

import (
	"github.com/thesyncim/vapoursynth/internal/abi"
)

type dataValue struct {
	b    []byte
	hint abi.DataTypeHint
}

// prop is the element array stored under one key. Node, frame and
// function elements are handles that hold a reference.
type prop struct {
	typ   abi.PropertyType
	elems []any
}

type mapObj struct {
	id     uintptr
	keys   []string
	props  map[string]*prop
	err    string
	failed bool
	// frame maps are freed with their frame, never through FreeMap.
	frame bool
}

func newMap() *mapObj {
	return &mapObj{id: nextID(), props: make(map[string]*prop)}
}

func (e *Engine) newMap() *mapObj {
	m := newMap()
	e.register(m.id, m)
	return m
}

// validKey reports whether key is a legal property name: a letter or
// underscore followed by letters, digits and underscores.
func validKey(key string) bool {
	if key == "" {
		return false
	}
	for i, c := range key {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

func (e *Engine) clearMap(d *deferred, m *mapObj) {
	for _, k := range m.keys {
		e.releaseProp(d, m.props[k])
	}
	m.keys = nil
	m.props = make(map[string]*prop)
	m.err = ""
	m.failed = false
}

func (e *Engine) releaseProp(d *deferred, p *prop) {
	if !refType(p.typ) {
		return
	}
	for _, el := range p.elems {
		e.release(d, el.(uintptr))
	}
}

func refType(t abi.PropertyType) bool {
	switch t {
	case abi.PropertyFunction, abi.PropertyVideoNode, abi.PropertyAudioNode,
		abi.PropertyVideoFrame, abi.PropertyAudioFrame:
		return true
	}
	return false
}

func (e *Engine) deleteKey(d *deferred, m *mapObj, key string) bool {
	p, ok := m.props[key]
	if !ok {
		return false
	}
	e.releaseProp(d, p)
	delete(m.props, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

// set stores v under key. Replace discards the old elements whatever their
// type; append requires the key to be unset or of type t. Reference
// elements must already carry the reference the map will own.
func (e *Engine) set(d *deferred, m *mapObj, key string, t abi.PropertyType, v any, mode abi.AppendMode) bool {
	if !validKey(key) {
		return false
	}
	p, ok := m.props[key]
	switch {
	case ok && mode == abi.MapAppend:
		if p.typ != t {
			return false
		}
	case ok:
		e.releaseProp(d, p)
		p.typ, p.elems = t, nil
	default:
		if mode != abi.MapReplace && mode != abi.MapAppend {
			return false
		}
		p = &prop{typ: t}
		m.props[key] = p
		m.keys = append(m.keys, key)
	}
	p.elems = append(p.elems, v)
	return true
}

func (e *Engine) setEmpty(m *mapObj, key string, t abi.PropertyType) bool {
	if !validKey(key) || t == abi.PropertyUnset {
		return false
	}
	if _, ok := m.props[key]; ok {
		return false
	}
	m.props[key] = &prop{typ: t}
	m.keys = append(m.keys, key)
	return true
}

// element fetches element index of key, checking it has one of types.
func (m *mapObj) element(key string, index int, types ...abi.PropertyType) (any, abi.GetPropError) {
	if m.failed {
		return nil, abi.PropError
	}
	p, ok := m.props[key]
	if !ok {
		return nil, abi.PropUnset
	}
	match := false
	for _, t := range types {
		if p.typ == t {
			match = true
		}
	}
	if !match {
		return nil, abi.PropType
	}
	if index < 0 || index >= len(p.elems) {
		return nil, abi.PropIndex
	}
	return p.elems[index], abi.PropSuccess
}

// copyInto copies every key of src into dst, replacing existing keys and
// taking new references for handle elements.
func (e *Engine) copyInto(d *deferred, src, dst *mapObj) {
	for _, k := range src.keys {
		e.copyKey(d, src, dst, k)
	}
}

// copyKey copies key from src to dst. It reports false when src has no
// such key.
func (e *Engine) copyKey(d *deferred, src, dst *mapObj, key string) bool {
	p, ok := src.props[key]
	if !ok {
		return false
	}
	if old, ok := dst.props[key]; ok {
		e.releaseProp(d, old)
	} else {
		dst.keys = append(dst.keys, key)
	}
	cp := &prop{typ: p.typ, elems: make([]any, len(p.elems))}
	for i, el := range p.elems {
		if dv, ok := el.(dataValue); ok {
			el = dataValue{b: append([]byte(nil), dv.b...), hint: dv.hint}
		}
		if refType(p.typ) {
			e.acquire(el.(uintptr))
		}
		cp.elems[i] = el
	}
	dst.props[key] = cp
	return true
}

func (e *Engine) setError(d *deferred, m *mapObj, msg string) {
	e.clearMap(d, m)
	m.err = msg
	m.failed = true
}

// Value accessors used by the built-in functions.

func (m *mapObj) intArg(key string, def int64) int64 {
	v, perr := m.element(key, 0, abi.PropertyInt)
	if perr != abi.PropSuccess {
		return def
	}
	return v.(int64)
}

func (m *mapObj) floatArgs(key string) []float64 {
	p, ok := m.props[key]
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(p.elems))
	for _, el := range p.elems {
		switch v := el.(type) {
		case float64:
			out = append(out, v)
		case int64:
			out = append(out, float64(v))
		}
	}
	return out
}

func (m *mapObj) intArgs(key string) []int64 {
	p, ok := m.props[key]
	if !ok || p.typ != abi.PropertyInt {
		return nil
	}
	out := make([]int64, 0, len(p.elems))
	for _, el := range p.elems {
		out = append(out, el.(int64))
	}
	return out
}

func (m *mapObj) stringArg(key string) (string, bool) {
	v, perr := m.element(key, 0, abi.PropertyData)
	if perr != abi.PropSuccess {
		return "", false
	}
	return string(v.(dataValue).b), true
}

func (m *mapObj) handleArg(key string, types ...abi.PropertyType) uintptr {
	v, perr := m.element(key, 0, types...)
	if perr != abi.PropSuccess {
		return 0
	}
	return v.(uintptr)
}
