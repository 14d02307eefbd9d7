package pipe

import (
	"encoding/json"
	"io"

	vs "github.com/thesyncim/vapoursynth"
)

// PropsWriter writes selected frame properties as one JSON object per
// frame: {"frame":n,"props":{...}}. It writes no frame data.
type PropsWriter struct {
	enc  *json.Encoder
	keys []string
}

// NewPropsWriter returns a writer dumping keys to w. With no keys every
// property is written.
func NewPropsWriter(w io.Writer, keys ...string) *PropsWriter {
	return &PropsWriter{enc: json.NewEncoder(w), keys: keys}
}

type propsLine struct {
	Frame int            `json:"frame"`
	Props map[string]any `json:"props"`
}

func (p *PropsWriter) WriteHeader(Header) error { return nil }

// WriteFrame reports zero bytes so that a tee counts only media output.
func (p *PropsWriter) WriteFrame(f *vs.Frame, n int) (int, error) {
	props := f.Props()
	keys := p.keys
	if len(keys) == 0 {
		keys = props.Keys()
	}
	line := propsLine{Frame: n, Props: make(map[string]any, len(keys))}
	for _, k := range keys {
		v, ok, err := PropValue(props, k)
		if err != nil {
			return 0, err
		}
		if ok {
			line.Props[k] = v
		}
	}
	return 0, p.enc.Encode(line)
}

// PropValue converts the value under key into a JSON friendly form:
// numbers and strings for single elements, slices for arrays, base64 for
// binary data and the type name for engine objects. ok is false if the
// key is unset.
func PropValue(m *vs.MapRef, key string) (v any, ok bool, err error) {
	t := m.Type(key)
	switch t {
	case vs.PropertyUnset:
		return nil, false, nil
	case vs.PropertyInt:
		xs, err := m.Ints(key)
		if err != nil || len(xs) != 1 {
			return xs, true, err
		}
		return xs[0], true, nil
	case vs.PropertyFloat:
		xs, err := m.Floats(key)
		if err != nil || len(xs) != 1 {
			return xs, true, err
		}
		return xs[0], true, nil
	case vs.PropertyData:
		count, err := m.NumElements(key)
		if err != nil {
			return nil, true, err
		}
		vals := make([]any, count)
		for i := range vals {
			data, err := m.DataAt(key, i)
			if err != nil {
				return nil, true, err
			}
			hint, _ := m.DataHint(key, i)
			if hint == vs.DataUTF8 {
				vals[i] = string(data)
			} else {
				vals[i] = data
			}
		}
		if len(vals) == 1 {
			return vals[0], true, nil
		}
		return vals, true, nil
	default:
		return "<" + t.String() + ">", true, nil
	}
}
