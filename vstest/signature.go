package vstest

import (
	"fmt"
	"strings"

	"github.com/thesyncim/vapoursynth/internal/abi"
)

type argSpec struct {
	name     string
	typ      string
	array    bool
	optional bool
	empty    bool
}

// parseArgs parses "name:type[]:opt;" notation. A bare "any" entry lets a
// function take arguments it does not declare.
func parseArgs(s string) ([]argSpec, bool, error) {
	var (
		out   []argSpec
		extra bool
	)
	for _, field := range strings.Split(s, ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if field == "any" {
			extra = true
			continue
		}
		parts := strings.Split(field, ":")
		if len(parts) < 2 || !validKey(parts[0]) {
			return nil, false, fmt.Errorf("malformed argument %q", field)
		}
		a := argSpec{name: parts[0], typ: parts[1]}
		if strings.HasSuffix(a.typ, "[]") {
			a.array = true
			a.typ = strings.TrimSuffix(a.typ, "[]")
		}
		switch a.typ {
		case "int", "float", "data", "anydata", "func", "vnode", "anode", "vframe", "aframe", "any":
		default:
			return nil, false, fmt.Errorf("argument %q has unknown type %q", a.name, a.typ)
		}
		for _, flag := range parts[2:] {
			switch flag {
			case "opt":
				a.optional = true
			case "empty":
				a.empty = true
			default:
				return nil, false, fmt.Errorf("argument %q has unknown flag %q", a.name, flag)
			}
		}
		for _, prev := range out {
			if prev.name == a.name {
				return nil, false, fmt.Errorf("argument %q declared twice", a.name)
			}
		}
		out = append(out, a)
	}
	return out, extra, nil
}

func (a argSpec) accepts(t abi.PropertyType) bool {
	switch a.typ {
	case "int":
		return t == abi.PropertyInt
	case "float":
		return t == abi.PropertyFloat || t == abi.PropertyInt
	case "data", "anydata":
		return t == abi.PropertyData
	case "func":
		return t == abi.PropertyFunction
	case "vnode":
		return t == abi.PropertyVideoNode
	case "anode":
		return t == abi.PropertyAudioNode
	case "vframe":
		return t == abi.PropertyVideoFrame
	case "aframe":
		return t == abi.PropertyAudioFrame
	}
	return true
}

// checkArgs validates in against a function's declared arguments and
// returns the engine's error message on failure.
func checkArgs(fn *pluginFunc, in *mapObj) string {
	for _, a := range fn.sig {
		p, ok := in.props[a.name]
		if !ok {
			if !a.optional {
				return fmt.Sprintf("%s: argument %s is required", fn.name, a.name)
			}
			continue
		}
		if !a.accepts(p.typ) {
			return fmt.Sprintf("%s: argument %s is not of the correct type", fn.name, a.name)
		}
		if !a.array && len(p.elems) > 1 {
			return fmt.Sprintf("%s: argument %s is not an array. Only one value may be supplied", fn.name, a.name)
		}
		if len(p.elems) == 0 && !a.empty {
			return fmt.Sprintf("%s: argument %s does not accept empty arrays", fn.name, a.name)
		}
	}
	if fn.extra {
		return ""
	}
	var unknown []string
	for _, k := range in.keys {
		found := false
		for _, a := range fn.sig {
			if a.name == k {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		return fmt.Sprintf("%s: Function does not take argument(s) named %s", fn.name, strings.Join(unknown, ", "))
	}
	return ""
}
