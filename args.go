package vapoursynth

import (
	"fmt"
	"strings"
)

// ArgType is an element type in a function signature.
type ArgType string

const (
	ArgInt        ArgType = "int"
	ArgFloat      ArgType = "float"
	ArgData       ArgType = "data"
	ArgAnyData    ArgType = "anydata"
	ArgFunction   ArgType = "func"
	ArgVideoNode  ArgType = "vnode"
	ArgAudioNode  ArgType = "anode"
	ArgVideoFrame ArgType = "vframe"
	ArgAudioFrame ArgType = "aframe"
	ArgAny        ArgType = "any"
)

func (t ArgType) valid() bool {
	switch t {
	case ArgInt, ArgFloat, ArgData, ArgAnyData, ArgFunction,
		ArgVideoNode, ArgAudioNode, ArgVideoFrame, ArgAudioFrame, ArgAny:
		return true
	}
	return false
}

// Arg is one entry of a function signature.
type Arg struct {
	Name     string
	Type     ArgType
	Array    bool
	Optional bool
	// Empty allows an array argument to be passed with no elements.
	Empty bool
}

func (a Arg) String() string {
	var b strings.Builder
	b.WriteString(a.Name)
	b.WriteByte(':')
	b.WriteString(string(a.Type))
	if a.Array {
		b.WriteString("[]")
	}
	if a.Optional {
		b.WriteString(":opt")
	}
	if a.Empty {
		b.WriteString(":empty")
	}
	return b.String()
}

// Signature is an ordered argument list in the engine's
// "name:type[]:opt;" notation.
type Signature []Arg

func (s Signature) String() string {
	var b strings.Builder
	for _, a := range s {
		b.WriteString(a.String())
		b.WriteByte(';')
	}
	return b.String()
}

// ClipSignature is the return signature of a filter that yields one clip.
var ClipSignature = Signature{{Name: "clip", Type: ArgVideoNode}}

// ParseSignature parses the engine notation.
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	for _, field := range strings.Split(s, ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		parts := strings.Split(field, ":")
		if len(parts) < 2 || parts[0] == "" {
			return nil, fmt.Errorf("argument %q: missing name or type", field)
		}
		a := Arg{Name: parts[0]}
		typ := parts[1]
		if strings.HasSuffix(typ, "[]") {
			a.Array = true
			typ = strings.TrimSuffix(typ, "[]")
		}
		a.Type = ArgType(typ)
		if !a.Type.valid() {
			return nil, fmt.Errorf("argument %q: unknown type %q", a.Name, typ)
		}
		for _, flag := range parts[2:] {
			switch flag {
			case "opt":
				a.Optional = true
			case "empty":
				a.Empty = true
			default:
				return nil, fmt.Errorf("argument %q: unknown flag %q", a.Name, flag)
			}
		}
		sig = append(sig, a)
	}
	return sig, nil
}
