// Package types holds the small value vocabulary shared across every other
// package: JVM descriptor kinds, operand-stack slot widths, and the
// descriptor-string parsing used by the interpreter, the method area, and
// the JIT to agree on a method's calling convention.
package types

import (
	"fmt"
	"strings"
)

// Kind is a JVM descriptor's base type, stripped of array dimension.
type Kind int

const (
	KindVoid Kind = iota
	KindBoolean
	KindByte
	KindChar
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindRef // object or array reference
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindBoolean:
		return "boolean"
	case KindByte:
		return "byte"
	case KindChar:
		return "char"
	case KindShort:
		return "short"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindRef:
		return "reference"
	default:
		return "?"
	}
}

// SlotWidth is the number of u64 operand-stack / local-variable slots a
// value of this kind occupies. Long and double occupy two; every other
// category (including reference) occupies exactly one, per §3's invariants.
func (k Kind) SlotWidth() int {
	if k == KindLong || k == KindDouble {
		return 2
	}
	return 1
}

// Param is one parameter of a method descriptor.
type Param struct {
	Kind      Kind
	ClassName string // populated when Kind == KindRef and it's a plain class type
}

// Descriptor is a parsed method descriptor, e.g. "(ILjava/lang/String;)V".
type Descriptor struct {
	Params []Param
	Return Param
	Raw    string
}

// ParamsSlotWidth is the total number of operand-stack slots the parameter
// list occupies, used by the interpreter/dispatcher to locate the
// argument window for an invocation.
func (d Descriptor) ParamsSlotWidth() int {
	w := 0
	for _, p := range d.Params {
		w += p.Kind.SlotWidth()
	}
	return w
}

// ParseDescriptor parses a JVM method descriptor into parameter and return
// kinds. It does not resolve class names, only records them for reference
// parameters.
func ParseDescriptor(desc string) (Descriptor, error) {
	if len(desc) == 0 || desc[0] != '(' {
		return Descriptor{}, fmt.Errorf("types: malformed method descriptor %q", desc)
	}
	close := strings.IndexByte(desc, ')')
	if close < 0 {
		return Descriptor{}, fmt.Errorf("types: malformed method descriptor %q", desc)
	}
	paramsStr := desc[1:close]
	retStr := desc[close+1:]

	params, err := parseFieldTypes(paramsStr)
	if err != nil {
		return Descriptor{}, err
	}
	rets, err := parseFieldTypes(retStr)
	if err != nil {
		return Descriptor{}, err
	}
	var ret Param
	if len(rets) == 1 {
		ret = rets[0]
	} else if retStr != "V" {
		return Descriptor{}, fmt.Errorf("types: malformed return type in %q", desc)
	}
	return Descriptor{Params: params, Return: ret, Raw: desc}, nil
}

// parseFieldTypes parses a sequence of field descriptors (no surrounding
// parens) such as "I[Ljava/lang/String;D" into one Param per entry. A bare
// "V" yields zero entries (void has no slot).
func parseFieldTypes(s string) ([]Param, error) {
	var out []Param
	i := 0
	for i < len(s) {
		start := i
		for i < len(s) && s[i] == '[' {
			i++
		}
		if i >= len(s) {
			return nil, fmt.Errorf("types: truncated descriptor %q", s)
		}
		isArray := i > start
		switch s[i] {
		case 'V':
			if isArray {
				return nil, fmt.Errorf("types: void array in %q", s)
			}
			i++
			continue
		case 'Z', 'B', 'C', 'S', 'I', 'J', 'F', 'D':
			k := baseKind(s[i])
			i++
			if isArray {
				out = append(out, Param{Kind: KindRef, ClassName: s[start:i]})
			} else {
				out = append(out, Param{Kind: k})
			}
		case 'L':
			end := strings.IndexByte(s[i:], ';')
			if end < 0 {
				return nil, fmt.Errorf("types: unterminated class type in %q", s)
			}
			end += i
			name := s[i+1 : end]
			i = end + 1
			if isArray {
				out = append(out, Param{Kind: KindRef, ClassName: s[start:i]})
			} else {
				out = append(out, Param{Kind: KindRef, ClassName: name})
			}
		default:
			return nil, fmt.Errorf("types: unrecognized descriptor byte %q in %q", s[i], s)
		}
	}
	return out, nil
}

func baseKind(b byte) Kind {
	switch b {
	case 'Z':
		return KindBoolean
	case 'B':
		return KindByte
	case 'C':
		return KindChar
	case 'S':
		return KindShort
	case 'I':
		return KindInt
	case 'J':
		return KindLong
	case 'F':
		return KindFloat
	case 'D':
		return KindDouble
	default:
		return KindRef
	}
}

// FieldKind parses a bare field descriptor, e.g. "I" or "[Ljava/lang/String;".
func FieldKind(desc string) (Param, error) {
	ps, err := parseFieldTypes(desc)
	if err != nil {
		return Param{}, err
	}
	if len(ps) != 1 {
		return Param{}, fmt.Errorf("types: not a single field descriptor: %q", desc)
	}
	return ps[0], nil
}
