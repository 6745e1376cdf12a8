package schema

import (
	"fmt"
	"math/big"
	"strconv"
)

// Encoder is the inverse of Decoder: it lays structured values out in their
// compact wire form, turning named-field records into positional tuples.
type Encoder struct {
	structs  Structs
	maxDepth int
}

func NewEncoder(structs Structs, maxDepth int) *Encoder {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Encoder{structs: structs, maxDepth: maxDepth}
}

func (e *Encoder) Encode(n *Node, v any) (any, error) {
	return e.encode(n, v, "", 0)
}

func (e *Encoder) encode(n *Node, v any, path string, depth int) (any, error) {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("encode %s: %w: %s", path, ErrInvalidFormat, fmt.Sprintf(format, args...))
	}
	if depth > e.maxDepth {
		return nil, fail("schema nesting exceeds depth limit %d", e.maxDepth)
	}
	if n == nil {
		return nil, fail("no schema")
	}
	if v == nil {
		if !n.Optional {
			return nil, fail("required value is nil")
		}
		return nil, nil
	}

	switch n.Kind {
	case KindUint, KindInt, KindFloat, KindString, KindHexString, KindBool:
		return v, nil

	case KindBinBool:
		if truthy(v) {
			return 1, nil
		}
		return 0, nil

	case KindIntString, KindUintString, KindFloatString:
		switch x := v.(type) {
		case string:
			return x, nil
		case *big.Int:
			return x.String(), nil
		}
		d, err := toDecimal(v)
		if err != nil {
			return nil, fail("%v", err)
		}
		return d.String(), nil

	case KindArray:
		if n.Fields != nil {
			rec, ok := v.(map[string]any)
			if !ok {
				return nil, fail("expected a record, got %T", v)
			}
			out := make([]any, len(n.Fields))
			for i, field := range n.Fields {
				enc, err := e.encode(field, rec[field.Name], join(path, field.Name), depth+1)
				if err != nil {
					return nil, err
				}
				out[i] = enc
			}
			return out, nil
		}
		if n.Elements != nil {
			seq, ok := v.([]any)
			if !ok {
				return nil, fail("expected a sequence, got %T", v)
			}
			out := make([]any, len(seq))
			for i, elem := range seq {
				enc, err := e.encode(n.Elements, elem, join(path, strconv.Itoa(i)), depth+1)
				if err != nil {
					return nil, err
				}
				out[i] = enc
			}
			return out, nil
		}
		return nil, fail("array schema has neither fields nor elements")

	case KindObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fail("expected an object, got %T", v)
		}
		out := make(map[string]any, len(obj))
		if n.Keys != nil {
			for key, child := range n.Keys {
				raw, present := obj[key]
				if !present || raw == nil {
					if !child.Optional {
						return nil, fail("required key %q missing", key)
					}
					continue
				}
				enc, err := e.encode(child, raw, join(path, key), depth+1)
				if err != nil {
					return nil, err
				}
				out[key] = enc
			}
			return out, nil
		}
		if n.Elements != nil {
			for key, raw := range obj {
				enc, err := e.encode(n.Elements, raw, join(path, key), depth+1)
				if err != nil {
					return nil, err
				}
				out[key] = enc
			}
			return out, nil
		}
		return nil, fail("object schema has neither keys nor elements")

	case KindStruct:
		resolved, ok := e.structs[n.Struct]
		if !ok {
			return nil, fail("unknown struct %q", n.Struct)
		}
		return e.encode(resolved, v, path, depth+1)
	}

	return nil, fail("unsupported type %q", n.tag())
}
