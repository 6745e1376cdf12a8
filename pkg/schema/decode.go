package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// DefaultMaxDepth bounds schema recursion when no limit is configured.
// Struct dictionaries may reference themselves.
const DefaultMaxDepth = 64

// Decoder turns inbound JSON values (decoded with UseNumber) into structured
// values following a schema. It has no state beyond its configuration and is
// safe for concurrent use.
//
// Output shapes:
//   - array with fields  -> map[string]any keyed by field name
//   - array with elements -> []any
//   - object             -> map[string]any (absent optional keys are omitted)
//   - intString, uintString, floatString -> decimal.Decimal
//   - binbool            -> bool
//   - other scalars      -> the wire value unchanged
type Decoder struct {
	structs  Structs
	maxDepth int
}

func NewDecoder(structs Structs, maxDepth int) *Decoder {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Decoder{structs: structs, maxDepth: maxDepth}
}

// Decode interprets v according to n. Malformed data is fatal for the whole
// value: no partial result is returned.
func (d *Decoder) Decode(n *Node, v any) (any, error) {
	return d.decode(n, v, "", 0)
}

func (d *Decoder) decode(n *Node, v any, path string, depth int) (any, error) {
	if depth > d.maxDepth {
		return nil, &DecodeError{Path: path, Reason: fmt.Sprintf("schema nesting exceeds depth limit %d", d.maxDepth)}
	}
	if n == nil {
		return nil, &DecodeError{Path: path, Reason: "no schema"}
	}
	if v == nil {
		if !n.Optional {
			return nil, &DecodeError{Path: path, Reason: "required value is null"}
		}
		return nil, nil
	}

	switch n.Kind {
	case KindUint, KindInt, KindFloat, KindString, KindHexString, KindBool:
		return v, nil

	case KindBinBool:
		return truthy(v), nil

	case KindIntString, KindUintString, KindFloatString:
		dec, err := toDecimal(v)
		if err != nil {
			return nil, &DecodeError{Path: path, Reason: fmt.Sprintf("%s: %v", n.Kind, err)}
		}
		return dec, nil

	case KindArray:
		seq, ok := v.([]any)
		if !ok {
			return nil, &DecodeError{Path: path, Reason: fmt.Sprintf("expected an array, got %T", v)}
		}
		if n.Fields != nil {
			if len(seq) != len(n.Fields) {
				return nil, &DecodeError{Path: path, Reason: fmt.Sprintf("expected %d tuple fields, got %d", len(n.Fields), len(seq))}
			}
			out := make(map[string]any, len(n.Fields))
			for i, field := range n.Fields {
				parsed, err := d.decode(field, seq[i], join(path, field.Name), depth+1)
				if err != nil {
					return nil, err
				}
				out[field.Name] = parsed
			}
			return out, nil
		}
		if n.Elements != nil {
			out := make([]any, 0, len(seq))
			for i, elem := range seq {
				parsed, err := d.decode(n.Elements, elem, join(path, strconv.Itoa(i)), depth+1)
				if err != nil {
					return nil, err
				}
				out = append(out, parsed)
			}
			return out, nil
		}
		return nil, &DecodeError{Path: path, Reason: "array schema has neither fields nor elements"}

	case KindObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, &DecodeError{Path: path, Reason: fmt.Sprintf("expected an object, got %T", v)}
		}
		if n.Keys != nil {
			out := make(map[string]any, len(n.Keys))
			for _, key := range sortedKeys(n.Keys) {
				child := n.Keys[key]
				raw, present := obj[key]
				if present && truthy(raw) {
					parsed, err := d.decode(child, raw, join(path, key), depth+1)
					if err != nil {
						return nil, err
					}
					out[key] = parsed
				} else if !child.Optional {
					return nil, &DecodeError{Path: join(path, key), Reason: "required key missing"}
				}
			}
			return out, nil
		}
		if n.Elements != nil {
			out := make(map[string]any, len(obj))
			for key, raw := range obj {
				parsed, err := d.decode(n.Elements, raw, join(path, key), depth+1)
				if err != nil {
					return nil, err
				}
				out[key] = parsed
			}
			return out, nil
		}
		return nil, &DecodeError{Path: path, Reason: "object schema has neither keys nor elements"}

	case KindStruct:
		resolved, ok := d.structs[n.Struct]
		if !ok {
			return nil, &DecodeError{Path: path, Reason: fmt.Sprintf("unknown struct %q", n.Struct)}
		}
		return d.decode(resolved, v, path, depth+1)
	}

	return nil, &DecodeError{Path: path, Reason: fmt.Sprintf("unsupported type %q", n.tag())}
}

// truthy follows the wire protocol's loose boolean semantics: null, false,
// zero and the empty string are false, everything else is true.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case float64:
		return x != 0
	case float32:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case int32:
		return x != 0
	case uint:
		return x != 0
	case uint64:
		return x != 0
	case uint32:
		return x != 0
	}
	return true
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case string:
		return decimal.NewFromString(x)
	case json.Number:
		return decimal.NewFromString(x.String())
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Decimal{}, fmt.Errorf("%v is not a finite number", x)
		}
		return decimal.NewFromFloat(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case decimal.Decimal:
		return x, nil
	}
	return decimal.Decimal{}, fmt.Errorf("cannot parse %T as a number", v)
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
