package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/shopspring/decimal"
)

var hexStringRe = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)

// Validate checks params against the method schema and returns the first
// violation as a *ValidationError. Declared keys are checked in sorted order
// so the reported violation is deterministic. params is never modified.
func Validate(m Method, params map[string]any) error {
	for _, key := range sortedKeys(m) {
		check := m[key]
		val, present := params[key]
		if !present || val == nil {
			if !check.Optional {
				return &ValidationError{Key: key, Reason: "parameter is required", Err: ErrMissingParameter}
			}
			continue
		}
		if err := checkType(key, check, val); err != nil {
			return err
		}
		if err := checkLength(key, check, val); err != nil {
			return err
		}
	}

	for key := range params {
		if _, ok := m[key]; ok || key == MethodKey || key == RequestIDKey {
			continue
		}
		expected := "none for this command"
		if len(m) > 0 {
			expected = strings.Join(sortedKeys(m), ", ")
		}
		return &ValidationError{
			Key:    key,
			Reason: fmt.Sprintf("expected parameters are: %s", expected),
			Err:    ErrUnexpectedParameter,
		}
	}
	return nil
}

func checkType(key string, check *Node, val any) error {
	malformed := func(expected string) error {
		return &ValidationError{Key: key, Reason: "expected " + expected, Err: ErrMalformedParameter}
	}

	switch check.Kind {
	case KindUint:
		if !isUnsignedInteger(val) {
			return malformed("an unsigned integer")
		}
	case KindUintString:
		if !isUnsignedIntegerString(val) {
			return malformed("an unsigned integer wrapped in a string (to prevent rounding errors)")
		}
	case KindBool:
		if _, ok := val.(bool); !ok {
			return malformed("a boolean")
		}
	case KindString:
		if _, ok := val.(string); !ok {
			return malformed("a string")
		}
	case KindHexString:
		s, ok := val.(string)
		if !ok || !hexStringRe.MatchString(s) {
			return malformed("a hex string (with leading 0x)")
		}
	case KindArray:
		rv := reflect.ValueOf(val)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return malformed("an array")
		}
		if check.Elements != nil {
			for i := 0; i < rv.Len(); i++ {
				elemKey := fmt.Sprintf("%s[%d]", key, i)
				wrapper := Method{elemKey: check.Elements}
				if err := Validate(wrapper, map[string]any{elemKey: rv.Index(i).Interface()}); err != nil {
					return err
				}
			}
		}
	default:
		return &ValidationError{Key: key, Reason: fmt.Sprintf("type %q", check.tag()), Err: ErrUnimplementedType}
	}
	return nil
}

// checkLength applies the declared length bounds. A bound of zero counts as
// undeclared. Strings are measured in UTF-16 code units, the unit the
// exchange counts in.
func checkLength(key string, check *Node, val any) error {
	n, hasLength := lengthOf(val)
	malformed := func(bound string, want int) error {
		got := "input has no length"
		if hasLength {
			got = fmt.Sprintf("input has length %d", n)
		}
		return &ValidationError{
			Key:    key,
			Reason: fmt.Sprintf("expected a length of %s%d, %s", bound, want, got),
			Err:    ErrMalformedParameter,
		}
	}
	if want := declared(check.Length); want > 0 && (!hasLength || n != want) {
		return malformed("", want)
	}
	if want := declared(check.MinLength); want > 0 && hasLength && n < want {
		return malformed("at least ", want)
	}
	if want := declared(check.MaxLength); want > 0 && hasLength && n > want {
		return malformed("at most ", want)
	}
	return nil
}

func declared(bound *int) int {
	if bound == nil {
		return 0
	}
	return *bound
}

func lengthOf(val any) (int, bool) {
	if s, ok := val.(string); ok {
		return len(utf16.Encode([]rune(s))), true
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return rv.Len(), true
	}
	return 0, false
}

func isUnsignedInteger(val any) bool {
	switch v := val.(type) {
	case int:
		return v >= 0
	case int8:
		return v >= 0
	case int16:
		return v >= 0
	case int32:
		return v >= 0
	case int64:
		return v >= 0
	case uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		return isWholeNonNegative(float64(v))
	case float64:
		return isWholeNonNegative(v)
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return err == nil && d.IsInteger() && !d.IsNegative()
	}
	return false
}

func isWholeNonNegative(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && f >= 0 && f == math.Trunc(f)
}

// isUnsignedIntegerString accepts anything whose decimal form is a
// non-negative integer. Integral Go numbers and big values qualify too.
func isUnsignedIntegerString(val any) bool {
	switch v := val.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		return err == nil && d.IsInteger() && !d.IsNegative()
	case decimal.Decimal:
		return v.IsInteger() && !v.IsNegative()
	case *big.Int:
		return v != nil && v.Sign() >= 0
	}
	return isUnsignedInteger(val)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
