package order

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// quantity is a parsed amount or rate. Human quantities are written in whole
// tokens and still need scaling by the token's decimals.
type quantity struct {
	value decimal.Decimal
	human bool
}

// parseQuantity accepts Go numbers, decimal strings, json.Number,
// decimal.Decimal and *big.Int. Zero and empty values count as absent.
func parseQuantity(v any) (quantity, bool, error) {
	var q quantity
	switch x := v.(type) {
	case nil:
		return q, false, nil
	case decimal.Decimal:
		q.value = x
	case *decimal.Decimal:
		if x == nil {
			return q, false, nil
		}
		q.value = *x
	case *big.Int:
		if x == nil {
			return q, false, nil
		}
		q.value = decimal.NewFromBigInt(x, 0)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return q, false, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return q, false, fmt.Errorf("%q is not a number", x)
		}
		q.value, q.human = d, true
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return q, false, fmt.Errorf("%q is not a number", x)
		}
		q.value, q.human = d, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return q, false, fmt.Errorf("%v is not a finite number", x)
		}
		q.value, q.human = decimal.NewFromFloat(x), true
	case float32:
		if f := float64(x); math.IsNaN(f) || math.IsInf(f, 0) {
			return q, false, fmt.Errorf("%v is not a finite number", x)
		}
		q.value, q.human = decimal.NewFromFloat32(x), true
	case int:
		q.value, q.human = decimal.NewFromInt(int64(x)), true
	case int32:
		q.value, q.human = decimal.NewFromInt32(x), true
	case int64:
		q.value, q.human = decimal.NewFromInt(x), true
	case uint:
		q.value, q.human = fromUint64(uint64(x)), true
	case uint32:
		q.value, q.human = fromUint64(uint64(x)), true
	case uint64:
		q.value, q.human = fromUint64(x), true
	default:
		return q, false, fmt.Errorf("unsupported numeric type %T", v)
	}
	if q.value.IsZero() {
		return q, false, nil
	}
	return q, true, nil
}

// baseUnits parses an explicit buy or sell amount, which is always given in
// the token's smallest unit.
func baseUnits(name string, v any) (decimal.Decimal, bool, error) {
	q, ok, err := parseQuantity(v)
	if err != nil {
		return decimal.Zero, false, constructionErr(ErrInvalidAmount, "%s: %v", name, err)
	}
	if !ok {
		return decimal.Zero, false, nil
	}
	if q.value.IsNegative() || !q.value.IsInteger() {
		return decimal.Zero, false, constructionErr(ErrInvalidAmount, "%s %s is not a non-negative integer", name, q.value)
	}
	return q.value, true, nil
}

func fromUint64(u uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(u), 0)
}
