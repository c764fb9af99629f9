package condition

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/cast"
)

type operatorFunc func(args []any) (any, error)

var errDivisionByZero = errors.New("division by zero")

var operators = map[string]operatorFunc{
	"==": func(a []any) (any, error) {
		if err := arity("==", a, 2); err != nil {
			return nil, err
		}
		return Equal(a[0], a[1]), nil
	},
	"!=": func(a []any) (any, error) {
		if err := arity("!=", a, 2); err != nil {
			return nil, err
		}
		return !Equal(a[0], a[1]), nil
	},
	"<":  compareWith("<", func(c int) bool { return c < 0 }),
	"<=": compareWith("<=", func(c int) bool { return c <= 0 }),
	">":  compareWith(">", func(c int) bool { return c > 0 }),
	">=": compareWith(">=", func(c int) bool { return c >= 0 }),
	"+":  evalSum,
	"-": func(a []any) (any, error) {
		if err := arity("-", a, 2); err != nil {
			return nil, err
		}
		return arithmetic("-", a[0], a[1], func(x, y float64) float64 { return x - y }, func(x, y int64) int64 { return x - y })
	},
	"*": evalProduct,
	"/": func(a []any) (any, error) {
		if err := arity("/", a, 2); err != nil {
			return nil, err
		}
		x, okx := toNumber(a[0])
		y, oky := toNumber(a[1])
		if !okx || !oky {
			return nil, fmt.Errorf("operator '/' requires numbers, got %T and %T", a[0], a[1])
		}
		if y == 0 {
			return nil, errDivisionByZero
		}
		return x / y, nil
	},
	"!": func(a []any) (any, error) {
		if err := arity("!", a, 1); err != nil {
			return nil, err
		}
		return !Truthy(a[0]), nil
	},
	"and": func(a []any) (any, error) {
		for _, v := range a {
			if !Truthy(v) {
				return false, nil
			}
		}
		return true, nil
	},
	"or": func(a []any) (any, error) {
		for _, v := range a {
			if Truthy(v) {
				return true, nil
			}
		}
		return false, nil
	},
	"in":  evalIn,
	"max": extremum("max", 1),
	"min": extremum("min", -1),
}

func arity(op string, args []any, n int) error {
	if len(args) < n {
		return fmt.Errorf("operator '%s' expects %d arguments, got %d", op, n, len(args))
	}
	return nil
}

// Equal compares two values, treating numbers of different Go types as equal
// when they hold the same value. Bools compare as 0 and 1 against numbers.
func Equal(a, b any) bool {
	if x, ok := equalityNumber(a); ok {
		if y, ok := equalityNumber(b); ok {
			return x == y
		}
		return false
	}
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, exists := bv[k]
			if !exists || !Equal(v, w) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// compare orders numbers numerically and strings lexically.
func compare(a, b any) (int, error) {
	if x, ok := toNumber(a); ok {
		if y, ok := toNumber(b); ok {
			switch {
			case x < y:
				return -1, nil
			case x > y:
				return 1, nil
			}
			return 0, nil
		}
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func compareWith(op string, accept func(int) bool) operatorFunc {
	return func(a []any) (any, error) {
		if err := arity(op, a, 2); err != nil {
			return nil, err
		}
		c, err := compare(a[0], a[1])
		if err != nil {
			return nil, fmt.Errorf("operator '%s': %w", op, err)
		}
		return accept(c), nil
	}
}

func evalSum(a []any) (any, error) {
	var acc any = int64(0)
	for _, v := range a {
		next, err := arithmetic("+", acc, v, func(x, y float64) float64 { return x + y }, func(x, y int64) int64 { return x + y })
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

func evalProduct(a []any) (any, error) {
	var acc any = int64(1)
	for _, v := range a {
		next, err := arithmetic("*", acc, v, func(x, y float64) float64 { return x * y }, func(x, y int64) int64 { return x * y })
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

// arithmetic keeps integer results integral and promotes to float64 otherwise.
func arithmetic(op string, a, b any, onFloat func(x, y float64) float64, onInt func(x, y int64) int64) (any, error) {
	if isInteger(a) && isInteger(b) {
		return onInt(cast.ToInt64(a), cast.ToInt64(b)), nil
	}
	x, okx := toNumber(a)
	y, oky := toNumber(b)
	if !okx || !oky {
		return nil, fmt.Errorf("operator '%s' requires numbers, got %T and %T", op, a, b)
	}
	return onFloat(x, y), nil
}

func evalIn(a []any) (any, error) {
	if err := arity("in", a, 2); err != nil {
		return nil, err
	}
	needle, haystack := a[0], a[1]
	switch h := haystack.(type) {
	case []any:
		for _, item := range h {
			if Equal(needle, item) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := needle.(string)
		if !ok {
			return nil, fmt.Errorf("operator 'in' on a string requires a string, got %T", needle)
		}
		return strings.Contains(h, s), nil
	case map[string]any:
		_, ok := h[cast.ToString(needle)]
		return ok, nil
	case nil:
		return false, nil
	}
	return nil, fmt.Errorf("operator 'in' requires a list, string or map, got %T", haystack)
}

func extremum(op string, sign int) operatorFunc {
	return func(a []any) (any, error) {
		if len(a) == 1 {
			if list, ok := a[0].([]any); ok {
				a = list
			}
		}
		if len(a) == 0 {
			return nil, fmt.Errorf("operator '%s' requires at least one argument", op)
		}
		best := a[0]
		for _, v := range a[1:] {
			c, err := compare(v, best)
			if err != nil {
				return nil, fmt.Errorf("operator '%s': %w", op, err)
			}
			if c*sign > 0 {
				best = v
			}
		}
		return best, nil
	}
}

func isInteger(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

// toNumber accepts every Go numeric type. Booleans and strings are not numbers.
func toNumber(v any) (float64, bool) {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		f, err := cast.ToFloat64E(v)
		return f, err == nil
	}
	return 0, false
}

// equalityNumber is toNumber plus bools as 0 and 1, so true equals 1.
func equalityNumber(v any) (float64, bool) {
	if b, ok := v.(bool); ok {
		if b {
			return 1, true
		}
		return 0, true
	}
	return toNumber(v)
}
