// Package condition evaluates the JSON-logic subset used by edge guards,
// router cases and loop termination checks.
//
// An expression is a tree of plain values. A map with exactly one key is an
// operator application; every other value evaluates to itself. Evaluation is a
// recursive walk over that tree and never executes arbitrary code.
package condition

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// Evaluate resolves expr against ctx.
func Evaluate(expr any, ctx map[string]any) (any, error) {
	switch e := expr.(type) {
	case map[string]any:
		return evaluateOperator(e, ctx)
	case []any:
		out := make([]any, len(e))
		for i, item := range e {
			v, err := Evaluate(item, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return expr, nil
	}
}

// EvaluateBool resolves expr and reports its truthiness.
// Failures are wrapped as configuration errors.
func EvaluateBool(expr any, ctx map[string]any) (bool, error) {
	v, err := Evaluate(expr, ctx)
	if err != nil {
		return false, domain.NewConfigError("failed to evaluate condition %v: %w", expr, err)
	}
	return Truthy(v), nil
}

func evaluateOperator(expr map[string]any, ctx map[string]any) (any, error) {
	if len(expr) != 1 {
		return nil, fmt.Errorf("invalid expression %v: expected exactly one operator", expr)
	}

	var op string
	var arg any
	for k, v := range expr {
		op, arg = k, v
	}

	if op == "var" {
		path, def := arg, any(nil)
		if list, ok := arg.([]any); ok {
			if len(list) == 0 {
				path = ""
			} else {
				path = list[0]
			}
			if len(list) > 1 {
				def = list[1]
			}
		}
		return Lookup(ctx, path, def), nil
	}

	fn, ok := operators[op]
	if !ok {
		return nil, fmt.Errorf("unsupported operator '%s'", op)
	}

	raw, ok := arg.([]any)
	if !ok {
		raw = []any{arg}
	}
	args := make([]any, len(raw))
	for i, item := range raw {
		v, err := Evaluate(item, ctx)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return fn(args)
}

// Lookup resolves a dotted path inside ctx. A non-string path is returned as is;
// an empty path or "var" yields the whole context; a missing segment yields def.
func Lookup(ctx map[string]any, path any, def any) any {
	p, ok := path.(string)
	if !ok {
		return path
	}
	if p == "" || p == "var" {
		return ctx
	}

	var current any = ctx
	for _, part := range strings.Split(p, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return def
		}
		next, exists := m[part]
		if !exists {
			return def
		}
		current = next
	}
	return current
}

// Truthy follows the usual dynamic-language rules: nil, false, zero numbers,
// empty strings and empty collections are false.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	}
	if f, ok := toNumber(v); ok {
		return f != 0
	}
	return true
}
