package render

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

var identifier = regexp.MustCompile(`^[_a-zA-Z][_a-zA-Z0-9]*$`)

var reserved = map[string]bool{
	"true": true, "false": true, "null": true, "in": true,
	"as": true, "break": true, "const": true, "continue": true, "else": true,
	"for": true, "function": true, "if": true, "import": true, "let": true,
	"loop": true, "package": true, "namespace": true, "return": true,
	"var": true, "void": true, "while": true,
}

// evaluator caches CEL environments per variable set and programs per expression.
type evaluator struct {
	mu       sync.RWMutex
	envs     map[string]*celgo.Env
	programs map[string]celgo.Program
}

func newEvaluator() *evaluator {
	return &evaluator{
		envs:     make(map[string]*celgo.Env),
		programs: make(map[string]celgo.Program),
	}
}

// variables returns the context keys usable as CEL identifiers, sorted.
func variables(ctx map[string]any) []string {
	names := make([]string, 0, len(ctx))
	for k := range ctx {
		if identifier.MatchString(k) && !reserved[k] {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

func (e *evaluator) env(names []string) (*celgo.Env, string, error) {
	key := strings.Join(names, ",")

	e.mu.RLock()
	env, ok := e.envs[key]
	e.mu.RUnlock()
	if ok {
		return env, key, nil
	}

	opts := make([]celgo.EnvOption, 0, len(names))
	for _, n := range names {
		opts = append(opts, celgo.Variable(n, celgo.DynType))
	}
	env, err := celgo.NewEnv(opts...)
	if err != nil {
		return nil, "", fmt.Errorf("cel environment: %w", err)
	}

	e.mu.Lock()
	e.envs[key] = env
	e.mu.Unlock()
	return env, key, nil
}

func (e *evaluator) program(expr string, names []string) (celgo.Program, error) {
	env, envKey, err := e.env(names)
	if err != nil {
		return nil, err
	}
	key := envKey + "\x00" + expr

	e.mu.RLock()
	prg, ok := e.programs[key]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := env.Parse(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel parse error: %w", issues.Err())
	}
	ast, issues = env.Check(ast)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel type-check error: %w", issues.Err())
	}
	prg, err = env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program build error: %w", err)
	}

	e.mu.Lock()
	e.programs[key] = prg
	e.mu.Unlock()
	return prg, nil
}

func (e *evaluator) eval(expr string, ctx map[string]any) (any, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("cel: expression is empty")
	}

	names := variables(ctx)
	prg, err := e.program(expr, names)
	if err != nil {
		return nil, err
	}

	activation := make(map[string]any, len(names))
	for _, n := range names {
		activation[n] = ctx[n]
	}
	out, _, err := prg.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("cel eval error in %q: %w", expr, err)
	}
	return normalizeCELValue(out), nil
}

// normalizeCELValue converts CEL results into JSON-like Go values.
func normalizeCELValue(v any) any {
	if _, ok := v.(types.Null); ok {
		return nil
	}
	if rv, ok := v.(ref.Val); ok {
		return normalizeCELValue(rv.Value())
	}
	if v == nil {
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := fmt.Sprint(normalizeCELValue(iter.Key().Interface()))
			out[k] = normalizeCELValue(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalizeCELValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return v
	default:
		return v
	}
}
