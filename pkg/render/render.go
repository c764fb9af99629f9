// Package render resolves templated values against the run context.
//
// Templates use {{ expr }} delimiters around CEL expressions. A string made of a
// single expression evaluates to the native value of that expression, so numbers
// and lists stay typed. Any other string renders to text. Partials are
// referenced with {{> name }} and expanded before evaluation.
package render

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

const maxPartialDepth = 8

var partialRef = regexp.MustCompile(`\{\{>\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Renderer renders prompt templates and value trees.
// It is safe for concurrent use.
type Renderer struct {
	templates map[string]Template
	partials  map[string]string
	eval      *evaluator
}

// New creates a Renderer over the named templates and partials.
func New(templates map[string]Template, partials map[string]string) *Renderer {
	if templates == nil {
		templates = map[string]Template{}
	}
	if partials == nil {
		partials = map[string]string{}
	}
	return &Renderer{templates: templates, partials: partials, eval: newEvaluator()}
}

// Context builds the render context: state keys flattened at the top level,
// then state, inputs, output and result.
func Context(state, inputs map[string]any, result any) map[string]any {
	ctx := make(map[string]any, len(state)+4)
	for k, v := range state {
		ctx[k] = v
	}
	if state == nil {
		state = map[string]any{}
	}
	if inputs == nil {
		inputs = map[string]any{}
	}
	ctx[domain.KeyState] = state
	ctx[domain.KeyInputs] = inputs
	ctx[domain.KeyOutput] = result
	ctx[domain.KeyResult] = result
	return ctx
}

// Template returns a named template.
func (r *Renderer) Template(name string) (Template, bool) {
	t, ok := r.templates[name]
	return t, ok
}

// Roles lists a template's roles in prompt order.
func (r *Renderer) Roles(name string) ([]string, error) {
	t, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown prompt template '%s'", name)
	}
	return t.Roles(), nil
}

// Render renders one role of a named template to text.
func (r *Renderer) Render(name, role string, ctx map[string]any) (string, error) {
	t, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt template '%s'", name)
	}
	src, ok := t.Source(role)
	if !ok {
		return "", fmt.Errorf("prompt template '%s' has no role '%s'", name, role)
	}
	out, err := r.RenderString(src, ctx)
	if err != nil {
		return "", fmt.Errorf("prompt '%s' role '%s': %w", name, role, err)
	}
	return out, nil
}

// RenderString renders src to text.
func (r *Renderer) RenderString(src string, ctx map[string]any) (string, error) {
	expanded, err := r.expandPartials(src, 0)
	if err != nil {
		return "", err
	}
	return r.renderText(expanded, ctx)
}

// Evaluate evaluates a single expression, with or without delimiters.
func (r *Renderer) Evaluate(expr string, ctx map[string]any) (any, error) {
	if inner, ok := wholeExpression(expr); ok {
		expr = inner
	}
	return r.eval.eval(expr, ctx)
}

// Structure resolves every templated string inside a value tree.
// Map keys are left untouched.
func (r *Renderer) Structure(v any, ctx map[string]any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			rendered, err := r.Structure(item, ctx)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			rendered, err := r.Structure(item, ctx)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = rendered
		}
		return out, nil
	case string:
		return r.Value(val, ctx)
	default:
		return v, nil
	}
}

// Value renders a single string: a whole-string expression yields its native
// value, anything else yields text.
func (r *Renderer) Value(src string, ctx map[string]any) (any, error) {
	if !strings.Contains(src, "{{") {
		return src, nil
	}
	expanded, err := r.expandPartials(src, 0)
	if err != nil {
		return nil, err
	}
	if inner, ok := wholeExpression(expanded); ok {
		return r.eval.eval(inner, ctx)
	}
	return r.renderText(expanded, ctx)
}

func (r *Renderer) expandPartials(src string, depth int) (string, error) {
	if !strings.Contains(src, "{{>") {
		return src, nil
	}
	if depth >= maxPartialDepth {
		return "", fmt.Errorf("partials nested deeper than %d", maxPartialDepth)
	}

	var missing string
	out := partialRef.ReplaceAllStringFunc(src, func(m string) string {
		name := partialRef.FindStringSubmatch(m)[1]
		body, ok := r.partials[name]
		if !ok {
			missing = name
			return m
		}
		return body
	})
	if missing != "" {
		return "", fmt.Errorf("unknown partial '%s'", missing)
	}
	return r.expandPartials(out, depth+1)
}

func (r *Renderer) renderText(src string, ctx map[string]any) (string, error) {
	var b strings.Builder
	rest := src
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start+2:], "}}")
		if end < 0 {
			return "", fmt.Errorf("unterminated expression in %q", src)
		}
		b.WriteString(rest[:start])

		expr := rest[start+2 : start+2+end]
		v, err := r.eval.eval(expr, ctx)
		if err != nil {
			return "", err
		}
		b.WriteString(Stringify(v))
		rest = rest[start+2+end+2:]
	}
	return b.String(), nil
}

// wholeExpression reports whether s is exactly one {{ expr }} block.
func wholeExpression(s string) (string, bool) {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "{{") || !strings.HasSuffix(t, "}}") || strings.HasPrefix(t, "{{>") {
		return "", false
	}
	inner := t[2 : len(t)-2]
	if strings.Contains(inner, "{{") || strings.Contains(inner, "}}") {
		return "", false
	}
	return strings.TrimSpace(inner), true
}

// Stringify converts an expression value to template text.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
