package state

import (
	"fmt"
	"sort"

	"github.com/aretw0/arbor/pkg/domain"
)

// Reducers accepted by Initial.
const (
	ReducerDeepMerge = "deepmerge"
	ReducerReplace   = "replace"
)

// Initial builds the state for a new run. Keys declared in shape but absent
// from init start as nil. Every required input must be present in inputs, and
// only required inputs are folded into the state.
func Initial(init, shape map[string]any, required []string, reducer string, inputs map[string]any) (map[string]any, error) {
	st := CopyMap(init)
	for k := range shape {
		if _, ok := st[k]; !ok {
			st[k] = nil
		}
	}

	var missing []string
	provided := make(map[string]any, len(required))
	for _, name := range required {
		v, ok := inputs[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		provided[name] = v
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, domain.NewConfigError("missing required inputs for graph '%s': %v", domain.RootGraphName, missing)
	}

	switch reducer {
	case "", ReducerDeepMerge:
		return MergeMaps(st, provided), nil
	case ReducerReplace:
		for k, v := range provided {
			st[k] = DeepCopy(v)
		}
		return st, nil
	default:
		return nil, domain.NewConfigError("unsupported state reducer '%s'", reducer)
	}
}

// RenderFunc resolves template expressions inside a value tree.
type RenderFunc func(v any) (any, error)

// ApplyMap executes a map directive against st in place: set, then merge, then delete.
func ApplyMap(st map[string]any, op *domain.MapOperation, render RenderFunc) error {
	if op.Empty() {
		return nil
	}

	if len(op.Set) > 0 {
		values, err := renderMap(op.Set, render)
		if err != nil {
			return fmt.Errorf("map set: %w", err)
		}
		for k, v := range values {
			st[k] = v
		}
	}

	if len(op.Merge) > 0 {
		values, err := renderMap(op.Merge, render)
		if err != nil {
			return fmt.Errorf("map merge: %w", err)
		}
		for k, v := range values {
			st[k] = DeepMerge(st[k], v)
		}
	}

	for _, k := range op.Delete {
		key := any(k)
		if render != nil {
			var err error
			if key, err = render(k); err != nil {
				return fmt.Errorf("map delete: %w", err)
			}
		}
		delete(st, fmt.Sprint(key))
	}
	return nil
}

func renderMap(m map[string]any, render RenderFunc) (map[string]any, error) {
	if render == nil {
		return CopyMap(m), nil
	}
	out, err := render(m)
	if err != nil {
		return nil, err
	}
	rendered, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("rendered directive is %T, not a map", out)
	}
	return rendered, nil
}
