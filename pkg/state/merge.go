// Package state holds the run state helpers: deep merge and copy, initial state
// construction and the map directive applied after each node.
package state

// DeepMerge combines base and incoming without mutating either.
// Maps merge key-wise and recursively, slices concatenate, and for any other
// combination incoming wins. A nil side yields a copy of the other.
func DeepMerge(base, incoming any) any {
	if base == nil {
		return DeepCopy(incoming)
	}
	if incoming == nil {
		return DeepCopy(base)
	}

	if bm, ok := base.(map[string]any); ok {
		if im, ok := incoming.(map[string]any); ok {
			return MergeMaps(bm, im)
		}
	}
	if bl, ok := base.([]any); ok {
		if il, ok := incoming.([]any); ok {
			out := make([]any, 0, len(bl)+len(il))
			for _, v := range bl {
				out = append(out, DeepCopy(v))
			}
			for _, v := range il {
				out = append(out, DeepCopy(v))
			}
			return out
		}
	}
	return DeepCopy(incoming)
}

// MergeMaps is DeepMerge specialised to maps.
func MergeMaps(base, incoming map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(incoming))
	for k, v := range base {
		out[k] = DeepCopy(v)
	}
	for k, v := range incoming {
		if existing, ok := out[k]; ok {
			out[k] = DeepMerge(existing, v)
			continue
		}
		out[k] = DeepCopy(v)
	}
	return out
}

// DeepCopy clones maps and slices recursively. Other values are returned as is.
func DeepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = DeepCopy(item)
		}
		return out
	default:
		return v
	}
}

// CopyMap deep-copies a map. A nil map yields an empty one.
func CopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = DeepCopy(v)
	}
	return out
}

// Replace swaps the contents of dst for those of src, keeping dst's identity.
func Replace(dst, src map[string]any) {
	for k := range dst {
		delete(dst, k)
	}
	for k, v := range src {
		dst[k] = v
	}
}
