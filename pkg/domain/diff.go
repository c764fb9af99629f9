package domain

import (
	"reflect"
)

// Diff calculates the keys that changed between two snapshots of the run state.
// Added or modified keys carry their new value; deleted keys are present with a nil value.
// If old is nil, every key in new is part of the delta. It returns nil when nothing changed.
func Diff(old, new map[string]any) map[string]any {
	delta := make(map[string]any)

	if old == nil {
		for k, v := range new {
			delta[k] = v
		}
		if len(delta) == 0 {
			return nil
		}
		return delta
	}

	// Added or modified
	for k, newVal := range new {
		oldVal, exists := old[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	// Deletions
	for k := range old {
		if _, exists := new[k]; !exists {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}
