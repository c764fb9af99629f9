package runtime

import (
	"github.com/aretw0/arbor/pkg/schema"
)

// validateState checks the final state against the declared shape when the
// engine was built with a state schema.
func (e *Engine) validateState(st map[string]any) error {
	if len(e.schema) == 0 {
		return nil
	}
	return schema.Validate(e.schema, st)
}
