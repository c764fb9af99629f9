package runtime

import (
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/render"
	"github.com/aretw0/arbor/pkg/state"
)

// renderStructure resolves templated strings inside v against the frame.
// Render errors are node failures, so the node's on_error policy applies.
func (e *Engine) renderStructure(f *frame, inputs map[string]any, v any, result any) (any, error) {
	out, err := e.renderer.Structure(v, render.Context(f.state, inputs, result))
	if err != nil {
		return nil, fmt.Errorf("render failed: %w", err)
	}
	return out, nil
}

func (e *Engine) renderInputs(f *frame, n *domain.Node) (map[string]any, error) {
	if len(n.Inputs) == 0 {
		return map[string]any{}, nil
	}
	out, err := e.renderStructure(f, f.inputs, n.Inputs, nil)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

// renderPrompt renders every role of the node's template.
func (e *Engine) renderPrompt(f *frame, n *domain.Node) (map[string]string, error) {
	roles, err := e.renderer.Roles(n.Prompt)
	if err != nil {
		return nil, domain.NewConfigError("llm node '%s': %w", n.ID, err)
	}
	ctx := render.Context(f.state, f.inputs, nil)
	prompt := make(map[string]string, len(roles))
	for _, role := range roles {
		text, err := e.renderer.Render(n.Prompt, role, ctx)
		if err != nil {
			return nil, fmt.Errorf("llm node '%s': prompt render failed: %w", n.ID, err)
		}
		prompt[role] = text
	}
	return prompt, nil
}

// applyMap runs the node's map directive with result bound in the context.
func (e *Engine) applyMap(f *frame, inputs map[string]any, n *domain.Node, result any) error {
	if n.Map.Empty() {
		return nil
	}
	return state.ApplyMap(f.state, n.Map, func(v any) (any, error) {
		return e.renderStructure(f, inputs, v, result)
	})
}
