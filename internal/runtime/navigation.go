package runtime

import (
	"github.com/aretw0/arbor/pkg/condition"
	"github.com/aretw0/arbor/pkg/domain"
)

// conditionContext is what edge guards, router cases and loop conditions see.
func conditionContext(f *frame, n *domain.Node, result any) map[string]any {
	return map[string]any{
		domain.KeyState:  f.state,
		domain.KeyInputs: f.inputs,
		domain.KeyResult: result,
		domain.KeyOutput: result,
		domain.KeyNode:   map[string]any{"id": n.ID, "type": string(n.Kind)},
	}
}

// edgeTargets returns the targets of n's outgoing edges whose guard holds,
// in declaration order.
func (e *Engine) edgeTargets(f *frame, n *domain.Node, result any) ([]string, error) {
	var targets []string
	for _, edge := range f.graph.EdgesBySource[n.ID] {
		if edge.When != nil {
			ok, err := condition.EvaluateBool(edge.When, conditionContext(f, n, result))
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		targets = append(targets, edge.To)
	}
	return targets, nil
}

// handleError applies n's on_error policy to a failure payload. Without a
// policy the failure aborts the run as a NodeExecutionError.
func (e *Engine) handleError(f *frame, n *domain.Node, payload map[string]any) ([]string, error) {
	if n.OnError == nil {
		nodeErr := &domain.NodeExecutionError{
			NodeID: n.ID,
			Kind:   n.Kind,
			Prompt: n.Prompt,
			Tool:   n.Uses,
		}
		if condition.Truthy(payload[domain.KeyError]) {
			nodeErr.Detail = payload[domain.KeyError]
		}
		if err, ok := payload[domain.KeyException].(error); ok {
			nodeErr.Exception = err
		}
		return nil, nodeErr
	}

	var targets []string
	if n.OnError.To != "" {
		targets = append(targets, n.OnError.To)
	}
	if n.OnError.Resume {
		next, err := e.edgeTargets(f, n, payload)
		if err != nil {
			return nil, err
		}
		targets = append(targets, next...)
	}
	return targets, nil
}
