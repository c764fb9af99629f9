package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/arbor/pkg/condition"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/llm"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/state"
)

// execute dispatches n to its executor. With traverse off no edge is evaluated,
// which is how loop bodies run.
func (e *Engine) execute(ctx context.Context, rc *runContext, f *frame, n *domain.Node, traverse bool) (bool, map[string]any, []string, error) {
	switch n.Kind {
	case domain.KindTool:
		return e.execTool(ctx, rc, f, n, traverse)
	case domain.KindLLM:
		return e.execLLM(ctx, rc, f, n, traverse)
	case domain.KindRouter:
		return e.execRouter(f, n, traverse)
	case domain.KindLoop:
		return e.execLoop(ctx, rc, f, n, traverse)
	case domain.KindSubgraph:
		return e.execSubgraph(ctx, rc, f, n, traverse)
	case domain.KindNoop:
		return e.execNoop(f, n, traverse)
	}
	return false, nil, nil, domain.NewConfigError("unsupported node type '%s'", n.Kind)
}

// succeed applies the map directive and collects the next nodes.
func (e *Engine) succeed(f *frame, n *domain.Node, result map[string]any, traverse bool) (bool, map[string]any, []string, error) {
	if err := e.applyMap(f, f.inputs, n, result); err != nil {
		return false, nil, nil, err
	}
	if !traverse {
		return true, result, nil, nil
	}
	next, err := e.edgeTargets(f, n, result)
	if err != nil {
		return false, nil, nil, err
	}
	return true, result, next, nil
}

func (e *Engine) execTool(ctx context.Context, rc *runContext, f *frame, n *domain.Node, traverse bool) (bool, map[string]any, []string, error) {
	handle, ok := e.tools[n.Uses]
	if !ok {
		return false, nil, nil, domain.NewConfigError("tool '%s' not registered", n.Uses)
	}
	fn := handle.Func
	if override, ok := rc.overrides[handle.ID]; ok {
		fn = override
	}

	rendered, err := e.renderInputs(f, n)
	if err != nil {
		return false, nil, nil, err
	}
	payload := state.CopyMap(handle.Config)
	for k, v := range rendered {
		payload[k] = v
	}

	timeout := ResolveTimeout(n, handle, e.defaults)
	if timeout != nil {
		if _, ok := payload[domain.KeyTimeout]; !ok {
			payload[domain.KeyTimeout] = timeout.Seconds
		}
	}
	retry := ResolveRetry(n, handle, e.defaults)
	attempts := retry.Attempts()

	var last map[string]any
	for attempt := 1; attempt <= attempts; attempt++ {
		e.emitCall(ctx, rc, f, e.hooks.OnToolCall, domain.EventToolCall, n.ID, handle.ID, attempt, payload)
		start := time.Now()
		out, err := callTool(ctx, fn, state.CopyMap(payload), timeout)

		if err != nil {
			last = map[string]any{domain.KeyException: err}
			e.emitReturn(ctx, rc, f, e.hooks.OnToolReturn, domain.EventToolReturn, n.ID, handle.ID, attempt, err.Error(), true, time.Since(start))
		} else {
			failed := condition.Truthy(out[domain.KeyError])
			e.emitReturn(ctx, rc, f, e.hooks.OnToolReturn, domain.EventToolReturn, n.ID, handle.ID, attempt, out, failed, time.Since(start))
			if !failed {
				return e.succeed(f, n, out, traverse)
			}
			last = out
		}

		rc.logger.Debug("tool attempt failed", "node_id", n.ID, "tool", handle.ID, "attempt", attempt, "max_attempts", attempts)
		if attempt < attempts {
			if err := llm.Sleep(ctx, retry.Backoff); err != nil {
				return false, nil, nil, err
			}
		}
	}
	return false, last, nil, nil
}

// callTool runs fn under the resolved timeout and normalizes its output.
// A panic is reported as an error.
func callTool(ctx context.Context, fn registry.ToolFunction, args map[string]any, timeout *domain.Timeout) (out map[string]any, err error) {
	if timeout != nil && timeout.Seconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, llm.Seconds(timeout.Seconds))
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()

	raw, err := fn(ctx, args)
	if err != nil {
		return nil, err
	}
	return domain.NormalizeOutput(raw), nil
}

func (e *Engine) execLLM(ctx context.Context, rc *runContext, f *frame, n *domain.Node, traverse bool) (bool, map[string]any, []string, error) {
	if rc.client == nil {
		return false, nil, nil, domain.NewConfigError("llm node '%s' requires an llm client or llm function", n.ID)
	}
	prompt, err := e.renderPrompt(f, n)
	if err != nil {
		return false, nil, nil, err
	}

	retry := ResolveRetry(n, nil, e.defaults)
	timeout := ResolveTimeout(n, nil, e.defaults)

	e.emitCall(ctx, rc, f, e.hooks.OnLLMCall, domain.EventLLMCall, n.ID, n.Prompt, 1, prompt)
	start := time.Now()
	resp, err := rc.client.Generate(ctx, n, prompt, &retry, timeout)
	if err != nil {
		e.emitReturn(ctx, rc, f, e.hooks.OnLLMReturn, domain.EventLLMReturn, n.ID, n.Prompt, 1, err.Error(), true, time.Since(start))
		return false, map[string]any{domain.KeyException: err}, nil, nil
	}
	if resp == nil {
		resp = map[string]any{}
	}
	failed := condition.Truthy(resp[domain.KeyError])
	e.emitReturn(ctx, rc, f, e.hooks.OnLLMReturn, domain.EventLLMReturn, n.ID, n.Prompt, 1, resp, failed, time.Since(start))
	if failed {
		return false, resp, nil, nil
	}
	return e.succeed(f, n, resp, traverse)
}

// execRouter activates every case that holds, then the default, then the
// node's own guarded edges. It always succeeds.
func (e *Engine) execRouter(f *frame, n *domain.Node, traverse bool) (bool, map[string]any, []string, error) {
	cctx := conditionContext(f, n, nil)
	var targets []string
	for _, c := range n.Cases {
		ok, err := condition.EvaluateBool(c.When, cctx)
		if err != nil {
			return false, nil, nil, err
		}
		if ok {
			targets = append(targets, c.To)
		}
	}
	if len(targets) == 0 && n.Default != "" {
		targets = append(targets, n.Default)
	}
	if len(targets) == 0 && traverse {
		next, err := e.edgeTargets(f, n, nil)
		if err != nil {
			return false, nil, nil, err
		}
		targets = next
	}

	list := make([]any, len(targets))
	for i, t := range targets {
		list[i] = t
	}
	return true, map[string]any{domain.KeyTargets: list}, targets, nil
}

// execLoop runs the body until the until condition holds. Running out of
// iterations is fatal, including when no until condition is declared.
func (e *Engine) execLoop(ctx context.Context, rc *runContext, f *frame, n *domain.Node, traverse bool) (bool, map[string]any, []string, error) {
	body, ok := f.graph.Node(n.Body)
	if !ok {
		return false, nil, nil, domain.NewConfigError("loop node '%s' references unknown body '%s'", n.ID, n.Body)
	}
	limit := n.MaxIterations
	if limit <= 0 {
		limit = domain.DefaultMaxIterations
	}

	var last map[string]any
	converged := false
	for i := 0; i < limit && !converged; i++ {
		ok, out, err := e.runBody(ctx, rc, f, body)
		if err != nil {
			if domain.IsFatal(err) {
				return false, nil, nil, err
			}
			return false, map[string]any{domain.KeyException: err}, nil, nil
		}
		if !ok {
			return false, out, nil, nil
		}
		last = out

		if n.Until != nil {
			converged, err = condition.EvaluateBool(n.Until, conditionContext(f, n, out))
			if err != nil {
				return false, nil, nil, err
			}
		}
	}
	if !converged {
		return false, nil, nil, domain.NewRunError(domain.ErrLoopExhausted, "loop node '%s' ran %d iterations", n.ID, limit)
	}

	if !traverse {
		return true, last, nil, nil
	}
	next, err := e.edgeTargets(f, n, last)
	if err != nil {
		return false, nil, nil, err
	}
	return true, last, next, nil
}

// runBody executes one loop iteration between its own node events, so calls
// made by the body are attributed to the body node.
func (e *Engine) runBody(ctx context.Context, rc *runContext, f *frame, body *domain.Node) (bool, map[string]any, error) {
	var before map[string]any
	if e.hooks.OnNodeLeave != nil {
		before = state.CopyMap(f.state)
	}
	start := time.Now()
	e.emitNodeEnter(ctx, rc, f, body)
	ok, out, _, err := e.execute(ctx, rc, f, body, false)
	e.emitNodeLeave(ctx, rc, f, body, ok && err == nil, nil, before, time.Since(start))
	return ok, out, err
}

// execSubgraph runs the named graph on a deep copy of the state and merges
// the result back into the parent state in place.
func (e *Engine) execSubgraph(ctx context.Context, rc *runContext, f *frame, n *domain.Node, traverse bool) (bool, map[string]any, []string, error) {
	sub, ok := e.subgraphs[n.Graph]
	if !ok {
		return false, nil, nil, domain.NewConfigError("subgraph '%s' not registered", n.Graph)
	}

	rendered, err := e.renderInputs(f, n)
	if err != nil {
		return false, nil, nil, err
	}
	subInputs := state.CopyMap(f.inputs)
	subState := state.DeepCopy(f.state).(map[string]any)
	for k, v := range rendered {
		subInputs[k] = v
		subState[k] = v
	}

	child := &frame{graph: sub, state: subState, inputs: subInputs, depth: f.depth + 1}
	if err := e.runGraph(ctx, rc, child); err != nil {
		var nodeErr *domain.NodeExecutionError
		if errors.As(err, &nodeErr) {
			return false, map[string]any{domain.KeyException: err}, nil, nil
		}
		return false, nil, nil, err
	}

	state.Replace(f.state, state.MergeMaps(f.state, subState))

	outputs := make(map[string]any, len(sub.Outputs))
	for _, name := range sub.Outputs {
		outputs[name] = subState[name]
	}
	result := map[string]any{
		domain.KeyState:   subState,
		domain.KeyOutputs: outputs,
	}

	parent := &frame{graph: f.graph, state: f.state, inputs: subInputs, depth: f.depth}
	return e.succeed(parent, n, result, traverse)
}

func (e *Engine) execNoop(f *frame, n *domain.Node, traverse bool) (bool, map[string]any, []string, error) {
	return e.succeed(f, n, map[string]any{}, traverse)
}
