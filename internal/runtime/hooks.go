package runtime

import (
	"context"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
)

func (e *Engine) base(rc *runContext, f *frame, t domain.EventType) domain.EventBase {
	b := domain.EventBase{Timestamp: time.Now(), Type: t, RunID: rc.id, Graph: e.root.Name}
	if f != nil {
		b.Graph = f.graph.Name
		b.Depth = f.depth
	}
	return b
}

func (e *Engine) emitRunStart(ctx context.Context, rc *runContext, inputs map[string]any) {
	if e.hooks.OnRunStart == nil {
		return
	}
	e.hooks.OnRunStart(ctx, &domain.RunEvent{EventBase: e.base(rc, nil, domain.EventRunStart), Inputs: inputs})
}

func (e *Engine) emitRunEnd(ctx context.Context, rc *runContext, st map[string]any, err error, d time.Duration) {
	if e.hooks.OnRunEnd == nil {
		return
	}
	e.hooks.OnRunEnd(ctx, &domain.RunEvent{
		EventBase: e.base(rc, nil, domain.EventRunEnd),
		State:     st,
		Steps:     rc.steps,
		Err:       err,
		Duration:  d,
	})
}

func (e *Engine) emitNodeEnter(ctx context.Context, rc *runContext, f *frame, n *domain.Node) {
	if e.hooks.OnNodeEnter == nil {
		return
	}
	e.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
		EventBase: e.base(rc, f, domain.EventNodeEnter),
		NodeID:    n.ID,
		NodeType:  string(n.Kind),
		Step:      rc.steps,
	})
}

func (e *Engine) emitNodeLeave(ctx context.Context, rc *runContext, f *frame, n *domain.Node, ok bool, next []string, before map[string]any, d time.Duration) {
	if e.hooks.OnNodeLeave == nil {
		return
	}
	e.hooks.OnNodeLeave(ctx, &domain.NodeEvent{
		EventBase: e.base(rc, f, domain.EventNodeLeave),
		NodeID:    n.ID,
		NodeType:  string(n.Kind),
		Step:      rc.steps,
		Success:   ok,
		Next:      next,
		Delta:     domain.Diff(before, f.state),
		Duration:  d,
	})
}

func (e *Engine) emitCall(ctx context.Context, rc *runContext, f *frame, hook func(context.Context, *domain.ToolEvent), t domain.EventType, nodeID, name string, attempt int, input any) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.ToolEvent{
		EventBase: e.base(rc, f, t),
		NodeID:    nodeID,
		ToolName:  name,
		Attempt:   attempt,
		Input:     input,
	})
}

func (e *Engine) emitReturn(ctx context.Context, rc *runContext, f *frame, hook func(context.Context, *domain.ToolEvent), t domain.EventType, nodeID, name string, attempt int, output any, isErr bool, d time.Duration) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.ToolEvent{
		EventBase: e.base(rc, f, t),
		NodeID:    nodeID,
		ToolName:  name,
		Attempt:   attempt,
		Output:    output,
		IsError:   isErr,
		Duration:  d,
	})
}
