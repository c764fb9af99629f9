package observability

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// Compose merges hooks. Each callback invokes the non-nil callbacks of every
// input in order; a callback nobody set stays nil.
func Compose(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	var (
		runStart, runEnd     []func(context.Context, *domain.RunEvent)
		nodeEnter, nodeLeave []func(context.Context, *domain.NodeEvent)
		toolCall, toolReturn []func(context.Context, *domain.ToolEvent)
		llmCall, llmReturn   []func(context.Context, *domain.ToolEvent)
	)
	for _, h := range hooks {
		runStart = appendHook(runStart, h.OnRunStart)
		runEnd = appendHook(runEnd, h.OnRunEnd)
		nodeEnter = appendHook(nodeEnter, h.OnNodeEnter)
		nodeLeave = appendHook(nodeLeave, h.OnNodeLeave)
		toolCall = appendHook(toolCall, h.OnToolCall)
		toolReturn = appendHook(toolReturn, h.OnToolReturn)
		llmCall = appendHook(llmCall, h.OnLLMCall)
		llmReturn = appendHook(llmReturn, h.OnLLMReturn)
	}
	out.OnRunStart = fanOut(runStart)
	out.OnRunEnd = fanOut(runEnd)
	out.OnNodeEnter = fanOut(nodeEnter)
	out.OnNodeLeave = fanOut(nodeLeave)
	out.OnToolCall = fanOut(toolCall)
	out.OnToolReturn = fanOut(toolReturn)
	out.OnLLMCall = fanOut(llmCall)
	out.OnLLMReturn = fanOut(llmReturn)
	return out
}

func appendHook[E any](list []func(context.Context, E), fn func(context.Context, E)) []func(context.Context, E) {
	if fn == nil {
		return list
	}
	return append(list, fn)
}

func fanOut[E any](fns []func(context.Context, E)) func(context.Context, E) {
	switch len(fns) {
	case 0:
		return nil
	case 1:
		return fns[0]
	}
	return func(ctx context.Context, ev E) {
		for _, fn := range fns {
			fn(ctx, ev)
		}
	}
}
