package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/arbor/pkg/domain"
)

// previewChars bounds payload previews in log records.
const previewChars = 256

// LoggingHooks logs every lifecycle event at debug level, and run ends and
// failed calls at info and warn. Payloads are summarized through masker.
func LoggingHooks(logger *slog.Logger, masker *Masker) domain.LifecycleHooks {
	if masker == nil {
		masker = DefaultMasker()
	}
	return domain.LifecycleHooks{
		OnRunStart: func(ctx context.Context, e *domain.RunEvent) {
			logger.DebugContext(ctx, "run_start", "run_id", e.RunID, "graph", e.Graph, "inputs", masker.Summary(e.Inputs, previewChars))
		},
		OnRunEnd: func(ctx context.Context, e *domain.RunEvent) {
			attrs := []any{"run_id", e.RunID, "graph", e.Graph, "steps", e.Steps, "duration", e.Duration}
			if e.Err != nil {
				logger.WarnContext(ctx, "run_end", append(attrs, "status", "error", "err", e.Err)...)
				return
			}
			logger.InfoContext(ctx, "run_end", append(attrs, "status", "ok")...)
		},
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter", "run_id", e.RunID, "graph", e.Graph, "depth", e.Depth, "node_id", e.NodeID, "node_type", e.NodeType, "step", e.Step)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_leave",
				"run_id", e.RunID,
				"graph", e.Graph,
				"node_id", e.NodeID,
				"success", e.Success,
				"next", e.Next,
				"delta", masker.Summary(e.Delta, previewChars),
				"duration", e.Duration,
			)
		},
		OnToolCall:   callLogger(logger, masker, "tool_call"),
		OnToolReturn: returnLogger(logger, masker, "tool_return"),
		OnLLMCall:    callLogger(logger, masker, "llm_call"),
		OnLLMReturn:  returnLogger(logger, masker, "llm_return"),
	}
}

func callLogger(logger *slog.Logger, masker *Masker, msg string) func(context.Context, *domain.ToolEvent) {
	return func(ctx context.Context, e *domain.ToolEvent) {
		logger.DebugContext(ctx, msg,
			"run_id", e.RunID,
			"node_id", e.NodeID,
			"name", e.ToolName,
			"attempt", e.Attempt,
			"input", masker.Summary(e.Input, previewChars),
		)
	}
}

func returnLogger(logger *slog.Logger, masker *Masker, msg string) func(context.Context, *domain.ToolEvent) {
	return func(ctx context.Context, e *domain.ToolEvent) {
		level := slog.LevelDebug
		if e.IsError {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, msg,
			"run_id", e.RunID,
			"node_id", e.NodeID,
			"name", e.ToolName,
			"attempt", e.Attempt,
			"is_error", e.IsError,
			"duration", e.Duration,
			"output", masker.Summary(e.Output, previewChars),
		)
	}
}
