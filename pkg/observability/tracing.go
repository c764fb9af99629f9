package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation scope of arbor spans.
const TracerName = "github.com/aretw0/arbor"

// Tracing opens one span per run, per node and per call attempt. Node spans
// are children of their run span and call spans children of their node span.
type Tracing struct {
	tracer trace.Tracer
	spans  sync.Map
}

// NewTracing traces through tp. A nil tp uses the noop provider.
func NewTracing(tp trace.TracerProvider) *Tracing {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Tracing{tracer: tp.Tracer(TracerName)}
}

func runKey(runID string) string {
	return "run/" + runID
}

func nodeKey(b domain.EventBase, nodeID string) string {
	return fmt.Sprintf("node/%s/%s/%d/%s", b.RunID, b.Graph, b.Depth, nodeID)
}

func callKey(e *domain.ToolEvent) string {
	return fmt.Sprintf("call/%s/%s/%d/%s/%s/%d", e.RunID, e.Graph, e.Depth, e.NodeID, e.ToolName, e.Attempt)
}

func (t *Tracing) start(parentCtx context.Context, parentKey, key, name string, attrs ...attribute.KeyValue) {
	ctx := parentCtx
	if parent, ok := t.spans.Load(parentKey); ok {
		ctx = trace.ContextWithSpan(ctx, parent.(trace.Span))
	}
	_, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	t.spans.Store(key, span)
}

func (t *Tracing) end(key string, failed bool, err error, attrs ...attribute.KeyValue) {
	v, ok := t.spans.LoadAndDelete(key)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
	}
	if failed {
		msg := "failed"
		if err != nil {
			msg = err.Error()
		}
		span.SetStatus(codes.Error, msg)
	}
	span.End()
}

// Hooks returns the lifecycle hooks that open and close spans.
func (t *Tracing) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStart: func(ctx context.Context, e *domain.RunEvent) {
			t.start(ctx, "", runKey(e.RunID), "arbor.run",
				attribute.String("arbor.run_id", e.RunID),
				attribute.String("arbor.graph", e.Graph),
			)
		},
		OnRunEnd: func(_ context.Context, e *domain.RunEvent) {
			t.end(runKey(e.RunID), e.Err != nil, e.Err, attribute.Int("arbor.steps", e.Steps))
		},
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			t.start(ctx, runKey(e.RunID), nodeKey(e.EventBase, e.NodeID), "arbor.node "+e.NodeID,
				attribute.String("arbor.node_id", e.NodeID),
				attribute.String("arbor.node_type", e.NodeType),
				attribute.String("arbor.graph", e.Graph),
				attribute.Int("arbor.depth", e.Depth),
				attribute.Int("arbor.step", e.Step),
			)
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			t.end(nodeKey(e.EventBase, e.NodeID), !e.Success, nil, attribute.StringSlice("arbor.next", e.Next))
		},
		OnToolCall:   t.callStart("arbor.tool"),
		OnToolReturn: t.callEnd,
		OnLLMCall:    t.callStart("arbor.llm"),
		OnLLMReturn:  t.callEnd,
	}
}

func (t *Tracing) callStart(name string) func(context.Context, *domain.ToolEvent) {
	return func(ctx context.Context, e *domain.ToolEvent) {
		t.start(ctx, nodeKey(e.EventBase, e.NodeID), callKey(e), name+" "+e.ToolName,
			attribute.String("arbor.call", e.ToolName),
			attribute.Int("arbor.attempt", e.Attempt),
		)
	}
}

func (t *Tracing) callEnd(_ context.Context, e *domain.ToolEvent) {
	var err error
	if msg, ok := e.Output.(string); ok && e.IsError {
		err = errors.New(msg)
	}
	t.end(callKey(e), e.IsError, err)
}
