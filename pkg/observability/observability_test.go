package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func base(runID, graph string) domain.EventBase {
	return domain.EventBase{Timestamp: time.Now(), RunID: runID, Graph: graph}
}

func TestCompose(t *testing.T) {
	var calls []string
	a := domain.LifecycleHooks{OnNodeEnter: func(context.Context, *domain.NodeEvent) { calls = append(calls, "a") }}
	b := domain.LifecycleHooks{
		OnNodeEnter: func(context.Context, *domain.NodeEvent) { calls = append(calls, "b") },
		OnRunEnd:    func(context.Context, *domain.RunEvent) { calls = append(calls, "b-end") },
	}

	h := observability.Compose(a, b)
	h.OnNodeEnter(context.Background(), &domain.NodeEvent{})
	h.OnRunEnd(context.Background(), &domain.RunEvent{})
	assert.Equal(t, []string{"a", "b", "b-end"}, calls)
	assert.Nil(t, h.OnToolCall)
}

func TestMasker(t *testing.T) {
	m := observability.DefaultMasker()

	in := map[string]any{
		"API_KEY": "sk-1234",
		"headers": map[string]any{"Authorization": "Bearer abc.def", "accept": "json"},
		"note":    "use Bearer abc.def-123 please",
		"id":      "abcd0123456789wxyz",
		"list":    []any{"Bearer zzz"},
		"count":   3,
	}
	out := m.Mask(in).(map[string]any)

	assert.Equal(t, observability.Redacted, out["API_KEY"])
	assert.Equal(t, observability.Redacted, out["headers"].(map[string]any)["Authorization"])
	assert.Equal(t, "json", out["headers"].(map[string]any)["accept"])
	assert.Equal(t, "use Bearer [REDACTED] please", out["note"])
	assert.Equal(t, "abcd[REDACTED]wxyz", out["id"])
	assert.Equal(t, []any{"Bearer [REDACTED]"}, out["list"])
	assert.Equal(t, 3, out["count"])
	assert.Equal(t, "sk-1234", in["API_KEY"], "input is not modified")

	short := observability.NewMasker(nil, nil, 5)
	assert.Equal(t, "abcde…", short.Text("abcdefgh"))
}

func TestMasker_ReplaceAttr(t *testing.T) {
	var buf bytes.Buffer
	m := observability.DefaultMasker()
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{ReplaceAttr: m.ReplaceAttr}))

	logger.Info("call", "password", "hunter2", "err", errors.New("Bearer secret-token"), "payload", map[string]any{"token": "t"})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, observability.Redacted, rec["password"])
	assert.Equal(t, "Bearer [REDACTED]", rec["err"])
	assert.Equal(t, map[string]any{"token": observability.Redacted}, rec["payload"])
	assert.Equal(t, "call", rec["msg"])
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := observability.LoggingHooks(logger, nil)
	ctx := context.Background()

	h.OnToolCall(ctx, &domain.ToolEvent{EventBase: base("r1", "g"), NodeID: "n", ToolName: "http", Attempt: 1, Input: map[string]any{"api_key": "k"}})
	h.OnToolReturn(ctx, &domain.ToolEvent{EventBase: base("r1", "g"), NodeID: "n", ToolName: "http", Attempt: 1, IsError: true, Output: "boom"})
	h.OnRunEnd(ctx, &domain.RunEvent{EventBase: base("r1", "g"), Steps: 2})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.NotContains(t, lines[0], `"k"`)
	assert.Contains(t, lines[0], "api_key")
	assert.Contains(t, lines[1], `"level":"WARN"`)
	assert.Contains(t, lines[2], `"status":"ok"`)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	h := m.Hooks()
	ctx := context.Background()

	h.OnNodeLeave(ctx, &domain.NodeEvent{EventBase: base("r", "g"), NodeID: "a", NodeType: "tool", Success: true})
	h.OnNodeLeave(ctx, &domain.NodeEvent{EventBase: base("r", "g"), NodeID: "a", NodeType: "tool", Success: false})
	h.OnToolReturn(ctx, &domain.ToolEvent{EventBase: base("r", "g"), ToolName: "http", IsError: true})
	h.OnLLMReturn(ctx, &domain.ToolEvent{EventBase: base("r", "g"), ToolName: "answer"})
	h.OnRunEnd(ctx, &domain.RunEvent{EventBase: base("r", "g"), Err: errors.New("x"), Duration: time.Second})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodeVisits.WithLabelValues("g", "a", "tool", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodeVisits.WithLabelValues("g", "a", "tool", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Calls.WithLabelValues("tool", "http", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Calls.WithLabelValues("llm", "answer", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("g", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunDuration))

	_, err = observability.NewMetrics(reg)
	assert.Error(t, err, "registering twice fails")
}

func TestTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	h := observability.NewTracing(tp).Hooks()
	ctx := context.Background()
	b := base("run-1", domain.RootGraphName)

	h.OnRunStart(ctx, &domain.RunEvent{EventBase: b})
	h.OnNodeEnter(ctx, &domain.NodeEvent{EventBase: b, NodeID: "fetch", NodeType: "tool"})
	h.OnToolCall(ctx, &domain.ToolEvent{EventBase: b, NodeID: "fetch", ToolName: "http", Attempt: 1})
	h.OnToolReturn(ctx, &domain.ToolEvent{EventBase: b, NodeID: "fetch", ToolName: "http", Attempt: 1, IsError: true, Output: "timeout"})
	h.OnNodeLeave(ctx, &domain.NodeEvent{EventBase: b, NodeID: "fetch", NodeType: "tool", Success: false})
	h.OnRunEnd(ctx, &domain.RunEvent{EventBase: b, Steps: 1})

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	call, node, run := spans[0], spans[1], spans[2]

	assert.Equal(t, "arbor.tool http", call.Name)
	assert.Equal(t, codes.Error, call.Status.Code)
	assert.Equal(t, "timeout", call.Status.Description)
	assert.Equal(t, "arbor.node fetch", node.Name)
	assert.Equal(t, codes.Error, node.Status.Code)
	assert.Equal(t, "arbor.run", run.Name)
	assert.Equal(t, codes.Unset, run.Status.Code)

	assert.Equal(t, node.SpanContext.SpanID(), call.Parent.SpanID())
	assert.Equal(t, run.SpanContext.SpanID(), node.Parent.SpanID())
	assert.Equal(t, run.SpanContext.TraceID(), call.SpanContext.TraceID())
}

func TestTracing_Noop(t *testing.T) {
	h := observability.NewTracing(nil).Hooks()
	assert.NotPanics(t, func() {
		h.OnRunStart(context.Background(), &domain.RunEvent{EventBase: base("r", "g")})
		h.OnRunEnd(context.Background(), &domain.RunEvent{EventBase: base("r", "g")})
		h.OnNodeLeave(context.Background(), &domain.NodeEvent{EventBase: base("r", "g"), NodeID: "never-entered"})
	})
}
