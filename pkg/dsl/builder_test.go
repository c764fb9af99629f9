package dsl_test

import (
	"context"
	"testing"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/dsl"
	"github.com/aretw0/arbor/pkg/render"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func varOf(path string) map[string]any {
	return map[string]any{"var": path}
}

func TestBuilder_Counter(t *testing.T) {
	b := dsl.New("counter").
		State("limit", "int").
		State("count", "int").
		Init("count", 0).
		Tool("bump", "builtin", "increment").
		Inputs("limit").
		Outputs("count")

	b.Add("tick").
		Uses("bump").
		Input("current", "{{ state.count }}").
		Set("count", "{{ result.json.count }}")

	b.Add("spin").
		Loop("tick", 5).
		Until(map[string]any{">=": []any{varOf("state.count"), varOf("inputs.limit")}})

	doc, err := b.Build()
	require.NoError(t, err)

	eng, err := arbor.New(doc)
	require.NoError(t, err)

	st, err := eng.Run(context.Background(), map[string]any{"limit": 3})
	require.NoError(t, err)
	assert.EqualValues(t, 3, st["count"])
}

func TestBuilder_Structure(t *testing.T) {
	b := dsl.New("triage").
		DefaultLLM("local:qwen").
		Provider("local", map[string]any{"type": "lmstudio"}).
		Retry(2, 0).
		Timeout(5).
		State("kind", "str | null").
		State("answer", "str | null").
		Prompt("answer", render.Template{System: "{{> persona }}", User: "{{ inputs.q }}"}).
		Partial("persona", "Be brief.").
		Tool("search", "builtin", "echo").
		Inputs("q").
		Outputs("answer")

	b.Add("route").
		Case(map[string]any{"==": []any{varOf("state.kind"), "a"}}, "ask").
		Default("delegate")
	b.Add("ask").LLM("answer").Set("answer", "{{ result.text }}").Error("fallback")
	b.Add("delegate").Subgraph("research").Input("query", "{{ inputs.q }}").Resume().Go("fallback")
	b.Add("fallback").Noop().Set("answer", "n/a").Delete("kind")

	research := b.Subgraph("research").Inputs("query").Outputs("kind")
	research.Add("lookup").Uses("search").Retry(3, 0.1).Timeout(1).Set("kind", "b")

	assert.Same(t, research, b.Subgraph("research"))
	assert.Equal(t, "ask", b.Add("ask").Build().ID)

	doc, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, "local:qwen", doc.Meta.Defaults.LLM)
	assert.Equal(t, 2, doc.Meta.Defaults.Retry.MaxAttempts)
	assert.Equal(t, domain.DefaultMaxSteps, doc.Graph.MaxSteps)
	assert.Equal(t, "deepmerge", doc.State.Reducer)
	assert.Equal(t, "callable", doc.Tools[0].Mode)

	require.Len(t, doc.Graph.Nodes, 4)
	route := doc.Graph.Nodes[0]
	assert.Equal(t, string(domain.KindRouter), route.Type)
	assert.Equal(t, "delegate", route.Default)
	require.Len(t, route.Cases, 1)
	assert.Equal(t, "ask", route.Cases[0].To)

	ask := doc.Graph.Nodes[1]
	assert.Equal(t, &config.OnError{To: "fallback"}, ask.OnError)

	delegate := doc.Graph.Nodes[2]
	assert.Equal(t, "research", delegate.Graph)
	assert.True(t, delegate.OnError.Resume)
	assert.Equal(t, []config.Edge{{From: "delegate", To: "fallback"}}, doc.Graph.Edges)

	fallback := doc.Graph.Nodes[3]
	assert.Equal(t, []string{"kind"}, fallback.Map.Delete)

	sub := doc.Subgraphs["research"]
	require.Len(t, sub.Nodes, 1)
	assert.Equal(t, 1.0, sub.Nodes[0].Timeout.Seconds)
	assert.Equal(t, domain.DefaultMaxSteps, sub.MaxSteps)

	eng, err := arbor.New(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"route"}, eng.Inspect().Root.EntryNodes)
}

func TestBuilder_Invalid(t *testing.T) {
	b := dsl.New("broken").State("x", "str")
	b.Add("a").Uses("missing")

	_, err := b.Build()
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid agent 'broken'")

	var agg *schema.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.GreaterOrEqual(t, len(agg.Errors), 3)
}
