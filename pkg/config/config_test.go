package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	doc, err := config.Load(filepath.Join("testdata", "agent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "routing_agent", doc.Meta.Name)
	assert.Equal(t, 0.2, doc.Meta.Defaults.Temperature())
	assert.Equal(t, "deepmerge", doc.State.Reducer)
	assert.Equal(t, "You are {{> persona }}.", doc.Prompts.Templates["answer"].System)

	require.Len(t, doc.Tools, 2)
	assert.Equal(t, "callable", doc.Tools[0].Mode)
	assert.Equal(t, &domain.RetryPolicy{MaxAttempts: 3, Backoff: 0}, doc.Tools[1].Retry.Policy())

	require.Len(t, doc.Graph.Nodes, 5)
	assert.Equal(t, 200, doc.Graph.MaxSteps)
	loop := doc.Graph.Nodes[2]
	assert.Equal(t, "loop", loop.Type)
	assert.Equal(t, 10, loop.MaxIterations)
	assert.NotNil(t, loop.Until)

	router := doc.Graph.Nodes[1]
	require.Len(t, router.Cases, 1)
	assert.Equal(t, "counter", router.Cases[0].To)
	assert.Equal(t, "reply", router.Default)

	assert.True(t, doc.Graph.Nodes[4].OnError.Resume)
	assert.Contains(t, doc.Subgraphs, "helper")
}

func TestRetryPolicyDefaults(t *testing.T) {
	r := &config.Retry{MaxAttempts: 2}
	assert.Equal(t, &domain.RetryPolicy{MaxAttempts: 2, Backoff: 1.0}, r.Policy())

	r = &config.Retry{}
	assert.Equal(t, 1, r.Policy().MaxAttempts)

	var nilRetry *config.Retry
	assert.Nil(t, nilRetry.Policy())
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	raw := map[string]any{
		"meta":    map[string]any{"name": ""},
		"state":   map[string]any{"shape": map[string]any{"a": "str"}, "init": map[string]any{"b": 1}},
		"prompts": map[string]any{"templates": map[string]any{"empty": map[string]any{}}},
		"tools": []any{
			map[string]any{"id": "x", "kind": "langchain", "impl": "pkg.Tool"},
		},
		"graph": map[string]any{
			"inputs":  []any{"a"},
			"outputs": []any{"a"},
			"nodes": []any{
				map[string]any{"id": "n1", "type": "tool", "uses": "missing"},
				map[string]any{"id": "n1", "type": "noop", "map": map[string]any{}},
				map[string]any{"id": "r", "type": "router"},
				map[string]any{"id": "s", "type": "subgraph", "graph": "nowhere", "on_error": map[string]any{}},
				map[string]any{"id": "w", "type": "wat"},
			},
			"edges": []any{map[string]any{"from": "n1", "to": "ghost"}},
		},
	}

	doc, err := config.Decode(raw)
	require.NoError(t, err)

	err = config.Validate(doc)
	require.Error(t, err)
	msg := err.Error()

	for _, want := range []string{
		`"meta.name": required`,
		"state.init",
		"prompt template must define at least one message field",
		"langchain tools must set mode to 'class'",
		"graph node ids must be unique: 'n1'",
		"map operation must define at least one of set/merge/delete",
		"router node requires at least one case",
		"on_error must set 'to' or 'resume'",
		"unsupported node type 'wat'",
		"edge.to references unknown node 'ghost'",
		"references unknown tool 'missing'",
		"references undefined graph 'nowhere'",
	} {
		assert.Contains(t, msg, want)
	}
	assert.Greater(t, len(schema.ValidationErrors(err)), 10)
}

func TestParse_Errors(t *testing.T) {
	_, err := config.Parse([]byte("meta: ["))
	assert.ErrorContains(t, err, "failed to parse agent document")

	_, err = config.Parse([]byte(""))
	assert.ErrorContains(t, err, "agent document is empty")
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("ARBOR_TEST_KEY", "sk-123")

	out, err := config.ResolveEnv(map[string]any{
		"api_key": "{{ env.ARBOR_TEST_KEY }}",
		"nested":  []any{"plain", "{{env.ARBOR_TEST_KEY}}"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"api_key": "sk-123",
		"nested":  []any{"plain", "sk-123"},
	}, out)

	_, err = config.ResolveEnv("{{ env.ARBOR_DEFINITELY_UNSET }}")
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "ARBOR_DEFINITELY_UNSET")
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ARBOR_ENV_FILE_VALUE=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("ARBOR_ENV_FILE_VALUE") })

	require.NoError(t, config.LoadEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv("ARBOR_ENV_FILE_VALUE"))
}
