package compiler_test

import (
	"testing"

	"github.com/aretw0/arbor/internal/compiler"
	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eq(path string, v any) map[string]any {
	return map[string]any{"==": []any{map[string]any{"var": path}, v}}
}

func TestCompile_EntryNodesAndEdges(t *testing.T) {
	g, err := compiler.Compile("main", config.Graph{
		Inputs:  []string{"q"},
		Outputs: []string{"a"},
		Nodes: []config.Node{
			{ID: "start", Type: "tool", Uses: "echo"},
			{ID: "route", Type: "router", Cases: []config.RouterCase{{When: eq("state.x", 1), To: "c"}}, Default: "d"},
			{ID: "c", Type: "noop"},
			{ID: "d", Type: "noop"},
			{ID: "loop", Type: "loop", Body: "body"},
			{ID: "body", Type: "tool", Uses: "inc"},
		},
		Edges: []config.Edge{
			{From: "start", To: "route"},
			{From: "start", To: "d", When: eq("state.y", 2)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "loop"}, g.EntryNodes)
	assert.Equal(t, domain.DefaultMaxSteps, g.MaxSteps)
	require.Len(t, g.EdgesBySource["start"], 2)
	assert.Equal(t, "route", g.EdgesBySource["start"][0].To)
	assert.Equal(t, "d", g.EdgesBySource["start"][1].To)
	assert.Equal(t, domain.DefaultMaxIterations, g.Nodes["loop"].MaxIterations)
	assert.Equal(t, []string{"start", "route", "c", "d", "loop", "body"}, g.Order)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		graph   config.Graph
		wantErr string
	}{
		{
			name: "Duplicate ids",
			graph: config.Graph{Nodes: []config.Node{
				{ID: "a", Type: "noop"}, {ID: "a", Type: "noop"},
			}},
			wantErr: "duplicate node id 'a'",
		},
		{
			name: "Edge to unknown node",
			graph: config.Graph{
				Nodes: []config.Node{{ID: "a", Type: "noop"}},
				Edges: []config.Edge{{From: "a", To: "ghost"}},
			},
			wantErr: "unknown node 'ghost'",
		},
		{
			name: "Router to unknown node",
			graph: config.Graph{Nodes: []config.Node{
				{ID: "r", Type: "router", Cases: []config.RouterCase{{When: eq("x", 1), To: "ghost"}}},
			}},
			wantErr: "targets unknown node 'ghost'",
		},
		{
			name: "Unsupported type",
			graph: config.Graph{Nodes: []config.Node{
				{ID: "a", Type: "parallel"},
			}},
			wantErr: "unsupported type 'parallel'",
		},
		{
			name: "Edge cycle",
			graph: config.Graph{
				Nodes: []config.Node{{ID: "entry", Type: "noop"}, {ID: "a", Type: "noop"}, {ID: "b", Type: "noop"}},
				Edges: []config.Edge{{From: "entry", To: "a"}, {From: "a", To: "b"}, {From: "b", To: "a"}},
			},
			wantErr: "graph 'g' contains a cycle: a -> b -> a",
		},
		{
			name: "Loop body self cycle",
			graph: config.Graph{
				Nodes: []config.Node{{ID: "entry", Type: "noop"}, {ID: "loop", Type: "loop", Body: "loop"}},
				Edges: []config.Edge{{From: "entry", To: "loop"}},
			},
			wantErr: "graph 'g' contains a cycle: loop -> loop",
		},
		{
			name: "No entry nodes",
			graph: config.Graph{
				Nodes: []config.Node{{ID: "a", Type: "noop"}, {ID: "b", Type: "noop"}},
				Edges: []config.Edge{{From: "a", To: "b"}, {From: "b", To: "a"}},
			},
			wantErr: "has no entry nodes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compiler.Compile("g", tt.graph)
			var cfgErr *domain.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCompileAll_SubgraphCycle(t *testing.T) {
	sub := func(id, target string) config.Graph {
		return config.Graph{Nodes: []config.Node{{ID: id, Type: "subgraph", Graph: target}}}
	}

	_, _, err := compiler.CompileAll(sub("enter", "a"), map[string]config.Graph{
		"a": sub("to_b", "b"),
		"b": sub("to_a", "a"),
	})
	require.Error(t, err)
	assert.Equal(t, "subgraph dependency cycle detected: __root__ -> a -> b -> a", err.Error())
}

func TestCompileAll(t *testing.T) {
	root, subs, err := compiler.CompileAll(
		config.Graph{Nodes: []config.Node{{ID: "call", Type: "subgraph", Graph: "child"}}},
		map[string]config.Graph{
			"child": {Nodes: []config.Node{{ID: "leaf", Type: "noop"}}},
		},
	)
	require.NoError(t, err)
	assert.Equal(t, domain.RootGraphName, root.Name)
	assert.Equal(t, []string{"leaf"}, subs["child"].EntryNodes)
}
