package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/arbor/internal/compiler"
	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const doc = `
graph:
  nodes:
    - {id: fetch-data, type: tool, uses: http, timeout: {seconds: 5}, on_error: {to: fallback}}
    - id: route
      type: router
      cases:
        - {when: {"==": [{"var": "state.kind"}, "a"]}, to: ask}
      default: delegate
    - {id: ask, type: llm, prompt: answer}
    - {id: delegate, type: subgraph, graph: research}
    - {id: fallback, type: noop, map: {set: {failed: true}}}
    - {id: spin, type: loop, body: tick, max_iterations: 3}
    - {id: tick, type: noop, map: {set: {t: 1}}}
  edges:
    - {from: fetch-data, to: route}
    - {from: ask, to: spin, when: {"var": "state.more"}}
subgraphs:
  research:
    nodes:
      - {id: search, type: tool, uses: http}
`

func compile(t *testing.T) (*domain.Graph, map[string]*domain.Graph) {
	t.Helper()
	var raw map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(doc), &raw))
	d, err := config.Decode(raw)
	require.NoError(t, err)
	root, subs, err := compiler.CompileAll(d.Graph, d.Subgraphs)
	require.NoError(t, err)
	return root, subs
}

func TestGenerateMermaid(t *testing.T) {
	root, subs := compile(t)
	got := graph.GenerateMermaid(root, subs, nil)

	for _, want := range []string{
		"graph TD\n",
		`fetch_data(("fetch-data <br/> http <br/> ⏱️ 5s"))`,
		`route{"route"}`,
		`ask[/"ask <br/> answer"/]`,
		`delegate[("delegate <br/> research")]`,
		`fallback(("fallback"))`,
		`spin{{"spin"}}`,
		`route -- "{'==':[{'var':'state.kind'},'a']}" --> ask`,
		`route -- "default" --> delegate`,
		`spin == "loop ≤3" ==> tick`,
		`fetch_data -. "on_error" .-> fallback`,
		`fetch_data --> route`,
		`ask -- "{'var':'state.more'}" --> spin`,
		`subgraph sg_research["research"]`,
		`research_search(("search <br/> http"))`,
		`delegate -.-> research_search`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("GenerateMermaid() = \n%v\nWant substring: %v", got, want)
		}
	}
	assert.NotContains(t, got, "classDef")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	root, subs := compile(t)
	got := graph.GenerateMermaid(root, subs, &graph.GraphOverlay{
		VisitedNodes: []string{"fetch-data", "fallback", "fetch-data", graph.QualifiedID("research", "search")},
		FailedNodes:  []string{"fetch-data"},
	})

	assert.Contains(t, got, "classDef visited")
	assert.Equal(t, 1, strings.Count(got, "class fetch_data visited;"))
	assert.Contains(t, got, "class research_search visited;")
	assert.Contains(t, got, "class fetch_data failed;")
}

func TestQualifiedID(t *testing.T) {
	assert.Equal(t, "a", graph.QualifiedID(domain.RootGraphName, "a"))
	assert.Equal(t, "sub/a", graph.QualifiedID("sub", "a"))
}
