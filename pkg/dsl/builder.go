package dsl

import (
	"fmt"

	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/render"
)

// Builder manages the document construction.
type Builder struct {
	doc       config.Document
	root      *GraphBuilder
	subgraphs map[string]*GraphBuilder
	order     []string
}

// New creates a builder for an agent named name.
func New(name string) *Builder {
	return &Builder{
		doc: config.Document{
			Meta: config.Meta{Name: name},
			State: config.State{
				Shape: make(map[string]any),
			},
			Prompts: config.Prompts{
				Templates: make(map[string]render.Template),
			},
		},
		root:      newGraphBuilder(),
		subgraphs: make(map[string]*GraphBuilder),
	}
}

// DefaultLLM selects the default provider as "provider:model".
func (b *Builder) DefaultLLM(spec string) *Builder {
	b.doc.Meta.Defaults.LLM = spec
	return b
}

// Provider adds LLM provider settings under id.
func (b *Builder) Provider(id string, settings map[string]any) *Builder {
	if b.doc.Meta.Providers == nil {
		b.doc.Meta.Providers = make(map[string]map[string]any)
	}
	b.doc.Meta.Providers[id] = settings
	return b
}

// Retry sets the default retry policy.
func (b *Builder) Retry(maxAttempts int, backoff float64) *Builder {
	b.doc.Meta.Defaults.Retry = &config.Retry{MaxAttempts: maxAttempts, Backoff: &backoff}
	return b
}

// Timeout sets the default per-call timeout.
func (b *Builder) Timeout(seconds float64) *Builder {
	b.doc.Meta.Defaults.Timeout = &config.Timeout{Seconds: seconds}
	return b
}

// State declares a state field and its type, e.g. "str | null".
func (b *Builder) State(key, typ string) *Builder {
	b.doc.State.Shape[key] = typ
	return b
}

// Init sets the initial value of a declared state field.
func (b *Builder) Init(key string, value any) *Builder {
	if b.doc.State.Init == nil {
		b.doc.State.Init = make(map[string]any)
	}
	b.doc.State.Init[key] = value
	return b
}

// Reducer selects "deepmerge" or "replace".
func (b *Builder) Reducer(r string) *Builder {
	b.doc.State.Reducer = r
	return b
}

// Prompt adds a named prompt template.
func (b *Builder) Prompt(name string, t render.Template) *Builder {
	b.doc.Prompts.Templates[name] = t
	return b
}

// Partial adds a named partial that prompts include with {{> name }}.
func (b *Builder) Partial(name, content string) *Builder {
	if b.doc.Prompts.Partials == nil {
		b.doc.Prompts.Partials = make(map[string]string)
	}
	b.doc.Prompts.Partials[name] = content
	return b
}

// Memory enables conversation history.
func (b *Builder) Memory(m config.Memory) *Builder {
	m.Enabled = true
	b.doc.Memory = &m
	return b
}

// Tool declares a tool of the given kind backed by impl.
func (b *Builder) Tool(id, kind, impl string) *Builder {
	b.doc.Tools = append(b.doc.Tools, config.Tool{ID: id, Kind: kind, Impl: impl})
	return b
}

// ToolConfig declares a tool with its full settings.
func (b *Builder) ToolConfig(t config.Tool) *Builder {
	b.doc.Tools = append(b.doc.Tools, t)
	return b
}

// Inputs declares the required inputs of the root graph.
func (b *Builder) Inputs(names ...string) *Builder {
	b.root.Inputs(names...)
	return b
}

// Outputs declares the outputs of the root graph.
func (b *Builder) Outputs(names ...string) *Builder {
	b.root.Outputs(names...)
	return b
}

// MaxSteps bounds the node executions of a run.
func (b *Builder) MaxSteps(n int) *Builder {
	b.root.MaxSteps(n)
	return b
}

// Add creates a node in the root graph.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	return b.root.Add(id)
}

// Edge connects two root nodes. A nil when makes it unconditional.
func (b *Builder) Edge(from, to string, when any) *Builder {
	b.root.Edge(from, to, when)
	return b
}

// Subgraph returns the builder of the named subgraph, creating it on first use.
func (b *Builder) Subgraph(name string) *GraphBuilder {
	if g, ok := b.subgraphs[name]; ok {
		return g
	}
	g := newGraphBuilder()
	b.subgraphs[name] = g
	b.order = append(b.order, name)
	return g
}

// Build assembles, defaults and validates the document.
func (b *Builder) Build() (*config.Document, error) {
	doc := b.doc
	doc.Graph = b.root.build()
	if len(b.subgraphs) > 0 {
		doc.Subgraphs = make(map[string]config.Graph, len(b.subgraphs))
		for _, name := range b.order {
			doc.Subgraphs[name] = b.subgraphs[name].build()
		}
	}
	if err := config.Prepare(&doc); err != nil {
		return nil, fmt.Errorf("invalid agent '%s': %w", doc.Meta.Name, err)
	}
	return &doc, nil
}

// GraphBuilder collects the nodes and edges of one graph.
type GraphBuilder struct {
	graph config.Graph
	nodes []*NodeBuilder
	index map[string]*NodeBuilder
}

func newGraphBuilder() *GraphBuilder {
	return &GraphBuilder{index: make(map[string]*NodeBuilder)}
}

// Inputs declares the required inputs of the graph.
func (g *GraphBuilder) Inputs(names ...string) *GraphBuilder {
	g.graph.Inputs = append(g.graph.Inputs, names...)
	return g
}

// Outputs declares the state keys the graph hands back.
func (g *GraphBuilder) Outputs(names ...string) *GraphBuilder {
	g.graph.Outputs = append(g.graph.Outputs, names...)
	return g
}

// MaxSteps bounds the node executions of the graph.
func (g *GraphBuilder) MaxSteps(n int) *GraphBuilder {
	g.graph.MaxSteps = n
	return g
}

// Add creates a node, or returns the existing builder for id.
func (g *GraphBuilder) Add(id string) *NodeBuilder {
	if nb, ok := g.index[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node:  config.Node{ID: id, Type: string(domain.KindNoop)},
		graph: g,
	}
	g.index[id] = nb
	g.nodes = append(g.nodes, nb)
	return nb
}

// Edge connects two nodes. A nil when makes it unconditional.
func (g *GraphBuilder) Edge(from, to string, when any) *GraphBuilder {
	g.graph.Edges = append(g.graph.Edges, config.Edge{From: from, To: to, When: when})
	return g
}

func (g *GraphBuilder) build() config.Graph {
	out := g.graph
	out.Nodes = make([]config.Node, 0, len(g.nodes))
	for _, nb := range g.nodes {
		out.Nodes = append(out.Nodes, nb.node)
	}
	out.Edges = append([]config.Edge(nil), g.graph.Edges...)
	return out
}
