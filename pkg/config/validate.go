package config

import (
	"fmt"
	"sort"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/schema"
)

var (
	toolKinds   = []string{"mcp", "http", "python", "subgraph", "langchain", "process", "builtin"}
	toolModes   = []string{"callable", "class"}
	memoryKinds = []string{"inmemory", "redis", "sqlite", "postgres", "file", "custom"}
	reducers    = []string{"deepmerge", "replace"}
)

// Validate checks the structure of a decoded document and returns every
// problem found as a *schema.AggregateError.
func Validate(doc *Document) error {
	var c schema.Collector

	if doc.Meta.Name == "" {
		c.Addf("meta.name", "required")
	}
	if doc.Meta.Defaults.Temp != nil && *doc.Meta.Defaults.Temp < 0 {
		c.Addf("meta.defaults.temp", "must be >= 0")
	}
	validateRetry(&c, "meta.defaults.retry", doc.Meta.Defaults.Retry)
	validateTimeout(&c, "meta.defaults.timeout", doc.Meta.Defaults.Timeout)

	validateState(&c, doc.State)
	validatePrompts(&c, doc.Prompts)
	if doc.Memory != nil {
		validateMemory(&c, doc.Memory)
	}

	toolIDs := make(map[string]bool, len(doc.Tools))
	for i, t := range doc.Tools {
		key := fmt.Sprintf("tools[%d]", i)
		if t.ID == "" {
			c.Addf(key+".id", "required")
		} else if toolIDs[t.ID] {
			c.Addf(key+".id", "duplicate tool id '%s'", t.ID)
		}
		toolIDs[t.ID] = true
		validateTool(&c, key, t)
	}

	graphs := map[string]Graph{domain.RootGraphName: doc.Graph}
	for name, g := range doc.Subgraphs {
		graphs[name] = g
	}
	names := make([]string, 0, len(graphs))
	for name := range graphs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		g := graphs[name]
		key := "graph"
		if name != domain.RootGraphName {
			key = "subgraphs." + name
		}
		validateGraph(&c, key, g)

		for _, n := range g.Nodes {
			if n.Type == string(domain.KindTool) && n.Uses != "" && !toolIDs[n.Uses] {
				c.Addf(key+".nodes."+n.ID, "tool node '%s' in graph '%s' references unknown tool '%s'", n.ID, name, n.Uses)
			}
			if n.Type == string(domain.KindSubgraph) && n.Graph != "" {
				if _, ok := doc.Subgraphs[n.Graph]; !ok {
					c.Addf(key+".nodes."+n.ID, "subgraph node '%s' references undefined graph '%s'", n.ID, n.Graph)
				}
			}
			if n.Type == string(domain.KindLLM) && n.Prompt != "" {
				if _, ok := doc.Prompts.Templates[n.Prompt]; !ok {
					c.Addf(key+".nodes."+n.ID, "llm node '%s' references unknown prompt '%s'", n.ID, n.Prompt)
				}
			}
		}
	}

	return c.Err()
}

func validateState(c *schema.Collector, s State) {
	if len(s.Shape) == 0 {
		c.Addf("state.shape", "must define at least one field")
	} else if _, err := schema.ParseShape(s.Shape); err != nil {
		for _, e := range schema.ValidationErrors(err) {
			c.Addf("state.shape", "%s", e.Error())
		}
	}
	if !contains(reducers, s.Reducer) {
		c.Addf("state.reducer", "unsupported reducer '%s'", s.Reducer)
	}
	var undefined []string
	for k := range s.Init {
		if _, ok := s.Shape[k]; !ok {
			undefined = append(undefined, k)
		}
	}
	if len(undefined) > 0 {
		sort.Strings(undefined)
		c.Addf("state.init", "keys %v are not present in state.shape", undefined)
	}
}

func validatePrompts(c *schema.Collector, p Prompts) {
	if len(p.Templates) == 0 {
		c.Addf("prompts.templates", "must define at least one template")
	}
	for name, t := range p.Templates {
		if t.Empty() {
			c.Addf("prompts.templates."+name, "prompt template must define at least one message field")
		}
	}
}

func validateMemory(c *schema.Collector, m *Memory) {
	if !contains(memoryKinds, m.Kind) {
		c.Addf("memory.kind", "unsupported memory kind '%s'", m.Kind)
	}
	if m.K < 0 {
		c.Addf("memory.k", "must be positive")
	}
	if !m.Enabled {
		return
	}
	switch m.Kind {
	case "file":
		if m.Path == "" {
			c.Addf("memory.path", "memory.kind 'file' requires 'path'")
		}
	case "redis", "sqlite", "postgres":
		if m.DSN == "" {
			c.Addf("memory.dsn", "memory.kind '%s' requires 'dsn'", m.Kind)
		}
	case "custom":
		if len(m.Config) == 0 {
			c.Addf("memory.config", "memory.kind 'custom' requires 'config' with implementation details")
		}
	}
}

func validateTool(c *schema.Collector, key string, t Tool) {
	if !contains(toolKinds, t.Kind) {
		c.Addf(key+".kind", "unsupported tool kind '%s'", t.Kind)
	}
	if t.Impl == "" {
		c.Addf(key+".impl", "required")
	}
	if !contains(toolModes, t.Mode) {
		c.Addf(key+".mode", "unsupported mode '%s'", t.Mode)
	}
	if t.Kind == "langchain" && t.Mode != "class" {
		c.Addf(key+".mode", "langchain tools must set mode to 'class'")
	}
	if t.Mode == "class" && t.Kind != "python" && t.Kind != "langchain" {
		c.Addf(key+".mode", "mode 'class' is supported only for python or langchain tools")
	}
	validateRetry(c, key+".retry", t.Retry)
	validateTimeout(c, key+".timeout", t.Timeout)
}

func validateGraph(c *schema.Collector, key string, g Graph) {
	if len(g.Inputs) == 0 {
		c.Addf(key+".inputs", "graph inputs must not be empty")
	}
	if len(g.Outputs) == 0 {
		c.Addf(key+".outputs", "graph outputs must not be empty")
	}
	if len(g.Nodes) == 0 {
		c.Addf(key+".nodes", "graph must define at least one node")
	}
	if g.MaxSteps < 1 {
		c.Addf(key+".max_steps", "must be positive")
	}
	validateTimeout(c, key+".timeout", g.Timeout)

	ids := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			c.Addf(key+".nodes", "node missing id")
			continue
		}
		if ids[n.ID] {
			c.Addf(key+".nodes", "graph node ids must be unique: '%s'", n.ID)
		}
		ids[n.ID] = true
		validateNode(c, key+".nodes."+n.ID, n)
	}

	for i, e := range g.Edges {
		ekey := fmt.Sprintf("%s.edges[%d]", key, i)
		if !ids[e.From] {
			c.Addf(ekey, "edge.from references unknown node '%s'", e.From)
		}
		if !ids[e.To] {
			c.Addf(ekey, "edge.to references unknown node '%s'", e.To)
		}
	}
}

func validateNode(c *schema.Collector, key string, n Node) {
	validateRetry(c, key+".retry", n.Retry)
	validateTimeout(c, key+".timeout", n.Timeout)
	if n.OnError != nil && n.OnError.To == "" && !n.OnError.Resume {
		c.Addf(key+".on_error", "on_error must set 'to' or 'resume'")
	}
	if n.Map != nil && len(n.Map.Set) == 0 && len(n.Map.Merge) == 0 && len(n.Map.Delete) == 0 {
		c.Addf(key+".map", "map operation must define at least one of set/merge/delete")
	}

	switch domain.NodeKind(n.Type) {
	case domain.KindTool:
		if n.Uses == "" {
			c.Addf(key+".uses", "required")
		}
	case domain.KindLLM:
		if n.Prompt == "" {
			c.Addf(key+".prompt", "required")
		}
	case domain.KindRouter:
		if len(n.Cases) == 0 {
			c.Addf(key+".cases", "router node requires at least one case")
		}
		for i, rc := range n.Cases {
			if rc.To == "" {
				c.Addf(fmt.Sprintf("%s.cases[%d].to", key, i), "required")
			}
			if _, ok := rc.When.(map[string]any); !ok {
				c.Addf(fmt.Sprintf("%s.cases[%d].when", key, i), "must be a condition object")
			}
		}
	case domain.KindLoop:
		if n.Body == "" {
			c.Addf(key+".body", "required")
		}
		if n.MaxIterations < 1 {
			c.Addf(key+".max_iterations", "must be positive")
		}
	case domain.KindSubgraph:
		if n.Graph == "" {
			c.Addf(key+".graph", "required")
		}
	case domain.KindNoop:
	default:
		c.Addf(key+".type", "unsupported node type '%s'", n.Type)
	}
}

func validateRetry(c *schema.Collector, key string, r *Retry) {
	if r == nil {
		return
	}
	if r.MaxAttempts < 0 {
		c.Addf(key+".max_attempts", "must be positive")
	}
	if r.Backoff != nil && *r.Backoff < 0 {
		c.Addf(key+".backoff", "must be >= 0")
	}
}

func validateTimeout(c *schema.Collector, key string, t *Timeout) {
	if t != nil && t.Seconds <= 0 {
		c.Addf(key+".seconds", "must be > 0")
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
