package dsl

import (
	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node  config.Node
	graph *GraphBuilder
}

// Uses makes the node a tool node calling tool id.
func (n *NodeBuilder) Uses(tool string) *NodeBuilder {
	n.node.Type = string(domain.KindTool)
	n.node.Uses = tool
	return n
}

// LLM makes the node an llm node rendering the named prompt.
func (n *NodeBuilder) LLM(prompt string) *NodeBuilder {
	n.node.Type = string(domain.KindLLM)
	n.node.Prompt = prompt
	return n
}

// Router makes the node a router. Add branches with Case and Default.
func (n *NodeBuilder) Router() *NodeBuilder {
	n.node.Type = string(domain.KindRouter)
	return n
}

// Case adds a router branch taken when cond holds.
func (n *NodeBuilder) Case(cond any, target string) *NodeBuilder {
	n.node.Type = string(domain.KindRouter)
	n.node.Cases = append(n.node.Cases, config.RouterCase{When: cond, To: target})
	return n
}

// Default sets the router target used when no case holds.
func (n *NodeBuilder) Default(target string) *NodeBuilder {
	n.node.Default = target
	return n
}

// Loop makes the node a loop repeating body at most maxIterations times.
func (n *NodeBuilder) Loop(body string, maxIterations int) *NodeBuilder {
	n.node.Type = string(domain.KindLoop)
	n.node.Body = body
	n.node.MaxIterations = maxIterations
	return n
}

// Until stops the loop once cond holds.
func (n *NodeBuilder) Until(cond any) *NodeBuilder {
	n.node.Until = cond
	return n
}

// Subgraph makes the node run the named subgraph.
func (n *NodeBuilder) Subgraph(name string) *NodeBuilder {
	n.node.Type = string(domain.KindSubgraph)
	n.node.Graph = name
	return n
}

// Noop makes the node a pass-through that only applies its map directive.
func (n *NodeBuilder) Noop() *NodeBuilder {
	n.node.Type = string(domain.KindNoop)
	return n
}

// Input sets a templated argument of a tool or subgraph node.
func (n *NodeBuilder) Input(key string, value any) *NodeBuilder {
	if n.node.Inputs == nil {
		n.node.Inputs = make(map[string]any)
	}
	n.node.Inputs[key] = value
	return n
}

func (n *NodeBuilder) mapOp() *config.MapOperation {
	if n.node.Map == nil {
		n.node.Map = &config.MapOperation{}
	}
	return n.node.Map
}

// Set writes a templated value to a state key after the node succeeds.
func (n *NodeBuilder) Set(key string, value any) *NodeBuilder {
	m := n.mapOp()
	if m.Set == nil {
		m.Set = make(map[string]any)
	}
	m.Set[key] = value
	return n
}

// Merge deep-merges a templated value into a state key.
func (n *NodeBuilder) Merge(key string, value any) *NodeBuilder {
	m := n.mapOp()
	if m.Merge == nil {
		m.Merge = make(map[string]any)
	}
	m.Merge[key] = value
	return n
}

// Delete removes state keys after the node succeeds.
func (n *NodeBuilder) Delete(keys ...string) *NodeBuilder {
	m := n.mapOp()
	m.Delete = append(m.Delete, keys...)
	return n
}

// Retry overrides the retry policy of the node.
func (n *NodeBuilder) Retry(maxAttempts int, backoff float64) *NodeBuilder {
	n.node.Retry = &config.Retry{MaxAttempts: maxAttempts, Backoff: &backoff}
	return n
}

// Timeout overrides the per-call timeout of the node.
func (n *NodeBuilder) Timeout(seconds float64) *NodeBuilder {
	n.node.Timeout = &config.Timeout{Seconds: seconds}
	return n
}

// Error sets the node to continue at target when it fails.
func (n *NodeBuilder) Error(target string) *NodeBuilder {
	if n.node.OnError == nil {
		n.node.OnError = &config.OnError{}
	}
	n.node.OnError.To = target
	return n
}

// Resume makes a failure continue along the node's own edges.
func (n *NodeBuilder) Resume() *NodeBuilder {
	if n.node.OnError == nil {
		n.node.OnError = &config.OnError{}
	}
	n.node.OnError.Resume = true
	return n
}

// Describe sets the display name and description.
func (n *NodeBuilder) Describe(name, description string) *NodeBuilder {
	n.node.Name = name
	n.node.Description = description
	return n
}

// Go adds an unconditional edge to target.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.graph.Edge(n.node.ID, target, nil)
	return n
}

// Branch adds an edge to target guarded by cond.
func (n *NodeBuilder) Branch(cond any, target string) *NodeBuilder {
	n.graph.Edge(n.node.ID, target, cond)
	return n
}

// Build returns the underlying node.
func (n *NodeBuilder) Build() config.Node {
	return n.node
}
