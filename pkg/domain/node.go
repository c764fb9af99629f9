package domain

// NodeKind tags the variant carried by a Node.
type NodeKind string

// Node kinds.
const (
	// KindTool invokes a registered tool with rendered inputs.
	KindTool NodeKind = "tool"
	// KindLLM renders a prompt template and calls the LLM client.
	KindLLM NodeKind = "llm"
	// KindRouter activates every case whose condition holds.
	KindRouter NodeKind = "router"
	// KindLoop repeats a body node until a condition holds.
	KindLoop NodeKind = "loop"
	// KindSubgraph runs a named graph against a copy of the state.
	KindSubgraph NodeKind = "subgraph"
	// KindNoop only applies its map directive.
	KindNoop NodeKind = "noop"
)

// Valid reports whether k is a known node kind.
func (k NodeKind) Valid() bool {
	switch k {
	case KindTool, KindLLM, KindRouter, KindLoop, KindSubgraph, KindNoop:
		return true
	}
	return false
}

// Node represents a unit of work in the graph.
// Only the fields belonging to its Kind are meaningful.
type Node struct {
	ID          string   `json:"id"`
	Kind        NodeKind `json:"type"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`

	Retry   *RetryPolicy `json:"retry,omitempty"`
	Timeout *Timeout     `json:"timeout,omitempty"`
	OnError *OnError     `json:"on_error,omitempty"`

	// Tool
	Uses string `json:"uses,omitempty"`
	// Tool and Subgraph
	Inputs map[string]any `json:"inputs,omitempty"`
	// Tool, LLM, Subgraph and Noop
	Map *MapOperation `json:"map,omitempty"`

	// LLM
	Prompt string `json:"prompt,omitempty"`

	// Router
	Cases   []RouterCase `json:"cases,omitempty"`
	Default string       `json:"default,omitempty"`

	// Loop
	Body          string `json:"body,omitempty"`
	Until         any    `json:"until,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`

	// Subgraph
	Graph string `json:"graph,omitempty"`
}

// RouterCase activates To when When evaluates truthy.
type RouterCase struct {
	When any    `json:"when"`
	To   string `json:"to"`
}

// OnError declares how a node failure is recovered.
type OnError struct {
	// To is a fallback node id.
	To string `json:"to,omitempty"`
	// Resume also follows the node's own edges, guarded against the failure payload.
	Resume bool `json:"resume,omitempty"`
}

// MapOperation mutates the shared state after a node produces output.
type MapOperation struct {
	Set    map[string]any `json:"set,omitempty"`
	Merge  map[string]any `json:"merge,omitempty"`
	Delete []string       `json:"delete,omitempty"`
}

// Empty reports whether the operation carries no directive.
func (m *MapOperation) Empty() bool {
	return m == nil || (len(m.Set) == 0 && len(m.Merge) == 0 && len(m.Delete) == 0)
}

// RetryPolicy bounds how many times a failing call is attempted.
type RetryPolicy struct {
	MaxAttempts int     `json:"max_attempts"`
	Backoff     float64 `json:"backoff"`
}

// Attempts returns MaxAttempts clamped to at least one.
func (r RetryPolicy) Attempts() int {
	if r.MaxAttempts < 1 {
		return 1
	}
	return r.MaxAttempts
}

// Timeout is a wall-clock bound in seconds.
type Timeout struct {
	Seconds float64 `json:"seconds"`
}

// Targets lists the node ids this node can activate without going through edges.
func (n *Node) Targets() []string {
	switch n.Kind {
	case KindRouter:
		out := make([]string, 0, len(n.Cases)+1)
		for _, c := range n.Cases {
			out = append(out, c.To)
		}
		if n.Default != "" {
			out = append(out, n.Default)
		}
		return out
	case KindLoop:
		return []string{n.Body}
	}
	return nil
}
