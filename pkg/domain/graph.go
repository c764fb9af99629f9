package domain

// Edge is a transition from one node to another.
// A nil When means the edge is always taken.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	When any    `json:"when,omitempty"`
}

// Graph is a compiled, immutable graph description.
type Graph struct {
	Name     string           `json:"name"`
	Nodes    map[string]*Node `json:"nodes"`
	Order    []string         `json:"order"`
	Edges    []Edge           `json:"edges"`
	Inputs   []string         `json:"inputs"`
	Outputs  []string         `json:"outputs"`
	MaxSteps int              `json:"max_steps"`
	Timeout  *Timeout         `json:"timeout,omitempty"`

	// Derived at compile time.
	EdgesBySource map[string][]Edge `json:"-"`
	EntryNodes    []string          `json:"entry_nodes"`
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.Nodes[id]
	return n, ok
}

// OrderedNodes returns the nodes in declaration order.
func (g *Graph) OrderedNodes() []*Node {
	out := make([]*Node, 0, len(g.Order))
	for _, id := range g.Order {
		out = append(out, g.Nodes[id])
	}
	return out
}

// SubgraphRefs lists the subgraph names referenced by subgraph nodes.
func (g *Graph) SubgraphRefs() []string {
	var refs []string
	for _, id := range g.Order {
		if n := g.Nodes[id]; n.Kind == KindSubgraph {
			refs = append(refs, n.Graph)
		}
	}
	return refs
}
