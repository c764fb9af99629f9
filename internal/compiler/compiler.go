// Package compiler turns validated graph declarations into executable domain graphs.
package compiler

import (
	"sort"
	"strings"

	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
)

// Compile builds the node index, edge lists and entry nodes of one graph and
// rejects cycles through edges or loop bodies.
func Compile(name string, cfg config.Graph) (*domain.Graph, error) {
	g := &domain.Graph{
		Name:          name,
		Nodes:         make(map[string]*domain.Node, len(cfg.Nodes)),
		Order:         make([]string, 0, len(cfg.Nodes)),
		Inputs:        cfg.Inputs,
		Outputs:       cfg.Outputs,
		MaxSteps:      cfg.MaxSteps,
		Timeout:       cfg.Timeout.Domain(),
		EdgesBySource: make(map[string][]domain.Edge),
	}
	if g.MaxSteps <= 0 {
		g.MaxSteps = domain.DefaultMaxSteps
	}

	for _, nc := range cfg.Nodes {
		if _, exists := g.Nodes[nc.ID]; exists {
			return nil, domain.NewConfigError("graph '%s' has duplicate node id '%s'", name, nc.ID)
		}
		node, err := buildNode(name, nc)
		if err != nil {
			return nil, err
		}
		g.Nodes[nc.ID] = node
		g.Order = append(g.Order, nc.ID)
	}

	for _, ec := range cfg.Edges {
		if _, ok := g.Nodes[ec.From]; !ok {
			return nil, domain.NewConfigError("graph '%s' edge references unknown node '%s'", name, ec.From)
		}
		if _, ok := g.Nodes[ec.To]; !ok {
			return nil, domain.NewConfigError("graph '%s' edge references unknown node '%s'", name, ec.To)
		}
		e := domain.Edge{From: ec.From, To: ec.To, When: ec.When}
		g.Edges = append(g.Edges, e)
		g.EdgesBySource[e.From] = append(g.EdgesBySource[e.From], e)
	}

	for _, id := range g.Order {
		n := g.Nodes[id]
		for _, target := range n.Targets() {
			if _, ok := g.Nodes[target]; !ok {
				return nil, domain.NewConfigError("node '%s' in graph '%s' targets unknown node '%s'", id, name, target)
			}
		}
		if n.OnError != nil && n.OnError.To != "" {
			if _, ok := g.Nodes[n.OnError.To]; !ok {
				return nil, domain.NewConfigError("node '%s' in graph '%s' has on_error to unknown node '%s'", id, name, n.OnError.To)
			}
		}
	}

	entries, err := entryNodes(g)
	if err != nil {
		return nil, err
	}
	g.EntryNodes = entries

	if err := checkCycles(g); err != nil {
		return nil, err
	}
	return g, nil
}

// CompileAll compiles the root graph and every subgraph, then rejects
// subgraphs that reference each other in a cycle.
func CompileAll(root config.Graph, subgraphs map[string]config.Graph) (*domain.Graph, map[string]*domain.Graph, error) {
	rootGraph, err := Compile(domain.RootGraphName, root)
	if err != nil {
		return nil, nil, err
	}

	compiled := make(map[string]*domain.Graph, len(subgraphs))
	for _, name := range sortedNames(subgraphs) {
		g, err := Compile(name, subgraphs[name])
		if err != nil {
			return nil, nil, err
		}
		compiled[name] = g
	}

	if err := CheckSubgraphCycles(rootGraph, compiled); err != nil {
		return nil, nil, err
	}
	return rootGraph, compiled, nil
}

func buildNode(graph string, nc config.Node) (*domain.Node, error) {
	kind := domain.NodeKind(nc.Type)
	if !kind.Valid() {
		return nil, domain.NewConfigError("node '%s' in graph '%s' has unsupported type '%s'", nc.ID, graph, nc.Type)
	}

	n := &domain.Node{
		ID:            nc.ID,
		Kind:          kind,
		Name:          nc.Name,
		Description:   nc.Description,
		Retry:         nc.Retry.Policy(),
		Timeout:       nc.Timeout.Domain(),
		OnError:       nc.OnError.Domain(),
		Uses:          nc.Uses,
		Inputs:        nc.Inputs,
		Map:           nc.Map.Domain(),
		Prompt:        nc.Prompt,
		Default:       nc.Default,
		Body:          nc.Body,
		Until:         nc.Until,
		MaxIterations: nc.MaxIterations,
		Graph:         nc.Graph,
	}
	for _, c := range nc.Cases {
		n.Cases = append(n.Cases, domain.RouterCase{When: c.When, To: c.To})
	}
	if kind == domain.KindLoop && n.MaxIterations <= 0 {
		n.MaxIterations = domain.DefaultMaxIterations
	}
	return n, nil
}

// entryNodes returns the nodes nothing points at. Router targets and loop
// bodies count as incoming edges.
func entryNodes(g *domain.Graph) ([]string, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for _, id := range g.Order {
		inDegree[id] = 0
	}
	for _, e := range g.Edges {
		inDegree[e.To]++
	}
	for _, id := range g.Order {
		for _, target := range g.Nodes[id].Targets() {
			inDegree[target]++
		}
	}

	var entries []string
	for _, id := range g.Order {
		if inDegree[id] == 0 {
			entries = append(entries, id)
		}
	}
	if len(entries) == 0 {
		return nil, domain.NewConfigError("graph '%s' has no entry nodes", g.Name)
	}
	return entries, nil
}

// checkCycles runs a DFS over edges plus loop body links.
func checkCycles(g *domain.Graph) error {
	adjacency := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		adjacency[e.From] = append(adjacency[e.From], e.To)
	}
	for _, id := range g.Order {
		if n := g.Nodes[id]; n.Kind == domain.KindLoop {
			adjacency[id] = append(adjacency[id], n.Body)
		}
	}

	if path := findCycle(g.Order, adjacency); path != nil {
		repeated := path[len(path)-1]
		for i, id := range path {
			if id == repeated {
				path = path[i:]
				break
			}
		}
		return domain.NewConfigError("graph '%s' contains a cycle: %s", g.Name, strings.Join(path, " -> "))
	}
	return nil
}

// CheckSubgraphCycles rejects graphs that reach themselves through subgraph nodes.
func CheckSubgraphCycles(root *domain.Graph, subgraphs map[string]*domain.Graph) error {
	deps := make(map[string][]string, len(subgraphs)+1)
	order := []string{domain.RootGraphName}
	deps[domain.RootGraphName] = root.SubgraphRefs()
	for _, name := range sortedNames(subgraphs) {
		order = append(order, name)
		deps[name] = subgraphs[name].SubgraphRefs()
	}

	if path := findCycle(order, deps); path != nil {
		return domain.NewConfigError("subgraph dependency cycle detected: %s", strings.Join(path, " -> "))
	}
	return nil
}

// findCycle returns the DFS stack that led to the first cycle, ending with the
// repeated id, or nil.
func findCycle(order []string, adjacency map[string][]string) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	status := make(map[string]int, len(order))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		switch status[id] {
		case visiting:
			cycle = append(append([]string{}, path...), id)
			return true
		case done:
			return false
		}

		status[id] = visiting
		path = append(path, id)
		for _, next := range adjacency[id] {
			if visit(next) {
				return true
			}
		}
		path = path[:len(path)-1]
		status[id] = done
		return false
	}

	for _, id := range order {
		if status[id] == unvisited && visit(id) {
			return cycle
		}
	}
	return nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
