package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// GraphOverlay contains run data to visualize on the graph.
// Node ids are qualified with QualifiedID.
type GraphOverlay struct {
	VisitedNodes []string
	FailedNodes  []string
}

// maxLabel bounds condition labels on edges.
const maxLabel = 40

// QualifiedID names a node across graphs: root nodes keep their id, subgraph
// nodes are prefixed with the subgraph name.
func QualifiedID(graphName, nodeID string) string {
	if graphName == "" || graphName == domain.RootGraphName {
		return nodeID
	}
	return graphName + "/" + nodeID
}

// GenerateMermaid produces a Mermaid flowchart for the root graph and its
// subgraphs. Shapes follow the node kind:
// - Entry: ((Circle))
// - Tool: [[Subroutine]]
// - LLM: [/Parallelogram/]
// - Router: {Rhombus}
// - Loop: {{Hexagon}}
// - Subgraph: [(Cylinder)]
// - Noop: [Rectangle]
// Subgraphs are drawn as Mermaid subgraph blocks.
func GenerateMermaid(root *domain.Graph, subgraphs map[string]*domain.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	writeGraph(&sb, root, "    ")

	names := make([]string, 0, len(subgraphs))
	for name := range subgraphs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "    subgraph %s[\"%s\"]\n", sanitizeMermaidID("sg/"+name), name)
		writeGraph(&sb, subgraphs[name], "        ")
		sb.WriteString("    end\n")
	}

	// Subgraph calls jump into the nested graph's entry nodes.
	for _, g := range append([]*domain.Graph{root}, sortedGraphs(subgraphs, names)...) {
		for _, n := range g.OrderedNodes() {
			if n.Kind != domain.KindSubgraph {
				continue
			}
			sub, ok := subgraphs[n.Graph]
			if !ok {
				continue
			}
			for _, entry := range sub.EntryNodes {
				fmt.Fprintf(&sb, "    %s -.-> %s\n", nodeRef(g, n.ID), nodeRef(sub, entry))
			}
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#b71c1c,stroke-width:4px,color:#000;\n")
		writeClass(&sb, overlay.VisitedNodes, "visited")
		writeClass(&sb, overlay.FailedNodes, "failed")
	}

	return sb.String()
}

func sortedGraphs(subgraphs map[string]*domain.Graph, names []string) []*domain.Graph {
	out := make([]*domain.Graph, 0, len(names))
	for _, name := range names {
		out = append(out, subgraphs[name])
	}
	return out
}

func writeClass(sb *strings.Builder, ids []string, class string) {
	seen := make(map[string]bool)
	for _, id := range ids {
		safeID := sanitizeMermaidID(id)
		if safeID == "" || seen[safeID] {
			continue
		}
		seen[safeID] = true
		fmt.Fprintf(sb, "    class %s %s;\n", safeID, class)
	}
}

func writeGraph(sb *strings.Builder, g *domain.Graph, indent string) {
	entries := make(map[string]bool, len(g.EntryNodes))
	for _, id := range g.EntryNodes {
		entries[id] = true
	}

	for _, n := range g.OrderedNodes() {
		ref := nodeRef(g, n.ID)
		opener, closer := shape(n.Kind)
		if entries[n.ID] {
			opener, closer = "((", "))"
		}

		label := n.ID
		switch n.Kind {
		case domain.KindTool:
			label += " <br/> " + n.Uses
		case domain.KindLLM:
			label += " <br/> " + n.Prompt
		case domain.KindSubgraph:
			label += " <br/> " + n.Graph
		}
		if n.Timeout != nil {
			label += fmt.Sprintf(" <br/> ⏱️ %gs", n.Timeout.Seconds)
		}
		fmt.Fprintf(sb, "%s%s%s\"%s\"%s\n", indent, ref, opener, label, closer)

		switch n.Kind {
		case domain.KindRouter:
			for _, c := range n.Cases {
				fmt.Fprintf(sb, "%s%s -- \"%s\" --> %s\n", indent, ref, conditionLabel(c.When), nodeRef(g, c.To))
			}
			if n.Default != "" {
				fmt.Fprintf(sb, "%s%s -- \"default\" --> %s\n", indent, ref, nodeRef(g, n.Default))
			}
		case domain.KindLoop:
			label := fmt.Sprintf("loop ≤%d", n.MaxIterations)
			if n.Until != nil {
				label += " until " + conditionLabel(n.Until)
			}
			fmt.Fprintf(sb, "%s%s == \"%s\" ==> %s\n", indent, ref, label, nodeRef(g, n.Body))
		}
		if n.OnError != nil && n.OnError.To != "" {
			fmt.Fprintf(sb, "%s%s -. \"on_error\" .-> %s\n", indent, ref, nodeRef(g, n.OnError.To))
		}
	}

	for _, e := range g.Edges {
		from, to := nodeRef(g, e.From), nodeRef(g, e.To)
		if e.When == nil {
			fmt.Fprintf(sb, "%s%s --> %s\n", indent, from, to)
			continue
		}
		fmt.Fprintf(sb, "%s%s -- \"%s\" --> %s\n", indent, from, conditionLabel(e.When), to)
	}
}

func shape(kind domain.NodeKind) (string, string) {
	switch kind {
	case domain.KindTool:
		return "[[", "]]"
	case domain.KindLLM:
		return "[/", "/]"
	case domain.KindRouter:
		return "{", "}"
	case domain.KindLoop:
		return "{{", "}}"
	case domain.KindSubgraph:
		return "[(", ")]"
	}
	return "[", "]"
}

func nodeRef(g *domain.Graph, nodeID string) string {
	return sanitizeMermaidID(QualifiedID(g.Name, nodeID))
}

// conditionLabel renders a condition tree as compact JSON with single quotes.
func conditionLabel(cond any) string {
	data, err := json.Marshal(cond)
	if err != nil {
		return fmt.Sprint(cond)
	}
	s := strings.ReplaceAll(string(data), "\"", "'")
	if len([]rune(s)) > maxLabel {
		s = string([]rune(s)[:maxLabel]) + "…"
	}
	return s
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
