package runtime

import (
	"log/slog"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/llm"
	"github.com/aretw0/arbor/pkg/registry"
)

// runContext holds the counters and collaborators of one top-level run.
// Subgraph runs share it with their parent.
type runContext struct {
	id        string
	client    llm.Client
	overrides map[string]registry.ToolFunction
	steps     int
	maxSteps  int
	maxDepth  int
	logger    *slog.Logger
}

// frame is one graph being traversed: the root graph or a subgraph.
type frame struct {
	graph  *domain.Graph
	state  map[string]any
	inputs map[string]any
	depth  int
}
