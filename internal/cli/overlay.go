package cli

import (
	"context"
	"sync"

	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/aretw0/arbor/pkg/domain"
)

// overlayRecorder collects the nodes a run touched for --trace-graph.
type overlayRecorder struct {
	mu      sync.Mutex
	seen    map[string]bool
	visited []string
	failed  []string
}

func (r *overlayRecorder) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			id := graph.QualifiedID(e.Graph, e.NodeID)
			if r.seen == nil {
				r.seen = make(map[string]bool)
			}
			if !r.seen[id] {
				r.seen[id] = true
				r.visited = append(r.visited, id)
			}
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			if e.Success {
				return
			}
			r.mu.Lock()
			defer r.mu.Unlock()
			r.failed = append(r.failed, graph.QualifiedID(e.Graph, e.NodeID))
		},
	}
}

func (r *overlayRecorder) Overlay() *graph.GraphOverlay {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &graph.GraphOverlay{
		VisitedNodes: append([]string(nil), r.visited...),
		FailedNodes:  append([]string(nil), r.failed...),
	}
}
