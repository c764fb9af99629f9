package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
)

// streamBuffer is the per-subscriber queue size. Events beyond it are dropped.
const streamBuffer = 64

// StreamManager fans run events out to SSE subscribers keyed by run id.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{}
	masker      *observability.Masker
	logger      *slog.Logger
}

// NewStreamManager creates a manager that masks payloads with the default masker.
func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		masker:      observability.DefaultMasker(),
		logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
}

// Subscribe returns a channel of JSON events for runID and its cancel func.
func (sm *StreamManager) Subscribe(runID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, streamBuffer)
	if _, ok := sm.subscribers[runID]; !ok {
		sm.subscribers[runID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[runID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[runID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(sm.subscribers, runID)
				}
			}
			close(ch)
		})
	}
}

// Broadcast sends msg to every subscriber of runID without blocking.
func (sm *StreamManager) Broadcast(runID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[runID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: subscriber buffer full, dropping event", "run_id", runID)
		}
	}
}

func (sm *StreamManager) has(runID string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[runID]) > 0
}

func (sm *StreamManager) publish(runID string, event any) {
	if !sm.has(runID) {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		sm.logger.Warn("SSE: failed to encode event", "run_id", runID, "err", err)
		return
	}
	sm.Broadcast(runID, string(data))
}

type runEnd struct {
	domain.EventBase
	Steps int    `json:"steps"`
	Error string `json:"error,omitempty"`
}

// Hooks publishes lifecycle events to the subscribers of each run. Pass them
// to the engine with arbor.WithLifecycleHooks.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	tool := func(_ context.Context, e *domain.ToolEvent) {
		masked := *e
		masked.Input = sm.masker.Mask(e.Input)
		masked.Output = sm.masker.Mask(e.Output)
		sm.publish(e.RunID, masked)
	}
	return domain.LifecycleHooks{
		OnRunStart: func(_ context.Context, e *domain.RunEvent) {
			sm.publish(e.RunID, domain.RunEvent{EventBase: e.EventBase})
		},
		OnRunEnd: func(_ context.Context, e *domain.RunEvent) {
			end := runEnd{EventBase: e.EventBase, Steps: e.Steps}
			if e.Err != nil {
				end.Error = sm.masker.Text(e.Err.Error())
			}
			sm.publish(e.RunID, end)
		},
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			sm.publish(e.RunID, e)
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			masked := *e
			if d, ok := sm.masker.Mask(e.Delta).(map[string]any); ok {
				masked.Delta = d
			}
			sm.publish(e.RunID, masked)
		},
		OnToolCall:   tool,
		OnToolReturn: tool,
		OnLLMCall:    tool,
		OnLLMReturn:  tool,
	}
}
