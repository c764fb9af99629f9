package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventRunStart   EventType = "run_start"
	EventRunEnd     EventType = "run_end"
	EventNodeEnter  EventType = "node_enter"
	EventNodeLeave  EventType = "node_leave"
	EventToolCall   EventType = "tool_call"
	EventToolReturn EventType = "tool_return"
	EventLLMCall    EventType = "llm_call"
	EventLLMReturn  EventType = "llm_return"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Graph     string    `json:"graph"`
	Depth     int       `json:"depth"`
}

// RunEvent marks the start and end of a top-level run.
type RunEvent struct {
	EventBase
	Inputs   map[string]any `json:"inputs,omitempty"`
	State    map[string]any `json:"state,omitempty"`
	Steps    int            `json:"steps"`
	Duration time.Duration  `json:"duration,omitempty"`
	Err      error          `json:"-"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID   string         `json:"node_id"`
	NodeType string         `json:"node_type"`
	Step     int            `json:"step"`
	Success  bool           `json:"success,omitempty"`
	Next     []string       `json:"next,omitempty"`
	Delta    map[string]any `json:"delta,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
}

// ToolEvent represents a single tool or LLM attempt.
type ToolEvent struct {
	EventBase
	NodeID   string        `json:"node_id"`
	ToolName string        `json:"tool_name"`
	Attempt  int           `json:"attempt"`
	Input    any           `json:"input,omitempty"`
	Output   any           `json:"output,omitempty"`
	IsError  bool          `json:"is_error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
// Any field may be nil.
type LifecycleHooks struct {
	OnRunStart   func(context.Context, *RunEvent)
	OnRunEnd     func(context.Context, *RunEvent)
	OnNodeEnter  func(context.Context, *NodeEvent)
	OnNodeLeave  func(context.Context, *NodeEvent)
	OnToolCall   func(context.Context, *ToolEvent)
	OnToolReturn func(context.Context, *ToolEvent)
	OnLLMCall    func(context.Context, *ToolEvent)
	OnLLMReturn  func(context.Context, *ToolEvent)
}
