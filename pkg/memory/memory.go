// Package memory keeps conversation history between runs. A Manager primes
// the "messages" state key from a Store before a run and appends the messages
// the run produced afterwards.
package memory

import (
	"context"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// State keys managed by memory.
const (
	StateKey  = "messages"
	WindowKey = "messages_window"
)

// Message is one stored conversation entry.
type Message struct {
	Role       string         `json:"role" mapstructure:"role"`
	Content    any            `json:"content" mapstructure:"content"`
	Name       string         `json:"name,omitempty" mapstructure:"name"`
	ToolCallID string         `json:"tool_call_id,omitempty" mapstructure:"tool_call_id"`
	ToolCalls  any            `json:"tool_calls,omitempty" mapstructure:"tool_calls"`
	Extra      map[string]any `json:"additional_kwargs,omitempty" mapstructure:"additional_kwargs"`
	Metadata   map[string]any `json:"response_metadata,omitempty" mapstructure:"response_metadata"`
}

// Store persists conversation histories by storage id.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the history of id, or domain.ErrSessionNotFound.
	Load(ctx context.Context, id string) ([]Message, error)
	// Append adds messages to the end of the history of id.
	Append(ctx context.Context, id string, msgs []Message) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

// Middleware wraps a Store to add behavior.
type Middleware func(Store) Store

// Chain applies middlewares so the first one is the outermost.
func Chain(s Store, mws ...Middleware) Store {
	for i := len(mws) - 1; i >= 0; i-- {
		s = mws[i](s)
	}
	return s
}

var roleAliases = map[string]string{
	"human": "user",
	"ai":    "assistant",
}

var entryTypes = map[string]string{
	"user":      "human",
	"assistant": "ai",
}

// FromEntry converts a state entry into a Message. Entries without a role or
// type are skipped.
func FromEntry(entry any) (Message, bool) {
	m, ok := entry.(map[string]any)
	if !ok {
		return Message{}, false
	}
	var msg Message
	if err := mapstructure.Decode(m, &msg); err != nil {
		return Message{}, false
	}

	role := msg.Role
	if role == "" {
		role, _ = m["type"].(string)
	}
	role = strings.ToLower(role)
	if alias, ok := roleAliases[role]; ok {
		role = alias
	}
	if role == "" {
		return Message{}, false
	}
	msg.Role = role
	if msg.Role == "tool" && msg.ToolCallID == "" {
		msg.ToolCallID, _ = m["id"].(string)
	}
	return msg, true
}

// Entry converts a Message into its state form.
func (m Message) Entry() map[string]any {
	typ := m.Role
	if t, ok := entryTypes[m.Role]; ok {
		typ = t
	}
	out := map[string]any{
		"type":    typ,
		"role":    m.Role,
		"content": m.Content,
	}
	if m.Name != "" {
		out["name"] = m.Name
	}
	if m.ToolCallID != "" {
		out["tool_call_id"] = m.ToolCallID
	}
	if m.ToolCalls != nil {
		out["tool_calls"] = m.ToolCalls
	}
	if len(m.Extra) > 0 {
		out["additional_kwargs"] = m.Extra
	}
	if len(m.Metadata) > 0 {
		out["response_metadata"] = m.Metadata
	}
	return out
}

// loadHistory treats a missing session as an empty history.
func loadHistory(ctx context.Context, s Store, id string) ([]Message, error) {
	msgs, err := s.Load(ctx, id)
	if err == domain.ErrSessionNotFound {
		return nil, nil
	}
	return msgs, err
}
