package render

import (
	"fmt"
	"strconv"
	"strings"
)

// Message is one entry of a template's ordered message list.
type Message struct {
	Role    string `mapstructure:"role" json:"role" yaml:"role"`
	Content string `mapstructure:"content" json:"content" yaml:"content"`
}

// Template is a named prompt. Each role is a template source.
type Template struct {
	System    string    `mapstructure:"system" json:"system,omitempty" yaml:"system,omitempty"`
	User      string    `mapstructure:"user" json:"user,omitempty" yaml:"user,omitempty"`
	Assistant string    `mapstructure:"assistant" json:"assistant,omitempty" yaml:"assistant,omitempty"`
	Messages  []Message `mapstructure:"messages" json:"messages,omitempty" yaml:"messages,omitempty"`
}

// Empty reports whether the template declares no role at all.
func (t Template) Empty() bool {
	return t.System == "" && t.User == "" && t.Assistant == "" && len(t.Messages) == 0
}

// Roles lists the declared roles in prompt order.
// Message entries are named messages[i]#role.
func (t Template) Roles() []string {
	var roles []string
	if t.System != "" {
		roles = append(roles, "system")
	}
	if t.User != "" {
		roles = append(roles, "user")
	}
	if t.Assistant != "" {
		roles = append(roles, "assistant")
	}
	for i, m := range t.Messages {
		roles = append(roles, MessageRole(i, m.Role))
	}
	return roles
}

// MessageRole names the i-th message entry.
func MessageRole(i int, role string) string {
	return fmt.Sprintf("messages[%d]#%s", i, role)
}

// ParseMessageRole splits a messages[i]#role name. ok is false for plain roles.
func ParseMessageRole(name string) (index int, role string, ok bool) {
	rest, found := strings.CutPrefix(name, "messages[")
	if !found {
		return 0, "", false
	}
	idx, role, found := strings.Cut(rest, "]#")
	if !found {
		return 0, "", false
	}
	i, err := strconv.Atoi(idx)
	if err != nil || i < 0 {
		return 0, "", false
	}
	return i, role, true
}

// Source returns the template source for a role name.
func (t Template) Source(role string) (string, bool) {
	switch role {
	case "system":
		return t.System, t.System != ""
	case "user":
		return t.User, t.User != ""
	case "assistant":
		return t.Assistant, t.Assistant != ""
	}
	i, _, ok := ParseMessageRole(role)
	if !ok || i >= len(t.Messages) {
		return "", false
	}
	return t.Messages[i].Content, true
}
