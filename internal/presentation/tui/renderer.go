package tui

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// NewRenderer returns a function that renders markdown using glamour.
// It detects a light or dark background.
func NewRenderer(wordWrap int) (func(string) (string, error), error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return r.Render, nil
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ResultMarkdown describes a finished run: its outputs as a table and the
// full state as a JSON block.
func ResultMarkdown(name string, outputs []string, st map[string]any) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", name)

	if len(outputs) > 0 {
		sb.WriteString("| output | value |\n|---|---|\n")
		for _, key := range outputs {
			fmt.Fprintf(&sb, "| %s | %s |\n", key, cell(st[key]))
		}
		sb.WriteString("\n")
	}

	keys := make([]string, 0, len(st))
	for k := range st {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(&sb, "## State (%d keys)\n\n", len(keys))

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprint(st))
	}
	sb.WriteString("```json\n")
	sb.Write(data)
	sb.WriteString("\n```\n")
	return sb.String()
}

func cell(v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		s = "_null_"
	case string:
		s = val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprint(val)
		} else {
			s = string(data)
		}
	}
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
