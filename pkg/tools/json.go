package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/kaptinlin/jsonrepair"
)

// ParseObject decodes the "text" argument as JSON. LLM output wrapped in
// markdown fences or slightly malformed is repaired first.
func ParseObject(_ context.Context, args map[string]any) (any, error) {
	text, ok := args[domain.KeyText].(string)
	if !ok {
		return nil, fmt.Errorf("json.parse_object: text must be a string, got %T", args[domain.KeyText])
	}

	data, err := decodeJSON(text)
	if err != nil {
		return nil, fmt.Errorf("json.parse_object: %w", err)
	}
	return domain.NewOutput(200, data, text, nil, data), nil
}

func decodeJSON(text string) (any, error) {
	content := stripFences(text)

	var data any
	if err := json.Unmarshal([]byte(content), &data); err == nil {
		return data, nil
	}

	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return nil, fmt.Errorf("failed to repair JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &data); err != nil {
		return nil, fmt.Errorf("failed to parse repaired JSON: %w", err)
	}
	return data, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
