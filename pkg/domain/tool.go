package domain

import "fmt"

// ToolOutput is the normalized envelope returned by tools and LLM clients.
// It is kept as a map so templates can address result.json.count directly.
type ToolOutput = map[string]any

var envelopeKeys = []string{KeyStatus, KeyJSON, KeyText, KeyItems, KeyResult, KeyError}

// NewOutput builds a successful envelope.
func NewOutput(status int, json, text, items, result any) ToolOutput {
	return ToolOutput{
		KeyStatus: status,
		KeyJSON:   json,
		KeyText:   text,
		KeyItems:  items,
		KeyResult: result,
		KeyError:  nil,
	}
}

// ErrorOutput builds a failed envelope with a typed error body.
func ErrorOutput(errType, message string, status int) ToolOutput {
	return ToolOutput{
		KeyStatus: status,
		KeyJSON:   nil,
		KeyText:   nil,
		KeyItems:  nil,
		KeyResult: nil,
		KeyError: map[string]any{
			"type":    errType,
			"message": message,
			"status":  status,
		},
	}
}

// IsEnvelope reports whether m already looks like a normalized output.
func IsEnvelope(m map[string]any) bool {
	if _, ok := m[KeyError]; !ok {
		return false
	}
	for _, k := range envelopeKeys {
		if k == KeyError {
			continue
		}
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// NormalizeOutput converts an arbitrary tool return value into the envelope.
func NormalizeOutput(v any) ToolOutput {
	switch val := v.(type) {
	case nil:
		return NewOutput(200, nil, nil, nil, nil)
	case map[string]any:
		if IsEnvelope(val) {
			out := make(ToolOutput, len(envelopeKeys))
			for _, k := range envelopeKeys {
				out[k] = val[k]
			}
			for k, x := range val {
				out[k] = x
			}
			return out
		}
		var text any
		if s, ok := val[KeyText].(string); ok && s != "" {
			text = s
		} else if s, ok := val["output"].(string); ok && s != "" {
			text = s
		}
		var items any
		if l, ok := val[KeyItems].([]any); ok {
			items = l
		}
		return NewOutput(200, val, text, items, val)
	case []any:
		return NewOutput(200, nil, nil, val, val)
	case string:
		return NewOutput(200, nil, val, nil, val)
	default:
		return NewOutput(200, nil, fmt.Sprint(val), nil, val)
	}
}
