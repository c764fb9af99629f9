package observability

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

// Redacted replaces masked values.
const Redacted = "[REDACTED]"

// DefaultMaxText truncates long strings.
const DefaultMaxText = 2048

// DefaultDenyKeys are map keys whose values are always redacted.
var DefaultDenyKeys = []string{
	"api_key",
	"authorization",
	"password",
	"token",
	"secret",
	"cookie",
	"session",
	"client_secret",
	"private_key",
}

// Rule rewrites matches of Pattern with Replacement (regexp.ReplaceAllString syntax).
type Rule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// DefaultRules redact bearer tokens and long opaque identifiers.
func DefaultRules() []Rule {
	return []Rule{
		{regexp.MustCompile(`(?i)(Bearer\s+)[A-Za-z0-9.\-_=]+`), "${1}" + Redacted},
		{regexp.MustCompile(`([A-Za-z0-9]{4})[A-Za-z0-9]{8,}([A-Za-z0-9]{4})`), "${1}" + Redacted + "${2}"},
	}
}

// Masker redacts sensitive fields and truncates large strings in payloads
// before they are logged or attached to spans.
type Masker struct {
	deny    map[string]struct{}
	rules   []Rule
	maxText int
}

// NewMasker creates a masker. A non-positive maxText disables truncation.
func NewMasker(denyKeys []string, rules []Rule, maxText int) *Masker {
	deny := make(map[string]struct{}, len(denyKeys))
	for _, k := range denyKeys {
		deny[strings.ToLower(k)] = struct{}{}
	}
	if maxText < 0 {
		maxText = 0
	}
	return &Masker{deny: deny, rules: rules, maxText: maxText}
}

// DefaultMasker uses DefaultDenyKeys, DefaultRules and DefaultMaxText.
func DefaultMasker() *Masker {
	return NewMasker(DefaultDenyKeys, DefaultRules(), DefaultMaxText)
}

// Mask returns a redacted copy of v. The input is never modified.
func (m *Masker) Mask(v any) any {
	if m == nil {
		return v
	}
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if m.Denied(k) {
				out[k] = Redacted
				continue
			}
			out[k] = m.Mask(item)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if m.Denied(k) {
				out[k] = Redacted
				continue
			}
			out[k] = m.Text(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = m.Mask(item)
		}
		return out
	case string:
		return m.Text(val)
	case error:
		return m.Text(val.Error())
	}
	return v
}

// Denied reports whether values under key are always redacted.
func (m *Masker) Denied(key string) bool {
	_, ok := m.deny[strings.ToLower(key)]
	return ok
}

// Text applies the rules and truncation to s.
func (m *Masker) Text(s string) string {
	for _, r := range m.rules {
		s = r.Pattern.ReplaceAllString(s, r.Replacement)
	}
	if m.maxText > 0 && len(s) > m.maxText {
		return s[:m.maxText] + "…"
	}
	return s
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr that masks attribute values.
func (m *Masker) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if m.Denied(a.Key) {
		return slog.String(a.Key, Redacted)
	}
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, m.Text(a.Value.String()))
	case slog.KindAny:
		switch v := a.Value.Any().(type) {
		case error:
			return slog.String(a.Key, m.Text(v.Error()))
		case map[string]any, map[string]string, []any:
			return slog.Any(a.Key, m.Mask(v))
		case fmt.Stringer:
			return slog.String(a.Key, m.Text(v.String()))
		}
	}
	return a
}

// Summary describes a payload without dumping it: its keys or length and a
// masked preview.
func (m *Masker) Summary(payload any, preview int) map[string]any {
	if payload == nil {
		return nil
	}
	masked := m.Mask(payload)
	out := map[string]any{}
	switch v := masked.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out["keys"] = keys
	case []any:
		out["items"] = len(v)
	}
	text := fmt.Sprint(masked)
	if len(text) > preview {
		text = text[:preview] + "…"
	}
	out["preview"] = text
	return out
}
