package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Load reads, decodes and validates an agent document from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent document: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates an agent document from YAML (or JSON) bytes.
func Parse(data []byte) (*Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse agent document: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("agent document is empty")
	}
	doc, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Decode maps a raw document tree onto a Document and applies defaults.
// It does not validate.
func Decode(raw map[string]any) (*Document, error) {
	var doc Document
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &doc,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode agent document: %w", err)
	}
	applyDefaults(&doc)
	return &doc, nil
}

// Prepare applies defaults to a document assembled in code and validates it.
func Prepare(doc *Document) error {
	applyDefaults(doc)
	return Validate(doc)
}

func applyDefaults(doc *Document) {
	if doc.Meta.SchemaVersion == 0 {
		doc.Meta.SchemaVersion = 1
	}
	if doc.State.Reducer == "" {
		doc.State.Reducer = "deepmerge"
	}
	if doc.Memory != nil {
		if doc.Memory.Kind == "" {
			doc.Memory.Kind = "inmemory"
		}
		if doc.Memory.SessionKey == "" {
			doc.Memory.SessionKey = "session_id"
		}
	}
	for i := range doc.Tools {
		if doc.Tools[i].Mode == "" {
			doc.Tools[i].Mode = "callable"
		}
	}
	graphDefaults(&doc.Graph)
	for name, g := range doc.Subgraphs {
		graphDefaults(&g)
		doc.Subgraphs[name] = g
	}
}

func graphDefaults(g *Graph) {
	if g.MaxSteps == 0 {
		g.MaxSteps = domain.DefaultMaxSteps
	}
	for i := range g.Nodes {
		if g.Nodes[i].Type == string(domain.KindLoop) && g.Nodes[i].MaxIterations == 0 {
			g.Nodes[i].MaxIterations = domain.DefaultMaxIterations
		}
	}
}

// LoadEnv loads .env files into the process environment without overriding
// variables that are already set. Missing files are ignored.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

var envPlaceholder = regexp.MustCompile(`^\{\{\s*env\.([A-Za-z0-9_]+)\s*\}\}$`)

// ResolveEnv replaces every string of the form {{ env.NAME }} inside v with
// the value of the environment variable NAME. An unset variable is a ConfigError.
func ResolveEnv(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := ResolveEnv(item)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := ResolveEnv(item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case string:
		m := envPlaceholder.FindStringSubmatch(val)
		if m == nil {
			return val, nil
		}
		env, ok := os.LookupEnv(m[1])
		if !ok {
			return nil, domain.NewConfigError("environment variable '%s' is not set", m[1])
		}
		return env, nil
	default:
		return v, nil
	}
}
