package schema

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Schema is a map of state keys to their expected types.
type Schema map[string]Type

// ParseShape converts a state shape declaration into a Schema.
// Every value must be a type string.
func ParseShape(shape map[string]any) (Schema, error) {
	var c Collector
	result := make(Schema, len(shape))
	for _, key := range sortedKeys(shape) {
		decl, ok := shape[key].(string)
		if !ok {
			c.Add(key, "type declaration must be a string", shape[key])
			continue
		}
		t, err := ParseType(decl)
		if err != nil {
			c.Add(key, err.Error(), nil)
			continue
		}
		result[key] = t
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Validate checks that every declared key of data conforms to its type.
// A missing key is validated as nil, so only nullable or any types allow it.
// Keys not in the schema are ignored.
func Validate(s Schema, data map[string]any) error {
	if len(s) == 0 {
		return nil
	}

	var c Collector
	for _, key := range sortedKeys(s) {
		value := data[key]
		if err := s[key].Validate(value); err != nil {
			c.Add(key, err.Error(), value)
		}
	}
	return c.Err()
}

// MarshalJSON serializes the schema as a map of keys to type declarations.
func (s Schema) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	raw := make(map[string]string, len(s))
	for key, typ := range s {
		if typ == nil {
			return nil, fmt.Errorf("field %s: type is nil", key)
		}
		raw[key] = typ.Name()
	}
	return json.Marshal(raw)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
