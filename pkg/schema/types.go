package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// Type defines the contract for field validation.
type Type interface {
	// Name returns the declaration this type was parsed from (e.g., "str", "list[int]").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
}

// StringType validates string values.
type StringType struct{}

func (t *StringType) Name() string { return "str" }

func (t *StringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected str, got %T", value)
	}
	return nil
}

// IntType validates integer values.
type IntType struct{}

func (t *IntType) Name() string { return "int" }

func (t *IntType) Validate(value any) error {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return nil
	case float64:
		// Accept floats that are whole numbers (from JSON unmarshaling)
		if v == float64(int64(v)) {
			return nil
		}
		return fmt.Errorf("expected int, got float (not a whole number)")
	default:
		return fmt.Errorf("expected int, got %T", value)
	}
}

// FloatType validates floating-point values. Integers are accepted.
type FloatType struct{}

func (t *FloatType) Name() string { return "float" }

func (t *FloatType) Validate(value any) error {
	switch value.(type) {
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return nil
	default:
		return fmt.Errorf("expected float, got %T", value)
	}
}

// BoolType validates boolean values.
type BoolType struct{}

func (t *BoolType) Name() string { return "bool" }

func (t *BoolType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

// ListType validates slices, optionally checking every element.
type ListType struct {
	elemType Type
}

func (t *ListType) Name() string {
	if t.elemType == nil {
		return "list"
	}
	return fmt.Sprintf("list[%s]", t.elemType.Name())
}

func (t *ListType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return fmt.Errorf("expected list, got %T", value)
	}
	if t.elemType == nil {
		return nil
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elemType.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// DictType validates string-keyed maps.
type DictType struct{}

func (t *DictType) Name() string { return "dict" }

func (t *DictType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("expected dict, got %T", value)
	}
	return nil
}

// AnyType accepts every value, nil included.
type AnyType struct{}

func (t *AnyType) Name() string { return "any" }

func (t *AnyType) Validate(any) error { return nil }

// NullableType accepts nil or a value of the wrapped type.
type NullableType struct {
	inner Type
}

func (t *NullableType) Name() string { return t.inner.Name() + " | null" }

func (t *NullableType) Validate(value any) error {
	if value == nil {
		return nil
	}
	return t.inner.Validate(value)
}

// --- Factory Functions ---

// String creates a string type validator.
func String() Type { return &StringType{} }

// Int creates an integer type validator.
func Int() Type { return &IntType{} }

// Float creates a float type validator.
func Float() Type { return &FloatType{} }

// Bool creates a boolean type validator.
func Bool() Type { return &BoolType{} }

// List creates a list validator. A nil elemType accepts any elements.
func List(elemType Type) Type { return &ListType{elemType: elemType} }

// Dict creates a map validator.
func Dict() Type { return &DictType{} }

// Any creates a validator that accepts everything.
func Any() Type { return &AnyType{} }

// Nullable makes t accept nil.
func Nullable(t Type) Type {
	if _, ok := t.(*NullableType); ok {
		return t
	}
	return &NullableType{inner: t}
}

// ParseType converts a type declaration to a Type.
func ParseType(decl string) (Type, error) {
	decl = strings.TrimSpace(decl)

	if parts := strings.Split(decl, "|"); len(parts) > 1 {
		var inner Type
		nullable := false
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "null" || p == "None" {
				nullable = true
				continue
			}
			if inner != nil {
				return nil, fmt.Errorf("unsupported union type: %s", decl)
			}
			t, err := ParseType(p)
			if err != nil {
				return nil, err
			}
			inner = t
		}
		if inner == nil {
			return nil, fmt.Errorf("unsupported type: %s", decl)
		}
		if nullable {
			return Nullable(inner), nil
		}
		return inner, nil
	}

	if len(decl) > 2 && decl[0] == '[' && decl[len(decl)-1] == ']' {
		elem, err := ParseType(decl[1 : len(decl)-1])
		if err != nil {
			return nil, err
		}
		return List(elem), nil
	}
	if rest, ok := strings.CutPrefix(decl, "list["); ok && strings.HasSuffix(rest, "]") {
		elem, err := ParseType(strings.TrimSuffix(rest, "]"))
		if err != nil {
			return nil, err
		}
		return List(elem), nil
	}

	switch decl {
	case "str", "string":
		return String(), nil
	case "int":
		return Int(), nil
	case "float":
		return Float(), nil
	case "bool":
		return Bool(), nil
	case "list":
		return List(nil), nil
	case "dict":
		return Dict(), nil
	case "any", "":
		return Any(), nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", decl)
	}
}
