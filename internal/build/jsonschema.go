package build

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pthm/relmodel/schema"
)

// SchemaKind is the structural kind of a JSON Schema node.
type SchemaKind int

const (
	KindObject SchemaKind = iota
	KindArray
	KindScalar
)

const extensionProperty = "_ext"

// DecodeSchema decodes a jsonSchemaForInsert document.
func DecodeSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SchemaType returns the declared type of s, ignoring a "null" member of a
// type array. It returns "" when no type is declared.
func SchemaType(s *jsonschema.Schema) string {
	if s.Type != "" {
		return s.Type
	}
	for _, t := range s.Types {
		if t != "null" {
			return t
		}
	}
	return ""
}

// DetermineKind classifies s. Objects and arrays may omit "type" when they
// declare properties or items.
func DetermineKind(s *jsonschema.Schema, path string) (SchemaKind, error) {
	switch SchemaType(s) {
	case "object":
		return KindObject, nil
	case "array":
		return KindArray, nil
	case "string", "integer", "number", "boolean":
		return KindScalar, nil
	case "":
		if s.Properties != nil {
			return KindObject, nil
		}
		if s.Items != nil {
			return KindArray, nil
		}
		return 0, fmt.Errorf("schema type must be specified at %s", path)
	default:
		return 0, fmt.Errorf("unsupported schema type '%s' at %s", SchemaType(s), path)
	}
}

// IsXNullable reports whether s carries "x-nullable": true or lists "null"
// among its types.
func IsXNullable(s *jsonschema.Schema) bool {
	if slices.Contains(s.Types, "null") {
		return true
	}
	if v, ok := s.Extra["x-nullable"]; ok {
		b, isBool := v.(bool)
		return isBool && b
	}
	return false
}

// IsRequired reports whether name is listed in s.required.
func IsRequired(s *jsonschema.Schema, name string) bool {
	return slices.Contains(s.Required, name)
}

// SortedProperties returns the property names of s in ordinal order.
func SortedProperties(s *jsonschema.Schema) []string {
	return schema.SortedKeys(s.Properties)
}

// unsupportedKeyword returns the first composition keyword used by s.
func unsupportedKeyword(s *jsonschema.Schema) string {
	switch {
	case s.Ref != "":
		return "$ref"
	case len(s.OneOf) > 0:
		return "oneOf"
	case len(s.AnyOf) > 0:
		return "anyOf"
	case len(s.AllOf) > 0:
		return "allOf"
	}
	return ""
}
