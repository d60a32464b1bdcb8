package build

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/model"
)

// ResolveScalarType picks the relational type of a scalar schema node.
// Strings need maxLength unless path is in omissions; numbers need
// precision and scale from decimals.
func ResolveScalarType(s *jsonschema.Schema, path jsonpath.Expression, decimals map[string]DecimalInfo, omissions map[string]bool) (model.RelationalScalarType, error) {
	switch t := SchemaType(s); t {
	case "string":
		switch s.Format {
		case "date":
			return model.ScalarOf(model.ScalarDate), nil
		case "date-time":
			return model.ScalarOf(model.ScalarDateTime), nil
		case "time":
			return model.ScalarOf(model.ScalarTime), nil
		}
		if s.MaxLength == nil {
			if omissions[path.Canonical()] {
				return model.StringType(0), nil
			}
			return model.RelationalScalarType{}, fmt.Errorf("string schema maxLength is required at %s", path)
		}
		if *s.MaxLength <= 0 {
			return model.RelationalScalarType{}, fmt.Errorf("string schema maxLength must be positive at %s", path)
		}
		return model.StringType(*s.MaxLength), nil
	case "integer":
		if s.Format == "int64" {
			return model.ScalarOf(model.ScalarInt64), nil
		}
		return model.ScalarOf(model.ScalarInt32), nil
	case "number":
		return resolveDecimal(path, decimals)
	case "boolean":
		return model.ScalarOf(model.ScalarBoolean), nil
	case "":
		return model.RelationalScalarType{}, fmt.Errorf("schema type must be specified at %s", path)
	default:
		return model.RelationalScalarType{}, fmt.Errorf("unsupported scalar type '%s' at %s", t, path)
	}
}

func resolveDecimal(path jsonpath.Expression, decimals map[string]DecimalInfo) (model.RelationalScalarType, error) {
	info, ok := decimals[path.Canonical()]
	if !ok {
		return model.RelationalScalarType{}, fmt.Errorf("decimal property validation info is required for number properties at %s", path)
	}
	if info.TotalDigits == nil || info.DecimalPlaces == nil {
		return model.RelationalScalarType{}, fmt.Errorf("decimal property validation info must include totalDigits and decimalPlaces at %s", path)
	}
	digits, places := *info.TotalDigits, *info.DecimalPlaces
	if digits <= 0 || places < 0 {
		return model.RelationalScalarType{}, fmt.Errorf("decimal property validation info must be positive for %s", path)
	}
	if places > digits {
		return model.RelationalScalarType{}, fmt.Errorf("decimal places cannot exceed total digits for %s", path)
	}
	return model.DecimalType(digits, places), nil
}
