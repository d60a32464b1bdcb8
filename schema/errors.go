package schema

import "errors"

// ErrInvalidEffectiveSchema is returned when the schema set as a whole is
// inconsistent: the resource key table, project components or cross-resource
// references disagree with each other.
var ErrInvalidEffectiveSchema = errors.New("relmodel/schema: invalid effective schema set")

// ErrInvalidResourceSchema is returned when a single resource schema cannot
// be lowered to a relational model.
var ErrInvalidResourceSchema = errors.New("relmodel/schema: invalid resource schema")

// IsInvalidEffectiveSchemaErr returns true if err is or wraps ErrInvalidEffectiveSchema.
func IsInvalidEffectiveSchemaErr(err error) bool {
	return errors.Is(err, ErrInvalidEffectiveSchema)
}

// IsInvalidResourceSchemaErr returns true if err is or wraps ErrInvalidResourceSchema.
func IsInvalidResourceSchemaErr(err error) bool {
	return errors.Is(err, ErrInvalidResourceSchema)
}
