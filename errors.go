package relmodel

import (
	"github.com/pthm/relmodel/internal/collision"
	"github.com/pthm/relmodel/internal/dialect"
	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/passes"
	"github.com/pthm/relmodel/schema"
)

// Sentinel errors for every failure class of a build. A build either
// returns a complete model or one of these, wrapped with a message that
// names the resource, path or table at fault. There are no warnings and no
// partial models.
var (
	// ErrInvalidEffectiveSchema is returned when the schema set disagrees
	// with itself: resource keys, project components or cross-resource
	// references do not line up.
	ErrInvalidEffectiveSchema = schema.ErrInvalidEffectiveSchema

	// ErrInvalidResourceSchema is returned when one resource cannot be
	// lowered: a missing type, an identity path that maps to no column, a
	// bad name override.
	ErrInvalidResourceSchema = schema.ErrInvalidResourceSchema

	// ErrInvalidJsonPath is returned for a path outside the supported
	// subset of JSONPath.
	ErrInvalidJsonPath = jsonpath.ErrInvalidJsonPath

	// ErrIdentifierCollision is returned when overrides or dialect
	// shortening give two different identifiers the same final name.
	ErrIdentifierCollision = collision.ErrIdentifierCollision

	// ErrInvalidModel is returned when a derived table or resource breaks a
	// model invariant, such as a duplicate column.
	ErrInvalidModel = model.ErrInvalidModel

	// ErrDuplicatePassOrder is returned when two passes share an order.
	ErrDuplicatePassOrder = passes.ErrDuplicatePassOrder

	// ErrUnknownDialect is returned for a dialect with no built-in rules.
	ErrUnknownDialect = dialect.ErrUnknownDialect

	// ErrDialectMismatch is returned when the requested dialect and the
	// supplied rules disagree.
	ErrDialectMismatch = dialect.ErrDialectMismatch
)

// IsInvalidEffectiveSchemaErr returns true if err is or wraps ErrInvalidEffectiveSchema.
var IsInvalidEffectiveSchemaErr = schema.IsInvalidEffectiveSchemaErr

// IsInvalidResourceSchemaErr returns true if err is or wraps ErrInvalidResourceSchema.
var IsInvalidResourceSchemaErr = schema.IsInvalidResourceSchemaErr

// IsInvalidJsonPathErr returns true if err is or wraps ErrInvalidJsonPath.
var IsInvalidJsonPathErr = jsonpath.IsInvalidJsonPathErr

// IsIdentifierCollisionErr returns true if err is or wraps ErrIdentifierCollision.
var IsIdentifierCollisionErr = collision.IsIdentifierCollisionErr

// IsInvalidModelErr returns true if err is or wraps ErrInvalidModel.
var IsInvalidModelErr = model.IsInvalidModelErr

// IsDuplicatePassOrderErr returns true if err is or wraps ErrDuplicatePassOrder.
var IsDuplicatePassOrderErr = passes.IsDuplicatePassOrderErr

// IsUnknownDialectErr returns true if err is or wraps ErrUnknownDialect.
var IsUnknownDialectErr = dialect.IsUnknownDialectErr

// IsDialectMismatchErr returns true if err is or wraps ErrDialectMismatch.
var IsDialectMismatchErr = dialect.IsDialectMismatchErr
