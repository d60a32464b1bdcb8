// Package dialect provides the identifier rules of each supported SQL
// engine.
//
// This is a thin wrapper around internal/dialect.
package dialect

import "github.com/pthm/relmodel/internal/dialect"

// Dialect names a target SQL engine.
type Dialect = dialect.Dialect

// Rules is the identifier contract for one dialect.
type Rules = dialect.Rules

// ScalarTypeDefaults carries the physical type names of one dialect.
type ScalarTypeDefaults = dialect.ScalarTypeDefaults

// Supported dialects.
const (
	Pgsql = dialect.Pgsql
	Mssql = dialect.Mssql
)

// HashLength is the number of hex characters appended by shortening.
const HashLength = dialect.HashLength

// All returns the supported dialects in a stable order.
var All = dialect.All

// Parse resolves a dialect name case-insensitively.
var Parse = dialect.Parse

// ForDialect returns the built-in rules for a dialect.
var ForDialect = dialect.ForDialect

// MustForDialect is like ForDialect but panics for unknown dialects.
var MustForDialect = dialect.MustForDialect
