// Package dialect defines the SQL dialects the model can be bound to and the
// per-dialect identifier rules that go with them.
package dialect

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

var (
	// ErrUnknownDialect is returned when a dialect name is not recognized.
	ErrUnknownDialect = errors.New("relmodel/dialect: unknown dialect")

	// ErrDialectMismatch is returned when a build is requested for one
	// dialect with rules belonging to another.
	ErrDialectMismatch = errors.New("relmodel/dialect: dialect mismatch")
)

// IsUnknownDialectErr returns true if err is or wraps ErrUnknownDialect.
func IsUnknownDialectErr(err error) bool {
	return errors.Is(err, ErrUnknownDialect)
}

// IsDialectMismatchErr returns true if err is or wraps ErrDialectMismatch.
func IsDialectMismatchErr(err error) bool {
	return errors.Is(err, ErrDialectMismatch)
}

// Dialect names a target SQL engine.
type Dialect string

const (
	Pgsql Dialect = "Pgsql"
	Mssql Dialect = "Mssql"
)

// All returns the supported dialects in a stable order.
func All() []Dialect {
	return []Dialect{Pgsql, Mssql}
}

// Parse resolves a dialect name case-insensitively. "postgres" and
// "sqlserver" are accepted as aliases.
func Parse(name string) (Dialect, error) {
	folded := cases.Fold().String(strings.TrimSpace(name))
	switch folded {
	case "pgsql", "postgres", "postgresql":
		return Pgsql, nil
	case "mssql", "sqlserver":
		return Mssql, nil
	}
	return "", fmt.Errorf("%w: %q (expected pgsql or mssql)", ErrUnknownDialect, name)
}

// ScalarTypeDefaults carries the physical type names a dialect uses for each
// scalar kind.
type ScalarTypeDefaults struct {
	String   string
	Int32    string
	Int64    string
	Decimal  string
	Boolean  string
	Date     string
	DateTime string
	Time     string
}

// Rules is the identifier contract for one dialect.
type Rules interface {
	Dialect() Dialect
	MaxIdentifierLength() int
	ScalarTypeDefaults() ScalarTypeDefaults
	// IdentifierLength measures an identifier the way the engine does.
	IdentifierLength(identifier string) int
	// ShortenIdentifier returns identifier unchanged when it fits, otherwise
	// a truncated prefix plus a hash of the full identifier.
	ShortenIdentifier(identifier string) string
	// ShortenWithSignature is like ShortenIdentifier but hashes signature
	// instead of the identifier, so that semantically equal constraints
	// shorten to the same name.
	ShortenWithSignature(identifier, signature string) string
}

// HashLength is the number of hex characters appended by shortening.
const HashLength = 10

type rules struct {
	dialect  Dialect
	maxLen   int
	defaults ScalarTypeDefaults
	measure  func(string) int
}

var (
	pgsqlRules = &rules{
		dialect: Pgsql,
		maxLen:  63,
		defaults: ScalarTypeDefaults{
			String:   "varchar",
			Int32:    "integer",
			Int64:    "bigint",
			Decimal:  "numeric",
			Boolean:  "boolean",
			Date:     "date",
			DateTime: "timestamp with time zone",
			Time:     "time",
		},
		measure: func(s string) int { return len(s) },
	}

	mssqlRules = &rules{
		dialect: Mssql,
		maxLen:  128,
		defaults: ScalarTypeDefaults{
			String:   "nvarchar",
			Int32:    "int",
			Int64:    "bigint",
			Decimal:  "decimal",
			Boolean:  "bit",
			Date:     "date",
			DateTime: "datetime2(7)",
			Time:     "time",
		},
		measure: utf16Length,
	}
)

// ForDialect returns the built-in rules for d.
func ForDialect(d Dialect) (Rules, error) {
	switch d {
	case Pgsql:
		return pgsqlRules, nil
	case Mssql:
		return mssqlRules, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, string(d))
}

// MustForDialect is like ForDialect but panics for unknown dialects.
func MustForDialect(d Dialect) Rules {
	r, err := ForDialect(d)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *rules) Dialect() Dialect                       { return r.dialect }
func (r *rules) MaxIdentifierLength() int               { return r.maxLen }
func (r *rules) ScalarTypeDefaults() ScalarTypeDefaults { return r.defaults }
func (r *rules) IdentifierLength(s string) int          { return r.measure(s) }

func (r *rules) ShortenIdentifier(identifier string) string {
	return r.ShortenWithSignature(identifier, identifier)
}

func (r *rules) ShortenWithSignature(identifier, signature string) string {
	if r.measure(identifier) <= r.maxLen {
		return identifier
	}

	sum := sha256.Sum256([]byte(signature))
	suffix := "_" + hex.EncodeToString(sum[:])[:HashLength]
	budget := r.maxLen - r.measure(suffix)

	// Truncate at a rune boundary so the prefix is always valid text.
	var prefix strings.Builder
	used := 0
	for _, rn := range identifier {
		w := r.measure(string(rn))
		if used+w > budget {
			break
		}
		prefix.WriteRune(rn)
		used += w
	}
	return prefix.String() + suffix
}

func utf16Length(s string) int {
	n := 0
	for _, rn := range s {
		if rn == utf8.RuneError {
			n++
			continue
		}
		n += utf16.RuneLen(rn)
	}
	return n
}
