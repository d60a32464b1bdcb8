// Package model defines the relational model produced by the compiler:
// physical names, columns, tables, constraints, and the per-resource and
// schema-set aggregates built from them.
//
// Values in this package are treated as immutable once built. Passes that
// change a model produce a new value and write it back; slices held by a
// published model are never mutated in place.
package model

import (
	"errors"
	"strings"
)

// ErrInvalidModel is returned when a relational model violates a structural
// invariant (for example, a key column that is not in the column set).
var ErrInvalidModel = errors.New("relmodel/model: invalid relational model")

// IsInvalidModelErr returns true if err is or wraps ErrInvalidModel.
func IsInvalidModelErr(err error) bool {
	return errors.Is(err, ErrInvalidModel)
}

// QualifiedResourceName identifies a resource by project and name.
type QualifiedResourceName struct {
	ProjectName  string
	ResourceName string
}

func (q QualifiedResourceName) String() string {
	return q.ProjectName + ":" + q.ResourceName
}

// CompareResources orders resources by project name, then resource name,
// using ordinal comparison.
func CompareResources(a, b QualifiedResourceName) int {
	if c := strings.Compare(a.ProjectName, b.ProjectName); c != 0 {
		return c
	}
	return strings.Compare(a.ResourceName, b.ResourceName)
}

// ResourceKeyEntry is the dense numeric key assigned to a resource.
type ResourceKeyEntry struct {
	ID              int16
	Resource        QualifiedResourceName
	ResourceVersion string
	IsAbstract      bool
}

// DbSchemaName is a physical schema name.
type DbSchemaName string

// DbColumnName is a physical column name.
type DbColumnName string

// DbIndexName is a physical index name.
type DbIndexName string

// DbTriggerName is a physical trigger name.
type DbTriggerName string

// DbTableName is a schema-qualified table (or view) name.
type DbTableName struct {
	Schema DbSchemaName
	Name   string
}

func (t DbTableName) String() string {
	return string(t.Schema) + "." + t.Name
}

// CompareTables orders tables by schema, then name.
func CompareTables(a, b DbTableName) int {
	if c := strings.Compare(string(a.Schema), string(b.Schema)); c != 0 {
		return c
	}
	return strings.Compare(a.Name, b.Name)
}

// Shared core tables and well-known column names.
const (
	CoreSchema DbSchemaName = "dms"

	DocumentIDColumn    DbColumnName = "DocumentId"
	OrdinalColumn       DbColumnName = "Ordinal"
	DiscriminatorColumn DbColumnName = "Discriminator"
	URIColumn           DbColumnName = "Uri"
)

var (
	// DocumentTable is the core document table every resource root references.
	DocumentTable = DbTableName{Schema: CoreSchema, Name: "Document"}
	// DescriptorTable is the shared table holding every descriptor resource.
	DescriptorTable = DbTableName{Schema: CoreSchema, Name: "Descriptor"}
)

// IsDocumentIDColumn reports whether name is DocumentId or a prefixed
// variant such as School_DocumentId.
func IsDocumentIDColumn(name DbColumnName) bool {
	return name == DocumentIDColumn || strings.HasSuffix(string(name), "_DocumentId")
}

func columnsString(cols []DbColumnName) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}
