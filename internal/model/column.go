package model

import (
	"fmt"

	"github.com/pthm/relmodel/internal/jsonpath"
)

// ScalarKind is the logical type of a scalar column.
type ScalarKind int

const (
	ScalarString ScalarKind = iota
	ScalarInt32
	ScalarInt64
	ScalarDecimal
	ScalarBoolean
	ScalarDate
	ScalarDateTime
	ScalarTime
)

var scalarKindNames = [...]string{"String", "Int32", "Int64", "Decimal", "Boolean", "Date", "DateTime", "Time"}

func (k ScalarKind) String() string {
	if int(k) < len(scalarKindNames) {
		return scalarKindNames[k]
	}
	return fmt.Sprintf("ScalarKind(%d)", int(k))
}

// RelationalScalarType is a scalar kind plus its size parameters.
// MaxLength of zero means an unbounded string. Precision and Scale apply
// only to decimals.
type RelationalScalarType struct {
	Kind      ScalarKind
	MaxLength int
	Precision int
	Scale     int
}

func StringType(maxLength int) RelationalScalarType {
	return RelationalScalarType{Kind: ScalarString, MaxLength: maxLength}
}

func DecimalType(precision, scale int) RelationalScalarType {
	return RelationalScalarType{Kind: ScalarDecimal, Precision: precision, Scale: scale}
}

func ScalarOf(kind ScalarKind) RelationalScalarType {
	return RelationalScalarType{Kind: kind}
}

func (t RelationalScalarType) String() string {
	switch t.Kind {
	case ScalarString:
		if t.MaxLength > 0 {
			return fmt.Sprintf("String(%d)", t.MaxLength)
		}
		return "String"
	case ScalarDecimal:
		return fmt.Sprintf("Decimal(%d,%d)", t.Precision, t.Scale)
	}
	return t.Kind.String()
}

// ColumnKind classifies a column by its role in the table.
type ColumnKind int

const (
	ColumnScalar ColumnKind = iota
	ColumnDocumentFk
	ColumnDescriptorFk
	ColumnOrdinal
	ColumnParentKeyPart
)

var columnKindNames = [...]string{"Scalar", "DocumentFk", "DescriptorFk", "Ordinal", "ParentKeyPart"}

func (k ColumnKind) String() string {
	if int(k) < len(columnKindNames) {
		return columnKindNames[k]
	}
	return fmt.Sprintf("ColumnKind(%d)", int(k))
}

// ColumnStorage describes how a column is physically stored. It is a closed
// set: StoredColumn or UnifiedAliasColumn.
type ColumnStorage interface {
	isColumnStorage()
	StorageKind() string
}

// StoredColumn is an ordinary physical column.
type StoredColumn struct{}

func (StoredColumn) isColumnStorage()    {}
func (StoredColumn) StorageKind() string { return "Stored" }

// UnifiedAliasColumn is a column whose value is read from a canonical
// stored column. Presence, when set, gates the alias on another column
// being non-null.
type UnifiedAliasColumn struct {
	Canonical DbColumnName
	Presence  DbColumnName
}

func (UnifiedAliasColumn) isColumnStorage()    {}
func (UnifiedAliasColumn) StorageKind() string { return "UnifiedAlias" }

// DbColumnModel is one column of a table.
type DbColumnModel struct {
	Name           DbColumnName
	Kind           ColumnKind
	ScalarType     *RelationalScalarType
	IsNullable     bool
	SourcePath     *jsonpath.Expression
	TargetResource *QualifiedResourceName
	Storage        ColumnStorage
}

// StorageOrDefault returns the column's storage, defaulting to StoredColumn.
func (c DbColumnModel) StorageOrDefault() ColumnStorage {
	if c.Storage == nil {
		return StoredColumn{}
	}
	return c.Storage
}

// StoredName returns the name of the physical column that holds this
// column's value: the canonical column for aliases, the column itself otherwise.
func (c DbColumnModel) StoredName() DbColumnName {
	if alias, ok := c.Storage.(UnifiedAliasColumn); ok {
		return alias.Canonical
	}
	return c.Name
}

// KeyColumn is one part of a table key.
type KeyColumn struct {
	Name DbColumnName
	Kind ColumnKind
}

// TableKey is a table's primary key.
type TableKey struct {
	ConstraintName string
	Columns        []KeyColumn
}

// ColumnNames returns the key column names in key order.
func (k TableKey) ColumnNames() []DbColumnName {
	out := make([]DbColumnName, len(k.Columns))
	for i, c := range k.Columns {
		out[i] = c.Name
	}
	return out
}

// Ptr returns a pointer to v. Used for optional column attributes.
func Ptr[T any](v T) *T { return &v }
