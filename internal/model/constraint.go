package model

import "strings"

// ReferentialAction is the action taken on a referencing row when the
// referenced key is deleted or updated.
type ReferentialAction int

const (
	NoAction ReferentialAction = iota
	Cascade
)

func (a ReferentialAction) String() string {
	if a == Cascade {
		return "Cascade"
	}
	return "NoAction"
}

// ConstraintKind names the kind of a table constraint.
type ConstraintKind string

const (
	KindPrimaryKey ConstraintKind = "PrimaryKey"
	KindUnique     ConstraintKind = "Unique"
	KindForeignKey ConstraintKind = "ForeignKey"
	KindAllOrNone  ConstraintKind = "AllOrNone"
)

// TableConstraint is a closed set of non-key table constraints. Only the
// constraint types of this package implement it.
type TableConstraint interface {
	ConstraintName() string
	ConstraintKind() ConstraintKind
	isTableConstraint()
}

// UniqueConstraint requires the column tuple to be unique.
type UniqueConstraint struct {
	Name    string
	Columns []DbColumnName
}

// ForeignKeyConstraint references a key on another table. A foreign key
// always has a target; there is no partial form.
type ForeignKeyConstraint struct {
	Name          string
	Columns       []DbColumnName
	TargetTable   DbTableName
	TargetColumns []DbColumnName
	OnDelete      ReferentialAction
	OnUpdate      ReferentialAction
}

// AllOrNoneConstraint requires the dependent columns to be null exactly
// when the FK column is null.
type AllOrNoneConstraint struct {
	Name             string
	FkColumn         DbColumnName
	DependentColumns []DbColumnName
}

func (c UniqueConstraint) ConstraintName() string         { return c.Name }
func (c UniqueConstraint) ConstraintKind() ConstraintKind { return KindUnique }

func (c ForeignKeyConstraint) ConstraintName() string         { return c.Name }
func (c ForeignKeyConstraint) ConstraintKind() ConstraintKind { return KindForeignKey }

func (c AllOrNoneConstraint) ConstraintName() string         { return c.Name }
func (c AllOrNoneConstraint) ConstraintKind() ConstraintKind { return KindAllOrNone }

func (UniqueConstraint) isTableConstraint()     {}
func (ForeignKeyConstraint) isTableConstraint() {}
func (AllOrNoneConstraint) isTableConstraint()  {}

// ConstraintIdentity is the name-independent fingerprint of a constraint.
// Two constraints with equal signatures are the same constraint, whatever
// they are called.
type ConstraintIdentity interface {
	Kind() ConstraintKind
	Table() DbTableName
	// Signature is the canonical form used for equality and as the hash
	// input when a constraint name has to be shortened.
	Signature() string
}

type PrimaryKeyIdentity struct {
	OnTable DbTableName
	Columns []DbColumnName
}

type UniqueIdentity struct {
	OnTable DbTableName
	Columns []DbColumnName
}

type ForeignKeyIdentity struct {
	OnTable       DbTableName
	Columns       []DbColumnName
	TargetTable   DbTableName
	TargetColumns []DbColumnName
	OnDelete      ReferentialAction
	OnUpdate      ReferentialAction
}

type AllOrNoneIdentity struct {
	OnTable          DbTableName
	FkColumn         DbColumnName
	DependentColumns []DbColumnName
}

func (i PrimaryKeyIdentity) Kind() ConstraintKind { return KindPrimaryKey }
func (i PrimaryKeyIdentity) Table() DbTableName   { return i.OnTable }
func (i PrimaryKeyIdentity) Signature() string {
	return signature(KindPrimaryKey, i.OnTable, i.Columns)
}

func (i UniqueIdentity) Kind() ConstraintKind { return KindUnique }
func (i UniqueIdentity) Table() DbTableName   { return i.OnTable }
func (i UniqueIdentity) Signature() string {
	return signature(KindUnique, i.OnTable, i.Columns)
}

func (i ForeignKeyIdentity) Kind() ConstraintKind { return KindForeignKey }
func (i ForeignKeyIdentity) Table() DbTableName   { return i.OnTable }
func (i ForeignKeyIdentity) Signature() string {
	return signature(KindForeignKey, i.OnTable, i.Columns,
		i.TargetTable.String(), columnsString(i.TargetColumns), i.OnDelete.String(), i.OnUpdate.String())
}

func (i AllOrNoneIdentity) Kind() ConstraintKind { return KindAllOrNone }
func (i AllOrNoneIdentity) Table() DbTableName   { return i.OnTable }
func (i AllOrNoneIdentity) Signature() string {
	return signature(KindAllOrNone, i.OnTable, []DbColumnName{i.FkColumn}, columnsString(i.DependentColumns))
}

func signature(kind ConstraintKind, table DbTableName, cols []DbColumnName, extra ...string) string {
	parts := append([]string{string(kind), table.String(), columnsString(cols)}, extra...)
	return strings.Join(parts, "|")
}

// IdentityOf derives the identity of a constraint declared on table. It
// panics only for a nil constraint.
func IdentityOf(table DbTableName, c TableConstraint) ConstraintIdentity {
	switch c := c.(type) {
	case UniqueConstraint:
		return UniqueIdentity{OnTable: table, Columns: c.Columns}
	case ForeignKeyConstraint:
		return ForeignKeyIdentity{
			OnTable:       table,
			Columns:       c.Columns,
			TargetTable:   c.TargetTable,
			TargetColumns: c.TargetColumns,
			OnDelete:      c.OnDelete,
			OnUpdate:      c.OnUpdate,
		}
	case AllOrNoneConstraint:
		return AllOrNoneIdentity{OnTable: table, FkColumn: c.FkColumn, DependentColumns: c.DependentColumns}
	}
	panic("model: unknown constraint type")
}

// RenameConstraint returns a copy of c with a new name.
func RenameConstraint(c TableConstraint, name string) TableConstraint {
	switch c := c.(type) {
	case UniqueConstraint:
		c.Name = name
		return c
	case ForeignKeyConstraint:
		c.Name = name
		return c
	case AllOrNoneConstraint:
		c.Name = name
		return c
	}
	panic("model: unknown constraint type")
}

// ConstraintColumns returns the local columns a constraint covers.
func ConstraintColumns(c TableConstraint) []DbColumnName {
	switch c := c.(type) {
	case UniqueConstraint:
		return c.Columns
	case ForeignKeyConstraint:
		return c.Columns
	case AllOrNoneConstraint:
		return append([]DbColumnName{c.FkColumn}, c.DependentColumns...)
	}
	return nil
}

// ConstraintKindOrder is the canonical ordering of constraint kinds within a table.
func ConstraintKindOrder(k ConstraintKind) int {
	switch k {
	case KindPrimaryKey:
		return 0
	case KindUnique:
		return 1
	case KindForeignKey:
		return 2
	case KindAllOrNone:
		return 3
	}
	return 4
}
