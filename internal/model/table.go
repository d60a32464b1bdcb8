package model

import (
	"fmt"
	"slices"

	"github.com/pthm/relmodel/internal/jsonpath"
)

// KeyUnificationClass groups columns that are unified onto one canonical
// stored column.
type KeyUnificationClass struct {
	Canonical DbColumnName
	Members   []DbColumnName
}

// DbTableModel is one physical table.
type DbTableModel struct {
	Table                 DbTableName
	JsonScope             jsonpath.Expression
	Key                   TableKey
	Columns               []DbColumnModel
	Constraints           []TableConstraint
	KeyUnificationClasses []KeyUnificationClass
}

// Column looks up a column by name.
func (t DbTableModel) Column(name DbColumnName) (DbColumnModel, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return DbColumnModel{}, false
}

// ColumnBySource returns the first column whose source path equals path.
func (t DbTableModel) ColumnBySource(path jsonpath.Expression) (DbColumnModel, bool) {
	for _, c := range t.Columns {
		if c.SourcePath != nil && c.SourcePath.Equal(path) {
			return c, true
		}
	}
	return DbColumnModel{}, false
}

// PrimaryKeyIdentity returns the identity of the table's key.
func (t DbTableModel) PrimaryKeyIdentity() PrimaryKeyIdentity {
	return PrimaryKeyIdentity{OnTable: t.Table, Columns: t.Key.ColumnNames()}
}

// HasConstraint reports whether a constraint with the given identity exists.
func (t DbTableModel) HasConstraint(id ConstraintIdentity) bool {
	sig := id.Signature()
	for _, c := range t.Constraints {
		if IdentityOf(t.Table, c).Signature() == sig {
			return true
		}
	}
	return false
}

// TableBuilder accumulates columns and constraints for one table. Columns
// keep insertion order; constraints are deduplicated by identity.
type TableBuilder struct {
	table       DbTableName
	scope       jsonpath.Expression
	key         TableKey
	columns     []DbColumnModel
	index       map[DbColumnName]int
	constraints []TableConstraint
	signatures  map[string]struct{}
	classes     []KeyUnificationClass
}

// NewTableBuilder starts an empty table.
func NewTableBuilder(table DbTableName, scope jsonpath.Expression, key TableKey) *TableBuilder {
	return &TableBuilder{
		table:      table,
		scope:      scope,
		key:        key,
		index:      make(map[DbColumnName]int),
		signatures: make(map[string]struct{}),
	}
}

// TableBuilderFrom starts a builder seeded with an existing table. The
// table must already carry every key column.
func TableBuilderFrom(t DbTableModel) (*TableBuilder, error) {
	b := NewTableBuilder(t.Table, t.JsonScope, t.Key)
	for _, c := range t.Columns {
		b.AddColumn(c)
	}
	if err := b.checkKeyColumns(); err != nil {
		return nil, err
	}
	for _, c := range t.Constraints {
		b.AddConstraint(c)
	}
	b.classes = append(b.classes, t.KeyUnificationClasses...)
	return b, nil
}

// Table returns the table name being built.
func (b *TableBuilder) Table() DbTableName { return b.table }

// Key returns the table key.
func (b *TableBuilder) Key() TableKey { return b.key }

// Scope returns the JSON scope the table represents.
func (b *TableBuilder) Scope() jsonpath.Expression { return b.scope }

// Columns returns the columns added so far, in insertion order.
func (b *TableBuilder) Columns() []DbColumnModel { return slices.Clone(b.columns) }

// AddColumn appends c. It returns false and leaves the table unchanged when
// a column with the same name already exists.
func (b *TableBuilder) AddColumn(c DbColumnModel) bool {
	if _, ok := b.index[c.Name]; ok {
		return false
	}
	b.index[c.Name] = len(b.columns)
	b.columns = append(b.columns, c)
	return true
}

// Column looks up a column added so far.
func (b *TableBuilder) Column(name DbColumnName) (DbColumnModel, bool) {
	i, ok := b.index[name]
	if !ok {
		return DbColumnModel{}, false
	}
	return b.columns[i], true
}

// ReplaceColumn overwrites an existing column of the same name.
func (b *TableBuilder) ReplaceColumn(c DbColumnModel) bool {
	i, ok := b.index[c.Name]
	if !ok {
		return false
	}
	b.columns[i] = c
	return true
}

// AddConstraint appends c unless a constraint with the same identity exists.
func (b *TableBuilder) AddConstraint(c TableConstraint) bool {
	sig := IdentityOf(b.table, c).Signature()
	if _, ok := b.signatures[sig]; ok {
		return false
	}
	b.signatures[sig] = struct{}{}
	b.constraints = append(b.constraints, c)
	return true
}

// RemoveConstraints drops every constraint for which drop returns true and
// reports how many were removed.
func (b *TableBuilder) RemoveConstraints(drop func(TableConstraint) bool) int {
	kept := b.constraints[:0]
	removed := 0
	for _, c := range b.constraints {
		if drop(c) {
			delete(b.signatures, IdentityOf(b.table, c).Signature())
			removed++
			continue
		}
		kept = append(kept, c)
	}
	b.constraints = kept
	return removed
}

// Constraints returns the constraints added so far.
func (b *TableBuilder) Constraints() []TableConstraint { return slices.Clone(b.constraints) }

// AddKeyUnificationClass records a unification class.
func (b *TableBuilder) AddKeyUnificationClass(k KeyUnificationClass) {
	b.classes = append(b.classes, k)
}

// Build validates and returns the table. Every key column must be present
// in the column set.
func (b *TableBuilder) Build() (DbTableModel, error) {
	if err := b.checkKeyColumns(); err != nil {
		return DbTableModel{}, err
	}
	return DbTableModel{
		Table:                 b.table,
		JsonScope:             b.scope,
		Key:                   TableKey{ConstraintName: b.key.ConstraintName, Columns: slices.Clone(b.key.Columns)},
		Columns:               slices.Clone(b.columns),
		Constraints:           slices.Clone(b.constraints),
		KeyUnificationClasses: slices.Clone(b.classes),
	}, nil
}

// MustBuild is like Build but panics on error. Intended for tests.
func (b *TableBuilder) MustBuild() DbTableModel {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}

func (b *TableBuilder) checkKeyColumns() error {
	for _, kc := range b.key.Columns {
		if _, ok := b.index[kc.Name]; !ok {
			return fmt.Errorf("%w: table %s key column %s is not present in the column set",
				ErrInvalidModel, b.table, kc.Name)
		}
	}
	return nil
}
