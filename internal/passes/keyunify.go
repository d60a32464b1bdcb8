package passes

import (
	"slices"
	"strings"

	"github.com/pthm/relmodel/internal/build"
	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/naming"
	"github.com/pthm/relmodel/schema"
)

const unifiedSuffix = "_Unified"

// KeyUnification merges columns that equalityConstraints declare equal
// onto a single stored column per table. Each member becomes an alias of
// the canonical column.
type KeyUnification struct{}

func (KeyUnification) Name() string { return "KeyUnification" }
func (KeyUnification) Order() int   { return 45 }

func (KeyUnification) Execute(s *SetContext) error {
	for _, e := range s.Resources {
		if e.Context == nil || len(e.Context.EqualityConstraints) == 0 {
			continue
		}
		rm := e.Relational()
		if rm == nil || rm.StorageKind == model.SharedDescriptorTable {
			continue
		}
		if err := unifyResource(s, e, rm); err != nil {
			return err
		}
	}
	return nil
}

type columnRef struct {
	table  model.DbTableName
	column model.DbColumnName
}

func (r columnRef) key() string { return r.table.String() + "." + string(r.column) }

// unionFind groups column refs into connected components.
type unionFind struct {
	parent map[string]string
	refs   map[string]columnRef
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string), refs: make(map[string]columnRef)}
}

func (u *unionFind) find(k string) string {
	for u.parent[k] != k {
		u.parent[k] = u.parent[u.parent[k]]
		k = u.parent[k]
	}
	return k
}

func (u *unionFind) add(r columnRef) string {
	k := r.key()
	if _, ok := u.parent[k]; !ok {
		u.parent[k] = k
		u.refs[k] = r
	}
	return k
}

func (u *unionFind) union(a, b columnRef) {
	ra, rb := u.find(u.add(a)), u.find(u.add(b))
	if ra == rb {
		return
	}
	// The smaller key becomes the root so components are stable.
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}

// components returns every component with at least two members, each
// sorted by column name, grouped by table.
func (u *unionFind) components() map[model.DbTableName][][]columnRef {
	groups := make(map[string][]columnRef)
	for k := range u.parent {
		root := u.find(k)
		groups[root] = append(groups[root], u.refs[k])
	}
	out := make(map[model.DbTableName][][]columnRef)
	for _, root := range schema.SortedKeys(groups) {
		members := groups[root]
		if len(members) < 2 {
			continue
		}
		slices.SortFunc(members, func(a, b columnRef) int { return strings.Compare(string(a.column), string(b.column)) })
		table := members[0].table
		out[table] = append(out[table], members)
	}
	return out
}

func unifyResource(s *SetContext, e *ResourceEntry, rm *model.RelationalResourceModel) error {
	c := e.Context
	uf := newUnionFind()
	for _, eq := range c.EqualityConstraints {
		src, ok1 := columnForPath(rm, eq.Source)
		dst, ok2 := columnForPath(rm, eq.Target)
		if !ok1 || !ok2 || src.table != dst.table || src.column == dst.column {
			// Only columns of one table can share storage.
			s.Logger.Debug("equality constraint not unified",
				"resource", e.Resource.String(), "source", eq.Source.Canonical(), "target", eq.Target.Canonical())
			continue
		}
		uf.union(src, dst)
	}

	byTable := uf.components()
	tables := make([]model.DbTableName, 0, len(byTable))
	for t := range byTable {
		tables = append(tables, t)
	}
	slices.SortFunc(tables, model.CompareTables)

	for _, table := range tables {
		for _, members := range byTable[table] {
			if err := unifyComponent(c, rm, table, members); err != nil {
				return err
			}
		}
	}
	canonical, err := model.CanonicalizeResource(*rm)
	if err != nil {
		return c.Errorf("%v", err)
	}
	*rm = canonical
	return nil
}

func unifyComponent(c *build.Context, rm *model.RelationalResourceModel, table model.DbTableName, members []columnRef) error {
	return rewriteTable(rm, table, func(b *model.TableBuilder) error {
		cols := make([]model.DbColumnModel, len(members))
		for i, m := range members {
			col, ok := b.Column(m.column)
			if !ok {
				return c.Errorf("unified column '%s' was not found on table '%s'", m.column, table)
			}
			if _, alias := col.Storage.(model.UnifiedAliasColumn); alias {
				return c.Errorf("column '%s' on table '%s' is already unified", m.column, table)
			}
			cols[i] = col
		}

		first := cols[0]
		nullable := true
		for _, col := range cols {
			if col.Kind != first.Kind || !sameScalar(col.ScalarType, first.ScalarType) || !sameTarget(col.TargetResource, first.TargetResource) {
				return c.Errorf("key unification members '%s' and '%s' on table '%s' have inconsistent types",
					first.Name, col.Name, table)
			}
			nullable = nullable && col.IsNullable
		}

		name := unifiedColumnName(first)
		canonical := model.DbColumnModel{
			Name:           name,
			Kind:           first.Kind,
			ScalarType:     first.ScalarType,
			IsNullable:     nullable,
			TargetResource: first.TargetResource,
			Storage:        model.StoredColumn{},
		}
		if !b.AddColumn(canonical) {
			return c.Errorf("unified column '%s' already exists on table '%s'", name, table)
		}

		names := make([]model.DbColumnName, len(cols))
		for i, col := range cols {
			names[i] = col.Name
			col.Storage = model.UnifiedAliasColumn{Canonical: name, Presence: presenceColumn(rm, table, col.Name)}
			b.ReplaceColumn(col)
		}

		if first.Kind == model.ColumnDescriptorFk {
			b.RemoveConstraints(func(tc model.TableConstraint) bool {
				fk, ok := tc.(model.ForeignKeyConstraint)
				return ok && fk.TargetTable == model.DescriptorTable && len(fk.Columns) == 1 && slices.Contains(names, fk.Columns[0])
			})
			b.AddConstraint(model.ForeignKeyConstraint{
				Name:          naming.DescriptorForeignKeyName(table, name),
				Columns:       []model.DbColumnName{name},
				TargetTable:   model.DescriptorTable,
				TargetColumns: []model.DbColumnName{model.DocumentIDColumn},
				OnDelete:      model.NoAction,
				OnUpdate:      model.NoAction,
			})
		}
		b.AddKeyUnificationClass(model.KeyUnificationClass{Canonical: name, Members: names})
		return nil
	})
}

// unifiedColumnName derives "<Part>_Unified" from the last name part of a
// member, keeping the _DescriptorId suffix for descriptor columns.
func unifiedColumnName(member model.DbColumnModel) model.DbColumnName {
	base := strings.TrimSuffix(string(member.Name), "_DescriptorId")
	if i := strings.LastIndexByte(base, '_'); i >= 0 && i < len(base)-1 {
		base = base[i+1:]
	}
	if member.Kind == model.ColumnDescriptorFk {
		return naming.DescriptorIDColumn(base + unifiedSuffix)
	}
	return model.DbColumnName(base + unifiedSuffix)
}

// presenceColumn is the FK column of the reference whose identity column
// is member, if any.
func presenceColumn(rm *model.RelationalResourceModel, table model.DbTableName, member model.DbColumnName) model.DbColumnName {
	for _, ref := range rm.DocumentReferenceBindings {
		if ref.Table != table {
			continue
		}
		for _, ib := range ref.IdentityBindings {
			if ib.Column == member {
				return ref.FkColumn
			}
		}
	}
	return ""
}

func columnForPath(rm *model.RelationalResourceModel, path jsonpath.Expression) (columnRef, bool) {
	for _, t := range rm.TablesInDependencyOrder {
		if col, ok := t.ColumnBySource(path); ok {
			return columnRef{table: t.Table, column: col.Name}, true
		}
	}
	return columnRef{}, false
}

func sameScalar(a, b *model.RelationalScalarType) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameTarget(a, b *model.QualifiedResourceName) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
