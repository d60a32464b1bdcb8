package passes

import (
	"slices"

	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/naming"
)

// IndexInventory lists the indexes every derived table needs: the primary
// key, one per unique constraint, and FK support indexes that no other
// index already covers.
type IndexInventory struct{}

func (IndexInventory) Name() string { return "IndexInventory" }
func (IndexInventory) Order() int   { return 80 }

func (IndexInventory) Execute(s *SetContext) error {
	s.Indexes = s.Indexes[:0]
	for _, t := range inventoryTables(s) {
		s.Indexes = append(s.Indexes, tableIndexes(t)...)
	}
	return nil
}

// inventoryTables returns every table that gets indexes and triggers of its
// own. The shared descriptor table is owned by the core schema.
func inventoryTables(s *SetContext) []model.DbTableModel {
	var out []model.DbTableModel
	for _, e := range s.Resources {
		if e.IsExtension() || e.Model == nil || e.Model.StorageKind == model.SharedDescriptorTable {
			continue
		}
		out = append(out, e.Model.RelationalModel.TablesInDependencyOrder...)
	}
	for _, a := range s.Abstracts {
		if a.Table != nil {
			out = append(out, a.Table.Table)
		}
	}
	return out
}

func tableIndexes(t model.DbTableModel) []model.DbIndexInfo {
	pk := t.Key.ColumnNames()
	name := t.Key.ConstraintName
	if name == "" {
		name = naming.PrimaryKeyName(t.Table)
	}
	out := []model.DbIndexInfo{{
		Name:       model.DbIndexName(name),
		Table:      t.Table,
		KeyColumns: pk,
		IsUnique:   true,
		Kind:       model.IndexPrimaryKey,
	}}
	covered := [][]model.DbColumnName{pk}

	for _, c := range t.Constraints {
		u, ok := c.(model.UniqueConstraint)
		if !ok {
			continue
		}
		out = append(out, model.DbIndexInfo{
			Name:       model.DbIndexName(u.Name),
			Table:      t.Table,
			KeyColumns: slices.Clone(u.Columns),
			IsUnique:   true,
			Kind:       model.IndexUniqueConstraint,
		})
		covered = append(covered, u.Columns)
	}

	for _, c := range t.Constraints {
		fk, ok := c.(model.ForeignKeyConstraint)
		if !ok || coveredByPrefix(covered, fk.Columns) {
			continue
		}
		cols := slices.Clone(fk.Columns)
		out = append(out, model.DbIndexInfo{
			Name:       model.DbIndexName(naming.ForeignKeySupportIndexName(t.Table, cols)),
			Table:      t.Table,
			KeyColumns: cols,
			Kind:       model.IndexForeignKeySupport,
		})
		covered = append(covered, cols)
	}
	return out
}

// coveredByPrefix reports whether cols is a leftmost prefix of any index.
func coveredByPrefix(indexes [][]model.DbColumnName, cols []model.DbColumnName) bool {
	for _, idx := range indexes {
		if len(cols) <= len(idx) && slices.Equal(idx[:len(cols)], cols) {
			return true
		}
	}
	return false
}
