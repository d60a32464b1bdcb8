package passes

import (
	"slices"

	"github.com/pthm/relmodel/internal/build"
	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/naming"
)

// ArrayUniquenessConstraint turns arrayUniquenessConstraints into unique
// constraints on the collection tables that hold the paths.
type ArrayUniquenessConstraint struct{}

func (ArrayUniquenessConstraint) Name() string { return "ArrayUniquenessConstraint" }
func (ArrayUniquenessConstraint) Order() int   { return 70 }

func (ArrayUniquenessConstraint) Execute(s *SetContext) error {
	for _, e := range s.Resources {
		if e.Context == nil || len(e.Context.ArrayUniqueness) == 0 {
			continue
		}
		rm := e.Relational()
		if rm == nil || rm.StorageKind == model.SharedDescriptorTable {
			continue
		}
		var walk func([]build.ArrayUniqueness) error
		walk = func(list []build.ArrayUniqueness) error {
			for _, u := range list {
				if err := applyArrayUniqueness(e.Context, rm, u.Paths); err != nil {
					return err
				}
				if err := walk(u.Nested); err != nil {
					return err
				}
			}
			return nil
		}
		if err := walk(e.Context.ArrayUniqueness); err != nil {
			return err
		}
	}
	return nil
}

// applyArrayUniqueness groups paths by owning table and adds one unique
// constraint per table over the parent key parts and the path columns.
func applyArrayUniqueness(c *build.Context, rm *model.RelationalResourceModel, paths []jsonpath.Expression) error {
	type group struct {
		table   model.DbTableModel
		columns []model.DbColumnName
	}
	var groups []*group
	byTable := make(map[model.DbTableName]*group)

	for _, p := range paths {
		t, ok := tableOwning(rm, p)
		if !ok || !t.JsonScope.HasWildcard() {
			return c.Errorf("array uniqueness path '%s' is not inside a collection table", p)
		}

		col, err := uniquenessColumn(c, rm, t, p)
		if err != nil {
			return err
		}
		g, ok := byTable[t.Table]
		if !ok {
			g = &group{table: t}
			byTable[t.Table] = g
			groups = append(groups, g)
		}
		if !slices.Contains(g.columns, col) {
			g.columns = append(g.columns, col)
		}
	}

	for _, g := range groups {
		var cols []model.DbColumnName
		for _, kc := range g.table.Key.Columns {
			if kc.Kind == model.ColumnParentKeyPart {
				cols = append(cols, kc.Name)
			}
		}
		for _, col := range g.columns {
			if !slices.Contains(cols, col) {
				cols = append(cols, col)
			}
		}
		name := naming.ArrayUniquenessName(g.table.Table, g.columns)
		err := rewriteTable(rm, g.table.Table, func(b *model.TableBuilder) error {
			b.AddConstraint(model.UniqueConstraint{Name: name, Columns: cols})
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// uniquenessColumn resolves the stored column for path. A path that
// mirrors a reference identity resolves to the reference's FK column.
func uniquenessColumn(c *build.Context, rm *model.RelationalResourceModel, t model.DbTableModel, path jsonpath.Expression) (model.DbColumnName, error) {
	if ref, ok := referenceForIdentity(rm, path); ok {
		if ref.Table != t.Table {
			return "", c.Errorf("array uniqueness path '%s' belongs to reference '%s' on table '%s'", path, ref.ReferenceObjectPath, ref.Table)
		}
		return ref.FkColumn, nil
	}
	col, ok := t.ColumnBySource(path)
	if !ok {
		return "", c.Errorf("array uniqueness path '%s' did not map to a column on table '%s'", path, t.Table)
	}
	return col.StoredName(), nil
}
