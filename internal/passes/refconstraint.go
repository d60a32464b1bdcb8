package passes

import (
	"strings"

	"github.com/pthm/relmodel/internal/build"
	"github.com/pthm/relmodel/internal/dialect"
	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/naming"
)

// ReferenceConstraint adds, for every document reference, the all-or-none
// check and the composite FK to the target's (DocumentId, identity) key.
type ReferenceConstraint struct{}

func (ReferenceConstraint) Name() string { return "ReferenceConstraint" }
func (ReferenceConstraint) Order() int   { return 60 }

func (ReferenceConstraint) Execute(s *SetContext) error {
	for _, e := range s.Resources {
		if e.IsExtension() || e.Model == nil {
			continue
		}
		rm := &e.Model.RelationalModel
		if len(rm.DocumentReferenceBindings) == 0 {
			continue
		}
		mappings := referenceMappings(s, e)
		for _, binding := range rm.DocumentReferenceBindings {
			m, ok := mappings[binding.ReferenceObjectPath.Canonical()]
			if !ok {
				return build.ResourceErrorf(e.Resource, "reference binding '%s' has no document path mapping", binding.ReferenceObjectPath)
			}
			if err := constrainReference(s, rm, binding, m); err != nil {
				return err
			}
		}
	}
	return nil
}

// referenceMappings indexes the reference mappings of a resource and of
// its resource extensions by reference object path.
func referenceMappings(s *SetContext, base *ResourceEntry) map[string]build.ReferenceMapping {
	out := make(map[string]build.ReferenceMapping)
	for _, e := range s.Resources {
		if e != base && e.Base != base {
			continue
		}
		if e.Context == nil {
			continue
		}
		for _, m := range e.Context.ReferenceMappings {
			out[m.ReferenceObjectPath.Canonical()] = m
		}
	}
	return out
}

// referenceTarget is the table a reference FK points at.
type referenceTarget struct {
	table         model.DbTableModel
	identityPaths []jsonpath.Expression
	columns       map[string]model.DbColumnModel
	abstract      bool
	allowUpdates  bool
	// owner is nil for abstract identity tables.
	owner *model.RelationalResourceModel
}

func resolveReferenceTarget(s *SetContext, q model.QualifiedResourceName) (referenceTarget, error) {
	if a, ok := s.Abstract(q); ok {
		if a.Table == nil {
			return referenceTarget{}, build.ResourceErrorf(q, "abstract identity table has not been derived")
		}
		t := referenceTarget{table: a.Table.Table, identityPaths: a.IdentityPaths, abstract: true, columns: make(map[string]model.DbColumnModel)}
		for _, col := range a.Table.Table.Columns {
			if col.SourcePath != nil {
				t.columns[col.SourcePath.Canonical()] = col
			}
		}
		return t, nil
	}

	e, ok := s.Concrete(q)
	if !ok || e.Model == nil {
		return referenceTarget{}, build.ResourceErrorf(q, "reference target was not found")
	}
	root := e.Model.RelationalModel.Root()
	t := referenceTarget{
		table:         root,
		identityPaths: e.Context.IdentityPaths,
		allowUpdates:  e.Context.AllowIdentityUpdates,
		columns:       make(map[string]model.DbColumnModel),
		owner:         &e.Model.RelationalModel,
	}
	for _, path := range t.identityPaths {
		col, ok := root.ColumnBySource(path)
		if !ok {
			return referenceTarget{}, build.ResourceErrorf(q, "identity path '%s' did not map to a root table column", path)
		}
		t.columns[path.Canonical()] = col
	}
	return t, nil
}

func constrainReference(s *SetContext, rm *model.RelationalResourceModel, binding model.DocumentReferenceBinding, m build.ReferenceMapping) error {
	target, err := resolveReferenceTarget(s, binding.TargetResource)
	if err != nil {
		return err
	}
	table, _, ok := rm.TableByName(binding.Table)
	if !ok {
		return build.ResourceErrorf(rm.Resource, "reference table '%s' was not found", binding.Table)
	}

	localByIdentity := make(map[string]model.DbColumnName, len(m.ReferenceJsonPaths))
	for _, rb := range m.ReferenceJsonPaths {
		for _, ib := range binding.IdentityBindings {
			if ib.ReferenceJsonPath.Equal(rb.ReferenceJsonPath) {
				localByIdentity[rb.IdentityJsonPath.Canonical()] = ib.Column
			}
		}
	}

	var local []model.DbColumnName
	var missing []string
	for _, path := range target.identityPaths {
		col, ok := localByIdentity[path.Canonical()]
		if !ok {
			missing = append(missing, path.Canonical())
			continue
		}
		local = append(local, col)
	}
	if len(missing) > 0 {
		return build.ResourceErrorf(rm.Resource, "reference '%s' did not include identity path(s) %s required by target '%s'",
			binding.ReferenceObjectPath, strings.Join(missing, ", "), binding.TargetResource)
	}

	fkColumns := []model.DbColumnName{binding.FkColumn}
	targetColumns := []model.DbColumnName{model.DocumentIDColumn}
	seen := make(map[[2]model.DbColumnName]bool)
	for i, path := range target.identityPaths {
		lc, ok := table.Column(local[i])
		if !ok {
			return build.ResourceErrorf(rm.Resource, "reference column '%s' was not found on table '%s'", local[i], table.Table)
		}
		pair := [2]model.DbColumnName{lc.StoredName(), target.columns[path.Canonical()].StoredName()}
		if seen[pair] {
			continue
		}
		seen[pair] = true
		fkColumns = append(fkColumns, pair[0])
		targetColumns = append(targetColumns, pair[1])
	}

	onUpdate := model.NoAction
	if s.Dialect != dialect.Mssql && (target.abstract || target.allowUpdates) {
		onUpdate = model.Cascade
	}
	refBase := strings.TrimSuffix(string(binding.FkColumn), "_DocumentId")
	fk := model.ForeignKeyConstraint{
		Name:          naming.ReferenceForeignKeyName(table.Table, refBase, len(fkColumns) > 1),
		Columns:       fkColumns,
		TargetTable:   target.table.Table,
		TargetColumns: targetColumns,
		OnDelete:      model.NoAction,
		OnUpdate:      onUpdate,
	}

	err = rewriteTable(rm, table.Table, func(b *model.TableBuilder) error {
		if len(local) > 0 {
			b.AddConstraint(model.AllOrNoneConstraint{
				Name:             naming.AllOrNoneName(table.Table, refBase),
				FkColumn:         binding.FkColumn,
				DependentColumns: local,
			})
		}
		b.AddConstraint(fk)
		return nil
	})
	if err != nil {
		return err
	}

	s.referenceKeys = append(s.referenceKeys, referenceForeignKey{
		Table:          table.Table,
		FkColumn:       binding.FkColumn,
		Columns:        fkColumns[1:],
		TargetTable:    target.table.Table,
		TargetColumns:  targetColumns[1:],
		PropagatesKeys: target.abstract || target.allowUpdates,
	})

	if target.owner == nil || len(targetColumns) < 2 {
		return nil
	}
	return rewriteTable(target.owner, target.table.Table, func(b *model.TableBuilder) error {
		b.AddConstraint(model.UniqueConstraint{Name: naming.ReferenceKeyName(target.table.Table), Columns: targetColumns})
		return nil
	})
}
