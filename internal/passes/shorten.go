package passes

import (
	"fmt"

	"github.com/pthm/relmodel/internal/collision"
	"github.com/pthm/relmodel/internal/dialect"
	"github.com/pthm/relmodel/internal/model"
)

// IdentifierShortening rewrites every physical identifier to fit the
// dialect's limit. Collisions are checked over the whole set before
// anything is rewritten, so a failed build never sees half-shortened
// names.
type IdentifierShortening struct{}

func (IdentifierShortening) Name() string { return "ApplyDialectIdentifierShortening" }
func (IdentifierShortening) Order() int   { return 100 }

func (IdentifierShortening) Execute(s *SetContext) error {
	if err := s.Overrides.Err(); err != nil {
		return err
	}

	d := collision.NewShorteningDetector(s.Rules)
	registerIdentifiers(s, d)
	if err := d.Err(); err != nil {
		return err
	}

	r := renamer{rules: s.Rules}
	for i := range s.Projects {
		s.Projects[i].PhysicalSchema = r.schema(s.Projects[i].PhysicalSchema)
	}
	for _, e := range s.Resources {
		if e.IsExtension() || e.Model == nil {
			continue
		}
		e.Model.RelationalModel = r.resource(e.Model.RelationalModel)
	}
	for _, a := range s.Abstracts {
		if a.Table != nil {
			a.Table.Table = r.table(a.Table.Table)
		}
		if a.View != nil {
			v := r.view(*a.View)
			a.View = &v
		}
	}
	for i, idx := range s.Indexes {
		s.Indexes[i] = r.index(idx)
	}
	for i, t := range s.Triggers {
		s.Triggers[i] = r.trigger(t)
	}
	return nil
}

func originFor(description string, resource model.QualifiedResourceName) collision.Origin {
	return collision.Origin{Description: description, Resource: resource.String()}
}

// registerIdentifiers feeds every identifier of the set to d.
func registerIdentifiers(s *SetContext, d *collision.ShorteningDetector) {
	for _, p := range s.Projects {
		d.RegisterSchema(p.PhysicalSchema, collision.Origin{Description: "schema of project " + p.ProjectEndpointName})
	}

	registerTable := func(t model.DbTableModel, owner model.QualifiedResourceName) {
		d.RegisterTable(t.Table, collision.Origin{Description: "table " + t.Table.String(), Resource: owner.String(), JsonPath: t.JsonScope.Canonical()})
		for _, c := range t.Columns {
			o := collision.Origin{Description: fmt.Sprintf("column %s on %s", c.Name, t.Table), Resource: owner.String()}
			if c.SourcePath != nil {
				o.JsonPath = c.SourcePath.Canonical()
			}
			d.RegisterColumn(t.Table, c.Name, o)
		}
		if t.Key.ConstraintName != "" {
			d.RegisterConstraint(t.Table, t.Key.ConstraintName, t.PrimaryKeyIdentity().Signature(),
				originFor(fmt.Sprintf("primary key %s on %s", t.Key.ConstraintName, t.Table), owner))
		}
		for _, c := range t.Constraints {
			d.RegisterConstraint(t.Table, c.ConstraintName(), model.IdentityOf(t.Table, c).Signature(),
				originFor(fmt.Sprintf("%s %s on %s", c.ConstraintKind(), c.ConstraintName(), t.Table), owner))
		}
	}

	for _, e := range s.Resources {
		if e.IsExtension() || e.Model == nil {
			continue
		}
		for _, t := range e.Model.RelationalModel.TablesInDependencyOrder {
			registerTable(t, e.Resource)
		}
	}
	for _, a := range s.Abstracts {
		if a.Table != nil {
			registerTable(a.Table.Table, a.Resource)
		}
		if a.View != nil {
			d.RegisterView(a.View.ViewName, originFor("view "+a.View.ViewName.String(), a.Resource))
			for _, c := range a.View.OutputColumns {
				d.RegisterColumn(a.View.ViewName, c.Name, originFor(fmt.Sprintf("view column %s on %s", c.Name, a.View.ViewName), a.Resource))
			}
		}
	}
	for _, idx := range s.Indexes {
		d.RegisterIndex(idx.Table, idx.Name, indexSignature(idx),
			collision.Origin{Description: fmt.Sprintf("%s index %s on %s", idx.Kind, idx.Name, idx.Table)})
	}
	for _, t := range s.Triggers {
		d.RegisterTrigger(t.Table, t.Name,
			collision.Origin{Description: fmt.Sprintf("%s trigger %s on %s", t.Kind, t.Name, t.Table)})
	}
}

// indexSignature is the hash input used when an index name is too long.
// Indexes that back a constraint shorten exactly like the constraint.
func indexSignature(idx model.DbIndexInfo) string {
	switch idx.Kind {
	case model.IndexPrimaryKey:
		return model.PrimaryKeyIdentity{OnTable: idx.Table, Columns: idx.KeyColumns}.Signature()
	case model.IndexUniqueConstraint:
		return model.UniqueIdentity{OnTable: idx.Table, Columns: idx.KeyColumns}.Signature()
	}
	return ""
}

// renamer applies dialect shortening to model values. Shortening is pure,
// so a name is rewritten the same way wherever it appears.
type renamer struct {
	rules dialect.Rules
}

func (r renamer) schema(s model.DbSchemaName) model.DbSchemaName {
	return model.DbSchemaName(r.rules.ShortenIdentifier(string(s)))
}

func (r renamer) tableName(t model.DbTableName) model.DbTableName {
	return model.DbTableName{Schema: r.schema(t.Schema), Name: r.rules.ShortenIdentifier(t.Name)}
}

func (r renamer) column(c model.DbColumnName) model.DbColumnName {
	if c == "" {
		return c
	}
	return model.DbColumnName(r.rules.ShortenIdentifier(string(c)))
}

func (r renamer) columns(cols []model.DbColumnName) []model.DbColumnName {
	if cols == nil {
		return nil
	}
	out := make([]model.DbColumnName, len(cols))
	for i, c := range cols {
		out[i] = r.column(c)
	}
	return out
}

func (r renamer) table(t model.DbTableModel) model.DbTableModel {
	out := t
	out.Table = r.tableName(t.Table)

	out.Key.ConstraintName = r.rules.ShortenWithSignature(t.Key.ConstraintName, t.PrimaryKeyIdentity().Signature())
	out.Key.Columns = make([]model.KeyColumn, len(t.Key.Columns))
	for i, k := range t.Key.Columns {
		out.Key.Columns[i] = model.KeyColumn{Name: r.column(k.Name), Kind: k.Kind}
	}

	out.Columns = make([]model.DbColumnModel, len(t.Columns))
	for i, c := range t.Columns {
		c.Name = r.column(c.Name)
		if alias, ok := c.Storage.(model.UnifiedAliasColumn); ok {
			c.Storage = model.UnifiedAliasColumn{Canonical: r.column(alias.Canonical), Presence: r.column(alias.Presence)}
		}
		out.Columns[i] = c
	}

	out.Constraints = make([]model.TableConstraint, len(t.Constraints))
	for i, c := range t.Constraints {
		name := r.rules.ShortenWithSignature(c.ConstraintName(), model.IdentityOf(t.Table, c).Signature())
		switch c := c.(type) {
		case model.UniqueConstraint:
			out.Constraints[i] = model.UniqueConstraint{Name: name, Columns: r.columns(c.Columns)}
		case model.ForeignKeyConstraint:
			out.Constraints[i] = model.ForeignKeyConstraint{
				Name:          name,
				Columns:       r.columns(c.Columns),
				TargetTable:   r.tableName(c.TargetTable),
				TargetColumns: r.columns(c.TargetColumns),
				OnDelete:      c.OnDelete,
				OnUpdate:      c.OnUpdate,
			}
		case model.AllOrNoneConstraint:
			out.Constraints[i] = model.AllOrNoneConstraint{
				Name:             name,
				FkColumn:         r.column(c.FkColumn),
				DependentColumns: r.columns(c.DependentColumns),
			}
		}
	}

	if t.KeyUnificationClasses != nil {
		out.KeyUnificationClasses = make([]model.KeyUnificationClass, len(t.KeyUnificationClasses))
		for i, k := range t.KeyUnificationClasses {
			out.KeyUnificationClasses[i] = model.KeyUnificationClass{Canonical: r.column(k.Canonical), Members: r.columns(k.Members)}
		}
	}
	return out
}

func (r renamer) resource(m model.RelationalResourceModel) model.RelationalResourceModel {
	out := m
	out.PhysicalSchema = r.schema(m.PhysicalSchema)

	out.TablesInDependencyOrder = make([]model.DbTableModel, len(m.TablesInDependencyOrder))
	for i, t := range m.TablesInDependencyOrder {
		out.TablesInDependencyOrder[i] = r.table(t)
	}

	out.DocumentReferenceBindings = make([]model.DocumentReferenceBinding, len(m.DocumentReferenceBindings))
	for i, b := range m.DocumentReferenceBindings {
		b.Table = r.tableName(b.Table)
		b.FkColumn = r.column(b.FkColumn)
		ids := make([]model.ReferenceIdentityBinding, len(b.IdentityBindings))
		for j, ib := range b.IdentityBindings {
			ids[j] = model.ReferenceIdentityBinding{ReferenceJsonPath: ib.ReferenceJsonPath, Column: r.column(ib.Column)}
		}
		b.IdentityBindings = ids
		out.DocumentReferenceBindings[i] = b
	}

	out.DescriptorEdgeSources = make([]model.DescriptorEdgeSource, len(m.DescriptorEdgeSources))
	for i, e := range m.DescriptorEdgeSources {
		e.Table = r.tableName(e.Table)
		e.FkColumn = r.column(e.FkColumn)
		out.DescriptorEdgeSources[i] = e
	}
	return out
}

func (r renamer) view(v model.AbstractUnionViewInfo) model.AbstractUnionViewInfo {
	out := v
	out.ViewName = r.tableName(v.ViewName)
	out.OutputColumns = make([]model.UnionViewOutputColumn, len(v.OutputColumns))
	for i, c := range v.OutputColumns {
		c.Name = r.column(c.Name)
		out.OutputColumns[i] = c
	}
	out.UnionArms = make([]model.UnionViewArm, len(v.UnionArms))
	for i, arm := range v.UnionArms {
		projections := make([]model.UnionViewProjection, len(arm.Projections))
		for j, p := range arm.Projections {
			if !p.IsLiteral {
				p.SourceColumn = r.column(p.SourceColumn)
			}
			projections[j] = p
		}
		out.UnionArms[i] = model.UnionViewArm{
			ConcreteMember: arm.ConcreteMember,
			FromTable:      r.tableName(arm.FromTable),
			Projections:    projections,
		}
	}
	return out
}

func (r renamer) index(idx model.DbIndexInfo) model.DbIndexInfo {
	signature := indexSignature(idx)
	if signature == "" {
		signature = string(idx.Name)
	}
	out := idx
	out.Name = model.DbIndexName(r.rules.ShortenWithSignature(string(idx.Name), signature))
	out.Table = r.tableName(idx.Table)
	out.KeyColumns = r.columns(idx.KeyColumns)
	return out
}

func (r renamer) trigger(t model.DbTriggerInfo) model.DbTriggerInfo {
	out := t
	out.Name = model.DbTriggerName(r.rules.ShortenIdentifier(string(t.Name)))
	out.Table = r.tableName(t.Table)
	out.KeyColumns = r.columns(t.KeyColumns)
	out.IdentityProjectionColumns = r.columns(t.IdentityProjectionColumns)
	if t.TargetTable != nil {
		out.TargetTable = model.Ptr(r.tableName(*t.TargetTable))
	}
	if t.Referrers != nil {
		out.Referrers = make([]model.TriggerReferrer, len(t.Referrers))
		for i, ref := range t.Referrers {
			mappings := make([]model.TriggerColumnMapping, len(ref.ColumnMappings))
			for j, m := range ref.ColumnMappings {
				mappings[j] = model.TriggerColumnMapping{Source: r.column(m.Source), Target: r.column(m.Target)}
			}
			out.Referrers[i] = model.TriggerReferrer{Table: r.tableName(ref.Table), FkColumn: r.column(ref.FkColumn), ColumnMappings: mappings}
		}
	}
	return out
}
