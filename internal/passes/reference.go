package passes

import (
	"github.com/pthm/relmodel/internal/build"
	"github.com/pthm/relmodel/internal/collision"
	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/naming"
)

// ReferenceBinding adds the FK and identity-mirroring columns of every
// document reference and records a DocumentReferenceBinding for each.
type ReferenceBinding struct{}

func (ReferenceBinding) Name() string { return "ReferenceBinding" }
func (ReferenceBinding) Order() int   { return 40 }

func (ReferenceBinding) Execute(s *SetContext) error {
	for _, e := range s.Resources {
		if e.Context == nil || len(e.Context.ReferenceMappings) == 0 {
			continue
		}
		rm := e.Relational()
		if rm == nil {
			continue
		}
		if err := bindReferences(s, e, rm); err != nil {
			return err
		}
	}
	return nil
}

func bindReferences(s *SetContext, e *ResourceEntry, rm *model.RelationalResourceModel) error {
	c := e.Context
	bound := make(map[string]bool, len(rm.DocumentReferenceBindings))
	for _, b := range rm.DocumentReferenceBindings {
		bound[b.ReferenceObjectPath.Canonical()] = true
	}

	for _, m := range c.ReferenceMappings {
		key := m.ReferenceObjectPath.Canonical()
		if bound[key] {
			return c.Errorf("reference object path '%s' is already bound", m.ReferenceObjectPath)
		}
		bound[key] = true

		owner, ok := tableOwning(rm, m.ReferenceObjectPath)
		if !ok {
			return c.Errorf("reference object path '%s' is not inside any table scope", m.ReferenceObjectPath)
		}
		if isExtensionScoped(m.ReferenceObjectPath) && !isExtensionScoped(owner.JsonScope) {
			return c.Errorf("reference object path '%s' is inside _ext but no extension table owns it", m.ReferenceObjectPath)
		}

		base := referenceBaseName(c, m)
		fk := naming.DocumentFkColumn(base)
		binding := model.DocumentReferenceBinding{
			IsIdentityComponent: m.IsPartOfIdentity,
			ReferenceObjectPath: m.ReferenceObjectPath,
			Table:               owner.Table,
			FkColumn:            fk,
			TargetResource:      m.TargetResource,
		}

		err := rewriteTable(rm, owner.Table, func(b *model.TableBuilder) error {
			fkCol := model.DbColumnModel{
				Name:           fk,
				Kind:           model.ColumnDocumentFk,
				ScalarType:     model.Ptr(model.ScalarOf(model.ScalarInt64)),
				IsNullable:     !m.IsRequired,
				SourcePath:     model.Ptr(m.ReferenceObjectPath),
				TargetResource: model.Ptr(m.TargetResource),
			}
			if err := addReferenceColumn(c, b, fkCol, string(naming.DocumentFkColumn(naming.PascalCase(m.MappingKey)))); err != nil {
				return err
			}

			for _, rb := range m.ReferenceJsonPaths {
				col, original, err := referenceIdentityColumn(s, c, m, rb)
				if err != nil {
					return err
				}
				if err := addReferenceColumn(c, b, col, original); err != nil {
					return err
				}
				binding.IdentityBindings = append(binding.IdentityBindings, model.ReferenceIdentityBinding{
					ReferenceJsonPath: rb.ReferenceJsonPath,
					Column:            col.Name,
				})
				if col.Kind != model.ColumnDescriptorFk {
					continue
				}
				b.AddConstraint(model.ForeignKeyConstraint{
					Name:          naming.DescriptorForeignKeyName(owner.Table, col.Name),
					Columns:       []model.DbColumnName{col.Name},
					TargetTable:   model.DescriptorTable,
					TargetColumns: []model.DbColumnName{model.DocumentIDColumn},
					OnDelete:      model.NoAction,
					OnUpdate:      model.NoAction,
				})
				rm.DescriptorEdgeSources = append(rm.DescriptorEdgeSources, model.DescriptorEdgeSource{
					IsIdentityComponent: c.IsIdentityPath(rb.ReferenceJsonPath),
					DescriptorValuePath: rb.ReferenceJsonPath,
					Table:               owner.Table,
					FkColumn:            col.Name,
					DescriptorResource:  *col.TargetResource,
				})
			}
			return nil
		})
		if err != nil {
			return err
		}
		rm.DocumentReferenceBindings = append(rm.DocumentReferenceBindings, binding)
	}

	canonical, err := model.CanonicalizeResource(*rm)
	if err != nil {
		return c.Errorf("%v", err)
	}
	*rm = canonical
	return nil
}

// addReferenceColumn adds col, failing when the table already has a column
// of that name.
func addReferenceColumn(c *build.Context, b *model.TableBuilder, col model.DbColumnModel, original string) error {
	table := b.Table()
	origin := collision.Origin{
		Description: "column " + table.String() + "." + string(col.Name),
		Resource:    c.Label(),
		JsonPath:    col.SourcePath.Canonical(),
	}
	if existing, ok := b.Column(col.Name); ok {
		prior := collision.Origin{Description: "column " + table.String() + "." + string(existing.Name)}
		if existing.SourcePath != nil {
			prior.Resource = c.Label()
			prior.JsonPath = existing.SourcePath.Canonical()
		}
		scope := collision.Scope{Kind: collision.KindColumn, Schema: string(table.Schema), Table: table.Name}
		return collision.Conflict(scope, string(col.Name),
			collision.Source{Original: string(existing.Name), Origin: prior},
			collision.Source{Original: original, Origin: origin})
	}
	b.AddColumn(col)
	if c.Overrides != nil {
		c.Overrides.RegisterColumn(table, col.Name, original, origin)
	}
	return nil
}

// referenceBaseName is the column prefix for a reference: the override at
// its reference object path, else the PascalCase mapping key.
func referenceBaseName(c *build.Context, m build.ReferenceMapping) string {
	if o, ok := c.Override(m.ReferenceObjectPath); ok && !o.IsCollection {
		return o.Name
	}
	return naming.PascalCase(m.MappingKey)
}

// identityPartName is the column suffix for one identity path of a
// reference. An override at the local path replaces it.
func identityPartName(c *build.Context, rb build.ReferenceJsonPathBinding) (string, string, error) {
	part, err := build.IdentityPartBaseName(rb.IdentityJsonPath)
	if err != nil {
		return "", "", c.Errorf("%v", err)
	}
	if o, ok := c.Override(rb.ReferenceJsonPath); ok && !o.IsCollection {
		return o.Name, part, nil
	}
	return part, part, nil
}

// referenceIdentityColumn derives the local column that mirrors one
// identity path of a reference, and the name it would have without
// overrides.
func referenceIdentityColumn(s *SetContext, c *build.Context, m build.ReferenceMapping, rb build.ReferenceJsonPathBinding) (model.DbColumnModel, string, error) {
	base := referenceBaseName(c, m)
	defaultBase := naming.PascalCase(m.MappingKey)
	part, defaultPart, err := identityPartName(c, rb)
	if err != nil {
		return model.DbColumnModel{}, "", err
	}

	if desc, ok := s.descriptorTarget(m.TargetResource, rb.IdentityJsonPath); ok {
		return model.DbColumnModel{
			Name:           naming.DescriptorIDColumn(base + "_" + part),
			Kind:           model.ColumnDescriptorFk,
			ScalarType:     model.Ptr(model.ScalarOf(model.ScalarInt64)),
			IsNullable:     !m.IsRequired,
			SourcePath:     model.Ptr(rb.ReferenceJsonPath),
			TargetResource: model.Ptr(desc),
		}, string(naming.DescriptorIDColumn(defaultBase + "_" + defaultPart)), nil
	}

	node, err := build.SchemaAt(c.JsonSchema, rb.ReferenceJsonPath)
	if err != nil {
		return model.DbColumnModel{}, "", c.Errorf("reference identity path '%s': %v", rb.ReferenceJsonPath, err)
	}
	kind, err := build.DetermineKind(node, rb.ReferenceJsonPath.Canonical())
	if err != nil {
		return model.DbColumnModel{}, "", c.Errorf("%v", err)
	}
	if kind != build.KindScalar {
		return model.DbColumnModel{}, "", c.Errorf("reference identity path '%s' must resolve to a scalar schema", rb.ReferenceJsonPath)
	}
	st, err := build.ResolveScalarType(node, rb.ReferenceJsonPath, c.DecimalInfos, c.StringOmissionPaths)
	if err != nil {
		return model.DbColumnModel{}, "", c.Errorf("%v", err)
	}
	return model.DbColumnModel{
		Name:       model.DbColumnName(base + "_" + part),
		Kind:       model.ColumnScalar,
		ScalarType: &st,
		IsNullable: !m.IsRequired,
		SourcePath: model.Ptr(rb.ReferenceJsonPath),
	}, defaultBase + "_" + defaultPart, nil
}

// referenceBindingFor finds the mapping and identity binding whose local
// path is path.
func referenceBindingFor(c *build.Context, path jsonpath.Expression) (build.ReferenceMapping, build.ReferenceJsonPathBinding, bool) {
	for _, m := range c.ReferenceMappings {
		for _, rb := range m.ReferenceJsonPaths {
			if rb.ReferenceJsonPath.Equal(path) {
				return m, rb, true
			}
		}
	}
	return build.ReferenceMapping{}, build.ReferenceJsonPathBinding{}, false
}

// isExtensionScoped reports whether p passes through an _ext property.
func isExtensionScoped(p jsonpath.Expression) bool {
	for _, seg := range p.Segments() {
		if !seg.IsWildcard() && seg.Name == "_ext" {
			return true
		}
	}
	return false
}
