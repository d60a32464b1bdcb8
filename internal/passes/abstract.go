package passes

import (
	"fmt"

	"github.com/pthm/relmodel/internal/build"
	"github.com/pthm/relmodel/internal/collision"
	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/naming"
)

// discriminatorLength bounds the Project:Resource literal stored in
// abstract identity tables and union views.
const discriminatorLength = 256

// AbstractIdentityTables derives, for every abstract resource, the
// identity table that references to it target and the union view over its
// concrete members.
type AbstractIdentityTables struct{}

func (AbstractIdentityTables) Name() string { return "AbstractIdentityTableDerivation" }
func (AbstractIdentityTables) Order() int   { return 30 }

func (AbstractIdentityTables) Execute(s *SetContext) error {
	members, err := abstractMembers(s)
	if err != nil {
		return err
	}
	for _, a := range s.Abstracts {
		if err := deriveAbstract(s, a, members[a.Resource]); err != nil {
			return err
		}
	}
	return nil
}

// abstractMembers groups subclass resources by their superclass.
func abstractMembers(s *SetContext) (map[model.QualifiedResourceName][]*ResourceEntry, error) {
	out := make(map[model.QualifiedResourceName][]*ResourceEntry)
	for _, e := range s.Resources {
		if e.IsExtension() || !e.Schema.IsSubclass {
			continue
		}
		super := model.QualifiedResourceName{ProjectName: e.Schema.SuperclassProjectName, ResourceName: e.Schema.SuperclassResourceName}
		if _, ok := s.Abstract(super); !ok {
			if _, concrete := s.Concrete(super); concrete {
				return nil, build.ResourceErrorf(e.Resource, "Subclass resource '%s' declares superclass '%s' which is not an abstract resource", e.Resource, super)
			}
			return nil, build.ResourceErrorf(e.Resource, "Subclass resource '%s' declares unknown superclass '%s'", e.Resource, super)
		}
		out[super] = append(out[super], e)
	}
	return out, nil
}

// memberIdentity is one member's contribution to an abstract identity column.
type memberIdentity struct {
	column model.DbColumnName
	kind   model.ColumnKind
	scalar model.RelationalScalarType
	target *model.QualifiedResourceName
}

func deriveAbstract(s *SetContext, a *AbstractEntry, members []*ResourceEntry) error {
	if len(members) == 0 {
		return build.ResourceErrorf(a.Resource, "abstract resource '%s' has no concrete members", a.Resource)
	}
	if len(a.IdentityPaths) == 0 {
		return build.ResourceErrorf(a.Resource, "abstract resource '%s' must declare identityJsonPaths", a.Resource)
	}

	base := naming.PascalCase(a.Resource.ResourceName)
	if rel := a.Schema.Relational; rel != nil && rel.RootTableNameOverride != nil && naming.PascalCase(*rel.RootTableNameOverride) != "" {
		base = naming.PascalCase(*rel.RootTableNameOverride)
	}
	schemaName := a.Project.PhysicalSchema

	// projections[i][j] is member i's column for identity path j.
	projections := make([][]memberIdentity, len(members))
	for i, e := range members {
		for _, path := range a.IdentityPaths {
			mi, err := resolveMemberIdentity(s, a, e, path)
			if err != nil {
				return err
			}
			projections[i] = append(projections[i], mi)
		}
	}

	table := model.DbTableName{Schema: schemaName, Name: naming.AbstractIdentityTableName(base)}
	key := model.TableKey{
		ConstraintName: naming.PrimaryKeyName(table),
		Columns:        []model.KeyColumn{{Name: model.DocumentIDColumn, Kind: model.ColumnParentKeyPart}},
	}
	b := model.NewTableBuilder(table, jsonpath.Root(), key)
	b.AddColumn(model.DbColumnModel{
		Name:       model.DocumentIDColumn,
		Kind:       model.ColumnParentKeyPart,
		ScalarType: model.Ptr(model.ScalarOf(model.ScalarInt64)),
	})

	view := model.AbstractUnionViewInfo{
		ResourceKey: a.Key,
		ViewName:    model.DbTableName{Schema: schemaName, Name: naming.AbstractUnionViewName(base)},
		OutputColumns: []model.UnionViewOutputColumn{{
			Name:       model.DocumentIDColumn,
			ScalarType: model.ScalarOf(model.ScalarInt64),
		}},
	}

	refKey := []model.DbColumnName{model.DocumentIDColumn}
	for j, path := range a.IdentityPaths {
		merged := projections[0][j]
		for i := 1; i < len(members); i++ {
			next, err := mergeMemberIdentity(merged, projections[i][j])
			if err != nil {
				return build.ResourceErrorf(a.Resource, "abstract identity path '%s' has inconsistent column types across members %s and %s: %v",
					path, members[0].Resource, members[i].Resource, err)
			}
			merged = next
		}

		part, err := build.IdentityPartBaseName(path)
		if err != nil {
			return build.ResourceErrorf(a.Resource, "%v", err)
		}
		name := model.DbColumnName(part)
		if merged.kind == model.ColumnDescriptorFk {
			name = naming.DescriptorIDColumn(part)
		}
		col := model.DbColumnModel{
			Name:           name,
			Kind:           merged.kind,
			ScalarType:     model.Ptr(merged.scalar),
			SourcePath:     model.Ptr(path),
			TargetResource: merged.target,
		}
		if !b.AddColumn(col) {
			return build.ResourceErrorf(a.Resource, "abstract identity column '%s' is derived from more than one identity path", name)
		}
		if merged.kind == model.ColumnDescriptorFk {
			b.AddConstraint(model.ForeignKeyConstraint{
				Name:          naming.DescriptorForeignKeyName(table, name),
				Columns:       []model.DbColumnName{name},
				TargetTable:   model.DescriptorTable,
				TargetColumns: []model.DbColumnName{model.DocumentIDColumn},
				OnDelete:      model.NoAction,
				OnUpdate:      model.NoAction,
			})
		}
		refKey = append(refKey, name)
		view.OutputColumns = append(view.OutputColumns, model.UnionViewOutputColumn{
			Name:       name,
			ScalarType: merged.scalar,
			SourcePath: model.Ptr(path),
		})
	}

	b.AddColumn(model.DbColumnModel{
		Name:       model.DiscriminatorColumn,
		Kind:       model.ColumnScalar,
		ScalarType: model.Ptr(model.StringType(discriminatorLength)),
	})
	view.OutputColumns = append(view.OutputColumns, model.UnionViewOutputColumn{
		Name:       model.DiscriminatorColumn,
		ScalarType: model.StringType(discriminatorLength),
	})
	b.AddConstraint(model.UniqueConstraint{Name: naming.ReferenceKeyName(table), Columns: refKey})
	b.AddConstraint(model.ForeignKeyConstraint{
		Name:          naming.DocumentForeignKeyName(table),
		Columns:       []model.DbColumnName{model.DocumentIDColumn},
		TargetTable:   model.DocumentTable,
		TargetColumns: []model.DbColumnName{model.DocumentIDColumn},
		OnDelete:      model.Cascade,
		OnUpdate:      model.NoAction,
	})

	built, err := b.Build()
	if err != nil {
		return fmt.Errorf("resource '%s': %w", a.Resource, err)
	}
	canonical, err := model.CanonicalizeTable(built)
	if err != nil {
		return fmt.Errorf("resource '%s': %w", a.Resource, err)
	}
	s.Overrides.RegisterTable(table, naming.AbstractIdentityTableName(naming.PascalCase(a.Resource.ResourceName)), collision.Origin{
		Description: "abstract identity table " + table.String(),
		Resource:    a.Resource.String(),
		JsonPath:    "$",
	})

	for i, e := range members {
		literal := e.Resource.String()
		if len(literal) > discriminatorLength {
			return build.ResourceErrorf(a.Resource, "discriminator value '%s' exceeds %d characters", literal, discriminatorLength)
		}
		arm := model.UnionViewArm{
			ConcreteMember: e.Key,
			FromTable:      e.Model.RelationalModel.Root().Table,
			Projections:    []model.UnionViewProjection{{SourceColumn: model.DocumentIDColumn}},
		}
		for _, mi := range projections[i] {
			arm.Projections = append(arm.Projections, model.UnionViewProjection{SourceColumn: mi.column})
		}
		arm.Projections = append(arm.Projections, model.UnionViewProjection{Literal: literal, IsLiteral: true})
		view.UnionArms = append(view.UnionArms, arm)
	}

	a.Table = &model.AbstractIdentityTableInfo{ResourceKey: a.Key, Table: canonical}
	a.View = &view
	return nil
}

// resolveMemberIdentity finds the root column of member e that carries the
// abstract identity at path. Paths that mirror a reference identity are
// named the way reference binding will name them.
func resolveMemberIdentity(s *SetContext, a *AbstractEntry, e *ResourceEntry, path jsonpath.Expression) (memberIdentity, error) {
	if e.Context == nil || e.Model == nil {
		return memberIdentity{}, build.ResourceErrorf(e.Resource, "member resource has not been lowered")
	}
	c := e.Context

	local := path
	if raw := e.Schema.SuperclassIdentityJsonPath; raw != "" {
		if len(a.IdentityPaths) != 1 {
			return memberIdentity{}, c.Errorf("superclassIdentityJsonPath requires abstract resource '%s' to have exactly one identity path, found %d",
				a.Resource, len(a.IdentityPaths))
		}
		if len(c.IdentityPaths) != 1 {
			return memberIdentity{}, c.Errorf("superclassIdentityJsonPath requires exactly one identity path, found %d", len(c.IdentityPaths))
		}
		local = c.IdentityPaths[0]
	}
	if !c.IsIdentityPath(local) {
		return memberIdentity{}, c.Errorf("abstract identity path '%s' of '%s' is not an identity path of the member", local, a.Resource)
	}

	if m, rb, ok := referenceBindingFor(c, local); ok {
		col, _, err := referenceIdentityColumn(s, c, m, rb)
		if err != nil {
			return memberIdentity{}, err
		}
		return memberIdentity{column: col.Name, kind: col.Kind, scalar: *col.ScalarType, target: col.TargetResource}, nil
	}

	root := e.Model.RelationalModel.Root()
	var found []model.DbColumnModel
	for _, col := range root.Columns {
		if col.SourcePath != nil && col.SourcePath.Equal(local) {
			found = append(found, col)
		}
	}
	switch {
	case len(found) == 0:
		return memberIdentity{}, c.Errorf("identity path '%s' did not map to a root table column", local)
	case len(found) > 1:
		return memberIdentity{}, c.Errorf("identity path '%s' maps to more than one root table column", local)
	case found[0].IsNullable:
		return memberIdentity{}, c.Errorf("identity path '%s' maps to nullable column '%s'", local, found[0].Name)
	case found[0].ScalarType == nil:
		return memberIdentity{}, c.Errorf("identity column '%s' has no scalar type", found[0].Name)
	}
	col := found[0]
	return memberIdentity{column: col.Name, kind: col.Kind, scalar: *col.ScalarType, target: col.TargetResource}, nil
}

// mergeMemberIdentity widens two member types to one abstract column type.
// Integers widen to Int64, strings take the longer length and decimals the
// larger precision and scale.
func mergeMemberIdentity(a, b memberIdentity) (memberIdentity, error) {
	if a.kind != b.kind {
		return a, fmt.Errorf("column kinds %s and %s differ", a.kind, b.kind)
	}
	if (a.target == nil) != (b.target == nil) || (a.target != nil && *a.target != *b.target) {
		return a, fmt.Errorf("target resources differ")
	}
	x, y := a.scalar, b.scalar
	out := a
	switch {
	case x.Kind == y.Kind && x.Kind == model.ScalarString:
		if x.MaxLength == 0 || y.MaxLength == 0 {
			out.scalar = model.StringType(0)
		} else {
			out.scalar = model.StringType(max(x.MaxLength, y.MaxLength))
		}
	case x.Kind == y.Kind && x.Kind == model.ScalarDecimal:
		out.scalar = model.DecimalType(max(x.Precision, y.Precision), max(x.Scale, y.Scale))
	case isInteger(x.Kind) && isInteger(y.Kind):
		if x.Kind != y.Kind {
			out.scalar = model.ScalarOf(model.ScalarInt64)
		}
	case x == y:
	default:
		return a, fmt.Errorf("scalar types %s and %s differ", x, y)
	}
	return out, nil
}

func isInteger(k model.ScalarKind) bool {
	return k == model.ScalarInt32 || k == model.ScalarInt64
}
