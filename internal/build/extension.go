package build

import (
	"errors"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pthm/relmodel/internal/collision"
	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/naming"
)

// DeriveExtensionTables lowers the _ext subtree of a resource extension
// into tables that share keys with, and reference, the base resource's
// tables. ext must have run ExtractInputs and ValidateJsonSchema; base
// must be fully lowered. The returned tables are canonicalized and in
// dependency order. Descriptor edges are left on ext.DescriptorEdgeSources.
func DeriveExtensionTables(ext, base *Context) ([]model.DbTableModel, error) {
	if !ext.Project.IsExtensionProject {
		return nil, ext.Errorf("resource extension '%s' must be defined in an extension project", ext.Resource)
	}

	ext.PhysicalSchema = ext.Project.PhysicalSchema
	if ext.PhysicalSchema == "" {
		ext.PhysicalSchema = naming.NormalizeSchemaName(ext.Project.ProjectEndpointName)
	}
	ext.RootBaseName = base.RootBaseName
	ext.StorageKind = model.RelationalTables
	ext.Tables = nil
	ext.DescriptorEdgeSources = nil

	x := &extensionWalker{columnWalker: newColumnWalker(ext), base: base}
	if err := x.walk(ext.JsonSchema, jsonpath.Root(), nil, nil, false); err != nil {
		return nil, err
	}
	if err := x.ensureDescriptorPathsUsed(false); err != nil {
		return nil, err
	}

	tables := make([]model.DbTableModel, 0, len(ext.Tables))
	for _, t := range ext.Tables {
		built, err := t.Builder.Build()
		if err != nil {
			return nil, ext.Errorf("%v", err)
		}
		canonical, err := model.CanonicalizeTable(built)
		if err != nil {
			return nil, ext.Errorf("%v", err)
		}
		tables = append(tables, canonical)
	}
	slices.SortStableFunc(tables, model.CompareTableOrder)
	return tables, nil
}

type extensionWalker struct {
	*columnWalker
	base *Context
}

func (x *extensionWalker) walk(s *jsonschema.Schema, path jsonpath.Expression, table *TableScope, colSegs []string, optional bool) error {
	kind, err := DetermineKind(s, path.Canonical())
	if err != nil {
		return x.ctx.Errorf("%v", err)
	}
	switch kind {
	case KindObject:
		return x.walkObject(s, path, table, colSegs, optional)
	case KindArray:
		return x.walkArray(s, path, table)
	}
	return x.ctx.Errorf("unexpected scalar schema at %s", path)
}

func (x *extensionWalker) walkObject(s *jsonschema.Schema, path jsonpath.Expression, table *TableScope, colSegs []string, optional bool) error {
	isRefScope := x.refScope[path.Canonical()]
	for _, name := range SortedProperties(s) {
		prop := s.Properties[name]
		if prop == nil {
			return x.ctx.Errorf("expected property schema to be an object at %s", path.Child(name))
		}
		propPath := path.Child(name)

		if name == extensionProperty {
			if err := x.enterExtension(s, prop, path); err != nil {
				return err
			}
			continue
		}
		if isRefScope && name == referenceLinkProperty {
			continue
		}

		kind, err := DetermineKind(prop, propPath.Canonical())
		if err != nil {
			return x.ctx.Errorf("%v", err)
		}

		// Outside an extension table only descriptor usage matters.
		if table == nil {
			if kind == KindScalar {
				if _, ok := x.ctx.DescriptorPath(propPath); ok {
					x.used[propPath.Canonical()] = true
				}
				continue
			}
			if err := x.walk(prop, propPath, nil, nil, false); err != nil {
				return err
			}
			continue
		}

		propSegs := append(slices.Clone(colSegs), name)
		nullable := optional || !IsRequired(s, name) || IsXNullable(prop)
		if kind == KindScalar {
			if err := x.addScalarOrDescriptor(table, prop, propSegs, propPath, nullable); err != nil {
				return err
			}
			continue
		}
		if err := x.walk(prop, propPath, table, propSegs, nullable); err != nil {
			return err
		}
	}
	return nil
}

func (x *extensionWalker) walkArray(s *jsonschema.Schema, path jsonpath.Expression, table *TableScope) error {
	if s.Items == nil {
		return x.ctx.Errorf("array schema items must be an object at %s", path)
	}
	scope := path.Elements()
	kind, err := DetermineKind(s.Items, scope.Canonical())
	if err != nil {
		return x.ctx.Errorf("%v", err)
	}

	if table == nil {
		switch kind {
		case KindObject:
			return x.walk(s.Items, scope, nil, nil, false)
		case KindScalar:
			if _, ok := x.ctx.DescriptorPath(scope); ok {
				x.used[scope.Canonical()] = true
			}
		}
		return nil
	}

	// Items that carry _ext mirror a base collection rather than adding one.
	if kind == KindObject && s.Items.Properties[extensionProperty] != nil {
		return x.walk(s.Items, scope, nil, nil, false)
	}

	child, err := x.childTable(path, table)
	if err != nil {
		return err
	}
	switch kind {
	case KindObject:
		return x.walk(s.Items, scope, child, nil, false)
	case KindScalar:
		if _, ok := x.ctx.DescriptorPath(scope); !ok {
			return x.ctx.Errorf("array schema items must be an object at %s", path)
		}
		prop, _ := path.LastProperty()
		return x.addScalarOrDescriptor(child, s.Items, []string{naming.Singularize(prop)}, scope, IsXNullable(s.Items))
	}
	return x.ctx.Errorf("array schema items must be an object at %s", path)
}

// enterExtension handles an _ext property found on owner. Only the key of
// the extension's own project is lowered; other projects' keys belong to
// their own resource extensions.
func (x *extensionWalker) enterExtension(parent, extSchema *jsonschema.Schema, owner jsonpath.Expression) error {
	c := x.ctx
	extPath := owner.Child(extensionProperty)
	if extSchema.Properties == nil {
		return c.Errorf("extension schema at %s must declare properties", extPath)
	}
	key, ok := MatchProjectKey(SortedProperties(extSchema), c.Project.ProjectEndpointName, c.Project.ProjectName)
	if !ok {
		return c.Errorf("extension project key '%s' not found at %s", c.Project.ProjectEndpointName, extPath)
	}
	projSchema := extSchema.Properties[key]
	if projSchema == nil {
		return c.Errorf("expected property schema to be an object at %s", extPath.Child(key))
	}
	projectPath := extPath.Child(key)

	table, err := x.extensionTable(owner, projectPath, key)
	if err != nil {
		return err
	}
	optional := !IsRequired(parent, extensionProperty) || IsXNullable(extSchema) ||
		!IsRequired(extSchema, key) || IsXNullable(projSchema)
	return x.walk(projSchema, projectPath, table, nil, optional)
}

// extensionTable returns the extension table for the base table that owns
// owner, creating it on first use.
func (x *extensionWalker) extensionTable(owner, projectPath jsonpath.Expression, projectKey string) (*TableScope, error) {
	c := x.ctx
	if t, ok := c.TableForScope(projectPath); ok {
		return t, nil
	}

	baseScope, err := x.baseScopeFor(owner, projectKey)
	if err != nil {
		return nil, err
	}
	baseTable, ok := x.base.TableForScope(baseScope)
	if !ok {
		return nil, c.Errorf("extension scope '%s' maps to base scope '%s', but no base table was found for that scope",
			owner, baseScope)
	}

	bases := slices.Clone(baseTable.CollectionBases)
	name := model.DbTableName{Schema: c.PhysicalSchema, Name: naming.ExtensionTableName(c.RootBaseName, bases)}
	var key model.TableKey
	if baseScope.IsRoot() {
		key = model.TableKey{
			ConstraintName: naming.PrimaryKeyName(name),
			Columns:        []model.KeyColumn{{Name: model.DocumentIDColumn, Kind: model.ColumnParentKeyPart}},
		}
	} else {
		key = ChildTableKey(name, c.RootBaseName, bases)
	}

	b := model.NewTableBuilder(name, projectPath, key)
	seedKeyColumns(b, key)
	baseName := baseTable.Builder.Table()
	b.AddConstraint(model.ForeignKeyConstraint{
		Name:          naming.ForeignKeyName(name, baseName.Name),
		Columns:       key.ColumnNames(),
		TargetTable:   baseName,
		TargetColumns: baseTable.Builder.Key().ColumnNames(),
		OnDelete:      model.Cascade,
		OnUpdate:      model.NoAction,
	})

	t := &TableScope{
		Builder:         b,
		Scope:           projectPath,
		CollectionBases: bases,
		DefaultBases:    slices.Clone(baseTable.DefaultBases),
	}
	x.register(t, name.Name, key)
	c.Tables = append(c.Tables, t)
	return t, nil
}

// baseScopeFor maps an _ext owner scope to the base table scope it
// extends: the leading _ext.<key> is stripped and the rest is cut back to
// its last array wildcard.
func (x *extensionWalker) baseScopeFor(owner jsonpath.Expression, projectKey string) (jsonpath.Expression, error) {
	segs := owner.Segments()
	if len(segs) == 0 {
		return jsonpath.Root(), nil
	}
	if len(segs) < 2 || segs[0].IsWildcard() || segs[0].Name != extensionProperty ||
		segs[1].IsWildcard() || segs[1].Name != projectKey {
		return jsonpath.Expression{}, x.ctx.Errorf("expected extension scope '%s' to start with '$._ext.%s'", owner, projectKey)
	}
	rest, err := jsonpath.FromSegments(segs[2:]...)
	if err != nil {
		return jsonpath.Expression{}, x.ctx.Errorf("%v", err)
	}
	if scope, ok := rest.ArrayScope(); ok {
		return scope, nil
	}
	return jsonpath.Root(), nil
}

// childTable creates a collection table the extension adds beneath parent.
func (x *extensionWalker) childTable(arrayPath jsonpath.Expression, parent *TableScope) (*TableScope, error) {
	c := x.ctx
	prop, ok := arrayPath.LastProperty()
	if !ok {
		return nil, c.Errorf("array schema must be rooted at a property segment")
	}
	scope := arrayPath.Elements()

	defaultBase := naming.CollectionBaseName(prop)
	base := defaultBase
	if o, ok := c.Override(scope); ok && o.IsCollection {
		extensionRoot := naming.ExtensionTableName(c.RootBaseName, nil)
		prefixes := naming.CollectionOverridePrefixes(extensionRoot, strings.Join(parent.CollectionBases, ""), c.RootBaseName)
		resolved, err := naming.ResolveCollectionOverride(o.Name, prefixes)
		if err != nil {
			if errors.Is(err, naming.ErrOverrideMissingSuffix) {
				return nil, c.Errorf("relational.nameOverrides entry '%s' for collection '%s' must extend the implied prefix: %v",
					o.RawKey, scope, err)
			}
			return nil, c.Errorf("%v", err)
		}
		base = resolved
	}

	bases := append(slices.Clone(parent.CollectionBases), base)
	defaults := append(slices.Clone(parent.DefaultBases), defaultBase)
	name := model.DbTableName{Schema: c.PhysicalSchema, Name: naming.ExtensionTableName(c.RootBaseName, bases)}
	key := ChildTableKey(name, c.RootBaseName, bases)

	b := model.NewTableBuilder(name, scope, key)
	seedKeyColumns(b, key)
	parentName := parent.Builder.Table()
	b.AddConstraint(model.ForeignKeyConstraint{
		Name:          naming.ForeignKeyName(name, parentName.Name),
		Columns:       ParentKeyColumns(c.RootBaseName, parent.CollectionBases),
		TargetTable:   parentName,
		TargetColumns: parent.Builder.Key().ColumnNames(),
		OnDelete:      model.Cascade,
		OnUpdate:      model.NoAction,
	})

	t := &TableScope{
		Builder:         b,
		Scope:           scope,
		CollectionBases: bases,
		DefaultBases:    defaults,
		Parent:          parent,
	}
	x.register(t, naming.ExtensionTableName(c.RootBaseName, defaults), key)
	c.Tables = append(c.Tables, t)
	return t, nil
}

// register seeds the walker with t's key columns and reports t to the
// override detector.
func (x *extensionWalker) register(t *TableScope, original string, key model.TableKey) {
	c := x.ctx
	name := t.Builder.Table()
	seen := x.seen(t)
	for _, kc := range key.Columns {
		seen.set(kc.Name, collision.Source{Original: string(kc.Name), Origin: columnOrigin(c, name, kc.Name, t.Scope)})
	}
	if c.Overrides == nil {
		return
	}
	c.Overrides.RegisterTable(name, original, tableOrigin(c, name, t.Scope))
	for _, kc := range key.Columns {
		c.Overrides.RegisterColumn(name, kc.Name, string(kc.Name), columnOrigin(c, name, kc.Name, t.Scope))
	}
}
