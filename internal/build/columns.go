package build

import (
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pthm/relmodel/internal/collision"
	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/naming"
)

const referenceLinkProperty = "link"

// DeriveColumnsAndBindDescriptorEdges adds scalar and descriptor columns to
// the tables created by DeriveTableScopesAndKeys. Paths mirrored from a
// referenced resource's identity are left for reference binding.
func DeriveColumnsAndBindDescriptorEdges(c *Context) error {
	root, ok := c.TableForScope(jsonpath.Root())
	if !ok {
		return c.Errorf("root table scope '$' was not found")
	}

	w := newColumnWalker(c)
	for _, t := range c.Tables {
		for _, kc := range t.Builder.Key().Columns {
			w.seen(t).set(kc.Name, collision.Source{
				Original: string(kc.Name),
				Origin:   columnOrigin(c, t.Builder.Table(), kc.Name, t.Scope),
			})
		}
	}

	if err := w.walk(c.JsonSchema, root, jsonpath.Root(), nil, false); err != nil {
		return err
	}
	return w.ensureDescriptorPathsUsed(true)
}

func newColumnWalker(c *Context) *columnWalker {
	w := &columnWalker{
		ctx:      c,
		origins:  make(map[model.DbTableName]map[model.DbColumnName]collision.Source),
		used:     make(map[string]bool),
		refScope: make(map[string]bool),
	}
	for _, m := range c.ReferenceMappings {
		w.refScope[m.ReferenceObjectPath.Canonical()] = true
	}
	return w
}

type columnSet map[model.DbColumnName]collision.Source

func (s columnSet) set(name model.DbColumnName, src collision.Source) { s[name] = src }

type columnWalker struct {
	ctx      *Context
	origins  map[model.DbTableName]map[model.DbColumnName]collision.Source
	used     map[string]bool
	refScope map[string]bool
}

func (w *columnWalker) seen(t *TableScope) columnSet {
	name := t.Builder.Table()
	if w.origins[name] == nil {
		w.origins[name] = make(map[model.DbColumnName]collision.Source)
	}
	return w.origins[name]
}

func (w *columnWalker) walk(s *jsonschema.Schema, table *TableScope, path jsonpath.Expression, colSegs []string, optional bool) error {
	kind, err := DetermineKind(s, path.Canonical())
	if err != nil {
		return w.ctx.Errorf("%v", err)
	}
	switch kind {
	case KindObject:
		return w.walkObject(s, table, path, colSegs, optional)
	case KindArray:
		return w.walkArray(s, path)
	}
	return w.ctx.Errorf("unexpected scalar schema at %s", path)
}

func (w *columnWalker) walkObject(s *jsonschema.Schema, table *TableScope, path jsonpath.Expression, colSegs []string, optional bool) error {
	isRefScope := w.refScope[path.Canonical()]
	for _, name := range SortedProperties(s) {
		if name == extensionProperty || (isRefScope && name == referenceLinkProperty) {
			continue
		}
		prop := s.Properties[name]
		if prop == nil {
			return w.ctx.Errorf("expected property schema to be an object at %s", path.Child(name))
		}

		propPath := path.Child(name)
		propSegs := append(slices.Clone(colSegs), name)
		nullable := optional || !IsRequired(s, name) || IsXNullable(prop)

		kind, err := DetermineKind(prop, propPath.Canonical())
		if err != nil {
			return w.ctx.Errorf("%v", err)
		}
		if kind == KindScalar {
			if err := w.addScalarOrDescriptor(table, prop, propSegs, propPath, nullable); err != nil {
				return err
			}
			continue
		}
		if err := w.walk(prop, table, propPath, propSegs, nullable); err != nil {
			return err
		}
	}
	return nil
}

func (w *columnWalker) walkArray(s *jsonschema.Schema, path jsonpath.Expression) error {
	if s.Items == nil {
		return w.ctx.Errorf("array schema items must be an object at %s", path)
	}
	// Descriptors share dms.Descriptor and never get collection tables.
	if w.ctx.IsDescriptor {
		return nil
	}
	scope := path.Elements()
	child, ok := w.ctx.TableForScope(scope)
	if !ok {
		return w.ctx.Errorf("child table scope '%s' was not found", scope)
	}

	kind, err := DetermineKind(s.Items, scope.Canonical())
	if err != nil {
		return w.ctx.Errorf("%v", err)
	}
	switch kind {
	case KindObject:
		// Array elements start a fresh table, so nullability restarts.
		return w.walk(s.Items, child, scope, nil, false)
	case KindScalar:
		if _, ok := w.ctx.DescriptorPath(scope); !ok {
			return w.ctx.Errorf("array schema items must be an object at %s", path)
		}
		prop, _ := path.LastProperty()
		return w.addScalarOrDescriptor(child, s.Items, []string{naming.Singularize(prop)}, scope, IsXNullable(s.Items))
	}
	return w.ctx.Errorf("array schema items must be an object at %s", path)
}

func (w *columnWalker) addScalarOrDescriptor(table *TableScope, s *jsonschema.Schema, colSegs []string, path jsonpath.Expression, nullable bool) error {
	c := w.ctx
	if c.IsReferenceIdentityPath(path) {
		if _, ok := c.DescriptorPath(path); ok {
			w.used[path.Canonical()] = true
		}
		return nil
	}

	isIdentity := c.IsIdentityPath(path)
	if isIdentity && nullable {
		return c.Errorf("identity path '%s' maps to a nullable column. Identity components must be non-null", path)
	}

	base, original := columnBaseName(c, path, colSegs)
	tableName := table.Builder.Table()

	if info, ok := c.DescriptorPath(path); ok {
		name := naming.DescriptorIDColumn(base)
		col := model.DbColumnModel{
			Name:           name,
			Kind:           model.ColumnDescriptorFk,
			ScalarType:     model.Ptr(model.ScalarOf(model.ScalarInt64)),
			IsNullable:     nullable,
			SourcePath:     model.Ptr(info.Path),
			TargetResource: model.Ptr(info.DescriptorResource),
		}
		if err := w.add(table, col, string(naming.DescriptorIDColumn(original))); err != nil {
			return err
		}
		table.Builder.AddConstraint(model.ForeignKeyConstraint{
			Name:          naming.DescriptorForeignKeyName(tableName, name),
			Columns:       []model.DbColumnName{name},
			TargetTable:   model.DescriptorTable,
			TargetColumns: []model.DbColumnName{model.DocumentIDColumn},
			OnDelete:      model.NoAction,
			OnUpdate:      model.NoAction,
		})
		c.DescriptorEdgeSources = append(c.DescriptorEdgeSources, model.DescriptorEdgeSource{
			IsIdentityComponent: isIdentity,
			DescriptorValuePath: info.Path,
			Table:               tableName,
			FkColumn:            name,
			DescriptorResource:  info.DescriptorResource,
		})
		w.used[path.Canonical()] = true
		return nil
	}

	st, err := ResolveScalarType(s, path, c.DecimalInfos, c.StringOmissionPaths)
	if err != nil {
		return c.Errorf("%v", err)
	}
	return w.add(table, model.DbColumnModel{
		Name:       model.DbColumnName(base),
		Kind:       model.ColumnScalar,
		ScalarType: &st,
		IsNullable: nullable,
		SourcePath: model.Ptr(path),
	}, original)
}

// add appends col, reporting an override collision when another path
// already produced the same column name on the table.
func (w *columnWalker) add(table *TableScope, col model.DbColumnModel, original string) error {
	tableName := table.Builder.Table()
	path := table.Scope
	if col.SourcePath != nil {
		path = *col.SourcePath
	}
	src := collision.Source{Original: original, Origin: columnOrigin(w.ctx, tableName, col.Name, path)}

	seen := w.seen(table)
	if existing, ok := seen[col.Name]; ok {
		scope := collision.Scope{Kind: collision.KindColumn, Schema: string(tableName.Schema), Table: tableName.Name}
		return collision.Conflict(scope, string(col.Name), existing, src)
	}
	seen.set(col.Name, src)
	table.Builder.AddColumn(col)
	if w.ctx.Overrides != nil {
		w.ctx.Overrides.RegisterColumn(tableName, col.Name, original, src.Origin)
	}
	return nil
}

// columnBaseName returns the column base for path and the name it would
// have had without an override.
func columnBaseName(c *Context, path jsonpath.Expression, colSegs []string) (string, string) {
	var sb strings.Builder
	for _, seg := range colSegs {
		sb.WriteString(naming.PascalCase(seg))
	}
	original := sb.String()
	if o, ok := c.Override(path); ok && !o.IsCollection {
		return o.Name, original
	}
	return original, original
}

// ensureDescriptorPathsUsed fails when a descriptor path matched no schema
// node. Base resources leave _ext paths to their extensions.
func (w *columnWalker) ensureDescriptorPathsUsed(skipExtensions bool) error {
	var missing []string
	for key, info := range w.ctx.DescriptorPaths {
		if w.used[key] || (skipExtensions && isExtensionPath(info.Path)) {
			continue
		}
		missing = append(missing, key)
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return w.ctx.Errorf("descriptor paths were not found in JSON schema: %s", strings.Join(missing, ", "))
}

// isExtensionPath reports whether p passes through an _ext property.
func isExtensionPath(p jsonpath.Expression) bool {
	for _, s := range p.Segments() {
		if !s.IsWildcard() && s.Name == extensionProperty {
			return true
		}
	}
	return false
}
