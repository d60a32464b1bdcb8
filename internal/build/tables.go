package build

import (
	"errors"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pthm/relmodel/internal/collision"
	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/naming"
)

// DeriveTableScopesAndKeys creates the root table and one child table per
// array, each seeded with its key columns and the FK to its parent.
func DeriveTableScopesAndKeys(c *Context) error {
	if c.JsonSchema == nil {
		return c.Errorf("jsonSchemaForInsert must be decoded before deriving table scopes")
	}

	c.PhysicalSchema = c.Project.PhysicalSchema
	if c.PhysicalSchema == "" {
		c.PhysicalSchema = naming.NormalizeSchemaName(c.Project.ProjectEndpointName)
	}
	c.RootBaseName = c.RootTableNameOverride
	if c.RootBaseName == "" {
		c.RootBaseName = naming.PascalCase(c.Input.ResourceName)
	}

	if c.IsDescriptor {
		c.StorageKind = model.SharedDescriptorTable
		c.Tables = []*TableScope{{
			Builder: newRootBuilder(model.DescriptorTable),
			Scope:   jsonpath.Root(),
		}}
		return nil
	}
	c.StorageKind = model.RelationalTables

	rootName := model.DbTableName{Schema: c.PhysicalSchema, Name: c.RootBaseName}
	root := &TableScope{Builder: newRootBuilder(rootName), Scope: jsonpath.Root()}
	c.Tables = []*TableScope{root}

	if c.Overrides != nil {
		c.Overrides.RegisterTable(rootName, defaultRootBase(c), tableOrigin(c, rootName, root.Scope))
		c.Overrides.RegisterColumn(rootName, model.DocumentIDColumn, string(model.DocumentIDColumn),
			columnOrigin(c, rootName, model.DocumentIDColumn, root.Scope))
	}

	return discoverTables(c, c.JsonSchema, jsonpath.Root(), root)
}

func newRootBuilder(table model.DbTableName) *model.TableBuilder {
	key := model.TableKey{
		ConstraintName: naming.PrimaryKeyName(table),
		Columns:        []model.KeyColumn{{Name: model.DocumentIDColumn, Kind: model.ColumnParentKeyPart}},
	}
	b := model.NewTableBuilder(table, jsonpath.Root(), key)
	seedKeyColumns(b, key)
	b.AddConstraint(model.ForeignKeyConstraint{
		Name:          naming.DocumentForeignKeyName(table),
		Columns:       []model.DbColumnName{model.DocumentIDColumn},
		TargetTable:   model.DocumentTable,
		TargetColumns: []model.DbColumnName{model.DocumentIDColumn},
		OnDelete:      model.Cascade,
		OnUpdate:      model.NoAction,
	})
	return b
}

// seedKeyColumns adds the key columns as non-nullable columns.
func seedKeyColumns(b *model.TableBuilder, key model.TableKey) {
	for _, kc := range key.Columns {
		b.AddColumn(model.DbColumnModel{
			Name:       kc.Name,
			Kind:       kc.Kind,
			ScalarType: model.Ptr(keyColumnType(kc)),
		})
	}
}

func keyColumnType(kc model.KeyColumn) model.RelationalScalarType {
	if kc.Kind == model.ColumnParentKeyPart && model.IsDocumentIDColumn(kc.Name) {
		return model.ScalarOf(model.ScalarInt64)
	}
	if kc.Kind == model.ColumnDocumentFk {
		return model.ScalarOf(model.ScalarInt64)
	}
	return model.ScalarOf(model.ScalarInt32)
}

func discoverTables(c *Context, s *jsonschema.Schema, path jsonpath.Expression, parent *TableScope) error {
	kind, err := DetermineKind(s, path.Canonical())
	if err != nil {
		return c.Errorf("%v", err)
	}
	switch kind {
	case KindObject:
		for _, name := range SortedProperties(s) {
			if name == extensionProperty {
				continue
			}
			prop := s.Properties[name]
			if prop == nil {
				return c.Errorf("expected property schema to be an object at %s", name)
			}
			if err := discoverTables(c, prop, path.Child(name), parent); err != nil {
				return err
			}
		}
	case KindArray:
		child, err := deriveChildTable(c, path, parent)
		if err != nil {
			return err
		}
		if s.Items == nil {
			return c.Errorf("array schema items must be an object")
		}
		return discoverTables(c, s.Items, child.Scope, child)
	}
	return nil
}

func deriveChildTable(c *Context, arrayPath jsonpath.Expression, parent *TableScope) (*TableScope, error) {
	prop, ok := arrayPath.LastProperty()
	if !ok || arrayPath.Segments()[arrayPath.Len()-1].IsWildcard() {
		return nil, c.Errorf("array schema must be rooted at a property segment")
	}
	scope := arrayPath.Elements()

	defaultBase := naming.CollectionBaseName(prop)
	base := defaultBase
	if o, ok := c.Override(scope); ok && o.IsCollection {
		var extraRoots []string
		if super := c.Input.SuperclassResourceName; strings.TrimSpace(super) != "" && o.Name != defaultBase {
			extraRoots = append(extraRoots, naming.PascalCase(super))
		}
		prefixes := naming.CollectionOverridePrefixes(c.RootBaseName, strings.Join(parent.CollectionBases, ""), extraRoots...)
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

	bases := append(append([]string(nil), parent.CollectionBases...), base)
	defaults := append(append([]string(nil), parent.DefaultBases...), defaultBase)

	name := model.DbTableName{Schema: c.PhysicalSchema, Name: c.RootBaseName + strings.Join(bases, "")}
	key := ChildTableKey(name, c.RootBaseName, bases)

	b := model.NewTableBuilder(name, scope, key)
	seedKeyColumns(b, key)
	parentTable := parent.Builder.Table()
	b.AddConstraint(model.ForeignKeyConstraint{
		Name:          naming.ForeignKeyName(name, parentTable.Name),
		Columns:       ParentKeyColumns(c.RootBaseName, parent.CollectionBases),
		TargetTable:   parentTable,
		TargetColumns: parent.Builder.Key().ColumnNames(),
		OnDelete:      model.Cascade,
		OnUpdate:      model.NoAction,
	})

	if c.Overrides != nil {
		originalName := defaultRootBase(c) + strings.Join(defaults, "")
		original := ChildTableKey(model.DbTableName{Schema: c.PhysicalSchema, Name: originalName}, defaultRootBase(c), defaults)
		c.Overrides.RegisterTable(name, originalName, tableOrigin(c, name, scope))
		for i, kc := range key.Columns {
			c.Overrides.RegisterColumn(name, kc.Name, string(original.Columns[i].Name), columnOrigin(c, name, kc.Name, scope))
		}
	}

	child := &TableScope{
		Builder:         b,
		Scope:           scope,
		CollectionBases: bases,
		DefaultBases:    defaults,
		Parent:          parent,
	}
	c.Tables = append(c.Tables, child)
	return child, nil
}

// ChildTableKey is the key of a collection table: the root document id,
// one ordinal per ancestor collection, and the table's own ordinal.
func ChildTableKey(table model.DbTableName, rootBase string, bases []string) model.TableKey {
	cols := []model.KeyColumn{{Name: naming.RootDocumentIDColumn(rootBase), Kind: model.ColumnParentKeyPart}}
	for _, b := range bases[:len(bases)-1] {
		cols = append(cols, model.KeyColumn{Name: naming.ParentOrdinalColumn(b), Kind: model.ColumnParentKeyPart})
	}
	cols = append(cols, model.KeyColumn{Name: model.OrdinalColumn, Kind: model.ColumnOrdinal})
	return model.TableKey{ConstraintName: naming.PrimaryKeyName(table), Columns: cols}
}

// ParentKeyColumns names, on a child table, the columns that reference the
// parent's key.
func ParentKeyColumns(rootBase string, parentBases []string) []model.DbColumnName {
	cols := []model.DbColumnName{naming.RootDocumentIDColumn(rootBase)}
	for _, b := range parentBases {
		cols = append(cols, naming.ParentOrdinalColumn(b))
	}
	return cols
}

// defaultRootBase is the root table name the resource would have without
// relational.rootTableNameOverride.
func defaultRootBase(c *Context) string {
	return naming.PascalCase(c.Input.ResourceName)
}

func tableOrigin(c *Context, table model.DbTableName, scope jsonpath.Expression) collision.Origin {
	return collision.Origin{Description: "table " + table.String(), Resource: c.Label(), JsonPath: scope.Canonical()}
}

func columnOrigin(c *Context, table model.DbTableName, column model.DbColumnName, path jsonpath.Expression) collision.Origin {
	return collision.Origin{
		Description: "column " + table.String() + "." + string(column),
		Resource:    c.Label(),
		JsonPath:    path.Canonical(),
	}
}
