package passes

import (
	"slices"

	"github.com/pthm/relmodel/internal/build"
	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/naming"
)

const (
	descriptorURILength           = 306
	descriptorDiscriminatorLength = 128
)

// RootIdentityConstraint adds the natural key of every concrete resource.
// Descriptors get the (Uri, Discriminator) key of dms.Descriptor instead.
type RootIdentityConstraint struct{}

func (RootIdentityConstraint) Name() string { return "RootIdentityConstraint" }
func (RootIdentityConstraint) Order() int   { return 50 }

func (RootIdentityConstraint) Execute(s *SetContext) error {
	for _, e := range s.Resources {
		if e.IsExtension() || e.Model == nil {
			continue
		}
		rm := &e.Model.RelationalModel
		root := rm.Root()

		if e.Model.StorageKind == model.SharedDescriptorTable {
			if err := rewriteTable(rm, root.Table, ensureDescriptorKey); err != nil {
				return err
			}
			continue
		}
		if len(e.Context.IdentityPaths) == 0 {
			continue
		}

		cols, err := naturalKeyColumns(e.Context, rm)
		if err != nil {
			return err
		}
		err = rewriteTable(rm, root.Table, func(b *model.TableBuilder) error {
			b.AddConstraint(model.UniqueConstraint{Name: naming.NaturalKeyName(root.Table), Columns: cols})
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func ensureDescriptorKey(b *model.TableBuilder) error {
	if _, ok := b.Column(model.URIColumn); !ok {
		b.AddColumn(model.DbColumnModel{
			Name:       model.URIColumn,
			Kind:       model.ColumnScalar,
			ScalarType: model.Ptr(model.StringType(descriptorURILength)),
		})
	}
	if _, ok := b.Column(model.DiscriminatorColumn); !ok {
		b.AddColumn(model.DbColumnModel{
			Name:       model.DiscriminatorColumn,
			Kind:       model.ColumnScalar,
			ScalarType: model.Ptr(model.StringType(descriptorDiscriminatorLength)),
		})
	}
	b.AddConstraint(model.UniqueConstraint{
		Name:    naming.UniqueName(b.Table(), model.URIColumn, model.DiscriminatorColumn),
		Columns: []model.DbColumnName{model.URIColumn, model.DiscriminatorColumn},
	})
	return nil
}

// naturalKeyColumns maps every identity path to the root column that
// stores it. Reference identities contribute their FK column once.
func naturalKeyColumns(c *build.Context, rm *model.RelationalResourceModel) ([]model.DbColumnName, error) {
	root := rm.Root()
	var cols []model.DbColumnName
	add := func(name model.DbColumnName) {
		if !slices.Contains(cols, name) {
			cols = append(cols, name)
		}
	}

	for _, path := range c.IdentityPaths {
		if path.HasWildcard() {
			return nil, c.Errorf("identity path '%s' must not include array segments", path)
		}
		if ref, ok := referenceForIdentity(rm, path); ok {
			if ref.Table != root.Table {
				return nil, c.Errorf("identity path '%s' belongs to reference '%s' on table '%s', which is not the root table",
					path, ref.ReferenceObjectPath, ref.Table)
			}
			col, ok := root.Column(ref.FkColumn)
			if !ok {
				return nil, c.Errorf("reference FK column '%s' was not found on the root table", ref.FkColumn)
			}
			add(col.StoredName())
			continue
		}
		col, ok := root.ColumnBySource(path)
		if !ok {
			return nil, c.Errorf("identity path '%s' did not map to a root table column", path)
		}
		add(col.StoredName())
	}
	return cols, nil
}

// referenceForIdentity returns the binding whose identity bindings include path.
func referenceForIdentity(rm *model.RelationalResourceModel, path jsonpath.Expression) (model.DocumentReferenceBinding, bool) {
	for _, ref := range rm.DocumentReferenceBindings {
		for _, ib := range ref.IdentityBindings {
			if ib.ReferenceJsonPath.Equal(path) {
				return ref, true
			}
		}
	}
	return model.DocumentReferenceBinding{}, false
}
