package passes

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/relmodel/internal/dialect"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/schema"
)

var (
	edfiSchool      = model.DbTableName{Schema: "edfi", Name: "School"}
	edfiGradeLevels = model.DbTableName{Schema: "edfi", Name: "SchoolGradeLevel"}
	edfiSession     = model.DbTableName{Schema: "edfi", Name: "Session"}
	edfiEdOrgTable  = model.DbTableName{Schema: "edfi", Name: "EducationOrganizationIdentity"}
)

func loadSet(t *testing.T, name string) *schema.EffectiveSchemaSet {
	t.Helper()
	set, err := schema.Load(filepath.Join("testdata", name))
	require.NoError(t, err)
	return set
}

func mustBuild(t *testing.T, set *schema.EffectiveSchemaSet, d dialect.Dialect) *model.DerivedRelationalModelSet {
	t.Helper()
	out, err := Build(set, d, dialect.MustForDialect(d))
	require.NoError(t, err)
	return out
}

func concrete(t *testing.T, set *model.DerivedRelationalModelSet, resource string) model.ConcreteResourceModel {
	t.Helper()
	for _, r := range set.ConcreteResourcesInNameOrder {
		if r.ResourceKey.Resource.ResourceName == resource {
			return r
		}
	}
	t.Fatalf("resource %s not found", resource)
	return model.ConcreteResourceModel{}
}

func table(t *testing.T, m model.RelationalResourceModel, name model.DbTableName) model.DbTableModel {
	t.Helper()
	tbl, _, ok := m.TableByName(name)
	require.True(t, ok, "table %s", name)
	return tbl
}

func constraint(t *testing.T, tbl model.DbTableModel, name string) model.TableConstraint {
	t.Helper()
	for _, c := range tbl.Constraints {
		if c.ConstraintName() == name {
			return c
		}
	}
	t.Fatalf("constraint %s not found on %s", name, tbl.Table)
	return nil
}

func setResource(set *schema.EffectiveSchemaSet, key string, fn func(*schema.ResourceSchema)) {
	rs := set.ProjectSchemas[0].ResourceSchemas[key]
	fn(&rs)
	set.ProjectSchemas[0].ResourceSchemas[key] = rs
}

func TestNewBuilder_SortsByOrder(t *testing.T) {
	b, err := NewBuilder([]Pass{TriggerInventory{}, BaseTraversal{}, ReferenceBinding{}})
	require.NoError(t, err)

	var names []string
	for _, p := range b.Passes() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"BaseTraversalAndDescriptorBinding", "ReferenceBinding", "TriggerInventory"}, names)
}

type fixedPass struct {
	name  string
	order int
}

func (p fixedPass) Name() string                { return p.name }
func (p fixedPass) Order() int                  { return p.order }
func (p fixedPass) Execute(s *SetContext) error { return nil }

func TestNewBuilder_DuplicateOrder(t *testing.T) {
	_, err := NewBuilder([]Pass{fixedPass{"Beta", 5}, fixedPass{"Alpha", 5}, fixedPass{"Gamma", 6}})

	require.Error(t, err)
	assert.True(t, IsDuplicatePassOrderErr(err))
	assert.Contains(t, err.Error(), "passes Alpha, Beta share order 5")
}

func TestDefaultPasses_UniqueOrders(t *testing.T) {
	_, err := NewBuilder(DefaultPasses())
	require.NoError(t, err)
}

func TestBuild_DialectMismatch(t *testing.T) {
	set := loadSet(t, "core.json")

	_, err := Build(set, dialect.Pgsql, dialect.MustForDialect(dialect.Mssql))

	require.Error(t, err)
	assert.True(t, dialect.IsDialectMismatchErr(err))
	assert.Contains(t, err.Error(), "pgsql")
	assert.Contains(t, err.Error(), "mssql")
}

func TestBuild_Core(t *testing.T) {
	out := mustBuild(t, loadSet(t, "core.json"), dialect.Pgsql)

	assert.Equal(t, dialect.Pgsql, out.Dialect)
	require.Len(t, out.ProjectSchemasInEndpointOrder, 1)
	assert.Equal(t, model.DbSchemaName("edfi"), out.ProjectSchemasInEndpointOrder[0].PhysicalSchema)
	assert.Equal(t, 4, out.EffectiveSchema.ResourceKeyCount)
	require.Len(t, out.EffectiveSchema.ResourceKeysInIdOrder, 4)
	assert.True(t, out.EffectiveSchema.ResourceKeysInIdOrder[0].IsAbstract)

	var names []string
	for _, r := range out.ConcreteResourcesInNameOrder {
		names = append(names, r.ResourceKey.Resource.ResourceName)
	}
	assert.Equal(t, []string{"GradeLevelDescriptor", "School", "Session"}, names)
}

func TestBuild_DescriptorUsesSharedTable(t *testing.T) {
	out := mustBuild(t, loadSet(t, "core.json"), dialect.Pgsql)
	desc := concrete(t, out, "GradeLevelDescriptor")

	assert.Equal(t, model.SharedDescriptorTable, desc.StorageKind)
	require.NotNil(t, desc.DescriptorMetadata)
	assert.Equal(t, model.DiscriminatorDescriptorColumn, desc.DescriptorMetadata.Discriminator)

	root := desc.RelationalModel.Root()
	assert.Equal(t, model.DescriptorTable, root.Table)
	uri, ok := root.Column(model.URIColumn)
	require.True(t, ok)
	assert.Equal(t, model.StringType(306), *uri.ScalarType)

	ux, ok := constraint(t, root, "UX_Descriptor_Uri_Discriminator").(model.UniqueConstraint)
	require.True(t, ok)
	assert.Equal(t, []model.DbColumnName{model.URIColumn, model.DiscriminatorColumn}, ux.Columns)

	for _, idx := range out.IndexesInCreateOrder {
		assert.NotEqual(t, model.DescriptorTable, idx.Table, "descriptor table indexes belong to the core schema")
	}
}

func TestBuild_RootIdentityAndReferenceKey(t *testing.T) {
	out := mustBuild(t, loadSet(t, "core.json"), dialect.Pgsql)
	school := concrete(t, out, "School")
	root := table(t, school.RelationalModel, edfiSchool)

	nk := constraint(t, root, "UX_School_NK").(model.UniqueConstraint)
	assert.Equal(t, []model.DbColumnName{"SchoolId"}, nk.Columns)

	refKey := constraint(t, root, "UX_School_RefKey").(model.UniqueConstraint)
	assert.Equal(t, []model.DbColumnName{model.DocumentIDColumn, "SchoolId"}, refKey.Columns)
}

func TestBuild_ArrayUniqueness(t *testing.T) {
	out := mustBuild(t, loadSet(t, "core.json"), dialect.Pgsql)
	school := concrete(t, out, "School")
	grades := table(t, school.RelationalModel, edfiGradeLevels)

	ux := constraint(t, grades, "UX_SchoolGradeLevel_GradeLevelDescriptor_DescriptorId").(model.UniqueConstraint)
	assert.Equal(t, []model.DbColumnName{"School_DocumentId", "GradeLevelDescriptor_DescriptorId"}, ux.Columns)

	fk := constraint(t, grades, "FK_SchoolGradeLevel_GradeLevelDescriptor").(model.ForeignKeyConstraint)
	assert.Equal(t, model.DescriptorTable, fk.TargetTable)
}

func TestBuild_ReferenceColumnsAndConstraints(t *testing.T) {
	out := mustBuild(t, loadSet(t, "core.json"), dialect.Pgsql)
	session := concrete(t, out, "Session")
	root := table(t, session.RelationalModel, edfiSession)

	fkCol, ok := root.Column("School_DocumentId")
	require.True(t, ok)
	assert.Equal(t, model.ColumnDocumentFk, fkCol.Kind)
	assert.False(t, fkCol.IsNullable)

	idCol, ok := root.Column("School_SchoolId")
	require.True(t, ok)
	assert.Equal(t, model.ScalarOf(model.ScalarInt32), *idCol.ScalarType)

	fk := constraint(t, root, "FK_Session_School_RefKey").(model.ForeignKeyConstraint)
	assert.Equal(t, []model.DbColumnName{"School_DocumentId", "School_SchoolId"}, fk.Columns)
	assert.Equal(t, edfiSchool, fk.TargetTable)
	assert.Equal(t, []model.DbColumnName{model.DocumentIDColumn, "SchoolId"}, fk.TargetColumns)
	assert.Equal(t, model.NoAction, fk.OnDelete)
	assert.Equal(t, model.NoAction, fk.OnUpdate)

	ck := constraint(t, root, "CK_Session_School_AllNone").(model.AllOrNoneConstraint)
	assert.Equal(t, model.DbColumnName("School_DocumentId"), ck.FkColumn)
	assert.Equal(t, []model.DbColumnName{"School_SchoolId"}, ck.DependentColumns)

	nk := constraint(t, root, "UX_Session_NK").(model.UniqueConstraint)
	assert.Equal(t, []model.DbColumnName{"School_DocumentId", "SessionName"}, nk.Columns)

	require.Len(t, session.RelationalModel.DocumentReferenceBindings, 1)
	binding := session.RelationalModel.DocumentReferenceBindings[0]
	assert.True(t, binding.IsIdentityComponent)
	assert.Equal(t, edfiSession, binding.Table)
	require.Len(t, binding.IdentityBindings, 1)
	assert.Equal(t, model.DbColumnName("School_SchoolId"), binding.IdentityBindings[0].Column)
}

func TestBuild_IdentityUpdatesCascade(t *testing.T) {
	set := loadSet(t, "core.json")
	setResource(set, "schools", func(rs *schema.ResourceSchema) { rs.AllowIdentityUpdates = true })

	pg := mustBuild(t, set, dialect.Pgsql)
	fk := constraint(t, table(t, concrete(t, pg, "Session").RelationalModel, edfiSession), "FK_Session_School_RefKey").(model.ForeignKeyConstraint)
	assert.Equal(t, model.Cascade, fk.OnUpdate)
	for _, tr := range pg.TriggersInCreateOrder {
		assert.NotEqual(t, model.TriggerIdentityPropagationFallback, tr.Kind)
	}

	ms := mustBuild(t, set, dialect.Mssql)
	fk = constraint(t, table(t, concrete(t, ms, "Session").RelationalModel, edfiSession), "FK_Session_School_RefKey").(model.ForeignKeyConstraint)
	assert.Equal(t, model.NoAction, fk.OnUpdate)

	var propagate []model.DbTriggerInfo
	for _, tr := range ms.TriggersInCreateOrder {
		if tr.Kind == model.TriggerIdentityPropagationFallback {
			propagate = append(propagate, tr)
		}
	}
	require.Len(t, propagate, 1)
	assert.Equal(t, model.DbTriggerName("TR_School_PropagateIdentity"), propagate[0].Name)
	assert.Equal(t, edfiSchool, propagate[0].Table)
	require.Len(t, propagate[0].Referrers, 1)
	assert.Equal(t, edfiSession, propagate[0].Referrers[0].Table)
	assert.Equal(t, []model.TriggerColumnMapping{{Source: "SchoolId", Target: "School_SchoolId"}}, propagate[0].Referrers[0].ColumnMappings)
}

func TestBuild_AbstractIdentityTableAndView(t *testing.T) {
	out := mustBuild(t, loadSet(t, "core.json"), dialect.Pgsql)

	require.Len(t, out.AbstractIdentityTablesInNameOrder, 1)
	identity := out.AbstractIdentityTablesInNameOrder[0].Table
	assert.Equal(t, edfiEdOrgTable, identity.Table)

	col, ok := identity.Column("EducationOrganizationId")
	require.True(t, ok)
	assert.Equal(t, model.ScalarOf(model.ScalarInt32), *col.ScalarType)
	disc, ok := identity.Column(model.DiscriminatorColumn)
	require.True(t, ok)
	assert.Equal(t, model.StringType(256), *disc.ScalarType)

	refKey := constraint(t, identity, "UX_EducationOrganizationIdentity_RefKey").(model.UniqueConstraint)
	assert.Equal(t, []model.DbColumnName{model.DocumentIDColumn, "EducationOrganizationId"}, refKey.Columns)

	require.Len(t, out.AbstractUnionViewsInNameOrder, 1)
	view := out.AbstractUnionViewsInNameOrder[0]
	assert.Equal(t, model.DbTableName{Schema: "edfi", Name: "EducationOrganization_View"}, view.ViewName)
	require.Len(t, view.UnionArms, 1)
	arm := view.UnionArms[0]
	assert.Equal(t, edfiSchool, arm.FromTable)
	assert.Equal(t, []model.UnionViewProjection{
		{SourceColumn: model.DocumentIDColumn},
		{SourceColumn: "SchoolId"},
		{Literal: "Ed-Fi:School", IsLiteral: true},
	}, arm.Projections)
}

func TestBuild_IndexInventory(t *testing.T) {
	out := mustBuild(t, loadSet(t, "core.json"), dialect.Pgsql)

	byName := make(map[model.DbIndexName]model.DbIndexInfo)
	for _, idx := range out.IndexesInCreateOrder {
		byName[idx.Name] = idx
	}

	pk := byName["PK_Session"]
	assert.Equal(t, model.IndexPrimaryKey, pk.Kind)
	assert.True(t, pk.IsUnique)

	support, ok := byName["IX_Session_School_DocumentId_School_SchoolId"]
	require.True(t, ok)
	assert.Equal(t, model.IndexForeignKeySupport, support.Kind)
	assert.False(t, support.IsUnique)

	// Parent FKs are leftmost prefixes of the child key.
	_, ok = byName["IX_SchoolGradeLevel_School_DocumentId"]
	assert.False(t, ok)
	_, ok = byName["IX_SchoolGradeLevel_GradeLevelDescriptor_DescriptorId"]
	assert.True(t, ok)

	_, ok = byName["UX_EducationOrganizationIdentity_RefKey"]
	assert.True(t, ok)

	for i := 1; i < len(out.IndexesInCreateOrder); i++ {
		a, b := out.IndexesInCreateOrder[i-1], out.IndexesInCreateOrder[i]
		if a.Table == b.Table {
			assert.Less(t, a.Name, b.Name)
		} else {
			assert.Negative(t, model.CompareTables(a.Table, b.Table))
		}
	}
}

func TestBuild_TriggerInventory(t *testing.T) {
	out := mustBuild(t, loadSet(t, "core.json"), dialect.Pgsql)

	var names []model.DbTriggerName
	for _, tr := range out.TriggersInCreateOrder {
		names = append(names, tr.Name)
	}
	assert.Equal(t, []model.DbTriggerName{
		"TR_School_AbstractIdentity",
		"TR_School_ReferentialIdentity",
		"TR_School_Stamp",
		"TR_SchoolGradeLevel_Stamp",
		"TR_Session_ReferentialIdentity",
		"TR_Session_Stamp",
	}, names)

	abstract := out.TriggersInCreateOrder[0]
	require.NotNil(t, abstract.TargetTable)
	assert.Equal(t, edfiEdOrgTable, *abstract.TargetTable)
	assert.Equal(t, []model.DbColumnName{"SchoolId"}, abstract.IdentityProjectionColumns)

	ref := out.TriggersInCreateOrder[4]
	assert.Equal(t, model.TriggerReferentialIdentityMaintenance, ref.Kind)
	assert.Equal(t, []model.DbColumnName{"School_DocumentId", "SessionName"}, ref.IdentityProjectionColumns)
}

func TestBuild_OrderIndependent(t *testing.T) {
	set := loadSet(t, "core.json")
	for _, d := range dialect.All() {
		forward := mustBuild(t, set, d)
		reversed := mustBuild(t, schema.Reversed(set), d)
		assert.Equal(t, forward, reversed, d)
	}
}

func TestBuild_UnusedNameOverride(t *testing.T) {
	set := loadSet(t, "core.json")
	setResource(set, "sessions", func(rs *schema.ResourceSchema) {
		rs.Relational = &schema.RelationalOverrides{NameOverrides: map[string]string{"$.termDescriptor": "Term"}}
	})

	_, err := Build(set, dialect.Pgsql, dialect.MustForDialect(dialect.Pgsql))

	require.Error(t, err)
	assert.True(t, schema.IsInvalidResourceSchemaErr(err))
	assert.Contains(t, err.Error(), "relational.nameOverrides entries did not match any derived columns or collection scopes on resource 'Ed-Fi:Session'")
	assert.Contains(t, err.Error(), "'$.termDescriptor' (canonical '$.termDescriptor')")
}

func TestBuild_ColumnOverride(t *testing.T) {
	set := loadSet(t, "core.json")
	setResource(set, "sessions", func(rs *schema.ResourceSchema) {
		rs.Relational = &schema.RelationalOverrides{NameOverrides: map[string]string{"$.totalInstructionalDays": "InstructionalDays"}}
	})

	out := mustBuild(t, set, dialect.Pgsql)
	root := table(t, concrete(t, out, "Session").RelationalModel, edfiSession)

	_, ok := root.Column("InstructionalDays")
	assert.True(t, ok)
	_, ok = root.Column("TotalInstructionalDays")
	assert.False(t, ok)
}

func TestBuild_RootTableOverrideCollision(t *testing.T) {
	set := loadSet(t, "core.json")
	setResource(set, "sessions", func(rs *schema.ResourceSchema) {
		rs.Relational = &schema.RelationalOverrides{RootTableNameOverride: ptr("School")}
	})

	_, err := Build(set, dialect.Pgsql, dialect.MustForDialect(dialect.Pgsql))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Identifier override collisions detected: stage AfterOverrideNormalization, table edfi 'School': ")
	assert.Contains(t, err.Error(), "'School' from table edfi.School (resource Ed-Fi:School, path $)")
	assert.Contains(t, err.Error(), "'Session' from table edfi.School (resource Ed-Fi:Session, path $)")
}

func ptr[T any](v T) *T { return &v }
