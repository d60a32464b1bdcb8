package manifest

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/pthm/relmodel/internal/dialect"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/passes"
	"github.com/pthm/relmodel/schema"
)

var (
	edfiSchool  = model.QualifiedResourceName{ProjectName: "Ed-Fi", ResourceName: "School"}
	edfiSession = model.QualifiedResourceName{ProjectName: "Ed-Fi", ResourceName: "Session"}
)

func loadCore(t *testing.T) *schema.EffectiveSchemaSet {
	t.Helper()
	set, err := schema.Load(filepath.Join("..", "passes", "testdata", "core.json"))
	require.NoError(t, err)
	return set
}

func build(t *testing.T, set *schema.EffectiveSchemaSet, d dialect.Dialect) *model.DerivedRelationalModelSet {
	t.Helper()
	out, err := passes.Build(set, d, dialect.MustForDialect(d))
	require.NoError(t, err)
	return out
}

func resourceModel(t *testing.T, set *model.DerivedRelationalModelSet, q model.QualifiedResourceName) model.RelationalResourceModel {
	t.Helper()
	for _, r := range set.ConcreteResourcesInNameOrder {
		if r.ResourceKey.Resource == q {
			return r.RelationalModel
		}
	}
	t.Fatalf("resource %s not found", q)
	return model.RelationalResourceModel{}
}

func TestEmitSet_Deterministic(t *testing.T) {
	for _, d := range dialect.All() {
		t.Run(string(d), func(t *testing.T) {
			set := loadCore(t)

			first, err := EmitSet(build(t, set, d), WithAllResourceDetails())
			require.NoError(t, err)
			second, err := EmitSet(build(t, set, d), WithAllResourceDetails())
			require.NoError(t, err)
			reversed, err := EmitSet(build(t, schema.Reversed(set), d), WithAllResourceDetails())
			require.NoError(t, err)

			assert.Equal(t, string(first), string(second))
			assert.Equal(t, string(first), string(reversed))
			assert.True(t, bytes.HasSuffix(first, []byte("}\n")))
		})
	}
}

func TestEmitSet_KeyOrder(t *testing.T) {
	out, err := EmitSet(build(t, loadCore(t), dialect.Pgsql))
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.HasPrefix(text, "{\n  \"dialect\": \"Pgsql\",\n"))

	keys := []string{
		`"dialect"`, `"effective_schema"`, `"projects"`, `"resources"`,
		`"abstract_identity_tables"`, `"abstract_union_views"`, `"indexes"`, `"triggers"`,
	}
	last := -1
	for _, k := range keys {
		i := strings.Index(text, k)
		require.GreaterOrEqual(t, i, 0, k)
		assert.Greater(t, i, last, k)
		last = i
	}
	assert.NotContains(t, text, `"resource_details"`)
}

func TestEmitSet_Summary(t *testing.T) {
	out, err := EmitSet(build(t, loadCore(t), dialect.Pgsql), WithResourceDetails(edfiSession))
	require.NoError(t, err)

	var got Set
	require.NoError(t, json.Unmarshal(out, &got))

	require.Len(t, got.Projects, 1)
	assert.Equal(t, Project{
		ProjectEndpointName: "ed-fi",
		ProjectName:         "Ed-Fi",
		ProjectVersion:      "5.0.0",
		PhysicalSchema:      "edfi",
	}, got.Projects[0])

	var resources []string
	for _, r := range got.Resources {
		resources = append(resources, r.ResourceName+":"+r.StorageKind)
	}
	assert.Equal(t, []string{
		"GradeLevelDescriptor:SharedDescriptorTable",
		"School:RelationalTables",
		"Session:RelationalTables",
	}, resources)
	assert.Zero(t, got.Resources[0].TableCount)

	require.Len(t, got.ResourceDetails, 1)
	assert.Equal(t, "Session", got.ResourceDetails[0].Resource.ResourceName)

	require.Len(t, got.AbstractUnionViews, 1)
	view := got.AbstractUnionViews[0]
	require.Len(t, view.UnionArms, 1)
	projections := view.UnionArms[0].Projections
	assert.Equal(t, Projection{Kind: "SourceColumn", ColumnName: "DocumentId"}, projections[0])
	assert.Equal(t, Projection{Kind: "StringLiteral", Value: "Ed-Fi:School"}, projections[len(projections)-1])
}

func TestEmitResource_KeyColumnsFirst(t *testing.T) {
	set := build(t, loadCore(t), dialect.Pgsql)

	out, err := EmitResource(resourceModel(t, set, edfiSchool))
	require.NoError(t, err)

	var got Resource
	require.NoError(t, json.Unmarshal(out, &got))
	require.Len(t, got.Tables, 2)

	root := got.Tables[0]
	assert.Equal(t, "School", root.Name)
	assert.Equal(t, "$", root.Scope)
	assert.Equal(t, []KeyColumn{{Name: "DocumentId", Kind: "ParentKeyPart"}}, root.KeyColumns)
	assert.Equal(t, "DocumentId", root.Columns[0].Name)

	child := got.Tables[1]
	assert.Equal(t, "$.gradeLevels[*]", child.Scope)
	require.Len(t, child.KeyColumns, 2)
	for i, k := range child.KeyColumns {
		assert.Equal(t, k.Name, child.Columns[i].Name)
	}
	assert.Equal(t, "Ordinal", child.KeyColumns[1].Kind)
}

func TestEmitResource_EmptyListsAndDescriptors(t *testing.T) {
	set := build(t, loadCore(t), dialect.Pgsql)
	descriptor := model.QualifiedResourceName{ProjectName: "Ed-Fi", ResourceName: "GradeLevelDescriptor"}

	out, err := EmitResource(resourceModel(t, set, descriptor))
	require.NoError(t, err)

	text := string(out)
	assert.Contains(t, text, `"storage_kind": "SharedDescriptorTable"`)
	assert.Contains(t, text, `"tables": []`)
	assert.Contains(t, text, `"document_reference_bindings": []`)
	assert.Contains(t, text, `"extension_sites": []`)
	assert.NotContains(t, text, "null,\n  \"tables\"")
}

func TestEmitResource_ColumnTypes(t *testing.T) {
	set := build(t, loadCore(t), dialect.Pgsql)

	out, err := EmitResource(resourceModel(t, set, edfiSession))
	require.NoError(t, err)

	var got Resource
	require.NoError(t, json.Unmarshal(out, &got))

	columns := map[string]Column{}
	for _, c := range got.Tables[0].Columns {
		columns[c.Name] = c
	}

	id := columns["DocumentId"]
	require.NotNil(t, id.Type)
	assert.Equal(t, "Int64", id.Type.Kind)
	assert.Nil(t, id.Type.MaxLength)
	assert.Nil(t, id.SourcePath)
	assert.Equal(t, "Stored", id.Storage.Kind)

	fk := columns["School_DocumentId"]
	assert.Equal(t, "DocumentFk", fk.Kind)
	require.NotNil(t, fk.TargetResource)
	assert.Equal(t, ResourceRef{ProjectName: "Ed-Fi", ResourceName: "School"}, *fk.TargetResource)

	require.Len(t, got.DocumentReferenceBindings, 1)
	assert.Equal(t, "School_DocumentId", got.DocumentReferenceBindings[0].FkColumn)
}

func TestEmitSet_IgnoresOpenApiFragments(t *testing.T) {
	set := loadCore(t)
	before, err := EmitSet(build(t, set, dialect.Pgsql), WithAllResourceDetails())
	require.NoError(t, err)

	rs := set.ProjectSchemas[0].ResourceSchemas["schools"]
	rs.OpenApiFragments = json.RawMessage(`{"resources":{"components":{"schemas":{}}}}`)
	set.ProjectSchemas[0].ResourceSchemas["schools"] = rs

	after, err := EmitSet(build(t, set, dialect.Pgsql), WithAllResourceDetails())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestToYAML(t *testing.T) {
	js, err := EmitSet(build(t, loadCore(t), dialect.Mssql), WithAllResourceDetails())
	require.NoError(t, err)

	out, err := ToYAML(js)
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.HasPrefix(text, "dialect: Mssql\neffective_schema:\n"))
	assert.Contains(t, text, `relational_mapping_version: "1"`)
	assert.NotContains(t, text, "{")

	// Same document once both sides are decoded.
	var fromJSON any
	require.NoError(t, json.Unmarshal(js, &fromJSON))
	var fromYAML any
	require.NoError(t, yaml.Unmarshal(out, &fromYAML))
	normalized, err := json.Marshal(fromYAML)
	require.NoError(t, err)
	var roundTrip any
	require.NoError(t, json.Unmarshal(normalized, &roundTrip))
	assert.Equal(t, fromJSON, roundTrip)
}

func TestToYAML_InvalidInput(t *testing.T) {
	_, err := ToYAML([]byte("{"))
	assert.Error(t, err)
}
