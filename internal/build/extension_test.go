package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/schema"
)

var sampleProject = ProjectInfo{
	ProjectName:         "Sample",
	ProjectEndpointName: "sample",
	ProjectVersion:      "1.0.0",
	IsExtensionProject:  true,
	PhysicalSchema:      "sample",
}

// extendedSchoolSchema is the base School with _ext sites at the root and
// on each grade level.
const extendedSchoolSchema = `{
  "resourceName": "School",
  "isDescriptor": false,
  "identityJsonPaths": ["$.schoolId"],
  "documentPathsMapping": {
    "SchoolId": {"isReference": false, "path": "$.schoolId"}
  },
  "jsonSchemaForInsert": {
    "type": "object",
    "properties": {
      "schoolId": {"type": "integer"},
      "gradeLevels": {
        "type": "array",
        "items": {
          "type": "object",
          "properties": {
            "gradeLevelCode": {"type": "string", "maxLength": 20},
            "_ext": {
              "type": "object",
              "properties": {"sample": {"type": "object", "properties": {}}}
            }
          },
          "required": ["gradeLevelCode"]
        }
      },
      "_ext": {
        "type": "object",
        "properties": {
          "sample": {"type": "object", "properties": {}},
          "homograph": {"type": "object", "properties": {}}
        }
      }
    },
    "required": ["schoolId"]
  }
}`

const schoolExtensionSchema = `{
  "resourceName": "School",
  "isDescriptor": false,
  "isResourceExtension": true,
  "identityJsonPaths": [],
  "jsonSchemaForInsert": {
    "type": "object",
    "properties": {
      "_ext": {
        "type": "object",
        "properties": {
          "sample": {
            "type": "object",
            "properties": {
              "isExemplary": {"type": "boolean"},
              "buses": {
                "type": "array",
                "items": {
                  "type": "object",
                  "properties": {"busId": {"type": "string", "maxLength": 60}},
                  "required": ["busId"]
                }
              },
              "gradeLevels": {
                "type": "array",
                "items": {
                  "type": "object",
                  "properties": {
                    "_ext": {
                      "type": "object",
                      "properties": {
                        "sample": {
                          "type": "object",
                          "properties": {"isPrimary": {"type": "boolean"}}
                        }
                      }
                    }
                  }
                }
              }
            },
            "required": ["isExemplary"]
          }
        },
        "required": ["sample"]
      }
    },
    "required": ["_ext"]
  }
}`

func lowerBase(t *testing.T) *Context {
	t.Helper()
	base := NewContext(edfiProject, decodeResource(t, extendedSchoolSchema))
	require.NoError(t, Run(base))
	return base
}

func deriveExtension(t *testing.T, base *Context) ([]model.DbTableModel, *Context) {
	t.Helper()
	ext := NewContext(sampleProject, decodeResource(t, schoolExtensionSchema))
	require.NoError(t, Run(ext, ExtractInputs, ValidateJsonSchema))
	tables, err := DeriveExtensionTables(ext, base)
	require.NoError(t, err)
	return tables, ext
}

func foreignKeyTo(t *testing.T, tbl model.DbTableModel, target model.DbTableName) model.ForeignKeyConstraint {
	t.Helper()
	for _, c := range tbl.Constraints {
		if fk, ok := c.(model.ForeignKeyConstraint); ok && fk.TargetTable == target {
			return fk
		}
	}
	t.Fatalf("no foreign key from %s to %s", tbl.Table, target)
	return model.ForeignKeyConstraint{}
}

func TestDiscoverExtensionSites_RootAndCollection(t *testing.T) {
	base := lowerBase(t)

	sites := base.Result.ExtensionSites
	require.Len(t, sites, 2)

	assert.True(t, sites[0].OwningScope.IsRoot())
	assert.True(t, sites[0].ExtensionPath.Equal(jsonpath.MustCompile("$._ext")))
	assert.Equal(t, []string{"homograph", "sample"}, sites[0].ProjectKeys)

	assert.True(t, sites[1].OwningScope.Equal(jsonpath.MustCompile("$.gradeLevels[*]")))
	assert.True(t, sites[1].ExtensionPath.Equal(jsonpath.MustCompile("$.gradeLevels[*]._ext")))
	assert.Equal(t, []string{"sample"}, sites[1].ProjectKeys)
}

func TestDiscoverExtensionSites_NoColumnsOrTablesFromExt(t *testing.T) {
	base := lowerBase(t)

	require.Len(t, base.Result.TablesInDependencyOrder, 2)
	for _, tbl := range base.Result.TablesInDependencyOrder {
		for _, c := range tbl.Columns {
			if c.SourcePath != nil {
				assert.NotContains(t, c.SourcePath.Canonical(), "_ext", "column %s on %s", c.Name, tbl.Table)
			}
		}
	}
}

func TestDeriveExtensionTables_NamesAndKeys(t *testing.T) {
	tables, _ := deriveExtension(t, lowerBase(t))

	require.Len(t, tables, 3)
	names := make([]model.DbTableName, len(tables))
	for i, tbl := range tables {
		names[i] = tbl.Table
	}
	assert.Equal(t, []model.DbTableName{
		{Schema: "sample", Name: "SchoolExtension"},
		{Schema: "sample", Name: "SchoolExtensionBus"},
		{Schema: "sample", Name: "SchoolExtensionGradeLevel"},
	}, names)

	root := tables[0]
	assert.True(t, root.JsonScope.Equal(jsonpath.MustCompile("$._ext.sample")))
	assert.Equal(t, "PK_SchoolExtension", root.Key.ConstraintName)
	assert.Equal(t, []model.DbColumnName{model.DocumentIDColumn}, root.Key.ColumnNames())
	exemplary := column(t, root, "IsExemplary")
	assert.Equal(t, model.ScalarOf(model.ScalarBoolean), *exemplary.ScalarType)
	assert.False(t, exemplary.IsNullable)

	rootFK := foreignKeyTo(t, root, model.DbTableName{Schema: "edfi", Name: "School"})
	assert.Equal(t, "FK_SchoolExtension_School", rootFK.Name)
	assert.Equal(t, []model.DbColumnName{model.DocumentIDColumn}, rootFK.Columns)
	assert.Equal(t, []model.DbColumnName{model.DocumentIDColumn}, rootFK.TargetColumns)
	assert.Equal(t, model.Cascade, rootFK.OnDelete)
	assert.Equal(t, model.NoAction, rootFK.OnUpdate)

	bus := tables[1]
	assert.True(t, bus.JsonScope.Equal(jsonpath.MustCompile("$._ext.sample.buses[*]")))
	assert.Equal(t, []model.DbColumnName{"School_DocumentId", model.OrdinalColumn}, bus.Key.ColumnNames())
	column(t, bus, "BusId")
	busFK := foreignKeyTo(t, bus, root.Table)
	assert.Equal(t, "FK_SchoolExtensionBus_SchoolExtension", busFK.Name)
	assert.Equal(t, []model.DbColumnName{"School_DocumentId"}, busFK.Columns)
	assert.Equal(t, []model.DbColumnName{model.DocumentIDColumn}, busFK.TargetColumns)
	assert.Equal(t, model.Cascade, busFK.OnDelete)
	assert.Equal(t, model.NoAction, busFK.OnUpdate)

	grade := tables[2]
	assert.True(t, grade.JsonScope.Equal(jsonpath.MustCompile("$._ext.sample.gradeLevels[*]._ext.sample")))
	assert.Equal(t, []model.DbColumnName{"School_DocumentId", model.OrdinalColumn}, grade.Key.ColumnNames())
	primary := column(t, grade, "IsPrimary")
	assert.True(t, primary.IsNullable)
	gradeFK := foreignKeyTo(t, grade, model.DbTableName{Schema: "edfi", Name: "SchoolGradeLevel"})
	assert.Equal(t, "FK_SchoolExtensionGradeLevel_SchoolGradeLevel", gradeFK.Name)
	assert.Equal(t, []model.DbColumnName{"School_DocumentId", model.OrdinalColumn}, gradeFK.Columns)
	assert.Equal(t, []model.DbColumnName{"School_DocumentId", model.OrdinalColumn}, gradeFK.TargetColumns)
	assert.Equal(t, model.Cascade, gradeFK.OnDelete)
	assert.Equal(t, model.NoAction, gradeFK.OnUpdate)
}

func TestDeriveExtensionTables_Deterministic(t *testing.T) {
	first, _ := deriveExtension(t, lowerBase(t))
	for range 5 {
		again, _ := deriveExtension(t, lowerBase(t))
		assert.Equal(t, first, again)
	}
}

func TestDeriveExtensionTables_RequiresExtensionProject(t *testing.T) {
	ext := NewContext(edfiProject, decodeResource(t, schoolExtensionSchema))
	require.NoError(t, Run(ext, ExtractInputs, ValidateJsonSchema))

	_, err := DeriveExtensionTables(ext, lowerBase(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be defined in an extension project")
}

func TestDeriveExtensionTables_MissingProjectKey(t *testing.T) {
	other := sampleProject
	other.ProjectName = "TPDM"
	other.ProjectEndpointName = "tpdm"
	ext := NewContext(other, decodeResource(t, schoolExtensionSchema))
	require.NoError(t, Run(ext, ExtractInputs, ValidateJsonSchema))

	_, err := DeriveExtensionTables(ext, lowerBase(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "extension project key 'tpdm' not found at $._ext")
}

const nestedSchoolSchema = `{
  "type": "object",
  "properties": {
    "schoolId": {"type": "integer"},
    "addresses": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "city": {"type": "string", "maxLength": 30},
          "periods": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {"periodNumber": {"type": "integer"}},
              "required": ["periodNumber"]
            }
          }
        },
        "required": ["city"]
      }
    }
  },
  "required": ["schoolId"]
}`

func TestLower_NestedCollections(t *testing.T) {
	rs := withSchema(t, decodeResource(t, schoolSchema), nestedSchoolSchema)
	rs.DocumentPathsMapping = map[string]schema.DocumentPath{"SchoolId": {Path: "$.schoolId"}}

	m, err := Lower(edfiProject, rs)
	require.NoError(t, err)
	require.Len(t, m.TablesInDependencyOrder, 3)

	root, address, period := m.TablesInDependencyOrder[0], m.TablesInDependencyOrder[1], m.TablesInDependencyOrder[2]
	assert.Equal(t, "School", root.Table.Name)
	assert.Equal(t, "SchoolAddress", address.Table.Name)
	assert.Equal(t, "SchoolAddressPeriod", period.Table.Name)

	assert.Equal(t, []model.DbColumnName{"School_DocumentId", model.OrdinalColumn}, address.Key.ColumnNames())
	assert.True(t, period.JsonScope.Equal(jsonpath.MustCompile("$.addresses[*].periods[*]")))
	assert.Equal(t, "PK_SchoolAddressPeriod", period.Key.ConstraintName)
	assert.Equal(t, []model.KeyColumn{
		{Name: "School_DocumentId", Kind: model.ColumnParentKeyPart},
		{Name: "AddressOrdinal", Kind: model.ColumnParentKeyPart},
		{Name: model.OrdinalColumn, Kind: model.ColumnOrdinal},
	}, period.Key.Columns)
	assert.Equal(t, model.ScalarOf(model.ScalarInt64), *column(t, period, "School_DocumentId").ScalarType)
	assert.Equal(t, model.ScalarOf(model.ScalarInt32), *column(t, period, "AddressOrdinal").ScalarType)
	column(t, period, "PeriodNumber")

	addressFK := foreignKeyTo(t, address, root.Table)
	assert.Equal(t, []model.DbColumnName{"School_DocumentId"}, addressFK.Columns)
	assert.Equal(t, []model.DbColumnName{model.DocumentIDColumn}, addressFK.TargetColumns)

	periodFK := foreignKeyTo(t, period, address.Table)
	assert.Equal(t, "FK_SchoolAddressPeriod_SchoolAddress", periodFK.Name)
	assert.Equal(t, []model.DbColumnName{"School_DocumentId", "AddressOrdinal"}, periodFK.Columns)
	assert.Equal(t, []model.DbColumnName{"School_DocumentId", model.OrdinalColumn}, periodFK.TargetColumns)
	assert.Equal(t, model.Cascade, periodFK.OnDelete)
	assert.Equal(t, model.NoAction, periodFK.OnUpdate)
}
