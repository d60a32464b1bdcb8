package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pthm/relmodel/internal/model"
)

func TestNormalizeSchemaName(t *testing.T) {
	tests := map[string]model.DbSchemaName{
		"ed-fi":      "edfi",
		"Sample_Ext": "sampleext",
		"tpdm":       "tpdm",
		"123abc":     "p123abc",
		"---":        "p",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeSchemaName(in), in)
	}
}

func TestPascalCase(t *testing.T) {
	tests := map[string]string{
		"schoolId":       "SchoolId",
		"sample-ext":     "SampleExt",
		"already_Pascal": "AlreadyPascal",
		"":               "",
		"a.b":            "AB",
	}
	for in, want := range tests {
		assert.Equal(t, want, PascalCase(in), in)
	}
}

func TestCollectionBaseName(t *testing.T) {
	tests := map[string]string{
		"addresses":     "Address",
		"periods":       "Period",
		"gradeLevels":   "GradeLevel",
		"categories":    "Category",
		"classPeriods":  "ClassPeriod",
		"telephones":    "Telephone",
		"programs":      "Program",
		"sessions":      "Session",
		"identificationCodes": "IdentificationCode",
	}
	for in, want := range tests {
		assert.Equal(t, want, CollectionBaseName(in), in)
	}
}

func TestColumnNames(t *testing.T) {
	assert.Equal(t, model.DbColumnName("School_DocumentId"), RootDocumentIDColumn("School"))
	assert.Equal(t, model.DbColumnName("AddressOrdinal"), ParentOrdinalColumn("Address"))
	assert.Equal(t, model.DbColumnName("SchoolTypeDescriptor_DescriptorId"), DescriptorIDColumn("SchoolTypeDescriptor"))
	assert.Equal(t, "SchoolExtensionAddress", ExtensionTableName("School", []string{"Address"}))
}

func TestConstraintNames(t *testing.T) {
	table := model.DbTableName{Schema: "edfi", Name: "School"}

	assert.Equal(t, "PK_School", PrimaryKeyName(table))
	assert.Equal(t, "UX_School_NK", NaturalKeyName(table))
	assert.Equal(t, "UX_School_RefKey", ReferenceKeyName(table))
	assert.Equal(t, "FK_School_Document", DocumentForeignKeyName(table))
	assert.Equal(t, "FK_School_LocalEducationAgency", ReferenceForeignKeyName(table, "LocalEducationAgency", false))
	assert.Equal(t, "FK_School_LocalEducationAgency_RefKey", ReferenceForeignKeyName(table, "LocalEducationAgency", true))
	assert.Equal(t, "FK_School_SchoolTypeDescriptor", DescriptorForeignKeyName(table, "SchoolTypeDescriptor_DescriptorId"))
	assert.Equal(t, "CK_School_LocalEducationAgency_AllNone", AllOrNoneName(table, "LocalEducationAgency"))
	assert.Equal(t, "IX_School_A_DocumentId", ForeignKeySupportIndexName(table, []model.DbColumnName{"A_DocumentId"}))
	assert.Equal(t, "TR_School_Stamp", TriggerName(table, TriggerStamp))
}

func TestArrayUniquenessName_GroupsByPrefix(t *testing.T) {
	table := model.DbTableName{Schema: "edfi", Name: "SchoolAddress"}
	cols := []model.DbColumnName{
		"School_DocumentId",
		"Period_SchoolId",
		"Period_BeginDate",
		"City",
	}

	// Prefixes in ordinal order: "" (City), "Period" (BeginDate, SchoolId), "School" (DocumentId).
	assert.Equal(t,
		"UX_SchoolAddress_City_Period_BeginDate_SchoolId_School_DocumentId",
		ArrayUniquenessName(table, cols))
}
