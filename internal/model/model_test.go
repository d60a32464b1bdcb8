package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/relmodel/internal/jsonpath"
)

var school = DbTableName{Schema: "edfi", Name: "School"}

func rootKey() TableKey {
	return TableKey{
		ConstraintName: "PK_School",
		Columns:        []KeyColumn{{Name: DocumentIDColumn, Kind: ColumnParentKeyPart}},
	}
}

func TestTableBuilder_MissingKeyColumnFailsFast(t *testing.T) {
	b := NewTableBuilder(school, jsonpath.Root(), rootKey())
	b.AddColumn(DbColumnModel{Name: "SchoolId", Kind: ColumnScalar, ScalarType: Ptr(ScalarOf(ScalarInt32))})

	_, err := b.Build()

	require.Error(t, err)
	assert.True(t, IsInvalidModelErr(err))
	assert.Contains(t, err.Error(), "edfi.School")
	assert.Contains(t, err.Error(), "DocumentId")
}

func TestTableBuilderFrom_RejectsTableMissingKeyColumn(t *testing.T) {
	seed := DbTableModel{
		Table:     school,
		JsonScope: jsonpath.Root(),
		Key:       rootKey(),
		Columns:   []DbColumnModel{{Name: "SchoolId", Kind: ColumnScalar}},
	}

	b, err := TableBuilderFrom(seed)

	require.Error(t, err)
	assert.Nil(t, b)
	assert.True(t, IsInvalidModelErr(err))
	assert.Contains(t, err.Error(), "key column DocumentId")
}

func TestTableBuilderFrom_CopiesSeed(t *testing.T) {
	seed := DbTableModel{
		Table:       school,
		JsonScope:   jsonpath.Root(),
		Key:         rootKey(),
		Columns:     []DbColumnModel{{Name: DocumentIDColumn, Kind: ColumnParentKeyPart}},
		Constraints: []TableConstraint{UniqueConstraint{Name: "UX_School_NK", Columns: []DbColumnName{DocumentIDColumn}}},
	}

	b, err := TableBuilderFrom(seed)
	require.NoError(t, err)
	assert.True(t, b.AddColumn(DbColumnModel{Name: "SchoolId", Kind: ColumnScalar}))

	table := b.MustBuild()
	assert.Len(t, table.Columns, 2)
	assert.Len(t, seed.Columns, 1)
	assert.Len(t, table.Constraints, 1)
}

func TestTableBuilder_DeduplicatesConstraintsByIdentity(t *testing.T) {
	b := NewTableBuilder(school, jsonpath.Root(), rootKey())
	b.AddColumn(DbColumnModel{Name: DocumentIDColumn, Kind: ColumnParentKeyPart})

	assert.True(t, b.AddConstraint(UniqueConstraint{Name: "UX_School_NK", Columns: []DbColumnName{"SchoolId"}}))
	// Same columns under a different name is the same constraint.
	assert.False(t, b.AddConstraint(UniqueConstraint{Name: "UX_Other", Columns: []DbColumnName{"SchoolId"}}))
	assert.True(t, b.AddConstraint(UniqueConstraint{Name: "UX_School_NK", Columns: []DbColumnName{"Other"}}))

	table := b.MustBuild()
	assert.Len(t, table.Constraints, 2)
}

func TestTableBuilder_DuplicateColumnRejected(t *testing.T) {
	b := NewTableBuilder(school, jsonpath.Root(), rootKey())
	assert.True(t, b.AddColumn(DbColumnModel{Name: DocumentIDColumn}))
	assert.False(t, b.AddColumn(DbColumnModel{Name: DocumentIDColumn, IsNullable: true}))

	c, ok := b.Column(DocumentIDColumn)
	require.True(t, ok)
	assert.False(t, c.IsNullable)
}

func TestConstraintIdentity_IgnoresName(t *testing.T) {
	a := ForeignKeyConstraint{
		Name:          "FK_A",
		Columns:       []DbColumnName{"School_DocumentId"},
		TargetTable:   school,
		TargetColumns: []DbColumnName{DocumentIDColumn},
		OnDelete:      NoAction,
		OnUpdate:      Cascade,
	}
	b := a
	b.Name = "FK_B"

	assert.Equal(t, IdentityOf(school, a).Signature(), IdentityOf(school, b).Signature())

	c := a
	c.OnUpdate = NoAction
	assert.NotEqual(t, IdentityOf(school, a).Signature(), IdentityOf(school, c).Signature())
}

func TestConstraintIdentity_Signature(t *testing.T) {
	fk := ForeignKeyIdentity{
		OnTable:       DbTableName{Schema: "edfi", Name: "SchoolAddress"},
		Columns:       []DbColumnName{"School_DocumentId"},
		TargetTable:   school,
		TargetColumns: []DbColumnName{DocumentIDColumn},
		OnDelete:      Cascade,
		OnUpdate:      NoAction,
	}
	assert.Equal(t,
		"ForeignKey|edfi.SchoolAddress|School_DocumentId|edfi.School|DocumentId|Cascade|NoAction",
		fk.Signature())

	an := AllOrNoneIdentity{OnTable: school, FkColumn: "Ref_DocumentId", DependentColumns: []DbColumnName{"Ref_A", "Ref_B"}}
	assert.Equal(t, "AllOrNone|edfi.School|Ref_DocumentId|Ref_A,Ref_B", an.Signature())
}

func TestColumn_StoredName(t *testing.T) {
	plain := DbColumnModel{Name: "A"}
	alias := DbColumnModel{Name: "B", Storage: UnifiedAliasColumn{Canonical: "A_Unified"}}

	assert.Equal(t, DbColumnName("A"), plain.StoredName())
	assert.Equal(t, "Stored", plain.StorageOrDefault().StorageKind())
	assert.Equal(t, DbColumnName("A_Unified"), alias.StoredName())
}

func TestIsDocumentIDColumn(t *testing.T) {
	assert.True(t, IsDocumentIDColumn("DocumentId"))
	assert.True(t, IsDocumentIDColumn("School_DocumentId"))
	assert.False(t, IsDocumentIDColumn("Ordinal"))
}

func TestScalarTypeString(t *testing.T) {
	assert.Equal(t, "String(60)", StringType(60).String())
	assert.Equal(t, "String", StringType(0).String())
	assert.Equal(t, "Decimal(9,2)", DecimalType(9, 2).String())
	assert.Equal(t, "Int64", ScalarOf(ScalarInt64).String())
}

func TestConstraints_EveryKindHasIdentityAndRenames(t *testing.T) {
	constraints := []TableConstraint{
		UniqueConstraint{Name: "UX_School_NK", Columns: []DbColumnName{"SchoolId"}},
		ForeignKeyConstraint{
			Name:          "FK_School_EdOrg",
			Columns:       []DbColumnName{DocumentIDColumn},
			TargetTable:   DbTableName{Schema: "edfi", Name: "EducationOrganization"},
			TargetColumns: []DbColumnName{DocumentIDColumn},
			OnDelete:      Cascade,
		},
		AllOrNoneConstraint{Name: "CK_School_Ref", FkColumn: "Ref_DocumentId", DependentColumns: []DbColumnName{"Ref_SchoolId"}},
	}

	for _, c := range constraints {
		t.Run(string(c.ConstraintKind()), func(t *testing.T) {
			id := IdentityOf(school, c)
			assert.Equal(t, c.ConstraintKind(), id.Kind())
			assert.Equal(t, school, id.Table())

			renamed := RenameConstraint(c, "Renamed")
			assert.Equal(t, "Renamed", renamed.ConstraintName())
			assert.IsType(t, c, renamed)
			assert.Equal(t, id.Signature(), IdentityOf(school, renamed).Signature())
			assert.NotEmpty(t, ConstraintColumns(c))
		})
	}
}
