package passes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/relmodel/internal/dialect"
	"github.com/pthm/relmodel/internal/model"
)

func TestIndexSignature_MatchesConstraint(t *testing.T) {
	table := model.DbTableName{Schema: "edfi", Name: "School"}
	cols := []model.DbColumnName{"DocumentId", "SchoolId"}

	ux := indexSignature(model.DbIndexInfo{Table: table, KeyColumns: cols, Kind: model.IndexUniqueConstraint})
	assert.Equal(t, model.UniqueIdentity{OnTable: table, Columns: cols}.Signature(), ux)

	pk := indexSignature(model.DbIndexInfo{Table: table, KeyColumns: cols, Kind: model.IndexPrimaryKey})
	assert.Equal(t, model.PrimaryKeyIdentity{OnTable: table, Columns: cols}.Signature(), pk)

	assert.Empty(t, indexSignature(model.DbIndexInfo{Table: table, KeyColumns: cols, Kind: model.IndexForeignKeySupport}))
}

func TestRenamer_ShortensEveryReference(t *testing.T) {
	rules := dialect.MustForDialect(dialect.Pgsql)
	r := renamer{rules: rules}

	long := model.DbColumnName("Student" + strings.Repeat("Assessment", 6) + "_DocumentId")
	target := model.DbTableName{Schema: "edfi", Name: "StudentAssessment"}
	tbl := model.DbTableModel{
		Table: model.DbTableName{Schema: "edfi", Name: "Result"},
		Key: model.TableKey{
			ConstraintName: "PK_Result",
			Columns:        []model.KeyColumn{{Name: model.DocumentIDColumn, Kind: model.ColumnParentKeyPart}},
		},
		Columns: []model.DbColumnModel{
			{Name: model.DocumentIDColumn, Kind: model.ColumnParentKeyPart},
			{Name: long, Kind: model.ColumnDocumentFk, IsNullable: true},
		},
		Constraints: []model.TableConstraint{
			model.ForeignKeyConstraint{
				Name:          "FK_Result_" + string(long),
				Columns:       []model.DbColumnName{long},
				TargetTable:   target,
				TargetColumns: []model.DbColumnName{model.DocumentIDColumn},
			},
		},
	}

	out := r.table(tbl)

	short := out.Columns[1].Name
	assert.NotEqual(t, long, short)
	assert.LessOrEqual(t, len(short), rules.MaxIdentifierLength())
	assert.Len(t, short, rules.MaxIdentifierLength())

	fk, ok := out.Constraints[0].(model.ForeignKeyConstraint)
	require.True(t, ok)
	assert.Equal(t, []model.DbColumnName{short}, fk.Columns)
	assert.LessOrEqual(t, len(fk.Name), rules.MaxIdentifierLength())
	assert.Equal(t, target, fk.TargetTable)
	assert.Equal(t, "PK_Result", out.Key.ConstraintName)

	// Input is untouched.
	assert.Equal(t, long, tbl.Columns[1].Name)
}

func TestRenamer_TriggerReferrers(t *testing.T) {
	r := renamer{rules: dialect.MustForDialect(dialect.Pgsql)}
	long := model.DbColumnName(strings.Repeat("X", 70))

	out := r.trigger(model.DbTriggerInfo{
		Name:  "TR_School_PropagateIdentity",
		Table: edfiSchool,
		Referrers: []model.TriggerReferrer{{
			Table:          edfiSession,
			FkColumn:       "School_DocumentId",
			ColumnMappings: []model.TriggerColumnMapping{{Source: "SchoolId", Target: long}},
		}},
	})

	assert.Equal(t, model.DbTriggerName("TR_School_PropagateIdentity"), out.Name)
	require.Len(t, out.Referrers, 1)
	assert.Equal(t, model.DbColumnName("SchoolId"), out.Referrers[0].ColumnMappings[0].Source)
	assert.Len(t, out.Referrers[0].ColumnMappings[0].Target, 63)
}
