package doctor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/relmodel/internal/dialect"
	"github.com/pthm/relmodel/schema"
)

var coreFixture = filepath.Join("..", "passes", "testdata", "core.json")

func writeSet(t *testing.T, mutate func(*schema.EffectiveSchemaSet)) string {
	t.Helper()
	set, err := schema.Load(coreFixture)
	require.NoError(t, err)
	mutate(set)
	data, err := schema.Marshal(set)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "set.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRun_Healthy(t *testing.T) {
	d := New(coreFixture, dialect.All())

	report, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.HasErrors())
	assert.Zero(t, report.Warnings)
	for _, dl := range dialect.All() {
		build, ok := report.Check(CategoryBuild, string(dl))
		require.True(t, ok, "build check for %s", dl)
		assert.Equal(t, StatusPass, build.Status)
		assert.Contains(t, build.Message, "3 resources")

		det, ok := report.Check(CategoryDeterminism, string(dl))
		require.True(t, ok)
		assert.Equal(t, StatusPass, det.Status)

		ids, ok := report.Check(CategoryIdentifiers, string(dl))
		require.True(t, ok)
		assert.Equal(t, StatusPass, ids.Status)
	}
}

func TestRun_MissingInput(t *testing.T) {
	report, err := New(filepath.Join(t.TempDir(), "nope.json"), dialect.All()).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Checks, 1)
	assert.Equal(t, StatusFail, report.Checks[0].Status)
	assert.True(t, report.HasErrors())
}

func TestRun_UndecodableInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "set.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	report, err := New(path, dialect.All()).Run(context.Background())
	require.NoError(t, err)

	check, ok := report.Check(CategoryInput, "decodes")
	require.True(t, ok)
	assert.Equal(t, StatusFail, check.Status)
	assert.NotEmpty(t, check.Details)
}

func TestRun_InconsistentSet(t *testing.T) {
	path := writeSet(t, func(s *schema.EffectiveSchemaSet) {
		s.EffectiveSchema.ResourceKeyCount = 99
	})

	report, err := New(path, dialect.All()).Run(context.Background())
	require.NoError(t, err)

	check, ok := report.Check(CategorySchemaSet, "consistent")
	require.True(t, ok)
	assert.Equal(t, StatusFail, check.Status)
	_, built := report.Check(CategoryBuild, string(dialect.Pgsql))
	assert.False(t, built)
}

func TestRun_BuildFailure(t *testing.T) {
	path := writeSet(t, func(s *schema.EffectiveSchemaSet) {
		rs := s.ProjectSchemas[0].ResourceSchemas["sessions"]
		rs.JsonSchemaForInsert = nil
		s.ProjectSchemas[0].ResourceSchemas["sessions"] = rs
	})

	report, err := New(path, []dialect.Dialect{dialect.Pgsql}).Run(context.Background())
	require.NoError(t, err)

	check, ok := report.Check(CategoryBuild, string(dialect.Pgsql))
	require.True(t, ok)
	assert.Equal(t, StatusFail, check.Status)
	assert.Contains(t, check.Details, "Ed-Fi:Session")
	assert.NotEmpty(t, check.FixHint)

	// Nothing to compare once the build failed.
	_, ok = report.Check(CategoryDeterminism, string(dialect.Pgsql))
	assert.False(t, ok)
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(coreFixture, dialect.All()).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReport_Print(t *testing.T) {
	report := &Report{}
	report.AddCheck(CheckResult{Category: CategoryInput, Name: "exists", Status: StatusPass, Message: "Input exists"})
	report.AddCheck(CheckResult{
		Category: CategoryIdentifiers,
		Name:     "Pgsql",
		Status:   StatusWarn,
		Message:  "Pgsql: 1 identifiers were shortened",
		Details:  "index IX_Long",
		FixHint:  "Use relational.nameOverrides",
	})

	var quiet, verbose bytes.Buffer
	report.Print(&quiet, false)
	report.Print(&verbose, true)

	out := quiet.String()
	assert.Contains(t, out, "Input File\n  ✓ Input exists\n")
	assert.Contains(t, out, "⚠ Pgsql: 1 identifiers were shortened")
	assert.Contains(t, out, "Fix: Use relational.nameOverrides")
	assert.NotContains(t, out, "IX_Long")
	assert.True(t, strings.HasSuffix(out, "Summary: 1 passed, 1 warnings, 0 errors\n"))

	assert.Contains(t, verbose.String(), "      index IX_Long\n")
}

func TestFirstDifference(t *testing.T) {
	assert.Equal(t, "line 2:\n- b\n+ c", FirstDifference([]byte("a\nb\n"), []byte("a\nc\n")))
	assert.Equal(t, "manifests have 1 and 2 lines", FirstDifference([]byte("a"), []byte("a\nb")))
}
