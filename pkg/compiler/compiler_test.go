package compiler_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/relmodel/pkg/compiler"
	"github.com/pthm/relmodel/pkg/dialect"
	"github.com/pthm/relmodel/pkg/schema"
)

func TestCustomPassList(t *testing.T) {
	set, err := schema.Load(filepath.Join("..", "..", "internal", "passes", "testdata", "core.json"))
	require.NoError(t, err)

	b, err := compiler.NewBuilder(compiler.DefaultPasses())
	require.NoError(t, err)

	models, err := b.Build(set, dialect.Pgsql, dialect.MustForDialect(dialect.Pgsql))
	require.NoError(t, err)

	for _, r := range models.ConcreteResourcesInNameOrder {
		out, err := compiler.EmitResource(r.RelationalModel)
		require.NoError(t, err)
		y, err := compiler.ToYAML(out)
		require.NoError(t, err)
		assert.Contains(t, string(y), "resource_name: "+r.ResourceKey.Resource.ResourceName)
	}
}

func TestDialectParse(t *testing.T) {
	d, err := dialect.Parse("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, dialect.Pgsql, d)

	d, err = dialect.Parse(" SqlServer ")
	require.NoError(t, err)
	assert.Equal(t, dialect.Mssql, d)

	_, err = dialect.Parse("oracle")
	assert.Error(t, err)
}
