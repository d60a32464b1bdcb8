package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/relmodel/internal/cli"
)

var fixture = filepath.Join("..", "..", "internal", "passes", "testdata", "core.json")

// run executes the root command with a config file holding contents.
func run(t *testing.T, contents string, args ...string) error {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relmodel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	rootCmd.SetArgs(append([]string{"--config", path, "-q"}, args...))
	return rootCmd.Execute()
}

const bothDialects = "dialects: [pgsql, mssql]\n"

func TestCompile_WritesManifests(t *testing.T) {
	out := t.TempDir()
	err := run(t, bothDialects, "compile", "--input", fixture, "--out", out, "--format", "json", "--per-resource")
	require.NoError(t, err)

	for _, name := range []string{"pgsql.manifest.json", "mssql.manifest.json"} {
		data, err := os.ReadFile(filepath.Join(out, name))
		require.NoError(t, err, name)
		assert.True(t, strings.HasPrefix(string(data), "{\n  \"dialect\": "), name)
	}

	school, err := os.ReadFile(filepath.Join(out, "pgsql", "Ed-Fi", "School.manifest.json"))
	require.NoError(t, err)
	assert.Contains(t, string(school), `"resource_name": "School"`)
	assert.FileExists(t, filepath.Join(out, "mssql", "Ed-Fi", "GradeLevelDescriptor.manifest.json"))
}

func TestCompile_YAML(t *testing.T) {
	out := t.TempDir()
	err := run(t, bothDialects, "compile", "--input", fixture, "--out", out, "--format", "yaml")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(out, "mssql.manifest.yaml"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "dialect: Mssql\n"))
}

func TestCompile_MissingInput(t *testing.T) {
	err := run(t, bothDialects, "compile", "--input", filepath.Join(t.TempDir(), "nope.json"), "--out", t.TempDir(), "--format", "json")
	require.Error(t, err)
	assert.Equal(t, cli.ExitSchemaParse, cli.ExitCode(err))
}

func TestCompile_InvalidFormat(t *testing.T) {
	err := run(t, bothDialects, "compile", "--input", fixture, "--out", t.TempDir(), "--format", "toml")
	require.Error(t, err)
	assert.Equal(t, cli.ExitConfig, cli.ExitCode(err))
}

func TestValidate(t *testing.T) {
	require.NoError(t, run(t, bothDialects, "validate", "--input", fixture))
}

func TestVerify(t *testing.T) {
	require.NoError(t, run(t, bothDialects, "verify", "--input", fixture, "--dialect", "mssql"))
}

func TestUnknownDialectInConfig(t *testing.T) {
	err := run(t, "dialects: [oracle]\n", "validate", "--input", fixture)
	require.Error(t, err)
	assert.Equal(t, cli.ExitConfig, cli.ExitCode(err))
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "flag", resolveString("", "flag", "config"))
	assert.Empty(t, resolveString("", ""))
	assert.True(t, resolveBool(false, true))
	assert.False(t, resolveBool(false, false))
}
