package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/relmodel/internal/dialect"
)

func TestFindConfigFile_ExplicitPath(t *testing.T) {
	// Create temp file
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "custom.yaml")
	err := os.WriteFile(tmpFile, []byte("input: schema.json"), 0o644)
	require.NoError(t, err)

	path, err := findConfigFile(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, tmpFile, path)
}

func TestFindConfigFile_ExplicitPathNotFound(t *testing.T) {
	_, err := findConfigFile("/nonexistent/path/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestFindConfigFile_AutoDiscovery(t *testing.T) {
	// Create directory structure with .git and relmodel.yaml
	root := t.TempDir()
	err := os.Mkdir(filepath.Join(root, ".git"), 0o755)
	require.NoError(t, err)

	configPath := filepath.Join(root, "relmodel.yaml")
	err = os.WriteFile(configPath, []byte("input: schema.json"), 0o644)
	require.NoError(t, err)

	// Create nested directory
	nested := filepath.Join(root, "deep", "nested")
	err = os.MkdirAll(nested, 0o755)
	require.NoError(t, err)

	// Change to nested directory
	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(oldCwd) }()
	err = os.Chdir(nested)
	require.NoError(t, err)

	path, err := findConfigFile("")
	require.NoError(t, err)

	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedPath, _ := filepath.EvalSymlinks(configPath)
	actualPath, _ := filepath.EvalSymlinks(path)
	assert.Equal(t, expectedPath, actualPath)
}

func TestFindConfigFile_PrefersYamlOverYml(t *testing.T) {
	root := t.TempDir()
	err := os.Mkdir(filepath.Join(root, ".git"), 0o755)
	require.NoError(t, err)

	// Create both files
	yamlPath := filepath.Join(root, "relmodel.yaml")
	ymlPath := filepath.Join(root, "relmodel.yml")
	err = os.WriteFile(yamlPath, []byte("input: yaml.json"), 0o644)
	require.NoError(t, err)
	err = os.WriteFile(ymlPath, []byte("input: yml.json"), 0o644)
	require.NoError(t, err)

	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(oldCwd) }()
	err = os.Chdir(root)
	require.NoError(t, err)

	path, err := findConfigFile("")
	require.NoError(t, err)

	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedPath, _ := filepath.EvalSymlinks(yamlPath)
	actualPath, _ := filepath.EvalSymlinks(path)
	assert.Equal(t, expectedPath, actualPath) // Should prefer .yaml
}

func TestFindConfigFile_StopsAtGitRoot(t *testing.T) {
	// Config above .git should not be found
	root := t.TempDir()
	err := os.WriteFile(filepath.Join(root, "relmodel.yaml"), []byte("input: above.json"), 0o644)
	require.NoError(t, err)

	project := filepath.Join(root, "project")
	err = os.MkdirAll(project, 0o755)
	require.NoError(t, err)
	err = os.Mkdir(filepath.Join(project, ".git"), 0o755)
	require.NoError(t, err)

	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(oldCwd) }()
	err = os.Chdir(project)
	require.NoError(t, err)

	path, err := findConfigFile("")
	require.NoError(t, err)
	assert.Empty(t, path) // Should not find config above .git
}

func TestFindConfigFile_NoConfigReturnsEmpty(t *testing.T) {
	// Create directory with .git but no config
	root := t.TempDir()
	err := os.Mkdir(filepath.Join(root, ".git"), 0o755)
	require.NoError(t, err)

	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(oldCwd) }()
	err = os.Chdir(root)
	require.NoError(t, err)

	path, err := findConfigFile("")
	require.NoError(t, err)
	assert.Empty(t, path)
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(oldCwd) })
	require.NoError(t, os.Chdir(dir))
}

func gitRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	return root
}

func TestLoadConfig_Defaults(t *testing.T) {
	chdir(t, gitRoot(t))

	cfg, configPath, err := LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, configPath)

	assert.Equal(t, "effective-schema.json", cfg.Input)
	assert.Equal(t, []string{"pgsql"}, cfg.Dialects)
	assert.Equal(t, "build", cfg.Output.Dir)
	assert.Equal(t, FormatJSON, cfg.Output.Format)
	assert.False(t, cfg.Compile.PerResource)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadConfig_FromFile(t *testing.T) {
	root := gitRoot(t)
	configPath := filepath.Join(root, "relmodel.yaml")
	err := os.WriteFile(configPath, []byte(`
input: schemas/ds-5.2.json
dialects: [pgsql, mssql]
output:
  dir: out
  format: yaml
compile:
  per_resource: true
`), 0o644)
	require.NoError(t, err)
	chdir(t, root)

	cfg, foundPath, err := LoadConfig("")
	require.NoError(t, err)

	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedPath, _ := filepath.EvalSymlinks(configPath)
	actualPath, _ := filepath.EvalSymlinks(foundPath)
	assert.Equal(t, expectedPath, actualPath)

	assert.Equal(t, "schemas/ds-5.2.json", cfg.Input)
	assert.Equal(t, []string{"pgsql", "mssql"}, cfg.Dialects)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.Equal(t, FormatYAML, cfg.Output.Format)
	assert.True(t, cfg.Compile.PerResource)

	// Defaults still apply for unset values
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	root := gitRoot(t)
	err := os.WriteFile(filepath.Join(root, "relmodel.yaml"), []byte("input: file.json"), 0o644)
	require.NoError(t, err)
	chdir(t, root)

	t.Setenv("RELMODEL_INPUT", "env.json")

	cfg, _, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "env.json", cfg.Input)
}

func TestLoadConfig_NestedEnvVars(t *testing.T) {
	chdir(t, gitRoot(t))

	t.Setenv("RELMODEL_OUTPUT_DIR", "envout")
	t.Setenv("RELMODEL_COMPILE_PER_RESOURCE", "true")
	t.Setenv("RELMODEL_LOG_LEVEL", "debug")

	cfg, _, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "envout", cfg.Output.Dir)
	assert.True(t, cfg.Compile.PerResource)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
	}{
		{"unknown dialect", "dialects: [oracle]", "dialects"},
		{"output format", "output:\n  format: xml", "output.format"},
		{"log format", "log:\n  format: logfmt", "log.format"},
		{"log level", "log:\n  level: loud", "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := gitRoot(t)
			path := filepath.Join(root, "relmodel.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.file), 0o644))

			_, _, err := LoadConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResolvedDialects(t *testing.T) {
	cfg := &Config{Dialects: []string{"PgSQL", "mssql", "postgres"}}

	got, err := cfg.ResolvedDialects()
	require.NoError(t, err)
	assert.Equal(t, []dialect.Dialect{dialect.Pgsql, dialect.Mssql}, got)

	_, err = (&Config{}).ResolvedDialects()
	assert.Error(t, err)
}

func TestResolvedVerifyDialects(t *testing.T) {
	cfg := &Config{Dialects: []string{"pgsql", "mssql"}}

	got, err := cfg.ResolvedVerifyDialects()
	require.NoError(t, err)
	assert.Len(t, got, 2)

	cfg.Verify.Dialect = "sqlserver"
	got, err = cfg.ResolvedVerifyDialects()
	require.NoError(t, err)
	assert.Equal(t, []dialect.Dialect{dialect.Mssql}, got)
}

func TestManifestPaths(t *testing.T) {
	cfg := &Config{Output: OutputConfig{Dir: "out", Format: FormatYAML}}

	assert.Equal(t, filepath.Join("out", "pgsql.manifest.yaml"), cfg.ManifestPath(dialect.Pgsql))
	assert.Equal(t,
		filepath.Join("out", "mssql", "Ed-Fi", "School.manifest.yaml"),
		cfg.ResourceManifestPath(dialect.Mssql, "Ed-Fi", "School"))
}
