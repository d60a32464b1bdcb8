package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/pthm/relmodel/internal/dialect"
)

const (
	maxWalkDepth = 25
)

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config represents the relmodel configuration from relmodel.yaml.
type Config struct {
	// Path to the effective schema set (.json, .yaml or .yml).
	Input string `mapstructure:"input" json:"input"`
	// Dialects to compile for. Names are parsed with dialect.Parse.
	Dialects []string `mapstructure:"dialects" json:"dialects"`

	Output  OutputConfig  `mapstructure:"output" json:"output"`
	Compile CompileConfig `mapstructure:"compile" json:"compile"`
	Verify  VerifyConfig  `mapstructure:"verify" json:"verify"`
	Doctor  DoctorConfig  `mapstructure:"doctor" json:"doctor"`
	Log     LogConfig     `mapstructure:"log" json:"log"`
}

// OutputConfig holds manifest output settings.
type OutputConfig struct {
	Dir    string `mapstructure:"dir" json:"dir"`
	Format string `mapstructure:"format" json:"format"`
}

// CompileConfig holds compile command settings.
type CompileConfig struct {
	PerResource bool `mapstructure:"per_resource" json:"per_resource"`
}

// VerifyConfig holds verify command settings. An empty Dialect verifies
// every configured dialect.
type VerifyConfig struct {
	Dialect string `mapstructure:"dialect" json:"dialect"`
}

// DoctorConfig holds doctor command settings.
type DoctorConfig struct {
	Verbose bool `mapstructure:"verbose" json:"verbose"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// LoadConfig discovers and loads configuration with proper precedence:
// flags > env > config file > defaults.
//
// Returns the loaded config, the path to the config file (empty if none found),
// and any error encountered.
func LoadConfig(explicitConfigPath string) (*Config, string, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("RELMODEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath, err := findConfigFile(explicitConfigPath)
	if err != nil {
		return nil, "", err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, configPath, err
	}

	return &cfg, configPath, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("input", "effective-schema.json")
	v.SetDefault("dialects", []string{"pgsql"})

	v.SetDefault("output.dir", "build")
	v.SetDefault("output.format", FormatJSON)

	v.SetDefault("compile.per_resource", false)

	v.SetDefault("verify.dialect", "")

	v.SetDefault("doctor.verbose", false)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
}

// findConfigFile finds the config file to use.
// If explicitPath is provided, it validates the file exists.
// Otherwise, it walks up from cwd looking for relmodel.yaml or relmodel.yml,
// stopping at a .git directory or after maxWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}

	dir := cwd
	for i := 0; i < maxWalkDepth; i++ {
		for _, name := range []string{"relmodel.yaml", "relmodel.yml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		// Stop at the repo boundary (.git file or directory).
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// Validate checks the values that have a closed set of options.
func (c *Config) Validate() error {
	if _, err := c.ResolvedDialects(); err != nil {
		return err
	}
	switch c.Output.Format {
	case FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("output.format must be %s or %s, got %q", FormatJSON, FormatYAML, c.Output.Format)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ResolvedDialects parses the configured dialects, dropping duplicates and
// keeping the first occurrence of each.
func (c *Config) ResolvedDialects() ([]dialect.Dialect, error) {
	if len(c.Dialects) == 0 {
		return nil, fmt.Errorf("dialects: at least one dialect is required")
	}
	var out []dialect.Dialect
	for _, name := range c.Dialects {
		d, err := dialect.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("dialects: %w", err)
		}
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// ResolvedVerifyDialects returns verify.dialect when set, otherwise every
// configured dialect.
func (c *Config) ResolvedVerifyDialects() ([]dialect.Dialect, error) {
	if c.Verify.Dialect == "" {
		return c.ResolvedDialects()
	}
	d, err := dialect.Parse(c.Verify.Dialect)
	if err != nil {
		return nil, fmt.Errorf("verify.dialect: %w", err)
	}
	return []dialect.Dialect{d}, nil
}

// ManifestPath returns the set manifest path for d under output.dir.
func (c *Config) ManifestPath(d dialect.Dialect) string {
	return filepath.Join(c.Output.Dir, strings.ToLower(string(d))+".manifest."+c.Output.Format)
}

// ResourceManifestPath returns the per-resource manifest path for d.
func (c *Config) ResourceManifestPath(d dialect.Dialect, project, resource string) string {
	return filepath.Join(c.Output.Dir, strings.ToLower(string(d)), project, resource+".manifest."+c.Output.Format)
}
