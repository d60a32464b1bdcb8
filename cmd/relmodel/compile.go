package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pthm/relmodel"
	"github.com/pthm/relmodel/internal/cli"
	"github.com/pthm/relmodel/internal/manifest"
)

var (
	compileInput       string
	compileDialects    []string
	compileOut         string
	compileFormat      string
	compilePerResource bool
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile the schema set into relational model manifests",
	Long: `Compile the effective schema set into one manifest per dialect.

Each dialect is built independently. The set manifest is written to
<out>/<dialect>.manifest.<format>; with --per-resource every resource model
is also written to <out>/<dialect>/<project>/<resource>.manifest.<format>.`,
	Example: `  # Compile for the configured dialects
  relmodel compile

  # Compile for both dialects as YAML
  relmodel compile --dialect pgsql,mssql --format yaml

  # Also write per-resource manifests
  relmodel compile --input effective-schema.json --out build --per-resource`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := *cfg
		c.Input = resolveString(compileInput, cfg.Input)
		c.Output.Dir = resolveString(compileOut, cfg.Output.Dir)
		c.Output.Format = resolveString(compileFormat, cfg.Output.Format)
		c.Compile.PerResource = resolveBool(compilePerResource, cfg.Compile.PerResource)
		if len(compileDialects) > 0 {
			c.Dialects = compileDialects
		}
		if err := c.Validate(); err != nil {
			return cli.ConfigError("invalid compile options", err)
		}
		dialects, _ := c.ResolvedDialects()

		set, err := loadSet(c.Input)
		if err != nil {
			return err
		}
		models, err := buildAll(cmd.Context(), set, dialects)
		if err != nil {
			return err
		}

		for _, m := range models {
			written, err := writeManifests(&c, m)
			if err != nil {
				return err
			}
			if !quiet {
				fmt.Printf("%s: wrote %d manifest(s) to %s\n", m.Dialect, written, c.Output.Dir)
			}
		}
		return nil
	},
}

func init() {
	f := compileCmd.Flags()
	f.StringVar(&compileInput, "input", "", "path to the effective schema set (.json, .yaml)")
	f.StringSliceVar(&compileDialects, "dialect", nil, "dialects to compile for (pgsql, mssql)")
	f.StringVar(&compileOut, "out", "", "output directory")
	f.StringVar(&compileFormat, "format", "", "manifest format (json, yaml)")
	f.BoolVar(&compilePerResource, "per-resource", false, "also write one manifest per resource")
}

// writeManifests writes the set manifest of m and, when enabled, one
// manifest per concrete resource. It returns the number of files written.
func writeManifests(c *cli.Config, m *relmodel.ModelSet) (int, error) {
	data, err := relmodel.Emit(m)
	if err != nil {
		return 0, cli.BuildError(fmt.Sprintf("emitting %s manifest", m.Dialect), err)
	}
	if err := writeManifest(c, c.ManifestPath(m.Dialect), data); err != nil {
		return 0, err
	}
	written := 1

	if !c.Compile.PerResource {
		return written, nil
	}
	for _, r := range m.ConcreteResourcesInNameOrder {
		rm := r.RelationalModel
		data, err := manifest.EmitResource(rm)
		if err != nil {
			return written, cli.BuildError(fmt.Sprintf("emitting %s manifest for %s", m.Dialect, rm.Resource), err)
		}
		path := c.ResourceManifestPath(m.Dialect, rm.Resource.ProjectName, rm.Resource.ResourceName)
		if err := writeManifest(c, path, data); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func writeManifest(c *cli.Config, path string, data []byte) error {
	if c.Output.Format == cli.FormatYAML {
		var err error
		if data, err = manifest.ToYAML(data); err != nil {
			return cli.GeneralError("converting manifest to yaml", err)
		}
	}
	logger.Debug("writing manifest", "path", path, "bytes", len(data))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cli.GeneralError("creating output directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return cli.GeneralError(fmt.Sprintf("writing %s", path), err)
	}
	return nil
}
