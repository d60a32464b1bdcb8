package cli

import (
	"fmt"
	"io"

	"sigs.k8s.io/yaml"

	"github.com/pthm/relmodel/internal/dialect"
)

// ShowConfig writes the effective configuration as YAML followed by what it
// resolves to: each dialect with its identifier limit and the manifest path
// compile writes for it. When withSource is set the config file path is
// written first.
func ShowConfig(w io.Writer, cfg *Config, path string, withSource bool) error {
	if withSource {
		if path != "" {
			fmt.Fprintf(w, "Config file: %s\n\n", path)
		} else {
			fmt.Fprint(w, "Config file: (none, using defaults)\n\n")
		}
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if _, err := w.Write(out); err != nil {
		return err
	}

	dialects, err := cfg.ResolvedDialects()
	if err != nil {
		return err
	}
	fmt.Fprint(w, "\nResolved:\n")
	for _, d := range dialects {
		rules, err := dialect.ForDialect(d)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s (max identifier length %d) -> %s\n", d, rules.MaxIdentifierLength(), cfg.ManifestPath(d))
	}
	return nil
}
