package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pthm/relmodel/internal/cli"
)

var validateInput string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the schema set by building it",
	Long: `Validate the effective schema set by building its relational model for
every configured dialect. Nothing is written.`,
	Example: `  # Validate a specific input
  relmodel validate --input effective-schema.json

  # Validate using config file settings
  relmodel validate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		inputPath := resolveString(validateInput, cfg.Input)
		dialects, err := cfg.ResolvedDialects()
		if err != nil {
			return cli.ConfigError("resolving dialects", err)
		}

		set, err := loadSet(inputPath)
		if err != nil {
			return err
		}
		models, err := buildAll(cmd.Context(), set, dialects)
		if err != nil {
			return err
		}

		if !quiet {
			fmt.Printf("Schema set is valid (%d projects).\n", len(set.ProjectSchemas))
			for _, m := range models {
				tables := 0
				for _, r := range m.ConcreteResourcesInNameOrder {
					tables += len(r.RelationalModel.TablesInDependencyOrder)
				}
				fmt.Printf("  - %s: %d resources, %d tables, %d abstract views, %d indexes, %d triggers\n",
					m.Dialect,
					len(m.ConcreteResourcesInNameOrder),
					tables,
					len(m.AbstractUnionViewsInNameOrder),
					len(m.IndexesInCreateOrder),
					len(m.TriggersInCreateOrder))
			}
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateInput, "input", "", "path to the effective schema set (.json, .yaml)")
}
