package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pthm/relmodel"
	"github.com/pthm/relmodel/internal/cli"
	"github.com/pthm/relmodel/internal/doctor"
	"github.com/pthm/relmodel/schema"
)

var (
	verifyInput   string
	verifyDialect string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the manifest does not depend on input order",
	Long: `Build the schema set as given and with its projects and schema
components reversed, then compare the two manifests byte for byte. Every
resource detail is included in the comparison.

Exits with code 5 when the manifests differ.`,
	Example: `  # Verify every configured dialect
  relmodel verify

  # Verify one dialect
  relmodel verify --dialect mssql`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := *cfg
		c.Verify.Dialect = resolveString(verifyDialect, cfg.Verify.Dialect)
		dialects, err := c.ResolvedVerifyDialects()
		if err != nil {
			return cli.ConfigError("resolving dialects", err)
		}

		set, err := loadSet(resolveString(verifyInput, cfg.Input))
		if err != nil {
			return err
		}
		reversed := schema.Reversed(set)

		var forward, backward []*relmodel.ModelSet
		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() (err error) {
			forward, err = buildAll(ctx, set, dialects)
			return err
		})
		g.Go(func() (err error) {
			backward, err = buildAll(ctx, reversed, dialects)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		for i, d := range dialects {
			a, err := relmodel.Emit(forward[i], relmodel.WithAllResourceDetails())
			if err != nil {
				return cli.BuildError(fmt.Sprintf("emitting %s manifest", d), err)
			}
			b, err := relmodel.Emit(backward[i], relmodel.WithAllResourceDetails())
			if err != nil {
				return cli.BuildError(fmt.Sprintf("emitting %s manifest", d), err)
			}
			if !bytes.Equal(a, b) {
				return cli.NondeterministicError(fmt.Sprintf("%s manifest depends on input order at %s", d, doctor.FirstDifference(a, b)))
			}
			if !quiet {
				fmt.Printf("%s: manifest is stable (%d bytes)\n", d, len(a))
			}
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyInput, "input", "", "path to the effective schema set (.json, .yaml)")
	verifyCmd.Flags().StringVar(&verifyDialect, "dialect", "", "verify only this dialect")
}
