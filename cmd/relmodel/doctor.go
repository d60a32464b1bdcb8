package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pthm/relmodel/internal/cli"
	"github.com/pthm/relmodel/internal/doctor"
)

var (
	doctorInput   string
	doctorDetails bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks",
	Long: `Run health checks on the effective schema set: that it loads and is
internally consistent, that it builds for every configured dialect, which
identifiers had to be shortened, and that the manifest is stable under
input reordering.`,
	Example: `  # Run health checks
  relmodel doctor --input effective-schema.json

  # Show details for each check
  relmodel doctor --details`,
	RunE: func(cmd *cobra.Command, args []string) error {
		inputPath := resolveString(doctorInput, cfg.Input)
		details := resolveBool(doctorDetails, cfg.Doctor.Verbose)
		dialects, err := cfg.ResolvedDialects()
		if err != nil {
			return cli.ConfigError("resolving dialects", err)
		}

		if !quiet {
			fmt.Println("relmodel doctor - Health Check")
		}

		report, err := doctor.New(inputPath, dialects).Run(cmd.Context())
		if err != nil {
			return cli.GeneralError("running doctor", err)
		}

		report.Print(os.Stdout, details)

		if report.HasErrors() {
			return cli.GeneralError("health checks failed", nil)
		}
		return nil
	},
}

func init() {
	f := doctorCmd.Flags()
	f.StringVar(&doctorInput, "input", "", "path to the effective schema set (.json, .yaml)")
	f.BoolVar(&doctorDetails, "details", false, "show detailed output")
}
