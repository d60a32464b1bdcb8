package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pthm/relmodel/internal/dialect"
)

var dialectsCmd = &cobra.Command{
	Use:   "dialects",
	Short: "List supported dialects and their rules",
	Run: func(cmd *cobra.Command, args []string) {
		re := lipgloss.NewRenderer(os.Stdout)
		heading := re.NewStyle().Bold(true)
		label := re.NewStyle().Faint(true).Width(22)

		for i, d := range dialect.All() {
			if i > 0 {
				fmt.Println()
			}
			r := dialect.MustForDialect(d)
			t := r.ScalarTypeDefaults()
			fmt.Println(heading.Render(string(d)))
			for _, row := range [][2]string{
				{"max identifier length", fmt.Sprintf("%d", r.MaxIdentifierLength())},
				{"string", t.String},
				{"int32", t.Int32},
				{"int64", t.Int64},
				{"decimal", t.Decimal},
				{"boolean", t.Boolean},
				{"date", t.Date},
				{"datetime", t.DateTime},
				{"time", t.Time},
			} {
				fmt.Printf("  %s %s\n", label.Render(row[0]), row[1])
			}
		}
	},
}
