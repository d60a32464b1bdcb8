// Package doctor provides health checks for an effective schema set.
//
// The doctor command validates that an input can be compiled for every
// configured dialect by checking the input file, the schema set as a whole,
// each dialect build, identifier shortening, and output determinism.
//
// Example usage:
//
//	d := doctor.New("effective-schema.json", []dialect.Dialect{dialect.Pgsql})
//	report, err := d.Run(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	report.Print(os.Stdout, true) // verbose=true
package doctor

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pthm/relmodel/internal/collision"
	"github.com/pthm/relmodel/internal/dialect"
	"github.com/pthm/relmodel/internal/manifest"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/passes"
	"github.com/pthm/relmodel/schema"
)

// Status represents the result of a health check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical issue that will cause failures.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns a status indicator symbol for terminal output.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusWarn:
		return "⚠"
	case StatusFail:
		return "✗"
	default:
		return "?"
	}
}

// Check categories in report order.
const (
	CategoryInput       = "Input File"
	CategorySchemaSet   = "Schema Set"
	CategoryBuild       = "Dialect Builds"
	CategoryIdentifiers = "Identifiers"
	CategoryDeterminism = "Determinism"
)

// CheckResult represents the outcome of a single health check.
type CheckResult struct {
	// Category groups related checks (e.g., "Input File", "Dialect Builds").
	Category string

	// Name is a short identifier for the check.
	Name string

	// Status is the check outcome.
	Status Status

	// Message is a human-readable description of the result.
	Message string

	// Details provides additional information for verbose output.
	Details string

	// FixHint suggests how to resolve issues.
	FixHint string
}

// Report contains all health check results.
type Report struct {
	Checks []CheckResult

	// Summary counts.
	Passed   int
	Warnings int
	Errors   int
}

// AddCheck adds a check result and updates summary counts.
func (r *Report) AddCheck(check CheckResult) {
	r.Checks = append(r.Checks, check)
	switch check.Status {
	case StatusPass:
		r.Passed++
	case StatusWarn:
		r.Warnings++
	case StatusFail:
		r.Errors++
	}
}

// Check returns the first check with the given category and name.
func (r *Report) Check(category, name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Category == category && c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// Print writes the report to the given writer. Colors are only used when w
// is a terminal.
func (r *Report) Print(w io.Writer, verbose bool) {
	re := lipgloss.NewRenderer(w)
	heading := re.NewStyle().Bold(true)
	faint := re.NewStyle().Faint(true)
	symbol := map[Status]lipgloss.Style{
		StatusPass: re.NewStyle().Foreground(lipgloss.Color("#27ca3f")),
		StatusWarn: re.NewStyle().Foreground(lipgloss.Color("#f9ca24")),
		StatusFail: re.NewStyle().Foreground(lipgloss.Color("#ff5f56")),
	}

	categories := make(map[string][]CheckResult)
	var categoryOrder []string
	for _, check := range r.Checks {
		if _, exists := categories[check.Category]; !exists {
			categoryOrder = append(categoryOrder, check.Category)
		}
		categories[check.Category] = append(categories[check.Category], check)
	}

	for _, cat := range categoryOrder {
		_, _ = fmt.Fprintf(w, "\n%s\n", heading.Render(cat))
		for _, check := range categories[cat] {
			_, _ = fmt.Fprintf(w, "  %s %s\n", symbol[check.Status].Render(check.Status.Symbol()), check.Message)
			if verbose && check.Details != "" {
				for _, line := range strings.Split(check.Details, "\n") {
					_, _ = fmt.Fprintf(w, "      %s\n", faint.Render(line))
				}
			}
			if check.Status != StatusPass && check.FixHint != "" {
				_, _ = fmt.Fprintf(w, "      Fix: %s\n", check.FixHint)
			}
		}
	}

	_, _ = fmt.Fprintf(w, "\nSummary: %d passed, %d warnings, %d errors\n",
		r.Passed, r.Warnings, r.Errors)
}

// HasErrors returns true if any check failed.
func (r *Report) HasErrors() bool {
	return r.Errors > 0
}

// Doctor performs health checks on one effective schema set.
type Doctor struct {
	inputPath string
	dialects  []dialect.Dialect

	// Cached data from checks (populated during Run)
	set    *schema.EffectiveSchemaSet
	models map[dialect.Dialect]*model.DerivedRelationalModelSet
}

// New creates a new Doctor instance.
func New(inputPath string, dialects []dialect.Dialect) *Doctor {
	return &Doctor{
		inputPath: inputPath,
		dialects:  dialects,
		models:    make(map[dialect.Dialect]*model.DerivedRelationalModelSet),
	}
}

// Run executes all health checks and returns a report. Later checks are
// skipped when the ones they depend on fail.
func (d *Doctor) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	if !d.checkInputFile(report) {
		return report, nil
	}
	if !d.checkSchemaSet(report) {
		return report, nil
	}
	if err := d.checkBuilds(ctx, report); err != nil {
		return nil, fmt.Errorf("checking builds: %w", err)
	}
	d.checkIdentifiers(report)
	if err := d.checkDeterminism(ctx, report); err != nil {
		return nil, fmt.Errorf("checking determinism: %w", err)
	}

	return report, nil
}

func (d *Doctor) checkInputFile(report *Report) bool {
	if _, err := os.Stat(d.inputPath); err != nil {
		report.AddCheck(CheckResult{
			Category: CategoryInput,
			Name:     "exists",
			Status:   StatusFail,
			Message:  fmt.Sprintf("Input not found at %s", d.inputPath),
			FixHint:  "Set input in relmodel.yaml or pass --input",
		})
		return false
	}
	report.AddCheck(CheckResult{
		Category: CategoryInput,
		Name:     "exists",
		Status:   StatusPass,
		Message:  fmt.Sprintf("Input exists at %s", d.inputPath),
	})

	set, err := schema.Load(d.inputPath)
	if err != nil {
		report.AddCheck(CheckResult{
			Category: CategoryInput,
			Name:     "decodes",
			Status:   StatusFail,
			Message:  "Input cannot be decoded",
			Details:  err.Error(),
			FixHint:  "The input must be an effective schema set in JSON or YAML",
		})
		return false
	}
	d.set = set
	report.AddCheck(CheckResult{
		Category: CategoryInput,
		Name:     "decodes",
		Status:   StatusPass,
		Message:  "Input decodes as an effective schema set",
	})
	return true
}

func (d *Doctor) checkSchemaSet(report *Report) bool {
	if err := passes.Validate(d.set); err != nil {
		report.AddCheck(CheckResult{
			Category: CategorySchemaSet,
			Name:     "consistent",
			Status:   StatusFail,
			Message:  "Schema set is inconsistent",
			Details:  err.Error(),
			FixHint:  "Regenerate the effective schema set; resource keys and project components must agree",
		})
		return false
	}

	var projects, extensions, resources, abstracts int
	for _, p := range d.set.ProjectSchemas {
		projects++
		if p.IsExtensionProject {
			extensions++
		}
		resources += len(p.ResourceSchemas)
		abstracts += len(p.AbstractResources)
	}
	report.AddCheck(CheckResult{
		Category: CategorySchemaSet,
		Name:     "consistent",
		Status:   StatusPass,
		Message: fmt.Sprintf("Schema set is consistent (%d projects, %d resources, %d abstract)",
			projects, resources, abstracts),
		Details: fmt.Sprintf("%d resource keys, %d extension projects, hash %s",
			d.set.EffectiveSchema.ResourceKeyCount, extensions, d.set.EffectiveSchema.EffectiveSchemaHash),
	})
	return true
}

func (d *Doctor) checkBuilds(ctx context.Context, report *Report) error {
	for _, dl := range d.dialects {
		if err := ctx.Err(); err != nil {
			return err
		}
		rules, err := dialect.ForDialect(dl)
		if err != nil {
			return err
		}
		models, err := passes.Build(d.set, dl, rules)
		if err != nil {
			report.AddCheck(CheckResult{
				Category: CategoryBuild,
				Name:     string(dl),
				Status:   StatusFail,
				Message:  fmt.Sprintf("%s build failed", dl),
				Details:  err.Error(),
				FixHint:  buildFixHint(err),
			})
			continue
		}
		d.models[dl] = models

		tables := 0
		for _, r := range models.ConcreteResourcesInNameOrder {
			if r.StorageKind == model.RelationalTables {
				tables += len(r.RelationalModel.TablesInDependencyOrder)
			}
		}
		report.AddCheck(CheckResult{
			Category: CategoryBuild,
			Name:     string(dl),
			Status:   StatusPass,
			Message: fmt.Sprintf("%s builds (%d resources, %d tables, %d indexes, %d triggers)",
				dl, len(models.ConcreteResourcesInNameOrder), tables,
				len(models.IndexesInCreateOrder), len(models.TriggersInCreateOrder)),
		})
	}
	return nil
}

func buildFixHint(err error) string {
	switch {
	case collision.IsIdentifierCollisionErr(err):
		return "Add or change a relational.nameOverrides entry so the names differ"
	case schema.IsInvalidResourceSchemaErr(err):
		return "Fix the resource schema named in the error"
	default:
		return ""
	}
}

// checkIdentifiers warns about identifiers at the dialect length limit.
// Those are almost always shortened names, which are stable but opaque.
func (d *Doctor) checkIdentifiers(report *Report) {
	for _, dl := range d.dialects {
		models, ok := d.models[dl]
		if !ok {
			continue
		}
		rules := dialect.MustForDialect(dl)
		atLimit := identifiersAtLimit(models, rules)
		if len(atLimit) == 0 {
			report.AddCheck(CheckResult{
				Category: CategoryIdentifiers,
				Name:     string(dl),
				Status:   StatusPass,
				Message:  fmt.Sprintf("%s: all identifiers fit in %d characters", dl, rules.MaxIdentifierLength()),
			})
			continue
		}
		report.AddCheck(CheckResult{
			Category: CategoryIdentifiers,
			Name:     string(dl),
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%s: %d identifiers were shortened", dl, len(atLimit)),
			Details:  strings.Join(atLimit, "\n"),
			FixHint:  "Use relational.nameOverrides to choose shorter names",
		})
	}
}

func identifiersAtLimit(models *model.DerivedRelationalModelSet, rules dialect.Rules) []string {
	var out []string
	add := func(kind, name string) {
		if rules.IdentifierLength(name) >= rules.MaxIdentifierLength() {
			out = append(out, kind+" "+name)
		}
	}
	addTable := func(t model.DbTableModel) {
		add("table", t.Table.Name)
		for _, c := range t.Columns {
			add("column", t.Table.Name+"."+string(c.Name))
		}
		for _, c := range t.Constraints {
			add("constraint", c.ConstraintName())
		}
	}
	for _, r := range models.ConcreteResourcesInNameOrder {
		if r.StorageKind == model.SharedDescriptorTable {
			continue
		}
		for _, t := range r.RelationalModel.TablesInDependencyOrder {
			addTable(t)
		}
	}
	for _, a := range models.AbstractIdentityTablesInNameOrder {
		addTable(a.Table)
	}
	for _, v := range models.AbstractUnionViewsInNameOrder {
		add("view", v.ViewName.Name)
	}
	for _, idx := range models.IndexesInCreateOrder {
		add("index", string(idx.Name))
	}
	for _, tr := range models.TriggersInCreateOrder {
		add("trigger", string(tr.Name))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// checkDeterminism rebuilds every dialect that built with projects and
// components reversed and compares the manifests.
func (d *Doctor) checkDeterminism(ctx context.Context, report *Report) error {
	reversed := schema.Reversed(d.set)
	for _, dl := range d.dialects {
		models, ok := d.models[dl]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		forward, err := manifest.EmitSet(models, manifest.WithAllResourceDetails())
		if err != nil {
			return err
		}
		again, err := passes.Build(reversed, dl, dialect.MustForDialect(dl))
		if err != nil {
			report.AddCheck(CheckResult{
				Category: CategoryDeterminism,
				Name:     string(dl),
				Status:   StatusFail,
				Message:  fmt.Sprintf("%s build fails when input order is reversed", dl),
				Details:  err.Error(),
			})
			continue
		}
		backward, err := manifest.EmitSet(again, manifest.WithAllResourceDetails())
		if err != nil {
			return err
		}

		if string(forward) != string(backward) {
			report.AddCheck(CheckResult{
				Category: CategoryDeterminism,
				Name:     string(dl),
				Status:   StatusFail,
				Message:  fmt.Sprintf("%s manifest depends on input order", dl),
				Details:  FirstDifference(forward, backward),
			})
			continue
		}
		report.AddCheck(CheckResult{
			Category: CategoryDeterminism,
			Name:     string(dl),
			Status:   StatusPass,
			Message:  fmt.Sprintf("%s manifest is independent of input order", dl),
		})
	}
	return nil
}

// FirstDifference describes the first line at which two manifests differ.
func FirstDifference(a, b []byte) string {
	al := strings.Split(string(a), "\n")
	bl := strings.Split(string(b), "\n")
	for i := 0; i < min(len(al), len(bl)); i++ {
		if al[i] != bl[i] {
			return fmt.Sprintf("line %d:\n- %s\n+ %s", i+1, strings.TrimSpace(al[i]), strings.TrimSpace(bl[i]))
		}
	}
	return fmt.Sprintf("manifests have %d and %d lines", len(al), len(bl))
}
