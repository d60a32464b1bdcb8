package build

import (
	"fmt"

	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/schema"
)

// Step is one stage of resource lowering.
type Step func(*Context) error

// DefaultSteps is the fixed lowering order.
var DefaultSteps = []Step{
	ExtractInputs,
	ValidateJsonSchema,
	DiscoverExtensionSites,
	DeriveTableScopesAndKeys,
	DeriveColumnsAndBindDescriptorEdges,
	CanonicalizeOrdering,
}

// Run executes steps against c in order and stops at the first error.
func Run(c *Context, steps ...Step) error {
	if len(steps) == 0 {
		steps = DefaultSteps
	}
	for _, step := range steps {
		if err := step(c); err != nil {
			return err
		}
	}
	return nil
}

// Lower runs the default pipeline for one resource and returns its model.
func Lower(project ProjectInfo, input schema.ResourceSchema) (*model.RelationalResourceModel, error) {
	c := NewContext(project, input)
	if err := Run(c); err != nil {
		return nil, err
	}
	return c.Result, nil
}

// CanonicalizeOrdering freezes the accumulated tables into c.Result with
// every collection in canonical order.
func CanonicalizeOrdering(c *Context) error {
	tables := make([]model.DbTableModel, 0, len(c.Tables))
	for _, t := range c.Tables {
		built, err := t.Builder.Build()
		if err != nil {
			return fmt.Errorf("resource '%s': %w", c.Resource, err)
		}
		tables = append(tables, built)
	}

	m, err := model.CanonicalizeResource(model.RelationalResourceModel{
		Resource:                c.Resource,
		PhysicalSchema:          c.PhysicalSchema,
		StorageKind:             c.StorageKind,
		TablesInDependencyOrder: tables,
		DescriptorEdgeSources:   c.DescriptorEdgeSources,
		ExtensionSites:          c.ExtensionSites,
	})
	if err != nil {
		return fmt.Errorf("resource '%s': %w", c.Resource, err)
	}
	c.Result = &m
	return nil
}
