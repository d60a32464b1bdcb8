package passes

import (
	"slices"

	"github.com/pthm/relmodel/internal/build"
	"github.com/pthm/relmodel/internal/model"
)

// ExtensionTables lowers each resource extension and merges the extension
// tables into the model of the resource it extends.
type ExtensionTables struct{}

func (ExtensionTables) Name() string { return "ExtensionTableDerivation" }
func (ExtensionTables) Order() int   { return 20 }

func (ExtensionTables) Execute(s *SetContext) error {
	for _, e := range s.Resources {
		if !e.IsExtension() {
			continue
		}
		if !e.Project.IsExtensionProject {
			return build.ResourceErrorf(e.Resource, "Resource extension '%s' must be defined in an extension project", e.Resource)
		}
		base, err := resolveExtensionBase(s, e)
		if err != nil {
			return err
		}
		if base.Model == nil || base.Context == nil {
			return build.ResourceErrorf(e.Resource, "base resource '%s' has not been lowered", base.Resource)
		}

		c := build.NewContext(e.Project, e.Schema)
		c.Overrides = s.Overrides
		c.DescriptorPaths = s.DescriptorPaths[e.Resource]
		if err := build.Run(c, build.ExtractInputs, build.ValidateJsonSchema); err != nil {
			return err
		}
		tables, err := build.DeriveExtensionTables(c, base.Context)
		if err != nil {
			return err
		}
		e.Context = c
		e.Base = base

		if len(tables) == 0 && len(c.DescriptorEdgeSources) == 0 {
			continue
		}
		rm := base.Model.RelationalModel
		rm.TablesInDependencyOrder = append(slices.Clone(rm.TablesInDependencyOrder), tables...)
		rm.DescriptorEdgeSources = append(slices.Clone(rm.DescriptorEdgeSources), c.DescriptorEdgeSources...)
		merged, err := model.CanonicalizeResource(rm)
		if err != nil {
			return build.ResourceErrorf(e.Resource, "%v", err)
		}
		base.Model.RelationalModel = merged
		s.Logger.Debug("extension merged", "extension", e.Resource.String(), "base", base.Resource.String(), "tables", len(tables))
	}
	return nil
}

// resolveExtensionBase finds the single non-extension resource that a
// resource extension extends, by resource name.
func resolveExtensionBase(s *SetContext, e *ResourceEntry) (*ResourceEntry, error) {
	var candidates []*ResourceEntry
	for _, other := range s.Resources {
		if other.IsExtension() || other.Project.IsExtensionProject {
			continue
		}
		if other.Resource.ResourceName == e.Resource.ResourceName {
			candidates = append(candidates, other)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, build.ResourceErrorf(e.Resource, "Resource extension '%s' does not match any base resource named '%s'",
			e.Resource, e.Resource.ResourceName)
	case 1:
		return candidates[0], nil
	}
	return nil, build.ResourceErrorf(e.Resource, "Resource extension '%s' matches multiple base resources named '%s'",
		e.Resource, e.Resource.ResourceName)
}
