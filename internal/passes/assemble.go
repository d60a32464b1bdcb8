package passes

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/schema"
)

// assemble checks the set-level invariants and builds the canonically
// ordered result.
func assemble(s *SetContext) (*model.DerivedRelationalModelSet, error) {
	if err := validateSet(s); err != nil {
		return nil, err
	}

	out := &model.DerivedRelationalModelSet{
		EffectiveSchema: effectiveSchemaInfo(s),
		Dialect:         s.Dialect,
	}

	for _, p := range s.Projects {
		out.ProjectSchemasInEndpointOrder = append(out.ProjectSchemasInEndpointOrder, model.ProjectSchemaInfo{
			ProjectEndpointName: p.ProjectEndpointName,
			ProjectName:         p.ProjectName,
			ProjectVersion:      p.ProjectVersion,
			IsExtensionProject:  p.IsExtensionProject,
			PhysicalSchema:      p.PhysicalSchema,
		})
	}
	slices.SortFunc(out.ProjectSchemasInEndpointOrder, func(a, b model.ProjectSchemaInfo) int {
		if d := cmp.Compare(a.PhysicalSchema, b.PhysicalSchema); d != 0 {
			return d
		}
		return cmp.Compare(a.ProjectEndpointName, b.ProjectEndpointName)
	})

	for _, e := range s.Resources {
		if e.IsExtension() || e.Model == nil {
			continue
		}
		out.ConcreteResourcesInNameOrder = append(out.ConcreteResourcesInNameOrder, *e.Model)
	}
	slices.SortFunc(out.ConcreteResourcesInNameOrder, func(a, b model.ConcreteResourceModel) int {
		return model.CompareResources(a.ResourceKey.Resource, b.ResourceKey.Resource)
	})

	for _, a := range s.Abstracts {
		if a.Table != nil {
			out.AbstractIdentityTablesInNameOrder = append(out.AbstractIdentityTablesInNameOrder, *a.Table)
		}
		if a.View != nil {
			out.AbstractUnionViewsInNameOrder = append(out.AbstractUnionViewsInNameOrder, *a.View)
		}
	}
	slices.SortFunc(out.AbstractIdentityTablesInNameOrder, func(a, b model.AbstractIdentityTableInfo) int {
		return model.CompareResources(a.ResourceKey.Resource, b.ResourceKey.Resource)
	})
	slices.SortFunc(out.AbstractUnionViewsInNameOrder, func(a, b model.AbstractUnionViewInfo) int {
		return model.CompareResources(a.ResourceKey.Resource, b.ResourceKey.Resource)
	})

	out.IndexesInCreateOrder = slices.Clone(s.Indexes)
	slices.SortStableFunc(out.IndexesInCreateOrder, func(a, b model.DbIndexInfo) int {
		if d := model.CompareTables(a.Table, b.Table); d != 0 {
			return d
		}
		return cmp.Compare(a.Name, b.Name)
	})
	out.TriggersInCreateOrder = slices.Clone(s.Triggers)
	slices.SortStableFunc(out.TriggersInCreateOrder, func(a, b model.DbTriggerInfo) int {
		if d := model.CompareTables(a.Table, b.Table); d != 0 {
			return d
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out, nil
}

func effectiveSchemaInfo(s *SetContext) model.EffectiveSchemaInfo {
	in := s.Set.EffectiveSchema
	info := model.EffectiveSchemaInfo{
		ApiSchemaFormatVersion:   in.ApiSchemaFormatVersion,
		RelationalMappingVersion: in.RelationalMappingVersion,
		EffectiveSchemaHash:      in.EffectiveSchemaHash,
		ResourceKeyCount:         in.ResourceKeyCount,
		ResourceKeySeedHash:      in.ResourceKeySeedHash,
	}
	for _, k := range in.ResourceKeysInIdOrder {
		q := model.QualifiedResourceName{ProjectName: k.ProjectName, ResourceName: k.ResourceName}
		info.ResourceKeysInIdOrder = append(info.ResourceKeysInIdOrder, s.Keys[q])
	}
	return info
}

// validateSet checks what only holds once every pass has run.
func validateSet(s *SetContext) error {
	for _, e := range s.Resources {
		if e.Context == nil {
			continue
		}
		unused := e.Context.UnusedOverrides()
		if len(unused) == 0 {
			continue
		}
		parts := make([]string, len(unused))
		for i, o := range unused {
			parts[i] = fmt.Sprintf("'%s' (canonical '%s')", o.RawKey, o.Path.Canonical())
		}
		return fmt.Errorf("%w: relational.nameOverrides entries did not match any derived columns or collection scopes on resource '%s': %s",
			schema.ErrInvalidResourceSchema, e.Resource, strings.Join(parts, ", "))
	}

	seen := make(map[model.QualifiedResourceName]int)
	for _, e := range s.Resources {
		if !e.IsExtension() && e.Model != nil {
			seen[e.Resource]++
		}
	}
	var dups []string
	for q, n := range seen {
		if n > 1 {
			dups = append(dups, q.String())
		}
	}
	if len(dups) > 0 {
		slices.Sort(dups)
		return fmt.Errorf("%w: Duplicate concrete resources detected for: %s", model.ErrInvalidModel, strings.Join(dups, ", "))
	}

	if err := duplicateNames("index", s.Indexes, func(i model.DbIndexInfo) (model.DbTableName, string) {
		return i.Table, string(i.Name)
	}); err != nil {
		return err
	}
	if err := duplicateNames("trigger", s.Triggers, func(t model.DbTriggerInfo) (model.DbTableName, string) {
		return t.Table, string(t.Name)
	}); err != nil {
		return err
	}
	return s.Overrides.Err()
}

// duplicateNames reports names that appear twice on the same table.
func duplicateNames[T any](kind string, items []T, key func(T) (model.DbTableName, string)) error {
	type tableName struct {
		table model.DbTableName
		name  string
	}
	counts := make(map[tableName]int)
	for _, it := range items {
		t, n := key(it)
		counts[tableName{t, n}]++
	}
	var dups []string
	for k, n := range counts {
		if n > 1 {
			dups = append(dups, k.table.String()+"."+k.name)
		}
	}
	if len(dups) == 0 {
		return nil
	}
	slices.Sort(dups)
	return fmt.Errorf("%w: Duplicate %s names detected for: %s", model.ErrInvalidModel, kind, strings.Join(dups, ", "))
}
