package passes

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/pthm/relmodel/internal/build"
	"github.com/pthm/relmodel/internal/collision"
	"github.com/pthm/relmodel/internal/dialect"
	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/naming"
	"github.com/pthm/relmodel/schema"
)

// ResourceEntry is a concrete resource (or resource extension) of the set.
type ResourceEntry struct {
	Project  build.ProjectInfo
	Resource model.QualifiedResourceName
	Schema   schema.ResourceSchema
	Key      model.ResourceKeyEntry

	// Context is the lowering context. For resource extensions it is the
	// extension's own context; the tables it derives live on Base.Model.
	Context *build.Context

	// Model is set for non-extension resources once the base pass has run.
	Model *model.ConcreteResourceModel

	// Base is the resource a resource extension extends.
	Base *ResourceEntry
}

// IsExtension reports whether the entry is a resource extension.
func (e *ResourceEntry) IsExtension() bool { return e.Schema.IsResourceExtension }

// Relational returns the relational model that holds this entry's tables.
func (e *ResourceEntry) Relational() *model.RelationalResourceModel {
	if e.Base != nil {
		return e.Base.Relational()
	}
	if e.Model == nil {
		return nil
	}
	return &e.Model.RelationalModel
}

// AbstractEntry is an abstract resource of the set.
type AbstractEntry struct {
	Project       build.ProjectInfo
	Resource      model.QualifiedResourceName
	Schema        schema.ResourceSchema
	Key           model.ResourceKeyEntry
	IdentityPaths []jsonpath.Expression

	// Table and View are set by the abstract identity pass.
	Table *model.AbstractIdentityTableInfo
	View  *model.AbstractUnionViewInfo
}

// referenceForeignKey remembers a composite reference FK for the trigger
// inventory.
type referenceForeignKey struct {
	Table          model.DbTableName
	FkColumn       model.DbColumnName
	Columns        []model.DbColumnName
	TargetTable    model.DbTableName
	TargetColumns  []model.DbColumnName
	PropagatesKeys bool
}

// SetContext is the shared state of one build.
type SetContext struct {
	Set     *schema.EffectiveSchemaSet
	Rules   dialect.Rules
	Dialect dialect.Dialect
	Logger  *slog.Logger

	// Projects is ordered by endpoint name.
	Projects []build.ProjectInfo
	Keys     map[model.QualifiedResourceName]model.ResourceKeyEntry

	Overrides *collision.OverrideDetector

	// Resources holds every concrete resource, extensions included,
	// ordered by qualified name.
	Resources []*ResourceEntry
	// Abstracts is ordered by qualified name.
	Abstracts []*AbstractEntry

	// DescriptorPaths is each resource's own descriptor map after
	// propagation through reference identities. Resource extensions have
	// their own entry.
	DescriptorPaths map[model.QualifiedResourceName]map[string]build.DescriptorPathInfo

	Indexes  []model.DbIndexInfo
	Triggers []model.DbTriggerInfo

	referenceKeys []referenceForeignKey
	concrete      map[model.QualifiedResourceName]*ResourceEntry
	abstract      map[model.QualifiedResourceName]*AbstractEntry
}

// NewSetContext validates set and indexes its projects and resources.
func NewSetContext(set *schema.EffectiveSchemaSet, rules dialect.Rules) (*SetContext, error) {
	if err := validateInput(set); err != nil {
		return nil, err
	}

	s := &SetContext{
		Set:             set,
		Rules:           rules,
		Dialect:         rules.Dialect(),
		Logger:          slog.New(slog.DiscardHandler),
		Keys:            make(map[model.QualifiedResourceName]model.ResourceKeyEntry),
		Overrides:       collision.NewOverrideDetector(),
		DescriptorPaths: make(map[model.QualifiedResourceName]map[string]build.DescriptorPathInfo),
		concrete:        make(map[model.QualifiedResourceName]*ResourceEntry),
		abstract:        make(map[model.QualifiedResourceName]*AbstractEntry),
	}

	for _, k := range set.EffectiveSchema.ResourceKeysInIdOrder {
		q := model.QualifiedResourceName{ProjectName: k.ProjectName, ResourceName: k.ResourceName}
		s.Keys[q] = model.ResourceKeyEntry{
			ID:              k.ResourceKeyID,
			Resource:        q,
			ResourceVersion: k.ResourceVersion,
			IsAbstract:      k.IsAbstractResource,
		}
	}

	for _, p := range set.ProjectSchemas {
		info := build.ProjectInfo{
			ProjectName:         p.ProjectName,
			ProjectEndpointName: p.ProjectEndpointName,
			ProjectVersion:      p.ProjectVersion,
			IsExtensionProject:  p.IsExtensionProject,
			PhysicalSchema:      naming.NormalizeSchemaName(p.ProjectEndpointName),
		}
		s.Projects = append(s.Projects, info)

		for _, name := range schema.SortedKeys(p.ResourceSchemas) {
			rs := p.ResourceSchemas[name]
			q := model.QualifiedResourceName{ProjectName: p.ProjectName, ResourceName: rs.ResourceName}
			e := &ResourceEntry{Project: info, Resource: q, Schema: rs, Key: s.Keys[q]}
			s.Resources = append(s.Resources, e)
			if !rs.IsResourceExtension {
				s.concrete[q] = e
			}
		}
		for _, name := range schema.SortedKeys(p.AbstractResources) {
			rs := p.AbstractResources[name]
			if strings.TrimSpace(rs.ResourceName) == "" {
				rs.ResourceName = name
			}
			q := model.QualifiedResourceName{ProjectName: p.ProjectName, ResourceName: rs.ResourceName}
			a := &AbstractEntry{Project: info, Resource: q, Schema: rs, Key: s.Keys[q]}
			for _, raw := range rs.IdentityJsonPaths {
				path, err := jsonpath.Compile(raw)
				if err != nil {
					return nil, build.ResourceErrorf(q, "identityJsonPaths: %v", err)
				}
				a.IdentityPaths = append(a.IdentityPaths, path)
			}
			s.Abstracts = append(s.Abstracts, a)
			s.abstract[q] = a
		}
	}

	slices.SortFunc(s.Projects, func(a, b build.ProjectInfo) int {
		return strings.Compare(a.ProjectEndpointName, b.ProjectEndpointName)
	})
	slices.SortFunc(s.Resources, func(a, b *ResourceEntry) int { return model.CompareResources(a.Resource, b.Resource) })
	slices.SortFunc(s.Abstracts, func(a, b *AbstractEntry) int { return model.CompareResources(a.Resource, b.Resource) })
	return s, nil
}

// Concrete finds a non-extension concrete resource.
func (s *SetContext) Concrete(q model.QualifiedResourceName) (*ResourceEntry, bool) {
	e, ok := s.concrete[q]
	return e, ok
}

// Abstract finds an abstract resource.
func (s *SetContext) Abstract(q model.QualifiedResourceName) (*AbstractEntry, bool) {
	a, ok := s.abstract[q]
	return a, ok
}

// ProjectByEndpoint finds a project by endpoint name.
func (s *SetContext) ProjectByEndpoint(endpoint string) (build.ProjectInfo, bool) {
	for _, p := range s.Projects {
		if p.ProjectEndpointName == endpoint {
			return p, true
		}
	}
	return build.ProjectInfo{}, false
}

// AllDescriptorPaths returns the descriptor map of a base resource merged
// with the maps of every resource extension that extends it.
func (s *SetContext) AllDescriptorPaths(q model.QualifiedResourceName) map[string]build.DescriptorPathInfo {
	out := make(map[string]build.DescriptorPathInfo)
	for k, v := range s.DescriptorPaths[q] {
		out[k] = v
	}
	for _, e := range s.Resources {
		if !e.IsExtension() || e.Resource.ResourceName != q.ResourceName {
			continue
		}
		for k, v := range s.DescriptorPaths[e.Resource] {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
	}
	return out
}

// descriptorTarget reports whether identityPath of target is a descriptor
// value, and of which descriptor resource.
func (s *SetContext) descriptorTarget(target model.QualifiedResourceName, identityPath jsonpath.Expression) (model.QualifiedResourceName, bool) {
	if info, ok := s.DescriptorPaths[target][identityPath.Canonical()]; ok {
		return info.DescriptorResource, true
	}
	if last, ok := identityPath.LastProperty(); ok && strings.HasSuffix(last, "Descriptor") {
		return model.QualifiedResourceName{ProjectName: target.ProjectName, ResourceName: naming.PascalCase(last)}, true
	}
	return model.QualifiedResourceName{}, false
}

// rewriteTable rebuilds one table of m with fn and writes it back in
// canonical order.
func rewriteTable(m *model.RelationalResourceModel, name model.DbTableName, fn func(*model.TableBuilder) error) error {
	t, i, ok := m.TableByName(name)
	if !ok {
		return build.ResourceErrorf(m.Resource, "table '%s' was not found", name)
	}
	b, err := model.TableBuilderFrom(t)
	if err != nil {
		return fmt.Errorf("resource '%s': %w", m.Resource, err)
	}
	if err := fn(b); err != nil {
		return err
	}
	built, err := b.Build()
	if err != nil {
		return fmt.Errorf("resource '%s': %w", m.Resource, err)
	}
	canonical, err := model.CanonicalizeTable(built)
	if err != nil {
		return fmt.Errorf("resource '%s': %w", m.Resource, err)
	}
	tables := slices.Clone(m.TablesInDependencyOrder)
	tables[i] = canonical
	m.TablesInDependencyOrder = tables
	return nil
}

// tableOwning returns the table of m with the longest JSON scope that is a
// prefix of path.
func tableOwning(m *model.RelationalResourceModel, path jsonpath.Expression) (model.DbTableModel, bool) {
	var best model.DbTableModel
	found := false
	for _, t := range m.TablesInDependencyOrder {
		if !path.HasPrefix(t.JsonScope) {
			continue
		}
		if !found || t.JsonScope.Len() > best.JsonScope.Len() {
			best = t
			found = true
		}
	}
	return best, found
}
