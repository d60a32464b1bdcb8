package passes

import (
	"fmt"
	"strings"

	"github.com/pthm/relmodel/internal/build"
	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/schema"
)

// BaseTraversal lowers every non-extension concrete resource and binds
// descriptor paths, including those inherited through reference identities.
type BaseTraversal struct{}

func (BaseTraversal) Name() string { return "BaseTraversalAndDescriptorBinding" }
func (BaseTraversal) Order() int   { return 10 }

func (BaseTraversal) Execute(s *SetContext) error {
	if err := buildDescriptorMaps(s); err != nil {
		return err
	}

	for _, e := range s.Resources {
		if e.IsExtension() {
			continue
		}
		c := build.NewContext(e.Project, e.Schema)
		c.Overrides = s.Overrides
		c.DescriptorPaths = s.AllDescriptorPaths(e.Resource)
		if err := build.Run(c); err != nil {
			return err
		}
		if err := validateExtensionSites(s, c); err != nil {
			return err
		}

		m := &model.ConcreteResourceModel{
			ResourceKey:     e.Key,
			StorageKind:     c.StorageKind,
			RelationalModel: *c.Result,
		}
		if c.StorageKind == model.SharedDescriptorTable {
			m.DescriptorMetadata = &model.DescriptorMetadata{
				ColumnContract: model.DefaultDescriptorColumnContract(),
				Discriminator:  model.DiscriminatorDescriptorColumn,
			}
		}
		e.Context = c
		e.Model = m
		s.Logger.Debug("resource lowered", "resource", e.Resource.String(), "tables", len(c.Result.TablesInDependencyOrder))
	}
	return nil
}

// referenceEdge says that localPath of a resource mirrors identityPath of
// target.
type referenceEdge struct {
	target       model.QualifiedResourceName
	identityPath jsonpath.Expression
	localPath    jsonpath.Expression
}

// buildDescriptorMaps collects each resource's declared descriptor paths
// and then copies descriptor identities of referenced resources onto the
// local paths that mirror them, until nothing changes.
func buildDescriptorMaps(s *SetContext) error {
	type node struct {
		resource model.QualifiedResourceName
		edges    []referenceEdge
	}
	var nodes []node

	add := func(q model.QualifiedResourceName, rs schema.ResourceSchema) error {
		own, err := build.DescriptorPathsFor(q, rs)
		if err != nil {
			return err
		}
		s.DescriptorPaths[q] = own
		edges, err := referenceEdges(q, rs)
		if err != nil {
			return err
		}
		nodes = append(nodes, node{resource: q, edges: edges})
		return nil
	}
	for _, e := range s.Resources {
		if err := add(e.Resource, e.Schema); err != nil {
			return err
		}
	}
	for _, a := range s.Abstracts {
		if err := add(a.Resource, a.Schema); err != nil {
			return err
		}
	}

	for changed := true; changed; {
		changed = false
		for _, n := range nodes {
			local := s.DescriptorPaths[n.resource]
			for _, edge := range n.edges {
				info, ok := s.DescriptorPaths[edge.target][edge.identityPath.Canonical()]
				if !ok {
					continue
				}
				key := edge.localPath.Canonical()
				if existing, ok := local[key]; ok {
					if existing.DescriptorResource != info.DescriptorResource {
						return build.ResourceErrorf(n.resource, "descriptor path '%s' is already defined for '%s' and cannot also be '%s'",
							edge.localPath, existing.DescriptorResource, info.DescriptorResource)
					}
					continue
				}
				local[key] = build.DescriptorPathInfo{Path: edge.localPath, DescriptorResource: info.DescriptorResource}
				changed = true
			}
		}
	}
	return nil
}

func referenceEdges(q model.QualifiedResourceName, rs schema.ResourceSchema) ([]referenceEdge, error) {
	var out []referenceEdge
	for _, key := range schema.SortedKeys(rs.DocumentPathsMapping) {
		entry := rs.DocumentPathsMapping[key]
		if !entry.IsReference || entry.IsDescriptor {
			continue
		}
		target := model.QualifiedResourceName{ProjectName: entry.ProjectName, ResourceName: entry.ResourceName}
		for _, rp := range entry.ReferenceJsonPaths {
			identity, err := jsonpath.Compile(rp.IdentityJsonPath)
			if err != nil {
				return nil, build.ResourceErrorf(q, "documentPathsMapping entry '%s' identityJsonPath: %v", key, err)
			}
			local, err := jsonpath.Compile(rp.ReferenceJsonPath)
			if err != nil {
				return nil, build.ResourceErrorf(q, "documentPathsMapping entry '%s' referenceJsonPath: %v", key, err)
			}
			out = append(out, referenceEdge{target: target, identityPath: identity, localPath: local})
		}
	}
	return out, nil
}

// validateExtensionSites checks that every _ext project key names one
// configured extension project.
func validateExtensionSites(s *SetContext, c *build.Context) error {
	for _, site := range c.ExtensionSites {
		for _, key := range site.ProjectKeys {
			p, err := resolveProjectKey(s, key)
			if err != nil {
				return c.Errorf("extension site '%s': %v", site.ExtensionPath, err)
			}
			if !p.IsExtensionProject {
				return c.Errorf("Extension project key '%s' at '%s' resolves to non-extension project '%s' (%s)",
					key, site.ExtensionPath, p.ProjectName, p.ProjectEndpointName)
			}
		}
	}
	return nil
}

// resolveProjectKey matches an _ext key against project endpoint names
// first and project names second, ignoring case.
func resolveProjectKey(s *SetContext, key string) (build.ProjectInfo, error) {
	for _, byName := range []bool{false, true} {
		var matches []build.ProjectInfo
		for _, p := range s.Projects {
			candidate := p.ProjectEndpointName
			if byName {
				candidate = p.ProjectName
			}
			if strings.EqualFold(candidate, key) {
				matches = append(matches, p)
			}
		}
		switch len(matches) {
		case 0:
			continue
		case 1:
			return matches[0], nil
		default:
			names := make([]string, len(matches))
			for i, m := range matches {
				names[i] = m.ProjectEndpointName
			}
			return build.ProjectInfo{}, fmt.Errorf("Extension project key '%s' matches multiple projects: %s", key, strings.Join(names, ", "))
		}
	}
	return build.ProjectInfo{}, fmt.Errorf("Extension project key '%s' does not match any configured project", key)
}
