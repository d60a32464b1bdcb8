package passes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/naming"
	"github.com/pthm/relmodel/schema"
)

func invalidSet(format string, args ...any) error {
	return fmt.Errorf("%w: %s", schema.ErrInvalidEffectiveSchema, fmt.Sprintf(format, args...))
}

// declared is one resource found in a project schema.
type declared struct {
	resource   model.QualifiedResourceName
	schema     schema.ResourceSchema
	isAbstract bool
}

// Validate runs the input checks a build starts with, without building.
func Validate(set *schema.EffectiveSchemaSet) error {
	if set == nil {
		return invalidSet("effective schema set is nil")
	}
	return validateInput(set)
}

// validateInput runs the checks that must hold before any pass can run.
func validateInput(set *schema.EffectiveSchemaSet) error {
	info := set.EffectiveSchema
	if len(set.ProjectSchemas) == 0 {
		return invalidSet("projectSchemas must contain at least one project")
	}
	if err := validateProjects(set); err != nil {
		return err
	}

	resources, err := declaredResources(set)
	if err != nil {
		return err
	}
	if err := validateResourceKeys(info, resources); err != nil {
		return err
	}
	if err := validateSubclasses(resources); err != nil {
		return err
	}
	return validateDocumentPathTargets(resources)
}

func validateProjects(set *schema.EffectiveSchemaSet) error {
	bySchema := make(map[model.DbSchemaName]string)
	endpoints := make(map[string]bool)
	for _, p := range set.ProjectSchemas {
		if strings.TrimSpace(p.ProjectEndpointName) == "" {
			return invalidSet("project '%s' must declare projectEndpointName", p.ProjectName)
		}
		if strings.TrimSpace(p.ProjectName) == "" {
			return invalidSet("project '%s' must declare projectName", p.ProjectEndpointName)
		}
		if endpoints[p.ProjectEndpointName] {
			return invalidSet("project endpoint '%s' is declared more than once", p.ProjectEndpointName)
		}
		endpoints[p.ProjectEndpointName] = true

		physical := naming.NormalizeSchemaName(p.ProjectEndpointName)
		if other, ok := bySchema[physical]; ok {
			first, second := other, p.ProjectEndpointName
			if second < first {
				first, second = second, first
			}
			return invalidSet("project endpoints '%s' and '%s' both normalize to physical schema '%s'", first, second, physical)
		}
		bySchema[physical] = p.ProjectEndpointName
	}

	components := make(map[string]schema.SchemaComponent)
	for _, c := range set.EffectiveSchema.SchemaComponentsInEndpointOrder {
		if _, ok := components[c.ProjectEndpointName]; ok {
			return invalidSet("schemaComponentsInEndpointOrder lists '%s' more than once", c.ProjectEndpointName)
		}
		components[c.ProjectEndpointName] = c
	}
	if len(components) == 0 {
		return nil
	}
	var missing []string
	for _, p := range set.ProjectSchemas {
		c, ok := components[p.ProjectEndpointName]
		if !ok {
			missing = append(missing, p.ProjectEndpointName)
			continue
		}
		if c.IsExtensionProject != p.IsExtensionProject {
			return invalidSet("schema component '%s' has isExtensionProject=%v but project schema has isExtensionProject=%v",
				p.ProjectEndpointName, c.IsExtensionProject, p.IsExtensionProject)
		}
		delete(components, p.ProjectEndpointName)
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return invalidSet("schemaComponentsInEndpointOrder is missing projects: %s", strings.Join(missing, ", "))
	}
	if len(components) > 0 {
		return invalidSet("schemaComponentsInEndpointOrder lists unknown projects: %s", strings.Join(schema.SortedKeys(components), ", "))
	}
	return nil
}

func declaredResources(set *schema.EffectiveSchemaSet) (map[model.QualifiedResourceName]declared, error) {
	out := make(map[model.QualifiedResourceName]declared)
	for _, p := range set.ProjectSchemas {
		concrete := make(map[string]bool)
		for _, key := range schema.SortedKeys(p.ResourceSchemas) {
			rs := p.ResourceSchemas[key]
			if strings.TrimSpace(rs.ResourceName) == "" {
				return nil, invalidSet("resource schema '%s' in project '%s' must declare resourceName", key, p.ProjectName)
			}
			q := model.QualifiedResourceName{ProjectName: p.ProjectName, ResourceName: rs.ResourceName}
			if _, dup := out[q]; dup {
				return nil, invalidSet("Resource '%s' is declared more than once", q)
			}
			out[q] = declared{resource: q, schema: rs}
			concrete[rs.ResourceName] = true
		}
		for _, key := range schema.SortedKeys(p.AbstractResources) {
			rs := p.AbstractResources[key]
			name := rs.ResourceName
			if strings.TrimSpace(name) == "" {
				name = key
				rs.ResourceName = key
			}
			q := model.QualifiedResourceName{ProjectName: p.ProjectName, ResourceName: name}
			if concrete[name] {
				return nil, invalidSet("Resource '%s' is defined in both projectSchema.resourceSchemas and projectSchema.abstractResources", q)
			}
			if _, dup := out[q]; dup {
				return nil, invalidSet("Resource '%s' is declared more than once", q)
			}
			out[q] = declared{resource: q, schema: rs, isAbstract: true}
		}
	}
	return out, nil
}

func validateResourceKeys(info schema.EffectiveSchemaInfo, resources map[model.QualifiedResourceName]declared) error {
	keys := info.ResourceKeysInIdOrder
	if info.ResourceKeyCount != len(keys) {
		return invalidSet("EffectiveSchemaInfo.ResourceKeyCount (%d) does not match ResourceKeysInIdOrder count (%d)",
			info.ResourceKeyCount, len(keys))
	}

	ids := make(map[int16]int)
	byResource := make(map[model.QualifiedResourceName]schema.ResourceKey)
	var dupIDs []string
	var dupResources []string
	for _, k := range keys {
		ids[k.ResourceKeyID]++
		if ids[k.ResourceKeyID] == 2 {
			dupIDs = append(dupIDs, fmt.Sprint(k.ResourceKeyID))
		}
		q := model.QualifiedResourceName{ProjectName: k.ProjectName, ResourceName: k.ResourceName}
		if _, ok := byResource[q]; ok {
			dupResources = append(dupResources, q.String())
			continue
		}
		byResource[q] = k
	}
	if len(dupIDs) > 0 {
		return invalidSet("Duplicate ResourceKeyId values detected: %s", strings.Join(dupIDs, ", "))
	}
	if len(dupResources) > 0 {
		slices.Sort(dupResources)
		return invalidSet("Duplicate resource keys detected for: %s", strings.Join(dupResources, ", "))
	}
	for i, k := range keys {
		if int(k.ResourceKeyID) != i+1 {
			return invalidSet("ResourceKeysInIdOrder must hold contiguous ids starting at 1; entry %d has id %d", i, k.ResourceKeyID)
		}
	}

	var missing []string
	for q := range resources {
		if _, ok := byResource[q]; !ok {
			missing = append(missing, q.String())
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return invalidSet("Missing resource keys for: %s", strings.Join(missing, ", "))
	}

	var unknown []string
	for q := range byResource {
		if _, ok := resources[q]; !ok {
			unknown = append(unknown, q.String())
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return invalidSet("Resource keys reference unknown resources: %s", strings.Join(unknown, ", "))
	}

	for _, q := range sortedDeclared(resources) {
		d := resources[q]
		k := byResource[q]
		if k.IsAbstractResource != d.isAbstract {
			return invalidSet("Resource key entry for resource '%s' has IsAbstractResource=%v (%s) but expected IsAbstractResource=%v (%s)",
				q, k.IsAbstractResource, abstractSource(k.IsAbstractResource), d.isAbstract, abstractSource(d.isAbstract))
		}
	}
	return nil
}

func abstractSource(abstract bool) string {
	if abstract {
		return "abstractResources"
	}
	return "resourceSchemas"
}

func validateSubclasses(resources map[model.QualifiedResourceName]declared) error {
	for _, q := range sortedDeclared(resources) {
		d := resources[q]
		if d.isAbstract || !d.schema.IsSubclass {
			continue
		}
		rs := d.schema
		if rs.SuperclassProjectName == "" || rs.SuperclassResourceName == "" {
			return invalidSet("Subclass resource '%s' must declare superclassProjectName and superclassResourceName", q)
		}
		if rs.SuperclassIdentityJsonPath != "" {
			if _, err := jsonpath.Compile(rs.SuperclassIdentityJsonPath); err != nil {
				return invalidSet("Subclass resource '%s' superclassIdentityJsonPath: %v", q, err)
			}
			if len(rs.IdentityJsonPaths) != 1 {
				return invalidSet("Subclass resource '%s' declares superclassIdentityJsonPath so it must have exactly one identityJsonPath, found %d",
					q, len(rs.IdentityJsonPaths))
			}
		}
	}
	return nil
}

func validateDocumentPathTargets(resources map[model.QualifiedResourceName]declared) error {
	for _, q := range sortedDeclared(resources) {
		d := resources[q]
		for _, key := range schema.SortedKeys(d.schema.DocumentPathsMapping) {
			entry := d.schema.DocumentPathsMapping[key]
			if !entry.IsReference {
				continue
			}
			target := model.QualifiedResourceName{ProjectName: entry.ProjectName, ResourceName: entry.ResourceName}
			t, ok := resources[target]
			if !ok {
				return invalidSet("documentPathsMapping %s on resource '%s' references unknown resource '%s'", mappingLabel(key, entry), q, target)
			}
			if entry.IsDescriptor {
				continue
			}
			identities := make(map[string]bool, len(t.schema.IdentityJsonPaths))
			for _, raw := range t.schema.IdentityJsonPaths {
				if p, err := jsonpath.Compile(raw); err == nil {
					identities[p.Canonical()] = true
				}
			}
			for _, rp := range entry.ReferenceJsonPaths {
				p, err := jsonpath.Compile(rp.IdentityJsonPath)
				if err != nil {
					return invalidSet("documentPathsMapping %s on resource '%s': %v", mappingLabel(key, entry), q, err)
				}
				if !identities[p.Canonical()] {
					return invalidSet("documentPathsMapping %s on resource '%s' references identityJsonPath '%s' which does not exist in target resource '%s'",
						mappingLabel(key, entry), q, p, target)
				}
			}
		}
	}
	return nil
}

// mappingLabel names a documentPathsMapping entry together with the
// document location it reads from.
func mappingLabel(key string, entry schema.DocumentPath) string {
	if strings.TrimSpace(key) == "" {
		key = "<empty>"
	}
	if entry.Path != "" {
		return fmt.Sprintf("entry '%s' (path '%s')", key, entry.Path)
	}
	if len(entry.ReferenceJsonPaths) > 0 {
		paths := make([]string, len(entry.ReferenceJsonPaths))
		for i, rp := range entry.ReferenceJsonPaths {
			paths[i] = rp.ReferenceJsonPath
		}
		return fmt.Sprintf("entry '%s' (reference paths '%s')", key, strings.Join(paths, "', '"))
	}
	return fmt.Sprintf("entry '%s'", key)
}

func sortedDeclared(resources map[model.QualifiedResourceName]declared) []model.QualifiedResourceName {
	out := make([]model.QualifiedResourceName, 0, len(resources))
	for q := range resources {
		out = append(out, q)
	}
	slices.SortFunc(out, model.CompareResources)
	return out
}
