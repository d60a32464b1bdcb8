package build

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/model"
	"github.com/pthm/relmodel/internal/naming"
	"github.com/pthm/relmodel/schema"
)

var keyFold = cases.Fold()

// ExtractInputs validates the raw resource schema and compiles every path
// the later steps need.
func ExtractInputs(c *Context) error {
	in := c.Input
	if strings.TrimSpace(in.ResourceName) == "" {
		return ResourceErrorf(c.Resource, "resourceName must be non-empty")
	}
	if in.IsDescriptor == nil {
		return c.Errorf("expected isDescriptor to be on the resource schema")
	}
	if len(in.JsonSchemaForInsert) == 0 {
		return c.Errorf("expected jsonSchemaForInsert to be on the resource schema")
	}

	c.IsDescriptor = in.Descriptor()
	c.IsResourceExtension = in.IsResourceExtension
	c.AllowIdentityUpdates = in.AllowIdentityUpdates

	js, err := DecodeSchema(in.JsonSchemaForInsert)
	if err != nil {
		return c.Errorf("jsonSchemaForInsert is not a valid JSON Schema: %v", err)
	}
	c.JsonSchema = js

	if err := extractIdentityPaths(c); err != nil {
		return err
	}

	if c.DescriptorPaths == nil {
		paths, err := DescriptorPathsFor(c.Resource, in)
		if err != nil {
			return err
		}
		c.DescriptorPaths = paths
	}

	if err := extractDecimalInfos(c); err != nil {
		return err
	}
	c.StringOmissionPaths = stringOmissionPaths(in.FlatteningMetadata)

	uniq, err := compileArrayUniqueness(c, in.ArrayUniquenessConstraints, false)
	if err != nil {
		return err
	}
	c.ArrayUniqueness = uniq

	for _, eq := range in.EqualityConstraints {
		src, err := jsonpath.Compile(eq.SourceJsonPath)
		if err != nil {
			return c.Errorf("equalityConstraints sourceJsonPath: %v", err)
		}
		dst, err := jsonpath.Compile(eq.TargetJsonPath)
		if err != nil {
			return c.Errorf("equalityConstraints targetJsonPath: %v", err)
		}
		c.EqualityConstraints = append(c.EqualityConstraints, EqualityConstraint{Source: src, Target: dst})
	}

	if err := extractReferenceMappings(c); err != nil {
		return err
	}
	if err := validateArrayUniquenessReferenceCoverage(c); err != nil {
		return err
	}
	return extractRelationalOverrides(c)
}

func extractIdentityPaths(c *Context) error {
	c.identitySet = make(map[string]bool, len(c.Input.IdentityJsonPaths))
	for _, raw := range c.Input.IdentityJsonPaths {
		p, err := jsonpath.Compile(raw)
		if err != nil {
			return c.Errorf("identityJsonPaths: %v", err)
		}
		if c.identitySet[p.Canonical()] {
			return c.Errorf("identityJsonPaths entry '%s' is duplicated", p)
		}
		c.identitySet[p.Canonical()] = true
		c.IdentityPaths = append(c.IdentityPaths, p)
	}
	return nil
}

// DescriptorPathsFor infers the descriptor paths declared by one resource.
// Entries of documentPathsMapping marked as descriptors win. A resource
// without a mapping falls back on identity paths whose last property ends
// in "Descriptor".
func DescriptorPathsFor(resource model.QualifiedResourceName, in schema.ResourceSchema) (map[string]DescriptorPathInfo, error) {
	out := make(map[string]DescriptorPathInfo)
	add := func(p jsonpath.Expression, target model.QualifiedResourceName) error {
		if existing, ok := out[p.Canonical()]; ok && existing.DescriptorResource != target {
			return ResourceErrorf(resource, "descriptor path '%s' is already defined", p)
		}
		out[p.Canonical()] = DescriptorPathInfo{Path: p, DescriptorResource: target}
		return nil
	}

	if len(in.DocumentPathsMapping) > 0 {
		for _, key := range schema.SortedKeys(in.DocumentPathsMapping) {
			entry := in.DocumentPathsMapping[key]
			if !entry.IsReference || !entry.IsDescriptor {
				continue
			}
			if entry.Path == "" {
				return nil, ResourceErrorf(resource, "descriptor mapping '%s' is missing path", key)
			}
			p, err := jsonpath.Compile(entry.Path)
			if err != nil {
				return nil, ResourceErrorf(resource, "descriptor mapping '%s': %v", key, err)
			}
			target := model.QualifiedResourceName{ProjectName: entry.ProjectName, ResourceName: entry.ResourceName}
			if err := add(p, target); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	for _, raw := range in.IdentityJsonPaths {
		p, err := jsonpath.Compile(raw)
		if err != nil {
			return nil, ResourceErrorf(resource, "identityJsonPaths: %v", err)
		}
		last, ok := p.LastProperty()
		if !ok || !strings.HasSuffix(last, "Descriptor") {
			continue
		}
		target := model.QualifiedResourceName{ProjectName: resource.ProjectName, ResourceName: naming.PascalCase(last)}
		if err := add(p, target); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func extractDecimalInfos(c *Context) error {
	c.DecimalInfos = make(map[string]DecimalInfo)
	for _, info := range c.Input.DecimalPropertyValidationInfos {
		p, err := jsonpath.Compile(info.Path)
		if err != nil {
			return c.Errorf("decimalPropertyValidationInfos: %v", err)
		}
		if _, ok := c.DecimalInfos[p.Canonical()]; ok {
			return c.Errorf("decimal validation info for '%s' is already defined", p)
		}
		c.DecimalInfos[p.Canonical()] = DecimalInfo{Path: p, TotalDigits: info.TotalDigits, DecimalPlaces: info.DecimalPlaces}
	}

	// Flattening metadata may carry precision for paths the validation
	// infos do not mention. Explicit infos always win.
	var walk func(t *schema.FlatteningTable) error
	walk = func(t *schema.FlatteningTable) error {
		if t == nil {
			return nil
		}
		for _, col := range t.Columns {
			if col.TotalDigits == nil && col.DecimalPlaces == nil {
				continue
			}
			p, err := jsonpath.Compile(col.JsonPath)
			if err != nil {
				return c.Errorf("flatteningMetadata: %v", err)
			}
			if _, ok := c.DecimalInfos[p.Canonical()]; ok {
				continue
			}
			c.DecimalInfos[p.Canonical()] = DecimalInfo{Path: p, TotalDigits: col.TotalDigits, DecimalPlaces: col.DecimalPlaces}
		}
		for i := range t.ChildTables {
			if err := walk(&t.ChildTables[i]); err != nil {
				return err
			}
		}
		return nil
	}
	if c.Input.FlatteningMetadata != nil {
		return walk(c.Input.FlatteningMetadata.Table)
	}
	return nil
}

// stringOmissionPaths returns the paths whose string columns may omit
// maxLength. Invalid paths in flattening metadata are ignored.
func stringOmissionPaths(meta *schema.FlatteningMetadata) map[string]bool {
	out := make(map[string]bool)
	if meta == nil {
		return out
	}
	var walk func(t *schema.FlatteningTable)
	walk = func(t *schema.FlatteningTable) {
		if t == nil {
			return
		}
		for _, col := range t.Columns {
			omit := false
			switch strings.ToLower(col.ColumnType) {
			case "duration", "enumeration":
				omit = true
			case "string":
				omit = col.MaxLength == nil
			}
			if !omit {
				continue
			}
			if p, err := jsonpath.Compile(col.JsonPath); err == nil {
				out[p.Canonical()] = true
			}
		}
		for i := range t.ChildTables {
			walk(&t.ChildTables[i])
		}
	}
	walk(meta.Table)
	return out
}

func compileArrayUniqueness(c *Context, in []schema.ArrayUniquenessConstraint, nested bool) ([]ArrayUniqueness, error) {
	var out []ArrayUniqueness
	for _, raw := range in {
		var base *jsonpath.Expression
		if raw.BasePath != "" {
			b, err := jsonpath.Compile(raw.BasePath)
			if err != nil {
				return nil, c.Errorf("arrayUniquenessConstraints basePath: %v", err)
			}
			base = &b
		} else if nested {
			return nil, c.Errorf("arrayUniquenessConstraints nestedConstraints entry is missing basePath")
		}
		if len(raw.Paths) == 0 {
			return nil, c.Errorf("arrayUniquenessConstraints paths must contain entries")
		}

		u := ArrayUniqueness{BasePath: base}
		for _, rp := range raw.Paths {
			p, err := jsonpath.Compile(rp)
			if err != nil {
				return nil, c.Errorf("arrayUniquenessConstraints path: %v", err)
			}
			if base != nil && !p.IsRoot() {
				p = base.Append(p.Segments()...)
			} else if base != nil {
				p = *base
			}
			u.Paths = append(u.Paths, p)
		}

		children, err := compileArrayUniqueness(c, raw.NestedConstraints, true)
		if err != nil {
			return nil, err
		}
		u.Nested = children
		out = append(out, u)
	}
	return out, nil
}

// extractReferenceMappings compiles the document references declared in
// documentPathsMapping and checks them against the identity paths.
func extractReferenceMappings(c *Context) error {
	mapped := make(map[string]bool)
	seenIdentity := make(map[string]string)

	for _, key := range schema.SortedKeys(c.Input.DocumentPathsMapping) {
		entry := c.Input.DocumentPathsMapping[key]

		if !entry.IsReference || entry.IsDescriptor {
			if entry.Path != "" {
				if p, err := jsonpath.Compile(entry.Path); err == nil {
					mapped[p.Canonical()] = true
				}
			}
			continue
		}

		if entry.ReferenceJsonPaths == nil {
			return c.Errorf("documentPathsMapping entry '%s' is missing referenceJsonPaths", key)
		}
		if len(entry.ReferenceJsonPaths) == 0 {
			return c.Errorf("documentPathsMapping entry '%s' has no referenceJsonPaths entries", key)
		}
		if entry.ProjectName == "" || entry.ResourceName == "" {
			return c.Errorf("documentPathsMapping entry '%s' must name its target projectName and resourceName", key)
		}

		m := ReferenceMapping{
			MappingKey:     key,
			TargetResource: model.QualifiedResourceName{ProjectName: entry.ProjectName, ResourceName: entry.ResourceName},
			IsRequired:     entry.IsRequired,
		}

		var prefix *jsonpath.Expression
		identityCount := 0
		for _, rp := range entry.ReferenceJsonPaths {
			identity, err := jsonpath.Compile(rp.IdentityJsonPath)
			if err != nil {
				return c.Errorf("documentPathsMapping entry '%s' identityJsonPath: %v", key, err)
			}
			local, err := jsonpath.Compile(rp.ReferenceJsonPath)
			if err != nil {
				return c.Errorf("documentPathsMapping entry '%s' referenceJsonPath: %v", key, err)
			}
			if _, ok := local.LastProperty(); !ok || local.Segments()[local.Len()-1].IsWildcard() {
				return c.Errorf("documentPathsMapping entry '%s' referenceJsonPath '%s' must end with a property segment", key, local)
			}

			parent := local.Parent()
			if prefix == nil {
				prefix = &parent
			} else if !prefix.Equal(parent) {
				return c.Errorf("documentPathsMapping entry '%s' has inconsistent referenceJsonPaths prefix '%s' and '%s'", key, prefix, parent)
			}

			for _, b := range m.ReferenceJsonPaths {
				if b.IdentityJsonPath.Equal(identity) {
					return c.Errorf("documentPathsMapping entry '%s' repeats identityJsonPath '%s'", key, identity)
				}
			}

			if c.IsIdentityPath(local) {
				identityCount++
				if owner, ok := seenIdentity[local.Canonical()]; ok {
					return c.Errorf("identity path '%s' is mapped by both '%s' and '%s'", local, owner, key)
				}
				seenIdentity[local.Canonical()] = key
			}
			mapped[local.Canonical()] = true
			m.ReferenceJsonPaths = append(m.ReferenceJsonPaths, ReferenceJsonPathBinding{IdentityJsonPath: identity, ReferenceJsonPath: local})
		}
		m.ReferenceObjectPath = *prefix
		mapped[prefix.Canonical()] = true

		if identityCount > 0 {
			m.IsPartOfIdentity = true
			if identityCount != len(m.ReferenceJsonPaths) {
				var missing []string
				for _, b := range m.ReferenceJsonPaths {
					if !c.IsIdentityPath(b.ReferenceJsonPath) {
						missing = append(missing, b.ReferenceJsonPath.Canonical())
					}
				}
				return c.Errorf("documentPathsMapping entry '%s' is partially mapped to identityJsonPaths; missing %s",
					key, strings.Join(missing, ", "))
			}
			if !m.IsRequired {
				return c.Errorf("documentPathsMapping entry '%s' is mapped to identityJsonPaths but isRequired is false. Identity references must be required", key)
			}
		}

		c.ReferenceMappings = append(c.ReferenceMappings, m)
	}

	var unmapped []string
	for _, p := range c.IdentityPaths {
		if !mapped[p.Canonical()] {
			unmapped = append(unmapped, p.Canonical())
		}
	}
	if len(unmapped) > 0 {
		slices.Sort(unmapped)
		return c.Errorf("identityJsonPaths were not found in documentPathsMapping: %s", strings.Join(unmapped, ", "))
	}
	return nil
}

// validateArrayUniquenessReferenceCoverage rejects uniqueness constraints
// that name part of a reference identity without naming all of it.
func validateArrayUniquenessReferenceCoverage(c *Context) error {
	if len(c.ArrayUniqueness) == 0 || len(c.ReferenceMappings) == 0 {
		return nil
	}
	var check func(u ArrayUniqueness) error
	check = func(u ArrayUniqueness) error {
		set := make(map[string]bool, len(u.Paths))
		for _, p := range u.Paths {
			set[p.Canonical()] = true
		}
		for _, m := range c.ReferenceMappings {
			var missing []string
			matched := false
			for _, b := range m.ReferenceJsonPaths {
				if set[b.ReferenceJsonPath.Canonical()] {
					matched = true
				} else {
					missing = append(missing, b.ReferenceJsonPath.Canonical())
				}
			}
			if matched && len(missing) > 0 {
				slices.Sort(missing)
				return c.Errorf("arrayUniquenessConstraints includes reference identity path(s) under '%s' but is missing reference identity path(s): %s",
					m.ReferenceObjectPath, strings.Join(missing, ", "))
			}
		}
		for _, n := range u.Nested {
			if err := check(n); err != nil {
				return err
			}
		}
		return nil
	}
	for _, u := range c.ArrayUniqueness {
		if err := check(u); err != nil {
			return err
		}
	}
	return nil
}

func extractRelationalOverrides(c *Context) error {
	c.NameOverrides = make(map[string]NameOverride)
	rel := c.Input.Relational
	if rel == nil {
		return nil
	}
	if c.IsDescriptor {
		return c.Errorf("descriptor resource must not define relational overrides")
	}

	if rel.RootTableNameOverride != nil {
		raw := *rel.RootTableNameOverride
		if strings.TrimSpace(raw) == "" {
			return c.Errorf("relational.rootTableNameOverride must be non-empty")
		}
		normalized := naming.PascalCase(raw)
		if normalized == "" {
			return c.Errorf("relational.rootTableNameOverride must normalize to a non-empty name")
		}
		if c.IsResourceExtension {
			if normalized != naming.PascalCase(c.Input.ResourceName)+"Extension" {
				return c.Errorf("relational.rootTableNameOverride is not supported for resource extension")
			}
		} else {
			c.RootTableNameOverride = normalized
		}
	}

	var projectKey string
	for _, rawKey := range schema.SortedKeys(rel.NameOverrides) {
		p, err := jsonpath.Compile(rawKey)
		if err != nil {
			return c.Errorf("relational.nameOverrides entry '%s' is not a valid JSONPath", rawKey)
		}
		if c.IsResourceExtension && !isExtensionRooted(p) {
			if projectKey == "" {
				projectKey, err = extensionProjectKey(c)
				if err != nil {
					return err
				}
			}
			p = jsonpath.Root().Append(jsonpath.Prop(extensionProperty), jsonpath.Prop(projectKey)).Append(p.Segments()...)
		}

		value := rel.NameOverrides[rawKey]
		if strings.TrimSpace(value) == "" {
			return c.Errorf("relational.nameOverrides entry '%s' must be non-empty", rawKey)
		}
		normalized := naming.PascalCase(value)
		if normalized == "" {
			return c.Errorf("relational.nameOverrides entry '%s' must normalize to a non-empty name", rawKey)
		}

		if ref, inside := insideReferenceObject(c, p); inside && !isReferenceIdentityPath(c, p) {
			return c.Errorf("relational.nameOverrides entry '%s' (canonical '%s') targets a non-identity path inside reference object '%s'. Only reference identity paths may be overridden",
				rawKey, p, ref)
		}

		if existing, ok := c.NameOverrides[p.Canonical()]; ok {
			return c.Errorf("relational.nameOverrides entry '%s' (canonical '%s') duplicates '%s'", rawKey, p, existing.RawKey)
		}
		segs := p.Segments()
		c.NameOverrides[p.Canonical()] = NameOverride{
			RawKey:       rawKey,
			Path:         p,
			Name:         normalized,
			IsCollection: len(segs) > 0 && segs[len(segs)-1].IsWildcard(),
		}
	}
	return nil
}

func isExtensionRooted(p jsonpath.Expression) bool {
	segs := p.Segments()
	return len(segs) > 0 && !segs[0].IsWildcard() && segs[0].Name == extensionProperty
}

// extensionProjectKey finds the _ext key an extension resource uses for its
// own project, matching the endpoint name first and the project name second.
func extensionProjectKey(c *Context) (string, error) {
	js := c.JsonSchema
	if js == nil || js.Properties == nil {
		return "", c.Errorf("extension resource is missing jsonSchemaForInsert.properties")
	}
	ext, ok := js.Properties[extensionProperty]
	if !ok || ext == nil {
		return "", c.Errorf("extension resource is missing jsonSchemaForInsert.properties._ext")
	}
	if ext.Properties == nil {
		return "", c.Errorf("extension resource is missing jsonSchemaForInsert.properties._ext.properties")
	}
	if key, ok := MatchProjectKey(SortedProperties(ext), c.Project.ProjectEndpointName, c.Project.ProjectName); ok {
		return key, nil
	}
	return "", c.Errorf("extension project key '%s' not found under jsonSchemaForInsert._ext", c.Project.ProjectEndpointName)
}

// MatchProjectKey returns the first key that equals endpointName, or failing
// that projectName, ignoring case.
func MatchProjectKey(keys []string, endpointName, projectName string) (string, bool) {
	for _, want := range []string{endpointName, projectName} {
		for _, k := range keys {
			if keyFold.String(k) == keyFold.String(want) {
				return k, true
			}
		}
	}
	return "", false
}

func insideReferenceObject(c *Context, p jsonpath.Expression) (jsonpath.Expression, bool) {
	for _, m := range c.ReferenceMappings {
		if p.Len() > m.ReferenceObjectPath.Len() && p.HasPrefix(m.ReferenceObjectPath) {
			return m.ReferenceObjectPath, true
		}
	}
	return jsonpath.Expression{}, false
}

func isReferenceIdentityPath(c *Context, p jsonpath.Expression) bool {
	for _, m := range c.ReferenceMappings {
		for _, b := range m.ReferenceJsonPaths {
			if b.ReferenceJsonPath.Equal(p) {
				return true
			}
		}
	}
	return false
}

// ReferenceMappingFor returns the mapping whose reference object is path.
func (c *Context) ReferenceMappingFor(path jsonpath.Expression) (ReferenceMapping, bool) {
	for _, m := range c.ReferenceMappings {
		if m.ReferenceObjectPath.Equal(path) {
			return m, true
		}
	}
	return ReferenceMapping{}, false
}

// IsReferenceIdentityPath reports whether path is mirrored from a
// referenced resource's identity.
func (c *Context) IsReferenceIdentityPath(path jsonpath.Expression) bool {
	return isReferenceIdentityPath(c, path)
}

// IsUnderReferenceObject reports whether path lies strictly inside a
// reference object.
func (c *Context) IsUnderReferenceObject(path jsonpath.Expression) bool {
	_, ok := insideReferenceObject(c, path)
	return ok
}
