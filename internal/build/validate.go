package build

import (
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pthm/relmodel/internal/jsonpath"
)

// ValidateJsonSchema checks that the JSON schema has a shape the compiler
// can lower and that identity and uniqueness paths point at real scalars.
func ValidateJsonSchema(c *Context) error {
	root := c.JsonSchema
	if root == nil {
		return c.Errorf("jsonSchemaForInsert must be decoded before validation")
	}
	if kind, err := DetermineKind(root, "$"); err != nil || kind != KindObject {
		return c.Errorf("json schema root must be an object")
	}

	v := schemaValidator{ctx: c, scalars: make(map[string]bool), arrays: make(map[string]bool)}
	if err := v.walk(root, "$", jsonpath.Root()); err != nil {
		return err
	}

	var missing []string
	for _, p := range c.IdentityPaths {
		if !v.scalars[p.Canonical()] {
			missing = append(missing, p.Canonical())
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return c.Errorf("identityJsonPaths were not found in JSON schema: %s", strings.Join(missing, ", "))
	}

	missingBase := make(map[string]bool)
	missingPaths := make(map[string]bool)
	var check func(u ArrayUniqueness)
	check = func(u ArrayUniqueness) {
		if u.BasePath != nil && !v.arrays[u.BasePath.Canonical()] {
			missingBase[u.BasePath.Canonical()] = true
		}
		for _, p := range u.Paths {
			if !v.scalars[p.Canonical()] {
				missingPaths[p.Canonical()] = true
			}
		}
		for _, n := range u.Nested {
			check(n)
		}
	}
	for _, u := range c.ArrayUniqueness {
		check(u)
	}
	if len(missingBase) > 0 {
		return c.Errorf("arrayUniquenessConstraints basePath values were not found in JSON schema: %s",
			strings.Join(sortedSet(missingBase), ", "))
	}
	if len(missingPaths) > 0 {
		return c.Errorf("arrayUniquenessConstraints paths were not found in JSON schema: %s",
			strings.Join(sortedSet(missingPaths), ", "))
	}
	return nil
}

type schemaValidator struct {
	ctx     *Context
	scalars map[string]bool
	arrays  map[string]bool
}

func (v *schemaValidator) walk(s *jsonschema.Schema, schemaPath string, path jsonpath.Expression) error {
	if kw := unsupportedKeyword(s); kw != "" {
		return v.ctx.Errorf("unsupported JSON Schema keyword '%s' at %s", kw, schemaPath)
	}
	kind, err := DetermineKind(s, schemaPath)
	if err != nil {
		return v.ctx.Errorf("%v", err)
	}

	switch kind {
	case KindObject:
		for _, name := range SortedProperties(s) {
			prop := s.Properties[name]
			if prop == nil {
				return v.ctx.Errorf("expected property schema to be an object at %s.properties.%s", schemaPath, name)
			}
			if err := v.walk(prop, schemaPath+".properties."+name, path.Child(name)); err != nil {
				return err
			}
		}
	case KindArray:
		if s.Items == nil {
			return v.ctx.Errorf("array schema items must be an object at %s.items", schemaPath)
		}
		if _, ok := path.LastProperty(); !ok || path.IsRoot() || path.Segments()[path.Len()-1].IsWildcard() {
			return v.ctx.Errorf("array schema must be rooted at a property segment at %s", schemaPath)
		}
		elements := path.Elements()
		v.arrays[elements.Canonical()] = true

		itemsKind, err := DetermineKind(s.Items, schemaPath+".items")
		if err != nil {
			return v.ctx.Errorf("%v", err)
		}
		if itemsKind == KindArray {
			return v.ctx.Errorf("array schema items must be type object at %s", path)
		}
		if itemsKind == KindScalar {
			if _, ok := v.ctx.DescriptorPath(elements); !ok {
				return v.ctx.Errorf("array schema items must be type object at %s", path)
			}
		}
		return v.walk(s.Items, schemaPath+".items", elements)
	case KindScalar:
		v.scalars[path.Canonical()] = true
	}
	return nil
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
