package build

import (
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/model"
)

// DiscoverExtensionSites records every _ext property, at the root and
// inside collections, with the project keys declared beneath it.
func DiscoverExtensionSites(c *Context) error {
	c.ExtensionSites = nil
	return discoverSites(c, c.JsonSchema, jsonpath.Root())
}

func discoverSites(c *Context, s *jsonschema.Schema, path jsonpath.Expression) error {
	kind, err := DetermineKind(s, path.Canonical())
	if err != nil {
		return c.Errorf("%v", err)
	}
	switch kind {
	case KindArray:
		if s.Items == nil {
			return nil
		}
		return discoverSites(c, s.Items, path.Elements())
	case KindObject:
		for _, name := range SortedProperties(s) {
			prop := s.Properties[name]
			if prop == nil {
				continue
			}
			if name == extensionProperty {
				c.ExtensionSites = append(c.ExtensionSites, model.ExtensionSite{
					OwningScope:   path,
					ExtensionPath: path.Child(name),
					ProjectKeys:   SortedProperties(prop),
				})
				continue
			}
			if err := discoverSites(c, prop, path.Child(name)); err != nil {
				return err
			}
		}
	}
	return nil
}
