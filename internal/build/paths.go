package build

import (
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pthm/relmodel/internal/jsonpath"
	"github.com/pthm/relmodel/internal/naming"
)

// IdentityPartBaseName joins the PascalCase form of every property of an
// identity path: "$.studentReference.studentUniqueId" gives
// "StudentReferenceStudentUniqueId". Array segments are not allowed.
func IdentityPartBaseName(identityPath jsonpath.Expression) (string, error) {
	if identityPath.IsRoot() {
		return "", fmt.Errorf("identity path '%s' must include at least one property segment", identityPath)
	}
	var sb strings.Builder
	for _, seg := range identityPath.Segments() {
		if seg.IsWildcard() {
			return "", fmt.Errorf("identity path '%s' must not include array segments", identityPath)
		}
		sb.WriteString(naming.PascalCase(seg.Name))
	}
	return sb.String(), nil
}

// SchemaAt follows path from root through properties and array items.
func SchemaAt(root *jsonschema.Schema, path jsonpath.Expression) (*jsonschema.Schema, error) {
	current := root
	walked := jsonpath.Root()
	for _, seg := range path.Segments() {
		if current == nil {
			return nil, fmt.Errorf("schema node at %s is missing", walked)
		}
		kind, err := DetermineKind(current, walked.Canonical())
		if err != nil {
			return nil, err
		}
		if seg.IsWildcard() {
			if kind != KindArray || current.Items == nil {
				return nil, fmt.Errorf("expected array schema at %s", walked)
			}
			current = current.Items
			walked = walked.Elements()
			continue
		}
		if kind != KindObject {
			return nil, fmt.Errorf("expected object schema at %s", walked)
		}
		next, ok := current.Properties[seg.Name]
		if !ok || next == nil {
			return nil, fmt.Errorf("property '%s' was not found at %s", seg.Name, walked)
		}
		current = next
		walked = walked.Child(seg.Name)
	}
	if current == nil {
		return nil, fmt.Errorf("schema node at %s is missing", path)
	}
	return current, nil
}
