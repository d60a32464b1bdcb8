// Package naming derives physical identifiers from resource metadata.
//
// The policy is deliberately narrow so that every name is legal on every
// supported engine before any dialect shortening is applied:
//
//   - schema names are lowercase ASCII letters and digits, starting with a letter
//   - table, column, and collection segments are PascalCase
//   - collection tables are named by the root plus singularized collection names
package naming

import (
	"strings"
	"unicode"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pthm/relmodel/internal/model"
)

var (
	lower     = cases.Lower(language.Und)
	inflector = inflect.NewDefaultRuleset()
)

// NormalizeSchemaName turns a project endpoint name such as "ed-fi" into a
// physical schema name ("edfi"). Names that would not start with a letter
// get a "p" prefix.
func NormalizeSchemaName(endpointName string) model.DbSchemaName {
	var sb strings.Builder
	for _, r := range lower.String(endpointName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	s := sb.String()
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		s = "p" + s
	}
	return model.DbSchemaName(s)
}

// PascalCase removes separators and upper-cases the first letter of every
// segment. The rest of each segment is left alone, so "schoolId" becomes
// "SchoolId" and "sample-ext" becomes "SampleExt".
func PascalCase(value string) string {
	var sb strings.Builder
	sb.Grow(len(value))
	nextUpper := true
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if nextUpper {
				r = unicode.ToUpper(r)
			}
			sb.WriteRune(r)
			nextUpper = false
			continue
		}
		nextUpper = true
	}
	return sb.String()
}

// Singularize returns the singular of a collection property name.
func Singularize(value string) string {
	if value == "" {
		return ""
	}
	return inflector.Singularize(value)
}

// CollectionBaseName is the PascalCase singular of a collection property.
func CollectionBaseName(property string) string {
	return PascalCase(Singularize(property))
}

// RootDocumentIDColumn is the root key part on child tables, e.g. School_DocumentId.
func RootDocumentIDColumn(rootBase string) model.DbColumnName {
	return model.DbColumnName(rootBase + "_DocumentId")
}

// ParentOrdinalColumn is an ancestor collection's ordinal key part, e.g. AddressOrdinal.
func ParentOrdinalColumn(collectionBase string) model.DbColumnName {
	return model.DbColumnName(collectionBase + "Ordinal")
}

// DescriptorIDColumn is the FK column for a descriptor value, e.g. SchoolTypeDescriptor_DescriptorId.
func DescriptorIDColumn(base string) model.DbColumnName {
	return model.DbColumnName(base + "_DescriptorId")
}

// DocumentFkColumn is the FK column for a document reference, e.g. School_DocumentId.
func DocumentFkColumn(referenceBase string) model.DbColumnName {
	return model.DbColumnName(referenceBase + "_DocumentId")
}

// ExtensionTableName names the extension table for a base table, e.g.
// SchoolExtension or SchoolExtensionAddress.
func ExtensionTableName(rootBase string, collectionBases []string) string {
	return rootBase + "Extension" + strings.Join(collectionBases, "")
}

// AbstractIdentityTableName names the identity table of an abstract resource.
func AbstractIdentityTableName(abstractBase string) string {
	return abstractBase + "Identity"
}

// AbstractUnionViewName names the union view of an abstract resource.
func AbstractUnionViewName(abstractBase string) string {
	return abstractBase + "_View"
}
